package core

import "errors"

var (
	// ErrNotRegistered is returned when acting on a client the hub does not track.
	ErrNotRegistered = errors.New("client not registered")
	// ErrClientNotOpen is returned when a frame targets a client that is not open.
	ErrClientNotOpen = errors.New("client not open")
)
