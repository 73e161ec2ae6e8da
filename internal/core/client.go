package core

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vovakirdan/practicechat/internal/proto"
)

// ConnState is the lifecycle state of a realtime connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is a realtime connection as seen by the core layer.
type Client struct {
	ID         string
	UserID     int64
	PracticeID int64
	Events     chan proto.Outbound

	state atomic.Int32
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	joined map[int64]struct{}
}

// NewClient constructs a client with a random connection token.
func NewClient(userID, practiceID int64) *Client {
	return newClientWithBuffer(userID, practiceID, 16)
}

func newClientWithBuffer(userID, practiceID int64, buffer int) *Client {
	return &Client{
		ID:         uuid.NewString(),
		UserID:     userID,
		PracticeID: practiceID,
		Events:     make(chan proto.Outbound, buffer),
		done:       make(chan struct{}),
		joined:     make(map[int64]struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// MarkClosing moves an open client to closing so broadcasts skip it.
func (c *Client) MarkClosing() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
}

// Done is closed once the client is unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Joined reports whether the client sent join_conversation for the conversation.
func (c *Client) Joined(conversationID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joined[conversationID]
	return ok
}

func (c *Client) markJoined(conversationID int64) {
	c.mu.Lock()
	c.joined[conversationID] = struct{}{}
	c.mu.Unlock()
}

// enqueue hands a frame to the writer without blocking. Slow consumers lose frames.
func (c *Client) enqueue(frame proto.Outbound) bool {
	select {
	case c.Events <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.state.Store(int32(StateClosed))
	c.once.Do(func() { close(c.done) })
}
