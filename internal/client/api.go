package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vovakirdan/practicechat/internal/proto"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrContentBlocked = errors.New("content blocked")
	ErrServer         = errors.New("server error")
)

// APIError is a non-2xx response. It matches one of the sentinels above via errors.Is.
type APIError struct {
	Status  int
	Message string
	Reason  string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Reason)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusBadRequest && e.Reason != "":
		return ErrContentBlocked
	case e.Status == http.StatusBadRequest:
		return ErrInvalidInput
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrServer
	}
}

// API is a REST client for one member session.
type API struct {
	base  string
	token string
	http  *http.Client
}

// NewAPI builds a client. hc may be nil.
func NewAPI(baseURL, token string, hc *http.Client) *API {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &API{base: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

// WebSocketURL returns the realtime endpoint for this session.
func (a *API) WebSocketURL() string {
	u := a.base + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// AuthHeader returns the header the realtime handshake needs.
func (a *API) AuthHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.token)
	return h
}

// SendMessage posts a message and returns the stored record.
func (a *API) SendMessage(ctx context.Context, conversationID int64, content string) (proto.Message, error) {
	var msg proto.Message
	_, err := a.do(ctx, http.MethodPost, "/messages", proto.SendMessageRequest{ConversationID: conversationID, Content: content}, &msg)
	return msg, err
}

// ListMessages returns a conversation's messages oldest first.
func (a *API) ListMessages(ctx context.Context, conversationID int64) ([]proto.Message, error) {
	var msgs []proto.Message
	_, err := a.do(ctx, http.MethodGet, "/conversations/"+strconv.FormatInt(conversationID, 10)+"/messages", nil, &msgs)
	return msgs, err
}

// ListConversations returns the member's conversations.
func (a *API) ListConversations(ctx context.Context) ([]proto.Conversation, error) {
	var convs []proto.Conversation
	_, err := a.do(ctx, http.MethodGet, "/conversations", nil, &convs)
	return convs, err
}

// CreateConversation creates a conversation with the given participants.
func (a *API) CreateConversation(ctx context.Context, participantIDs []int64, title *string) (proto.Conversation, error) {
	var conv proto.Conversation
	_, err := a.do(ctx, http.MethodPost, "/conversations", proto.CreateConversationRequest{ParticipantIDs: participantIDs, Title: title}, &conv)
	return conv, err
}

// Announcements returns the practice's Announcements conversation id and messages.
func (a *API) Announcements(ctx context.Context) (int64, []proto.Message, error) {
	var msgs []proto.Message
	header, err := a.do(ctx, http.MethodGet, "/announcements", nil, &msgs)
	if err != nil {
		return 0, nil, err
	}
	id, err := strconv.ParseInt(header.Get(proto.HeaderConversationID), 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("announcements conversation id: %w", err)
	}
	return id, msgs, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errBody proto.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Message != "" {
			apiErr.Message = errBody.Message
			apiErr.Reason = errBody.Reason
		}
		return resp.Header, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}
