// Package client is the consumer side of the messaging service: a
// reconnecting realtime socket, a REST client and an optimistic timeline.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/proto"
)

// State is the socket lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrRetriesExhausted is reported with StateFailed.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

const (
	defaultBaseDelay   = time.Second
	defaultCapFactor   = 30
	defaultMaxAttempts = 10
)

// SocketOptions configures a Socket.
type SocketOptions struct {
	URL    string
	Header http.Header

	// BaseDelay, CapFactor and MaxAttempts shape reconnects; zero picks defaults.
	BaseDelay   time.Duration
	CapFactor   int
	MaxAttempts int

	// OnFrame and OnState run on the socket goroutine.
	OnFrame func(proto.Outbound)
	OnState func(State, error)

	Logger *zerolog.Logger
}

// Socket keeps a best-effort realtime connection open, reconnecting with
// exponential backoff after abnormal closures. A normal closure (1000) from
// either side ends the loop.
type Socket struct {
	opts SocketOptions

	mu      sync.Mutex
	state   State
	err     error
	conn    *websocket.Conn
	joined  []int64
	closing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSocket creates an idle socket.
func NewSocket(opts SocketOptions) *Socket {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.CapFactor <= 0 {
		opts.CapFactor = defaultCapFactor
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Socket{opts: opts, done: make(chan struct{})}
}

// Start runs the connection loop until Close, a normal closure or failure.
func (s *Socket) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		defer cancel()
		s.run(ctx)
	}()
}

// State returns the current state and the last error.
func (s *Socket) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

// Done is closed when the loop has stopped.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Join asks the server to acknowledge the conversation. Joins are replayed after reconnects.
func (s *Socket) Join(ctx context.Context, conversationID int64) error {
	s.mu.Lock()
	if !slices.Contains(s.joined, conversationID) {
		s.joined = append(s.joined, conversationID)
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return wsjson.Write(ctx, conn, proto.JoinConversation{ConversationID: conversationID})
}

// Close closes the connection normally and cancels any pending reconnect.
func (s *Socket) Close() {
	s.mu.Lock()
	s.closing = true
	conn := s.conn
	cancel := s.cancel
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

func (s *Socket) run(ctx context.Context) {
	b := newBackOff(s.opts.BaseDelay, s.opts.CapFactor)
	attempts := 0

	for {
		s.setState(StateConnecting, nil)
		opened, err := s.connect(ctx)
		if opened {
			attempts = 0
			b.Reset()
		}
		if s.stopped(ctx, err) {
			s.setState(StateClosed, nil)
			return
		}

		s.setState(StateClosed, err)
		attempts++
		if attempts > s.opts.MaxAttempts {
			s.setState(StateFailed, fmt.Errorf("%w: %v", ErrRetriesExhausted, err))
			return
		}

		delay := b.NextBackOff()
		s.opts.Logger.Debug().Err(err).Int("attempt", attempts).Dur("delay", delay).Msg("scheduling reconnect")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateClosed, nil)
			return
		case <-timer.C:
		}
	}
}

// connect dials and reads until the connection ends. opened reports whether
// the handshake succeeded.
func (s *Socket) connect(ctx context.Context) (opened bool, err error) {
	conn, _, err := websocket.Dial(ctx, s.opts.URL, &websocket.DialOptions{HTTPHeader: s.opts.Header})
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
		return true, context.Canceled
	}
	s.conn = conn
	joined := append([]int64(nil), s.joined...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	s.setState(StateOpen, nil)

	for _, id := range joined {
		if err := wsjson.Write(ctx, conn, proto.JoinConversation{ConversationID: id}); err != nil {
			return true, err
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		frame, err := proto.DecodeOutbound(data)
		if err != nil {
			s.opts.Logger.Warn().Err(err).Msg("dropping server frame")
			continue
		}
		if s.opts.OnFrame != nil {
			s.opts.OnFrame(frame)
		}
	}
}

func (s *Socket) stopped(ctx context.Context, err error) bool {
	if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Socket) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.err = err
	s.mu.Unlock()

	if s.opts.OnState != nil {
		s.opts.OnState(state, err)
	}
}
