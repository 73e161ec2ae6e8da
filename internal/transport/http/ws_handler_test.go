package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/practicechat/internal/proto"
	"github.com/vovakirdan/practicechat/internal/store"
)

func dialWS(ctx context.Context, t *testing.T, env *testEnv, m *store.Member) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws?token=" + env.token(t, m)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func waitForConnections(t *testing.T, env *testEnv, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.hub.Len() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d connections, got %d", n, env.hub.Len())
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.Outbound {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	frame, err := proto.DecodeOutbound(data)
	if err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return frame
}

func TestWebSocketBroadcastReachesBothConnections(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(ctx, t, env, env.alice)
	connB := dialWS(ctx, t, env, env.dave)
	waitForConnections(t, env, 2)

	var sent proto.Message
	resp := env.do(t, env.bob, http.MethodPost, "/messages",
		proto.SendMessageRequest{ConversationID: env.conv.ID, Content: "See you at 3pm"}, &sent)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: %d", resp.StatusCode)
	}

	for _, conn := range []*websocket.Conn{connA, connB} {
		frame, ok := readFrame(ctx, t, conn).(proto.NewMessage)
		if !ok {
			t.Fatalf("expected new_message frame")
		}
		if frame.ConversationID != env.conv.ID || frame.Message.ID != sent.ID {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	}

	// Exactly one frame each: the next read must time out.
	for _, conn := range []*websocket.Conn{connA, connB} {
		shortCtx, shortCancel := context.WithTimeout(ctx, 100*time.Millisecond)
		_, _, err := conn.Read(shortCtx)
		shortCancel()
		if err == nil {
			t.Fatalf("expected no further frames")
		}
	}
}

func TestWebSocketJoinAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env, env.alice)

	if err := wsjson.Write(ctx, conn, proto.JoinConversation{ConversationID: env.conv.ID}); err != nil {
		t.Fatalf("send join: %v", err)
	}

	frame, ok := readFrame(ctx, t, conn).(proto.Joined)
	if !ok || frame.ConversationID != env.conv.ID {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestWebSocketDropsUnknownFrames(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env, env.alice)

	for _, raw := range []string{`{"type":"typing"}`, `not json`, `{"type":"join_conversation"}`} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
			t.Fatalf("write %s: %v", raw, err)
		}
	}
	if err := wsjson.Write(ctx, conn, proto.JoinConversation{ConversationID: 5}); err != nil {
		t.Fatalf("send join: %v", err)
	}

	// The connection survived the bad frames and still answers.
	frame, ok := readFrame(ctx, t, conn).(proto.Joined)
	if !ok || frame.ConversationID != 5 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}

func TestWebSocketClosedConnectionReceivesNothing(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	open := dialWS(ctx, t, env, env.alice)
	closed := dialWS(ctx, t, env, env.bob)
	waitForConnections(t, env, 2)

	_ = closed.Close(websocket.StatusNormalClosure, "bye")
	waitForConnections(t, env, 1)

	resp := env.do(t, env.alice, http.MethodPost, "/messages",
		proto.SendMessageRequest{ConversationID: env.conv.ID, Content: "still here"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send after close: %d", resp.StatusCode)
	}

	if _, ok := readFrame(ctx, t, open).(proto.NewMessage); !ok {
		t.Fatalf("expected new_message on open connection")
	}
}

func TestWebSocketShutdownGoingAway(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env, env.alice)
	waitForConnections(t, env, 1)

	env.hub.Close()

	_, _, err := conn.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Fatalf("expected going away, got %v (%v)", status, err)
	}
}

func TestWebSocketBearerHeaderRegistersClient(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(t, env.carol))
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	waitForConnections(t, env, 1)
}

func TestWebSocketRejectsMismatchedScope(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws?practiceId=2&token=" + env.token(t, env.alice)
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
	if env.hub.Len() != 0 {
		t.Fatalf("rejected handshake must not register a client")
	}
}
