package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/auth"
	"github.com/vovakirdan/practicechat/internal/config"
	"github.com/vovakirdan/practicechat/internal/core"
	"github.com/vovakirdan/practicechat/internal/messaging"
	"github.com/vovakirdan/practicechat/internal/safety"
	"github.com/vovakirdan/practicechat/internal/store"
	"github.com/vovakirdan/practicechat/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	auth  *auth.Service

	// practice 1
	alice, bob, carol *store.Member
	// practice 2
	dave *store.Member

	conv *store.Conversation
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil)
}

// newTestEnvWithStore lets wrap replace the store the messaging service sees.
// Sessions still resolve against the unwrapped store.
func newTestEnvWithStore(t *testing.T, wrap func(*sqlite.SQLiteStore) store.Store) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	env := &testEnv{store: st}
	env.alice = mustMember(t, st, 1, "alice")
	env.bob = mustMember(t, st, 1, "bob")
	env.carol = mustMember(t, st, 1, "carol")
	env.dave = mustMember(t, st, 2, "dave")

	env.conv, err = st.CreateConversation(ctx, 1, []int64{env.alice.ID, env.bob.ID}, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	disabledLogger := zerolog.New(io.Discard)

	env.auth = auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	env.hub = core.NewHub(&disabledLogger)
	var svcStore store.Store = st
	if wrap != nil {
		svcStore = wrap(st)
	}
	svc := messaging.New(svcStore, safety.NewKeywordFilter(), env.hub, &disabledLogger)

	cfg := config.Default()
	cfg.MetricsEnabled = true

	env.ts = httptest.NewServer(NewRouter(svc, env.hub, env.auth, &cfg, &disabledLogger))
	t.Cleanup(env.ts.Close)
	t.Cleanup(env.hub.Close)

	return env
}

func mustMember(t *testing.T, st *sqlite.SQLiteStore, practiceID int64, name string) *store.Member {
	t.Helper()
	m, err := st.CreateMember(context.Background(), practiceID, name)
	if err != nil {
		t.Fatalf("create member %s: %v", name, err)
	}
	return m
}

func (e *testEnv) token(t *testing.T, m *store.Member) string {
	t.Helper()
	token, err := e.auth.IssueToken(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// do sends a request as the member (nil for anonymous) and decodes a JSON body into out.
func (e *testEnv) do(t *testing.T, m *store.Member, method, path string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, m))
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func (e *testEnv) messageCount(t *testing.T, conversationID int64) int {
	t.Helper()
	msgs, err := e.store.ListMessagesForConversation(context.Background(), conversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return len(msgs)
}
