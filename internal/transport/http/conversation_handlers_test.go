package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/vovakirdan/practicechat/internal/proto"
	"github.com/vovakirdan/practicechat/internal/safety"
	"github.com/vovakirdan/practicechat/internal/store"
	"github.com/vovakirdan/practicechat/internal/store/sqlite"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestSendMessageAccepted(t *testing.T) {
	env := newTestEnv(t)

	var msg proto.Message
	resp := env.do(t, env.alice, http.MethodPost, "/messages",
		proto.SendMessageRequest{ConversationID: env.conv.ID, Content: "  See you at 3pm "}, &msg)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if msg.ID == 0 || msg.Blocked || msg.Content != "See you at 3pm" || msg.SenderID != env.alice.ID {
		t.Fatalf("unexpected message: %+v", msg)
	}

	var list []proto.Message
	env.do(t, env.bob, http.MethodGet, fmt.Sprintf("/conversations/%d/messages", env.conv.ID), nil, &list)
	if len(list) != 1 || list[0].ID != msg.ID {
		t.Fatalf("expected persisted message, got %+v", list)
	}
}

func TestSendMessageBlocked(t *testing.T) {
	env := newTestEnv(t)
	before := env.messageCount(t, env.conv.ID)

	var errResp proto.ErrorResponse
	resp := env.do(t, env.alice, http.MethodPost, "/messages",
		proto.SendMessageRequest{ConversationID: env.conv.ID, Content: "Patient diagnosis is flu, DOB 1990-01-01"}, &errResp)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if errResp.Reason != safety.ReasonPrefix+"diagnosis, dob" {
		t.Fatalf("unexpected reason: %q", errResp.Reason)
	}
	if errResp.Message == "" {
		t.Fatalf("expected message in error body")
	}
	if after := env.messageCount(t, env.conv.ID); after != before {
		t.Fatalf("message count changed: %d -> %d", before, after)
	}
}

func TestSendMessageErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{name: "missing conversation", body: proto.SendMessageRequest{ConversationID: 999999, Content: "hello"}, status: http.StatusNotFound},
		{name: "whitespace content", body: proto.SendMessageRequest{ConversationID: env.conv.ID, Content: "   "}, status: http.StatusBadRequest},
		{name: "zero conversation", body: proto.SendMessageRequest{Content: "hello"}, status: http.StatusBadRequest},
		{name: "malformed body", body: "not an object", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp proto.ErrorResponse
			resp := env.do(t, env.alice, http.MethodPost, "/messages", tt.body, &errResp)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d (%+v)", tt.status, resp.StatusCode, errResp)
			}
			if errResp.Reason != "" {
				t.Fatalf("unexpected reason: %q", errResp.Reason)
			}
		})
	}
}

type brokenMessageStore struct {
	*sqlite.SQLiteStore
}

func (brokenMessageStore) CreateMessage(context.Context, int64, int64, string) (*store.Message, error) {
	return nil, errors.New("disk full at /var/lib/practicechat")
}

func TestSendMessageStorageFailureIsGeneric(t *testing.T) {
	env := newTestEnvWithStore(t, func(st *sqlite.SQLiteStore) store.Store {
		return brokenMessageStore{st}
	})

	req := authedRequest(t, env, http.MethodPost, "/messages")
	req.Body = io.NopCloser(strings.NewReader(fmt.Sprintf(`{"conversationId":%d,"content":"rota updated"}`, env.conv.ID)))
	req.Header.Set("Content-Type", "application/json")
	raw, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	defer raw.Body.Close()
	if raw.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", raw.StatusCode)
	}
	body := readAll(t, raw)
	if strings.Contains(body, "disk full") {
		t.Fatalf("storage detail leaked: %s", body)
	}

	var errResp proto.ErrorResponse
	if err := json.Unmarshal([]byte(body), &errResp); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	if errResp.Message != retryMessage || errResp.Reason != "" {
		t.Fatalf("unexpected error body: %+v", errResp)
	}
	if env.messageCount(t, env.conv.ID) != 0 {
		t.Fatalf("expected no persisted message")
	}
}

func TestSendMessageNonParticipant(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, env.carol, http.MethodPost, "/messages",
		proto.SendMessageRequest{ConversationID: env.conv.ID, Content: "hello"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListMessagesCrossPracticeLooksMissing(t *testing.T) {
	env := newTestEnv(t)

	var crossPractice, missing proto.ErrorResponse
	respCross := env.do(t, env.dave, http.MethodGet, fmt.Sprintf("/conversations/%d/messages", env.conv.ID), nil, &crossPractice)
	respMissing := env.do(t, env.dave, http.MethodGet, "/conversations/999999/messages", nil, &missing)

	if respCross.StatusCode != http.StatusNotFound || respMissing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for both, got %d and %d", respCross.StatusCode, respMissing.StatusCode)
	}
	if crossPractice != missing {
		t.Fatalf("responses differ: %+v vs %+v", crossPractice, missing)
	}
}

func TestListMessagesEmptyAndMalformedID(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.ts.Client().Do(authedRequest(t, env, http.MethodGet, fmt.Sprintf("/conversations/%d/messages", env.conv.ID)))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if body := readAll(t, resp); resp.StatusCode != http.StatusOK || strings.TrimSpace(body) != "[]" {
		t.Fatalf("expected 200 [], got %d %q", resp.StatusCode, body)
	}

	bad := env.do(t, env.alice, http.MethodGet, "/conversations/abc/messages", nil, nil)
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}

func TestConversationsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	title := "Rota"
	var created proto.Conversation
	resp := env.do(t, env.alice, http.MethodPost, "/conversations",
		proto.CreateConversationRequest{PracticeID: 1, ParticipantIDs: []int64{env.carol.ID}, Title: &title}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if len(created.ParticipantIDs) != 2 || created.ParticipantIDs[0] != env.alice.ID {
		t.Fatalf("expected requester prepended, got %v", created.ParticipantIDs)
	}

	var list []proto.Conversation
	env.do(t, env.alice, http.MethodGet, fmt.Sprintf("/conversations?userId=%d&practiceId=1", env.alice.ID), nil, &list)
	if len(list) != 2 || list[0].ID != created.ID {
		t.Fatalf("expected newest conversation first, got %+v", list)
	}

	crossPractice := env.do(t, env.alice, http.MethodPost, "/conversations",
		proto.CreateConversationRequest{ParticipantIDs: []int64{env.dave.ID}}, nil)
	if crossPractice.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for foreign participant, got %d", crossPractice.StatusCode)
	}

	empty := env.do(t, env.alice, http.MethodPost, "/conversations",
		proto.CreateConversationRequest{}, nil)
	if empty.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty participants, got %d", empty.StatusCode)
	}

	wrongPractice := env.do(t, env.alice, http.MethodPost, "/conversations",
		proto.CreateConversationRequest{PracticeID: 2, ParticipantIDs: []int64{env.bob.ID}}, nil)
	if wrongPractice.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for practice mismatch, got %d", wrongPractice.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		header string
	}{
		{name: "no token", method: http.MethodGet, path: "/conversations"},
		{name: "bad scheme", method: http.MethodGet, path: "/conversations", header: "Basic abc"},
		{name: "bad token", method: http.MethodPost, path: "/messages", header: "Bearer nope"},
		{name: "announcements", method: http.MethodGet, path: "/announcements"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, env.ts.URL+tt.path, nil)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := env.ts.Client().Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestQueryScopeMismatch(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"?practiceId=2", fmt.Sprintf("?userId=%d", env.bob.ID), "?userId=abc"} {
		resp := env.do(t, env.alice, http.MethodGet, "/conversations"+q, nil, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", q, resp.StatusCode)
		}
	}
}

func TestAnnouncementsProvisionedOnce(t *testing.T) {
	env := newTestEnv(t)

	var first []proto.Message
	resp := env.do(t, env.alice, http.MethodGet, "/announcements?practiceId=1", nil, &first)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(first) != 0 {
		t.Fatalf("expected no messages without seed, got %d", len(first))
	}
	convID := resp.Header.Get(proto.HeaderConversationID)
	if convID == "" {
		t.Fatalf("expected conversation id header")
	}

	second := env.do(t, env.bob, http.MethodGet, "/announcements", nil, nil)
	if second.Header.Get(proto.HeaderConversationID) != convID {
		t.Fatalf("expected same conversation, got %s and %s", convID, second.Header.Get(proto.HeaderConversationID))
	}

	var list []proto.Conversation
	env.do(t, env.carol, http.MethodGet, "/conversations", nil, &list)
	announcements := 0
	for _, c := range list {
		if c.Title != nil && *c.Title == "Announcements" {
			announcements++
			if len(c.ParticipantIDs) != 3 {
				t.Fatalf("expected 3 participants, got %v", c.ParticipantIDs)
			}
		}
	}
	if announcements != 1 {
		t.Fatalf("expected one announcements conversation, got %d", announcements)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, env.alice, http.MethodGet, "/conversations", nil, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer resp.Body.Close()

	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "practicechat_http_requests_total") {
		t.Fatalf("expected request metrics, got %d", resp.StatusCode)
	}
}

func authedRequest(t *testing.T, env *testEnv, method, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, env.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+env.token(t, env.alice))
	return req
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.String()
}
