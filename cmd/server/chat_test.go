package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/practicechat/internal/client"
	"github.com/vovakirdan/practicechat/internal/proto"
)

// announcementsOnlyServer serves Announcements to a member who is not a
// participant: the per-conversation listing answers 404.
type announcementsOnlyServer struct {
	mu   sync.Mutex
	msgs []proto.Message
}

func (s *announcementsOnlyServer) add(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, proto.Message{
		ID:             int64(len(s.msgs) + 1),
		ConversationID: 4,
		SenderID:       1,
		Content:        content,
		CreatedAt:      time.Date(2026, 1, 1, 9, len(s.msgs), 0, 0, time.UTC),
	})
}

func (s *announcementsOnlyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path != "/announcements" {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(proto.ErrorResponse{Message: "conversation not found"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set(proto.HeaderConversationID, "4")
	_ = json.NewEncoder(w).Encode(s.msgs)
}

func TestChatRefreshFollowsAnnouncements(t *testing.T) {
	srv := &announcementsOnlyServer{}
	srv.add("Welcome")
	ts := httptest.NewServer(srv)
	defer ts.Close()

	var out bytes.Buffer
	session := &chatSession{api: client.NewAPI(ts.URL, "token", ts.Client()), out: &out}

	ctx := context.Background()
	if err := session.open(ctx, 0); err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.timeline.ConversationID() != 4 {
		t.Fatalf("expected conversation 4, got %d", session.timeline.ConversationID())
	}

	srv.add("Rota updated")
	session.refresh(ctx)

	got := out.String()
	if strings.Contains(got, "refresh failed") {
		t.Fatalf("refresh used the participant listing: %q", got)
	}
	if !strings.Contains(got, "Welcome") || !strings.Contains(got, "Rota updated") {
		t.Fatalf("expected both announcements printed, got %q", got)
	}
}
