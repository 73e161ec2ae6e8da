package client

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/practicechat/internal/proto"
)

// EntryStatus tracks an entry through the optimistic send flow.
type EntryStatus int

const (
	EntryConfirmed EntryStatus = iota
	EntryPending
	EntryFailed
)

func (s EntryStatus) String() string {
	switch s {
	case EntryConfirmed:
		return "confirmed"
	case EntryPending:
		return "pending"
	case EntryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one line of a conversation as the member sees it. LocalID is set
// only for entries created locally by AddPending.
type Entry struct {
	LocalID string
	Message proto.Message
	Status  EntryStatus
	Error   string
}

// Timeline is a conversation view with optimistic local sends. Server
// entries always come from the last authoritative list; local entries
// stay after them until confirmed by a refetch or failed.
type Timeline struct {
	mu             sync.Mutex
	conversationID int64
	server         []Entry
	local          []Entry
	now            func() time.Time
}

// NewTimeline creates an empty timeline for the conversation.
func NewTimeline(conversationID int64) *Timeline {
	return &Timeline{conversationID: conversationID, now: time.Now}
}

// ConversationID returns the conversation the timeline shows.
func (t *Timeline) ConversationID() int64 {
	return t.conversationID
}

// AddPending appends a local entry ahead of the network round trip and
// returns its tag.
func (t *Timeline) AddPending(senderID int64, content string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	t.local = append(t.local, Entry{
		LocalID: id,
		Status:  EntryPending,
		Message: proto.Message{
			ConversationID: t.conversationID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      t.now().UTC(),
		},
	})
	return id
}

// Confirm records the server's copy of a pending entry. The entry is
// dropped once the authoritative list contains it.
func (t *Timeline) Confirm(localID string, msg proto.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.localIndex(localID)
	if i < 0 {
		return
	}
	if t.serverHas(msg.ID) {
		t.local = append(t.local[:i], t.local[i+1:]...)
		return
	}
	t.local[i].Message = msg
	t.local[i].Status = EntryConfirmed
}

// Fail marks a pending entry failed with the reason shown to the member.
func (t *Timeline) Fail(localID, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.localIndex(localID); i >= 0 {
		t.local[i].Status = EntryFailed
		t.local[i].Error = reason
	}
}

// Dismiss removes a local entry, typically a failed one the member gave up on.
func (t *Timeline) Dismiss(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.localIndex(localID); i >= 0 {
		t.local = append(t.local[:i], t.local[i+1:]...)
	}
}

// Reconcile replaces the server entries with an authoritative list and drops
// local entries whose confirmed message it contains. It returns the server
// entries not seen in the previous list.
func (t *Timeline) Reconcile(authoritative []proto.Message) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[int64]struct{}, len(t.server))
	for _, e := range t.server {
		seen[e.Message.ID] = struct{}{}
	}

	server := make([]Entry, 0, len(authoritative))
	var fresh []Entry
	for _, m := range authoritative {
		e := Entry{Message: m, Status: EntryConfirmed}
		server = append(server, e)
		if _, ok := seen[m.ID]; !ok {
			fresh = append(fresh, e)
		}
	}
	t.server = server

	kept := t.local[:0]
	for _, e := range t.local {
		if e.Message.ID != 0 && t.serverHas(e.Message.ID) {
			continue
		}
		kept = append(kept, e)
	}
	t.local = kept
	return fresh
}

// Entries returns a copy of the timeline in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.server)+len(t.local))
	out = append(out, t.server...)
	out = append(out, t.local...)
	return out
}

func (t *Timeline) localIndex(localID string) int {
	for i, e := range t.local {
		if e.LocalID == localID {
			return i
		}
	}
	return -1
}

func (t *Timeline) serverHas(id int64) bool {
	for _, e := range t.server {
		if e.Message.ID == id {
			return true
		}
	}
	return false
}
