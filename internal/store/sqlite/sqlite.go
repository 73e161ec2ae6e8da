package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/practicechat/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// New opens the SQLite database at dbPath and applies the schema.
// Use ":memory:" for an ephemeral database.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timestamp returns the current UTC time, never earlier than the previous call.
func (s *SQLiteStore) timestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

// ==== MemberStore implementation ====

// CreateMember adds a roster entry.
func (s *SQLiteStore) CreateMember(ctx context.Context, practiceID int64, displayName string) (*store.Member, error) {
	query := `
		INSERT INTO members (practice_id, display_name, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, practiceID, displayName, s.timestamp())
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetMember(ctx, id)
}

// GetMember retrieves a member by ID.
func (s *SQLiteStore) GetMember(ctx context.Context, id int64) (*store.Member, error) {
	query := `
		SELECT id, practice_id, display_name, created_at
		FROM members
		WHERE id = ?
	`
	var m store.Member
	err := s.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.PracticeID, &m.DisplayName, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query member: %w", err)
	}
	return &m, nil
}

// ListPracticeMembers lists every member of a practice ordered by ID.
func (s *SQLiteStore) ListPracticeMembers(ctx context.Context, practiceID int64) ([]*store.Member, error) {
	query := `
		SELECT id, practice_id, display_name, created_at
		FROM members
		WHERE practice_id = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, practiceID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make([]*store.Member, 0)
	for rows.Next() {
		var m store.Member
		if err := rows.Scan(&m.ID, &m.PracticeID, &m.DisplayName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

// ==== ConversationStore implementation ====

// CreateConversation persists a conversation and its ordered participant set.
func (s *SQLiteStore) CreateConversation(ctx context.Context, practiceID int64, participantIDs []int64, title *string) (*store.Conversation, error) {
	participants := dedupe(participantIDs)
	if len(participants) == 0 {
		return nil, errors.New("conversation needs at least one participant")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	now := s.timestamp()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (practice_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, practiceID, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for pos, memberID := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, member_id, position)
			VALUES (?, ?, ?)
		`, id, memberID, pos); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &store.Conversation{
		ID:             id,
		PracticeID:     practiceID,
		ParticipantIDs: participants,
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetConversation returns the conversation only if it belongs to practiceID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id, practiceID int64) (*store.Conversation, error) {
	query := `
		SELECT id, practice_id, title, created_at, updated_at
		FROM conversations
		WHERE id = ? AND practice_id = ?
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id, practiceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	if err := s.loadParticipants(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// FindConversationByTitle returns the oldest conversation in the practice with the given title.
func (s *SQLiteStore) FindConversationByTitle(ctx context.Context, practiceID int64, title string) (*store.Conversation, error) {
	query := `
		SELECT id, practice_id, title, created_at, updated_at
		FROM conversations
		WHERE practice_id = ? AND title = ?
		ORDER BY id
		LIMIT 1
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, practiceID, title))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %q: %w", title, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	if err := s.loadParticipants(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversationsForUser lists practice conversations that include userID.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID, practiceID int64) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.practice_id, c.title, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.member_id = ? AND c.practice_id = ?
		ORDER BY c.updated_at DESC, c.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, practiceID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	convs := make([]*store.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	// Release the single connection before loading participants.
	rows.Close()

	for _, conv := range convs {
		if err := s.loadParticipants(ctx, conv); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, conv *store.Conversation) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id
		FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY position
	`, conv.ID)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	conv.ParticipantIDs = conv.ParticipantIDs[:0]
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		conv.ParticipantIDs = append(conv.ParticipantIDs, id)
	}
	return rows.Err()
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and advances the conversation's UpdatedAt.
func (s *SQLiteStore) CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	now := s.timestamp()
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotFound)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, blocked, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, conversationID, senderID, content, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &store.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now,
	}, nil
}

// ListMessagesForConversation returns all messages in creation order.
func (s *SQLiteStore) ListMessagesForConversation(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, blocked, block_reason, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		var reason sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Blocked, &reason, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if reason.Valid {
			msg.BlockReason = &reason.String
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var conv store.Conversation
	var title sql.NullString
	if err := row.Scan(&conv.ID, &conv.PracticeID, &title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	if title.Valid {
		conv.Title = &title.String
	}
	return &conv, nil
}

// dedupe drops repeated IDs, keeping first-seen order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ store.Store = (*SQLiteStore)(nil)
