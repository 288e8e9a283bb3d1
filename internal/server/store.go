package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/pkg/models"
)

var (
	ErrChatExists   = errors.New("chat already exists")
	ErrChatNotFound = errors.New("chat not found")
)

// Store persists chats, messages and feedback in DuckDB, partitioned by user.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex // serializes check-then-write sequences
	now func() time.Time
}

// NewStore wraps a database opened with db.Open.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ListChats returns the user's chats, most recently updated first.
func (s *Store) ListChats(ctx context.Context, user identity.Identity) ([]models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, updated_at FROM chats WHERE username = ? ORDER BY updated_at DESC, id`,
		user.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	list := []models.ChatSession{}
	for rows.Next() {
		var cs models.ChatSession
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		list = append(list, cs)
	}
	return list, rows.Err()
}

// CreateChat registers a chat under a client-chosen id.
func (s *Store) CreateChat(ctx context.Context, user identity.Identity, id, title string) (models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(ctx, user, id)
	if err != nil {
		return models.ChatSession{}, err
	}
	if exists {
		return models.ChatSession{}, fmt.Errorf("chat %s: %w", id, ErrChatExists)
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (username, id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		user.String(), id, title, now, now); err != nil {
		return models.ChatSession{}, fmt.Errorf("failed to insert chat: %w", err)
	}
	return models.ChatSession{ID: id, Title: title, UpdatedAt: now}, nil
}

// RenameChat sets a new title and bumps updated_at.
func (s *Store) RenameChat(ctx context.Context, user identity.Identity, id, title string) (models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ?, updated_at = ? WHERE username = ? AND id = ?`,
		title, now, user.String(), id)
	if err != nil {
		return models.ChatSession{}, fmt.Errorf("failed to rename chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ChatSession{}, fmt.Errorf("chat %s: %w", id, ErrChatNotFound)
	}
	return models.ChatSession{ID: id, Title: title, UpdatedAt: now}, nil
}

// DeleteChat removes a chat and its messages.
func (s *Store) DeleteChat(ctx context.Context, user identity.Identity, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(ctx, user, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("chat %s: %w", id, ErrChatNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE username = ? AND chat_id = ?`, user.String(), id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE username = ? AND id = ?`, user.String(), id); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return tx.Commit()
}

// Messages returns a chat's thread in insertion order.
func (s *Store) Messages(ctx context.Context, user identity.Identity, id string) ([]models.Message, error) {
	exists, err := s.exists(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("chat %s: %w", id, ErrChatNotFound)
	}
	return s.thread(ctx, user, id)
}

func (s *Store) thread(ctx context.Context, user identity.Identity, id string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE username = ? AND chat_id = ? ORDER BY seq`,
		user.String(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = models.Role(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// History returns at most limit trailing messages of a chat. Unknown chats
// have no history.
func (s *Store) History(ctx context.Context, user identity.Identity, id string, limit int) ([]models.Message, error) {
	msgs, err := s.thread(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// AppendExchange stores a question and its answer and bumps the chat's
// updated_at when the chat is known.
func (s *Store) AppendExchange(ctx context.Context, user identity.Identity, id, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for _, m := range []models.Message{
		{Role: models.RoleUser, Content: question},
		{Role: models.RoleAssistant, Content: answer},
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (username, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			user.String(), id, string(m.Role), m.Content, now); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE username = ? AND id = ?`,
		now, user.String(), id); err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return tx.Commit()
}

// SaveFeedback records a user's correction.
func (s *Store) SaveFeedback(ctx context.Context, user identity.Identity, fb models.Feedback) error {
	var expectedQuestion sql.NullString
	if fb.ExpectedQuestion != "" {
		expectedQuestion = sql.NullString{String: fb.ExpectedQuestion, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (username, session_id, question, model, original_answer, expected_question, expected_answer, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.String(), fb.SessionID, fb.Question, fb.Model, fb.OriginalAnswer,
		expectedQuestion, fb.ExpectedAnswer, s.now()); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// FeedbackCount returns how many feedback records a user has left.
func (s *Store) FeedbackCount(ctx context.Context, user identity.Identity) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM feedback WHERE username = ?`, user.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return n, nil
}

func (s *Store) exists(ctx context.Context, user identity.Identity, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chats WHERE username = ? AND id = ?`, user.String(), id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up chat: %w", err)
	}
	return n > 0, nil
}
