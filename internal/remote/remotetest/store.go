// Package remotetest provides an in-memory remote.Store whose calls can be
// made to fail on demand.
package remotetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/internal/remote"
	"github.com/strrl/ragchat/pkg/models"
)

// Operation names accepted by FailNext and Calls
const (
	OpList     = "list"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpMessages = "messages"
	OpComplete = "complete"
	OpFeedback = "feedback"
)

// Store keeps sessions per identity in memory.
type Store struct {
	mu       sync.Mutex
	sessions map[identity.Identity][]models.ChatSession
	messages map[string][]models.Message
	failures map[string][]error
	calls    map[string]int

	// Feedback records every accepted submission.
	Feedback []models.Feedback
	// Requests records every completion request.
	Requests []models.CompletionRequest

	// ConfirmID maps a provisional id to the id the store reports back.
	// Nil keeps the provisional id.
	ConfirmID func(provisional string) string
	// Answer produces completions. Nil echoes the question.
	Answer func(req models.CompletionRequest) string
	// Now stamps updated_at. Nil uses time.Now.
	Now func() time.Time
}

var _ remote.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		sessions: make(map[identity.Identity][]models.ChatSession),
		messages: make(map[string][]models.Message),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// Seed adds sessions for id without going through CreateSession.
func (s *Store) Seed(id identity.Identity, sessions ...models.ChatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = append(s.sessions[id], sessions...)
}

// SeedMessages sets a session's history.
func (s *Store) SeedMessages(sessionID string, msgs ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append([]models.Message(nil), msgs...)
}

// FailNext makes the next call of op return err. Repeated calls queue up.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns how many times op was invoked
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// List returns the stored sessions of id
func (s *Store) List(id identity.Identity) []models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatSession(nil), s.sessions[id]...)
}

func (s *Store) enter(ctx context.Context, op string) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) indexOf(id identity.Identity, sessionID string) int {
	for i, cs := range s.sessions[id] {
		if cs.ID == sessionID {
			return i
		}
	}
	return -1
}

func notFound(op string) error {
	return &remote.APIError{Op: op, Status: 404, Detail: "chat not found"}
}

func (s *Store) ListSessions(ctx context.Context, id identity.Identity) ([]models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpList); err != nil {
		return nil, err
	}
	return append([]models.ChatSession(nil), s.sessions[id]...), nil
}

func (s *Store) CreateSession(ctx context.Context, id identity.Identity, sessionID, title string) (models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpCreate); err != nil {
		return models.ChatSession{}, err
	}
	if s.ConfirmID != nil {
		sessionID = s.ConfirmID(sessionID)
	}
	if s.indexOf(id, sessionID) >= 0 {
		return models.ChatSession{}, &remote.APIError{Op: "create session", Status: 409, Detail: fmt.Sprintf("chat %s already exists", sessionID)}
	}
	cs := models.ChatSession{ID: sessionID, Title: title, UpdatedAt: s.now()}
	s.sessions[id] = append(s.sessions[id], cs)
	return cs, nil
}

func (s *Store) UpdateSession(ctx context.Context, id identity.Identity, sessionID, title string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpUpdate); err != nil {
		return nil, err
	}
	i := s.indexOf(id, sessionID)
	if i < 0 {
		return nil, notFound("update session")
	}
	s.sessions[id][i].Title = title
	s.sessions[id][i].UpdatedAt = s.now()
	cs := s.sessions[id][i]
	return &cs, nil
}

func (s *Store) DeleteSession(ctx context.Context, id identity.Identity, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDelete); err != nil {
		return err
	}
	i := s.indexOf(id, sessionID)
	if i < 0 {
		return notFound("delete session")
	}
	s.sessions[id] = append(s.sessions[id][:i], s.sessions[id][i+1:]...)
	delete(s.messages, sessionID)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, id identity.Identity, sessionID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpMessages); err != nil {
		return nil, err
	}
	return append([]models.Message(nil), s.messages[sessionID]...), nil
}

func (s *Store) Complete(ctx context.Context, id identity.Identity, req models.CompletionRequest) (models.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpComplete); err != nil {
		return models.Completion{}, err
	}
	s.Requests = append(s.Requests, req)
	answer := "echo: " + req.Question
	if s.Answer != nil {
		answer = s.Answer(req)
	}
	s.messages[req.SessionID] = append(s.messages[req.SessionID],
		models.Message{Role: models.RoleUser, Content: req.Question},
		models.Message{Role: models.RoleAssistant, Content: answer},
	)
	if i := s.indexOf(id, req.SessionID); i >= 0 {
		s.sessions[id][i].UpdatedAt = s.now()
	}
	return models.Completion{Answer: answer, ModelUsed: req.Model, PromptModeUsed: req.PromptMode}, nil
}

func (s *Store) SubmitFeedback(ctx context.Context, id identity.Identity, fb models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpFeedback); err != nil {
		return err
	}
	s.Feedback = append(s.Feedback, fb)
	return nil
}
