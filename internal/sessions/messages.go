package sessions

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/strrl/ragchat/internal/system"
	"github.com/strrl/ragchat/pkg/models"
)

// call identifies the backend call a result message belongs to.
type call struct {
	requestID string
	epoch     uint64
}

// Message types delivered back to the event loop when a backend call settles
type (
	// SessionsLoadedMsg contains the caller's session list
	SessionsLoadedMsg struct {
		call
		Gen      uint64
		Sessions []models.ChatSession
		Error    error
	}

	// SessionCreatedMsg settles an optimistic create
	SessionCreatedMsg struct {
		call
		ProvisionalID string
		Session       models.ChatSession
		Error         error
	}

	// SessionRenamedMsg settles an optimistic rename
	SessionRenamedMsg struct {
		call
		SessionID string
		Op        uint64
		Title     string
		Session   *models.ChatSession
		Error     error
	}

	// SessionDeletedMsg settles an optimistic delete
	SessionDeletedMsg struct {
		call
		SessionID string
		Error     error
	}

	// MessagesLoadedMsg contains a session's history
	MessagesLoadedMsg struct {
		call
		SessionID string
		Gen       uint64
		Messages  []models.Message
		Error     error
	}

	// CompletionMsg contains the answer to a sent message
	CompletionMsg struct {
		call
		SessionID  string
		Gen        uint64
		Completion models.Completion
		Error      error
	}

	// FeedbackSubmittedMsg reports the outcome of a feedback submission.
	// A nil Error tells the presentation layer to clear its form.
	FeedbackSubmittedMsg struct {
		call
		SessionID string
		Error     error
	}
)

// issue registers a backend call and wraps it in a command. fn runs off the
// event loop and must only touch values captured at issue time.
func (c *Controller) issue(op string, fn func(ctx context.Context, cl call) tea.Msg) tea.Cmd {
	ctx, requestID, done := c.inflight.Begin(c.ctx)
	cl := call{requestID: requestID, epoch: c.epoch}
	system.Logger.Debug("backend call issued", "op", op, "request_id", requestID)
	return func() tea.Msg {
		defer done()
		return fn(ctx, cl)
	}
}

// Drain runs cmd synchronously and feeds every resulting message through
// Update until no follow-up work remains. Batches run in order.
func (c *Controller) Drain(cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			queue = append(queue, c.Update(msg))
		}
	}
}
