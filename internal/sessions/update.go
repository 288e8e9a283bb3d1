package sessions

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/strrl/ragchat/internal/system"
	"github.com/strrl/ragchat/pkg/models"
)

// Update applies the result of a backend call. It returns follow-up work,
// such as loading the session selected after a rollback.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case SessionsLoadedMsg:
		if c.stale(msg.call) {
			return nil
		}
		c.applySessions(msg)
	case SessionCreatedMsg:
		if c.stale(msg.call) {
			return nil
		}
		return c.applyCreated(msg)
	case SessionRenamedMsg:
		if c.stale(msg.call) {
			return nil
		}
		c.applyRenamed(msg)
	case SessionDeletedMsg:
		if c.stale(msg.call) {
			return nil
		}
		return c.applyDeleted(msg)
	case MessagesLoadedMsg:
		if c.stale(msg.call) {
			return nil
		}
		c.applyMessages(msg)
	case CompletionMsg:
		if c.stale(msg.call) {
			return nil
		}
		c.applyCompletion(msg)
	case FeedbackSubmittedMsg:
		if c.stale(msg.call) {
			return nil
		}
		if msg.Error != nil {
			c.notify("Could not submit feedback, please try again later.", msg.Error)
		} else {
			c.notify("Feedback sent, thanks for the suggestion!", nil)
		}
	}
	return nil
}

func (c *Controller) stale(cl call) bool {
	if cl.epoch != c.epoch {
		system.Logger.Debug("dropping result from before reset", "request_id", cl.requestID)
		return true
	}
	return false
}

func (c *Controller) applySessions(msg SessionsLoadedMsg) {
	if msg.Gen != c.listGen {
		return
	}
	c.listLoading = false
	c.listLoaded = true
	c.tombstones = make(map[string]*tombstone)
	c.clearCurrent()

	if msg.Error != nil {
		c.entries = nil
		c.notify("Failed to load chat history.", msg.Error)
		return
	}
	c.autoCreateFailed = false
	c.entries = make([]Entry, 0, len(msg.Sessions))
	for _, s := range msg.Sessions {
		c.entries = append(c.entries, Entry{ChatSession: s, State: Confirmed})
	}
	sortEntries(c.entries)
}

func (c *Controller) applyCreated(msg SessionCreatedMsg) tea.Cmd {
	i := c.index(msg.ProvisionalID)
	if i < 0 || c.entries[i].State != Creating {
		return nil
	}

	if msg.Error != nil {
		c.remove(i)
		c.autoCreateFailed = true
		c.notify("Failed to create a new chat.", msg.Error)
		if c.currentID != msg.ProvisionalID {
			return nil
		}
		c.clearCurrent()
		if len(c.entries) > 0 {
			return c.selectSession(c.entries[0].ID)
		}
		return nil
	}

	provisional := c.entries[i].ChatSession
	confirmed := msg.Session
	if confirmed.ID == "" {
		confirmed.ID = provisional.ID
	}
	if confirmed.Title == "" {
		confirmed.Title = provisional.Title
	}
	if confirmed.UpdatedAt.IsZero() {
		confirmed.UpdatedAt = provisional.UpdatedAt
	}
	c.entries[i] = Entry{ChatSession: confirmed, State: Confirmed}
	sortEntries(c.entries)

	if c.currentID == provisional.ID {
		c.currentID = confirmed.ID
	}
	if c.sendSession == provisional.ID {
		c.sendSession = confirmed.ID
	}
	return nil
}

func (c *Controller) applyRenamed(msg SessionRenamedMsg) {
	e := c.lookup(msg.SessionID)
	if e == nil || e.State != Renaming {
		return
	}

	if msg.Op != e.op {
		// a later rename is still out; only move the rollback point
		if msg.Error == nil {
			e.prior.Title = msg.Title
			if msg.Session != nil {
				e.prior = *msg.Session
				e.prior.ID = msg.SessionID
			}
		}
		return
	}

	if msg.Error != nil {
		e.ChatSession = e.prior
		c.notify("Rename failed.", msg.Error)
	} else if msg.Session != nil {
		s := *msg.Session
		s.ID = msg.SessionID
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = e.UpdatedAt
		}
		e.ChatSession = s
	}
	e.State = Confirmed
	e.prior = models.ChatSession{}
	sortEntries(c.entries)
}

func (c *Controller) applyDeleted(msg SessionDeletedMsg) tea.Cmd {
	ts, ok := c.tombstones[msg.SessionID]
	if !ok {
		return nil
	}
	delete(c.tombstones, msg.SessionID)
	if msg.Error == nil {
		return nil
	}

	c.notify("Delete failed.", msg.Error)
	c.insert(ts.entry)
	if ts.wasCurrent && (c.currentID == "" || c.currentID == ts.fallback) {
		return c.selectSession(ts.entry.ID)
	}
	return nil
}

func (c *Controller) applyMessages(msg MessagesLoadedMsg) {
	if msg.Gen != c.loadGen || msg.SessionID != c.currentID {
		system.Logger.Debug("dropping stale history", "session", msg.SessionID, "current", c.currentID)
		return
	}
	c.loading = false

	if msg.Error != nil {
		system.Logger.Warn("failed to load messages", "session", msg.SessionID, "err", msg.Error)
		c.messages = []models.Message{{Role: models.RoleAssistant, Content: LoadFailedText}}
		// selecting it again retries
		c.loaded = false
		return
	}
	c.loaded = true
	c.messages = make([]models.Message, 0, len(msg.Messages))
	for _, m := range msg.Messages {
		m.IsMarkdown = m.Role == models.RoleAssistant
		c.messages = append(c.messages, m)
	}
}

func (c *Controller) applyCompletion(msg CompletionMsg) {
	if msg.Gen != c.sendGen {
		return
	}
	// sendSession follows a provisional id to the one the backend confirmed
	session := c.sendSession
	c.sending = false
	c.sendSession = ""

	if session != c.currentID {
		system.Logger.Debug("answer arrived after switching chats", "session", session)
		return
	}
	if msg.Error != nil {
		system.Logger.Warn("completion failed", "session", session, "err", msg.Error)
		c.messages = append(c.messages, models.Message{Role: models.RoleAssistant, Content: AnswerFailedText})
		return
	}
	c.messages = append(c.messages, models.Message{
		Role:       models.RoleAssistant,
		Content:    msg.Completion.Answer,
		IsMarkdown: true,
	})
	if e := c.find(session); e != nil && e.State == Confirmed {
		e.UpdatedAt = c.now()
		sortEntries(c.entries)
	}
}
