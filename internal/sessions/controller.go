// Package sessions owns the client-side chat state: the session list, the
// current session and its messages, and the backend calls in flight.
//
// Every operation mutates state immediately and returns a tea.Cmd that talks
// to the backend. The command's result comes back as a message which Update
// applies, rolling back or reconciling the optimistic change. All state is
// touched on the event loop only; results that no longer apply are dropped.
package sessions

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/internal/remote"
	"github.com/strrl/ragchat/internal/system"
	"github.com/strrl/ragchat/pkg/models"
)

var (
	ErrNoIdentity     = errors.New("no username set")
	ErrNoSession      = errors.New("no chat selected")
	ErrUnknownSession = errors.New("unknown chat")
	ErrEmptyInput     = errors.New("message is empty")
	ErrEmptyTitle     = errors.New("title cannot be empty")
	ErrFeedbackEmpty  = errors.New("enter an expected question or answer")
	ErrBusy           = errors.New("another request is still pending")
)

// Texts shown in place of backend data
const (
	LoadFailedText       = "❌ Failed to load the conversation history."
	AnswerFailedText     = "❌ Failed to get an answer, please try again later."
	NoQuestionText       = "No question asked, or from a new chat"
	NoOriginalAnswerText = "No original answer, or from a new chat"
)

// Notice is a non-blocking, alert-style message for the user.
type Notice struct {
	Text string
	Err  error
}

func (n Notice) String() string {
	if n.Err != nil {
		return n.Text + " (" + n.Err.Error() + ")"
	}
	return n.Text
}

// Controller is the session state machine. It is not safe for concurrent
// use; drive it from a single event loop.
type Controller struct {
	store    remote.Store
	ident    identity.Identity
	ctx      context.Context
	cancel   context.CancelFunc
	inflight *Inflight
	now      func() time.Time

	model       string
	promptMode  string
	titlePrefix string

	entries    []Entry
	tombstones map[string]*tombstone
	currentID  string
	messages   []models.Message
	loaded     bool

	listLoading      bool
	listLoaded       bool
	listGen          uint64
	autoCreateFailed bool

	loading bool
	loadGen uint64

	sending     bool
	sendSession string
	sendGen     uint64

	opSeq uint64
	epoch uint64

	notice *Notice
}

// Option configures a Controller
type Option func(*Controller)

// WithIdentity sets the user the controller acts for
func WithIdentity(id identity.Identity) Option {
	return func(c *Controller) { c.ident = id }
}

// WithModel sets the initially selected model
func WithModel(model string) Option {
	return func(c *Controller) { c.model = model }
}

// WithPromptMode sets the initial prompt mode
func WithPromptMode(mode string) Option {
	return func(c *Controller) { c.promptMode = mode }
}

// WithTitlePrefix sets the label of default session titles
func WithTitlePrefix(prefix string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(prefix) != "" {
			c.titlePrefix = prefix
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithContext sets the parent context of every backend call
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.ctx = ctx }
}

// New creates a controller backed by store.
func New(store remote.Store, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		ctx:         context.Background(),
		inflight:    NewInflight(),
		now:         time.Now,
		promptMode:  models.PromptModeDefault,
		titlePrefix: "New chat",
		tombstones:  make(map[string]*tombstone),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(c.ctx)
	return c
}

// Identity returns the user the controller acts for
func (c *Controller) Identity() identity.Identity { return c.ident }

// SetIdentity switches users. All state is discarded.
func (c *Controller) SetIdentity(id identity.Identity) {
	c.Reset()
	c.ident = id
}

// Reset discards all state and cancels every outstanding call. Results of
// calls issued before the reset are ignored.
func (c *Controller) Reset() {
	c.inflight.CancelAll()
	c.epoch++
	c.entries = nil
	c.tombstones = make(map[string]*tombstone)
	c.clearCurrent()
	c.listLoading = false
	c.listLoaded = false
	c.autoCreateFailed = false
	c.sending = false
	c.sendSession = ""
	c.notice = nil
}

// Close cancels every outstanding call; later calls fail immediately.
func (c *Controller) Close() {
	c.inflight.Close()
	c.cancel()
}

// Sessions returns a copy of the session list, newest first
func (c *Controller) Sessions() []Entry {
	return slices.Clone(c.entries)
}

// SessionList returns the session list without reconciliation state
func (c *Controller) SessionList() []models.ChatSession {
	out := make([]models.ChatSession, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.ChatSession
	}
	return out
}

// CurrentID returns the selected session id, "" when none
func (c *Controller) CurrentID() string { return c.currentID }

// Current returns the selected session
func (c *Controller) Current() (Entry, bool) {
	if e := c.find(c.currentID); e != nil {
		return *e, true
	}
	return Entry{}, false
}

// Messages returns a copy of the current session's messages
func (c *Controller) Messages() []models.Message {
	return slices.Clone(c.messages)
}

// Loading reports whether the current session's history is being fetched
func (c *Controller) Loading() bool { return c.loading }

// Sending reports whether a completion is outstanding
func (c *Controller) Sending() bool { return c.sending }

// Pending reports whether the current view waits on the backend
func (c *Controller) Pending() bool {
	return c.loading || (c.sending && c.sendSession == c.currentID)
}

// ListLoading reports whether the session list is being fetched
func (c *Controller) ListLoading() bool { return c.listLoading }

// Inflight returns the number of outstanding backend calls
func (c *Controller) Inflight() int { return c.inflight.Len() }

// Model returns the selected model id
func (c *Controller) Model() string { return c.model }

// SetModel selects the model used for completions and feedback
func (c *Controller) SetModel(model string) { c.model = model }

// PromptMode returns the selected prompt mode
func (c *Controller) PromptMode() string { return c.promptMode }

// TogglePromptMode flips between the default and research modes
func (c *Controller) TogglePromptMode() string {
	if c.promptMode == models.PromptModeResearch {
		c.promptMode = models.PromptModeDefault
	} else {
		c.promptMode = models.PromptModeResearch
	}
	return c.promptMode
}

// NeedsDefaultSession reports that the list loaded empty and nothing is
// selected, so the caller should create a session. It stays false after a
// failed create until the list is reloaded.
func (c *Controller) NeedsDefaultSession() bool {
	return !c.ident.Empty() && c.listLoaded && !c.listLoading && !c.autoCreateFailed &&
		len(c.entries) == 0 && c.currentID == ""
}

// Notice returns the latest user notice without consuming it
func (c *Controller) Notice() (Notice, bool) {
	if c.notice == nil {
		return Notice{}, false
	}
	return *c.notice, true
}

// TakeNotice returns and clears the latest user notice
func (c *Controller) TakeNotice() (Notice, bool) {
	n, ok := c.Notice()
	c.notice = nil
	return n, ok
}

func (c *Controller) notify(text string, err error) {
	c.notice = &Notice{Text: text, Err: err}
	if err != nil {
		system.Logger.Warn(text, "err", err)
	}
}

func (c *Controller) setCurrent(id string) {
	c.currentID = id
	c.messages = nil
	c.loaded = false
	c.loading = false
	c.loadGen++
}

func (c *Controller) clearCurrent() { c.setCurrent("") }

// LoadSessions fetches the session list. When it arrives it replaces the
// local list and clears the selection.
func (c *Controller) LoadSessions() tea.Cmd {
	if c.ident.Empty() {
		return nil
	}
	c.listGen++
	c.listLoading = true
	store, ident, gen := c.store, c.ident, c.listGen
	return c.issue("list sessions", func(ctx context.Context, cl call) tea.Msg {
		list, err := store.ListSessions(ctx, ident)
		return SessionsLoadedMsg{call: cl, Gen: gen, Sessions: list, Error: err}
	})
}

// CreateSession adds a provisional session, selects it, and registers it
// with the backend.
func (c *Controller) CreateSession() tea.Cmd {
	if c.ident.Empty() {
		return nil
	}
	now := c.now()
	id := c.provisionalID(now)
	title := c.defaultTitle()
	c.insert(Entry{
		ChatSession: models.ChatSession{ID: id, Title: title, UpdatedAt: now},
		State:       Creating,
	})
	c.setCurrent(id)
	c.loaded = true

	store, ident := c.store, c.ident
	return c.issue("create session", func(ctx context.Context, cl call) tea.Msg {
		s, err := store.CreateSession(ctx, ident, id, title)
		return SessionCreatedMsg{call: cl, ProvisionalID: id, Session: s, Error: err}
	})
}

// SelectSession makes id current and loads its history. Selecting the
// current session again is a no-op once its history is loaded or loading.
func (c *Controller) SelectSession(id string) (tea.Cmd, error) {
	if c.ident.Empty() {
		return nil, ErrNoIdentity
	}
	if c.find(id) == nil {
		return nil, ErrUnknownSession
	}
	return c.selectSession(id), nil
}

func (c *Controller) selectSession(id string) tea.Cmd {
	if id == c.currentID && (c.loaded || c.loading) {
		return nil
	}
	c.setCurrent(id)
	if e := c.find(id); e != nil && e.State == Creating {
		// nothing on the backend yet
		c.loaded = true
		return nil
	}
	c.loading = true
	store, ident, gen := c.store, c.ident, c.loadGen
	return c.issue("list messages", func(ctx context.Context, cl call) tea.Msg {
		msgs, err := store.ListMessages(ctx, ident, id)
		return MessagesLoadedMsg{call: cl, SessionID: id, Gen: gen, Messages: msgs, Error: err}
	})
}

// RenameSession retitles a session optimistically.
func (c *Controller) RenameSession(id, title string) (tea.Cmd, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if c.ident.Empty() {
		return nil, ErrNoIdentity
	}
	e := c.find(id)
	if e == nil {
		return nil, ErrUnknownSession
	}
	if e.State == Creating {
		return nil, ErrBusy
	}
	if e.State != Renaming {
		e.prior = e.ChatSession
	}
	c.opSeq++
	op := c.opSeq
	e.op = op
	e.State = Renaming
	e.Title = title
	e.UpdatedAt = c.now()
	sortEntries(c.entries)

	store, ident := c.store, c.ident
	return c.issue("update session", func(ctx context.Context, cl call) tea.Msg {
		s, err := store.UpdateSession(ctx, ident, id, title)
		return SessionRenamedMsg{call: cl, SessionID: id, Op: op, Title: title, Session: s, Error: err}
	}), nil
}

// DeleteSession removes a session optimistically. When it was current the
// most recently updated remaining session is selected instead.
func (c *Controller) DeleteSession(id string) (tea.Cmd, error) {
	if c.ident.Empty() {
		return nil, ErrNoIdentity
	}
	i := c.index(id)
	if i < 0 {
		return nil, ErrUnknownSession
	}
	if c.entries[i].State == Creating {
		return nil, ErrBusy
	}
	ts := &tombstone{entry: c.remove(i)}
	c.tombstones[id] = ts

	var selectCmd tea.Cmd
	if c.currentID == id {
		ts.wasCurrent = true
		c.clearCurrent()
		if len(c.entries) > 0 {
			ts.fallback = c.entries[0].ID
			selectCmd = c.selectSession(ts.fallback)
		}
	}

	store, ident := c.store, c.ident
	deleteCmd := c.issue("delete session", func(ctx context.Context, cl call) tea.Msg {
		err := store.DeleteSession(ctx, ident, id)
		return SessionDeletedMsg{call: cl, SessionID: id, Error: err}
	})
	return tea.Batch(selectCmd, deleteCmd), nil
}

// SendMessage appends the user's message and asks the backend for an answer.
// The user message stays in the log whatever the outcome.
func (c *Controller) SendMessage(text string) (tea.Cmd, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if c.ident.Empty() {
		return nil, ErrNoIdentity
	}
	if c.currentID == "" {
		return nil, ErrNoSession
	}
	if c.Pending() {
		return nil, ErrBusy
	}
	c.messages = append(c.messages, models.Message{Role: models.RoleUser, Content: text})
	c.sending = true
	c.sendSession = c.currentID
	c.sendGen++

	store, ident, gen := c.store, c.ident, c.sendGen
	req := models.CompletionRequest{
		SessionID:  c.currentID,
		Question:   text,
		Model:      c.model,
		PromptMode: c.promptMode,
	}
	return c.issue("chat completion", func(ctx context.Context, cl call) tea.Msg {
		resp, err := store.Complete(ctx, ident, req)
		return CompletionMsg{call: cl, SessionID: req.SessionID, Gen: gen, Completion: resp, Error: err}
	}), nil
}

// SubmitFeedback sends the user's expected question and answer along with
// the latest exchange of the current session. No chat state changes.
func (c *Controller) SubmitFeedback(expectedQuestion, expectedAnswer string) (tea.Cmd, error) {
	if c.ident.Empty() {
		return nil, ErrNoIdentity
	}
	if strings.TrimSpace(expectedQuestion) == "" && strings.TrimSpace(expectedAnswer) == "" {
		return nil, ErrFeedbackEmpty
	}
	if c.currentID == "" {
		return nil, ErrNoSession
	}
	question, answer := c.lastExchange()
	fb := models.Feedback{
		SessionID:        c.currentID,
		Question:         question,
		Model:            c.model,
		OriginalAnswer:   answer,
		ExpectedQuestion: expectedQuestion,
		ExpectedAnswer:   expectedAnswer,
	}

	store, ident := c.store, c.ident
	return c.issue("submit feedback", func(ctx context.Context, cl call) tea.Msg {
		err := store.SubmitFeedback(ctx, ident, fb)
		return FeedbackSubmittedMsg{call: cl, SessionID: fb.SessionID, Error: err}
	}), nil
}

// lastExchange finds the latest assistant message and the user message
// right before it.
func (c *Controller) lastExchange() (question, answer string) {
	question, answer = NoQuestionText, NoOriginalAnswerText
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role != models.RoleAssistant {
			continue
		}
		answer = c.messages[i].Content
		if i > 0 && c.messages[i-1].Role == models.RoleUser {
			question = c.messages[i-1].Content
		}
		break
	}
	return question, answer
}
