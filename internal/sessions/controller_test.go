package sessions

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/ragchat/internal/remote/remotetest"
	"github.com/strrl/ragchat/pkg/models"
)

var errBoom = errors.New("boom")

func at(minute int) time.Time {
	return time.Date(2025, 1, 1, 0, minute, 0, 0, time.UTC)
}

// tickingClock advances a minute on every reading.
type tickingClock struct{ t time.Time }

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newController(t *testing.T, store *remotetest.Store, opts ...Option) *Controller {
	t.Helper()
	clk := &tickingClock{t: at(100)}
	base := []Option{WithIdentity("alice"), WithModel("gemma3:12b"), WithClock(clk.Now)}
	c := New(store, append(base, opts...)...)
	t.Cleanup(c.Close)
	return c
}

// loadedController seeds sessions and loads them.
func loadedController(t *testing.T, store *remotetest.Store, seed ...models.ChatSession) *Controller {
	t.Helper()
	store.Seed("alice", seed...)
	c := newController(t, store)
	c.Drain(c.LoadSessions())
	require.Len(t, c.Sessions(), len(seed))
	return c
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func selectAndLoad(t *testing.T, c *Controller, id string) {
	t.Helper()
	cmd, err := c.SelectSession(id)
	require.NoError(t, err)
	c.Drain(cmd)
	require.Equal(t, id, c.CurrentID())
}

func TestLoadSessions_SortsAndClearsSelection(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(5)},
	)

	assert.Equal(t, []string{"b", "a"}, ids(c.Sessions()))
	assert.Empty(t, c.CurrentID())
	assert.Empty(t, c.Messages())
	assert.False(t, c.NeedsDefaultSession())
	assert.False(t, c.ListLoading())

	selectAndLoad(t, c, "a")
	c.Drain(c.LoadSessions())
	assert.Empty(t, c.CurrentID(), "reload clears the selection")
}

func TestLoadSessions_FailureLeavesEmptyList(t *testing.T) {
	store := remotetest.New()
	store.Seed("alice", models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	store.FailNext(remotetest.OpList, errBoom)
	c := newController(t, store)

	c.Drain(c.LoadSessions())

	assert.Empty(t, c.Sessions())
	assert.True(t, c.NeedsDefaultSession())
	n, ok := c.TakeNotice()
	require.True(t, ok)
	assert.ErrorIs(t, n.Err, errBoom)
	_, ok = c.TakeNotice()
	assert.False(t, ok)
}

func TestLoadSessions_StaleListDropped(t *testing.T) {
	store := remotetest.New()
	store.Seed("alice", models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	c := newController(t, store)

	first := c.LoadSessions()
	second := c.LoadSessions()
	oldMsg := first()
	c.Drain(second)
	store.Seed("alice", models.ChatSession{ID: "z", Title: "Z", UpdatedAt: at(2)})

	c.Update(oldMsg)
	assert.Equal(t, []string{"a"}, ids(c.Sessions()))
}

func TestCreateSession_ProvisionalThenConfirmed(t *testing.T) {
	store := remotetest.New()
	store.ConfirmID = func(string) string { return "srv_1" }
	c := loadedController(t, store)
	require.True(t, c.NeedsDefaultSession())

	cmd := c.CreateSession()

	entries := c.Sessions()
	require.Len(t, entries, 1)
	assert.Equal(t, Creating, entries[0].State)
	assert.True(t, strings.HasPrefix(entries[0].ID, "chat_"), entries[0].ID)
	assert.Equal(t, "New chat 1", entries[0].Title)
	assert.Equal(t, entries[0].ID, c.CurrentID())
	assert.Empty(t, c.Messages())
	assert.False(t, c.NeedsDefaultSession())

	c.Drain(cmd)

	entries = c.Sessions()
	require.Len(t, entries, 1)
	assert.Equal(t, "srv_1", entries[0].ID)
	assert.Equal(t, Confirmed, entries[0].State)
	assert.Equal(t, "srv_1", c.CurrentID())
}

func TestCreateSession_FailureFallsBackToMostRecent(t *testing.T) {
	store := remotetest.New()
	store.SeedMessages("b", models.Message{Role: models.RoleUser, Content: "from b"})
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(2)},
	)
	selectAndLoad(t, c, "a")

	cmd := c.CreateSession()
	provisional := c.CurrentID()
	assert.Len(t, c.Sessions(), 3)

	store.FailNext(remotetest.OpCreate, errBoom)
	c.Drain(cmd)

	assert.Equal(t, []string{"b", "a"}, ids(c.Sessions()))
	assert.NotEqual(t, provisional, c.CurrentID())
	assert.Equal(t, "b", c.CurrentID())
	assert.Equal(t, "from b", c.Messages()[0].Content)
	n, ok := c.TakeNotice()
	require.True(t, ok)
	assert.ErrorIs(t, n.Err, errBoom)
}

func TestCreateSession_FailureWithNothingLeft(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store)

	cmd := c.CreateSession()
	store.FailNext(remotetest.OpCreate, errBoom)
	c.Drain(cmd)

	assert.Empty(t, c.Sessions())
	assert.Empty(t, c.CurrentID())
	assert.False(t, c.NeedsDefaultSession(), "no automatic retry after a failed create")

	c.Drain(c.LoadSessions())
	assert.True(t, c.NeedsDefaultSession())
}

func TestCreateSession_FailureKeepsUnrelatedSelection(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)},
	)

	cmd := c.CreateSession()
	selectAndLoad(t, c, "a")
	store.FailNext(remotetest.OpCreate, errBoom)
	c.Drain(cmd)

	assert.Equal(t, "a", c.CurrentID())
	assert.Equal(t, []string{"a"}, ids(c.Sessions()))
}

func TestCreateSession_DefaultTitleCountsPrefix(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "New chat 1", UpdatedAt: at(1)},
		models.ChatSession{ID: "b", Title: "Other", UpdatedAt: at(2)},
		models.ChatSession{ID: "c", Title: "New chat 7", UpdatedAt: at(3)},
	)

	c.CreateSession()
	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "New chat 3", cur.Title)
}

func TestCreateSession_CustomPrefix(t *testing.T) {
	store := remotetest.New()
	c := newController(t, store, WithTitlePrefix("Chat"))
	c.CreateSession()
	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "Chat 1", cur.Title)
}

func TestCreateSession_ProvisionalIDsAreUnique(t *testing.T) {
	store := remotetest.New()
	fixed := at(42)
	c := newController(t, store, WithClock(func() time.Time { return fixed }))

	c.CreateSession()
	first := c.CurrentID()
	c.CreateSession()
	second := c.CurrentID()

	assert.Equal(t, "chat_"+strconv.FormatInt(fixed.UnixMilli(), 10), first)
	assert.NotEqual(t, first, second)
}

func TestSelectSession_LoadsHistoryAndFlagsMarkdown(t *testing.T) {
	store := remotetest.New()
	store.SeedMessages("a",
		models.Message{Role: models.RoleUser, Content: "q"},
		models.Message{Role: models.RoleAssistant, Content: "**a**"},
	)
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})

	cmd, err := c.SelectSession("a")
	require.NoError(t, err)
	assert.True(t, c.Loading())
	assert.True(t, c.Pending())
	c.Drain(cmd)

	assert.False(t, c.Pending())
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "**a**", IsMarkdown: true},
	}, c.Messages())
}

func TestSelectSession_RepeatIsNoop(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})

	first, err := c.SelectSession("a")
	require.NoError(t, err)
	again, err := c.SelectSession("a")
	require.NoError(t, err)
	assert.Nil(t, again, "reselect while loading")

	c.Drain(first)
	again, err = c.SelectSession("a")
	require.NoError(t, err)
	assert.Nil(t, again, "reselect once loaded")
	assert.Equal(t, 1, store.Calls(remotetest.OpMessages))
}

func TestSelectSession_StaleLoadDiscarded(t *testing.T) {
	history := func(store *remotetest.Store) {
		store.SeedMessages("a", models.Message{Role: models.RoleUser, Content: "from a"})
		store.SeedMessages("b", models.Message{Role: models.RoleUser, Content: "from b"})
	}
	seed := []models.ChatSession{
		{ID: "a", Title: "A", UpdatedAt: at(1)},
		{ID: "b", Title: "B", UpdatedAt: at(2)},
	}

	for _, aFirst := range []bool{true, false} {
		store := remotetest.New()
		history(store)
		c := loadedController(t, store, seed...)

		cmdA, err := c.SelectSession("a")
		require.NoError(t, err)
		cmdB, err := c.SelectSession("b")
		require.NoError(t, err)
		msgA, msgB := cmdA(), cmdB()

		if aFirst {
			c.Update(msgA)
			c.Update(msgB)
		} else {
			c.Update(msgB)
			c.Update(msgA)
		}

		require.Len(t, c.Messages(), 1)
		assert.Equal(t, "from b", c.Messages()[0].Content, "a first: %v", aFirst)
		assert.Equal(t, "b", c.CurrentID())
		assert.False(t, c.Loading())
	}
}

func TestSelectSession_FailureShowsErrorMessage(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})

	store.FailNext(remotetest.OpMessages, errBoom)
	cmd, err := c.SelectSession("a")
	require.NoError(t, err)
	c.Drain(cmd)

	assert.Equal(t, []models.Message{{Role: models.RoleAssistant, Content: LoadFailedText}}, c.Messages())

	retry, err := c.SelectSession("a")
	require.NoError(t, err)
	assert.NotNil(t, retry, "selecting again retries a failed load")
}

func TestSelectSession_Unknown(t *testing.T) {
	c := loadedController(t, remotetest.New())
	_, err := c.SelectSession("nope")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRenameSession_RollbackOnFailure(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "X", UpdatedAt: at(1)})

	cmd, err := c.RenameSession("a", "Y")
	require.NoError(t, err)
	cur := c.Sessions()[0]
	assert.Equal(t, "Y", cur.Title)
	assert.Equal(t, Renaming, cur.State)
	assert.True(t, cur.UpdatedAt.After(at(1)))

	store.FailNext(remotetest.OpUpdate, errBoom)
	c.Drain(cmd)

	cur = c.Sessions()[0]
	assert.Equal(t, "X", cur.Title)
	assert.Equal(t, at(1), cur.UpdatedAt)
	assert.Equal(t, Confirmed, cur.State)
	n, ok := c.TakeNotice()
	require.True(t, ok)
	assert.Equal(t, "Rename failed.", n.Text)
}

func TestRenameSession_Success(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "X", UpdatedAt: at(1)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(2)},
	)

	cmd, err := c.RenameSession("a", "  Y  ")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(c.Sessions()), "renamed entry moves to the top")
	c.Drain(cmd)

	assert.Equal(t, "Y", c.Sessions()[0].Title)
	assert.Equal(t, Confirmed, c.Sessions()[0].State)
	assert.Equal(t, "Y", store.List("alice")[0].Title)
}

func TestRenameSession_RejectsBlankTitle(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "X", UpdatedAt: at(1)})

	for _, title := range []string{"", "   ", "\t\n"} {
		cmd, err := c.RenameSession("a", title)
		assert.ErrorIs(t, err, ErrEmptyTitle)
		assert.Nil(t, cmd)
	}
	assert.Equal(t, 0, store.Calls(remotetest.OpUpdate))
	assert.Equal(t, "X", c.Sessions()[0].Title)
}

func TestRenameSession_LaterRenameWins(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "X", UpdatedAt: at(1)})

	cmd1, err := c.RenameSession("a", "Y")
	require.NoError(t, err)
	cmd2, err := c.RenameSession("a", "Z")
	require.NoError(t, err)

	msg1 := cmd1()
	store.FailNext(remotetest.OpUpdate, errBoom)
	msg2 := cmd2()

	c.Update(msg1)
	assert.Equal(t, "Z", c.Sessions()[0].Title)
	assert.Equal(t, Renaming, c.Sessions()[0].State)

	c.Update(msg2)
	assert.Equal(t, "Y", c.Sessions()[0].Title, "rollback goes to the last confirmed title")
	assert.Equal(t, Confirmed, c.Sessions()[0].State)
}

func TestRenameSession_WhileCreatingIsBusy(t *testing.T) {
	c := loadedController(t, remotetest.New())
	c.CreateSession()
	_, err := c.RenameSession(c.CurrentID(), "Title")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = c.DeleteSession(c.CurrentID())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestDeleteSession_RollbackRestoresCurrent(t *testing.T) {
	store := remotetest.New()
	store.SeedMessages("a", models.Message{Role: models.RoleUser, Content: "from a"})
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(2)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(1)},
	)
	selectAndLoad(t, c, "a")

	cmd, err := c.DeleteSession("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(c.Sessions()))
	assert.Equal(t, "b", c.CurrentID())

	store.FailNext(remotetest.OpDelete, errBoom)
	c.Drain(cmd)

	assert.Equal(t, []string{"a", "b"}, ids(c.Sessions()))
	assert.Equal(t, "a", c.CurrentID())
	require.Len(t, c.Messages(), 1)
	assert.Equal(t, "from a", c.Messages()[0].Content)
	n, ok := c.TakeNotice()
	require.True(t, ok)
	assert.Equal(t, "Delete failed.", n.Text)
}

func TestDeleteSession_RollbackRespectsNavigation(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(3)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(2)},
		models.ChatSession{ID: "c", Title: "C", UpdatedAt: at(1)},
	)
	selectAndLoad(t, c, "a")

	cmd, err := c.DeleteSession("a")
	require.NoError(t, err)
	selectAndLoad(t, c, "c")

	store.FailNext(remotetest.OpDelete, errBoom)
	c.Drain(cmd)

	assert.Equal(t, []string{"a", "b", "c"}, ids(c.Sessions()))
	assert.Equal(t, "c", c.CurrentID())
}

func TestDeleteSession_Success(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(2)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(1)},
	)
	selectAndLoad(t, c, "b")

	cmd, err := c.DeleteSession("a")
	require.NoError(t, err)
	assert.Equal(t, "b", c.CurrentID(), "deleting another session keeps the selection")
	c.Drain(cmd)

	assert.Equal(t, []string{"b"}, ids(c.Sessions()))
	assert.Len(t, store.List("alice"), 1)
	_, ok := c.Notice()
	assert.False(t, ok)
}

func TestDeleteSession_LastOneLeavesNothingSelected(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	selectAndLoad(t, c, "a")

	cmd, err := c.DeleteSession("a")
	require.NoError(t, err)
	assert.Empty(t, c.CurrentID())
	c.Drain(cmd)

	assert.Empty(t, c.Sessions())
	assert.True(t, c.NeedsDefaultSession())
}

func TestSessionOrderingInvariant(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(3)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(2)},
		models.ChatSession{ID: "c", Title: "C", UpdatedAt: at(1)},
	)
	check := func(step string) {
		t.Helper()
		assert.True(t, IsSorted(c.Sessions()), "%s: %v", step, ids(c.Sessions()))
	}

	c.Drain(c.CreateSession())
	check("create")
	cmd, err := c.RenameSession("c", "C2")
	require.NoError(t, err)
	check("rename issued")
	c.Drain(cmd)
	check("rename settled")

	store.FailNext(remotetest.OpUpdate, errBoom)
	cmd, err = c.RenameSession("b", "B2")
	require.NoError(t, err)
	c.Drain(cmd)
	check("rename rolled back")

	store.FailNext(remotetest.OpDelete, errBoom)
	cmd, err = c.DeleteSession("a")
	require.NoError(t, err)
	check("delete issued")
	c.Drain(cmd)
	check("delete restored")

	store.FailNext(remotetest.OpCreate, errBoom)
	c.Drain(c.CreateSession())
	check("create rolled back")
}

func TestSendMessage_AppendsAnswer(t *testing.T) {
	store := remotetest.New()
	store.Answer = func(models.CompletionRequest) string { return "hi" }
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	selectAndLoad(t, c, "a")

	cmd, err := c.SendMessage("hello")
	require.NoError(t, err)
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hello"}}, c.Messages())
	assert.True(t, c.Sending())
	assert.True(t, c.Pending())

	c.Drain(cmd)

	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi", IsMarkdown: true},
	}, c.Messages())
	assert.False(t, c.Sending())
	assert.Equal(t, 0, c.Inflight())
}

func TestSendMessage_Rejections(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})

	_, err := c.SendMessage("hello")
	assert.ErrorIs(t, err, ErrNoSession)

	selectAndLoad(t, c, "a")
	_, err = c.SendMessage("  \n ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, c.Messages())
	assert.Equal(t, 0, store.Calls(remotetest.OpComplete))

	_, err = c.SendMessage("first")
	require.NoError(t, err)
	_, err = c.SendMessage("second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Len(t, c.Messages(), 1)
}

func TestSendMessage_FailureAppendsErrorMessage(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	selectAndLoad(t, c, "a")

	store.FailNext(remotetest.OpComplete, errBoom)
	cmd, err := c.SendMessage("hello")
	require.NoError(t, err)
	c.Drain(cmd)

	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: AnswerFailedText},
	}, c.Messages())
	assert.False(t, c.Sending())
}

func TestSendMessage_AnswerForOtherSessionNotAppended(t *testing.T) {
	store := remotetest.New()
	store.SeedMessages("b", models.Message{Role: models.RoleUser, Content: "from b"})
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(2)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(1)},
	)
	selectAndLoad(t, c, "a")

	cmd, err := c.SendMessage("hello")
	require.NoError(t, err)
	selectAndLoad(t, c, "b")
	assert.False(t, c.Pending(), "the other session's send does not block this view")

	c.Drain(cmd)

	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "from b"}}, c.Messages())
	assert.False(t, c.Sending())
}

func TestSendMessage_AnswerFollowsConfirmedID(t *testing.T) {
	store := remotetest.New()
	store.ConfirmID = func(string) string { return "srv_1" }
	c := loadedController(t, store)

	createCmd := c.CreateSession()
	sendCmd, err := c.SendMessage("hello")
	require.NoError(t, err)

	c.Drain(createCmd)
	require.Equal(t, "srv_1", c.CurrentID())
	c.Drain(sendCmd)

	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "echo: hello", IsMarkdown: true},
	}, c.Messages())
	assert.False(t, c.Sending())
}

func TestSendMessage_OtherSessionDoesNotBlock(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(2)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(1)},
	)
	selectAndLoad(t, c, "a")

	first, err := c.SendMessage("in a")
	require.NoError(t, err)
	selectAndLoad(t, c, "b")
	require.False(t, c.Pending())

	second, err := c.SendMessage("in b")
	require.NoError(t, err)
	assert.True(t, c.Pending())

	c.Drain(first)
	assert.True(t, c.Sending(), "the superseded answer must not release the newer send")
	c.Drain(second)

	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "in b"},
		{Role: models.RoleAssistant, Content: "echo: in b", IsMarkdown: true},
	}, c.Messages())
	assert.False(t, c.Sending())
	assert.Equal(t, 2, store.Calls(remotetest.OpComplete))
}

func TestSendMessage_CarriesModelAndPromptMode(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	selectAndLoad(t, c, "a")

	c.SetModel("qwen3:14b")
	assert.Equal(t, models.PromptModeResearch, c.TogglePromptMode())
	cmd, err := c.SendMessage("why?")
	require.NoError(t, err)
	c.Drain(cmd)

	require.Len(t, store.Requests, 1)
	assert.Equal(t, models.CompletionRequest{
		SessionID:  "a",
		Question:   "why?",
		Model:      "qwen3:14b",
		PromptMode: models.PromptModeResearch,
	}, store.Requests[0])
	assert.Equal(t, models.PromptModeDefault, c.TogglePromptMode())
}

func TestSendMessage_BumpsSessionToTop(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(2)},
		models.ChatSession{ID: "b", Title: "B", UpdatedAt: at(1)},
	)
	selectAndLoad(t, c, "b")

	cmd, err := c.SendMessage("hello")
	require.NoError(t, err)
	c.Drain(cmd)

	assert.Equal(t, []string{"b", "a"}, ids(c.Sessions()))
}

func TestSubmitFeedback_UsesLastExchange(t *testing.T) {
	store := remotetest.New()
	store.Answer = func(models.CompletionRequest) string { return "hi" }
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	selectAndLoad(t, c, "a")
	cmd, err := c.SendMessage("hello")
	require.NoError(t, err)
	c.Drain(cmd)
	before := c.Messages()

	cmd, err = c.SubmitFeedback("", "a better answer")
	require.NoError(t, err)
	c.Drain(cmd)

	require.Len(t, store.Feedback, 1)
	assert.Equal(t, models.Feedback{
		SessionID:      "a",
		Question:       "hello",
		Model:          "gemma3:12b",
		OriginalAnswer: "hi",
		ExpectedAnswer: "a better answer",
	}, store.Feedback[0])
	assert.Equal(t, before, c.Messages())
	n, ok := c.TakeNotice()
	require.True(t, ok)
	assert.NoError(t, n.Err)
}

func TestSubmitFeedback_PlaceholdersWithoutAnswer(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	selectAndLoad(t, c, "a")

	cmd, err := c.SubmitFeedback("what about X?", "")
	require.NoError(t, err)
	msg := cmd()
	c.Update(msg)

	fb, ok := msg.(FeedbackSubmittedMsg)
	require.True(t, ok)
	assert.NoError(t, fb.Error)
	require.Len(t, store.Feedback, 1)
	assert.Equal(t, NoQuestionText, store.Feedback[0].Question)
	assert.Equal(t, NoOriginalAnswerText, store.Feedback[0].OriginalAnswer)
}

func TestSubmitFeedback_Validation(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})

	_, err := c.SubmitFeedback("q", "a")
	assert.ErrorIs(t, err, ErrNoSession)

	selectAndLoad(t, c, "a")
	_, err = c.SubmitFeedback(" ", "\n")
	assert.ErrorIs(t, err, ErrFeedbackEmpty)
	assert.Equal(t, 0, store.Calls(remotetest.OpFeedback))
}

func TestSubmitFeedback_FailureNotifies(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})
	selectAndLoad(t, c, "a")

	store.FailNext(remotetest.OpFeedback, errBoom)
	cmd, err := c.SubmitFeedback("q", "a")
	require.NoError(t, err)
	c.Drain(cmd)

	n, ok := c.TakeNotice()
	require.True(t, ok)
	assert.ErrorIs(t, n.Err, errBoom)
	assert.Contains(t, n.String(), "boom")
}

func TestReset_DropsLateResults(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})

	cmd, err := c.SelectSession("a")
	require.NoError(t, err)
	c.Reset()
	c.Drain(cmd)

	assert.Empty(t, c.CurrentID())
	assert.Empty(t, c.Sessions())
	assert.Empty(t, c.Messages())
	assert.Equal(t, 0, c.Inflight())
}

func TestSetIdentity_SwitchesUser(t *testing.T) {
	store := remotetest.New()
	store.Seed("bob", models.ChatSession{ID: "bob-1", Title: "Bob", UpdatedAt: at(1)})
	c := loadedController(t, store, models.ChatSession{ID: "a", Title: "A", UpdatedAt: at(1)})

	c.SetIdentity("bob")
	assert.Empty(t, c.Sessions())
	c.Drain(c.LoadSessions())

	assert.Equal(t, []string{"bob-1"}, ids(c.Sessions()))
	assert.Equal(t, "bob", c.Identity().String())
}

func TestNoIdentity(t *testing.T) {
	store := remotetest.New()
	c := New(store)
	t.Cleanup(c.Close)

	assert.Nil(t, c.LoadSessions())
	assert.Nil(t, c.CreateSession())
	_, err := c.SendMessage("hello")
	assert.ErrorIs(t, err, ErrNoIdentity)
	_, err = c.SelectSession("a")
	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.False(t, c.NeedsDefaultSession())
}

func TestFilterSessions(t *testing.T) {
	store := remotetest.New()
	c := loadedController(t, store,
		models.ChatSession{ID: "a", Title: "travel plans", UpdatedAt: at(3)},
		models.ChatSession{ID: "b", Title: "grocery list", UpdatedAt: at(2)},
		models.ChatSession{ID: "c", Title: "greek recipes", UpdatedAt: at(1)},
	)

	assert.Equal(t, []string{"a", "b", "c"}, ids(c.FilterSessions("")))
	assert.Equal(t, []string{"b"}, ids(c.FilterSessions("groc")))
	assert.Equal(t, []string{"b", "c"}, ids(c.FilterSessions("gre")))
	assert.Empty(t, c.FilterSessions("zzz"))
}
