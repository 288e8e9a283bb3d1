package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/strrl/ragchat/internal/config"
	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/internal/normalize"
	"github.com/strrl/ragchat/internal/sessions"
	"github.com/strrl/ragchat/pkg/models"
)

type focus int

const (
	focusSidebar focus = iota
	focusComposer
)

type mode int

const (
	modeChat mode = iota
	modeLogin
	modeRename
	modeConfirmDelete
	modeFeedback
	modeFilter
)

const composerHeight = 3

// Options hooks the TUI into settings persistence.
type Options struct {
	// OnLogin is called with the sanitized username after the user logs in.
	OnLogin func(identity.Identity) error
	// OnLogout is called after the user logs out.
	OnLogout func() error
}

type model struct {
	ctrl *sessions.Controller
	opts Options
	keys keyMap
	help help.Model

	focus    focus
	mode     mode
	cursorID string
	targetID string
	filter   string
	visible  []sessions.Entry

	sidebar       viewport.Model
	thread        viewport.Model
	composer      textarea.Model
	input         textinput.Model
	feedback      [2]textinput.Model
	feedbackField int
	feedbackBusy  bool

	renderer *normalize.Terminal
	rendered map[string]string
	loading  *LoadingIndicator
	ticking  bool

	status      string
	statusIsErr bool

	lastCurrent string
	lastCount   int
	width       int
	height      int
	ready       bool
}

func newModel(ctrl *sessions.Controller, opts Options) model {
	composer := textarea.New()
	composer.Placeholder = "Ask something… (enter to send, ctrl+j for a new line)"
	composer.ShowLineNumbers = false
	composer.SetHeight(composerHeight)
	composer.KeyMap.InsertNewline.SetKeys("ctrl+j")

	input := textinput.New()
	input.CharLimit = 120

	var fb [2]textinput.Model
	for i, placeholder := range []string{"Expected question (optional)", "Expected answer"} {
		fb[i] = textinput.New()
		fb[i].Placeholder = placeholder
		fb[i].Prompt = "> "
	}

	m := model{
		ctrl:     ctrl,
		opts:     opts,
		keys:     defaultKeyMap(),
		help:     help.New(),
		composer: composer,
		input:    input,
		feedback: fb,
		rendered: make(map[string]string),
		loading:  NewLoadingIndicator("Loading chats..."),
		ticking:  true,
	}
	if ctrl.Identity().Empty() {
		m.beginLogin()
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.ctrl.LoadSessions())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case TickMsg:
		if m.busy() {
			m.loading.SetMessage(m.busyText())
			m.loading.Tick()
			return m, tickCmd()
		}
		m.ticking = false
		return m, nil

	case SettingsSavedMsg:
		if msg.Error != nil {
			m.setStatus(fmt.Sprintf("Could not save %s: %v", msg.Action, msg.Error), true)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		cmd := m.handleKey(msg)
		return m, m.after(cmd)

	case sessions.FeedbackSubmittedMsg:
		cmd := m.ctrl.Update(msg)
		m.feedbackBusy = false
		// a failed submission keeps the form so it can be retried
		if msg.Error == nil && m.mode == modeFeedback {
			m.endPrompt()
		}
		return m, m.after(cmd)
	}

	cmd := m.ctrl.Update(msg)
	return m, m.after(cmd)
}

// after runs the bookkeeping every controller change needs: surfacing
// notices, auto-creating a first chat, animating, and redrawing.
func (m *model) after(cmd tea.Cmd) tea.Cmd {
	cmds := []tea.Cmd{cmd}
	if n, ok := m.ctrl.TakeNotice(); ok {
		m.setStatus(n.String(), n.Err != nil)
	}
	if m.ctrl.NeedsDefaultSession() {
		cmds = append(cmds, m.ctrl.CreateSession())
	}
	if m.busy() && !m.ticking {
		m.ticking = true
		cmds = append(cmds, tickCmd())
	}
	m.refresh()
	return tea.Batch(cmds...)
}

func (m *model) busy() bool {
	return m.ctrl.ListLoading() || m.ctrl.Pending()
}

func (m *model) busyText() string {
	switch {
	case m.ctrl.ListLoading():
		return "Loading chats..."
	case m.ctrl.Loading():
		return "Loading history..."
	default:
		return "Thinking..."
	}
}

func (m *model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusIsErr = isErr
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch m.mode {
	case modeLogin:
		return m.handleLogin(msg)
	case modeRename:
		return m.handleRename(msg)
	case modeConfirmDelete:
		return m.handleConfirmDelete(msg)
	case modeFeedback:
		return m.handleFeedback(msg)
	case modeFilter:
		return m.handleFilter(msg)
	}
	if m.focus == focusComposer {
		return m.handleComposer(msg)
	}
	return m.handleSidebar(msg)
}

func (m *model) beginLogin() {
	m.mode = modeLogin
	m.input.Reset()
	m.input.Prompt = "Username: "
	m.input.Placeholder = "letters, digits, _ and -"
	m.input.Focus()
}

func (m *model) handleLogin(msg tea.KeyMsg) tea.Cmd {
	if msg.Type != tea.KeyEnter {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}
	raw := strings.TrimSpace(m.input.Value())
	if raw == "" {
		m.setStatus("Please enter a username.", true)
		return nil
	}
	id := identity.Sanitize(raw)
	m.ctrl.SetIdentity(id)
	m.endPrompt()
	m.setStatus("Logged in as "+id.String(), false)

	var save func() error
	if m.opts.OnLogin != nil {
		save = func() error { return m.opts.OnLogin(id) }
	}
	return tea.Batch(m.ctrl.LoadSessions(), saveCmd("username", save))
}

func (m *model) handleRename(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.endPrompt()
		return nil
	case tea.KeyEnter:
		cmd, err := m.ctrl.RenameSession(m.targetID, m.input.Value())
		if err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.endPrompt()
		return cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *model) handleConfirmDelete(msg tea.KeyMsg) tea.Cmd {
	id := m.targetID
	m.endPrompt()
	if msg.String() != "y" && msg.String() != "Y" {
		return nil
	}
	cmd, err := m.ctrl.DeleteSession(id)
	if err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	return cmd
}

func (m *model) handleFeedback(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.endPrompt()
		return nil
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.switchFeedbackField()
		return nil
	case tea.KeyEnter:
		if m.feedbackField == 0 {
			m.switchFeedbackField()
			return nil
		}
		if m.feedbackBusy {
			return nil
		}
		cmd, err := m.ctrl.SubmitFeedback(m.feedback[0].Value(), m.feedback[1].Value())
		if err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.feedbackBusy = true
		m.setStatus("Sending feedback...", false)
		return cmd
	}
	var cmd tea.Cmd
	m.feedback[m.feedbackField], cmd = m.feedback[m.feedbackField].Update(msg)
	return cmd
}

func (m *model) switchFeedbackField() {
	m.feedback[m.feedbackField].Blur()
	m.feedbackField = 1 - m.feedbackField
	m.feedback[m.feedbackField].Focus()
}

func (m *model) handleFilter(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.filter = ""
		m.endPrompt()
		return nil
	case tea.KeyEnter:
		m.endPrompt()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.filter = m.input.Value()
	return cmd
}

// endPrompt leaves any input mode and returns to the chat view.
func (m *model) endPrompt() {
	m.mode = modeChat
	m.targetID = ""
	m.input.Blur()
	m.input.Reset()
	for i := range m.feedback {
		m.feedback[i].Blur()
		m.feedback[i].Reset()
	}
}

func (m *model) handleComposer(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyTab, tea.KeyEsc:
		m.focus = focusSidebar
		m.composer.Blur()
		return nil
	case tea.KeyEnter:
		cmd, err := m.ctrl.SendMessage(m.composer.Value())
		if err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.composer.Reset()
		m.status = ""
		return cmd
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.thread, cmd = m.thread.Update(msg)
		return cmd
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return cmd
}

func (m *model) handleSidebar(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Select):
		if m.cursorID == "" {
			return nil
		}
		cmd, err := m.ctrl.SelectSession(m.cursorID)
		if err != nil {
			m.setStatus(err.Error(), true)
		}
		return cmd
	case key.Matches(msg, m.keys.Focus):
		m.focus = focusComposer
		return m.composer.Focus()
	case key.Matches(msg, m.keys.New):
		m.filter = ""
		return m.ctrl.CreateSession()
	case key.Matches(msg, m.keys.Rename):
		e, ok := m.cursorEntry()
		if !ok {
			return nil
		}
		m.mode = modeRename
		m.targetID = e.ID
		m.input.Prompt = "Rename: "
		m.input.Placeholder = ""
		m.input.SetValue(e.Title)
		m.input.CursorEnd()
		return m.input.Focus()
	case key.Matches(msg, m.keys.Delete):
		e, ok := m.cursorEntry()
		if !ok {
			return nil
		}
		m.mode = modeConfirmDelete
		m.targetID = e.ID
	case key.Matches(msg, m.keys.Feedback):
		if m.ctrl.CurrentID() == "" {
			m.setStatus(sessions.ErrNoSession.Error(), true)
			return nil
		}
		m.mode = modeFeedback
		m.feedbackField = 0
		return m.feedback[0].Focus()
	case key.Matches(msg, m.keys.Model):
		m.ctrl.SetModel(config.NextModel(m.ctrl.Model()))
		m.setStatus("Model: "+m.ctrl.Model(), false)
	case key.Matches(msg, m.keys.Mode):
		m.setStatus("Prompt mode: "+m.ctrl.TogglePromptMode(), false)
	case key.Matches(msg, m.keys.Filter):
		m.mode = modeFilter
		m.input.Prompt = "Filter: "
		m.input.Placeholder = "title"
		m.input.SetValue(m.filter)
		m.input.CursorEnd()
		return m.input.Focus()
	case key.Matches(msg, m.keys.Logout):
		m.ctrl.SetIdentity("")
		m.filter = ""
		m.cursorID = ""
		clear(m.rendered)
		m.beginLogin()
		m.setStatus("Logged out.", false)
		return saveCmd("logout", m.opts.OnLogout)
	case key.Matches(msg, m.keys.Scroll):
		var cmd tea.Cmd
		m.thread, cmd = m.thread.Update(msg)
		return cmd
	}
	return nil
}

func (m *model) indexOf(id string) int {
	for i, e := range m.visible {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (m *model) cursorEntry() (sessions.Entry, bool) {
	i := m.indexOf(m.cursorID)
	if i < 0 {
		return sessions.Entry{}, false
	}
	return m.visible[i], true
}

func (m *model) moveCursor(delta int) {
	if len(m.visible) == 0 {
		return
	}
	i := m.indexOf(m.cursorID) + delta
	if i < 0 {
		i = 0
	}
	if i >= len(m.visible) {
		i = len(m.visible) - 1
	}
	m.cursorID = m.visible[i].ID
	m.refreshSidebar()
}

func (m *model) resize(width, height int) {
	m.width = width
	m.height = height

	sideWidth := width / 4
	if sideWidth < 24 {
		sideWidth = 24
	}
	mainWidth := width - sideWidth - 1
	if mainWidth < 20 {
		mainWidth = 20
	}
	bodyHeight := height - 3 // header, status, help
	if bodyHeight < 5 {
		bodyHeight = 5
	}
	threadHeight := bodyHeight - composerHeight - 1

	if !m.ready {
		m.sidebar = viewport.New(sideWidth, bodyHeight)
		m.thread = viewport.New(mainWidth, threadHeight)
		m.ready = true
	} else {
		m.sidebar.Width, m.sidebar.Height = sideWidth, bodyHeight
		m.thread.Width, m.thread.Height = mainWidth, threadHeight
	}
	m.composer.SetWidth(mainWidth)
	m.input.Width = mainWidth - 12
	m.help.Width = width

	if m.renderer == nil || m.renderer.Width() != mainWidth-2 {
		if r, err := normalize.NewTerminal(mainWidth - 2); err == nil {
			m.renderer = r
		}
	}
	clear(m.rendered)
}

func (m *model) refresh() {
	if cur := m.ctrl.CurrentID(); cur != m.lastCurrent {
		m.lastCurrent = cur
		clear(m.rendered)
		if cur != "" {
			m.cursorID = cur
		}
	}
	m.visible = m.ctrl.FilterSessions(m.filter)
	if m.indexOf(m.cursorID) < 0 {
		m.cursorID = ""
		if len(m.visible) > 0 {
			m.cursorID = m.visible[0].ID
		}
	}
	if !m.ready {
		return
	}
	m.refreshSidebar()
	m.refreshThread()
}

func (m *model) refreshSidebar() {
	if !m.ready {
		return
	}
	var s strings.Builder
	s.WriteString(titleStyle.Render("Chats") + "\n")
	if m.filter != "" {
		s.WriteString(hintStyle.Render("filter: "+m.filter) + "\n")
	}
	s.WriteString(dividerStyle.Render(strings.Repeat("─", max(m.sidebar.Width-2, 1))) + "\n")

	if len(m.visible) == 0 {
		if m.ctrl.ListLoading() {
			s.WriteString(emptyStyle.Render("loading..."))
		} else {
			s.WriteString(emptyStyle.Render("no chats, press n"))
		}
		m.sidebar.SetContent(s.String())
		return
	}

	current := m.ctrl.CurrentID()
	cursorLine := 0
	for i, e := range m.visible {
		marker := "  "
		style := itemStyle
		switch {
		case e.ID == m.cursorID:
			marker = "> "
			style = selectedStyle
			cursorLine = i * 2
		case e.ID == current:
			style = currentStyle
		}
		title := truncate(e.Title, m.sidebar.Width-6)
		switch e.State {
		case sessions.Creating:
			title += " …"
		case sessions.Renaming:
			title += " ✎"
		}
		if e.ID == current {
			title = "● " + title
		}
		s.WriteString(style.Render(marker+title) + "\n")
		s.WriteString(dateStyle.Render("  "+e.UpdatedAt.Local().Format("01-02 15:04")) + "\n")
	}
	m.sidebar.SetContent(s.String())

	if cursorLine < m.sidebar.YOffset {
		m.sidebar.SetYOffset(cursorLine)
	} else if cursorLine+2 > m.sidebar.YOffset+m.sidebar.Height {
		m.sidebar.SetYOffset(cursorLine + 2 - m.sidebar.Height)
	}
}

func (m *model) refreshThread() {
	if !m.ready {
		return
	}
	msgs := m.ctrl.Messages()
	m.thread.SetContent(m.renderThread(msgs))

	count := len(msgs)
	if m.ctrl.Pending() {
		count++
	}
	if count != m.lastCount {
		m.lastCount = count
		m.thread.GotoBottom()
	}
}

func (m *model) renderThread(msgs []models.Message) string {
	if m.ctrl.CurrentID() == "" {
		return emptyStyle.Render("Select a chat on the left or press n to start one.")
	}
	if m.ctrl.Loading() {
		return emptyStyle.Render("Loading history...")
	}
	if len(msgs) == 0 {
		return emptyStyle.Render("No messages yet. Press tab and ask something.")
	}

	width := max(m.thread.Width-2, 10)
	var s strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			s.WriteString("\n")
		}
		if msg.Role == models.RoleUser {
			s.WriteString(userLabel.Render("You") + "\n")
		} else {
			s.WriteString(assistantLabel.Render("Assistant") + "\n")
		}
		if msg.IsMarkdown {
			s.WriteString(m.markdown(msg.Content))
		} else {
			s.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content))
		}
		s.WriteString("\n")
	}
	if m.ctrl.Sending() && m.ctrl.Pending() {
		s.WriteString("\n" + m.loading.View() + "\n")
	}
	return s.String()
}

func (m *model) markdown(content string) string {
	if out, ok := m.rendered[content]; ok {
		return out
	}
	var out string
	if m.renderer != nil {
		out = strings.TrimRight(m.renderer.Render(content), "\n")
	} else {
		out = normalize.Normalize(content)
	}
	m.rendered[content] = out
	return out
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	if m.mode == modeLogin {
		return m.loginView()
	}
	if m.ctrl.ListLoading() && len(m.visible) == 0 {
		return m.renderHeader() + "\n" + LoadingOverlay(m.width, m.height-1, m.loading, "[ctrl+c to quit]")
	}

	divider := strings.TrimRight(strings.Repeat("│\n", m.sidebar.Height), "\n")
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.thread.View(),
		dividerStyle.Render(strings.Repeat("─", m.thread.Width)),
		m.composer.View(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(m.sidebar.Width).Height(m.sidebar.Height).Render(m.sidebar.View()),
		dividerStyle.Render(divider),
		right,
	)
	return fmt.Sprintf("%s\n%s\n%s\n%s", m.renderHeader(), body, m.renderStatus(), m.renderFooter())
}

func (m model) loginView() string {
	content := fmt.Sprintf("%s\n\n%s\n\n%s",
		titleStyle.Render("Welcome to ragchat"),
		m.input.View(),
		hintStyle.Render("enter to continue • ctrl+c to quit"))
	if m.status != "" {
		content += "\n\n" + m.statusLine()
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, loginBox.Render(content))
}

func (m model) renderHeader() string {
	title := fmt.Sprintf("ragchat • %s • %s • %s", m.ctrl.Identity(), m.ctrl.Model(), m.ctrl.PromptMode())
	if e, ok := m.ctrl.Current(); ok {
		title += " • " + e.Title
	}
	return headerStyle.Render(truncate(title, max(m.width-2, 10)))
}

func (m model) renderStatus() string {
	switch m.mode {
	case modeRename, modeFilter:
		return m.input.View()
	case modeConfirmDelete:
		title := m.targetID
		if i := m.indexOf(m.targetID); i >= 0 {
			title = m.visible[i].Title
		}
		return promptStyle.Render(fmt.Sprintf("Delete %q? (y/N)", title))
	case modeFeedback:
		fields := m.feedback[0].View() + "  " + m.feedback[1].View()
		if m.status != "" {
			fields += "  " + m.statusLine()
		}
		return fields
	}
	if m.busy() {
		return m.loading.View()
	}
	return m.statusLine()
}

func (m model) statusLine() string {
	if m.statusIsErr {
		return errorStyle.Render(m.status)
	}
	return statusStyle.Render(m.status)
}

func (m model) renderFooter() string {
	if m.focus == focusComposer && m.mode == modeChat {
		return hintStyle.Render("enter: send • ctrl+j: newline • pgup/pgdn: scroll • tab/esc: back to chats • ctrl+c: quit")
	}
	return m.help.View(m.keys)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen < 1 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Run displays the chat TUI and blocks until the user quits.
func Run(ctrl *sessions.Controller, opts Options) error {
	p := tea.NewProgram(
		newModel(ctrl, opts),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
