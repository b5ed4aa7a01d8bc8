package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/engine"
	"github.com/whisper/chat-sync/internal/focus"
	"github.com/whisper/chat-sync/internal/gateway"
	"github.com/whisper/chat-sync/internal/timefmt"
)

const listWidth = 32

// runUI blocks until the user quits or ctx is cancelled.
func runUI(ctx context.Context, eng *engine.Engine, userID string) error {
	p := tea.NewProgram(newModel(eng, userID), tea.WithAltScreen(), tea.WithContext(ctx))

	// Views are coalesced: the program always fetches the latest one.
	updates := make(chan struct{}, 1)
	eng.OnChange(func(engine.View) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-updates:
				p.Send(viewMsg(eng.View()))
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// --- Messages ---

type viewMsg engine.View

type resultMsg struct {
	op  string
	err error
}

type tickMsg struct{}

// await turns an engine result channel into a command.
func await(op string, res <-chan error) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{op: op, err: <-res}
	}
}

func tickEvery() tea.Cmd {
	return tea.Tick(30*time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// --- Key bindings ---

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	Panel key.Binding
	Clear key.Binding
	Help  key.Binding
	Quit  key.Binding
}

var keys = keyMap{
	Up:    key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("up", "previous chat")),
	Down:  key.NewBinding(key.WithKeys("down", "ctrl+n"), key.WithHelp("down", "next chat")),
	Enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send / open")),
	Panel: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "panel")),
	Clear: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
	Help:  key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
	Quit:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Panel, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Panel, k.Clear, k.Help, k.Quit},
	}
}

// --- Model ---

type uiModel struct {
	eng    *engine.Engine
	userID string
	view   engine.View
	peers  map[string]string // private conversation -> receiving user

	input    textinput.Model
	help     help.Model
	showHelp bool
	cursor   int
	status   string
	width    int
	height   int
	now      func() time.Time
}

func newModel(eng *engine.Engine, userID string) uiModel {
	ti := textinput.New()
	ti.Placeholder = "message, or /help"
	ti.CharLimit = chat.MaxTextChars
	ti.Focus()
	return uiModel{
		eng:    eng,
		userID: userID,
		view:   eng.View(),
		peers:  make(map[string]string),
		input:  ti,
		help:   help.New(),
		now:    time.Now,
	}
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickEvery())
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.view.Conversations)-1 {
				m.cursor++
			}
			return m, nil

		case key.Matches(msg, keys.Panel):
			cmd := m.exec(command{name: "panel"})
			return m, cmd

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, keys.Clear):
			m.input.SetValue("")
			m.status = ""
			return m, nil

		case key.Matches(msg, keys.Enter):
			line := m.input.Value()
			m.input.SetValue("")
			cmd := m.submit(line)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = msg.Width - 4

	case viewMsg:
		m.view = engine.View(msg)
		if m.cursor >= len(m.view.Conversations) {
			m.cursor = max(0, len(m.view.Conversations)-1)
		}
		return m, nil

	case resultMsg:
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, gateway.ErrThrottled):
			m.status = "slow down: previous message still sending"
		default:
			m.status = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
		return m, nil

	case tickMsg:
		return m, tickEvery()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles one entered line. An empty line opens the chat under the
// cursor.
func (m *uiModel) submit(line string) tea.Cmd {
	if strings.TrimSpace(line) == "" {
		if len(m.view.Conversations) == 0 {
			return nil
		}
		c := m.view.Conversations[m.cursor]
		if c.Kind == conversation.Group {
			return await("show", m.eng.SelectGroup(c.ID))
		}
		return await("show", m.eng.SelectPrivate(c.ID))
	}

	cmd, isCommand, err := parseInput(line)
	if err != nil {
		m.status = err.Error()
		return nil
	}
	if isCommand {
		return m.exec(cmd)
	}

	f := m.view.Focus
	if f.Idle() {
		m.status = "open a conversation first (/p or /g)"
		return nil
	}
	target := ""
	if f.ActiveKind == conversation.Private {
		target = m.peers[f.ActiveID]
	}
	return await("send", m.eng.Send(f.ActiveID, messageText(line), target))
}

func (m *uiModel) exec(c command) tea.Cmd {
	f := m.view.Focus
	activeGroup := ""
	if f.ActiveKind == conversation.Group {
		activeGroup = f.ActiveID
	}

	switch c.name {
	case "p":
		if len(c.args) == 2 {
			m.peers[c.args[0]] = c.args[1]
		}
		return await("show", m.eng.SelectPrivate(c.args[0]))

	case "g":
		return await("show", m.eng.SelectGroup(c.args[0]))

	case "track", "open":
		kind, err := parseKind(c.args[0])
		if err != nil {
			m.status = err.Error()
			return nil
		}
		if kind == conversation.Private && len(c.args) == 3 {
			m.peers[c.args[1]] = c.args[2]
		}
		if c.name == "open" {
			return await("load", m.eng.Open(c.args[1], kind))
		}
		return await("track", m.eng.Track(c.args[1], kind))

	case "panel":
		if f.Idle() {
			m.status = "no conversation shown"
			return nil
		}
		if f.PanelOpen {
			return await("panel", m.eng.ClosePanel(f.ActiveID))
		}
		return await("panel", m.eng.OpenPanel(f.ActiveID))

	case "del":
		return await("delete", m.eng.Delete(chat.MessageID(c.args[0])))

	case "read":
		return await("read", m.eng.MarkRead(chat.MessageID(c.args[0])))

	case "toggle":
		return await("toggle", m.eng.ToggleMember(c.args[0]))

	case "add":
		if activeGroup == "" {
			m.status = "open a group first"
			return nil
		}
		if len(c.args) == 0 {
			return await("add", m.eng.AddSelectedMembers(activeGroup))
		}
		return await("add", m.eng.AddMembers(activeGroup, c.args))

	case "kick":
		if activeGroup == "" {
			m.status = "open a group first"
			return nil
		}
		return await("kick", m.eng.Kick(activeGroup, c.args[0]))

	case "leave":
		group := activeGroup
		if len(c.args) == 1 {
			group = c.args[0]
		}
		if group == "" {
			m.status = "open a group first"
			return nil
		}
		return await("leave", m.eng.Leave(group))

	case "close":
		delete(m.peers, c.args[0])
		return await("close", m.eng.Remove(c.args[0]))

	case "dismiss":
		if len(m.view.Notices) == 0 {
			return nil
		}
		return await("dismiss", m.eng.DismissNotice(m.view.Notices[0].ID))

	case "help":
		m.showHelp = !m.showHelp
		return nil

	case "quit":
		return tea.Quit
	}
	return nil
}

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#313244"))

	activeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A6E3A1"))

	unreadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F38BA8"))

	ownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#89B4FA"))

	senderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAB387"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#313244")).
			PaddingLeft(1)
)

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "starting..."
	}

	footer := []string{m.renderNotices(), m.renderStatus(), m.input.View()}
	if m.showHelp {
		footer = append(footer, dimStyle.Render(strings.Join(usageLines(), "\n")))
	} else {
		footer = append(footer, m.help.View(keys))
	}
	foot := lipgloss.JoinVertical(lipgloss.Left, footer...)

	bodyHeight := max(3, m.height-lipgloss.Height(foot))
	list := m.renderList(listWidth, bodyHeight)
	convo := m.renderConversation(max(10, m.width-listWidth-1), bodyHeight)

	body := lipgloss.JoinHorizontal(lipgloss.Top, list, " ", convo)
	return lipgloss.JoinVertical(lipgloss.Left, body, foot)
}

func (m uiModel) renderList(width, height int) string {
	now := m.now()
	lines := []string{titleStyle.Render(fmt.Sprintf("Chats (%d unread)", m.view.Unread()))}

	for i, c := range m.view.Conversations {
		glyph := "@"
		if c.Kind == conversation.Group {
			glyph = "#"
		}
		name := glyph + c.ID
		if c.Unread > 0 {
			name += " " + unreadStyle.Render(fmt.Sprintf("(%d)", c.Unread))
		}
		if !c.LastMessageAt.IsZero() {
			name += " " + dimStyle.Render(timefmt.Format(c.LastMessageAt, now))
		}

		style := lipgloss.NewStyle()
		switch {
		case i == m.cursor:
			style = selectedStyle
		case c.ID == m.view.Focus.ActiveID:
			style = activeStyle
		}
		lines = append(lines, style.MaxWidth(width).Render(name))
		if c.LastMessage != "" {
			lines = append(lines, dimStyle.MaxWidth(width).Render("  "+oneLine(c.LastMessage)))
		}
	}

	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).
		Render(strings.Join(lines, "\n"))
}

func (m uiModel) renderConversation(width, height int) string {
	f := m.view.Focus
	if f.Idle() {
		return lipgloss.NewStyle().Width(width).Height(height).
			Render(dimStyle.Render("No conversation open. Pick one with up/down and enter, or /p <id>."))
	}

	header := titleStyle.Render(fmt.Sprintf("%s %s", f.ActiveKind, f.ActiveID))
	if s, ok := m.summary(f.ActiveID); ok {
		switch s.History {
		case conversation.HistoryLoading:
			header += dimStyle.Render("  loading...")
		case conversation.HistoryFailed:
			header += errorStyle.Render("  failed to load history")
		}
	}

	msgWidth := width
	var panel string
	if f.PanelOpen {
		panelWidth := min(28, width/3)
		msgWidth = width - panelWidth - 2
		panel = panelStyle.Width(panelWidth).Height(height - 1).Render(m.renderPanel(f))
	}

	now := m.now()
	lines := make([]string, 0, len(m.view.Active))
	for _, msg := range m.view.Active {
		lines = append(lines, m.renderMessage(msg, now, msgWidth))
	}
	// Newest messages stay visible.
	if room := height - 1; len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	messages := lipgloss.NewStyle().Width(msgWidth).Height(height - 1).Render(strings.Join(lines, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, header, lipgloss.JoinHorizontal(lipgloss.Top, messages, panel))
}

func (m uiModel) renderMessage(msg chat.Message, now time.Time, width int) string {
	sender := msg.SenderName
	if sender == "" {
		sender = msg.SenderID
	}
	name := senderStyle.Render(sender)
	if msg.SenderID == m.userID {
		name = ownStyle.Render("you")
	}

	line := fmt.Sprintf("%s %s %s: %s",
		dimStyle.Render(timefmt.Format(msg.Timestamp, now)),
		dimStyle.Render("["+string(msg.ID)+"]"),
		name,
		oneLine(msg.Content))
	if msg.PendingDelete {
		line = dimStyle.Render(line + " (deleting)")
	} else if !msg.IsRead && msg.SenderID != m.userID {
		line = unreadStyle.Render("* ") + line
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(line)
}

func (m uiModel) renderPanel(f focus.State) string {
	var b strings.Builder
	if f.ActiveKind == conversation.Group {
		b.WriteString(titleStyle.Render("Group"))
		b.WriteString("\nSelected to add:\n")
		if len(m.view.Selected) == 0 {
			b.WriteString(dimStyle.Render("  none (/toggle <user>)"))
		}
		for _, id := range m.view.Selected {
			b.WriteString("  " + id + "\n")
		}
	} else {
		b.WriteString(titleStyle.Render("Contact"))
		if peer := m.peers[f.ActiveID]; peer != "" {
			status := dimStyle.Render("offline")
			if m.online(peer) {
				status = activeStyle.Render("online")
			}
			b.WriteString("\n" + peer + " " + status)
		}
	}

	b.WriteString("\n\n" + titleStyle.Render("Online") + "\n")
	for _, id := range m.view.Online {
		b.WriteString("  " + id + "\n")
	}
	return b.String()
}

func (m uiModel) renderNotices() string {
	if len(m.view.Notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.view.Notices))
	for _, n := range m.view.Notices {
		style := infoStyle
		if n.Kind == gateway.NoticeError {
			style = errorStyle
		}
		lines = append(lines, style.MaxWidth(m.width).Render("! "+n.Text))
	}
	return strings.Join(lines, "\n") + "\n" + dimStyle.Render("/dismiss to clear")
}

func (m uiModel) renderStatus() string {
	if m.status == "" {
		return dimStyle.Render("signed in as " + m.userID)
	}
	return errorStyle.Render(m.status)
}

func (m uiModel) summary(id string) (conversation.Summary, bool) {
	for _, c := range m.view.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return conversation.Summary{}, false
}

func (m uiModel) online(userID string) bool {
	for _, id := range m.view.Online {
		if id == userID {
			return true
		}
	}
	return false
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
