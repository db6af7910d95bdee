package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controller is the part of a call the screen drives.
type Controller interface {
	ToggleMute() error
	ToggleVideo() error
	ToggleScreenShare(ctx context.Context) error
	SendChatMessage(text string) error
	Leave() error
}

type stateMsg struct {
	state call.CallState
	ok    bool
}

type actionMsg struct {
	op  string
	err error
}

type leftMsg struct{ err error }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// CallModel is the bubbletea model of an ongoing call.
type CallModel struct {
	ctl     Controller
	states  <-chan call.CallState
	session string
	started time.Time

	state  call.CallState
	input  textinput.Model
	chat   viewport.Model
	status string
	width  int

	summary CallSummary
	leaving bool
	done    bool
	err     error
}

// NewCallModel renders states until the call ends or the user leaves.
func NewCallModel(ctl Controller, states <-chan call.CallState, sessionID string, initial call.CallState) *CallModel {
	in := textinput.New()
	in.Placeholder = "Type a message and press enter"
	in.CharLimit = 1000
	in.Width = 60
	in.Prompt = IconChat + " "
	in.Focus()

	m := &CallModel{
		ctl:     ctl,
		states:  states,
		session: sessionID,
		started: time.Now(),
		input:   in,
		chat:    viewport.New(80, 8),
		summary: CallSummary{SessionID: sessionID, EndReason: "left"},
	}
	m.apply(initial)
	return m
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForState(), tick())
}

func (m *CallModel) waitForState() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.states
		return stateMsg{state: s, ok: ok}
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.chat.Width = max(20, msg.Width-4)
		m.chat.Height = max(4, msg.Height/3)
		m.input.Width = max(20, msg.Width-8)
		m.refreshChat()
		return m, nil

	case tea.KeyMsg:
		return m.onKey(msg)

	case tickMsg:
		return m, tick()

	case stateMsg:
		if !msg.ok {
			m.done = true
			return m, tea.Quit
		}
		m.apply(msg.state)
		if msg.state.Err != nil && msg.state.Phase == call.PhaseIdle {
			m.err = msg.state.Err
			m.summary.EndReason = "connection lost"
			m.done = true
			return m, tea.Quit
		}
		return m, m.waitForState()

	case actionMsg:
		if msg.err != nil {
			m.status = ErrorStyle.Render(fmt.Sprintf("%s: %v", msg.op, msg.err))
		} else {
			m.status = ""
		}
		return m, nil

	case leftMsg:
		if msg.err != nil && !errors.Is(msg.err, call.ErrClosed) {
			m.err = msg.err
		}
		m.done = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *CallModel) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if m.leaving {
			return m, nil
		}
		m.leaving = true
		m.status = MutedStyle.Render("Leaving...")
		return m, func() tea.Msg { return leftMsg{err: m.ctl.Leave()} }

	case "ctrl+a":
		return m, m.action("toggle mute", m.ctl.ToggleMute)

	case "ctrl+v":
		return m, m.action("toggle video", m.ctl.ToggleVideo)

	case "ctrl+s":
		m.status = MutedStyle.Render("Switching video source...")
		return m, m.action("screen share", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return m.ctl.ToggleScreenShare(ctx)
		})

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		return m, m.action("send message", func() error { return m.ctl.SendChatMessage(text) })
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *CallModel) action(op string, fn func() error) tea.Cmd {
	return func() tea.Msg { return actionMsg{op: op, err: fn()} }
}

func (m *CallModel) apply(s call.CallState) {
	m.state = s
	if n := len(s.Participants); n > m.summary.PeakParticipants {
		m.summary.PeakParticipants = n
	}
	if s.IsScreenSharing {
		m.summary.ScreenShared = true
	}
	m.summary.Messages = max(m.summary.Messages, len(s.Messages))
	m.refreshChat()
}

func (m *CallModel) refreshChat() {
	if len(m.state.Messages) == 0 {
		m.chat.SetContent(MutedStyle.Render("No messages yet"))
		return
	}
	var b strings.Builder
	for i, msg := range m.state.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s",
			ChatTimeStyle.Render(msg.Timestamp.Format("15:04")),
			ChatSenderStyle.Render(msg.SenderName+":"),
			msg.Message,
		)
	}
	m.chat.SetContent(b.String())
	m.chat.GotoBottom()
}

func (m *CallModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Session %s", IconRoom, m.session)))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")
	b.WriteString(ParticipantTable(m.state.Participants))
	if len(m.state.Remote()) == 0 {
		b.WriteString("\n" + MutedStyle.Render(IconWaiting+" Waiting for others to join..."))
	}
	b.WriteString("\n\n")
	b.WriteString(ChatBoxStyle.Render(m.chat.View()))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	if m.status != "" {
		b.WriteString("\n" + m.status)
	}
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("ctrl+a mute • ctrl+v camera • ctrl+s screen • enter send • esc leave"))
	return lipgloss.NewStyle().Margin(0, 1).Render(b.String())
}

func (m *CallModel) statusLine() string {
	conn := IndicatorOffStyle.Render("disconnected")
	if m.state.IsConnected {
		conn = IndicatorOnStyle.Render(IconConnect + " connected")
	}

	mic := IconMic + " on"
	if m.state.IsMuted {
		mic = IndicatorOffStyle.Render(IconMicOff + " muted")
	}
	cam := IconCamera + " on"
	if m.state.IsVideoOff {
		cam = IndicatorOffStyle.Render(IconCamera + " off")
	}
	parts := []string{conn, mic, cam}
	if m.state.IsScreenSharing {
		parts = append(parts, WarningStyle.Render(IconScreen+" sharing"))
	}
	parts = append(parts, MutedStyle.Render(IconTime+" "+formatDuration(time.Since(m.started))))
	return strings.Join(parts, "  ")
}

// Summary reports the call so far.
func (m *CallModel) Summary() CallSummary {
	s := m.summary
	s.Duration = time.Since(m.started)
	return s
}

// Err is why the screen closed on its own, if it did.
func (m *CallModel) Err() error {
	return m.err
}

// RunCallScreen runs the call screen on the alternate screen until the user
// leaves or the call ends.
func RunCallScreen(ctx context.Context, ctl Controller, states <-chan call.CallState, sessionID string, initial call.CallState) (CallSummary, error) {
	m := NewCallModel(ctl, states, sessionID, initial)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return m.Summary(), err
	}
	if ctx.Err() != nil {
		m.summary.EndReason = "interrupted"
	}
	return m.Summary(), m.Err()
}
