package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	chat  []string
	err   error
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) ToggleMute() error  { return f.record("mute") }
func (f *fakeController) ToggleVideo() error { return f.record("video") }
func (f *fakeController) ToggleScreenShare(context.Context) error {
	return f.record("share")
}
func (f *fakeController) Leave() error { return f.record("leave") }
func (f *fakeController) SendChatMessage(text string) error {
	f.mu.Lock()
	f.chat = append(f.chat, text)
	f.mu.Unlock()
	return f.record("chat")
}

func connectedState() call.CallState {
	return call.CallState{
		Phase:       call.PhaseConnected,
		IsConnected: true,
		Participants: []call.Participant{
			{ID: "alice", Name: "Alice", IsHost: true, IsLocal: true},
			{ID: "bob", Name: "Bob"},
		},
		Messages: []call.ChatMessage{
			{SenderID: "bob", SenderName: "Bob", Message: "hello there", Timestamp: time.Unix(0, 0)},
		},
	}
}

// run executes cmd and feeds its message back, as the program would.
func run(t *testing.T, m *CallModel, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	m.Update(msg)
	return msg
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+a":
		return tea.KeyMsg{Type: tea.KeyCtrlA}
	case "ctrl+v":
		return tea.KeyMsg{Type: tea.KeyCtrlV}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCallModel_View(t *testing.T) {
	m := NewCallModel(&fakeController{}, nil, "kitten-waffle", connectedState())
	view := m.View()
	for _, want := range []string{"kitten-waffle", "Alice (you)", "Bob", "hello there", "connected"} {
		if !strings.Contains(view, want) {
			t.Errorf("view is missing %q", want)
		}
	}
}

func TestCallModel_Keys(t *testing.T) {
	ctl := &fakeController{}
	m := NewCallModel(ctl, nil, "s", connectedState())

	for _, k := range []string{"ctrl+a", "ctrl+v", "ctrl+s"} {
		_, cmd := m.Update(key(k))
		run(t, m, cmd)
	}

	m.Update(key("hi"))
	_, cmd := m.Update(key("enter"))
	run(t, m, cmd)
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}

	// Blank input sends nothing.
	if _, cmd := m.Update(key("enter")); cmd != nil {
		t.Error("blank enter produced a command")
	}

	want := []string{"mute", "video", "share", "chat"}
	if strings.Join(ctl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", ctl.calls, want)
	}
	if len(ctl.chat) != 1 || ctl.chat[0] != "hi" {
		t.Errorf("chat = %v", ctl.chat)
	}
}

func TestCallModel_ActionErrorShown(t *testing.T) {
	ctl := &fakeController{err: call.ErrNoVideoTrack}
	m := NewCallModel(ctl, nil, "s", connectedState())
	_, cmd := m.Update(key("ctrl+s"))
	run(t, m, cmd)
	if !strings.Contains(m.View(), call.ErrNoVideoTrack.Error()) {
		t.Error("action error is not shown")
	}
}

func TestCallModel_Leave(t *testing.T) {
	ctl := &fakeController{}
	m := NewCallModel(ctl, nil, "s", connectedState())

	_, cmd := m.Update(key("esc"))
	if _, again := m.Update(key("esc")); again != nil {
		t.Error("second esc started another leave")
	}
	run(t, m, cmd)
	if !m.done || m.Err() != nil {
		t.Errorf("done = %v, err = %v", m.done, m.Err())
	}
	if len(ctl.calls) != 1 || ctl.calls[0] != "leave" {
		t.Errorf("calls = %v", ctl.calls)
	}
}

func TestCallModel_ConnectionLost(t *testing.T) {
	states := make(chan call.CallState, 1)
	m := NewCallModel(&fakeController{}, states, "s", connectedState())

	lost := errors.New("relay gone")
	states <- call.CallState{Phase: call.PhaseIdle, Err: lost}
	run(t, m, m.waitForState())

	if !errors.Is(m.Err(), lost) {
		t.Errorf("Err() = %v, want %v", m.Err(), lost)
	}
	if got := m.Summary(); got.EndReason != "connection lost" || got.PeakParticipants != 2 || got.Messages != 1 {
		t.Errorf("Summary() = %+v", got)
	}
}

func TestCallSummaryView(t *testing.T) {
	out := CallSummaryView(CallSummary{
		SessionID:        "kitten-waffle",
		Duration:         95 * time.Second,
		PeakParticipants: 3,
		Messages:         7,
		ScreenShared:     true,
		EndReason:        "left",
	})
	for _, want := range []string{"call summary", "kitten-waffle", "1m35s", "peak participants", "yes"} {
		if !strings.Contains(strings.ToLower(out), want) {
			t.Errorf("summary is missing %q:\n%s", want, out)
		}
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"a very long display name", 10, "a very ..."},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestCallModel_ViewWaitingAlone(t *testing.T) {
	alone := call.CallState{
		Phase:        call.PhaseConnected,
		IsConnected:  true,
		Participants: []call.Participant{{ID: "alice", Name: "Alice", IsLocal: true}},
	}
	m := NewCallModel(&fakeController{}, nil, "s", alone)
	if view := m.View(); !strings.Contains(view, IconWaiting+" Waiting for others") {
		t.Errorf("view with no remote participants is missing the waiting line:\n%s", view)
	}

	m = NewCallModel(&fakeController{}, nil, "s", connectedState())
	if view := m.View(); strings.Contains(view, "Waiting for others") {
		t.Errorf("view with a remote participant shows the waiting line:\n%s", view)
	}
}

func TestParticipantTable_Icons(t *testing.T) {
	out := ParticipantTable(connectedState().Participants)
	for _, want := range []string{IconHost + " Alice (you)", IconPeer + " Bob"} {
		if !strings.Contains(out, want) {
			t.Errorf("table is missing %q:\n%s", want, out)
		}
	}
}

func TestSessionInfoView(t *testing.T) {
	out := SessionInfo{SessionID: "kitten-waffle", Link: "https://warp.example.com/call/kitten-waffle"}.View()
	for _, want := range []string{"kitten-waffle", IconLink + " Join Link", "https://warp.example.com/call/kitten-waffle"} {
		if !strings.Contains(out, want) {
			t.Errorf("session info is missing %q:\n%s", want, out)
		}
	}
	if out := (SessionInfo{SessionID: "s"}).View(); strings.Contains(out, "Join Link") {
		t.Errorf("session info without a link shows one:\n%s", out)
	}
}

func TestFormatError(t *testing.T) {
	out := FormatError(errors.New("relay unreachable"))
	if !strings.Contains(out, IconError) || !strings.Contains(out, "relay unreachable") {
		t.Errorf("FormatError() = %q", out)
	}
	if lines := strings.Count(out, "\n"); lines < 2 {
		t.Errorf("FormatError() is not boxed:\n%s", out)
	}
}
