package call

import (
	"time"

	"github.com/BioHazard786/warpcall/internal/media"
)

// Phase is the lifecycle position of a call.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseJoining
	PhaseConnected
	PhaseLeaving
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseJoining:
		return "joining"
	case PhaseConnected:
		return "connected"
	case PhaseLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// Session identifies one call and the local user in it.
type Session struct {
	SessionID string
	UserID    string
	UserName  string
	IsHost    bool
}

// Participant is one party of the call, local or remote.
type Participant struct {
	ID         string
	Name       string
	IsHost     bool
	IsMuted    bool
	IsVideoOff bool
	IsLocal    bool

	// Stream is set once the first remote track arrives.
	Stream *media.RemoteStream
}

// ChatMessage is one entry of the chat log, in local arrival order.
type ChatMessage struct {
	ID         string
	SenderID   string
	SenderName string
	Message    string
	Timestamp  time.Time
}

// CallState is the read-only projection observers render. Every snapshot is
// a copy.
type CallState struct {
	Phase           Phase
	IsConnected     bool
	IsMuted         bool
	IsVideoOff      bool
	IsScreenSharing bool
	Participants    []Participant
	Messages        []ChatMessage

	// Err is why the call ended on its own, such as losing the relay.
	Err error
}

func (s CallState) clone() CallState {
	out := s
	out.Participants = append([]Participant(nil), s.Participants...)
	out.Messages = append([]ChatMessage(nil), s.Messages...)
	return out
}

// Participant looks up a participant by ID.
func (s CallState) Participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Remote returns the participants other than the local user.
func (s CallState) Remote() []Participant {
	var out []Participant
	for _, p := range s.Participants {
		if !p.IsLocal {
			out = append(out, p)
		}
	}
	return out
}
