package signaling

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/pion/webrtc/v4"
)

// Message is the JSON envelope for every relay message, in both directions.
// Only the fields that belong to Type are set.
type Message struct {
	Type string `json:"type"`

	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	TargetID  string                     `json:"targetId,omitempty"`
	FromID    string                     `json:"fromId,omitempty"`

	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	IsHost   bool   `json:"isHost,omitempty"`

	Message    string `json:"message,omitempty"`
	SenderName string `json:"senderName,omitempty"`

	Participants []ParticipantInfo `json:"participants,omitempty"`
}

// ParticipantInfo is one entry of an existing-participants message.
type ParticipantInfo struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsHost   bool   `json:"isHost,omitempty"`
}

// Message type constants.
const (
	// Both directions (client sends targetId, relay delivers fromId).
	MessageTypeOffer        = "offer"
	MessageTypeAnswer       = "answer"
	MessageTypeICECandidate = "ice-candidate"
	MessageTypeChatMessage  = "chat-message"

	// Relay to client only.
	MessageTypeUserJoined           = "user-joined"
	MessageTypeUserLeft             = "user-left"
	MessageTypeExistingParticipants = "existing-participants"
)

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
)

// NewOffer addresses a local offer to targetID.
func NewOffer(targetID string, offer webrtc.SessionDescription) *Message {
	return &Message{Type: MessageTypeOffer, Offer: &offer, TargetID: targetID}
}

// NewAnswer addresses a local answer to targetID.
func NewAnswer(targetID string, answer webrtc.SessionDescription) *Message {
	return &Message{Type: MessageTypeAnswer, Answer: &answer, TargetID: targetID}
}

// NewICECandidate addresses a trickled candidate to targetID.
func NewICECandidate(targetID string, candidate webrtc.ICECandidateInit) *Message {
	return &Message{Type: MessageTypeICECandidate, Candidate: &candidate, TargetID: targetID}
}

// NewChatMessage builds an outbound chat message.
func NewChatMessage(text, senderName string) *Message {
	return &Message{Type: MessageTypeChatMessage, Message: text, SenderName: senderName}
}

// NewUserJoined announces a participant to the rest of a session.
func NewUserJoined(p ParticipantInfo) *Message {
	return &Message{Type: MessageTypeUserJoined, UserID: p.UserID, UserName: p.UserName, IsHost: p.IsHost}
}

// NewUserLeft announces a departure.
func NewUserLeft(userID, userName string) *Message {
	return &Message{Type: MessageTypeUserLeft, UserID: userID, UserName: userName}
}

// NewExistingParticipants lists who was already in the session.
func NewExistingParticipants(list []ParticipantInfo) *Message {
	return &Message{Type: MessageTypeExistingParticipants, Participants: list}
}

// ValidateInbound checks a relay-to-client message for its required fields.
func (m *Message) ValidateInbound() error {
	switch m.Type {
	case MessageTypeUserJoined, MessageTypeUserLeft:
		return require(m.Type, "userId", m.UserID != "")
	case MessageTypeOffer:
		return require(m.Type, "offer/fromId", m.Offer != nil && m.FromID != "")
	case MessageTypeAnswer:
		return require(m.Type, "answer/fromId", m.Answer != nil && m.FromID != "")
	case MessageTypeICECandidate:
		return require(m.Type, "candidate/fromId", m.Candidate != nil && m.FromID != "")
	case MessageTypeChatMessage:
		return require(m.Type, "fromId", m.FromID != "")
	case MessageTypeExistingParticipants:
		for i, p := range m.Participants {
			if p.UserID == "" {
				return fmt.Errorf("%s: participants[%d].userId: %w", m.Type, i, ErrMissingField)
			}
		}
		return nil
	default:
		return fmt.Errorf("%q: %w", m.Type, ErrUnknownType)
	}
}

// ValidateOutbound checks a client-to-relay message for its required fields.
func (m *Message) ValidateOutbound() error {
	switch m.Type {
	case MessageTypeOffer:
		return require(m.Type, "offer/targetId", m.Offer != nil && m.TargetID != "")
	case MessageTypeAnswer:
		return require(m.Type, "answer/targetId", m.Answer != nil && m.TargetID != "")
	case MessageTypeICECandidate:
		return require(m.Type, "candidate/targetId", m.Candidate != nil && m.TargetID != "")
	case MessageTypeChatMessage:
		return require(m.Type, "message", m.Message != "")
	default:
		return fmt.Errorf("%q: %w", m.Type, ErrUnknownType)
	}
}

func require(msgType, field string, ok bool) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%s: %s: %w", msgType, field, ErrMissingField)
}

// Address identifies the local user within a session. The relay learns who
// we are from these connection parameters alone.
type Address struct {
	SessionID string
	UserID    string
	UserName  string
	IsHost    bool
}

// URL appends the address as query parameters to the relay endpoint.
func (a Address) URL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if a.SessionID == "" || a.UserID == "" {
		return "", fmt.Errorf("session and user id are required: %w", ErrMissingField)
	}

	q := u.Query()
	q.Set("sessionId", a.SessionID)
	q.Set("userId", a.UserID)
	q.Set("userName", a.UserName)
	if a.IsHost {
		q.Set("isHost", strconv.FormatBool(true))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseAddress is the relay-side inverse of URL.
func ParseAddress(q url.Values) (Address, error) {
	a := Address{
		SessionID: q.Get("sessionId"),
		UserID:    q.Get("userId"),
		UserName:  q.Get("userName"),
	}
	if a.SessionID == "" || a.UserID == "" {
		return Address{}, fmt.Errorf("sessionId and userId are required: %w", ErrMissingField)
	}
	if a.UserName == "" {
		a.UserName = a.UserID
	}
	a.IsHost, _ = strconv.ParseBool(q.Get("isHost"))
	return a, nil
}
