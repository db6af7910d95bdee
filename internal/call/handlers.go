package call

import (
	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// handleMessage is the inbound signaling switch.
func (c *Call) handleMessage(gen uint64, msg *signaling.Message) {
	if gen != c.gen || c.state.Phase != PhaseConnected {
		return
	}
	if err := msg.ValidateInbound(); err != nil {
		c.log.Warn("dropping invalid signaling message", "error", err)
		return
	}

	switch msg.Type {
	case signaling.MessageTypeUserJoined:
		c.onUserJoined(msg)
	case signaling.MessageTypeExistingParticipants:
		c.onExistingParticipants(msg.Participants)
	case signaling.MessageTypeOffer:
		c.onOffer(msg)
	case signaling.MessageTypeAnswer:
		c.onAnswer(msg)
	case signaling.MessageTypeICECandidate:
		c.onRemoteCandidate(msg)
	case signaling.MessageTypeUserLeft:
		c.onUserLeft(msg)
	case signaling.MessageTypeChatMessage:
		c.onChat(msg)
	}
	c.publish()
}

// onUserJoined makes us the offerer toward a newcomer. The participant is
// recorded before negotiating so a duplicate announcement finds it.
func (c *Call) onUserJoined(msg *signaling.Message) {
	id := msg.UserID
	if id == c.opts.Session.UserID {
		return
	}
	if c.hasParticipant(id) {
		c.log.Debug("duplicate user-joined ignored", "peer", id)
		return
	}

	c.addParticipant(Participant{ID: id, Name: nameOr(msg.UserName, id), IsHost: msg.IsHost})
	c.log.Info("participant joined", "peer", id, "name", msg.UserName)

	link, err := c.createLink(id)
	if err != nil {
		c.abandonPeer(id, err)
		return
	}
	offer, err := link.CreateOffer()
	if err != nil {
		c.abandonPeer(id, err)
		return
	}
	c.send(signaling.NewOffer(id, offer))
}

// abandonPeer forgets a newcomer whose negotiation could not start, so a
// later announcement starts over.
func (c *Call) abandonPeer(id string, err error) {
	c.log.Warn("negotiation failed", "peer", id, "error", err)
	c.closeLink(id)
	c.removeParticipant(id)
}

// onExistingParticipants prepares links for everyone already present. They
// send the offers.
func (c *Call) onExistingParticipants(list []signaling.ParticipantInfo) {
	for _, p := range list {
		if p.UserID == c.opts.Session.UserID || c.hasParticipant(p.UserID) {
			continue
		}
		c.addParticipant(Participant{ID: p.UserID, Name: nameOr(p.UserName, p.UserID), IsHost: p.IsHost})
		if _, err := c.createLink(p.UserID); err != nil {
			c.log.Warn("negotiation failed", "peer", p.UserID, "error", err)
		}
	}
	c.log.Info("existing participants", "count", len(list))
}

func (c *Call) onOffer(msg *signaling.Message) {
	id := msg.FromID
	if id == c.opts.Session.UserID {
		return
	}
	if !c.hasParticipant(id) {
		c.addParticipant(Participant{ID: id, Name: id})
	}

	link, err := c.createLink(id)
	if err != nil {
		c.log.Warn("negotiation failed", "peer", id, "error", err)
		return
	}
	answer, err := link.AcceptOffer(*msg.Offer)
	if err != nil {
		// A fresh link answers the next offer.
		c.log.Warn("negotiation failed", "peer", id, "error", err)
		c.closeLink(id)
		return
	}
	c.send(signaling.NewAnswer(id, answer))
}

func (c *Call) onAnswer(msg *signaling.Message) {
	link, ok := c.links.get(msg.FromID)
	if !ok {
		c.log.Warn("answer from unknown peer dropped", "peer", msg.FromID)
		return
	}
	if err := link.SetAnswer(*msg.Answer); err != nil {
		c.log.Warn("negotiation failed", "peer", msg.FromID, "error", err)
	}
}

func (c *Call) onRemoteCandidate(msg *signaling.Message) {
	link, ok := c.links.get(msg.FromID)
	if !ok {
		c.log.Warn("ICE candidate from unknown peer dropped", "peer", msg.FromID)
		return
	}
	if err := link.AddICECandidate(*msg.Candidate); err != nil {
		c.log.Warn("ICE candidate rejected", "peer", msg.FromID, "error", err)
	}
}

func (c *Call) onUserLeft(msg *signaling.Message) {
	if msg.UserID == c.opts.Session.UserID {
		return
	}
	c.closeLink(msg.UserID)
	if c.removeParticipant(msg.UserID) {
		c.log.Info("participant left", "peer", msg.UserID)
	}
}

// onChat appends a remote message. Our own messages come back from the relay
// and were already appended when sent.
func (c *Call) onChat(msg *signaling.Message) {
	if msg.FromID == c.opts.Session.UserID {
		return
	}
	name := msg.SenderName
	if name == "" {
		if p, ok := c.state.Participant(msg.FromID); ok {
			name = p.Name
		}
	}
	c.appendChat(msg.FromID, nameOr(name, msg.FromID), msg.Message)
}

func (c *Call) sendChat(text string) error {
	if c.state.Phase != PhaseConnected {
		return ErrNotConnected
	}
	s := c.opts.Session
	c.appendChat(s.UserID, s.UserName, text)
	c.publish()

	if err := c.channel.Send(signaling.NewChatMessage(text, s.UserName)); err != nil {
		return newError("send chat message", err)
	}
	return nil
}

func (c *Call) appendChat(senderID, senderName, text string) {
	c.state.Messages = append(c.state.Messages, ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		SenderName: senderName,
		Message:    text,
		Timestamp:  c.opts.Now(),
	})
}

func (c *Call) onRemoteStream(id string, stream *media.RemoteStream) {
	for i := range c.state.Participants {
		if c.state.Participants[i].ID == id {
			c.state.Participants[i].Stream = stream
			c.publish()
			return
		}
	}
}

func (c *Call) onLinkState(id string, state webrtc.PeerConnectionState) {
	c.log.Debug("link state", "peer", id, "state", state.String())
	if state != webrtc.PeerConnectionStateFailed || c.opts.KeepFailedPeers {
		return
	}

	c.log.Warn("peer transport failed, evicting", "peer", id)
	c.closeLink(id)
	c.removeParticipant(id)
	c.publish()
}

// send writes to the channel. A failing channel is reported by the pump, so
// errors are only logged here.
func (c *Call) send(msg *signaling.Message) {
	if c.channel == nil {
		return
	}
	if err := c.channel.Send(msg); err != nil {
		c.log.Warn("signaling send failed", "type", msg.Type, "error", err)
	}
}

func (c *Call) hasParticipant(id string) bool {
	_, ok := c.state.Participant(id)
	return ok
}

func (c *Call) addParticipant(p Participant) {
	if c.hasParticipant(p.ID) {
		return
	}
	c.state.Participants = append(c.state.Participants, p)
}

func (c *Call) removeParticipant(id string) bool {
	for i, p := range c.state.Participants {
		if p.ID == id {
			c.state.Participants = append(c.state.Participants[:i:i], c.state.Participants[i+1:]...)
			return true
		}
	}
	return false
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
