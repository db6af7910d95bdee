// Package relay is the signaling relay: it admits participants into sessions
// over websockets, announces joins and leaves, and forwards negotiation and
// chat messages between them.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/BioHazard786/warpcall/internal/signaling"
)

const presenceTimeout = 2 * time.Second

type envelope struct {
	from *Client
	msg  *signaling.Message
}

// Hub is the central brain of the relay. A single goroutine (Run) owns every
// session and client; connections talk to it over channels.
type Hub struct {
	sessions map[string]*session
	closed   map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan envelope
	queries    chan func()
	done       chan struct{}

	presence Presence
	log      *slog.Logger
}

// NewHub creates a hub recording membership in presence.
func NewHub(presence Presence, log *slog.Logger) *Hub {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		sessions:   make(map[string]*session),
		closed:     make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan envelope),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		presence:   presence,
		log:        log.With("component", "relay"),
	}
}

// Run processes hub events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.onRegister(ctx, c)
		case c := <-h.unregister:
			h.onUnregister(ctx, c)
		case env := <-h.inbound:
			h.onMessage(env.from, env.msg)
		case q := <-h.queries:
			q()
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// route hands msg to the hub. It reports false once the hub has stopped.
func (h *Hub) route(c *Client, msg *signaling.Message) bool {
	select {
	case h.inbound <- envelope{from: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// query runs fn on the hub goroutine.
func (h *Hub) query(fn func()) bool {
	ran := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(ran) }:
		<-ran
		return true
	case <-h.done:
		return false
	}
}

// HasSession reports whether anyone is connected to sessionID.
func (h *Hub) HasSession(sessionID string) bool {
	var ok bool
	h.query(func() { _, ok = h.sessions[sessionID] })
	return ok
}

// Participants lists who is connected to sessionID, in join order.
func (h *Hub) Participants(sessionID string) []signaling.ParticipantInfo {
	var out []signaling.ParticipantInfo
	h.query(func() {
		if s, ok := h.sessions[sessionID]; ok {
			out = s.infos("")
		}
	})
	return out
}

// onRegister tells the newcomer who is already present and announces it to
// them. A second connection for the same user id replaces the first, which
// the others see as a leave followed by a join.
func (h *Hub) onRegister(ctx context.Context, c *Client) {
	s, ok := h.sessions[c.SessionID]
	if !ok {
		s = newSession(c.SessionID)
		h.sessions[c.SessionID] = s
		h.log.Info("session opened", "session", s.id)
	}

	others := s.others(c.Info.UserID)
	if prev := s.add(c); prev != nil {
		// The others must drop their link to the old connection before
		// offering to the new one.
		c.log.Info("connection replaced by a newer one")
		h.closeSend(prev)
		for _, other := range others {
			h.deliver(other, signaling.NewUserLeft(prev.Info.UserID, prev.Info.UserName))
		}
	}
	for _, other := range others {
		h.deliver(other, signaling.NewUserJoined(c.Info))
	}
	h.deliver(c, signaling.NewExistingParticipants(s.infos(c.Info.UserID)))
	c.log.Info("participant joined", "participants", len(s.members))

	pctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	if err := h.presence.Join(pctx, c.SessionID, c.Info); err != nil {
		c.log.Warn("presence join failed", "error", err)
	}
}

func (h *Hub) onUnregister(ctx context.Context, c *Client) {
	h.closeSend(c)
	delete(h.closed, c)

	s, ok := h.sessions[c.SessionID]
	if !ok || !s.remove(c) {
		return
	}
	for _, other := range s.all() {
		h.deliver(other, signaling.NewUserLeft(c.Info.UserID, c.Info.UserName))
	}
	c.log.Info("participant left", "participants", len(s.members))

	if s.empty() {
		delete(h.sessions, s.id)
		h.log.Info("session closed", "session", s.id)
	}

	pctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	if err := h.presence.Leave(pctx, c.SessionID, c.Info.UserID); err != nil {
		c.log.Warn("presence leave failed", "error", err)
	}
}

// onMessage forwards negotiation messages to their target and broadcasts
// chat to the whole session, sender included.
func (h *Hub) onMessage(from *Client, msg *signaling.Message) {
	s, ok := h.sessions[from.SessionID]
	if !ok || h.closed[from] {
		return
	}
	if cur, _ := s.get(from.Info.UserID); cur != from {
		return
	}

	switch msg.Type {
	case signaling.MessageTypeOffer, signaling.MessageTypeAnswer, signaling.MessageTypeICECandidate:
		target, ok := s.get(msg.TargetID)
		if !ok {
			from.log.Warn("dropping message for unknown target", "type", msg.Type, "target", msg.TargetID)
			return
		}
		out := *msg
		out.TargetID = ""
		out.FromID = from.Info.UserID
		h.deliver(target, &out)

	case signaling.MessageTypeChatMessage:
		out := *msg
		out.FromID = from.Info.UserID
		if out.SenderName == "" {
			out.SenderName = from.Info.UserName
		}
		for _, c := range s.all() {
			h.deliver(c, &out)
		}

	default:
		from.log.Warn("unknown message type", "type", msg.Type)
	}
}

// deliver queues msg for c. A client too slow to keep up is disconnected;
// its read pump then unregisters it.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	if h.closed[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("send buffer full, disconnecting")
		h.closeSend(c)
	}
}

func (h *Hub) closeSend(c *Client) {
	if h.closed[c] {
		return
	}
	h.closed[c] = true
	close(c.send)
}

func (h *Hub) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	for id, s := range h.sessions {
		for _, c := range s.all() {
			h.closeSend(c)
			if err := h.presence.Leave(ctx, id, c.Info.UserID); err != nil {
				h.log.Warn("presence leave failed", "session", id, "error", err)
			}
		}
		delete(h.sessions, id)
	}
	h.log.Info("relay hub stopped")
}
