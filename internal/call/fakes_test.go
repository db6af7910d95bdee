package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// fakeChannel is an in-memory signaling channel. Inbound delivery is
// unbuffered so the test knows when the call has taken a message.
type fakeChannel struct {
	in chan *signaling.Message

	mu       sync.Mutex
	sent     []*signaling.Message
	closed   bool
	sendErr  error
	endOnce  sync.Once
	closeErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{in: make(chan *signaling.Message)}
}

func (f *fakeChannel) Send(msg *signaling.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return signaling.ErrClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Incoming() <-chan *signaling.Message { return f.in }

func (f *fakeChannel) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeErr
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.end(nil)
	return nil
}

// drop simulates the relay going away.
func (f *fakeChannel) drop(err error) {
	f.mu.Lock()
	f.closeErr = err
	f.closed = true
	f.mu.Unlock()
	f.end(err)
}

func (f *fakeChannel) end(error) {
	f.endOnce.Do(func() { close(f.in) })
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) sentOfType(msgType string) []*signaling.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*signaling.Message
	for _, m := range f.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type fakeLink struct {
	id     string
	events peer.Events

	mu         sync.Mutex
	tracks     map[webrtc.RTPCodecType]webrtc.TrackLocal
	offers     int
	answers    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     int
	replaceErr error
}

func (l *fakeLink) PeerID() string { return l.id }

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-to-" + l.id}, nil
}

func (l *fakeLink) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + l.id}, nil
}

func (l *fakeLink) SetAnswer(answer webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers = append(l.answers, answer)
	return nil
}

func (l *fakeLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, c)
	return nil
}

func (l *fakeLink) ReplaceTrack(kind webrtc.RTPCodecType, t webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tracks[kind]; !ok {
		return peer.ErrNoSender
	}
	if l.replaceErr != nil {
		return l.replaceErr
	}
	l.tracks[kind] = t
	return nil
}

func (l *fakeLink) Track(kind webrtc.RTPCodecType) webrtc.TrackLocal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracks[kind]
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

func (l *fakeLink) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) offerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offers
}

type fakeFactory struct {
	mu    sync.Mutex
	links map[string][]*fakeLink
	err   error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{links: make(map[string][]*fakeLink)}
}

func (f *fakeFactory) NewLink(peerID string, tracks []webrtc.TrackLocal, ev peer.Events) (peer.Link, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	l := &fakeLink{id: peerID, events: ev, tracks: make(map[webrtc.RTPCodecType]webrtc.TrackLocal)}
	for _, t := range tracks {
		l.tracks[t.Kind()] = t
	}
	f.mu.Lock()
	f.links[peerID] = append(f.links[peerID], l)
	f.mu.Unlock()
	return l, nil
}

func (f *fakeFactory) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFactory) created(peerID string) []*fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeLink(nil), f.links[peerID]...)
}

// last returns the most recent link for peerID, failing the test if none.
func (f *fakeFactory) last(t *testing.T, peerID string) *fakeLink {
	t.Helper()
	links := f.created(peerID)
	if len(links) == 0 {
		t.Fatalf("no link created for %s", peerID)
	}
	return links[len(links)-1]
}

// harness wires a Call to fakes.
type harness struct {
	t       *testing.T
	call    *Call
	media   *media.Synthetic
	factory *fakeFactory
	channel *fakeChannel

	dialMu   sync.Mutex
	dialErr  error
	dialGate chan struct{}
	dials    int
}

const self = "alice"

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		media:   media.NewSynthetic(),
		factory: newFakeFactory(),
		channel: newFakeChannel(),
	}

	c, err := New(Options{
		Session:     Session{SessionID: "s1", UserID: self, UserName: "Alice", IsHost: true},
		Constraints: media.DefaultConstraints(),
		Acquirer:    h.media,
		Factory:     h.factory,
		Dial:        h.dial,
		Now:         func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.call = c
	t.Cleanup(func() { c.Close() })
	return h
}

func (h *harness) dial(ctx context.Context, addr signaling.Address) (Channel, error) {
	h.dialMu.Lock()
	h.dials++
	gate, err := h.dialGate, h.dialErr
	h.dialMu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return h.channel, nil
}

func (h *harness) dialCount() int {
	h.dialMu.Lock()
	defer h.dialMu.Unlock()
	return h.dials
}

func (h *harness) join() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.call.Join(ctx); err != nil {
		h.t.Fatalf("Join() error = %v", err)
	}
}

// deliver hands msg to the call and waits until it has been handled. The
// trailing user-left for an unknown id is a no-op that proves the pump has
// queued msg before any later command.
func (h *harness) deliver(msg *signaling.Message) CallState {
	h.t.Helper()
	for _, m := range []*signaling.Message{msg, signaling.NewUserLeft("barrier", "")} {
		select {
		case h.channel.in <- m:
		case <-time.After(5 * time.Second):
			h.t.Fatalf("call did not take %s", m.Type)
		}
	}
	return h.call.State()
}

func (h *harness) userJoined(id, name string) CallState {
	h.t.Helper()
	return h.deliver(signaling.NewUserJoined(signaling.ParticipantInfo{UserID: id, UserName: name}))
}

func participantCount(s CallState, id string) int {
	n := 0
	for _, p := range s.Participants {
		if p.ID == id {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
