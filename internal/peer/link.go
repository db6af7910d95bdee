// Package peer wraps pion peer connections as one negotiated link per remote
// participant.
package peer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/pion/webrtc/v4"
)

// maxPendingCandidates bounds the queue of candidates that arrive before the
// remote description.
const maxPendingCandidates = 64

// Events are the link callbacks. They run on pion goroutines and must not
// block; nil fields are skipped.
type Events struct {
	OnICECandidate func(webrtc.ICECandidateInit)
	OnTrack        func(*media.RemoteStream)
	OnStateChange  func(webrtc.PeerConnectionState)
}

// Link is one negotiated transport to one remote participant.
type Link interface {
	PeerID() string
	CreateOffer() (webrtc.SessionDescription, error)
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	SetAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	ReplaceTrack(kind webrtc.RTPCodecType, t webrtc.TrackLocal) error
	Track(kind webrtc.RTPCodecType) webrtc.TrackLocal
	Close() error
}

// Factory creates links bound to the given local tracks.
type Factory interface {
	NewLink(peerID string, tracks []webrtc.TrackLocal, ev Events) (Link, error)
}

type pionLink struct {
	peerID  string
	pc      *webrtc.PeerConnection
	senders map[webrtc.RTPCodecType]*webrtc.RTPSender
	log     *slog.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	remote    *media.RemoteStream
	closed    bool
}

func (l *pionLink) PeerID() string { return l.peerID }

func (l *pionLink) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create offer", l.peerID, err)
	}

	if err = l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", l.peerID, err)
	}

	return *l.pc.LocalDescription(), nil
}

func (l *pionLink) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.setRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create answer", l.peerID, err)
	}

	if err = l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", l.peerID, err)
	}

	return *l.pc.LocalDescription(), nil
}

func (l *pionLink) SetAnswer(answer webrtc.SessionDescription) error {
	return l.setRemote(answer)
}

// setRemote applies the remote description and releases the candidate queue,
// whatever happens to the rest of the negotiation.
func (l *pionLink) setRemote(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return NewError("set remote description", l.peerID, err)
	}
	l.flushCandidates()
	return nil
}

// AddICECandidate applies c, or queues it until the remote description is set.
func (l *pionLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return NewError("add ICE candidate", l.peerID, ErrLinkClosed)
	}
	if !l.remoteSet {
		defer l.mu.Unlock()
		if len(l.pending) >= maxPendingCandidates {
			return NewError("queue ICE candidate", l.peerID, ErrCandidateQueueFull)
		}
		l.pending = append(l.pending, c)
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(c); err != nil {
		return NewError("add ICE candidate", l.peerID, err)
	}
	return nil
}

func (l *pionLink) flushCandidates() {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.log.Warn("queued ICE candidate rejected", "error", err)
		}
	}
	if len(pending) > 0 {
		l.log.Debug("flushed queued ICE candidates", "count", len(pending))
	}
}

// ReplaceTrack swaps the outbound track of kind without renegotiation.
func (l *pionLink) ReplaceTrack(kind webrtc.RTPCodecType, t webrtc.TrackLocal) error {
	sender, ok := l.senders[kind]
	if !ok {
		return NewError("replace track", l.peerID, ErrNoSender)
	}
	if err := sender.ReplaceTrack(t); err != nil {
		return NewError("replace track", l.peerID, err)
	}
	return nil
}

func (l *pionLink) Track(kind webrtc.RTPCodecType) webrtc.TrackLocal {
	sender, ok := l.senders[kind]
	if !ok {
		return nil
	}
	return sender.Track()
}

func (l *pionLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.pending = nil
	l.mu.Unlock()

	if err := l.pc.Close(); err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
		return NewError("close", l.peerID, err)
	}
	l.log.Debug("link closed")
	return nil
}

func (l *pionLink) handleTrack(tr *webrtc.TrackRemote, ev Events) {
	l.mu.Lock()
	if l.remote == nil {
		l.remote = media.NewRemoteStream(l.peerID, tr.StreamID())
	}
	remote := l.remote
	l.mu.Unlock()

	remote.AddTrack(tr)
	l.log.Info("remote track", "kind", tr.Kind(), "codec", tr.Codec().MimeType)

	if ev.OnTrack != nil {
		ev.OnTrack(remote)
	}
	go remote.Drain(tr)
}

// drainRTCP reads sender reports so interceptors such as NACK keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
