package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Constraints selects which devices GetUserMedia opens.
type Constraints struct {
	Audio  bool
	Video  bool
	Width  int
	Height int
}

// DefaultConstraints asks for camera and microphone at 640x480.
func DefaultConstraints() Constraints {
	return Constraints{Audio: true, Video: true, Width: 640, Height: 480}
}

// Validate rejects constraints that request nothing.
func (c Constraints) Validate() error {
	if !c.Audio && !c.Video {
		return ErrNoConstraints
	}
	return nil
}

// Acquirer obtains local media from the platform.
type Acquirer interface {
	// GetUserMedia opens camera and/or microphone. Failures are *AccessError.
	GetUserMedia(ctx context.Context, c Constraints) (*Stream, error)
	// GetDisplayMedia opens a screen capture video stream.
	GetDisplayMedia(ctx context.Context) (*Stream, error)
}

// CodecRegistrar is implemented by acquirers whose encoders must be known to
// the peer connection media engine.
type CodecRegistrar interface {
	RegisterCodecs(m *webrtc.MediaEngine) error
}

// Stream is a set of local tracks captured together.
type Stream struct {
	id string

	mu     sync.Mutex
	tracks []*Track
}

func NewStream(id string, tracks ...*Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns a copy of the current tracks.
func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// AudioTrack returns the first audio track, or nil.
func (s *Stream) AudioTrack() *Track { return s.track(webrtc.RTPCodecTypeAudio) }

// VideoTrack returns the first video track, or nil.
func (s *Stream) VideoTrack() *Track { return s.track(webrtc.RTPCodecTypeVideo) }

func (s *Stream) track(kind webrtc.RTPCodecType) *Track {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// ReplaceTrack swaps the track of t's kind for t and returns the previous
// one (nil if the stream had none). The previous track is not stopped.
func (s *Stream) ReplaceTrack(t *Track) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.tracks {
		if cur.Kind() == t.Kind() {
			s.tracks[i] = t
			return cur
		}
	}
	s.tracks = append(s.tracks, t)
	return nil
}

// Stop stops every track and returns the joined errors.
func (s *Stream) Stop() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, t := range s.Tracks() {
		if err := t.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoteStream is the media one remote participant sends us.
type RemoteStream struct {
	PeerID string
	ID     string

	mu     sync.Mutex
	kinds  map[webrtc.RTPCodecType]string
	tracks []*webrtc.TrackRemote

	packets atomic.Uint64
	bytes   atomic.Uint64
}

func NewRemoteStream(peerID, id string) *RemoteStream {
	return &RemoteStream{
		PeerID: peerID,
		ID:     id,
		kinds:  make(map[webrtc.RTPCodecType]string),
	}
}

// AddTrack records an inbound track.
func (r *RemoteStream) AddTrack(t *webrtc.TrackRemote) {
	r.mu.Lock()
	r.tracks = append(r.tracks, t)
	r.mu.Unlock()
	r.addKind(t.Kind(), t.ID())
}

func (r *RemoteStream) addKind(kind webrtc.RTPCodecType, trackID string) {
	r.mu.Lock()
	r.kinds[kind] = trackID
	r.mu.Unlock()
}

// Tracks returns the inbound tracks received so far.
func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(r.tracks))
	copy(out, r.tracks)
	return out
}

// HasKind reports whether a track of kind has arrived.
func (r *RemoteStream) HasKind(kind webrtc.RTPCodecType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.kinds[kind]
	return ok
}

// Drain reads t until it closes, counting what arrives. Unread tracks would
// back up pion's receive buffers.
func (r *RemoteStream) Drain(t *webrtc.TrackRemote) {
	for {
		pkt, _, err := t.ReadRTP()
		if err != nil {
			return
		}
		r.record(len(pkt.Payload))
	}
}

func (r *RemoteStream) record(n int) {
	r.packets.Add(1)
	r.bytes.Add(uint64(n))
}

// Stats returns received packet and payload byte counts.
func (r *RemoteStream) Stats() (packets, bytes uint64) {
	return r.packets.Load(), r.bytes.Load()
}
