package media

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Synthetic is a device-free Acquirer. Its tracks negotiate like real ones
// but carry no samples; headless participants and tests use it.
type Synthetic struct {
	// DenyUserMedia makes GetUserMedia fail with ErrPermissionDenied.
	DenyUserMedia atomic.Bool
	// DenyDisplayMedia makes GetDisplayMedia fail with ErrPermissionDenied.
	DenyDisplayMedia atomic.Bool

	live atomic.Int64
}

func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

func (s *Synthetic) GetUserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, &AccessError{Device: DeviceLabel(c), Err: err}
	}
	if s.DenyUserMedia.Load() {
		return nil, &AccessError{Device: DeviceLabel(c), Err: ErrPermissionDenied}
	}

	streamID := "synthetic-" + uuid.NewString()
	var tracks []*Track

	if c.Audio {
		t, err := s.newTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", streamID, SourceMicrophone)
		if err != nil {
			return nil, &AccessError{Device: "microphone", Err: err}
		}
		tracks = append(tracks, t)
	}
	if c.Video {
		t, err := s.newTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", streamID, SourceCamera)
		if err != nil {
			NewStream(streamID, tracks...).Stop()
			return nil, &AccessError{Device: "camera", Err: err}
		}
		tracks = append(tracks, t)
	}

	return NewStream(streamID, tracks...), nil
}

func (s *Synthetic) GetDisplayMedia(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.DenyDisplayMedia.Load() {
		return nil, &AccessError{Device: "screen", Err: ErrPermissionDenied}
	}

	streamID := "synthetic-screen-" + uuid.NewString()
	t, err := s.newTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "screen", streamID, SourceScreen)
	if err != nil {
		return nil, &AccessError{Device: "screen", Err: err}
	}
	return NewStream(streamID, t), nil
}

// Live returns how many tracks were handed out and not yet stopped.
func (s *Synthetic) Live() int {
	return int(s.live.Load())
}

func (s *Synthetic) newTrack(codec webrtc.RTPCodecCapability, id, streamID string, source Source) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, fmt.Sprintf("%s-%s", id, uuid.NewString()[:8]), streamID)
	if err != nil {
		return nil, err
	}

	s.live.Add(1)
	return NewTrack(local, source, func() error {
		s.live.Add(-1)
		return nil
	}), nil
}
