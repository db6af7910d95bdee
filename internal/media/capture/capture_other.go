//go:build !linux || !cgo

// Package capture opens real camera, microphone and screen devices through
// pion/mediadevices. Device drivers need Linux (V4L2, ALSA via malgo) and cgo
// encoders; other builds report ErrUnsupported so callers can fall back to
// media.Synthetic.
package capture

import (
	"context"

	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/pion/webrtc/v4"
)

type Acquirer struct{}

func New() (*Acquirer, error) {
	return &Acquirer{}, nil
}

// Available reports whether device capture works on this build.
func Available() bool { return false }

func (a *Acquirer) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (a *Acquirer) GetUserMedia(_ context.Context, c media.Constraints) (*media.Stream, error) {
	return nil, &media.AccessError{Device: media.DeviceLabel(c), Err: media.ErrUnsupported}
}

func (a *Acquirer) GetDisplayMedia(context.Context) (*media.Stream, error) {
	return nil, &media.AccessError{Device: "screen", Err: media.ErrUnsupported}
}
