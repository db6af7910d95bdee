//go:build linux && cgo

// Package capture opens real camera, microphone and screen devices through
// pion/mediadevices.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

const videoBitRate = 1_500_000

// Acquirer captures from local devices with VP8 video and Opus audio.
type Acquirer struct {
	selector *mediadevices.CodecSelector
	log      *slog.Logger
}

// New prepares the encoders. No device is opened until GetUserMedia.
func New() (*Acquirer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = videoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &Acquirer{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		log: slog.With("component", "capture"),
	}, nil
}

// Available reports whether device capture works on this build.
func Available() bool { return true }

// RegisterCodecs makes the peer connection media engine match our encoders.
func (a *Acquirer) RegisterCodecs(m *webrtc.MediaEngine) error {
	a.selector.Populate(m)
	return nil
}

func (a *Acquirer) GetUserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if err := c.Validate(); err != nil {
		return nil, &media.AccessError{Device: media.DeviceLabel(c), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, d := range mediadevices.EnumerateDevices() {
		a.log.Debug("media device", "kind", d.Kind, "label", d.Label)
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: a.selector}
	if c.Video {
		width, height := c.Width, c.Height
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some webcams produce frames that poison the VP8 encoder.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			if width > 0 {
				mc.Width = prop.IntRanged{Max: width}
			}
			if height > 0 {
				mc.Height = prop.IntRanged{Max: height}
			}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, &media.AccessError{Device: media.DeviceLabel(c), Err: classify(err)}
	}

	stream := a.wrap(ms)
	if c.Video && stream.VideoTrack() == nil || c.Audio && stream.AudioTrack() == nil {
		stream.Stop()
		return nil, &media.AccessError{Device: media.DeviceLabel(c), Err: media.ErrDeviceNotFound}
	}

	a.log.Info("local media captured", "stream", stream.ID(), "tracks", len(stream.Tracks()))
	return stream, nil
}

func (a *Acquirer) GetDisplayMedia(ctx context.Context) (*media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Codec: a.selector,
		Video: func(*mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		return nil, &media.AccessError{Device: "screen", Err: classify(err)}
	}

	stream := a.wrap(ms, media.SourceScreen)
	if stream.VideoTrack() == nil {
		stream.Stop()
		return nil, &media.AccessError{Device: "screen", Err: media.ErrDeviceNotFound}
	}
	return stream, nil
}

// wrap converts a mediadevices stream. Video tracks default to the camera
// source unless override is given.
func (a *Acquirer) wrap(ms mediadevices.MediaStream, override ...media.Source) *media.Stream {
	var tracks []*media.Track
	var streamID string

	for _, t := range ms.GetTracks() {
		streamID = t.StreamID()

		source := media.SourceCamera
		if t.Kind() == webrtc.RTPCodecTypeAudio {
			source = media.SourceMicrophone
		} else if len(override) > 0 {
			source = override[0]
		}

		mt := media.NewTrack(t, source, t.Close)
		t.OnEnded(func(err error) {
			if err != nil {
				a.log.Warn("local track ended", "source", source, "error", err)
			}
			mt.End(err)
		})
		tracks = append(tracks, mt)
	}

	return media.NewStream(streamID, tracks...)
}

// classify maps driver errors onto the media sentinels.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "denied"):
		return fmt.Errorf("%w: %v", media.ErrPermissionDenied, err)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no "):
		return fmt.Errorf("%w: %v", media.ErrDeviceNotFound, err)
	}
	return errors.Join(media.ErrDeviceNotFound, err)
}
