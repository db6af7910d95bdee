// Package media owns local capture streams and the remote streams received
// from peers. Local tracks wrap a pion TrackLocal so they can be muted without
// renegotiation and stopped exactly once.
package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Source identifies what produces a local track.
type Source int

const (
	SourceCamera Source = iota
	SourceMicrophone
	SourceScreen
)

func (s Source) String() string {
	switch s {
	case SourceCamera:
		return "camera"
	case SourceMicrophone:
		return "microphone"
	case SourceScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// Track is a local media track. It satisfies webrtc.TrackLocal, so the same
// value can be handed to every peer connection; disabling it silences the
// outbound RTP on all of them at once.
type Track struct {
	local  webrtc.TrackLocal
	source Source
	stopFn func() error

	enabled atomic.Bool

	mu       sync.Mutex
	bindings map[string]*gatedContext
	stopped  bool
	ended    bool
	onEnded  []func(error)
}

// NewTrack wraps local. stop releases the underlying device and may be nil.
func NewTrack(local webrtc.TrackLocal, source Source, stop func() error) *Track {
	t := &Track{
		local:    local,
		source:   source,
		stopFn:   stop,
		bindings: make(map[string]*gatedContext),
	}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string                { return t.local.ID() }
func (t *Track) RID() string               { return t.local.RID() }
func (t *Track) StreamID() string          { return t.local.StreamID() }
func (t *Track) Kind() webrtc.RTPCodecType { return t.local.Kind() }

// Source returns what produces the track.
func (t *Track) Source() Source { return t.source }

// Enabled reports whether the track currently sends media.
func (t *Track) Enabled() bool { return t.enabled.Load() }

// SetEnabled gates outbound media without touching the negotiated sender.
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// Bind is called by pion when the track is attached to a sender.
func (t *Track) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	gc := &gatedContext{
		TrackLocalContext: ctx,
		writer:            &gatedWriter{next: ctx.WriteStream(), enabled: &t.enabled},
	}

	params, err := t.local.Bind(gc)
	if err != nil {
		return params, err
	}

	t.mu.Lock()
	t.bindings[ctx.ID()] = gc
	t.mu.Unlock()

	return params, nil
}

// Unbind is called by pion when the sender stops using the track.
func (t *Track) Unbind(ctx webrtc.TrackLocalContext) error {
	t.mu.Lock()
	gc, ok := t.bindings[ctx.ID()]
	delete(t.bindings, ctx.ID())
	t.mu.Unlock()

	if !ok {
		return t.local.Unbind(ctx)
	}
	return t.local.Unbind(gc)
}

// OnEnded registers fn to run when the source ends on its own, e.g. the user
// stops a screen share from the platform's picker. Stop does not trigger it.
func (t *Track) OnEnded(fn func(error)) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// End reports that the source ended. Handlers run at most once.
func (t *Track) End(err error) {
	t.mu.Lock()
	if t.stopped || t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	handlers := make([]func(error), len(t.onEnded))
	copy(handlers, t.onEnded)
	t.mu.Unlock()

	for _, fn := range handlers {
		fn(err)
	}
}

// Stop releases the device. Idempotent.
func (t *Track) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	if t.stopFn != nil {
		return t.stopFn()
	}
	return nil
}

// Stopped reports whether Stop was called.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// gatedContext hands the wrapped track a writer that drops packets while the
// track is disabled.
type gatedContext struct {
	webrtc.TrackLocalContext
	writer *gatedWriter
}

func (g *gatedContext) WriteStream() webrtc.TrackLocalWriter { return g.writer }

type gatedWriter struct {
	next    webrtc.TrackLocalWriter
	enabled *atomic.Bool
}

func (w *gatedWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	if !w.enabled.Load() {
		return header.MarshalSize() + len(payload), nil
	}
	return w.next.WriteRTP(header, payload)
}

func (w *gatedWriter) Write(b []byte) (int, error) {
	if !w.enabled.Load() {
		return len(b), nil
	}
	return w.next.Write(b)
}
