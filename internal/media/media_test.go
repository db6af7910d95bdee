package media

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type countingWriter struct {
	rtpWrites int
	rawWrites int
}

func (w *countingWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	w.rtpWrites++
	return len(payload), nil
}

func (w *countingWriter) Write(b []byte) (int, error) {
	w.rawWrites++
	return len(b), nil
}

func TestGatedWriter(t *testing.T) {
	var enabled atomic.Bool
	enabled.Store(true)
	next := &countingWriter{}
	w := &gatedWriter{next: next, enabled: &enabled}

	if _, err := w.WriteRTP(&rtp.Header{}, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteRTP() error = %v", err)
	}
	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	enabled.Store(false)
	n, err := w.WriteRTP(&rtp.Header{}, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("WriteRTP() while disabled error = %v", err)
	}
	if n == 0 {
		t.Error("WriteRTP() while disabled should report the packet as consumed")
	}
	w.Write([]byte{1})

	if next.rtpWrites != 1 || next.rawWrites != 1 {
		t.Errorf("writes reached the sender while disabled: rtp=%d raw=%d", next.rtpWrites, next.rawWrites)
	}
}

func TestTrack_EnabledToggle(t *testing.T) {
	s := NewSynthetic()
	stream, err := s.GetUserMedia(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("GetUserMedia() error = %v", err)
	}
	defer stream.Stop()

	audio := stream.AudioTrack()
	if audio == nil {
		t.Fatal("AudioTrack() = nil")
	}
	if !audio.Enabled() {
		t.Fatal("new track should start enabled")
	}
	audio.SetEnabled(false)
	audio.SetEnabled(!audio.Enabled())
	if !audio.Enabled() {
		t.Error("double toggle should restore the enabled flag")
	}
	if audio.Kind() != webrtc.RTPCodecTypeAudio || audio.Source() != SourceMicrophone {
		t.Errorf("audio track kind=%v source=%v", audio.Kind(), audio.Source())
	}
}

func TestTrack_StopIdempotentAndEnded(t *testing.T) {
	stops := 0
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "v", "s")
	if err != nil {
		t.Fatal(err)
	}
	tr := NewTrack(local, SourceScreen, func() error { stops++; return nil })

	ended := 0
	tr.OnEnded(func(error) { ended++ })
	tr.End(nil)
	tr.End(nil)
	if ended != 1 {
		t.Errorf("OnEnded fired %d times, want 1", ended)
	}

	tr.Stop()
	tr.Stop()
	if stops != 1 {
		t.Errorf("stop func ran %d times, want 1", stops)
	}
	if !tr.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

func TestTrack_StopSuppressesEnded(t *testing.T) {
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "v", "s")
	if err != nil {
		t.Fatal(err)
	}
	tr := NewTrack(local, SourceScreen, nil)
	fired := false
	tr.OnEnded(func(error) { fired = true })
	tr.Stop()
	tr.End(nil)
	if fired {
		t.Error("End after Stop should not fire OnEnded")
	}
}

func TestStream_ReplaceTrack(t *testing.T) {
	s := NewSynthetic()
	stream, err := s.GetUserMedia(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatal(err)
	}
	screen, err := s.GetDisplayMedia(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	oldVideo := stream.VideoTrack()
	prev := stream.ReplaceTrack(screen.VideoTrack())
	if prev != oldVideo {
		t.Error("ReplaceTrack() should return the previous video track")
	}
	if stream.VideoTrack().Source() != SourceScreen {
		t.Error("video track should now be screen-sourced")
	}
	if len(stream.Tracks()) != 2 {
		t.Errorf("len(Tracks()) = %d, want 2", len(stream.Tracks()))
	}

	oldVideo.Stop()
	stream.Stop()
	if s.Live() != 0 {
		t.Errorf("Live() = %d after stopping everything, want 0", s.Live())
	}
}

func TestSynthetic_Constraints(t *testing.T) {
	s := NewSynthetic()

	tests := []struct {
		name      string
		c         Constraints
		wantAudio bool
		wantVideo bool
	}{
		{"both", Constraints{Audio: true, Video: true}, true, true},
		{"audio only", Constraints{Audio: true}, true, false},
		{"video only", Constraints{Video: true}, false, true},
	}

	for _, tt := range tests {
		stream, err := s.GetUserMedia(context.Background(), tt.c)
		if err != nil {
			t.Fatalf("%s: GetUserMedia() error = %v", tt.name, err)
		}
		if (stream.AudioTrack() != nil) != tt.wantAudio {
			t.Errorf("%s: audio present = %v, want %v", tt.name, stream.AudioTrack() != nil, tt.wantAudio)
		}
		if (stream.VideoTrack() != nil) != tt.wantVideo {
			t.Errorf("%s: video present = %v, want %v", tt.name, stream.VideoTrack() != nil, tt.wantVideo)
		}
		stream.Stop()
	}
}

func TestSynthetic_Sources(t *testing.T) {
	s := NewSynthetic()

	user, err := s.GetUserMedia(context.Background(), Constraints{Audio: true, Video: true})
	if err != nil {
		t.Fatal(err)
	}
	defer user.Stop()
	screen, err := s.GetDisplayMedia(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer screen.Stop()

	tests := []struct {
		name  string
		track *Track
		want  Source
	}{
		{"microphone", user.AudioTrack(), SourceMicrophone},
		{"camera", user.VideoTrack(), SourceCamera},
		{"screen", screen.VideoTrack(), SourceScreen},
	}
	for _, tt := range tests {
		if got := tt.track.Source(); got != tt.want {
			t.Errorf("%s track Source() = %v, want %v", tt.name, got, tt.want)
		}
		if got := tt.track.Source().String(); got != tt.name {
			t.Errorf("%s track Source().String() = %q", tt.name, got)
		}
	}
}

func TestSynthetic_Denied(t *testing.T) {
	s := NewSynthetic()
	s.DenyUserMedia.Store(true)
	s.DenyDisplayMedia.Store(true)

	_, err := s.GetUserMedia(context.Background(), DefaultConstraints())
	if !IsAccessError(err) || !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("GetUserMedia() error = %v, want AccessError(permission denied)", err)
	}

	_, err = s.GetDisplayMedia(context.Background())
	var ae *AccessError
	if !errors.As(err, &ae) || ae.Device != "screen" {
		t.Errorf("GetDisplayMedia() error = %v, want screen AccessError", err)
	}

	if _, err := s.GetUserMedia(context.Background(), Constraints{}); !errors.Is(err, ErrNoConstraints) {
		t.Errorf("GetUserMedia(empty) error = %v, want ErrNoConstraints", err)
	}
	if s.Live() != 0 {
		t.Errorf("Live() = %d after failures, want 0", s.Live())
	}
}

func TestRemoteStream_Stats(t *testing.T) {
	r := NewRemoteStream("peer-1", "stream-1")
	r.addKind(webrtc.RTPCodecTypeVideo, "v1")
	r.record(100)
	r.record(50)

	if !r.HasKind(webrtc.RTPCodecTypeVideo) || r.HasKind(webrtc.RTPCodecTypeAudio) {
		t.Error("HasKind() does not reflect received tracks")
	}
	packets, bytes := r.Stats()
	if packets != 2 || bytes != 150 {
		t.Errorf("Stats() = (%d, %d), want (2, 150)", packets, bytes)
	}
}
