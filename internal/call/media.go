package call

import (
	"context"

	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/pion/webrtc/v4"
)

func (c *Call) toggleMute() {
	t := c.local.AudioTrack()
	if t == nil {
		return
	}
	t.SetEnabled(!t.Enabled())
	c.syncLocalFlags()
	c.publish()
}

func (c *Call) toggleVideo() {
	t := c.local.VideoTrack()
	if t == nil {
		return
	}
	t.SetEnabled(!t.Enabled())
	c.syncLocalFlags()
	c.publish()
}

// syncLocalFlags projects the enabled state of the local tracks into the call
// state and the local participant. A missing track counts as enabled.
func (c *Call) syncLocalFlags() {
	muted, videoOff := false, false
	if t := c.local.AudioTrack(); t != nil {
		muted = !t.Enabled()
	}
	if t := c.local.VideoTrack(); t != nil {
		videoOff = !t.Enabled()
	}

	c.state.IsMuted = muted
	c.state.IsVideoOff = videoOff
	for i := range c.state.Participants {
		if c.state.Participants[i].IsLocal {
			c.state.Participants[i].IsMuted = muted
			c.state.Participants[i].IsVideoOff = videoOff
		}
	}
}

// startShareToggle begins switching to or from the screen. Acquisition runs
// off the loop; one switch may be in flight at a time.
func (c *Call) startShareToggle(ctx context.Context, reply chan error) error {
	if c.state.Phase != PhaseConnected {
		return ErrNotConnected
	}
	if c.shareBusy {
		return ErrShareInProgress
	}
	if c.local.VideoTrack() == nil {
		return ErrNoVideoTrack
	}

	c.shareBusy = true
	gen := c.gen
	acquirer := c.opts.Acquirer

	if !c.state.IsScreenSharing {
		go func() {
			stream, err := acquirer.GetDisplayMedia(ctx)
			posted := c.post(func() { c.onScreenAcquired(gen, stream, err, reply) })
			if !posted && stream != nil {
				stream.Stop()
			}
		}()
		return nil
	}

	camera := media.Constraints{Video: true, Width: c.opts.Constraints.Width, Height: c.opts.Constraints.Height}
	go func() {
		stream, err := acquirer.GetUserMedia(ctx, camera)
		posted := c.post(func() { c.onCameraAcquired(gen, stream, err, reply) })
		if !posted && stream != nil {
			stream.Stop()
		}
	}()
	return nil
}

func (c *Call) onScreenAcquired(gen uint64, stream *media.Stream, err error, reply chan error) {
	if gen != c.gen {
		if stream != nil {
			stream.Stop()
		}
		reply <- ErrNotConnected
		return
	}
	c.shareBusy = false

	if err != nil {
		reply <- newError("share screen", err)
		return
	}
	screen := stream.VideoTrack()
	if screen == nil {
		stream.Stop()
		reply <- newError("share screen", ErrNoVideoTrack)
		return
	}

	camera := c.local.VideoTrack()
	screen.SetEnabled(camera.Enabled())
	if err := c.replaceVideo(screen); err != nil {
		stream.Stop()
		reply <- err
		return
	}

	c.local.ReplaceTrack(screen)
	camera.Stop()
	c.screen = stream
	c.state.IsScreenSharing = true

	screen.OnEnded(func(error) {
		c.post(func() { c.onShareEnded(gen, screen) })
	})

	c.log.Info("screen share started", "links", c.links.len())
	c.syncLocalFlags()
	c.publish()
	reply <- nil
}

func (c *Call) onCameraAcquired(gen uint64, stream *media.Stream, err error, reply chan error) {
	if gen != c.gen {
		if stream != nil {
			stream.Stop()
		}
		reply <- ErrNotConnected
		return
	}
	c.shareBusy = false

	if err != nil {
		reply <- newError("stop screen share", err)
		return
	}
	camera := stream.VideoTrack()
	if camera == nil {
		stream.Stop()
		reply <- newError("stop screen share", ErrNoVideoTrack)
		return
	}

	screen := c.local.VideoTrack()
	camera.SetEnabled(screen.Enabled())
	if err := c.replaceVideo(camera); err != nil {
		stream.Stop()
		reply <- err
		return
	}

	c.local.ReplaceTrack(camera)
	if c.screen != nil {
		c.screen.Stop()
		c.screen = nil
	}
	c.state.IsScreenSharing = false

	c.log.Info("screen share stopped", "links", c.links.len())
	c.syncLocalFlags()
	c.publish()
	reply <- nil
}

// onShareEnded reverts to the camera when the platform ends the capture, for
// example through its own "stop sharing" control.
func (c *Call) onShareEnded(gen uint64, screen *media.Track) {
	if gen != c.gen || !c.state.IsScreenSharing || c.local.VideoTrack() != screen || c.shareBusy {
		return
	}
	c.log.Info("screen capture ended by the platform")

	reply := make(chan error, 1)
	if err := c.startShareToggle(context.Background(), reply); err != nil {
		c.log.Warn("reverting to camera", "error", err)
		return
	}
	go func() {
		if err := <-reply; err != nil {
			c.log.Warn("reverting to camera", "error", err)
		}
	}()
}

// replaceVideo swaps the outbound video on every link carrying video, or on
// none of them: a failure rolls back the links already switched.
func (c *Call) replaceVideo(track webrtc.TrackLocal) error {
	type swapped struct {
		link peer.Link
		prev webrtc.TrackLocal
	}
	var done []swapped
	var failed error

	c.links.each(func(id string, link peer.Link) {
		if failed != nil {
			return
		}
		prev := link.Track(webrtc.RTPCodecTypeVideo)
		if prev == nil {
			return
		}
		if err := link.ReplaceTrack(webrtc.RTPCodecTypeVideo, track); err != nil {
			failed = &Error{Op: "replace video track", Peer: id, Err: err}
			return
		}
		done = append(done, swapped{link: link, prev: prev})
	})

	if failed == nil {
		return nil
	}
	for _, s := range done {
		if err := s.link.ReplaceTrack(webrtc.RTPCodecTypeVideo, s.prev); err != nil {
			c.log.Error("rolling back video track", "peer", s.link.PeerID(), "error", err)
		}
	}
	return failed
}
