package call

import (
	"context"

	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/BioHazard786/warpcall/internal/signaling"
)

// startJoin moves idle to joining and starts acquisition off the loop. Every
// asynchronous result carries the join generation; results from a join that
// has since been torn down release what they acquired.
func (c *Call) startJoin(ctx context.Context, reply chan error) error {
	if c.state.Phase != PhaseIdle {
		return ErrAlreadyJoined
	}

	c.gen++
	gen := c.gen
	c.joinCtx, c.joinCancel = context.WithCancel(ctx)
	c.joinReply = reply
	c.state.Phase = PhaseJoining
	c.state.Err = nil
	c.publish()

	joinCtx := c.joinCtx
	constraints := c.opts.Constraints
	c.log.Info("joining call")

	go func() {
		stream, err := c.opts.Acquirer.GetUserMedia(joinCtx, constraints)
		posted := c.post(func() { c.onLocalMedia(gen, stream, err) })
		if !posted && stream != nil {
			stream.Stop()
		}
	}()
	return nil
}

func (c *Call) onLocalMedia(gen uint64, stream *media.Stream, err error) {
	if gen != c.gen || c.state.Phase != PhaseJoining {
		if stream != nil {
			stream.Stop()
		}
		return
	}
	if err != nil {
		c.failJoin(newError("acquire local media", err))
		return
	}

	c.local = stream
	c.log.Info("local media acquired", "tracks", len(stream.Tracks()))

	s := c.opts.Session
	addr := signaling.Address{SessionID: s.SessionID, UserID: s.UserID, UserName: s.UserName, IsHost: s.IsHost}
	joinCtx := c.joinCtx

	go func() {
		ch, err := c.opts.Dial(joinCtx, addr)
		posted := c.post(func() { c.onChannelOpen(gen, ch, err) })
		if !posted && ch != nil {
			ch.Close()
		}
	}()
}

func (c *Call) onChannelOpen(gen uint64, ch Channel, err error) {
	if gen != c.gen || c.state.Phase != PhaseJoining {
		if ch != nil {
			ch.Close()
		}
		return
	}
	if err != nil {
		c.failJoin(newError("open signaling channel", err))
		return
	}

	c.channel = ch
	c.state.Phase = PhaseConnected
	c.state.IsConnected = true

	s := c.opts.Session
	c.addParticipant(Participant{ID: s.UserID, Name: s.UserName, IsHost: s.IsHost, IsLocal: true})
	c.syncLocalFlags()

	go c.pump(gen, ch)

	c.log.Info("call connected")
	c.resolveJoin(nil)
	c.publish()
}

// pump feeds inbound signaling to the loop until the channel ends.
func (c *Call) pump(gen uint64, ch Channel) {
	for msg := range ch.Incoming() {
		msg := msg // per-iteration copy; go 1.21 loop variables are shared
		if !c.post(func() { c.handleMessage(gen, msg) }) {
			return
		}
	}
	c.post(func() { c.onChannelClosed(gen, ch) })
}

// onChannelClosed handles losing the relay. Without signaling no peer can be
// added or renegotiated, so the call is torn down completely.
func (c *Call) onChannelClosed(gen uint64, ch Channel) {
	if gen != c.gen || c.channel != ch {
		return
	}

	cause := ch.Err()
	if cause == nil {
		cause = signaling.ErrClosed
	}
	c.log.Warn("signaling channel lost, ending call", "error", cause)

	c.state.IsConnected = false
	c.publish()

	c.teardown()
	c.state.Err = newError("signaling", cause)
	c.publish()
}

func (c *Call) failJoin(err error) {
	c.log.Warn("join failed", "error", err)
	c.teardown()
	c.resolveJoin(err)
	c.publish()
}

func (c *Call) resolveJoin(err error) {
	if c.joinReply != nil {
		c.joinReply <- err
		c.joinReply = nil
	}
}

func (c *Call) leave() {
	if c.state.Phase == PhaseIdle && c.local == nil && c.channel == nil && c.links.len() == 0 {
		return
	}

	c.state.Phase = PhaseLeaving
	c.publish()

	c.teardown()
	c.resolveJoin(ErrJoinAborted)
	c.log.Info("left call")
	c.publish()
}

// teardown releases whatever the current join acquired: links first, then
// local media, then the channel, then the projected state. Bumping the
// generation disowns any acquisition still in flight.
func (c *Call) teardown() {
	c.gen++
	if c.joinCancel != nil {
		c.joinCancel()
		c.joinCancel = nil
	}
	c.joinCtx = nil

	c.closeAllLinks()

	if c.screen != nil {
		c.screen.Stop()
		c.screen = nil
	}
	if c.local != nil {
		if err := c.local.Stop(); err != nil {
			c.log.Warn("stopping local media", "error", err)
		}
		c.local = nil
	}

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}

	c.shareBusy = false
	c.state = CallState{}
}
