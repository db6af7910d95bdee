// Package call is the call state machine. It owns the signaling channel, the
// local media and one peer link per remote participant, and projects all of
// it into a CallState for the UI.
//
// Inbound signaling, peer callbacks and UI commands are all serialized on one
// event loop goroutine; each handler is one atomic transition.
package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/BioHazard786/warpcall/internal/signaling"
)

const eventBuffer = 256

// Channel is a connected signaling channel. Incoming must be closed when the
// connection ends, for whatever reason.
type Channel interface {
	Send(msg *signaling.Message) error
	Incoming() <-chan *signaling.Message
	Err() error
	Close() error
}

// Dialer opens the signaling channel for addr.
type Dialer func(ctx context.Context, addr signaling.Address) (Channel, error)

// Options configure a Call.
type Options struct {
	Session     Session
	Constraints media.Constraints
	Acquirer    media.Acquirer
	Factory     peer.Factory
	Dial        Dialer

	// KeepFailedPeers disables evicting a participant whose transport
	// reaches the failed state.
	KeepFailedPeers bool

	Logger *slog.Logger

	// Now stamps chat messages. Defaults to time.Now.
	Now func() time.Time
}

// Call is one participant's view of a mesh call.
type Call struct {
	opts Options
	log  *slog.Logger

	events    chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the loop goroutine.
	state   CallState
	gen     uint64
	local   *media.Stream
	screen  *media.Stream
	channel Channel
	links   registry

	joinCtx    context.Context
	joinCancel context.CancelFunc
	joinReply  chan error
	shareBusy  bool

	subsMu sync.Mutex
	subs   map[chan CallState]struct{}
}

// New validates opts and starts the event loop. The call starts idle.
func New(opts Options) (*Call, error) {
	switch {
	case opts.Session.SessionID == "" || opts.Session.UserID == "":
		return nil, newError("new call", errors.New("session and user id are required"))
	case opts.Acquirer == nil:
		return nil, newError("new call", errors.New("media acquirer is required"))
	case opts.Factory == nil:
		return nil, newError("new call", errors.New("peer factory is required"))
	case opts.Dial == nil:
		return nil, newError("new call", errors.New("signaling dialer is required"))
	}
	if opts.Session.UserName == "" {
		opts.Session.UserName = opts.Session.UserID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Call{
		opts:     opts,
		log:      log.With("component", "call", "session", opts.Session.SessionID, "user", opts.Session.UserID),
		events:   make(chan func(), eventBuffer),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		links:    newRegistry(),
		subs:     make(map[chan CallState]struct{}),
	}
	go c.loop()
	return c, nil
}

func (c *Call) loop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			return
		}
	}
}

// post queues fn for the loop. It reports false once the call is closed.
func (c *Call) post(fn func()) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (c *Call) do(fn func() error) error {
	result := make(chan error, 1)
	if !c.post(func() { result <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-c.loopDone:
		return ErrClosed
	}
}

// Join acquires local media, opens the signaling channel and waits until the
// call is connected. A Leave issued meanwhile makes it return ErrJoinAborted.
func (c *Call) Join(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.do(func() error { return c.startJoin(ctx, reply) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.loopDone:
		return ErrClosed
	}
}

// Leave tears the call down from any phase. It is idempotent.
func (c *Call) Leave() error {
	return c.do(func() error {
		c.leave()
		return nil
	})
}

// ToggleMute flips the local audio track. Without one it does nothing.
func (c *Call) ToggleMute() error {
	return c.do(func() error {
		c.toggleMute()
		return nil
	})
}

// ToggleVideo flips the outbound video track. Without one it does nothing.
func (c *Call) ToggleVideo() error {
	return c.do(func() error {
		c.toggleVideo()
		return nil
	})
}

// ToggleScreenShare switches the outbound video between camera and screen on
// every link. On failure nothing changes.
func (c *Call) ToggleScreenShare(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.do(func() error { return c.startShareToggle(ctx, reply) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.loopDone:
		return ErrClosed
	}
}

// SendChatMessage appends text to the log and sends it. Blank text is ignored.
func (c *Call) SendChatMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.do(func() error { return c.sendChat(text) })
}

// State returns a snapshot of the current state.
func (c *Call) State() CallState {
	var s CallState
	if err := c.do(func() error {
		s = c.state.clone()
		return nil
	}); err != nil {
		return CallState{}
	}
	return s
}

// LocalStream returns the local media for preview, or nil when none is held.
func (c *Call) LocalStream() *media.Stream {
	var s *media.Stream
	c.do(func() error {
		s = c.local
		return nil
	})
	return s
}

// Subscribe returns a channel receiving the latest state after every
// transition. Slow readers only miss intermediate states. The channel is
// closed by cancel or Close.
func (c *Call) Subscribe() (<-chan CallState, func()) {
	ch := make(chan CallState, 1)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()

	cancel := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// publish pushes the current state to every subscriber, replacing any
// snapshot they have not read yet.
func (c *Call) publish() {
	snapshot := c.state.clone()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Close leaves the call and stops the event loop.
func (c *Call) Close() error {
	err := c.Leave()
	if errors.Is(err, ErrClosed) {
		err = nil
	}

	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.loopDone

		c.subsMu.Lock()
		for ch := range c.subs {
			delete(c.subs, ch)
			close(ch)
		}
		c.subsMu.Unlock()
	})
	return err
}
