package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/dns"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	ErrClosed         = errors.New("signaling channel closed")
	ErrSendBufferFull = errors.New("signaling send buffer full")
)

// ChannelError is a connect or send failure on the signaling channel.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("signaling %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// Client manages the WebSocket connection to the relay for one call.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	addr      Address
	log       *slog.Logger

	incoming chan *Message
	outgoing chan *Message
	done     chan struct{} // closed by Close
	gone     chan struct{} // closed when the read pump exits

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewClient creates a new signaling client
func NewClient(serverURL string, addr Address) *Client {
	return &Client{
		serverURL: serverURL,
		addr:      addr,
		log:       slog.With("component", "signaling", "session", addr.SessionID),
		incoming:  make(chan *Message, sendBuffer),
		outgoing:  make(chan *Message, sendBuffer),
		done:      make(chan struct{}),
		gone:      make(chan struct{}),
	}
}

// Dial creates a client and connects it.
func Dial(ctx context.Context, serverURL string, addr Address) (*Client, error) {
	c := NewClient(serverURL, addr)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect establishes the WebSocket connection to the relay.
func (c *Client) Connect(ctx context.Context) error {
	target, err := c.addr.URL(c.serverURL)
	if err != nil {
		return &ChannelError{Op: "connect", Err: err}
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = dns.DialContext

	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return &ChannelError{Op: "connect", Err: err}
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	c.log.Info("connected to relay", "url", c.serverURL, "user", c.addr.UserID)
	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
		close(c.gone)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.setErr(&ChannelError{Op: "read", Err: err})
				} else {
					c.setErr(&ChannelError{Op: "read", Err: ErrClosed})
				}
			}
			return
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.setErr(&ChannelError{Op: "write", Err: err})
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.setErr(&ChannelError{Op: "ping", Err: err})
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.gone:
			return
		}
	}
}

// Send queues msg for the relay without blocking. A full buffer is an
// error; a stalled connection is reported by the pumps.
func (c *Client) Send(msg *Message) error {
	if err := msg.ValidateOutbound(); err != nil {
		return &ChannelError{Op: "send", Err: err}
	}

	select {
	case <-c.done:
		return &ChannelError{Op: "send", Err: ErrClosed}
	case <-c.gone:
		return &ChannelError{Op: "send", Err: ErrClosed}
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	default:
		return &ChannelError{Op: "send", Err: ErrSendBufferFull}
	}
}

// Incoming returns the channel of relay messages. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Done is closed once the connection is gone, for whatever reason.
func (c *Client) Done() <-chan struct{} {
	return c.gone
}

// Err returns why the connection ended, or nil after a local Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// Close closes the WebSocket connection. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.log.Info("relay connection closed")
	})
	return nil
}
