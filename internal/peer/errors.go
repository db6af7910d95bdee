package peer

import (
	"errors"
	"fmt"
)

var (
	ErrLinkClosed         = errors.New("link closed")
	ErrNoSender           = errors.New("no outbound sender for kind")
	ErrCandidateQueueFull = errors.New("ICE candidate queue full")
)

// Error is a negotiation failure on one link.
type Error struct {
	Op   string
	Peer string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op, peerID string, err error) *Error {
	return &Error{Op: op, Peer: peerID, Err: err}
}
