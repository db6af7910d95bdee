package call

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyJoined   = errors.New("call already joined or joining")
	ErrNotConnected    = errors.New("call not connected")
	ErrNoVideoTrack    = errors.New("no local video track")
	ErrShareInProgress = errors.New("screen share change already in progress")
	ErrJoinAborted     = errors.New("join aborted")
	ErrClosed          = errors.New("call closed")
)

// Error reports which step of a call operation failed, and for which peer
// when the step was per-peer.
type Error struct {
	Op   string
	Peer string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s (peer %s): %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
