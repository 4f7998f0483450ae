package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/wavecrest-video/rtspchannel/internal/wire"
)

var (
	// ErrUnauthorized is returned when a request is challenged twice
	// in a row: the channel only retries a single 401 per command.
	ErrUnauthorized = errors.New("session: unauthorized")
	// ErrCancelled is returned to every command still pending when the
	// channel shuts down.
	ErrCancelled = errors.New("session: command cancelled")
	// ErrBadResponse names a malformed response. The event loop does not
	// return it: an unparsable or uncorrelatable response (missing CSeq,
	// unknown status) shuts the channel down and pending commands fail
	// with ErrCancelled.
	ErrBadResponse = errors.New("session: malformed response")
	// ErrUnexpectedStatus is the sentinel wrapped by StatusError; match
	// it with errors.Is, and recover the status with errors.As(&StatusError{}).
	ErrUnexpectedStatus = errors.New("session: unexpected status")
	// ErrClosed is returned by any command submitted after the channel
	// has already shut down.
	ErrClosed = errors.New("session: channel closed")
	// ErrInvalidCSeq names the shutdown cause when a response's CSeq
	// can't be read or doesn't match any pending command. It never
	// reaches a caller directly — commands still in flight fail with
	// ErrCancelled, same as any other fatal shutdown.
	ErrInvalidCSeq = errors.New("session: invalid CSeq")
)

// StatusError reports a non-2xx RTSP status that isn't an
// authorization challenge.
type StatusError struct {
	Status wire.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("session: unexpected status: %s", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Response is the result of a completed RTSP command.
type Response struct {
	Status  wire.Status
	Headers []wire.Header
	Body    []byte
}

// Header returns the first header matching name (case-insensitive),
// or "" if absent.
func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if equalFoldASCII(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// command is a single in-flight request submitted to the event loop.
type command struct {
	method  wire.Method
	path    string // appended to the channel's base URL, e.g. "/trackID=0"
	headers []wire.Header
	body    []byte

	result chan commandResult
}

type commandResult struct {
	response *Response
	err      error
}

// pendingCommand tracks a command that has been sent and is awaiting
// a response, keyed by the CSeq it was sent with.
type pendingCommand struct {
	cmd     *command
	method  wire.Method
	path    string
	headers []wire.Header
	body    []byte
	retried bool
	sentAt  time.Time
}
