package wire

import "errors"

var (
	// ErrMissingEndOfLine is returned when the status line and headers
	// run past MaxHeaderSize without completing; a line that is merely
	// not yet complete is reported as ok=false, not as an error.
	ErrMissingEndOfLine = errors.New("wire: missing end of line")
	// ErrMissingSpace is returned when a status or request line is
	// missing an expected space-separated field.
	ErrMissingSpace = errors.New("wire: missing space")
	// ErrInvalidHeaderFormat is returned when a header line is not of
	// the form "Name: Value".
	ErrInvalidHeaderFormat = errors.New("wire: invalid header format")
	// ErrInvalidStatus is returned when a status line's code does not
	// belong to the closed RFC 2326 enumeration.
	ErrInvalidStatus = errors.New("wire: invalid status code")
	// ErrParseContentLength is returned when the Content-Length header
	// value is not a valid non-negative integer.
	ErrParseContentLength = errors.New("wire: invalid content-length")
	// ErrBufferTooSmall is returned by Request.Serialize when the
	// destination slice cannot hold the serialised request.
	ErrBufferTooSmall = errors.New("wire: destination buffer too small")
)
