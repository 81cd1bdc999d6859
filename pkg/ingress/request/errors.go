package request

import "errors"

// Parser errors, pre-allocated to avoid per-request allocation on the
// failure path.
var (
	// ErrInvalidMethod indicates the request does not start with one of
	// GET, HEAD, POST.
	ErrInvalidMethod = errors.New("request: invalid or unsupported method")

	// ErrInvalidRequestLine indicates the request line is malformed or
	// too short to contain a version token.
	ErrInvalidRequestLine = errors.New("request: invalid request line")

	// ErrInvalidProtocol indicates the version token is not "HTTP/1.0" or
	// "HTTP/1.1".
	ErrInvalidProtocol = errors.New("request: invalid or unsupported protocol version")

	// ErrInvalidPath indicates the path does not start with '/'.
	ErrInvalidPath = errors.New("request: path does not start with '/'")

	// ErrMalformedURL indicates percent-decoding failed (truncated or
	// invalid escape, or a decoded NUL byte).
	ErrMalformedURL = errors.New("request: malformed percent-encoding in URL")

	// ErrMalformedHeader indicates a header line is missing CRLF
	// termination (the only header malformation that aborts parsing;
	// unknown or unrecognized headers are otherwise skipped).
	ErrMalformedHeader = errors.New("request: header missing CRLF termination")

	// ErrInvalidContentLength indicates a negative or non-numeric
	// Content-Length value.
	ErrInvalidContentLength = errors.New("request: invalid Content-Length")
)
