package readloop

import "github.com/watt-toolkit/ingress/pkg/ingress/request"

// PostBodyResult is the outcome of attempting to locate a POST body
// already sitting in the connection's read buffer.
type PostBodyResult uint8

const (
	PostBodyOK PostBodyResult = iota
	PostBodyTooLarge
	PostBodyBadRequest
	PostBodyNotImplemented
)

// ReadPostData locates a POST body that starts at bodyStart (the offset
// just past the header terminator) within buf[:totalRead], given the raw
// Content-Length header value. It never reads from the socket: streaming
// a body that hasn't fully arrived, and a body that overruns into the
// next pipelined request, are both reported as PostBodyNotImplemented
// per the read loop's fixed-buffer contract.
func ReadPostData(buf []byte, bufCap, bodyStart, totalRead int, contentLength []byte) (body []byte, bodyEnd int, result PostBodyResult) {
	length, ok := request.ParseContentLength(contentLength)
	if !ok || length < 0 {
		return nil, bodyStart, PostBodyBadRequest
	}
	if length > int64(bufCap) {
		return nil, bodyStart, PostBodyTooLarge
	}

	available := totalRead - bodyStart
	n := int(length)

	if available != n {
		return nil, bodyStart, PostBodyNotImplemented
	}

	return buf[bodyStart : bodyStart+n], bodyStart + n, PostBodyOK
}
