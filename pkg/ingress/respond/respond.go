// Package respond provides the default response-writer collaborator: a
// pre-compiled status-line table, a small ordered header writer, and
// optional gzip/deflate compression selected from the request's
// ACCEPT_GZIP/ACCEPT_DEFLATE flags. Chunked transfer encoding is out of
// scope (mirroring the non-goal on the request side) so every response
// this package writes carries an explicit Content-Length.
package respond

import (
	"bytes"
	"io"
	"strconv"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/watt-toolkit/ingress/pkg/ingress/request"
)

var crlf = []byte("\r\n")
var colonSpace = []byte(": ")

var (
	status200 = []byte("HTTP/1.1 200 OK\r\n")
	status206 = []byte("HTTP/1.1 206 Partial Content\r\n")
	status304 = []byte("HTTP/1.1 304 Not Modified\r\n")
	status400 = []byte("HTTP/1.1 400 Bad Request\r\n")
	status401 = []byte("HTTP/1.1 401 Unauthorized\r\n")
	status403 = []byte("HTTP/1.1 403 Forbidden\r\n")
	status404 = []byte("HTTP/1.1 404 Not Found\r\n")
	status405 = []byte("HTTP/1.1 405 Method Not Allowed\r\n")
	status408 = []byte("HTTP/1.1 408 Request Timeout\r\n")
	status413 = []byte("HTTP/1.1 413 Payload Too Large\r\n")
	status500 = []byte("HTTP/1.1 500 Internal Server Error\r\n")
	status501 = []byte("HTTP/1.1 501 Not Implemented\r\n")
)

// statusLine returns the pre-compiled line for the status codes this
// server's error taxonomy actually produces, falling back to a built
// line (one allocation) for anything else a handler chooses to send.
func statusLine(code int) []byte {
	switch code {
	case 200:
		return status200
	case 206:
		return status206
	case 304:
		return status304
	case 400:
		return status400
	case 401:
		return status401
	case 403:
		return status403
	case 404:
		return status404
	case 405:
		return status405
	case 408:
		return status408
	case 413:
		return status413
	case 500:
		return status500
	case 501:
		return status501
	default:
		return []byte("HTTP/1.1 " + strconv.Itoa(code) + " " + statusText(code) + "\r\n")
	}
}

func statusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 412:
		return "Precondition Failed"
	case 416:
		return "Range Not Satisfiable"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}

type header struct {
	name  []byte
	value []byte
}

// Writer accumulates a response's status and headers, then writes a
// single status-line-plus-headers block followed by the body. Reset
// readies a Writer for reuse; the driver creates a new one per response.
type Writer struct {
	w      io.Writer
	status int
	hdrs   []header

	headerWritten bool
	bytesWritten  int64
}

// NewWriter returns a Writer defaulting to status 200.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, status: 200}
}

// Reset rebinds the Writer to w and clears all accumulated state for
// reuse on the next request.
func (rw *Writer) Reset(w io.Writer) {
	rw.w = w
	rw.status = 200
	rw.hdrs = rw.hdrs[:0]
	rw.headerWritten = false
	rw.bytesWritten = 0
}

// SetHeader appends (or, if already present, overwrites) a response
// header. Values are not validated; callers must supply well-formed
// header field values.
func (rw *Writer) SetHeader(name, value []byte) {
	for i := range rw.hdrs {
		if bytes.Equal(rw.hdrs[i].name, name) {
			rw.hdrs[i].value = value
			return
		}
	}
	rw.hdrs = append(rw.hdrs, header{name: name, value: value})
}

// WriteHeader sets the status code to send. It has no effect once the
// header block has already been flushed to the wire.
func (rw *Writer) WriteHeader(status int) {
	if rw.headerWritten {
		return
	}
	rw.status = status
}

func (rw *Writer) flushHeaders() error {
	if rw.headerWritten {
		return nil
	}
	rw.headerWritten = true

	if _, err := rw.w.Write(statusLine(rw.status)); err != nil {
		return err
	}
	for _, h := range rw.hdrs {
		if _, err := rw.w.Write(h.name); err != nil {
			return err
		}
		if _, err := rw.w.Write(colonSpace); err != nil {
			return err
		}
		if _, err := rw.w.Write(h.value); err != nil {
			return err
		}
		if _, err := rw.w.Write(crlf); err != nil {
			return err
		}
	}
	_, err := rw.w.Write(crlf)
	return err
}

// Write sends body bytes as-is, setting Content-Length from len(body)
// and flushing the header block first if it hasn't gone out yet.
func (rw *Writer) Write(body []byte) error {
	rw.SetHeader([]byte("Content-Length"), []byte(strconv.Itoa(len(body))))
	if err := rw.flushHeaders(); err != nil {
		return err
	}
	n, err := rw.w.Write(body)
	rw.bytesWritten += int64(n)
	return err
}

// WriteCompressed compresses body with gzip or deflate according to
// acceptFlags (gzip preferred when both are accepted), buffering the
// compressed output so a correct Content-Length can still be sent —
// this server never streams a chunked body. If neither encoding flag is
// set, it falls back to Write.
func (rw *Writer) WriteCompressed(body []byte, acceptFlags request.Flags) error {
	switch {
	case acceptFlags&request.FlagAcceptGzip != 0:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(body); err != nil {
			return err
		}
		if err := gw.Close(); err != nil {
			return err
		}
		rw.SetHeader([]byte("Content-Encoding"), []byte("gzip"))
		return rw.Write(buf.Bytes())

	case acceptFlags&request.FlagAcceptDeflate != 0:
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return err
		}
		if _, err := fw.Write(body); err != nil {
			return err
		}
		if err := fw.Close(); err != nil {
			return err
		}
		rw.SetHeader([]byte("Content-Encoding"), []byte("deflate"))
		return rw.Write(buf.Bytes())

	default:
		return rw.Write(body)
	}
}

// Status returns the status code that will be (or was) sent.
func (rw *Writer) Status() int { return rw.status }

// BytesWritten returns the number of body bytes written to the wire.
func (rw *Writer) BytesWritten() int64 { return rw.bytesWritten }
