// Package driver implements the per-connection request driver: the
// 11-step sequence that turns raw socket bytes into a dispatched route
// handler call and a response, repeated for as many requests as the
// connection's keep-alive state allows.
package driver

import (
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/watt-toolkit/ingress/internal/logging"
	"github.com/watt-toolkit/ingress/pkg/ingress/auth"
	"github.com/watt-toolkit/ingress/pkg/ingress/bytesutil"
	"github.com/watt-toolkit/ingress/pkg/ingress/proxyproto"
	"github.com/watt-toolkit/ingress/pkg/ingress/readloop"
	"github.com/watt-toolkit/ingress/pkg/ingress/region"
	"github.com/watt-toolkit/ingress/pkg/ingress/request"
	"github.com/watt-toolkit/ingress/pkg/ingress/respond"
	"github.com/watt-toolkit/ingress/pkg/ingress/router"
)

// DefaultBufferSize is used when a Driver does not set BufferSize.
const DefaultBufferSize = 16 << 10

// errHandlerPanic is the error callHandler reports after recovering a
// panicking handler; dispatch maps it to a 500 like any other handler
// error.
var errHandlerPanic = errors.New("driver: handler panicked")

// HandlerResult is what a route handler returns.
type HandlerResult struct {
	Status int
	Body   []byte

	// RewrittenURL, if non-nil, signals the handler rewrote req.URL and
	// wants the driver to re-run route lookup on the new value (the
	// route must have CanRewriteURL set; otherwise this is ignored).
	RewrittenURL []byte
}

// Handler is a route's request-handling callback.
type Handler func(req *request.Request) (HandlerResult, error)

// Driver owns the collaborators used to serve every connection: the
// route trie, the authorizer, and the read buffer size.
type Driver struct {
	Router     *router.Router
	Authorizer auth.Authorizer
	BufferSize int

	// AllowProxyReqs sets FlagAllowProxyReqs on every request, gating
	// step 2's PROXY protocol decode. Set this only for listeners bound
	// to a trusted load balancer's interface.
	AllowProxyReqs bool

	// Logger receives one structured entry per terminal status decision
	// and per recovered handler panic. Nil disables logging.
	Logger *logging.Logger
}

func (d *Driver) logRequest(requestID, method, path string, status int, start time.Time, err error) {
	if d.Logger == nil {
		return
	}
	d.Logger.LogRequest(requestID, method, path, status, start, err)
}

// ServeConn drives conn until the connection closes, running the
// 11-step sequence once per request and respecting keep-alive and
// pipelining.
func (d *Driver) ServeConn(conn net.Conn) error {
	bufSize := d.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	buf := make([]byte, bufSize)
	loop := readloop.NewLoop(conn, buf)
	req := &request.Request{Region: region.Get()}
	defer region.Put(req.Region)

	for {
		req.Reset()
		if d.AllowProxyReqs {
			req.Flags |= request.FlagAllowProxyReqs
		}

		keepAlive, err := d.serveOne(conn, loop, req)
		if err != nil {
			if errors.Is(err, readloop.ErrAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !keepAlive {
			return nil
		}
	}
}

// isPostHeuristic scans the first 256 bytes assembled so far for a "POST " token,
// used by the read loop's finalizer before the request line has been
// parsed. It is deliberately loose: a PROXY protocol preamble may
// precede the request line, so the search isn't anchored to offset 0.
func isPostHeuristic(loop *readloop.Loop) func() bool {
	return func() bool {
		n := loop.TotalRead
		if n > 256 {
			n = 256
		}
		return bytes.Contains(loop.Buf[:n], []byte("POST "))
	}
}

// serveOne runs steps 1-11 for one request. keepAlive reports whether
// the caller should loop for another request on the same connection.
func (d *Driver) serveOne(conn net.Conn, loop *readloop.Loop, req *request.Request) (keepAlive bool, err error) {
	start := time.Now()
	requestID := uuid.NewString()

	// Step 1: assemble one request's bytes.
	outcome, loopErr := loop.Read(readloop.RequestFinalizer(isPostHeuristic(loop)))
	if loopErr != nil {
		return false, loopErr
	}
	if outcome != readloop.OutcomeOK {
		if outcome == readloop.OutcomeBadRequest && loop.NextRequest >= 0 {
			// The pipelined tail may still hold a valid request; skip
			// the response for this one and let the caller re-enter.
			return true, nil
		}
		status := statusForOutcome(outcome)
		d.writeDefault(conn, status)
		d.logRequest(requestID, "", "", status, start, nil)
		return false, nil
	}

	raw := loop.Buf[:loop.TotalRead]
	pos := 0

	// Step 2: PROXY protocol decode, gated on ALLOW_PROXY_REQS.
	if req.Flags&request.FlagAllowProxyReqs != 0 {
		hdr, consumed, present, ok := proxyproto.Decode(raw[pos:])
		if !ok {
			d.writeDefault(conn, 400)
			d.logRequest(requestID, "", "", 400, start, nil)
			return false, nil
		}
		if present {
			req.SetProxy(hdr)
			pos += consumed
		}
	}

	// Steps 3-4: request line (method, path, version), then header block.
	lineConsumed, err := request.ParseRequestLine(req, raw[pos:])
	if err != nil {
		status := statusForParseError(err)
		d.writeDefault(conn, status)
		d.logRequest(requestID, "", "", status, start, err)
		return false, nil
	}
	pos += lineConsumed

	headersConsumed, err := request.ParseHeaders(req, raw[pos:])
	if err != nil {
		status := statusForParseError(err)
		d.writeDefault(conn, status)
		d.logRequest(requestID, methodName(req), "", status, start, err)
		return false, nil
	}
	pos += headersConsumed

	// Step 4 (percent-decoding): URL is decoded in place; on failure the
	// partially-written buffer must not be trusted.
	if n, ok := bytesutil.URLDecode(req.URL); ok {
		req.URL = req.URL[:n]
		req.OriginalURL = req.URL
	} else {
		d.writeDefault(conn, 400)
		d.logRequest(requestID, methodName(req), "", 400, start, nil)
		return false, nil
	}

	// Step 5: compute keep-alive.
	keepAlive = computeKeepAlive(req)

	// Step 6: POST body.
	var postBody []byte
	if req.MethodID() == request.MethodPOST {
		body, bodyEnd, result := readloop.ReadPostData(loop.Buf, len(loop.Buf), pos, loop.TotalRead, req.Header.ContentLength)
		switch result {
		case readloop.PostBodyOK:
			postBody = body
			pos = bodyEnd
		case readloop.PostBodyTooLarge:
			d.writeDefault(conn, 413)
			d.logRequest(requestID, methodName(req), string(req.URL), 413, start, nil)
			return false, nil
		case readloop.PostBodyBadRequest:
			d.writeDefault(conn, 400)
			d.logRequest(requestID, methodName(req), string(req.URL), 400, start, nil)
			return false, nil
		case readloop.PostBodyNotImplemented:
			d.writeDefault(conn, 501)
			d.logRequest(requestID, methodName(req), string(req.URL), 501, start, nil)
			return false, nil
		}
	}

	loop.NextRequest = pos

	// Steps 7-9: route lookup, prepare_for_response, handler dispatch,
	// bounded rewrite loop.
	path := string(req.URL)
	status, body := d.dispatch(req, postBody, requestID, methodName(req), path)

	// Step 10: send the response.
	d.writeBody(conn, req, status, body)
	d.logRequest(requestID, methodName(req), path, status, start, nil)

	// Step 11: caller re-enters with loop.NextRequest already set.
	return keepAlive, nil
}

func methodName(req *request.Request) string {
	switch req.MethodID() {
	case request.MethodGET:
		return "GET"
	case request.MethodHEAD:
		return "HEAD"
	case request.MethodPOST:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

// dispatch implements steps 7-9: route lookup, prepare_for_response, the
// handler call, and the bounded rewrite loop (max MaxRewrites).
func (d *Driver) dispatch(req *request.Request, postBody []byte, requestID, method, path string) (status int, body []byte) {
	for {
		route, ok := d.Router.Lookup(req.URL)
		if !ok {
			return 404, nil
		}

		if len(req.URL) >= route.PrefixLen {
			req.URL = req.URL[route.PrefixLen:]
		}

		if route.Flags&router.RemoveLeadingSlash != 0 {
			req.URL = bytes.TrimLeft(req.URL, "/")
		}

		if route.Flags&router.ParseQueryString != 0 && req.RawQuery != nil {
			pairs, ok := request.ParseKeyValues(req.RawQuery, '&', bytesutil.URLDecode)
			if !ok {
				return 400, nil
			}
			req.QueryParams = pairs
		}

		if route.Flags&router.ParseIfModifiedSince != 0 && req.Header.IfModifiedSince != nil {
			if seconds, ok := request.ParseIfModifiedSince(req.Header.IfModifiedSince); ok {
				req.Fields.IfModifiedSince = seconds
			} else {
				req.Fields.IfModifiedSince = -1
			}
		}

		if route.Flags&router.ParseRange != 0 && req.Header.Range != nil {
			from, to := request.ParseRange(req.Header.Range)
			req.Fields.RangeFrom, req.Fields.RangeTo = from, to
		}

		if route.Flags&router.ParseAcceptEncoding != 0 && req.Header.AcceptEncoding != nil {
			req.Flags |= request.ParseAcceptEncoding(req.Header.AcceptEncoding)
		}

		if route.Flags&router.ParseCookies != 0 && req.Header.Cookie != nil {
			pairs, ok := request.ParseKeyValues(req.Header.Cookie, ';', request.IdentityDecoder)
			if !ok {
				return 400, nil
			}
			req.Cookies = pairs
		}

		if route.Flags&router.ParsePostData != 0 && postBody != nil {
			if request.IsFormContentType(req.Header.ContentType) {
				pairs, ok := request.ParseKeyValues(postBody, '&', bytesutil.URLDecode)
				if !ok {
					return 400, nil
				}
				req.PostData = pairs
			}
		}

		if route.Flags&router.MustAuthorize != 0 {
			if d.Authorizer == nil {
				return 401, nil
			}
			if err := d.Authorizer.Authorize(req.Header.Authorization, route.Realm); err != nil {
				return 401, nil
			}
		}

		handler, ok := route.Handler.(Handler)
		if !ok || handler == nil {
			return 500, nil
		}

		result, err := d.callHandler(handler, req, requestID, method, path)
		if err != nil {
			return 500, nil
		}

		if route.Flags&router.CanRewriteURL != 0 && result.RewrittenURL != nil {
			req.RewritesApplied++
			if req.RewritesApplied > request.MaxRewrites {
				return 500, nil
			}
			bare, rawQuery := request.SplitURL(result.RewrittenURL)
			req.URL = bare
			req.RawQuery = rawQuery
			req.Flags |= request.FlagURLRewritten
			continue
		}

		return result.Status, result.Body
	}
}

// callHandler invokes handler with a recover() guard, grounded on the
// recover-log-convert-to-500 middleware idiom: a panicking handler must
// not take the connection down with it.
func (d *Driver) callHandler(handler Handler, req *request.Request, requestID, method, path string) (result HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			if d.Logger != nil {
				d.Logger.LogPanic(requestID, method, path, r)
			}
			err = errHandlerPanic
		}
	}()
	return handler(req)
}

func computeKeepAlive(req *request.Request) bool {
	if req.IsHTTP10() {
		return req.ConnectionToken == 'k'
	}
	return req.ConnectionToken != 'c'
}

func statusForOutcome(o readloop.Outcome) int {
	switch o {
	case readloop.OutcomeBadRequest:
		return 400
	case readloop.OutcomeTooLarge:
		return 413
	case readloop.OutcomeTimeout:
		return 408
	default:
		return 500
	}
}

func statusForParseError(err error) int {
	if errors.Is(err, request.ErrInvalidMethod) {
		return 405
	}
	return 400
}

func (d *Driver) writeDefault(conn net.Conn, status int) {
	rw := respond.NewWriter(conn)
	rw.WriteHeader(status)
	_ = rw.Write(nil)
}

func (d *Driver) writeBody(conn net.Conn, req *request.Request, status int, body []byte) {
	rw := respond.NewWriter(conn)
	rw.WriteHeader(status)
	if req.Flags&(request.FlagAcceptGzip|request.FlagAcceptDeflate) != 0 {
		_ = rw.WriteCompressed(body, req.Flags)
		return
	}
	_ = rw.Write(body)
}
