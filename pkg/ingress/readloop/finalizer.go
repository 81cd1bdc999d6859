package readloop

import "bytes"

var crlfcrlf = []byte("\r\n\r\n")

// RequestFinalizer builds the finalizer predicate used to decide whether
// a connection's read buffer holds a complete HTTP request. isPost
// reports whether the request currently being assembled is a POST; it
// is called on every finalizer invocation that gets past the earlier
// checks, against whatever bytes have been read so far.
func RequestFinalizer(isPost func() bool) Finalizer {
	return func(in FinalizerInput) FinalizerResult {
		// A carried-over pipelined tail is not guaranteed complete: it
		// may be a second request whose header block is itself split
		// across a TCP segment boundary. Run the same checks below a
		// freshly-read buffer would get instead of assuming it's done.
		if len(in.Buf) < 4 {
			return FinalizerYieldTryAgain
		}

		if len(in.Buf) >= in.BufCap {
			return FinalizerTooLarge
		}

		if bytes.Equal(in.Buf[len(in.Buf)-4:], crlfcrlf) {
			return FinalizerDone
		}

		// POST bodies may have been opportunistically read alongside
		// the headers in the same packet; a terminator need not fall
		// on the trailing 4 bytes for those requests. The buffer counts as
		// complete when its last LF is the one ending a "\r\n\r\n".
		if isPost != nil && isPost() {
			if lf := bytes.LastIndexByte(in.Buf, '\n'); lf >= 3 && bytes.Equal(in.Buf[lf-3:lf], crlfcrlf[:3]) {
				return FinalizerDone
			}
		}

		return FinalizerTryAgain
	}
}
