package request

import (
	"bytes"
	"net"
	"sort"

	"github.com/watt-toolkit/ingress/pkg/ingress/proxyproto"
	"github.com/watt-toolkit/ingress/pkg/ingress/region"
)

// Flags is a bitset combining the request's method, protocol version, and
// the handful of boolean switches the driver threads through parsing.
type Flags uint16

const (
	FlagMethodGET Flags = 1 << iota
	FlagMethodHEAD
	FlagMethodPOST
	FlagHTTP10
	FlagAcceptGzip
	FlagAcceptDeflate
	FlagProxied
	FlagAllowProxyReqs
	FlagURLRewritten
)

// Pair is one key/value entry in a sorted collection (query string, POST
// form body, or cookies). Key and Value alias the connection's read
// buffer and are only valid for the lifetime of the request.
type Pair struct {
	Key   []byte
	Value []byte
}

// Pairs is a collection of Pair sorted ascending by Key, enabling binary
// search lookups. Once built it must not be appended to out of order.
type Pairs []Pair

// Sort orders the pairs ascending by key, a precondition for Get's binary
// search. Called once after the collection is built.
func (p Pairs) Sort() {
	sort.Slice(p, func(i, j int) bool {
		return bytes.Compare(p[i].Key, p[j].Key) < 0
	})
}

// Get performs a binary search for key against the caller-supplied key
// bytes; matching requires an exact-length key match (the caller passes
// the exact key length, per the spec's strncmp-against-caller-length
// lookup contract).
func (p Pairs) Get(key []byte) ([]byte, bool) {
	i := sort.Search(len(p), func(i int) bool {
		return bytes.Compare(p[i].Key, key) >= 0
	})
	if i < len(p) && bytes.Equal(p[i].Key, key) {
		return p[i].Value, true
	}
	return nil, false
}

// ProxyInfo carries the PROXY protocol result when Flags&FlagProxied is
// set.
type ProxyInfo struct {
	SrcAddr net.IP
	DstAddr net.IP
	SrcPort uint16
	DstPort uint16
}

// HeaderFields holds the lazily-decoded values of the known header set
// that need more than a raw byte-slice (§4.E).
type HeaderFields struct {
	IfModifiedSince int64 // unix seconds, -1 if absent/invalid
	RangeFrom       int64 // -1 sentinel
	RangeTo         int64 // -1 sentinel
}

// Request is the parsed result of one HTTP/1.x request: method, URL,
// known headers, and the lazily-built query/post/cookie collections.
// The connection driver creates one Request per connection and resets
// (not frees) it before each request, so it is reused.
type Request struct {
	Flags Flags

	// URL is the percent-decoded path, fragment and query already split
	// off. It aliases the connection's read buffer.
	URL []byte

	// OriginalURL is a snapshot of URL taken right after parsing and
	// percent-decoding, before any route-prefix stripping or rewrite.
	// The driver itself does not read it.
	OriginalURL []byte

	// RawQuery is the raw bytes between '?' and the fragment/end of the
	// request-line URL, or nil if absent. Parsed into QueryParams only
	// when the matched route's PARSE_QUERY_STRING flag is set.
	RawQuery []byte

	Header RawHeaders

	Fields HeaderFields

	QueryParams Pairs
	PostData    Pairs
	Cookies     Pairs

	Proxy ProxyInfo

	// ConnectionToken is the lowercased first byte of the Connection
	// header value, or 0 if absent ('k' keep-alive, 'c' close).
	ConnectionToken byte

	// RewritesApplied counts handler-driven URL rewrites this request has
	// gone through (bounded by MaxRewrites).
	RewritesApplied int

	// Region is per-request scratch space: a handler that needs to build
	// a byte slice (a rewritten URL, a formatted body) can carve it from
	// here instead of allocating, at the cost of the slice only staying
	// valid until the next Reset. Owned by the connection driver, which
	// resets it once per request and frees it back to region's pool when
	// the connection closes.
	Region *region.Region
}

// RawHeaders holds the raw byte-slice views of the known headers
// extracted by the header-block parser (§4.D), before any field-specific
// decoding.
type RawHeaders struct {
	AcceptEncoding []byte
	IfModifiedSince []byte
	Range          []byte
	Cookie         []byte
	ContentLength  []byte
	ContentType    []byte
	Authorization  []byte
	Connection     []byte
}

// MethodID returns the numeric method, derived from Flags.
func (r *Request) MethodID() uint8 {
	switch {
	case r.Flags&FlagMethodGET != 0:
		return MethodGET
	case r.Flags&FlagMethodHEAD != 0:
		return MethodHEAD
	case r.Flags&FlagMethodPOST != 0:
		return MethodPOST
	default:
		return MethodUnknown
	}
}

// IsHTTP10 reports whether the request line declared HTTP/1.0.
func (r *Request) IsHTTP10() bool {
	return r.Flags&FlagHTTP10 != 0
}

// SetProxy populates Proxy from a decoded PROXY protocol header and sets
// FlagProxied.
func (r *Request) SetProxy(hdr proxyproto.Header) {
	r.Proxy = ProxyInfo{
		SrcAddr: hdr.SrcAddr,
		DstAddr: hdr.DstAddr,
		SrcPort: hdr.SrcPort,
		DstPort: hdr.DstPort,
	}
	r.Flags |= FlagProxied
}

// Reset clears the request for reuse, matching the pooled-object idiom:
// fields go back to their zero value, except Fields, whose entries are
// set to the -1 sentinel, and Region, which is kept and rewound.
func (r *Request) Reset() {
	r.Flags = 0
	r.URL = nil
	r.OriginalURL = nil
	r.RawQuery = nil
	r.Header = RawHeaders{}
	r.Fields = HeaderFields{IfModifiedSince: -1, RangeFrom: -1, RangeTo: -1}
	r.QueryParams = r.QueryParams[:0]
	r.PostData = r.PostData[:0]
	r.Cookies = r.Cookies[:0]
	r.Proxy = ProxyInfo{}
	r.ConnectionToken = 0
	r.RewritesApplied = 0
	if r.Region != nil {
		r.Region.Reset()
	}
}
