package request

import (
	"bytes"
	"time"

	"github.com/watt-toolkit/ingress/pkg/ingress/bytesutil"
)

// ParseIfModifiedSince decodes an RFC 1123 "If-Modified-Since" value.
// Extra trailing bytes, or any parse failure, causes the header to be
// ignored (returns ok=false; the driver then records
// Fields.IfModifiedSince as -1, the absent value).
func ParseIfModifiedSince(value []byte) (seconds int64, ok bool) {
	t, err := time.Parse(time.RFC1123, string(value))
	if err != nil {
		return 0, false
	}
	return t.UTC().Unix(), true
}

// ParseRange decodes a "Range: bytes=from-to" header per the grammars
// "from-to", "-to" (from=0), and "from-" (to=-1). Anything else reports
// both endpoints as -1 per spec.
func ParseRange(value []byte) (from, to int64) {
	const prefix = "bytes="
	if len(value) < len(prefix) || string(value[:len(prefix)]) != prefix {
		return -1, -1
	}
	spec := value[len(prefix):]

	dash := bytes.IndexByte(spec, '-')
	if dash == -1 {
		return -1, -1
	}

	fromBytes := spec[:dash]
	toBytes := spec[dash+1:]

	switch {
	case len(fromBytes) == 0 && len(toBytes) == 0:
		return -1, -1
	case len(fromBytes) == 0:
		t, ok := parseUint(toBytes)
		if !ok {
			return -1, -1
		}
		return 0, t
	case len(toBytes) == 0:
		f, ok := parseUint(fromBytes)
		if !ok {
			return -1, -1
		}
		return f, -1
	default:
		f, ok1 := parseUint(fromBytes)
		t, ok2 := parseUint(toBytes)
		if !ok1 || !ok2 {
			return -1, -1
		}
		return f, t
	}
}

func parseUint(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// IsFormContentType reports whether value is exactly
// "application/x-www-form-urlencoded", the only POST body content type
// this engine parses into key/value pairs.
func IsFormContentType(value []byte) bool {
	return bytes.Equal(value, []byte(contentTypeForm))
}

// ParseAcceptEncoding scans comma-separated tokens and, after skipping any
// leading whitespace, sets FlagAcceptGzip for a token starting with "gzip"
// and FlagAcceptDeflate for a token starting with "defl".
func ParseAcceptEncoding(value []byte) Flags {
	var flags Flags
	for _, tok := range bytes.Split(value, []byte(",")) {
		tok = tok[bytesutil.SkipLeadingWhitespace(tok):]
		switch {
		case bytes.HasPrefix(tok, []byte("gzip")):
			flags |= FlagAcceptGzip
		case bytes.HasPrefix(tok, []byte("defl")):
			flags |= FlagAcceptDeflate
		}
	}
	return flags
}

// KVDecoder decodes (and validates) one key or value slice in place,
// returning the decoded length and whether decoding succeeded.
type KVDecoder func(s []byte) (n int, ok bool)

// IdentityDecoder validates non-emptiness without transforming s; used
// for cookie names/values, which are not percent-encoded.
func IdentityDecoder(s []byte) (int, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return len(s), true
}

// ParseKeyValues parses a separator-delimited key=value sequence (used for
// cookies, query strings, and form bodies) into up to MaxPairs entries,
// applying decode to both the key and the value of each pair, then sorts
// the result by key to enable binary-search lookup. An empty key or a
// value that fails to decode aborts the whole parse (returns ok=false).
func ParseKeyValues(s []byte, sep byte, decode KVDecoder) (Pairs, bool) {
	var pairs Pairs

	i := 0
	for i < len(s) && len(pairs) < MaxPairs {
		for i < len(s) && (s[i] == ' ' || s[i] == sep) {
			i++
		}
		if i >= len(s) {
			break
		}

		var end int
		if next := bytes.IndexByte(s[i:], sep); next != -1 {
			end = i + next
		} else {
			end = len(s)
		}

		eq := bytes.IndexByte(s[i:end], '=')
		if eq == -1 {
			return nil, false
		}
		eq += i

		key := s[i:eq]
		value := s[eq+1 : end]

		kn, ok := decode(key)
		if !ok || kn == 0 {
			return nil, false
		}
		key = key[:kn]

		vn, ok := decode(value)
		if !ok || vn == 0 {
			return nil, false
		}
		value = value[:vn]

		pairs = append(pairs, Pair{Key: key, Value: value})
		i = end
	}

	pairs.Sort()
	return pairs, true
}
