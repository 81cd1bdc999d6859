package request

import (
	"testing"

	"github.com/watt-toolkit/ingress/pkg/ingress/bytesutil"
)

func TestParseIfModifiedSince(t *testing.T) {
	seconds, ok := ParseIfModifiedSince([]byte("Sun, 06 Nov 1994 08:49:37 GMT"))
	if !ok {
		t.Fatal("ParseIfModifiedSince ok = false")
	}
	if seconds != 784111777 {
		t.Errorf("seconds = %d, want 784111777", seconds)
	}

	if _, ok := ParseIfModifiedSince([]byte("garbage")); ok {
		t.Error("ParseIfModifiedSince(garbage) ok = true, want false")
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in         string
		from, to   int64
	}{
		{"bytes=100-199", 100, 199},
		{"bytes=-50", 0, 50},
		{"bytes=500-", 500, -1},
		{"foo", -1, -1},
		{"bytes=", -1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			from, to := ParseRange([]byte(tt.in))
			if from != tt.from || to != tt.to {
				t.Errorf("ParseRange(%q) = (%d, %d), want (%d, %d)", tt.in, from, to, tt.from, tt.to)
			}
		})
	}
}

func TestParseAcceptEncoding(t *testing.T) {
	flags := ParseAcceptEncoding([]byte("gzip, deflate"))
	if flags&FlagAcceptGzip == 0 {
		t.Error("FlagAcceptGzip not set")
	}
	if flags&FlagAcceptDeflate == 0 {
		t.Error("FlagAcceptDeflate not set")
	}

	flags = ParseAcceptEncoding([]byte("br"))
	if flags != 0 {
		t.Errorf("flags = %v, want 0", flags)
	}
}

func TestParseKeyValuesQuery(t *testing.T) {
	pairs, ok := ParseKeyValues([]byte("b=2&a=1&c=hello%20world"), '&', bytesutil.URLDecode)
	if !ok {
		t.Fatal("ParseKeyValues ok = false")
	}
	if len(pairs) != 3 {
		t.Fatalf("len(pairs) = %d, want 3", len(pairs))
	}
	// sorted ascending by key: a, b, c
	if string(pairs[0].Key) != "a" || string(pairs[1].Key) != "b" || string(pairs[2].Key) != "c" {
		t.Fatalf("pairs not sorted: %+v", pairs)
	}
	v, ok := pairs.Get([]byte("a"))
	if !ok || string(v) != "1" {
		t.Errorf("Get(a) = %q, %v, want 1, true", v, ok)
	}
	v, ok = pairs.Get([]byte("c"))
	if !ok || string(v) != "hello world" {
		t.Errorf("Get(c) = %q, %v, want %q, true", v, ok, "hello world")
	}
}

func TestParseKeyValuesCookies(t *testing.T) {
	pairs, ok := ParseKeyValues([]byte("a=1; b=2"), ';', IdentityDecoder)
	if !ok {
		t.Fatal("ParseKeyValues ok = false")
	}
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
}

func TestParseKeyValuesEmptyKeyAborts(t *testing.T) {
	_, ok := ParseKeyValues([]byte("=1"), '&', IdentityDecoder)
	if ok {
		t.Error("ParseKeyValues ok = true, want false for empty key")
	}
}

func TestParseKeyValuesMaxPairs(t *testing.T) {
	var buf []byte
	for i := 0; i < MaxPairs+10; i++ {
		if i > 0 {
			buf = append(buf, '&')
		}
		buf = append(buf, []byte{'k', byte('a' + i%26), '=', 'v'}...)
	}
	pairs, ok := ParseKeyValues(buf, '&', IdentityDecoder)
	if !ok {
		t.Fatal("ParseKeyValues ok = false")
	}
	if len(pairs) != MaxPairs {
		t.Errorf("len(pairs) = %d, want %d", len(pairs), MaxPairs)
	}
}
