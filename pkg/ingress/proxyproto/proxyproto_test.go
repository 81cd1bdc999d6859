package proxyproto

import (
	"bytes"
	"testing"
)

func TestDecodeV1(t *testing.T) {
	buf := []byte("PROXY TCP4 1.2.3.4 5.6.7.8 11111 22222\r\nGET / HTTP/1.1\r\n\r\n")

	hdr, consumed, present, ok := Decode(buf)
	if !present || !ok {
		t.Fatalf("Decode() present=%v ok=%v, want true,true", present, ok)
	}
	if hdr.Family != FamilyIPv4 {
		t.Errorf("Family = %v, want IPv4", hdr.Family)
	}
	if hdr.SrcAddr.String() != "1.2.3.4" || hdr.SrcPort != 11111 {
		t.Errorf("src = %s:%d, want 1.2.3.4:11111", hdr.SrcAddr, hdr.SrcPort)
	}
	if hdr.DstAddr.String() != "5.6.7.8" || hdr.DstPort != 22222 {
		t.Errorf("dst = %s:%d, want 5.6.7.8:22222", hdr.DstAddr, hdr.DstPort)
	}
	if !bytes.HasPrefix(buf[consumed:], []byte("GET ")) {
		t.Errorf("consumed=%d left %q, want remainder starting with GET", consumed, buf[consumed:])
	}
}

func TestDecodeV1Malformed(t *testing.T) {
	tests := []string{
		"PROXY TCP4 1.2.3.4 5.6.7.8 11111\r\n",    // missing field
		"PROXY UDP4 1.2.3.4 5.6.7.8 1 2\r\n",      // bad protocol
		"PROXY TCP4 notanip 5.6.7.8 1 2\r\n",      // bad ip
		"PROXY TCP4 1.2.3.4 5.6.7.8 99999 2\r\n",  // bad port
		"PROXY TCP4 1.2.3.4 5.6.7.8 1 2 extra\r\n", // too many fields
	}
	for _, s := range tests {
		_, _, present, ok := Decode([]byte(s))
		if !present {
			t.Errorf("Decode(%q) present=false, want true", s)
		}
		if ok {
			t.Errorf("Decode(%q) ok=true, want false", s)
		}
	}
}

func TestDecodeV2Local(t *testing.T) {
	buf := append([]byte{}, v2Signature[:]...)
	buf = append(buf, cmdVerLocal, 0x00, 0x00, 0x00)
	buf = append(buf, []byte("GET / HTTP/1.1\r\n\r\n")...)

	hdr, consumed, present, ok := Decode(buf)
	if !present || !ok {
		t.Fatalf("Decode() present=%v ok=%v, want true,true", present, ok)
	}
	if hdr.Family != FamilyUnspec {
		t.Errorf("Family = %v, want Unspec", hdr.Family)
	}
	if consumed != v2FixedHeaderLen {
		t.Errorf("consumed = %d, want %d", consumed, v2FixedHeaderLen)
	}
}

func TestDecodeV2IPv4(t *testing.T) {
	buf := append([]byte{}, v2Signature[:]...)
	buf = append(buf, cmdVerProxy, famIPv4, 0x00, 12)
	buf = append(buf, 1, 2, 3, 4)       // src
	buf = append(buf, 5, 6, 7, 8)       // dst
	buf = append(buf, 0x2B, 0x67)       // src port 11111
	buf = append(buf, 0x56, 0xCE)       // dst port 22222

	hdr, consumed, present, ok := Decode(buf)
	if !present || !ok {
		t.Fatalf("Decode() present=%v ok=%v, want true,true", present, ok)
	}
	if hdr.Family != FamilyIPv4 {
		t.Errorf("Family = %v, want IPv4", hdr.Family)
	}
	if hdr.SrcAddr.String() != "1.2.3.4" || hdr.SrcPort != 11111 {
		t.Errorf("src = %s:%d, want 1.2.3.4:11111", hdr.SrcAddr, hdr.SrcPort)
	}
	if consumed != v2FixedHeaderLen+12 {
		t.Errorf("consumed = %d, want %d", consumed, v2FixedHeaderLen+12)
	}
}

func TestDecodeAbsent(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\n\r\n")
	hdr, consumed, present, ok := Decode(buf)
	if present {
		t.Fatalf("Decode() present=true, want false")
	}
	if !ok {
		t.Fatalf("Decode() ok=false, want true (absent is not a failure)")
	}
	if consumed != 0 {
		t.Errorf("consumed = %d, want 0", consumed)
	}
	_ = hdr
}
