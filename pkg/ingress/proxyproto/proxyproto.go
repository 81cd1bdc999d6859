// Package proxyproto decodes the optional PROXY protocol v1 (textual) and
// v2 (binary) preamble that precedes an HTTP request when a connection has
// been forwarded through a load balancer or proxy.
package proxyproto

import (
	"encoding/binary"
	"errors"
	"net"
)

// Family identifies the address family carried by a PROXY protocol header.
type Family uint8

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

// Header is the decoded result of a PROXY protocol preamble.
type Header struct {
	Family  Family
	SrcAddr net.IP
	DstAddr net.IP
	SrcPort uint16
	DstPort uint16
}

// ErrMalformed names the failure Decode reports with ok=false: a PROXY
// preamble is present but does not parse. Decode itself does not return
// it; the driver answers that case with 400 Bad Request.
var ErrMalformed = errors.New("proxyproto: malformed preamble")

const (
	v1Prefix  = "PROXY "
	maxV1Line = 108

	v2FixedHeaderLen = 16
	cmdVerLocal      = 0x20
	cmdVerProxy      = 0x21
	famIPv4          = 0x11
	famIPv6          = 0x21
)

var v2Signature = [12]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

// Decode inspects the first bytes of buf for a PROXY protocol preamble.
//
// If no recognized signature is present, present is false and buf is
// returned untouched (consumed is 0). If a signature is present but the
// header fails to parse, ok is false and the caller must treat it as
// ErrMalformed. On success, consumed is the number of leading bytes of
// buf occupied by the header (the caller advances past them).
func Decode(buf []byte) (hdr Header, consumed int, present bool, ok bool) {
	if len(buf) < 4 {
		return Header{}, 0, false, true
	}

	switch {
	case string(buf[:4]) == v1Prefix[:4]:
		return decodeV1(buf)
	case buf[0] == v2Signature[0] && buf[1] == v2Signature[1] && buf[2] == v2Signature[2] && buf[3] == v2Signature[3]:
		return decodeV2(buf)
	default:
		return Header{}, 0, false, true
	}
}

func decodeV1(buf []byte) (hdr Header, consumed int, present bool, ok bool) {
	limit := len(buf)
	if limit > maxV1Line {
		limit = maxV1Line
	}

	crlf := -1
	for i := 0; i+1 < limit; i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			crlf = i
			break
		}
	}
	if crlf < 0 {
		return Header{}, 0, true, false
	}

	line := buf[:crlf]
	if len(line) < len(v1Prefix) || string(line[:len(v1Prefix)]) != v1Prefix {
		return Header{}, 0, true, false
	}

	fields := splitSpaces(line[len(v1Prefix):])
	if len(fields) != 5 {
		return Header{}, 0, true, false
	}

	var fam Family
	switch string(fields[0]) {
	case "TCP4":
		fam = FamilyIPv4
	case "TCP6":
		fam = FamilyIPv6
	default:
		return Header{}, 0, true, false
	}

	srcIP := net.ParseIP(string(fields[1]))
	dstIP := net.ParseIP(string(fields[2]))
	if srcIP == nil || dstIP == nil {
		return Header{}, 0, true, false
	}

	srcPort, ok1 := parsePort(fields[3])
	dstPort, ok2 := parsePort(fields[4])
	if !ok1 || !ok2 {
		return Header{}, 0, true, false
	}

	hdr = Header{
		Family:  fam,
		SrcAddr: srcIP,
		DstAddr: dstIP,
		SrcPort: srcPort,
		DstPort: dstPort,
	}
	return hdr, crlf + 2, true, true
}

func decodeV2(buf []byte) (hdr Header, consumed int, present bool, ok bool) {
	if len(buf) < v2FixedHeaderLen {
		return Header{}, 0, true, false
	}
	for i := 0; i < 12; i++ {
		if buf[i] != v2Signature[i] {
			return Header{}, 0, true, false
		}
	}

	cmdVer := buf[12]
	famProto := buf[13]
	addrLen := int(binary.BigEndian.Uint16(buf[14:16]))

	if v2FixedHeaderLen+addrLen > len(buf) {
		return Header{}, 0, true, false
	}

	switch cmdVer {
	case cmdVerLocal:
		return Header{Family: FamilyUnspec}, v2FixedHeaderLen + addrLen, true, true

	case cmdVerProxy:
		addr := buf[v2FixedHeaderLen : v2FixedHeaderLen+addrLen]
		switch famProto {
		case famIPv4:
			if addrLen < 12 {
				return Header{}, 0, true, false
			}
			hdr = Header{
				Family:  FamilyIPv4,
				SrcAddr: net.IP(append([]byte(nil), addr[0:4]...)),
				DstAddr: net.IP(append([]byte(nil), addr[4:8]...)),
				SrcPort: binary.BigEndian.Uint16(addr[8:10]),
				DstPort: binary.BigEndian.Uint16(addr[10:12]),
			}
			return hdr, v2FixedHeaderLen + addrLen, true, true

		case famIPv6:
			if addrLen < 36 {
				return Header{}, 0, true, false
			}
			hdr = Header{
				Family:  FamilyIPv6,
				SrcAddr: net.IP(append([]byte(nil), addr[0:16]...)),
				DstAddr: net.IP(append([]byte(nil), addr[16:32]...)),
				SrcPort: binary.BigEndian.Uint16(addr[32:34]),
				DstPort: binary.BigEndian.Uint16(addr[34:36]),
			}
			return hdr, v2FixedHeaderLen + addrLen, true, true

		default:
			return Header{}, 0, true, false
		}

	default:
		return Header{}, 0, true, false
	}
}

func splitSpaces(s []byte) [][]byte {
	var fields [][]byte
	start := -1
	for i, c := range s {
		if c == ' ' {
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}

func parsePort(s []byte) (uint16, bool) {
	if len(s) == 0 || len(s) > 5 {
		return 0, false
	}
	var v uint32
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint32(c-'0')
		if v > 65535 {
			return 0, false
		}
	}
	return uint16(v), true
}
