package request

import "encoding/binary"

// parseMethod compares the first bytes of line against "GET ", "HEAD", or
// "POST" via a packed-integer switch (4-byte little-endian words), and
// returns the method flag plus the number of bytes to advance past the
// method token including its trailing space.
func parseMethod(line []byte) (flag Flags, advance int, ok bool) {
	if len(line) < 4 {
		return 0, 0, false
	}
	word := binary.LittleEndian.Uint32(line)

	switch word {
	case binary.LittleEndian.Uint32(methodGETBytes):
		return FlagMethodGET, 4, true
	case binary.LittleEndian.Uint32(methodHEADBytes[:4]):
		if len(line) < 5 || line[4] != ' ' {
			return 0, 0, false
		}
		return FlagMethodHEAD, 5, true
	case binary.LittleEndian.Uint32(methodPOSTBytes[:4]):
		if len(line) < 5 || line[4] != ' ' {
			return 0, 0, false
		}
		return FlagMethodPOST, 5, true
	default:
		return 0, 0, false
	}
}
