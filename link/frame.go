// Host link framing: [len][seq][payload...][crc16][sync]. The length byte
// covers the whole frame including itself and the trailing sync byte, so a
// receiver can resynchronize by scanning for the sync byte and validating
// backwards.
package link

import "errors"

const (
	SyncByte     = 0x7E
	headerLen    = 2 // length + sequence
	trailerLen   = 3 // crc16 + sync
	MaxPayload   = 64
	minFrameLen  = headerLen + trailerLen
	seqMask      = 0x0F
)

var (
	ErrFrameTooLong = errors.New("link: payload exceeds frame limit")
	ErrBadFrame     = errors.New("link: malformed frame")
	ErrBadCRC       = errors.New("link: checksum mismatch")
)

// crc16 is the frame checksum over the length, sequence and payload bytes.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ b16>>4 ^ b16<<3
	}
	return crc
}

// AppendFrame appends one complete frame carrying payload to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, byte(minFrameLen+len(payload)), seq&seqMask)
	dst = append(dst, payload...)
	crc := crc16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), SyncByte), nil
}

// Decode extracts the first complete frame from buf. It returns the payload
// (aliasing buf), the sequence number, and the number of bytes consumed.
// consumed is nonzero even on error, so the caller can skip garbage; a zero
// consumed count means more data is needed.
func Decode(buf []byte) (payload []byte, seq uint8, consumed int, err error) {
	// Skip to a plausible length byte.
	for len(buf) > 0 && (buf[0] < minFrameLen || int(buf[0]) > minFrameLen+MaxPayload) {
		buf = buf[1:]
		consumed++
	}
	if len(buf) == 0 {
		return nil, 0, consumed, nil
	}
	n := int(buf[0])
	if len(buf) < n {
		return nil, 0, consumed, nil
	}
	frame := buf[:n]
	if frame[n-1] != SyncByte {
		return nil, 0, consumed + 1, ErrBadFrame
	}
	want := uint16(frame[n-3])<<8 | uint16(frame[n-2])
	if crc16(frame[:n-trailerLen]) != want {
		return nil, 0, consumed + 1, ErrBadCRC
	}
	return frame[headerLen : n-trailerLen], frame[1] & seqMask, consumed + n, nil
}
