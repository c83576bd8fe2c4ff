// Variable-length integer coding for host link payloads. Small magnitudes
// dominate status traffic, so a 7-bit groups encoding keeps frames short.
package link

import "errors"

var (
	ErrShortBuffer = errors.New("link: buffer too small")
)

// AppendInt appends the VLQ encoding of v to dst. Values are emitted most
// significant group first, with the high bit marking continuation.
func AppendInt(dst []byte, v int32) []byte {
	if !(-(1<<26) <= v && v < (3<<26)) {
		dst = append(dst, byte((v>>28)&0x7F)|0x80)
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		dst = append(dst, byte((v>>21)&0x7F)|0x80)
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		dst = append(dst, byte((v>>14)&0x7F)|0x80)
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		dst = append(dst, byte((v>>7)&0x7F)|0x80)
	}
	return append(dst, byte(v&0x7F))
}

// AppendUint appends the VLQ encoding of an unsigned value.
func AppendUint(dst []byte, v uint32) []byte {
	return AppendInt(dst, int32(v))
}

// ReadInt decodes one VLQ integer from *data, advancing the slice past the
// consumed bytes.
func ReadInt(data *[]byte) (int32, error) {
	if len(*data) == 0 {
		return 0, ErrShortBuffer
	}
	c := uint32((*data)[0])
	*data = (*data)[1:]

	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F) // sign extend the first group
	}
	for c&0x80 != 0 {
		if len(*data) == 0 {
			return 0, ErrShortBuffer
		}
		c = uint32((*data)[0])
		*data = (*data)[1:]
		v = v<<7 | c&0x7F
	}
	return int32(v), nil
}

// ReadUint decodes one VLQ unsigned integer from *data.
func ReadUint(data *[]byte) (uint32, error) {
	v, err := ReadInt(data)
	return uint32(v), err
}
