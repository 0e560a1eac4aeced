package probe

import (
	"encoding/binary"
	"fmt"
)

// Probe status payload format: [0:4] min sequence uint32 LE, [4:8] max
// sequence uint32 LE, [8:21] eight 13-bit raw temperatures packed LSB first
// (21 bytes total).
const (
	PayloadLen     = 21
	rawFieldCount  = 8
	rawFieldBits   = 13
	rawFieldMask   = 1<<rawFieldBits - 1
	rawFieldOffset = 8
)

// Sample is a decoded probe status payload.
type Sample struct {
	Min uint32
	Max uint32
	// Raw holds all eight thermistor fields. Only Raw[0] feeds Celsius.
	Raw     [rawFieldCount]uint16
	Celsius float64
}

// Decode parses a probe status payload. Bytes past PayloadLen are ignored.
func Decode(b []byte) (Sample, error) {
	if len(b) < PayloadLen {
		return Sample{}, fmt.Errorf("%w: got %d, want %d", ErrInvalidPayloadLength, len(b), PayloadLen)
	}
	s := Sample{
		Min: binary.LittleEndian.Uint32(b[0:4]),
		Max: binary.LittleEndian.Uint32(b[4:8]),
	}
	packed := b[rawFieldOffset:PayloadLen]
	for i := range s.Raw {
		s.Raw[i] = unpack13(packed, i)
	}
	s.Celsius = RawToCelsius(s.Raw[0])
	return s, nil
}

// RawToCelsius converts a 13-bit raw thermistor value to degrees Celsius.
func RawToCelsius(raw uint16) float64 {
	return float64(int(raw)*5-2000) / 100.0
}

// CelsiusToRaw is the inverse of RawToCelsius, clamped to the 13-bit range.
func CelsiusToRaw(c float64) uint16 {
	v := (c*100 + 2000) / 5
	switch {
	case v <= 0:
		return 0
	case v >= rawFieldMask:
		return rawFieldMask
	}
	return uint16(v + 0.5)
}

// Encode builds a probe status payload. Celsius is ignored; Raw is packed
// as-is (values are masked to 13 bits).
func Encode(s Sample) []byte {
	b := make([]byte, PayloadLen)
	binary.LittleEndian.PutUint32(b[0:4], s.Min)
	binary.LittleEndian.PutUint32(b[4:8], s.Max)
	packed := b[rawFieldOffset:]
	for i, v := range s.Raw {
		pack13(packed, i, v)
	}
	return b
}

func unpack13(packed []byte, field int) uint16 {
	bit := field * rawFieldBits
	var v uint32
	for i := 0; i < 3; i++ {
		idx := bit/8 + i
		if idx >= len(packed) {
			break
		}
		v |= uint32(packed[idx]) << (8 * i)
	}
	return uint16(v>>(bit%8)) & rawFieldMask
}

func pack13(packed []byte, field int, value uint16) {
	bit := field * rawFieldBits
	v := uint32(value&rawFieldMask) << (bit % 8)
	for i := 0; i < 3; i++ {
		idx := bit/8 + i
		if idx >= len(packed) {
			break
		}
		packed[idx] |= byte(v >> (8 * i))
	}
}
