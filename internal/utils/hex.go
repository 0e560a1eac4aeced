package utils

const hexDigits = "0123456789ABCDEF"

// Hex4 renders a BLE company identifier as four upper-case hex digits ("09C7").
func Hex4(v uint16) string {
	return string([]byte{
		hexDigits[(v>>12)&0xF],
		hexDigits[(v>>8)&0xF],
		hexDigits[(v>>4)&0xF],
		hexDigits[v&0xF],
	})
}

// BytesToHex renders raw advertisement or characteristic bytes for logs.
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexDigits[x>>4], hexDigits[x&0x0F])
	}
	return string(out)
}
