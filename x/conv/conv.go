// Package conv formats numbers into caller buffers without fmt or strconv,
// for firmware log lines.
package conv

const hexd = "0123456789ABCDEF"

// Utoa writes n in base 10 at the end of buf and returns the used tail.
// 20 bytes hold any uint64.
func Utoa(buf []byte, n uint64) []byte {
	i := len(buf)
	for i > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return buf[i:]
}

// U8Hex writes 2-digit uppercase hex without 0x.
func U8Hex(buf []byte, n uint8) []byte {
	if len(buf) < 2 {
		return buf[:0]
	}
	buf[0] = hexd[n>>4]
	buf[1] = hexd[n&0xF]
	return buf[:2]
}
