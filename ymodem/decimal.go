package ymodem

import "math"

// maxDecimalDigits bounds the size field to what fits a 32-bit address space.
const maxDecimalDigits = 10

// parseDecimal converts an ASCII decimal field to an integer.
//
// Parsing stops at the first NUL or at the end of field. Any other non-digit, more
// than ten digits, or a value that does not fit in 32 bits makes the field invalid.
// An empty field parses as zero.
func parseDecimal(field []byte) (uint32, bool) {
	var val uint64
	for i, c := range field {
		if c == 0 {
			break
		}
		if i >= maxDecimalDigits {
			return 0, false
		}
		if c < '0' || c > '9' {
			return 0, false
		}
		val = val*10 + uint64(c-'0')
	}
	if val > math.MaxUint32 {
		return 0, false
	}
	return uint32(val), true
}
