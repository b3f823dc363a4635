package usim

import (
	"fmt"

	"github.com/gregLibert/usim-gateway/pkg/bits"
)

// EF_IMSI CODING (3GPP TS 31.102, 4.2.2):
//
//	Byte 1     Length of the IMSI in bytes (08)
//	Byte 2     Digit 1 (high nibble) | Parity/Type indicator (low nibble, 9 for an odd IMSI)
//	Byte 3..9  Digit 2n+1 (high nibble) | Digit 2n (low nibble)
//
// Swapping the nibbles of every byte and reading the result as hexadecimal yields
// "<len><parity><digits>", so the IMSI is the last 15 characters.

const (
	// IMSIFileSize is the size of EF_IMSI.
	IMSIFileSize = 9
	// IMSIDigits is the number of digits read from EF_IMSI.
	IMSIDigits = 15

	imsiLength    = 0x08
	imsiParityOdd = 0x09
	hexDigits     = "0123456789ABCDEF"
)

// ParseIMSI decodes the content of EF_IMSI.
func ParseIMSI(data []byte) (string, error) {
	if len(data) != IMSIFileSize {
		return "", fmt.Errorf("%w: EF_IMSI must be %d bytes, got %d", ErrMalformed, IMSIFileSize, len(data))
	}

	swapped := make([]byte, 0, 2*len(data))
	for _, b := range data {
		s := bits.SwapNibbles(b)
		swapped = append(swapped, hexDigits[bits.HighNibble(s)], hexDigits[bits.LowNibble(s)])
	}

	imsi := string(swapped[len(swapped)-IMSIDigits:])
	for i := 0; i < len(imsi); i++ {
		if imsi[i] < '0' || imsi[i] > '9' {
			return "", fmt.Errorf("%w: EF_IMSI %X holds non-decimal digits", ErrMalformed, data)
		}
	}
	return imsi, nil
}

// EncodeIMSI produces the EF_IMSI content for a 15-digit IMSI.
func EncodeIMSI(imsi string) ([]byte, error) {
	if len(imsi) != IMSIDigits {
		return nil, fmt.Errorf("IMSI must have %d digits, got %d", IMSIDigits, len(imsi))
	}

	digits := make([]byte, len(imsi))
	for i := 0; i < len(imsi); i++ {
		if imsi[i] < '0' || imsi[i] > '9' {
			return nil, fmt.Errorf("IMSI %q holds a non-decimal character", imsi)
		}
		digits[i] = imsi[i] - '0'
	}

	out := make([]byte, IMSIFileSize)
	out[0] = imsiLength
	out[1] = bits.Pack(digits[0], imsiParityOdd)
	for i := 2; i < IMSIFileSize; i++ {
		out[i] = bits.Pack(digits[2*i-2], digits[2*i-3])
	}
	return out, nil
}
