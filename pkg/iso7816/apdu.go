package iso7816

import (
	"errors"
	"fmt"
)

// COMMAND APDU (ISO/IEC 7816-3 12.1, ISO/IEC 7816-4 5.1):
//
//	CLA INS P1 P2                  case 1
//	CLA INS P1 P2 Le               case 2
//	CLA INS P1 P2 Lc Data          case 3
//	CLA INS P1 P2 Lc Data Le       case 4
//
// Lc and Le take one byte each unless Nc > 255 or Ne > 256. Then Lc is '00' plus two
// bytes and Le is two bytes, preceded by '00' when there is no Lc. A zero Le stands
// for the maximum: 256 short, 65536 extended.
//
// A UICC on T=0 never sees an extended APDU; the modem and reader paths only use short ones.

const (
	MaxShortLc    = 255
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536

	// MaxAPDUBufferSize fits the longest extended case 4 APDU.
	MaxAPDUBufferSize = 4 + 3 + MaxExtendedLc + 2 + 1
)

// ErrResponseTooShort is returned when a response carries no complete status word.
var ErrResponseTooShort = errors.New("response too short")

// CommandAPDU is a command before encoding. Ne is the expected response length, 0 for none.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int
}

func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{Class: cla, Instruction: ins, P1: p1, P2: p2, Data: data, Ne: ne}
}

// Bytes encodes the command, in extended form only when Nc or Ne requires it.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	cla, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}

	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedLc || ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("Lc %d or Le %d out of range", nc, ne)
	}
	extended := nc > MaxShortLc || ne > MaxShortLe

	out := make([]byte, 0, 4+3+nc+2)
	out = append(out, cla, byte(c.Instruction.Raw), c.P1, c.P2)

	switch {
	case nc > 0 && extended:
		out = append(out, 0x00, byte(nc>>8), byte(nc))
		out = append(out, c.Data...)
	case nc > 0:
		out = append(out, byte(nc))
		out = append(out, c.Data...)
	}

	switch {
	case ne == 0:
	case !extended:
		// 256 wraps to '00'.
		out = append(out, byte(ne))
	default:
		if nc == 0 {
			out = append(out, 0x00)
		}
		// 65536 wraps to '0000'.
		out = append(out, byte(ne>>8), byte(ne))
	}
	return out, nil
}

// ParseCommandAPDU decodes a raw C-APDU, the reverse of Bytes.
// Short and extended length encodings are both accepted.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}

	cla, err := NewClass(raw[0])
	if err != nil {
		return nil, err
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, err
	}

	cmd := NewCommandAPDU(cla, ins, raw[2], raw[3], nil, 0)
	body := raw[4:]

	switch {
	case len(body) == 0:
		// Case 1
	case len(body) == 1:
		// Case 2 Short
		cmd.Ne = decodeShortLe(body[0])
	case body[0] != 0x00:
		// Case 3/4 Short
		nc := int(body[0])
		switch len(body) {
		case 1 + nc:
		case 2 + nc:
			cmd.Ne = decodeShortLe(body[1+nc])
		default:
			return nil, fmt.Errorf("Lc %d inconsistent with body length %d", nc, len(body))
		}
		cmd.Data = append([]byte(nil), body[1:1+nc]...)
	case len(body) == 3:
		// Case 2 Extended
		cmd.Ne = decodeExtendedLe(body[1], body[2])
	default:
		// Case 3/4 Extended
		if len(body) < 3 {
			return nil, fmt.Errorf("truncated extended length field")
		}
		nc := int(body[1])<<8 | int(body[2])
		switch len(body) {
		case 3 + nc:
		case 5 + nc:
			cmd.Ne = decodeExtendedLe(body[3+nc], body[4+nc])
		default:
			return nil, fmt.Errorf("extended Lc %d inconsistent with body length %d", nc, len(body))
		}
		cmd.Data = append([]byte(nil), body[3:3+nc]...)
	}

	return cmd, nil
}

func decodeShortLe(le byte) int {
	if le == 0 {
		return MaxShortLe
	}
	return int(le)
}

func decodeExtendedLe(hi, lo byte) int {
	ne := int(hi)<<8 | int(lo)
	if ne == 0 {
		return MaxExtendedLe
	}
	return ne
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU is the data field of a response and its trailer.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw into data and status word. Data aliases raw.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: length %d", ErrResponseTooShort, len(raw))
	}

	n := len(raw) - 2
	return &ResponseAPDU{Data: raw[:n], Status: NewStatusWord(raw[n], raw[n+1])}, nil
}

// Bytes encodes the response back into data followed by SW1 SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
