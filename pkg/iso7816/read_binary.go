package iso7816

import (
	"fmt"
)

// READ BINARY COMMAND LOGIC (ISO 7816-4):
// The READ BINARY command (INS 'B0') reads part of a transparent Elementary File.
//
// P1-P2 (Offset):
// - With bit 8 of P1 at 0, P1-P2 encode a 15-bit offset into the current EF.
// - Bit 8 of P1 at 1 selects the short file identifier form, which is not built here.
//
// Le is the number of bytes to read. READ BINARY is a "Case 2" command.

// MaxBinaryOffset is the largest offset addressable with the 15-bit P1-P2 form.
const MaxBinaryOffset = 0x7FFF

// NewReadBinaryCommand creates a READ BINARY command on the current EF.
func NewReadBinaryCommand(cla Class, offset uint16, length int) (*CommandAPDU, error) {
	if offset > MaxBinaryOffset {
		return nil, fmt.Errorf("offset %d exceeds %d", offset, MaxBinaryOffset)
	}
	if length < 1 || length > MaxExtendedLe {
		return nil, fmt.Errorf("invalid read length %d", length)
	}

	ins, _ := NewInstruction(INS_READ_BINARY)

	return NewCommandAPDU(cla, ins, byte(offset>>8), byte(offset), nil, length), nil
}

// NewGetResponseCommand creates the GET RESPONSE command that retrieves
// data announced by a '61XX' status.
func NewGetResponseCommand(cla Class, length int) *CommandAPDU {
	ins, _ := NewInstruction(INS_GET_RESPONSE)
	return NewCommandAPDU(cla, ins, 0x00, 0x00, nil, length)
}
