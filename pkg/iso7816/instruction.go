package iso7816

import (
	"fmt"

	"github.com/gregLibert/usim-gateway/pkg/bits"
)

// Instruction Byte (INS) Logic according to ISO/IEC 7816-4.
//
// The INS byte identifies the specific command to be performed by the card.
//
// 1. Data Encoding (Bit 1):
//    When using the interindustry class, the least significant bit (Bit 1) often indicates
//    the format of the data field.
//    - 0: Standard or no specific formatting.
//    - 1: BER-TLV encoded data structure.
//    Example: READ BINARY (0xB0) vs READ BINARY (BER-TLV) (0xB1).
//
// 2. Reserved Ranges:
//    INS values where the upper nibble is '6' or '9' (0x6X or 0x9X) are invalid.
//    These values are reserved for Status Words (SW1) or transport layer control
//    procedures (ISO/IEC 7816-3).

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction (INS) codes used by UICC/USIM applications (ISO/IEC 7816-4, ETSI TS 102 221).
const (
	INS_VERIFY            InsCode = 0x20
	INS_MANAGE_CHANNEL    InsCode = 0x70
	INS_GET_CHALLENGE     InsCode = 0x84
	INS_AUTHENTICATE      InsCode = 0x88 // INTERNAL AUTHENTICATE in ISO 7816-4
	INS_SELECT            InsCode = 0xA4
	INS_READ_BINARY       InsCode = 0xB0
	INS_READ_BINARY_BER   InsCode = 0xB1
	INS_READ_RECORD       InsCode = 0xB2
	INS_GET_RESPONSE      InsCode = 0xC0
	INS_ENVELOPE          InsCode = 0xC2
	INS_GET_DATA          InsCode = 0xCA
	INS_UPDATE_BINARY     InsCode = 0xD6
	INS_UPDATE_RECORD     InsCode = 0xDC
	INS_STATUS            InsCode = 0xF2
	INS_TERMINAL_PROFILE  InsCode = 0x10
	INS_FETCH             InsCode = 0x12
	INS_TERMINAL_RESPONSE InsCode = 0x14
)

var insNames = map[InsCode]string{
	INS_VERIFY:            "VERIFY",
	INS_MANAGE_CHANNEL:    "MANAGE CHANNEL",
	INS_GET_CHALLENGE:     "GET CHALLENGE",
	INS_AUTHENTICATE:      "AUTHENTICATE",
	INS_SELECT:            "SELECT",
	INS_READ_BINARY:       "READ BINARY",
	INS_READ_BINARY_BER:   "READ BINARY (BER-TLV)",
	INS_READ_RECORD:       "READ RECORD",
	INS_GET_RESPONSE:      "GET RESPONSE",
	INS_ENVELOPE:          "ENVELOPE",
	INS_GET_DATA:          "GET DATA",
	INS_UPDATE_BINARY:     "UPDATE BINARY",
	INS_UPDATE_RECORD:     "UPDATE RECORD",
	INS_STATUS:            "STATUS",
	INS_TERMINAL_PROFILE:  "TERMINAL PROFILE",
	INS_FETCH:             "FETCH",
	INS_TERMINAL_RESPONSE: "TERMINAL RESPONSE",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction object with validation.
// It rejects '6X' and '9X' values as they are invalid according to ISO 7816-3.
func NewInstruction(ins InsCode) (Instruction, error) {
	// Validation: values starting with '6' or '9' are invalid for INS.
	highNibble := byte(ins) & 0xF0
	if highNibble == 0x60 || highNibble == 0x90 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", ins)
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1), // Bit 1 indicates BER-TLV preference
	}, nil
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw.String(), format)
}
