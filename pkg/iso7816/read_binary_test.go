package iso7816

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/gregLibert/usim-gateway/pkg/tlv"
)

func TestNewReadBinaryCommand(t *testing.T) {
	cls, _ := NewClass(0x00)

	mustCmd := func(cmd *CommandAPDU, err error) *CommandAPDU {
		t.Helper()
		if err != nil {
			t.Fatalf("builder failed: %v", err)
		}
		return cmd
	}

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected []byte
	}{
		{
			name:     "Read 9 bytes from offset 0 (EF_IMSI)",
			cmd:      mustCmd(NewReadBinaryCommand(cls, 0, 9)),
			expected: tlv.Hex("00 B0 00 00", "09"),
		},
		{
			name:     "Read 256 bytes from offset 0x0102",
			cmd:      mustCmd(NewReadBinaryCommand(cls, 0x0102, MaxShortLe)),
			expected: tlv.Hex("00 B0 01 02", "00"),
		},
		{
			name:     "GET RESPONSE 0x2C",
			cmd:      NewGetResponseCommand(cls, 0x2C),
			expected: tlv.Hex("00 C0 00 00", "2C"),
		},
		{
			name:     "GET RESPONSE 256",
			cmd:      NewGetResponseCommand(cls, MaxShortLe),
			expected: tlv.Hex("00 C0 00 00", "00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Failed to encode bytes: %v", err)
			}

			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Mismatch:\nExpected: %s\nGot:      %s",
					hex.EncodeToString(tt.expected),
					hex.EncodeToString(got))
			}
		})
	}
}

func TestNewReadBinaryCommand_Validation(t *testing.T) {
	cls, _ := NewClass(0x00)

	if _, err := NewReadBinaryCommand(cls, 0x8000, 1); err == nil {
		t.Error("expected error for offset above 15 bits")
	}
	if _, err := NewReadBinaryCommand(cls, 0, 0); err == nil {
		t.Error("expected error for zero length")
	}
}
