package iso7816

import (
	"bytes"
	"testing"

	"github.com/gregLibert/usim-gateway/pkg/tlv"
)

func TestNewSelectCommand(t *testing.T) {
	cls, _ := NewClass(0x00)

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected []byte
	}{
		{
			name:     "USIM ADF by AID",
			cmd:      SelectByAID(cls, tlv.Hex("A0000000871002FFFFFFFF8903050001")),
			expected: tlv.Hex("00A40400 10 A0000000871002FFFFFFFF8903050001"),
		},
		{
			name:     "DF_GSM by file ID",
			cmd:      SelectFile(cls, 0x7F20),
			expected: tlv.Hex("00A40000 02 7F20"),
		},
		{
			name:     "EF_IMSI by path from MF",
			cmd:      NewSelectCommand(cls, SelectPathFromMF, FirstOrOnlyOccurrence, ReturnFCP, tlv.Hex("7F206F07")),
			expected: tlv.Hex("00A40804 04 7F206F07"),
		},
		{
			name:     "Next occurrence, FCP",
			cmd:      NewSelectCommand(cls, SelectByDFName, NextOccurrence, ReturnFCP, tlv.Hex("A0000000871002")),
			expected: tlv.Hex("00A40406 07 A0000000871002"),
		},
		{
			name:     "No data",
			cmd:      NewSelectCommand(cls, SelectByFileID, FirstOrOnlyOccurrence, ReturnNoData, tlv.Hex("2F00")),
			expected: tlv.Hex("00A4000C 02 2F00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() error = %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Bytes() = %X, want %X", got, tt.expected)
			}
		})
	}
}

func TestSelectionNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{SelectByDFName.String(), "by DF name (AID)"},
		{SelectionMethod(0x42).String(), "method 42"},
		{NextOccurrence.String(), "next"},
		{ReturnFCP.String(), "FCP"},
		{ReturnNoData.String(), "no data"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
