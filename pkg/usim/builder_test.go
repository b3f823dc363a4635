package usim

import (
	"bytes"
	"testing"

	"github.com/gregLibert/usim-gateway/pkg/iso7816"
	"github.com/gregLibert/usim-gateway/pkg/tlv"
)

const (
	fixtureRAND = "D6BA0C396BCE3189EF8B49FAF3F67462"
	fixtureAUTN = "B46F17E0F84F8000E6693AE37446963E"
)

func TestBuilders(t *testing.T) {
	auth, err := Authenticate(tlv.Hex(fixtureRAND), tlv.Hex(fixtureAUTN))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	tests := []struct {
		name     string
		cmd      *iso7816.CommandAPDU
		expected []byte
	}{
		{"Select MF", SelectByFileID(FileMF), tlv.Hex("00A4000002 3F00")},
		{"Select DF_GSM", SelectByFileID(FileDFGSM), tlv.Hex("00A4000002 7F20")},
		{"Select EF_IMSI", SelectByFileID(FileEFIMSI), tlv.Hex("00A4000002 6F07")},
		{"Select EF_DIR", SelectByFileID(FileEFDir), tlv.Hex("00A4000002 2F00")},
		{"Select USIM AID", SelectByAID(AID), tlv.Hex("00A4040010 A0000000871002FFFFFFFF8903050001")},
		{"Read 9 bytes", ReadBinary(9), tlv.Hex("00B0000009")},
		{"Read 256 bytes", ReadBinary(0), tlv.Hex("00B0000000")},
		{"Get response 2C", GetResponse(0x2C), tlv.Hex("00C000002C")},
		{"Get response 256", GetResponse(0), tlv.Hex("00C0000000")},
		{
			name: "Authenticate 3G context",
			cmd:  auth,
			expected: tlv.Hex(
				"00 88 00 81", // P2=81: specific reference data, 3G context
				"22",          // Lc=34
				"10", fixtureRAND,
				"10", fixtureAUTN,
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() error = %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("got %X, want %X", got, tt.expected)
			}
		})
	}
}

func TestAuthenticate_InvalidLengths(t *testing.T) {
	if _, err := Authenticate(tlv.Hex("00"), tlv.Hex(fixtureAUTN)); err == nil {
		t.Error("expected error for short RAND")
	}
	if _, err := Authenticate(tlv.Hex(fixtureRAND), tlv.Hex(fixtureAUTN+"00")); err == nil {
		t.Error("expected error for long AUTN")
	}
}
