package softcard

import (
	"bytes"
	"testing"

	"github.com/gregLibert/usim-gateway/pkg/iso7816"
	"github.com/gregLibert/usim-gateway/pkg/tlv"
)

func newTestCard(t *testing.T, mutate func(*Config)) *Card {
	t.Helper()

	cfg := Config{IMSI: "001010123456789", K: ts1K, OPc: ts1OPc}
	if mutate != nil {
		mutate(&cfg)
	}
	card, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return card
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"Short IMSI", Config{IMSI: "0010101", K: ts1K, OPc: ts1OPc}},
		{"Missing K", Config{IMSI: "001010123456789", OPc: ts1OPc}},
		{"Short OPc", Config{IMSI: "001010123456789", K: ts1K, OPc: ts1OPc[:8]}},
	}
	for _, tt := range tests {
		if _, err := New(tt.cfg, nil); err == nil {
			t.Errorf("%s: New() expected error", tt.name)
		}
	}
}

func TestCard_Transmit(t *testing.T) {
	tests := []struct {
		name     string
		commands []string
		want     string // answer to the last command
	}{
		{"Select MF", []string{"00A40000023F00"}, "610D"},
		{"Select MF without data", []string{"00A4000C023F00"}, "9000"},
		{"Unknown file", []string{"00A40000026F99"}, "6A82"},
		{"EF_IMSI needs DF_GSM", []string{"00A40000023F00", "00A40000026F07"}, "6A82"},
		{"Read without EF", []string{"00A40000023F00", "00B0000009"}, "6986"},
		{
			name:     "Read EF_IMSI",
			commands: []string{"00A4000C023F00", "00A4000C027F20", "00A4000C026F07", "00B0000009"},
			want:     "080910101032547698 9000",
		},
		{
			name:     "Read EF_IMSI wrong length",
			commands: []string{"00A4000C023F00", "00A4000C027F20", "00A4000C026F07", "00B0000020"},
			want:     "6C09",
		},
		{
			name:     "Read EF_IMSI with Le 00",
			commands: []string{"00A4000C023F00", "00A4000C027F20", "00A4000C026F07", "00B0000000"},
			want:     "080910101032547698 9000",
		},
		{
			name:     "Read EF_IMSI by SFI in ADF",
			commands: []string{"00A4040C10A0000000871002FFFFFFFF8903050001", "00B0870009"},
			want:     "080910101032547698 9000",
		},
		{"Read EF_DIR as binary", []string{"00A4000C022F00", "00B0000009"}, "6981"},
		{"Partial AID", []string{"00A4040007A0000000871002"}, "611F"},
		{"Unknown AID", []string{"00A4040007A0000000031010"}, "6A82"},
		{"GET RESPONSE without data", []string{"00C0000010"}, "6985"},
		{"GET RESPONSE after other command", []string{"00A40000023F00", "00A4000C027F20", "00C000001A"}, "6985"},
		{"Unsupported class", []string{"80F2000000"}, "6E00"},
		{"Unsupported instruction", []string{"00E2000000"}, "6D00"},
		{"Invalid instruction", []string{"0061000000"}, "6D00"},
		{"Truncated command", []string{"00A4"}, "6700"},
		{"Lc mismatch", []string{"00A40000043F00"}, "6700"},
		{"Authenticate outside ADF", []string{"008800812210" + hexN(16) + "10" + hexN(16)}, "6985"},
		{"GSM context", []string{"008800802210" + hexN(16) + "10" + hexN(16)}, "9864"},
		{"Bad P1", []string{"008801812210" + hexN(16) + "10" + hexN(16)}, "6A86"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newTestCard(t, nil)

			var resp []byte
			for _, cmd := range tt.commands {
				var err error
				resp, err = card.Transmit(tlv.Hex(cmd))
				if err != nil {
					t.Fatalf("Transmit(%s) error = %v", cmd, err)
				}
			}
			if want := tlv.Hex(tt.want); !bytes.Equal(resp, want) {
				t.Errorf("got %X, want %X", resp, want)
			}
		})
	}
}

func hexN(n int) string {
	return string(bytes.Repeat([]byte("00"), n))
}

func TestCard_GetResponseInParts(t *testing.T) {
	card := newTestCard(t, nil)

	resp, _ := card.Transmit(tlv.Hex("00A4040010 A0000000871002FFFFFFFF8903050001"))
	if !bytes.Equal(resp, tlv.Hex("611F")) {
		t.Fatalf("SELECT = %X, want 611F", resp)
	}

	first, _ := card.Transmit(tlv.Hex("00C0000010"))
	if sw := first[len(first)-2:]; !bytes.Equal(sw, tlv.Hex("610F")) {
		t.Fatalf("first GET RESPONSE status = %X, want 610F", sw)
	}
	second, _ := card.Transmit(tlv.Hex("00C000000F"))
	if sw := second[len(second)-2:]; !bytes.Equal(sw, tlv.Hex("9000")) {
		t.Fatalf("second GET RESPONSE status = %X, want 9000", sw)
	}

	fcp := append(first[:len(first)-2:len(first)-2], second[:len(second)-2]...)
	fci, err := iso7816.ParseSelectData(fcp, 0x00)
	if err != nil {
		t.Fatalf("ParseSelectData() error = %v", err)
	}
	if id, ok := fci.FCP.ID(); !ok || id != 0x7FFF {
		t.Errorf("FCP file ID = %04X, %v", id, ok)
	}
	if !fci.FCP.IsDF() {
		t.Error("ADF should be described as a DF")
	}
	if !bytes.Equal(fci.FCP.DFName, tlv.Hex("A0000000871002FFFFFFFF8903050001")) {
		t.Errorf("DF name = %X", fci.FCP.DFName)
	}
}

func TestCard_FCP(t *testing.T) {
	card := newTestCard(t, func(c *Config) { c.DirectResponses = true })

	for _, cmd := range []string{"00A40000023F00", "00A40000027F20"} {
		card.Transmit(tlv.Hex(cmd))
	}
	resp, _ := card.Transmit(tlv.Hex("00A40000026F07"))
	if sw := resp[len(resp)-2:]; !bytes.Equal(sw, tlv.Hex("9000")) {
		t.Fatalf("SELECT EF_IMSI status = %X", sw)
	}

	fci, err := iso7816.ParseSelectData(resp[:len(resp)-2], 0x00)
	if err != nil {
		t.Fatalf("ParseSelectData() error = %v", err)
	}
	if got := fci.FCP.Size(); got != 9 {
		t.Errorf("EF_IMSI size = %d, want 9", got)
	}
	if fci.FCP.IsDF() {
		t.Error("EF_IMSI described as a DF")
	}
}
