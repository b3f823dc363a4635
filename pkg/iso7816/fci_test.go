package iso7816

import (
	"bytes"
	"testing"

	"github.com/gregLibert/usim-gateway/pkg/tlv"
)

func TestParseSelectData(t *testing.T) {
	const (
		p2FCI    byte = 0b0000_00_00
		p2FCP    byte = 0b0000_01_00
		p2NoData byte = 0b0000_11_00
	)

	tests := []struct {
		name    string
		raw     []byte
		p2      byte
		wantNil bool
		wantErr bool
		check   func(*testing.T, *FileControlInfo)
	}{
		{
			name: "EF_IMSI FCP",
			raw: tlv.Hex(
				"62 17",
				"82 02 4121",   // Working EF, transparent
				"83 02 6F07",   // FID
				"8A 01 05",     // Operational, activated
				"8B 03 6F0603", // Security attributes reference
				"80 02 0009",   // File size
				"88 01 38",     // SFI 07
			),
			p2: p2FCI,
			check: func(t *testing.T, fci *FileControlInfo) {
				if got := fci.FCP.Size(); got != 9 {
					t.Errorf("Size() = %d, want 9", got)
				}
				if id, ok := fci.FCP.ID(); !ok || id != 0x6F07 {
					t.Errorf("ID() = %04X, %v; want 6F07", id, ok)
				}
				if fci.FCP.IsDF() {
					t.Errorf("IsDF() = true for an EF")
				}
				if got := fci.FCP.Structure(); got != StructureTransparent {
					t.Errorf("Structure() = %s", got)
				}
				if sfi, ok := fci.FCP.SFI(); !ok || sfi != 0x07 {
					t.Errorf("SFI() = %02X, %v; want 07", sfi, ok)
				}
			},
		},
		{
			name: "ADF FCP",
			raw: tlv.Hex(
				"62 1D",
				"82 02 7821",
				"83 02 7FFF",
				"84 10 A0000000871002FFFFFFFF8903050001",
				"8A 01 05",
			),
			p2: p2FCP,
			check: func(t *testing.T, fci *FileControlInfo) {
				if !fci.FCP.IsDF() {
					t.Errorf("IsDF() = false for an ADF")
				}
				if fci.FCP.Structure() != StructureNone {
					t.Errorf("Structure() = %s for a DF", fci.FCP.Structure())
				}
				if got := fci.GetAID(); !bytes.Equal(got, tlv.Hex("A0000000871002FFFFFFFF8903050001")) {
					t.Errorf("GetAID() = %X", got)
				}
				if got := fci.FCP.Size(); got != -1 {
					t.Errorf("Size() = %d, want -1", got)
				}
			},
		},
		{
			name: "EF_DIR record structure",
			raw:  tlv.Hex("62 0F", "82 05 42210026 01", "83 02 2F00", "80 02 0026"),
			p2:   p2FCI,
			check: func(t *testing.T, fci *FileControlInfo) {
				if got := fci.FCP.Structure(); got != StructureLinearFixed {
					t.Errorf("Structure() = %s", got)
				}
				if n, ok := fci.FCP.RecordLength(); !ok || n != 0x26 {
					t.Errorf("RecordLength() = %d, %v; want 38", n, ok)
				}
			},
		},
		{
			name: "FCP wrapped in FCI",
			raw:  tlv.Hex("6F 08", "62 06", "83 02 3F00", "8A 01 05"),
			p2:   p2FCI,
			check: func(t *testing.T, fci *FileControlInfo) {
				if id, _ := fci.FCP.ID(); id != 0x3F00 {
					t.Errorf("ID() = %04X, want 3F00", id)
				}
			},
		},
		{
			name: "FMD only",
			raw:  tlv.Hex("64 05", "50 03 414243"),
			p2:   p2FCI,
			check: func(t *testing.T, fci *FileControlInfo) {
				if fci.FCP != nil || len(fci.FMD) != 1 {
					t.Errorf("FCP = %v, FMD = %v", fci.FCP, fci.FMD)
				}
			},
		},
		{
			name: "Proprietary data",
			raw:  tlv.Hex("C0 01 02"),
			p2:   p2FCI,
			check: func(t *testing.T, fci *FileControlInfo) {
				if !bytes.Equal(fci.ProprietaryRawData, tlv.Hex("C00102")) {
					t.Errorf("ProprietaryRawData = %X", fci.ProprietaryRawData)
				}
			},
		},
		{
			name:    "No data requested",
			raw:     tlv.Hex("62 03 83 01 00"),
			p2:      p2NoData,
			wantNil: true,
		},
		{
			name:    "Empty",
			p2:      p2FCI,
			wantNil: true,
		},
		{
			name:    "Unexpected template",
			raw:     tlv.Hex("A5 02 8001"),
			p2:      p2FCI,
			wantErr: true,
		},
		{
			name:    "Truncated",
			raw:     tlv.Hex("62 10 8202"),
			p2:      p2FCI,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fci, err := ParseSelectData(tt.raw, tt.p2)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSelectData() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if fci != nil {
					t.Errorf("ParseSelectData() = %+v, want nil", fci)
				}
				return
			}
			if fci == nil {
				t.Fatal("ParseSelectData() = nil")
			}
			tt.check(t, fci)
		})
	}
}
