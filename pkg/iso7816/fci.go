package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/usim-gateway/pkg/bits"
	"github.com/gregLibert/usim-gateway/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// SELECT RESPONSE DATA (ISO/IEC 7816-4 7.1.1, ETSI TS 102 221 11.1.1.3):
//
//	'62'  FCP, file control parameters (what a UICC returns)
//	'64'  FMD, file management data
//	'6F'  FCI, wrapping '62' and/or '64'
//
// P2 b4-b3 tells which one was asked for: 00 FCI, 01 FCP, 10 FMD, 11 nothing.
// Cards do not always honour it, so any of the three templates is accepted
// whatever P2 said, unless P2 asked for no data.

const (
	tagFCP = "62"
	tagFMD = "64"
	tagFCI = "6F"
)

// FileStructure is the EF structure coded in the file descriptor byte.
type FileStructure byte

const (
	StructureNone        FileStructure = 0
	StructureTransparent FileStructure = 1
	StructureLinearFixed FileStructure = 2
	StructureCyclic      FileStructure = 6
)

func (s FileStructure) String() string {
	switch s {
	case StructureTransparent:
		return "transparent"
	case StructureLinearFixed:
		return "linear fixed"
	case StructureCyclic:
		return "cyclic"
	default:
		return fmt.Sprintf("structure %d", byte(s))
	}
}

// FCPTemplate holds the file control parameters of a UICC file.
type FCPTemplate struct {
	FileDescriptor  []byte `tlv:"82"`
	FileIdentifier  []byte `tlv:"83"`
	DFName          []byte `tlv:"84"`
	ProprietaryInfo []byte `tlv:"A5"`
	LifeCycleStatus []byte `tlv:"8A"`
	SecAttrRef      []byte `tlv:"8B"`
	SecAttrCompact  []byte `tlv:"8C"`
	SecAttrExpanded []byte `tlv:"AB"`
	PINStatus       []byte `tlv:"C6"`
	FileSize        []byte `tlv:"80" fmt:"int"`
	TotalFileSize   []byte `tlv:"81" fmt:"int"`
	ShortFileID     []byte `tlv:"88"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// Size returns the size in bytes of an EF (tag 80), or -1 when absent.
func (f *FCPTemplate) Size() int {
	if f == nil || len(f.FileSize) == 0 {
		return -1
	}
	return int(tlv.Uint(f.FileSize))
}

// ID returns the file identifier (tag 83).
func (f *FCPTemplate) ID() (uint16, bool) {
	if f == nil || len(f.FileIdentifier) != 2 {
		return 0, false
	}
	return uint16(tlv.Uint(f.FileIdentifier)), true
}

// IsDF reports whether the descriptor denotes a DF or an ADF (b6-b4 = 111).
func (f *FCPTemplate) IsDF() bool {
	if f == nil || len(f.FileDescriptor) == 0 {
		return false
	}
	return bits.GetRange(f.FileDescriptor[0], 6, 4) == 0b111
}

// Structure returns the EF structure, StructureNone for a DF.
func (f *FCPTemplate) Structure() FileStructure {
	if f == nil || len(f.FileDescriptor) == 0 || f.IsDF() {
		return StructureNone
	}
	return FileStructure(bits.GetRange(f.FileDescriptor[0], 3, 1))
}

// RecordLength returns the record size of a linear fixed or cyclic EF.
func (f *FCPTemplate) RecordLength() (int, bool) {
	if f == nil || len(f.FileDescriptor) < 4 {
		return 0, false
	}
	return int(tlv.Uint(f.FileDescriptor[2:4])), true
}

// SFI returns the short file identifier (tag 88, b8-b4).
func (f *FCPTemplate) SFI() (byte, bool) {
	if f == nil || len(f.ShortFileID) != 1 || f.ShortFileID[0] == 0 {
		return 0, false
	}
	return f.ShortFileID[0] >> 3, true
}

// FileControlInfo is the parsed data field of a SELECT response.
type FileControlInfo struct {
	FCP *FCPTemplate
	// FMD holds the objects of a '64' template as they were decoded.
	FMD []bertlv.TLV

	// ProprietaryRawData holds data that is not BER-TLV (first byte 'C0' or above).
	ProprietaryRawData []byte
}

// GetAID returns the DF name (tag 84) of an application, or nil.
func (fci *FileControlInfo) GetAID() []byte {
	if fci == nil || fci.FCP == nil {
		return nil
	}
	return fci.FCP.DFName
}

// ParseSelectData decodes the data field of a SELECT response sent with p2.
// It returns nil, nil when there is nothing to decode.
func ParseSelectData(data []byte, p2 byte) (*FileControlInfo, error) {
	if len(data) == 0 || SelectionControl(p2&0x0C) == ReturnNoData {
		return nil, nil
	}
	if data[0] >= 0xC0 {
		return &FileControlInfo{ProprietaryRawData: data}, nil
	}

	tlvs, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode select data: %w", err)
	}
	if fci, ok := tlv.Find(tlvs, tagFCI); ok {
		tlvs = fci.TLVs
	}

	res := &FileControlInfo{}
	if fcp, ok := tlv.Find(tlvs, tagFCP); ok {
		res.FCP = &FCPTemplate{}
		if err := tlv.UnmarshalTLVs(fcp.TLVs, res.FCP); err != nil {
			return nil, fmt.Errorf("decode FCP: %w", err)
		}
	}
	if fmd, ok := tlv.Find(tlvs, tagFMD); ok {
		res.FMD = fmd.TLVs
	}

	if res.FCP == nil && res.FMD == nil {
		return nil, errors.New("no FCP or FMD template in select data")
	}
	return res, nil
}
