package iso7816

import (
	"fmt"
)

// SELECT (INS 'A4'):
//
//	P1  how the target is named: file identifier, DF name (AID), path...
//	P2  b4-b3 what to return (FCI, FCP, FMD, nothing), b2-b1 which occurrence
//
// UICCs answer FCI and FCP requests alike with an FCP template. Since every SELECT
// carries data, the command is sent without Le: on T=0 the answer arrives through '61XX'.

// SelectionMethod is the P1 of a SELECT.
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectEFUnderCurrentDF  SelectionMethod = 0x02
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

var selectionMethodNames = map[SelectionMethod]string{
	SelectByFileID:          "by file ID",
	SelectChildDF:           "child DF",
	SelectEFUnderCurrentDF:  "EF under current DF",
	SelectParentDF:          "parent DF",
	SelectByDFName:          "by DF name (AID)",
	SelectPathFromMF:        "path from MF",
	SelectPathFromCurrentDF: "path from current DF",
}

func (s SelectionMethod) String() string {
	if name, ok := selectionMethodNames[s]; ok {
		return name
	}
	return fmt.Sprintf("method %02X", byte(s))
}

// FileOccurrence is P2 b2-b1. On a UICC it only matters for partial AIDs.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

func (f FileOccurrence) String() string {
	return [...]string{"first or only", "last", "next", "previous"}[f&0b11]
}

// SelectionControl is P2 b4-b3.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000
	ReturnFCP    SelectionControl = 0b0100
	ReturnFMD    SelectionControl = 0b1000
	ReturnNoData SelectionControl = 0b1100
)

func (s SelectionControl) String() string {
	return [...]string{"FCI", "FCP", "FMD", "no data"}[(s>>2)&0b11]
}

// NewSelectCommand builds a SELECT. Le is only present when target is empty
// and data is expected back.
func NewSelectCommand(cla Class, method SelectionMethod, occ FileOccurrence, ctrl SelectionControl, target []byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_SELECT)

	ne := 0
	if len(target) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, ins, byte(method), byte(ctrl)|byte(occ), target, ne)
}

// SelectFile selects a file by its identifier: 00A4000002<fid>.
func SelectFile(cla Class, fid uint16) *CommandAPDU {
	return NewSelectCommand(cla, SelectByFileID, FirstOrOnlyOccurrence, ReturnFCI, []byte{byte(fid >> 8), byte(fid)})
}

// SelectByAID selects an application by its full or partial AID: 00A40400<Lc><aid>.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}
