package softcard

import (
	"bytes"

	"github.com/gregLibert/usim-gateway/pkg/usim"
	"github.com/moov-io/bertlv"
)

// FILE SYSTEM:
// The emulated UICC holds the minimal tree visited by the gateway.
//
//	MF 3F00
//	├── EF_DIR 2F00     (linear fixed, one record pointing to the USIM)
//	└── DF_GSM 7F20
//	    └── EF_IMSI 6F07
//	ADF_USIM 7FFF       (selected by AID)
//	└── EF_IMSI 6F07    (SFI 07)
//
// A file is selectable from the current DF when it is the MF, the current DF itself,
// one of its children, its parent or one of its siblings.

const fileADF uint16 = 0x7FFF

type file struct {
	fid      uint16
	aid      []byte
	df       bool
	record   bool
	sfi      byte
	content  []byte
	parent   *file
	children []*file
}

func (f *file) add(children ...*file) *file {
	for _, c := range children {
		c.parent = f
		f.children = append(f.children, c)
	}
	return f
}

func (f *file) child(fid uint16) *file {
	for _, c := range f.children {
		if c.fid == fid {
			return c
		}
	}
	return nil
}

func (f *file) childBySFI(sfi byte) *file {
	for _, c := range f.children {
		if !c.df && c.sfi == sfi {
			return c
		}
	}
	return nil
}

// efDirRecord is the application template of the USIM (ETSI TS 102 221, 13.1).
func efDirRecord() []byte {
	return mustEncode(bertlv.NewComposite("61",
		bertlv.NewTag("4F", usim.AID),
		bertlv.NewTag("50", []byte("USIM")),
	))
}

// mustEncode serializes templates built from constants, which cannot fail.
func mustEncode(tlvs ...bertlv.TLV) []byte {
	data, err := bertlv.Encode(tlvs)
	if err != nil {
		panic(err)
	}
	return data
}

func buildTree(efIMSI []byte) (mf, adf *file) {
	mf = &file{fid: usim.FileMF, df: true}
	mf.add(
		&file{fid: usim.FileEFDir, record: true, content: efDirRecord()},
		(&file{fid: usim.FileDFGSM, df: true}).add(
			&file{fid: usim.FileEFIMSI, content: efIMSI},
		),
	)

	adf = (&file{fid: fileADF, aid: usim.AID, df: true}).add(
		&file{fid: usim.FileEFIMSI, sfi: 0x07, content: efIMSI},
	)
	return mf, adf
}

// resolve finds fid from the current DF.
func resolve(mf, cur *file, fid uint16) *file {
	if fid == usim.FileMF {
		return mf
	}
	if cur.fid == fid {
		return cur
	}
	if c := cur.child(fid); c != nil {
		return c
	}
	if p := cur.parent; p != nil {
		if p.fid == fid {
			return p
		}
		if c := p.child(fid); c != nil {
			return c
		}
	}
	return nil
}

// matchAID accepts the full AID or a truncated one of at least the RID.
func matchAID(aid, partial []byte) bool {
	return len(partial) >= 5 && bytes.HasPrefix(aid, partial)
}

// fcp builds the File Control Parameters template returned by SELECT.
func (f *file) fcp() []byte {
	var tags []bertlv.TLV
	fid := []byte{byte(f.fid >> 8), byte(f.fid)}

	switch {
	case f.df:
		tags = append(tags, bertlv.NewTag("82", []byte{0x78, 0x21}), bertlv.NewTag("83", fid))
		if len(f.aid) > 0 {
			tags = append(tags, bertlv.NewTag("84", f.aid))
		}
		tags = append(tags, bertlv.NewTag("8A", []byte{0x05}))
	case f.record:
		tags = append(tags,
			bertlv.NewTag("82", []byte{0x42, 0x21, 0x00, byte(len(f.content)), 0x01}),
			bertlv.NewTag("83", fid),
			bertlv.NewTag("8A", []byte{0x05}),
			bertlv.NewTag("80", []byte{0x00, byte(len(f.content))}),
		)
	default:
		tags = append(tags,
			bertlv.NewTag("82", []byte{0x41, 0x21}),
			bertlv.NewTag("83", fid),
			bertlv.NewTag("8A", []byte{0x05}),
			bertlv.NewTag("80", []byte{byte(len(f.content) >> 8), byte(len(f.content))}),
		)
		if f.sfi != 0 {
			tags = append(tags, bertlv.NewTag("88", []byte{f.sfi << 3}))
		}
	}

	return mustEncode(bertlv.NewComposite("62", tags...))
}
