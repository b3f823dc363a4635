// Package tlv maps BER-TLV data, as found in UICC file control parameters and
// EF_DIR records, onto Go structs.
//
// Fields are bound to tags with a struct tag:
//
//	type Template struct {
//		FileSize []byte       `tlv:"80" fmt:"int"`
//		Name     []byte       `tlv:"50" fmt:"ascii"`
//		Rest     []bertlv.TLV `tlv:",unknown"`
//	}
//
// The "fmt" tag only affects Fields.
package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Hex decodes the concatenation of parts, ignoring white space. It panics on invalid
// input and is meant for fixtures: Hex("00A4 0000", "02 3F00").
func Hex(parts ...string) []byte {
	s := strings.Join(strings.Fields(strings.Join(parts, "")), "")
	data, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex %q: %v", s, err))
	}
	return data
}

// Find returns the first element of tlvs carrying tag (case insensitive).
func Find(tlvs []bertlv.TLV, tag string) (bertlv.TLV, bool) {
	for _, t := range tlvs {
		if strings.EqualFold(t.Tag, tag) {
			return t, true
		}
	}
	return bertlv.TLV{}, false
}

// Value returns the value field of t. For constructed objects the children are re-encoded.
func Value(t bertlv.TLV) []byte {
	if len(t.TLVs) == 0 {
		return t.Value
	}
	if enc, err := bertlv.Encode(t.TLVs); err == nil {
		return enc
	}
	return t.Value
}

// Lookup decodes data and returns the value of the first top-level tag.
func Lookup(data []byte, tag string) ([]byte, error) {
	tlvs, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode BER-TLV: %w", err)
	}
	t, ok := Find(tlvs, tag)
	if !ok {
		return nil, fmt.Errorf("tag %s not found", strings.ToUpper(tag))
	}
	return Value(t), nil
}

// Uint reads b as a big-endian unsigned integer. Only the last 8 bytes count.
func Uint(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
