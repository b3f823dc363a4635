package tlv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

func TestHex(t *testing.T) {
	got := Hex("00 A4 0000", "02\t3f00")
	if !bytes.Equal(got, []byte{0x00, 0xA4, 0x00, 0x00, 0x02, 0x3F, 0x00}) {
		t.Errorf("Hex() = %X", got)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Hex() did not panic on odd input")
		}
	}()
	Hex("ABC")
}

func TestLookup(t *testing.T) {
	record := Hex("61 1A 4F 10 A0000000871002FFFFFFFF8903050001 50 06 5553494D2031")

	app, err := Lookup(record, "61")
	if err != nil {
		t.Fatalf("Lookup(61) error = %v", err)
	}
	aid, err := Lookup(app, "4f")
	if err != nil {
		t.Fatalf("Lookup(4F) error = %v", err)
	}
	if !bytes.Equal(aid, Hex("A0000000871002FFFFFFFF8903050001")) {
		t.Errorf("AID = %X", aid)
	}

	if _, err := Lookup(app, "84"); err == nil {
		t.Errorf("Lookup(84) should fail")
	}
}

func TestUint(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint64
	}{
		{nil, 0},
		{Hex("09"), 9},
		{Hex("0100"), 256},
		{Hex("00010203"), 0x010203},
	}
	for _, tt := range tests {
		if got := Uint(tt.in); got != tt.want {
			t.Errorf("Uint(%X) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

type label struct {
	Text string
}

func (l *label) UnmarshalTLV(value []byte) error {
	l.Text = string(value)
	return nil
}

type appTemplate struct {
	AID   []byte `tlv:"4F"`
	Label label  `tlv:"50"`
}

type dirRecords struct {
	Apps    []appTemplate `tlv:"61"`
	Version string        `tlv:"82"`
	Rest    []bertlv.TLV  `tlv:",unknown"`
}

func TestUnmarshal(t *testing.T) {
	data := Hex(
		"61 0B", "4F 03 A00001", "50 04 5553494D",
		"61 05", "4F 03 A00002",
		"82 02 7821",
		"DF01 01 BB",
	)

	var got dirRecords
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	expected := dirRecords{
		Apps: []appTemplate{
			{AID: Hex("A00001"), Label: label{Text: "USIM"}},
			{AID: Hex("A00002")},
		},
		Version: "7821",
	}
	rest := got.Rest
	got.Rest = nil
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("Unmarshal() mismatch (-want +got):\n%s", diff)
	}

	if len(rest) != 1 || !strings.EqualFold(rest[0].Tag, "DF01") || !bytes.Equal(rest[0].Value, Hex("BB")) {
		t.Errorf("unknown objects = %+v, want DF01=BB", rest)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	var notStruct []byte
	if err := Unmarshal(Hex("8001FF"), &notStruct); err == nil {
		t.Errorf("Unmarshal into a slice should fail")
	}

	var tpl appTemplate
	if err := Unmarshal(Hex("4F05A0"), &tpl); err == nil {
		t.Errorf("Unmarshal of truncated data should fail")
	}

	var bad struct {
		N int `tlv:"80"`
	}
	if err := Unmarshal(Hex("800101"), &bad); err == nil {
		t.Errorf("Unmarshal into an int field should fail")
	}
}

func TestFields(t *testing.T) {
	tpl := struct {
		Size  []byte       `tlv:"80" fmt:"int"`
		Label []byte       `tlv:"50" fmt:"ascii"`
		ID    []byte       `tlv:"83"`
		Empty []byte       `tlv:"88"`
		Raw   []byte
		Other []bertlv.TLV `tlv:",unknown"`
	}{
		Size:  Hex("0009"),
		Label: []byte("USIM\x00"),
		ID:    Hex("6F07"),
		Raw:   Hex("CAFE"),
		Other: []bertlv.TLV{{Tag: "c6", Value: Hex("90")}},
	}

	expected := []string{
		"- FCP.Size (80): 0009 (9)",
		`- FCP.Label (50): 5553494D00 ("USIM.")`,
		"- FCP.ID (83): 6F07",
		"- FCP.Raw: CAFE",
		"- FCP.? (C6): 90",
	}
	if diff := cmp.Diff(expected, Fields("FCP", &tpl)); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}

	if got := Fields("FCP", (*appTemplate)(nil)); got != nil {
		t.Errorf("Fields(nil) = %v", got)
	}
}
