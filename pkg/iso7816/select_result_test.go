package iso7816

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/usim-gateway/pkg/tlv"
)

func reportLines(r *SelectResult) []string {
	return strings.Split(strings.TrimRight(r.Describe(), "\n"), "\n")
}

func TestSelectResult_ADF(t *testing.T) {
	cls, _ := NewClass(0x00)
	fcp := tlv.Hex(
		"62 1D",
		"82 02 7821",
		"83 02 7FFF",
		"84 10 A0000000871002FFFFFFFF8903050001",
		"8A 01 05",
	)

	trace := Trace{
		{
			Command:  SelectByAID(cls, tlv.Hex("A0000000871002FFFFFFFF8903050001")),
			Response: &ResponseAPDU{Status: NewStatusWord(0x61, 0x1F)},
		},
		{
			Command:  NewGetResponseCommand(cls, 0x1F),
			Response: &ResponseAPDU{Data: fcp, Status: SW_NO_ERROR},
		},
	}

	res, err := NewSelectResult(trace)
	if err != nil {
		t.Fatalf("NewSelectResult() error = %v", err)
	}

	fci, err := res.FCI()
	if err != nil {
		t.Fatalf("FCI() error = %v", err)
	}
	if diff := cmp.Diff(tlv.Hex("A0000000871002FFFFFFFF8903050001"), fci.GetAID()); diff != "" {
		t.Errorf("GetAID() mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"=== SELECT ===",
		"[1] CLA 00 (interindustry, channel 0)",
		"    + Method:  04 by DF name (AID)",
		"    + Return:  00 FCI, first or only occurrence",
		`    + Target:  A0000000871002FFFFFFFF8903050001 ("................")`,
		"    + Status:  [61 1F] [OK] 1F (31) bytes still available",
		"[2] GET RESPONSE P3=1F",
		"    + Status:  [90 00] [OK] SW_NO_ERROR",
		"    + Data:    621D8202782183027FFF8410A0000000871002FFFFFFFF89030500018A0105",
		"[=] OUTCOME:",
		"    - FCP: DF, size -1",
		"    - FCP.FileDescriptor (82): 7821",
		"    - FCP.FileIdentifier (83): 7FFF",
		"    - FCP.DFName (84): A0000000871002FFFFFFFF8903050001",
		"    - FCP.LifeCycleStatus (8A): 05",
	}
	if diff := cmp.Diff(want, reportLines(res)); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectResult_EF(t *testing.T) {
	cls, _ := NewClass(0x00)
	trace := Trace{
		{
			Command: SelectFile(cls, 0x6F07),
			Response: &ResponseAPDU{
				Data:   tlv.Hex("62 0C 82 02 4121 83 02 6F07 80 02 0009"),
				Status: SW_NO_ERROR,
			},
		},
	}

	res, _ := NewSelectResult(trace)
	fci, err := res.FCI()
	if err != nil {
		t.Fatalf("FCI() error = %v", err)
	}
	if fci.FCP.Size() != 9 {
		t.Errorf("Size() = %d, want 9", fci.FCP.Size())
	}

	got := reportLines(res)
	want := []string{
		"[=] OUTCOME:",
		"    - FCP: EF transparent, size 9",
		"    - FCP.FileDescriptor (82): 4121",
		"    - FCP.FileIdentifier (83): 6F07",
		"    - FCP.FileSize (80): 0009 (9)",
	}
	if diff := cmp.Diff(want, got[len(got)-len(want):]); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectResult_Failure(t *testing.T) {
	cls, _ := NewClass(0x00)
	trace := Trace{
		{
			Command:  SelectFile(cls, 0x6F07),
			Response: &ResponseAPDU{Status: SW_ERR_FILE_NOT_FOUND},
		},
	}

	res, err := NewSelectResult(trace)
	if err != nil {
		t.Fatalf("NewSelectResult() error = %v", err)
	}
	if _, err := res.FCI(); err == nil {
		t.Error("FCI() should fail for an unsuccessful selection")
	}

	got := reportLines(res)
	for _, line := range []string{
		"    + Method:  00 by file ID",
		`    + Target:  6F07 ("o.")`,
		"    + Status:  [6A 82] [!!] [6A82] File or application not found",
		"    - No data returned.",
	} {
		found := false
		for _, l := range got {
			found = found || l == line
		}
		if !found {
			t.Errorf("report missing line %q", line)
		}
	}
}

func TestSelectResult_UndecodableData(t *testing.T) {
	cls, _ := NewClass(0x00)
	trace := Trace{
		{
			Command:  SelectFile(cls, 0x2F00),
			Response: &ResponseAPDU{Data: tlv.Hex("62 10 8202"), Status: SW_NO_ERROR},
		},
	}

	res, _ := NewSelectResult(trace)
	got := reportLines(res)
	if last := got[len(got)-1]; !strings.HasPrefix(last, "    - FCI not decoded: ") {
		t.Errorf("last line = %q", last)
	}
}

func TestNewSelectResult_Invalid(t *testing.T) {
	if _, err := NewSelectResult(nil); err == nil {
		t.Error("empty trace should fail")
	}

	cmd, _ := NewReadBinaryCommand(Class{}, 0, 9)
	trace := Trace{{Command: cmd, Response: &ResponseAPDU{Status: SW_NO_ERROR}}}
	if _, err := NewSelectResult(trace); err == nil {
		t.Error("trace starting with READ BINARY should fail")
	}
}
