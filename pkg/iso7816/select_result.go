package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/usim-gateway/pkg/tlv"
)

// SelectResult is the trace of a SELECT, including any GET RESPONSE that followed it.
type SelectResult struct {
	Trace
}

// NewSelectResult wraps t, which must start with a SELECT.
func NewSelectResult(t Trace) (*SelectResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}
	if ins := t[0].Command.Instruction.Raw; ins != INS_SELECT {
		return nil, fmt.Errorf("trace must start with SELECT command (got %02X)", byte(ins))
	}
	return &SelectResult{Trace: t}, nil
}

// FCI decodes the data of the final response as requested by the P2 of the SELECT.
func (r *SelectResult) FCI() (*FileControlInfo, error) {
	if !r.Completed() {
		return nil, fmt.Errorf("selection failed, cannot parse FCI")
	}
	final := r.Final()
	if len(final.Data) == 0 {
		return nil, fmt.Errorf("no response data found")
	}
	return ParseSelectData(final.Data, r.Trace[0].Command.P2)
}

// Describe renders the selection as a multi-line report.
func (r *SelectResult) Describe() string {
	var sb strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&sb, format+"\n", args...)
	}

	first := r.Trace[0]
	cmd := first.Command

	line("=== SELECT ===")
	line("[1] %s", cmd.Class)
	line("    + Method:  %02X %s", cmd.P1, SelectionMethod(cmd.P1))
	line("    + Return:  %02X %s, %s occurrence", cmd.P2, SelectionControl(cmd.P2&0x0C), FileOccurrence(cmd.P2&0x03))
	if len(cmd.Data) > 0 {
		line("    + Target:  %X (%q)", cmd.Data, tlv.Printable(cmd.Data))
	}
	line("    + Status:  %s", describeStatus(first.Response.Status))

	for i, tx := range r.Trace[1:] {
		line("[%d] %s P3=%02X", i+2, tx.Command.Instruction.Raw, byte(tx.Command.Ne))
		line("    + Status:  %s", describeStatus(tx.Response.Status))
		if len(tx.Response.Data) > 0 {
			line("    + Data:    %X", tx.Response.Data)
		}
	}

	line("[=] OUTCOME:")
	fci, err := r.FCI()
	switch {
	case err != nil && len(r.Final().Data) > 0:
		line("    - FCI not decoded: %v", err)
		return sb.String()
	case err != nil || fci == nil:
		line("    - No data returned.")
		return sb.String()
	}

	if fci.FCP != nil {
		line("    - FCP: %s, size %d", fileKind(fci.FCP), fci.FCP.Size())
		for _, f := range tlv.Fields("FCP", fci.FCP) {
			line("    %s", f)
		}
	}
	for _, t := range fci.FMD {
		line("    - FMD (%s): %X", strings.ToUpper(t.Tag), tlv.Value(t))
	}
	if len(fci.ProprietaryRawData) > 0 {
		line("    - Proprietary: %X", fci.ProprietaryRawData)
	}
	return sb.String()
}

func fileKind(f *FCPTemplate) string {
	if f.IsDF() {
		return "DF"
	}
	return "EF " + f.Structure().String()
}
