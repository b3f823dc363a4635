package iso7816

// Transaction is one physical exchange: a command and the response it got.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess reports whether the response exists and carries a success status.
func (t *Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

// Trace lists the exchanges made for one logical command, in order:
// the command itself, then any GET RESPONSE or Le correction the card asked for.
type Trace []Transaction

// Last returns the final exchange, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports whether the final exchange succeeded. Earlier '61XX' do not matter.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Final returns the response of the last exchange, or nil for an empty trace.
// After a GET RESPONSE it carries the complete response data.
func (t Trace) Final() *ResponseAPDU {
	if last := t.Last(); last != nil {
		return last.Response
	}
	return nil
}

// Completed reports whether the trace ended with exactly '9000'.
// Unlike IsSuccess, a dangling '61XX' does not count.
func (t Trace) Completed() bool {
	final := t.Final()
	return final != nil && final.Status == SW_NO_ERROR
}

// Status returns the final status word, or 0 for an empty trace.
func (t Trace) Status() StatusWord {
	if final := t.Final(); final != nil {
		return final.Status
	}
	return 0
}
