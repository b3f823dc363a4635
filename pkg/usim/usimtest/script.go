// Package usimtest provides a scripted card for testing code built on usim.Session.
package usimtest

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gregLibert/usim-gateway/pkg/tlv"
)

// Exchange is one expected command and the answer to give.
// Command and Response are hexadecimal strings; spaces are ignored.
// When Err is set it is returned instead of Response.
type Exchange struct {
	Command  string
	Response string
	Err      error
}

// Script is a card transmitter replaying a fixed list of exchanges.
// An unexpected command is recorded and answered with '6F00'.
type Script struct {
	// Delay is applied to every Transmit.
	Delay time.Duration
	// Repeat restarts the script once exhausted.
	Repeat bool

	mu         sync.Mutex
	exchanges  []Exchange
	pos        int
	sent       [][]byte
	mismatches []string

	inFlight    int32
	maxInFlight int32
}

// NewScript returns a Script expecting exchanges in order.
func NewScript(exchanges ...Exchange) *Script {
	return &Script{exchanges: exchanges}
}

// Transmit implements iso7816.Transmitter.
func (s *Script) Transmit(cmd []byte) ([]byte, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&s.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&s.maxInFlight, cur, n) {
			break
		}
	}

	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, append([]byte(nil), cmd...))

	if s.pos >= len(s.exchanges) && s.Repeat {
		s.pos = 0
	}
	if s.pos >= len(s.exchanges) {
		s.mismatches = append(s.mismatches, fmt.Sprintf("unexpected command %X after end of script", cmd))
		return tlv.Hex("6F00"), nil
	}

	ex := s.exchanges[s.pos]
	s.pos++

	if want := tlv.Hex(ex.Command); !bytes.Equal(cmd, want) {
		s.mismatches = append(s.mismatches, fmt.Sprintf("exchange %d: got command %X, want %X", s.pos, cmd, want))
		return tlv.Hex("6F00"), nil
	}
	if ex.Err != nil {
		return nil, ex.Err
	}
	return tlv.Hex(ex.Response), nil
}

// Sent returns the commands received so far, as uppercase hex.
func (s *Script) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.sent))
	for i, cmd := range s.sent {
		out[i] = fmt.Sprintf("%X", cmd)
	}
	return out
}

// MaxInFlight returns the largest number of concurrent Transmit calls observed.
func (s *Script) MaxInFlight() int {
	return int(atomic.LoadInt32(&s.maxInFlight))
}

// Verify fails t if a command did not match or, unless Repeat is set,
// if expected exchanges were not consumed.
func (s *Script) Verify(t testing.TB) {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.mismatches) > 0 {
		t.Errorf("script mismatches:\n%s", strings.Join(s.mismatches, "\n"))
	}
	if !s.Repeat && s.pos < len(s.exchanges) {
		t.Errorf("script stopped at exchange %d of %d (next: %s)", s.pos, len(s.exchanges), s.exchanges[s.pos].Command)
	}
}

// IMSIExchanges is the GetIMSI sequence of a T=0 card holding efIMSI.
func IMSIExchanges(efIMSI string) []Exchange {
	return []Exchange{
		{Command: "00A4000002 3F00", Response: "9000"},
		{Command: "00A4000002 7F20", Response: "9000"},
		{Command: "00A4000002 6F07", Response: "9000"},
		{Command: "00B0000009", Response: efIMSI + " 9000"},
	}
}

// AuthExchanges is the Authenticate sequence (efdir+aid path) of a card
// answering AUTHENTICATE with response, through '61XX' and GET RESPONSE.
func AuthExchanges(rand, autn, response string) []Exchange {
	rawLen := len(tlv.Hex(response))
	return []Exchange{
		{Command: "00A4000002 3F00", Response: "9000"},
		{Command: "00A4000002 2F00", Response: "9000"},
		{Command: "00A4040010 A0000000871002FFFFFFFF8903050001", Response: "9000"},
		{Command: "0088008122 10" + rand + " 10" + autn, Response: fmt.Sprintf("61%02X", rawLen)},
		{Command: fmt.Sprintf("00C00000%02X", rawLen), Response: response + " 9000"},
	}
}
