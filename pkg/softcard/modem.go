package softcard

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gregLibert/usim-gateway/pkg/iso7816"
)

// Modem emulates the AT command interface of a cellular modem in front of a card.
// It is the far end of the byte stream a transport/at.Modem talks to: commands are
// written to it and replies are read back.
//
// Supported commands: AT, ATE0/ATE1, AT+CSIM. Anything else answers ERROR.
// Echo is on until ATE0, as on real modems.
type Modem struct {
	card iso7816.Transmitter

	mu     sync.Mutex
	cond   *sync.Cond
	in     []byte
	out    bytes.Buffer
	echo   bool
	closed bool
	silent int
}

// NewModem puts card behind an emulated modem.
func NewModem(card iso7816.Transmitter) *Modem {
	m := &Modem{card: card, echo: true}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// DropNext makes the modem ignore the next n command lines, as a modem losing
// commands on a noisy serial link does.
func (m *Modem) DropNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silent = n
}

// Write feeds command bytes to the modem. Lines end with CR or LF.
func (m *Modem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}

	m.in = append(m.in, p...)
	for {
		idx := bytes.IndexAny(m.in, "\r\n")
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(m.in[:idx]))
		m.in = m.in[idx+1:]
		if line == "" {
			continue
		}
		if m.silent > 0 {
			m.silent--
			continue
		}

		if m.echo {
			m.out.WriteString(line + "\r")
		}
		m.out.WriteString(m.handle(line))
	}

	m.cond.Broadcast()
	return len(p), nil
}

// Read blocks until a reply is available or the modem is closed.
func (m *Modem) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.out.Len() == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.out.Len() == 0 {
		return 0, io.EOF
	}
	return m.out.Read(p)
}

// Close makes pending and future reads return io.EOF.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.cond.Broadcast()
	return nil
}

const (
	replyOK    = "\r\nOK\r\n"
	replyError = "\r\nERROR\r\n"
)

func (m *Modem) handle(line string) string {
	upper := strings.ToUpper(line)

	switch {
	case upper == "AT":
		return replyOK
	case upper == "ATE0":
		m.echo = false
		return replyOK
	case upper == "ATE1":
		m.echo = true
		return replyOK
	case strings.HasPrefix(upper, "AT+CSIM="):
		return m.csim(line[len("AT+CSIM="):])
	default:
		return replyError
	}
}

func (m *Modem) csim(args string) string {
	comma := strings.IndexByte(args, ',')
	if comma < 0 {
		return replyError
	}
	declared, err := strconv.Atoi(strings.TrimSpace(args[:comma]))
	if err != nil {
		return replyError
	}
	h := strings.Trim(strings.TrimSpace(args[comma+1:]), "\"")
	if len(h) != declared {
		return replyError
	}
	apdu, err := hex.DecodeString(h)
	if err != nil {
		return replyError
	}

	resp, err := m.card.Transmit(apdu)
	if err != nil {
		return "\r\n+CME ERROR: 13\r\n" // SIM failure
	}

	r := strings.ToUpper(hex.EncodeToString(resp))
	return fmt.Sprintf("\r\n+CSIM: %d,\"%s\"\r\n%s", len(r), r, replyOK)
}
