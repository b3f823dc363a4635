// Package at reaches a SIM through a cellular modem using the generic SIM access
// command of 3GPP TS 27.007 (AT+CSIM).
package at

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gregLibert/usim-gateway/pkg/transport"
	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AT+CSIM FRAMING (3GPP TS 27.007, 8.17):
//
//	Command:  AT+CSIM=<length>,"<command>"
//	Response: +CSIM: <length>,"<response>"
//	          OK
//
// <length> counts hexadecimal characters, not bytes. <response> is the raw
// R-APDU (data followed by SW1 SW2). The modem does not run GET RESPONSE on its
// own, so '61XX' statuses reach the caller untouched.

// Defaults matching the modems this gateway has been deployed with.
const (
	DefaultBaudRate   = 38400
	DefaultTimeout    = 500 * time.Millisecond
	DefaultMaxResends = 10
)

// FinalResultCodes terminate an AT command response.
var FinalResultCodes = []string{"OK", "ERROR", "+CME ERROR"}

// Config describes how to reach the modem.
type Config struct {
	Port     string
	BaudRate uint
	RTSCTS   bool

	// Timeout is the window after each write within which a final result code must arrive.
	Timeout time.Duration
	// MaxResends bounds the number of repeated writes per exchange.
	// Answers to resent commands are discarded before the next command, waiting
	// at most two windows for them.
	MaxResends int
}

// DefaultConfig returns the settings for port: 38400 8N1 with RTS/CTS flow control.
func DefaultConfig(port string) Config {
	return Config{
		Port:       port,
		BaudRate:   DefaultBaudRate,
		RTSCTS:     true,
		Timeout:    DefaultTimeout,
		MaxResends: DefaultMaxResends,
	}
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxResends < 0 {
		c.MaxResends = 0
	}
	return c
}

// Modem is a card transmitter backed by a modem's AT command interface.
// Transmit calls are serialized.
type Modem struct {
	cfg    Config
	port   io.ReadWriteCloser
	ch     *Channel
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens the serial port described by cfg and prepares the modem.
func Open(cfg Config, logger *zap.Logger) (*Modem, error) {
	cfg = cfg.withDefaults()

	options := serial.OpenOptions{
		PortName:          cfg.Port,
		BaudRate:          cfg.BaudRate,
		DataBits:          8,
		StopBits:          1,
		ParityMode:        serial.PARITY_NONE,
		RTSCTSFlowControl: cfg.RTSCTS,
		MinimumReadSize:   1,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, errors.Wrapf(transport.ErrUnavailable, "open %s: %v", cfg.Port, err)
	}

	m := New(port, cfg, logger)
	if err := m.Init(); err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return nil, multierr.Append(
				errors.Wrapf(transport.ErrUnavailable, "modem on %s does not answer", cfg.Port),
				m.Close(),
			)
		}
		m.logger.Warn("modem initialization incomplete", zap.Error(err))
	}
	return m, nil
}

// New wraps an already opened stream.
func New(port io.ReadWriteCloser, cfg Config, logger *zap.Logger) *Modem {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	logger = logger.With(zap.String("port", cfg.Port))

	ch := NewChannel(port, logger)
	ch.Settle = 2 * cfg.Timeout

	return &Modem{
		cfg:    cfg,
		port:   port,
		ch:     ch,
		logger: logger,
	}
}

// Init turns command echo off. Modems that refuse it still work, since
// the +CSIM line is located by its prefix.
func (m *Modem) Init() error {
	_, err := m.Command("ATE0")
	return err
}

// Command sends a plain AT command line and returns the full response.
// A final "ERROR" is reported as transport.ErrDeviceError.
func (m *Modem) Command(line string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.exchange([]byte(line + "\r\n"))
}

func (m *Modem) exchange(cmd []byte) ([]byte, error) {
	if m.closed {
		return nil, transport.ErrClosed
	}

	if err := m.ch.Send(cmd); err != nil {
		return nil, err
	}

	reply, err := m.ch.ReceiveUntil(FinalResultCodes, m.cfg.Timeout, m.cfg.MaxResends)
	if err != nil {
		return reply, err
	}

	m.logger.Debug("modem exchange",
		zap.ByteString("command", bytes.TrimSpace(cmd)),
		zap.ByteString("reply", bytes.TrimSpace(reply)),
	)

	if code := finalCode(reply); code != "OK" {
		return reply, errors.Wrapf(transport.ErrDeviceError, "modem answered %q", code)
	}
	return reply, nil
}

// Transmit sends apdu through AT+CSIM and returns the card's data followed by SW1 SW2.
func (m *Modem) Transmit(apdu []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reply, err := m.exchange(FormatCSIM(apdu))
	if err != nil {
		return nil, err
	}
	return ParseCSIM(reply)
}

// Close stops the reader and closes the port.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.ch.Close()

	var err error
	if m.port != nil {
		err = multierr.Append(err, m.port.Close())
	}
	return err
}

func (m *Modem) String() string {
	return "modem " + m.cfg.Port
}

// FormatCSIM builds the AT+CSIM command line carrying apdu.
func FormatCSIM(apdu []byte) []byte {
	h := strings.ToUpper(hex.EncodeToString(apdu))
	return []byte(fmt.Sprintf("AT+CSIM=%d,\"%s\"\r\n", len(h), h))
}

// ParseCSIM extracts the R-APDU from a modem reply holding a +CSIM line.
func ParseCSIM(reply []byte) ([]byte, error) {
	for _, raw := range bytes.Split(reply, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(line, "+CSIM:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "+CSIM:"))
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, errors.Wrapf(transport.ErrMalformedReply, "no length separator in %q", line)
		}

		declared, err := strconv.Atoi(strings.TrimSpace(payload[:comma]))
		if err != nil {
			return nil, errors.Wrapf(transport.ErrMalformedReply, "bad length in %q", line)
		}

		quoted := strings.TrimSpace(payload[comma+1:])
		first := strings.IndexByte(quoted, '"')
		last := strings.LastIndexByte(quoted, '"')
		if first < 0 || last <= first {
			return nil, errors.Wrapf(transport.ErrMalformedReply, "unquoted response in %q", line)
		}
		h := quoted[first+1 : last]

		if len(h) != declared {
			return nil, errors.Wrapf(transport.ErrMalformedReply, "declared %d characters, got %d", declared, len(h))
		}
		if len(h) < 4 {
			return nil, errors.Wrapf(transport.ErrMalformedReply, "response %q has no status word", h)
		}

		resp, err := hex.DecodeString(h)
		if err != nil {
			return nil, errors.Wrapf(transport.ErrMalformedReply, "response is not hex: %v", err)
		}
		return resp, nil
	}

	return nil, errors.Wrap(transport.ErrMalformedReply, "no +CSIM line in reply")
}

// finalCode returns the last final result code present in reply.
func finalCode(reply []byte) string {
	code := ""
	for _, raw := range bytes.Split(reply, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		for _, c := range FinalResultCodes {
			if strings.HasPrefix(line, c) {
				code = line
			}
		}
	}
	return code
}
