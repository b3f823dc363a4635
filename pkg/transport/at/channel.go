package at

import (
	"bytes"
	"io"
	"time"

	"github.com/gregLibert/usim-gateway/pkg/transport"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CHANNEL LOGIC:
// A modem answers an AT command with any number of intermediate lines followed by a
// final result code ("OK", "ERROR", "+CME ERROR: <n>"). Bytes arrive in arbitrary
// fragments, so the Channel accumulates them until a complete line starting with one
// of the expected final codes is present.
//
// Modems connected through USB serial adapters occasionally drop a command. Every write
// opens an attempt window; when the window ends without a final result code, whatever
// else arrived (echo, unsolicited +CREG or RING lines), the Channel writes the last
// command again. After maxResends such resends it gives up with transport.ErrTimeout,
// so an exchange never lasts longer than (maxResends+1) windows. The accumulated buffer
// is never discarded between attempts.
//
// A resent command may be answered twice. The Channel remembers how many answers are
// still owed and, before the next command, waits up to Settle for them to arrive and
// discards them.

const readChunkSize = 256

// Channel exchanges AT command lines over a byte stream.
// It is not safe for concurrent use; Modem serializes access.
type Channel struct {
	rw     io.ReadWriter
	logger *zap.Logger

	chunks  chan []byte
	done    chan struct{}
	readErr error

	last []byte

	// Settle bounds the wait for answers owed by earlier resends.
	Settle time.Duration

	terminators []string
	owed        int
}

// NewChannel starts reading rw in the background (a serial port, a pipe, an emulator).
// The reader stops when rw returns an error or Close is called.
func NewChannel(rw io.ReadWriter, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Channel{
		rw:     rw,
		logger: logger,
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	defer close(c.chunks)
	for {
		buf := make([]byte, readChunkSize)
		n, err := c.rw.Read(buf)
		if n > 0 {
			select {
			case c.chunks <- buf[:n]:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Send discards input left over from earlier exchanges, then writes p.
// p is remembered as the command to repeat on resend.
func (c *Channel) Send(p []byte) error {
	if err := c.settle(); err != nil {
		return err
	}
	if err := c.drain(); err != nil {
		return err
	}
	c.last = append(c.last[:0], p...)
	return c.write(p)
}

func (c *Channel) drain() error {
	for {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return c.streamError()
			}
			c.logger.Debug("discarding stale modem output", zap.ByteString("data", chunk))
		default:
			return nil
		}
	}
}

// settle consumes the final result codes still owed by resent commands.
// Late answers that never come are given up after Settle.
func (c *Channel) settle() error {
	if c.owed == 0 {
		return nil
	}
	defer func() { c.owed = 0 }()
	if c.Settle <= 0 {
		return nil
	}

	timer := time.NewTimer(c.Settle)
	defer timer.Stop()

	var acc []byte
	for {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return c.streamError()
			}
			acc = append(acc, chunk...)
			if CountFinalLines(acc, c.terminators) >= c.owed {
				c.logger.Debug("discarded late modem answer", zap.ByteString("data", bytes.TrimSpace(acc)))
				return nil
			}
		case <-timer.C:
			return nil
		case <-c.done:
			return transport.ErrClosed
		}
	}
}

func (c *Channel) write(p []byte) error {
	if _, err := c.rw.Write(p); err != nil {
		return errors.Wrapf(transport.ErrUnavailable, "write: %v", err)
	}
	return nil
}

func (c *Channel) streamError() error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	if c.readErr != nil {
		return errors.Wrapf(transport.ErrUnavailable, "read: %v", c.readErr)
	}
	return errors.Wrap(transport.ErrUnavailable, "read: stream ended")
}

// ReceiveUntil accumulates input until a complete line starts with one of terminators.
// Each time timeout elapses after a write without such a line, the last sent command is
// written again; after maxResends resends it fails with transport.ErrTimeout.
// The bytes received so far are returned in every case.
func (c *Channel) ReceiveUntil(terminators []string, timeout time.Duration, maxResends int) ([]byte, error) {
	var acc []byte
	resends := 0

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return acc, c.streamError()
			}
			acc = append(acc, chunk...)
			if finals := CountFinalLines(acc, terminators); finals > 0 {
				c.terminators = terminators
				c.owed = resends - (finals - 1)
				if c.owed < 0 {
					c.owed = 0
				}
				return acc, nil
			}

		case <-timer.C:
			if resends >= maxResends {
				c.terminators = terminators
				c.owed = resends + 1
				return acc, errors.Wrapf(transport.ErrTimeout, "no final result after %d resends", resends)
			}
			resends++
			c.logger.Warn("no final result, resending command",
				zap.Int("attempt", resends),
				zap.Int("max_resends", maxResends),
				zap.ByteString("command", bytes.TrimSpace(c.last)),
			)
			if err := c.write(c.last); err != nil {
				return acc, err
			}
			timer.Reset(timeout)

		case <-c.done:
			return acc, transport.ErrClosed
		}
	}
}

// Close stops the background reader. The underlying stream is left to its owner.
func (c *Channel) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// HasFinalLine reports whether buf holds a complete line beginning with one of codes.
func HasFinalLine(buf []byte, codes []string) bool {
	return CountFinalLines(buf, codes) > 0
}

// CountFinalLines counts the complete lines of buf beginning with one of codes.
func CountFinalLines(buf []byte, codes []string) int {
	n := 0
	for len(buf) > 0 {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(buf[:idx])
		for _, code := range codes {
			if bytes.HasPrefix(line, []byte(code)) {
				n++
				break
			}
		}
		buf = buf[idx+1:]
	}
	return n
}
