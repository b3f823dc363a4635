package at

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakeModem answers command lines through a handler. While a delayed answer is
// pending it ignores further commands, which is how a busy modem behaves.
type fakeModem struct {
	handle   func(n int, line string) (reply string, ok bool)
	delay    time.Duration
	fragment int

	mu      sync.Mutex
	lines   []string
	partial []byte
	busy    bool
	closed  bool
	out     chan []byte
	pending []byte
}

func newFakeModem(handle func(n int, line string) (string, bool)) *fakeModem {
	return &fakeModem{handle: handle, out: make(chan []byte, 256)}
}

func (f *fakeModem) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, io.ErrClosedPipe
	}

	f.partial = append(f.partial, p...)
	for {
		idx := bytes.IndexByte(f.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(f.partial[:idx]))
		f.partial = f.partial[idx+1:]
		if line == "" {
			continue
		}

		f.lines = append(f.lines, line)
		if f.busy {
			continue
		}

		reply, ok := f.handle(len(f.lines), line)
		if !ok {
			continue
		}

		if f.delay > 0 {
			f.busy = true
			go func() {
				time.Sleep(f.delay)
				f.mu.Lock()
				defer f.mu.Unlock()
				f.busy = false
				f.emitLocked(reply)
			}()
			continue
		}
		f.emitLocked(reply)
	}
	return len(p), nil
}

func (f *fakeModem) emitLocked(reply string) {
	if f.closed {
		return
	}
	data := []byte(reply)
	size := f.fragment
	if size <= 0 {
		size = len(data)
	}
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		f.out <- data[:n]
		data = data[n:]
	}
}

func (f *fakeModem) Read(p []byte) (int, error) {
	if len(f.pending) == 0 {
		data, ok := <-f.out
		if !ok {
			return 0, io.EOF
		}
		f.pending = data
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakeModem) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.out)
	}
	return nil
}

func (f *fakeModem) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// csimReply formats what a modem prints for a successful AT+CSIM.
func csimReply(respHex string) string {
	return "\r\n+CSIM: " + strconv.Itoa(len(respHex)) + ",\"" + respHex + "\"\r\n\r\nOK\r\n"
}
