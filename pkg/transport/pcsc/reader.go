// Package pcsc reaches a SIM inserted in a PC/SC smart card reader.
package pcsc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ebfe/scard"
	"github.com/gregLibert/usim-gateway/pkg/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNoSuchReader reports a selector that names no connected reader.
var ErrNoSuchReader = errors.New("no such reader")

// cardHandle is the part of *scard.Card the Reader relies on.
type cardHandle interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// contextHandle is the part of *scard.Context the Reader relies on.
type contextHandle interface {
	Release() error
}

// Reader is a card transmitter backed by a PC/SC reader. Transmit calls are serialized.
type Reader struct {
	name   string
	logger *zap.Logger

	mu     sync.Mutex
	ctx    contextHandle
	card   cardHandle
	closed bool
}

// ListReaders returns the names of the readers known to the PC/SC service.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, classify(fmt.Errorf("establish context: %w", err))
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, classify(fmt.Errorf("list readers: %w", err))
	}
	return readers, nil
}

// SelectReader picks a reader from readers. selector is either a decimal index
// into the list or a case-insensitive substring of the reader name.
func SelectReader(readers []string, selector string) (string, error) {
	if len(readers) == 0 {
		return "", fmt.Errorf("%w: no smart card reader found", transport.ErrUnavailable)
	}

	if idx, err := strconv.Atoi(selector); err == nil {
		if idx < 0 || idx >= len(readers) {
			return "", fmt.Errorf("%w: %w: index %d out of range (%d readers)", transport.ErrUnavailable, ErrNoSuchReader, idx, len(readers))
		}
		return readers[idx], nil
	}

	needle := strings.ToLower(selector)
	for _, r := range readers {
		if strings.Contains(strings.ToLower(r), needle) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %w: nothing matches %q", transport.ErrUnavailable, ErrNoSuchReader, selector)
}

// Open connects to the card in the reader chosen by selector (see SelectReader).
func Open(selector string, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, classify(fmt.Errorf("establish context: %w", err))
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, multierr.Append(classify(fmt.Errorf("list readers: %w", err)), ctx.Release())
	}

	name, err := SelectReader(readers, selector)
	if err != nil {
		return nil, multierr.Append(err, ctx.Release())
	}

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors
	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return nil, multierr.Append(classify(fmt.Errorf("connect %q: %w", name, err)), ctx.Release())
	}

	logger.Info("connected to card", zap.String("reader", name))

	return newReader(name, ctx, card, logger), nil
}

func newReader(name string, ctx contextHandle, card cardHandle, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		name:   name,
		ctx:    ctx,
		card:   card,
		logger: logger.With(zap.String("reader", name)),
	}
}

// Name returns the PC/SC name of the reader.
func (r *Reader) Name() string {
	return r.name
}

// Transmit sends cmd to the card and returns its data followed by SW1 SW2.
// No retry is attempted: the PC/SC service already handles the T=0/T=1 link.
func (r *Reader) Transmit(cmd []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, transport.ErrClosed
	}

	resp, err := r.card.Transmit(cmd)
	if err != nil {
		return nil, classify(fmt.Errorf("transmit: %w", err))
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: %d byte response", transport.ErrMalformedReply, len(resp))
	}
	return resp, nil
}

// Close disconnects from the card and releases the PC/SC context.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	return multierr.Combine(
		r.card.Disconnect(scard.LeaveCard),
		r.ctx.Release(),
	)
}

func (r *Reader) String() string {
	return "reader " + r.name
}

// classify tags PC/SC failures with the transport error they amount to.
func classify(err error) error {
	switch {
	case isAny(err, scard.ErrTimeout):
		return fmt.Errorf("%w: %w", transport.ErrTimeout, err)
	case isAny(err,
		scard.ErrNoSmartcard,
		scard.ErrRemovedCard,
		scard.ErrResetCard,
		scard.ErrUnpoweredCard,
		scard.ErrUnresponsiveCard,
		scard.ErrReaderUnavailable,
		scard.ErrNoReadersAvailable,
		scard.ErrUnknownReader,
		scard.ErrNoService,
		scard.ErrServiceStopped,
	):
		return fmt.Errorf("%w: %w", transport.ErrUnavailable, err)
	default:
		return err
	}
}

func isAny(err error, targets ...scard.Error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
