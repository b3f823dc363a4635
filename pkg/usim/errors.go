package usim

import (
	"errors"
	"fmt"

	"github.com/gregLibert/usim-gateway/pkg/iso7816"
	"github.com/gregLibert/usim-gateway/pkg/transport"
)

var (
	// ErrMalformed marks a card response that cannot be decoded.
	ErrMalformed = errors.New("malformed response")
	// ErrInvalidInput marks a request rejected before any device access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCardStatus marks a command answered with a status other than '9000'.
	ErrCardStatus = errors.New("card status")
)

// Kind classifies session failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeviceUnavailable
	KindTimeout
	KindCardStatus
	KindMalformedResponse
	KindInvalidInput
	KindTransport
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindDeviceUnavailable: "device_unavailable",
	KindTimeout:           "timeout",
	KindCardStatus:        "card_status",
	KindMalformedResponse: "malformed_response",
	KindInvalidInput:      "invalid_input",
	KindTransport:         "transport",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by every Session operation.
type Error struct {
	Op   string // get_imsi, authenticate, raw_apdu
	Step string // command of the sequence that failed, empty for input errors
	Kind Kind

	// Status is the card status word, set when Kind is KindCardStatus.
	Status iso7816.StatusWord

	Err error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Step != "" {
		msg += ": " + e.Step
	}
	if e.Kind == KindCardStatus {
		return fmt.Sprintf("%s: card returned %s", msg, e.Status.Verbose())
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown when err was not produced by a Session.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

// StatusOf returns the card status word carried by err, if any.
func StatusOf(err error) (iso7816.StatusWord, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindCardStatus {
		return e.Status, true
	}
	return 0, false
}

// classify maps the sentinel errors of the lower layers onto a Kind.
func classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrMalformed),
		errors.Is(err, transport.ErrMalformedReply),
		errors.Is(err, iso7816.ErrResponseTooShort):
		return KindMalformedResponse
	case errors.Is(err, ErrCardStatus):
		return KindCardStatus
	case errors.Is(err, transport.ErrTimeout):
		return KindTimeout
	case errors.Is(err, transport.ErrUnavailable),
		errors.Is(err, transport.ErrClosed):
		return KindDeviceUnavailable
	case errors.Is(err, transport.ErrDeviceError):
		return KindTransport
	default:
		return KindUnknown
	}
}

func newError(op, step string, err error) *Error {
	kind := classify(err)
	if kind == KindUnknown {
		kind = KindTransport
	}
	return &Error{Op: op, Step: step, Kind: kind, Err: err}
}

func statusError(op, step string, sw iso7816.StatusWord) *Error {
	return &Error{Op: op, Step: step, Kind: KindCardStatus, Status: sw, Err: ErrCardStatus}
}
