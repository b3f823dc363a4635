package usim

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AUTHENTICATE RESPONSE (3GPP TS 31.102, 7.1.2.1):
//
//	Successful 3G authentication:
//	  DB  L_RES RES  L_CK CK  L_IK IK  [L_Kc Kc]
//	Synchronisation failure:
//	  DC  L_AUTS AUTS
//
// Kc is only present when the card also supports GSM access (service 27).
// A wrong MAC is not reported in the data but with status '9862'.

const (
	tagAuthSuccess = 0xDB
	tagSyncFailure = 0xDC
)

// AuthResult is the outcome of a successful AUTHENTICATE exchange:
// either *AuthSuccess or *SyncFailure.
type AuthResult interface {
	isAuthResult()
}

// AuthSuccess holds the keys derived by the card.
type AuthSuccess struct {
	RES []byte
	CK  []byte
	IK  []byte
	Kc  []byte // Optional
}

// SyncFailure holds the resynchronisation token of a rejected sequence number.
type SyncFailure struct {
	AUTS []byte
}

func (*AuthSuccess) isAuthResult() {}
func (*SyncFailure) isAuthResult() {}

func (a *AuthSuccess) String() string {
	s := fmt.Sprintf("RES=%X CK=%X IK=%X", a.RES, a.CK, a.IK)
	if len(a.Kc) > 0 {
		s += fmt.Sprintf(" Kc=%X", a.Kc)
	}
	return s
}

func (s *SyncFailure) String() string {
	return fmt.Sprintf("AUTS=%X", s.AUTS)
}

// ParseAuthResponse decodes the data returned by AUTHENTICATE.
func ParseAuthResponse(data []byte) (AuthResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty AUTHENTICATE response", ErrMalformed)
	}

	switch data[0] {
	case tagAuthSuccess:
		return parseAuthSuccess(data[1:])
	case tagSyncFailure:
		return parseSyncFailure(data[1:])
	default:
		return nil, fmt.Errorf("%w: unknown AUTHENTICATE response tag %02X", ErrMalformed, data[0])
	}
}

func parseAuthSuccess(data []byte) (*AuthSuccess, error) {
	r := lvReader{data: data}
	res := &AuthSuccess{}

	var err error
	if res.RES, err = r.next("RES", MinRESLength, MaxRESLength); err != nil {
		return nil, err
	}
	if res.CK, err = r.next("CK", CKLength, CKLength); err != nil {
		return nil, err
	}
	if res.IK, err = r.next("IK", IKLength, IKLength); err != nil {
		return nil, err
	}
	if r.remaining() > 0 {
		if res.Kc, err = r.next("Kc", KcLength, KcLength); err != nil {
			return nil, err
		}
	}
	if r.remaining() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after AUTHENTICATE keys", ErrMalformed, r.remaining())
	}
	return res, nil
}

func parseSyncFailure(data []byte) (*SyncFailure, error) {
	r := lvReader{data: data}
	auts, err := r.next("AUTS", AUTSLength, AUTSLength)
	if err != nil {
		return nil, err
	}
	if r.remaining() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after AUTS", ErrMalformed, r.remaining())
	}
	return &SyncFailure{AUTS: auts}, nil
}

// lvReader walks a sequence of length-value fields.
type lvReader struct {
	data []byte
	pos  int
}

func (r *lvReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *lvReader) next(name string, minLen, maxLen int) ([]byte, error) {
	if r.remaining() < 1 {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, name)
	}
	l := int(r.data[r.pos])
	if l < minLen || l > maxLen {
		return nil, fmt.Errorf("%w: %s length %d out of range [%d, %d]", ErrMalformed, name, l, minLen, maxLen)
	}
	if r.remaining()-1 < l {
		return nil, fmt.Errorf("%w: %s truncated (%d of %d bytes)", ErrMalformed, name, r.remaining()-1, l)
	}
	value := append([]byte(nil), r.data[r.pos+1:r.pos+1+l]...)
	r.pos += 1 + l
	return value, nil
}

// DecodeHexParam decodes a hexadecimal request parameter of exactly size bytes.
// Surrounding spaces are ignored and both cases are accepted.
func DecodeHexParam(name, value string, size int) ([]byte, error) {
	value = strings.TrimSpace(value)
	if len(value) != 2*size {
		return nil, fmt.Errorf("%w: %s must be %d hex characters, got %d", ErrInvalidInput, name, 2*size, len(value))
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hexadecimal", ErrInvalidInput, name)
	}
	return b, nil
}
