package usim

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/gregLibert/usim-gateway/pkg/iso7816"
	"go.uber.org/zap"
)

// SESSION LOGIC:
// A Session serializes whole operations on one card: the command sequence of GetIMSI
// or Authenticate is never interleaved with another one, even though each APDU is a
// separate exchange on the device. Steps run in order and the first failure aborts
// the operation.
//
//	GetIMSI       SELECT MF, SELECT DF_GSM, SELECT EF_IMSI, READ BINARY(9)
//	Authenticate  SELECT MF, <application path>, AUTHENTICATE
//	RawAPDU       the given bytes, untouched
//
// Only '9000' completes a step. '61XX' is resolved with GET RESPONSE by iso7816.Client
// before the status is checked.

// Operation names reported in Error.Op.
const (
	OpGetIMSI      = "get_imsi"
	OpAuthenticate = "authenticate"
	OpRawAPDU      = "raw_apdu"
)

// AppPath selects the files visited between the MF and AUTHENTICATE.
type AppPath int

const (
	// AppPathEFDirAID selects EF_DIR then the USIM ADF by AID.
	AppPathEFDirAID AppPath = iota
	// AppPathAID selects the USIM ADF by AID.
	AppPathAID
	// AppPathEFDir only selects EF_DIR, for cards running AUTHENTICATE on the implicitly selected ADF.
	AppPathEFDir
)

var appPathNames = map[AppPath]string{
	AppPathEFDirAID: "efdir+aid",
	AppPathAID:      "aid",
	AppPathEFDir:    "efdir",
}

func (p AppPath) String() string {
	if name, ok := appPathNames[p]; ok {
		return name
	}
	return fmt.Sprintf("AppPath(%d)", int(p))
}

// ParseAppPath returns the AppPath named s ("efdir+aid", "aid" or "efdir").
func ParseAppPath(s string) (AppPath, error) {
	for p, name := range appPathNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown application path %q (want efdir+aid, aid or efdir)", s)
}

// RawResponse is the untouched answer to RawAPDU.
type RawResponse struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// Status returns SW1 SW2 as a status word.
func (r *RawResponse) Status() iso7816.StatusWord {
	return iso7816.NewStatusWord(r.SW1, r.SW2)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger receiving one debug entry per step.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAppPath sets the application path used by Authenticate.
func WithAppPath(p AppPath) Option {
	return func(s *Session) {
		s.appPath = p
	}
}

// Session runs USIM operations on one card.
type Session struct {
	mu      sync.Mutex
	card    iso7816.Transmitter
	client  *iso7816.Client
	appPath AppPath
	logger  *zap.Logger
}

// NewSession creates a Session on card.
func NewSession(card iso7816.Transmitter, opts ...Option) *Session {
	s := &Session{
		card:    card,
		appPath: AppPathEFDirAID,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.client = &iso7816.Client{Card: card, Logger: s.logger}
	return s
}

// AppPath returns the application path used by Authenticate.
func (s *Session) AppPath() AppPath {
	return s.appPath
}

func (s *Session) String() string {
	if st, ok := s.card.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%T", s.card)
}

// GetIMSI reads the subscriber identity from EF_IMSI under DF_GSM.
func (s *Session) GetIMSI() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = OpGetIMSI

	if _, err := s.selectFile(op, "select MF", FileMF); err != nil {
		return "", err
	}
	if _, err := s.selectFile(op, "select DF_GSM", FileDFGSM); err != nil {
		return "", err
	}

	res, err := s.selectFile(op, "select EF_IMSI", FileEFIMSI)
	if err != nil {
		return "", err
	}
	if err := checkIMSIFileSize(res); err != nil {
		return "", &Error{Op: op, Step: "select EF_IMSI", Kind: KindMalformedResponse, Err: err}
	}

	content, err := s.readBinary(op, "read EF_IMSI", IMSIFileSize)
	if err != nil {
		return "", err
	}

	imsi, err := ParseIMSI(content)
	if err != nil {
		return "", newError(op, "read EF_IMSI", err)
	}
	return imsi, nil
}

// checkIMSIFileSize rejects an EF_IMSI whose FCP announces fewer than 9 bytes.
// A missing or undecodable FCP is not an error: the READ BINARY result decides.
func checkIMSIFileSize(res *iso7816.SelectResult) error {
	fci, err := res.FCI()
	if err != nil || fci == nil || fci.FCP == nil {
		return nil
	}
	if size := fci.FCP.Size(); size >= 0 && size < IMSIFileSize {
		return fmt.Errorf("%w: EF_IMSI holds %d bytes, need %d", ErrMalformed, size, IMSIFileSize)
	}
	return nil
}

// Authenticate runs the 3G AKA challenge randHex/autnHex (32 hex characters each).
// The result is either *AuthSuccess or *SyncFailure.
func (s *Session) Authenticate(randHex, autnHex string) (AuthResult, error) {
	const op = OpAuthenticate

	rand, err := DecodeHexParam("rand", randHex, RANDLength)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindInvalidInput, Err: err}
	}
	autn, err := DecodeHexParam("autn", autnHex, AUTNLength)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindInvalidInput, Err: err}
	}
	cmd, err := Authenticate(rand, autn)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindInvalidInput, Err: fmt.Errorf("%w: %v", ErrInvalidInput, err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.selectFile(op, "select MF", FileMF); err != nil {
		return nil, err
	}
	if err := s.selectApplication(op); err != nil {
		return nil, err
	}

	final, err := s.step(op, "authenticate", cmd)
	if err != nil {
		return nil, err
	}

	result, err := ParseAuthResponse(final.Data)
	if err != nil {
		return nil, newError(op, "authenticate", err)
	}
	return result, nil
}

func (s *Session) selectApplication(op string) error {
	if s.appPath == AppPathEFDir || s.appPath == AppPathEFDirAID {
		if _, err := s.selectFile(op, "select EF_DIR", FileEFDir); err != nil {
			return err
		}
	}
	if s.appPath == AppPathAID || s.appPath == AppPathEFDirAID {
		if _, err := s.selectAID(op, "select ADF_USIM", AID); err != nil {
			return err
		}
	}
	return nil
}

// RawAPDU transmits the hexadecimal command as is and returns the card's answer,
// whatever its status. No GET RESPONSE is issued.
func (s *Session) RawAPDU(apduHex string) (*RawResponse, error) {
	const op = OpRawAPDU

	cmd, err := decodeRawAPDU(apduHex)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindInvalidInput, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.card.Transmit(cmd)
	if err != nil {
		return nil, newError(op, "transmit", err)
	}

	s.logger.Debug("raw apdu",
		zap.String("command", fmt.Sprintf("%X", cmd)),
		zap.String("response", fmt.Sprintf("%X", resp)),
	)

	parsed, err := iso7816.ParseResponseAPDU(resp)
	if err != nil {
		return nil, newError(op, "transmit", err)
	}
	return &RawResponse{
		Data: parsed.Data,
		SW1:  parsed.Status.SW1(),
		SW2:  parsed.Status.SW2(),
	}, nil
}

func decodeRawAPDU(apduHex string) ([]byte, error) {
	h := strings.Join(strings.Fields(apduHex), "")
	if len(h)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of hex characters (%d)", ErrInvalidInput, len(h))
	}
	cmd, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: apdu is not hexadecimal", ErrInvalidInput)
	}
	if len(cmd) < 4 {
		return nil, fmt.Errorf("%w: apdu must hold at least CLA INS P1 P2, got %d bytes", ErrInvalidInput, len(cmd))
	}
	return cmd, nil
}

func (s *Session) selectFile(op, step string, fid uint16) (*iso7816.SelectResult, error) {
	return s.selectWith(op, step, SelectByFileID(fid))
}

func (s *Session) selectAID(op, step string, aid []byte) (*iso7816.SelectResult, error) {
	return s.selectWith(op, step, SelectByAID(aid))
}

func (s *Session) selectWith(op, step string, cmd *iso7816.CommandAPDU) (*iso7816.SelectResult, error) {
	trace, err := s.send(op, step, cmd)
	if err != nil {
		return nil, err
	}

	res, err := iso7816.NewSelectResult(trace)
	if err != nil {
		return nil, newError(op, step, err)
	}
	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug(step, zap.String("op", op), zap.String("report", res.Describe()))
	}
	return res, nil
}

func (s *Session) readBinary(op, step string, length byte) ([]byte, error) {
	trace, err := s.send(op, step, ReadBinary(length))
	if err != nil {
		return nil, err
	}

	res, err := iso7816.NewReadBinaryResult(trace)
	if err != nil {
		return nil, newError(op, step, err)
	}
	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug(step, zap.String("op", op), zap.String("report", res.Describe()))
	}

	content, err := res.Content()
	if err != nil {
		return nil, newError(op, step, err)
	}
	return content, nil
}

// step runs cmd and returns its final response.
func (s *Session) step(op, step string, cmd *iso7816.CommandAPDU) (*iso7816.ResponseAPDU, error) {
	trace, err := s.send(op, step, cmd)
	if err != nil {
		return nil, err
	}
	final := trace.Final()
	s.logger.Debug(step,
		zap.String("op", op),
		zap.Stringer("sw", final.Status),
		zap.Int("exchanges", len(trace)),
	)
	return final, nil
}

// send runs cmd through the client and requires a final '9000'.
func (s *Session) send(op, step string, cmd *iso7816.CommandAPDU) (iso7816.Trace, error) {
	trace, err := s.client.Send(cmd)
	if err != nil {
		return nil, newError(op, step, err)
	}
	if !trace.Completed() {
		sw := trace.Status()
		s.logger.Debug(step,
			zap.String("op", op),
			zap.Stringer("sw", sw),
			zap.String("status", sw.Verbose()),
		)
		return nil, statusError(op, step, sw)
	}
	return trace, nil
}
