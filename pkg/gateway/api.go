package gateway

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gregLibert/usim-gateway/pkg/usim"
	"go.uber.org/zap"
)

// Request types of the query API.
const (
	TypeIMSI     = "imsi"
	TypeRandAUTN = "rand-autn"
	TypeAPDU     = "apdu"
)

type imsiReply struct {
	IMSI string `json:"imsi"`
}

type authReply struct {
	RES string `json:"res"`
	CK  string `json:"ck"`
	IK  string `json:"ik"`
	Kc  string `json:"kc,omitempty"`
}

type syncReply struct {
	AUTS string `json:"auts"`
}

type apduReply struct {
	Data string `json:"data"`
	SW1  string `json:"sw1"`
	SW2  string `json:"sw2"`
}

type errorReply struct {
	Error     bool   `json:"error"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Reason    string `json:"reason"`
}

type deviceEntry struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
}

type devicesReply struct {
	Default string        `json:"default"`
	Devices []deviceEntry `json:"devices"`
}

// Query dispatches on the "type" parameter.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	switch t := r.URL.Query().Get("type"); t {
	case TypeIMSI:
		s.IMSI(w, r)
	case TypeRandAUTN:
		s.Auth(w, r)
	case TypeAPDU:
		s.APDU(w, r)
	case "":
		s.respondError(w, r, "", fmt.Errorf("%w: missing type parameter", usim.ErrInvalidInput))
	default:
		s.respondError(w, r, "", fmt.Errorf("%w: unknown request type %q", usim.ErrInvalidInput, t))
	}
}

// IMSI returns the subscriber identity.
func (s *Server) IMSI(w http.ResponseWriter, r *http.Request) {
	name, dev, err := s.device(r)
	if err != nil {
		s.respondError(w, r, usim.OpGetIMSI, err)
		return
	}

	start := time.Now()
	imsi, err := dev.GetIMSI()
	s.metrics.observe(usim.OpGetIMSI, name, err, time.Since(start))
	if err != nil {
		s.respondError(w, r, usim.OpGetIMSI, err)
		return
	}
	s.respond(w, r, imsiReply{IMSI: imsi})
}

// Auth runs AUTHENTICATE with the "rand" and "autn" parameters.
func (s *Server) Auth(w http.ResponseWriter, r *http.Request) {
	name, dev, err := s.device(r)
	if err != nil {
		s.respondError(w, r, usim.OpAuthenticate, err)
		return
	}

	q := r.URL.Query()
	start := time.Now()
	res, err := dev.Authenticate(q.Get("rand"), q.Get("autn"))
	s.metrics.observe(usim.OpAuthenticate, name, err, time.Since(start))
	if err != nil {
		s.respondError(w, r, usim.OpAuthenticate, err)
		return
	}

	switch res := res.(type) {
	case *usim.AuthSuccess:
		s.respond(w, r, authReply{
			RES: hexString(res.RES),
			CK:  hexString(res.CK),
			IK:  hexString(res.IK),
			Kc:  hexString(res.Kc),
		})
	case *usim.SyncFailure:
		s.metrics.syncFailures.WithLabelValues(name).Inc()
		s.respond(w, r, syncReply{AUTS: hexString(res.AUTS)})
	default:
		s.respondError(w, r, usim.OpAuthenticate, fmt.Errorf("unexpected authentication result %T", res))
	}
}

// APDU forwards the "hex" parameter to the card.
func (s *Server) APDU(w http.ResponseWriter, r *http.Request) {
	name, dev, err := s.device(r)
	if err != nil {
		s.respondError(w, r, usim.OpRawAPDU, err)
		return
	}

	start := time.Now()
	res, err := dev.RawAPDU(r.URL.Query().Get("hex"))
	s.metrics.observe(usim.OpRawAPDU, name, err, time.Since(start))
	if err != nil {
		s.respondError(w, r, usim.OpRawAPDU, err)
		return
	}
	s.respond(w, r, apduReply{
		Data: hexString(res.Data),
		SW1:  fmt.Sprintf("%02X", res.SW1),
		SW2:  fmt.Sprintf("%02X", res.SW2),
	})
}

// Devices lists the registered devices.
func (s *Server) Devices(w http.ResponseWriter, r *http.Request) {
	reply := devicesReply{Default: s.defaultName, Devices: []deviceEntry{}}
	for _, name := range s.DeviceNames() {
		reply.Devices = append(reply.Devices, deviceEntry{
			Name:    name,
			Backend: describe(s.devices[name]).String(),
		})
	}
	s.respond(w, r, reply)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, v interface{}) {
	s.writeJSON(w, r, http.StatusOK, v)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := usim.KindOf(err)
	code := StatusCode(kind)

	fields := []zap.Field{
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("kind", kind.String()),
		zap.Int("status", code),
		zap.Error(err),
	}
	if op != "" {
		fields = append(fields, zap.String("op", op))
	}
	if code >= http.StatusInternalServerError {
		s.logger.Warn("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}

	s.writeJSON(w, r, code, errorReply{
		Error:     true,
		ErrorCode: code,
		ErrorMsg:  err.Error(),
		Reason:    kind.String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	body, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		s.logger.Error("encode reply", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("write reply", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
	}
}

// StatusCode maps a failure kind onto an HTTP status.
func StatusCode(kind usim.Kind) int {
	switch kind {
	case usim.KindInvalidInput:
		return http.StatusBadRequest
	case usim.KindCardStatus, usim.KindMalformedResponse, usim.KindTransport:
		return http.StatusBadGateway
	case usim.KindDeviceUnavailable:
		return http.StatusServiceUnavailable
	case usim.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusNotImplemented
	}
}

func hexString(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
