// Package gateway serves USIM operations over HTTP(S).
//
// The query API of the first deployments is kept as is:
//
//	GET /?type=imsi
//	GET /?type=rand-autn&rand=<32 hex>&autn=<32 hex>
//	GET /?type=apdu&hex=<hex>
//
// along with REST aliases (/imsi, /auth, /apdu), the list of devices and the
// Prometheus metrics. Every reply is a tab-indented JSON document.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gregLibert/usim-gateway/pkg/usim"
	"go.uber.org/zap"
)

// Device is a card the gateway can drive. *usim.Session implements it.
type Device interface {
	GetIMSI() (string, error)
	Authenticate(randHex, autnHex string) (usim.AuthResult, error)
	RawAPDU(apduHex string) (*usim.RawResponse, error)
}

// Config describes the listener.
type Config struct {
	Addr string
	// CertFile and KeyFile hold PEM data. Both empty means plain HTTP.
	// KeyFile may be empty when CertFile also holds the private key.
	CertFile string
	KeyFile  string

	ReadHeaderTimeout time.Duration
}

// HeaderRequestID carries the request identifier, generated when the client did not send one.
const HeaderRequestID = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// Server routes HTTP requests to registered devices.
// Devices must be registered before Run.
type Server struct {
	cfg    Config
	https  *http.Server
	logger *zap.Logger

	devices     map[string]Device
	defaultName string
	metrics     *metrics
}

// New creates a Server. Register at least one device before calling Run.
func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		devices: make(map[string]Device),
		metrics: newMetrics(),
	}

	r := mux.NewRouter()
	r.Use(s.requestID)

	sr := r.Methods(http.MethodGet).Subrouter()
	sr.HandleFunc("/", s.Query)
	sr.HandleFunc("/imsi", s.IMSI)
	sr.HandleFunc("/auth", s.Auth)
	sr.HandleFunc("/apdu", s.APDU)
	sr.HandleFunc("/devices", s.Devices)
	sr.Handle("/metrics", s.metrics.handler())

	stdlog := zap.NewStdLog(logger.Named("http"))

	var h http.Handler = r
	// Log after the request is done, in the Apache format.
	h = handlers.CombinedLoggingHandler(stdlog.Writer(), h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(stdlog),
		handlers.PrintRecoveryStack(true),
	)(h)

	s.https = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ErrorLog:          stdlog,
	}
	return s
}

// Register makes dev reachable under name. The first registered device is the default one.
func (s *Server) Register(name string, dev Device) error {
	if name == "" {
		return errors.New("device name is empty")
	}
	if _, ok := s.devices[name]; ok {
		return fmt.Errorf("device %q already registered", name)
	}
	s.devices[name] = dev
	if s.defaultName == "" {
		s.defaultName = name
	}
	s.logger.Info("device registered", zap.String("device", name), zap.Stringer("backend", describe(dev)))
	return nil
}

// DeviceNames returns the registered device names in lexical order.
func (s *Server) DeviceNames() []string {
	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.https.Handler
}

// Run listens until Shutdown is called. It serves TLS when a certificate is configured.
func (s *Server) Run() error {
	if len(s.devices) == 0 {
		return errors.New("no device registered")
	}

	var err error
	if s.cfg.CertFile != "" {
		keyFile := s.cfg.KeyFile
		if keyFile == "" {
			keyFile = s.cfg.CertFile
		}
		s.logger.Info("serving https", zap.String("addr", s.cfg.Addr), zap.String("cert", s.cfg.CertFile))
		err = s.https.ListenAndServeTLS(s.cfg.CertFile, keyFile)
	} else {
		s.logger.Warn("no certificate configured, serving plain http", zap.String("addr", s.cfg.Addr))
		err = s.https.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for the ones in flight.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.https.Shutdown(ctx)
}

// requestID tags each request with an identifier, echoed in the response headers.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// device resolves the optional "device" query parameter.
func (s *Server) device(r *http.Request) (string, Device, error) {
	name := r.URL.Query().Get("device")
	if name == "" {
		name = s.defaultName
	}
	dev, ok := s.devices[name]
	if !ok {
		return name, nil, fmt.Errorf("%w: unknown device %q", usim.ErrInvalidInput, name)
	}
	return name, dev, nil
}

type stringer string

func (s stringer) String() string { return string(s) }

func describe(dev Device) fmt.Stringer {
	if st, ok := dev.(fmt.Stringer); ok {
		return st
	}
	return stringer(fmt.Sprintf("%T", dev))
}
