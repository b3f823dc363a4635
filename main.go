package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gregLibert/usim-gateway/pkg/gateway"
	"github.com/gregLibert/usim-gateway/pkg/iso7816"
	"github.com/gregLibert/usim-gateway/pkg/logger"
	"github.com/gregLibert/usim-gateway/pkg/softcard"
	"github.com/gregLibert/usim-gateway/pkg/transport"
	"github.com/gregLibert/usim-gateway/pkg/transport/at"
	"github.com/gregLibert/usim-gateway/pkg/transport/pcsc"
	"github.com/gregLibert/usim-gateway/pkg/usim"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const version = "1.0.0"

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.version {
		fmt.Println(version)
		return
	}

	err = logger.Init(logger.Options{
		Level:      cfg.logLevel,
		Format:     cfg.logFormat,
		File:       cfg.logFile,
		MaxSizeMB:  5,
		MaxBackups: 3,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	logger.Info("usim-gateway is starting", zap.String("version", version))

	if err := run(cfg); err != nil {
		logger.Error("usim-gateway stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("usim-gateway stopped")
}

// device is an opened backend, owned by run until shutdown.
type device struct {
	name string
	card iso7816.Transmitter
	io.Closer
}

func run(cfg *config) error {
	if !cfg.hasDevice() {
		return errors.New("no modem, reader or soft card configured")
	}

	devices := openDevices(cfg)
	defer func() {
		if err := closeDevices(devices); err != nil {
			logger.Warn("closing devices", zap.Error(err))
		}
	}()
	if len(devices) == 0 {
		return errors.New("no modem or reader available, exiting")
	}

	srv := gateway.New(gateway.Config{
		Addr:     cfg.addr,
		CertFile: cfg.certFile,
		KeyFile:  cfg.keyFile,
	}, logger.Named("gateway"))

	for _, d := range devices {
		session := usim.NewSession(d.card,
			usim.WithLogger(logger.Named(d.name)),
			usim.WithAppPath(cfg.appPath),
		)
		if err := srv.Register(d.name, session); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Append(srv.Shutdown(shutdownCtx), <-errCh)
}

// openDevices opens every configured backend. A device that stays unavailable
// after the configured retries is skipped with a warning.
func openDevices(cfg *config) []device {
	var devices []device

	if cfg.modemPort != "" {
		atCfg := at.DefaultConfig(cfg.modemPort)
		atCfg.BaudRate = cfg.baudRate
		atCfg.RTSCTS = cfg.rtscts
		atCfg.Timeout = cfg.atTimeout
		atCfg.MaxResends = cfg.atResends

		var m *at.Modem
		err := retry("modem", cfg.openRetry, func() (err error) {
			m, err = at.Open(atCfg, logger.Named("at"))
			return err
		})
		if err != nil {
			logger.Warn("modem unavailable", zap.String("port", cfg.modemPort), zap.Error(err))
		} else {
			devices = append(devices, device{name: "modem", card: m, Closer: m})
		}
	}

	if cfg.reader != "" {
		var r *pcsc.Reader
		err := retry("reader", cfg.openRetry, func() (err error) {
			r, err = pcsc.Open(cfg.reader, logger.Named("pcsc"))
			return err
		})
		if err != nil {
			logger.Warn("reader unavailable", zap.String("reader", cfg.reader), zap.Error(err))
		} else {
			devices = append(devices, device{name: "reader", card: r, Closer: r})
		}
	}

	if cfg.soft {
		d, err := openSoftCard(cfg)
		if err != nil {
			logger.Warn("soft card unavailable", zap.Error(err))
		} else {
			devices = append(devices, d)
		}
	}

	return devices
}

func openSoftCard(cfg *config) (device, error) {
	card, err := softcard.New(softcard.Config{
		IMSI: cfg.softIMSI,
		K:    cfg.softK,
		OPc:  cfg.softOPc,
		SQN:  cfg.softSQN,
	}, logger.Named("softcard"))
	if err != nil {
		return device{}, err
	}

	if !cfg.softAT {
		return device{name: "soft", card: card}, nil
	}

	atCfg := at.DefaultConfig("softcard")
	atCfg.Timeout = cfg.atTimeout
	atCfg.MaxResends = cfg.atResends

	m := at.New(softcard.NewModem(card), atCfg, logger.Named("at"))
	if err := m.Init(); err != nil {
		return device{}, multierr.Append(err, m.Close())
	}
	return device{name: "soft", card: m, Closer: m}, nil
}

// retry calls open until it succeeds or maxRetries retries have failed, backing off exponentially.
// Only unavailable or silent devices are retried.
func retry(what string, maxRetries uint64, open func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	op := func() error {
		err := open()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(op, backoff.WithMaxRetries(b, maxRetries), func(err error, next time.Duration) {
		logger.Warn("open failed, retrying",
			zap.String("device", what),
			zap.Duration("in", next),
			zap.Error(err),
		)
	})
}

func retryable(err error) bool {
	if errors.Is(err, pcsc.ErrNoSuchReader) {
		return false
	}
	return errors.Is(err, transport.ErrUnavailable) || errors.Is(err, transport.ErrTimeout)
}

func closeDevices(devices []device) error {
	var err error
	for _, d := range devices {
		if d.Closer != nil {
			err = multierr.Append(err, d.Close())
		}
	}
	return err
}
