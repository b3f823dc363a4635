package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gregLibert/usim-gateway/pkg/transport/at"
	"github.com/gregLibert/usim-gateway/pkg/usim"
)

// 3GPP TS 35.208 test set 1, used when the soft card runs without explicit keys.
const (
	defaultSoftIMSI = "001010123456789"
	defaultSoftK    = "465B5CE8B199B49FAA5F0A2EE238A6BC"
	defaultSoftOPc  = "CD63CB71954A9F4E48A5994E37A02BAF"
)

type config struct {
	addr     string
	certFile string
	keyFile  string

	modemPort  string
	baudRate   uint
	rtscts     bool
	atTimeout  time.Duration
	atResends  int
	reader     string
	appPath    usim.AppPath
	openRetry  uint64
	soft       bool
	softAT     bool
	softIMSI   string
	softK      []byte
	softOPc    []byte
	softSQN    uint64
	logFile    string
	logLevel   string
	logFormat  string
	debugAPDUs bool
	version    bool
}

// appPathFlag lets flag.Var parse usim.AppPath values.
type appPathFlag struct {
	p *usim.AppPath
}

func (f appPathFlag) String() string {
	if f.p == nil {
		return usim.AppPathEFDirAID.String()
	}
	return f.p.String()
}

func (f appPathFlag) Set(value string) error {
	p, err := usim.ParseAppPath(value)
	if err != nil {
		return err
	}
	*f.p = p
	return nil
}

// keyFlag parses a 16 byte key written in hex.
type keyFlag struct {
	b *[]byte
}

func (f keyFlag) String() string {
	if f.b == nil {
		return ""
	}
	return strings.ToUpper(hex.EncodeToString(*f.b))
}

func (f keyFlag) Set(value string) error {
	b, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("not hex: %v", err)
	}
	if len(b) != 16 {
		return fmt.Errorf("want 16 bytes, got %d", len(b))
	}
	*f.b = b
	return nil
}

func parseFlags(args []string, output io.Writer) (*config, error) {
	cfg := &config{appPath: usim.AppPathEFDirAID}
	cfg.softK, _ = hex.DecodeString(defaultSoftK)
	cfg.softOPc, _ = hex.DecodeString(defaultSoftOPc)

	fs := flag.NewFlagSet("usim-gateway", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.addr, "addr", ":443", "Listen address")
	fs.StringVar(&cfg.certFile, "cert", "", "PEM certificate (may also hold the key). Plain HTTP when empty")
	fs.StringVar(&cfg.keyFile, "key", "", "PEM private key, when not part of -cert")

	fs.StringVar(&cfg.modemPort, "m", "", "Modem serial port, e.g. /dev/ttyUSB2")
	fs.UintVar(&cfg.baudRate, "baud", at.DefaultBaudRate, "Modem baud rate")
	fs.BoolVar(&cfg.rtscts, "rtscts", true, "Use RTS/CTS flow control on the modem port")
	fs.DurationVar(&cfg.atTimeout, "at-timeout", at.DefaultTimeout, "Silence after which an AT command is written again")
	fs.IntVar(&cfg.atResends, "at-resends", at.DefaultMaxResends, "Resends before an AT exchange times out")

	fs.StringVar(&cfg.reader, "r", "", "PC/SC reader index or name substring")

	fs.Var(appPathFlag{&cfg.appPath}, "app-path", "Files selected before AUTHENTICATE: efdir+aid, aid or efdir")
	fs.Uint64Var(&cfg.openRetry, "open-retries", 3, "Retries when a device cannot be opened at startup")

	fs.BoolVar(&cfg.soft, "soft", false, "Serve a software USIM (Milenage)")
	fs.BoolVar(&cfg.softAT, "soft-at", false, "Reach the software USIM through an emulated AT+CSIM modem")
	fs.StringVar(&cfg.softIMSI, "soft-imsi", defaultSoftIMSI, "IMSI of the software USIM")
	fs.Var(keyFlag{&cfg.softK}, "soft-k", "Subscriber key K of the software USIM (hex)")
	fs.Var(keyFlag{&cfg.softOPc}, "soft-opc", "Operator key OPc of the software USIM (hex)")
	fs.Uint64Var(&cfg.softSQN, "soft-sqn", 0, "Highest sequence number already accepted by the software USIM")

	fs.StringVar(&cfg.logFile, "l", "", "Log into a file, rotating after 5MB")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.logFormat, "log-format", "console", "Log format: console or json")
	fs.BoolVar(&cfg.debugAPDUs, "apdu-log", false, "Log every APDU exchange (forces debug level)")
	fs.BoolVar(&cfg.version, "version", false, "Print the version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if cfg.keyFile != "" && cfg.certFile == "" {
		return nil, fmt.Errorf("-key requires -cert")
	}
	if cfg.atResends < 0 {
		return nil, fmt.Errorf("-at-resends must not be negative")
	}
	if cfg.debugAPDUs {
		cfg.logLevel = "debug"
	}
	return cfg, nil
}

// hasDevice reports whether at least one device is configured.
func (c *config) hasDevice() bool {
	return c.modemPort != "" || c.reader != "" || c.soft
}
