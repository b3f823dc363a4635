package main

import (
	"io"
	"testing"
	"time"

	"github.com/gregLibert/usim-gateway/pkg/tlv"
	"github.com/gregLibert/usim-gateway/pkg/transport/at"
	"github.com/gregLibert/usim-gateway/pkg/usim"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	if cfg.addr != ":443" {
		t.Errorf("addr = %q, want :443", cfg.addr)
	}
	if cfg.appPath != usim.AppPathEFDirAID {
		t.Errorf("appPath = %s, want efdir+aid", cfg.appPath)
	}
	if cfg.atTimeout != at.DefaultTimeout || cfg.atResends != at.DefaultMaxResends {
		t.Errorf("AT settings = %v/%d", cfg.atTimeout, cfg.atResends)
	}
	if cfg.hasDevice() {
		t.Errorf("hasDevice() = true without any device flag")
	}
	if string(cfg.softK) != string(tlv.Hex(defaultSoftK)) {
		t.Errorf("softK = %X", cfg.softK)
	}
}

func TestParseFlags(t *testing.T) {
	args := []string{
		"-addr", ":8443",
		"-m", "/dev/ttyUSB2",
		"-at-timeout", "250ms",
		"-at-resends", "4",
		"-app-path", "AID",
		"-soft",
		"-soft-k", "000102030405060708090a0b0c0d0e0f",
		"-log-format", "json",
	}

	cfg, err := parseFlags(args, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	if cfg.addr != ":8443" || cfg.modemPort != "/dev/ttyUSB2" {
		t.Errorf("addr/modem = %q/%q", cfg.addr, cfg.modemPort)
	}
	if cfg.atTimeout != 250*time.Millisecond || cfg.atResends != 4 {
		t.Errorf("AT settings = %v/%d", cfg.atTimeout, cfg.atResends)
	}
	if cfg.appPath != usim.AppPathAID {
		t.Errorf("appPath = %s, want aid", cfg.appPath)
	}
	if !cfg.soft || !cfg.hasDevice() {
		t.Errorf("soft card not enabled")
	}
	if string(cfg.softK) != string(tlv.Hex("000102030405060708090A0B0C0D0E0F")) {
		t.Errorf("softK = %X", cfg.softK)
	}
	if cfg.logFormat != "json" {
		t.Errorf("logFormat = %q", cfg.logFormat)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"Unknown app path", []string{"-app-path", "adf"}},
		{"Short key", []string{"-soft-k", "0011"}},
		{"Key not hex", []string{"-soft-opc", "ZZ"}},
		{"Key without certificate", []string{"-key", "server.key"}},
		{"Negative resends", []string{"-at-resends", "-1"}},
		{"Stray argument", []string{"-soft", "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, io.Discard); err == nil {
				t.Errorf("parseFlags(%q) succeeded", tt.args)
			}
		})
	}
}

func TestOpenSoftCard(t *testing.T) {
	for _, viaAT := range []bool{false, true} {
		cfg, err := parseFlags([]string{"-soft", "-at-timeout", "50ms"}, io.Discard)
		if err != nil {
			t.Fatalf("parseFlags() error = %v", err)
		}
		cfg.softAT = viaAT

		d, err := openSoftCard(cfg)
		if err != nil {
			t.Fatalf("openSoftCard(at=%v) error = %v", viaAT, err)
		}

		imsi, err := usim.NewSession(d.card).GetIMSI()
		if err != nil {
			t.Fatalf("GetIMSI(at=%v) error = %v", viaAT, err)
		}
		if imsi != defaultSoftIMSI {
			t.Errorf("GetIMSI(at=%v) = %q, want %s", viaAT, imsi, defaultSoftIMSI)
		}

		if err := closeDevices([]device{d}); err != nil {
			t.Errorf("closeDevices() error = %v", err)
		}
	}
}
