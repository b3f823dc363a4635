package iso7816

import (
	"strings"
	"testing"
)

func TestStatusWord_Classes(t *testing.T) {
	tests := []struct {
		sw                               StatusWord
		success, warning, err, trig, cnt bool
	}{
		{SW_NO_ERROR, true, false, false, false, false},
		{0x612C, true, false, false, false, false},
		{0x911A, true, false, false, false, false},
		{0x6202, false, true, false, true, false},
		{0x6280, false, true, false, true, false},
		{0x6201, false, true, false, false, false},
		{SW_WARN_EOF_REACHED, false, true, false, false, false},
		{0x63C2, false, true, false, false, true},
		{SW_WARN_FILE_FILLED, false, true, false, false, false},
		{0x6410, false, false, true, true, false},
		{SW_ERR_WRONG_LENGTH, false, false, true, false, false},
		{SW_ERR_FILE_NOT_FOUND, false, false, true, false, false},
		{SW_ERR_AUTH_MAC_FAILURE, false, false, true, false, false},
		{SW_ERR_AUTH_CONTEXT_NOT_SUPP, false, false, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.sw.String(), func(t *testing.T) {
			if got := tt.sw.IsSuccess(); got != tt.success {
				t.Errorf("IsSuccess() = %v", got)
			}
			if got := tt.sw.IsWarning(); got != tt.warning {
				t.Errorf("IsWarning() = %v", got)
			}
			if got := tt.sw.IsError(); got != tt.err {
				t.Errorf("IsError() = %v", got)
			}
			if got := tt.sw.IsTriggeringByCard(); got != tt.trig {
				t.Errorf("IsTriggeringByCard() = %v", got)
			}
			if got := tt.sw.IsCounter(); got != tt.cnt {
				t.Errorf("IsCounter() = %v", got)
			}
		})
	}
}

func TestStatusWord_Verbose(t *testing.T) {
	tests := []struct {
		sw   StatusWord
		want string
	}{
		{0x6210, "Card expects query of 16 bytes"},
		{0x6410, "Error/Abort (Triggering)"},
		{0x63C3, "counter = 3"},
		{0x612C, "44 bytes available"},
		{0x911A, "proactive command of 26 bytes pending"},
		{0x6C09, "correct Le is 9"},
		{SW_ERR_FILE_NOT_FOUND, "[6A82] File or application not found"},
		{SW_ERR_AUTH_MAC_FAILURE, "[9862] Authentication error, incorrect MAC"},
		{0x9850, "[9850] Security Error"},
		{0x6A8F, "[6A8F] Checking Error: Wrong parameters"},
		{0x9F10, "[9F10] Unknown Status"},
	}

	for _, tt := range tests {
		if got := tt.sw.Verbose(); !strings.Contains(got, tt.want) {
			t.Errorf("Verbose(%s) = %q, want containing %q", tt.sw, got, tt.want)
		}
	}
}

func TestStatusWord_Bytes(t *testing.T) {
	sw := NewStatusWord(0x6A, 0x82)
	if sw != SW_ERR_FILE_NOT_FOUND || sw.SW1() != 0x6A || sw.SW2() != 0x82 || sw.String() != "6A82" {
		t.Errorf("NewStatusWord(6A, 82) = %s (%02X %02X)", sw, sw.SW1(), sw.SW2())
	}
}
