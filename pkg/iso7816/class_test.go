package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewClass(t *testing.T) {
	tests := []struct {
		name     string
		cla      byte
		expected Class
	}{
		{
			name:     "Basic interindustry",
			cla:      0x00,
			expected: Class{Raw: 0x00, Group: GroupInterindustry},
		},
		{
			name: "Channel 3, chaining, header authenticated",
			// 0(ISO)_0(first)_1(chain)_11(SM)_11(ch 3)
			cla:      0b0_0_0_1_11_11,
			expected: Class{Raw: 0x1F, Group: GroupInterindustry, Chained: true, SecureMessaging: SMHeaderAuth, Channel: 3},
		},
		{
			name:     "Further interindustry channel 4",
			cla:      0x40,
			expected: Class{Raw: 0x40, Group: GroupInterindustry, Channel: 4},
		},
		{
			name:     "Further interindustry channel 19 with SM",
			cla:      0x6F,
			expected: Class{Raw: 0x6F, Group: GroupInterindustry, SecureMessaging: SMHeaderNoProc, Channel: 19},
		},
		{
			name:     "UICC STATUS class",
			cla:      0x80,
			expected: Class{Raw: 0x80, Group: GroupUICC},
		},
		{
			name:     "UICC class on channel 5",
			cla:      0xC1,
			expected: Class{Raw: 0xC1, Group: GroupUICC, Channel: 5},
		},
		{
			name:     "GSM",
			cla:      0xA0,
			expected: Class{Raw: 0xA0, Group: GroupGSM},
		},
		{
			name:     "Undefined proprietary",
			cla:      0xB4,
			expected: Class{Raw: 0xB4, Group: GroupProprietary},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClass(tt.cla)
			if err != nil {
				t.Fatalf("NewClass(%02X) error = %v", tt.cla, err)
			}
			if diff := cmp.Diff(tt.expected, c); diff != "" {
				t.Errorf("NewClass(%02X) mismatch (-want +got):\n%s", tt.cla, diff)
			}
		})
	}

	if _, err := NewClass(0xFF); err == nil {
		t.Errorf("NewClass(FF) should fail")
	}
}

func TestClass_Encode_RoundTrip(t *testing.T) {
	for _, cla := range []byte{0x00, 0x1F, 0x40, 0x6F, 0x80, 0x83, 0xC1, 0xEF, 0xA0, 0xB4} {
		c, err := NewClass(cla)
		if err != nil {
			t.Fatalf("NewClass(%02X) error = %v", cla, err)
		}
		got, err := c.Encode()
		if err != nil {
			t.Fatalf("Encode(%02X) error = %v", cla, err)
		}
		if got != cla {
			t.Errorf("round trip of %02X gave %02X", cla, got)
		}
	}
}

func TestClass_String(t *testing.T) {
	tests := []struct {
		cla  byte
		want string
	}{
		{0x00, "CLA 00 (interindustry, channel 0)"},
		{0x71, "CLA 71 (interindustry, channel 5, secure messaging, chained)"},
		{0x80, "CLA 80 (UICC, channel 0)"},
		{0xA0, "CLA A0 (GSM)"},
	}

	for _, tt := range tests {
		c, _ := NewClass(tt.cla)
		if got := c.String(); got != tt.want {
			t.Errorf("NewClass(%02X).String() = %q; want %q", tt.cla, got, tt.want)
		}
	}
}
