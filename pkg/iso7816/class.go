package iso7816

import (
	"fmt"

	"github.com/gregLibert/usim-gateway/pkg/bits"
)

// CLASS BYTE (ISO/IEC 7816-4 5.4.1, ETSI TS 102 221 10.1.1):
//
//	'0X' '4X' '6X'  interindustry commands (SELECT, READ BINARY, AUTHENTICATE...)
//	'8X' 'CX' 'EX'  UICC specific commands (STATUS, TERMINAL PROFILE, FETCH...)
//	'A0'            GSM application commands (3GPP TS 51.011)
//
// Interindustry and UICC bytes share the low bits:
//
//	b5      command chaining
//	b7 = 0  b4-b3 secure messaging, b2-b1 logical channel 0-3
//	b7 = 1  b6 secure messaging, b4-b1 logical channel minus 4 (4-19)

// ClassGroup tells which command set a CLA byte belongs to.
type ClassGroup int

const (
	GroupInterindustry ClassGroup = iota
	GroupUICC
	GroupGSM
	GroupProprietary
)

func (g ClassGroup) String() string {
	switch g {
	case GroupInterindustry:
		return "interindustry"
	case GroupUICC:
		return "UICC"
	case GroupGSM:
		return "GSM"
	default:
		return "proprietary"
	}
}

// SecureMessaging is the secure messaging indication of a CLA byte.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1
	SMHeaderNoProc SecureMessaging = 2 // ISO, header not processed
	SMHeaderAuth   SecureMessaging = 3 // ISO, header authenticated
)

const (
	classGSM       = 0xA0
	maxChannel     = 19
	firstFurtherCh = 4
)

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	Group           ClassGroup
	Chained         bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// NewClass decodes cla. 'FF' is reserved for PPS and rejected.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla}
	switch {
	case cla == classGSM:
		c.Group = GroupGSM
		return c, nil
	case !bits.IsSet(cla, 8):
		c.Group = GroupInterindustry
	case bits.GetRange(cla, 7, 6) == 0b01:
		// 'A1'..'BF': no structure is defined for these.
		c.Group = GroupProprietary
		return c, nil
	default:
		c.Group = GroupUICC
	}

	c.Chained = bits.IsSet(cla, 5)
	if !bits.IsSet(cla, 7) {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	} else {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + firstFurtherCh
	}
	return c, nil
}

// Encode returns the CLA byte described by c.
func (c *Class) Encode() (byte, error) {
	var res byte
	switch c.Group {
	case GroupGSM:
		return classGSM, nil
	case GroupProprietary:
		return c.Raw, nil
	case GroupUICC:
		res = bits.Set(res, 8)
	}

	if c.Chained {
		res = bits.Set(res, 5)
	}

	if c.Channel < firstFurtherCh {
		res |= byte(c.SecureMessaging) << 2
		res |= c.Channel
		return res, nil
	}
	if c.Channel > maxChannel {
		return 0, fmt.Errorf("channel %d out of range (max %d)", c.Channel, maxChannel)
	}

	res = bits.Set(res, 7)
	if c.SecureMessaging != SMNone {
		res = bits.Set(res, 6)
	}
	res |= c.Channel - firstFurtherCh
	return res, nil
}

func (c Class) String() string {
	switch c.Group {
	case GroupGSM, GroupProprietary:
		return fmt.Sprintf("CLA %02X (%s)", c.Raw, c.Group)
	}

	s := fmt.Sprintf("CLA %02X (%s, channel %d", c.Raw, c.Group, c.Channel)
	if c.SecureMessaging != SMNone {
		s += ", secure messaging"
	}
	if c.Chained {
		s += ", chained"
	}
	return s + ")"
}
