package softcard

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/gregLibert/usim-gateway/pkg/iso7816"
	"github.com/gregLibert/usim-gateway/pkg/usim"
	"github.com/wmnsk/milenage"
	"go.uber.org/zap"
)

// AKA ON THE CARD SIDE (3GPP TS 33.102, 6.3.3):
//
//	AUTN = SQN^AK (6) | AMF (2) | MAC-A (8)
//
// 1. f5(RAND) gives AK, which unmasks SQN.
// 2. f1(SQN, AMF, RAND) must equal MAC-A, otherwise the network is not authentic ('9862').
// 3. SQN must be greater than the highest SQN accepted so far, otherwise the card
//    answers with AUTS = SQNms^AK* | MAC-S, MAC-S being f1*(SQNms, AMF=0000, RAND).
// 4. f2..f4 give RES, CK and IK.

const (
	sqnLength = 6
	// sqnMax is the largest 48-bit sequence number.
	sqnMax = 1<<48 - 1
)

// Vector is an authentication vector as generated by the home network.
type Vector struct {
	RAND []byte
	AUTN []byte
	XRES []byte
	CK   []byte
	IK   []byte
}

// GenerateVector computes the vector for challenge rand, sequence number sqn and amf.
func GenerateVector(k, opc, rand []byte, sqn uint64, amf uint16) (*Vector, error) {
	if sqn > sqnMax {
		return nil, fmt.Errorf("SQN %d exceeds 48 bits", sqn)
	}

	m := milenage.NewWithOPc(k, opc, rand, sqn, amf)
	res, ck, ik, ak, err := m.F2345()
	if err != nil {
		return nil, fmt.Errorf("f2345: %w", err)
	}
	macA, err := m.F1()
	if err != nil {
		return nil, fmt.Errorf("f1: %w", err)
	}

	autn := make([]byte, 0, usim.AUTNLength)
	autn = append(autn, xor(sqnBytes(sqn), ak)...)
	autn = binary.BigEndian.AppendUint16(autn, amf)
	autn = append(autn, macA...)

	return &Vector{RAND: rand, AUTN: autn, XRES: res, CK: ck, IK: ik}, nil
}

// ComputeOPc derives the operator key OPc from K and OP.
func ComputeOPc(k, op []byte) ([]byte, error) {
	return milenage.ComputeOPc(k, op)
}

// ResyncSQN recovers SQNms from an AUTS token after checking its MAC-S.
func ResyncSQN(k, opc, rand, auts []byte) (uint64, error) {
	if len(auts) != usim.AUTSLength {
		return 0, fmt.Errorf("AUTS must be %d bytes, got %d", usim.AUTSLength, len(auts))
	}

	m := milenage.NewWithOPc(k, opc, rand, 0, 0)
	akStar, err := m.F5Star()
	if err != nil {
		return 0, fmt.Errorf("f5*: %w", err)
	}
	sqnMS := xor(auts[:sqnLength], akStar)

	macS, err := m.F1Star(sqnMS, []byte{0x00, 0x00})
	if err != nil {
		return 0, fmt.Errorf("f1*: %w", err)
	}
	if subtle.ConstantTimeCompare(macS, auts[sqnLength:]) != 1 {
		return 0, fmt.Errorf("MAC-S mismatch")
	}
	return sqnValue(sqnMS), nil
}

// DeriveKc computes the GSM cipher key from CK and IK (conversion function c3).
func DeriveKc(ck, ik []byte) []byte {
	kc := make([]byte, usim.KcLength)
	for i := range kc {
		kc[i] = ck[i] ^ ck[i+8] ^ ik[i] ^ ik[i+8]
	}
	return kc
}

func (c *Card) authenticate(cmd *iso7816.CommandAPDU) []byte {
	switch {
	case cmd.P1 != 0x00:
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	case cmd.P2 == 0x80:
		return status(iso7816.SW_ERR_AUTH_CONTEXT_NOT_SUPP)
	case cmd.P2 != 0x81:
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	case !c.adfActive && !c.cfg.ImplicitADF:
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}

	d := cmd.Data
	if len(d) != 2+usim.RANDLength+usim.AUTNLength || d[0] != usim.RANDLength || d[1+usim.RANDLength] != usim.AUTNLength {
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}
	rand := d[1 : 1+usim.RANDLength]
	autn := d[2+usim.RANDLength:]

	data, sw, err := c.runAKA(rand, autn)
	if err != nil {
		c.logger.Error("milenage failure", zap.Error(err))
		return status(iso7816.SW_ERR_EXEC_NO_INFO)
	}
	if sw != iso7816.SW_NO_ERROR {
		return status(sw)
	}
	return c.respond(data)
}

func (c *Card) runAKA(rand, autn []byte) ([]byte, iso7816.StatusWord, error) {
	k, opc := c.cfg.K, c.cfg.OPc

	m := milenage.NewWithOPc(k, opc, rand, 0, 0)
	res, ck, ik, ak, err := m.F2345()
	if err != nil {
		return nil, 0, fmt.Errorf("f2345: %w", err)
	}

	sqn := sqnValue(xor(autn[:sqnLength], ak))
	amf := binary.BigEndian.Uint16(autn[sqnLength : sqnLength+2])

	macA, err := milenage.NewWithOPc(k, opc, rand, sqn, amf).F1()
	if err != nil {
		return nil, 0, fmt.Errorf("f1: %w", err)
	}
	if subtle.ConstantTimeCompare(macA, autn[sqnLength+2:]) != 1 {
		c.logger.Info("network authentication failed: MAC mismatch")
		return nil, iso7816.SW_ERR_AUTH_MAC_FAILURE, nil
	}

	if sqn <= c.sqn {
		c.logger.Info("sequence number out of range, requesting resynchronisation",
			zap.Uint64("sqn", sqn),
			zap.Uint64("sqn_ms", c.sqn),
		)
		auts, err := c.auts(rand)
		if err != nil {
			return nil, 0, err
		}
		return append([]byte{0xDC, usim.AUTSLength}, auts...), iso7816.SW_NO_ERROR, nil
	}
	c.sqn = sqn

	out := []byte{0xDB, byte(len(res))}
	out = append(out, res...)
	out = append(out, usim.CKLength)
	out = append(out, ck...)
	out = append(out, usim.IKLength)
	out = append(out, ik...)
	if c.cfg.IncludeKc {
		out = append(out, usim.KcLength)
		out = append(out, DeriveKc(ck, ik)...)
	}
	return out, iso7816.SW_NO_ERROR, nil
}

func (c *Card) auts(rand []byte) ([]byte, error) {
	m := milenage.NewWithOPc(c.cfg.K, c.cfg.OPc, rand, c.sqn, 0)

	akStar, err := m.F5Star()
	if err != nil {
		return nil, fmt.Errorf("f5*: %w", err)
	}
	sqnMS := sqnBytes(c.sqn)
	macS, err := m.F1Star(sqnMS, []byte{0x00, 0x00})
	if err != nil {
		return nil, fmt.Errorf("f1*: %w", err)
	}
	return append(xor(sqnMS, akStar), macS...), nil
}

func sqnBytes(sqn uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], sqn)
	return b[8-sqnLength:]
}

func sqnValue(b []byte) uint64 {
	var full [8]byte
	copy(full[8-sqnLength:], b)
	return binary.BigEndian.Uint64(full[:])
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
