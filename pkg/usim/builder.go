package usim

import (
	"fmt"

	"github.com/gregLibert/usim-gateway/pkg/iso7816"
)

// COMMAND BUILDERS:
// All commands use the basic interindustry class (CLA 00) on logical channel 0.
//
//	SELECT by FID    00 A4 00 00 02 <FID>
//	SELECT by AID    00 A4 04 00 10 <AID>
//	READ BINARY      00 B0 00 00 <Le>
//	AUTHENTICATE     00 88 00 81 22 10 <RAND> 10 <AUTN>
//	GET RESPONSE     00 C0 00 00 <Le>
//
// SELECT and AUTHENTICATE carry data and no Le: a T=0 card answers '61XX' and the
// response is fetched with GET RESPONSE.

// P2 of AUTHENTICATE: specific reference data, 3G security context (ETSI TS 102 221, 10.1.4).
const authContext3G = 0x81

var basicClass = mustClass(0x00)

func mustClass(cla byte) iso7816.Class {
	c, err := iso7816.NewClass(cla)
	if err != nil {
		panic(err)
	}
	return c
}

func mustInstruction(code iso7816.InsCode) iso7816.Instruction {
	ins, err := iso7816.NewInstruction(code)
	if err != nil {
		panic(err)
	}
	return ins
}

// SelectByFileID selects a file by its 2-byte identifier.
func SelectByFileID(fid uint16) *iso7816.CommandAPDU {
	return iso7816.SelectFile(basicClass, fid)
}

// SelectByAID selects an application by its AID.
func SelectByAID(aid []byte) *iso7816.CommandAPDU {
	return iso7816.SelectByAID(basicClass, aid)
}

// ReadBinary reads length bytes of the current EF from offset 0. A length of 0 stands for 256.
func ReadBinary(length byte) *iso7816.CommandAPDU {
	ne := int(length)
	if ne == 0 {
		ne = iso7816.MaxShortLe
	}
	cmd, err := iso7816.NewReadBinaryCommand(basicClass, 0, ne)
	if err != nil {
		panic(err)
	}
	return cmd
}

// GetResponse fetches length pending response bytes. A length of 0 stands for 256.
func GetResponse(length byte) *iso7816.CommandAPDU {
	ne := int(length)
	if ne == 0 {
		ne = iso7816.MaxShortLe
	}
	return iso7816.NewGetResponseCommand(basicClass, ne)
}

// Authenticate builds the AUTHENTICATE command of the 3G security context.
// rand and autn must both be 16 bytes long.
func Authenticate(rand, autn []byte) (*iso7816.CommandAPDU, error) {
	if len(rand) != RANDLength {
		return nil, fmt.Errorf("RAND must be %d bytes, got %d", RANDLength, len(rand))
	}
	if len(autn) != AUTNLength {
		return nil, fmt.Errorf("AUTN must be %d bytes, got %d", AUTNLength, len(autn))
	}

	data := make([]byte, 0, 2+RANDLength+AUTNLength)
	data = append(data, RANDLength)
	data = append(data, rand...)
	data = append(data, AUTNLength)
	data = append(data, autn...)

	return iso7816.NewCommandAPDU(basicClass, mustInstruction(iso7816.INS_AUTHENTICATE), 0x00, authContext3G, data, 0), nil
}
