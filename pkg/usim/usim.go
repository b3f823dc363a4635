/*
Package usim drives the USIM application of a UICC to obtain the subscriber identity
(IMSI) and 3GPP AKA authentication material.

The package is split in three layers:

  - Command builders (SelectByFileID, SelectByAID, ReadBinary, Authenticate, GetResponse)
    producing iso7816.CommandAPDU values with the exact bytes USIM cards expect.
  - Response parsers (ParseIMSI, ParseAuthResponse) turning response data into values.
  - Session, which owns one card transmitter and runs the fixed command sequences,
    holding the device for the whole duration of an operation.

Every failure returned by a Session is an *Error carrying a Kind, so that callers can map
it to a response without inspecting messages.

# Files

	MF       3F00  Master File
	EF_DIR   2F00  Application directory
	DF_GSM   7F20  GSM directory (2G compatibility)
	EF_IMSI  6F07  IMSI, under DF_GSM and ADF_USIM
	ADF_USIM       selected by AID A0000000871002FFFFFFFF8903050001
*/
package usim

import "github.com/gregLibert/usim-gateway/pkg/tlv"

// File identifiers.
const (
	FileMF     uint16 = 0x3F00
	FileEFDir  uint16 = 0x2F00
	FileDFGSM  uint16 = 0x7F20
	FileEFIMSI uint16 = 0x6F07
)

// AID is the USIM application identifier (RID A000000087, application code 1002).
var AID = tlv.Hex("A0000000871002FFFFFFFF8903050001")

// Sizes of the AKA parameters (3GPP TS 33.102).
const (
	RANDLength   = 16
	AUTNLength   = 16
	AUTSLength   = 14
	CKLength     = 16
	IKLength     = 16
	KcLength     = 8
	MinRESLength = 4
	MaxRESLength = 16
)
