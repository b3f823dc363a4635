package iso7816

import (
	"fmt"

	"github.com/gregLibert/usim-gateway/pkg/bits"
)

// STATUS WORDS (ISO/IEC 7816-4 5.6, ETSI TS 102 221 10.2.1):
//
//	'9000'  normal ending
//	'61XX'  normal ending, XX more bytes to fetch with GET RESPONSE ('00' is 256)
//	'6CXX'  wrong Le, resend with Le = XX
//	'62XX'  '64XX' with XX in 02..80: triggering by the card, XX bytes involved
//	'63CX'  verification failed, X retries left
//	'91XX'  normal ending, proactive command of XX bytes pending
//	'98XX'  UICC security management ('9862' is an AUTHENTICATE MAC failure)

// StatusWord is SW1-SW2 as a single value.
type StatusWord uint16

func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }
func (sw StatusWord) SW2() byte { return byte(sw) }

// IsTriggeringByCard reports a '62XX' or '64XX' with XX in 02..80.
func (sw StatusWord) IsTriggeringByCard() bool {
	switch sw.SW1() {
	case 0x62, 0x64:
		return sw.SW2() >= 0x02 && sw.SW2() <= 0x80
	}
	return false
}

// IsCounter reports a '63CX'.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.HighNibble(sw.SW2()) == 0x0C
}

// IsSuccess reports '9000', '61XX' and '91XX'. Only '9000' completes an exchange
// for the session layer.
func (sw StatusWord) IsSuccess() bool {
	switch sw.SW1() {
	case 0x61, 0x91:
		return true
	}
	return sw == SW_NO_ERROR
}

// IsWarning returns true if the status indicates a warning (62XX or 63XX).
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError returns true if the status indicates an execution error (64XX to 6FXX)
// or a UICC security management error (98XX).
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return (sw1 >= 0x64 && sw1 <= 0x6F) || sw1 == 0x98
}

// Verbose returns a human-readable description of the status word.
// It prioritizes dynamic ISO definitions over static string generation.
func (sw StatusWord) Verbose() string {
	sw1 := sw.SW1()
	sw2 := sw.SW2()

	if sw.IsTriggeringByCard() {
		action := "Warning (Triggering)"
		if sw1 == 0x64 {
			action = "Error/Abort (Triggering)"
		}
		return fmt.Sprintf("%s: Card expects query of %d bytes", action, sw2)
	}

	if sw.IsCounter() {
		return fmt.Sprintf("Warning: State changed, counter = %d", bits.LowNibble(sw2))
	}

	if sw1 == 0x61 {
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	}

	if sw1 == 0x91 {
		return fmt.Sprintf("Process completed, proactive command of %d bytes pending", sw2)
	}

	if sw1 == 0x6C {
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	}

	desc, ok := statusNames[sw]
	if !ok {
		desc = sw.genericCategoryDescription()
	}

	return fmt.Sprintf("[%04X] %s", uint16(sw), desc)
}

// String returns the hexadecimal form of the status word, e.g. "6A82".
func (sw StatusWord) String() string {
	return fmt.Sprintf("%04X", uint16(sw))
}

// genericCategoryDescription provides a fallback description based on SW1.
func (sw StatusWord) genericCategoryDescription() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	case 0x98:
		return "Security Error: UICC security management"
	default:
		return "Unknown Status"
	}
}

// Status Word codes defined in ISO/IEC 7816-4 and ETSI TS 102 221.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO            StatusWord = 0x6200
	SW_WARN_TRIGGERING_BY_CARD StatusWord = 0x6202
	SW_WARN_DATA_CORRUPTED     StatusWord = 0x6281
	SW_WARN_EOF_REACHED        StatusWord = 0x6282
	SW_WARN_FILE_DEACTIVATED   StatusWord = 0x6283
	SW_WARN_FCI_BAD_FORMAT     StatusWord = 0x6284

	SW_WARN_NV_CHANGED_NO_INFO StatusWord = 0x6300
	SW_WARN_FILE_FILLED        StatusWord = 0x6381
	SW_WARN_COUNTER_0          StatusWord = 0x63C0

	SW_ERR_EXEC_NO_INFO       StatusWord = 0x6400
	SW_ERR_NV_CHANGED_NO_INFO StatusWord = 0x6500
	SW_ERR_MEMORY_FAILURE     StatusWord = 0x6581

	SW_ERR_WRONG_LENGTH             StatusWord = 0x6700
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP StatusWord = 0x6881

	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_REF_DATA_NOT_USABLE     StatusWord = 0x6984
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986

	SW_ERR_INCORRECT_PARAMS_DATA StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED    StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND        StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND      StatusWord = 0x6A83
	SW_ERR_NOT_ENOUGH_MEMORY     StatusWord = 0x6A84
	SW_ERR_INCORRECT_PARAMS_P1P2 StatusWord = 0x6A86
	SW_ERR_NC_INCONSISTENT_P1P2  StatusWord = 0x6A87
	SW_ERR_REF_DATA_NOT_FOUND    StatusWord = 0x6A88

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00

	SW_ERR_AUTH_MAC_FAILURE        StatusWord = 0x9862
	SW_ERR_AUTH_CONTEXT_NOT_SUPP   StatusWord = 0x9864
	SW_ERR_AUTH_KEY_FRESHNESS_FAIL StatusWord = 0x9865
)

var statusNames = map[StatusWord]string{
	SW_NO_ERROR: "Normal processing",

	SW_WARN_NO_INFO:            "Warning: NV memory unchanged",
	SW_WARN_TRIGGERING_BY_CARD: "Warning: Triggering by the card",
	SW_WARN_DATA_CORRUPTED:     "Warning: Part of returned data may be corrupted",
	SW_WARN_EOF_REACHED:        "Warning: End of file reached before reading Le bytes",
	SW_WARN_FILE_DEACTIVATED:   "Warning: Selected file deactivated",
	SW_WARN_FCI_BAD_FORMAT:     "Warning: File control information not formatted correctly",

	SW_WARN_NV_CHANGED_NO_INFO: "Warning: NV memory changed",
	SW_WARN_FILE_FILLED:        "Warning: File filled up by the last write",

	SW_ERR_EXEC_NO_INFO:       "Execution Error: NV memory unchanged",
	SW_ERR_NV_CHANGED_NO_INFO: "Execution Error: NV memory changed",
	SW_ERR_MEMORY_FAILURE:     "Execution Error: Memory failure",

	SW_ERR_WRONG_LENGTH:             "Wrong length",
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP: "Logical channel not supported",

	SW_ERR_CMD_INCOMPATIBLE_FILE:   "Command incompatible with file structure",
	SW_ERR_SECURITY_STATUS_NOT_SAT: "Security status not satisfied",
	SW_ERR_AUTH_METHOD_BLOCKED:     "Authentication method blocked",
	SW_ERR_REF_DATA_NOT_USABLE:     "Reference data not usable",
	SW_ERR_COND_OF_USE_NOT_SAT:     "Conditions of use not satisfied",
	SW_ERR_CMD_NOT_ALLOWED_NO_EF:   "Command not allowed (no current EF)",

	SW_ERR_INCORRECT_PARAMS_DATA: "Incorrect parameters in the data field",
	SW_ERR_FUNC_NOT_SUPPORTED:    "Function not supported",
	SW_ERR_FILE_NOT_FOUND:        "File or application not found",
	SW_ERR_RECORD_NOT_FOUND:      "Record not found",
	SW_ERR_NOT_ENOUGH_MEMORY:     "Not enough memory space in the file",
	SW_ERR_INCORRECT_PARAMS_P1P2: "Incorrect parameters P1-P2",
	SW_ERR_NC_INCONSISTENT_P1P2:  "Lc inconsistent with P1-P2",
	SW_ERR_REF_DATA_NOT_FOUND:    "Referenced data not found",

	SW_ERR_WRONG_P1P2:        "Wrong parameters P1-P2",
	SW_ERR_INS_INVALID:       "Instruction code not supported or invalid",
	SW_ERR_CLA_NOT_SUPPORTED: "Class not supported",
	SW_ERR_UNKNOWN:           "Technical problem, no precise diagnosis",

	SW_ERR_AUTH_MAC_FAILURE:        "Authentication error, incorrect MAC",
	SW_ERR_AUTH_CONTEXT_NOT_SUPP:   "Authentication error, security context not supported",
	SW_ERR_AUTH_KEY_FRESHNESS_FAIL: "Key freshness failure",
}
