// Package softcard emulates a USIM in software. Authentication follows the Milenage
// algorithm set (3GPP TS 35.206) with a subscriber key K and operator key OPc.
//
// A Card is a card transmitter: it can back a usim.Session directly, or sit behind the
// AT+CSIM command interface of Modem to exercise the modem transport end to end.
package softcard

import (
	"fmt"
	"sync"

	"github.com/gregLibert/usim-gateway/pkg/iso7816"
	"github.com/gregLibert/usim-gateway/pkg/usim"
	"go.uber.org/zap"
)

// Config describes the emulated subscription.
type Config struct {
	IMSI string
	K    []byte
	OPc  []byte

	// SQN is the highest sequence number already accepted by the card.
	SQN uint64

	// ImplicitADF lets AUTHENTICATE run before the USIM ADF was selected.
	ImplicitADF bool
	// DirectResponses returns response data along with '9000' instead of '61XX'.
	DirectResponses bool
	// IncludeKc appends the GSM cipher key to successful AUTHENTICATE responses.
	IncludeKc bool
}

// Card is an emulated UICC holding a USIM application. It is safe for concurrent use.
type Card struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	mf        *file
	adf       *file
	curDF     *file
	curEF     *file
	adfActive bool
	pending   []byte
	sqn       uint64
}

// New creates a Card for cfg.
func New(cfg Config, logger *zap.Logger) (*Card, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	efIMSI, err := usim.EncodeIMSI(cfg.IMSI)
	if err != nil {
		return nil, fmt.Errorf("soft card: %w", err)
	}
	if len(cfg.K) != 16 {
		return nil, fmt.Errorf("soft card: K must be 16 bytes, got %d", len(cfg.K))
	}
	if len(cfg.OPc) != 16 {
		return nil, fmt.Errorf("soft card: OPc must be 16 bytes, got %d", len(cfg.OPc))
	}

	mf, adf := buildTree(efIMSI)
	return &Card{
		cfg:    cfg,
		logger: logger.With(zap.String("imsi", cfg.IMSI)),
		mf:     mf,
		adf:    adf,
		curDF:  mf,
		sqn:    cfg.SQN,
	}, nil
}

// SQN returns the highest sequence number accepted so far.
func (c *Card) SQN() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sqn
}

func (c *Card) String() string {
	return "soft card " + c.cfg.IMSI
}

// Transmit executes one command APDU and returns data followed by SW1 SW2.
// Every card-level problem is reported through the status word.
func (c *Card) Transmit(raw []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp := c.execute(raw)
	c.logger.Debug("soft card exchange",
		zap.String("command", fmt.Sprintf("%X", raw)),
		zap.String("response", fmt.Sprintf("%X", resp)),
	)
	return resp, nil
}

func (c *Card) execute(raw []byte) []byte {
	if len(raw) >= 1 && raw[0] != 0x00 {
		return status(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
	}

	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		if len(raw) >= 4 {
			if _, insErr := iso7816.NewInstruction(iso7816.InsCode(raw[1])); insErr != nil {
				return status(iso7816.SW_ERR_INS_INVALID)
			}
		}
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}

	if cmd.Instruction.Raw != iso7816.INS_GET_RESPONSE {
		c.pending = nil
	}

	switch cmd.Instruction.Raw {
	case iso7816.INS_SELECT:
		return c.selectFile(cmd)
	case iso7816.INS_READ_BINARY:
		return c.readBinary(cmd)
	case iso7816.INS_GET_RESPONSE:
		return c.getResponse(cmd)
	case iso7816.INS_AUTHENTICATE:
		return c.authenticate(cmd)
	default:
		return status(iso7816.SW_ERR_INS_INVALID)
	}
}

func status(sw iso7816.StatusWord) []byte {
	return []byte{sw.SW1(), sw.SW2()}
}

// respond returns data directly or announces it with '61XX' for GET RESPONSE.
func (c *Card) respond(data []byte) []byte {
	if len(data) == 0 {
		return status(iso7816.SW_NO_ERROR)
	}
	if c.cfg.DirectResponses {
		return append(append([]byte(nil), data...), 0x90, 0x00)
	}
	c.pending = data
	return []byte{0x61, byte(len(data))}
}

func (c *Card) selectFile(cmd *iso7816.CommandAPDU) []byte {
	var target *file

	switch iso7816.SelectionMethod(cmd.P1) {
	case iso7816.SelectByFileID:
		if len(cmd.Data) != 2 {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		fid := uint16(cmd.Data[0])<<8 | uint16(cmd.Data[1])
		if fid == fileADF && c.adfActive {
			target = c.adf
		} else {
			target = resolve(c.mf, c.curDF, fid)
		}
	case iso7816.SelectByDFName:
		if matchAID(c.adf.aid, cmd.Data) {
			target = c.adf
		}
	default:
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	}

	if target == nil {
		return status(iso7816.SW_ERR_FILE_NOT_FOUND)
	}

	if target.df {
		c.curDF, c.curEF = target, nil
		if target == c.adf {
			c.adfActive = true
		}
	} else {
		c.curEF = target
	}

	if iso7816.SelectionControl(cmd.P2&0x0C) == iso7816.ReturnNoData {
		return status(iso7816.SW_NO_ERROR)
	}
	return c.respond(target.fcp())
}

func (c *Card) readBinary(cmd *iso7816.CommandAPDU) []byte {
	ef := c.curEF
	offset := int(cmd.P1)<<8 | int(cmd.P2)

	if cmd.P1&0x80 != 0 {
		ef = c.curDF.childBySFI(cmd.P1 & 0x1F)
		if ef == nil {
			return status(iso7816.SW_ERR_FILE_NOT_FOUND)
		}
		c.curEF = ef
		offset = int(cmd.P2)
	}

	switch {
	case ef == nil:
		return status(iso7816.SW_ERR_CMD_NOT_ALLOWED_NO_EF)
	case ef.record:
		return status(iso7816.SW_ERR_CMD_INCOMPATIBLE_FILE)
	case cmd.Ne == 0:
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	case offset > len(ef.content):
		return status(iso7816.SW_ERR_WRONG_P1P2)
	}

	avail := ef.content[offset:]
	n := cmd.Ne
	if n > len(avail) {
		if n != iso7816.MaxShortLe {
			return []byte{0x6C, byte(len(avail))}
		}
		n = len(avail)
	}

	out := append([]byte(nil), avail[:n]...)
	return append(out, 0x90, 0x00)
}

func (c *Card) getResponse(cmd *iso7816.CommandAPDU) []byte {
	if len(c.pending) == 0 {
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}
	if cmd.P1 != 0 || cmd.P2 != 0 {
		return status(iso7816.SW_ERR_WRONG_P1P2)
	}
	if cmd.Ne == 0 {
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}

	n := cmd.Ne
	if n > len(c.pending) {
		if n != iso7816.MaxShortLe {
			return []byte{0x6C, byte(len(c.pending))}
		}
		n = len(c.pending)
	}

	out := append([]byte(nil), c.pending[:n]...)
	c.pending = c.pending[n:]
	if len(c.pending) > 0 {
		return append(out, 0x61, byte(len(c.pending)))
	}
	c.pending = nil
	return append(out, 0x90, 0x00)
}
