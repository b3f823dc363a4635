package iso7816

import (
	"fmt"

	"go.uber.org/zap"
)

// T=0 PROCEDURES:
//
//	'61XX'  send GET RESPONSE with Le = XX on the channel of the command
//	'6CXX'  send the command again with Le = XX
//
// '00' as XX stands for 256. Each procedure is applied at most once per command:
// a second '61XX' or '6CXX' ends the exchange and is left to the caller.

// Transmitter sends one raw command APDU and returns the raw response, status word included.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// TransmitFunc adapts a plain function to the Transmitter interface.
type TransmitFunc func(cmd []byte) ([]byte, error)

func (f TransmitFunc) Transmit(cmd []byte) ([]byte, error) {
	return f(cmd)
}

// Client runs commands over a Transmitter and applies the T=0 procedures.
type Client struct {
	Card Transmitter

	// Logger receives one debug entry per physical exchange. Nil disables it.
	Logger *zap.Logger
}

func NewClient(card Transmitter) *Client {
	return &Client{Card: card, Logger: zap.NewNop()}
}

// lengthFromSW2 converts the SW2 of a '61XX' or '6CXX' into Ne.
func lengthFromSW2(sw2 byte) int {
	if sw2 == 0 {
		return MaxShortLe
	}
	return int(sw2)
}

// Send runs cmd and returns every exchange it took, the last one holding the
// final status. A card status is never an error: only encoding and transport failures are.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var (
		trace     Trace
		resent    bool
		continued bool
	)

	for next := cmd; next != nil; {
		resp, err := c.exchange(next)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: next, Response: resp})

		sent := next
		next = nil
		switch sw1, sw2 := resp.Status.SW1(), resp.Status.SW2(); {
		case sw1 == 0x61 && !continued:
			continued = true
			cls := sent.Class
			cls.Chained = false
			next = NewGetResponseCommand(cls, lengthFromSW2(sw2))
		case sw1 == 0x6C && !resent:
			resent = true
			retry := *sent
			retry.Ne = lengthFromSW2(sw2)
			next = &retry
		}
	}
	return trace, nil
}

func (c *Client) exchange(cmd *CommandAPDU) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	resp, err := c.Card.Transmit(raw)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	if c.Logger != nil {
		c.Logger.Debug("apdu exchange",
			zap.Stringer("ins", cmd.Instruction.Raw),
			zap.String("command", fmt.Sprintf("%X", raw)),
			zap.String("response", fmt.Sprintf("%X", resp)),
		)
	}
	return ParseResponseAPDU(resp)
}
