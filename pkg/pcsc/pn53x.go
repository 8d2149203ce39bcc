package pcsc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// PN53x commands.
const (
	cmdReadRegister        = 0x06
	cmdWriteRegister       = 0x08
	cmdInListPassiveTarget = 0x4A
	cmdInCommunicateThru   = 0x42
	cmdRFConfiguration     = 0x32
)

// RFConfiguration item 0x02 sets RFU, fATR_RES_Timeout and fRetryTimeout.
// fRetryTimeout bounds InCommunicateThru: code n waits 100µs << (n-1).
const (
	cfgTimings       = 0x02
	atrResTimeout    = 0x0B
	maxRetryTimeout  = 0x10
	carrierHz        = 13560000
	retryTimeoutUnit = 100 // µs
)

// CIU registers.
const (
	regTxMode     = 0x6302
	regRxMode     = 0x6303
	regManualRCV  = 0x630D
	regControl    = 0x633C
	regBitFraming = 0x633D

	crcEnable     = 0x80 // TxMode, RxMode
	parityDisable = 0x10 // ManualRCV
	lastBitsMask  = 0x07 // BitFraming TxLastBits, Control RxLastBits
)

// PN53x status codes returned by InCommunicateThru.
const (
	statusOK          = 0x00
	statusTimeout     = 0x01
	statusCRC         = 0x02
	statusParity      = 0x03
	statusBitCount    = 0x04
	statusFraming     = 0x05
	statusCollision   = 0x06
	statusRFTimeout   = 0x0A
	statusReleased    = 0x29
	statusDisappeared = 0x2B
)

var errCardRemoved = errors.New("card removed")

// statusError maps a PN53x status byte to a link error.
func statusError(status byte) error {
	switch status & 0x3F {
	case statusOK:
		return nil
	case statusTimeout:
		return iso14443a.ErrTimeout
	case statusCRC:
		return iso14443a.ErrWrongCRC
	case statusParity, statusBitCount, statusFraming, statusRFTimeout:
		return fmt.Errorf("%w: PN53x status 0x%02X", iso14443a.ErrCommunication, status)
	case statusCollision:
		return iso14443a.ErrColResFailed
	case statusReleased, statusDisappeared:
		return iso14443a.ErrNotPresent
	default:
		return fmt.Errorf("%w: PN53x status 0x%02X", iso14443a.ErrCommunication, status)
	}
}

// chip sends PN53x commands wrapped in the ACR122U direct transmit
// pseudo-APDU: FF 00 00 00 Lc D4 <cmd> <params>.
type chip struct {
	card Card
}

func (c *chip) command(cmd byte, params []byte) ([]byte, error) {
	if len(params)+2 > 255 {
		return nil, fmt.Errorf("PN53x command 0x%02X too long", cmd)
	}
	apdu := make([]byte, 0, 7+len(params))
	apdu = append(apdu, 0xFF, 0x00, 0x00, 0x00, byte(len(params)+2), 0xD4, cmd)
	apdu = append(apdu, params...)

	resp, err := c.card.Transmit(apdu)
	slog.Debug("pn53x", "cmd", fmt.Sprintf("%02X", cmd), "apdu", strings.ToUpper(hex.EncodeToString(apdu)), "resp", strings.ToUpper(hex.EncodeToString(resp)))
	if err != nil {
		if errors.Is(err, errCardRemoved) {
			return nil, fmt.Errorf("%w: %v", iso14443a.ErrNotPresent, err)
		}
		return nil, fmt.Errorf("%w: %v", iso14443a.ErrCommunication, err)
	}
	if len(resp) < 4 {
		return nil, fmt.Errorf("%w: short response: %d bytes", iso14443a.ErrCommunication, len(resp))
	}
	sw := uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
	if sw != 0x9000 {
		return nil, fmt.Errorf("%w: reader SW=0x%04X", iso14443a.ErrCommunication, sw)
	}
	if resp[0] != 0xD5 || resp[1] != cmd+1 {
		return nil, fmt.Errorf("%w: unexpected PN53x response % X", iso14443a.ErrCommunication, resp[:2])
	}
	return resp[2 : len(resp)-2], nil
}

func (c *chip) readRegister(addr uint16) (byte, error) {
	out, err := c.command(cmdReadRegister, []byte{byte(addr >> 8), byte(addr)})
	if err != nil {
		return 0, err
	}
	if len(out) < 1 {
		return 0, fmt.Errorf("%w: empty register read", iso14443a.ErrCommunication)
	}
	return out[len(out)-1], nil
}

func (c *chip) writeRegister(addr uint16, value byte) error {
	_, err := c.command(cmdWriteRegister, []byte{byte(addr >> 8), byte(addr), value})
	return err
}

// updateRegister rewrites the bits of mask in addr with value.
func (c *chip) updateRegister(addr uint16, mask, value byte) error {
	cur, err := c.readRegister(addr)
	if err != nil {
		return err
	}
	next := cur&^mask | value&mask
	if next == cur {
		return nil
	}
	return c.writeRegister(addr, next)
}

// retryTimeout returns the smallest fRetryTimeout code that covers fwt
// carrier cycles.
func retryTimeout(fwt uint32) byte {
	us := (uint64(fwt)*1000000 + carrierHz - 1) / carrierHz
	code := byte(1)
	for limit := uint64(retryTimeoutUnit); limit < us && code < maxRetryTimeout; limit <<= 1 {
		code++
	}
	return code
}

func (c *chip) setRetryTimeout(code byte) error {
	_, err := c.command(cmdRFConfiguration, []byte{cfgTimings, 0x00, atrResTimeout, code})
	return err
}

// communicateThru sends raw bytes and returns the answer bytes.
func (c *chip) communicateThru(data []byte) ([]byte, error) {
	out, err := c.command(cmdInCommunicateThru, data)
	if err != nil {
		return nil, err
	}
	if len(out) < 1 {
		return nil, fmt.Errorf("%w: missing status", iso14443a.ErrCommunication)
	}
	if err := statusError(out[0]); err != nil {
		return nil, err
	}
	return out[1:], nil
}

// listPassiveTarget selects one ISO14443A target at 106 kbps.
func (c *chip) listPassiveTarget() (iso14443a.Data, error) {
	var d iso14443a.Data
	out, err := c.command(cmdInListPassiveTarget, []byte{0x01, 0x00})
	if err != nil {
		return d, err
	}
	// NbTg Tg SENS_RES(2) SEL_RES NFCIDLength NFCID...
	if len(out) < 1 || out[0] == 0 {
		return d, iso14443a.ErrNotPresent
	}
	if len(out) < 6 || len(out) < 6+int(out[5]) {
		return d, fmt.Errorf("%w: short target data % X", iso14443a.ErrCommunication, out)
	}
	d.ATQA = [2]byte{out[2], out[3]}
	d.SAK = out[4]
	d.UID = append([]byte(nil), out[6:6+int(out[5])]...)
	return d, nil
}
