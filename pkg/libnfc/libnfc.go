//go:build libnfc

// Package libnfc drives MIFARE Classic cards through any reader libnfc
// supports. The chip's CRC and framing help are turned off; CRC is
// computed here and parity is left to the chip except for custom-parity
// exchanges.
package libnfc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/clausecker/nfc/v2"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

const (
	maxFrame = 64

	// cyclesPerMS is the carrier frequency in cycles per millisecond.
	cyclesPerMS = 13560
)

var modulation = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}

// Poller is an iso14443a.Poller on a libnfc device.
type Poller struct {
	dev  nfc.Device
	data iso14443a.Data

	parity    bool // chip handles parity
	timeoutMS int  // TimeoutCom last set, 0 before the first exchange

	rx    []byte
	rxPar []byte
}

// Open opens the device named by connstring ("" picks the first one) and
// selects the card in the field.
func Open(connstring string) (*Poller, error) {
	dev, err := nfc.Open(connstring)
	if err != nil {
		return nil, fmt.Errorf("open libnfc device %q: %w", connstring, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("initiator init: %w", err)
	}
	p := &Poller{
		dev:   dev,
		rx:    make([]byte, maxFrame),
		rxPar: make([]byte, maxFrame),
	}
	if err := p.Activate(); err != nil {
		dev.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the device.
func (p *Poller) Close() error {
	return p.dev.Close()
}

// Activate selects the card again and reapplies the raw framing setup.
func (p *Poller) Activate() error {
	if err := p.dev.SetPropertyBool(nfc.InfiniteSelect, false); err != nil {
		return fmt.Errorf("%w: infinite select: %v", iso14443a.ErrCommunication, err)
	}
	if err := p.dev.SetPropertyBool(nfc.HandleCRC, true); err != nil {
		return fmt.Errorf("%w: enable CRC: %v", iso14443a.ErrCommunication, err)
	}
	target, err := p.dev.InitiatorSelectPassiveTarget(modulation, nil)
	if err != nil {
		return mapError(err)
	}
	card, ok := target.(*nfc.ISO14443aTarget)
	if !ok {
		return fmt.Errorf("%w: unexpected target %T", iso14443a.ErrCommunication, target)
	}
	p.data = iso14443a.Data{
		UID:  append([]byte(nil), card.UID[:card.UIDLen]...),
		ATQA: card.Atqa,
		SAK:  card.Sak,
	}
	slog.Debug("libnfc target selected", "uid", fmt.Sprintf("%X", p.data.UID), "sak", fmt.Sprintf("%02X", p.data.SAK))

	if err := p.dev.SetPropertyBool(nfc.HandleCRC, false); err != nil {
		return fmt.Errorf("%w: disable CRC: %v", iso14443a.ErrCommunication, err)
	}
	if err := p.dev.SetPropertyBool(nfc.EasyFraming, false); err != nil {
		return fmt.Errorf("%w: disable easy framing: %v", iso14443a.ErrCommunication, err)
	}
	if err := p.dev.SetPropertyBool(nfc.HANDLE_PARITY, true); err != nil {
		return fmt.Errorf("%w: enable parity: %v", iso14443a.ErrCommunication, err)
	}
	p.parity = true
	return nil
}

func (p *Poller) setParity(chip bool) error {
	if p.parity == chip {
		return nil
	}
	if err := p.dev.SetPropertyBool(nfc.HANDLE_PARITY, chip); err != nil {
		return fmt.Errorf("%w: parity: %v", iso14443a.ErrCommunication, err)
	}
	p.parity = chip
	return nil
}

// comTimeout converts a frame wait time in carrier cycles to the
// millisecond TimeoutCom libnfc applies to each exchange, rounding up.
func comTimeout(fwt uint32) int {
	ms := int((uint64(fwt) + cyclesPerMS - 1) / cyclesPerMS)
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (p *Poller) setFrameWaitTime(fwt uint32) error {
	ms := comTimeout(fwt)
	if p.timeoutMS == ms {
		return nil
	}
	if err := p.dev.SetPropertyInt(nfc.TimeoutCom, ms); err != nil {
		return fmt.Errorf("%w: timeout: %v", iso14443a.ErrCommunication, err)
	}
	p.timeoutMS = ms
	return nil
}

// transceive sends tx as it is, parity included, and fills rx.
func (p *Poller) transceive(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.setFrameWaitTime(fwt); err != nil {
		return err
	}
	data := tx.Bytes()
	par := tx.ParityBits()
	rx.Reset()
	if len(data) == 0 {
		return fmt.Errorf("%w: empty frame", iso14443a.ErrCommunication)
	}
	n, err := p.dev.InitiatorTransceiveBits(data, par, uint(tx.SizeBits()), p.rx, p.rxPar)
	if err != nil {
		return mapError(err)
	}
	if n <= 0 {
		return iso14443a.ErrTimeout
	}
	if n < 8 {
		rx.SetBits(p.rx[0], n)
		return nil
	}
	nb := (n + 7) / 8
	rx.CopyWithParity(p.rx[:nb], p.rxPar[:nb])
	rx.SetSizeBits(n)
	return nil
}

// SendStandardFrame implements iso14443a.Poller.
func (p *Poller) SendStandardFrame(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.setParity(true); err != nil {
		return err
	}
	frame := iso14443a.NewBuffer(tx.SizeBytes() + 2)
	frame.CopyBytes(tx.Bytes())
	iso14443a.AppendCRC(frame)
	if err := p.transceive(frame, rx, fwt); err != nil {
		return err
	}
	if !iso14443a.CheckCRC(rx) {
		return iso14443a.ErrWrongCRC
	}
	iso14443a.TrimCRC(rx)
	return nil
}

// Txrx implements iso14443a.Poller.
func (p *Poller) Txrx(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.setParity(true); err != nil {
		return err
	}
	return p.transceive(tx, rx, fwt)
}

// TxrxCustomParity implements iso14443a.Poller.
func (p *Poller) TxrxCustomParity(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.setParity(false); err != nil {
		return err
	}
	return p.transceive(tx, rx, fwt)
}

// Data implements iso14443a.Poller.
func (p *Poller) Data() *iso14443a.Data { return &p.data }

// SetIdle implements iso14443a.Poller.
func (p *Poller) SetIdle() {
	if err := p.dev.InitiatorDeselectTarget(); err != nil {
		slog.Debug("libnfc deselect", "err", err)
	}
}

// mapError converts libnfc error codes to link errors.
func mapError(err error) error {
	var code nfc.Error
	if !errors.As(err, &code) {
		return fmt.Errorf("%w: %v", iso14443a.ErrCommunication, err)
	}
	switch int(code) {
	case nfc.ETIMEOUT:
		return iso14443a.ErrTimeout
	case nfc.ETGRELEASED:
		return iso14443a.ErrNotPresent
	case nfc.ERFTRANS:
		return fmt.Errorf("%w: %v", iso14443a.ErrCommunication, code)
	default:
		return fmt.Errorf("%w: libnfc: %v", iso14443a.ErrCommunication, code)
	}
}

var (
	_ iso14443a.Poller    = (*Poller)(nil)
	_ iso14443a.Activator = (*Poller)(nil)
)
