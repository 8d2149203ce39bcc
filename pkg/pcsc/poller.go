package pcsc

import (
	"fmt"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// Poller is an iso14443a.Poller on a PN53x reader. CRC generation and
// checking are disabled in the chip; parity generation is switched off
// only for custom-parity exchanges.
type Poller struct {
	chip chip
	data iso14443a.Data

	parityOff bool
	txLast    byte
	timeout   byte // fRetryTimeout code last programmed, 0 before the first exchange
	selected  bool
}

// NewPoller selects the card in the field and prepares the chip for raw
// frames.
func NewPoller(card Card) (*Poller, error) {
	p := &Poller{chip: chip{card: card}}
	if err := p.Activate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Activate selects the card again and reapplies the framing setup, which
// InListPassiveTarget resets.
func (p *Poller) Activate() error {
	d, err := p.chip.listPassiveTarget()
	if err != nil {
		return err
	}
	p.data = d
	p.selected = true
	if err := p.chip.updateRegister(regTxMode, crcEnable, 0); err != nil {
		return fmt.Errorf("disable TX CRC: %w", err)
	}
	if err := p.chip.updateRegister(regRxMode, crcEnable, 0); err != nil {
		return fmt.Errorf("disable RX CRC: %w", err)
	}
	if err := p.chip.updateRegister(regManualRCV, parityDisable, 0); err != nil {
		return fmt.Errorf("enable parity: %w", err)
	}
	if err := p.chip.updateRegister(regBitFraming, lastBitsMask, 0); err != nil {
		return fmt.Errorf("reset bit framing: %w", err)
	}
	p.parityOff = false
	p.txLast = 0
	return nil
}

func (p *Poller) setParity(off bool) error {
	if p.parityOff == off {
		return nil
	}
	var v byte
	if off {
		v = parityDisable
	}
	if err := p.chip.updateRegister(regManualRCV, parityDisable, v); err != nil {
		return err
	}
	p.parityOff = off
	return nil
}

func (p *Poller) setTxLastBits(bits int) error {
	last := byte(bits%8) & lastBitsMask
	if p.txLast == last {
		return nil
	}
	if err := p.chip.updateRegister(regBitFraming, lastBitsMask, last); err != nil {
		return err
	}
	p.txLast = last
	return nil
}

func (p *Poller) setFrameWaitTime(fwt uint32) error {
	code := retryTimeout(fwt)
	if p.timeout == code {
		return nil
	}
	if err := p.chip.setRetryTimeout(code); err != nil {
		return err
	}
	p.timeout = code
	return nil
}

// transceiveBits sends bits of data and returns the answer bytes with its
// size in bits.
func (p *Poller) transceiveBits(data []byte, bits int, fwt uint32) ([]byte, int, error) {
	if err := p.setFrameWaitTime(fwt); err != nil {
		return nil, 0, err
	}
	if err := p.setTxLastBits(bits); err != nil {
		return nil, 0, err
	}
	resp, err := p.chip.communicateThru(data)
	if err != nil {
		return nil, 0, err
	}
	ctrl, err := p.chip.readRegister(regControl)
	if err != nil {
		return nil, 0, err
	}
	return resp, frameBits(len(resp), ctrl), nil
}

func (p *Poller) txrx(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.setParity(false); err != nil {
		return err
	}
	resp, bits, err := p.transceiveBits(tx.Bytes(), tx.SizeBits(), fwt)
	rx.Reset()
	if err != nil {
		return err
	}
	if bits%8 != 0 {
		rx.SetBits(resp[0], bits)
		return nil
	}
	rx.CopyBytes(resp)
	return nil
}

// SendStandardFrame implements iso14443a.Poller.
func (p *Poller) SendStandardFrame(tx, rx *iso14443a.Buffer, fwt uint32) error {
	frame := iso14443a.NewBuffer(tx.SizeBytes() + 2)
	frame.CopyBytes(tx.Bytes())
	iso14443a.AppendCRC(frame)
	if err := p.txrx(frame, rx, fwt); err != nil {
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
	return p.txrx(tx, rx, fwt)
}

// TxrxCustomParity implements iso14443a.Poller.
func (p *Poller) TxrxCustomParity(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.setParity(true); err != nil {
		return err
	}
	frame, bits := wrapFrame(tx)
	resp, rxBits, err := p.transceiveBits(frame, bits, fwt)
	if err != nil {
		rx.Reset()
		return err
	}
	unwrapFrame(resp, rxBits, rx)
	return nil
}

// Data implements iso14443a.Poller.
func (p *Poller) Data() *iso14443a.Data { return &p.data }

// SetIdle implements iso14443a.Poller.
func (p *Poller) SetIdle() { p.selected = false }

// Selected reports whether the card is selected from the poller's point
// of view.
func (p *Poller) Selected() bool { return p.selected }

var (
	_ iso14443a.Poller    = (*Poller)(nil)
	_ iso14443a.Activator = (*Poller)(nil)
)
