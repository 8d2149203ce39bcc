package tagsim

import (
	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// ExchangeKind is the link primitive used for an exchange.
type ExchangeKind int

const (
	KindStandard ExchangeKind = iota
	KindRaw
	KindCustomParity
)

func (k ExchangeKind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindRaw:
		return "raw"
	case KindCustomParity:
		return "custom-parity"
	}
	return "unknown"
}

// Exchange is one recorded link exchange.
type Exchange struct {
	Kind ExchangeKind
	TX   *iso14443a.Buffer // frame as given by the caller, before CRC
	RX   *iso14443a.Buffer // answer as returned to the caller
	Err  error
}

// Poller is an iso14443a.Poller and iso14443a.Activator wired to a Tag.
type Poller struct {
	Tag *Tag

	// Exchanges records every exchange in order.
	Exchanges []Exchange
	// IdleCount counts SetIdle calls.
	IdleCount int
	// ActivateErr is the result of the activation done by NewPoller.
	ActivateErr error

	data iso14443a.Data
}

// NewPoller activates tag and returns a link to it. A tag outside the
// field leaves ActivateErr set; call Activate after Insert.
func NewPoller(tag *Tag) *Poller {
	p := &Poller{Tag: tag}
	p.ActivateErr = p.Activate()
	return p
}

// Activate selects the tag again.
func (p *Poller) Activate() error {
	if !p.Tag.Activate() {
		return iso14443a.ErrNotPresent
	}
	p.data = p.Tag.Data()
	return nil
}

func (p *Poller) transceive(frame *iso14443a.Buffer) (*iso14443a.Buffer, error) {
	if !p.Tag.Present() {
		return nil, iso14443a.ErrNotPresent
	}
	resp := p.Tag.Handle(frame)
	if resp == nil {
		return nil, iso14443a.ErrTimeout
	}
	return resp, nil
}

func (p *Poller) record(kind ExchangeKind, tx, rx *iso14443a.Buffer, err error) {
	p.Exchanges = append(p.Exchanges, Exchange{Kind: kind, TX: tx.Clone(), RX: rx.Clone(), Err: err})
}

// SendStandardFrame implements iso14443a.Poller.
func (p *Poller) SendStandardFrame(tx, rx *iso14443a.Buffer, fwt uint32) (err error) {
	defer func() { p.record(KindStandard, tx, rx, err) }()

	frame := iso14443a.NewBuffer(tx.SizeBytes() + 2)
	frame.CopyBytes(tx.Bytes())
	iso14443a.AppendCRC(frame)

	rx.Reset()
	resp, err := p.transceive(frame)
	if err != nil {
		return err
	}
	rx.Copy(resp)
	if !rx.CheckParity() {
		return iso14443a.ErrCommunication
	}
	if !iso14443a.CheckCRC(rx) {
		return iso14443a.ErrWrongCRC
	}
	iso14443a.TrimCRC(rx)
	return nil
}

// Txrx implements iso14443a.Poller.
func (p *Poller) Txrx(tx, rx *iso14443a.Buffer, fwt uint32) (err error) {
	defer func() { p.record(KindRaw, tx, rx, err) }()

	frame := iso14443a.NewBuffer(tx.SizeBytes())
	if tx.SizeBits()%8 == 0 {
		frame.CopyBytes(tx.Bytes())
	} else {
		frame.Copy(tx)
	}

	rx.Reset()
	resp, err := p.transceive(frame)
	if err != nil {
		return err
	}
	rx.Copy(resp)
	if !rx.CheckParity() {
		return iso14443a.ErrCommunication
	}
	return nil
}

// TxrxCustomParity implements iso14443a.Poller.
func (p *Poller) TxrxCustomParity(tx, rx *iso14443a.Buffer, fwt uint32) (err error) {
	defer func() { p.record(KindCustomParity, tx, rx, err) }()

	rx.Reset()
	resp, err := p.transceive(tx.Clone())
	if err != nil {
		return err
	}
	rx.Copy(resp)
	return nil
}

// Data implements iso14443a.Poller.
func (p *Poller) Data() *iso14443a.Data { return &p.data }

// SetIdle implements iso14443a.Poller.
func (p *Poller) SetIdle() { p.IdleCount++ }

// Reset clears the exchange log.
func (p *Poller) Reset() {
	p.Exchanges = nil
	p.IdleCount = 0
}

// Count returns how many recorded exchanges satisfy match.
func (p *Poller) Count(match func(Exchange) bool) int {
	n := 0
	for _, e := range p.Exchanges {
		if match(e) {
			n++
		}
	}
	return n
}

// IsPlainHalt matches a plain HLTA exchange.
func IsPlainHalt(e Exchange) bool {
	b := e.TX.Bytes()
	return e.Kind == KindStandard && len(b) == 2 && b[0] == 0x50 && b[1] == 0x00
}

// IsReaderNonce matches the encrypted {nr}{ar} frame of a handshake.
func IsReaderNonce(e Exchange) bool {
	return e.Kind == KindCustomParity && e.TX.SizeBits() == 64
}

var (
	_ iso14443a.Poller    = (*Poller)(nil)
	_ iso14443a.Activator = (*Poller)(nil)
)
