// Package iso14443a defines the ISO/IEC 14443-3 type A link layer that the
// MIFARE Classic poller rides on: frame buffers with explicit parity, the
// CRC_A helpers, the card identity gathered at activation and the Poller
// contract that reader backends implement.
//
// Backends live in sibling packages (pcsc, libnfc, remote, tagsim). They
// own bit-level transmission, frame wait time enforcement and collision
// resolution; callers only see the outcome of each exchange.
package iso14443a

import (
	"encoding/binary"
	"errors"
)

// Link-layer outcomes. Backends return these (possibly wrapped) so callers
// can classify them with errors.Is.
var (
	ErrNotPresent    = errors.New("iso14443-3a: card not present")
	ErrColResFailed  = errors.New("iso14443-3a: collision resolution failed")
	ErrCommunication = errors.New("iso14443-3a: communication error")
	ErrWrongCRC      = errors.New("iso14443-3a: wrong CRC")
	ErrTimeout       = errors.New("iso14443-3a: timeout")
)

// Poller is one activated card session on a reader. Every call blocks
// until the card answers or fwt (in carrier cycles) elapses. Backends round
// fwt up to the granularity of their reader's timer.
type Poller interface {
	// SendStandardFrame transmits tx followed by its CRC_A with standard
	// parity, then checks and strips the CRC of the response. tx is not
	// modified. When the check fails the error is ErrWrongCRC and rx
	// holds the frame exactly as received.
	SendStandardFrame(tx, rx *Buffer, fwt uint32) error

	// Txrx transmits tx with standard parity and no CRC handling.
	Txrx(tx, rx *Buffer, fwt uint32) error

	// TxrxCustomParity transmits tx using the parity bits it carries and
	// stores the received parity bits in rx. No CRC handling.
	TxrxCustomParity(tx, rx *Buffer, fwt uint32) error

	// Data returns the identity captured when the card was activated.
	Data() *Data

	// SetIdle forces the poller's own state machine back to idle without
	// any RF traffic.
	SetIdle()
}

// Activator is implemented by backends that can (re)run anticollision and
// select the card in the field.
type Activator interface {
	Activate() error
}

// Data is the transport identity of an activated card.
type Data struct {
	UID  []byte  // 4, 7 or 10 bytes
	ATQA [2]byte // as received, LSB first
	SAK  byte
}

// Copy returns a deep copy of d.
func (d *Data) Copy() *Data {
	if d == nil {
		return nil
	}
	c := *d
	c.UID = append([]byte(nil), d.UID...)
	return &c
}

// CUID returns the 32-bit identifier MIFARE Classic feeds into its cipher:
// the last four bytes of a 7-byte UID, the first four otherwise.
func (d *Data) CUID() uint32 {
	uid := d.UID
	if len(uid) == 7 {
		uid = uid[3:]
	}
	if len(uid) < 4 {
		var padded [4]byte
		copy(padded[4-len(uid):], uid)
		return binary.BigEndian.Uint32(padded[:])
	}
	return binary.BigEndian.Uint32(uid[:4])
}
