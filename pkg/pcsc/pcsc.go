// Package pcsc drives MIFARE Classic cards through PC/SC readers built on
// the NXP PN53x (ACR122U and friends). Frames go to the chip with
// InCommunicateThru pseudo-APDUs; CRC and, when needed, parity are handled
// in software so that CRYPTO1 traffic passes untouched.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebfe/scard"
)

// Card is the transmit side of a PC/SC connection. Tests substitute a fake PN53x.
type Card interface {
	Transmit(apdu []byte) ([]byte, error)
}

// presencePoll bounds each GetStatusChange call so that Connect notices a
// cancelled context.
const presencePoll = 500 * time.Millisecond

// Connection is an open PC/SC connection to one reader.
type Connection struct {
	ctx    *scard.Context
	card   *scard.Card
	Reader string
	Index  int
}

// ListReaders returns the names of the connected readers.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}
	defer ctx.Release()
	return ctx.ListReaders()
}

// Connect opens the reader at index (0-based), waiting until a card is in
// the field or ctx is done.
func Connect(ctx context.Context, index int) (*Connection, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}
	conn, err := connect(ctx, sc, index)
	if err != nil {
		_ = sc.Release()
		return nil, err
	}
	return conn, nil
}

func connect(ctx context.Context, sc *scard.Context, index int) (*Connection, error) {
	readers, err := sc.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	if len(readers) == 0 {
		return nil, errors.New("no readers found")
	}
	if index < 0 || index >= len(readers) {
		return nil, fmt.Errorf("reader index %d out of range (0..%d)", index, len(readers)-1)
	}
	name := readers[index]

	if err := waitForCard(ctx, sc, name); err != nil {
		return nil, err
	}
	card, err := sc.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}
	return &Connection{ctx: sc, card: card, Reader: name, Index: index}, nil
}

func waitForCard(ctx context.Context, sc *scard.Context, name string) error {
	states := []scard.ReaderState{{Reader: name, CurrentState: scard.StateUnaware}}
	logged := false
	for {
		err := sc.GetStatusChange(states, presencePoll)
		switch {
		case err == nil:
			if states[0].EventState&scard.StatePresent != 0 {
				return nil
			}
			states[0].CurrentState = states[0].EventState
		case errors.Is(err, scard.ErrTimeout):
		default:
			return fmt.Errorf("reader %s status: %w", name, err)
		}
		if !logged {
			slog.Info("waiting for card", "reader", name)
			logged = true
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Close disconnects the card and releases the PC/SC context.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.card != nil {
		errs = append(errs, c.card.Disconnect(scard.LeaveCard))
	}
	if c.ctx != nil {
		errs = append(errs, c.ctx.Release())
	}
	return errors.Join(errs...)
}

// Transmit sends a pseudo-APDU to the reader. A card leaving the field
// surfaces as errCardRemoved.
func (c *Connection) Transmit(apdu []byte) ([]byte, error) {
	if c == nil || c.card == nil {
		return nil, errors.New("connection not established")
	}
	resp, err := c.card.Transmit(apdu)
	if errors.Is(err, scard.ErrRemovedCard) || errors.Is(err, scard.ErrNoSmartcard) {
		return nil, fmt.Errorf("%w: %v", errCardRemoved, err)
	}
	return resp, err
}
