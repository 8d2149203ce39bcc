package mfclassic

import (
	"crypto/rand"
	"io"

	"github.com/barnettlynn/mfctools/pkg/crypto1"
	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// Cipher is the running CRYPTO1 keystream of a session.
type Cipher interface {
	// EncryptReaderNonce loads the cipher from key, cuid and the tag nonce
	// and writes the encrypted {nr}{ar} frame with its parity into out.
	// When nested is set nt is still encrypted under key.
	EncryptReaderNonce(key uint64, cuid uint32, nt, nr [4]byte, nested bool, out *iso14443a.Buffer)
	Encrypt(in, out *iso14443a.Buffer)
	Decrypt(in, out *iso14443a.Buffer)
	Advance()
}

// Config tunes a Poller. The zero value is ready to use.
type Config struct {
	// Cipher defaults to a fresh CRYPTO1 state.
	Cipher Cipher
	// Rand is the reader nonce source. Defaults to crypto/rand.
	Rand io.Reader
	// AcceptAnomalousHandshake completes an authentication whose tag
	// response has the wrong length instead of failing it.
	AcceptAnomalousHandshake bool
}

// Poller is a MIFARE Classic session on an activated card.
type Poller struct {
	link   iso14443a.Poller
	cipher Cipher
	rand   io.Reader

	acceptAnomalous bool

	data  *iso14443a.Data
	state AuthState

	txPlain     *iso14443a.Buffer
	txEncrypted *iso14443a.Buffer
	rxPlain     *iso14443a.Buffer
	rxEncrypted *iso14443a.Buffer
}

const bufferSize = 32

// NewPoller starts a session on link.
func NewPoller(link iso14443a.Poller, cfg Config) *Poller {
	p := &Poller{
		link:            link,
		cipher:          cfg.Cipher,
		rand:            cfg.Rand,
		acceptAnomalous: cfg.AcceptAnomalousHandshake,
		txPlain:         iso14443a.NewBuffer(bufferSize),
		txEncrypted:     iso14443a.NewBuffer(bufferSize),
		rxPlain:         iso14443a.NewBuffer(bufferSize),
		rxEncrypted:     iso14443a.NewBuffer(bufferSize),
	}
	if p.cipher == nil {
		p.cipher = crypto1.New()
	}
	if p.rand == nil {
		p.rand = rand.Reader
	}
	if d := link.Data(); d != nil {
		p.data = d.Copy()
	}
	return p
}

// AuthState returns the current authentication state.
func (p *Poller) AuthState() AuthState { return p.state }

// Data returns the card identity captured by the last authentication.
func (p *Poller) Data() *iso14443a.Data { return p.data }

// Link returns the underlying link poller.
func (p *Poller) Link() iso14443a.Poller { return p.link }

func (p *Poller) requireAuth(cmd byte) error {
	if p.state != AuthStatePassed {
		return &CommandError{Cmd: cmd, Kind: ErrAuth, Cause: ErrNotAuthenticated}
	}
	return nil
}

// abort drops the session after a failed encrypted command; the keystream
// can no longer be trusted.
func (p *Poller) abort(err error) error {
	p.state = AuthStateIdle
	return err
}
