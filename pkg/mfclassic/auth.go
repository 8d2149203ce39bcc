package mfclassic

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ReaderNonceEnv overrides the reader nonce with 8 hex characters. Benches
// use it to replay captured handshakes.
const ReaderNonceEnv = "MFC_READER_NONCE"

var hltaFrame = []byte{CmdHalt, 0x00}

// handshakeOutcome classifies the tag's answer to {nr}{ar}.
type handshakeOutcome int

const (
	handshakeComplete handshakeOutcome = iota
	// handshakeAnomalous: the tag answered, but not with a 4-byte {at}.
	handshakeAnomalous
)

// Auth runs a plain three-pass authentication for block with key.
//
// On success the session is Passed and the returned context holds the
// handshake as seen on the wire. On failure the card is halted and the
// link reset so the caller can reselect it and retry.
func (p *Poller) Auth(block byte, key Key, keyType KeyType, backdoor bool) (*AuthContext, error) {
	return p.auth(block, key, keyType, false, backdoor, false)
}

// AuthNested authenticates for block while a session is live. With
// earlyReturn set it stops once the encrypted tag nonce arrives; the
// context then holds only Nt and the session stays Idle.
func (p *Poller) AuthNested(block byte, key Key, keyType KeyType, backdoor, earlyReturn bool) (*AuthContext, error) {
	return p.auth(block, key, keyType, true, backdoor, earlyReturn)
}

func (p *Poller) auth(block byte, key Key, keyType KeyType, nested, backdoor, earlyReturn bool) (*AuthContext, error) {
	if d := p.link.Data(); d != nil {
		p.data = d.Copy()
	}

	ctx := &AuthContext{Block: block, KeyType: keyType}
	nt, err := p.getNT(block, keyType, nested, backdoor)
	if err != nil {
		return nil, p.authFailed(err)
	}
	ctx.Nt = nt
	if earlyReturn {
		return ctx, nil
	}

	cmd := authOpcode(keyType, backdoor)
	nr, err := p.readerNonce()
	if err != nil {
		return nil, p.authFailed(&CommandError{Cmd: cmd, Kind: ErrAuth, Cause: err, Detail: "reader nonce"})
	}

	var cuid uint32
	if p.data != nil {
		cuid = p.data.CUID()
	}
	p.cipher.EncryptReaderNonce(key.Uint64(), cuid, nt, nr, nested, p.txEncrypted)
	err = p.link.TxrxCustomParity(p.txEncrypted, p.rxEncrypted, FWT)
	if cause := OutcomeResponse.Check(err); cause != nil {
		return nil, p.authFailed(linkError(cmd, cause, "reader response"))
	}

	outcome := handshakeComplete
	if p.rxEncrypted.SizeBytes() != len(ctx.At) {
		outcome = handshakeAnomalous
	}
	if outcome == handshakeAnomalous {
		if !p.acceptAnomalous {
			return nil, p.authFailed(&CommandError{
				Cmd:    cmd,
				Kind:   ErrAuth,
				Detail: fmt.Sprintf("tag response is %d bits, want 32", p.rxEncrypted.SizeBits()),
			})
		}
		slog.Warn("mfclassic accepting anomalous tag response", "block", block, "bits", p.rxEncrypted.SizeBits())
		ctx.Anomalous = true
	}

	p.cipher.Advance()
	p.state = AuthStatePassed

	ctx.Nr = nr
	copy(ctx.Ar[:], p.txEncrypted.Bytes()[4:8])
	copy(ctx.At[:], p.rxEncrypted.Bytes())

	slog.Debug("mfclassic authenticated",
		"block", block,
		"key", keyType.String(),
		"nested", nested,
		"nt", ctx.Nt.String(),
		"nr", ctx.Nr.String(),
		"ar", ctx.Ar.String(),
		"at", ctx.At.String(),
	)
	return ctx, nil
}

// authFailed is the failure transition of the handshake: send one plain
// HLTA, reset the link and drop the session.
func (p *Poller) authFailed(err error) error {
	p.txPlain.CopyBytes(hltaFrame)
	if herr := p.link.SendStandardFrame(p.txPlain, p.rxPlain, FWT); herr != nil && !IsTimeout(MapError(herr)) {
		slog.Debug("mfclassic halt after failed auth", "err", herr)
	}
	p.link.SetIdle()
	p.state = AuthStateIdle
	return err
}

func (p *Poller) readerNonce() (Nonce, error) {
	var nr Nonce
	if s := strings.TrimSpace(os.Getenv(ReaderNonceEnv)); s != "" {
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != len(nr) {
			return nr, fmt.Errorf("%s must be 8 hex chars", ReaderNonceEnv)
		}
		copy(nr[:], b)
		return nr, nil
	}
	if _, err := io.ReadFull(p.rand, nr[:]); err != nil {
		return nr, err
	}
	return nr, nil
}
