package mfclassic

import (
	"log/slog"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

func authOpcode(keyType KeyType, backdoor bool) byte {
	switch {
	case backdoor && keyType == KeyTypeB:
		return CmdBackdoorAuthB
	case backdoor:
		return CmdBackdoorAuthA
	case keyType == KeyTypeB:
		return CmdAuthB
	default:
		return CmdAuthA
	}
}

// GetNT requests a fresh tag nonce for block. The nonce carries no CRC, so
// the exchange must fail the link's CRC check; a CRC-valid answer is a
// protocol error.
func (p *Poller) GetNT(block byte, keyType KeyType, backdoor bool) (Nonce, error) {
	return p.getNT(block, keyType, false, backdoor)
}

// GetNTNested requests a tag nonce inside an authenticated session. The
// command is encrypted under the live keystream and the returned nonce is
// still encrypted under the key of the target sector.
func (p *Poller) GetNTNested(block byte, keyType KeyType, backdoor bool) (Nonce, error) {
	return p.getNT(block, keyType, true, backdoor)
}

func (p *Poller) getNT(block byte, keyType KeyType, nested, backdoor bool) (Nonce, error) {
	var nt Nonce
	cmd := authOpcode(keyType, backdoor)
	p.txPlain.CopyBytes([]byte{cmd, block})

	if nested {
		iso14443a.AppendCRC(p.txPlain)
		p.cipher.Encrypt(p.txPlain, p.txEncrypted)
		err := p.link.TxrxCustomParity(p.txEncrypted, p.rxEncrypted, FWT)
		if cause := OutcomeResponse.Check(err); cause != nil {
			return nt, linkError(cmd, cause, "nested nonce")
		}
		if n := p.rxEncrypted.SizeBytes(); n != len(nt) {
			return nt, protocolError(cmd, "nested nonce is %d bytes, want 4", n)
		}
		copy(nt[:], p.rxEncrypted.Bytes())
	} else {
		err := p.link.SendStandardFrame(p.txPlain, p.rxPlain, FWT)
		if cause := OutcomeChecksumFailure.Check(err); cause != nil {
			return nt, linkError(cmd, cause, "nonce")
		}
		if n := p.rxPlain.SizeBytes(); n != len(nt) {
			return nt, protocolError(cmd, "nonce is %d bytes, want 4", n)
		}
		copy(nt[:], p.rxPlain.Bytes())
	}

	// The card has left any previous session.
	p.state = AuthStateIdle

	slog.Debug("mfclassic nonce", "block", block, "key", keyType.String(), "nested", nested, "nt", nt.String())
	return nt, nil
}
