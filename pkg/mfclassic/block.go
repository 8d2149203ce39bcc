package mfclassic

import (
	"log/slog"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// ReadBlock reads one block. A CRC mismatch in the decrypted answer is a
// protocol error and the returned block is zero.
func (p *Poller) ReadBlock(block byte) (Block, error) {
	var out Block
	if err := p.requireAuth(CmdRead); err != nil {
		return out, err
	}

	p.txPlain.CopyBytes([]byte{CmdRead, block})
	if cause := p.exchange(OutcomeResponse); cause != nil {
		return out, p.abort(linkError(CmdRead, cause, ""))
	}
	if n := p.rxEncrypted.SizeBytes(); n != BlockSize+2 {
		return out, p.abort(protocolError(CmdRead, "answer is %d bytes, want %d", n, BlockSize+2))
	}
	if !iso14443a.CheckCRC(p.rxPlain) {
		return out, p.abort(&CommandError{Cmd: CmdRead, Kind: ErrProtocol, Cause: iso14443a.ErrWrongCRC, Detail: "decrypted block"})
	}
	iso14443a.TrimCRC(p.rxPlain)
	copy(out[:], p.rxPlain.Bytes())

	slog.Debug("mfclassic read", "block", block, "data", FormatBlock(out))
	return out, nil
}

// WriteBlock writes one block. Each of the two phases must be
// acknowledged; there is no recovery from a partial write.
func (p *Poller) WriteBlock(block byte, data Block) error {
	if err := p.requireAuth(CmdWrite); err != nil {
		return err
	}

	p.txPlain.CopyBytes([]byte{CmdWrite, block})
	if cause := p.exchange(OutcomeResponse); cause != nil {
		return p.abort(linkError(CmdWrite, cause, "command"))
	}
	if err := p.expectACK(CmdWrite, "command"); err != nil {
		return p.abort(err)
	}

	p.txPlain.CopyBytes(data[:])
	if cause := p.exchange(OutcomeResponse); cause != nil {
		return p.abort(linkError(CmdWrite, cause, "data"))
	}
	if err := p.expectACK(CmdWrite, "data"); err != nil {
		return p.abort(err)
	}

	slog.Debug("mfclassic write", "block", block, "data", FormatBlock(data))
	return nil
}
