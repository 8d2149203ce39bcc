package mfclassic

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// ValueCmd loads the value of block into the tag's transfer register and
// applies cmd with operand. The operand is sent as a 4-byte little-endian
// two's complement integer. The tag confirms the operand frame by staying
// silent, so any answer is a protocol error. Nothing is stored until
// ValueTransfer.
func (p *Poller) ValueCmd(block byte, cmd ValueCommand, operand int32) error {
	op, ok := cmd.opcode()
	if !ok {
		return &CommandError{Kind: ErrProtocol, Detail: fmt.Sprintf("unknown value command %d", int(cmd))}
	}
	if err := p.requireAuth(op); err != nil {
		return err
	}

	p.txPlain.CopyBytes([]byte{op, block})
	if cause := p.exchange(OutcomeResponse); cause != nil {
		return p.abort(linkError(op, cause, "command"))
	}
	if err := p.expectACK(op, "command"); err != nil {
		return p.abort(err)
	}

	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(operand))
	p.txPlain.CopyBytes(raw[:])
	if cause := p.exchange(OutcomeSilence); cause != nil {
		return p.abort(&CommandError{Cmd: op, Kind: ErrProtocol, Cause: cause, Detail: "operand must not be answered"})
	}

	slog.Debug("mfclassic value", "block", block, "cmd", cmd.String(), "operand", operand)
	return nil
}

// ValueTransfer writes the transfer register to block.
func (p *Poller) ValueTransfer(block byte) error {
	if err := p.requireAuth(CmdTransfer); err != nil {
		return err
	}

	p.txPlain.CopyBytes([]byte{CmdTransfer, block})
	if cause := p.exchange(OutcomeResponse); cause != nil {
		return p.abort(linkError(CmdTransfer, cause, ""))
	}
	if err := p.expectACK(CmdTransfer, "transfer"); err != nil {
		return p.abort(err)
	}
	return nil
}
