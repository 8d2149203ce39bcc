package mfclassic

import "github.com/barnettlynn/mfctools/pkg/iso14443a"

func frameCmd(tx *iso14443a.Buffer) byte {
	if tx.SizeBytes() == 0 {
		return 0
	}
	return tx.Byte(0)
}

// SendStandardFrame sends tx in the clear with CRC_A and standard parity.
func (p *Poller) SendStandardFrame(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.link.SendStandardFrame(tx, rx, fwt); err != nil {
		return linkError(frameCmd(tx), err, "")
	}
	return nil
}

// SendFrame sends tx in the clear with standard parity and no CRC handling.
func (p *Poller) SendFrame(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.link.Txrx(tx, rx, fwt); err != nil {
		return linkError(frameCmd(tx), err, "")
	}
	return nil
}

// SendCustomParityFrame sends tx with the parity bits it carries.
func (p *Poller) SendCustomParityFrame(tx, rx *iso14443a.Buffer, fwt uint32) error {
	if err := p.link.TxrxCustomParity(tx, rx, fwt); err != nil {
		return linkError(frameCmd(tx), err, "")
	}
	return nil
}

// SendEncryptedFrame encrypts tx under the live keystream, sends it and
// decrypts the answer into rx. tx must already carry its CRC if the
// command needs one; rx is returned with its CRC. Requires an
// authenticated session.
func (p *Poller) SendEncryptedFrame(tx, rx *iso14443a.Buffer, fwt uint32) error {
	cmd := frameCmd(tx)
	if err := p.requireAuth(cmd); err != nil {
		return err
	}
	p.cipher.Encrypt(tx, p.txEncrypted)
	if err := p.link.TxrxCustomParity(p.txEncrypted, p.rxEncrypted, fwt); err != nil {
		return p.abort(linkError(cmd, err, ""))
	}
	p.cipher.Decrypt(p.rxEncrypted, rx)
	return nil
}

// exchange sends txPlain with CRC_A under the keystream and checks the link
// result against want. A response is decrypted into rxPlain. The returned
// error is the unclassified cause.
func (p *Poller) exchange(want Outcome) error {
	iso14443a.AppendCRC(p.txPlain)
	p.cipher.Encrypt(p.txPlain, p.txEncrypted)
	err := p.link.TxrxCustomParity(p.txEncrypted, p.rxEncrypted, FWT)
	if cause := want.Check(err); cause != nil {
		return cause
	}
	if want == OutcomeResponse {
		p.cipher.Decrypt(p.rxEncrypted, p.rxPlain)
	} else {
		p.rxPlain.Reset()
	}
	return nil
}

// expectACK checks that rxPlain holds a 4-bit ACK.
func (p *Poller) expectACK(cmd byte, step string) error {
	if bits := p.rxPlain.SizeBits(); bits != 4 {
		return protocolError(cmd, "%s: %d-bit answer, want 4-bit ACK", step, bits)
	}
	if v := p.rxPlain.Byte(0); v != ACK {
		return protocolError(cmd, "%s: NAK 0x%X", step, v)
	}
	return nil
}
