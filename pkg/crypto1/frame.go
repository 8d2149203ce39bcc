package crypto1

import (
	"encoding/binary"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// Encrypt encrypts in into out with the running keystream. Parity bits are
// computed over the plaintext and then encrypted, as MIFARE Classic
// requires. Frames shorter than a byte are encrypted bit by bit without
// parity. in and out must be distinct buffers.
func (c *Crypto1) Encrypt(in, out *iso14443a.Buffer) {
	n := in.SizeBits()
	out.Reset()
	if n < 8 {
		var v byte
		for i := 0; i < n; i++ {
			v |= (c.Bit(0, false) ^ (in.Byte(0) >> uint(i) & 1)) << uint(i)
		}
		out.SetBits(v, n)
		return
	}
	for i := 0; i < n/8; i++ {
		plain := in.Byte(i)
		enc := c.Byte(0, false) ^ plain
		out.SetByteWithParity(i, enc, c.Filter()^iso14443a.OddParity8(plain))
	}
}

// Decrypt decrypts in into out. The parity bit stored with each plaintext
// byte is the transmitted parity with its keystream bit removed, so
// out.CheckParity reports whether the sender used the same keystream.
// in and out must be distinct buffers.
func (c *Crypto1) Decrypt(in, out *iso14443a.Buffer) {
	n := in.SizeBits()
	out.Reset()
	if n < 8 {
		var v byte
		for i := 0; i < n; i++ {
			v |= (c.Bit(0, false) ^ (in.Byte(0) >> uint(i) & 1)) << uint(i)
		}
		out.SetBits(v, n)
		return
	}
	for i := 0; i < n/8; i++ {
		enc := in.Byte(i)
		plain := c.Byte(0, false) ^ enc
		out.SetByteWithParity(i, plain, in.Parity(i)^c.Filter())
	}
}

// Advance consumes one 32-bit keystream word. Readers call it after the
// tag's answer to the handshake so that both sides stay aligned.
func (c *Crypto1) Advance() {
	c.Word(0, false)
}

// EncryptReaderNonce initialises the cipher from key, the card identifier
// and the tag nonce, and writes the encrypted {nr}{ar} frame with its
// encrypted parity into out.
//
// When nested is set nt is the nonce as received, still encrypted under
// the new key, and is decrypted while the state is loaded.
func (c *Crypto1) EncryptReaderNonce(key uint64, cuid uint32, nt, nr [4]byte, nested bool, out *iso14443a.Buffer) {
	ntNum := binary.BigEndian.Uint32(nt[:])
	c.Init(key)
	if nested {
		ntNum = c.Word(ntNum^cuid, true) ^ ntNum
	} else {
		c.Word(ntNum^cuid, false)
	}

	out.Reset()
	for i := 0; i < 4; i++ {
		enc := c.Byte(nr[i], false) ^ nr[i]
		out.SetByteWithParity(i, enc, c.Filter()^iso14443a.OddParity8(nr[i]))
	}
	ar := SuccessorBytes(ntNum, 32)
	for i := 0; i < 4; i++ {
		enc := c.Byte(0, false) ^ ar[i]
		out.SetByteWithParity(4+i, enc, c.Filter()^iso14443a.OddParity8(ar[i]))
	}
}

// EncryptTagNonce is the tag side of a nested authentication: the cipher
// is loaded with key and the identifier, and nt is sent encrypted with the
// keystream produced while loading it. The state is left ready for
// DecryptReaderNonce.
func (c *Crypto1) EncryptTagNonce(key uint64, cuid uint32, nt uint32, out *iso14443a.Buffer) {
	var ntb, uidb [4]byte
	binary.BigEndian.PutUint32(ntb[:], nt)
	binary.BigEndian.PutUint32(uidb[:], cuid)

	c.Init(key)
	out.Reset()
	for i := 0; i < 4; i++ {
		ks := c.Byte(ntb[i]^uidb[i], false)
		out.SetByteWithParity(i, ks^ntb[i], c.Filter()^iso14443a.OddParity8(ntb[i]))
	}
}

// LoadTagNonce is the tag side of a plain authentication: load key and
// feed the identifier xor the plaintext nonce.
func (c *Crypto1) LoadTagNonce(key uint64, cuid uint32, nt uint32) {
	c.Init(key)
	c.Word(nt^cuid, false)
}

// DecryptReaderNonce is the tag side of the reader's answer. It returns
// the reader nonce, the reader response and whether every parity bit
// matched. The frame must be exactly eight bytes.
func (c *Crypto1) DecryptReaderNonce(in *iso14443a.Buffer) (nr, ar [4]byte, ok bool) {
	if in.SizeBits() != 64 {
		return nr, ar, false
	}
	ok = true
	for i := 0; i < 4; i++ {
		enc := in.Byte(i)
		nr[i] = c.Byte(enc, true) ^ enc
		if in.Parity(i)^c.Filter() != iso14443a.OddParity8(nr[i]) {
			ok = false
		}
	}
	for i := 0; i < 4; i++ {
		enc := in.Byte(4 + i)
		ar[i] = c.Byte(0, false) ^ enc
		if in.Parity(4+i)^c.Filter() != iso14443a.OddParity8(ar[i]) {
			ok = false
		}
	}
	return nr, ar, ok
}
