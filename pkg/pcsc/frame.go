package pcsc

import "github.com/barnettlynn/mfctools/pkg/iso14443a"

// wrapFrame interleaves data and parity for a PN53x running with parity
// generation disabled: every byte is sent as its 8 data bits followed by
// its parity bit, least significant bit first. Frames shorter than 9 bits
// are sent as they are.
func wrapFrame(b *iso14443a.Buffer) ([]byte, int) {
	bits := b.SizeBits()
	if bits < 9 {
		return append([]byte(nil), b.Bytes()...), bits
	}
	n := bits / 8
	total := n * 9
	out := make([]byte, (total+7)/8)
	pos := 0
	put := func(bit byte) {
		if bit&1 != 0 {
			out[pos/8] |= 1 << uint(pos%8)
		}
		pos++
	}
	for i := 0; i < n; i++ {
		v := b.Byte(i)
		for j := 0; j < 8; j++ {
			put(v >> uint(j))
		}
		put(b.Parity(i))
	}
	return out, total
}

// unwrapFrame is the inverse of wrapFrame for received frames.
func unwrapFrame(frame []byte, bits int, out *iso14443a.Buffer) {
	out.Reset()
	if bits <= 0 || len(frame) == 0 {
		return
	}
	if bits < 9 {
		out.SetBits(frame[0], bits)
		return
	}
	get := func(pos int) byte {
		return frame[pos/8] >> uint(pos%8) & 1
	}
	for i := 0; i < bits/9; i++ {
		var v byte
		for j := 0; j < 8; j++ {
			v |= get(i*9+j) << uint(j)
		}
		out.SetByteWithParity(i, v, get(i*9+8))
	}
}

// frameBits returns the size of a received frame given its byte count and
// the RxLastBits value.
func frameBits(n int, lastBits byte) int {
	if n == 0 {
		return 0
	}
	lastBits &= lastBitsMask
	if lastBits == 0 {
		return n * 8
	}
	return (n-1)*8 + int(lastBits)
}
