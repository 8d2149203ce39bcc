// Package crypto1 implements the CRYPTO1 stream cipher used by MIFARE
// Classic cards: the 48-bit LFSR split into odd and even halves, the
// two-layer nonlinear filter, and the 16-bit nonce PRNG.
//
// A Crypto1 value is the running keystream of one card session. Every call
// advances it, so a single value must never be shared between sessions.
package crypto1

import "math/bits"

const (
	lfPolyOdd  = 0x29CE5C
	lfPolyEven = 0x870804
)

// Crypto1 is the cipher state.
type Crypto1 struct {
	odd  uint32
	even uint32
}

// New returns a zeroed cipher state.
func New() *Crypto1 {
	return &Crypto1{}
}

// Reset zeroes the state.
func (c *Crypto1) Reset() {
	c.odd = 0
	c.even = 0
}

// Init loads a 48-bit key (big-endian, as stored in the sector trailer).
func (c *Crypto1) Init(key uint64) {
	c.Reset()
	for i := 47; i > 0; i -= 2 {
		c.odd = c.odd<<1 | uint32(key>>uint((i-1)^7)&1)
		c.even = c.even<<1 | uint32(key>>uint(i^7)&1)
	}
}

// Filter returns the keystream bit for the current state without clocking.
func (c *Crypto1) Filter() byte {
	return filter(c.odd)
}

// Bit clocks the LFSR once, feeding in. When encrypted is set the input is
// ciphertext and the keystream bit is folded back in before feedback.
func (c *Crypto1) Bit(in byte, encrypted bool) byte {
	out := filter(c.odd)
	var feed uint32
	if encrypted {
		feed = uint32(out)
	}
	feed ^= uint32(in & 1)
	feed ^= lfPolyOdd & c.odd
	feed ^= lfPolyEven & c.even
	c.even = c.even<<1 | uint32(bits.OnesCount32(feed)&1)
	c.odd, c.even = c.even, c.odd
	return out
}

// Byte clocks eight times, least significant bit first.
func (c *Crypto1) Byte(in byte, encrypted bool) byte {
	var out byte
	for i := 0; i < 8; i++ {
		out |= c.Bit(in>>uint(i)&1, encrypted) << uint(i)
	}
	return out
}

// Word clocks 32 times over a big-endian word: bytes in transmission
// order, each least significant bit first.
func (c *Crypto1) Word(in uint32, encrypted bool) uint32 {
	var out uint32
	for i := 0; i < 32; i++ {
		b := byte(in >> uint(i^24) & 1)
		out |= uint32(c.Bit(b, encrypted)) << uint(i^24)
	}
	return out
}

func filter(in uint32) byte {
	var out uint32
	out = (0xf22c0 >> (in & 0xf)) & 16
	out |= (0x6c9c0 >> (in >> 4 & 0xf)) & 8
	out |= (0x3c8b0 >> (in >> 8 & 0xf)) & 4
	out |= (0x1e458 >> (in >> 12 & 0xf)) & 2
	out |= (0x0d938 >> (in >> 16 & 0xf)) & 1
	return byte(uint32(0xEC57E80A) >> out & 1)
}

// PRNGSuccessor steps the card's nonce generator n times from x.
func PRNGSuccessor(x uint32, n uint32) uint32 {
	x = bits.ReverseBytes32(x)
	for ; n > 0; n-- {
		x = x>>1 | (x>>16^x>>18^x>>19^x>>21)<<31
	}
	return bits.ReverseBytes32(x)
}

// PRNGDistance returns how many generator steps lead from one nonce to
// another. ok is false when to is not on the sequence of from within one
// period.
func PRNGDistance(from, to uint32) (n uint32, ok bool) {
	x := bits.ReverseBytes32(from)
	want := bits.ReverseBytes32(to)
	for ; n < 65535; n++ {
		if x == want {
			return n, true
		}
		x = x>>1 | (x>>16^x>>18^x>>19^x>>21)<<31
	}
	return 0, false
}

// SuccessorBytes returns the four bytes that follow the nonce x after n
// PRNG steps, as they appear in the handshake: the low byte of the
// successor at n+8, n+16, n+24 and n+32.
func SuccessorBytes(x uint32, n uint32) [4]byte {
	var out [4]byte
	x = PRNGSuccessor(x, n)
	for i := range out {
		x = PRNGSuccessor(x, 8)
		out[i] = byte(x)
	}
	return out
}
