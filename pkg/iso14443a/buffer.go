package iso14443a

import "fmt"

// Buffer holds a frame as it travels over the air: data bytes, one parity
// bit per byte and the exact size in bits. Frames shorter than a byte (the
// 4-bit ACK/NAK of MIFARE Classic) carry no parity.
type Buffer struct {
	data   []byte
	parity []byte
	bits   int
}

// NewBuffer returns an empty buffer with room for capacity bytes.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		data:   make([]byte, 0, capacity),
		parity: make([]byte, 0, capacity),
	}
}

// Reset empties the buffer, keeping its storage.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.parity = b.parity[:0]
	b.bits = 0
}

// CopyBytes replaces the contents with p using standard odd parity.
func (b *Buffer) CopyBytes(p []byte) {
	b.Reset()
	for _, v := range p {
		b.AppendByte(v)
	}
}

// CopyWithParity replaces the contents with p and the matching parity bits.
func (b *Buffer) CopyWithParity(p, parity []byte) {
	b.Reset()
	for i, v := range p {
		var par byte
		if i < len(parity) {
			par = parity[i] & 0x01
		}
		b.data = append(b.data, v)
		b.parity = append(b.parity, par)
	}
	b.bits = len(p) * 8
}

// SetBits replaces the contents with the low n bits (n < 8) of v.
func (b *Buffer) SetBits(v byte, n int) {
	b.Reset()
	if n <= 0 {
		return
	}
	if n > 8 {
		n = 8
	}
	b.data = append(b.data, v&byte((1<<n)-1))
	b.parity = append(b.parity, OddParity8(v))
	b.bits = n
}

// AppendByte adds v with standard odd parity.
func (b *Buffer) AppendByte(v byte) {
	b.data = append(b.data[:b.SizeBytes()], v)
	b.parity = append(b.parity[:len(b.data)-1], OddParity8(v))
	b.bits = len(b.data) * 8
}

// SetByteWithParity writes v at index i with an explicit parity bit,
// growing the buffer when i is the next free index.
func (b *Buffer) SetByteWithParity(i int, v byte, parity byte) {
	switch {
	case i < len(b.data):
		b.data[i] = v
		b.parity[i] = parity & 0x01
	case i == len(b.data):
		b.data = append(b.data, v)
		b.parity = append(b.parity, parity&0x01)
	default:
		panic(fmt.Sprintf("iso14443a: byte index %d beyond size %d", i, len(b.data)))
	}
	if b.bits < (i+1)*8 {
		b.bits = (i + 1) * 8
	}
}

// SetSizeBits truncates or extends the logical size. Bytes revealed by an
// extension are zero with zero parity.
func (b *Buffer) SetSizeBits(bits int) {
	n := (bits + 7) / 8
	for len(b.data) < n {
		b.data = append(b.data, 0)
		b.parity = append(b.parity, 0)
	}
	b.data = b.data[:n]
	b.parity = b.parity[:n]
	b.bits = bits
}

// Bytes returns the data bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// ParityBits returns one parity bit per data byte. The slice aliases the buffer.
func (b *Buffer) ParityBits() []byte { return b.parity }

// Byte returns the byte at index i.
func (b *Buffer) Byte(i int) byte { return b.data[i] }

// Parity returns the parity bit of byte i.
func (b *Buffer) Parity(i int) byte { return b.parity[i] }

// SizeBits returns the frame length in bits.
func (b *Buffer) SizeBits() int { return b.bits }

// SizeBytes returns the number of bytes the frame occupies.
func (b *Buffer) SizeBytes() int { return (b.bits + 7) / 8 }

// CheckParity reports whether every full byte carries odd parity.
func (b *Buffer) CheckParity() bool {
	for i := 0; i < b.bits/8; i++ {
		if b.parity[i] != OddParity8(b.data[i]) {
			return false
		}
	}
	return true
}

// Copy replaces the contents of b with a copy of src.
func (b *Buffer) Copy(src *Buffer) {
	b.data = append(b.data[:0], src.data...)
	b.parity = append(b.parity[:0], src.parity...)
	b.bits = src.bits
}

// Clone returns an independent copy of b.
func (b *Buffer) Clone() *Buffer {
	c := NewBuffer(len(b.data))
	c.Copy(b)
	return c
}

func (b *Buffer) String() string {
	return fmt.Sprintf("% X (%d bits)", b.data, b.bits)
}

// OddParity8 returns the parity bit that makes the number of set bits in
// v plus the parity bit odd.
func OddParity8(v byte) byte {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return ^v & 0x01
}
