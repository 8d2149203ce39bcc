package mfclassic

import (
	"encoding/binary"
	"errors"
)

// ErrNotValueBlock is returned when a block is not in value block format.
var ErrNotValueBlock = errors.New("block is not a value block")

// EncodeValueBlock builds a value block: value, ~value, value (each 4 bytes
// little-endian) then addr, ~addr, addr, ~addr.
func EncodeValueBlock(value int32, addr byte) Block {
	var b Block
	v := uint32(value)
	binary.LittleEndian.PutUint32(b[0:4], v)
	binary.LittleEndian.PutUint32(b[4:8], ^v)
	binary.LittleEndian.PutUint32(b[8:12], v)
	b[12], b[13], b[14], b[15] = addr, ^addr, addr, ^addr
	return b
}

// DecodeValueBlock checks the redundant copies and returns the value and
// the address byte.
func DecodeValueBlock(b Block) (int32, byte, error) {
	v := binary.LittleEndian.Uint32(b[0:4])
	inv := binary.LittleEndian.Uint32(b[4:8])
	v2 := binary.LittleEndian.Uint32(b[8:12])
	if v != v2 || v != ^inv {
		return 0, 0, ErrNotValueBlock
	}
	if b[12] != b[14] || b[13] != b[15] || b[12] != ^b[13] {
		return 0, 0, ErrNotValueBlock
	}
	return int32(v), b[12], nil
}

// IsValueBlock reports whether b is in value block format.
func IsValueBlock(b Block) bool {
	_, _, err := DecodeValueBlock(b)
	return err == nil
}
