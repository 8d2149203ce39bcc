package mfclassic

import (
	"fmt"
	"strings"
)

// CardType is the memory layout of a card.
type CardType int

const (
	CardType1K CardType = iota
	CardTypeMini
	CardType4K
)

// ParseCardType accepts "mini", "1k" or "4k".
func ParseCardType(s string) (CardType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1k", "":
		return CardType1K, nil
	case "mini":
		return CardTypeMini, nil
	case "4k":
		return CardType4K, nil
	}
	return 0, fmt.Errorf("card type must be mini, 1k or 4k, got %q", s)
}

// CardTypeFromSAK guesses the layout from the SAK byte.
func CardTypeFromSAK(sak byte) CardType {
	switch sak {
	case 0x09:
		return CardTypeMini
	case 0x18, 0x38:
		return CardType4K
	default:
		return CardType1K
	}
}

func (t CardType) String() string {
	switch t {
	case CardTypeMini:
		return "mini"
	case CardType4K:
		return "4k"
	default:
		return "1k"
	}
}

// Sectors returns the number of sectors.
func (t CardType) Sectors() int {
	switch t {
	case CardTypeMini:
		return 5
	case CardType4K:
		return 40
	default:
		return 16
	}
}

// Blocks returns the number of blocks.
func (t CardType) Blocks() int {
	return FirstBlockOfSector(t.Sectors()-1) + BlocksInSector(t.Sectors()-1)
}

// Sectors 0-31 have 4 blocks, sectors 32-39 (4K only) have 16.
const (
	smallSectors    = 32
	smallSectorSize = 4
	largeSectorSize = 16
)

// SectorOfBlock returns the sector containing block.
func SectorOfBlock(block int) int {
	if block < smallSectors*smallSectorSize {
		return block / smallSectorSize
	}
	return smallSectors + (block-smallSectors*smallSectorSize)/largeSectorSize
}

// FirstBlockOfSector returns the first block of sector.
func FirstBlockOfSector(sector int) int {
	if sector < smallSectors {
		return sector * smallSectorSize
	}
	return smallSectors*smallSectorSize + (sector-smallSectors)*largeSectorSize
}

// BlocksInSector returns the number of blocks in sector.
func BlocksInSector(sector int) int {
	if sector < smallSectors {
		return smallSectorSize
	}
	return largeSectorSize
}

// TrailerBlock returns the sector trailer of sector.
func TrailerBlock(sector int) int {
	return FirstBlockOfSector(sector) + BlocksInSector(sector) - 1
}

// IsSectorTrailer reports whether block is the last block of its sector.
func IsSectorTrailer(block int) bool {
	return block == TrailerBlock(SectorOfBlock(block))
}

// DefaultAccess is the transport configuration access bytes (FF 07 80 69).
var DefaultAccess = [4]byte{0xFF, 0x07, 0x80, 0x69}

// SectorTrailer is the decoded last block of a sector.
type SectorTrailer struct {
	KeyA   Key
	Access [4]byte // access bits (3) + general purpose byte
	KeyB   Key
}

// ParseSectorTrailer splits a trailer block.
func ParseSectorTrailer(b Block) SectorTrailer {
	var t SectorTrailer
	copy(t.KeyA[:], b[0:6])
	copy(t.Access[:], b[6:10])
	copy(t.KeyB[:], b[10:16])
	return t
}

// Block assembles the trailer block.
func (t SectorTrailer) Block() Block {
	var b Block
	copy(b[0:6], t.KeyA[:])
	copy(b[6:10], t.Access[:])
	copy(b[10:16], t.KeyB[:])
	return b
}

// AccessConditions returns the C1 C2 C3 bits for group (0-2 data, 3
// trailer). ok is false when the inverted copies do not match.
//
//	byte 6: ~C2 | ~C1
//	byte 7:  C1 | ~C3
//	byte 8:  C3 |  C2
func (t SectorTrailer) AccessConditions(group int) (c1, c2, c3 byte, ok bool) {
	b6, b7, b8 := t.Access[0], t.Access[1], t.Access[2]
	n1 := b7 >> 4
	n2 := b8 & 0x0F
	n3 := b8 >> 4
	ok = ^b6&0x0F == n1 && (^b6>>4)&0x0F == n2 && ^b7&0x0F == n3
	c1 = n1 >> uint(group) & 1
	c2 = n2 >> uint(group) & 1
	c3 = n3 >> uint(group) & 1
	return c1, c2, c3, ok
}

// EncodeAccessBits builds the three access bytes from per-group C1 C2 C3
// values (each 0 or 1, index 3 is the trailer).
func EncodeAccessBits(c1, c2, c3 [4]byte) [3]byte {
	var n1, n2, n3 byte
	for g := 0; g < 4; g++ {
		n1 |= (c1[g] & 1) << uint(g)
		n2 |= (c2[g] & 1) << uint(g)
		n3 |= (c3[g] & 1) << uint(g)
	}
	return [3]byte{
		(^n2&0x0F)<<4 | ^n1&0x0F,
		n1<<4 | ^n3&0x0F,
		n3<<4 | n2,
	}
}

// AccessGroup returns the access group (0-3) governing block inside its
// sector. Large sectors share one group between five data blocks.
func AccessGroup(block int) int {
	offset := block - FirstBlockOfSector(SectorOfBlock(block))
	if BlocksInSector(SectorOfBlock(block)) == smallSectorSize {
		return offset
	}
	if offset == largeSectorSize-1 {
		return 3
	}
	return offset / 5
}
