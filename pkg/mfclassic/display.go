package mfclassic

import (
	"fmt"
	"io"
	"strings"
)

// FormatBlock returns the block as space separated upper-case hex.
func FormatBlock(b Block) string {
	return fmt.Sprintf("% X", b[:])
}

// FormatAuthContext returns a one-line transcript.
func FormatAuthContext(ctx *AuthContext) string {
	if ctx == nil {
		return "<no transcript>"
	}
	s := fmt.Sprintf("block=%d key=%s nt=%s nr=%s ar=%s at=%s",
		ctx.Block, ctx.KeyType, ctx.Nt, ctx.Nr, ctx.Ar, ctx.At)
	if ctx.Anomalous {
		s += " (anomalous)"
	}
	return s
}

// SectorDump is the content of one sector as far as it could be read.
type SectorDump struct {
	Sector  int
	KeyType KeyType
	Key     *Key    // nil when no key was found
	Blocks  []Block // one per block of the sector
	Read    []bool  // whether Blocks[i] was read
}

// PrintSector writes a sector dump.
func PrintSector(w io.Writer, d SectorDump) {
	first := FirstBlockOfSector(d.Sector)
	if d.Key == nil {
		fmt.Fprintf(w, "Sector %2d: no key\n", d.Sector)
		return
	}
	fmt.Fprintf(w, "Sector %2d: key %s %s\n", d.Sector, d.KeyType, d.Key)
	for i := range d.Blocks {
		block := first + i
		if i >= len(d.Read) || !d.Read[i] {
			fmt.Fprintf(w, "  [%3d] %s\n", block, strings.Repeat("-- ", BlockSize-1)+"--")
			continue
		}
		line := FormatBlock(d.Blocks[i])
		switch {
		case IsSectorTrailer(block):
			t := ParseSectorTrailer(d.Blocks[i])
			_, _, _, ok := t.AccessConditions(3)
			status := "ok"
			if !ok {
				status = "INVALID"
			}
			line += fmt.Sprintf("  trailer access % X (%s)", t.Access[:3], status)
		case IsValueBlock(d.Blocks[i]):
			v, addr, _ := DecodeValueBlock(d.Blocks[i])
			line += fmt.Sprintf("  value %d addr %d", v, addr)
		}
		fmt.Fprintf(w, "  [%3d] %s\n", block, line)
	}
}
