package mfclassic

import "testing"

func TestSectorArithmetic(t *testing.T) {
	tests := []struct {
		block, sector, first int
		trailer              bool
	}{
		{0, 0, 0, false},
		{3, 0, 0, true},
		{4, 1, 4, false},
		{63, 15, 60, true},
		{127, 31, 124, true},
		{128, 32, 128, false},
		{143, 32, 128, true},
		{144, 33, 144, false},
		{255, 39, 240, true},
	}
	for _, tt := range tests {
		if got := SectorOfBlock(tt.block); got != tt.sector {
			t.Fatalf("SectorOfBlock(%d) = %d, want %d", tt.block, got, tt.sector)
		}
		if got := FirstBlockOfSector(tt.sector); got != tt.first {
			t.Fatalf("FirstBlockOfSector(%d) = %d, want %d", tt.sector, got, tt.first)
		}
		if got := IsSectorTrailer(tt.block); got != tt.trailer {
			t.Fatalf("IsSectorTrailer(%d) = %v, want %v", tt.block, got, tt.trailer)
		}
	}
}

func TestCardTypeSizes(t *testing.T) {
	tests := []struct {
		name    string
		sectors int
		blocks  int
	}{
		{"mini", 5, 20},
		{"1k", 16, 64},
		{"4K", 40, 256},
	}
	for _, tt := range tests {
		ct, err := ParseCardType(tt.name)
		if err != nil {
			t.Fatalf("ParseCardType(%q): %v", tt.name, err)
		}
		if ct.Sectors() != tt.sectors || ct.Blocks() != tt.blocks {
			t.Fatalf("%s: %d sectors %d blocks", tt.name, ct.Sectors(), ct.Blocks())
		}
	}
	if _, err := ParseCardType("2k"); err == nil {
		t.Fatal("ParseCardType accepted 2k")
	}
	if CardTypeFromSAK(0x18) != CardType4K || CardTypeFromSAK(0x09) != CardTypeMini || CardTypeFromSAK(0x08) != CardType1K {
		t.Fatal("CardTypeFromSAK mismatch")
	}
}

func TestAccessBits(t *testing.T) {
	tr := SectorTrailer{Access: DefaultAccess}
	for g := 0; g < 3; g++ {
		c1, c2, c3, ok := tr.AccessConditions(g)
		if !ok || c1|c2|c3 != 0 {
			t.Fatalf("group %d: %d%d%d ok=%v", g, c1, c2, c3, ok)
		}
	}
	c1, c2, c3, ok := tr.AccessConditions(3)
	if !ok || c1 != 0 || c2 != 0 || c3 != 1 {
		t.Fatalf("trailer: %d%d%d ok=%v", c1, c2, c3, ok)
	}

	enc := EncodeAccessBits([4]byte{0, 0, 0, 0}, [4]byte{0, 0, 0, 0}, [4]byte{0, 0, 0, 1})
	if enc != [3]byte{0xFF, 0x07, 0x80} {
		t.Fatalf("EncodeAccessBits = % X", enc)
	}

	enc = EncodeAccessBits([4]byte{1, 0, 1, 0}, [4]byte{0, 1, 1, 1}, [4]byte{0, 0, 1, 1})
	tr.Access = [4]byte{enc[0], enc[1], enc[2], 0x00}
	for g, want := range [][3]byte{{1, 0, 0}, {0, 1, 0}, {1, 1, 1}, {0, 1, 1}} {
		c1, c2, c3, ok := tr.AccessConditions(g)
		if !ok || [3]byte{c1, c2, c3} != want {
			t.Fatalf("group %d: %d%d%d ok=%v, want %v", g, c1, c2, c3, ok, want)
		}
	}

	tr.Access[0] ^= 0x01
	if _, _, _, ok := tr.AccessConditions(0); ok {
		t.Fatal("corrupted access bits accepted")
	}
}

func TestAccessGroup(t *testing.T) {
	tests := []struct{ block, group int }{
		{0, 0}, {2, 2}, {3, 3}, {7, 3},
		{128, 0}, {132, 0}, {133, 1}, {138, 2}, {142, 2}, {143, 3},
	}
	for _, tt := range tests {
		if got := AccessGroup(tt.block); got != tt.group {
			t.Fatalf("AccessGroup(%d) = %d, want %d", tt.block, got, tt.group)
		}
	}
}

func TestTrailerRoundTrip(t *testing.T) {
	tr := SectorTrailer{KeyA: Key{1, 2, 3, 4, 5, 6}, Access: DefaultAccess, KeyB: Key{9, 8, 7, 6, 5, 4}}
	if got := ParseSectorTrailer(tr.Block()); got != tr {
		t.Fatalf("got %+v", got)
	}
}
