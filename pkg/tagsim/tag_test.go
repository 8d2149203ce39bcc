package tagsim

import (
	"errors"
	"testing"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
	"github.com/barnettlynn/mfctools/pkg/mfclassic"
)

var testUID = []byte{0xDE, 0xAD, 0xBE, 0xEF}

func TestNewTagLayout(t *testing.T) {
	tests := []struct {
		cardType mfclassic.CardType
		blocks   int
		sak      byte
	}{
		{mfclassic.CardTypeMini, 20, 0x09},
		{mfclassic.CardType1K, 64, 0x08},
		{mfclassic.CardType4K, 256, 0x18},
	}
	for _, tt := range tests {
		tag := New(tt.cardType, testUID)
		if len(tag.blocks) != tt.blocks {
			t.Fatalf("%v: %d blocks, want %d", tt.cardType, len(tag.blocks), tt.blocks)
		}
		if tag.SAK != tt.sak {
			t.Fatalf("%v: SAK %02X, want %02X", tt.cardType, tag.SAK, tt.sak)
		}
		last := mfclassic.TrailerBlock(tt.cardType.Sectors() - 1)
		tr := mfclassic.ParseSectorTrailer(tag.Block(last))
		if tr.KeyA != mfclassic.DefaultKey || tr.Access != mfclassic.DefaultAccess {
			t.Fatalf("%v: unexpected trailer %s", tt.cardType, mfclassic.FormatBlock(tag.Block(last)))
		}
	}
}

func TestPlainNonceHasNoCRC(t *testing.T) {
	tag := New(mfclassic.CardType1K, testUID)
	p := NewPoller(tag)

	tx := iso14443a.NewBuffer(4)
	rx := iso14443a.NewBuffer(8)
	tx.CopyBytes([]byte{mfclassic.CmdAuthA, 0x00})
	err := p.SendStandardFrame(tx, rx, mfclassic.FWT)
	if !errors.Is(err, iso14443a.ErrWrongCRC) {
		t.Fatalf("err = %v, want ErrWrongCRC", err)
	}
	if rx.SizeBits() != 32 {
		t.Fatalf("rx = %d bits, want 32", rx.SizeBits())
	}
	if tx.SizeBytes() != 2 {
		t.Fatalf("tx was modified: %v", tx)
	}
}

func TestHaltedTagIsSilentUntilActivated(t *testing.T) {
	tag := New(mfclassic.CardType1K, testUID)
	p := NewPoller(tag)

	tx := iso14443a.NewBuffer(4)
	rx := iso14443a.NewBuffer(8)
	tx.CopyBytes([]byte{mfclassic.CmdHalt, 0x00})
	if err := p.SendStandardFrame(tx, rx, mfclassic.FWT); !errors.Is(err, iso14443a.ErrTimeout) {
		t.Fatalf("halt err = %v, want timeout", err)
	}
	if !tag.Halted() {
		t.Fatal("tag not halted")
	}

	tx.CopyBytes([]byte{mfclassic.CmdAuthA, 0x00})
	if err := p.SendStandardFrame(tx, rx, mfclassic.FWT); !errors.Is(err, iso14443a.ErrTimeout) {
		t.Fatalf("auth on halted tag err = %v, want timeout", err)
	}
	if err := p.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := p.SendStandardFrame(tx, rx, mfclassic.FWT); !errors.Is(err, iso14443a.ErrWrongCRC) {
		t.Fatalf("auth after wake err = %v, want ErrWrongCRC", err)
	}
}

func TestRemovedTag(t *testing.T) {
	tag := New(mfclassic.CardType1K, testUID)
	p := NewPoller(tag)
	tag.Remove()

	tx := iso14443a.NewBuffer(4)
	rx := iso14443a.NewBuffer(8)
	tx.CopyBytes([]byte{mfclassic.CmdAuthA, 0x00})
	if err := p.SendStandardFrame(tx, rx, mfclassic.FWT); !errors.Is(err, iso14443a.ErrNotPresent) {
		t.Fatalf("err = %v, want ErrNotPresent", err)
	}
	if err := p.Activate(); !errors.Is(err, iso14443a.ErrNotPresent) {
		t.Fatalf("Activate err = %v, want ErrNotPresent", err)
	}
	tag.Insert()
	if err := p.Activate(); err != nil {
		t.Fatalf("Activate after insert: %v", err)
	}
}

func TestNewPollerWithoutTag(t *testing.T) {
	tag := New(mfclassic.CardType1K, testUID)
	tag.Remove()
	p := NewPoller(tag)
	if !errors.Is(p.ActivateErr, iso14443a.ErrNotPresent) {
		t.Fatalf("ActivateErr = %v, want ErrNotPresent", p.ActivateErr)
	}
	if len(p.Data().UID) != 0 {
		t.Fatalf("absent tag reported UID % X", p.Data().UID)
	}
	tag.Insert()
	if err := p.Activate(); err != nil {
		t.Fatalf("Activate after insert: %v", err)
	}
	if p.Data().CUID() != 0xDEADBEEF {
		t.Fatalf("CUID = %08X", p.Data().CUID())
	}
}

func TestBackdoorDisabledByDefault(t *testing.T) {
	tag := New(mfclassic.CardType1K, testUID)
	p := NewPoller(tag)

	tx := iso14443a.NewBuffer(4)
	rx := iso14443a.NewBuffer(8)
	tx.CopyBytes([]byte{mfclassic.CmdBackdoorAuthA, 0x00})
	if err := p.SendStandardFrame(tx, rx, mfclassic.FWT); !errors.Is(err, iso14443a.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestExchangeLog(t *testing.T) {
	tag := New(mfclassic.CardType1K, testUID)
	p := NewPoller(tag)

	tx := iso14443a.NewBuffer(4)
	rx := iso14443a.NewBuffer(8)
	tx.CopyBytes([]byte{mfclassic.CmdHalt, 0x00})
	_ = p.SendStandardFrame(tx, rx, mfclassic.FWT)
	if got := p.Count(IsPlainHalt); got != 1 {
		t.Fatalf("plain halts = %d, want 1", got)
	}
	if got := p.Count(IsReaderNonce); got != 0 {
		t.Fatalf("reader nonce frames = %d, want 0", got)
	}
	p.Reset()
	if len(p.Exchanges) != 0 {
		t.Fatal("Reset kept exchanges")
	}
}
