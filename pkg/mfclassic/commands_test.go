package mfclassic_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
	"github.com/barnettlynn/mfctools/pkg/mfclassic"
	"github.com/barnettlynn/mfctools/pkg/tagsim"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, nil)
	s.auth(t, 4)

	want := mfclassic.Block{}
	for i := range want {
		want[i] = byte(0xF0 - i)
	}
	if err := s.mfc.WriteBlock(6, want); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if got := s.tag.Block(6); got != want {
		t.Fatalf("tag holds %s", mfclassic.FormatBlock(got))
	}
	got, err := s.mfc.ReadBlock(6)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if got != want {
		t.Fatalf("read %s, want %s", mfclassic.FormatBlock(got), mfclassic.FormatBlock(want))
	}
}

func TestReadRejectsCorruptCRC(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, func(tag *tagsim.Tag) {
		tag.SetBlock(1, mfclassic.Block{0xAA, 0xBB})
		tag.Faults.CorruptReadCRC = true
	})
	s.auth(t, 1)

	got, err := s.mfc.ReadBlock(1)
	if !mfclassic.IsProtocolError(err) || !errors.Is(err, iso14443a.ErrWrongCRC) {
		t.Fatalf("err = %v, want protocol error caused by CRC", err)
	}
	if got != (mfclassic.Block{}) {
		t.Fatalf("block mutated on failure: %s", mfclassic.FormatBlock(got))
	}
	if s.mfc.AuthState() != mfclassic.AuthStateIdle {
		t.Fatal("session kept after failed read")
	}
}

func TestReadTrailerHidesKeyA(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, nil)
	s.auth(t, 0)
	b, err := s.mfc.ReadBlock(3)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	tr := mfclassic.ParseSectorTrailer(b)
	if tr.KeyA != (mfclassic.Key{}) {
		t.Fatalf("key A readable: %s", tr.KeyA)
	}
	if tr.Access != mfclassic.DefaultAccess || tr.KeyB != mfclassic.DefaultKey {
		t.Fatalf("trailer = %s", mfclassic.FormatBlock(b))
	}
}

func TestReadOutsideSectorIsNAKed(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, nil)
	s.auth(t, 0)
	_, err := s.mfc.ReadBlock(4)
	if !mfclassic.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestWriteNAKIsProtocolError(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, nil)
	s.auth(t, 0)
	err := s.mfc.WriteBlock(8, mfclassic.Block{})
	if !mfclassic.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
	var cmdErr *mfclassic.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Cmd != mfclassic.CmdWrite {
		t.Fatalf("err = %#v", err)
	}
}

func TestValueIncrementTransfer(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, func(tag *tagsim.Tag) {
		tag.SetBlock(5, mfclassic.EncodeValueBlock(100, 5))
	})
	s.auth(t, 4)

	if err := s.mfc.ValueCmd(5, mfclassic.Increment, 5); err != nil {
		t.Fatalf("ValueCmd: %v", err)
	}
	if v, _, _ := mfclassic.DecodeValueBlock(s.tag.Block(5)); v != 100 {
		t.Fatalf("value stored before transfer: %d", v)
	}
	if err := s.mfc.ValueTransfer(5); err != nil {
		t.Fatalf("ValueTransfer: %v", err)
	}
	b, err := s.mfc.ReadBlock(5)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	v, addr, err := mfclassic.DecodeValueBlock(b)
	if err != nil {
		t.Fatalf("DecodeValueBlock: %v", err)
	}
	if v != 105 || addr != 5 {
		t.Fatalf("value = %d addr = %d, want 105 5", v, addr)
	}
}

func TestValueDecrementAndRestore(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, func(tag *tagsim.Tag) {
		tag.SetBlock(9, mfclassic.EncodeValueBlock(1000, 9))
	})
	s.auth(t, 8)

	if err := s.mfc.ValueCmd(9, mfclassic.Decrement, 300); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := s.mfc.ValueTransfer(9); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := s.mfc.ValueCmd(9, mfclassic.Restore, 0); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := s.mfc.ValueTransfer(10); err != nil {
		t.Fatalf("transfer to backup: %v", err)
	}
	for _, block := range []int{9, 10} {
		v, _, err := mfclassic.DecodeValueBlock(s.tag.Block(block))
		if err != nil || v != 700 {
			t.Fatalf("block %d: value %d err %v, want 700", block, v, err)
		}
	}
}

func TestValueNegativeOperand(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, func(tag *tagsim.Tag) {
		tag.SetBlock(1, mfclassic.EncodeValueBlock(10, 1))
	})
	s.auth(t, 0)
	if err := s.mfc.ValueCmd(1, mfclassic.Increment, -25); err != nil {
		t.Fatalf("ValueCmd: %v", err)
	}
	if err := s.mfc.ValueTransfer(1); err != nil {
		t.Fatalf("ValueTransfer: %v", err)
	}
	if v, _, _ := mfclassic.DecodeValueBlock(s.tag.Block(1)); v != -15 {
		t.Fatalf("value = %d, want -15", v)
	}
}

func TestValueOperandAnswerIsProtocolError(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, func(tag *tagsim.Tag) {
		tag.SetBlock(5, mfclassic.EncodeValueBlock(100, 5))
		tag.Faults.AnswerValueOperand = true
	})
	s.auth(t, 4)

	err := s.mfc.ValueCmd(5, mfclassic.Increment, 5)
	if !mfclassic.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestValueOnDataBlockIsRejected(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, nil)
	s.auth(t, 4)
	if err := s.mfc.ValueCmd(5, mfclassic.Increment, 1); !mfclassic.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestTransferWithoutValueCommandIsRejected(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, nil)
	s.auth(t, 4)
	if err := s.mfc.ValueTransfer(5); !mfclassic.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestHaltIsIdempotent(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, nil)
	s.auth(t, 0)

	for i := 0; i < 2; i++ {
		if err := s.mfc.Halt(); err != nil {
			t.Fatalf("Halt #%d: %v", i+1, err)
		}
		if s.mfc.AuthState() != mfclassic.AuthStateIdle {
			t.Fatalf("state after halt #%d = %v", i+1, s.mfc.AuthState())
		}
	}
	if !s.tag.Halted() {
		t.Fatal("tag not halted")
	}
	if s.link.IdleCount != 2 {
		t.Fatalf("SetIdle calls = %d, want 2", s.link.IdleCount)
	}
}

func TestHaltAnsweredIsProtocolError(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, func(tag *tagsim.Tag) {
		tag.Faults.AnswerHalt = true
	})
	s.auth(t, 0)

	if err := s.mfc.Halt(); !mfclassic.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
	if s.mfc.AuthState() != mfclassic.AuthStatePassed {
		t.Fatal("answered halt changed the state")
	}
	if s.link.IdleCount != 0 {
		t.Fatal("answered halt reset the link")
	}
}

func TestSendEncryptedFrame(t *testing.T) {
	want := mfclassic.Block{0x11, 0x22, 0x33, 0x44}
	s := newSession(t, mfclassic.Config{}, func(tag *tagsim.Tag) {
		tag.SetBlock(2, want)
	})
	s.auth(t, 0)

	tx := iso14443a.NewBuffer(4)
	tx.CopyBytes([]byte{mfclassic.CmdRead, 0x02})
	iso14443a.AppendCRC(tx)
	rx := iso14443a.NewBuffer(18)
	if err := s.mfc.SendEncryptedFrame(tx, rx, mfclassic.FWT); err != nil {
		t.Fatalf("SendEncryptedFrame: %v", err)
	}
	if !iso14443a.CheckCRC(rx) {
		t.Fatalf("answer CRC invalid: %v", rx)
	}
	if !bytes.Equal(rx.Bytes()[:16], want[:]) {
		t.Fatalf("answer % X", rx.Bytes())
	}
}

func TestPlainFramePrimitives(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, nil)
	tx := iso14443a.NewBuffer(4)
	rx := iso14443a.NewBuffer(8)

	tx.CopyBytes([]byte{mfclassic.CmdAuthA, 0x00})
	err := s.mfc.SendStandardFrame(tx, rx, mfclassic.FWT)
	if !mfclassic.IsProtocolError(err) || !errors.Is(err, iso14443a.ErrWrongCRC) {
		t.Fatalf("SendStandardFrame err = %v, want wrapped CRC failure", err)
	}
	if rx.SizeBits() != 32 {
		t.Fatalf("rx = %d bits", rx.SizeBits())
	}

	// The tag now waits for {nr}{ar}; anything else is dropped silently.
	tx.CopyBytes([]byte{0x01, 0x02})
	if err := s.mfc.SendFrame(tx, rx, mfclassic.FWT); !mfclassic.IsTimeout(err) {
		t.Fatalf("SendFrame err = %v, want timeout", err)
	}
	if err := s.mfc.SendCustomParityFrame(tx, rx, mfclassic.FWT); !mfclassic.IsTimeout(err) {
		t.Fatalf("SendCustomParityFrame err = %v, want timeout", err)
	}
}

func TestProbeKeys(t *testing.T) {
	s := newSession(t, mfclassic.Config{}, func(tag *tagsim.Tag) {
		tag.SetSectorKeys(1, otherKey, mfclassic.DefaultKey)
	})
	keys := []mfclassic.Key{mfclassic.DefaultKey, {}, otherKey, {0x01}}
	results := s.mfc.ProbeKeys(4, mfclassic.KeyTypeA, keys)
	if len(results) != 3 {
		t.Fatalf("%d results, want 3", len(results))
	}
	for _, r := range results[:2] {
		if r.Success || r.Err == nil {
			t.Fatalf("key %s unexpectedly succeeded", r.Key)
		}
	}
	key, ok := mfclassic.FoundKey(results)
	if !ok || key != otherKey {
		t.Fatalf("found %s %v, want %s", key, ok, otherKey)
	}
	if results[2].Context == nil {
		t.Fatal("no context on success")
	}
	if _, err := s.mfc.ReadBlock(4); err != nil {
		t.Fatalf("ReadBlock after probe: %v", err)
	}
}
