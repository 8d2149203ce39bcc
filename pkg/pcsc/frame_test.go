package pcsc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

func TestWrapFrameInterleavesParity(t *testing.T) {
	b := iso14443a.NewBuffer(2)
	b.CopyWithParity([]byte{0xFF, 0x00}, []byte{1, 1})

	out, bits := wrapFrame(b)
	if bits != 18 {
		t.Fatalf("bits = %d, want 18", bits)
	}
	if want := []byte{0xFF, 0x01, 0x02}; !bytes.Equal(out, want) {
		t.Fatalf("wrapped = % X, want % X", out, want)
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	b := iso14443a.NewBuffer(8)
	b.CopyWithParity([]byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0}, []byte{0, 1, 1, 0, 1, 0, 0, 1})

	out, bits := wrapFrame(b)
	if bits != 72 || len(out) != 9 {
		t.Fatalf("wrapped %d bits in %d bytes, want 72 in 9", bits, len(out))
	}
	got := iso14443a.NewBuffer(8)
	unwrapFrame(out, bits, got)
	if !bytes.Equal(got.Bytes(), b.Bytes()) || !bytes.Equal(got.ParityBits(), b.ParityBits()) {
		t.Fatalf("round trip = %v, want %v", got, b)
	}
}

func TestWrapShortFramePassesThrough(t *testing.T) {
	b := iso14443a.NewBuffer(1)
	b.SetBits(0x0A, 4)
	out, bits := wrapFrame(b)
	if bits != 4 || !bytes.Equal(out, []byte{0x0A}) {
		t.Fatalf("wrap = % X/%d, want 0A/4", out, bits)
	}
	got := iso14443a.NewBuffer(1)
	unwrapFrame(out, bits, got)
	if got.SizeBits() != 4 || got.Byte(0) != 0x0A {
		t.Fatalf("unwrap = %v", got)
	}
}

func TestFrameBits(t *testing.T) {
	tests := []struct {
		n    int
		last byte
		want int
	}{
		{0, 0, 0},
		{1, 4, 4},
		{4, 0, 32},
		{5, 4, 36},
		{21, 2, 162},
		{3, 0xF2, 18},
	}
	for _, tt := range tests {
		if got := frameBits(tt.n, tt.last); got != tt.want {
			t.Errorf("frameBits(%d, %#x) = %d, want %d", tt.n, tt.last, got, tt.want)
		}
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status byte
		want   error
	}{
		{0x00, nil},
		{0x01, iso14443a.ErrTimeout},
		{0x02, iso14443a.ErrWrongCRC},
		{0x03, iso14443a.ErrCommunication},
		{0x06, iso14443a.ErrColResFailed},
		{0x29, iso14443a.ErrNotPresent},
		{0x2B, iso14443a.ErrNotPresent},
		{0x7F, iso14443a.ErrCommunication},
	}
	for _, tt := range tests {
		err := statusError(tt.status)
		if tt.want == nil {
			if err != nil {
				t.Errorf("statusError(%#x) = %v, want nil", tt.status, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("statusError(%#x) = %v, want %v", tt.status, err, tt.want)
		}
	}
}
