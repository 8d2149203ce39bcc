package iso14443a

import (
	"bytes"
	"testing"
)

func TestCRC_KnownFrames(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected [2]byte
	}{
		{name: "HLTA", data: []byte{0x50, 0x00}, expected: [2]byte{0x57, 0xCD}},
		{name: "READ block 0", data: []byte{0x30, 0x00}, expected: [2]byte{0x02, 0xA8}},
		{name: "AUTH A block 0", data: []byte{0x60, 0x00}, expected: [2]byte{0xF5, 0x7B}},
		{name: "RATS", data: []byte{0xE0, 0x50}, expected: [2]byte{0xBC, 0xA5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CRC(tt.data)
			if got != tt.expected {
				t.Errorf("CRC() = % X, expected % X", got, tt.expected)
			}
		})
	}
}

func TestAppendCheckTrimCRC(t *testing.T) {
	buf := NewBuffer(8)
	buf.CopyBytes([]byte{0x30, 0x04})
	AppendCRC(buf)

	if buf.SizeBytes() != 4 {
		t.Fatalf("expected 4 bytes after AppendCRC, got %d", buf.SizeBytes())
	}
	if !CheckCRC(buf) {
		t.Fatalf("CheckCRC rejected a frame built by AppendCRC: %s", buf)
	}
	if !buf.CheckParity() {
		t.Fatalf("appended CRC bytes must carry standard parity")
	}

	TrimCRC(buf)
	if !bytes.Equal(buf.Bytes(), []byte{0x30, 0x04}) {
		t.Fatalf("TrimCRC left % X", buf.Bytes())
	}
}

func TestCheckCRC_Rejects(t *testing.T) {
	tests := []struct {
		name string
		buf  *Buffer
	}{
		{"too short", func() *Buffer { b := NewBuffer(2); b.CopyBytes([]byte{0x57, 0xCD}); return b }()},
		{"corrupted", func() *Buffer { b := NewBuffer(4); b.CopyBytes([]byte{0x50, 0x00, 0x57, 0xCE}); return b }()},
		{"nonce without CRC", func() *Buffer { b := NewBuffer(4); b.CopyBytes([]byte{0x01, 0x02, 0x03, 0x04}); return b }()},
		{"sub-byte frame", func() *Buffer { b := NewBuffer(1); b.SetBits(0x0A, 4); return b }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if CheckCRC(tt.buf) {
				t.Errorf("CheckCRC accepted %s", tt.buf)
			}
		})
	}
}
