package mfclassic

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseKey(t *testing.T) {
	k, err := ParseKey(" a0a1a2a3a4a5 ")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if k.String() != "A0A1A2A3A4A5" || k.Uint64() != 0xA0A1A2A3A4A5 {
		t.Fatalf("got %s / %X", k, k.Uint64())
	}
	for _, bad := range []string{"", "A0A1A2A3A4", "A0A1A2A3A4A5A6", "ZZA1A2A3A4A5"} {
		if _, err := ParseKey(bad); err == nil {
			t.Fatalf("ParseKey(%q) succeeded", bad)
		}
	}
}

func TestLoadKeyHexFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.hex")
	if err := os.WriteFile(path, []byte("\nFFFFFFFFFFFF\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	k, err := LoadKeyHexFile(path)
	if err != nil || k != DefaultKey {
		t.Fatalf("got %s %v", k, err)
	}

	empty := filepath.Join(dir, "empty.hex")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKeyHexFile(empty); err == nil {
		t.Fatal("empty key file accepted")
	}
}

func TestLoadKeyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	content := "# transport keys\nFFFFFFFFFFFF\n\na0a1a2a3a4a5 # MAD\nffffffffffff\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	keys, err := LoadKeyList(path)
	if err != nil {
		t.Fatalf("LoadKeyList: %v", err)
	}
	if len(keys) != 2 || keys[0] != DefaultKey || keys[1] != (Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}) {
		t.Fatalf("keys = %v", keys)
	}

	if err := os.WriteFile(path, []byte("nothex\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKeyList(path); err == nil {
		t.Fatal("invalid dictionary accepted")
	}
}
