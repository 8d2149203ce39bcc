package mfclassic

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultKey is the factory key of blank cards.
var DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// WellKnownKeys are publicly documented transport and vendor keys, tried
// when no dictionary is configured.
var WellKnownKeys = []Key{
	{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5},
	{0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5},
	{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7},
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x4D, 0x3A, 0x99, 0xC3, 0x51, 0xDD},
	{0x1A, 0x98, 0x2C, 0x7E, 0x45, 0x9A},
	{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	{0x71, 0x4C, 0x5C, 0x88, 0x6E, 0x97},
	{0x58, 0x7E, 0xE5, 0xF9, 0x35, 0x0F},
	{0xA0, 0x47, 0x8C, 0xC3, 0x90, 0x91},
	{0x53, 0x3C, 0xB6, 0xC7, 0x23, 0xF6},
	{0x8F, 0xD0, 0xA4, 0xF2, 0x56, 0xE9},
}

// ParseKey parses 12 hexadecimal characters.
func ParseKey(s string) (Key, error) {
	var k Key
	s = strings.TrimSpace(s)
	if len(s) != 12 {
		return k, fmt.Errorf("key must be 12 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid hex key: %v", err)
	}
	copy(k[:], b)
	return k, nil
}

// LoadKeyHexFile loads a single key from a file holding one line of 12
// hexadecimal characters.
func LoadKeyHexFile(path string) (Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return Key{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		return ParseKey(line)
	}
	if err := scanner.Err(); err != nil {
		return Key{}, err
	}
	return Key{}, errors.New("key file is empty")
}

// LoadKeyList loads a key dictionary: one key per line, blank lines and
// lines starting with # ignored, duplicates dropped.
func LoadKeyList(path string) ([]Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []Key
	seen := make(map[Key]bool)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		k, err := ParseKey(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
