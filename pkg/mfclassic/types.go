package mfclassic

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Command opcodes.
const (
	CmdAuthA         = 0x60
	CmdAuthB         = 0x61
	CmdBackdoorAuthA = 0x64
	CmdBackdoorAuthB = 0x65
	CmdRead          = 0x30
	CmdWrite         = 0xA0
	CmdDecrement     = 0xC0
	CmdIncrement     = 0xC1
	CmdRestore       = 0xC2
	CmdTransfer      = 0xB0
	CmdHalt          = 0x50

	ACK = 0x0A // 4-bit acknowledge
)

// FWT is the frame wait time, in carrier cycles, used for every exchange.
const FWT = 60000

// BlockSize is the size of a data block in bytes.
const BlockSize = 16

// Key is a 6-byte sector key as stored in the sector trailer.
type Key [6]byte

// Uint64 returns the key as a big-endian 48-bit integer.
func (k Key) Uint64() uint64 {
	var v uint64
	for _, b := range k {
		v = v<<8 | uint64(b)
	}
	return v
}

func (k Key) String() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

// Block is one 16-byte data block.
type Block [BlockSize]byte

// Nonce is a 4-byte handshake value in transmission order.
type Nonce [4]byte

func (n Nonce) String() string {
	return strings.ToUpper(hex.EncodeToString(n[:]))
}

// KeyType selects key A or key B of a sector.
type KeyType byte

const (
	KeyTypeA KeyType = iota
	KeyTypeB
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeA:
		return "A"
	case KeyTypeB:
		return "B"
	default:
		return fmt.Sprintf("KeyType(%d)", byte(t))
	}
}

// ParseKeyType accepts "a", "A", "b" or "B".
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return KeyTypeA, nil
	case "B":
		return KeyTypeB, nil
	}
	return 0, fmt.Errorf("key type must be A or B, got %q", s)
}

// AuthState is the authentication state of a session.
type AuthState int

const (
	AuthStateIdle AuthState = iota
	AuthStatePassed
)

func (s AuthState) String() string {
	if s == AuthStatePassed {
		return "passed"
	}
	return "idle"
}

// ValueCommand selects the value block operation.
type ValueCommand int

const (
	Increment ValueCommand = iota
	Decrement
	Restore
)

func (c ValueCommand) opcode() (byte, bool) {
	switch c {
	case Increment:
		return CmdIncrement, true
	case Decrement:
		return CmdDecrement, true
	case Restore:
		return CmdRestore, true
	}
	return 0, false
}

func (c ValueCommand) String() string {
	switch c {
	case Increment:
		return "increment"
	case Decrement:
		return "decrement"
	case Restore:
		return "restore"
	default:
		return fmt.Sprintf("ValueCommand(%d)", int(c))
	}
}

// AuthContext is the transcript of one authentication.
type AuthContext struct {
	Block   byte
	KeyType KeyType
	Nt      Nonce // tag nonce as received (still encrypted for nested auth)
	Nr      Nonce // reader nonce in the clear
	Ar      Nonce // reader response as transmitted
	At      Nonce // tag response as received

	// Anomalous is set when the tag response had the wrong length and the
	// poller was configured to accept it.
	Anomalous bool
}
