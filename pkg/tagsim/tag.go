// Package tagsim simulates a MIFARE Classic tag at the frame level and
// exposes it as an iso14443a.Poller, so the poller, the reader bridge and
// the tools can be exercised without hardware.
package tagsim

import (
	"encoding/binary"
	"log/slog"

	"github.com/barnettlynn/mfctools/pkg/crypto1"
	"github.com/barnettlynn/mfctools/pkg/iso14443a"
	"github.com/barnettlynn/mfctools/pkg/mfclassic"
)

// Faults makes the tag misbehave in specific ways.
type Faults struct {
	CorruptReadCRC     bool // flip a CRC byte in read answers
	AnswerHalt         bool // ACK an encrypted halt instead of staying silent
	AnswerValueOperand bool // ACK the operand frame of value commands
	ShortTagResponse   bool // send a 3-byte {at}
	CRCValidNonce      bool // append a CRC to the plain tag nonce
}

type tagState int

const (
	stateIdle tagState = iota // unselected, waits for activation
	stateActive
	stateAuthWaitReader
	stateAuthenticated
	stateWriteWaitData
	stateValueWaitOperand
	stateHalted
)

func (s tagState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateActive:
		return "active"
	case stateAuthWaitReader:
		return "auth-wait-reader"
	case stateAuthenticated:
		return "authenticated"
	case stateWriteWaitData:
		return "write-wait-data"
	case stateValueWaitOperand:
		return "value-wait-operand"
	case stateHalted:
		return "halted"
	}
	return "unknown"
}

const (
	nak = 0x04 // invalid operation
)

// Tag is a simulated card. It is not safe for concurrent use.
type Tag struct {
	UID  []byte
	ATQA [2]byte
	SAK  byte

	Faults Faults

	// Backdoor enables the 0x64/0x65 authentication commands.
	Backdoor bool
	// BackdoorKey is used by backdoor authentication. Nil means the sector key.
	BackdoorKey *mfclassic.Key
	// NonceSource returns the next tag nonce. Nil uses the tag's PRNG.
	NonceSource func() uint32

	cardType mfclassic.CardType
	blocks   []mfclassic.Block
	present  bool

	state   tagState
	cipher  *crypto1.Crypto1
	prng    uint32
	nt      uint32
	sector  int
	pending int
	opcode  byte

	transfer      int32
	transferAddr  byte
	transferValid bool

	lastNr [4]byte
}

// New returns a present tag of the given type with every sector set to
// the factory key and transport access bits.
func New(cardType mfclassic.CardType, uid []byte) *Tag {
	t := &Tag{
		UID:      append([]byte(nil), uid...),
		ATQA:     [2]byte{0x04, 0x00},
		SAK:      sakFor(cardType),
		cardType: cardType,
		blocks:   make([]mfclassic.Block, cardType.Blocks()),
		present:  true,
		cipher:   crypto1.New(),
		prng:     0x01200145,
	}
	if len(uid) == 7 {
		t.ATQA = [2]byte{0x44, 0x00}
	}
	trailer := mfclassic.SectorTrailer{
		KeyA:   mfclassic.DefaultKey,
		Access: mfclassic.DefaultAccess,
		KeyB:   mfclassic.DefaultKey,
	}.Block()
	for s := 0; s < cardType.Sectors(); s++ {
		t.blocks[mfclassic.TrailerBlock(s)] = trailer
	}
	if len(uid) == 4 {
		copy(t.blocks[0][:4], uid)
		t.blocks[0][4] = uid[0] ^ uid[1] ^ uid[2] ^ uid[3]
		t.blocks[0][5] = t.SAK
		t.blocks[0][6], t.blocks[0][7] = t.ATQA[0], t.ATQA[1]
	} else {
		copy(t.blocks[0][:], uid)
	}
	return t
}

func sakFor(cardType mfclassic.CardType) byte {
	switch cardType {
	case mfclassic.CardTypeMini:
		return 0x09
	case mfclassic.CardType4K:
		return 0x18
	default:
		return 0x08
	}
}

// CardType returns the memory layout of the tag.
func (t *Tag) CardType() mfclassic.CardType { return t.cardType }

// Block returns the stored content of a block.
func (t *Tag) Block(n int) mfclassic.Block { return t.blocks[n] }

// SetBlock overwrites a block.
func (t *Tag) SetBlock(n int, b mfclassic.Block) { t.blocks[n] = b }

// SetSectorKeys rewrites both keys of a sector trailer.
func (t *Tag) SetSectorKeys(sector int, keyA, keyB mfclassic.Key) {
	n := mfclassic.TrailerBlock(sector)
	tr := mfclassic.ParseSectorTrailer(t.blocks[n])
	tr.KeyA, tr.KeyB = keyA, keyB
	t.blocks[n] = tr.Block()
}

// Data returns the tag identity as a reader sees it after activation.
func (t *Tag) Data() iso14443a.Data {
	return iso14443a.Data{UID: append([]byte(nil), t.UID...), ATQA: t.ATQA, SAK: t.SAK}
}

// LastReaderNonce returns nr of the last handshake the tag accepted.
func (t *Tag) LastReaderNonce() [4]byte { return t.lastNr }

// Present reports whether the tag is in the field.
func (t *Tag) Present() bool { return t.present }

// Remove takes the tag out of the field.
func (t *Tag) Remove() {
	t.present = false
	t.state = stateIdle
}

// Insert puts the tag back into the field, unselected.
func (t *Tag) Insert() {
	t.present = true
	t.state = stateIdle
}

// Activate is WUPA followed by anticollision and select. It also wakes a
// halted tag.
func (t *Tag) Activate() bool {
	if !t.present {
		return false
	}
	t.state = stateActive
	return true
}

// Authenticated reports whether a session is open on the tag side.
func (t *Tag) Authenticated() bool {
	return t.state == stateAuthenticated
}

// Halted reports whether the tag received a halt.
func (t *Tag) Halted() bool { return t.state == stateHalted }

func (t *Tag) nextNonce() uint32 {
	if t.NonceSource != nil {
		return t.NonceSource()
	}
	for {
		t.prng = crypto1.PRNGSuccessor(t.prng, 160)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], t.prng)
		// A nonce whose last two bytes happen to be the CRC_A of the
		// first two would look CRC-terminated to the reader.
		if crc := iso14443a.CRC(b[:2]); crc[0] != b[2] || crc[1] != b[3] {
			return t.prng
		}
	}
}

// Handle processes one frame as received on the air and returns the answer,
// or nil when the tag stays silent.
func (t *Tag) Handle(frame *iso14443a.Buffer) *iso14443a.Buffer {
	if !t.present {
		return nil
	}
	switch t.state {
	case stateIdle, stateHalted:
		return nil
	case stateActive:
		return t.handlePlain(frame)
	case stateAuthWaitReader:
		return t.handleReaderNonce(frame)
	default:
		return t.handleEncrypted(frame)
	}
}

func (t *Tag) handlePlain(frame *iso14443a.Buffer) *iso14443a.Buffer {
	if !frame.CheckParity() || !iso14443a.CheckCRC(frame) {
		t.state = stateIdle
		return nil
	}
	cmd := frame.Bytes()
	if len(cmd) != 4 {
		t.state = stateIdle
		return nil
	}
	switch cmd[0] {
	case mfclassic.CmdHalt:
		if cmd[1] == 0x00 {
			t.state = stateHalted
			return nil
		}
	case mfclassic.CmdAuthA, mfclassic.CmdAuthB, mfclassic.CmdBackdoorAuthA, mfclassic.CmdBackdoorAuthB:
		key, ok := t.authKey(cmd[0], cmd[1])
		if !ok {
			break
		}
		t.nt = t.nextNonce()
		t.cipher.LoadTagNonce(key.Uint64(), t.cuid(), t.nt)
		t.sector = mfclassic.SectorOfBlock(int(cmd[1]))
		t.state = stateAuthWaitReader

		out := iso14443a.NewBuffer(6)
		var nt [4]byte
		binary.BigEndian.PutUint32(nt[:], t.nt)
		out.CopyBytes(nt[:])
		if t.Faults.CRCValidNonce {
			iso14443a.AppendCRC(out)
		}
		return out
	}
	t.state = stateIdle
	return nil
}

func (t *Tag) handleReaderNonce(frame *iso14443a.Buffer) *iso14443a.Buffer {
	nr, ar, ok := t.cipher.DecryptReaderNonce(frame)
	if !ok || ar != crypto1.SuccessorBytes(t.nt, 32) {
		slog.Debug("tagsim reader response rejected", "parity", ok)
		t.state = stateIdle
		return nil
	}
	t.lastNr = nr
	t.state = stateAuthenticated

	at := crypto1.SuccessorBytes(t.nt, 64)
	plain := iso14443a.NewBuffer(4)
	plain.CopyBytes(at[:])
	out := iso14443a.NewBuffer(4)
	t.cipher.Encrypt(plain, out)
	if t.Faults.ShortTagResponse {
		out.SetSizeBits(24)
	}
	return out
}

func (t *Tag) handleEncrypted(frame *iso14443a.Buffer) *iso14443a.Buffer {
	plain := iso14443a.NewBuffer(frame.SizeBytes())
	t.cipher.Decrypt(frame, plain)
	if !plain.CheckParity() || !iso14443a.CheckCRC(plain) {
		slog.Debug("tagsim dropping frame", "state", t.state.String())
		t.state = stateIdle
		return nil
	}
	iso14443a.TrimCRC(plain)
	cmd := plain.Bytes()

	switch t.state {
	case stateWriteWaitData:
		if len(cmd) != mfclassic.BlockSize {
			return t.nak()
		}
		copy(t.blocks[t.pending][:], cmd)
		t.state = stateAuthenticated
		return t.ack()
	case stateValueWaitOperand:
		return t.applyValue(cmd)
	}

	if len(cmd) != 2 {
		return t.nak()
	}
	block := int(cmd[1])
	switch cmd[0] {
	case mfclassic.CmdHalt:
		if cmd[1] != 0x00 {
			return t.nak()
		}
		if t.Faults.AnswerHalt {
			return t.ack()
		}
		t.state = stateHalted
		return nil
	case mfclassic.CmdAuthA, mfclassic.CmdAuthB, mfclassic.CmdBackdoorAuthA, mfclassic.CmdBackdoorAuthB:
		key, ok := t.authKey(cmd[0], cmd[1])
		if !ok {
			return t.nak()
		}
		t.nt = t.nextNonce()
		t.sector = mfclassic.SectorOfBlock(block)
		t.state = stateAuthWaitReader
		out := iso14443a.NewBuffer(4)
		t.cipher.EncryptTagNonce(key.Uint64(), t.cuid(), t.nt, out)
		return out
	case mfclassic.CmdRead:
		if !t.inSector(block) {
			return t.nak()
		}
		data := t.blocks[block]
		if mfclassic.IsSectorTrailer(block) {
			for i := 0; i < 6; i++ {
				data[i] = 0
			}
		}
		resp := iso14443a.NewBuffer(mfclassic.BlockSize + 2)
		resp.CopyBytes(data[:])
		iso14443a.AppendCRC(resp)
		if t.Faults.CorruptReadCRC {
			last := resp.SizeBytes() - 1
			v := resp.Byte(last) ^ 0xFF
			resp.SetByteWithParity(last, v, iso14443a.OddParity8(v))
		}
		return t.encrypt(resp)
	case mfclassic.CmdWrite:
		if !t.inSector(block) {
			return t.nak()
		}
		t.pending = block
		t.state = stateWriteWaitData
		return t.ack()
	case mfclassic.CmdIncrement, mfclassic.CmdDecrement, mfclassic.CmdRestore:
		if !t.inSector(block) || !mfclassic.IsValueBlock(t.blocks[block]) {
			return t.nak()
		}
		t.pending = block
		t.opcode = cmd[0]
		t.state = stateValueWaitOperand
		return t.ack()
	case mfclassic.CmdTransfer:
		if !t.inSector(block) || !t.transferValid {
			return t.nak()
		}
		t.blocks[block] = mfclassic.EncodeValueBlock(t.transfer, t.transferAddr)
		return t.ack()
	}
	return t.nak()
}

func (t *Tag) applyValue(cmd []byte) *iso14443a.Buffer {
	if len(cmd) != 4 {
		return t.nak()
	}
	operand := int32(binary.LittleEndian.Uint32(cmd))
	value, addr, err := mfclassic.DecodeValueBlock(t.blocks[t.pending])
	if err != nil {
		return t.nak()
	}
	switch t.opcode {
	case mfclassic.CmdIncrement:
		value += operand
	case mfclassic.CmdDecrement:
		value -= operand
	}
	t.transfer = value
	t.transferAddr = addr
	t.transferValid = true
	t.state = stateAuthenticated
	if t.Faults.AnswerValueOperand {
		return t.ack()
	}
	return nil
}

func (t *Tag) authKey(cmd, block byte) (mfclassic.Key, bool) {
	if int(block) >= len(t.blocks) {
		return mfclassic.Key{}, false
	}
	backdoor := cmd == mfclassic.CmdBackdoorAuthA || cmd == mfclassic.CmdBackdoorAuthB
	if backdoor && !t.Backdoor {
		return mfclassic.Key{}, false
	}
	tr := mfclassic.ParseSectorTrailer(t.blocks[mfclassic.TrailerBlock(mfclassic.SectorOfBlock(int(block)))])
	if backdoor && t.BackdoorKey != nil {
		return *t.BackdoorKey, true
	}
	if cmd == mfclassic.CmdAuthB || cmd == mfclassic.CmdBackdoorAuthB {
		return tr.KeyB, true
	}
	return tr.KeyA, true
}

func (t *Tag) inSector(block int) bool {
	return block < len(t.blocks) && mfclassic.SectorOfBlock(block) == t.sector
}

func (t *Tag) cuid() uint32 {
	d := t.Data()
	return d.CUID()
}

func (t *Tag) ack() *iso14443a.Buffer {
	plain := iso14443a.NewBuffer(1)
	plain.SetBits(mfclassic.ACK, 4)
	return t.encrypt(plain)
}

// nak answers an invalid operation and drops the session.
func (t *Tag) nak() *iso14443a.Buffer {
	plain := iso14443a.NewBuffer(1)
	plain.SetBits(nak, 4)
	out := t.encrypt(plain)
	t.state = stateIdle
	return out
}

func (t *Tag) encrypt(plain *iso14443a.Buffer) *iso14443a.Buffer {
	out := iso14443a.NewBuffer(plain.SizeBytes())
	t.cipher.Encrypt(plain, out)
	return out
}
