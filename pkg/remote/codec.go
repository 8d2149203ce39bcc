package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// Request opcodes.
const (
	opStandard byte = 1 + iota
	opRaw
	opCustomParity
	opData
	opSetIdle
	opActivate
)

// Response status codes.
const (
	statusOK byte = iota
	statusNotPresent
	statusColResFailed
	statusCommunication
	statusWrongCRC
	statusTimeout
)

// maxFrameBytes bounds a frame on the wire. The largest MIFARE Classic
// frame is 18 bytes.
const maxFrameBytes = 256

var errFrameTooLarge = errors.New("frame too large")

func opName(op byte) string {
	switch op {
	case opStandard:
		return "standard"
	case opRaw:
		return "raw"
	case opCustomParity:
		return "custom-parity"
	case opData:
		return "data"
	case opSetIdle:
		return "set-idle"
	case opActivate:
		return "activate"
	}
	return fmt.Sprintf("op(%d)", op)
}

// statusOf maps a link error to its wire status.
func statusOf(err error) byte {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, iso14443a.ErrNotPresent):
		return statusNotPresent
	case errors.Is(err, iso14443a.ErrColResFailed):
		return statusColResFailed
	case errors.Is(err, iso14443a.ErrWrongCRC):
		return statusWrongCRC
	case errors.Is(err, iso14443a.ErrTimeout):
		return statusTimeout
	default:
		return statusCommunication
	}
}

// statusError is the inverse of statusOf.
func statusError(status byte) error {
	switch status {
	case statusOK:
		return nil
	case statusNotPresent:
		return iso14443a.ErrNotPresent
	case statusColResFailed:
		return iso14443a.ErrColResFailed
	case statusWrongCRC:
		return iso14443a.ErrWrongCRC
	case statusTimeout:
		return iso14443a.ErrTimeout
	case statusCommunication:
		return iso14443a.ErrCommunication
	default:
		return fmt.Errorf("%w: unknown remote status %d", iso14443a.ErrCommunication, status)
	}
}

// A frame on the wire is its size in bits (u16, big endian), the data
// bytes and one parity byte per data byte.
func appendFrame(dst []byte, b *iso14443a.Buffer) ([]byte, error) {
	if b == nil {
		return binary.BigEndian.AppendUint16(dst, 0), nil
	}
	if b.SizeBytes() > maxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, b.SizeBytes())
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(b.SizeBits()))
	dst = append(dst, b.Bytes()...)
	return append(dst, b.ParityBits()...), nil
}

func readFrame(r io.Reader, b *iso14443a.Buffer) error {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	bits := int(binary.BigEndian.Uint16(hdr[:]))
	n := (bits + 7) / 8
	if n > maxFrameBytes {
		return fmt.Errorf("%w: %d bits", errFrameTooLarge, bits)
	}
	buf := make([]byte, 2*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	b.CopyWithParity(buf[:n], buf[n:])
	b.SetSizeBits(bits)
	return nil
}

// Request: op (u8), fwt (u32, big endian), frame.
func writeRequest(w io.Writer, op byte, fwt uint32, b *iso14443a.Buffer) error {
	msg := make([]byte, 0, 7+2*maxFrameBytes)
	msg = append(msg, op)
	msg = binary.BigEndian.AppendUint32(msg, fwt)
	msg, err := appendFrame(msg, b)
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	return err
}

func readRequest(r io.Reader, b *iso14443a.Buffer) (op byte, fwt uint32, err error) {
	var hdr [5]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, err
	}
	if err = readFrame(r, b); err != nil {
		return 0, 0, err
	}
	return hdr[0], binary.BigEndian.Uint32(hdr[1:]), nil
}

// Response: status (u8), frame.
func writeResponse(w io.Writer, status byte, b *iso14443a.Buffer) error {
	msg := make([]byte, 0, 3+2*maxFrameBytes)
	msg = append(msg, status)
	msg, err := appendFrame(msg, b)
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	return err
}

func readResponse(r io.Reader, b *iso14443a.Buffer) (byte, error) {
	var status [1]byte
	if _, err := io.ReadFull(r, status[:]); err != nil {
		return 0, err
	}
	if err := readFrame(r, b); err != nil {
		return 0, err
	}
	return status[0], nil
}

// Card identity travels as a frame: ATQA (2), SAK (1), UID.
func encodeData(d *iso14443a.Data, b *iso14443a.Buffer) {
	b.Reset()
	if d == nil {
		return
	}
	b.AppendByte(d.ATQA[0])
	b.AppendByte(d.ATQA[1])
	b.AppendByte(d.SAK)
	for _, v := range d.UID {
		b.AppendByte(v)
	}
}

func decodeData(b *iso14443a.Buffer) (iso14443a.Data, error) {
	var d iso14443a.Data
	p := b.Bytes()
	if len(p) == 0 {
		return d, nil
	}
	if len(p) < 4 {
		return d, fmt.Errorf("%w: short card data % X", iso14443a.ErrCommunication, p)
	}
	d.ATQA = [2]byte{p[0], p[1]}
	d.SAK = p[2]
	d.UID = append([]byte(nil), p[3:]...)
	return d, nil
}
