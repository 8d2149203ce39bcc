package iso14443a

// CRC computes the ISO/IEC 14443-3 type A CRC of data, least significant
// byte first as it is sent on the air.
func CRC(data []byte) [2]byte {
	crc := uint32(0x6363)
	for _, bt := range data {
		bt ^= uint8(crc & 0xff)
		bt ^= bt << 4
		bt32 := uint32(bt)
		crc = (crc >> 8) ^ (bt32 << 8) ^ (bt32 << 3) ^ (bt32 >> 4)
	}
	return [2]byte{byte(crc & 0xff), byte((crc >> 8) & 0xff)}
}

// AppendCRC appends the CRC_A of the current contents of buf.
func AppendCRC(buf *Buffer) {
	crc := CRC(buf.Bytes())
	buf.AppendByte(crc[0])
	buf.AppendByte(crc[1])
}

// CheckCRC reports whether the last two bytes of buf are the CRC_A of the
// bytes before them. Frames shorter than three bytes never pass.
func CheckCRC(buf *Buffer) bool {
	n := buf.SizeBytes()
	if n < 3 || buf.SizeBits()%8 != 0 {
		return false
	}
	data := buf.Bytes()
	crc := CRC(data[:n-2])
	return data[n-2] == crc[0] && data[n-1] == crc[1]
}

// TrimCRC drops the trailing two CRC bytes.
func TrimCRC(buf *Buffer) {
	if buf.SizeBytes() < 2 {
		return
	}
	buf.SetSizeBits((buf.SizeBytes() - 2) * 8)
}
