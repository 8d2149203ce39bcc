/*
Package mfclassic drives MIFARE Classic Mini, 1K and 4K cards over an
ISO14443-3A link: nonce retrieval, CRYPTO1 mutual authentication (plain and
nested), encrypted block read and write, value block arithmetic and halt.

A Poller owns one card session. It is created after the link backend has
activated the card and is not safe for concurrent use: every operation
consumes keystream, so two operations must never interleave on the same
Poller.

# Session States

	Idle   no usable keystream; only nonce retrieval, authentication and
	       halt are accepted
	Passed the handshake completed; encrypted commands are accepted

A successful Auth moves the session to Passed. Any failing encrypted
command, a new nonce request, a failed authentication or a halt moves it
back to Idle. A halt that the card answers leaves the state untouched.

# Operation: Authenticate (0x60 Key A, 0x61 Key B)

Backdoor variants use 0x64 and 0x65.

	Reader: 60 <block> <CRC_A(2)>      plain, standard parity
	Tag:    <nt(4)>                    no CRC, the link reports a CRC failure
	Reader: {nr(4)} {ar(4)}            encrypted, encrypted parity
	Tag:    {at(4)}                    encrypted

The cipher is loaded from key, cuid xor nt. After {at} the reader consumes
one more keystream word. nt, nr, {ar} and {at} are reported in the
AuthContext as seen on the wire.

Nested authentication sends the auth command encrypted under the live
keystream. The tag answers with {nt} encrypted under the new key, with a
valid frame outcome. Nonce harvesting stops right after {nt}.

Fail states:

	CRC-valid plain nonce      protocol error
	nonce not 4 bytes          protocol error
	no answer to {nr}{ar}      timeout (wrong key on genuine cards)
	{at} not 4 bytes           authentication error

Every failed authentication sends exactly one plain HLTA (50 00) and resets
the link state so the card can be reselected.

# Operation: Read (0x30)

	Reader: {30 <block> CRC_A}
	Tag:    {data(16) CRC_A}           18 bytes, CRC checked after decryption

# Operation: Write (0xA0)

	Reader: {A0 <block> CRC_A}
	Tag:    {ACK}                      4 bits, 0xA
	Reader: {data(16) CRC_A}
	Tag:    {ACK}

# Operation: Decrement / Increment / Restore (0xC0 / 0xC1 / 0xC2)

	Reader: {C1 <block> CRC_A}
	Tag:    {ACK}
	Reader: {operand(4, little-endian) CRC_A}
	Tag:    (silence)                  an answer is a protocol error

The result stays in the tag's transfer register until Transfer.

# Operation: Transfer (0xB0)

	Reader: {B0 <block> CRC_A}
	Tag:    {ACK}

# Operation: Halt (0x50)

	Reader: {50 00 CRC_A}
	Tag:    (silence)                  an answer is a protocol error

# Frame Wait Time

Every exchange uses FWT = 60000 carrier cycles (about 4.4 ms at 13.56 MHz).
*/
package mfclassic
