// rc2.go - non-standard RC2 key expansion, block cipher, and CBC chaining.
// Copyright (C) 2017  Yawning Angel.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package rc2 implements the community protocol's RC2 variant: its key
// expansion is not RFC 2268 compliant (though it reuses RFC 2268's
// permutation table), so crypto/rc2-style implementations are not
// interchangeable with it. Byte-for-byte compatibility with the wire
// format depends on reproducing the expansion exactly as below.
package rc2

// pt is the RFC 2268 permutation table, reused (but not the expansion
// algorithm built around it) by this cipher.
var pt = [256]byte{
	0xD9, 0x78, 0xF9, 0xC4, 0x19, 0xDD, 0xB5, 0xED,
	0x28, 0xE9, 0xFD, 0x79, 0x4A, 0xA0, 0xD8, 0x9D,
	0xC6, 0x7E, 0x37, 0x83, 0x2B, 0x76, 0x53, 0x8E,
	0x62, 0x4C, 0x64, 0x88, 0x44, 0x8B, 0xFB, 0xA2,
	0x17, 0x9A, 0x59, 0xF5, 0x87, 0xB3, 0x4F, 0x13,
	0x61, 0x45, 0x6D, 0x8D, 0x09, 0x81, 0x7D, 0x32,
	0xBD, 0x8F, 0x40, 0xEB, 0x86, 0xB7, 0x7B, 0x0B,
	0xF0, 0x95, 0x21, 0x22, 0x5C, 0x6B, 0x4E, 0x82,
	0x54, 0xD6, 0x65, 0x93, 0xCE, 0x60, 0xB2, 0x1C,
	0x73, 0x56, 0xC0, 0x14, 0xA7, 0x8C, 0xF1, 0xDC,
	0x12, 0x75, 0xCA, 0x1F, 0x3B, 0xBE, 0xE4, 0xD1,
	0x42, 0x3D, 0xD4, 0x30, 0xA3, 0x3C, 0xB6, 0x26,
	0x6F, 0xBF, 0x0E, 0xDA, 0x46, 0x69, 0x07, 0x57,
	0x27, 0xF2, 0x1D, 0x9B, 0xBC, 0x94, 0x43, 0x03,
	0xF8, 0x11, 0xC7, 0xF6, 0x90, 0xEF, 0x3E, 0xE7,
	0x06, 0xC3, 0xD5, 0x2F, 0xC8, 0x66, 0x1E, 0xD7,
	0x08, 0xE8, 0xEA, 0xDE, 0x80, 0x52, 0xEE, 0xF7,
	0x84, 0xAA, 0x72, 0xAC, 0x35, 0x4D, 0x6A, 0x2A,
	0x96, 0x1A, 0xD2, 0x71, 0x5A, 0x15, 0x49, 0x74,
	0x4B, 0x9F, 0xD0, 0x5E, 0x04, 0x18, 0xA4, 0xEC,
	0xC2, 0xE0, 0x41, 0x6E, 0x0F, 0x51, 0xCB, 0xCC,
	0x24, 0x91, 0xAF, 0x50, 0xA1, 0xF4, 0x70, 0x39,
	0x99, 0x7C, 0x3A, 0x85, 0x23, 0xB8, 0xB4, 0x7A,
	0xFC, 0x02, 0x36, 0x5B, 0x25, 0x55, 0x97, 0x31,
	0x2D, 0x5D, 0xFA, 0x98, 0xE3, 0x8A, 0x92, 0xAE,
	0x05, 0xDF, 0x29, 0x10, 0x67, 0x6C, 0xBA, 0xC9,
	0xD3, 0x00, 0xE6, 0xCF, 0xE1, 0x9E, 0xA8, 0x2C,
	0x63, 0x16, 0x01, 0x3F, 0x58, 0xE2, 0x89, 0xA9,
	0x0D, 0x38, 0x34, 0x1B, 0xAB, 0x33, 0xFF, 0xB0,
	0xBB, 0x48, 0x0C, 0x5F, 0xB9, 0xB1, 0xCD, 0x2E,
	0xC5, 0xF3, 0xDB, 0x47, 0xE5, 0xA5, 0x9C, 0x77,
	0x0A, 0xA6, 0x20, 0x68, 0xFE, 0x7F, 0xC1, 0xAD,
}

// BlockSize is the cipher's block size in bytes.
const BlockSize = 8

// normalIV is the fixed initialization vector used to start every CBC
// chain.
var normalIV = [8]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

// NormalIV returns a fresh copy of the fixed starting IV.
func NormalIV() [8]byte {
	return normalIV
}

// ExpandKey derives the 64-word (128-byte) expanded key schedule from an
// arbitrary-length input key, following the non-standard expansion this
// protocol actually uses (not RFC 2268's). The key must not be empty;
// passing one is a programming error and panics.
func ExpandKey(key []byte) [64]uint16 {
	if len(key) == 0 {
		panic("rc2: BUG: ExpandKey called with an empty key")
	}
	var tmp [128]byte
	n := len(key)
	if n > 128 {
		n = 128
	}
	copy(tmp[:], key[:n])

	for i := 0; n < 128; i++ {
		tmp[n] = pt[(int(tmp[n-1])+int(tmp[i]))&0xff]
		n++
	}
	tmp[0] = pt[tmp[0]&0xff]

	var ekey [64]uint16
	for i, j := 0, 0; i < 64; i++ {
		ekey[i] = uint16(tmp[j]) | uint16(tmp[j+1])<<8
		j += 2
	}
	return ekey
}

// EncryptBlock encrypts a single 8-byte block in place.
func EncryptBlock(ekey [64]uint16, block []byte) {
	a := int(block[7])<<8 | int(block[6])
	b := int(block[5])<<8 | int(block[4])
	c := int(block[3])<<8 | int(block[2])
	d := int(block[1])<<8 | int(block[0])

	for i, j := 0, 0; i < 16; i++ {
		d += (c & (a ^ 0xffff)) + (b & a) + int(ekey[j])
		j++
		d = ((d << 1) | (d >> 15 & 0x0001)) & 0xffff

		c += (b & (d ^ 0xffff)) + (a & d) + int(ekey[j])
		j++
		c = ((c << 2) | (c >> 14 & 0x0003)) & 0xffff

		b += (a & (c ^ 0xffff)) + (d & c) + int(ekey[j])
		j++
		b = ((b << 3) | (b >> 13 & 0x0007)) & 0xffff

		a += (d & (b ^ 0xffff)) + (c & b) + int(ekey[j])
		j++
		a = ((a << 5) | (a >> 11 & 0x001f)) & 0xffff

		if i == 4 || i == 10 {
			d += int(ekey[a&0x003f])
			d &= 0xffff
			c += int(ekey[d&0x003f])
			c &= 0xffff
			b += int(ekey[c&0x003f])
			b &= 0xffff
			a += int(ekey[b&0x003f])
			a &= 0xffff
		}
	}

	block[0] = byte(d)
	block[1] = byte(d >> 8)
	block[2] = byte(c)
	block[3] = byte(c >> 8)
	block[4] = byte(b)
	block[5] = byte(b >> 8)
	block[6] = byte(a)
	block[7] = byte(a >> 8)
}

// DecryptBlock decrypts a single 8-byte block in place.
func DecryptBlock(ekey [64]uint16, block []byte) {
	a := int(block[7])<<8 | int(block[6])
	b := int(block[5])<<8 | int(block[4])
	c := int(block[3])<<8 | int(block[2])
	d := int(block[1])<<8 | int(block[0])

	for i, j := 16, 63; i > 0; i-- {
		idx := i - 1
		a = ((a << 11) | (a >> 5 & 0x07ff)) & 0xffff
		a -= (d & (b ^ 0xffff)) + (c & b) + int(ekey[j])
		a &= 0xffff
		j--

		b = ((b << 13) | (b >> 3 & 0x1fff)) & 0xffff
		b -= (a & (c ^ 0xffff)) + (d & c) + int(ekey[j])
		b &= 0xffff
		j--

		c = ((c << 14) | (c >> 2 & 0x3fff)) & 0xffff
		c -= (b & (d ^ 0xffff)) + (a & d) + int(ekey[j])
		c &= 0xffff
		j--

		d = ((d << 15) | (d >> 1 & 0x7fff)) & 0xffff
		d -= (c & (a ^ 0xffff)) + (b & a) + int(ekey[j])
		d &= 0xffff
		j--

		if idx == 5 || idx == 11 {
			a -= int(ekey[b&0x003f])
			a &= 0xffff
			b -= int(ekey[c&0x003f])
			b &= 0xffff
			c -= int(ekey[d&0x003f])
			c &= 0xffff
			d -= int(ekey[a&0x003f])
			d &= 0xffff
		}
	}

	block[0] = byte(d)
	block[1] = byte(d >> 8)
	block[2] = byte(c)
	block[3] = byte(c >> 8)
	block[4] = byte(b)
	block[5] = byte(b >> 8)
	block[6] = byte(a)
	block[7] = byte(a >> 8)
}

// CBCEncrypt pads plaintext PKCS5-style (always adding a full block when
// the input is already block-aligned) and encrypts it in CBC mode,
// updating iv to the final ciphertext block in place.
func CBCEncrypt(ekey [64]uint16, iv *[8]byte, plaintext []byte) []byte {
	pad := 8 - len(plaintext)%8
	out := make([]byte, len(plaintext)+pad)
	copy(out, plaintext)
	for i := len(plaintext); i < len(out); i++ {
		out[i] = byte(pad)
	}

	chain := *iv
	for off := 0; off < len(out); off += 8 {
		block := out[off : off+8]
		for i := 0; i < 8; i++ {
			block[i] ^= chain[i]
		}
		EncryptBlock(ekey, block)
		copy(chain[:], block)
	}
	*iv = chain
	return out
}

// CBCDecrypt decrypts CBC-mode ciphertext and strips its PKCS5-style
// padding, updating iv to the final ciphertext block (pre-decryption) in
// place. It returns an error if the padding is not well-formed.
func CBCDecrypt(ekey [64]uint16, iv *[8]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%8 != 0 {
		return nil, ErrInvalidLength
	}
	out := make([]byte, len(ciphertext))
	copy(out, ciphertext)

	chain := *iv
	for off := 0; off < len(out); off += 8 {
		block := out[off : off+8]
		var nextChain [8]byte
		copy(nextChain[:], block)
		DecryptBlock(ekey, block)
		for i := 0; i < 8; i++ {
			block[i] ^= chain[i]
		}
		chain = nextChain
	}
	*iv = chain

	pad := int(out[len(out)-1])
	if pad == 0 || pad > len(out) {
		return nil, ErrBadPadding
	}
	return out[:len(out)-pad], nil
}
