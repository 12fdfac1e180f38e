// rc2_test.go - RC2 primitive tests.
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

package rc2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandKeyDeterministic(t *testing.T) {
	key := []byte("communitypassword")
	a := ExpandKey(key)
	b := ExpandKey(key)
	require.Equal(t, a, b)
}

func TestExpandKeyTruncatesLongKeys(t *testing.T) {
	long := bytes.Repeat([]byte{0x42}, 200)
	a := ExpandKey(long)
	b := ExpandKey(long[:128])
	require.Equal(t, a, b)
}

func TestBlockRoundTrip(t *testing.T) {
	ekey := ExpandKey([]byte("shortkey"))
	block := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	orig := append([]byte(nil), block...)

	EncryptBlock(ekey, block)
	require.NotEqual(t, orig, block)

	DecryptBlock(ekey, block)
	require.Equal(t, orig, block)
}

func TestCBCRoundTripUnaligned(t *testing.T) {
	ekey := ExpandKey([]byte("a session key"))
	iv := NormalIV()
	plaintext := []byte("hello sametime community protocol")

	ct := CBCEncrypt(ekey, &iv, plaintext)
	require.True(t, len(ct) > len(plaintext))
	require.Zero(t, len(ct)%8)

	iv2 := NormalIV()
	pt, err := CBCDecrypt(ekey, &iv2, ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestCBCAlignedInputStillPadsAFullBlock(t *testing.T) {
	ekey := ExpandKey([]byte("eight byte align"))
	iv := NormalIV()
	plaintext := []byte("12345678") // exactly one block

	ct := CBCEncrypt(ekey, &iv, plaintext)
	require.Len(t, ct, len(plaintext)+BlockSize)

	iv2 := NormalIV()
	pt, err := CBCDecrypt(ekey, &iv2, ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestCBCIVChainsAcrossCalls(t *testing.T) {
	ekey := ExpandKey([]byte("chained-iv-key"))
	iv := NormalIV()

	ct1 := CBCEncrypt(ekey, &iv, []byte("first message"))
	ivAfterFirst := iv
	ct2 := CBCEncrypt(ekey, &iv, []byte("second message"))
	require.NotEqual(t, ivAfterFirst, iv)
	require.NotEqual(t, ct1, ct2)
}

func TestCBCDecryptRejectsBadLength(t *testing.T) {
	ekey := ExpandKey([]byte("key"))
	iv := NormalIV()
	_, err := CBCDecrypt(ekey, &iv, []byte("notablock"))
	require.Error(t, err)
}

func TestCBCSiegeVector(t *testing.T) {
	ekey := ExpandKey([]byte("siege"))
	iv := NormalIV()
	plaintext := []byte("hello\x00")

	ct := CBCEncrypt(ekey, &iv, plaintext)
	require.Len(t, ct, 8)

	iv2 := NormalIV()
	pt, err := CBCDecrypt(ekey, &iv2, ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)

	// same key, IV, and plaintext must produce identical ciphertext
	iv3 := NormalIV()
	require.Equal(t, ct, CBCEncrypt(ekey, &iv3, plaintext))
}

func TestExpandKeyShortKeysDiffer(t *testing.T) {
	a := ExpandKey([]byte("siege"))
	b := ExpandKey([]byte("siegf"))
	require.NotEqual(t, a, b)
}
