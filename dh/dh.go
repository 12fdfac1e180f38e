// dh.go - Diffie-Hellman key agreement over the protocol's fixed prime.
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

// Package dh implements the fixed-prime Diffie-Hellman exchange used to
// derive the DH-RC2-128 channel cipher's shared key. There is no bignum
// library in the wider Go ecosystem shaped for a single fixed prime and a
// 512-bit private exponent, so this wraps math/big directly rather than
// hand-rolling modular arithmetic.
package dh

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// PrivateKeyBits is the size of a generated private exponent.
const PrivateKeyBits = 512

// primeBytes is the protocol's fixed 512-bit DH modulus.
var primeBytes = [64]byte{
	0xCF, 0x84, 0xAF, 0xCE, 0x86, 0xDD, 0xFA, 0x52,
	0x7F, 0x13, 0x6D, 0x10, 0x35, 0x75, 0x28, 0xEE,
	0xFB, 0xA0, 0xAF, 0xEF, 0x80, 0x8F, 0x29, 0x17,
	0x4E, 0x3B, 0x6A, 0x9E, 0x97, 0x00, 0x01, 0x71,
	0x7C, 0x8F, 0x10, 0x6C, 0x41, 0xC1, 0x61, 0xA6,
	0xCE, 0x91, 0x05, 0x7B, 0x34, 0xDA, 0x62, 0xCB,
	0xB8, 0x7B, 0xFD, 0xC1, 0xB3, 0x5C, 0x1B, 0x91,
	0x0F, 0xEA, 0x72, 0x24, 0x9D, 0x56, 0x6B, 0x9F,
}

// base is the fixed generator g.
const base = 3

var (
	prime     *big.Int
	generator *big.Int
)

func init() {
	prime = new(big.Int).SetBytes(primeBytes[:])
	generator = big.NewInt(base)
}

// ErrPeerKeyOutOfRange is returned when a peer's public value is not a
// member of the expected residue range.
var ErrPeerKeyOutOfRange = errors.New("dh: peer public key out of range")

// Keypair is a single-use Diffie-Hellman private/public pair.
type Keypair struct {
	private *big.Int
	public  *big.Int
}

// Generate produces a fresh Keypair with a PrivateKeyBits-sized private
// exponent.
func Generate() (*Keypair, error) {
	priv, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), PrivateKeyBits))
	if err != nil {
		return nil, err
	}
	pub := new(big.Int).Exp(generator, priv, prime)
	return &Keypair{private: priv, public: pub}, nil
}

// PublicBytes returns the public value, big-endian, zero-padded to the
// prime's byte length.
func (k *Keypair) PublicBytes() []byte {
	return fixedBytes(k.public, len(primeBytes))
}

// SharedSecret computes the shared secret with a peer's public value,
// given as big-endian bytes. The result is zero-padded to the prime's
// byte length.
func (k *Keypair) SharedSecret(peerPublic []byte) ([]byte, error) {
	peer := new(big.Int).SetBytes(peerPublic)
	if peer.Sign() <= 0 || peer.Cmp(prime) >= 0 {
		return nil, ErrPeerKeyOutOfRange
	}
	shared := new(big.Int).Exp(peer, k.private, prime)
	return fixedBytes(shared, len(primeBytes)), nil
}

func fixedBytes(v *big.Int, size int) []byte {
	b := v.Bytes()
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
