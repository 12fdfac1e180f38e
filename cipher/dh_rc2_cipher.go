// dh_rc2_cipher.go - the DH-RC2-128 channel cipher.
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

package cipher

import (
	"errors"

	"github.com/sametime-go/stcore/dh"
	"github.com/sametime-go/stcore/rc2"
	"github.com/sametime-go/stcore/wire"
)

const (
	// DHRC2ClassID is the wire identity of the DH-RC2-128 cipher class.
	DHRC2ClassID uint16 = 0x0001
	// DHRC2ClassPolicy is the DH-RC2-128 cipher class's relative strength.
	DHRC2ClassPolicy uint16 = 0x2000

	// dhSharedKeyTail is the number of trailing shared-secret bytes
	// expanded into the RC2-128 key.
	dhSharedKeyTail = 16
)

// ErrNoSharedSecret is returned if Encrypt/Decrypt run before the DH
// exchange has produced a shared secret.
var ErrNoSharedSecret = errors.New("cipher: dh-rc2: shared secret not yet established")

// NewDHRC2Class returns the DH-RC2-128 Class descriptor.
func NewDHRC2Class() Class {
	return Class{
		ID:       DHRC2ClassID,
		Policy:   DHRC2ClassPolicy,
		Name:     "DH RC2",
		Desc:     "Diffie-Hellman negotiated RC2/128 encryption",
		NewState: func() Cipher { return &dhRC2Cipher{} },
	}
}

// dhRC2Cipher negotiates a shared secret via Diffie-Hellman and expands
// its last dhSharedKeyTail bytes into a single symmetric key shared by
// both directions.
type dhRC2Cipher struct {
	local *dh.Keypair
	key   [64]uint16
	ready bool
	outIV [8]byte
	inIV  [8]byte
}

func (c *dhRC2Cipher) establish(peerPublic []byte) error {
	shared, err := c.local.SharedSecret(peerPublic)
	if err != nil {
		return err
	}
	tail := shared
	if len(tail) > dhSharedKeyTail {
		tail = tail[len(tail)-dhSharedKeyTail:]
	}
	c.key = rc2.ExpandKey(tail)
	c.outIV = rc2.NormalIV()
	c.inIV = rc2.NormalIV()
	c.ready = true
	return nil
}

func (c *dhRC2Cipher) Offer() (wire.EncItem, error) {
	kp, err := dh.Generate()
	if err != nil {
		return wire.EncItem{}, err
	}
	c.local = kp
	return wire.EncItem{ID: DHRC2ClassID, Info: wire.Opaque(kp.PublicBytes())}, nil
}

func (c *dhRC2Cipher) Offered(info wire.Opaque, localLoginID, remoteLoginID string) error {
	kp, err := dh.Generate()
	if err != nil {
		return err
	}
	c.local = kp
	return c.establish(info)
}

func (c *dhRC2Cipher) Accept() (wire.EncItem, error) {
	if c.local == nil {
		return wire.EncItem{}, errors.New("cipher: dh-rc2: Accept called before Offered")
	}
	return wire.EncItem{ID: DHRC2ClassID, Info: wire.Opaque(c.local.PublicBytes())}, nil
}

func (c *dhRC2Cipher) Accepted(info wire.Opaque, localLoginID, remoteLoginID string) error {
	return c.establish(info)
}

func (c *dhRC2Cipher) Encrypt(plaintext []byte) []byte {
	if !c.ready {
		return nil
	}
	return rc2.CBCEncrypt(c.key, &c.outIV, plaintext)
}

func (c *dhRC2Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if !c.ready {
		return nil, ErrNoSharedSecret
	}
	return rc2.CBCDecrypt(c.key, &c.inIV, ciphertext)
}
