// rc2_cipher.go - the RC2-40 channel cipher.
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
	"github.com/sametime-go/stcore/rc2"
	"github.com/sametime-go/stcore/wire"
)

const (
	// RC2ClassID is the wire identity of the RC2-40 cipher class.
	RC2ClassID uint16 = 0x0000
	// RC2ClassPolicy is the RC2-40 cipher class's relative strength.
	RC2ClassPolicy uint16 = 0x1000
)

// rc2LoginKeyLen is the number of login-id bytes folded into each
// direction's RC2 key.
const rc2LoginKeyLen = 5

// NewRC2Class returns the RC2-40 Class descriptor.
func NewRC2Class() Class {
	return Class{
		ID:       RC2ClassID,
		Policy:   RC2ClassPolicy,
		Name:     "RC2",
		Desc:     "RC2/40 encryption",
		NewState: func() Cipher { return &rc2Cipher{} },
	}
}

// rc2Cipher derives its keys directly from both parties' login ids: no
// material is exchanged on the wire beyond the bare cipher selection.
type rc2Cipher struct {
	outKey [64]uint16
	inKey  [64]uint16
	outIV  [8]byte
	inIV   [8]byte
}

func loginKey(loginID string) []byte {
	b := []byte(loginID)
	if len(b) > rc2LoginKeyLen {
		b = b[:rc2LoginKeyLen]
	}
	return b
}

func (c *rc2Cipher) setup(localLoginID, remoteLoginID string) {
	c.outKey = rc2.ExpandKey(loginKey(localLoginID))
	c.inKey = rc2.ExpandKey(loginKey(remoteLoginID))
	c.outIV = rc2.NormalIV()
	c.inIV = rc2.NormalIV()
}

func (c *rc2Cipher) Offer() (wire.EncItem, error) {
	return wire.EncItem{ID: RC2ClassID}, nil
}

func (c *rc2Cipher) Offered(info wire.Opaque, localLoginID, remoteLoginID string) error {
	c.setup(localLoginID, remoteLoginID)
	return nil
}

func (c *rc2Cipher) Accept() (wire.EncItem, error) {
	return wire.EncItem{ID: RC2ClassID}, nil
}

func (c *rc2Cipher) Accepted(info wire.Opaque, localLoginID, remoteLoginID string) error {
	c.setup(localLoginID, remoteLoginID)
	return nil
}

func (c *rc2Cipher) Encrypt(plaintext []byte) []byte {
	return rc2.CBCEncrypt(c.outKey, &c.outIV, plaintext)
}

func (c *rc2Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return rc2.CBCDecrypt(c.inKey, &c.inIV, ciphertext)
}
