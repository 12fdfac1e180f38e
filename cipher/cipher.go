// cipher.go - channel cipher framework: interface, registry, and policy
// selection.
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

// Package cipher provides the polymorphic per-channel cipher used in
// place of the protocol's original class hierarchy and global registry
// (see Design Notes): a Class describes a cipher kind, and NewState
// returns a fresh, channel-scoped Cipher instance that carries its own
// key and IV state.
package cipher

import (
	"github.com/sametime-go/stcore/constants"
	"github.com/sametime-go/stcore/wire"
	logging "gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("sametime/cipher")

// Cipher is a channel-scoped encryption engine. A new instance is created
// per channel by Class.NewState; it is never shared across channels.
type Cipher interface {
	// Offer builds this cipher's entry in a channel-create's offer list.
	Offer() (wire.EncItem, error)

	// Offered is invoked on the accepting side when this cipher was
	// selected from a peer's offer, given that offer entry's Info.
	Offered(info wire.Opaque, localLoginID, remoteLoginID string) error

	// Accept builds this cipher's entry in a channel-accept response,
	// after Offered has run.
	Accept() (wire.EncItem, error)

	// Accepted is invoked on the offering side once the peer accepts
	// this cipher, given the accept entry's Info.
	Accepted(info wire.Opaque, localLoginID, remoteLoginID string) error

	// Encrypt and Decrypt transform channel-send payloads once both
	// sides have completed key setup.
	Encrypt(plaintext []byte) []byte
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Class describes a cipher kind: its wire identity, relative strength,
// and how to instantiate a fresh per-channel Cipher.
type Class struct {
	ID       uint16
	Policy   uint16
	Name     string
	Desc     string
	NewState func() Cipher
}

// Registry indexes the cipher classes a session is willing to offer or
// accept, replacing the protocol's original process-global registry (see
// Design Notes) with one instance per session.
type Registry struct {
	classes []Class
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a Class. Classes should be registered once at session
// construction; selection ranks by Policy, not registration order.
func (r *Registry) Register(c Class) {
	r.classes = append(r.classes, c)
}

// ByID returns the Class with the given wire id, or false if none is
// registered.
func (r *Registry) ByID(id uint16) (Class, bool) {
	for _, c := range r.classes {
		if c.ID == id {
			return c, true
		}
	}
	return Class{}, false
}

// ByPolicy returns the Class with the given policy value, or false if
// none is registered.
func (r *Registry) ByPolicy(policy uint16) (Class, bool) {
	for _, c := range r.classes {
		if c.Policy == policy {
			return c, true
		}
	}
	return Class{}, false
}

// Classes returns every registered Class, in registration order.
func (r *Registry) Classes() []Class {
	out := make([]Class, len(r.classes))
	copy(out, r.classes)
	return out
}

// best returns the highest-Policy registered Class, or false if the
// Registry is empty.
func (r *Registry) best() (Class, bool) {
	if len(r.classes) == 0 {
		return Class{}, false
	}
	best := r.classes[0]
	for _, c := range r.classes[1:] {
		if c.Policy > best.Policy {
			best = c
		}
	}
	return best, true
}

// SelectOnAccept picks the Class to use when offeredPolicy arrives on an
// incoming channel-create:
//   - PolicyNone selects no cipher.
//   - PolicyAny/PolicyWhatever selects the registry's strongest cipher.
//   - any other value selects the exact matching policy if registered,
//     falling back to the strongest cipher (with a warning) otherwise.
func (r *Registry) SelectOnAccept(offeredPolicy uint16) (Class, bool) {
	switch constants.ChannelPolicy(offeredPolicy) {
	case constants.PolicyNone:
		return Class{}, false
	case constants.PolicyAny, constants.PolicyWhatever:
		return r.best()
	default:
		if c, ok := r.ByPolicy(offeredPolicy); ok {
			return c, true
		}
		best, ok := r.best()
		if ok {
			log.Warningf("no exact cipher match for policy 0x%x, falling back to %s", offeredPolicy, best.Name)
		}
		return best, ok
	}
}
