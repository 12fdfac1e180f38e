// cipher_test.go - cipher framework and registry tests.
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
	"testing"

	"github.com/sametime-go/stcore/constants"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRC2Class())
	r.Register(NewDHRC2Class())
	return r
}

func TestSelectOnAcceptNone(t *testing.T) {
	r := newTestRegistry()
	_, ok := r.SelectOnAccept(uint16(constants.PolicyNone))
	require.False(t, ok)
}

func TestSelectOnAcceptAnyPicksStrongest(t *testing.T) {
	r := newTestRegistry()
	c, ok := r.SelectOnAccept(uint16(constants.PolicyAny))
	require.True(t, ok)
	require.Equal(t, DHRC2ClassID, c.ID)
}

func TestSelectOnAcceptWhateverPicksStrongest(t *testing.T) {
	r := newTestRegistry()
	c, ok := r.SelectOnAccept(uint16(constants.PolicyWhatever))
	require.True(t, ok)
	require.Equal(t, DHRC2ClassID, c.ID)
}

func TestSelectOnAcceptExactMatch(t *testing.T) {
	r := newTestRegistry()
	c, ok := r.SelectOnAccept(RC2ClassPolicy)
	require.True(t, ok)
	require.Equal(t, RC2ClassID, c.ID)
}

func TestSelectOnAcceptFallsBackToStrongest(t *testing.T) {
	r := newTestRegistry()
	c, ok := r.SelectOnAccept(0x4242)
	require.True(t, ok)
	require.Equal(t, DHRC2ClassID, c.ID)
}

func TestRegistryLookups(t *testing.T) {
	r := newTestRegistry()
	c, ok := r.ByID(RC2ClassID)
	require.True(t, ok)
	require.Equal(t, RC2ClassPolicy, c.Policy)

	c, ok = r.ByPolicy(DHRC2ClassPolicy)
	require.True(t, ok)
	require.Equal(t, DHRC2ClassID, c.ID)

	_, ok = r.ByID(0xffff)
	require.False(t, ok)
}

func TestRC2CipherRoundTrip(t *testing.T) {
	offerer := NewRC2Class().NewState()
	accepter := NewRC2Class().NewState()

	offerItem, err := offerer.Offer()
	require.NoError(t, err)

	require.NoError(t, accepter.Offered(offerItem.Info, "remote-login", "local-login"))
	acceptItem, err := accepter.Accept()
	require.NoError(t, err)
	require.NoError(t, offerer.Accepted(acceptItem.Info, "local-login", "remote-login"))

	plaintext := []byte("channel payload")
	ct := offerer.Encrypt(plaintext)
	pt, err := accepter.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestDHRC2CipherRoundTrip(t *testing.T) {
	offerer := NewDHRC2Class().NewState()
	accepter := NewDHRC2Class().NewState()

	offerItem, err := offerer.Offer()
	require.NoError(t, err)

	require.NoError(t, accepter.Offered(offerItem.Info, "", ""))
	acceptItem, err := accepter.Accept()
	require.NoError(t, err)
	require.NoError(t, offerer.Accepted(acceptItem.Info, "", ""))

	plaintext := []byte("dh-negotiated channel payload")
	ct := offerer.Encrypt(plaintext)
	pt, err := accepter.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}
