// channel.go - channel state machine and cipher negotiation.
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

// Package channel implements a single multiplexed channel: its state
// machine (closed -> pending -> open -> closed/error) and its per-channel
// cipher negotiation and encrypted send/receive path.
package channel

import (
	"errors"
	"fmt"

	"github.com/sametime-go/stcore/cipher"
	"github.com/sametime-go/stcore/constants"
	"github.com/sametime-go/stcore/wire"
	logging "gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("sametime/channel")

// State is a channel's place in its lifecycle.
type State int

const (
	StateClosed State = iota
	StatePending
	StateOpen
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrWrongState is a programming-contract violation: an operation was
// attempted while the channel was not in the state it requires.
var ErrWrongState = errors.New("channel: operation invalid in current state")

// Channel is one multiplexed, optionally encrypted stream within a
// session.
type Channel struct {
	ID       uint32
	Incoming bool // true if the server assigned ID, false if we allocated it

	State State

	Service     uint32
	Protocol    uint32
	ProtocolVer uint32

	// Remote is the full login record of the channel's peer: for an
	// incoming channel this is the creator's embedded Login if the
	// channel-create carried one (zero value otherwise); for an
	// outgoing channel the caller fills in whatever it already knows
	// about the target before offering.
	Remote wire.LoginInfo

	OfferedPolicy  uint16
	AcceptedPolicy uint16
	Cipher         cipher.Cipher

	// OfferedItems stashes an incoming channel-create's cipher offer
	// list until the acceptor decides whether to claim the channel.
	OfferedItems []wire.EncItem

	// OfferedInfo/AcceptedInfo carry the service-specific addtl-info
	// opaque exchanged alongside channel-create/-accept; the cipher
	// negotiation above is independent of this payload.
	OfferedInfo  wire.Opaque
	AcceptedInfo wire.Opaque

	CloseCode uint32
	CloseInfo wire.Opaque

	// OnIncoming receives every decrypted channel-send payload once the
	// channel is open. Nil means the payload is dropped (no service has
	// claimed this channel's traffic).
	OnIncoming func(kind uint16, payload []byte)

	pending map[uint16]cipher.Cipher
}

// New returns a Channel in the closed state; it becomes pending when a
// channel-create is sent (outgoing) or received (incoming).
func New(id uint32, incoming bool) *Channel {
	return &Channel{ID: id, Incoming: incoming, State: StateClosed}
}

// MarkPending transitions a closed channel to pending, after a
// channel-create has been sent or received for it. It panics if the
// channel has already left closed: that is a caller bug.
func (c *Channel) MarkPending() {
	if c.State != StateClosed {
		panic("channel: BUG: MarkPending called outside state closed")
	}
	c.State = StatePending
}

// Open transitions a pending channel to open. It panics if the channel is
// not pending: that is a caller bug, not a runtime condition.
func (c *Channel) Open() {
	if c.State != StatePending {
		panic("channel: BUG: Open called outside state pending")
	}
	c.State = StateOpen
}

// Close transitions the channel to its terminal state, recording the
// reason: error for a non-zero code, closed otherwise. Closing an
// already-terminal channel is a silent no-op, guarding against handler
// recursion when a close arrives for a channel already tearing itself
// down.
func (c *Channel) Close(code uint32, info wire.Opaque) {
	if c.State == StateClosed || c.State == StateError {
		return
	}
	if code != constants.ErrSuccess {
		c.State = StateError
	} else {
		c.State = StateClosed
	}
	c.CloseCode = code
	c.CloseInfo = info
}

// BuildOffer prepares this channel's outgoing cipher offer: desiredPolicy
// as requested by the caller, backed down to PolicyNone if reg has no
// registered cipher classes. It stashes one fresh Cipher instance per
// registered class, keyed by class id, to be resumed by Accepted once the
// peer answers.
func (c *Channel) BuildOffer(reg *cipher.Registry, desiredPolicy uint16) (policy uint16, items []wire.EncItem, err error) {
	classes := reg.Classes()
	if desiredPolicy == uint16(constants.PolicyNone) || len(classes) == 0 {
		if desiredPolicy != uint16(constants.PolicyNone) {
			log.Debugf("channel %d: backing policy down to none, no ciphers to offer", c.ID)
		}
		c.OfferedPolicy = uint16(constants.PolicyNone)
		return c.OfferedPolicy, nil, nil
	}

	c.pending = make(map[uint16]cipher.Cipher, len(classes))
	items = make([]wire.EncItem, 0, len(classes))
	for _, cl := range classes {
		state := cl.NewState()
		item, offerErr := state.Offer()
		if offerErr != nil {
			log.Warningf("channel %d: cipher %s declined to offer: %v", c.ID, cl.Name, offerErr)
			continue
		}
		c.pending[cl.ID] = state
		items = append(items, item)
	}
	if len(items) == 0 {
		c.OfferedPolicy = uint16(constants.PolicyNone)
		return c.OfferedPolicy, nil, nil
	}
	c.OfferedPolicy = desiredPolicy
	return c.OfferedPolicy, items, nil
}

// Accepted finishes cipher setup on the offering side once the peer's
// channel-accept arrives carrying acceptedPolicy and, when that policy is
// not none, the accepted cipher item.
func (c *Channel) Accepted(acceptedPolicy uint16, item wire.EncItem, localLoginID, remoteLoginID string) error {
	if acceptedPolicy == uint16(constants.PolicyNone) {
		c.AcceptedPolicy = uint16(constants.PolicyNone)
		c.pending = nil
		return nil
	}
	state, ok := c.pending[item.ID]
	if !ok {
		return fmt.Errorf("channel %d: accept named unoffered cipher id 0x%x", c.ID, item.ID)
	}
	if err := state.Accepted(item.Info, localLoginID, remoteLoginID); err != nil {
		return err
	}
	c.Cipher = state
	c.AcceptedPolicy = acceptedPolicy
	c.pending = nil
	return nil
}

// AcceptOffer runs on the accepting side of an incoming channel-create:
// it selects a cipher from the offered items per the policy ranking,
// finishes its key setup, and returns the accepted policy and EncItem to
// send back in the channel-accept (PolicyNone and a zero EncItem if no
// cipher was selected). Offer entries naming a cipher id the registry
// does not know are skipped; negotiation continues with the rest.
func (c *Channel) AcceptOffer(reg *cipher.Registry, localLoginID, remoteLoginID string) (acceptedPolicy uint16, item wire.EncItem, err error) {
	offered := cipher.NewRegistry()
	byID := make(map[uint16]wire.EncItem, len(c.OfferedItems))
	for _, it := range c.OfferedItems {
		cl, ok := reg.ByID(it.ID)
		if !ok {
			log.Warningf("channel %d: skipping unknown offered cipher id 0x%x", c.ID, it.ID)
			continue
		}
		offered.Register(cl)
		byID[it.ID] = it
	}

	cl, ok := offered.SelectOnAccept(c.OfferedPolicy)
	if !ok {
		c.AcceptedPolicy = uint16(constants.PolicyNone)
		return c.AcceptedPolicy, wire.EncItem{}, nil
	}

	state := cl.NewState()
	if err := state.Offered(byID[cl.ID].Info, localLoginID, remoteLoginID); err != nil {
		return 0, wire.EncItem{}, err
	}
	item, err = state.Accept()
	if err != nil {
		return 0, wire.EncItem{}, err
	}
	c.Cipher = state
	c.AcceptedPolicy = cl.Policy
	return c.AcceptedPolicy, item, nil
}

// Send prepares an application payload for transmission. The negotiated
// policy decides the path: none sends plaintext, whatever sends plaintext
// unless the caller asked for encryption, and everything else always
// encrypts. It panics if the channel is not open.
func (c *Channel) Send(payload []byte, encrypt bool) (out []byte, encrypted bool) {
	if c.State != StateOpen {
		panic("channel: BUG: Send called outside state open")
	}
	if c.AcceptedPolicy == uint16(constants.PolicyNone) ||
		(c.AcceptedPolicy == uint16(constants.PolicyWhatever) && !encrypt) {
		return payload, false
	}
	return c.Cipher.Encrypt(payload), true
}

// Receive reverses Send: it decrypts payload if encrypted is set, and
// returns it unchanged otherwise.
func (c *Channel) Receive(payload []byte, encrypted bool) ([]byte, error) {
	if c.State != StateOpen {
		return nil, ErrWrongState
	}
	if encrypted {
		if c.Cipher == nil {
			return nil, fmt.Errorf("channel %d: received encrypted payload with no negotiated cipher", c.ID)
		}
		return c.Cipher.Decrypt(payload)
	}
	return payload, nil
}
