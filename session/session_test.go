// session_test.go - session state machine tests.
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

package session

import (
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/sametime-go/stcore/channel"
	"github.com/sametime-go/stcore/cipher"
	"github.com/sametime-go/stcore/clock"
	"github.com/sametime-go/stcore/config"
	"github.com/sametime-go/stcore/constants"
	"github.com/sametime-go/stcore/wire"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		AuthUser:       "alice",
		AuthCommunity:  "example",
		AuthType:       constants.AuthPlain,
		AuthPassword:   "hunter2",
		ClientType:     constants.ClientTypeMeanwhile,
		ClientHost:     "client.example.com",
		ClientVerMajor: constants.ProtocolVerMajor,
		ClientVerMinor: constants.ProtocolVerMinor,
	}
}

func testSession(cfg *config.Config) *Session {
	reg := cipher.NewRegistry()
	reg.Register(cipher.NewRC2Class())
	reg.Register(cipher.NewDHRC2Class())
	return New(cfg, clock.New(clockwork.NewFakeClock()), reg)
}

// frame renders a server-side message the way it would arrive off the
// transport: 4-byte big-endian length prefix, then the body.
func frame(m interface{ Put(*wire.PutBuffer) }) []byte {
	p := wire.NewPutBuffer()
	m.Put(p)
	body := p.Bytes()
	out := make([]byte, 4+len(body))
	out[0] = byte(len(body) >> 24)
	out[1] = byte(len(body) >> 16)
	out[2] = byte(len(body) >> 8)
	out[3] = byte(len(body))
	copy(out[4:], body)
	return out
}

func serverHandshakeAck() *wire.HandshakeAck {
	return &wire.HandshakeAck{
		Header:       wire.Header{Type: constants.MsgHandshakeAck},
		MajorVersion: constants.ProtocolVerMajor,
		MinorVersion: constants.ProtocolVerMinor,
		Magic:        0x00000011,
	}
}

func serverLoginAck() *wire.LoginAck {
	return &wire.LoginAck{
		Header: wire.Header{Type: constants.MsgLoginAck},
		LoginInfo: wire.LoginInfo{
			Identity:   wire.Identity{User: "alice", Community: "example"},
			LoginID:    "alice-session-1",
			ClientType: constants.ClientTypeMeanwhile,
		},
		Status: wire.Status{Kind: constants.StatusActive},
	}
}

// startSession drives a session through handshake and login to started.
func startSession(t *testing.T, s *Session) {
	s.Start()
	s.Feed(frame(serverHandshakeAck()))
	s.Feed(frame(serverLoginAck()))
	require.Equal(t, StateStarted, s.State)
	s.FlushAll()
}

// parseFlushed strips the length prefix off a flushed frame and returns
// the decoded header plus a GetBuffer at the body.
func parseFlushed(t *testing.T, f []byte) (wire.Header, *wire.GetBuffer) {
	require.True(t, len(f) >= 4)
	bodyLen := int(f[0])<<24 | int(f[1])<<16 | int(f[2])<<8 | int(f[3])
	require.Len(t, f[4:], bodyLen)
	g := wire.NewGetBuffer(f[4:])
	return wire.GetHeader(g), g
}

func TestHandshakeHappyPath(t *testing.T) {
	s := testSession(testConfig())

	var states []State
	s.OnStateChange = func(old, new State) { states = append(states, new) }

	s.Start()
	require.Equal(t, StateHandshake, s.State)

	f, ok := s.Flush()
	require.True(t, ok)
	hdr, g := parseFlushed(t, f)
	require.Equal(t, constants.MsgHandshake, hdr.Type)
	var hs wire.Handshake
	hs.Header = hdr
	hs.Get(g)
	require.NoError(t, g.Err())
	require.Equal(t, uint16(0x001e), hs.MajorVersion)
	require.Equal(t, uint16(0x001d), hs.MinorVersion)
	require.Equal(t, constants.ClientTypeMeanwhile, hs.ClientType)
	require.Equal(t, "client.example.com", hs.LocalHost)

	s.Feed(frame(serverHandshakeAck()))
	require.Equal(t, StateLogin, s.State)
	require.Equal(t, []State{StateStarting, StateHandshake, StateHandshakeAck, StateLogin}, states)

	f, ok = s.Flush()
	require.True(t, ok)
	hdr, g = parseFlushed(t, f)
	require.Equal(t, constants.MsgLogin, hdr.Type)
	var lm wire.LoginMsg
	lm.Header = hdr
	lm.Get(g)
	require.NoError(t, g.Err())
	require.Equal(t, constants.ClientTypeMeanwhile, lm.ClientType)
	require.Equal(t, "alice", lm.Name)
	require.Equal(t, constants.AuthPlain, lm.AuthType)

	// plain auth data is just the length-prefixed password
	ag := wire.NewGetBuffer(lm.AuthData)
	require.Equal(t, "hunter2", ag.GetString())
}

func TestLoginAckDeliversStatusAndPrivacy(t *testing.T) {
	s := testSession(testConfig())
	var gotStatus *wire.Status
	var gotPrivacy *wire.Privacy
	s.OnStatus = func(st wire.Status) { gotStatus = &st }
	s.OnPrivacy = func(p wire.Privacy) { gotPrivacy = &p }

	startSession(t, s)
	require.NotNil(t, gotStatus)
	require.Equal(t, constants.StatusActive, gotStatus.Kind)
	require.NotNil(t, gotPrivacy)
	require.Equal(t, "alice-session-1", s.Login.LoginID)
}

func TestChannelIDAllocation(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	var ids []uint32
	for i := 0; i < 3; i++ {
		ch, err := s.OpenChannel(0x1000, 0x1001, 1, wire.Identity{User: "bob"}, uint16(constants.PolicyNone), nil, nil)
		require.NoError(t, err)
		ids = append(ids, ch.ID)
	}
	require.Equal(t, []uint32{1, 2, 3}, ids)
}

func TestOpenChannelRequiresStarted(t *testing.T) {
	s := testSession(testConfig())
	_, err := s.OpenChannel(1, 1, 1, wire.Identity{User: "bob"}, uint16(constants.PolicyNone), nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrWrongState))
}

func TestChannelClosePropagation(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	ch, err := s.OpenChannel(0x1000, 0x1001, 1, wire.Identity{User: "bob"}, uint16(constants.PolicyNone), nil, nil)
	require.NoError(t, err)
	require.Equal(t, channel.StatePending, ch.State)

	s.Feed(frame(&wire.ChannelAccept{
		Header:    wire.Header{Type: constants.MsgChannelAccept, Channel: ch.ID},
		EncPolicy: uint16(constants.PolicyNone),
	}))
	require.Equal(t, channel.StateOpen, ch.State)

	s.Feed(frame(&wire.ChannelClose{
		Header: wire.Header{Type: constants.MsgChannelClose, Channel: ch.ID},
		Reason: 0x80000001,
	}))
	require.Equal(t, channel.StateError, ch.State)
	require.Equal(t, uint32(0x80000001), ch.CloseCode)
	require.Equal(t, StateStarted, s.State)
	require.NotContains(t, s.Channels, ch.ID)
}

func TestMasterChannelCloseStopsSession(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	s.Feed(frame(&wire.ChannelClose{
		Header: wire.Header{Type: constants.MsgChannelClose, Channel: constants.MasterChannelID},
		Reason: constants.ErrConnectionBroken,
	}))
	require.Equal(t, StateStopped, s.State)
	require.Equal(t, constants.ErrConnectionBroken, s.StopInfo.Code)
}

func TestIncomingChannelDefaultReject(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	s.Feed(frame(&wire.ChannelCreate{
		Header:    wire.Header{Type: constants.MsgChannelCreate, Channel: 0x80000001},
		Target:    wire.Identity{User: "alice"},
		Service:   0x1000,
		EncPolicy: uint16(constants.PolicyNone),
	}))

	require.NotContains(t, s.Channels, uint32(0x80000001))
	f, ok := s.Flush()
	require.True(t, ok)
	hdr, g := parseFlushed(t, f)
	require.Equal(t, constants.MsgChannelClose, hdr.Type)
	var cl wire.ChannelClose
	cl.Header = hdr
	cl.Get(g)
	require.Equal(t, constants.ErrServiceNoSupport, cl.Reason)
}

func TestIncomingChannelClaimAndAccept(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	var claimed *channel.Channel
	s.OnIncomingChannel = func(ch *channel.Channel) bool {
		claimed = ch
		return true
	}

	// an incoming create offering RC2 under PolicyAny
	s.Feed(frame(&wire.ChannelCreate{
		Header:      wire.Header{Type: constants.MsgChannelCreate, Channel: 0x80000002},
		Target:      wire.Identity{User: "alice"},
		Service:     0x1000,
		CreatorFlag: true,
		CreatorLogin: wire.LoginInfo{
			Identity: wire.Identity{User: "bob"},
			LoginID:  "bob-session-7",
		},
		EncPolicy: uint16(constants.PolicyAny),
		EncItems:  []wire.EncItem{{ID: 0x0000}},
		EncExtra:  uint16(constants.PolicyAny),
	}))

	require.NotNil(t, claimed)
	require.Equal(t, channel.StatePending, claimed.State)
	require.Equal(t, "bob-session-7", claimed.Remote.LoginID)

	require.NoError(t, s.AcceptChannel(claimed, nil))
	require.Equal(t, channel.StateOpen, claimed.State)
	require.Equal(t, cipher.RC2ClassPolicy, claimed.AcceptedPolicy)

	f, ok := s.Flush()
	require.True(t, ok)
	hdr, g := parseFlushed(t, f)
	require.Equal(t, constants.MsgChannelAccept, hdr.Type)
	var acc wire.ChannelAccept
	acc.Header = hdr
	acc.Get(g)
	require.Equal(t, cipher.RC2ClassPolicy, acc.EncPolicy)
	require.Equal(t, cipher.RC2ClassID, acc.EncItem.ID)
}

func TestFlushPrefersSessionTraffic(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	ch, err := s.OpenChannel(0x1000, 0x1001, 1, wire.Identity{User: "bob"}, uint16(constants.PolicyNone), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.SenseService(0x1000))

	// the sense-service was queued after the channel-create, but session
	// traffic drains first
	f, ok := s.Flush()
	require.True(t, ok)
	hdr, _ := parseFlushed(t, f)
	require.Equal(t, constants.MsgSenseService, hdr.Type)

	f, ok = s.Flush()
	require.True(t, ok)
	hdr, _ = parseFlushed(t, f)
	require.Equal(t, constants.MsgChannelCreate, hdr.Type)
	require.Equal(t, ch.ID, hdr.Channel)

	_, ok = s.Flush()
	require.False(t, ok)
}

func TestFlushRoundRobinAcrossChannels(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	a, err := s.OpenChannel(0x1000, 0x1001, 1, wire.Identity{User: "bob"}, uint16(constants.PolicyNone), nil, nil)
	require.NoError(t, err)
	b, err := s.OpenChannel(0x1000, 0x1001, 1, wire.Identity{User: "carol"}, uint16(constants.PolicyNone), nil, nil)
	require.NoError(t, err)
	s.FlushAll() // drain the two channel-creates

	for _, ch := range []*channel.Channel{a, b} {
		s.Feed(frame(&wire.ChannelAccept{
			Header:    wire.Header{Type: constants.MsgChannelAccept, Channel: ch.ID},
			EncPolicy: uint16(constants.PolicyNone),
		}))
	}

	// a has three sends queued, b has one; fairness interleaves them
	s.SendOnChannel(a, 1, []byte("a1"), false)
	s.SendOnChannel(a, 1, []byte("a2"), false)
	s.SendOnChannel(a, 1, []byte("a3"), false)
	s.SendOnChannel(b, 1, []byte("b1"), false)

	var order []uint32
	for {
		f, ok := s.Flush()
		if !ok {
			break
		}
		hdr, _ := parseFlushed(t, f)
		order = append(order, hdr.Channel)
	}
	require.Equal(t, []uint32{a.ID, b.ID, a.ID, a.ID}, order)
}

func TestChannelSendDeliversDecryptedPayload(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	var claimed *channel.Channel
	s.OnIncomingChannel = func(ch *channel.Channel) bool { claimed = ch; return true }

	s.Feed(frame(&wire.ChannelCreate{
		Header:    wire.Header{Type: constants.MsgChannelCreate, Channel: 0x80000003},
		Service:   0x1000,
		EncPolicy: uint16(constants.PolicyNone),
	}))
	require.NotNil(t, claimed)
	require.NoError(t, s.AcceptChannel(claimed, nil))

	var gotKind uint16
	var gotPayload []byte
	claimed.OnIncoming = func(kind uint16, payload []byte) {
		gotKind = kind
		gotPayload = payload
	}

	s.Feed(frame(&wire.ChannelSend{
		Header:  wire.Header{Type: constants.MsgChannelSend, Channel: claimed.ID},
		Kind:    0x0064,
		Payload: wire.Opaque("message text"),
	}))
	require.Equal(t, uint16(0x0064), gotKind)
	require.Equal(t, []byte("message text"), gotPayload)
}

func TestLoginRedirectAndForceLogin(t *testing.T) {
	s := testSession(testConfig())
	s.Start()
	s.Feed(frame(serverHandshakeAck()))
	require.Equal(t, StateLogin, s.State)

	s.Feed(frame(&wire.LoginRedirect{
		Header: wire.Header{Type: constants.MsgLoginRedirect},
		Host:   "better.example.com",
	}))
	require.Equal(t, StateLoginRedirect, s.State)
	require.Equal(t, "better.example.com", s.RedirectHost())

	s.FlushAll()
	s.ForceLogin()
	require.Equal(t, StateLoginForce, s.State)

	f, ok := s.Flush()
	require.True(t, ok)
	hdr, _ := parseFlushed(t, f)
	require.Equal(t, constants.MsgLoginForce, hdr.Type)

	s.Feed(frame(serverLoginAck()))
	require.Equal(t, StateStarted, s.State)
}

func TestDHAuthDowngradesWithoutServerKey(t *testing.T) {
	cfg := testConfig()
	cfg.AuthType = constants.AuthDHRC2
	s := testSession(cfg)
	s.Start()
	s.FlushAll()

	// ack carries no DH public key: the login must fall back to RC2
	s.Feed(frame(serverHandshakeAck()))

	f, ok := s.Flush()
	require.True(t, ok)
	hdr, g := parseFlushed(t, f)
	require.Equal(t, constants.MsgLogin, hdr.Type)
	var lm wire.LoginMsg
	lm.Header = hdr
	lm.Get(g)
	require.Equal(t, constants.AuthRC2, lm.AuthType)

	// RC2 auth data is a key opaque followed by a ciphertext opaque
	ag := wire.NewGetBuffer(lm.AuthData)
	key := ag.GetOpaque()
	ct := ag.GetOpaque()
	require.NoError(t, ag.Err())
	require.Len(t, key, 5)
	require.NotEmpty(t, ct)
	require.Zero(t, len(ct)%8)
}

func TestDHAuthUsesServerKeyAndMagic(t *testing.T) {
	cfg := testConfig()
	cfg.AuthType = constants.AuthDHRC2
	s := testSession(cfg)
	s.Start()
	s.FlushAll()

	ack := serverHandshakeAck()
	ack.Data = wire.Opaque{ // a syntactically valid public value
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	}
	s.Feed(frame(ack))

	f, ok := s.Flush()
	require.True(t, ok)
	hdr, g := parseFlushed(t, f)
	require.Equal(t, constants.MsgLogin, hdr.Type)
	var lm wire.LoginMsg
	lm.Header = hdr
	lm.Get(g)
	require.Equal(t, constants.AuthDHRC2, lm.AuthType)

	ag := wire.NewGetBuffer(lm.AuthData)
	require.Equal(t, uint16(0x0001), ag.GetUint16())
	localPub := ag.GetOpaque()
	ct := ag.GetOpaque()
	require.NoError(t, ag.Err())
	require.NotEmpty(t, localPub)
	require.NotEmpty(t, ct)
	require.Zero(t, len(ct)%8)
}

func TestStopDiscardsQueuesAndClosesChannels(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	ch, err := s.OpenChannel(0x1000, 0x1001, 1, wire.Identity{User: "bob"}, uint16(constants.PolicyNone), nil, nil)
	require.NoError(t, err)

	s.Stop(constants.ErrSuccess, nil)
	require.Equal(t, StateStopped, s.State)
	require.False(t, s.Pending())
	require.Empty(t, s.Channels)
	require.Equal(t, channel.StateClosed, ch.State)

	_, ok := s.Flush()
	require.False(t, ok)
}

func TestStopWithErrorCode(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)
	s.Stop(constants.ErrConnectionBroken, nil)
	require.Equal(t, constants.ErrConnectionBroken, s.StopInfo.Code)
}

func TestKeepaliveIsSingleByte(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)
	s.SendKeepalive()
	f, ok := s.Flush()
	require.True(t, ok)
	require.Equal(t, []byte{0x80}, f)
}

func TestParseFailureDuringLoginStopsSession(t *testing.T) {
	s := testSession(testConfig())
	s.Start()
	// a truncated handshake-ack body: header only, no version fields
	p := wire.NewPutBuffer()
	(&wire.Header{Type: constants.MsgHandshakeAck}).Put(p)
	s.Feed(frame4(p.Bytes()))
	require.Equal(t, StateStopped, s.State)
	require.Equal(t, constants.ErrFailure, s.StopInfo.Code)
}

func TestMalformedChannelMessageIsDropped(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)
	// a channel-send with a truncated payload opaque
	p := wire.NewPutBuffer()
	(&wire.Header{Type: constants.MsgChannelSend, Channel: 1}).Put(p)
	p.PutUint16(0x0064)
	p.PutUint32(100) // claims 100 bytes, provides none
	s.Feed(frame4(p.Bytes()))
	require.Equal(t, StateStarted, s.State)
}

func TestUnknownMessageTypeIsSkipped(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)
	p := wire.NewPutBuffer()
	(&wire.Header{Type: 0x7777}).Put(p)
	p.PutBytes([]byte{0x01, 0x02, 0x03})
	s.Feed(frame4(p.Bytes()))
	require.Equal(t, StateStarted, s.State)
}

func TestSetUserStatusQueuesStatusMessage(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)
	require.NoError(t, s.SetUserStatus(constants.StatusAway, "gone fishing"))

	f, ok := s.Flush()
	require.True(t, ok)
	hdr, g := parseFlushed(t, f)
	require.Equal(t, constants.MsgStatus, hdr.Type)
	var sm wire.StatusMsg
	sm.Header = hdr
	sm.Get(g)
	require.Equal(t, constants.StatusAway, sm.Status.Kind)
	require.Equal(t, "gone fishing", sm.Status.Description)
	require.Equal(t, constants.StatusAway, s.Status.Kind)
}

func TestSetPrivacyListQueuesPrivacyMessage(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)
	priv := wire.Privacy{Deny: true, Users: []wire.Identity{{User: "mallory"}}}
	require.NoError(t, s.SetPrivacyList(priv))

	f, ok := s.Flush()
	require.True(t, ok)
	hdr, g := parseFlushed(t, f)
	require.Equal(t, constants.MsgPrivacy, hdr.Type)
	var pm wire.PrivacyMsg
	pm.Header = hdr
	pm.Get(g)
	require.Equal(t, priv, pm.Privacy)
}

func TestAdminAndAnnounceSignals(t *testing.T) {
	s := testSession(testConfig())
	startSession(t, s)

	var adminText string
	s.OnAdmin = func(text string) { adminText = text }
	var announceText string
	s.OnAnnounce = func(mayReply bool, sender wire.LoginInfo, text string) { announceText = text }

	// admin is read-only on the wire; hand-assemble its body
	p := wire.NewPutBuffer()
	(&wire.Header{Type: constants.MsgAdmin}).Put(p)
	p.PutString("server notice")
	s.Feed(frame4(p.Bytes()))
	require.Equal(t, "server notice", adminText)

	s.Feed(frame(&wire.Announce{
		Header:   wire.Header{Type: constants.MsgAnnounce},
		MayReply: true,
		Text:     "going down at midnight",
	}))
	require.Equal(t, "going down at midnight", announceText)
}

// frame4 length-prefixes an already-rendered body.
func frame4(body []byte) []byte {
	out := make([]byte, 4+len(body))
	out[0] = byte(len(body) >> 24)
	out[1] = byte(len(body) >> 16)
	out[2] = byte(len(body) >> 8)
	out[3] = byte(len(body))
	copy(out[4:], body)
	return out
}
