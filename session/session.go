// session.go - top-level session state machine: handshake, login,
// channel routing, and queue orchestration.
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

// Package session implements the community protocol's session state
// machine: handshake, the three login authentication schemes, channel
// creation/routing, and the outbound FIFO/meta-queue orchestration that
// feeds a caller-driven Flush. The engine owns no socket: bytes arrive
// via Feed and leave via Flush.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sametime-go/stcore/channel"
	"github.com/sametime-go/stcore/cipher"
	"github.com/sametime-go/stcore/clock"
	"github.com/sametime-go/stcore/config"
	"github.com/sametime-go/stcore/constants"
	"github.com/sametime-go/stcore/queue"
	"github.com/sametime-go/stcore/rc2"
	"github.com/sametime-go/stcore/wire"
	logging "gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("sametime/session")

// State is the session's place in the handshake/login/run lifecycle.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateHandshake
	StateHandshakeAck
	StateLogin
	StateLoginRedirect
	StateLoginForce
	StateLoginAck
	StateStarted
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateHandshake:
		return "handshake"
	case StateHandshakeAck:
		return "handshake-ack"
	case StateLogin:
		return "login"
	case StateLoginRedirect:
		return "login-redirect"
	case StateLoginForce:
		return "login-force"
	case StateLoginAck:
		return "login-ack"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ErrWrongState is a programming-contract violation: an operation was
// attempted while the session was not in the state it requires.
var ErrWrongState = errors.New("session: operation invalid in current state")

// ErrNotPending is returned by AcceptChannel when the named channel is
// not awaiting a local accept/reject decision.
var ErrNotPending = errors.New("session: channel is not pending local accept")

// StopInfo carries the terminal state's reason: a protocol error code and
// optional detail, or the zero value for a caller-initiated graceful stop.
type StopInfo struct {
	Code uint32
	Info wire.Opaque
}

// Session is the engine's top-level object: one per community connection.
// It is not safe for concurrent use; it is a single-threaded cooperative
// state machine and the embedder serializes all Feed/Flush/API calls onto
// one goroutine.
type Session struct {
	cfg   *config.Config
	clock *clock.Clock

	State    State
	StopInfo StopInfo

	Login   wire.LoginInfo
	Privacy wire.Privacy
	Status  wire.Status

	Channels       map[uint32]*channel.Channel
	CipherRegistry *cipher.Registry

	channelIDCounter uint32

	parser *wire.Parser

	fifo *queue.FIFO
	meta *queue.MetaQueue

	redirectHost string
	serverMajor  uint16
	serverMinor  uint16
	serverMagic  uint32
	serverDHKey  wire.Opaque

	// OnStateChange fires on every state transition, including the
	// terminal transition to StateStopped (StopInfo is populated by then).
	OnStateChange func(old, new State)

	// OnIncomingChannel fires when a channel-create arrives. Returning
	// true claims the channel for a later AcceptChannel/RejectChannel;
	// the default behavior when this is nil, or the callback returns
	// false, is to immediately reject with ErrServiceNoSupport.
	OnIncomingChannel func(ch *channel.Channel) bool

	OnStatus       func(wire.Status)
	OnPrivacy      func(wire.Privacy)
	OnAdmin        func(text string)
	OnAnnounce     func(mayReply bool, sender wire.LoginInfo, text string)
	OnSenseService func(service uint32)

	// OnPending fires once whenever a previously-empty outbound queue
	// receives its first frame. The embedder may ignore it and poll
	// Pending() instead.
	OnPending func()
}

// New returns a freshly constructed, stopped Session. reg should be
// populated with the cipher classes this session is willing to offer and
// accept (see cipher.NewRC2Class/NewDHRC2Class) before Start is called.
func New(cfg *config.Config, clk *clock.Clock, reg *cipher.Registry) *Session {
	s := &Session{
		cfg:            cfg,
		clock:          clk,
		State:          StateStopped,
		Channels:       make(map[uint32]*channel.Channel),
		CipherRegistry: reg,
		fifo:           queue.NewFIFO(0),
		meta:           queue.NewMetaQueue(),
	}
	s.parser = wire.NewParser(s.handleBody)
	return s
}

func (s *Session) setState(ns State) {
	old := s.State
	s.State = ns
	log.Debugf("session: %s -> %s", old, ns)
	if s.OnStateChange != nil {
		s.OnStateChange(old, ns)
	}
}

// Start emits the initial handshake message and transitions the session
// out of stopped. It panics if the session is not currently stopped: that
// is a caller bug (a Session is not restartable once run).
func (s *Session) Start() {
	if s.State != StateStopped {
		panic("session: BUG: Start called outside state stopped")
	}
	s.setState(StateStarting)
	hs := wire.Handshake{
		Header:       wire.Header{Type: constants.MsgHandshake},
		MajorVersion: s.cfg.ClientVerMajor,
		MinorVersion: s.cfg.ClientVerMinor,
		ClientType:   s.cfg.ClientType,
	}
	if hs.MajorVersion >= constants.HandshakeTailMajor && hs.MinorVersion >= constants.HandshakeTailMinor {
		hs.Unknown = 0x0100
		hs.LocalHost = s.cfg.ClientHost
	}
	s.enqueueSession(&hs)
	s.setState(StateHandshake)
}

// Feed delivers newly-arrived bytes to the frame parser. It never blocks
// and never returns an error: a session-level parse failure before the
// session is started stops it with ErrFailure; other parse failures are
// logged and the frame is dropped.
func (s *Session) Feed(buf []byte) {
	s.parser.Feed(buf)
}

// Pending reports whether any bytes are queued for the write sink.
func (s *Session) Pending() bool {
	return s.fifo.Len() > 0 || s.meta.Size() > 0
}

// Flush removes and returns one queued write (a framed message, or a
// bare keepalive byte), session-level traffic draining ahead of
// per-channel traffic. It returns ok=false if nothing is queued.
func (s *Session) Flush() (frame []byte, ok bool) {
	if f, has := s.fifo.Next(); has {
		return f, true
	}
	if _, f, has := s.meta.Next(); has {
		return f, true
	}
	return nil, false
}

// FlushAll drains every currently-queued frame, in flush order.
func (s *Session) FlushAll() [][]byte {
	var out [][]byte
	for {
		f, ok := s.Flush()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func frameOf(body []byte) []byte {
	out := make([]byte, 4+len(body))
	out[0] = byte(len(body) >> 24)
	out[1] = byte(len(body) >> 16)
	out[2] = byte(len(body) >> 8)
	out[3] = byte(len(body))
	copy(out[4:], body)
	return out
}

type wireMessage interface {
	Put(p *wire.PutBuffer)
}

func serialize(m wireMessage) []byte {
	p := wire.NewPutBuffer()
	m.Put(p)
	return p.Bytes()
}

func (s *Session) signalPending(wasEmpty bool) {
	if wasEmpty && s.OnPending != nil {
		s.OnPending()
	}
}

// enqueueSession pushes a session-level message (handshake, login,
// status, privacy, sense-service, one-time, announce) onto the session
// FIFO.
func (s *Session) enqueueSession(m wireMessage) {
	wasEmpty := !s.Pending()
	s.fifo.Push(frameOf(serialize(m)))
	s.signalPending(wasEmpty)
}

// enqueueChannel pushes a per-channel message (channel-create, -accept,
// -close, -send) onto the meta-queue keyed by channel id, giving
// round-robin fairness across channels.
func (s *Session) enqueueChannel(id uint32, m wireMessage) {
	wasEmpty := !s.Pending()
	s.meta.Push(id, frameOf(serialize(m)))
	s.signalPending(wasEmpty)
}

// SendKeepalive queues the single-byte keepalive poke, the only valid
// out-of-frame write.
func (s *Session) SendKeepalive() {
	wasEmpty := !s.Pending()
	s.fifo.Push([]byte{0x80})
	s.signalPending(wasEmpty)
}

// nextChannelID allocates the next outgoing channel id: pre-incremented,
// wrapping modulo 2^31, so the first channel of a session is id 1. After
// 0x7fffffff the counter wraps and the next id returned is 0.
func (s *Session) nextChannelID() uint32 {
	s.channelIDCounter = (s.channelIDCounter + 1) % 0x80000000
	return s.channelIDCounter
}

// OpenChannel allocates a new outgoing channel, offers every registered
// cipher class under desiredPolicy, and sends a channel-create. If creatorLogin is non-nil
// it is embedded in the create so the remote side can key per-direction
// ciphers off it.
func (s *Session) OpenChannel(service, protocol, protocolVer uint32, target wire.Identity, desiredPolicy uint16, addtlInfo wire.Opaque, creatorLogin *wire.LoginInfo) (*channel.Channel, error) {
	if s.State != StateStarted {
		return nil, fmt.Errorf("%w: OpenChannel requires an established session", ErrWrongState)
	}
	id := s.nextChannelID()
	ch := channel.New(id, false)
	ch.Service, ch.Protocol, ch.ProtocolVer = service, protocol, protocolVer
	ch.OfferedInfo = addtlInfo
	ch.Remote = wire.LoginInfo{Identity: target}

	policy, items, err := ch.BuildOffer(s.CipherRegistry, desiredPolicy)
	if err != nil {
		return nil, err
	}
	s.Channels[id] = ch

	create := wire.ChannelCreate{
		Header:      wire.Header{Type: constants.MsgChannelCreate, Channel: id},
		Target:      target,
		Service:     service,
		Protocol:    protocol,
		ProtocolVer: protocolVer,
		AddtlInfo:   addtlInfo,
		EncPolicy:   policy,
		EncItems:    items,
		EncExtra:    policy,
	}
	if creatorLogin != nil {
		create.CreatorFlag = true
		create.CreatorLogin = *creatorLogin
	}
	s.enqueueChannel(id, &create)
	ch.MarkPending()
	return ch, nil
}

// AcceptChannel finishes an incoming channel's cipher negotiation and
// sends a channel-accept, opening the channel. It is the caller's
// responsibility to invoke this only for a channel previously claimed via
// a true return from OnIncomingChannel.
func (s *Session) AcceptChannel(ch *channel.Channel, addtlInfo wire.Opaque) error {
	if ch.State != channel.StatePending {
		return fmt.Errorf("%w: channel %d", ErrNotPending, ch.ID)
	}
	accepted, item, err := ch.AcceptOffer(s.CipherRegistry, s.Login.LoginID, ch.Remote.LoginID)
	if err != nil {
		return err
	}
	ch.AcceptedInfo = addtlInfo

	accept := wire.ChannelAccept{
		Header:      wire.Header{Type: constants.MsgChannelAccept, Channel: ch.ID},
		Service:     ch.Service,
		Protocol:    ch.Protocol,
		ProtocolVer: ch.ProtocolVer,
		AddtlInfo:   addtlInfo,
		EncPolicy:   accepted,
		EncItem:     item,
		EncExtra:    ch.OfferedPolicy,
	}
	s.enqueueChannel(ch.ID, &accept)
	ch.Open()
	return nil
}

// RejectChannel declines an incoming channel with the given reason code,
// sending a channel-close and removing it from the channel table.
func (s *Session) RejectChannel(ch *channel.Channel, reason uint32) {
	s.CloseChannel(ch, reason, nil)
}

// CloseChannel closes an open or pending channel with the given reason
// code and optional detail, notifying the remote side.
func (s *Session) CloseChannel(ch *channel.Channel, reason uint32, info wire.Opaque) {
	if ch.State == channel.StateClosed || ch.State == channel.StateError {
		return
	}
	s.enqueueChannel(ch.ID, &wire.ChannelClose{
		Header: wire.Header{Type: constants.MsgChannelClose, Channel: ch.ID},
		Reason: reason,
		Info:   info,
	})
	ch.Close(reason, info)
	delete(s.Channels, ch.ID)
}

// SendOnChannel serializes and enqueues an application payload over an
// open channel. encrypt only matters under the whatever policy, where
// individual sends may elect plaintext; stronger policies always encrypt
// and PolicyNone never does.
func (s *Session) SendOnChannel(ch *channel.Channel, kind uint16, payload []byte, encrypt bool) {
	out, encrypted := ch.Send(payload, encrypt)
	hdr := wire.Header{Type: constants.MsgChannelSend, Channel: ch.ID}
	if encrypted {
		hdr.Options |= constants.OptEncrypt
	}
	s.enqueueChannel(ch.ID, &wire.ChannelSend{Header: hdr, Kind: kind, Payload: out})
}

// SendOneTime delivers a channel-less payload to target's service.
func (s *Session) SendOneTime(target wire.Identity, service, protocol, protocolVer uint32, kind uint16, payload []byte) error {
	if s.State != StateStarted {
		return fmt.Errorf("%w: SendOneTime requires an established session", ErrWrongState)
	}
	s.enqueueSession(&wire.OneTime{
		Header:      wire.Header{Type: constants.MsgOneTime},
		Target:      target,
		Service:     service,
		Protocol:    protocol,
		ProtocolVer: protocolVer,
		Kind:        kind,
		Payload:     payload,
	})
	return nil
}

// SetUserStatus announces a new presence state for the session owner.
// The idle timestamp is stamped from the session clock when the kind is
// idle.
func (s *Session) SetUserStatus(kind constants.StatusKind, desc string) error {
	if s.State != StateStarted {
		return fmt.Errorf("%w: SetUserStatus requires an established session", ErrWrongState)
	}
	st := wire.Status{Kind: kind, Description: desc}
	if kind == constants.StatusIdle {
		st.IdleSince = s.clock.EpochSeconds()
	}
	s.Status = st
	s.enqueueSession(&wire.StatusMsg{
		Header: wire.Header{Type: constants.MsgStatus},
		Status: st,
	})
	return nil
}

// SetPrivacyList replaces the session owner's deny/allow list.
func (s *Session) SetPrivacyList(p wire.Privacy) error {
	if s.State != StateStarted {
		return fmt.Errorf("%w: SetPrivacyList requires an established session", ErrWrongState)
	}
	s.Privacy = p
	s.enqueueSession(&wire.PrivacyMsg{
		Header:  wire.Header{Type: constants.MsgPrivacy},
		Privacy: p,
	})
	return nil
}

// SenseService asks the server whether a service id is available; the
// answer arrives via OnSenseService.
func (s *Session) SenseService(service uint32) error {
	if s.State != StateStarted {
		return fmt.Errorf("%w: SenseService requires an established session", ErrWrongState)
	}
	s.enqueueSession(&wire.SenseService{
		Header:  wire.Header{Type: constants.MsgSenseService},
		Service: service,
	})
	return nil
}

// SendAnnounce broadcasts text to the named recipients.
func (s *Session) SendAnnounce(mayReply bool, recipients []string, text string) error {
	if s.State != StateStarted {
		return fmt.Errorf("%w: SendAnnounce requires an established session", ErrWrongState)
	}
	s.enqueueSession(&wire.Announce{
		Header:     wire.Header{Type: constants.MsgAnnounce},
		MayReply:   mayReply,
		Text:       text,
		Recipients: recipients,
	})
	return nil
}

// ForceLogin continues the login on the original server after a redirect
// was received but the embedder chose not to reconnect elsewhere. It
// panics if the session is not awaiting that decision.
func (s *Session) ForceLogin() {
	if s.State != StateLoginRedirect {
		panic("session: BUG: ForceLogin called outside state login-redirect")
	}
	s.enqueueSession(&wire.LoginForce{Header: wire.Header{Type: constants.MsgLoginForce}})
	s.setState(StateLoginForce)
}

// Stop closes every open channel, discards all queued outbound bytes, and
// transitions to stopped. code/info are recorded in StopInfo; callers
// stopping gracefully pass ErrSuccess. The embedder reports a broken
// transport by calling Stop with ErrConnectionBroken.
func (s *Session) Stop(code uint32, info wire.Opaque) {
	if s.State == StateStopped {
		return
	}
	s.setState(StateStopping)
	for id, ch := range s.Channels {
		if ch.State == channel.StateOpen || ch.State == channel.StatePending {
			ch.Close(code, info)
		}
		delete(s.Channels, id)
	}
	s.fifo.Clear()
	s.meta.Clear()
	s.StopInfo = StopInfo{Code: code, Info: info}
	s.setState(StateStopped)
}

// RedirectHost returns the host named by the most recent login-redirect,
// valid once State is StateLoginRedirect.
func (s *Session) RedirectHost() string {
	return s.redirectHost
}

// ServerVersion returns the major/minor version the server announced in
// its handshake-ack.
func (s *Session) ServerVersion() (major, minor uint16) {
	return s.serverMajor, s.serverMinor
}

// handleBody is the parser's completion callback: it decodes the header,
// dispatches by message type, and never panics or returns an error out of
// the ingest path.
func (s *Session) handleBody(body []byte) {
	g := wire.NewGetBuffer(body)
	hdr := wire.GetHeader(g)

	switch hdr.Type {
	case constants.MsgHandshakeAck:
		var m wire.HandshakeAck
		m.Header = hdr
		m.Get(g)
		s.onParsed(g, func() { s.handleHandshakeAck(m) })
	case constants.MsgLoginRedirect:
		var m wire.LoginRedirect
		m.Header = hdr
		m.Get(g)
		s.onParsed(g, func() { s.handleLoginRedirect(m) })
	case constants.MsgLoginAck:
		var m wire.LoginAck
		m.Header = hdr
		m.Get(g)
		s.onParsed(g, func() { s.handleLoginAck(m) })
	case constants.MsgChannelCreate:
		var m wire.ChannelCreate
		m.Header = hdr
		m.Get(g)
		s.onParsedChannel(g, m.Header.Channel, func() { s.handleChannelCreate(m) })
	case constants.MsgChannelAccept:
		var m wire.ChannelAccept
		m.Header = hdr
		m.Get(g)
		s.onParsedChannel(g, hdr.Channel, func() { s.handleChannelAccept(hdr, m) })
	case constants.MsgChannelClose:
		var m wire.ChannelClose
		m.Header = hdr
		m.Get(g)
		s.onParsedChannel(g, hdr.Channel, func() { s.handleChannelClose(hdr, m) })
	case constants.MsgChannelSend:
		var m wire.ChannelSend
		m.Header = hdr
		m.Get(g)
		s.onParsedChannel(g, hdr.Channel, func() { s.handleChannelSend(hdr, m) })
	case constants.MsgStatus:
		var m wire.StatusMsg
		m.Header = hdr
		m.Get(g)
		s.onParsed(g, func() { s.handleStatus(m) })
	case constants.MsgPrivacy:
		var m wire.PrivacyMsg
		m.Header = hdr
		m.Get(g)
		s.onParsed(g, func() { s.handlePrivacy(m) })
	case constants.MsgSenseService:
		var m wire.SenseService
		m.Header = hdr
		m.Get(g)
		s.onParsed(g, func() {
			if s.OnSenseService != nil {
				s.OnSenseService(m.Service)
			}
		})
	case constants.MsgAdmin:
		var m wire.Admin
		m.Header = hdr
		m.Get(g)
		s.onParsed(g, func() {
			if s.OnAdmin != nil {
				s.OnAdmin(m.Text)
			}
		})
	case constants.MsgAnnounce:
		var m wire.Announce
		m.Header = hdr
		m.Get(g)
		s.onParsed(g, func() {
			if s.OnAnnounce != nil {
				s.OnAnnounce(m.MayReply, m.Sender, m.Text)
			}
		})
	default:
		log.Infof("session: dropping unknown message type 0x%04x", uint16(hdr.Type))
	}
}

// onParsed runs fn if g decoded cleanly. A decode failure for a
// session-level message escalates to a stop with ErrFailure while the
// handshake/login phases are still in flight; after that it is dropped
// like any channel parse failure.
func (s *Session) onParsed(g *wire.GetBuffer, fn func()) {
	if g.Err() != nil {
		log.Warningf("session: parse failure in state %s: %v", s.State, g.Err())
		if s.State != StateStarted {
			s.Stop(constants.ErrFailure, nil)
		}
		return
	}
	fn()
}

// onParsedChannel runs fn if g decoded cleanly. A decode failure for a
// channel message is dropped without tearing down the session.
func (s *Session) onParsedChannel(g *wire.GetBuffer, chID uint32, fn func()) {
	if g.Err() != nil {
		log.Warningf("session: dropping malformed channel %d message: %v", chID, g.Err())
		return
	}
	fn()
}

func (s *Session) handleHandshakeAck(m wire.HandshakeAck) {
	if s.State != StateHandshake {
		log.Warningf("session: handshake-ack received in state %s", s.State)
		s.Stop(constants.ErrFailure, nil)
		return
	}
	s.serverMajor, s.serverMinor = m.MajorVersion, m.MinorVersion
	s.serverMagic = m.Magic
	s.serverDHKey = m.Data
	s.setState(StateHandshakeAck)

	authData, authType, err := s.composeAuth()
	if err != nil {
		log.Errorf("session: failed composing login auth data: %v", err)
		s.Stop(constants.ErrFailure, nil)
		return
	}
	login := wire.LoginMsg{
		Header:     wire.Header{Type: constants.MsgLogin},
		ClientType: s.cfg.ClientType,
		Name:       s.cfg.AuthUser,
		AuthData:   authData,
		AuthType:   authType,
	}
	s.enqueueSession(&login)
	s.setState(StateLogin)
}

// composeAuth builds the login message's auth_data for the configured
// scheme, downgrading DH_RC2 to RC2 if the handshake-ack carried no DH
// public key.
func (s *Session) composeAuth() (wire.Opaque, constants.AuthType, error) {
	authType := s.cfg.AuthType
	if authType == constants.AuthDHRC2 && len(s.serverDHKey) == 0 {
		log.Warningf("session: server offered no DH public key, falling back to RC2 authentication")
		authType = constants.AuthRC2
	}

	switch authType {
	case constants.AuthPlain:
		p := wire.NewPutBuffer()
		p.PutString(s.cfg.AuthPassword)
		return wire.Opaque(p.Bytes()), constants.AuthPlain, nil

	case constants.AuthRC2:
		key := make([]byte, 5)
		if _, err := rand.Read(key); err != nil {
			return nil, 0, err
		}
		ekey := rc2.ExpandKey(key)
		iv := rc2.NormalIV()
		ct := rc2.CBCEncrypt(ekey, &iv, []byte(s.cfg.AuthPassword))
		p := wire.NewPutBuffer()
		p.PutOpaque(wire.Opaque(key))
		p.PutOpaque(wire.Opaque(ct))
		return wire.Opaque(p.Bytes()), constants.AuthRC2, nil

	case constants.AuthDHRC2:
		dhCipher := cipher.NewDHRC2Class().NewState()
		if err := dhCipher.Offered(s.serverDHKey, "", ""); err != nil {
			return nil, 0, err
		}
		localPub, err := dhCipher.Accept()
		if err != nil {
			return nil, 0, err
		}

		p := wire.NewPutBuffer()
		p.PutUint32(s.serverMagic)
		p.PutString(s.cfg.AuthPassword)
		ct := dhCipher.Encrypt(p.Bytes())

		out := wire.NewPutBuffer()
		out.PutUint16(0x0001)
		out.PutOpaque(localPub.Info)
		out.PutOpaque(wire.Opaque(ct))
		return wire.Opaque(out.Bytes()), constants.AuthDHRC2, nil

	default:
		return nil, 0, fmt.Errorf("session: unsupported auth type 0x%x", uint16(authType))
	}
}

func (s *Session) handleLoginRedirect(m wire.LoginRedirect) {
	if s.State != StateLogin {
		log.Warningf("session: login-redirect received in state %s", s.State)
		s.Stop(constants.ErrFailure, nil)
		return
	}
	s.redirectHost = m.Host
	s.setState(StateLoginRedirect)
}

func (s *Session) handleLoginAck(m wire.LoginAck) {
	if s.State != StateLogin && s.State != StateLoginForce {
		log.Warningf("session: login-ack received in state %s", s.State)
		s.Stop(constants.ErrFailure, nil)
		return
	}
	s.Login = m.LoginInfo
	s.Privacy = m.Privacy
	s.Status = m.Status
	if s.OnStatus != nil {
		s.OnStatus(s.Status)
	}
	if s.OnPrivacy != nil {
		s.OnPrivacy(s.Privacy)
	}
	s.setState(StateLoginAck)
	s.setState(StateStarted)
}

func (s *Session) handleChannelCreate(m wire.ChannelCreate) {
	id := m.Header.Channel
	if _, exists := s.Channels[id]; exists {
		log.Warningf("session: channel-create for already-known channel %d, dropping", id)
		return
	}
	ch := channel.New(id, true)
	ch.Service, ch.Protocol, ch.ProtocolVer = m.Service, m.Protocol, m.ProtocolVer
	ch.OfferedInfo = m.AddtlInfo
	ch.OfferedPolicy = m.EncPolicy
	ch.OfferedItems = m.EncItems
	if m.CreatorFlag {
		ch.Remote = m.CreatorLogin
	} else {
		ch.Remote = wire.LoginInfo{Identity: m.Target}
	}
	ch.MarkPending()
	s.Channels[id] = ch

	claimed := false
	if s.OnIncomingChannel != nil {
		claimed = s.OnIncomingChannel(ch)
	}
	if !claimed {
		s.RejectChannel(ch, constants.ErrServiceNoSupport)
	}
}

func (s *Session) handleChannelAccept(hdr wire.Header, m wire.ChannelAccept) {
	ch, ok := s.Channels[hdr.Channel]
	if !ok {
		log.Warningf("session: channel-accept for unknown channel %d, dropping", hdr.Channel)
		return
	}
	if ch.State != channel.StatePending {
		log.Warningf("session: channel-accept for channel %d in state %s, dropping", ch.ID, ch.State)
		return
	}
	if m.AcceptorFlag {
		ch.Remote = m.AcceptorLogin
	}
	if err := ch.Accepted(m.EncPolicy, m.EncItem, s.Login.LoginID, ch.Remote.LoginID); err != nil {
		log.Warningf("session: channel %d cipher acceptance failed: %v", ch.ID, err)
		s.CloseChannel(ch, constants.ErrNoCommonEncrypt, nil)
		return
	}
	ch.AcceptedInfo = m.AddtlInfo
	ch.Open()
}

func (s *Session) handleChannelClose(hdr wire.Header, m wire.ChannelClose) {
	if hdr.Channel == constants.MasterChannelID {
		s.Stop(m.Reason, m.Info)
		return
	}
	ch, ok := s.Channels[hdr.Channel]
	if !ok {
		log.Warningf("session: channel-close for unknown channel %d, dropping", hdr.Channel)
		return
	}
	ch.Close(m.Reason, m.Info)
	delete(s.Channels, hdr.Channel)
}

func (s *Session) handleChannelSend(hdr wire.Header, m wire.ChannelSend) {
	ch, ok := s.Channels[hdr.Channel]
	if !ok {
		log.Warningf("session: channel-send for unknown channel %d, dropping", hdr.Channel)
		return
	}
	encrypted := hdr.Options&constants.OptEncrypt != 0
	payload, err := ch.Receive(m.Payload, encrypted)
	if err != nil {
		log.Warningf("session: channel %d payload decode failed: %v", ch.ID, err)
		return
	}
	if ch.OnIncoming != nil {
		ch.OnIncoming(m.Kind, payload)
	}
}

func (s *Session) handleStatus(m wire.StatusMsg) {
	s.Status = m.Status
	if s.OnStatus != nil {
		s.OnStatus(s.Status)
	}
}

func (s *Session) handlePrivacy(m wire.PrivacyMsg) {
	s.Privacy = m.Privacy
	if s.OnPrivacy != nil {
		s.OnPrivacy(s.Privacy)
	}
}
