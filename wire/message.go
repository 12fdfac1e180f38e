// message.go - message header framing and the per-type message catalog.
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

package wire

import "github.com/sametime-go/stcore/constants"

// Header is the fixed portion of every message, present ahead of any
// type-specific body.
type Header struct {
	Type    constants.MessageType
	Options uint16
	Channel uint32
	Attribs Opaque
}

// Put appends the wire form of h to p.
func (h *Header) Put(p *PutBuffer) {
	p.PutUint16(uint16(h.Type))
	p.PutUint16(h.Options)
	p.PutUint32(h.Channel)
	if h.Options&constants.OptAttribs != 0 {
		p.PutOpaque(h.Attribs)
	}
}

// GetHeader reads a Header from g.
func GetHeader(g *GetBuffer) Header {
	var h Header
	h.Type = constants.MessageType(g.GetUint16())
	h.Options = g.GetUint16()
	h.Channel = g.GetUint32()
	if h.Options&constants.OptAttribs != 0 {
		h.Attribs = g.GetOpaque()
	}
	return h
}

// EncItem is one cipher entry inside a channel-create offer or a
// channel-accept acceptance: the cipher class's wire id and whatever
// side info that cipher needs the peer to see (a DH public key, or
// nothing at all).
type EncItem struct {
	ID   uint16
	Info Opaque
}

// putEncOffer writes a channel-create's encryption block: the offered
// policy, then (unless the policy is none or items is empty) an opaque
// wrapping the item list, an extra policy copy, and a flag. The nested
// opaque framing is part of the wire format.
func putEncOffer(p *PutBuffer, policy uint16, items []EncItem, extra uint16, flag bool) {
	p.PutUint16(policy)
	if policy == uint16(constants.PolicyNone) || len(items) == 0 {
		return
	}
	inner := NewPutBuffer()
	inner.PutUint32(uint32(len(items)))
	for i := range items {
		inner.PutUint16(items[i].ID)
		inner.PutOpaque(items[i].Info)
	}
	inner.PutUint16(extra)
	inner.PutBool(flag)
	p.PutOpaque(Opaque(inner.Bytes()))
}

// getEncOffer reverses putEncOffer. The wrapping opaque's length prefix
// is skipped rather than honored; the item count bounds the read.
func getEncOffer(g *GetBuffer) (policy uint16, items []EncItem, extra uint16, flag bool) {
	policy = g.GetUint16()
	if g.Err() != nil || policy == uint16(constants.PolicyNone) {
		return
	}
	g.Skip(4)
	n := g.GetUint32()
	items = make([]EncItem, 0, n)
	for i := uint32(0); i < n && g.Err() == nil; i++ {
		var it EncItem
		it.ID = g.GetUint16()
		it.Info = g.GetOpaque()
		items = append(items, it)
	}
	extra = g.GetUint16()
	flag = g.GetBool()
	return
}

// putEncAccept writes a channel-accept's encryption block: the accepted
// policy, then (unless none) an opaque wrapping the single accepted
// item, an extra policy copy, and a flag.
func putEncAccept(p *PutBuffer, policy uint16, item EncItem, extra uint16, flag bool) {
	p.PutUint16(policy)
	if policy == uint16(constants.PolicyNone) {
		return
	}
	inner := NewPutBuffer()
	inner.PutUint16(item.ID)
	inner.PutOpaque(item.Info)
	inner.PutUint16(extra)
	inner.PutBool(flag)
	p.PutOpaque(Opaque(inner.Bytes()))
}

// getEncAccept reverses putEncAccept, discarding the wrapping opaque's
// length prefix the same way getEncOffer does.
func getEncAccept(g *GetBuffer) (policy uint16, item EncItem, extra uint16, flag bool) {
	policy = g.GetUint16()
	if g.Err() != nil || policy == uint16(constants.PolicyNone) {
		return
	}
	g.Skip(4)
	item.ID = g.GetUint16()
	item.Info = g.GetOpaque()
	extra = g.GetUint16()
	flag = g.GetBool()
	return
}

// Handshake is the first message a client sends: protocol version and
// client identity announcement. SrvrcalcAddr is filled in by the server
// on its side; clients send zero. The trailing three fields only appear
// at or above the version gate.
type Handshake struct {
	Header
	MajorVersion uint16
	MinorVersion uint16
	SrvrcalcAddr uint32
	ClientType   constants.ClientType
	LoclcalcAddr uint32
	Unknown      uint16 // normally 0x0100
	UnknownB     uint32 // normally zero
	LocalHost    string
}

func (m *Handshake) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutUint16(m.MajorVersion)
	p.PutUint16(m.MinorVersion)
	p.PutUint32(m.Header.Channel)
	p.PutUint32(m.SrvrcalcAddr)
	p.PutUint16(uint16(m.ClientType))
	p.PutUint32(m.LoclcalcAddr)
	if m.MajorVersion >= constants.HandshakeTailMajor && m.MinorVersion >= constants.HandshakeTailMinor {
		p.PutUint16(m.Unknown)
		p.PutUint32(m.UnknownB)
		p.PutString(m.LocalHost)
	}
}

func (m *Handshake) Get(g *GetBuffer) {
	m.MajorVersion = g.GetUint16()
	m.MinorVersion = g.GetUint16()
	m.Header.Channel = g.GetUint32()
	m.SrvrcalcAddr = g.GetUint32()
	m.ClientType = constants.ClientType(g.GetUint16())
	m.LoclcalcAddr = g.GetUint32()
	if m.MajorVersion >= constants.HandshakeTailMajor && m.MinorVersion >= constants.HandshakeTailMinor {
		m.Unknown = g.GetUint16()
		m.UnknownB = g.GetUint32()
		m.LocalHost = g.GetString()
	}
}

// HandshakeAck is the server's reply, carrying its own version and, for
// new enough servers, a magic value and the server's DH public key for
// DH-RC2 authentication. Older servers omit the tail entirely; readers
// must branch on the echoed version.
type HandshakeAck struct {
	Header
	MajorVersion uint16
	MinorVersion uint16
	SrvrcalcAddr uint32
	Magic        uint32
	Data         Opaque
}

func (m *HandshakeAck) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutUint16(m.MajorVersion)
	p.PutUint16(m.MinorVersion)
	p.PutUint32(m.SrvrcalcAddr)
	if m.MajorVersion >= constants.HandshakeAckTailMajor && m.MinorVersion > constants.HandshakeAckTailMinor {
		p.PutUint32(m.Magic)
		p.PutOpaque(m.Data)
	}
}

func (m *HandshakeAck) Get(g *GetBuffer) {
	m.MajorVersion = g.GetUint16()
	m.MinorVersion = g.GetUint16()
	m.SrvrcalcAddr = g.GetUint32()
	if m.MajorVersion >= constants.HandshakeAckTailMajor && m.MinorVersion > constants.HandshakeAckTailMinor {
		m.Magic = g.GetUint32()
		m.Data = g.GetOpaque()
	}
}

// LoginMsg carries credentials and the chosen authentication type. On
// the wire AuthType follows AuthData, and a trailing zero uint16 is
// written but never read back.
type LoginMsg struct {
	Header
	ClientType constants.ClientType
	Name       string
	AuthData   Opaque
	AuthType   constants.AuthType
}

func (m *LoginMsg) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutUint16(uint16(m.ClientType))
	p.PutString(m.Name)
	p.PutOpaque(m.AuthData)
	p.PutUint16(uint16(m.AuthType))
	p.PutUint16(0x0000)
}

func (m *LoginMsg) Get(g *GetBuffer) {
	m.ClientType = constants.ClientType(g.GetUint16())
	m.Name = g.GetString()
	m.AuthData = g.GetOpaque()
	m.AuthType = constants.AuthType(g.GetUint16())
}

// LoginAck is server-to-client only: it acknowledges a successful login
// and delivers the session's negotiated login, privacy, and status
// records.
type LoginAck struct {
	Header
	LoginInfo
	Privacy Privacy
	Status  Status
}

func (m *LoginAck) Put(p *PutBuffer) {
	m.Header.Put(p)
	m.LoginInfo.Put(p)
	p.PutUint16(0x0000)
	m.Privacy.Put(p)
	m.Status.Put(p)
}

func (m *LoginAck) Get(g *GetBuffer) {
	m.LoginInfo.Get(g)
	g.Skip(2)
	m.Privacy.Get(g)
	m.Status.Get(g)
}

// LoginRedirect points the client at a different server host.
type LoginRedirect struct {
	Header
	Host     string
	ServerID string
}

func (m *LoginRedirect) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutString(m.Host)
	p.PutString(m.ServerID)
}

func (m *LoginRedirect) Get(g *GetBuffer) {
	m.Host = g.GetString()
	m.ServerID = g.GetString()
}

// LoginForce continues a redirected login on the original server; it
// carries no body beyond the header.
type LoginForce struct {
	Header
}

func (m *LoginForce) Put(p *PutBuffer) { m.Header.Put(p) }
func (m *LoginForce) Get(g *GetBuffer) {}

// ChannelCreate opens a channel, optionally offering a list of ciphers
// under a policy. The reserved field and the trailing 0x07 uint16 are
// emitted for bit-exact wire compatibility but carry no meaning either
// side acts on.
type ChannelCreate struct {
	Header
	Reserved     uint32
	Target       Identity
	Service      uint32
	Protocol     uint32
	ProtocolVer  uint32
	Options      uint32
	AddtlInfo    Opaque
	CreatorFlag  bool
	CreatorLogin LoginInfo
	EncPolicy    uint16
	EncItems     []EncItem
	EncExtra     uint16
	EncFlag      bool
}

func (m *ChannelCreate) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutUint32(m.Reserved)
	p.PutUint32(m.Header.Channel)
	m.Target.Put(p)
	p.PutUint32(m.Service)
	p.PutUint32(m.Protocol)
	p.PutUint32(m.ProtocolVer)
	p.PutUint32(m.Options)
	p.PutOpaque(m.AddtlInfo)
	p.PutBool(m.CreatorFlag)
	if m.CreatorFlag {
		m.CreatorLogin.Put(p)
	}
	putEncOffer(p, m.EncPolicy, m.EncItems, m.EncExtra, m.EncFlag)
	p.PutUint16(0x07)
}

func (m *ChannelCreate) Get(g *GetBuffer) {
	m.Reserved = g.GetUint32()
	m.Header.Channel = g.GetUint32()
	m.Target.Get(g)
	m.Service = g.GetUint32()
	m.Protocol = g.GetUint32()
	m.ProtocolVer = g.GetUint32()
	m.Options = g.GetUint32()
	m.AddtlInfo = g.GetOpaque()
	m.CreatorFlag = g.GetBool()
	if m.CreatorFlag {
		m.CreatorLogin.Get(g)
	}
	m.EncPolicy, m.EncItems, m.EncExtra, m.EncFlag = getEncOffer(g)
}

// ChannelAccept answers a ChannelCreate, naming the accepted policy and
// cipher (if any) and mirroring the service trio the creator sent.
type ChannelAccept struct {
	Header
	Service       uint32
	Protocol      uint32
	ProtocolVer   uint32
	AddtlInfo     Opaque
	AcceptorFlag  bool
	AcceptorLogin LoginInfo
	EncPolicy     uint16
	EncItem       EncItem
	EncExtra      uint16
	EncFlag       bool
}

func (m *ChannelAccept) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutUint32(m.Service)
	p.PutUint32(m.Protocol)
	p.PutUint32(m.ProtocolVer)
	p.PutOpaque(m.AddtlInfo)
	p.PutBool(m.AcceptorFlag)
	if m.AcceptorFlag {
		m.AcceptorLogin.Put(p)
	}
	putEncAccept(p, m.EncPolicy, m.EncItem, m.EncExtra, m.EncFlag)
	p.PutUint16(0x07)
}

func (m *ChannelAccept) Get(g *GetBuffer) {
	m.Service = g.GetUint32()
	m.Protocol = g.GetUint32()
	m.ProtocolVer = g.GetUint32()
	m.AddtlInfo = g.GetOpaque()
	m.AcceptorFlag = g.GetBool()
	if m.AcceptorFlag {
		m.AcceptorLogin.Get(g)
	}
	m.EncPolicy, m.EncItem, m.EncExtra, m.EncFlag = getEncAccept(g)
}

// ChannelClose tears a channel down, carrying a reason code and optional
// detail.
type ChannelClose struct {
	Header
	Reason uint32
	Info   Opaque
}

func (m *ChannelClose) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutUint32(m.Reason)
	p.PutOpaque(m.Info)
}

func (m *ChannelClose) Get(g *GetBuffer) {
	m.Reason = g.GetUint32()
	m.Info = g.GetOpaque()
}

// ChannelSend carries an application payload over an open channel,
// plaintext or cipher-encrypted per Header.Options&OptEncrypt. Kind is
// the service-defined payload type.
type ChannelSend struct {
	Header
	Kind    uint16
	Payload Opaque
}

func (m *ChannelSend) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutUint16(m.Kind)
	p.PutOpaque(m.Payload)
}

func (m *ChannelSend) Get(g *GetBuffer) {
	m.Kind = g.GetUint16()
	m.Payload = g.GetOpaque()
}

// OneTime is a best-effort, channel-less payload delivered to a named
// identity's service without channel setup.
type OneTime struct {
	Header
	ID          uint32
	Target      Identity
	Service     uint32
	Protocol    uint32
	ProtocolVer uint32
	Kind        uint16
	Payload     Opaque
}

func (m *OneTime) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutUint32(m.ID)
	m.Target.Put(p)
	p.PutUint32(m.Service)
	p.PutUint32(m.Protocol)
	p.PutUint32(m.ProtocolVer)
	p.PutUint16(m.Kind)
	p.PutOpaque(m.Payload)
}

func (m *OneTime) Get(g *GetBuffer) {
	m.ID = g.GetUint32()
	m.Target.Get(g)
	m.Service = g.GetUint32()
	m.Protocol = g.GetUint32()
	m.ProtocolVer = g.GetUint32()
	m.Kind = g.GetUint16()
	m.Payload = g.GetOpaque()
}

// StatusMsg announces the session owner's presence.
type StatusMsg struct {
	Header
	Status
}

func (m *StatusMsg) Put(p *PutBuffer) { m.Header.Put(p); m.Status.Put(p) }
func (m *StatusMsg) Get(g *GetBuffer) { m.Status.Get(g) }

// PrivacyMsg carries the session owner's deny/allow list.
type PrivacyMsg struct {
	Header
	Privacy
}

func (m *PrivacyMsg) Put(p *PutBuffer) { m.Header.Put(p); m.Privacy.Put(p) }
func (m *PrivacyMsg) Get(g *GetBuffer) { m.Privacy.Get(g) }

// SenseService asks the server whether a service is available.
type SenseService struct {
	Header
	Service uint32
}

func (m *SenseService) Put(p *PutBuffer) { m.Header.Put(p); p.PutUint32(m.Service) }
func (m *SenseService) Get(g *GetBuffer) { m.Service = g.GetUint32() }

// Admin is a server-to-client-only administrative notice.
type Admin struct {
	Header
	Text string
}

func (m *Admin) Get(g *GetBuffer) { m.Text = g.GetString() }

// Announce is a broadcast text message. The reply flag and the text ride
// inside a nested opaque; the recipient list trails it.
type Announce struct {
	Header
	SenderFlag bool
	Sender     LoginInfo
	Unknown    uint16
	MayReply   bool
	Text       string
	Recipients []string
}

func (m *Announce) Put(p *PutBuffer) {
	m.Header.Put(p)
	p.PutBool(m.SenderFlag)
	if m.SenderFlag {
		m.Sender.Put(p)
	}
	p.PutUint16(m.Unknown)

	inner := NewPutBuffer()
	inner.PutBool(m.MayReply)
	inner.PutString(m.Text)
	p.PutOpaque(Opaque(inner.Bytes()))

	p.PutUint32(uint32(len(m.Recipients)))
	for _, r := range m.Recipients {
		p.PutString(r)
	}
}

func (m *Announce) Get(g *GetBuffer) {
	m.SenderFlag = g.GetBool()
	if m.SenderFlag {
		m.Sender.Get(g)
	}
	m.Unknown = g.GetUint16()

	body := g.GetOpaque()
	inner := NewGetBuffer(body)
	m.MayReply = inner.GetBool()
	m.Text = inner.GetString()

	n := g.GetUint32()
	if g.Err() != nil || n == 0 {
		return
	}
	m.Recipients = make([]string, 0, n)
	for i := uint32(0); i < n && g.Err() == nil; i++ {
		m.Recipients = append(m.Recipients, g.GetString())
	}
}
