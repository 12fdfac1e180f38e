// constants.go - Sametime community protocol constants.
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

// Package constants contains the wire-level constants for the Sametime
// community protocol: message types, option bits, auth types, channel
// cipher policies, and error codes.
package constants

// MessageType identifies the kind of message carried in a frame header.
type MessageType uint16

const (
	MsgHandshake     MessageType = 0x0000
	MsgHandshakeAck  MessageType = 0x8000
	MsgLogin         MessageType = 0x0001
	MsgLoginRedirect MessageType = 0x0018
	MsgLoginForce    MessageType = 0x0016
	MsgLoginAck      MessageType = 0x8001

	MsgChannelCreate MessageType = 0x0002
	MsgChannelClose  MessageType = 0x0003
	MsgChannelSend   MessageType = 0x0004
	MsgChannelAccept MessageType = 0x0006

	MsgOneTime MessageType = 0x0007

	MsgStatus  MessageType = 0x0009
	MsgPrivacy MessageType = 0x000b

	MsgSenseService MessageType = 0x0011
	MsgAdmin        MessageType = 0x0019
	MsgAnnounce     MessageType = 0x0022
)

// Header option bits, ORed into Message.Options.
const (
	// OptEncrypt marks a channel-send message body as cipher-encrypted.
	OptEncrypt uint16 = 0x4000

	// OptAttribs marks a header as carrying a trailing opaque attribs block.
	OptAttribs uint16 = 0x8000
)

// AuthType selects the login authentication scheme in a login message.
type AuthType uint16

const (
	AuthPlain AuthType = 0x0000
	AuthToken AuthType = 0x0001
	AuthRC2   AuthType = 0x0002
	AuthDHRC2 AuthType = 0x0004
)

// ChannelPolicy ranks a channel's requested or accepted cipher strength.
// Values above PolicyAny name a specific cipher class's own policy.
type ChannelPolicy uint16

const (
	// PolicyNone means no encryption is required or was negotiated.
	PolicyNone ChannelPolicy = 0x0000

	// PolicyWhatever permits any cipher, and tolerates individual sends
	// electing to go out in plaintext.
	PolicyWhatever ChannelPolicy = 0x0001

	// PolicyAny permits any cipher but encrypts every send.
	PolicyAny ChannelPolicy = 0x0002

	// PolicyRC2 names the RC2-40 cipher class's own policy value.
	PolicyRC2 ChannelPolicy = 0x1000

	// PolicyDHRC2 names the DH-RC2-128 cipher class's own policy value.
	PolicyDHRC2 ChannelPolicy = 0x2000
)

// StatusKind is the presence state carried in a status message.
type StatusKind uint16

const (
	StatusActive StatusKind = 0x0020
	StatusIdle   StatusKind = 0x0040
	StatusAway   StatusKind = 0x0060
	StatusBusy   StatusKind = 0x0080
)

// Error codes surfaced in channel-close messages and session stops.
const (
	ErrSuccess          uint32 = 0x00000000
	ErrFailure          uint32 = 0x80000001
	ErrConnectionBroken uint32 = 0x80000000
	ErrVersionMismatch  uint32 = 0x80000200
	ErrIncorrectLogin   uint32 = 0x80000208
	ErrNoCommonEncrypt  uint32 = 0x8000001a
	ErrServiceNoSupport uint32 = 0x80000015
	ErrChannelNoSupport uint32 = 0x80000011
)

// ClientType identifies the connecting client implementation to the
// server during handshake and login.
type ClientType uint16

const (
	ClientTypeLib       ClientType = 0x1000
	ClientTypeJavaWeb   ClientType = 0x1001
	ClientTypeBinary    ClientType = 0x1002
	ClientTypeJavaApp   ClientType = 0x1003
	ClientTypeMeanwhile ClientType = 0x1700
)

// Default handshake version announced by this client, and the version
// gates for the optional handshake/handshake-ack tail fields.
const (
	ProtocolVerMajor uint16 = 0x001e
	ProtocolVerMinor uint16 = 0x001d

	// HandshakeTailMajor/Minor gate the {unknown, unknown, local_host}
	// tail on an outgoing handshake (major >= and minor >=).
	HandshakeTailMajor uint16 = 0x001e
	HandshakeTailMinor uint16 = 0x001d

	// HandshakeAckTailMajor/Minor gate the {magic, data} tail on a
	// handshake-ack (major >= and minor strictly >).
	HandshakeAckTailMajor uint16 = 0x1e
	HandshakeAckTailMinor uint16 = 0x18
)

// MasterChannelID is the reserved channel id whose close terminates the
// session.
const MasterChannelID uint32 = 0x00000000
