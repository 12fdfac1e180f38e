// types.go - shared data model records put/got across several messages.
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

// Identity names a community member. Community may be empty for a remote
// user in the same community.
type Identity struct {
	User      string
	Community string
}

// Equal reports whether id and other name the same user in the same
// community.
func (id Identity) Equal(other Identity) bool {
	return id.User == other.User && id.Community == other.Community
}

// Put appends the wire form of id to p.
func (id *Identity) Put(p *PutBuffer) {
	p.PutString(id.User)
	p.PutString(id.Community)
}

// Get populates id from g.
func (id *Identity) Get(g *GetBuffer) {
	*id = Identity{}
	id.User = g.GetString()
	id.Community = g.GetString()
}

// LoginInfo is the extended identity record describing one logged-in
// client: who, from what client software, and (optionally) from where.
type LoginInfo struct {
	Identity
	LoginID     string
	DisplayName string
	ClientType  constants.ClientType
	Full        bool
	Description string
	IPAddr      uint32
	ServerID    string
}

// Put appends the wire form of l to p.
func (l *LoginInfo) Put(p *PutBuffer) {
	p.PutString(l.LoginID)
	p.PutUint16(uint16(l.ClientType))
	p.PutString(l.Identity.User)
	p.PutString(l.DisplayName)
	p.PutString(l.Identity.Community)
	p.PutBool(l.Full)
	if l.Full {
		p.PutString(l.Description)
		p.PutUint32(l.IPAddr)
		p.PutString(l.ServerID)
	}
}

// Get populates l from g. Every field is reset first so a short read
// leaves l zeroed rather than partially stale.
func (l *LoginInfo) Get(g *GetBuffer) {
	*l = LoginInfo{}
	l.LoginID = g.GetString()
	l.ClientType = constants.ClientType(g.GetUint16())
	l.Identity.User = g.GetString()
	l.DisplayName = g.GetString()
	l.Identity.Community = g.GetString()
	l.Full = g.GetBool()
	if l.Full {
		l.Description = g.GetString()
		l.IPAddr = g.GetUint32()
		l.ServerID = g.GetString()
	}
}

// Status is a presence record: kind, idle timestamp, and free-text note.
type Status struct {
	Kind        constants.StatusKind
	IdleSince   uint32
	Description string
}

// Put appends the wire form of s to p.
func (s *Status) Put(p *PutBuffer) {
	p.PutUint16(uint16(s.Kind))
	p.PutUint32(s.IdleSince)
	p.PutString(s.Description)
}

// Get populates s from g.
func (s *Status) Get(g *GetBuffer) {
	*s = Status{}
	s.Kind = constants.StatusKind(g.GetUint16())
	s.IdleSince = g.GetUint32()
	s.Description = g.GetString()
}

// Privacy is the deny/allow list exchanged in a privacy message. The
// write path always emits a false flag byte ahead of each Identity; the
// read path skips a trailing string when a server sets that flag.
type Privacy struct {
	Deny  bool
	Users []Identity
}

// Put appends the wire form of pr to p.
func (pr *Privacy) Put(p *PutBuffer) {
	p.PutBool(pr.Deny)
	p.PutUint32(uint32(len(pr.Users)))
	for i := range pr.Users {
		p.PutBool(false)
		pr.Users[i].Put(p)
	}
}

// Get populates pr from g.
func (pr *Privacy) Get(g *GetBuffer) {
	*pr = Privacy{}
	pr.Deny = g.GetBool()
	n := g.GetUint32()
	if g.err != nil || n == 0 {
		return
	}
	pr.Users = make([]Identity, 0, n)
	for i := uint32(0); i < n && g.Err() == nil; i++ {
		flag := g.GetBool()
		var u Identity
		u.Get(g)
		if flag {
			g.SkipString()
		}
		pr.Users = append(pr.Users, u)
	}
}
