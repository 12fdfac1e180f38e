// buffer.go - growable put buffer and cursor get buffer.
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

// Package wire implements the Sametime community protocol's buffer codec,
// frame parser, data model types, and message catalog.
package wire

import "encoding/binary"

// Opaque is an untyped, length-prefixed byte blob as carried on the wire.
type Opaque []byte

// Clone returns an independent copy of o.
func (o Opaque) Clone() Opaque {
	if o == nil {
		return nil
	}
	c := make(Opaque, len(o))
	copy(c, o)
	return c
}

// PutBuffer accumulates an outgoing message body.
type PutBuffer struct {
	buf []byte
}

// NewPutBuffer returns an empty PutBuffer.
func NewPutBuffer() *PutBuffer {
	return &PutBuffer{buf: make([]byte, 0, 64)}
}

// Bytes returns the accumulated bytes. The caller must not modify the
// returned slice.
func (p *PutBuffer) Bytes() []byte {
	return p.buf
}

// Len reports the number of bytes written so far.
func (p *PutBuffer) Len() int {
	return len(p.buf)
}

// PutByte appends a single byte.
func (p *PutBuffer) PutByte(b byte) {
	p.buf = append(p.buf, b)
}

// PutBool appends a boolean encoded as a single 0/1 byte.
func (p *PutBuffer) PutBool(v bool) {
	if v {
		p.PutByte(1)
	} else {
		p.PutByte(0)
	}
}

// PutUint16 appends a big-endian uint16.
func (p *PutBuffer) PutUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	p.buf = append(p.buf, tmp[:]...)
}

// PutUint32 appends a big-endian uint32.
func (p *PutBuffer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	p.buf = append(p.buf, tmp[:]...)
}

// PutBytes appends raw bytes with no length prefix.
func (p *PutBuffer) PutBytes(b []byte) {
	p.buf = append(p.buf, b...)
}

// PutOpaque appends a uint32 length prefix followed by the opaque's bytes.
func (p *PutBuffer) PutOpaque(o Opaque) {
	p.PutUint32(uint32(len(o)))
	p.PutBytes(o)
}

// PutString appends a uint16 length prefix followed by the string's
// bytes, with no terminator. A zero-length string is just the prefix.
func (p *PutBuffer) PutString(s string) {
	p.PutUint16(uint16(len(s)))
	p.PutBytes([]byte(s))
}

// GetBuffer reads an incoming message body sequentially. Once a read fails
// (insufficient remaining bytes), every subsequent Get* is a no-op that
// returns the zero value, and Err reports the sticky error.
type GetBuffer struct {
	buf    []byte
	cursor int
	err    error
}

// NewGetBuffer wraps buf for sequential reads. The caller must not modify
// buf for the GetBuffer's lifetime.
func NewGetBuffer(buf []byte) *GetBuffer {
	return &GetBuffer{buf: buf}
}

// Err reports the first error encountered, or nil if none.
func (g *GetBuffer) Err() error {
	return g.err
}

// Remaining reports the number of unread bytes.
func (g *GetBuffer) Remaining() int {
	if g.err != nil {
		return 0
	}
	return len(g.buf) - g.cursor
}

// Reset rewinds the cursor to the start and clears any sticky error.
func (g *GetBuffer) Reset() {
	g.cursor = 0
	g.err = nil
}

func (g *GetBuffer) need(n int) bool {
	if g.err != nil {
		return false
	}
	if len(g.buf)-g.cursor < n {
		g.err = ErrShortBuffer
		return false
	}
	return true
}

// GetByte reads a single byte.
func (g *GetBuffer) GetByte() byte {
	if !g.need(1) {
		return 0
	}
	b := g.buf[g.cursor]
	g.cursor++
	return b
}

// GetBool reads a single 0/1 byte as a boolean. Any non-zero byte is true.
func (g *GetBuffer) GetBool() bool {
	return g.GetByte() != 0
}

// GetUint16 reads a big-endian uint16.
func (g *GetBuffer) GetUint16() uint16 {
	if !g.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(g.buf[g.cursor:])
	g.cursor += 2
	return v
}

// GetUint32 reads a big-endian uint32.
func (g *GetBuffer) GetUint32() uint32 {
	if !g.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(g.buf[g.cursor:])
	g.cursor += 4
	return v
}

// GetBytes reads exactly n raw bytes.
func (g *GetBuffer) GetBytes(n int) []byte {
	if !g.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, g.buf[g.cursor:g.cursor+n])
	g.cursor += n
	return b
}

// PeekUint16 reads a big-endian uint16 without advancing the cursor.
func (g *GetBuffer) PeekUint16() uint16 {
	if !g.need(2) {
		return 0
	}
	return binary.BigEndian.Uint16(g.buf[g.cursor:])
}

// PeekUint32 reads a big-endian uint32 without advancing the cursor.
func (g *GetBuffer) PeekUint32() uint32 {
	if !g.need(4) {
		return 0
	}
	return binary.BigEndian.Uint32(g.buf[g.cursor:])
}

// Skip advances the cursor by n bytes without returning them.
func (g *GetBuffer) Skip(n int) {
	if !g.need(n) {
		return
	}
	g.cursor += n
}

// GetOpaque reads a uint32 length prefix followed by that many bytes.
// A zero-length opaque decodes as nil.
func (g *GetBuffer) GetOpaque() Opaque {
	n := g.GetUint32()
	if g.err != nil || n == 0 {
		return nil
	}
	return Opaque(g.GetBytes(int(n)))
}

// GetString reads a uint16 length prefix followed by that many bytes.
func (g *GetBuffer) GetString() string {
	n := g.GetUint16()
	if g.err != nil || n == 0 {
		return ""
	}
	b := g.GetBytes(int(n))
	if g.err != nil {
		return ""
	}
	return string(b)
}

// SkipString advances past a length-prefixed string without decoding it.
func (g *GetBuffer) SkipString() {
	n := g.GetUint16()
	if g.err != nil {
		return
	}
	g.Skip(int(n))
}
