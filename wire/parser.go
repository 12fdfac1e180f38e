// parser.go - three-phase frame parser.
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

import (
	"encoding/binary"

	logging "gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("sametime/wire")

type parserState int

const (
	parserTrim parserState = iota
	parserLength
	parserData
)

// Parser turns a stream of bytes (with interleaved high-bit keepalive
// bytes) into a sequence of complete frame bodies. It holds no socket or
// goroutine of its own; the owner calls Feed with whatever bytes arrived.
type Parser struct {
	state  parserState
	length [4]byte
	lenPos int
	need   uint32
	data   []byte
	onBody func([]byte)
}

// NewParser returns a Parser that invokes onBody once per complete frame
// body. onBody must not retain the passed slice past the call.
func NewParser(onBody func([]byte)) *Parser {
	return &Parser{state: parserTrim, onBody: onBody}
}

// Feed processes newly-arrived bytes, invoking the body callback for every
// frame that completes during this call.
func (p *Parser) Feed(buf []byte) {
	for len(buf) > 0 {
		switch p.state {
		case parserTrim:
			buf = p.trim(buf)
		case parserLength:
			buf = p.fillLength(buf)
		case parserData:
			buf = p.fillData(buf)
		}
	}
}

// trim discards leading keepalive bytes (high bit set) and transitions to
// length accumulation once a non-keepalive byte is seen.
func (p *Parser) trim(buf []byte) []byte {
	i := 0
	for i < len(buf) && buf[i]&0x80 != 0 {
		i++
	}
	if i > 0 {
		log.Debugf("dropped %d keepalive byte(s)", i)
	}
	if i == len(buf) {
		return nil
	}
	p.state = parserLength
	p.lenPos = 0
	return buf[i:]
}

func (p *Parser) fillLength(buf []byte) []byte {
	n := copy(p.length[p.lenPos:], buf)
	p.lenPos += n
	buf = buf[n:]
	if p.lenPos < 4 {
		return buf
	}
	p.need = binary.BigEndian.Uint32(p.length[:])
	if p.need == 0 {
		p.state = parserTrim
		p.onBody(nil)
		return buf
	}
	p.data = make([]byte, 0, p.need)
	p.state = parserData
	return buf
}

func (p *Parser) fillData(buf []byte) []byte {
	remain := int(p.need) - len(p.data)
	n := remain
	if n > len(buf) {
		n = len(buf)
	}
	p.data = append(p.data, buf[:n]...)
	buf = buf[n:]
	if len(p.data) < int(p.need) {
		return buf
	}
	body := p.data
	p.data = nil
	p.state = parserTrim
	p.onBody(body)
	return buf
}
