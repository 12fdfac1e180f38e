// meta.go - per-channel round-robin fair-share queue.
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

package queue

import "container/list"

// MetaQueue fairly interleaves frames queued against many channels: Next
// visits channels in round-robin order, and a channel whose FIFO empties
// out is evicted from the rotation until it is pushed to again.
type MetaQueue struct {
	queues map[uint32]*FIFO
	order  *list.List               // of uint32 channel ids, round robin
	nodes  map[uint32]*list.Element // channel id -> its node in order
	cursor *list.Element
}

// NewMetaQueue returns an empty MetaQueue.
func NewMetaQueue() *MetaQueue {
	return &MetaQueue{
		queues: make(map[uint32]*FIFO),
		order:  list.New(),
		nodes:  make(map[uint32]*list.Element),
	}
}

// Push appends frame to channel id's queue, creating it and entering it
// into the rotation if this is its first frame.
func (m *MetaQueue) Push(id uint32, frame []byte) {
	q, ok := m.queues[id]
	if !ok {
		q = NewFIFO(0)
		m.queues[id] = q
	}
	q.Push(frame)
	if _, inRotation := m.nodes[id]; !inRotation {
		m.nodes[id] = m.order.PushBack(id)
	}
}

// Next returns the next frame and the channel id it came from, advancing
// the round-robin cursor. A channel whose queue is emptied by this call
// is evicted from the rotation. Returns ok=false if every channel's queue
// is empty.
func (m *MetaQueue) Next() (id uint32, frame []byte, ok bool) {
	for visited := 0; visited < m.order.Len(); visited++ {
		e := m.advance()
		if e == nil {
			return 0, nil, false
		}
		chID := e.Value.(uint32)
		q := m.queues[chID]
		f, has := q.Next()
		if !has {
			m.scour(chID, e)
			continue
		}
		if q.Len() == 0 {
			m.scour(chID, e)
		}
		return chID, f, true
	}
	return 0, nil, false
}

// advance moves the cursor to the next element in the rotation (wrapping)
// and returns it, or nil if the rotation is empty.
func (m *MetaQueue) advance() *list.Element {
	if m.order.Len() == 0 {
		return nil
	}
	if m.cursor == nil || m.cursor.Next() == nil {
		m.cursor = m.order.Front()
	} else {
		m.cursor = m.cursor.Next()
	}
	return m.cursor
}

// scour removes an empty channel's queue and rotation entry.
func (m *MetaQueue) scour(id uint32, e *list.Element) {
	if m.cursor == e {
		m.cursor = e.Prev()
	}
	m.order.Remove(e)
	delete(m.nodes, id)
	delete(m.queues, id)
}

// Size reports the total number of queued frames across all channels.
func (m *MetaQueue) Size() int {
	n := 0
	for _, q := range m.queues {
		n += q.Len()
	}
	return n
}

// Clear empties every channel's queue and the rotation.
func (m *MetaQueue) Clear() {
	m.queues = make(map[uint32]*FIFO)
	m.order = list.New()
	m.nodes = make(map[uint32]*list.Element)
	m.cursor = nil
}
