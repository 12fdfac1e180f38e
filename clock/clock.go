// clock.go - injectable time source.
// Copyright (C) 2017  David Stainton.
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

// Package clock wraps clockwork.Clock so the idle timestamp a session
// stamps into its status can be driven by a fake clock in tests instead
// of wall time.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock supplies the current time to a session.
type Clock struct {
	c clockwork.Clock
}

// New wraps an existing clockwork.Clock (clockwork.NewRealClock() for
// production use, clockwork.NewFakeClock() for tests).
func New(c clockwork.Clock) *Clock {
	return &Clock{c}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return c.c.Now()
}

// EpochSeconds returns seconds since the Unix epoch, the unit
// Status.IdleSince is carried in on the wire.
func (c *Clock) EpochSeconds() uint32 {
	now := c.c.Now()
	if now.Before(time.Unix(0, 0)) {
		panic("clock: BUG: system time appears to predate the epoch")
	}
	return uint32(now.Unix())
}
