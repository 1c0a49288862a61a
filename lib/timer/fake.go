// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package timer

import "time"

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	now time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the fake clock of m forward by d, stopping at every
// intermediate expiry to fire the due timers in order. m must have been
// created with c.
func (c *FakeClock) Advance(m *Manager, d time.Duration) {
	end := c.now.Add(d)
	for {
		next, ok := m.NextExpiry()
		if !ok || next.After(end) {
			break
		}
		if next.After(c.now) {
			c.now = next
		}
		if m.HandleExpired() == 0 {
			break
		}
	}
	c.now = end
	m.HandleExpired()
}
