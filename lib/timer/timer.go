// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package timer implements one-shot and periodic timers driven by a single
// event loop. Timers never fire on their own; the loop asks the Manager for
// the next expiry, sleeps until then and calls HandleExpired. Nothing here
// is safe for concurrent use.
package timer

import (
	"sort"
	"time"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

type Manager struct {
	clock  Clock
	timers []*Timer // registration order
	seq    uint64
}

func NewManager(clock Clock) *Manager {
	if clock == nil {
		clock = RealClock
	}
	return &Manager{clock: clock}
}

func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// NewTimer registers a stopped timer calling fn on expiry.
func (m *Manager) NewTimer(fn func()) *Timer {
	m.seq++
	t := &Timer{m: m, fn: fn, seq: m.seq}
	m.timers = append(m.timers, t)
	return t
}

// NextExpiry returns the earliest expiry among running timers.
func (m *Manager) NextExpiry() (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range m.timers {
		if t.running && (!found || t.expiry.Before(next)) {
			next = t.expiry
			found = true
		}
	}
	return next, found
}

// HandleExpired fires every running timer whose expiry is not after now,
// earliest first and in registration order among equal expiries. Timers
// started by the callbacks are left for the next call. It returns the
// number of timers fired.
func (m *Manager) HandleExpired() int {
	now := m.clock.Now()
	var due []*Timer
	for _, t := range m.timers {
		if t.running && !t.expiry.After(now) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(a, b int) bool {
		return due[a].expiry.Before(due[b].expiry)
	})

	fired := 0
	for _, t := range due {
		// An earlier callback may have stopped or rescheduled it.
		if !t.running || t.expiry.After(now) || t.removed {
			continue
		}
		if t.period > 0 {
			t.expiry = t.expiry.Add(t.period)
			if !t.expiry.After(now) {
				t.expiry = now.Add(t.period)
			}
		} else {
			t.running = false
		}
		fired++
		t.fn()
	}
	return fired
}

// Len returns the number of registered timers.
func (m *Manager) Len() int {
	return len(m.timers)
}

func (m *Manager) remove(t *Timer) {
	for i, o := range m.timers {
		if o == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// A Timer is either one-shot or periodic depending on the last Set call.
type Timer struct {
	m       *Manager
	fn      func()
	seq     uint64
	delay   time.Duration
	period  time.Duration
	expiry  time.Time
	running bool
	removed bool
}

// SetOneShot makes the next Start fire once after d.
func (t *Timer) SetOneShot(d time.Duration) {
	t.delay = d
	t.period = 0
}

// SetPeriodic makes the next Start fire every d.
func (t *Timer) SetPeriodic(d time.Duration) {
	t.delay = d
	t.period = d
}

// Start (re)arms the timer relative to now.
func (t *Timer) Start() {
	if t.removed {
		return
	}
	t.expiry = t.m.clock.Now().Add(t.delay)
	t.running = true
}

// StartAt arms the timer for an absolute expiry, keeping the current
// one-shot or periodic mode.
func (t *Timer) StartAt(expiry time.Time) {
	if t.removed {
		return
	}
	t.expiry = expiry
	t.running = true
}

func (t *Timer) Stop() {
	t.running = false
}

func (t *Timer) Running() bool {
	return t.running
}

// Expiry returns the time the timer fires next. Only meaningful while
// running.
func (t *Timer) Expiry() time.Time {
	return t.expiry
}

// Remove stops the timer and unregisters it from its manager.
func (t *Timer) Remove() {
	if t.removed {
		return
	}
	t.running = false
	t.removed = true
	t.m.remove(t)
}
