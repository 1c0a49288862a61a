// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package timer

import (
	"slices"
	"testing"
	"time"
)

func TestOneShot(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	fired := 0
	tm := m.NewTimer(func() { fired++ })
	tm.SetOneShot(100 * time.Millisecond)
	tm.Start()

	c.Advance(m, 99*time.Millisecond)
	if fired != 0 {
		t.Fatal("fired early")
	}
	c.Advance(m, time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired %d times, expected 1", fired)
	}
	if tm.Running() {
		t.Error("one-shot timer still running")
	}
	c.Advance(m, time.Second)
	if fired != 1 {
		t.Fatalf("fired %d times after expiry, expected 1", fired)
	}
}

func TestPeriodic(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	var at []time.Duration
	start := c.Now()
	tm := m.NewTimer(func() { at = append(at, c.Now().Sub(start)) })
	tm.SetPeriodic(time.Second)
	tm.Start()

	c.Advance(m, 3500*time.Millisecond)
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if !slices.Equal(at, want) {
		t.Errorf("fired at %v, expected %v", at, want)
	}
	tm.Stop()
	c.Advance(m, 10*time.Second)
	if len(at) != 3 {
		t.Error("stopped timer fired")
	}
}

func TestOrdering(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	var order []string
	mk := func(name string, d time.Duration) *Timer {
		tm := m.NewTimer(func() { order = append(order, name) })
		tm.SetOneShot(d)
		tm.Start()
		return tm
	}
	mk("late", 200*time.Millisecond)
	mk("tie-a", 100*time.Millisecond)
	mk("tie-b", 100*time.Millisecond)
	mk("early", 50*time.Millisecond)

	c.Advance(m, time.Second)
	want := []string{"early", "tie-a", "tie-b", "late"}
	if !slices.Equal(order, want) {
		t.Errorf("order %v, expected %v", order, want)
	}
}

func TestSameInstantRegistrationOrder(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	var order []int
	for i := 0; i < 5; i++ {
		tm := m.NewTimer(func() { order = append(order, i) })
		tm.SetOneShot(10 * time.Millisecond)
		tm.Start()
	}
	c.Advance(m, 10*time.Millisecond)
	if !slices.Equal(order, []int{0, 1, 2, 3, 4}) {
		t.Errorf("order %v", order)
	}
}

func TestStopFromCallback(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	var second *Timer
	secondFired := false
	first := m.NewTimer(func() { second.Stop() })
	second = m.NewTimer(func() { secondFired = true })
	first.SetOneShot(time.Second)
	second.SetOneShot(time.Second)
	first.Start()
	second.Start()

	c.Advance(m, 2*time.Second)
	if secondFired {
		t.Error("timer stopped by an earlier callback still fired")
	}
}

func TestRestartFromCallback(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	fired := 0
	var tm *Timer
	tm = m.NewTimer(func() {
		fired++
		if fired < 3 {
			tm.SetOneShot(time.Duration(fired) * 100 * time.Millisecond)
			tm.Start()
		}
	})
	tm.SetOneShot(100 * time.Millisecond)
	tm.Start()

	c.Advance(m, 250*time.Millisecond)
	if fired != 2 {
		t.Fatalf("fired %d, expected 2", fired)
	}
	c.Advance(m, 150*time.Millisecond)
	if fired != 3 {
		t.Fatalf("fired %d, expected 3", fired)
	}
}

func TestRestartMovesExpiry(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	tm := m.NewTimer(func() {})
	tm.SetOneShot(time.Second)
	tm.Start()
	c.Advance(m, 500*time.Millisecond)
	tm.Start()

	next, ok := m.NextExpiry()
	if !ok {
		t.Fatal("no expiry")
	}
	if got := next.Sub(c.Now()); got != time.Second {
		t.Errorf("expiry in %v, expected 1s", got)
	}
}

func TestRemove(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	fired := false
	tm := m.NewTimer(func() { fired = true })
	tm.SetOneShot(time.Millisecond)
	tm.Start()
	tm.Remove()
	tm.Start()

	if m.Len() != 0 {
		t.Errorf("manager holds %d timers", m.Len())
	}
	if _, ok := m.NextExpiry(); ok {
		t.Error("removed timer still scheduled")
	}
	c.Advance(m, time.Second)
	if fired {
		t.Error("removed timer fired")
	}
}

func TestNextExpiry(t *testing.T) {
	c := NewFakeClock()
	m := NewManager(c)

	if _, ok := m.NextExpiry(); ok {
		t.Fatal("expiry with no timers")
	}
	a := m.NewTimer(func() {})
	b := m.NewTimer(func() {})
	a.SetOneShot(3 * time.Second)
	b.SetOneShot(2 * time.Second)
	a.Start()
	b.Start()

	next, _ := m.NextExpiry()
	if !next.Equal(c.Now().Add(2 * time.Second)) {
		t.Errorf("next expiry %v", next)
	}
	b.Stop()
	next, _ = m.NextExpiry()
	if !next.Equal(c.Now().Add(3 * time.Second)) {
		t.Errorf("next expiry %v after stop", next)
	}
}
