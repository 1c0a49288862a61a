// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package client

import (
	"fmt"
	"time"

	"github.com/syncthing/someipsd/lib/rand"
	"github.com/syncthing/someipsd/lib/someip"
	"github.com/syncthing/someipsd/lib/timer"
)

type State int

const (
	StateDown State = iota
	StateInitialWait
	StateRepetition
	StateMain
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateInitialWait:
		return "initial-wait"
	case StateRepetition:
		return "repetition"
	case StateMain:
		return "main"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var validChanges = map[State][]State{
	StateDown:        {StateInitialWait, StateMain},
	StateInitialWait: {StateDown, StateRepetition, StateMain},
	StateRepetition:  {StateDown, StateMain},
	StateMain:        {StateDown, StateInitialWait},
}

func isValidChange(from, to State) bool {
	for _, s := range validChanges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// findMachine decides when FindService entries are sent and tracks whether
// a provider is available. The one timer serves as phase timer while
// searching and as offer TTL timer once an offer was seen.
type findMachine struct {
	c *Client

	state     State
	next      State
	changeReq bool

	available bool
	networkUp bool
	requested bool

	timer       *timer.Timer
	repetitions uint32
	delay       time.Duration
}

func newFindMachine(c *Client) *findMachine {
	f := &findMachine{c: c}
	f.timer = c.timers.NewTimer(func() { f.dispatch(f.onTimeout) })
	return f
}

func (f *findMachine) onNetworkUp() {
	f.dispatch(func() {
		f.networkUp = true
		if f.state == StateDown && f.requested {
			if f.available {
				f.request(StateMain)
			} else {
				f.request(StateInitialWait)
			}
		}
	})
}

func (f *findMachine) onNetworkDown() {
	f.dispatch(func() {
		f.networkUp = false
		f.timer.Stop()
		if f.state == StateDown {
			f.setAvailable(false)
			return
		}
		f.request(StateDown)
	})
}

func (f *findMachine) onServiceRequested() {
	f.dispatch(func() {
		f.requested = true
		if f.state != StateDown {
			return
		}
		switch {
		case f.available:
			f.request(StateMain)
		case f.networkUp:
			f.request(StateInitialWait)
		}
	})
}

func (f *findMachine) onServiceReleased() {
	f.dispatch(func() {
		f.requested = false
		switch f.state {
		case StateInitialWait, StateRepetition:
			f.timer.Stop()
			f.request(StateDown)
		case StateMain:
			f.request(StateDown)
		}
	})
}

// forget drops the availability learned from the last offer.
func (f *findMachine) forget() {
	f.timer.Stop()
	f.available = false
}

func (f *findMachine) onOffer() {
	f.dispatch(func() {
		f.startTTL()
		f.setAvailable(true)
		switch f.state {
		case StateInitialWait, StateRepetition:
			f.request(StateMain)
		}
	})
}

func (f *findMachine) onStopOffer() {
	f.dispatch(func() {
		switch f.state {
		case StateDown:
			f.timer.Stop()
			f.setAvailable(false)
		case StateMain:
			f.timer.Stop()
			f.setAvailable(false)
			if f.requested && f.networkUp {
				f.request(StateInitialWait)
			}
		}
	})
}

func (f *findMachine) onTimeout() {
	switch f.state {
	case StateDown:
		f.c.offerExpired()
		f.setAvailable(false)
	case StateInitialWait:
		f.c.sendFind()
		f.afterFirstFind()
	case StateRepetition:
		f.c.sendFind()
		f.repetitions++
		if f.repetitions < f.c.cfg.ServiceDiscovery.RepetitionsMax {
			f.delay *= 2
			f.startTimer(f.delay)
		} else {
			f.request(StateMain)
		}
	case StateMain:
		f.c.offerExpired()
		f.setAvailable(false)
		if f.requested && f.networkUp {
			f.request(StateInitialWait)
		}
	}
}

func (f *findMachine) afterFirstFind() {
	if f.c.cfg.ServiceDiscovery.RepetitionsMax > 0 {
		f.request(StateRepetition)
	} else {
		f.request(StateMain)
	}
}

func (f *findMachine) startTTL() {
	ttl := f.c.offer.Entry.TTL
	if ttl == someip.TTLInfinite {
		f.timer.Stop()
		return
	}
	f.startTimer(time.Duration(ttl) * time.Second)
}

func (f *findMachine) startTimer(d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("%v: illegal timer delay %v", f.c, d))
	}
	f.timer.SetOneShot(d)
	f.timer.Start()
}

func (f *findMachine) setAvailable(available bool) {
	if f.available == available {
		return
	}
	f.available = available
	l.Debugf("%v: available %v", f.c, available)
	f.c.updateConnection()
}

func (f *findMachine) request(next State) {
	f.next = next
	f.changeReq = true
}

func (f *findMachine) dispatch(fn func()) {
	fn()
	for f.changeReq {
		f.changeReq = false
		next := f.next
		if next == f.state {
			continue
		}
		if !isValidChange(f.state, next) {
			panic(fmt.Sprintf("%v: invalid state change %v -> %v", f.c, f.state, next))
		}
		f.leave(next)
		l.Debugf("%v: %v -> %v", f.c, f.state, next)
		f.state = next
		metricStateChanges.WithLabelValues(next.String()).Inc()
		f.enter()
	}
}

func (f *findMachine) leave(next State) {
	// The offer TTL timer keeps running into the main phase.
	if f.state == StateDown && next != StateMain {
		f.timer.Stop()
	}
}

func (f *findMachine) enter() {
	switch f.state {
	case StateDown:
		if !f.networkUp {
			f.setAvailable(false)
		}
	case StateInitialWait:
		sd := f.c.cfg.ServiceDiscovery
		if d := rand.DurationBetween(sd.InitialDelayMin, sd.InitialDelayMax); d > 0 {
			f.startTimer(d)
			return
		}
		f.c.sendFind()
		f.afterFirstFind()
	case StateRepetition:
		f.repetitions = 0
		f.delay = f.c.cfg.ServiceDiscovery.RepetitionsBaseDelay
		f.startTimer(f.delay)
	}
}
