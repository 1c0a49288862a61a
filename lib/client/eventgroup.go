// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package client

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/syncthing/someipsd/lib/someip"
	"github.com/syncthing/someipsd/lib/timer"
)

// SubscriptionState is the state of an eventgroup subscription as seen by
// applications.
type SubscriptionState int

const (
	NotSubscribed SubscriptionState = iota
	SubscriptionPending
	Subscribed
)

func (s SubscriptionState) String() string {
	switch s {
	case NotSubscribed:
		return "not-subscribed"
	case SubscriptionPending:
		return "subscription-pending"
	case Subscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s SubscriptionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AckTimeout is how long a subscription waits for its acknowledgement
// before it is sent again.
const AckTimeout = 2 * time.Second

type egState int

const (
	egNotSubscribed egState = iota
	egPending
	egSubscribed
	egRenewal
)

func (s egState) String() string {
	switch s {
	case egNotSubscribed:
		return "not-subscribed"
	case egPending:
		return "pending"
	case egSubscribed:
		return "subscribed"
	case egRenewal:
		return "renewal"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s egState) reported() SubscriptionState {
	switch s {
	case egPending:
		return SubscriptionPending
	case egSubscribed, egRenewal:
		return Subscribed
	default:
		return NotSubscribed
	}
}

var validEgChanges = map[egState][]egState{
	egNotSubscribed: {egPending},
	egPending:       {egNotSubscribed, egSubscribed},
	egSubscribed:    {egNotSubscribed, egPending, egRenewal},
	egRenewal:       {egNotSubscribed, egPending, egSubscribed},
}

// eventgroupMachine subscribes one eventgroup while it is wanted locally
// and the service is offered, and renews the subscription on every offer.
type eventgroupMachine struct {
	c  *Client
	id uint16

	state     egState
	next      egState
	changeReq bool

	available bool
	count     int

	group netip.AddrPort // multicast group from the last ack
	ttl   uint32         // from the last ack

	ackTimer *timer.Timer
	ttlTimer *timer.Timer
}

func newEventgroupMachine(c *Client, id uint16) *eventgroupMachine {
	m := &eventgroupMachine{c: c, id: id}
	m.ackTimer = c.timers.NewTimer(func() { m.dispatch(m.onAckTimeout) })
	m.ttlTimer = c.timers.NewTimer(func() { m.dispatch(m.onTTLTimeout) })
	return m
}

func (m *eventgroupMachine) String() string {
	return fmt.Sprintf("%v eventgroup 0x%04x", m.c, m.id)
}

func (m *eventgroupMachine) subscribe() {
	m.count++
	if m.count > 1 {
		return
	}
	m.dispatch(func() {
		if m.state == egNotSubscribed && m.available {
			m.request(egPending)
		}
	})
}

func (m *eventgroupMachine) unsubscribe() error {
	if m.count == 0 {
		return fmt.Errorf("%v: %w", m, ErrNotSubscribed)
	}
	m.count--
	if m.count > 0 {
		return nil
	}
	m.dispatch(func() {
		switch m.state {
		case egPending, egSubscribed, egRenewal:
			m.c.sendStopSubscribe(m.id)
			m.request(egNotSubscribed)
		}
	})
	return nil
}

func (m *eventgroupMachine) onOffer() {
	m.dispatch(func() {
		m.available = true
		switch m.state {
		case egNotSubscribed:
			if m.count > 0 {
				m.request(egPending)
			}
		case egSubscribed:
			m.request(egRenewal)
		}
	})
}

func (m *eventgroupMachine) onStopOffer() {
	m.dispatch(func() {
		m.available = false
		m.request(egNotSubscribed)
	})
}

func (m *eventgroupMachine) onAck(group netip.AddrPort, ttl uint32) {
	m.dispatch(func() {
		switch m.state {
		case egPending, egRenewal:
			m.group = group
			m.ttl = ttl
			m.request(egSubscribed)
		}
	})
}

func (m *eventgroupMachine) onNack() {
	m.dispatch(func() {
		if m.state != egNotSubscribed {
			l.Infof("%v: subscription rejected", m)
			m.request(egNotSubscribed)
		}
	})
}

func (m *eventgroupMachine) onAckTimeout() {
	switch m.state {
	case egPending, egRenewal:
		metricSubscribeRetries.Inc()
		m.c.sendSubscribe(m.id)
		m.ackTimer.SetOneShot(AckTimeout)
		m.ackTimer.Start()
	}
}

func (m *eventgroupMachine) onTTLTimeout() {
	switch m.state {
	case egSubscribed, egRenewal:
		l.Debugf("%v: subscription expired", m)
		m.request(egPending)
	}
}

// shutdown drops all local subscriptions when the service is released.
func (m *eventgroupMachine) shutdown() {
	m.dispatch(func() {
		if m.state != egNotSubscribed {
			m.c.sendStopSubscribe(m.id)
		}
		m.available = false
		m.count = 0
		m.request(egNotSubscribed)
	})
}

func (m *eventgroupMachine) request(next egState) {
	m.next = next
	m.changeReq = true
}

func (m *eventgroupMachine) dispatch(fn func()) {
	fn()
	for m.changeReq {
		m.changeReq = false
		next := m.next
		if next == m.state {
			continue
		}
		valid := false
		for _, s := range validEgChanges[m.state] {
			valid = valid || s == next
		}
		if !valid {
			panic(fmt.Sprintf("%v: invalid state change %v -> %v", m, m.state, next))
		}
		prev := m.state
		m.leave()
		l.Debugf("%v: %v -> %v", m, prev, next)
		m.state = next
		m.enter(prev)
	}
}

func (m *eventgroupMachine) leave() {
	m.ackTimer.Stop()
	if m.state == egSubscribed || m.state == egRenewal {
		// Renewal carries the TTL of the previous ack until the next one.
		if m.next != egRenewal && m.next != egSubscribed {
			m.ttlTimer.Stop()
		}
	}
}

func (m *eventgroupMachine) enter(prev egState) {
	switch m.state {
	case egPending, egRenewal:
		m.c.sendSubscribe(m.id)
		m.ackTimer.SetOneShot(AckTimeout)
		m.ackTimer.Start()
	case egSubscribed:
		if m.ttl == someip.TTLInfinite {
			m.ttlTimer.Stop()
		} else {
			m.ttlTimer.SetOneShot(time.Duration(m.ttl) * time.Second)
			m.ttlTimer.Start()
		}
	}

	from, to := prev.reported(), m.state.reported()
	if from == to {
		return
	}
	if from == Subscribed && m.group.IsValid() {
		m.c.instance.StopListenForMulticastEventgroup(m.id)
	}
	if to == Subscribed && m.group.IsValid() {
		m.c.instance.StartListenForMulticastEventgroup(m.group, m.id)
	}
	metricSubscriptionStates.WithLabelValues(to.String()).Inc()
	m.c.instance.SubscriptionStateChanged(m.id, to)
}
