// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"net/netip"
	"time"

	"github.com/syncthing/someipsd/lib/endpoint"
	"github.com/syncthing/someipsd/lib/timer"
)

// maxPendingUnicast bounds the number of peers with a delayed unicast offer
// outstanding. When full, the oldest is sent early to make room.
const maxPendingUnicast = 256

type pendingUnicast struct {
	to    netip.AddrPort
	timer *timer.Timer
}

// sendQueue coalesces delayed offers. There is at most one pending offer
// per unicast destination plus one multicast offer, and a pending send is
// only ever moved earlier. The message is built when it is sent so it
// reflects the configuration at that time.
type sendQueue struct {
	timers    *timer.Manager
	sender    endpoint.MessageSender
	builder   *builder
	unicast   []*pendingUnicast // oldest first
	multicast *timer.Timer
}

func newSendQueue(timers *timer.Manager, sender endpoint.MessageSender, b *builder) *sendQueue {
	q := &sendQueue{
		timers:  timers,
		sender:  sender,
		builder: b,
	}
	q.multicast = timers.NewTimer(q.sendMulticast)
	return q
}

func (q *sendQueue) addUnicast(to netip.AddrPort, delay time.Duration) {
	if delay <= 0 {
		q.sendUnicast(to)
		return
	}

	at := q.timers.Now().Add(delay)
	if p := q.find(to); p != nil {
		if at.Before(p.timer.Expiry()) {
			p.timer.StartAt(at)
		}
		return
	}

	if len(q.unicast) >= maxPendingUnicast {
		oldest := q.unicast[0]
		oldest.timer.Remove()
		q.unicast = q.unicast[1:]
		metricOffersEvicted.Inc()
		q.sendUnicast(oldest.to)
	}

	p := &pendingUnicast{to: to}
	p.timer = q.timers.NewTimer(func() {
		q.forget(p)
		q.sendUnicast(p.to)
	})
	p.timer.StartAt(at)
	q.unicast = append(q.unicast, p)
}

func (q *sendQueue) addMulticast(delay time.Duration) {
	if delay <= 0 {
		q.sendMulticast()
		return
	}
	at := q.timers.Now().Add(delay)
	if !q.multicast.Running() || at.Before(q.multicast.Expiry()) {
		q.multicast.StartAt(at)
	}
}

// pending returns the number of offers waiting to be sent.
func (q *sendQueue) pending() int {
	n := len(q.unicast)
	if q.multicast.Running() {
		n++
	}
	return n
}

// clear drops all pending offers without sending them.
func (q *sendQueue) clear() {
	for _, p := range q.unicast {
		p.timer.Remove()
	}
	q.unicast = nil
	q.multicast.Stop()
}

func (q *sendQueue) find(to netip.AddrPort) *pendingUnicast {
	for _, p := range q.unicast {
		if p.to == to {
			return p
		}
	}
	return nil
}

func (q *sendQueue) forget(p *pendingUnicast) {
	p.timer.Remove()
	for i, o := range q.unicast {
		if o == p {
			q.unicast = append(q.unicast[:i], q.unicast[i+1:]...)
			return
		}
	}
}

func (q *sendQueue) sendUnicast(to netip.AddrPort) {
	entries, options := q.builder.offer()
	if err := q.sender.SendUnicast(to, entries, options); err != nil {
		l.Debugf("unicast offer to %v: %v", to, err)
		return
	}
	metricOffersSent.WithLabelValues(metricChannelUnicast).Inc()
}

func (q *sendQueue) sendMulticast() {
	entries, options := q.builder.offer()
	if err := q.sender.SendMulticast(entries, options); err != nil {
		l.Debugf("multicast offer: %v", err)
		return
	}
	metricOffersSent.WithLabelValues(metricChannelMulticast).Inc()
}
