// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"net/netip"
	"time"

	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/endpoint"
	"github.com/syncthing/someipsd/lib/someip"
	"github.com/syncthing/someipsd/lib/timer"
)

type subscription struct {
	sub        Subscriber
	eventgroup uint16
	ttl        *timer.Timer
}

// eventManager keeps the subscribers of one provided service instance.
// A subscription is identified by its endpoints and eventgroup, lives until
// its TTL runs out or the client withdraws it, and is reflected into the
// service instance.
type eventManager struct {
	cfg      *config.ProvidedServiceInstance
	pm       config.PortMapping
	timers   *timer.Manager
	sender   endpoint.MessageSender
	builder  *builder
	instance ServiceInstance
	subs     []*subscription
}

func newEventManager(cfg *config.ProvidedServiceInstance, pm config.PortMapping, timers *timer.Manager, sender endpoint.MessageSender, b *builder, instance ServiceInstance) *eventManager {
	return &eventManager{
		cfg:      cfg,
		pm:       pm,
		timers:   timers,
		sender:   sender,
		builder:  b,
		instance: instance,
	}
}

func subscriberOf(options []someip.Option) Subscriber {
	var sub Subscriber
	for _, o := range options {
		if o.Type.IsMulticast() {
			continue
		}
		switch o.Proto {
		case someip.ProtoTCP:
			sub.TCP = o.AddrPort()
		case someip.ProtoUDP:
			sub.UDP = o.AddrPort()
		}
	}
	return sub
}

func (m *eventManager) subscribe(from netip.AddrPort, e someip.Entry, options []someip.Option) {
	sub := subscriberOf(options)

	eg, ok := m.cfg.Eventgroup(e.EventgroupID)
	if !ok {
		l.Debugf("subscribe from %v: eventgroup 0x%04x not provided", from, e.EventgroupID)
		m.nack(from, e)
		return
	}

	if s := m.find(sub, e.EventgroupID); s != nil {
		m.armTTL(s, e.TTL)
		m.ack(from, e, eg.TTL)
		return
	}

	if _, ok := m.pm.TCP(); ok && (!sub.TCP.IsValid() || !m.instance.HasTCPConnection(sub.TCP)) {
		l.Debugf("subscribe from %v: no TCP connection from %v", from, sub.TCP)
		m.nack(from, e)
		return
	}
	if _, ok := m.pm.UDP(); ok && !sub.UDP.IsValid() {
		l.Debugf("subscribe from %v: no UDP endpoint", from)
		m.nack(from, e)
		return
	}

	s := &subscription{sub: sub, eventgroup: e.EventgroupID}
	s.ttl = m.timers.NewTimer(func() { m.expire(s) })
	m.instance.SubscribeEventgroup(sub, e.EventgroupID)
	m.subs = append(m.subs, s)
	metricSubscriptions.Inc()
	l.Debugf("%v subscribed to eventgroup 0x%04x of %v", sub, e.EventgroupID, m.cfg.ServiceInstance)
	m.ack(from, e, eg.TTL)
	m.armTTL(s, e.TTL)
}

func (m *eventManager) unsubscribe(e someip.Entry, options []someip.Option) {
	s := m.find(subscriberOf(options), e.EventgroupID)
	if s == nil {
		return
	}
	m.drop(s)
}

// unsubscribeAddr drops every subscription with an endpoint on addr.
func (m *eventManager) unsubscribeAddr(addr netip.Addr) {
	for _, s := range append([]*subscription(nil), m.subs...) {
		if s.sub.TCP.Addr() == addr || s.sub.UDP.Addr() == addr {
			m.drop(s)
		}
	}
}

func (m *eventManager) unsubscribeAll() {
	for _, s := range append([]*subscription(nil), m.subs...) {
		m.drop(s)
	}
}

func (m *eventManager) snapshot() map[uint16][]Subscriber {
	res := make(map[uint16][]Subscriber)
	for _, s := range m.subs {
		res[s.eventgroup] = append(res[s.eventgroup], s.sub)
	}
	return res
}

func (m *eventManager) expire(s *subscription) {
	l.Debugf("subscription of %v to eventgroup 0x%04x expired", s.sub, s.eventgroup)
	metricSubscriptionsExpired.Inc()
	m.drop(s)
}

func (m *eventManager) armTTL(s *subscription, ttl uint32) {
	if ttl == someip.TTLInfinite {
		s.ttl.Stop()
		return
	}
	s.ttl.SetOneShot(time.Duration(ttl) * time.Second)
	s.ttl.Start()
}

func (m *eventManager) drop(s *subscription) {
	s.ttl.Remove()
	m.instance.UnsubscribeEventgroup(s.sub, s.eventgroup)
	for i, o := range m.subs {
		if o == s {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			break
		}
	}
	metricSubscriptions.Dec()
}

func (m *eventManager) find(sub Subscriber, eventgroup uint16) *subscription {
	for _, s := range m.subs {
		if s.sub == sub && s.eventgroup == eventgroup {
			return s
		}
	}
	return nil
}

func (m *eventManager) ack(to netip.AddrPort, e someip.Entry, ttl uint32) {
	entries, options := m.builder.ack(e.EventgroupID, ttl, e.Counter)
	if err := m.sender.SendUnicast(to, entries, options); err != nil {
		l.Debugf("ack to %v: %v", to, err)
	}
}

func (m *eventManager) nack(to netip.AddrPort, e someip.Entry) {
	metricSubscriptionsRejected.Inc()
	entries, options := m.builder.nack(e.EventgroupID, e.Counter)
	if err := m.sender.SendUnicast(to, entries, options); err != nil {
		l.Debugf("nack to %v: %v", to, err)
	}
}
