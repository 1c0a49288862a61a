// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"fmt"
	"net/netip"

	"github.com/syncthing/someipsd/lib/client"
	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/events"
)

// staticInstance is a required instance whose provider is configured. It
// is available as soon as it is requested and its eventgroups count as
// subscribed while they are wanted; no SD traffic is involved.
type staticInstance struct {
	d        *Discovery
	cfg      *config.RequiredServiceInstance
	tcp, udp netip.AddrPort

	requested   int
	subscribers map[uint16]int
}

func newStaticInstance(d *Discovery, cfg *config.RequiredServiceInstance, provider config.RemoteNetworkEndpoint) *staticInstance {
	s := &staticInstance{d: d, cfg: cfg, subscribers: make(map[uint16]int)}
	if provider.TCPPort != 0 {
		s.tcp = netip.AddrPortFrom(provider.Address, provider.TCPPort)
	}
	if provider.UDPPort != 0 {
		s.udp = netip.AddrPortFrom(provider.Address, provider.UDPPort)
	}
	return s
}

func (s *staticInstance) String() string {
	return fmt.Sprintf("static %v", s.cfg.ServiceInstance)
}

func (s *staticInstance) event() ServiceEvent {
	return serviceEvent(s.cfg.ServiceInstance, s.cfg.PortMapping.Address)
}

func (s *staticInstance) request() {
	s.requested++
	if s.requested > 1 {
		return
	}
	l.Infof("%v: connecting to tcp=%v udp=%v", s, s.tcp, s.udp)
	s.d.evLogger.Log(events.ServiceAvailable, AvailabilityEvent{ServiceEvent: s.event(), TCP: s.tcp, UDP: s.udp})
	for eg, n := range s.subscribers {
		if n > 0 {
			s.notify(eg, client.Subscribed)
		}
	}
}

func (s *staticInstance) release() error {
	if s.requested == 0 {
		return fmt.Errorf("%v: %w", s, client.ErrNotRequested)
	}
	s.requested--
	if s.requested > 0 {
		return nil
	}
	for eg, n := range s.subscribers {
		if n > 0 {
			s.notify(eg, client.NotSubscribed)
		}
	}
	clear(s.subscribers)
	s.d.evLogger.Log(events.ServiceUnavailable, s.event())
	return nil
}

func (s *staticInstance) subscribe(eventgroup uint16) error {
	if _, ok := s.cfg.Eventgroup(eventgroup); !ok {
		return fmt.Errorf("%v: 0x%04x: %w", s, eventgroup, client.ErrUnknownEventgroup)
	}
	s.subscribers[eventgroup]++
	if s.subscribers[eventgroup] == 1 && s.requested > 0 {
		s.notify(eventgroup, client.Subscribed)
	}
	return nil
}

func (s *staticInstance) unsubscribe(eventgroup uint16) error {
	if _, ok := s.cfg.Eventgroup(eventgroup); !ok {
		return fmt.Errorf("%v: 0x%04x: %w", s, eventgroup, client.ErrUnknownEventgroup)
	}
	if s.subscribers[eventgroup] == 0 {
		return fmt.Errorf("%v: 0x%04x: %w", s, eventgroup, client.ErrNotSubscribed)
	}
	s.subscribers[eventgroup]--
	if s.subscribers[eventgroup] == 0 && s.requested > 0 {
		s.notify(eventgroup, client.NotSubscribed)
	}
	return nil
}

func (s *staticInstance) eventgroupState(eventgroup uint16) (client.SubscriptionState, error) {
	if _, ok := s.cfg.Eventgroup(eventgroup); !ok {
		return client.NotSubscribed, fmt.Errorf("%v: 0x%04x: %w", s, eventgroup, client.ErrUnknownEventgroup)
	}
	if s.requested > 0 && s.subscribers[eventgroup] > 0 {
		return client.Subscribed, nil
	}
	return client.NotSubscribed, nil
}

func (s *staticInstance) notify(eventgroup uint16, state client.SubscriptionState) {
	s.d.evLogger.Log(events.SubscriptionStateChanged, SubscriptionEvent{ServiceEvent: s.event(), Eventgroup: eventgroup, State: state})
}
