// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"net/netip"

	"github.com/syncthing/someipsd/lib/client"
	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/events"
	"github.com/syncthing/someipsd/lib/server"
)

// The data of the events logged for service instances.
type (
	ServiceEvent struct {
		Service  uint16     `json:"service"`
		Instance uint16     `json:"instance"`
		Major    uint8      `json:"major"`
		Local    netip.Addr `json:"local"`
	}
	AvailabilityEvent struct {
		ServiceEvent
		TCP netip.AddrPort `json:"tcp"`
		UDP netip.AddrPort `json:"udp"`
	}
	SubscriberEvent struct {
		ServiceEvent
		Eventgroup uint16         `json:"eventgroup"`
		TCP        netip.AddrPort `json:"tcp"`
		UDP        netip.AddrPort `json:"udp"`
	}
	SubscriptionEvent struct {
		ServiceEvent
		Eventgroup uint16                   `json:"eventgroup"`
		State      client.SubscriptionState `json:"state"`
	}
	MulticastEvent struct {
		ServiceEvent
		Eventgroup uint16         `json:"eventgroup"`
		Group      netip.AddrPort `json:"group"`
	}
	RebootEvent struct {
		Local netip.Addr     `json:"local"`
		Peer  netip.AddrPort `json:"peer"`
	}
)

func serviceEvent(si config.ServiceInstance, local netip.Addr) ServiceEvent {
	return ServiceEvent{Service: si.ServiceID, Instance: si.InstanceID, Major: si.MajorVersion, Local: local}
}

// providedInstance is the local side of one provided instance on one
// network endpoint.
type providedInstance struct {
	d     *Discovery
	cfg   *config.ProvidedServiceInstance
	local netip.Addr
	srv   *server.Server
	up    bool
}

func (p *providedInstance) event() ServiceEvent {
	return serviceEvent(p.cfg.ServiceInstance, p.local)
}

func (p *providedInstance) Start() {
	p.up = true
	l.Infof("Offering %v on %v", p.cfg.ServiceInstance, p.local)
	p.d.evLogger.Log(events.ServiceOffered, p.event())
}

func (p *providedInstance) Stop() {
	p.up = false
	l.Infof("Stopped offering %v on %v", p.cfg.ServiceInstance, p.local)
	p.d.evLogger.Log(events.ServiceStopped, p.event())
}

func (p *providedInstance) SubscribeEventgroup(sub server.Subscriber, eventgroup uint16) {
	p.d.evLogger.Log(events.SubscriberAdded, SubscriberEvent{
		ServiceEvent: p.event(),
		Eventgroup:   eventgroup,
		TCP:          sub.TCP,
		UDP:          sub.UDP,
	})
}

func (p *providedInstance) UnsubscribeEventgroup(sub server.Subscriber, eventgroup uint16) {
	p.d.evLogger.Log(events.SubscriberRemoved, SubscriberEvent{
		ServiceEvent: p.event(),
		Eventgroup:   eventgroup,
		TCP:          sub.TCP,
		UDP:          sub.UDP,
	})
}

func (p *providedInstance) HasTCPConnection(remote netip.AddrPort) bool {
	return p.d.tracker.HasTCPConnection(remote)
}

// required is a client side instance, found through SD or configured
// statically.
type required interface {
	request()
	release() error
	subscribe(eventgroup uint16) error
	unsubscribe(eventgroup uint16) error
	eventgroupState(eventgroup uint16) (client.SubscriptionState, error)
}

type requiredInstance struct {
	d     *Discovery
	cfg   *config.RequiredServiceInstance
	local netip.Addr
	cl    *client.Client

	tcp, udp netip.AddrPort
	groups   map[uint16]netip.AddrPort
}

func (r *requiredInstance) event() ServiceEvent {
	return serviceEvent(r.cfg.ServiceInstance, r.local)
}

func (r *requiredInstance) request()       { r.cl.RequestService() }
func (r *requiredInstance) release() error { return r.cl.ReleaseService() }

func (r *requiredInstance) subscribe(eventgroup uint16) error {
	return r.cl.SubscribeEventgroup(eventgroup)
}

func (r *requiredInstance) unsubscribe(eventgroup uint16) error {
	return r.cl.UnsubscribeEventgroup(eventgroup)
}

func (r *requiredInstance) eventgroupState(eventgroup uint16) (client.SubscriptionState, error) {
	return r.cl.EventgroupState(eventgroup)
}

func (r *requiredInstance) Connect(tcp, udp netip.AddrPort) {
	r.tcp, r.udp = tcp, udp
	l.Infof("Service %v available at tcp=%v udp=%v", r.cfg.ServiceInstance, tcp, udp)
	r.d.evLogger.Log(events.ServiceAvailable, AvailabilityEvent{ServiceEvent: r.event(), TCP: tcp, UDP: udp})
}

func (r *requiredInstance) Disconnect() {
	r.tcp, r.udp = netip.AddrPort{}, netip.AddrPort{}
	l.Infof("Service %v no longer available", r.cfg.ServiceInstance)
	r.d.evLogger.Log(events.ServiceUnavailable, r.event())
}

func (r *requiredInstance) StartListenForMulticastEventgroup(group netip.AddrPort, eventgroup uint16) {
	if r.groups == nil {
		r.groups = make(map[uint16]netip.AddrPort)
	}
	r.groups[eventgroup] = group
	r.d.evLogger.Log(events.MulticastListenStarted, MulticastEvent{ServiceEvent: r.event(), Eventgroup: eventgroup, Group: group})
}

func (r *requiredInstance) StopListenForMulticastEventgroup(eventgroup uint16) {
	group := r.groups[eventgroup]
	delete(r.groups, eventgroup)
	r.d.evLogger.Log(events.MulticastListenStopped, MulticastEvent{ServiceEvent: r.event(), Eventgroup: eventgroup, Group: group})
}

func (r *requiredInstance) SubscriptionStateChanged(eventgroup uint16, state client.SubscriptionState) {
	r.d.evLogger.Log(events.SubscriptionStateChanged, SubscriptionEvent{ServiceEvent: r.event(), Eventgroup: eventgroup, State: state})
}
