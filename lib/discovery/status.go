// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/syncthing/someipsd/lib/client"
)

const (
	KindProvided = "provided"
	KindRequired = "required"
	KindStatic   = "static"
)

// InstanceStatus is a snapshot of one state machine, safe to read from any
// goroutine.
type InstanceStatus struct {
	Kind      string     `json:"kind"`
	Service   uint16     `json:"service"`
	Instance  uint16     `json:"instance"`
	Major     uint8      `json:"major"`
	Minor     uint32     `json:"minor"`
	Local     netip.Addr `json:"local"`
	State     string     `json:"state"`
	Requested bool       `json:"requested,omitempty"`
	Available bool       `json:"available,omitempty"`

	// Provided instances: subscribers per eventgroup.
	Subscribers map[uint16][]string `json:"subscribers,omitempty"`

	// Required instances: the current provider and the eventgroup states.
	Provider    netip.AddrPort                      `json:"provider,omitzero"`
	TCP         netip.AddrPort                      `json:"tcp,omitzero"`
	UDP         netip.AddrPort                      `json:"udp,omitzero"`
	Eventgroups map[uint16]client.SubscriptionState `json:"eventgroups,omitempty"`
}

func (s InstanceStatus) key() string {
	return fmt.Sprintf("%s/%04x/%04x/%d/%v", s.Kind, s.Service, s.Instance, s.Major, s.Local)
}

type EndpointStatus struct {
	Address            netip.Addr `json:"address"`
	UnicastSenders     int        `json:"unicastSenders"`
	UnicastReceivers   int        `json:"unicastReceivers"`
	MulticastReceivers int        `json:"multicastReceivers"`
	Sockets            []string   `json:"sockets"`
	Errors             []string   `json:"errors,omitempty"`
}

// Status returns the state of every service instance, ordered by kind,
// ids and local address.
func (d *Discovery) Status() []InstanceStatus {
	res := make([]InstanceStatus, 0, d.status.Size())
	d.status.Range(func(_ string, v InstanceStatus) bool {
		res = append(res, v)
		return true
	})
	slices.SortFunc(res, func(a, b InstanceStatus) int {
		return cmp.Compare(a.key(), b.key())
	})
	return res
}

func (d *Discovery) EndpointStatus() []EndpointStatus {
	res := make([]EndpointStatus, 0, d.epStatus.Size())
	d.epStatus.Range(func(_ netip.Addr, v EndpointStatus) bool {
		res = append(res, v)
		return true
	})
	slices.SortFunc(res, func(a, b EndpointStatus) int {
		return a.Address.Compare(b.Address)
	})
	return res
}

// Uptime returns how long the event loop has been running.
func (d *Discovery) Uptime() time.Duration {
	if t, ok := d.started.Load().(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

// publishStatus copies the loop owned state into the snapshot maps.
func (d *Discovery) publishStatus() {
	for _, p := range d.provided {
		si := p.cfg.ServiceInstance
		st := InstanceStatus{
			Kind:     KindProvided,
			Service:  si.ServiceID,
			Instance: si.InstanceID,
			Major:    si.MajorVersion,
			Minor:    si.MinorVersion,
			Local:    p.local,
			State:    p.srv.State().String(),
		}
		if subs := p.srv.Subscriptions(); len(subs) > 0 {
			st.Subscribers = make(map[uint16][]string, len(subs))
			for eg, list := range subs {
				for _, s := range list {
					st.Subscribers[eg] = append(st.Subscribers[eg], s.String())
				}
			}
		}
		d.status.Store(st.key(), st)
	}
	for _, r := range d.required {
		si := r.cfg.ServiceInstance
		st := InstanceStatus{
			Kind:        KindRequired,
			Service:     si.ServiceID,
			Instance:    si.InstanceID,
			Major:       si.MajorVersion,
			Minor:       si.MinorVersion,
			Local:       r.local,
			State:       r.cl.State().String(),
			Requested:   r.cl.Requested(),
			Available:   r.cl.Available(),
			Eventgroups: r.cl.Eventgroups(),
			TCP:         r.tcp,
			UDP:         r.udp,
		}
		if o, ok := r.cl.Offer(); ok {
			st.Provider = o.SD
		}
		d.status.Store(st.key(), st)
	}
	for _, s := range d.static {
		si := s.cfg.ServiceInstance
		st := InstanceStatus{
			Kind:      KindStatic,
			Service:   si.ServiceID,
			Instance:  si.InstanceID,
			Major:     si.MajorVersion,
			Minor:     si.MinorVersion,
			Local:     s.cfg.PortMapping.Address,
			State:     "static",
			Requested: s.requested > 0,
			Available: s.requested > 0,
			TCP:       s.tcp,
			UDP:       s.udp,
		}
		st.Eventgroups = make(map[uint16]client.SubscriptionState)
		for _, eg := range s.cfg.ServiceDiscovery.Eventgroups {
			st.Eventgroups[eg.ID], _ = s.eventgroupState(eg.ID)
		}
		d.status.Store(st.key(), st)
	}
	for _, ep := range d.endpoints {
		us, ur, mr := ep.Reboots().Stats()
		st := EndpointStatus{
			Address:            ep.Address(),
			UnicastSenders:     us,
			UnicastReceivers:   ur,
			MulticastReceivers: mr,
		}
		for _, s := range ep.Sockets() {
			st.Sockets = append(st.Sockets, s.LocalAddr().String())
			if err := s.Error(); err != nil {
				st.Errors = append(st.Errors, err.Error())
			}
		}
		d.epStatus.Store(ep.Address(), st)
	}
}
