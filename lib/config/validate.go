// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// Validate reports every problem found, joined into one error.
func (cfg *Configuration) Validate() error {
	v := &validator{}

	if len(cfg.NetworkEndpoints) == 0 {
		v.add("no network endpoints configured")
	}
	seenNE := make(map[netip.Addr]bool)
	for i, ne := range cfg.NetworkEndpoints {
		what := fmt.Sprintf("network endpoint %d (%v)", i, ne.Address)
		if !ne.Address.IsValid() {
			v.add("%s: missing address", what)
			continue
		}
		if seenNE[ne.Address] {
			v.add("%s: duplicate address", what)
		}
		seenNE[ne.Address] = true
		mc := ne.ServiceDiscovery.MulticastAddress
		switch {
		case !mc.IsValid():
			v.add("%s: missing SD multicast address", what)
		case !mc.IsMulticast():
			v.add("%s: SD address %v is not a multicast address", what, mc)
		case mc.Is4() != ne.Address.Is4():
			v.add("%s: SD multicast address %v is of another address family", what, mc)
		}
		if ne.MTU < 128 {
			v.add("%s: MTU %d too small", what, ne.MTU)
		}
	}

	seenSvc := make(map[uint16]bool)
	for _, s := range cfg.Services {
		if seenSvc[s.ID] {
			v.add("service 0x%04x: defined twice", s.ID)
		}
		seenSvc[s.ID] = true
		events := make(map[uint16]bool)
		for _, e := range s.Events {
			events[e.ID] = true
			if e.Proto != "" && e.Proto != ProtoTCP && e.Proto != ProtoUDP {
				v.add("service 0x%04x event 0x%04x: unknown protocol %q", s.ID, e.ID, e.Proto)
			}
		}
		for _, eg := range s.Eventgroups {
			for _, e := range eg.Events {
				if !events[e] {
					v.add("service 0x%04x eventgroup 0x%04x: unknown event 0x%04x", s.ID, eg.ID, e)
				}
			}
		}
	}

	seenProv := make(map[ServiceInstance]bool)
	for _, p := range cfg.ProvidedServiceInstances {
		what := fmt.Sprintf("provided instance %v", p.ServiceInstance)
		if seenProv[p.ServiceInstance] {
			v.add("%s: defined twice", what)
		}
		seenProv[p.ServiceInstance] = true
		v.instance(cfg, what, p.ServiceInstance, true)
		if len(p.PortMappings) == 0 {
			v.add("%s: no port mappings", what)
		}
		for _, pm := range p.PortMappings {
			v.portMapping(cfg, what, pm)
		}
		sd := p.ServiceDiscovery
		v.timing(what, sd.InitialDelayMin, sd.InitialDelayMax, sd.RepetitionsBaseDelay, sd.RepetitionsMax)
		v.delayRange(what+" request-response delay", sd.RequestResponseDelayMin, sd.RequestResponseDelayMax)
		for _, eg := range sd.Eventgroups {
			v.eventgroup(cfg, what, p.ServiceID, eg.ID)
			v.delayRange(fmt.Sprintf("%s eventgroup 0x%04x request-response delay", what, eg.ID), eg.RequestResponseDelayMin, eg.RequestResponseDelayMax)
		}
	}

	for _, r := range cfg.RequiredServiceInstances {
		what := fmt.Sprintf("required instance %v", r.ServiceInstance)
		v.instance(cfg, what, r.ServiceInstance, false)
		if !cfg.StaticServiceDiscovery.Enable {
			v.portMapping(cfg, what, r.PortMapping)
		}
		sd := r.ServiceDiscovery
		v.timing(what, sd.InitialDelayMin, sd.InitialDelayMax, sd.RepetitionsBaseDelay, sd.RepetitionsMax)
		for _, eg := range sd.Eventgroups {
			v.eventgroup(cfg, what, r.ServiceID, eg.ID)
			v.delayRange(fmt.Sprintf("%s eventgroup 0x%04x request-response delay", what, eg.ID), eg.RequestResponseDelayMin, eg.RequestResponseDelayMax)
		}
	}

	if cfg.StaticServiceDiscovery.Enable {
		for i, ep := range cfg.StaticServiceDiscovery.Endpoints {
			what := fmt.Sprintf("static endpoint %d (%v)", i, ep.Address)
			if !ep.Address.IsValid() {
				v.add("%s: missing address", what)
			}
			if ep.TCPPort == 0 && ep.UDPPort == 0 {
				v.add("%s: neither TCP nor UDP port", what)
			}
		}
	}

	if cfg.RateLimit.PerSecond < 0 || cfg.RateLimit.Burst < 0 {
		v.add("rate limit: negative values")
	}

	return v.err()
}

type validator struct {
	errs []error
}

func (v *validator) add(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) err() error {
	return errors.Join(v.errs...)
}

// instance checks the ids of a service instance. Required instances may
// use the any instance and any major version wildcards.
func (v *validator) instance(cfg *Configuration, what string, si ServiceInstance, provided bool) {
	if si.ServiceID == 0xFFFF {
		v.add("%s: reserved service id", what)
	}
	if si.InstanceID == 0 || (provided && si.InstanceID == InstanceAny) {
		v.add("%s: reserved instance id", what)
	}
	if provided && si.MajorVersion == MajorVersionAny {
		v.add("%s: reserved major version", what)
	}
	if _, ok := cfg.Service(si.ServiceID); !ok {
		v.add("%s: service not defined", what)
	}
}

func (v *validator) portMapping(cfg *Configuration, what string, pm PortMapping) {
	if _, ok := cfg.NetworkEndpoint(pm.Address); !ok {
		v.add("%s: port mapping address %v is no network endpoint", what, pm.Address)
	}
	if pm.TCPPort == 0 && pm.UDPPort == 0 {
		v.add("%s: port mapping %v has neither TCP nor UDP port", what, pm.Address)
	}
	if pm.EventMulticastAddress.IsValid() && !pm.EventMulticastAddress.IsMulticast() {
		v.add("%s: event multicast address %v is not a multicast address", what, pm.EventMulticastAddress)
	}
}

func (v *validator) timing(what string, initialMin, initialMax, base time.Duration, repetitions uint32) {
	v.delayRange(what+" initial delay", initialMin, initialMax)
	if repetitions > 0 && base <= 0 {
		v.add("%s: repetitions without a base delay", what)
	}
}

func (v *validator) delayRange(what string, min, max time.Duration) {
	if min < 0 || max < 0 {
		v.add("%s: negative", what)
	} else if min > max {
		v.add("%s: min %v above max %v", what, min, max)
	}
}

func (v *validator) eventgroup(cfg *Configuration, what string, service, eventgroup uint16) {
	s, ok := cfg.Service(service)
	if !ok {
		return
	}
	for _, eg := range s.Eventgroups {
		if eg.ID == eventgroup {
			return
		}
	}
	v.add("%s: eventgroup 0x%04x not defined for service", what, eventgroup)
}

func (si ServiceInstance) String() string {
	return fmt.Sprintf("0x%04x.0x%04x v%d.%d", si.ServiceID, si.InstanceID, si.MajorVersion, si.MinorVersion)
}
