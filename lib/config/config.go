// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements the daemon configuration: network endpoints,
// the provided and required service instances with their service discovery
// timing, and static service discovery. A configuration is built once at
// startup from one or more JSON or YAML fragments and is read-only after
// that.
package config

import (
	"net/netip"
	"slices"
	"time"
)

const (
	DefaultSDPort = 30490
	DefaultMTU    = 1400
)

// Wildcard values usable in lookups and SD entries.
const (
	InstanceAny     uint16 = 0xFFFF
	MajorVersionAny uint8  = 0xFF
	MinorVersionAny uint32 = 0xFFFFFFFF
)

type Configuration struct {
	Applications             []string                  `json:"applications,omitempty"`
	NetworkEndpoints         []NetworkEndpoint         `json:"network_endpoints"`
	Services                 []Service                 `json:"services"`
	ProvidedServiceInstances []ProvidedServiceInstance `json:"provided_service_instances"`
	RequiredServiceInstances []RequiredServiceInstance `json:"required_service_instances"`
	StaticServiceDiscovery   StaticServiceDiscovery    `json:"static_service_discovery"`
	MessageOptimization      bool                      `json:"message_optimization"`
	RateLimit                RateLimit                 `json:"rate_limit"`
}

type NetworkEndpoint struct {
	Address          netip.Addr                `json:"address"`
	MTU              int                       `json:"mtu" default:"1400"`
	ServiceDiscovery NetworkEndpointDiscovery `json:"service_discovery"`
}

type NetworkEndpointDiscovery struct {
	MulticastAddress netip.Addr `json:"multicast_address"`
	Port             uint16     `json:"port" default:"30490"`
}

func (n NetworkEndpoint) UnicastAddrPort() netip.AddrPort {
	return netip.AddrPortFrom(n.Address, n.ServiceDiscovery.Port)
}

func (n NetworkEndpoint) MulticastAddrPort() netip.AddrPort {
	return netip.AddrPortFrom(n.ServiceDiscovery.MulticastAddress, n.ServiceDiscovery.Port)
}

type Proto string

const (
	ProtoTCP Proto = "tcp"
	ProtoUDP Proto = "udp"
)

type Service struct {
	ID           uint16       `json:"service_id"`
	MajorVersion uint8        `json:"major_version"`
	MinorVersion uint32       `json:"minor_version"`
	Events       []Event      `json:"events"`
	Eventgroups  []Eventgroup `json:"eventgroups"`
}

type Event struct {
	ID    uint16 `json:"id"`
	Field bool   `json:"field"`
	Proto Proto  `json:"proto"`
}

type Eventgroup struct {
	ID     uint16   `json:"id"`
	Events []uint16 `json:"events"`
}

type PortMapping struct {
	Address               netip.Addr `json:"address"`
	TCPPort               uint16     `json:"tcp_port"`
	UDPPort               uint16     `json:"udp_port"`
	EventMulticastAddress netip.Addr `json:"event_multicast_address"`
	EventMulticastPort    uint16     `json:"event_multicast_port"`
}

func (p PortMapping) TCP() (netip.AddrPort, bool) {
	return netip.AddrPortFrom(p.Address, p.TCPPort), p.TCPPort != 0
}

func (p PortMapping) UDP() (netip.AddrPort, bool) {
	return netip.AddrPortFrom(p.Address, p.UDPPort), p.UDPPort != 0
}

func (p PortMapping) EventMulticast() (netip.AddrPort, bool) {
	return netip.AddrPortFrom(p.EventMulticastAddress, p.EventMulticastPort),
		p.EventMulticastAddress.IsValid() && p.EventMulticastPort != 0
}

type ServiceInstance struct {
	ServiceID    uint16 `json:"service_id"`
	InstanceID   uint16 `json:"instance_id"`
	MajorVersion uint8  `json:"major_version"`
	MinorVersion uint32 `json:"minor_version"`
}

type ProvidedServiceInstance struct {
	ServiceInstance
	PortMappings     []PortMapping            `json:"port_mappings"`
	ServiceDiscovery ProvidedServiceDiscovery `json:"service_discovery"`
}

type ProvidedServiceDiscovery struct {
	TTL                     uint32               `json:"ttl" default:"3"`
	InitialDelayMin         time.Duration        `json:"initial_delay_min_ns"`
	InitialDelayMax         time.Duration        `json:"initial_delay_max_ns"`
	RepetitionsBaseDelay    time.Duration        `json:"initial_repetitions_base_delay_ns"`
	RepetitionsMax          uint32               `json:"initial_repetitions_max"`
	CyclicOfferDelay        time.Duration        `json:"cyclic_offer_delay_ns"`
	RequestResponseDelayMin time.Duration        `json:"request_response_delay_min_ns"`
	RequestResponseDelayMax time.Duration        `json:"request_response_delay_max_ns"`
	Eventgroups             []ProvidedEventgroup `json:"eventgroups"`
}

type ProvidedEventgroup struct {
	ID                      uint16        `json:"id"`
	TTL                     uint32        `json:"ttl" default:"3"`
	MulticastThreshold      uint32        `json:"event_multicast_threshold"`
	RequestResponseDelayMin time.Duration `json:"request_response_delay_min_ns"`
	RequestResponseDelayMax time.Duration `json:"request_response_delay_max_ns"`
}

type RequiredServiceInstance struct {
	ServiceInstance
	PortMapping      PortMapping              `json:"port_mapping"`
	ServiceDiscovery RequiredServiceDiscovery `json:"service_discovery"`
}

type RequiredServiceDiscovery struct {
	TTL                  uint32               `json:"ttl" default:"3"`
	InitialDelayMin      time.Duration        `json:"initial_delay_min_ns"`
	InitialDelayMax      time.Duration        `json:"initial_delay_max_ns"`
	RepetitionsBaseDelay time.Duration        `json:"initial_repetitions_base_delay_ns"`
	RepetitionsMax       uint32               `json:"initial_repetitions_max"`
	Eventgroups          []RequiredEventgroup `json:"eventgroups"`
}

type RequiredEventgroup struct {
	ID                      uint16        `json:"id"`
	TTL                     uint32        `json:"ttl" default:"3"`
	RequestResponseDelayMin time.Duration `json:"request_response_delay_min_ns"`
	RequestResponseDelayMax time.Duration `json:"request_response_delay_max_ns"`
}

type StaticServiceDiscovery struct {
	Enable    bool                    `json:"enable"`
	Endpoints []RemoteNetworkEndpoint `json:"endpoints"`
}

// RemoteNetworkEndpoint is a statically known provider of service
// instances.
type RemoteNetworkEndpoint struct {
	Address                  netip.Addr        `json:"address"`
	TCPPort                  uint16            `json:"tcp_port"`
	UDPPort                  uint16            `json:"udp_port"`
	RequiredServiceInstances []ServiceInstance `json:"required_service_instances"`
}

// RateLimit bounds the SD datagrams accepted per peer address.
type RateLimit struct {
	PerSecond float64 `json:"per_second"`
	Burst     int     `json:"burst"`
	Peers     int     `json:"peers" default:"1024"`
}

// NetworkEndpoint returns the network endpoint with the given unicast
// address.
func (cfg *Configuration) NetworkEndpoint(addr netip.Addr) (NetworkEndpoint, bool) {
	for _, ne := range cfg.NetworkEndpoints {
		if ne.Address == addr {
			return ne, true
		}
	}
	return NetworkEndpoint{}, false
}

// Service returns the service definition with the given id.
func (cfg *Configuration) Service(id uint16) (Service, bool) {
	for _, s := range cfg.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// ProvidedInstance looks up a provided service instance. Wildcards are not
// resolved here; callers match entries against instances first.
func (cfg *Configuration) ProvidedInstance(service, instance uint16, major uint8) (*ProvidedServiceInstance, bool) {
	for i := range cfg.ProvidedServiceInstances {
		p := &cfg.ProvidedServiceInstances[i]
		if p.ServiceID == service && p.InstanceID == instance && p.MajorVersion == major {
			return p, true
		}
	}
	return nil, false
}

// RequiredInstance looks up a required service instance. A minor version
// of MinorVersionAny matches any configured minor version.
func (cfg *Configuration) RequiredInstance(service, instance uint16, major uint8, minor uint32) (*RequiredServiceInstance, bool) {
	for i := range cfg.RequiredServiceInstances {
		r := &cfg.RequiredServiceInstances[i]
		if r.ServiceID == service && r.InstanceID == instance && r.MajorVersion == major &&
			(minor == MinorVersionAny || r.MinorVersion == minor) {
			return r, true
		}
	}
	return nil, false
}

// Eventgroup returns the SD parameters of a provided eventgroup.
func (p *ProvidedServiceInstance) Eventgroup(id uint16) (ProvidedEventgroup, bool) {
	for _, eg := range p.ServiceDiscovery.Eventgroups {
		if eg.ID == id {
			return eg, true
		}
	}
	return ProvidedEventgroup{}, false
}

// PortMapping returns the port mapping bound to the local address addr.
func (p *ProvidedServiceInstance) PortMapping(addr netip.Addr) (PortMapping, bool) {
	for _, pm := range p.PortMappings {
		if pm.Address == addr {
			return pm, true
		}
	}
	return PortMapping{}, false
}

// Eventgroup returns the SD parameters of a required eventgroup.
func (r *RequiredServiceInstance) Eventgroup(id uint16) (RequiredEventgroup, bool) {
	for _, eg := range r.ServiceDiscovery.Eventgroups {
		if eg.ID == id {
			return eg, true
		}
	}
	return RequiredEventgroup{}, false
}

// EventgroupsOf returns the eventgroups of service containing event.
func (cfg *Configuration) EventgroupsOf(service, event uint16) []uint16 {
	s, ok := cfg.Service(service)
	if !ok {
		return nil
	}
	var res []uint16
	for _, eg := range s.Eventgroups {
		if slices.Contains(eg.Events, event) {
			res = append(res, eg.ID)
		}
	}
	return res
}

// StaticProviders returns the remote endpoints statically configured to
// provide the given instance.
func (cfg *Configuration) StaticProviders(si ServiceInstance) []RemoteNetworkEndpoint {
	var res []RemoteNetworkEndpoint
	for _, ep := range cfg.StaticServiceDiscovery.Endpoints {
		if slices.Contains(ep.RequiredServiceInstances, si) {
			res = append(res, ep)
		}
	}
	return res
}

// Copy returns a deep copy.
func (cfg Configuration) Copy() Configuration {
	newCfg := cfg
	newCfg.Applications = slices.Clone(cfg.Applications)
	newCfg.NetworkEndpoints = slices.Clone(cfg.NetworkEndpoints)

	newCfg.Services = make([]Service, len(cfg.Services))
	for i, s := range cfg.Services {
		s.Events = slices.Clone(s.Events)
		s.Eventgroups = slices.Clone(s.Eventgroups)
		for j := range s.Eventgroups {
			s.Eventgroups[j].Events = slices.Clone(s.Eventgroups[j].Events)
		}
		newCfg.Services[i] = s
	}

	newCfg.ProvidedServiceInstances = make([]ProvidedServiceInstance, len(cfg.ProvidedServiceInstances))
	for i, p := range cfg.ProvidedServiceInstances {
		p.PortMappings = slices.Clone(p.PortMappings)
		p.ServiceDiscovery.Eventgroups = slices.Clone(p.ServiceDiscovery.Eventgroups)
		newCfg.ProvidedServiceInstances[i] = p
	}

	newCfg.RequiredServiceInstances = make([]RequiredServiceInstance, len(cfg.RequiredServiceInstances))
	for i, r := range cfg.RequiredServiceInstances {
		r.ServiceDiscovery.Eventgroups = slices.Clone(r.ServiceDiscovery.Eventgroups)
		newCfg.RequiredServiceInstances[i] = r
	}

	newCfg.StaticServiceDiscovery.Endpoints = make([]RemoteNetworkEndpoint, len(cfg.StaticServiceDiscovery.Endpoints))
	for i, ep := range cfg.StaticServiceDiscovery.Endpoints {
		ep.RequiredServiceInstances = slices.Clone(ep.RequiredServiceInstances)
		newCfg.StaticServiceDiscovery.Endpoints[i] = ep
	}
	return newCfg
}
