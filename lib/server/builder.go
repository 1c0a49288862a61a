// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/someip"
)

type builder struct {
	si      config.ServiceInstance
	ttl     uint32
	pm      config.PortMapping
	options []someip.Option
}

func newBuilder(cfg *config.ProvidedServiceInstance, pm config.PortMapping) *builder {
	b := &builder{
		si:  cfg.ServiceInstance,
		ttl: cfg.ServiceDiscovery.TTL,
		pm:  pm,
	}
	if ap, ok := pm.TCP(); ok {
		b.options = append(b.options, someip.EndpointOption(ap.Addr(), someip.ProtoTCP, ap.Port()))
	}
	if ap, ok := pm.UDP(); ok {
		b.options = append(b.options, someip.EndpointOption(ap.Addr(), someip.ProtoUDP, ap.Port()))
	}
	return b
}

func (b *builder) offer() ([]someip.Entry, []someip.Option) {
	return b.offerEntry(b.ttl)
}

func (b *builder) stopOffer() ([]someip.Entry, []someip.Option) {
	return b.offerEntry(0)
}

func (b *builder) offerEntry(ttl uint32) ([]someip.Entry, []someip.Option) {
	e := someip.OfferServiceEntry(b.si.ServiceID, b.si.InstanceID, b.si.MajorVersion, b.si.MinorVersion,
		ttl, uint8(len(b.options)))
	options := make([]someip.Option, len(b.options))
	copy(options, b.options)
	return []someip.Entry{e}, options
}

func (b *builder) ack(eventgroup uint16, ttl uint32, counter uint8) ([]someip.Entry, []someip.Option) {
	var options []someip.Option
	if ap, ok := b.pm.EventMulticast(); ok {
		options = append(options, someip.MulticastOption(ap.Addr(), ap.Port()))
	}
	e := someip.SubscribeAckEntry(b.si.ServiceID, b.si.InstanceID, b.si.MajorVersion, eventgroup,
		ttl, counter, uint8(len(options)))
	return []someip.Entry{e}, options
}

func (b *builder) nack(eventgroup uint16, counter uint8) ([]someip.Entry, []someip.Option) {
	e := someip.SubscribeAckEntry(b.si.ServiceID, b.si.InstanceID, b.si.MajorVersion, eventgroup,
		0, counter, 0)
	return []someip.Entry{e}, nil
}
