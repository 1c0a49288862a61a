// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package client

import (
	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/someip"
)

type builder struct {
	si      config.ServiceInstance
	ttl     uint32
	options []someip.Option
}

func newBuilder(cfg *config.RequiredServiceInstance) *builder {
	b := &builder{
		si:  cfg.ServiceInstance,
		ttl: cfg.ServiceDiscovery.TTL,
	}
	if ap, ok := cfg.PortMapping.TCP(); ok {
		b.options = append(b.options, someip.EndpointOption(ap.Addr(), someip.ProtoTCP, ap.Port()))
	}
	if ap, ok := cfg.PortMapping.UDP(); ok {
		b.options = append(b.options, someip.EndpointOption(ap.Addr(), someip.ProtoUDP, ap.Port()))
	}
	return b
}

func (b *builder) find() ([]someip.Entry, []someip.Option) {
	e := someip.FindServiceEntry(b.si.ServiceID, b.si.InstanceID, b.si.MajorVersion, b.si.MinorVersion, b.ttl)
	return []someip.Entry{e}, nil
}

// subscribe returns a subscription to eventgroup of the instance in offer,
// carrying the local endpoints. A zero ttl withdraws it.
func (b *builder) subscribe(offer someip.Entry, eventgroup uint16, ttl uint32) ([]someip.Entry, []someip.Option) {
	e := someip.SubscribeEntry(offer.ServiceID, offer.InstanceID, offer.MajorVersion, eventgroup, ttl, 0, uint8(len(b.options)))
	options := make([]someip.Option, len(b.options))
	copy(options, b.options)
	return []someip.Entry{e}, options
}
