// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package client

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/syncthing/someipsd/lib/someip"
)

var errNoEndpoint = errors.New("offer without TCP or UDP endpoint")

// Offer is the last offer received from the provider of a required service.
type Offer struct {
	SD        netip.AddrPort // where the offer came from
	Entry     someip.Entry
	TCP       netip.AddrPort
	UDP       netip.AddrPort
	Multicast bool
}

// newOffer resolves the endpoints referenced by e. Every referenced option
// must be a TCP or UDP endpoint, and anything but a stop offer needs at
// least one of them.
func newOffer(from netip.AddrPort, e someip.Entry, options []someip.Option, multicast bool) (Offer, error) {
	o := Offer{SD: from, Entry: e, Multicast: multicast}
	for _, opt := range someip.EntryOptions(e, options) {
		if opt.Type.IsMulticast() {
			return Offer{}, fmt.Errorf("unexpected %v option", opt.Type)
		}
		switch opt.Proto {
		case someip.ProtoTCP:
			o.TCP = opt.AddrPort()
		case someip.ProtoUDP:
			o.UDP = opt.AddrPort()
		default:
			return Offer{}, fmt.Errorf("endpoint option with protocol %v", opt.Proto)
		}
	}
	if !o.Stop() && !o.TCP.IsValid() && !o.UDP.IsValid() {
		return Offer{}, errNoEndpoint
	}
	return o, nil
}

// sameProvider returns true if other comes from the same SD endpoint and
// names the same instance and major version.
func (o Offer) sameProvider(other Offer) bool {
	return o.SD == other.SD && o.Entry.InstanceID == other.Entry.InstanceID &&
		o.Entry.MajorVersion == other.Entry.MajorVersion
}

func (o Offer) Stop() bool {
	return o.Entry.IsStop()
}

func (o Offer) String() string {
	return fmt.Sprintf("offer from %v tcp=%v udp=%v ttl=%d", o.SD, o.TCP, o.UDP, o.Entry.TTL)
}
