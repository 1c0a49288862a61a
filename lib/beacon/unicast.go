// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import (
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// NewUnicast binds a UDP socket to addr. Multicast sends leave through
// this socket too, on the interface carrying addr, with loopback enabled
// so local listeners see them.
func NewUnicast(addr netip.AddrPort, outbox chan<- Datagram) (Interface, error) {
	conn, err := net.ListenUDP(network(addr.Addr()), net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, err
	}

	intf, err := InterfaceFor(addr.Addr())
	if err != nil {
		l.Debugln("unicast", addr, err)
	}
	if addr.Addr().Is4() {
		p := ipv4.NewPacketConn(conn)
		if intf != nil {
			if err := p.SetMulticastInterface(intf); err != nil {
				l.Debugln("IPv4 multicast interface", intf.Name, err)
			}
		}
		p.SetMulticastLoopback(true)
		p.SetMulticastTTL(1)
	} else {
		p := ipv6.NewPacketConn(conn)
		if intf != nil {
			if err := p.SetMulticastInterface(intf); err != nil {
				l.Debugln("IPv6 multicast interface", intf.Name, err)
			}
		}
		p.SetMulticastLoopback(true)
		p.SetMulticastHopLimit(1)
	}

	local := addr
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		local = netip.AddrPortFrom(addr.Addr(), uint16(ua.Port))
	}
	return newSocket("unicastBeacon", conn, local, false, outbox), nil
}
