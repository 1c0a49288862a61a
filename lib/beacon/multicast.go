// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// NewMulticast binds a socket to the group port and joins group on the
// interface carrying local. With an unspecified local address every
// multicast capable interface is joined.
func NewMulticast(group netip.AddrPort, local netip.Addr, outbox chan<- Datagram) (Interface, error) {
	if !group.Addr().IsMulticast() {
		return nil, errors.New("not a multicast address: " + group.Addr().String())
	}

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(context.Background(), network(group.Addr()), bindAddress(group))
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)

	var intfs []net.Interface
	if intf, err := InterfaceFor(local); err != nil {
		conn.Close()
		return nil, err
	} else if intf != nil {
		intfs = []net.Interface{*intf}
	} else if intfs, err = net.Interfaces(); err != nil {
		conn.Close()
		return nil, err
	}

	gaddr := &net.UDPAddr{IP: group.Addr().AsSlice()}
	joined := 0
	for i := range intfs {
		intf := &intfs[i]
		if intf.Flags&net.FlagMulticast == 0 {
			continue
		}
		var err error
		if group.Addr().Is4() {
			err = ipv4.NewPacketConn(conn).JoinGroup(intf, gaddr)
		} else {
			err = ipv6.NewPacketConn(conn).JoinGroup(intf, gaddr)
		}
		if err != nil {
			l.Debugln("join", group.Addr(), "on", intf.Name, "failed:", err)
			continue
		}
		l.Debugln("joined", group.Addr(), "on", intf.Name)
		joined++
	}
	if joined == 0 {
		conn.Close()
		return nil, errors.New("no multicast interfaces available")
	}

	return newSocket("multicastBeacon", conn, group, true, outbox), nil
}
