// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import (
	"bytes"
	"context"
	"net/netip"
	"testing"
	"time"
)

var loopback = netip.MustParseAddr("127.0.0.1")

func TestUnicastSendRecv(t *testing.T) {
	inbox := make(chan Datagram, 4)
	a, err := NewUnicast(netip.AddrPortFrom(loopback, 0), inbox)
	if err != nil {
		t.Skip("cannot bind:", err)
	}
	defer a.Close()
	b, err := NewUnicast(netip.AddrPortFrom(loopback, 0), inbox)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx)

	if a.LocalAddr().Port() == 0 {
		t.Fatal("local port not resolved")
	}
	payload := []byte("hello")
	if err := a.Send(payload, b.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-inbox:
		if !bytes.Equal(d.Data, payload) {
			t.Errorf("got %q", d.Data)
		}
		if d.From != a.LocalAddr() {
			t.Errorf("from %v, expected %v", d.From, a.LocalAddr())
		}
		if d.Local != b.LocalAddr() || d.Multicast {
			t.Errorf("unexpected receiving socket %v multicast=%v", d.Local, d.Multicast)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	inbox := make(chan Datagram)
	a, err := NewUnicast(netip.AddrPortFrom(loopback, 0), inbox)
	if err != nil {
		t.Skip("cannot bind:", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- a.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	// The socket survives a service restart.
	if err := a.Send([]byte("x"), a.LocalAddr()); err != nil {
		t.Error(err)
	}
}

func TestSendAfterClose(t *testing.T) {
	a, err := NewUnicast(netip.AddrPortFrom(loopback, 0), make(chan Datagram))
	if err != nil {
		t.Skip("cannot bind:", err)
	}
	a.Close()
	if err := a.Send([]byte("x"), a.LocalAddr()); err != ErrClosed {
		t.Errorf("got %v, expected ErrClosed", err)
	}
}

func TestInterfaceFor(t *testing.T) {
	intf, err := InterfaceFor(netip.IPv4Unspecified())
	if err != nil || intf != nil {
		t.Errorf("unspecified: %v %v", intf, err)
	}
	intf, err = InterfaceFor(loopback)
	if err != nil {
		t.Skip("no loopback interface:", err)
	}
	if intf == nil {
		t.Error("nil interface for loopback")
	}
	if _, err := InterfaceFor(netip.MustParseAddr("192.0.2.254")); err == nil {
		t.Error("expected error for address not on this host")
	}
}

func TestMulticastRejectsUnicastGroup(t *testing.T) {
	_, err := NewMulticast(netip.MustParseAddrPort("192.0.2.1:30490"), netip.Addr{}, make(chan Datagram))
	if err == nil {
		t.Fatal("expected error")
	}
}
