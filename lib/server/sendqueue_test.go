// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/endpoint/mocks"
	"github.com/syncthing/someipsd/lib/timer"
)

func newTestQueue() (*sendQueue, *mocks.MessageSender, *timer.FakeClock, *timer.Manager) {
	clock := timer.NewFakeClock()
	timers := timer.NewManager(clock)
	sender := new(mocks.MessageSender)
	cfg := &config.ProvidedServiceInstance{
		ServiceInstance:  config.ServiceInstance{ServiceID: 0x1234, InstanceID: 1, MajorVersion: 1},
		ServiceDiscovery: config.ProvidedServiceDiscovery{TTL: 3},
	}
	pm := config.PortMapping{Address: netip.MustParseAddr("10.0.0.1"), UDPPort: 40000}
	return newSendQueue(timers, sender, newBuilder(cfg, pm)), sender, clock, timers
}

func TestSendQueueMovesEarlier(t *testing.T) {
	q, sender, clock, timers := newTestQueue()
	to := netip.MustParseAddrPort("10.0.0.2:30490")

	q.addUnicast(to, 500*time.Millisecond)
	q.addUnicast(to, 100*time.Millisecond)
	if n := q.pending(); n != 1 {
		t.Fatalf("%d pending, expected 1", n)
	}

	clock.Advance(timers, 99*time.Millisecond)
	if n := sender.SendUnicastCallCount(); n != 0 {
		t.Fatal("sent early")
	}
	clock.Advance(timers, time.Millisecond)
	if n := sender.SendUnicastCallCount(); n != 1 {
		t.Fatalf("%d sends at 100ms", n)
	}
	clock.Advance(timers, time.Second)
	if n := sender.SendUnicastCallCount(); n != 1 {
		t.Fatalf("%d sends in total", n)
	}
	if n := q.pending(); n != 0 {
		t.Errorf("%d still pending", n)
	}
	if n := timers.Len(); n != 1 {
		t.Errorf("%d timers registered, expected only the multicast one", n)
	}
}

func TestSendQueueKeepsEarlier(t *testing.T) {
	q, sender, clock, timers := newTestQueue()
	to := netip.MustParseAddrPort("10.0.0.2:30490")

	q.addUnicast(to, 100*time.Millisecond)
	q.addUnicast(to, 500*time.Millisecond)
	clock.Advance(timers, 100*time.Millisecond)
	if n := sender.SendUnicastCallCount(); n != 1 {
		t.Fatalf("%d sends at 100ms", n)
	}
	clock.Advance(timers, time.Second)
	if n := sender.SendUnicastCallCount(); n != 1 {
		t.Fatalf("%d sends in total", n)
	}
}

func TestSendQueueImmediate(t *testing.T) {
	q, sender, _, _ := newTestQueue()
	q.addUnicast(netip.MustParseAddrPort("10.0.0.2:30490"), 0)
	q.addMulticast(0)
	if sender.SendUnicastCallCount() != 1 || sender.SendMulticastCallCount() != 1 {
		t.Fatal("zero delay did not send immediately")
	}
	if n := q.pending(); n != 0 {
		t.Errorf("%d pending", n)
	}
}

func TestSendQueueMulticast(t *testing.T) {
	q, sender, clock, timers := newTestQueue()

	q.addMulticast(300 * time.Millisecond)
	q.addMulticast(50 * time.Millisecond)
	q.addMulticast(200 * time.Millisecond)
	clock.Advance(timers, 50*time.Millisecond)
	if n := sender.SendMulticastCallCount(); n != 1 {
		t.Fatalf("%d sends at 50ms", n)
	}
	clock.Advance(timers, time.Second)
	if n := sender.SendMulticastCallCount(); n != 1 {
		t.Fatalf("%d sends in total", n)
	}
}

func TestSendQueueEvictsOldest(t *testing.T) {
	q, sender, clock, timers := newTestQueue()

	first := netip.MustParseAddrPort("10.0.1.0:30490")
	q.addUnicast(first, time.Second)
	for i := 1; i < maxPendingUnicast; i++ {
		q.addUnicast(netip.MustParseAddrPort(fmt.Sprintf("10.0.1.%d:30490", i)), time.Second)
	}
	if n := sender.SendUnicastCallCount(); n != 0 {
		t.Fatalf("%d sends before the queue is full", n)
	}

	q.addUnicast(netip.MustParseAddrPort("10.0.2.0:30490"), time.Second)
	if n := sender.SendUnicastCallCount(); n != 1 {
		t.Fatalf("%d sends on overflow", n)
	}
	if to, _, _ := sender.SendUnicastArgsForCall(0); to != first {
		t.Errorf("evicted %v, expected the oldest %v", to, first)
	}
	if n := q.pending(); n != maxPendingUnicast {
		t.Errorf("%d pending", n)
	}

	clock.Advance(timers, time.Second)
	if n := sender.SendUnicastCallCount(); n != maxPendingUnicast+1 {
		t.Errorf("%d sends in total", n)
	}
}

func TestSendQueueClear(t *testing.T) {
	q, sender, clock, timers := newTestQueue()
	q.addUnicast(netip.MustParseAddrPort("10.0.0.2:30490"), time.Second)
	q.addMulticast(time.Second)
	q.clear()
	clock.Advance(timers, time.Minute)
	if sender.SendUnicastCallCount()+sender.SendMulticastCallCount() != 0 {
		t.Fatal("cleared offers were sent")
	}
}

func TestBuilderOfferOptions(t *testing.T) {
	cfg := &config.ProvidedServiceInstance{
		ServiceInstance:  config.ServiceInstance{ServiceID: 1, InstanceID: 2, MajorVersion: 3, MinorVersion: 4},
		ServiceDiscovery: config.ProvidedServiceDiscovery{TTL: 7},
	}
	pm := config.PortMapping{Address: netip.MustParseAddr("fe80::1"), TCPPort: 1000}
	b := newBuilder(cfg, pm)

	entries, options := b.offer()
	if entries[0].TTL != 7 || entries[0].Count1 != 1 {
		t.Errorf("unexpected offer %v", entries[0])
	}
	if len(options) != 1 || !options[0].Type.IsIPv6() {
		t.Errorf("unexpected options %v", options)
	}

	entries, _ = b.stopOffer()
	if !entries[0].IsStop() {
		t.Errorf("stop offer with ttl %d", entries[0].TTL)
	}

	entries, options = b.ack(5, 9, 3)
	if entries[0].TTL != 9 || entries[0].Counter != 3 || len(options) != 0 {
		t.Errorf("unexpected ack %v %v", entries[0], options)
	}
}
