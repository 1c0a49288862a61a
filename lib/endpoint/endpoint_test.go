// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package endpoint

import (
	"errors"
	"net/netip"
	"slices"
	"testing"

	"github.com/d4l3k/messagediff"
	"github.com/syncthing/someipsd/lib/beacon"
	"github.com/syncthing/someipsd/lib/someip"
)

var (
	localAddr = netip.MustParseAddrPort("192.168.1.10:30490")
	groupAddr = netip.MustParseAddrPort("239.0.0.1:30490")
	peerAddr  = netip.MustParseAddrPort("192.168.1.20:30490")

	testEntries = []someip.Entry{someip.OfferServiceEntry(0x1234, 1, 1, 0, 3, 1)}
	testOptions = []someip.Option{someip.EndpointOption(netip.MustParseAddr("192.168.1.20"), someip.ProtoUDP, 40000)}
)

type sent struct {
	data []byte
	to   netip.AddrPort
}

type fakeTransport struct {
	sent []sent
	err  error
}

func (f *fakeTransport) Send(data []byte, to netip.AddrPort) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{data, to})
	return nil
}

type received struct {
	local     netip.Addr
	from      netip.AddrPort
	multicast bool
	entries   []someip.Entry
	options   []someip.Option
}

type fakeObserver struct {
	messages []received
	reboots  []netip.AddrPort
}

func (f *fakeObserver) OnUnicastMessage(local netip.Addr, from netip.AddrPort, entries []someip.Entry, options []someip.Option) {
	f.messages = append(f.messages, received{local, from, false, entries, options})
}

func (f *fakeObserver) OnMulticastMessage(local netip.Addr, from netip.AddrPort, entries []someip.Entry, options []someip.Option) {
	f.messages = append(f.messages, received{local, from, true, entries, options})
}

func (f *fakeObserver) OnRebootDetected(_ netip.Addr, from netip.AddrPort) {
	f.reboots = append(f.reboots, from)
}

func newTestEndpoint(cfg Config) (*Endpoint, *fakeTransport, *fakeObserver) {
	if !cfg.Unicast.IsValid() {
		cfg.Unicast = localAddr
	}
	if !cfg.Multicast.IsValid() {
		cfg.Multicast = groupAddr
	}
	tr := new(fakeTransport)
	obs := new(fakeObserver)
	return New(cfg, obs, tr), tr, obs
}

func datagram(session uint16, rebootFlag, multicast bool) beacon.Datagram {
	return beacon.Datagram{
		Data:      someip.Marshal(session, rebootFlag, testEntries, testOptions),
		From:      peerAddr,
		Local:     localAddr,
		Multicast: multicast,
	}
}

func TestSendUnicastSessions(t *testing.T) {
	e, tr, _ := newTestEndpoint(Config{})

	for i := 0; i < 3; i++ {
		if err := e.SendUnicast(peerAddr, testEntries, testOptions); err != nil {
			t.Fatal(err)
		}
	}
	if len(tr.sent) != 3 {
		t.Fatalf("sent %d datagrams", len(tr.sent))
	}
	for i, s := range tr.sent {
		if s.to != peerAddr {
			t.Errorf("sent to %v", s.to)
		}
		msg, err := someip.ParseMessage(s.data)
		if err != nil {
			t.Fatal(err)
		}
		if got := msg.Header.SessionID; got != uint16(i+1) {
			t.Errorf("message %d has session %d", i, got)
		}
		if !msg.Reboot() || !msg.Unicast() {
			t.Errorf("message %d flags 0x%02x", i, msg.Flags)
		}
		if diff, equal := messagediff.PrettyDiff(testEntries, msg.Entries); !equal {
			t.Error(diff)
		}
	}
}

func TestSendMulticastToGroup(t *testing.T) {
	e, tr, _ := newTestEndpoint(Config{})

	if err := e.SendMulticast(testEntries, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.SendUnicast(peerAddr, testEntries, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.SendMulticast(testEntries, nil); err != nil {
		t.Fatal(err)
	}

	if tr.sent[0].to != groupAddr || tr.sent[2].to != groupAddr {
		t.Errorf("multicast sent to %v and %v", tr.sent[0].to, tr.sent[2].to)
	}
	// The multicast counter is independent of the unicast one.
	for i, want := range []uint16{1, 1, 2} {
		hdr, _ := someip.ParseHeader(tr.sent[i].data)
		if hdr.SessionID != want {
			t.Errorf("message %d: session %d, expected %d", i, hdr.SessionID, want)
		}
	}
}

func TestSendTooLarge(t *testing.T) {
	e, tr, _ := newTestEndpoint(Config{MTU: 100})

	entries := make([]someip.Entry, 8)
	for i := range entries {
		entries[i] = someip.FindServiceEntry(uint16(i), someip.InstanceAny, someip.MajorVersionAny, someip.MinorVersionAny, 3)
	}
	err := e.SendMulticast(entries, nil)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("got %v, expected ErrMessageTooLarge", err)
	}
	if len(tr.sent) != 0 {
		t.Error("oversized message was sent")
	}
}

func TestSendError(t *testing.T) {
	e, tr, _ := newTestEndpoint(Config{})
	tr.err = errors.New("boom")
	if err := e.SendUnicast(peerAddr, testEntries, nil); !errors.Is(err, tr.err) {
		t.Errorf("got %v", err)
	}
}

func TestHandleForwards(t *testing.T) {
	e, _, obs := newTestEndpoint(Config{})

	e.HandleDatagram(datagram(1, true, false))
	e.HandleDatagram(datagram(1, true, true))

	if len(obs.messages) != 2 {
		t.Fatalf("observer got %d messages", len(obs.messages))
	}
	got := obs.messages[0]
	if got.local != localAddr.Addr() || got.from != peerAddr || got.multicast {
		t.Errorf("unexpected origin %v %v multicast=%v", got.local, got.from, got.multicast)
	}
	if diff, equal := messagediff.PrettyDiff(testEntries, got.entries); !equal {
		t.Error(diff)
	}
	if !slices.Equal(testOptions, got.options) {
		t.Errorf("options %v", got.options)
	}
	if !obs.messages[1].multicast {
		t.Error("second message not reported as multicast")
	}
	if len(obs.reboots) != 0 {
		t.Error("reboot reported on first contact")
	}
}

func TestHandleDropsSelf(t *testing.T) {
	e, _, obs := newTestEndpoint(Config{})

	d := datagram(1, true, true)
	d.From = netip.AddrPortFrom(localAddr.Addr(), 12345)
	e.HandleDatagram(d)
	if len(obs.messages) != 0 {
		t.Error("own message forwarded")
	}
}

func TestHandleDropsBadHeader(t *testing.T) {
	e, _, obs := newTestEndpoint(Config{})

	d := datagram(1, true, false)
	d.Data[14] = 0x00 // request, not notification
	e.HandleDatagram(d)

	d = datagram(1, true, false)
	d.Data = d.Data[:len(d.Data)-3]
	e.HandleDatagram(d)

	if len(obs.messages) != 0 {
		t.Errorf("observer got %d messages", len(obs.messages))
	}
}

func TestHandleMultipleMessages(t *testing.T) {
	e, _, obs := newTestEndpoint(Config{})

	d := datagram(1, true, false)
	d.Data = append(d.Data, someip.Marshal(2, true, testEntries, nil)...)
	// A truncated third message does not spoil the first two.
	d.Data = append(d.Data, 0xff, 0xff, 0x81)
	e.HandleDatagram(d)

	if len(obs.messages) != 2 {
		t.Fatalf("observer got %d messages", len(obs.messages))
	}
}

func TestRebootDetection(t *testing.T) {
	e, _, obs := newTestEndpoint(Config{})

	e.HandleDatagram(datagram(5, true, false))
	e.HandleDatagram(datagram(6, true, false))
	if len(obs.reboots) != 0 {
		t.Fatal("reboot reported for increasing session")
	}
	e.HandleDatagram(datagram(3, true, false))
	if len(obs.reboots) != 1 || obs.reboots[0] != peerAddr {
		t.Fatalf("reboots %v", obs.reboots)
	}
	// Messages are forwarded regardless.
	if len(obs.messages) != 3 {
		t.Errorf("observer got %d messages", len(obs.messages))
	}
}

func TestRebootResetsSiblingChannel(t *testing.T) {
	e, _, obs := newTestEndpoint(Config{})

	e.HandleDatagram(datagram(5, true, true))
	e.HandleDatagram(datagram(6, true, false))

	// Peer restarts; the multicast channel notices first.
	e.HandleDatagram(datagram(1, true, true))
	if len(obs.reboots) != 1 {
		t.Fatalf("reboots %v", obs.reboots)
	}
	// The unicast channel would see 6 -> 2 as a reboot too, had it not
	// been reset.
	e.HandleDatagram(datagram(2, true, false))
	if len(obs.reboots) != 1 {
		t.Errorf("reboot reported twice: %v", obs.reboots)
	}

	_, uc, mc := e.Reboots().Stats()
	if uc != 1 || mc != 1 {
		t.Errorf("receiver tables %d/%d", uc, mc)
	}
}

func TestRebootFlagSet(t *testing.T) {
	e, _, obs := newTestEndpoint(Config{})

	e.HandleDatagram(datagram(100, false, false))
	e.HandleDatagram(datagram(1, true, false))
	if len(obs.reboots) != 1 {
		t.Errorf("reboots %v", obs.reboots)
	}
}

func TestRateLimit(t *testing.T) {
	e, _, obs := newTestEndpoint(Config{RateLimit: 0.001, RateBurst: 2})

	for i := uint16(1); i <= 4; i++ {
		e.HandleDatagram(datagram(i, true, false))
	}
	if len(obs.messages) != 2 {
		t.Errorf("observer got %d messages, expected 2", len(obs.messages))
	}

	// Other peers have their own bucket.
	d := datagram(1, true, false)
	d.From = netip.MustParseAddrPort("192.168.1.21:30490")
	e.HandleDatagram(d)
	if len(obs.messages) != 3 {
		t.Errorf("observer got %d messages, expected 3", len(obs.messages))
	}
}

func TestLimiterDisabled(t *testing.T) {
	var r *limiter = newLimiter(0, 0, 0)
	for i := 0; i < 100; i++ {
		if !r.allow(peerAddr.Addr()) {
			t.Fatal("disabled limiter refused")
		}
	}
}

func TestLimiterEviction(t *testing.T) {
	r := newLimiter(0.001, 1, 2)
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	c := netip.MustParseAddr("10.0.0.3")

	if !r.allow(a) || r.allow(a) {
		t.Fatal("bucket for a not exhausted after one")
	}
	r.allow(b)
	r.allow(c) // evicts a
	if !r.allow(a) {
		t.Error("evicted peer should start with a fresh bucket")
	}
}
