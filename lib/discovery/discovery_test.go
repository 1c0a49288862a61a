// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/syncthing/someipsd/lib/beacon"
	"github.com/syncthing/someipsd/lib/client"
	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/endpoint"
	"github.com/syncthing/someipsd/lib/events"
	"github.com/syncthing/someipsd/lib/someip"
	"github.com/syncthing/someipsd/lib/timer"
)

var (
	local   = netip.MustParseAddr("192.168.7.2")
	group   = netip.MustParseAddr("239.0.0.1")
	peer    = netip.MustParseAddrPort("192.168.7.3:30490")
	peerUDP = netip.MustParseAddrPort("192.168.7.3:50002")

	provided = config.ServiceInstance{ServiceID: 0x1234, InstanceID: 1, MajorVersion: 1}
	wanted   = config.ServiceInstance{ServiceID: 0x5678, InstanceID: 1, MajorVersion: 1, MinorVersion: 2}
)

func testConfig() *config.Configuration {
	return &config.Configuration{
		NetworkEndpoints: []config.NetworkEndpoint{{
			Address: local,
			MTU:     1400,
			ServiceDiscovery: config.NetworkEndpointDiscovery{
				MulticastAddress: group,
				Port:             30490,
			},
		}},
		Services: []config.Service{{
			ID:          0x5678,
			Events:      []config.Event{{ID: 0x8001}},
			Eventgroups: []config.Eventgroup{{ID: 1, Events: []uint16{0x8001}}},
		}},
		ProvidedServiceInstances: []config.ProvidedServiceInstance{{
			ServiceInstance: provided,
			PortMappings:    []config.PortMapping{{Address: local, UDPPort: 40002}},
			ServiceDiscovery: config.ProvidedServiceDiscovery{
				TTL:              3,
				InitialDelayMin:  10 * time.Millisecond,
				InitialDelayMax:  10 * time.Millisecond,
				CyclicOfferDelay: time.Second,
				Eventgroups:      []config.ProvidedEventgroup{{ID: 1, TTL: 5}},
			},
		}},
		RequiredServiceInstances: []config.RequiredServiceInstance{{
			ServiceInstance: wanted,
			PortMapping:     config.PortMapping{Address: local, UDPPort: 40010},
			ServiceDiscovery: config.RequiredServiceDiscovery{
				TTL:             3,
				InitialDelayMin: 10 * time.Millisecond,
				InitialDelayMax: 10 * time.Millisecond,
				Eventgroups:     []config.RequiredEventgroup{{ID: 1, TTL: 5}},
			},
		}},
	}
}

type sent struct {
	to  netip.AddrPort
	msg someip.Message
}

type fakeTransport struct {
	t    *testing.T
	sent []sent
}

func (f *fakeTransport) Send(data []byte, to netip.AddrPort) error {
	msg, err := someip.ParseMessage(data)
	if err != nil {
		f.t.Fatalf("sent unparseable message: %v", err)
	}
	f.sent = append(f.sent, sent{to, msg})
	return nil
}

// entries returns the sent entries of type typ.
func (f *fakeTransport) entries(typ someip.EntryType) []someip.Entry {
	var res []someip.Entry
	for _, s := range f.sent {
		for _, e := range s.msg.Entries {
			if e.Type == typ {
				res = append(res, e)
			}
		}
	}
	return res
}

type harness struct {
	t     *testing.T
	clock *timer.FakeClock
	tr    *fakeTransport
	ep    *endpoint.Endpoint
	sub   *events.Subscription
	d     *Discovery
	sid   uint16
}

func newHarness(t *testing.T, cfg *config.Configuration) *harness {
	t.Helper()
	h := &harness{t: t, clock: timer.NewFakeClock(), tr: &fakeTransport{t: t}}
	evLogger := events.NewLogger()
	h.sub = evLogger.Subscribe(events.AllEvents)
	t.Cleanup(func() { evLogger.Unsubscribe(h.sub) })

	open := func(cfg endpoint.Config, obs endpoint.Observer, _ chan<- beacon.Datagram) (*endpoint.Endpoint, error) {
		h.ep = endpoint.New(cfg, obs, h.tr)
		return h.ep, nil
	}
	d, err := New(cfg, WithClock(h.clock), WithEvents(evLogger), WithOpener(open))
	if err != nil {
		t.Fatal(err)
	}
	h.d = d
	return h
}

func (h *harness) advance(dur time.Duration) {
	h.clock.Advance(h.d.timers, dur)
}

// receive feeds an SD message from peer into the endpoint.
func (h *harness) receive(multicast bool, entries []someip.Entry, options []someip.Option) {
	h.sid++
	h.ep.HandleDatagram(beacon.Datagram{
		Data:      someip.Marshal(h.sid, true, entries, options),
		From:      peer,
		Multicast: multicast,
	})
}

func (h *harness) offerWanted() {
	h.receive(true, []someip.Entry{someip.OfferServiceEntry(0x5678, 1, 1, 2, someip.TTLInfinite, 1)},
		[]someip.Option{someip.EndpointOption(peerUDP.Addr(), someip.ProtoUDP, peerUDP.Port())})
}

// expectEvent skips events until one of type typ arrives.
func (h *harness) expectEvent(typ events.EventType) events.Event {
	h.t.Helper()
	for {
		ev, err := h.sub.Poll(100 * time.Millisecond)
		if err != nil {
			h.t.Fatalf("waiting for %v: %v", typ, err)
		}
		if ev.Type == typ {
			return ev
		}
	}
}

func (h *harness) status(kind string) InstanceStatus {
	h.t.Helper()
	h.d.publishStatus()
	for _, st := range h.d.Status() {
		if st.Kind == kind {
			return st
		}
	}
	h.t.Fatalf("no %s instance in status", kind)
	return InstanceStatus{}
}

func TestOfferService(t *testing.T) {
	h := newHarness(t, testConfig())
	h.d.start()
	h.advance(time.Second)
	if n := len(h.tr.sent); n != 0 {
		t.Fatalf("%d messages sent before the service is offered", n)
	}

	if err := h.d.offerService(0x1234, 1, 1, true); err != nil {
		t.Fatal(err)
	}
	h.expectEvent(events.ServiceOffered)
	h.advance(10 * time.Millisecond)

	offers := h.tr.entries(someip.EntryOfferService)
	if len(offers) != 1 {
		t.Fatalf("%d offers sent, expected 1", len(offers))
	}
	if offers[0].ServiceID != 0x1234 || offers[0].TTL != 3 {
		t.Errorf("unexpected offer %v", offers[0])
	}
	if to := h.tr.sent[0].to; to != netip.AddrPortFrom(group, 30490) {
		t.Errorf("offer sent to %v", to)
	}
	if st := h.status(KindProvided); st.State != "main" {
		t.Errorf("provided instance in state %s", st.State)
	}

	if err := h.d.offerService(0x1234, 1, 1, false); err != nil {
		t.Fatal(err)
	}
	h.expectEvent(events.ServiceStopped)
	offers = h.tr.entries(someip.EntryOfferService)
	if last := offers[len(offers)-1]; !last.IsStop() {
		t.Errorf("expected stop offer, got %v", last)
	}
}

func TestUnknownService(t *testing.T) {
	h := newHarness(t, testConfig())
	h.d.start()
	if err := h.d.offerService(0x9999, 1, 1, true); !errors.Is(err, ErrUnknownService) {
		t.Errorf("offer: unexpected error %v", err)
	}
	if err := h.d.requestService(0x1234, 1, 1, config.MinorVersionAny); !errors.Is(err, ErrUnknownService) {
		t.Errorf("request of a provided service: unexpected error %v", err)
	}
	if err := h.d.requestService(0x5678, 1, 1, 3); !errors.Is(err, ErrUnknownService) {
		t.Errorf("request with other minor: unexpected error %v", err)
	}
	if err := h.d.subscribeEventgroup(0x5678, 1, 1, 9, true); !errors.Is(err, ErrUnknownEventgroup) {
		t.Errorf("subscribe: unexpected error %v", err)
	}
	if err := h.d.subscribeEvent(0x5678, 1, 1, 0x8009, true); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("subscribe event: unexpected error %v", err)
	}
}

func TestRequestService(t *testing.T) {
	h := newHarness(t, testConfig())
	h.d.start()
	if err := h.d.requestService(0x5678, 1, 1, config.MinorVersionAny); err != nil {
		t.Fatal(err)
	}
	h.advance(10 * time.Millisecond)
	finds := h.tr.entries(someip.EntryFindService)
	if len(finds) != 1 || finds[0].ServiceID != 0x5678 {
		t.Fatalf("unexpected finds %v", finds)
	}

	h.offerWanted()
	ev := h.expectEvent(events.ServiceAvailable)
	if a := ev.Data.(AvailabilityEvent); a.UDP != peerUDP {
		t.Errorf("available at %v", a.UDP)
	}
	st := h.status(KindRequired)
	if !st.Available || st.Provider != peer || st.State != "main" {
		t.Errorf("unexpected status %+v", st)
	}

	if err := h.d.releaseService(0x5678, 1, 1, config.MinorVersionAny); err != nil {
		t.Fatal(err)
	}
	h.expectEvent(events.ServiceUnavailable)
	if err := h.d.releaseService(0x5678, 1, 1, config.MinorVersionAny); !errors.Is(err, client.ErrNotRequested) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestSubscribeEvent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.d.start()
	h.d.requestService(0x5678, 1, 1, config.MinorVersionAny)
	if err := h.d.subscribeEvent(0x5678, 1, 1, 0x8001, true); err != nil {
		t.Fatal(err)
	}
	h.offerWanted()

	subs := h.tr.entries(someip.EntrySubscribeEventgroup)
	if len(subs) != 1 || subs[0].EventgroupID != 1 {
		t.Fatalf("unexpected subscriptions %v", subs)
	}
	if to := h.tr.sent[len(h.tr.sent)-1].to; to != peer {
		t.Errorf("subscription sent to %v", to)
	}
	if s, _ := h.d.eventgroupState(0x5678, 1, 1, 1); s != client.SubscriptionPending {
		t.Errorf("eventgroup %v, expected pending", s)
	}

	h.receive(false, []someip.Entry{someip.SubscribeAckEntry(0x5678, 1, 1, 1, 5, 0, 0)}, nil)
	ev := h.expectEvent(events.SubscriptionStateChanged)
	for ev.Data.(SubscriptionEvent).State != client.Subscribed {
		ev = h.expectEvent(events.SubscriptionStateChanged)
	}
	if s, _ := h.d.eventgroupState(0x5678, 1, 1, 1); s != client.Subscribed {
		t.Errorf("eventgroup %v, expected subscribed", s)
	}
}

func TestProvidedSubscriber(t *testing.T) {
	h := newHarness(t, testConfig())
	h.d.start()
	h.d.offerService(0x1234, 1, 1, true)
	h.advance(10 * time.Millisecond)

	h.receive(false, []someip.Entry{someip.SubscribeEntry(0x1234, 1, 1, 1, 5, 0, 1)},
		[]someip.Option{someip.EndpointOption(peerUDP.Addr(), someip.ProtoUDP, peerUDP.Port())})

	ev := h.expectEvent(events.SubscriberAdded)
	if s := ev.Data.(SubscriberEvent); s.UDP != peerUDP || s.Eventgroup != 1 {
		t.Errorf("unexpected subscriber %+v", s)
	}
	if st := h.status(KindProvided); len(st.Subscribers[1]) != 1 {
		t.Errorf("unexpected subscribers %v", st.Subscribers)
	}
	if acks := h.tr.entries(someip.EntrySubscribeEventgroupAck); len(acks) != 1 || acks[0].IsStop() {
		t.Errorf("unexpected acks %v", acks)
	}
}

func TestRebootEvent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.d.start()
	h.d.requestService(0x5678, 1, 1, config.MinorVersionAny)
	h.offerWanted()
	h.expectEvent(events.ServiceAvailable)

	// A new session from session id 1 with the reboot flag set.
	h.sid = 0
	h.offerWanted()
	ev := h.expectEvent(events.RebootDetected)
	if r := ev.Data.(RebootEvent); r.Peer != peer {
		t.Errorf("reboot of %v", r.Peer)
	}
}

func TestStopWithdrawsEverything(t *testing.T) {
	h := newHarness(t, testConfig())
	h.d.start()
	h.d.offerService(0x1234, 1, 1, true)
	h.advance(10 * time.Millisecond)
	h.d.requestService(0x5678, 1, 1, config.MinorVersionAny)
	h.d.subscribeEventgroup(0x5678, 1, 1, 1, true)
	h.offerWanted()

	h.d.stop()
	offers := h.tr.entries(someip.EntryOfferService)
	if last := offers[len(offers)-1]; !last.IsStop() {
		t.Errorf("expected stop offer, got %v", last)
	}
	subs := h.tr.entries(someip.EntrySubscribeEventgroup)
	if last := subs[len(subs)-1]; !last.IsStop() {
		t.Errorf("expected stop subscribe, got %v", last)
	}
	if st := h.status(KindRequired); st.Requested || st.Available {
		t.Errorf("required instance still active: %+v", st)
	}
}

func TestStaticDiscovery(t *testing.T) {
	cfg := testConfig()
	cfg.StaticServiceDiscovery = config.StaticServiceDiscovery{
		Enable: true,
		Endpoints: []config.RemoteNetworkEndpoint{{
			Address:                  peerUDP.Addr(),
			UDPPort:                  peerUDP.Port(),
			RequiredServiceInstances: []config.ServiceInstance{wanted},
		}},
	}
	h := newHarness(t, cfg)
	if len(h.d.required) != 0 || len(h.d.static) != 1 {
		t.Fatalf("%d dynamic and %d static instances", len(h.d.required), len(h.d.static))
	}
	h.d.start()

	if err := h.d.subscribeEventgroup(0x5678, 1, 1, 1, true); err != nil {
		t.Fatal(err)
	}
	if s, _ := h.d.eventgroupState(0x5678, 1, 1, 1); s != client.NotSubscribed {
		t.Errorf("subscribed before request")
	}

	if err := h.d.requestService(0x5678, 1, 1, 2); err != nil {
		t.Fatal(err)
	}
	ev := h.expectEvent(events.ServiceAvailable)
	if a := ev.Data.(AvailabilityEvent); a.UDP != peerUDP || a.TCP.IsValid() {
		t.Errorf("available at tcp=%v udp=%v", a.TCP, a.UDP)
	}
	if s, _ := h.d.eventgroupState(0x5678, 1, 1, 1); s != client.Subscribed {
		t.Errorf("eventgroup %v, expected subscribed", s)
	}
	h.advance(time.Minute)
	if n := len(h.tr.sent); n != 0 {
		t.Errorf("%d SD messages sent for a static instance", n)
	}

	h.d.releaseService(0x5678, 1, 1, 2)
	h.expectEvent(events.ServiceUnavailable)
	if s, _ := h.d.eventgroupState(0x5678, 1, 1, 1); s != client.NotSubscribed {
		t.Errorf("eventgroup %v after release", s)
	}
}

func TestServeRunsCalls(t *testing.T) {
	cfg := testConfig()
	open := func(cfg endpoint.Config, obs endpoint.Observer, _ chan<- beacon.Datagram) (*endpoint.Endpoint, error) {
		return endpoint.New(cfg, obs, &fakeTransport{t: t}), nil
	}
	d, err := New(cfg, WithOpener(open))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	if err := d.RequestService(callCtx, 0x9999, 1, 1, config.MinorVersionAny); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("unexpected error %v", err)
	}
	if err := d.RequestService(callCtx, 0x5678, 1, 1, config.MinorVersionAny); err != nil {
		t.Fatal(err)
	}
	s, err := d.EventgroupState(callCtx, 0x5678, 1, 1, 1)
	if err != nil || s != client.NotSubscribed {
		t.Fatalf("eventgroup %v, %v", s, err)
	}

	// The snapshot is published from the loop.
	deadline := time.Now().Add(5 * time.Second)
	for {
		st := d.Status()
		if len(st) == 2 && st[1].Kind == KindRequired && st[1].Requested {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never showed the request: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if d.Uptime() <= 0 {
		t.Error("no uptime while serving")
	}
}

func TestCallHonorsContext(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// Nothing serves the loop.
	if err := h.d.OfferService(ctx, 0x1234, 1, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error %v", err)
	}
}
