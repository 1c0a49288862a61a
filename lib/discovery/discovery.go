// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package discovery is the core of the daemon. It opens one SD endpoint
// per configured network endpoint, creates the server and client state
// machines of the configured service instances and runs them from a
// single event loop. Applications reach the state machines only through
// the methods of Discovery, which post their work to the loop.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/thejerf/suture/v4"

	"github.com/syncthing/someipsd/lib/beacon"
	"github.com/syncthing/someipsd/lib/client"
	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/conntrack"
	"github.com/syncthing/someipsd/lib/endpoint"
	"github.com/syncthing/someipsd/lib/events"
	"github.com/syncthing/someipsd/lib/server"
	"github.com/syncthing/someipsd/lib/svcutil"
	"github.com/syncthing/someipsd/lib/timer"
)

const inboxSize = 256

var (
	ErrUnknownService    = errors.New("service instance not configured")
	ErrUnknownEventgroup = client.ErrUnknownEventgroup
	ErrUnknownEvent      = errors.New("event not in any eventgroup")
)

// Opener creates the endpoint for one network endpoint. Datagrams received
// by it must be written to inbox.
type Opener func(cfg endpoint.Config, observer endpoint.Observer, inbox chan<- beacon.Datagram) (*endpoint.Endpoint, error)

type Option func(*Discovery)

// WithClock drives the protocol timers from clock instead of the wall
// clock.
func WithClock(clock timer.Clock) Option {
	return func(d *Discovery) { d.clock = clock }
}

func WithEvents(evLogger *events.Logger) Option {
	return func(d *Discovery) { d.evLogger = evLogger }
}

func WithOpener(open Opener) Option {
	return func(d *Discovery) { d.open = open }
}

// WithConnectionTracking makes Discovery accept TCP connections on the
// TCP ports of the provided instances itself. Otherwise connections must be
// reported to Tracker by whoever owns those ports.
func WithConnectionTracking(enabled bool) Option {
	return func(d *Discovery) { d.trackTCP = enabled }
}

type Discovery struct {
	*suture.Supervisor

	cfg      *config.Configuration
	clock    timer.Clock
	timers   *timer.Manager
	evLogger *events.Logger
	open     Opener
	trackTCP bool
	tracker  *conntrack.Tracker

	inbox chan inbound
	calls chan func()

	endpoints []*endpoint.Endpoint
	provided  []*providedInstance
	required  []*requiredInstance
	static    []*staticInstance

	status   *xsync.MapOf[string, InstanceStatus]
	epStatus *xsync.MapOf[netip.Addr, EndpointStatus]
	started  atomic.Value // time.Time
}

type inbound struct {
	ep *endpoint.Endpoint
	d  beacon.Datagram
}

// New builds endpoints and state machines for cfg. Nothing is sent before
// the returned supervisor is served.
func New(cfg *config.Configuration, opts ...Option) (*Discovery, error) {
	d := &Discovery{
		Supervisor: suture.New("discovery", svcutil.SpecWithDebugLogger(l)),
		cfg:        cfg,
		open:       endpoint.Open,
		tracker:    conntrack.New(),
		inbox:      make(chan inbound, inboxSize),
		calls:      make(chan func()),
		status:     xsync.NewMapOf[string, InstanceStatus](),
		epStatus:   xsync.NewMapOf[netip.Addr, EndpointStatus](),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.evLogger == nil {
		d.evLogger = events.NewLogger()
	}
	d.timers = timer.NewManager(d.clock)

	if err := d.createEndpoints(); err != nil {
		d.closeEndpoints()
		return nil, err
	}
	if err := d.createProvided(); err != nil {
		d.closeEndpoints()
		return nil, err
	}
	if cfg.StaticServiceDiscovery.Enable {
		d.createStatic()
	} else {
		d.createRequired()
	}

	d.Add(svcutil.AsService(d.serve, d.String()))
	d.publishStatus()
	return d, nil
}

func (d *Discovery) String() string {
	return fmt.Sprintf("discovery@%p", d)
}

// Tracker returns the TCP connection tracker consulted when a subscription
// names a TCP endpoint.
func (d *Discovery) Tracker() *conntrack.Tracker {
	return d.tracker
}

func (d *Discovery) Events() *events.Logger {
	return d.evLogger
}

func (d *Discovery) createEndpoints() error {
	rl := d.cfg.RateLimit
	for _, ne := range d.cfg.NetworkEndpoints {
		cfg := endpoint.Config{
			Unicast:        ne.UnicastAddrPort(),
			Multicast:      ne.MulticastAddrPort(),
			MTU:            ne.MTU,
			RateLimit:      rl.PerSecond,
			RateBurst:      rl.Burst,
			RateLimitPeers: rl.Peers,
		}
		ch := make(chan beacon.Datagram, inboxSize)
		ep, err := d.open(cfg, d, ch)
		if err != nil {
			return fmt.Errorf("network endpoint %v: %w", ne.Address, err)
		}
		d.endpoints = append(d.endpoints, ep)
		for _, s := range ep.Sockets() {
			d.Add(s)
		}
		d.Add(svcutil.AsService(func(ctx context.Context) error {
			return d.forward(ctx, ep, ch)
		}, fmt.Sprintf("discovery.forward(%v)", ep)))
		l.Infof("SD endpoint on %v, multicast %v", cfg.Unicast, cfg.Multicast)
	}
	return nil
}

func (d *Discovery) closeEndpoints() {
	for _, ep := range d.endpoints {
		ep.Close()
	}
}

func (d *Discovery) endpoint(addr netip.Addr) *endpoint.Endpoint {
	for _, ep := range d.endpoints {
		if ep.Address() == addr {
			return ep
		}
	}
	return nil
}

func (d *Discovery) createProvided() error {
	for i := range d.cfg.ProvidedServiceInstances {
		cfg := &d.cfg.ProvidedServiceInstances[i]
		for _, pm := range cfg.PortMappings {
			ep := d.endpoint(pm.Address)
			if ep == nil {
				l.Warnf("provided %v: no network endpoint for %v, skipping", cfg.ServiceInstance, pm.Address)
				continue
			}
			p := &providedInstance{d: d, cfg: cfg, local: pm.Address}
			srv, err := server.New(cfg, pm.Address, server.Options{
				Sender:              ep,
				Timers:              d.timers,
				Instance:            p,
				MessageOptimization: d.cfg.MessageOptimization,
			})
			if err != nil {
				return fmt.Errorf("provided %v: %w", cfg.ServiceInstance, err)
			}
			p.srv = srv
			d.provided = append(d.provided, p)
			if tcp, ok := pm.TCP(); ok && d.trackTCP {
				d.Add(d.tracker.Listen(tcp))
			}
		}
	}
	return nil
}

func (d *Discovery) createRequired() {
	for i := range d.cfg.RequiredServiceInstances {
		cfg := &d.cfg.RequiredServiceInstances[i]
		ep := d.endpoint(cfg.PortMapping.Address)
		if ep == nil {
			l.Warnf("required %v: no network endpoint for %v, skipping", cfg.ServiceInstance, cfg.PortMapping.Address)
			continue
		}
		r := &requiredInstance{d: d, cfg: cfg, local: cfg.PortMapping.Address}
		r.cl = client.New(cfg, r.local, client.Options{
			Sender:   ep,
			Timers:   d.timers,
			Instance: r,
		})
		d.required = append(d.required, r)
	}
}

func (d *Discovery) createStatic() {
	for i := range d.cfg.RequiredServiceInstances {
		cfg := &d.cfg.RequiredServiceInstances[i]
		providers := d.cfg.StaticProviders(cfg.ServiceInstance)
		if len(providers) == 0 {
			l.Warnf("required %v: no static provider configured", cfg.ServiceInstance)
			continue
		}
		d.static = append(d.static, newStaticInstance(d, cfg, providers[0]))
	}
}

// forward moves datagrams of one endpoint into the shared inbox.
func (d *Discovery) forward(ctx context.Context, ep *endpoint.Endpoint, ch <-chan beacon.Datagram) error {
	for {
		select {
		case dg := <-ch:
			select {
			case d.inbox <- inbound{ep: ep, d: dg}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// call runs fn on the event loop and returns its result.
func (d *Discovery) call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case d.calls <- func() { res <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OfferService starts offering a provided service instance on every
// network endpoint it has a port mapping for.
func (d *Discovery) OfferService(ctx context.Context, service, instance uint16, major uint8) error {
	return d.call(ctx, func() error { return d.offerService(service, instance, major, true) })
}

func (d *Discovery) StopOfferService(ctx context.Context, service, instance uint16, major uint8) error {
	return d.call(ctx, func() error { return d.offerService(service, instance, major, false) })
}

func (d *Discovery) RequestService(ctx context.Context, service, instance uint16, major uint8, minor uint32) error {
	return d.call(ctx, func() error { return d.requestService(service, instance, major, minor) })
}

func (d *Discovery) ReleaseService(ctx context.Context, service, instance uint16, major uint8, minor uint32) error {
	return d.call(ctx, func() error { return d.releaseService(service, instance, major, minor) })
}

func (d *Discovery) SubscribeEventgroup(ctx context.Context, service, instance uint16, major uint8, eventgroup uint16) error {
	return d.call(ctx, func() error { return d.subscribeEventgroup(service, instance, major, eventgroup, true) })
}

func (d *Discovery) UnsubscribeEventgroup(ctx context.Context, service, instance uint16, major uint8, eventgroup uint16) error {
	return d.call(ctx, func() error { return d.subscribeEventgroup(service, instance, major, eventgroup, false) })
}

// SubscribeEvent subscribes every eventgroup containing event.
func (d *Discovery) SubscribeEvent(ctx context.Context, service, instance uint16, major uint8, event uint16) error {
	return d.call(ctx, func() error { return d.subscribeEvent(service, instance, major, event, true) })
}

func (d *Discovery) UnsubscribeEvent(ctx context.Context, service, instance uint16, major uint8, event uint16) error {
	return d.call(ctx, func() error { return d.subscribeEvent(service, instance, major, event, false) })
}

func (d *Discovery) EventgroupState(ctx context.Context, service, instance uint16, major uint8, eventgroup uint16) (client.SubscriptionState, error) {
	var state client.SubscriptionState
	err := d.call(ctx, func() error {
		var err error
		state, err = d.eventgroupState(service, instance, major, eventgroup)
		return err
	})
	return state, err
}

func (d *Discovery) offerService(service, instance uint16, major uint8, up bool) error {
	found := false
	for _, p := range d.provided {
		si := p.cfg.ServiceInstance
		if si.ServiceID != service || si.InstanceID != instance || si.MajorVersion != major {
			continue
		}
		found = true
		if up {
			p.srv.OnServiceUp()
		} else {
			p.srv.OnServiceDown()
		}
	}
	if !found {
		return fmt.Errorf("provided 0x%04x/0x%04x v%d: %w", service, instance, major, ErrUnknownService)
	}
	return nil
}

// requiredInstances returns the client side instances matching the given
// ids, dynamic and static alike.
func (d *Discovery) requiredInstances(service, instance uint16, major uint8, minor uint32) []required {
	var res []required
	match := func(si config.ServiceInstance) bool {
		return si.ServiceID == service && si.InstanceID == instance && si.MajorVersion == major &&
			(minor == config.MinorVersionAny || si.MinorVersion == minor)
	}
	for _, r := range d.required {
		if match(r.cfg.ServiceInstance) {
			res = append(res, r)
		}
	}
	for _, s := range d.static {
		if match(s.cfg.ServiceInstance) {
			res = append(res, s)
		}
	}
	return res
}

func (d *Discovery) requestService(service, instance uint16, major uint8, minor uint32) error {
	rs := d.requiredInstances(service, instance, major, minor)
	if len(rs) == 0 {
		return fmt.Errorf("required 0x%04x/0x%04x v%d.%d: %w", service, instance, major, minor, ErrUnknownService)
	}
	for _, r := range rs {
		r.request()
	}
	return nil
}

func (d *Discovery) releaseService(service, instance uint16, major uint8, minor uint32) error {
	rs := d.requiredInstances(service, instance, major, minor)
	if len(rs) == 0 {
		return fmt.Errorf("required 0x%04x/0x%04x v%d.%d: %w", service, instance, major, minor, ErrUnknownService)
	}
	var errs []error
	for _, r := range rs {
		if err := r.release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Discovery) subscribeEventgroup(service, instance uint16, major uint8, eventgroup uint16, subscribe bool) error {
	rs := d.requiredInstances(service, instance, major, config.MinorVersionAny)
	if len(rs) == 0 {
		return fmt.Errorf("required 0x%04x/0x%04x v%d: %w", service, instance, major, ErrUnknownService)
	}
	var errs []error
	for _, r := range rs {
		var err error
		if subscribe {
			err = r.subscribe(eventgroup)
		} else {
			err = r.unsubscribe(eventgroup)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Discovery) subscribeEvent(service, instance uint16, major uint8, event uint16, subscribe bool) error {
	egs := d.cfg.EventgroupsOf(service, event)
	if len(egs) == 0 {
		return fmt.Errorf("event 0x%04x/0x%04x: %w", service, event, ErrUnknownEvent)
	}
	var errs []error
	for _, eg := range egs {
		if err := d.subscribeEventgroup(service, instance, major, eg, subscribe); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Discovery) eventgroupState(service, instance uint16, major uint8, eventgroup uint16) (client.SubscriptionState, error) {
	rs := d.requiredInstances(service, instance, major, config.MinorVersionAny)
	if len(rs) == 0 {
		return client.NotSubscribed, fmt.Errorf("required 0x%04x/0x%04x v%d: %w", service, instance, major, ErrUnknownService)
	}
	// With several matching instances the most advanced state wins.
	best := client.NotSubscribed
	var lastErr error
	for _, r := range rs {
		s, err := r.eventgroupState(eventgroup)
		if err != nil {
			lastErr = err
			continue
		}
		best = max(best, s)
	}
	if best == client.NotSubscribed && lastErr != nil {
		return best, lastErr
	}
	return best, nil
}
