// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package client implements the consuming side of service discovery. A
// Client looks for one required service instance, keeps track of the
// provider currently offering it and subscribes to its eventgroups on
// behalf of the local applications.
package client

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/endpoint"
	"github.com/syncthing/someipsd/lib/someip"
	"github.com/syncthing/someipsd/lib/timer"
)

//go:generate -command counterfeiter go run github.com/maxbrunsfeld/counterfeiter/v6
//go:generate counterfeiter -o mocks/service_instance.go --fake-name ServiceInstance . ServiceInstance

// ServiceInstance is the application side of a required service.
type ServiceInstance interface {
	// Connect is called once a requested service is available, with the
	// endpoints from the provider's offer. Either may be invalid.
	Connect(tcp, udp netip.AddrPort)
	Disconnect()
	StartListenForMulticastEventgroup(group netip.AddrPort, eventgroup uint16)
	StopListenForMulticastEventgroup(eventgroup uint16)
	SubscriptionStateChanged(eventgroup uint16, state SubscriptionState)
}

var (
	ErrNotRequested      = errors.New("service not requested")
	ErrUnknownEventgroup = errors.New("eventgroup not configured")
	ErrNotSubscribed     = errors.New("eventgroup not subscribed")
)

type Options struct {
	Sender   endpoint.MessageSender
	Timers   *timer.Manager
	Instance ServiceInstance
}

type Client struct {
	cfg      *config.RequiredServiceInstance
	local    netip.Addr
	sender   endpoint.MessageSender
	timers   *timer.Manager
	instance ServiceInstance
	builder  *builder

	requested int
	offer     Offer
	hasOffer  bool

	connected bool
	connTCP   netip.AddrPort
	connUDP   netip.AddrPort

	find        *findMachine
	eventgroups []*eventgroupMachine
}

func New(cfg *config.RequiredServiceInstance, local netip.Addr, opts Options) *Client {
	timers := opts.Timers
	if timers == nil {
		timers = timer.NewManager(nil)
	}
	instance := opts.Instance
	if instance == nil {
		instance = nopInstance{}
	}
	c := &Client{
		cfg:      cfg,
		local:    local,
		sender:   opts.Sender,
		timers:   timers,
		instance: instance,
		builder:  newBuilder(cfg),
	}
	c.find = newFindMachine(c)
	for _, eg := range cfg.ServiceDiscovery.Eventgroups {
		c.eventgroups = append(c.eventgroups, newEventgroupMachine(c, eg.ID))
	}
	return c
}

type nopInstance struct{}

func (nopInstance) Connect(netip.AddrPort, netip.AddrPort) {}
func (nopInstance) Disconnect() {}
func (nopInstance) StartListenForMulticastEventgroup(netip.AddrPort, uint16) {}
func (nopInstance) StopListenForMulticastEventgroup(uint16) {}
func (nopInstance) SubscriptionStateChanged(uint16, SubscriptionState) {}

func (c *Client) String() string {
	return fmt.Sprintf("client %v@%v", c.cfg.ServiceInstance, c.local)
}

// State returns the phase of the find service state machine.
func (c *Client) State() State {
	return c.find.state
}

// Available reports whether a provider is currently offering the service.
func (c *Client) Available() bool {
	return c.find.available
}

// Offer returns the offer of the current provider.
func (c *Client) Offer() (Offer, bool) {
	return c.offer, c.hasOffer
}

func (c *Client) Requested() bool {
	return c.requested > 0
}

func (c *Client) OnNetworkUp() {
	c.find.onNetworkUp()
}

func (c *Client) OnNetworkDown() {
	c.find.onNetworkDown()
	if c.hasOffer {
		c.hasOffer = false
		for _, eg := range c.eventgroups {
			eg.onStopOffer()
		}
	}
}

// RequestService registers one more local user of the service. The first
// request starts looking for it.
func (c *Client) RequestService() {
	c.requested++
	if c.requested == 1 {
		c.find.onServiceRequested()
		c.updateConnection()
	}
}

// ReleaseService drops one local user of the service. When the last one is
// gone all subscriptions are withdrawn and the cached offer is forgotten.
func (c *Client) ReleaseService() error {
	if c.requested == 0 {
		return ErrNotRequested
	}
	c.requested--
	if c.requested > 0 {
		return nil
	}
	for _, eg := range c.eventgroups {
		eg.shutdown()
	}
	c.find.onServiceReleased()
	c.hasOffer = false
	c.find.forget()
	c.updateConnection()
	return nil
}

func (c *Client) SubscribeEventgroup(id uint16) error {
	eg := c.eventgroup(id)
	if eg == nil {
		return fmt.Errorf("%v: 0x%04x: %w", c, id, ErrUnknownEventgroup)
	}
	eg.subscribe()
	return nil
}

func (c *Client) UnsubscribeEventgroup(id uint16) error {
	eg := c.eventgroup(id)
	if eg == nil {
		return fmt.Errorf("%v: 0x%04x: %w", c, id, ErrUnknownEventgroup)
	}
	return eg.unsubscribe()
}

func (c *Client) EventgroupState(id uint16) (SubscriptionState, error) {
	eg := c.eventgroup(id)
	if eg == nil {
		return NotSubscribed, fmt.Errorf("%v: 0x%04x: %w", c, id, ErrUnknownEventgroup)
	}
	return eg.state.reported(), nil
}

// Subscribers returns the number of local subscriptions to an eventgroup.
func (c *Client) Subscribers(id uint16) int {
	if eg := c.eventgroup(id); eg != nil {
		return eg.count
	}
	return 0
}

// Eventgroups returns the reported state of every configured eventgroup.
func (c *Client) Eventgroups() map[uint16]SubscriptionState {
	res := make(map[uint16]SubscriptionState, len(c.eventgroups))
	for _, eg := range c.eventgroups {
		res[eg.id] = eg.state.reported()
	}
	return res
}

func (c *Client) OnUnicastMessage(from netip.AddrPort, entries []someip.Entry, options []someip.Option) {
	c.handleOffers(from, entries, options, false)
	c.handleAcks(entries, options)
}

func (c *Client) OnMulticastMessage(from netip.AddrPort, entries []someip.Entry, options []someip.Option) {
	c.handleOffers(from, entries, options, true)
}

// OnRebootDetected treats a reboot of the current provider as if it had
// stopped offering the service.
func (c *Client) OnRebootDetected(from netip.AddrPort) {
	if !c.hasOffer || c.offer.SD.Addr() != from.Addr() {
		return
	}
	l.Debugf("%v: provider %v rebooted", c, from)
	c.stopOffer()
}

func (c *Client) handleOffers(from netip.AddrPort, entries []someip.Entry, options []someip.Option, multicast bool) {
	si := c.cfg.ServiceInstance
	for _, e := range entries {
		if e.Type != someip.EntryOfferService || e.ServiceID != si.ServiceID ||
			(si.InstanceID != someip.InstanceAny && e.InstanceID != si.InstanceID) ||
			(si.MajorVersion != someip.MajorVersionAny && e.MajorVersion != si.MajorVersion) ||
			(si.MinorVersion != someip.MinorVersionAny && e.MinorVersion != si.MinorVersion) {
			continue
		}
		o, err := newOffer(from, e, options, multicast)
		if err != nil {
			l.Debugf("%v: ignoring offer from %v: %v", c, from, err)
			metricOffersRejected.Inc()
			continue
		}
		if c.hasOffer && !c.offer.sameProvider(o) {
			l.Debugf("%v: ignoring %v, provider is %v", c, o, c.offer.SD)
			continue
		}
		if o.Stop() {
			metricOffersReceived.WithLabelValues(metricOfferStop).Inc()
			if c.hasOffer {
				c.stopOffer()
			}
			continue
		}
		metricOffersReceived.WithLabelValues(metricOfferOffer).Inc()
		c.offer = o
		c.hasOffer = true
		c.find.onOffer()
		for _, eg := range c.eventgroups {
			eg.onOffer()
		}
		c.updateConnection()
	}
}

func (c *Client) handleAcks(entries []someip.Entry, options []someip.Option) {
	if !c.hasOffer {
		return
	}
	offered := c.offer.Entry
	for _, e := range entries {
		if e.Type != someip.EntrySubscribeEventgroupAck || e.ServiceID != offered.ServiceID ||
			e.InstanceID != offered.InstanceID || e.MajorVersion != offered.MajorVersion {
			continue
		}
		eg := c.eventgroup(e.EventgroupID)
		if eg == nil {
			l.Debugf("%v: ack for unknown eventgroup 0x%04x", c, e.EventgroupID)
			continue
		}
		if e.IsStop() {
			metricAcksReceived.WithLabelValues(metricAckNack).Inc()
			eg.onNack()
			continue
		}
		metricAcksReceived.WithLabelValues(metricAckAck).Inc()
		var group netip.AddrPort
		for _, o := range someip.EntryOptions(e, options) {
			if o.Type.IsMulticast() {
				group = o.AddrPort()
				break
			}
		}
		eg.onAck(group, e.TTL)
	}
}

// stopOffer forgets the current provider.
func (c *Client) stopOffer() {
	c.hasOffer = false
	c.find.onStopOffer()
	for _, eg := range c.eventgroups {
		eg.onStopOffer()
	}
	c.updateConnection()
}

// offerExpired is called by the find machine when the offer TTL ran out.
func (c *Client) offerExpired() {
	l.Debugf("%v: offer expired", c)
	c.hasOffer = false
	for _, eg := range c.eventgroups {
		eg.onStopOffer()
	}
}

// updateConnection connects the service instance to the current provider
// while the service is requested and available, and disconnects it
// otherwise.
func (c *Client) updateConnection() {
	want := c.requested > 0 && c.find.available && c.hasOffer
	if c.connected && (!want || c.connTCP != c.offer.TCP || c.connUDP != c.offer.UDP) {
		l.Debugf("%v: disconnecting from tcp=%v udp=%v", c, c.connTCP, c.connUDP)
		c.instance.Disconnect()
		c.connected = false
	}
	if want && !c.connected {
		l.Debugf("%v: connecting to tcp=%v udp=%v", c, c.offer.TCP, c.offer.UDP)
		c.instance.Connect(c.offer.TCP, c.offer.UDP)
		c.connected = true
		c.connTCP, c.connUDP = c.offer.TCP, c.offer.UDP
	}
}

func (c *Client) sendFind() {
	entries, options := c.builder.find()
	if err := c.sender.SendMulticast(entries, options); err != nil {
		l.Debugf("%v: find: %v", c, err)
		return
	}
	metricFindsSent.Inc()
}

func (c *Client) sendSubscribe(id uint16) {
	if !c.hasOffer {
		return
	}
	eg, _ := c.cfg.Eventgroup(id)
	entries, options := c.builder.subscribe(c.offer.Entry, id, eg.TTL)
	if err := c.sender.SendUnicast(c.offer.SD, entries, options); err != nil {
		l.Debugf("%v: subscribe 0x%04x: %v", c, id, err)
	}
}

func (c *Client) sendStopSubscribe(id uint16) {
	if !c.hasOffer {
		return
	}
	entries, options := c.builder.subscribe(c.offer.Entry, id, 0)
	if err := c.sender.SendUnicast(c.offer.SD, entries, options); err != nil {
		l.Debugf("%v: stop subscribe 0x%04x: %v", c, id, err)
	}
}

func (c *Client) eventgroup(id uint16) *eventgroupMachine {
	for _, eg := range c.eventgroups {
		if eg.id == id {
			return eg
		}
	}
	return nil
}
