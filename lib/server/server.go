// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package server implements the offering side of service discovery: one
// state machine per provided service instance and local address, deciding
// when offers go out, answering finds and managing eventgroup subscribers.
//
// A Server is owned by a single event loop goroutine and is not safe for
// concurrent use.
package server

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/endpoint"
	"github.com/syncthing/someipsd/lib/rand"
	"github.com/syncthing/someipsd/lib/someip"
	"github.com/syncthing/someipsd/lib/timer"
)

//go:generate -command counterfeiter go run github.com/maxbrunsfeld/counterfeiter/v6
//go:generate counterfeiter -o mocks/service_instance.go --fake-name ServiceInstance . ServiceInstance

// ServiceInstance is the application side of a provided service. Start and
// Stop bracket the time the service is offered.
type ServiceInstance interface {
	Start()
	Stop()
	SubscribeEventgroup(sub Subscriber, eventgroup uint16)
	UnsubscribeEventgroup(sub Subscriber, eventgroup uint16)
	HasTCPConnection(addr netip.AddrPort) bool
}

// Subscriber is the pair of endpoints a client asked events to be delivered
// to. Either may be invalid when the subscription did not carry it.
type Subscriber struct {
	TCP netip.AddrPort
	UDP netip.AddrPort
}

func (s Subscriber) String() string {
	return fmt.Sprintf("tcp=%v udp=%v", s.TCP, s.UDP)
}

type State int

const (
	StateDown State = iota
	StateWait
	StateRepetition
	StateMain
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateWait:
		return "wait"
	case StateRepetition:
		return "repetition"
	case StateMain:
		return "main"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var validChanges = map[State][]State{
	StateDown:       {StateWait},
	StateWait:       {StateDown, StateRepetition, StateMain},
	StateRepetition: {StateDown, StateMain},
	StateMain:       {StateDown},
}

func isValidChange(from, to State) bool {
	for _, s := range validChanges[from] {
		if s == to {
			return true
		}
	}
	return false
}

type nopInstance struct{}

func (nopInstance) Start() {}
func (nopInstance) Stop() {}
func (nopInstance) SubscribeEventgroup(Subscriber, uint16) {}
func (nopInstance) UnsubscribeEventgroup(Subscriber, uint16) {}
func (nopInstance) HasTCPConnection(netip.AddrPort) bool { return false }

var ErrNoPortMapping = errors.New("no port mapping for local address")

type Options struct {
	Sender              endpoint.MessageSender
	Timers              *timer.Manager
	Instance            ServiceInstance
	MessageOptimization bool
}

type Server struct {
	cfg      *config.ProvidedServiceInstance
	local    netip.Addr
	sender   endpoint.MessageSender
	timers   *timer.Manager
	instance ServiceInstance
	optimize bool

	state     State
	next      State
	changeReq bool

	networkUp bool
	serviceUp bool

	timer           *timer.Timer
	repetitions     uint32
	repetitionDelay time.Duration
	lastOffer       time.Time

	// Drawn once for the lifetime of the server.
	initialDelay         time.Duration
	requestResponseDelay time.Duration

	builder *builder
	queue   *sendQueue
	events  *eventManager
}

// New returns a server for cfg bound to the local address, in state Down.
func New(cfg *config.ProvidedServiceInstance, local netip.Addr, opts Options) (*Server, error) {
	pm, ok := cfg.PortMapping(local)
	if !ok {
		return nil, fmt.Errorf("%v on %v: %w", cfg.ServiceInstance, local, ErrNoPortMapping)
	}
	timers := opts.Timers
	if timers == nil {
		timers = timer.NewManager(nil)
	}
	instance := opts.Instance
	if instance == nil {
		instance = nopInstance{}
	}

	sd := cfg.ServiceDiscovery
	s := &Server{
		cfg:                  cfg,
		local:                local,
		sender:               opts.Sender,
		timers:               timers,
		instance:             instance,
		optimize:             opts.MessageOptimization,
		initialDelay:         rand.DurationBetween(sd.InitialDelayMin, sd.InitialDelayMax),
		requestResponseDelay: rand.DurationBetween(sd.RequestResponseDelayMin, sd.RequestResponseDelayMax),
	}
	s.builder = newBuilder(cfg, pm)
	s.queue = newSendQueue(timers, s.sender, s.builder)
	s.events = newEventManager(cfg, pm, timers, s.sender, s.builder, s.instance)
	s.timer = timers.NewTimer(func() { s.dispatch(s.onTimeout) })
	return s, nil
}

func (s *Server) String() string {
	return fmt.Sprintf("server %v@%v", s.cfg.ServiceInstance, s.local)
}

func (s *Server) State() State {
	return s.state
}

// Subscriptions returns the current subscribers per eventgroup.
func (s *Server) Subscriptions() map[uint16][]Subscriber {
	return s.events.snapshot()
}

func (s *Server) OnNetworkUp() {
	s.dispatch(func() {
		s.networkUp = true
		if s.state == StateDown && s.serviceUp {
			s.request(StateWait)
		}
	})
}

func (s *Server) OnNetworkDown() {
	s.dispatch(func() {
		s.networkUp = false
		if s.state != StateDown {
			s.request(StateDown)
		}
	})
}

func (s *Server) OnServiceUp() {
	s.dispatch(func() {
		s.serviceUp = true
		if s.state == StateDown && s.networkUp {
			s.request(StateWait)
		}
	})
}

func (s *Server) OnServiceDown() {
	s.dispatch(func() {
		s.serviceUp = false
		switch s.state {
		case StateWait:
			s.request(StateDown)
		case StateRepetition, StateMain:
			entries, options := s.builder.stopOffer()
			s.sendMulticast(entries, options)
			s.request(StateDown)
		}
	})
}

// OnStop takes the server down as if both the service and the network went
// away.
func (s *Server) OnStop() {
	s.OnServiceDown()
	s.OnNetworkDown()
}

func (s *Server) OnUnicastMessage(from netip.AddrPort, entries []someip.Entry, options []someip.Option) {
	for _, e := range entries {
		if !s.matches(e) {
			continue
		}
		switch e.Type {
		case someip.EntryFindService:
			s.dispatch(func() { s.onUnicastFind(from) })
		case someip.EntrySubscribeEventgroup:
			s.dispatch(func() { s.onSubscribe(from, e, someip.EntryOptions(e, options)) })
		}
	}
}

func (s *Server) OnMulticastMessage(from netip.AddrPort, entries []someip.Entry, options []someip.Option) {
	for _, e := range entries {
		if !s.matches(e) {
			continue
		}
		switch e.Type {
		case someip.EntryFindService:
			s.dispatch(func() { s.onMulticastFind(from) })
		case someip.EntrySubscribeEventgroup:
			s.dispatch(func() { s.onSubscribe(from, e, someip.EntryOptions(e, options)) })
		}
	}
}

// OnRebootDetected drops every subscription held by the rebooted peer.
func (s *Server) OnRebootDetected(from netip.AddrPort) {
	s.dispatch(func() {
		s.events.unsubscribeAddr(from.Addr())
	})
}

func (s *Server) matches(e someip.Entry) bool {
	si := s.cfg.ServiceInstance
	return e.ServiceID == si.ServiceID &&
		(e.InstanceID == someip.InstanceAny || e.InstanceID == si.InstanceID) &&
		(e.MajorVersion == someip.MajorVersionAny || e.MajorVersion == si.MajorVersion)
}

func (s *Server) onUnicastFind(from netip.AddrPort) {
	metricFindsReceived.WithLabelValues(metricChannelUnicast).Inc()
	switch s.state {
	case StateWait:
		s.queue.addUnicast(from, s.requestResponseDelay)
	case StateRepetition:
		s.queue.addUnicast(from, 0)
	case StateMain:
		if !s.optimize {
			s.queue.addUnicast(from, 0)
			return
		}
		now := s.timers.Now()
		if now.Sub(s.lastOffer) > s.cfg.ServiceDiscovery.CyclicOfferDelay/2 {
			s.queue.addUnicast(from, 0)
		} else {
			s.queue.addMulticast(0)
		}
		s.lastOffer = now
	}
}

func (s *Server) onMulticastFind(from netip.AddrPort) {
	metricFindsReceived.WithLabelValues(metricChannelMulticast).Inc()
	immediate := s.cfg.ServiceDiscovery.RequestResponseDelayMax == 0
	switch s.state {
	case StateRepetition:
		if immediate {
			s.queue.addUnicast(from, 0)
		} else {
			s.queue.addUnicast(from, s.requestResponseDelay)
		}
	case StateMain:
		switch {
		case immediate:
			s.queue.addUnicast(from, 0)
		case !s.optimize:
			s.queue.addUnicast(from, s.requestResponseDelay)
		default:
			s.queue.addMulticast(s.requestResponseDelay)
			s.lastOffer = s.timers.Now()
		}
	}
}

func (s *Server) onSubscribe(from netip.AddrPort, e someip.Entry, options []someip.Option) {
	if s.state != StateRepetition && s.state != StateMain {
		l.Debugf("%v: ignoring %v from %v in state %v", s, e, from, s.state)
		return
	}
	if e.IsStop() {
		s.events.unsubscribe(e, options)
		return
	}
	s.events.subscribe(from, e, options)
}

func (s *Server) onTimeout() {
	switch s.state {
	case StateWait:
		s.sendOffer()
		if s.cfg.ServiceDiscovery.RepetitionsMax > 0 {
			s.request(StateRepetition)
		} else {
			s.request(StateMain)
		}
	case StateRepetition:
		s.repetitions++
		s.sendOffer()
		if s.repetitions >= s.cfg.ServiceDiscovery.RepetitionsMax {
			s.request(StateMain)
			return
		}
		s.repetitionDelay *= 2
		s.timer.SetOneShot(s.repetitionDelay)
		s.timer.Start()
	case StateMain:
		s.sendOffer()
		if s.optimize {
			s.lastOffer = s.timers.Now()
		}
	}
}

func (s *Server) sendOffer() {
	entries, options := s.builder.offer()
	s.sendMulticast(entries, options)
}

func (s *Server) sendMulticast(entries []someip.Entry, options []someip.Option) {
	if err := s.sender.SendMulticast(entries, options); err != nil {
		l.Debugf("%v: multicast send: %v", s, err)
	}
}

// dispatch runs a handler and then applies at most one requested state
// change, repeating while entering a state requests another.
func (s *Server) dispatch(fn func()) {
	fn()
	for s.changeReq {
		s.changeReq = false
		next := s.next
		if next == s.state {
			continue
		}
		if !isValidChange(s.state, next) {
			panic(fmt.Sprintf("%v: invalid state change %v -> %v", s, s.state, next))
		}
		s.leave(next)
		l.Debugf("%v: %v -> %v", s, s.state, next)
		s.state = next
		metricStateChanges.WithLabelValues(next.String()).Inc()
		s.enter()
	}
}

func (s *Server) request(next State) {
	s.next = next
	s.changeReq = true
}

func (s *Server) enter() {
	switch s.state {
	case StateDown:
		s.queue.clear()
	case StateWait:
		s.instance.Start()
		s.timer.SetOneShot(s.initialDelay)
		s.timer.Start()
	case StateRepetition:
		s.repetitions = 0
		s.repetitionDelay = s.cfg.ServiceDiscovery.RepetitionsBaseDelay
		s.timer.SetOneShot(s.repetitionDelay)
		s.timer.Start()
	case StateMain:
		s.lastOffer = time.Time{}
		if d := s.cfg.ServiceDiscovery.CyclicOfferDelay; d > 0 {
			s.timer.SetPeriodic(d)
			s.timer.Start()
		}
	}
}

func (s *Server) leave(next State) {
	switch s.state {
	case StateWait:
		if next == StateDown {
			s.timer.Stop()
			s.instance.Stop()
		}
	case StateRepetition:
		if next == StateDown {
			s.timer.Stop()
			s.events.unsubscribeAll()
			s.instance.Stop()
		}
	case StateMain:
		s.timer.Stop()
		s.events.unsubscribeAll()
		s.instance.Stop()
	}
}
