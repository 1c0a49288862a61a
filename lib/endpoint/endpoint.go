// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package endpoint implements an SD endpoint: the pair of unicast and
// multicast sockets bound to one local address, the session id and reboot
// bookkeeping of everything sent and received through them, and the
// validation of inbound SD messages before they reach the state machines.
package endpoint

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/syncthing/someipsd/lib/beacon"
	"github.com/syncthing/someipsd/lib/reboot"
	"github.com/syncthing/someipsd/lib/someip"
)

const (
	DefaultMTU = 1400

	// Bytes taken by IP and UDP headers from the link MTU.
	ipv4Overhead = 20 + 8
	ipv6Overhead = 40 + 8
)

var ErrMessageTooLarge = errors.New("message exceeds MTU")

// Observer receives validated SD messages. local is the unicast address of
// the receiving endpoint.
type Observer interface {
	OnUnicastMessage(local netip.Addr, from netip.AddrPort, entries []someip.Entry, options []someip.Option)
	OnMulticastMessage(local netip.Addr, from netip.AddrPort, entries []someip.Entry, options []someip.Option)
	OnRebootDetected(local netip.Addr, from netip.AddrPort)
}

//go:generate -command counterfeiter go run github.com/maxbrunsfeld/counterfeiter/v6
//go:generate counterfeiter -o mocks/message_sender.go --fake-name MessageSender . MessageSender

// MessageSender sends SD messages, taking care of headers and session ids.
type MessageSender interface {
	SendUnicast(to netip.AddrPort, entries []someip.Entry, options []someip.Option) error
	SendMulticast(entries []someip.Entry, options []someip.Option) error
}

// Transport writes raw datagrams.
type Transport interface {
	Send(data []byte, to netip.AddrPort) error
}

type Config struct {
	Unicast   netip.AddrPort
	Multicast netip.AddrPort
	MTU       int

	// Inbound datagrams per second and burst allowed per peer address.
	// Zero disables rate limiting.
	RateLimit      float64
	RateBurst      int
	RateLimitPeers int
}

type Endpoint struct {
	cfg       Config
	observer  Observer
	transport Transport
	reboots   *reboot.Manager
	limiter   *limiter
	sockets   []beacon.Interface
	maxSize   int
}

// New returns an endpoint sending through transport. Inbound datagrams are
// passed in through HandleDatagram.
func New(cfg Config, observer Observer, transport Transport) *Endpoint {
	if cfg.MTU <= 0 {
		cfg.MTU = DefaultMTU
	}
	overhead := ipv4Overhead
	if cfg.Unicast.Addr().Is6() {
		overhead = ipv6Overhead
	}
	return &Endpoint{
		cfg:       cfg,
		observer:  observer,
		transport: transport,
		reboots:   reboot.NewManager(),
		limiter:   newLimiter(cfg.RateLimit, cfg.RateBurst, cfg.RateLimitPeers),
		maxSize:   cfg.MTU - overhead,
	}
}

// Open binds the unicast and multicast sockets of cfg and returns an
// endpoint using them. Both deliver into inbox; the caller runs the
// returned sockets as services and feeds inbox to HandleDatagram.
func Open(cfg Config, observer Observer, inbox chan<- beacon.Datagram) (*Endpoint, error) {
	uc, err := beacon.NewUnicast(cfg.Unicast, inbox)
	if err != nil {
		return nil, fmt.Errorf("unicast socket %v: %w", cfg.Unicast, err)
	}
	mc, err := beacon.NewMulticast(cfg.Multicast, cfg.Unicast.Addr(), inbox)
	if err != nil {
		uc.Close()
		return nil, fmt.Errorf("multicast socket %v: %w", cfg.Multicast, err)
	}
	e := New(cfg, observer, uc)
	e.sockets = []beacon.Interface{uc, mc}
	return e, nil
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("endpoint@%v", e.cfg.Unicast)
}

// Address returns the local unicast address.
func (e *Endpoint) Address() netip.Addr {
	return e.cfg.Unicast.Addr()
}

func (e *Endpoint) Config() Config {
	return e.cfg
}

// Sockets returns the sockets opened by Open.
func (e *Endpoint) Sockets() []beacon.Interface {
	return e.sockets
}

func (e *Endpoint) Close() error {
	var errs []error
	for _, s := range e.sockets {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reboots exposes the session tables for status reporting.
func (e *Endpoint) Reboots() *reboot.Manager {
	return e.reboots
}

func (e *Endpoint) SendUnicast(to netip.AddrPort, entries []someip.Entry, options []someip.Option) error {
	p := e.reboots.NextUnicastSender(to)
	return e.send(to, p, entries, options, "unicast")
}

// SendMulticast sends to the SD multicast group through the unicast socket.
func (e *Endpoint) SendMulticast(entries []someip.Entry, options []someip.Option) error {
	p := e.reboots.NextMulticastSender()
	return e.send(e.cfg.Multicast, p, entries, options, "multicast")
}

func (e *Endpoint) send(to netip.AddrPort, p reboot.Param, entries []someip.Entry, options []someip.Option, kind string) error {
	buf := someip.Marshal(p.SessionID, p.Reboot, entries, options)
	if len(buf) > e.maxSize {
		metricMessagesSent.WithLabelValues(kind, resultTooLarge).Inc()
		return fmt.Errorf("%s send to %v: %d bytes: %w", kind, to, len(buf), ErrMessageTooLarge)
	}
	if err := e.transport.Send(buf, to); err != nil {
		metricMessagesSent.WithLabelValues(kind, resultError).Inc()
		return fmt.Errorf("%s send to %v: %w", kind, to, err)
	}
	metricMessagesSent.WithLabelValues(kind, resultSuccess).Inc()
	metricEntriesSent.Add(float64(len(entries)))
	if l.ShouldDebug("endpoint") {
		l.Debugf("%v: sent %s to %v session %v: %v %v", e, kind, to, p, entries, options)
	}
	return nil
}

// HandleDatagram processes one datagram received on either socket. Every
// SOME/IP message it frames is validated and parsed on its own; a bad
// message is logged and dropped without affecting the others.
func (e *Endpoint) HandleDatagram(d beacon.Datagram) {
	channel := channelUnicast
	if d.Multicast {
		channel = channelMulticast
	}
	metricDatagramsReceived.WithLabelValues(channel).Inc()

	if d.From.Addr() == e.cfg.Unicast.Addr() {
		metricDatagramsDropped.WithLabelValues(reasonSelf).Inc()
		return
	}
	if !e.limiter.allow(d.From.Addr()) {
		l.Debugln(e, "rate limit exceeded for", d.From)
		metricDatagramsDropped.WithLabelValues(reasonRateLimit).Inc()
		return
	}

	msgs, err := someip.SplitMessages(d.Data)
	if err != nil {
		l.Debugf("%v: framing datagram from %v: %v", e, d.From, err)
		metricDatagramsDropped.WithLabelValues(reasonFraming).Inc()
	}
	for _, buf := range msgs {
		e.handleMessage(d.From, d.Multicast, buf)
	}
}

func (e *Endpoint) handleMessage(from netip.AddrPort, multicast bool, buf []byte) {
	msg, err := someip.ParseMessage(buf)
	if err != nil {
		var herr *someip.HeaderError
		if errors.As(err, &herr) {
			l.Debugf("%v: discarding message from %v: %v", e, from, herr)
			metricDatagramsDropped.WithLabelValues(reasonHeader).Inc()
		} else {
			l.Debugf("%v: discarding malformed message from %v: %v", e, from, err)
			metricDatagramsDropped.WithLabelValues(reasonMalformed).Inc()
		}
		return
	}
	if msg.Trailing > 0 {
		l.Debugf("%v: ignoring %d trailing bytes from %v", e, msg.Trailing, from)
	}

	cur := reboot.Param{SessionID: msg.Header.SessionID, Reboot: msg.Reboot()}
	local := e.cfg.Unicast.Addr()
	if multicast {
		prev := e.reboots.LastMulticastReceiver(from, cur)
		if reboot.Detected(prev, cur) {
			e.reboots.ResetUnicastReceiver(from)
			e.rebootDetected(from, prev, cur)
		}
	} else {
		prev := e.reboots.LastUnicastReceiver(from, cur)
		if reboot.Detected(prev, cur) {
			e.reboots.ResetMulticastReceiver(from)
			e.rebootDetected(from, prev, cur)
		}
	}

	if l.ShouldDebug("endpoint") {
		l.Debugf("%v: recv from %v multicast=%v session %v: %v %v", e, from, multicast, cur, msg.Entries, msg.Options)
	}
	if multicast {
		e.observer.OnMulticastMessage(local, from, msg.Entries, msg.Options)
	} else {
		e.observer.OnUnicastMessage(local, from, msg.Entries, msg.Options)
	}
}

func (e *Endpoint) rebootDetected(from netip.AddrPort, prev, cur reboot.Param) {
	l.Infof("%v: reboot of %v detected (%v -> %v)", e, from, prev, cur)
	metricRebootsDetected.Inc()
	e.observer.OnRebootDetected(e.cfg.Unicast.Addr(), from)
}
