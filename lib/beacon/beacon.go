// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package beacon implements the UDP sockets of an SD endpoint. A socket is
// bound when created so sends work immediately; its suture service only
// reads, copying each datagram into a shared outbox channel.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
)

const maxDatagramSize = 65536

var ErrClosed = errors.New("socket closed")

// A Datagram is one UDP payload as read from a socket.
type Datagram struct {
	Data      []byte
	From      netip.AddrPort
	Local     netip.AddrPort // address the receiving socket is bound to
	Multicast bool           // received on the multicast socket
}

type Interface interface {
	suture.Service
	Send(data []byte, to netip.AddrPort) error
	LocalAddr() netip.AddrPort
	Close() error
	Error() error
}

type errorHolder struct {
	err error
	mut sync.Mutex
}

func (e *errorHolder) setError(err error) {
	e.mut.Lock()
	e.err = err
	e.mut.Unlock()
}

func (e *errorHolder) Error() error {
	e.mut.Lock()
	err := e.err
	e.mut.Unlock()
	return err
}

type socket struct {
	errorHolder
	name      string
	conn      *net.UDPConn
	local     netip.AddrPort
	multicast bool
	outbox    chan<- Datagram

	closeOnce sync.Once
	closed    chan struct{}
}

func newSocket(name string, conn *net.UDPConn, local netip.AddrPort, multicast bool, outbox chan<- Datagram) *socket {
	return &socket{
		name:      name,
		conn:      conn,
		local:     local,
		multicast: multicast,
		outbox:    outbox,
		closed:    make(chan struct{}),
	}
}

func (s *socket) String() string {
	return fmt.Sprintf("%s@%v", s.name, s.local)
}

func (s *socket) LocalAddr() netip.AddrPort {
	return s.local
}

func (s *socket) Send(data []byte, to netip.AddrPort) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := s.conn.WriteToUDPAddrPort(data, to)
	s.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		l.Debugln(s, "write to", to, "failed:", err)
		return err
	}
	l.Debugf("%v: sent %d bytes to %v", s, len(data), to)
	return nil
}

func (s *socket) Serve(ctx context.Context) error {
	s.conn.SetReadDeadline(time.Time{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Unblocks the read below without closing the socket, so a
			// restarted service can keep reading.
			s.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	bs := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(bs)
		if err != nil {
			select {
			case <-s.closed:
				return ErrClosed
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			l.Debugln(s, "read:", err)
			s.setError(err)
			return err
		}
		s.setError(nil)
		l.Debugf("%v: recv %d bytes from %v", s, n, from)

		c := make([]byte, n)
		copy(c, bs)
		d := Datagram{
			Data:      c,
			From:      netip.AddrPortFrom(from.Addr().Unmap(), from.Port()),
			Local:     s.local,
			Multicast: s.multicast,
		}
		select {
		case s.outbox <- d:
		case <-ctx.Done():
			return ctx.Err()
		default:
			l.Debugln(s, "inbox full, dropping datagram from", from)
			metricInboxDropped.Inc()
		}
	}
}

func (s *socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func network(addr netip.Addr) string {
	if addr.Is4() {
		return "udp4"
	}
	return "udp6"
}

// InterfaceFor returns the network interface carrying addr, or nil when
// addr is unspecified.
func InterfaceFor(addr netip.Addr) (*net.Interface, error) {
	if !addr.IsValid() || addr.IsUnspecified() {
		return nil, nil
	}
	intfs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range intfs {
		addrs, err := intfs[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if ok && ip.Unmap() == addr.Unmap() {
				return &intfs[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface with address %v", addr)
}
