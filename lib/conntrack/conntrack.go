// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package conntrack keeps track of the TCP connections held by remote
// peers on the ports of provided service instances. A subscription that
// names a TCP endpoint is only accepted while that endpoint is connected.
package conntrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/syncthing/someipsd/lib/svcutil"
)

const maxAcceptFailures = 10

// Tracker records connected remote endpoints. It is safe for concurrent
// use; the accepting goroutines write and the event loop reads.
type Tracker struct {
	conns *xsync.MapOf[netip.AddrPort, int]
}

func New() *Tracker {
	return &Tracker{conns: xsync.NewMapOf[netip.AddrPort, int]()}
}

// HasTCPConnection reports whether remote currently holds at least one
// connection to any tracked port.
func (t *Tracker) HasTCPConnection(remote netip.AddrPort) bool {
	n, ok := t.conns.Load(unmap(remote))
	return ok && n > 0
}

// Add records a connection from remote. The returned function removes it
// again and must be called exactly once.
func (t *Tracker) Add(remote netip.AddrPort) (done func()) {
	remote = unmap(remote)
	t.conns.Compute(remote, func(n int, _ bool) (int, bool) {
		return n + 1, false
	})
	metricConnections.Inc()
	return func() {
		t.conns.Compute(remote, func(n int, _ bool) (int, bool) {
			return n - 1, n <= 1
		})
		metricConnections.Dec()
	}
}

// Connections returns the connected remote endpoints.
func (t *Tracker) Connections() []netip.AddrPort {
	res := make([]netip.AddrPort, 0, t.conns.Size())
	t.conns.Range(func(k netip.AddrPort, _ int) bool {
		res = append(res, k)
		return true
	})
	return res
}

// Listen returns a service accepting TCP connections on addr. Each
// connection is tracked until the peer closes it or the service stops;
// anything the peer sends is discarded.
func (t *Tracker) Listen(addr netip.AddrPort) svcutil.ServiceWithError {
	return svcutil.AsService(func(ctx context.Context) error {
		return t.serve(ctx, addr)
	}, fmt.Sprintf("conntrack.Listen(%v)", addr))
}

func (t *Tracker) serve(ctx context.Context, addr netip.AddrPort) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr.String())
	if err != nil {
		l.Infoln("Listen (tcp):", err)
		return err
	}
	defer listener.Close()
	tcpListener := listener.(*net.TCPListener)

	l.Infof("TCP listener (%v) starting", addr)
	defer l.Infof("TCP listener (%v) shutting down", addr)

	handlers, cancel := context.WithCancel(ctx)
	defer cancel()

	acceptFailures := 0
	for {
		_ = tcpListener.SetDeadline(time.Now().Add(time.Second))
		conn, err := tcpListener.AcceptTCP()
		select {
		case <-ctx.Done():
			if err == nil {
				conn.Close()
			}
			return nil
		default:
		}
		if err != nil {
			var operr *net.OpError
			if !errors.As(err, &operr) || !operr.Timeout() {
				l.Warnln("Listen (tcp): accepting connection:", err)
				acceptFailures++
				if acceptFailures > maxAcceptFailures {
					return err
				}
				time.Sleep(time.Duration(acceptFailures) * time.Second)
			}
			continue
		}
		acceptFailures = 0
		go t.hold(handlers, conn)
	}
}

func (t *Tracker) hold(ctx context.Context, conn *net.TCPConn) {
	remote := conn.RemoteAddr().(*net.TCPAddr).AddrPort()
	l.Debugln("connect from", remote)
	done := t.Add(remote)
	defer done()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	_, err := io.Copy(io.Discard, conn)
	conn.Close()
	l.Debugln("disconnect from", remote, err)
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
