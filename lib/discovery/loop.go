// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"context"
	"net/netip"
	"time"

	"github.com/syncthing/someipsd/lib/events"
	"github.com/syncthing/someipsd/lib/someip"
)

// serve is the event loop. It is the only goroutine touching the state
// machines, the endpoints and the timers.
func (d *Discovery) serve(ctx context.Context) error {
	d.evLogger.Log(events.Starting, nil)
	d.start()
	defer d.stop()
	d.evLogger.Log(events.StartupComplete, nil)

	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	for {
		d.timers.HandleExpired()
		d.publishStatus()

		wake.Stop()
		select {
		case <-wake.C:
		default:
		}
		if next, ok := d.timers.NextExpiry(); ok {
			wake.Reset(max(next.Sub(d.timers.Now()), 0))
		}

		select {
		case in := <-d.inbox:
			in.ep.HandleDatagram(in.d)
		case fn := <-d.calls:
			fn()
			metricCalls.Inc()
		case <-wake.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// start brings the network up for every state machine.
func (d *Discovery) start() {
	d.started.Store(time.Now())
	for _, p := range d.provided {
		p.srv.OnNetworkUp()
	}
	for _, r := range d.required {
		r.cl.OnNetworkUp()
	}
}

// stop withdraws everything still offered or requested.
func (d *Discovery) stop() {
	for _, r := range d.required {
		for r.cl.Requested() {
			if err := r.cl.ReleaseService(); err != nil {
				break
			}
		}
		r.cl.OnNetworkDown()
	}
	for _, s := range d.static {
		for s.requested > 0 {
			s.release()
		}
	}
	for _, p := range d.provided {
		p.srv.OnStop()
	}
	d.publishStatus()
}

func (d *Discovery) OnUnicastMessage(local netip.Addr, from netip.AddrPort, entries []someip.Entry, options []someip.Option) {
	for _, p := range d.provided {
		if p.local == local {
			p.srv.OnUnicastMessage(from, entries, options)
		}
	}
	for _, r := range d.required {
		if r.local == local {
			r.cl.OnUnicastMessage(from, entries, options)
		}
	}
}

func (d *Discovery) OnMulticastMessage(local netip.Addr, from netip.AddrPort, entries []someip.Entry, options []someip.Option) {
	for _, p := range d.provided {
		if p.local == local {
			p.srv.OnMulticastMessage(from, entries, options)
		}
	}
	for _, r := range d.required {
		if r.local == local {
			r.cl.OnMulticastMessage(from, entries, options)
		}
	}
}

func (d *Discovery) OnRebootDetected(local netip.Addr, from netip.AddrPort) {
	d.evLogger.Log(events.RebootDetected, RebootEvent{Local: local, Peer: from})
	for _, p := range d.provided {
		if p.local == local {
			p.srv.OnRebootDetected(from)
		}
	}
	for _, r := range d.required {
		if r.local == local {
			r.cl.OnRebootDetected(from)
		}
	}
}
