// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/gobwas/glob"

	"github.com/syncthing/someipsd/lib/beacon"
	"github.com/syncthing/someipsd/lib/someip"
)

// printer prints the entries of received SD messages, by default only
// the first entry of a given kind from each source.
type printer struct {
	all    bool
	filter glob.Glob
	seen   map[string]bool
	out    func(format string, args ...any)
}

func (p *printer) datagram(dg beacon.Datagram) {
	msgs, err := someip.SplitMessages(dg.Data)
	if err != nil {
		l.Debugf("%v: %v", dg.From, err)
	}
	for _, bs := range msgs {
		msg, err := someip.ParseMessage(bs)
		if err != nil {
			l.Debugf("%v: %v", dg.From, err)
			continue
		}
		for _, e := range msg.Entries {
			p.entry(dg.From, dg.Multicast, msg, e)
		}
	}
}

func (p *printer) entry(from netip.AddrPort, multicast bool, msg someip.Message, e someip.Entry) {
	desc := e.String()
	if p.filter != nil && !p.filter.Match(desc) {
		return
	}
	key := fmt.Sprintf("%v %v %04x %04x %d %04x %v", from, e.Type, e.ServiceID, e.InstanceID, e.MajorVersion, e.EventgroupID, e.IsStop())
	if !p.all && p.seen[key] {
		return
	}
	p.seen[key] = true

	out := p.out
	if out == nil {
		out = l.Infof
	}
	out("%s", formatEntry(from, multicast, msg, e))
}

// formatEntry renders an entry with its sender, the message flags and the
// options it references.
func formatEntry(from netip.AddrPort, multicast bool, msg someip.Message, e someip.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v session %d", from, msg.Header.SessionID)
	if multicast {
		b.WriteString(" multicast")
	}
	if msg.Reboot() {
		b.WriteString(" reboot")
	}
	fmt.Fprintf(&b, ": %v", e)
	for _, o := range someip.EntryOptions(e, msg.Options) {
		fmt.Fprintf(&b, " %v", o)
	}
	return b.String()
}
