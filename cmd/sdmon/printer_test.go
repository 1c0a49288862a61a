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
	"testing"

	"github.com/gobwas/glob"

	"github.com/syncthing/someipsd/lib/beacon"
	"github.com/syncthing/someipsd/lib/someip"
)

var sender = netip.MustParseAddrPort("192.168.7.3:30490")

func offerDatagram(sid uint16, services ...uint16) beacon.Datagram {
	var entries []someip.Entry
	for _, s := range services {
		entries = append(entries, someip.OfferServiceEntry(s, 1, 1, 0, 3, 1))
	}
	opts := []someip.Option{someip.EndpointOption(netip.MustParseAddr("192.168.7.3"), someip.ProtoUDP, 40002)}
	return beacon.Datagram{
		Data:      someip.Marshal(sid, true, entries, opts),
		From:      sender,
		Multicast: true,
	}
}

func newTestPrinter(all bool, filter string) (*printer, *[]string) {
	var lines []string
	p := &printer{
		all:  all,
		seen: make(map[string]bool),
		out: func(format string, args ...any) {
			lines = append(lines, fmt.Sprintf(format, args...))
		},
	}
	if filter != "" {
		p.filter = glob.MustCompile(filter)
	}
	return p, &lines
}

func TestPrinterFirstOnly(t *testing.T) {
	p, lines := newTestPrinter(false, "")
	p.datagram(offerDatagram(1, 0x1234, 0x5678))
	p.datagram(offerDatagram(2, 0x1234, 0x5678))
	if len(*lines) != 2 {
		t.Fatalf("expected two lines, got %q", *lines)
	}
	line := (*lines)[0]
	for _, part := range []string{"192.168.7.3:30490", "session 1", "multicast", "reboot", "OfferService{0x1234/0x0001", "192.168.7.3:40002"} {
		if !strings.Contains(line, part) {
			t.Errorf("line %q lacks %q", line, part)
		}
	}
}

func TestPrinterAll(t *testing.T) {
	p, lines := newTestPrinter(true, "")
	p.datagram(offerDatagram(1, 0x1234))
	p.datagram(offerDatagram(2, 0x1234))
	if len(*lines) != 2 {
		t.Fatalf("expected two lines, got %q", *lines)
	}
}

func TestPrinterFilter(t *testing.T) {
	p, lines := newTestPrinter(true, "OfferService*0x5678/*")
	p.datagram(offerDatagram(1, 0x1234, 0x5678))
	if len(*lines) != 1 || !strings.Contains((*lines)[0], "0x5678") {
		t.Fatalf("unexpected lines %q", *lines)
	}
}

func TestPrinterGarbage(t *testing.T) {
	p, lines := newTestPrinter(true, "")
	p.datagram(beacon.Datagram{Data: []byte{1, 2, 3}, From: sender})
	if len(*lines) != 0 {
		t.Fatalf("unexpected lines %q", *lines)
	}
}
