// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command sdmon listens to SOME/IP service discovery traffic and prints
// the entries it sees. It can send FindService probes to lure out
// providers faster.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gobwas/glob"
	"github.com/thejerf/suture/v4"

	"github.com/syncthing/someipsd/lib/beacon"
	"github.com/syncthing/someipsd/lib/build"
	"github.com/syncthing/someipsd/lib/logger"
	"github.com/syncthing/someipsd/lib/someip"
	"github.com/syncthing/someipsd/lib/svcutil"
)

var l = logger.DefaultLogger.NewFacility("main", "Main package")

type CLI struct {
	Group    netip.AddrPort `default:"224.224.224.245:30490" help:"SD multicast group and port"`
	Local    string         `placeholder:"ADDRESS" help:"Local interface address to listen and probe on"`
	Filter   string         `placeholder:"GLOB" help:"Only print entries matching the pattern, e.g. 'OfferService*0x1234/*'"`
	All      bool           `help:"Print all received entries (not only the first of each kind from each source)"`
	Probe    []string       `placeholder:"SERVICE" help:"Send FindService for the service id periodically"`
	Interval time.Duration  `default:"1s" help:"Probe interval"`
	Version  bool           `help:"Show version and exit"`
}

func main() {
	var cli CLI
	kong.Parse(&cli, kong.Name("sdmon"), kong.Description("SOME/IP service discovery monitor"))
	if cli.Version {
		fmt.Println(build.LongVersionFor("sdmon"))
		return
	}
	if err := run(cli); err != nil {
		l.Warnln(err)
		os.Exit(svcutil.ExitStatusOf(err).AsInt())
	}
}

func run(cli CLI) error {
	local := netip.IPv4Unspecified()
	if cli.Group.Addr().Is6() {
		local = netip.IPv6Unspecified()
	}
	if cli.Local != "" {
		addr, err := netip.ParseAddr(cli.Local)
		if err != nil {
			return svcutil.AsFatalErr(fmt.Errorf("local address: %w", err), svcutil.ExitConfig)
		}
		local = addr
	}

	p := &printer{all: cli.All, seen: make(map[string]bool)}
	if cli.Filter != "" {
		g, err := glob.Compile(cli.Filter)
		if err != nil {
			return svcutil.AsFatalErr(fmt.Errorf("filter: %w", err), svcutil.ExitConfig)
		}
		p.filter = g
	}

	var probes []someip.Entry
	for _, s := range cli.Probe {
		service, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return svcutil.AsFatalErr(fmt.Errorf("probe %q: %w", s, err), svcutil.ExitConfig)
		}
		probes = append(probes, someip.FindServiceEntry(uint16(service), someip.InstanceAny, someip.MajorVersionAny, someip.MinorVersionAny, someip.TTLInfinite))
	}

	inbox := make(chan beacon.Datagram, 64)
	mc, err := beacon.NewMulticast(cli.Group, local, inbox)
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitNetwork)
	}
	uc, err := beacon.NewUnicast(netip.AddrPortFrom(local, 0), inbox)
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitNetwork)
	}
	l.Infoln(build.LongVersionFor("sdmon"))
	l.Infof("Listening on %v and %v", cli.Group, uc.LocalAddr())

	sup := suture.New("sdmon", svcutil.SpecWithInfoLogger(l))
	sup.Add(mc)
	sup.Add(uc)
	sup.Add(svcutil.AsService(func(ctx context.Context) error {
		for {
			select {
			case dg := <-inbox:
				p.datagram(dg)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}, "printer"))
	if len(probes) > 0 {
		sup.Add(svcutil.AsService(func(ctx context.Context) error {
			return probe(ctx, uc, cli.Group, probes, cli.Interval)
		}, "probe"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// probe multicasts the find entries every interval until ctx is done.
func probe(ctx context.Context, bc beacon.Interface, group netip.AddrPort, entries []someip.Entry, interval time.Duration) error {
	var sid uint16
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		sid++
		if sid == someip.SessionIDInvalid {
			sid = someip.SessionIDMin
		}
		if err := bc.Send(someip.Marshal(sid, true, entries, nil), group); err != nil {
			l.Infoln("Probe:", err)
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
