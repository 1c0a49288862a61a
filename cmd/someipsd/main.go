// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command someipsd is the SOME/IP service discovery daemon. It offers and
// finds service instances on behalf of local applications, which drive it
// through a REST API or through the startup flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/calmh/incontainer"
	"github.com/thejerf/suture/v4"
	"github.com/willabides/kongplete"
	"go.uber.org/automaxprocs/maxprocs"
	"sigs.k8s.io/yaml"

	"github.com/syncthing/someipsd/lib/api"
	"github.com/syncthing/someipsd/lib/build"
	"github.com/syncthing/someipsd/lib/config"
	"github.com/syncthing/someipsd/lib/discovery"
	"github.com/syncthing/someipsd/lib/events"
	"github.com/syncthing/someipsd/lib/logger"
	"github.com/syncthing/someipsd/lib/svcutil"
)

var l = logger.DefaultLogger.NewFacility("main", "Main package")

type CLI struct {
	Serve              serveCmd                     `cmd:"" default:"withargs" help:"Run the service discovery daemon"`
	Check              checkCmd                     `cmd:"" help:"Load and validate the configuration, then print it"`
	Version            versionCmd                   `cmd:"" help:"Show version"`
	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Print commands to install shell completions"`
}

type serveCmd struct {
	Config      []string `arg:"" type:"existingfile" help:"Configuration fragments, merged in order"`
	HTTPAddress string   `name:"http-address" default:"127.0.0.1:8390" env:"SOMEIPSD_HTTP_ADDRESS" help:"REST API listen address, empty to disable"`
	Offer       []string `placeholder:"SERVICE:INSTANCE:MAJOR" help:"Offer a provided service instance at startup"`
	Request     []string `placeholder:"SERVICE:INSTANCE:MAJOR[:MINOR]" help:"Request a required service instance at startup"`
	Subscribe   []string `placeholder:"SERVICE:INSTANCE:MAJOR:EVENTGROUP" help:"Subscribe to an eventgroup at startup"`
	TrackTCP    bool     `name:"track-tcp" help:"Accept TCP connections on provided TCP ports and require them for subscriptions"`
	Debug       []string `placeholder:"FACILITY" help:"Enable debug output for a facility (see also SDTRACE)"`
	LogFlags    int      `default:"3" help:"Go log flags, see the log package"`
}

type checkCmd struct {
	Config []string `arg:"" type:"existingfile" help:"Configuration fragments, merged in order"`
}

type versionCmd struct{}

func main() {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("someipsd"),
		kong.Description("SOME/IP service discovery daemon"),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(svcutil.ExitError.AsInt())
	}
	kongplete.Complete(parser)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(); err != nil {
		l.Warnln(err)
		os.Exit(svcutil.ExitStatusOf(err).AsInt())
	}
}

func (versionCmd) Run() error {
	fmt.Println(build.LongVersion)
	return nil
}

func (c *checkCmd) Run() error {
	cfg, err := config.Load(c.Config...)
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitConfig)
	}
	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(bs)
	return err
}

func (c *serveCmd) Run() error {
	logs := logger.NewRecorder(l, logger.LevelInfo, 250, 20)
	l.SetFlags(c.LogFlags)
	for _, f := range c.Debug {
		l.SetDebug(f, true)
	}
	l.Infoln(build.LongVersion)
	if incontainer.Detect() {
		l.Infoln("Running in a container")
	}
	if _, err := maxprocs.Set(maxprocs.Logger(l.Debugf)); err != nil {
		l.Debugln("Setting GOMAXPROCS:", err)
	}

	startup, err := c.startupActions()
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitConfig)
	}

	cfg, err := config.Load(c.Config...)
	if err != nil {
		return svcutil.AsFatalErr(fmt.Errorf("loading configuration: %w", err), svcutil.ExitConfig)
	}

	evLogger := events.NewLogger()
	disc, err := discovery.New(cfg,
		discovery.WithEvents(evLogger),
		discovery.WithConnectionTracking(c.TrackTCP),
	)
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitNetwork)
	}

	mainService := suture.New("main", svcutil.SpecWithInfoLogger(l))
	mainService.Add(disc)
	if c.HTTPAddress != "" {
		mainService.Add(api.New(c.HTTPAddress, disc, evLogger, logs))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	errc := mainService.ServeBackground(ctx)

	for _, action := range startup {
		if err := action(ctx, disc); err != nil {
			l.Warnln("Startup:", err)
			cancel()
			<-errc
			return svcutil.AsFatalErr(err, svcutil.ExitConfig)
		}
	}

	err = <-errc
	if errors.Is(err, context.Canceled) {
		l.Infoln("Exiting")
		return nil
	}
	l.Infof("Exiting with %v", svcutil.ExitStatusOf(err))
	return err
}

type startupAction func(ctx context.Context, disc *discovery.Discovery) error

// startupActions parses the startup flags into the calls to make once the
// daemon runs. Offers go first, then requests and subscriptions.
func (c *serveCmd) startupActions() ([]startupAction, error) {
	var actions []startupAction
	for _, s := range c.Offer {
		id, err := parseInstanceID(s, idOffer)
		if err != nil {
			return nil, fmt.Errorf("--offer %s: %w", s, err)
		}
		actions = append(actions, func(ctx context.Context, disc *discovery.Discovery) error {
			l.Infof("Offering %v", id)
			return disc.OfferService(ctx, id.service, id.instance, id.major)
		})
	}
	for _, s := range c.Request {
		id, err := parseInstanceID(s, idRequest)
		if err != nil {
			return nil, fmt.Errorf("--request %s: %w", s, err)
		}
		actions = append(actions, func(ctx context.Context, disc *discovery.Discovery) error {
			l.Infof("Requesting %v", id)
			return disc.RequestService(ctx, id.service, id.instance, id.major, id.minor)
		})
	}
	for _, s := range c.Subscribe {
		id, err := parseInstanceID(s, idSubscribe)
		if err != nil {
			return nil, fmt.Errorf("--subscribe %s: %w", s, err)
		}
		actions = append(actions, func(ctx context.Context, disc *discovery.Discovery) error {
			l.Infof("Subscribing %v", id)
			return disc.SubscribeEventgroup(ctx, id.service, id.instance, id.major, id.eventgroup)
		})
	}
	return actions, nil
}
