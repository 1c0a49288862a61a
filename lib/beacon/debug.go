// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/syncthing/someipsd/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("beacon", "UDP sockets")

var metricInboxDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "someipsd",
	Subsystem: "beacon",
	Name:      "inbox_dropped_total",
	Help:      "Datagrams dropped because the event loop inbox was full.",
})

func init() {
	prometheus.MustRegister(metricInboxDropped)
}
