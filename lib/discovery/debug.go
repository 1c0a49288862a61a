// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syncthing/someipsd/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("discovery", "Service discovery core")

var metricCalls = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "someipsd",
	Subsystem: "discovery",
	Name:      "api_calls_total",
	Help:      "Application calls executed by the event loop.",
})

func init() {
	prometheus.MustRegister(metricCalls)
}
