// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package conntrack

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syncthing/someipsd/lib/logger"
)

var (
	l = logger.DefaultLogger.NewFacility("conntrack", "TCP connection tracking")

	metricConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "someipsd",
		Subsystem: "conntrack",
		Name:      "connections",
		Help:      "Currently tracked TCP connections.",
	})
)

func init() {
	prometheus.MustRegister(metricConnections)
}
