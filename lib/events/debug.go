// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package events

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syncthing/someipsd/lib/logger"
)

var (
	dl = logger.DefaultLogger.NewFacility("events", "Event generation and logging")

	metricEventsLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "events",
		Name:      "logged_total",
		Help:      "Events logged, by type.",
	}, []string{"type"})
	metricEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events not delivered to a subscription that was not keeping up.",
	})
)

func init() {
	prometheus.MustRegister(metricEventsLogged, metricEventsDropped)
}
