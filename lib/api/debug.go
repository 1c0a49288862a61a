// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syncthing/someipsd/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("api", "REST API")

func shouldDebugHTTP() bool {
	return l.ShouldDebug("api")
}

var (
	metricRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "REST API requests, by method and status code.",
	}, []string{"method", "code"})
	metricRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "someipsd",
		Subsystem: "api",
		Name:      "request_seconds",
		Help:      "REST API request latency, by method.",
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(metricRequestsTotal, metricRequestSeconds)
}
