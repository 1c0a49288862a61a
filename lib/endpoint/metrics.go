// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package endpoint

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricDatagramsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "endpoint",
		Name:      "datagrams_received_total",
		Help:      "Datagrams received, by channel.",
	}, []string{"channel"})
	metricDatagramsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "endpoint",
		Name:      "datagrams_dropped_total",
		Help:      "Datagrams or messages discarded, by reason.",
	}, []string{"reason"})
	metricMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "endpoint",
		Name:      "messages_sent_total",
		Help:      "SD messages sent, by channel and result.",
	}, []string{"channel", "result"})
	metricEntriesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "endpoint",
		Name:      "entries_sent_total",
		Help:      "SD entries sent.",
	})
	metricRebootsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "endpoint",
		Name:      "reboots_detected_total",
		Help:      "Peer reboots detected.",
	})
)

const (
	channelUnicast   = "unicast"
	channelMulticast = "multicast"

	reasonSelf      = "self"
	reasonRateLimit = "rate_limit"
	reasonFraming   = "framing"
	reasonHeader    = "header"
	reasonMalformed = "malformed"

	resultSuccess  = "success"
	resultError    = "error"
	resultTooLarge = "too_large"
)

func init() {
	prometheus.MustRegister(metricDatagramsReceived, metricDatagramsDropped,
		metricMessagesSent, metricEntriesSent, metricRebootsDetected)
}
