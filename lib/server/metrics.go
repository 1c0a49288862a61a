// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricStateChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "server",
		Name:      "state_changes_total",
		Help:      "Server state machine transitions, by entered state.",
	}, []string{"state"})
	metricFindsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "server",
		Name:      "finds_received_total",
		Help:      "Matching FindService entries received, by channel.",
	}, []string{"channel"})
	metricOffersSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "server",
		Name:      "queued_offers_sent_total",
		Help:      "Offers sent in answer to finds, by channel.",
	}, []string{"channel"})
	metricOffersEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "server",
		Name:      "queued_offers_evicted_total",
		Help:      "Delayed unicast offers sent early because the queue was full.",
	})
	metricSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "someipsd",
		Subsystem: "server",
		Name:      "subscriptions",
		Help:      "Current eventgroup subscriptions.",
	})
	metricSubscriptionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "server",
		Name:      "subscriptions_rejected_total",
		Help:      "Subscriptions answered with a negative acknowledgement.",
	})
	metricSubscriptionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "server",
		Name:      "subscriptions_expired_total",
		Help:      "Subscriptions dropped because their TTL ran out.",
	})
)

const (
	metricChannelUnicast   = "unicast"
	metricChannelMulticast = "multicast"
)

func init() {
	prometheus.MustRegister(metricStateChanges, metricFindsReceived, metricOffersSent,
		metricOffersEvicted, metricSubscriptions, metricSubscriptionsRejected,
		metricSubscriptionsExpired)
}
