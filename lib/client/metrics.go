// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricStateChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "client",
		Name:      "state_changes_total",
		Help:      "Find service state machine transitions, by entered state.",
	}, []string{"state"})
	metricFindsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "client",
		Name:      "finds_sent_total",
		Help:      "FindService entries sent.",
	})
	metricOffersReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "client",
		Name:      "offers_received_total",
		Help:      "Matching offers received, by kind.",
	}, []string{"kind"})
	metricOffersRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "client",
		Name:      "offers_rejected_total",
		Help:      "Matching offers ignored because of their options.",
	})
	metricAcksReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "client",
		Name:      "acks_received_total",
		Help:      "Subscription acknowledgements received, by kind.",
	}, []string{"kind"})
	metricSubscribeRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "client",
		Name:      "subscribe_retries_total",
		Help:      "Subscriptions sent again after the acknowledgement timed out.",
	})
	metricSubscriptionStates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "someipsd",
		Subsystem: "client",
		Name:      "subscription_state_changes_total",
		Help:      "Eventgroup subscription state changes, by entered state.",
	}, []string{"state"})
)

const (
	metricOfferOffer = "offer"
	metricOfferStop  = "stop"
	metricAckAck     = "ack"
	metricAckNack    = "nack"
)

func init() {
	prometheus.MustRegister(metricStateChanges, metricFindsSent, metricOffersReceived,
		metricOffersRejected, metricAcksReceived, metricSubscribeRetries,
		metricSubscriptionStates)
}
