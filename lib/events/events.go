// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package events provides event subscription and polling functionality for
// what happens to local service instances: availability of required
// services, subscribers of provided eventgroups, subscription states.
package events

import (
	"errors"
	"slices"
	"sync"
	"time"
)

type EventType int

const (
	Starting EventType = 1 << iota
	StartupComplete
	ServiceOffered
	ServiceStopped
	ServiceAvailable
	ServiceUnavailable
	SubscriberAdded
	SubscriberRemoved
	SubscriptionStateChanged
	MulticastListenStarted
	MulticastListenStopped
	RebootDetected

	AllEvents = (1 << iota) - 1
)

var eventNames = map[EventType]string{
	Starting:                 "Starting",
	StartupComplete:          "StartupComplete",
	ServiceOffered:           "ServiceOffered",
	ServiceStopped:           "ServiceStopped",
	ServiceAvailable:         "ServiceAvailable",
	ServiceUnavailable:       "ServiceUnavailable",
	SubscriberAdded:          "SubscriberAdded",
	SubscriberRemoved:        "SubscriberRemoved",
	SubscriptionStateChanged: "SubscriptionStateChanged",
	MulticastListenStarted:   "MulticastListenStarted",
	MulticastListenStopped:   "MulticastListenStopped",
	RebootDetected:           "RebootDetected",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "Unknown"
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(bs []byte) error {
	*t = UnmarshalEventType(string(bs))
	return nil
}

// UnmarshalEventType parses an event name as returned by String. Unknown
// names yield zero.
func UnmarshalEventType(s string) EventType {
	for t, name := range eventNames {
		if name == s {
			return t
		}
	}
	return 0
}

// BufferSize is the number of events a subscription holds before new
// events are dropped for it.
const BufferSize = 64

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("closed")
)

type Event struct {
	// SubscriptionID counts the events seen by one subscription, from one.
	SubscriptionID int       `json:"id"`
	GlobalID       int       `json:"globalID"`
	Time           time.Time `json:"time"`
	Type           EventType `json:"type"`
	Data           any       `json:"data"`
}

type Logger struct {
	mut    sync.Mutex
	subs   []*Subscription
	lastID int
}

type Subscription struct {
	mask   EventType
	events chan Event
	lastID int
}

func NewLogger() *Logger {
	return &Logger{}
}

// Log delivers an event to every subscription whose mask includes t.
// Subscriptions that are not keeping up lose the event; Log never blocks.
func (l *Logger) Log(t EventType, data any) {
	l.mut.Lock()
	defer l.mut.Unlock()

	l.lastID++
	dl.Debugln("log", l.lastID, t, data)
	e := Event{
		GlobalID: l.lastID,
		Time:     time.Now(),
		Type:     t,
		Data:     data,
	}
	for _, s := range l.subs {
		if s.mask&t == 0 {
			continue
		}
		s.lastID++
		e.SubscriptionID = s.lastID
		select {
		case s.events <- e:
		default:
			metricEventsDropped.Inc()
		}
	}
	metricEventsLogged.WithLabelValues(t.String()).Inc()
}

func (l *Logger) Subscribe(mask EventType) *Subscription {
	s := &Subscription{
		mask:   mask,
		events: make(chan Event, BufferSize),
	}
	l.mut.Lock()
	dl.Debugln("subscribe", mask)
	l.subs = append(l.subs, s)
	l.mut.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel.
func (l *Logger) Unsubscribe(s *Subscription) {
	l.mut.Lock()
	dl.Debugln("unsubscribe", s.mask)
	l.subs = slices.DeleteFunc(l.subs, func(ss *Subscription) bool { return ss == s })
	close(s.events)
	l.mut.Unlock()
}

// Poll waits up to timeout for the next event. It is not safe for
// concurrent use on one subscription.
func (s *Subscription) Poll(timeout time.Duration) (Event, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case e, ok := <-s.events:
		if !ok {
			return Event{}, ErrClosed
		}
		return e, nil
	case <-t.C:
		return Event{}, ErrTimeout
	}
}

func (s *Subscription) C() <-chan Event {
	return s.events
}

type BufferedSubscription interface {
	// Since returns the buffered events with an ID above id, waiting up to
	// timeout for one to arrive when there are none.
	Since(id int, into []Event, timeout time.Duration) []Event
}

type bufferedSubscription struct {
	mut    sync.Mutex
	cond   *sync.Cond
	buf    []Event // ascending SubscriptionID
	size   int
	lastID int
}

// NewBufferedSubscription keeps the last size events of s, reading s until
// it is unsubscribed.
func NewBufferedSubscription(s *Subscription, size int) BufferedSubscription {
	bs := &bufferedSubscription{
		buf:  make([]Event, 0, size),
		size: size,
	}
	bs.cond = sync.NewCond(&bs.mut)
	go bs.fill(s.C())
	return bs
}

func (s *bufferedSubscription) fill(events <-chan Event) {
	for ev := range events {
		s.mut.Lock()
		if len(s.buf) == s.size {
			s.buf = append(s.buf[:0], s.buf[1:]...)
		}
		s.buf = append(s.buf, ev)
		s.lastID = ev.SubscriptionID
		s.cond.Broadcast()
		s.mut.Unlock()
	}
}

func (s *bufferedSubscription) Since(id int, into []Event, timeout time.Duration) []Event {
	s.mut.Lock()
	defer s.mut.Unlock()

	if id >= s.lastID {
		expired := false
		t := time.AfterFunc(timeout, func() {
			s.mut.Lock()
			expired = true
			s.cond.Broadcast()
			s.mut.Unlock()
		})
		defer t.Stop()
		for id >= s.lastID && !expired {
			s.cond.Wait()
		}
	}

	first, _ := slices.BinarySearchFunc(s.buf, id+1, func(e Event, id int) int {
		return e.SubscriptionID - id
	})
	return append(into, s.buf[first:]...)
}
