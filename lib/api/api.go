// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package api implements the REST interface through which local
// applications and operators drive and observe the daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calmh/incontainer"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/syncthing/someipsd/lib/build"
	"github.com/syncthing/someipsd/lib/client"
	"github.com/syncthing/someipsd/lib/discovery"
	"github.com/syncthing/someipsd/lib/events"
	"github.com/syncthing/someipsd/lib/logger"
)

const (
	EventSubBufferSize  = 1000
	defaultEventTimeout = time.Minute
)

// Discovery is the part of the daemon the API exposes.
type Discovery interface {
	OfferService(ctx context.Context, service, instance uint16, major uint8) error
	StopOfferService(ctx context.Context, service, instance uint16, major uint8) error
	RequestService(ctx context.Context, service, instance uint16, major uint8, minor uint32) error
	ReleaseService(ctx context.Context, service, instance uint16, major uint8, minor uint32) error
	SubscribeEventgroup(ctx context.Context, service, instance uint16, major uint8, eventgroup uint16) error
	UnsubscribeEventgroup(ctx context.Context, service, instance uint16, major uint8, eventgroup uint16) error
	SubscribeEvent(ctx context.Context, service, instance uint16, major uint8, event uint16) error
	UnsubscribeEvent(ctx context.Context, service, instance uint16, major uint8, event uint16) error
	EventgroupState(ctx context.Context, service, instance uint16, major uint8, eventgroup uint16) (client.SubscriptionState, error)
	Status() []discovery.InstanceStatus
	EndpointStatus() []discovery.EndpointStatus
	Uptime() time.Duration
}

type Service struct {
	addr     string
	disc     Discovery
	evLogger *events.Logger
	logs     logger.Recorder

	eventSubs    map[events.EventType]events.BufferedSubscription
	eventSubsMut sync.Mutex

	started chan string // receives the listener address, for testing only
}

func New(addr string, disc Discovery, evLogger *events.Logger, logs logger.Recorder) *Service {
	return &Service{
		addr:      addr,
		disc:      disc,
		evLogger:  evLogger,
		logs:      logs,
		eventSubs: make(map[events.EventType]events.BufferedSubscription),
	}
}

func (s *Service) String() string {
	return fmt.Sprintf("api.Service@%s", s.addr)
}

func (s *Service) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		l.Warnln("Starting API:", err)
		return err
	}
	defer listener.Close()

	srv := http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Prevent the HTTP server from logging stuff on its own. The things we
		// care about we log ourselves from the handlers.
		ErrorLog: log.New(io.Discard, "", 0),
	}

	l.Infoln("API listening on", listener.Addr())
	if s.started != nil {
		select {
		case <-ctx.Done():
		case s.started <- listener.Addr().String():
		}
	}

	serveError := make(chan error, 1)
	go func() {
		serveError <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		l.Debugln("shutting down (stop)")
		err = nil
	case err = <-serveError:
		l.Warnln("API:", err, "(restarting)")
	}
	srv.Close()
	return err
}

// Handler returns the complete routing handler.
func (s *Service) Handler() http.Handler {
	restMux := httprouter.New()

	// The GET handlers
	restMux.HandlerFunc(http.MethodGet, "/rest/system/ping", s.restPing)             // -
	restMux.HandlerFunc(http.MethodGet, "/rest/system/version", s.getSystemVersion)  // -
	restMux.HandlerFunc(http.MethodGet, "/rest/system/status", s.getSystemStatus)    // -
	restMux.HandlerFunc(http.MethodGet, "/rest/system/debug", s.getSystemDebug)      // -
	restMux.HandlerFunc(http.MethodGet, "/rest/system/log", s.getSystemLog)          // [since]
	restMux.HandlerFunc(http.MethodGet, "/rest/events", s.getEvents)                 // [since] [limit] [timeout] [events]
	restMux.HandlerFunc(http.MethodGet, "/rest/sd/instances", s.getInstances)        // -
	restMux.HandlerFunc(http.MethodGet, "/rest/sd/endpoints", s.getEndpoints)        // -
	restMux.HandlerFunc(http.MethodGet, "/rest/sd/eventgroup", s.getEventgroupState) // service instance major eventgroup

	// The POST handlers
	restMux.HandlerFunc(http.MethodPost, "/rest/system/debug", s.postSystemDebug)   // [enable] [disable]
	restMux.HandlerFunc(http.MethodPost, "/rest/system/log/clear", s.postLogClear)  // -
	restMux.HandlerFunc(http.MethodPost, "/rest/sd/offer", s.postOffer)             // service instance major
	restMux.HandlerFunc(http.MethodPost, "/rest/sd/stopoffer", s.postStopOffer)     // service instance major
	restMux.HandlerFunc(http.MethodPost, "/rest/sd/request", s.postRequest)         // service instance major [minor]
	restMux.HandlerFunc(http.MethodPost, "/rest/sd/release", s.postRelease)         // service instance major [minor]
	restMux.HandlerFunc(http.MethodPost, "/rest/sd/subscribe", s.postSubscribe)     // service instance major (eventgroup | event)
	restMux.HandlerFunc(http.MethodPost, "/rest/sd/unsubscribe", s.postUnsubscribe) // service instance major (eventgroup | event)

	mux := http.NewServeMux()
	mux.Handle("/rest/", noCacheMiddleware(metricsMiddleware(restMux)))
	mux.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = withDetailsMiddleware(handler)
	handler = debugMiddleware(handler)
	return handler
}

func sendJSON(w http.ResponseWriter, jsonObject any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	// Marshalling might fail, in which case we should return a 500 with the
	// actual error.
	bs, err := json.MarshalIndent(jsonObject, "", "  ")
	if err != nil {
		// This Marshal() can't fail though.
		bs, _ = json.Marshal(map[string]string{"error": err.Error()})
		http.Error(w, string(bs), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "%s\n", bs)
}

// sendError maps the errors of the discovery core to status codes.
func sendError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, discovery.ErrUnknownService),
		errors.Is(err, discovery.ErrUnknownEventgroup),
		errors.Is(err, discovery.ErrUnknownEvent):
		code = http.StatusNotFound
	case errors.Is(err, client.ErrNotRequested), errors.Is(err, client.ErrNotSubscribed):
		code = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), code)
}

func (*Service) restPing(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, map[string]string{"ping": "pong"})
}

func (*Service) getSystemVersion(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, map[string]any{
		"version":     build.Version,
		"longVersion": build.LongVersion,
		"os":          runtime.GOOS,
		"arch":        runtime.GOARCH,
		"isBeta":      build.IsBeta,
		"isRelease":   build.IsRelease,
		"date":        build.Date,
		"tags":        build.Tags,
		"user":        build.User,
		"container":   incontainer.Detect(),
	})
}

func (s *Service) getSystemStatus(w http.ResponseWriter, _ *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	res := make(map[string]any)
	res["goroutines"] = runtime.NumGoroutine()
	res["alloc"] = m.Alloc
	res["sys"] = m.Sys - m.HeapReleased
	res["uptime"] = int(s.disc.Uptime().Seconds())
	res["instances"] = len(s.disc.Status())
	res["endpoints"] = len(s.disc.EndpointStatus())

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if pct, err := p.CPUPercent(); err == nil {
			res["cpuPercent"] = pct
		}
		if mi, err := p.MemoryInfo(); err == nil {
			res["rss"] = mi.RSS
		}
	}

	sendJSON(w, res)
}

func (*Service) getSystemDebug(w http.ResponseWriter, _ *http.Request) {
	names := l.Facilities()
	var enabled []string
	for name := range names {
		if l.ShouldDebug(name) {
			enabled = append(enabled, name)
		}
	}
	slices.Sort(enabled)
	sendJSON(w, map[string]any{
		"facilities": names,
		"enabled":    enabled,
	})
}

func (*Service) postSystemDebug(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	q := r.URL.Query()
	for _, f := range strings.Split(q.Get("enable"), ",") {
		if f == "" || l.ShouldDebug(f) {
			continue
		}
		l.SetDebug(f, true)
		l.Infof("Enabled debug data for %q", f)
	}
	for _, f := range strings.Split(q.Get("disable"), ",") {
		if f == "" || !l.ShouldDebug(f) {
			continue
		}
		l.SetDebug(f, false)
		l.Infof("Disabled debug data for %q", f)
	}
}

func (s *Service) getSystemLog(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		var err error
		if since, err = time.Parse(time.RFC3339, v); err != nil {
			sendError(w, fmt.Errorf("since: %v: %w", err, errBadRequest))
			return
		}
	}
	lines := []logger.Line{}
	if s.logs != nil {
		lines = append(lines, s.logs.Since(since)...)
	}
	sendJSON(w, map[string][]logger.Line{"messages": lines})
}

func (s *Service) postLogClear(w http.ResponseWriter, _ *http.Request) {
	if s.logs != nil {
		s.logs.Clear()
	}
	sendJSON(w, map[string]string{"ok": "ok"})
}

func (s *Service) getEvents(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	since, _ := strconv.Atoi(qs.Get("since"))
	limit, _ := strconv.Atoi(qs.Get("limit"))

	timeout := defaultEventTimeout
	if timeoutSec, timeoutErr := strconv.Atoi(qs.Get("timeout")); timeoutErr == nil && timeoutSec >= 0 { // 0 is a valid timeout
		timeout = time.Duration(timeoutSec) * time.Second
	}
	eventSub := s.getEventSub(getEventMask(qs.Get("events")))

	// Flush before blocking, to indicate that we've received the request and
	// that it should not be retried. Must set Content-Type header before
	// flushing.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	// If there are no events available return an empty slice, as this gets serialized as `[]`
	evs := eventSub.Since(since, []events.Event{}, timeout)
	if 0 < limit && limit < len(evs) {
		evs = evs[len(evs)-limit:]
	}

	sendJSON(w, evs)
}

func getEventMask(evs string) events.EventType {
	if evs == "" {
		return events.AllEvents
	}
	var eventMask events.EventType
	for _, ev := range strings.Split(evs, ",") {
		eventMask |= events.UnmarshalEventType(strings.TrimSpace(ev))
	}
	return eventMask
}

func (s *Service) getEventSub(mask events.EventType) events.BufferedSubscription {
	s.eventSubsMut.Lock()
	defer s.eventSubsMut.Unlock()
	bufsub, ok := s.eventSubs[mask]
	if !ok {
		evsub := s.evLogger.Subscribe(mask)
		bufsub = events.NewBufferedSubscription(evsub, EventSubBufferSize)
		s.eventSubs[mask] = bufsub
	}
	return bufsub
}

func (s *Service) getInstances(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, s.disc.Status())
}

func (s *Service) getEndpoints(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, s.disc.EndpointStatus())
}

func (s *Service) getEventgroupState(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query(), needEventgroup)
	if err != nil {
		sendError(w, err)
		return
	}
	state, err := s.disc.EventgroupState(r.Context(), q.service, q.instance, q.major, q.eventgroup)
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, map[string]any{"state": state})
}

func (s *Service) postOffer(w http.ResponseWriter, r *http.Request) {
	s.withInstance(w, r, 0, func(ctx context.Context, q instanceQuery) error {
		return s.disc.OfferService(ctx, q.service, q.instance, q.major)
	})
}

func (s *Service) postStopOffer(w http.ResponseWriter, r *http.Request) {
	s.withInstance(w, r, 0, func(ctx context.Context, q instanceQuery) error {
		return s.disc.StopOfferService(ctx, q.service, q.instance, q.major)
	})
}

func (s *Service) postRequest(w http.ResponseWriter, r *http.Request) {
	s.withInstance(w, r, 0, func(ctx context.Context, q instanceQuery) error {
		return s.disc.RequestService(ctx, q.service, q.instance, q.major, q.minor)
	})
}

func (s *Service) postRelease(w http.ResponseWriter, r *http.Request) {
	s.withInstance(w, r, 0, func(ctx context.Context, q instanceQuery) error {
		return s.disc.ReleaseService(ctx, q.service, q.instance, q.major, q.minor)
	})
}

func (s *Service) postSubscribe(w http.ResponseWriter, r *http.Request) {
	s.withInstance(w, r, needEventgroupOrEvent, func(ctx context.Context, q instanceQuery) error {
		if q.hasEvent {
			return s.disc.SubscribeEvent(ctx, q.service, q.instance, q.major, q.event)
		}
		return s.disc.SubscribeEventgroup(ctx, q.service, q.instance, q.major, q.eventgroup)
	})
}

func (s *Service) postUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.withInstance(w, r, needEventgroupOrEvent, func(ctx context.Context, q instanceQuery) error {
		if q.hasEvent {
			return s.disc.UnsubscribeEvent(ctx, q.service, q.instance, q.major, q.event)
		}
		return s.disc.UnsubscribeEventgroup(ctx, q.service, q.instance, q.major, q.eventgroup)
	})
}

func (*Service) withInstance(w http.ResponseWriter, r *http.Request, need queryNeeds, fn func(context.Context, instanceQuery) error) {
	q, err := parseQuery(r.URL.Query(), need)
	if err != nil {
		sendError(w, err)
		return
	}
	if err := fn(r.Context(), q); err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, map[string]string{"ok": "ok"})
}
