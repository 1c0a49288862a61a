// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package svcutil holds the glue between the daemon's components and the
// suture supervisor tree: exit statuses carried by fatal errors, function
// services and supervisor specs.
package svcutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syncthing/someipsd/lib/logger"

	"github.com/thejerf/suture/v4"
)

const (
	ServiceTimeout = 10 * time.Second

	// Sockets that keep failing are retried at most this often.
	failureBackoff   = 5 * time.Second
	failureThreshold = 5
)

type ExitStatus int

const (
	ExitSuccess ExitStatus = 0
	ExitError   ExitStatus = 1
	ExitConfig  ExitStatus = 2
	ExitNetwork ExitStatus = 3
)

func (s ExitStatus) AsInt() int {
	return int(s)
}

func (s ExitStatus) String() string {
	switch s {
	case ExitSuccess:
		return "success"
	case ExitError:
		return "error"
	case ExitConfig:
		return "configuration error"
	case ExitNetwork:
		return "network error"
	default:
		return fmt.Sprintf("ExitStatus(%d)", int(s))
	}
}

// FatalErr terminates the supervisor tree it is returned into and makes the
// process exit with Status.
type FatalErr struct {
	Err    error
	Status ExitStatus
}

// AsFatalErr wraps err with an exit status, keeping the status of an error
// that already carries one.
func AsFatalErr(err error, status ExitStatus) *FatalErr {
	var ferr *FatalErr
	if errors.As(err, &ferr) {
		return ferr
	}
	return &FatalErr{Err: err, Status: status}
}

func (e *FatalErr) Error() string {
	return e.Err.Error()
}

func (e *FatalErr) Unwrap() error {
	return e.Err
}

func (*FatalErr) Is(target error) bool {
	return target == suture.ErrTerminateSupervisorTree
}

// ExitStatusOf returns the exit status carried by err, ExitSuccess for a
// nil error and ExitError for anything else.
func ExitStatusOf(err error) ExitStatus {
	if err == nil {
		return ExitSuccess
	}
	var ferr *FatalErr
	if errors.As(err, &ferr) {
		return ferr.Status
	}
	return ExitError
}

type ServiceWithError interface {
	suture.Service
	fmt.Stringer
	Error() error
}

// AsService turns fn into a supervised service remembering the error of
// its last run. The creator names the service in supervisor logs.
func AsService(fn func(ctx context.Context) error, creator string) ServiceWithError {
	return &service{creator: creator, serve: fn}
}

type service struct {
	creator string
	serve   func(ctx context.Context) error

	mut     sync.Mutex
	lastErr error
}

func (s *service) Serve(ctx context.Context) error {
	s.setErr(nil)
	err := s.serve(ctx)
	s.setErr(err)
	return err
}

func (s *service) setErr(err error) {
	s.mut.Lock()
	s.lastErr = err
	s.mut.Unlock()
}

func (s *service) Error() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.lastErr
}

func (s *service) String() string {
	return fmt.Sprintf("%s@%p", s.creator, s)
}

func SpecWithDebugLogger(l logger.Logger) suture.Spec {
	return spec(func(e suture.Event) { l.Debugln(e) })
}

func SpecWithInfoLogger(l logger.Logger) suture.Spec {
	return spec(func(e suture.Event) { l.Infoln(e) })
}

func spec(eventHook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:         eventHook,
		Timeout:           ServiceTimeout,
		FailureThreshold:  failureThreshold,
		FailureBackoff:    failureBackoff,
		PassThroughPanics: true,
	}
}
