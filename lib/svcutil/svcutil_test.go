// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package svcutil

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/thejerf/suture/v4"

	"github.com/syncthing/someipsd/lib/logger"
)

func TestFatalErr(t *testing.T) {
	base := errors.New("bad config")
	ferr := AsFatalErr(base, ExitConfig)
	if !errors.Is(ferr, suture.ErrTerminateSupervisorTree) {
		t.Error("fatal error should terminate the tree")
	}
	if again := AsFatalErr(ferr, ExitError); again != ferr {
		t.Error("fatal error wrapped twice")
	}
	if s := ExitStatusOf(ferr); s != ExitConfig {
		t.Errorf("exit status %d != %d", s, ExitConfig)
	}
	if s := ExitStatusOf(base); s != ExitError {
		t.Errorf("exit status %d != %d", s, ExitError)
	}
	if s := ExitStatusOf(nil); s != ExitSuccess {
		t.Errorf("exit status %d != %d", s, ExitSuccess)
	}
}

func TestAsService(t *testing.T) {
	base := errors.New("stopped")
	svc := AsService(func(ctx context.Context) error {
		return base
	}, "test")
	if err := svc.Serve(context.Background()); err != base {
		t.Fatal("unexpected error", err)
	}
	if svc.Error() != base {
		t.Error("error not recorded")
	}
}

func TestExitStatusString(t *testing.T) {
	if s := ExitConfig.String(); s != "configuration error" {
		t.Errorf("unexpected %q", s)
	}
	if s := ExitStatus(42).String(); s != "ExitStatus(42)" {
		t.Errorf("unexpected %q", s)
	}
}

func TestSupervisedFatal(t *testing.T) {
	sup := suture.New("test", SpecWithDebugLogger(logger.NewWriter(io.Discard)))
	sup.Add(AsService(func(ctx context.Context) error {
		return AsFatalErr(errors.New("no socket"), ExitNetwork)
	}, "failing"))
	err := sup.Serve(context.Background())
	if s := ExitStatusOf(err); s != ExitNetwork {
		t.Errorf("supervisor returned %v (%v), expected network exit status", err, s)
	}
}
