// Copyright (C) 2014 Jakob Borg. All rights reserved. Use of this source code
// is governed by an MIT-style license that can be found in the LICENSE file.

package logger

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAPI(t *testing.T) {
	l := newLogger(&bytes.Buffer{})

	debug := 0
	l.AddHandler(LevelDebug, checkFunc(t, LevelDebug, &debug))
	info := 0
	l.AddHandler(LevelInfo, checkFunc(t, LevelInfo, &info))
	warn := 0
	l.AddHandler(LevelWarn, checkFunc(t, LevelWarn, &warn))

	l.Debugf("test %d", 0)
	l.Debugln("test", 0)
	l.Infof("test %d", 1)
	l.Infoln("test", 1)
	l.Warnf("test %d", 3)
	l.Warnln("test", 3)

	if debug != 6 {
		t.Errorf("Debug handler called %d != 6 times", debug)
	}
	if info != 4 {
		t.Errorf("Info handler called %d != 4 times", info)
	}
	if warn != 2 {
		t.Errorf("Warn handler called %d != 2 times", warn)
	}
}

func checkFunc(t *testing.T, expectl LogLevel, counter *int) func(LogLevel, string) {
	return func(l LogLevel, msg string) {
		*counter++
		if l < expectl {
			t.Errorf("Incorrect message level %d < %d", l, expectl)
		}
	}
}

func TestFacilityDebugging(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)

	f0 := l.NewFacility("f0", "foo#0")
	f1 := l.NewFacility("f1", "foo#1")

	l.SetDebug("f0", true)
	l.SetDebug("f1", false)

	f0.Debugln("Debug line from f0")
	f1.Debugln("Debug line from f1")

	out := buf.String()
	if !strings.Contains(out, "f0: Debug line from f0") {
		t.Error("missing debug line from enabled facility:", out)
	}
	if strings.Contains(out, "from f1") {
		t.Error("unexpected debug line from disabled facility:", out)
	}

	if facs := l.Facilities(); facs["f1"] != "foo#1" {
		t.Errorf("unexpected facilities %v", facs)
	}
}

func TestTraceEnv(t *testing.T) {
	t.Setenv("SDTRACE", "endpoint, server")
	l := newLogger(&bytes.Buffer{})

	l.NewFacility("endpoint", "")
	l.NewFacility("client", "")

	if !l.ShouldDebug("endpoint") {
		t.Error("endpoint should be traced")
	}
	if l.ShouldDebug("client") {
		t.Error("client should not be traced")
	}
}

func TestControlStripper(t *testing.T) {
	var buf bytes.Buffer
	w := controlStripper{&buf}
	w.Write([]byte("a\x1bb\tc\n"))
	if got := buf.String(); got != "a b c\n" {
		t.Errorf("got %q", got)
	}
}

func TestDebugFlags(t *testing.T) {
	l := newLogger(&bytes.Buffer{})
	l.NewFacility("a", "A")
	l.NewFacility("b", "B")

	l.SetDebug("a", true)
	l.SetDebug("b", true)
	l.SetDebug("a", false)
	if l.out.Flags() != DebugFlags {
		t.Error("debug flags dropped while b still debugging")
	}
	l.SetDebug("b", false)
	if l.out.Flags() != DefaultFlags {
		t.Error("debug flags kept with nothing debugging")
	}
}

func TestRecorder(t *testing.T) {
	l := newLogger(&bytes.Buffer{})
	r := NewRecorder(l, LevelInfo, 3, 1)

	l.Debugln("not recorded")
	for i := 0; i < 6; i++ {
		l.Infof("line %d", i)
	}

	lines := r.Since(time.Time{})
	var msgs []string
	for _, line := range lines {
		msgs = append(msgs, line.Message)
	}
	if fmt.Sprint(msgs) != "[line 0 line 3 line 4 line 5]" {
		t.Errorf("unexpected lines %q", msgs)
	}
	if lines[0].Level != LevelInfo {
		t.Errorf("unexpected level %v", lines[0].Level)
	}

	if n := len(r.Since(lines[2].When)); n > 1 {
		t.Errorf("since returned %d lines, expected at most one", n)
	}

	r.Clear()
	if lines := r.Since(time.Time{}); len(lines) != 0 {
		t.Errorf("lines after clear: %v", lines)
	}
}
