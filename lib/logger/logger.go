// Copyright (C) 2014 Jakob Borg. All rights reserved. Use of this source code
// is governed by an MIT-style license that can be found in the LICENSE file.

// Package logger implements a standardized logger with per facility debug
// switches. Facilities named in the SDTRACE environment variable (comma or
// space separated, or "all") start with debugging enabled.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	NumLevels
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

const (
	DefaultFlags = log.Ltime | log.Ldate
	DebugFlags   = log.Ltime | log.Ldate | log.Lmicroseconds | log.Lshortfile
)

// A MessageHandler is called with the level and text of every message at
// or above the level it was registered for.
type MessageHandler func(l LogLevel, msg string)

type Logger interface {
	AddHandler(level LogLevel, h MessageHandler)
	SetFlags(flag int)
	Debugln(vals ...interface{})
	Debugf(format string, vals ...interface{})
	Infoln(vals ...interface{})
	Infof(format string, vals ...interface{})
	Warnln(vals ...interface{})
	Warnf(format string, vals ...interface{})
	ShouldDebug(facility string) bool
	SetDebug(facility string, enabled bool)
	Facilities() map[string]string
	NewFacility(facility, description string) Logger
}

type facility struct {
	description string
	debug       bool
}

type logger struct {
	out        *log.Logger
	traceAll   bool
	traced     map[string]bool
	mut        sync.Mutex
	handlers   [NumLevels][]MessageHandler
	facilities map[string]*facility
	debugging  int // facilities with debug enabled
}

// DefaultLogger logs to standard output with a time prefix.
var DefaultLogger = New()

func New() Logger {
	if os.Getenv("SDLOG_DISCARD") != "" {
		return newLogger(io.Discard)
	}
	return newLogger(controlStripper{os.Stdout})
}

// NewWriter returns a logger writing to w, with tracing taken from
// SDTRACE.
func NewWriter(w io.Writer) Logger {
	return newLogger(w)
}

func newLogger(w io.Writer) *logger {
	l := &logger{
		out:        log.New(w, "", DefaultFlags),
		traced:     make(map[string]bool),
		facilities: make(map[string]*facility),
	}
	for _, f := range strings.FieldsFunc(os.Getenv("SDTRACE"), func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	}) {
		if f == "all" {
			l.traceAll = true
		}
		l.traced[f] = true
	}
	return l
}

func (l *logger) AddHandler(level LogLevel, h MessageHandler) {
	l.mut.Lock()
	l.handlers[level] = append(l.handlers[level], h)
	l.mut.Unlock()
}

// See log.SetFlags
func (l *logger) SetFlags(flag int) {
	l.out.SetFlags(flag)
}

func (l *logger) output(level LogLevel, s string) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.out.Output(3, level.String()+": "+s)
	msg := strings.TrimSpace(s)
	for ll := LevelDebug; ll <= level; ll++ {
		for _, h := range l.handlers[ll] {
			h(level, msg)
		}
	}
}

func (l *logger) Debugln(vals ...interface{}) {
	l.output(LevelDebug, fmt.Sprintln(vals...))
}

func (l *logger) Debugf(format string, vals ...interface{}) {
	l.output(LevelDebug, fmt.Sprintf(format, vals...))
}

func (l *logger) Infoln(vals ...interface{}) {
	l.output(LevelInfo, fmt.Sprintln(vals...))
}

func (l *logger) Infof(format string, vals ...interface{}) {
	l.output(LevelInfo, fmt.Sprintf(format, vals...))
}

func (l *logger) Warnln(vals ...interface{}) {
	l.output(LevelWarn, fmt.Sprintln(vals...))
}

func (l *logger) Warnf(format string, vals ...interface{}) {
	l.output(LevelWarn, fmt.Sprintf(format, vals...))
}

func (l *logger) ShouldDebug(name string) bool {
	l.mut.Lock()
	f, ok := l.facilities[name]
	res := ok && f.debug
	l.mut.Unlock()
	return res
}

// SetDebug switches debugging for the named facility. Timestamps carry
// microseconds and the source line while any facility is debugging.
func (l *logger) SetDebug(name string, enabled bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.setDebugLocked(name, enabled)
}

func (l *logger) setDebugLocked(name string, enabled bool) {
	f, ok := l.facilities[name]
	if !ok {
		f = &facility{}
		l.facilities[name] = f
	}
	if f.debug == enabled {
		return
	}
	f.debug = enabled
	if enabled {
		l.debugging++
	} else {
		l.debugging--
	}
	switch {
	case enabled && l.debugging == 1:
		l.out.SetFlags(DebugFlags)
	case !enabled && l.debugging == 0:
		l.out.SetFlags(DefaultFlags)
	}
}

// Facilities returns the registered facilities and their descriptions.
func (l *logger) Facilities() map[string]string {
	l.mut.Lock()
	defer l.mut.Unlock()
	res := make(map[string]string, len(l.facilities))
	for name, f := range l.facilities {
		if f.description != "" {
			res[name] = f.description
		}
	}
	return res
}

// NewFacility returns a logger whose debug output is gated on the named
// facility and prefixed with its name.
func (l *logger) NewFacility(name, description string) Logger {
	l.mut.Lock()
	l.setDebugLocked(name, l.traceAll || l.traced[name])
	l.facilities[name].description = description
	l.mut.Unlock()

	return &facilityLogger{logger: l, name: name}
}

type facilityLogger struct {
	*logger
	name string
}

func (l *facilityLogger) Debugln(vals ...interface{}) {
	if l.ShouldDebug(l.name) {
		l.output(LevelDebug, l.name+": "+fmt.Sprintln(vals...))
	}
}

func (l *facilityLogger) Debugf(format string, vals ...interface{}) {
	if l.ShouldDebug(l.name) {
		l.output(LevelDebug, l.name+": "+fmt.Sprintf(format, vals...))
	}
}

// A Line is one recorded log message.
type Line struct {
	When    time.Time `json:"when"`
	Message string    `json:"message"`
	Level   LogLevel  `json:"level"`
}

// A Recorder keeps recent log lines for the REST API.
type Recorder interface {
	Since(t time.Time) []Line
	Clear()
}

type recorder struct {
	lines   []Line
	size    int
	initial int
	mut     sync.Mutex
}

// NewRecorder records messages of at least level from l. The first initial
// lines are kept until cleared; after them at most size lines are kept,
// oldest dropped first.
func NewRecorder(l Logger, level LogLevel, size, initial int) Recorder {
	r := &recorder{
		lines:   make([]Line, 0, size),
		size:    size,
		initial: initial,
	}
	l.AddHandler(level, r.append)
	return r
}

func (r *recorder) append(level LogLevel, msg string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if len(r.lines) == r.size+r.initial {
		r.lines = append(r.lines[:r.initial], r.lines[r.initial+1:]...)
	}
	r.lines = append(r.lines, Line{When: time.Now(), Message: msg, Level: level})
}

// Since returns the recorded lines newer than t, oldest first.
func (r *recorder) Since(t time.Time) []Line {
	r.mut.Lock()
	defer r.mut.Unlock()
	for i, line := range r.lines {
		if line.When.After(t) {
			res := make([]Line, len(r.lines)-i)
			copy(res, r.lines[i:])
			return res
		}
	}
	return nil
}

func (r *recorder) Clear() {
	r.mut.Lock()
	r.lines = r.lines[:0]
	r.mut.Unlock()
}

// controlStripper replaces control characters other than line breaks with
// spaces, so peer supplied strings cannot garble the terminal.
type controlStripper struct {
	io.Writer
}

func (s controlStripper) Write(data []byte) (int, error) {
	for i, b := range data {
		if b < 32 && b != '\n' && b != '\r' {
			data[i] = ' '
		}
	}
	return s.Writer.Write(data)
}
