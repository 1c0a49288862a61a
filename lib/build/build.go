// Copyright (C) 2019 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package build holds the version information injected at link time, or
// read from the module build info for plain "go install" builds.
package build

import (
	"fmt"
	"log"
	"regexp"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

const devVersion = "unknown-dev"

var (
	// Set with -ldflags -X by the release build.
	Version = devVersion
	Host    = "unknown"
	User    = "unknown"
	Stamp   = "0"

	// Derived in init.
	Date        time.Time
	IsRelease   bool
	IsBeta      bool
	LongVersion string

	// Appended to by files behind build tags.
	Tags []string

	AllowedVersionExp = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[a-z0-9]+)*(\.\d+)*(\+\d+-g[0-9a-f]+)?(-[^\s]+)?$`)
	releaseExp        = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[a-z]+[\d\.]+)?$`)
)

func init() {
	if Version == devVersion {
		fromBuildInfo()
	}
	if Version != devVersion && !AllowedVersionExp.MatchString(Version) {
		log.Fatalf("Invalid version string %q;\n\tdoes not match regexp %v", Version, AllowedVersionExp)
	}
	setBuildData()
}

// fromBuildInfo takes the module version and VCS time recorded by the Go
// toolchain. Pseudo versions are not accepted as versions.
func fromBuildInfo() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := bi.Main.Version; AllowedVersionExp.MatchString(v) {
		Version = v
	}
	for _, s := range bi.Settings {
		if s.Key != "vcs.time" || Stamp != "0" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
			Stamp = strconv.FormatInt(t.Unix(), 10)
		}
	}
}

func setBuildData() {
	IsRelease = releaseExp.MatchString(Version)
	IsBeta = strings.Contains(Version, "-")

	stamp, _ := strconv.ParseInt(Stamp, 10, 64)
	Date = time.Unix(stamp, 0)
	LongVersion = LongVersionFor("someipsd")
}

// LongVersionFor returns the long version string for the named program.
func LongVersionFor(program string) string {
	date := Date.UTC().Format("2006-01-02 15:04:05 MST")
	v := fmt.Sprintf("%s %s (%s %s-%s) %s@%s %s", program, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH, User, Host, date)
	if len(Tags) > 0 {
		v += " [" + strings.Join(Tags, ", ") + "]"
	}
	return v
}
