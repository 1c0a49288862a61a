// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package rand

import (
	"testing"
	"time"
)

func TestRandomUint64(t *testing.T) {
	ints := make([]uint64, 1000)
	for i := range ints {
		ints[i] = Uint64()
		for j := 0; j < i; j++ {
			if ints[i] == ints[j] {
				t.Errorf("Repeated random uint64 %d", ints[i])
			}
		}
	}
}

func TestDurationBetween(t *testing.T) {
	cases := []struct {
		min, max time.Duration
	}{
		{0, 0},
		{10 * time.Millisecond, 10 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{50 * time.Millisecond, 150 * time.Millisecond},
		{time.Second, 3 * time.Second},
	}

	for _, tc := range cases {
		for i := 0; i < 200; i++ {
			d := DurationBetween(tc.min, tc.max)
			if d < tc.min || d > tc.max {
				t.Fatalf("DurationBetween(%v, %v) = %v out of range", tc.min, tc.max, d)
			}
		}
	}
}

func TestDurationBetweenInverted(t *testing.T) {
	if d := DurationBetween(time.Second, time.Millisecond); d != time.Second {
		t.Errorf("inverted range should yield min, got %v", d)
	}
}

func BenchmarkDurationBetween(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		DurationBetween(0, time.Second)
	}
}
