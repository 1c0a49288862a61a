// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rand provides the random draws used by the discovery timing
// rules, on top of a ChaCha8 generator seeded from crypto/rand.
package rand

import (
	cryptoRand "crypto/rand"
	mathRand "math/rand/v2"
	"sync"
	"time"
)

var defaultSource = newLockedSource()

// lockedSource is a concurrency safe ChaCha8 generator.
type lockedSource struct {
	mut sync.Mutex
	rnd *mathRand.ChaCha8
}

func newLockedSource() *lockedSource {
	var seed [32]byte
	if _, err := cryptoRand.Read(seed[:]); err != nil {
		panic("randomness failure: " + err.Error())
	}
	return &lockedSource{rnd: mathRand.NewChaCha8(seed)}
}

func (s *lockedSource) Uint64() uint64 {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.rnd.Uint64()
}

var defaultRand = mathRand.New(defaultSource)

// Uint64 returns a random uint64.
func Uint64() uint64 {
	return defaultSource.Uint64()
}

// Int63n returns a non-negative random number in [0,n). It panics if
// n <= 0.
func Int63n(n int64) int64 {
	return defaultRand.Int64N(n)
}

// DurationBetween returns a uniformly distributed duration in the closed
// interval [min, max]. When max <= min, min is returned.
func DurationBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	// Millisecond granularity is what the discovery timers use.
	span := int64((max - min) / time.Millisecond)
	if span <= 0 {
		return min
	}
	return min + time.Duration(Int63n(span+1))*time.Millisecond
}
