// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package endpoint

import (
	"net/netip"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultLimiterPeers = 1024

// limiter keeps a token bucket per peer address, forgetting the least
// recently seen peers beyond its capacity.
type limiter struct {
	limit rate.Limit
	burst int
	cache *lru.Cache[netip.Addr, *rate.Limiter]
}

// newLimiter returns nil, allowing everything, when perSecond is zero.
func newLimiter(perSecond float64, burst, peers int) *limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(1, int(perSecond))
	}
	if peers <= 0 {
		peers = defaultLimiterPeers
	}
	cache, err := lru.New[netip.Addr, *rate.Limiter](peers)
	if err != nil {
		panic("bug: " + err.Error())
	}
	return &limiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		cache: cache,
	}
}

func (r *limiter) allow(addr netip.Addr) bool {
	if r == nil {
		return true
	}
	bkt, ok := r.cache.Get(addr)
	if !ok {
		bkt = rate.NewLimiter(r.limit, r.burst)
		r.cache.Add(addr, bkt)
	}
	return bkt.Allow()
}
