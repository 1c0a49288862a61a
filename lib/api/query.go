// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/syncthing/someipsd/lib/config"
)

var errBadRequest = errors.New("bad request")

type queryNeeds int

const (
	needEventgroup queryNeeds = 1 << iota
	needEventgroupOrEvent
)

// instanceQuery holds the ids named by a request. Ids are decimal or, with
// a 0x prefix, hexadecimal.
type instanceQuery struct {
	service    uint16
	instance   uint16
	major      uint8
	minor      uint32
	eventgroup uint16
	event      uint16
	hasEvent   bool
}

func parseQuery(qs url.Values, need queryNeeds) (instanceQuery, error) {
	var q instanceQuery
	var err error
	if q.service, err = parseID[uint16](qs, "service", 16); err != nil {
		return q, err
	}
	if q.instance, err = parseID[uint16](qs, "instance", 16); err != nil {
		return q, err
	}
	if q.major, err = parseID[uint8](qs, "major", 8); err != nil {
		return q, err
	}
	q.minor = config.MinorVersionAny
	if qs.Has("minor") {
		if q.minor, err = parseID[uint32](qs, "minor", 32); err != nil {
			return q, err
		}
	}

	switch need {
	case needEventgroup:
		q.eventgroup, err = parseID[uint16](qs, "eventgroup", 16)
	case needEventgroupOrEvent:
		switch {
		case qs.Has("event"):
			q.hasEvent = true
			q.event, err = parseID[uint16](qs, "event", 16)
		case qs.Has("eventgroup"):
			q.eventgroup, err = parseID[uint16](qs, "eventgroup", 16)
		default:
			err = fmt.Errorf("eventgroup or event required: %w", errBadRequest)
		}
	}
	return q, err
}

func parseID[T uint8 | uint16 | uint32](qs url.Values, name string, bits int) (T, error) {
	s := qs.Get(name)
	if s == "" {
		return 0, fmt.Errorf("%s required: %w", name, errBadRequest)
	}
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%s: %v: %w", name, err, errBadRequest)
	}
	return T(v), nil
}
