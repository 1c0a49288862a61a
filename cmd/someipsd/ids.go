// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/syncthing/someipsd/lib/config"
)

var errFieldCount = errors.New("wrong number of fields")

// instanceID is a service instance named on the command line as colon
// separated numbers. The fourth field is the minor version or the
// eventgroup, depending on the flag.
type instanceID struct {
	service    uint16
	instance   uint16
	major      uint8
	minor      uint32
	eventgroup uint16
}

func (id instanceID) String() string {
	s := fmt.Sprintf("0x%04x/0x%04x v%d", id.service, id.instance, id.major)
	if id.minor != config.MinorVersionAny {
		s += fmt.Sprintf(".%d", id.minor)
	}
	if id.eventgroup != 0 {
		s += fmt.Sprintf(" eventgroup 0x%04x", id.eventgroup)
	}
	return s
}

type idKind int

const (
	idOffer     idKind = iota // service:instance:major
	idRequest                 // service:instance:major[:minor]
	idSubscribe               // service:instance:major:eventgroup
)

func parseInstanceID(s string, kind idKind) (instanceID, error) {
	id := instanceID{minor: config.MinorVersionAny}
	fields := strings.Split(s, ":")
	switch {
	case kind == idOffer && len(fields) != 3,
		kind == idRequest && len(fields) != 3 && len(fields) != 4,
		kind == idSubscribe && len(fields) != 4:
		return id, errFieldCount
	}

	bits := []int{16, 16, 8, 32}
	if kind == idSubscribe {
		bits[3] = 16
	}
	vals := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 0, bits[i])
		if err != nil {
			return id, err
		}
		vals[i] = v
	}

	id.service = uint16(vals[0])
	id.instance = uint16(vals[1])
	id.major = uint8(vals[2])
	switch {
	case len(vals) < 4:
	case kind == idSubscribe:
		id.eventgroup = uint16(vals[3])
	default:
		id.minor = uint32(vals[3])
	}
	return id, nil
}
