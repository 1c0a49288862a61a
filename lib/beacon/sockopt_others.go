// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !unix

package beacon

import (
	"net/netip"
	"strconv"
	"syscall"
)

func reuseControl(_, _ string, _ syscall.RawConn) error {
	return nil
}

func bindAddress(group netip.AddrPort) string {
	if group.Addr().Is4() {
		return "0.0.0.0:" + strconv.Itoa(int(group.Port()))
	}
	return "[::]:" + strconv.Itoa(int(group.Port()))
}
