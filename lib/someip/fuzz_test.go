// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package someip

import (
	"testing"
)

// FuzzDatagram feeds arbitrary datagrams through the receive path. Nothing
// may panic, and a parsed entry never resolves to more options than it
// claims.
func FuzzDatagram(f *testing.F) {
	valid := Marshal(1, true, testEntries, testOptions)
	f.Add(valid)
	f.Add(append(append([]byte{}, valid...), valid...))
	f.Add(valid[:HeaderLength])
	f.Add(valid[:HeaderLength+minPayloadLength])
	f.Add(valid[:len(valid)-3])
	f.Add(Marshal(0xffff, false, nil, nil))
	f.Add([]byte{})

	// A valid header claiming more payload than there is.
	long := append([]byte{}, valid[:HeaderLength]...)
	long[4], long[5], long[6], long[7] = 0xff, 0xff, 0xff, 0xff
	f.Add(long)

	f.Fuzz(func(t *testing.T, datagram []byte) {
		msgs, err := SplitMessages(datagram)
		if err != nil {
			return
		}
		for _, buf := range msgs {
			msg, err := ParseMessage(buf)
			if err != nil {
				continue
			}
			for _, e := range msg.Entries {
				opts := EntryOptions(e, msg.Options)
				if n := int(e.Count1) + int(e.Count2); len(opts) > n {
					t.Errorf("%v: %d options resolved, at most %d referenced", e, len(opts), n)
				}
				_ = e.String()
			}
		}
	})
}
