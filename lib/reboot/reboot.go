// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package reboot tracks SD session ids and reboot flags per peer and detects
// peer restarts from them.
package reboot

import (
	"fmt"
	"net/netip"

	"github.com/syncthing/someipsd/lib/someip"
)

// Param is the session id and reboot flag pair carried by every SD message.
type Param struct {
	SessionID uint16
	Reboot    bool
}

func (p Param) String() string {
	return fmt.Sprintf("session %d reboot %v", p.SessionID, p.Reboot)
}

// initial is what a sender uses after start: the first session id with the
// reboot flag set.
var initial = Param{SessionID: someip.SessionIDMin, Reboot: true}

// next returns p advanced by one session. Wrapping clears the reboot flag.
func (p Param) next() Param {
	p.SessionID++
	if p.SessionID == someip.SessionIDInvalid {
		p.SessionID = someip.SessionIDMin
		p.Reboot = false
	}
	return p
}

// Detected reports whether a message carrying cur, from a peer that
// previously sent prev, indicates that the peer restarted.
func Detected(prev, cur Param) bool {
	if !prev.Reboot && cur.Reboot {
		return true
	}
	return prev.Reboot && cur.Reboot && prev.SessionID >= cur.SessionID
}

// Manager holds the sender and receiver tables of one SD endpoint. It is not
// safe for concurrent use; the owning event loop serializes access.
type Manager struct {
	unicastSender     map[netip.AddrPort]Param
	unicastReceiver   map[netip.AddrPort]Param
	multicastReceiver map[netip.AddrPort]Param
	multicastSender   Param
}

func NewManager() *Manager {
	return &Manager{
		unicastSender:     make(map[netip.AddrPort]Param),
		unicastReceiver:   make(map[netip.AddrPort]Param),
		multicastReceiver: make(map[netip.AddrPort]Param),
		multicastSender:   initial,
	}
}

// NextUnicastSender returns the parameters to put into the next unicast
// message to peer. The first message to a peer uses the initial values;
// after that the stored value is advanced before it is returned.
func (m *Manager) NextUnicastSender(peer netip.AddrPort) Param {
	p, ok := m.unicastSender[peer]
	if !ok {
		m.unicastSender[peer] = initial
		return initial
	}
	p = p.next()
	m.unicastSender[peer] = p
	return p
}

// NextMulticastSender returns the parameters to put into the next multicast
// message and advances the counter.
func (m *Manager) NextMulticastSender() Param {
	p := m.multicastSender
	m.multicastSender = p.next()
	return p
}

// LastUnicastReceiver stores cur as the latest parameters seen from peer on
// the unicast channel and returns the previously stored ones. On first
// contact the invalid session id is returned together with cur's flag, so
// that no reboot is reported.
func (m *Manager) LastUnicastReceiver(peer netip.AddrPort, cur Param) Param {
	return swap(m.unicastReceiver, peer, cur)
}

// LastMulticastReceiver is the multicast channel analogue of
// LastUnicastReceiver.
func (m *Manager) LastMulticastReceiver(peer netip.AddrPort, cur Param) Param {
	return swap(m.multicastReceiver, peer, cur)
}

// ResetUnicastReceiver forgets the unicast history of peer so that a reboot
// already handled on the multicast channel is not reported twice.
func (m *Manager) ResetUnicastReceiver(peer netip.AddrPort) {
	reset(m.unicastReceiver, peer)
}

// ResetMulticastReceiver is the multicast analogue of ResetUnicastReceiver.
func (m *Manager) ResetMulticastReceiver(peer netip.AddrPort) {
	reset(m.multicastReceiver, peer)
}

// Stats returns the number of peers in the unicast sender, unicast receiver
// and multicast receiver tables.
func (m *Manager) Stats() (unicastSenders, unicastReceivers, multicastReceivers int) {
	return len(m.unicastSender), len(m.unicastReceiver), len(m.multicastReceiver)
}

func swap(table map[netip.AddrPort]Param, peer netip.AddrPort, cur Param) Param {
	prev, ok := table[peer]
	table[peer] = cur
	if !ok {
		return Param{SessionID: someip.SessionIDInvalid, Reboot: cur.Reboot}
	}
	return prev
}

func reset(table map[netip.AddrPort]Param, peer netip.AddrPort) {
	if _, ok := table[peer]; ok {
		table[peer] = Param{SessionID: someip.SessionIDInvalid, Reboot: true}
	}
}
