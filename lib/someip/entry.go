// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package someip

import (
	"encoding/binary"
	"fmt"
)

type EntryType uint8

const (
	EntryFindService            EntryType = 0x00
	EntryOfferService           EntryType = 0x01
	EntrySubscribeEventgroup    EntryType = 0x06
	EntrySubscribeEventgroupAck EntryType = 0x07
)

func (t EntryType) String() string {
	switch t {
	case EntryFindService:
		return "FindService"
	case EntryOfferService:
		return "OfferService"
	case EntrySubscribeEventgroup:
		return "SubscribeEventgroup"
	case EntrySubscribeEventgroupAck:
		return "SubscribeEventgroupAck"
	default:
		return fmt.Sprintf("EntryType(0x%02x)", uint8(t))
	}
}

func (t EntryType) known() bool {
	switch t {
	case EntryFindService, EntryOfferService, EntrySubscribeEventgroup, EntrySubscribeEventgroupAck:
		return true
	}
	return false
}

// IsEventgroup reports whether entries of this type use the eventgroup
// layout.
func (t EntryType) IsEventgroup() bool {
	return t == EntrySubscribeEventgroup || t == EntrySubscribeEventgroupAck
}

const (
	// EntryLength is the wire size of every entry type.
	EntryLength = 16
	// MaxTTL is the largest TTL the 24 bit field can carry.
	MaxTTL = 0xFFFFFF
	// TTLInfinite is the reserved "until next reboot" TTL.
	TTLInfinite = MaxTTL
)

// Entry is a single SD entry. MinorVersion is only meaningful for service
// entries, Counter and EventgroupID only for eventgroup entries. A TTL of
// zero turns an offer into a stop offer, a subscribe into a stop subscribe
// and an ack into a nack.
type Entry struct {
	Type         EntryType
	Index1       uint8
	Index2       uint8
	Count1       uint8
	Count2       uint8
	ServiceID    uint16
	InstanceID   uint16
	MajorVersion uint8
	TTL          uint32
	MinorVersion uint32
	Counter      uint8
	EventgroupID uint16
}

// IsStop reports whether the entry withdraws (or refuses) what its type
// would otherwise assert.
func (e Entry) IsStop() bool {
	return e.TTL == 0
}

func (e Entry) String() string {
	if e.Type.IsEventgroup() {
		return fmt.Sprintf("%v{0x%04x/0x%04x v%d eg 0x%04x ttl %d counter %d opts %d+%d,%d+%d}",
			e.Type, e.ServiceID, e.InstanceID, e.MajorVersion, e.EventgroupID, e.TTL, e.Counter,
			e.Index1, e.Count1, e.Index2, e.Count2)
	}
	return fmt.Sprintf("%v{0x%04x/0x%04x v%d.%d ttl %d opts %d+%d,%d+%d}",
		e.Type, e.ServiceID, e.InstanceID, e.MajorVersion, e.MinorVersion, e.TTL,
		e.Index1, e.Count1, e.Index2, e.Count2)
}

// checkOptionRefs verifies that both option runs stay within n options.
func (e Entry) checkOptionRefs(n int) bool {
	return int(e.Index1)+int(e.Count1) <= n && int(e.Index2)+int(e.Count2) <= n
}

// AppendEntry appends the wire encoding of e.
func AppendEntry(dst []byte, e Entry) []byte {
	dst = append(dst, byte(e.Type), e.Index1, e.Index2, (e.Count1&0x0F)<<4|e.Count2&0x0F)
	dst = binary.BigEndian.AppendUint16(dst, e.ServiceID)
	dst = binary.BigEndian.AppendUint16(dst, e.InstanceID)
	dst = binary.BigEndian.AppendUint32(dst, uint32(e.MajorVersion)<<24|e.TTL&MaxTTL)
	if e.Type.IsEventgroup() {
		dst = append(dst, 0, e.Counter&0x0F)
		return binary.BigEndian.AppendUint16(dst, e.EventgroupID)
	}
	return binary.BigEndian.AppendUint32(dst, e.MinorVersion)
}

// AppendEntries appends all entries in order.
func AppendEntries(dst []byte, entries []Entry) []byte {
	for _, e := range entries {
		dst = AppendEntry(dst, e)
	}
	return dst
}

func parseEntry(buf []byte) (Entry, error) {
	if len(buf) < EntryLength {
		return Entry{}, ErrTruncated
	}
	t := EntryType(buf[0])
	if !t.known() {
		return Entry{}, ErrUnknownEntryType
	}
	mvt := binary.BigEndian.Uint32(buf[8:])
	e := Entry{
		Type:         t,
		Index1:       buf[1],
		Index2:       buf[2],
		Count1:       buf[3] >> 4,
		Count2:       buf[3] & 0x0F,
		ServiceID:    binary.BigEndian.Uint16(buf[4:]),
		InstanceID:   binary.BigEndian.Uint16(buf[6:]),
		MajorVersion: uint8(mvt >> 24),
		TTL:          mvt & MaxTTL,
	}
	if t.IsEventgroup() {
		e.Counter = buf[13] & 0x0F
		e.EventgroupID = binary.BigEndian.Uint16(buf[14:])
	} else {
		e.MinorVersion = binary.BigEndian.Uint32(buf[12:])
	}
	return e, nil
}

// ParseEntries decodes an entries array. On error no entries are returned.
func ParseEntries(buf []byte) ([]Entry, error) {
	var entries []Entry
	for off := 0; off < len(buf); off += EntryLength {
		e, err := parseEntry(buf[off:])
		if err != nil {
			return nil, &ParseError{What: "entry", Offset: off, Err: err}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FindServiceEntry returns a FindService entry.
func FindServiceEntry(service, instance uint16, major uint8, minor uint32, ttl uint32) Entry {
	return Entry{
		Type:         EntryFindService,
		ServiceID:    service,
		InstanceID:   instance,
		MajorVersion: major,
		MinorVersion: minor,
		TTL:          ttl,
	}
}

// OfferServiceEntry returns an OfferService entry referencing count
// options starting at index zero. A zero ttl makes it a stop offer.
func OfferServiceEntry(service, instance uint16, major uint8, minor uint32, ttl uint32, count uint8) Entry {
	return Entry{
		Type:         EntryOfferService,
		ServiceID:    service,
		InstanceID:   instance,
		MajorVersion: major,
		MinorVersion: minor,
		TTL:          ttl,
		Count1:       count,
	}
}

// SubscribeEntry returns a SubscribeEventgroup entry referencing count
// options starting at index zero. A zero ttl makes it a stop subscribe.
func SubscribeEntry(service, instance uint16, major uint8, eventgroup uint16, ttl uint32, counter, count uint8) Entry {
	return Entry{
		Type:         EntrySubscribeEventgroup,
		ServiceID:    service,
		InstanceID:   instance,
		MajorVersion: major,
		EventgroupID: eventgroup,
		TTL:          ttl,
		Counter:      counter,
		Count1:       count,
	}
}

// SubscribeAckEntry returns a SubscribeEventgroupAck entry. A zero ttl
// makes it a nack.
func SubscribeAckEntry(service, instance uint16, major uint8, eventgroup uint16, ttl uint32, counter, count uint8) Entry {
	e := SubscribeEntry(service, instance, major, eventgroup, ttl, counter, count)
	e.Type = EntrySubscribeEventgroupAck
	return e
}
