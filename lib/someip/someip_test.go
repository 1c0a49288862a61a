// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package someip

import (
	"bytes"
	"errors"
	"net/netip"
	"slices"
	"testing"

	"github.com/d4l3k/messagediff"
)

var (
	testEntries = []Entry{
		FindServiceEntry(0x1234, InstanceAny, MajorVersionAny, MinorVersionAny, 3),
		OfferServiceEntry(0x1234, 0x0001, 1, 7, 5, 2),
		SubscribeEntry(0x1234, 0x0001, 1, 0x0010, 30, 3, 1),
		SubscribeAckEntry(0x1234, 0x0001, 1, 0x0010, 0, 3, 0),
	}
	testOptions = []Option{
		EndpointOption(netip.MustParseAddr("192.168.1.10"), ProtoTCP, 30500),
		EndpointOption(netip.MustParseAddr("fd00::10"), ProtoUDP, 30501),
		MulticastOption(netip.MustParseAddr("239.0.0.1"), 30502),
		MulticastOption(netip.MustParseAddr("ff14::1"), 30503),
	}
)

func TestEntryRoundTrip(t *testing.T) {
	for _, e := range testEntries {
		bs := AppendEntry(nil, e)
		if len(bs) != EntryLength {
			t.Fatalf("%v encoded to %d bytes", e, len(bs))
		}
		res, err := ParseEntries(bs)
		if err != nil {
			t.Fatal(err)
		}
		if diff, equal := messagediff.PrettyDiff([]Entry{e}, res); !equal {
			t.Errorf("%v: round trip mismatch:\n%s", e.Type, diff)
		}
	}
}

func TestOptionRoundTrip(t *testing.T) {
	for _, o := range testOptions {
		bs := AppendOption(nil, o)
		want := 12
		if o.Type.IsIPv6() {
			want = 24
		}
		if len(bs) != want {
			t.Fatalf("%v encoded to %d bytes, want %d", o, len(bs), want)
		}
		res, err := ParseOptions(bs)
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 1 || res[0] != o {
			t.Errorf("round trip mismatch: %v != %v", res, o)
		}
	}
}

func TestMajorVersionTTLPacking(t *testing.T) {
	e := OfferServiceEntry(1, 2, 0xAB, 0, 0x123456, 0)
	bs := AppendEntry(nil, e)
	if !bytes.Equal(bs[8:12], []byte{0xAB, 0x12, 0x34, 0x56}) {
		t.Errorf("unexpected major/ttl word % x", bs[8:12])
	}

	// TTL beyond 24 bits is truncated, never bleeding into the major version.
	e.TTL = 0x01FFFFFF
	res, err := ParseEntries(AppendEntry(nil, e))
	if err != nil {
		t.Fatal(err)
	}
	if res[0].MajorVersion != 0xAB || res[0].TTL != MaxTTL {
		t.Errorf("unexpected decode %v", res[0])
	}
}

func TestOptionCounts(t *testing.T) {
	e := Entry{Type: EntryOfferService, Index1: 1, Count1: 2, Index2: 3, Count2: 1}
	bs := AppendEntry(nil, e)
	if bs[3] != 0x21 {
		t.Errorf("counts byte 0x%02x != 0x21", bs[3])
	}
}

func TestMessageRoundTrip(t *testing.T) {
	for _, reboot := range []bool{false, true} {
		bs := Marshal(42, reboot, testEntries, testOptions)

		msg, err := ParseMessage(bs)
		if err != nil {
			t.Fatal(err)
		}
		if msg.Header.SessionID != 42 {
			t.Errorf("session %d != 42", msg.Header.SessionID)
		}
		if msg.Reboot() != reboot {
			t.Errorf("reboot flag %v != %v", msg.Reboot(), reboot)
		}
		if !msg.Unicast() {
			t.Error("unicast flag should always be set")
		}
		if diff, equal := messagediff.PrettyDiff(testEntries, msg.Entries); !equal {
			t.Errorf("entries mismatch:\n%s", diff)
		}
		if !slices.Equal(testOptions, msg.Options) {
			t.Errorf("options mismatch: %v != %v", msg.Options, testOptions)
		}
		if msg.Trailing != 0 {
			t.Errorf("unexpected trailing %d", msg.Trailing)
		}
	}
}

func TestFlagBits(t *testing.T) {
	bs := AppendPayload(nil, nil, nil, true)
	if bs[0] != FlagReboot|FlagUnicast {
		t.Errorf("flags 0x%02x", bs[0])
	}
	bs = AppendPayload(nil, nil, nil, false)
	if bs[0] != FlagUnicast {
		t.Errorf("flags 0x%02x", bs[0])
	}
}

func TestHeader(t *testing.T) {
	payload := AppendPayload(nil, testEntries, testOptions, false)
	hdrBytes := AppendHeader(nil, len(payload), 7)
	if len(hdrBytes) != HeaderLength {
		t.Fatalf("header length %d", len(hdrBytes))
	}

	hdr, err := ParseHeader(hdrBytes)
	if err != nil {
		t.Fatal(err)
	}
	if err := hdr.ValidateSD(); err != nil {
		t.Fatal(err)
	}
	if hdr.ServiceID != 0xFFFF || hdr.MethodID != 0x8100 || hdr.ProtocolVersion != 1 || hdr.InterfaceVersion != 1 {
		t.Errorf("unexpected reserved fields %v", hdr)
	}
	if int(hdr.Length) != len(payload)+8 {
		t.Errorf("length field %d != %d", hdr.Length, len(payload)+8)
	}
	if hdr.PayloadLength() != len(payload) {
		t.Errorf("payload length %d != %d", hdr.PayloadLength(), len(payload))
	}
}

func TestHeaderValidation(t *testing.T) {
	good := AppendHeader(nil, 12, 1)
	cases := []struct {
		field  string
		offset int
		value  byte
	}{
		{"service id", 0, 0x12},
		{"method id", 2, 0x00},
		{"length", 7, 0x04},
		{"client id", 8, 0x01},
		{"protocol version", 12, 2},
		{"interface version", 13, 2},
		{"message type", 14, byte(MessageTypeRequest)},
		{"return code", 15, byte(ReturnCodeNotOK)},
	}

	for _, tc := range cases {
		bs := bytes.Clone(good)
		bs[tc.offset] = tc.value
		hdr, err := ParseHeader(bs)
		if err != nil {
			t.Fatal(err)
		}
		err = hdr.ValidateSD()
		var herr *HeaderError
		if !errors.As(err, &herr) {
			t.Errorf("%s: expected header error, got %v", tc.field, err)
			continue
		}
		if herr.Field != tc.field {
			t.Errorf("%s: error names field %q", tc.field, herr.Field)
		}
	}
}

func TestTruncatedEntries(t *testing.T) {
	full := AppendEntries(nil, testEntries)
	for n := 1; n < len(full); n++ {
		if n%EntryLength == 0 {
			continue
		}
		res, err := ParseEntries(full[:n])
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("length %d: expected truncation error, got %v", n, err)
		}
		if res != nil {
			t.Fatalf("length %d: partial result returned", n)
		}
	}
}

func TestTruncatedOptions(t *testing.T) {
	full := AppendOptions(nil, testOptions)
	boundaries := map[int]bool{12: true, 36: true, 48: true}
	for n := 1; n < len(full); n++ {
		if boundaries[n] {
			continue
		}
		res, err := ParseOptions(full[:n])
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("length %d: expected truncation error, got %v", n, err)
		}
		if res != nil {
			t.Fatalf("length %d: partial result returned", n)
		}
	}
}

func TestTruncatedMessage(t *testing.T) {
	full := Marshal(1, false, testEntries, testOptions)
	for n := 0; n < len(full); n++ {
		if _, err := ParseMessage(full[:n]); err == nil {
			t.Fatalf("length %d: truncated message parsed", n)
		}
	}
}

func TestUnknownEntryType(t *testing.T) {
	bs := AppendEntry(nil, testEntries[0])
	bs[0] = 0x05
	_, err := ParseEntries(bs)
	if !errors.Is(err, ErrUnknownEntryType) {
		t.Errorf("expected unknown entry type, got %v", err)
	}
}

func TestBadOptions(t *testing.T) {
	bs := AppendOption(nil, testOptions[0])
	bs[2] = 0x24 // SD endpoint options are not supported
	if _, err := ParseOptions(bs); !errors.Is(err, ErrUnknownOptionType) {
		t.Errorf("expected unknown option type, got %v", err)
	}

	bs = AppendOption(nil, testOptions[0])
	bs[1] = 21
	if _, err := ParseOptions(bs); !errors.Is(err, ErrOptionLength) {
		t.Errorf("expected option length error, got %v", err)
	}

	bs = AppendOption(nil, testOptions[1])
	bs[1] = 9
	if _, err := ParseOptions(bs); !errors.Is(err, ErrOptionLength) {
		t.Errorf("expected option length error, got %v", err)
	}
}

func TestOptionIndexOutOfRange(t *testing.T) {
	e := OfferServiceEntry(1, 1, 1, 0, 3, 2)
	bs := Marshal(1, false, []Entry{e}, testOptions[:1])
	_, err := ParseMessage(bs)
	if !errors.Is(err, ErrOptionIndex) {
		t.Errorf("expected option index error, got %v", err)
	}
}

func TestEntriesLengthOverflow(t *testing.T) {
	bs := Marshal(1, false, testEntries[:1], nil)
	// Announce more entry bytes than the message holds.
	bs[HeaderLength+7] = 0xFF
	if _, err := ParseMessage(bs); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected truncation, got %v", err)
	}
	bs[HeaderLength+4] = 0xFF
	if _, err := ParseMessage(bs); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected truncation, got %v", err)
	}
}

func TestEntryOptions(t *testing.T) {
	e := Entry{Type: EntryOfferService, Index1: 0, Count1: 1, Index2: 2, Count2: 2}
	res := EntryOptions(e, testOptions)
	want := []Option{testOptions[0], testOptions[2], testOptions[3]}
	if !slices.Equal(want, res) {
		t.Errorf("unexpected options %v", res)
	}
}

func TestSplitMessages(t *testing.T) {
	a := Marshal(1, false, testEntries[:1], nil)
	b := Marshal(2, true, testEntries[1:2], testOptions[:2])

	msgs, err := SplitMessages(append(bytes.Clone(a), b...))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || !bytes.Equal(msgs[0], a) || !bytes.Equal(msgs[1], b) {
		t.Fatalf("unexpected framing: %d messages", len(msgs))
	}

	msgs, err = SplitMessages(append(bytes.Clone(a), b[:len(b)-1]...))
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected truncation, got %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("expected the complete first message, got %d", len(msgs))
	}
}

func FuzzParseMessage(f *testing.F) {
	f.Add(Marshal(1, true, testEntries, testOptions))
	f.Add(Marshal(2, false, nil, nil))
	f.Fuzz(func(t *testing.T, data []byte) {
		msgs, _ := SplitMessages(data)
		for _, m := range msgs {
			ParseMessage(m)
		}
		ParseMessage(data)
	})
}
