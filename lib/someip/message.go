// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package someip

import (
	"encoding/binary"
)

// Bits of the first byte of the SD flags word.
const (
	FlagReboot  uint8 = 0x80
	FlagUnicast uint8 = 0x40
)

const (
	flagsLength        = 4
	arrayLengthPrefix  = 4
	minPayloadLength   = flagsLength + 2*arrayLengthPrefix
	defaultMessageSize = 256
)

// Message is a decoded SD message.
type Message struct {
	Header   Header
	Flags    uint8
	Entries  []Entry
	Options  []Option
	Trailing int // bytes after the options array, ignored
}

func (m Message) Reboot() bool {
	return m.Flags&FlagReboot != 0
}

func (m Message) Unicast() bool {
	return m.Flags&FlagUnicast != 0
}

// AppendPayload appends the SD payload: flags, the length prefixed entries
// array and the length prefixed options array. The array lengths are taken
// from the bytes actually written.
func AppendPayload(dst []byte, entries []Entry, options []Option, reboot bool) []byte {
	flags := FlagUnicast
	if reboot {
		flags |= FlagReboot
	}
	dst = append(dst, flags, 0, 0, 0)

	lenAt := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	dst = AppendEntries(dst, entries)
	binary.BigEndian.PutUint32(dst[lenAt:], uint32(len(dst)-lenAt-arrayLengthPrefix))

	lenAt = len(dst)
	dst = append(dst, 0, 0, 0, 0)
	dst = AppendOptions(dst, options)
	binary.BigEndian.PutUint32(dst[lenAt:], uint32(len(dst)-lenAt-arrayLengthPrefix))

	return dst
}

// Marshal returns a complete SD message, header included.
func Marshal(sessionID uint16, reboot bool, entries []Entry, options []Option) []byte {
	payload := AppendPayload(make([]byte, 0, defaultMessageSize), entries, options, reboot)
	msg := AppendHeader(make([]byte, 0, HeaderLength+len(payload)), len(payload), sessionID)
	return append(msg, payload...)
}

// ParseMessage decodes one framed SD message. The header must carry the
// SD reserved values, both arrays must be complete and every entry must
// reference options that exist. Nothing is returned on failure.
func ParseMessage(buf []byte) (Message, error) {
	hdr, err := ParseHeader(buf)
	if err != nil {
		return Message{}, err
	}
	if err := hdr.ValidateSD(); err != nil {
		return Message{}, err
	}
	end := HeaderLength + hdr.PayloadLength()
	if end > len(buf) {
		return Message{}, &ParseError{What: "payload", Offset: HeaderLength, Err: ErrTruncated}
	}
	payload := buf[HeaderLength:end]
	if len(payload) < minPayloadLength {
		return Message{}, &ParseError{What: "payload", Offset: HeaderLength, Err: ErrTruncated}
	}

	m := Message{Header: hdr, Flags: payload[0]}
	off := flagsLength

	entriesLen := int(min(binary.BigEndian.Uint32(payload[off:]), uint32(len(payload))))
	off += arrayLengthPrefix
	if entriesLen > len(payload)-off {
		return Message{}, &ParseError{What: "entries array", Offset: HeaderLength + off, Err: ErrTruncated}
	}
	if m.Entries, err = ParseEntries(payload[off : off+entriesLen]); err != nil {
		return Message{}, err
	}
	off += entriesLen

	if len(payload)-off < arrayLengthPrefix {
		return Message{}, &ParseError{What: "options array", Offset: HeaderLength + off, Err: ErrTruncated}
	}
	optionsLen := int(min(binary.BigEndian.Uint32(payload[off:]), uint32(len(payload))))
	off += arrayLengthPrefix
	if optionsLen > len(payload)-off {
		return Message{}, &ParseError{What: "options array", Offset: HeaderLength + off, Err: ErrTruncated}
	}
	if m.Options, err = ParseOptions(payload[off : off+optionsLen]); err != nil {
		return Message{}, err
	}
	off += optionsLen
	m.Trailing = len(payload) - off

	for i, e := range m.Entries {
		if !e.checkOptionRefs(len(m.Options)) {
			return Message{}, &ParseError{What: "entry", Offset: i * EntryLength, Err: ErrOptionIndex}
		}
	}
	return m, nil
}

// EntryOptions returns the options referenced by both runs of e, first run
// first. e must have been validated against options.
func EntryOptions(e Entry, options []Option) []Option {
	res := make([]Option, 0, int(e.Count1)+int(e.Count2))
	res = append(res, options[e.Index1:int(e.Index1)+int(e.Count1)]...)
	return append(res, options[e.Index2:int(e.Index2)+int(e.Count2)]...)
}
