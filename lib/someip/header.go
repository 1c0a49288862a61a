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

const (
	SDServiceID        uint16 = 0xFFFF
	SDMethodID         uint16 = 0x8100
	SDClientID         uint16 = 0x0000
	ProtocolVersion    uint8  = 1
	SDInterfaceVersion uint8  = 1

	// HeaderLength is the size of the SOME/IP header on the wire.
	HeaderLength = 16
	// lengthCovered is the part of the header counted by the length field.
	lengthCovered = 8
	// MinSDMessageLength is the smallest acceptable length field of an SD
	// message: the covered header part plus the flags word.
	MinSDMessageLength = 12
)

const (
	InstanceAny     uint16 = 0xFFFF
	MajorVersionAny uint8  = 0xFF
	MinorVersionAny uint32 = 0xFFFFFFFF
)

const (
	SessionIDInvalid uint16 = 0
	SessionIDMin     uint16 = 1
	SessionIDMax     uint16 = 0xFFFF
)

type MessageType uint8

const (
	MessageTypeRequest         MessageType = 0x00
	MessageTypeRequestNoReturn MessageType = 0x01
	MessageTypeNotification    MessageType = 0x02
	MessageTypeResponse        MessageType = 0x80
	MessageTypeError           MessageType = 0x81
)

type ReturnCode uint8

const (
	ReturnCodeOK    ReturnCode = 0x00
	ReturnCodeNotOK ReturnCode = 0x01
)

// Header is the fixed SOME/IP message header.
type Header struct {
	ServiceID        uint16
	MethodID         uint16
	Length           uint32
	ClientID         uint16
	SessionID        uint16
	ProtocolVersion  uint8
	InterfaceVersion uint8
	MessageType      MessageType
	ReturnCode       ReturnCode
}

func (h Header) String() string {
	return fmt.Sprintf("header{service 0x%04x method 0x%04x length %d client 0x%04x session %d proto %d iface %d type 0x%02x rc 0x%02x}",
		h.ServiceID, h.MethodID, h.Length, h.ClientID, h.SessionID, h.ProtocolVersion, h.InterfaceVersion, h.MessageType, h.ReturnCode)
}

// PayloadLength returns the number of bytes following the header as
// announced by the length field.
func (h Header) PayloadLength() int {
	if h.Length < lengthCovered {
		return 0
	}
	return int(h.Length - lengthCovered)
}

// ParseHeader decodes the header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLength {
		return Header{}, &ParseError{What: "header", Offset: 0, Err: ErrTruncated}
	}
	return Header{
		ServiceID:        binary.BigEndian.Uint16(buf[0:]),
		MethodID:         binary.BigEndian.Uint16(buf[2:]),
		Length:           binary.BigEndian.Uint32(buf[4:]),
		ClientID:         binary.BigEndian.Uint16(buf[8:]),
		SessionID:        binary.BigEndian.Uint16(buf[10:]),
		ProtocolVersion:  buf[12],
		InterfaceVersion: buf[13],
		MessageType:      MessageType(buf[14]),
		ReturnCode:       ReturnCode(buf[15]),
	}, nil
}

// ValidateSD checks every field reserved for service discovery messages.
func (h Header) ValidateSD() error {
	switch {
	case h.ServiceID != SDServiceID:
		return &HeaderError{"service id", uint64(h.ServiceID), uint64(SDServiceID)}
	case h.MethodID != SDMethodID:
		return &HeaderError{"method id", uint64(h.MethodID), uint64(SDMethodID)}
	case h.Length < MinSDMessageLength:
		return &HeaderError{"length", uint64(h.Length), MinSDMessageLength}
	case h.ClientID != SDClientID:
		return &HeaderError{"client id", uint64(h.ClientID), uint64(SDClientID)}
	case h.ProtocolVersion != ProtocolVersion:
		return &HeaderError{"protocol version", uint64(h.ProtocolVersion), uint64(ProtocolVersion)}
	case h.InterfaceVersion != SDInterfaceVersion:
		return &HeaderError{"interface version", uint64(h.InterfaceVersion), uint64(SDInterfaceVersion)}
	case h.MessageType != MessageTypeNotification:
		return &HeaderError{"message type", uint64(h.MessageType), uint64(MessageTypeNotification)}
	case h.ReturnCode != ReturnCodeOK:
		return &HeaderError{"return code", uint64(h.ReturnCode), uint64(ReturnCodeOK)}
	}
	return nil
}

// AppendHeader appends an SD header for a payload of payloadLength bytes.
func AppendHeader(dst []byte, payloadLength int, sessionID uint16) []byte {
	dst = binary.BigEndian.AppendUint16(dst, SDServiceID)
	dst = binary.BigEndian.AppendUint16(dst, SDMethodID)
	dst = binary.BigEndian.AppendUint32(dst, uint32(payloadLength+HeaderLength-lengthCovered))
	dst = binary.BigEndian.AppendUint16(dst, SDClientID)
	dst = binary.BigEndian.AppendUint16(dst, sessionID)
	return append(dst, ProtocolVersion, SDInterfaceVersion, byte(MessageTypeNotification), byte(ReturnCodeOK))
}

// SplitMessages frames the SOME/IP messages contained in one datagram. A
// trailing fragment shorter than its announced length is an error; the
// messages framed before it are still returned.
func SplitMessages(datagram []byte) ([][]byte, error) {
	var msgs [][]byte
	for off := 0; off < len(datagram); {
		hdr, err := ParseHeader(datagram[off:])
		if err != nil {
			return msgs, &ParseError{What: "message frame", Offset: off, Err: ErrTruncated}
		}
		end := off + HeaderLength + hdr.PayloadLength()
		if hdr.Length < lengthCovered || end > len(datagram) {
			return msgs, &ParseError{What: "message frame", Offset: off, Err: ErrTruncated}
		}
		msgs = append(msgs, datagram[off:end])
		off = end
	}
	return msgs, nil
}
