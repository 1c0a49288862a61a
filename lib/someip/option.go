// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package someip

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

type OptionType uint8

const (
	OptionIPv4Endpoint  OptionType = 0x04
	OptionIPv6Endpoint  OptionType = 0x06
	OptionIPv4Multicast OptionType = 0x14
	OptionIPv6Multicast OptionType = 0x16
)

func (t OptionType) String() string {
	switch t {
	case OptionIPv4Endpoint:
		return "IPv4Endpoint"
	case OptionIPv6Endpoint:
		return "IPv6Endpoint"
	case OptionIPv4Multicast:
		return "IPv4Multicast"
	case OptionIPv6Multicast:
		return "IPv6Multicast"
	default:
		return fmt.Sprintf("OptionType(0x%02x)", uint8(t))
	}
}

// IsIPv6 reports whether the option carries a 16 byte address.
func (t OptionType) IsIPv6() bool {
	return t == OptionIPv6Endpoint || t == OptionIPv6Multicast
}

// IsMulticast reports whether the option describes a multicast group.
func (t OptionType) IsMulticast() bool {
	return t == OptionIPv4Multicast || t == OptionIPv6Multicast
}

type Proto uint8

const (
	ProtoTCP Proto = 0x06
	ProtoUDP Proto = 0x11
)

func (p Proto) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return fmt.Sprintf("proto(0x%02x)", uint8(p))
	}
}

const (
	// Values of the length field, which excludes the length and type
	// fields themselves.
	ipv4OptionLength = 9
	ipv6OptionLength = 21

	// optionPrefix is the length field plus the type byte.
	optionPrefix = 3
)

// Option is an SD endpoint or multicast option.
type Option struct {
	Type    OptionType
	Proto   Proto
	Address netip.Addr
	Port    uint16
}

// EndpointOption returns a unicast endpoint option, IPv4 or IPv6 depending
// on the address.
func EndpointOption(addr netip.Addr, proto Proto, port uint16) Option {
	addr = addr.Unmap()
	t := OptionIPv4Endpoint
	if addr.Is6() {
		t = OptionIPv6Endpoint
	}
	return Option{Type: t, Proto: proto, Address: addr, Port: port}
}

// MulticastOption returns a UDP multicast option for the given group.
func MulticastOption(addr netip.Addr, port uint16) Option {
	addr = addr.Unmap()
	t := OptionIPv4Multicast
	if addr.Is6() {
		t = OptionIPv6Multicast
	}
	return Option{Type: t, Proto: ProtoUDP, Address: addr, Port: port}
}

func (o Option) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(o.Address, o.Port)
}

func (o Option) String() string {
	return fmt.Sprintf("%v{%v %v}", o.Type, o.Proto, o.AddrPort())
}

// AppendOption appends the wire encoding of o. The address is written in the
// width dictated by the option type.
func AppendOption(dst []byte, o Option) []byte {
	length := uint16(ipv4OptionLength)
	if o.Type.IsIPv6() {
		length = ipv6OptionLength
	}
	dst = binary.BigEndian.AppendUint16(dst, length)
	dst = append(dst, byte(o.Type), 0)
	if o.Type.IsIPv6() {
		a := o.Address.As16()
		dst = append(dst, a[:]...)
	} else {
		a := o.Address.Unmap().As4()
		dst = append(dst, a[:]...)
	}
	dst = append(dst, 0, byte(o.Proto))
	return binary.BigEndian.AppendUint16(dst, o.Port)
}

// AppendOptions appends all options in order.
func AppendOptions(dst []byte, options []Option) []byte {
	for _, o := range options {
		dst = AppendOption(dst, o)
	}
	return dst
}

// parseOption decodes one option and returns it with its wire size.
func parseOption(buf []byte) (Option, int, error) {
	if len(buf) < optionPrefix {
		return Option{}, 0, ErrTruncated
	}
	length := binary.BigEndian.Uint16(buf)
	t := OptionType(buf[2])

	var want uint16
	switch t {
	case OptionIPv4Endpoint, OptionIPv4Multicast:
		want = ipv4OptionLength
	case OptionIPv6Endpoint, OptionIPv6Multicast:
		want = ipv6OptionLength
	default:
		return Option{}, 0, ErrUnknownOptionType
	}
	if length != want {
		return Option{}, 0, ErrOptionLength
	}
	size := optionPrefix + int(length)
	if len(buf) < size {
		return Option{}, 0, ErrTruncated
	}

	o := Option{Type: t}
	var rest []byte
	if t.IsIPv6() {
		o.Address = netip.AddrFrom16([16]byte(buf[4:20]))
		rest = buf[20:size]
	} else {
		o.Address = netip.AddrFrom4([4]byte(buf[4:8]))
		rest = buf[8:size]
	}
	// rest is reserved, proto, port
	o.Proto = Proto(rest[1])
	o.Port = binary.BigEndian.Uint16(rest[2:])
	return o, size, nil
}

// ParseOptions decodes an options array. On error no options are returned.
func ParseOptions(buf []byte) ([]Option, error) {
	var options []Option
	for off := 0; off < len(buf); {
		o, n, err := parseOption(buf[off:])
		if err != nil {
			return nil, &ParseError{What: "option", Offset: off, Err: err}
		}
		options = append(options, o)
		off += n
	}
	return options, nil
}
