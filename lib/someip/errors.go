// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package someip

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated         = errors.New("buffer truncated")
	ErrUnknownEntryType  = errors.New("unknown entry type")
	ErrUnknownOptionType = errors.New("unknown option type")
	ErrOptionLength      = errors.New("invalid option length")
	ErrOptionIndex       = errors.New("option reference out of range")
)

// A ParseError describes why a record at a given offset could not be
// decoded. The offset is relative to the start of the array being parsed.
type ParseError struct {
	What   string
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s at offset %d: %v", e.What, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// A HeaderError is returned when a SOME/IP header field does not carry the
// value reserved for service discovery.
type HeaderError struct {
	Field string
	Got   uint64
	Want  uint64
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("unexpected header %s 0x%x (want 0x%x)", e.Field, e.Got, e.Want)
}
