// dlgclock
// Copyright (c) 2026 The dlgclock Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of dlgclock.
//
// dlgclock is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// dlgclock is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with dlgclock.  If not, see <http://www.gnu.org/licenses/>.

package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMalformedHex = errors.New("malformed hex")

// Frame is a complete command ready to be written to the command
// characteristic. Frames are only built by this package.
type Frame struct {
	b []byte
}

// Bytes returns a copy of the frame contents.
func (f Frame) Bytes() []byte {
	return append([]byte(nil), f.b...)
}

func (f Frame) Len() int {
	return len(f.b)
}

// Opcode returns the first byte of the frame, or 0 for an empty frame.
func (f Frame) Opcode() byte {
	if len(f.b) == 0 {
		return 0
	}
	return f.b[0]
}

// String renders the frame as uppercase hex, the same form ParseFrame reads.
func (f Frame) String() string {
	return strings.ToUpper(hex.EncodeToString(f.b))
}

func EncodeSimple(opcode byte) Frame {
	return Frame{b: []byte{opcode}}
}

func Refresh() Frame {
	return EncodeSimple(OpRefresh)
}

func Invert() Frame {
	return EncodeSimple(OpInvert)
}

// EncodeTimeSync builds the time sync frame for t. The clock has no notion
// of timezones, so local time is sent as if it were UTC: offset is added to
// the unix seconds and the calendar fields are read from the shifted UTC time.
func EncodeTimeSync(t time.Time, offset time.Duration) Frame {
	local := t.UTC().Add(offset)

	b := make([]byte, TimeSyncLen)
	b[0] = OpTimeSync
	binary.BigEndian.PutUint32(b[1:5], uint32(t.Unix()+int64(offset/time.Second))) //nolint:gosec // wraps in 2106 like the firmware
	binary.BigEndian.PutUint16(b[5:7], uint16(local.Year()))                         //nolint:gosec // year fits
	b[7] = byte(local.Month())
	b[8] = byte(local.Day())
	b[9] = byte(local.Weekday())

	return Frame{b: b}
}

// DecodeHex parses an even-length string of hex digits. Whitespace around
// the input is ignored.
func DecodeHex(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if len(text)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedHex, len(text))
	}
	b, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHex, err)
	}
	return b, nil
}

// ParseFrame turns hex text into a frame for raw sends.
func ParseFrame(text string) (Frame, error) {
	b, err := DecodeHex(text)
	if err != nil {
		return Frame{}, err
	}
	if len(b) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrMalformedHex)
	}
	return Frame{b: b}, nil
}
