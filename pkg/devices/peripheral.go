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

package devices

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// UnknownName is shown for peripherals that do not advertise a name.
const UnknownName = "Unknown"

// entrySep separates address and name in persisted history entries.
const entrySep = " | "

var ErrInvalidAddress = errors.New("invalid address")

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// Peripheral identifies a clock seen in a scan or remembered in history.
type Peripheral struct {
	Address string
	Name    string
}

// String renders the persisted "<address> | <name>" form.
func (p Peripheral) String() string {
	return p.Address + entrySep + p.displayName()
}

func (p Peripheral) displayName() string {
	if p.Name == "" {
		return UnknownName
	}
	return p.Name
}

// NewPeripheral normalises the address and fills in the unknown name.
func NewPeripheral(address, name string) Peripheral {
	p := Peripheral{Address: FormatMAC(address), Name: strings.TrimSpace(name)}
	p.Name = p.displayName()
	return p
}

// ParseEntry reads a persisted history entry. Entries without a name get
// UnknownName, entries whose address is not a MAC are rejected.
func ParseEntry(entry string) (Peripheral, error) {
	addr, name, _ := strings.Cut(entry, "|")
	p := NewPeripheral(addr, name)
	if !IsValidMAC(p.Address) {
		return Peripheral{}, fmt.Errorf("%w: %q", ErrInvalidAddress, entry)
	}
	return p, nil
}

// FormatMAC canonicalises user or history input into AA:BB:CC:DD:EE:FF.
// Anything after a "|" is dropped along with every non-hex character. If
// the remainder is not exactly 12 digits it is returned as is, uppercased,
// so the caller can echo it back.
func FormatMAC(input string) string {
	input, _, _ = strings.Cut(input, "|")

	var digits strings.Builder
	for _, r := range input {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			digits.WriteRune(r)
		}
	}
	clean := strings.ToUpper(digits.String())
	if len(clean) != 12 {
		return clean
	}

	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(clean[i : i+2])
	}
	return b.String()
}

// IsValidMAC reports whether s is six hex octets joined by ':' or '-'.
func IsValidMAC(s string) bool {
	return macPattern.MatchString(s)
}
