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

package bluez

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	getErr error
	setErr error
	props  map[string]dbus.Variant
	closed bool
}

func (b *fakeBus) Get(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	if b.getErr != nil {
		return dbus.Variant{}, b.getErr
	}
	return b.props[string(path)+" "+iface+"."+prop], nil
}

func (b *fakeBus) Set(path dbus.ObjectPath, iface, prop string, value any) error {
	if b.setErr != nil {
		return b.setErr
	}
	b.props[string(path)+" "+iface+"."+prop] = dbus.MakeVariant(value)
	return nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func poweredKey() string {
	return string(DefaultAdapterPath) + " " + adapterIface + ".Powered"
}

func TestRadio_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value dbus.Variant
		err   error
		want  bool
	}{
		{name: "powered", value: dbus.MakeVariant(true), want: true},
		{name: "off", value: dbus.MakeVariant(false), want: false},
		{name: "wrong type", value: dbus.MakeVariant("yes"), want: false},
		{name: "bus error", err: errors.New("no adapter"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bus := &fakeBus{getErr: tt.err, props: map[string]dbus.Variant{poweredKey(): tt.value}}
			r := &Radio{bus: bus, path: DefaultAdapterPath}
			assert.Equal(t, tt.want, r.Enabled())
		})
	}
}

func TestRadio_PoweredWrongType(t *testing.T) {
	t.Parallel()
	bus := &fakeBus{props: map[string]dbus.Variant{poweredKey(): dbus.MakeVariant(uint32(1))}}
	r := &Radio{bus: bus, path: DefaultAdapterPath}

	_, err := r.Powered()
	assert.ErrorIs(t, err, ErrNotBool)
}

func TestRadio_PowerOn(t *testing.T) {
	t.Parallel()
	bus := &fakeBus{props: map[string]dbus.Variant{poweredKey(): dbus.MakeVariant(false)}}
	r := &Radio{bus: bus, path: DefaultAdapterPath}

	require.NoError(t, r.PowerOn())
	assert.True(t, r.Enabled())

	bus.setErr = errors.New("not permitted")
	assert.Error(t, r.PowerOn())

	require.NoError(t, r.Close())
	assert.True(t, bus.closed)
}
