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

// Package bluez reads adapter state from BlueZ over the system D-Bus.
package bluez

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	busName      = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	propsIface   = "org.freedesktop.DBus.Properties"

	DefaultAdapterPath = dbus.ObjectPath("/org/bluez/hci0")
)

var ErrNotBool = errors.New("property is not a bool")

// propertyBus is the slice of a D-Bus connection the radio uses.
type propertyBus interface {
	Get(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error)
	Set(path dbus.ObjectPath, iface, prop string, value any) error
	Close() error
}

type systemBus struct {
	conn *dbus.Conn
}

func (b systemBus) Get(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := b.conn.Object(busName, path).Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b systemBus) Set(path dbus.ObjectPath, iface, prop string, value any) error {
	return b.conn.Object(busName, path).Call(propsIface+".Set", 0, iface, prop, dbus.MakeVariant(value)).Err
}

func (b systemBus) Close() error {
	return b.conn.Close()
}

// Radio reports the power state of one BlueZ adapter.
type Radio struct {
	bus  propertyBus
	path dbus.ObjectPath
}

// NewRadio opens a private system bus connection for the adapter at path.
func NewRadio(path dbus.ObjectPath) (*Radio, error) {
	conn, err := dbus.SystemBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("authenticating to system bus: %w", err)
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("system bus hello: %w", err)
	}
	return &Radio{bus: systemBus{conn: conn}, path: path}, nil
}

// Powered reads Adapter1.Powered.
func (r *Radio) Powered() (bool, error) {
	v, err := r.bus.Get(r.path, adapterIface, "Powered")
	if err != nil {
		return false, fmt.Errorf("reading %s Powered: %w", r.path, err)
	}
	on, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%s Powered: %w", r.path, ErrNotBool)
	}
	return on, nil
}

// Enabled treats a failed query as powered off.
func (r *Radio) Enabled() bool {
	on, err := r.Powered()
	if err != nil {
		log.Warn().Err(err).Msg("could not read adapter power state")
		return false
	}
	return on
}

func (r *Radio) PowerOn() error {
	if err := r.bus.Set(r.path, adapterIface, "Powered", true); err != nil {
		return fmt.Errorf("powering on %s: %w", r.path, err)
	}
	return nil
}

func (r *Radio) Close() error {
	return r.bus.Close()
}
