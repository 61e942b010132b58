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

// Package transport defines what the controller and scanner need from a
// BLE radio stack. Every operation returns immediately; results arrive
// later through the callbacks, which must never run on the goroutine that
// made the call.
package transport

import (
	"errors"
	"strings"
)

var (
	ErrUnknownHandle = errors.New("unknown connection handle")
	ErrNotConnected  = errors.New("not connected")
)

// Handle identifies one connection attempt. Handles are never reused.
type Handle uint64

// Advertisement is a single scan result.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// Service is a discovered GATT service with its characteristic UUIDs.
type Service struct {
	UUID            string
	Characteristics []string
}

// HasCharacteristic reports whether the service exposes uuid.
func (s Service) HasCharacteristic(uuid string) bool {
	for _, c := range s.Characteristics {
		if equalUUID(c, uuid) {
			return true
		}
	}
	return false
}

// FindService returns the service with the given UUID.
func FindService(services []Service, uuid string) (Service, bool) {
	for _, s := range services {
		if equalUUID(s.UUID, uuid) {
			return s, true
		}
	}
	return Service{}, false
}

func equalUUID(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ConnectionEvent reports a link coming up or going down. Err is set when
// a connect attempt failed or the link dropped because of an error.
type ConnectionEvent struct {
	Err       error
	Handle    Handle
	Connected bool
}

// Transport is the radio stack consumed by the core.
type Transport interface {
	StartScan(onResult func(Advertisement)) error
	StopScan() error

	// Connect starts connecting and returns the handle the connection
	// events will carry.
	Connect(address string) (Handle, error)
	// Disconnect asks the peer to drop the link. A disconnected event
	// follows.
	Disconnect(h Handle) error
	// Close releases the handle without waiting for any event.
	Close(h Handle) error

	DiscoverServices(h Handle, onDiscovered func([]Service, error)) error
	WriteCharacteristic(h Handle, characteristic string, data []byte, onComplete func(error)) error

	SetConnectionHandler(fn func(ConnectionEvent))
}

// Radio reports whether the local adapter is usable.
type Radio interface {
	Enabled() bool
}
