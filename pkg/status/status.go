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

// Package status carries the human-readable progress of the connection
// lifecycle from the core to whatever is showing it.
package status

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Indicator is the short connection state label shown next to the device.
type Indicator string

const (
	IndicatorIdle          Indicator = "connect device"
	IndicatorConnecting    Indicator = "connecting"
	IndicatorDiscovering   Indicator = "discovering services"
	IndicatorReady         Indicator = "connected"
	IndicatorDisconnecting Indicator = "disconnecting"
	IndicatorDisconnected  Indicator = "disconnected"
)

// Update is one status line. CommandsEnabled is only true while commands
// can be written to the peripheral.
type Update struct {
	Time            time.Time `json:"time"`
	Err             error     `json:"-"`
	Device          string    `json:"device,omitempty"`
	Address         string    `json:"address,omitempty"`
	Phase           string    `json:"phase"`
	Indicator       Indicator `json:"indicator"`
	Message         string    `json:"message,omitempty"`
	Error           string    `json:"error,omitempty"`
	CommandsEnabled bool      `json:"commandsEnabled"`
	CanConnect      bool      `json:"canConnect"`
}

// Line renders the update the way the console prints it, prefixed with
// the device name.
func (u Update) Line() string {
	text := u.Message
	if text == "" {
		text = string(u.Indicator)
	}
	if u.Device == "" {
		return text
	}
	return "[" + u.Device + "] " + text
}

// Sink receives status updates. Publish must not block.
type Sink interface {
	Publish(u Update)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Update)

func (f SinkFunc) Publish(u Update) {
	f(u)
}

// Discard drops every update.
var Discard Sink = SinkFunc(func(Update) {})

// ChannelSink feeds updates into a broker source channel. Updates are
// dropped with a warning if the channel is full.
type ChannelSink chan<- Update

func (c ChannelSink) Publish(u Update) {
	if u.Err != nil && u.Error == "" {
		u.Error = u.Err.Error()
	}
	select {
	case c <- u:
	default:
		log.Warn().Str("message", u.Line()).Msg("status channel full, dropping update")
	}
}
