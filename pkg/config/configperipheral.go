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

package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultHistoryLimit is the number of remembered peripherals kept when the
// config does not say otherwise.
const DefaultHistoryLimit = 10

// Peripheral configures which advertisements are treated as clocks and how
// the clock's local time is derived.
type Peripheral struct {
	UTCOffset    string   `toml:"utc_offset" validate:"offset"`
	NamePrefixes []string `toml:"name_prefixes,multiline" validate:"min=1,dive,required"`
	AutoConnect  bool     `toml:"auto_connect"`
}

// Timing holds the fixed delays of the connection and scan lifecycle.
type Timing struct {
	SyncSettle         string `toml:"sync_settle" validate:"duration"`
	DisconnectCooldown string `toml:"disconnect_cooldown" validate:"duration"`
	ScanRestartSettle  string `toml:"scan_restart_settle" validate:"duration"`
}

// History configures the remembered peripheral list.
type History struct {
	Backend string `toml:"backend" validate:"oneof=bolt file"`
	Limit   int    `toml:"limit" validate:"min=1,max=100"`
}

// Transport configures write pacing on the radio.
type Transport struct {
	WriteRate  float64 `toml:"write_rate" validate:"gt=0"`
	WriteBurst int     `toml:"write_burst" validate:"min=1"`
}

// MQTT configures the optional status mirror. Publishing is disabled while
// Broker is empty.
type MQTT struct {
	Broker string `toml:"broker,omitempty" validate:"omitempty,hostname_port"`
	Topic  string `toml:"topic,omitempty" validate:"required_with=Broker"`
}

func parseDurationOr(value string, fallback time.Duration, key string) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("invalid duration in config, using default")
		return fallback
	}
	return d
}

// NamePrefixes returns a copy of the accepted advertised name prefixes.
func (c *Instance) NamePrefixes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.vals.Peripheral.NamePrefixes...)
}

// UTCOffset is added to wall-clock time before it is sent to the clock,
// which has no timezone of its own.
func (c *Instance) UTCOffset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDurationOr(c.vals.Peripheral.UTCOffset, 8*time.Hour, "peripheral.utc_offset")
}

func (c *Instance) AutoConnect() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Peripheral.AutoConnect
}

func (c *Instance) SetAutoConnect(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Peripheral.AutoConnect = enabled
}

// SyncSettle is the pause between the time frame and the refresh frame.
func (c *Instance) SyncSettle() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDurationOr(c.vals.Timing.SyncSettle, 150*time.Millisecond, "timing.sync_settle")
}

// DisconnectCooldown is how long the "disconnected" indicator is shown.
func (c *Instance) DisconnectCooldown() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDurationOr(c.vals.Timing.DisconnectCooldown, time.Second, "timing.disconnect_cooldown")
}

// ScanRestartSettle is the pause between stopping and restarting discovery.
func (c *Instance) ScanRestartSettle() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDurationOr(c.vals.Timing.ScanRestartSettle, 200*time.Millisecond, "timing.scan_restart_settle")
}

func (c *Instance) HistoryLimit() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.History.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return c.vals.History.Limit
}

func (c *Instance) HistoryBackend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.History.Backend == "" {
		return HistoryBolt
	}
	return c.vals.History.Backend
}

// WriteRate returns the sustained writes per second and burst size allowed
// on the command characteristic.
func (c *Instance) WriteRate() (perSecond float64, burst int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Transport.WriteRate, c.vals.Transport.WriteBurst
}

func (c *Instance) MQTT() MQTT {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.MQTT
}
