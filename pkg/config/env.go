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
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "DLGCLOCK"

// envOverrides are read from DLGCLOCK_* variables and win over the file.
type envOverrides struct {
	MQTTBroker        string `envconfig:"MQTT_BROKER"`
	ErrorReportingDSN string `envconfig:"ERROR_REPORTING_DSN"`
	Debug             bool   `envconfig:"DEBUG"`
}

func applyEnvOverrides(vals *Values) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if env.Debug {
		vals.DebugLogging = true
	}
	if env.MQTTBroker != "" {
		vals.MQTT.Broker = env.MQTTBroker
	}
	if env.ErrorReportingDSN != "" {
		vals.ErrorReportingDSN = env.ErrorReportingDSN
	}
	return nil
}
