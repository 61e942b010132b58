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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion  = 1
	CfgEnv         = "DLGCLOCK_CFG"
	HistoryBolt    = "bolt"
	HistoryFileFmt = "file"
)

type Values struct {
	Peripheral   Peripheral `toml:"peripheral"`
	Timing       Timing     `toml:"timing"`
	History      History    `toml:"history"`
	Transport    Transport  `toml:"transport"`
	MQTT         MQTT       `toml:"mqtt,omitempty"`
	ConfigSchema int        `toml:"config_schema"`
	DebugLogging bool       `toml:"debug_logging"`

	// ErrorReportingDSN enables Sentry error reporting when set.
	ErrorReportingDSN string `toml:"error_reporting_dsn,omitempty" validate:"omitempty,url"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Peripheral: Peripheral{
		NamePrefixes: []string{"DLG-", "NRF-"},
		UTCOffset:    "8h",
	},
	Timing: Timing{
		SyncSettle:         "150ms",
		DisconnectCooldown: "1s",
		ScanRestartSettle:  "200ms",
	},
	History: History{
		Limit:   DefaultHistoryLimit,
		Backend: HistoryBolt,
	},
	Transport: Transport{
		WriteRate:  20,
		WriteBurst: 4,
	},
	MQTT: MQTT{
		Topic: MQTTTopicPrefix + "/status",
	},
}

type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads the config file from configDir, writing the defaults to
// disk first if no file exists yet. DLGCLOCK_CFG overrides the path.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Path returns the location of the config file on disk.
func (c *Instance) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfgPath
}

// Load reads the config file on top of the defaults. The current values are
// only replaced if the file parses, matches the schema and validates.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	newVals := c.defaults
	// slices in the defaults would otherwise be shared with every reload
	newVals.Peripheral.NamePrefixes = append([]string(nil), c.defaults.Peripheral.NamePrefixes...)
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	err = applyEnvOverrides(&newVals)
	if err != nil {
		return err
	}

	err = validateValues(&newVals)
	if err != nil {
		return err
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}

func (c *Instance) ErrorReportingDSN() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.ErrorReportingDSN
}
