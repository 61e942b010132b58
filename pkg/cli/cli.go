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

package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dlgclock/dlgclock/internal/telemetry"
	"github.com/dlgclock/dlgclock/pkg/config"
	"github.com/dlgclock/dlgclock/pkg/helpers"
	"github.com/rs/zerolog/log"
)

type Flags struct {
	Version *bool
	Daemon  *bool
	Connect *string
}

// SetupFlags defines the flags shared by every build.
func SetupFlags() *Flags {
	return &Flags{
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Daemon: flag.Bool(
			"daemon",
			false,
			"run without the console and log to stderr",
		),
		Connect: flag.String(
			"connect",
			"",
			"connect to this clock address on startup",
		),
	}
}

// Pre parses flags and handles the ones that need no setup. Add any custom
// flags before running this.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		os.Exit(0)
	}
}

// Setup creates the directories, starts logging and loads the config.
// Call telemetry.Close before exiting.
//
//nolint:gocritic // config struct copied for immutability
func Setup(
	settings helpers.Settings,
	defaultConfig config.Values,
	writers []io.Writer,
) *config.Instance {
	err := helpers.EnsureDirectories(settings)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	err = helpers.InitLogging(settings.LogDir, writers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(settings.ConfigDir, defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	helpers.SetDebug(cfg.DebugLogging())

	// opt-in error reporting
	if err := telemetry.Init(cfg.ErrorReportingDSN()); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg
}
