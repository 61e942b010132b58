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

package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/dlgclock/dlgclock/pkg/config"
)

// Settings are the on-disk locations used by the service.
type Settings struct {
	ConfigDir string
	DataDir   string
	LogDir    string
}

// DefaultSettings follows the XDG base directory layout.
func DefaultSettings() Settings {
	return Settings{
		ConfigDir: filepath.Join(xdg.ConfigHome, config.AppName),
		DataDir:   filepath.Join(xdg.DataHome, config.AppName),
		LogDir:    filepath.Join(xdg.StateHome, config.AppName),
	}
}

// EnsureDirectories creates every directory in s that does not exist yet.
func EnsureDirectories(s Settings) error {
	for _, dir := range []string{s.ConfigDir, s.DataDir, s.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the history store location for the given backend.
func (s Settings) HistoryPath(backend string) string {
	if backend == config.HistoryFileFmt {
		return filepath.Join(s.DataDir, config.HistoryFile)
	}
	return filepath.Join(s.DataDir, config.HistoryDbFile)
}
