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
	"path/filepath"

	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Watch reloads the config whenever the file on disk changes and calls
// onReload after each successful reload. The parent directory is watched
// because editors usually replace the file rather than write in place.
// Reloads are debounced on clock. The returned function stops the watcher.
func (c *Instance) Watch(clock clockwork.Clock, onReload func()) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	cfgPath := filepath.Clean(c.Path())
	if err := watcher.Add(filepath.Dir(cfgPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	var (
		mu      syncutil.Mutex
		pending clockwork.Timer
	)
	reload := func() {
		if err := c.Load(); err != nil {
			log.Error().Err(err).Msg("failed to reload config, keeping previous values")
			return
		}
		log.Info().Str("path", cfgPath).Msg("config reloaded")
		if onReload != nil {
			onReload()
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != cfgPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				mu.Lock()
				if pending != nil {
					pending.Stop()
				}
				pending = clock.AfterFunc(ReloadDebounce, reload)
				mu.Unlock()
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(watchErr).Msg("error in config watcher")
			}
		}
	}()

	stop = func() error {
		err := watcher.Close()
		<-done
		mu.Lock()
		if pending != nil {
			pending.Stop()
		}
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to close config watcher: %w", err)
		}
		return nil
	}
	return stop, nil
}
