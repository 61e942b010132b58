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

package devices

import (
	"fmt"
	"slices"

	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Change tells observers which list was modified.
type Change int

const (
	ScanChanged Change = iota
	HistoryChanged
)

func (c Change) String() string {
	switch c {
	case ScanChanged:
		return "scan"
	case HistoryChanged:
		return "history"
	default:
		return "unknown"
	}
}

// Directory holds the peripherals found by the current scan and the
// most-recently-used history of successful connections.
type Directory struct {
	store     Store
	seen      map[string]struct{}
	scan      []Peripheral
	history   []Peripheral
	observers []func(Change)
	limit     int
	mu        syncutil.RWMutex
	obsMu     syncutil.Mutex
}

func NewDirectory(store Store, limit int) *Directory {
	if limit <= 0 {
		limit = 1
	}
	return &Directory{
		store: store,
		limit: limit,
		seen:  make(map[string]struct{}),
	}
}

// Observe registers fn to be called after either list changes. Callbacks
// run on the goroutine that made the change, outside the directory lock.
func (d *Directory) Observe(fn func(Change)) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observers = append(d.observers, fn)
}

func (d *Directory) notify(c Change) {
	d.obsMu.Lock()
	observers := slices.Clone(d.observers)
	d.obsMu.Unlock()
	for _, fn := range observers {
		fn(c)
	}
}

// RecordScanResult adds p to the scan list unless its address is already
// there, and reports whether it was added.
func (d *Directory) RecordScanResult(p Peripheral) bool {
	p = NewPeripheral(p.Address, p.Name)

	d.mu.Lock()
	if _, ok := d.seen[p.Address]; ok {
		d.mu.Unlock()
		return false
	}
	d.seen[p.Address] = struct{}{}
	d.scan = append(d.scan, p)
	d.mu.Unlock()

	log.Debug().Str("address", p.Address).Str("name", p.Name).Msg("peripheral discovered")
	d.notify(ScanChanged)
	return true
}

func (d *Directory) ClearScanResults() {
	d.mu.Lock()
	d.scan = nil
	d.seen = make(map[string]struct{})
	d.mu.Unlock()

	d.notify(ScanChanged)
}

// ScanResults returns the scan list in first-seen order.
func (d *Directory) ScanResults() []Peripheral {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Peripheral(nil), d.scan...)
}

// History returns the remembered peripherals, most recent first.
func (d *Directory) History() []Peripheral {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Peripheral(nil), d.history...)
}

// MostRecent returns the last peripheral a connection succeeded with.
func (d *Directory) MostRecent() (Peripheral, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.history) == 0 {
		return Peripheral{}, false
	}
	return d.history[0], true
}

// Lookup finds a peripheral by address in the scan list, then in history.
func (d *Directory) Lookup(address string) (Peripheral, bool) {
	address = FormatMAC(address)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.scan {
		if p.Address == address {
			return p, true
		}
	}
	for _, p := range d.history {
		if p.Address == address {
			return p, true
		}
	}
	return Peripheral{}, false
}

// RecordSuccessfulConnection moves p to the front of the history and
// persists the result. Readers see either the old or the new list. A
// failed save is returned but the in-memory history keeps the update.
func (d *Directory) RecordSuccessfulConnection(p Peripheral) error {
	p = NewPeripheral(p.Address, p.Name)

	d.mu.Lock()
	next := make([]Peripheral, 0, len(d.history)+1)
	next = append(next, p)
	for _, h := range d.history {
		if h.Address != p.Address {
			next = append(next, h)
		}
	}
	if len(next) > d.limit {
		next = next[:d.limit]
	}
	d.history = next
	err := d.persistLocked()
	d.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("address", p.Address).Msg("failed to save history")
	}
	d.notify(HistoryChanged)
	return err
}

func (d *Directory) persistLocked() error {
	if d.store == nil {
		return nil
	}
	entries := make([]string, 0, len(d.history))
	for _, h := range d.history {
		entries = append(entries, h.String())
	}
	if err := d.store.SaveSet(HistoryKey, entries); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// LoadHistory replaces the in-memory history with the persisted one.
// Storage errors leave an empty history and malformed or duplicate
// entries are skipped.
func (d *Directory) LoadHistory() []Peripheral {
	var entries []string
	if d.store != nil {
		var err error
		entries, err = d.store.LoadSet(HistoryKey)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load history, starting empty")
			entries = nil
		}
	}

	loaded := make([]Peripheral, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		p, err := ParseEntry(entry)
		if err != nil {
			log.Warn().Err(err).Msg("skipping history entry")
			continue
		}
		if _, ok := seen[p.Address]; ok {
			continue
		}
		seen[p.Address] = struct{}{}
		loaded = append(loaded, p)
		if len(loaded) == d.limit {
			break
		}
	}

	d.mu.Lock()
	d.history = loaded
	d.mu.Unlock()

	log.Info().Int("count", len(loaded)).Msg("loaded history")
	d.notify(HistoryChanged)
	return slices.Clone(loaded)
}

// ClearHistory removes the persisted history and then the in-memory copy.
// If the store fails, neither is changed.
func (d *Directory) ClearHistory() error {
	d.mu.Lock()
	if d.store != nil {
		if err := d.store.RemoveKey(HistoryKey); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("failed to clear history: %w", err)
		}
	}
	d.history = nil
	d.mu.Unlock()

	d.notify(HistoryChanged)
	return nil
}
