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

// Package scanner runs peripheral discovery and feeds accepted
// advertisements into the device directory.
package scanner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlgclock/dlgclock/pkg/devices"
	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/dlgclock/dlgclock/pkg/transport"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrRadioDisabled = errors.New("bluetooth is off")

// Filter decides whether an advertisement is one of our clocks.
type Filter func(transport.Advertisement) bool

// NamePrefixFilter accepts advertisements whose name starts with one of
// the prefixes. prefixes is called for every advertisement so changes in
// config apply to the running scan.
func NamePrefixFilter(prefixes func() []string) Filter {
	return func(adv transport.Advertisement) bool {
		if adv.Name == "" {
			return false
		}
		for _, p := range prefixes() {
			if p != "" && strings.HasPrefix(adv.Name, p) {
				return true
			}
		}
		return false
	}
}

type Scanner struct {
	transport transport.Transport
	radio     transport.Radio
	dir       *devices.Directory
	clock     clockwork.Clock
	settle    func() time.Duration
	filter    Filter
	pending   clockwork.Timer
	gen       uint64
	scanning  bool
	mu        syncutil.Mutex
}

// New creates a scanner. radio may be nil when the adapter power state
// cannot be queried. settle is the pause used by Restart.
func New(
	t transport.Transport,
	radio transport.Radio,
	dir *devices.Directory,
	clock clockwork.Clock,
	settle func() time.Duration,
) *Scanner {
	return &Scanner{
		transport: t,
		radio:     radio,
		dir:       dir,
		clock:     clock,
		settle:    settle,
	}
}

// Start begins discovery with filter. Starting an already running scan
// only swaps the filter.
func (s *Scanner) Start(filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter = filter
	if s.scanning {
		return nil
	}
	return s.startLocked()
}

func (s *Scanner) startLocked() error {
	gen := s.gen
	err := s.transport.StartScan(func(adv transport.Advertisement) {
		s.handle(gen, adv)
	})
	if err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}
	s.scanning = true
	log.Info().Msg("scan started")
	return nil
}

func (s *Scanner) handle(gen uint64, adv transport.Advertisement) {
	s.mu.Lock()
	filter := s.filter
	current := s.scanning && gen == s.gen
	s.mu.Unlock()

	if !current {
		return
	}
	if filter != nil && !filter(adv) {
		return
	}
	s.dir.RecordScanResult(devices.NewPeripheral(adv.Address, adv.Name))
}

// Stop halts discovery and cancels a pending restart. Stopping a stopped
// scanner does nothing.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Scanner) stopLocked() error {
	s.gen++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if !s.scanning {
		return nil
	}
	s.scanning = false
	if err := s.transport.StopScan(); err != nil {
		return fmt.Errorf("failed to stop scan: %w", err)
	}
	log.Info().Msg("scan stopped")
	return nil
}

// Restart stops discovery, clears the scan list and starts again after the
// settle delay. It fails with ErrRadioDisabled if the adapter is off.
func (s *Scanner) Restart() error {
	if s.radio != nil && !s.radio.Enabled() {
		return ErrRadioDisabled
	}

	s.mu.Lock()
	if err := s.stopLocked(); err != nil {
		log.Warn().Err(err).Msg("stop before restart failed")
	}
	gen := s.gen
	s.mu.Unlock()

	s.dir.ClearScanResults()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// stopped again while clearing
		return nil
	}
	s.pending = s.clock.AfterFunc(s.settle(), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen || s.scanning {
			return
		}
		s.pending = nil
		if err := s.startLocked(); err != nil {
			log.Error().Err(err).Msg("failed to restart scan")
		}
	})
	return nil
}

// Scanning reports whether discovery is running.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}
