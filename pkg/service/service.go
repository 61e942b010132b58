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

// Package service assembles the clock controller, the scanner and their
// supporting infrastructure into one running instance.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dlgclock/dlgclock/pkg/config"
	"github.com/dlgclock/dlgclock/pkg/controller"
	"github.com/dlgclock/dlgclock/pkg/devices"
	"github.com/dlgclock/dlgclock/pkg/helpers"
	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/dlgclock/dlgclock/pkg/scanner"
	"github.com/dlgclock/dlgclock/pkg/status"
	"github.com/dlgclock/dlgclock/pkg/status/publishers"
	"github.com/dlgclock/dlgclock/pkg/transport"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const statusQueueSize = 64

// Deps are the platform pieces the service cannot build itself.
type Deps struct {
	Transport transport.Transport
	// Radio may be nil if the adapter power state is unknown.
	Radio transport.Radio
	Store devices.Store
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// NoWatch disables config file watching.
	NoWatch bool
}

type Service struct {
	cfg        *config.Instance
	broker     *status.Broker
	dir        *devices.Directory
	ctrl       *controller.Controller
	scan       *scanner.Scanner
	mqtt       *publishers.MQTTPublisher
	stopWatch  func() error
	cancel     context.CancelFunc
	autoTried  bool
	autoMu     syncutil.Mutex
	stopOnce   bool
	stopMu     syncutil.Mutex
	statusChan chan status.Update
}

// Start builds and starts every component. Scanning starts immediately; a
// failure to start it is logged, not returned, so the console can still
// be used to retry.
func Start(cfg *config.Instance, deps Deps) (*Service, error) {
	log.Info().Msgf("version: %s", config.AppVersion)

	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Transport == nil || deps.Store == nil {
		return nil, errors.New("transport and store are required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:        cfg,
		cancel:     cancel,
		statusChan: make(chan status.Update, statusQueueSize),
	}

	s.broker = status.NewBroker(ctx, s.statusChan)
	s.broker.Start()

	log.Info().Int("limit", cfg.HistoryLimit()).Msg("loading connection history")
	s.dir = devices.NewDirectory(deps.Store, cfg.HistoryLimit())
	history := s.dir.LoadHistory()
	log.Info().Int("entries", len(history)).Msg("connection history loaded")

	s.ctrl = controller.New(deps.Transport, s.dir, status.ChannelSink(s.statusChan), deps.Clock, cfg)
	s.ctrl.Start()

	s.scan = scanner.New(deps.Transport, deps.Radio, s.dir, deps.Clock, cfg.ScanRestartSettle)
	s.dir.Observe(s.autoConnect)

	if mc := cfg.MQTT(); mc.Broker != "" {
		s.mqtt = startPublisher(s.broker, mc)
	}

	if !deps.NoWatch {
		stop, err := cfg.Watch(deps.Clock, s.configReloaded)
		if err != nil {
			log.Error().Err(err).Msg("config watcher failed to start (continuing without reload)")
		} else {
			s.stopWatch = stop
		}
	}

	if err := s.scan.Start(scanner.NamePrefixFilter(cfg.NamePrefixes)); err != nil {
		log.Error().Err(err).Msg("initial scan failed to start")
	}

	log.Info().Msg("service started")
	return s, nil
}

func startPublisher(b *status.Broker, mc config.MQTT) *publishers.MQTTPublisher {
	log.Info().Msgf("starting MQTT publisher: %s (topic: %s)", mc.Broker, mc.Topic)
	updates, id := b.Subscribe(statusQueueSize)
	p := publishers.NewMQTTPublisher(mc.Broker, mc.Topic, nil)
	if err := p.Start(updates); err != nil {
		log.Error().Err(err).Msgf("failed to start MQTT publisher for %s", mc.Broker)
		b.Unsubscribe(id)
		return nil
	}
	return p
}

func (s *Service) configReloaded() {
	helpers.SetDebug(s.cfg.DebugLogging())
	// name prefixes are read per advertisement, restarting clears results
	// that no longer match
	if s.scan.Scanning() {
		if err := s.scan.Restart(); err != nil {
			log.Warn().Err(err).Msg("scan restart after config reload failed")
		}
	}
}

// autoConnect reconnects to the most recently used clock as soon as it is
// seen, once per scan.
func (s *Service) autoConnect(c devices.Change) {
	if c != devices.ScanChanged {
		return
	}
	results := s.dir.ScanResults()

	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	if len(results) == 0 {
		s.autoTried = false
		return
	}
	if s.autoTried || !s.cfg.AutoConnect() || s.ctrl.Phase() != controller.PhaseIdle {
		return
	}
	recent, ok := s.dir.MostRecent()
	if !ok {
		return
	}
	for _, p := range results {
		if p.Address != recent.Address {
			continue
		}
		s.autoTried = true
		log.Info().Str("address", p.Address).Msg("auto-connecting to last used clock")
		if err := s.ctrl.ConnectPeripheral(p); err != nil {
			log.Warn().Err(err).Msg("auto-connect failed")
		}
		return
	}
}

func (s *Service) Controller() *controller.Controller {
	return s.ctrl
}

func (s *Service) Scanner() *scanner.Scanner {
	return s.scan
}

func (s *Service) Directory() *devices.Directory {
	return s.dir
}

func (s *Service) Config() *config.Instance {
	return s.cfg
}

// Subscribe returns a status feed. Pass the id to Unsubscribe when done.
func (s *Service) Subscribe(buffer int) (<-chan status.Update, int) {
	return s.broker.Subscribe(buffer)
}

func (s *Service) Unsubscribe(id int) {
	s.broker.Unsubscribe(id)
}

// LastStatus is the most recent update seen by the broker.
func (s *Service) LastStatus() (status.Update, bool) {
	return s.broker.Last()
}

// Stop tears everything down in reverse start order. It is safe to call
// more than once.
func (s *Service) Stop() error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopOnce {
		return nil
	}
	s.stopOnce = true

	var errs []error
	if s.stopWatch != nil {
		if err := s.stopWatch(); err != nil {
			errs = append(errs, fmt.Errorf("stopping config watcher: %w", err))
		}
	}
	if err := s.scan.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping scan: %w", err))
	}
	s.ctrl.Stop()
	if s.mqtt != nil {
		s.mqtt.Stop()
	}
	s.cancel()
	s.broker.Stop()

	log.Info().Msg("service stopped")
	return errors.Join(errs...)
}
