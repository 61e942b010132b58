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

//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dlgclock/dlgclock/internal/telemetry"
	"github.com/dlgclock/dlgclock/pkg/cli"
	"github.com/dlgclock/dlgclock/pkg/config"
	"github.com/dlgclock/dlgclock/pkg/devices"
	"github.com/dlgclock/dlgclock/pkg/devices/store"
	"github.com/dlgclock/dlgclock/pkg/helpers"
	"github.com/dlgclock/dlgclock/pkg/service"
	"github.com/dlgclock/dlgclock/pkg/transport"
	"github.com/dlgclock/dlgclock/pkg/transport/bluez"
	"github.com/dlgclock/dlgclock/pkg/transport/tinyble"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Instance, settings helpers.Settings) (devices.Store, func(), error) {
	backend := cfg.HistoryBackend()
	path := settings.HistoryPath(backend)
	log.Info().Str("backend", backend).Str("path", path).Msg("opening history store")

	if backend == config.HistoryFileFmt {
		return store.NewFileStore(afero.NewOsFs(), path), func() {}, nil
	}
	db, err := store.OpenBolt(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history database: %w", err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing history database")
		}
	}, nil
}

func openRadio() transport.Radio {
	radio, err := bluez.NewRadio(bluez.DefaultAdapterPath)
	if err != nil {
		log.Warn().Err(err).Msg("adapter power state unavailable")
		return nil
	}
	if !radio.Enabled() {
		log.Info().Msg("bluetooth adapter is off, powering on")
		if err := radio.PowerOn(); err != nil {
			log.Warn().Err(err).Msg("could not power on adapter")
		}
	}
	return radio
}

func run() error {
	flags := cli.SetupFlags()
	flags.Pre()

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{os.Stderr}
	}

	settings := helpers.DefaultSettings()
	cfg := cli.Setup(settings, config.BaseDefaults, logWriters)
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			telemetry.Flush()
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	historyStore, closeStore, err := openStore(cfg, settings)
	if err != nil {
		return err
	}
	defer closeStore()

	radio := openRadio()
	if closer, ok := radio.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	perSecond, burst := cfg.WriteRate()
	ble, err := tinyble.New(perSecond, burst)
	if err != nil {
		log.Error().Err(err).Msg("error enabling bluetooth")
		return fmt.Errorf("error enabling bluetooth: %w", err)
	}
	defer ble.Shutdown()

	svc, err := service.Start(cfg, service.Deps{
		Transport: ble,
		Radio:     radio,
		Store:     historyStore,
	})
	if err != nil {
		log.Error().Msgf("error starting service: %s", err)
		return fmt.Errorf("error starting service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Error().Msgf("error stopping service: %s", err)
		}
	}()

	if *flags.Connect != "" {
		if err := svc.Controller().Connect(*flags.Connect); err != nil {
			log.Error().Err(err).Msg("startup connect failed")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *flags.Daemon {
		log.Info().Msg("started in daemon mode")
		<-ctx.Done()
		return nil
	}

	err = cli.NewConsole(svc, os.Stdout).Run(ctx, os.Stdin)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
