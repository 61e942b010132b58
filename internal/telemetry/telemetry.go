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

// Package telemetry provides opt-in error reporting via Sentry. Usernames
// in paths and the device part of Bluetooth addresses are stripped before
// anything is sent.
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/dlgclock/dlgclock/pkg/config"
	"github.com/dlgclock/dlgclock/pkg/helpers"
	"github.com/getsentry/sentry-go"
	sentryzerolog "github.com/getsentry/sentry-go/zerolog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const flushTimeout = 2 * time.Second

var (
	enabled      bool
	sentryWriter *sentryzerolog.Writer
	closeOnce    sync.Once

	homePathRe = regexp.MustCompile(`(?i)/home/[^/]+/`)
	rootPathRe = regexp.MustCompile(`^/root/`)
	// keeps the vendor prefix, masks the device specific half
	macRe = regexp.MustCompile(`(?i)\b((?:[0-9a-f]{2}[:-]){3})(?:[0-9a-f]{2}[:-]){2}[0-9a-f]{2}\b`)
)

// Init starts Sentry with zerolog integration. An empty dsn leaves
// reporting disabled.
func Init(dsn string) error {
	if dsn == "" {
		log.Debug().Msg("error reporting disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          config.AppName + "@" + config.AppVersion,
		Environment:      runtime.GOOS,
		AttachStacktrace: true,
		SendDefaultPII:   false,
		ServerName:       "",
		MaxBreadcrumbs:   0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return sanitizeEvent(event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	sentryWriter, err = sentryzerolog.NewWithHub(sentry.CurrentHub(), sentryzerolog.Options{
		Levels:          []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		FlushTimeout:    flushTimeout,
		WithBreadcrumbs: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create sentry zerolog writer: %w", err)
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(
		helpers.LogWriter(),
		sentryWriter,
	)).With().Timestamp().Caller().Logger()

	enabled = true
	log.Info().Msg("error reporting enabled")
	return nil
}

// Close flushes pending events and shuts down Sentry. Safe to call more
// than once.
func Close() {
	if !enabled {
		return
	}
	closeOnce.Do(func() {
		_ = sentryWriter.Close()
		sentry.Flush(flushTimeout)
	})
}

// Flush sends pending events. Call it before os.Exit.
func Flush() {
	if !enabled {
		return
	}
	sentry.Flush(flushTimeout)
}

func Enabled() bool {
	return enabled
}

func sanitizeEvent(event *sentry.Event) *sentry.Event {
	event.ServerName = ""

	for i := range event.Exception {
		event.Exception[i].Value = sanitize(event.Exception[i].Value)
		if event.Exception[i].Stacktrace == nil {
			continue
		}
		for j := range event.Exception[i].Stacktrace.Frames {
			frame := &event.Exception[i].Stacktrace.Frames[j]
			frame.AbsPath = sanitize(frame.AbsPath)
			frame.Filename = sanitize(frame.Filename)
		}
	}

	event.Message = sanitize(event.Message)

	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = sanitize(s)
		}
	}

	return event
}

func sanitize(s string) string {
	if s == "" {
		return s
	}
	s = homePathRe.ReplaceAllString(s, "/home/<user>/")
	s = rootPathRe.ReplaceAllString(s, "/<root>/")
	return macRe.ReplaceAllString(s, "${1}XX:XX:XX")
}
