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

//go:build deadlock

// Package syncutil provides the mutex types used across dlgclock. Building
// with -tags=deadlock swaps them for go-deadlock instrumented locks.
package syncutil

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = true

// Radio callbacks can legitimately stall for a few seconds while BlueZ
// resolves services, so the timeout sits above the longest GATT operation.
const deadlockTimeout = 15 * time.Second

// logWriter routes detector reports through whatever zerolog logger is
// current at report time.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Error().Str("component", "deadlock").Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

func init() {
	deadlock.Opts.DeadlockTimeout = deadlockTimeout
	deadlock.Opts.LogBuf = logWriter{}
}

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	deadlock.Mutex
}

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	deadlock.RWMutex
}
