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

import "time"

var AppVersion = "DEVELOPMENT"

const (
	AppName         = "dlgclock"
	LogFile         = "dlgclock.log"
	CfgFile         = "config.toml"
	HistoryDbFile   = "history.db"
	HistoryFile     = "history.toml"
	ReloadDebounce  = 250 * time.Millisecond
	MQTTTopicPrefix = "dlgclock"
)
