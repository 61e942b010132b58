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

package protocol

// GATT identifiers of the clock's single command channel.
const (
	ServiceUUID        = "00001f10-0000-1000-8000-00805f9b34fb"
	CharacteristicUUID = "00001f1f-0000-1000-8000-00805f9b34fb"
)

// Opcodes
const (
	OpRefresh  byte = 0xE2 // redraw the display
	OpInvert   byte = 0xE3 // swap foreground and background
	OpTimeSync byte = 0xDD // OpTimeSync,<u32 secs>,<u16 year>,<month>,<day>,<weekday>
)

// TimeSyncLen is the size of an encoded time sync frame.
const TimeSyncLen = 10
