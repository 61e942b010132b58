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

package controller

// Phase is where the controller is in the connection lifecycle.
type Phase int32

const (
	// PhaseIdle has no connection and no pending attempt.
	PhaseIdle Phase = iota
	// PhaseConnecting waits for the transport to report the link is up.
	PhaseConnecting
	// PhaseServiceDiscovery waits for the GATT service list.
	PhaseServiceDiscovery
	// PhaseReady has a usable command channel.
	PhaseReady
	// PhaseDisconnecting waits for the transport to report the link is down.
	PhaseDisconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseConnecting:
		return "Connecting"
	case PhaseServiceDiscovery:
		return "ServiceDiscovery"
	case PhaseReady:
		return "Ready"
	case PhaseDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// IsValidTransition reports whether the controller may move from one
// phase to another. A new connect is accepted from every phase.
func IsValidTransition(from, to Phase) bool {
	if to == PhaseConnecting {
		return from >= PhaseIdle && from <= PhaseDisconnecting
	}
	switch from {
	case PhaseIdle:
		return false
	case PhaseConnecting:
		// connect failures skip Disconnecting
		return to == PhaseServiceDiscovery || to == PhaseDisconnecting || to == PhaseIdle
	case PhaseServiceDiscovery:
		return to == PhaseReady || to == PhaseDisconnecting
	case PhaseReady:
		return to == PhaseDisconnecting
	case PhaseDisconnecting:
		return to == PhaseIdle
	default:
		return false
	}
}
