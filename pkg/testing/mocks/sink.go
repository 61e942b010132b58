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

package mocks

import (
	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/dlgclock/dlgclock/pkg/status"
)

// RecordingSink keeps every status update it receives.
type RecordingSink struct {
	updates []status.Update
	mu      syncutil.Mutex
}

func (s *RecordingSink) Publish(u status.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *RecordingSink) Updates() []status.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]status.Update(nil), s.updates...)
}

// Last returns the most recent update, or the zero value.
func (s *RecordingSink) Last() status.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return status.Update{}
	}
	return s.updates[len(s.updates)-1]
}

// Count returns how many updates carried ind.
func (s *RecordingSink) Count(ind status.Indicator) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.updates {
		if u.Indicator == ind {
			n++
		}
	}
	return n
}

// Errors returns the updates that carried an error.
func (s *RecordingSink) Errors() []status.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []status.Update
	for _, u := range s.updates {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}
