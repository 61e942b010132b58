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
	"errors"
	"fmt"

	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of devices.Store using testify/mock
type MockStore struct {
	mock.Mock
}

func (m *MockStore) LoadSet(key string) ([]string, error) {
	args := m.Called(key)
	entries, _ := args.Get(0).([]string)
	if err := args.Error(1); err != nil {
		return nil, fmt.Errorf("mock operation failed: %w", err)
	}
	return entries, nil
}

func (m *MockStore) SaveSet(key string, entries []string) error {
	args := m.Called(key, entries)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

func (m *MockStore) RemoveKey(key string) error {
	args := m.Called(key)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// ErrStoreFailed is returned by InMemoryStore while writes are failing.
var ErrStoreFailed = errors.New("store failed")

// InMemoryStore is a working devices.Store backed by a map.
type InMemoryStore struct {
	sets       map[string][]string
	saves      int
	failWrites bool
	mu         syncutil.Mutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sets: make(map[string][]string)}
}

func (s *InMemoryStore) LoadSet(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sets[key]...), nil
}

func (s *InMemoryStore) SaveSet(key string, entries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return ErrStoreFailed
	}
	s.sets[key] = append([]string(nil), entries...)
	s.saves++
	return nil
}

func (s *InMemoryStore) RemoveKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return ErrStoreFailed
	}
	delete(s.sets, key)
	return nil
}

// SetFailWrites makes SaveSet and RemoveKey fail until reset.
func (s *InMemoryStore) SetFailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = fail
}

// Saves returns how many successful SaveSet calls were made.
func (s *InMemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
