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

// Package store persists the peripheral history.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

const BucketHistory = "history"

// BoltStore keeps each set as a JSON array under its key in a bolt bucket.
type BoltStore struct {
	bdb *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists([]byte(BucketHistory))
		return err
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing bolt database")
		}
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	return &BoltStore{bdb: db}, nil
}

func (s *BoltStore) Close() error {
	if err := s.bdb.Close(); err != nil {
		return fmt.Errorf("failed to close bolt database: %w", err)
	}
	return nil
}

// LoadSet returns nil without error when key has never been saved.
func (s *BoltStore) LoadSet(key string) ([]string, error) {
	var entries []string
	err := s.bdb.View(func(txn *bolt.Tx) error {
		b := txn.Bucket([]byte(BucketHistory))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", BucketHistory)
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &entries); err != nil {
			return fmt.Errorf("failed to unmarshal set %q: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to view bolt database: %w", err)
	}
	return entries, nil
}

func (s *BoltStore) SaveSet(key string, entries []string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal set %q: %w", key, err)
	}
	err = s.bdb.Update(func(txn *bolt.Tx) error {
		return txn.Bucket([]byte(BucketHistory)).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to update bolt database: %w", err)
	}
	return nil
}

func (s *BoltStore) RemoveKey(key string) error {
	err := s.bdb.Update(func(txn *bolt.Tx) error {
		return txn.Bucket([]byte(BucketHistory)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to update bolt database: %w", err)
	}
	return nil
}
