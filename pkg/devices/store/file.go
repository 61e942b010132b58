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

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var errCorruptFile = errors.New("failed to parse history file")

type fileData struct {
	Sets map[string][]string `toml:"sets"`
}

// FileStore keeps all sets in a single TOML file. Writes go to a temporary
// file that is renamed over the original.
type FileStore struct {
	fs   afero.Fs
	path string
	mu   syncutil.Mutex
}

func NewFileStore(fsys afero.Fs, path string) *FileStore {
	return &FileStore{fs: fsys, path: path}
}

func (s *FileStore) read() (fileData, error) {
	data := fileData{Sets: make(map[string][]string)}

	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return data, nil
	} else if err != nil {
		return data, fmt.Errorf("failed to read history file: %w", err)
	}

	if err := toml.Unmarshal(b, &data); err != nil {
		return fileData{Sets: make(map[string][]string)},
			fmt.Errorf("%w: %w", errCorruptFile, err)
	}
	if data.Sets == nil {
		data.Sets = make(map[string][]string)
	}
	return data, nil
}

// readForWrite is read, except that a corrupt file is logged and treated as
// empty. corrupt reports that the file must be rewritten.
func (s *FileStore) readForWrite() (data fileData, corrupt bool, err error) {
	data, err = s.read()
	if errors.Is(err, errCorruptFile) {
		log.Warn().Err(err).Str("path", s.path).Msg("discarding corrupt history file")
		return data, true, nil
	}
	return data, false, err
}

func (s *FileStore) write(data fileData) error {
	b, err := toml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

func (s *FileStore) LoadSet(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return data.Sets[key], nil
}

func (s *FileStore) SaveSet(key string, entries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, _, err := s.readForWrite()
	if err != nil {
		return err
	}
	data.Sets[key] = append([]string(nil), entries...)
	return s.write(data)
}

func (s *FileStore) RemoveKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, corrupt, err := s.readForWrite()
	if err != nil {
		return err
	}
	if _, ok := data.Sets[key]; !ok && !corrupt {
		return nil
	}
	delete(data.Sets, key)
	return s.write(data)
}
