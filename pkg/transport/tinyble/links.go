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

package tinyble

import (
	"fmt"
	"strings"

	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/dlgclock/dlgclock/pkg/transport"
	"golang.org/x/sync/errgroup"
)

type disconnecter interface {
	Disconnect() error
}

// link is one connection attempt. dev is nil until the adapter reports the
// link is up.
type link struct {
	dev     disconnecter
	chars   map[string]charWriter
	address string
}

type linkTable struct {
	links map[transport.Handle]*link
	next  transport.Handle
	mu    syncutil.Mutex
}

func newLinkTable() *linkTable {
	return &linkTable{links: make(map[transport.Handle]*link)}
}

func (lt *linkTable) add(address string) transport.Handle {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.next++
	lt.links[lt.next] = &link{address: address}
	return lt.next
}

// attach records the connected device. It returns false when the handle
// was released while the connect was in flight.
func (lt *linkTable) attach(h transport.Handle, dev disconnecter) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.links[h]
	if !ok {
		return false
	}
	l.dev = dev
	return true
}

func (lt *linkTable) device(h transport.Handle) (disconnecter, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.links[h]
	if !ok {
		return nil, transport.ErrUnknownHandle
	}
	if l.dev == nil {
		return nil, transport.ErrNotConnected
	}
	return l.dev, nil
}

func (lt *linkTable) setCharacteristics(h transport.Handle, chars map[string]charWriter) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.links[h]
	if !ok {
		return false
	}
	l.chars = chars
	return true
}

func (lt *linkTable) characteristic(h transport.Handle, uuid string) (charWriter, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.links[h]
	if !ok {
		return nil, transport.ErrUnknownHandle
	}
	w, ok := l.chars[strings.ToLower(uuid)]
	if !ok || l.dev == nil {
		return nil, transport.ErrNotConnected
	}
	return w, nil
}

// remove drops the handle and returns what it held. ok is false if the
// handle was already gone, so only one caller reports the disconnect.
func (lt *linkTable) remove(h transport.Handle) (l *link, ok bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok = lt.links[h]
	delete(lt.links, h)
	return l, ok
}

// byAddress returns the live handles for a peer address.
func (lt *linkTable) byAddress(address string) []transport.Handle {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	var hs []transport.Handle
	for h, l := range lt.links {
		if strings.EqualFold(l.address, address) {
			hs = append(hs, h)
		}
	}
	return hs
}

func (lt *linkTable) removeAll() []*link {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	out := make([]*link, 0, len(lt.links))
	for h, l := range lt.links {
		out = append(out, l)
		delete(lt.links, h)
	}
	return out
}

// disconnectAll drops every connected link in parallel and returns the
// first error.
func disconnectAll(links []*link) error {
	var g errgroup.Group
	for _, l := range links {
		if l.dev == nil {
			continue
		}
		g.Go(func() error {
			if err := l.dev.Disconnect(); err != nil {
				return fmt.Errorf("disconnecting %s: %w", l.address, err)
			}
			return nil
		})
	}
	return g.Wait() //nolint:wrapcheck // already wrapped per link
}
