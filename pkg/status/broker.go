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

package status

import (
	"context"

	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Broker fans status updates out to every subscriber. A subscriber that
// falls behind loses updates instead of stalling the others.
type Broker struct {
	ctx         context.Context
	source      <-chan Update
	subscribers map[int]chan Update
	last        *Update
	mu          syncutil.RWMutex
	nextID      int
}

func NewBroker(ctx context.Context, source <-chan Update) *Broker {
	return &Broker{
		ctx:         ctx,
		source:      source,
		subscribers: make(map[int]chan Update),
	}
}

// Start runs the fan-out loop until the source closes or the context is
// cancelled. Subscriber channels are closed on exit.
func (b *Broker) Start() {
	go func() {
		for {
			select {
			case u, ok := <-b.source:
				if !ok {
					log.Debug().Msg("status broker: source closed")
					b.closeAllSubscribers()
					return
				}
				b.broadcast(u)
			case <-b.ctx.Done():
				log.Debug().Msg("status broker: context cancelled")
				b.closeAllSubscribers()
				return
			}
		}
	}()
}

func (b *Broker) broadcast(u Update) {
	b.mu.Lock()
	b.last = &u
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			log.Warn().
				Int("subscriber_id", id).
				Str("indicator", string(u.Indicator)).
				Msg("subscriber channel full, dropping status update")
		}
	}
}

// Last returns the most recent update seen by the broker.
func (b *Broker) Last() (Update, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return Update{}, false
	}
	return *b.last, true
}

// Subscribe registers a new consumer with room for bufferSize queued
// updates. The id is used to unsubscribe.
func (b *Broker) Subscribe(bufferSize int) (updates <-chan Update, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++

	ch := make(chan Update, bufferSize)
	b.subscribers[id] = ch

	log.Debug().Int("subscriber_id", id).Int("buffer_size", bufferSize).Msg("status subscriber registered")
	return ch, id
}

// Unsubscribe closes the subscriber's channel. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *Broker) Stop() {
	b.closeAllSubscribers()
}

func (b *Broker) closeAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[int]chan Update)
}
