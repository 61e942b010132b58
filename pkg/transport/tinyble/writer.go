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
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrQueueFull = errors.New("write queue full")
	ErrClosed    = errors.New("transport closed")
)

const writeQueueDepth = 16

type charWriter interface {
	WriteWithoutResponse(p []byte) (int, error)
}

type writeJob struct {
	w    charWriter
	done func(error)
	data []byte
}

// writeQueue serialises characteristic writes onto one goroutine and paces
// them with a token bucket. Completion callbacks run on that goroutine.
type writeQueue struct {
	limiter *rate.Limiter
	jobs    chan writeJob
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func newWriteQueue(perSecond float64, burst int) *writeQueue {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &writeQueue{
		limiter: rate.NewLimiter(limit, burst),
		jobs:    make(chan writeJob, writeQueueDepth),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (q *writeQueue) start() {
	q.wg.Add(1)
	go q.loop()
}

func (q *writeQueue) enqueue(job writeJob) error {
	if q.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *writeQueue) loop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			return
		case job := <-q.jobs:
			if err := q.limiter.Wait(q.ctx); err != nil {
				job.finish(ErrClosed)
				q.drain()
				return
			}
			_, err := job.w.WriteWithoutResponse(job.data)
			if err != nil {
				log.Debug().Err(err).Msg("characteristic write failed")
			}
			job.finish(err)
		}
	}
}

func (q *writeQueue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.finish(ErrClosed)
		default:
			return
		}
	}
}

func (q *writeQueue) stop() {
	q.once.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

func (j writeJob) finish(err error) {
	if j.done != nil {
		j.done(err)
	}
}
