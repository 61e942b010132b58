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

// Package controller owns the lifecycle of the single connection to a
// clock: connect, service discovery, command writes and teardown.
//
// All session state is owned by one event loop goroutine. Public methods
// and transport callbacks only post work to that loop, so none of them
// block on the radio and none of them can observe a half-updated session.
package controller

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dlgclock/dlgclock/pkg/devices"
	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/dlgclock/dlgclock/pkg/protocol"
	"github.com/dlgclock/dlgclock/pkg/status"
	"github.com/dlgclock/dlgclock/pkg/transport"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrServiceNotFound  = errors.New("service not found")
	ErrTransportFailure = errors.New("transport failure")
	ErrSyncFailed       = errors.New("time sync failed")
	ErrStopped          = errors.New("controller stopped")

	errNotReady    = errors.New("not ready")
	errSessionLost = errors.New("session lost")
)

const eventQueueSize = 32

// Settings are the tunables read at the moment they are needed, so a
// config reload applies to the next operation.
type Settings interface {
	UTCOffset() time.Duration
	SyncSettle() time.Duration
	DisconnectCooldown() time.Duration
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Target          devices.Peripheral
	Phase           Phase
	CommandsEnabled bool
}

// session is only touched by the loop goroutine.
type session struct {
	target    devices.Peripheral
	channel   string
	handle    transport.Handle
	hasHandle bool
	persisted bool
}

type Controller struct {
	transport transport.Transport
	dir       *devices.Directory
	sink      status.Sink
	clock     clockwork.Clock
	settings  Settings
	events    chan func()
	done      chan struct{}
	stopped   chan struct{}
	cooldown  clockwork.Timer
	settle    clockwork.Timer
	sess      session
	gen       uint64
	snap      Snapshot
	stopOnce  sync.Once
	mu        syncutil.RWMutex
}

// New creates a controller. The transport's connection handler is taken
// over by the controller. Call Start before use.
func New(
	t transport.Transport,
	dir *devices.Directory,
	sink status.Sink,
	clock clockwork.Clock,
	settings Settings,
) *Controller {
	if sink == nil {
		sink = status.Discard
	}
	c := &Controller{
		transport: t,
		dir:       dir,
		sink:      sink,
		clock:     clock,
		settings:  settings,
		events:    make(chan func(), eventQueueSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	t.SetConnectionHandler(func(ev transport.ConnectionEvent) {
		c.post(func() { c.handleConnection(ev) })
	})
	return c
}

// Start runs the event loop and publishes the initial idle status.
func (c *Controller) Start() {
	go c.run()
	c.post(func() { c.publish(status.IndicatorIdle, "", nil) })
}

// Stop ends the event loop, releasing any open handle. It is safe to call
// more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	<-c.stopped
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.done:
			c.shutdown()
			return
		}
	}
}

func (c *Controller) shutdown() {
	if c.cooldown != nil {
		c.cooldown.Stop()
	}
	if c.settle != nil {
		c.settle.Stop()
	}
	c.releaseHandle()
	log.Debug().Msg("controller stopped")
}

// post queues fn on the loop. It reports false once the controller is
// stopped.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Phase
}

// Target returns the peripheral of the current or last session.
func (c *Controller) Target() devices.Peripheral {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Target
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Connect validates input as a MAC address and starts connecting to it,
// replacing any existing session. Invalid input is rejected with
// devices.ErrInvalidAddress before the transport is touched.
func (c *Controller) Connect(input string) error {
	if strings.TrimSpace(input) == "" {
		err := fmt.Errorf("%w: empty", devices.ErrInvalidAddress)
		c.reportInputError("please select or enter a device MAC address", err)
		return err
	}

	addr := devices.FormatMAC(input)
	if !devices.IsValidMAC(addr) {
		err := fmt.Errorf("%w: %q", devices.ErrInvalidAddress, input)
		c.reportInputError("MAC address format invalid: "+addr, err)
		return err
	}

	p, ok := c.dir.Lookup(addr)
	if !ok {
		p = devices.NewPeripheral(addr, "")
	}
	return c.connect(p)
}

// ConnectPeripheral is Connect for a peripheral taken from the directory.
func (c *Controller) ConnectPeripheral(p devices.Peripheral) error {
	if !devices.IsValidMAC(devices.FormatMAC(p.Address)) {
		err := fmt.Errorf("%w: %q", devices.ErrInvalidAddress, p.Address)
		c.reportInputError("MAC address format invalid: "+p.Address, err)
		return err
	}
	return c.connect(devices.NewPeripheral(p.Address, p.Name))
}

func (c *Controller) connect(p devices.Peripheral) error {
	if !c.post(func() { c.startConnect(p) }) {
		return ErrStopped
	}
	return nil
}

// Disconnect asks the transport to drop the link. The controller stays in
// PhaseDisconnecting until the transport confirms.
func (c *Controller) Disconnect() error {
	if !c.post(c.requestDisconnect) {
		return ErrStopped
	}
	return nil
}

// SendCommand writes f to the clock. Outside PhaseReady it does nothing.
func (c *Controller) SendCommand(f protocol.Frame) {
	c.post(func() { c.write(f, nil) })
}

func (c *Controller) Refresh() {
	c.SendCommand(protocol.Refresh())
}

func (c *Controller) Invert() {
	c.SendCommand(protocol.Invert())
}

// SyncTime sends the current time followed, after the settle delay, by a
// refresh. Outside PhaseReady it does nothing.
func (c *Controller) SyncTime() {
	c.post(c.startSync)
}
