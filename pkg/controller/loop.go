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

import (
	"errors"
	"fmt"

	"github.com/dlgclock/dlgclock/pkg/devices"
	"github.com/dlgclock/dlgclock/pkg/protocol"
	"github.com/dlgclock/dlgclock/pkg/status"
	"github.com/dlgclock/dlgclock/pkg/transport"
	"github.com/rs/zerolog/log"
)

// Everything in this file runs on the loop goroutine.

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	from := c.snap.Phase
	if from != p && !IsValidTransition(from, p) {
		log.Error().Stringer("from", from).Stringer("to", p).Msg("unexpected phase transition")
	}
	c.snap.Phase = p
	c.snap.Target = c.sess.target
	c.snap.CommandsEnabled = p == PhaseReady && c.sess.channel != ""
	c.mu.Unlock()

	log.Debug().Str("device", c.sess.target.Name).Stringer("from", from).Stringer("to", p).Msg("phase changed")
}

// releaseHandle closes the current transport handle, if any. The command
// channel goes first so nothing can be written through a released handle.
func (c *Controller) releaseHandle() {
	c.sess.channel = ""
	if !c.sess.hasHandle {
		return
	}
	h := c.sess.handle
	c.sess.hasHandle = false
	err := c.transport.Close(h)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrUnknownHandle):
		log.Debug().Uint64("handle", uint64(h)).Msg("transport handle already released")
	default:
		log.Warn().Err(err).Uint64("handle", uint64(h)).Msg("failed to close transport handle")
	}
}

// current reports whether h belongs to the live session.
func (c *Controller) current(h transport.Handle) bool {
	return c.sess.hasHandle && c.sess.handle == h
}

func (c *Controller) startConnect(p devices.Peripheral) {
	c.releaseHandle()
	c.gen++
	c.sess = session{target: p}
	c.setPhase(PhaseConnecting)

	h, err := c.transport.Connect(p.Address)
	if err != nil {
		c.setPhase(PhaseIdle)
		c.publish(status.IndicatorIdle, "connect failed",
			fmt.Errorf("%w: %w", ErrTransportFailure, err))
		return
	}
	c.sess.handle = h
	c.sess.hasHandle = true

	log.Info().Str("device", p.Name).Str("address", p.Address).Msg("connecting")
	c.publish(status.IndicatorConnecting, "connecting to "+p.Address, nil)
}

func (c *Controller) handleConnection(ev transport.ConnectionEvent) {
	if !c.current(ev.Handle) {
		log.Debug().Uint64("handle", uint64(ev.Handle)).Bool("connected", ev.Connected).
			Msg("ignoring event for stale handle")
		return
	}

	if !ev.Connected {
		var cause error
		if ev.Err != nil {
			cause = fmt.Errorf("%w: %w", ErrTransportFailure, ev.Err)
		}
		c.handleDisconnected(cause)
		return
	}

	if c.snap.Phase != PhaseConnecting {
		return
	}

	c.setPhase(PhaseServiceDiscovery)
	c.publish(status.IndicatorDiscovering, "", nil)

	h, gen := c.sess.handle, c.gen
	err := c.transport.DiscoverServices(h, func(services []transport.Service, err error) {
		c.post(func() { c.handleDiscovered(gen, h, services, err) })
	})
	if err != nil {
		c.teardown(fmt.Errorf("%w: %w", ErrTransportFailure, err), "service discovery failed")
	}
}

func (c *Controller) handleDiscovered(gen uint64, h transport.Handle, services []transport.Service, err error) {
	if gen != c.gen || !c.current(h) || c.snap.Phase != PhaseServiceDiscovery {
		log.Debug().Uint64("handle", uint64(h)).Msg("ignoring stale service discovery")
		return
	}
	if err != nil {
		c.teardown(fmt.Errorf("%w: %w", ErrTransportFailure, err), "service discovery failed")
		return
	}

	svc, ok := transport.FindService(services, protocol.ServiceUUID)
	if !ok || !svc.HasCharacteristic(protocol.CharacteristicUUID) {
		c.teardown(ErrServiceNotFound, "service UUID not found")
		return
	}

	c.sess.channel = protocol.CharacteristicUUID
	c.setPhase(PhaseReady)

	if !c.sess.persisted {
		c.sess.persisted = true
		if err := c.dir.RecordSuccessfulConnection(c.sess.target); err != nil {
			log.Warn().Err(err).Msg("connection not saved to history")
		}
	}

	log.Info().Str("device", c.sess.target.Name).Msg("ready")
	c.publish(status.IndicatorReady, "", nil)
}

// teardown reports a failure once and asks the transport to drop the
// link. If even that fails the session is torn down locally.
func (c *Controller) teardown(cause error, msg string) {
	if cause != nil {
		log.Error().Err(cause).Str("device", c.sess.target.Name).Msg(msg)
		c.publish(c.indicator(), msg, cause)
	}
	if c.snap.Phase == PhaseDisconnecting || c.snap.Phase == PhaseIdle {
		return
	}
	c.beginDisconnect()
}

func (c *Controller) requestDisconnect() {
	switch c.snap.Phase {
	case PhaseConnecting, PhaseServiceDiscovery, PhaseReady:
	default:
		log.Debug().Stringer("phase", c.snap.Phase).Msg("nothing to disconnect")
		return
	}
	c.beginDisconnect()
}

func (c *Controller) beginDisconnect() {
	c.sess.channel = ""
	c.setPhase(PhaseDisconnecting)
	c.publish(status.IndicatorDisconnecting, "", nil)

	if !c.sess.hasHandle {
		c.handleDisconnected(nil)
		return
	}
	if err := c.transport.Disconnect(c.sess.handle); err != nil {
		c.handleDisconnected(fmt.Errorf("%w: %w", ErrTransportFailure, err))
	}
}

// handleDisconnected finishes any session teardown: the handle is
// released, the controller is back in PhaseIdle and the disconnected
// indicator is shown until the cool-down elapses.
func (c *Controller) handleDisconnected(cause error) {
	c.sess.channel = ""
	if c.snap.Phase != PhaseDisconnecting {
		c.setPhase(PhaseDisconnecting)
	}
	c.releaseHandle()
	c.gen++
	c.setPhase(PhaseIdle)

	if cause != nil {
		log.Warn().Err(cause).Str("device", c.sess.target.Name).Msg("disconnected")
	} else {
		log.Info().Str("device", c.sess.target.Name).Msg("disconnected")
	}
	c.publish(status.IndicatorDisconnected, "", cause)
	c.scheduleCooldown()
}

// scheduleCooldown shows the idle indicator after the cool-down, unless a
// new session started in the meantime.
func (c *Controller) scheduleCooldown() {
	if c.cooldown != nil {
		c.cooldown.Stop()
	}
	gen := c.gen
	c.cooldown = c.clock.AfterFunc(c.settings.DisconnectCooldown(), func() {
		c.post(func() {
			if gen == c.gen && c.snap.Phase == PhaseIdle {
				c.publish(status.IndicatorIdle, "", nil)
			}
		})
	})
}

// write sends f through the command channel. done, if set, receives the
// outcome instead of the default reporting; a failed write always tears
// the session down.
func (c *Controller) write(f protocol.Frame, done func(error)) {
	if c.snap.Phase != PhaseReady || c.sess.channel == "" || !c.sess.hasHandle {
		log.Debug().Stringer("frame", f).Stringer("phase", c.snap.Phase).Msg("ignoring command while not ready")
		if done != nil {
			done(errNotReady)
		}
		return
	}

	h, gen := c.sess.handle, c.gen
	err := c.transport.WriteCharacteristic(h, c.sess.channel, f.Bytes(), func(err error) {
		c.post(func() { c.handleWriteDone(gen, f, err, done) })
	})
	if err != nil {
		c.handleWriteDone(gen, f, err, done)
	}
}

func (c *Controller) handleWriteDone(gen uint64, f protocol.Frame, err error, done func(error)) {
	if gen != c.gen {
		log.Debug().Stringer("frame", f).Msg("write finished for stale session")
		if done != nil {
			done(errSessionLost)
		}
		return
	}

	if err == nil {
		log.Debug().Stringer("frame", f).Msg("command written")
		if done != nil {
			done(nil)
		} else {
			c.publish(c.indicator(), "sent "+f.String(), nil)
		}
		return
	}

	if done != nil {
		done(err)
		c.teardown(nil, "")
		return
	}
	c.teardown(fmt.Errorf("%w: %w", ErrTransportFailure, err), "write failed")
}

func (c *Controller) startSync() {
	if c.snap.Phase != PhaseReady {
		log.Debug().Stringer("phase", c.snap.Phase).Msg("ignoring time sync while not ready")
		return
	}

	gen := c.gen
	frame := protocol.EncodeTimeSync(c.clock.Now(), c.settings.UTCOffset())
	c.write(frame, func(err error) {
		if err != nil {
			c.syncFailed(err)
			return
		}
		if c.settle != nil {
			c.settle.Stop()
		}
		c.settle = c.clock.AfterFunc(c.settings.SyncSettle(), func() {
			c.post(func() { c.finishSync(gen) })
		})
	})
}

func (c *Controller) finishSync(gen uint64) {
	if gen != c.gen {
		c.syncFailed(errSessionLost)
		return
	}
	c.write(protocol.Refresh(), func(err error) {
		if err != nil {
			c.syncFailed(err)
			return
		}
		log.Info().Str("device", c.sess.target.Name).Msg("time synced")
		c.publish(c.indicator(), "time synced, if the screen does not update press refresh", nil)
	})
}

func (c *Controller) syncFailed(cause error) {
	err := fmt.Errorf("%w: %w", ErrSyncFailed, cause)
	log.Error().Err(err).Str("device", c.sess.target.Name).Msg("time sync failed")
	c.publish(c.indicator(), "time sync failed", err)
}

func (c *Controller) indicator() status.Indicator {
	return indicatorFor(c.snap.Phase)
}

func (c *Controller) publish(ind status.Indicator, msg string, err error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	c.sink.Publish(c.update(snap, ind, msg, err))
}

// reportInputError publishes a rejected request through the loop so it is
// ordered with every other status line.
func (c *Controller) reportInputError(msg string, err error) {
	c.post(func() {
		c.publish(indicatorFor(c.Phase()), msg, err)
	})
}

func (c *Controller) update(snap Snapshot, ind status.Indicator, msg string, err error) status.Update {
	u := status.Update{
		Time:            c.clock.Now(),
		Device:          snap.Target.Name,
		Address:         snap.Target.Address,
		Phase:           snap.Phase.String(),
		Indicator:       ind,
		Message:         msg,
		Err:             err,
		CommandsEnabled: snap.CommandsEnabled,
		CanConnect:      snap.Phase == PhaseIdle,
	}
	if err != nil {
		u.Error = err.Error()
	}
	return u
}

// indicatorFor maps a phase to its status label.
func indicatorFor(p Phase) status.Indicator {
	switch p {
	case PhaseConnecting:
		return status.IndicatorConnecting
	case PhaseServiceDiscovery:
		return status.IndicatorDiscovering
	case PhaseReady:
		return status.IndicatorReady
	case PhaseDisconnecting:
		return status.IndicatorDisconnecting
	default:
		return status.IndicatorIdle
	}
}
