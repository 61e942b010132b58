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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dlgclock/dlgclock/pkg/devices"
	"github.com/dlgclock/dlgclock/pkg/protocol"
	"github.com/dlgclock/dlgclock/pkg/status"
	"github.com/dlgclock/dlgclock/pkg/testing/mocks"
	"github.com/dlgclock/dlgclock/pkg/transport"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testAddr = "AA:BB:CC:DD:EE:FF"
	waitFor  = 2 * time.Second
	tick     = 5 * time.Millisecond
)

var syncEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedSettings struct {
	offset   time.Duration
	settle   time.Duration
	cooldown time.Duration
}

func (s fixedSettings) UTCOffset() time.Duration          { return s.offset }
func (s fixedSettings) SyncSettle() time.Duration         { return s.settle }
func (s fixedSettings) DisconnectCooldown() time.Duration { return s.cooldown }

var defaultSettings = fixedSettings{
	offset:   8 * time.Hour,
	settle:   150 * time.Millisecond,
	cooldown: time.Second,
}

type harness struct {
	c     *Controller
	tr    *mocks.FakeTransport
	dir   *devices.Directory
	sink  *mocks.RecordingSink
	clock *clockwork.FakeClock
	store *mocks.InMemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		tr:    mocks.NewFakeTransport(),
		sink:  &mocks.RecordingSink{},
		clock: clockwork.NewFakeClockAt(syncEpoch),
		store: mocks.NewInMemoryStore(),
	}
	h.dir = devices.NewDirectory(h.store, 10)
	h.c = New(h.tr, h.dir, h.sink, h.clock, defaultSettings)
	h.c.Start()
	t.Cleanup(h.c.Stop)
	return h
}

// flush waits until everything queued on the loop so far has run.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, h.c.post(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("controller loop did not drain")
	}
}

// waitPhase waits for the phase and then for the handler that set it to
// finish its side effects.
func (h *harness) waitPhase(t *testing.T, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.c.Phase() == want
	}, waitFor, tick, "phase never reached %s", want)
	h.flush(t)
}

func (h *harness) waitTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, n))
}

func clockServices() []transport.Service {
	return []transport.Service{
		{UUID: "00001800-0000-1000-8000-00805f9b34fb", Characteristics: []string{"00002a00-0000-1000-8000-00805f9b34fb"}},
		{UUID: protocol.ServiceUUID, Characteristics: []string{protocol.CharacteristicUUID}},
	}
}

// connectReady drives a full handshake and returns the session handle.
func (h *harness) connectReady(t *testing.T) transport.Handle {
	t.Helper()

	require.NoError(t, h.c.Connect(testAddr))
	h.waitPhase(t, PhaseConnecting)
	handle := transport.Handle(len(h.tr.Connects()))

	h.tr.EmitConnected(handle)
	h.waitPhase(t, PhaseServiceDiscovery)
	require.Eventually(t, func() bool { return h.tr.HasDiscovery(handle) }, waitFor, tick)

	require.True(t, h.tr.CompleteDiscovery(handle, clockServices(), nil))
	h.waitPhase(t, PhaseReady)
	return handle
}

func TestConnect_SuccessfulHandshake(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.dir.RecordScanResult(devices.Peripheral{Address: testAddr, Name: "DLG-CLOCK"})

	h.connectReady(t)

	assert.Equal(t, []string{testAddr}, h.tr.Connects())
	snap := h.c.Snapshot()
	assert.True(t, snap.CommandsEnabled)
	assert.Equal(t, "DLG-CLOCK", snap.Target.Name)

	history := h.dir.History()
	require.Len(t, history, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF | DLG-CLOCK", history[0].String())

	last := h.sink.Last()
	assert.Equal(t, status.IndicatorReady, last.Indicator)
	assert.Equal(t, "[DLG-CLOCK] connected", last.Line())
	assert.True(t, last.CommandsEnabled)
}

func TestConnect_NormalisesInputAndUsesUnknownName(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.c.Connect("aa-bb-cc-dd-ee-ff"))
	h.waitPhase(t, PhaseConnecting)

	assert.Equal(t, []string{testAddr}, h.tr.Connects())
	assert.Equal(t, devices.UnknownName, h.c.Target().Name)
}

func TestConnect_InvalidAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		message string
	}{
		{name: "empty", input: "  ", message: "please select or enter a device MAC address"},
		{name: "too short", input: "AA:BB:CC", message: "MAC address format invalid: AABBCC"},
		{name: "garbage", input: "clock", message: "MAC address format invalid: CC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			err := h.c.Connect(tt.input)
			require.ErrorIs(t, err, devices.ErrInvalidAddress)

			h.flush(t)
			assert.Empty(t, h.tr.Connects())
			assert.Equal(t, PhaseIdle, h.c.Phase())

			errs := h.sink.Errors()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.message, errs[0].Message)
		})
	}
}

func TestConnect_InvalidAddressIsLastStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	err := h.c.Connect("12:34")
	require.ErrorIs(t, err, devices.ErrInvalidAddress)
	h.flush(t)

	updates := h.sink.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, status.IndicatorIdle, updates[0].Indicator)
	assert.NoError(t, updates[0].Err)

	last := h.sink.Last()
	assert.Equal(t, "MAC address format invalid: 1234", last.Message)
	require.ErrorIs(t, last.Err, devices.ErrInvalidAddress)
	assert.Equal(t, status.IndicatorIdle, last.Indicator)
}

func TestConnect_MissingCharacteristicTearsDown(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.c.Connect(testAddr))
	h.waitPhase(t, PhaseConnecting)
	h.tr.EmitConnected(1)
	require.Eventually(t, func() bool { return h.tr.HasDiscovery(1) }, waitFor, tick)

	services := []transport.Service{{UUID: protocol.ServiceUUID, Characteristics: []string{"00002a00-0000-1000-8000-00805f9b34fb"}}}
	require.True(t, h.tr.CompleteDiscovery(1, services, nil))

	h.waitPhase(t, PhaseDisconnecting)
	assert.Equal(t, []transport.Handle{1}, h.tr.Disconnects())
	assert.Empty(t, h.dir.History())

	errs := h.sink.Errors()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0].Err, ErrServiceNotFound)
	assert.Equal(t, "service UUID not found", errs[0].Message)

	h.tr.EmitDisconnected(1)
	h.waitPhase(t, PhaseIdle)
	assert.Equal(t, 0, h.sink.Count(status.IndicatorReady))
	assert.Contains(t, h.tr.Closed(), transport.Handle(1))
}

func TestConnect_MissingServiceTearsDown(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.c.Connect(testAddr))
	h.waitPhase(t, PhaseConnecting)
	h.tr.EmitConnected(1)
	require.Eventually(t, func() bool { return h.tr.HasDiscovery(1) }, waitFor, tick)
	require.True(t, h.tr.CompleteDiscovery(1, nil, nil))

	h.waitPhase(t, PhaseDisconnecting)
	require.Len(t, h.sink.Errors(), 1)
	require.ErrorIs(t, h.sink.Errors()[0].Err, ErrServiceNotFound)
}

func TestConnect_DiscoveryErrorTearsDown(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.c.Connect(testAddr))
	h.waitPhase(t, PhaseConnecting)
	h.tr.EmitConnected(1)
	require.Eventually(t, func() bool { return h.tr.HasDiscovery(1) }, waitFor, tick)
	require.True(t, h.tr.CompleteDiscovery(1, nil, errors.New("gatt timeout")))

	h.waitPhase(t, PhaseDisconnecting)
	require.Len(t, h.sink.Errors(), 1)
	require.ErrorIs(t, h.sink.Errors()[0].Err, ErrTransportFailure)
}

func TestConnect_TransportRejectsConnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.tr.SetErrors(errors.New("adapter busy"), nil, nil)

	require.NoError(t, h.c.Connect(testAddr))
	h.flush(t)

	assert.Equal(t, PhaseIdle, h.c.Phase())
	require.Len(t, h.sink.Errors(), 1)
	require.ErrorIs(t, h.sink.Errors()[0].Err, ErrTransportFailure)
	assert.Empty(t, h.tr.Closed())

	// a new attempt is accepted straight away
	h.tr.SetErrors(nil, nil, nil)
	require.NoError(t, h.c.Connect(testAddr))
	h.waitPhase(t, PhaseConnecting)
}

func TestConnect_AsyncConnectFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.c.Connect(testAddr))
	h.waitPhase(t, PhaseConnecting)

	h.tr.EmitConnection(transport.ConnectionEvent{Handle: 1, Err: errors.New("timeout")})
	h.waitPhase(t, PhaseIdle)

	errs := h.sink.Errors()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0].Err, ErrTransportFailure)
	assert.Equal(t, status.IndicatorDisconnected, errs[0].Indicator)
}

func TestConnect_RepeatedRequestsReleaseHandles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.c.Connect("AA:BB:CC:DD:EE:01"))
	require.NoError(t, h.c.Connect("AA:BB:CC:DD:EE:02"))
	require.NoError(t, h.c.Connect("AA:BB:CC:DD:EE:03"))
	h.flush(t)

	assert.Len(t, h.tr.Connects(), 3)
	assert.Equal(t, []transport.Handle{1, 2}, h.tr.Closed())
	assert.Equal(t, "AA:BB:CC:DD:EE:03", h.c.Target().Address)

	// events for released handles are ignored
	h.tr.EmitConnected(1)
	h.flush(t)
	assert.Equal(t, PhaseConnecting, h.c.Phase())
	assert.False(t, h.tr.HasDiscovery(1))
}

func TestConnect_StaleDiscoveryIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.c.Connect("AA:BB:CC:DD:EE:01"))
	h.waitPhase(t, PhaseConnecting)
	h.tr.EmitConnected(1)
	require.Eventually(t, func() bool { return h.tr.HasDiscovery(1) }, waitFor, tick)

	require.NoError(t, h.c.Connect("AA:BB:CC:DD:EE:02"))
	h.flush(t)

	require.True(t, h.tr.CompleteDiscovery(1, clockServices(), nil))
	h.flush(t)

	assert.Equal(t, PhaseConnecting, h.c.Phase())
	assert.Empty(t, h.dir.History())
}

func TestConnect_FromReadyReplacesSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	first := h.connectReady(t)

	require.NoError(t, h.c.Connect("AA:BB:CC:DD:EE:01"))
	h.waitPhase(t, PhaseConnecting)

	assert.Contains(t, h.tr.Closed(), first)
	assert.False(t, h.c.Snapshot().CommandsEnabled)
}

func TestSendCommand_NoOpOutsideReady(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	// idle
	h.c.Refresh()
	h.flush(t)

	require.NoError(t, h.c.Connect(testAddr))
	h.waitPhase(t, PhaseConnecting)
	h.c.SendCommand(protocol.Invert())
	h.c.SyncTime()
	h.flush(t)

	h.tr.EmitConnected(1)
	h.waitPhase(t, PhaseServiceDiscovery)
	h.c.Refresh()
	h.c.SyncTime()
	h.flush(t)

	assert.Empty(t, h.tr.Writes())
	assert.Empty(t, h.sink.Errors())
	assert.Equal(t, PhaseServiceDiscovery, h.c.Phase())
}

func TestSendCommand_WritesInReady(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle := h.connectReady(t)

	h.c.Invert()
	h.flush(t)

	writes := h.tr.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, handle, writes[0].Handle)
	assert.Equal(t, protocol.CharacteristicUUID, writes[0].Characteristic)
	assert.Equal(t, []byte{0xE3}, writes[0].Data)

	h.tr.CompleteWrite(0, nil)
	require.Eventually(t, func() bool {
		return h.sink.Last().Message == "sent E3"
	}, waitFor, tick)
}

func TestSendCommand_WriteFailureTearsDown(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle := h.connectReady(t)

	h.c.Refresh()
	h.flush(t)
	h.tr.CompleteWrite(0, errors.New("gatt error"))

	h.waitPhase(t, PhaseDisconnecting)
	assert.Equal(t, []transport.Handle{handle}, h.tr.Disconnects())
	require.Len(t, h.sink.Errors(), 1)
	require.ErrorIs(t, h.sink.Errors()[0].Err, ErrTransportFailure)
}

func TestDisconnectEvent_ResetsAndAllowsImmediateReconnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle := h.connectReady(t)

	h.tr.EmitDisconnected(handle)
	h.waitPhase(t, PhaseIdle)

	snap := h.c.Snapshot()
	assert.False(t, snap.CommandsEnabled)
	assert.Contains(t, h.tr.Closed(), handle)
	assert.Equal(t, 1, h.sink.Count(status.IndicatorDisconnected))

	// commands after the drop go nowhere
	h.c.Refresh()
	h.flush(t)
	assert.Empty(t, h.tr.Writes())

	// reconnect is not held back by the cool-down
	require.NoError(t, h.c.Connect(testAddr))
	h.waitPhase(t, PhaseConnecting)
	assert.Len(t, h.tr.Connects(), 2)

	// the cool-down expiring does not clobber the new session's status
	idleBefore := h.sink.Count(status.IndicatorIdle)
	h.waitTimers(t, 1)
	h.clock.Advance(time.Second)
	h.flush(t)
	h.flush(t)
	assert.Equal(t, idleBefore, h.sink.Count(status.IndicatorIdle))
	assert.Equal(t, PhaseConnecting, h.c.Phase())
}

func TestDisconnectEvent_CooldownShowsIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle := h.connectReady(t)

	h.tr.EmitDisconnected(handle)
	h.waitPhase(t, PhaseIdle)
	assert.Equal(t, status.IndicatorDisconnected, h.sink.Last().Indicator)

	h.waitTimers(t, 1)
	h.clock.Advance(999 * time.Millisecond)
	h.flush(t)
	assert.Equal(t, status.IndicatorDisconnected, h.sink.Last().Indicator)

	h.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		return h.sink.Last().Indicator == status.IndicatorIdle
	}, waitFor, tick)
	assert.True(t, h.sink.Last().CanConnect)
}

func TestDisconnectEvent_DuringEveryPhase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup func(t *testing.T, h *harness) transport.Handle
		name  string
	}{
		{
			name: "connecting",
			setup: func(t *testing.T, h *harness) transport.Handle {
				require.NoError(t, h.c.Connect(testAddr))
				h.waitPhase(t, PhaseConnecting)
				return 1
			},
		},
		{
			name: "service discovery",
			setup: func(t *testing.T, h *harness) transport.Handle {
				require.NoError(t, h.c.Connect(testAddr))
				h.waitPhase(t, PhaseConnecting)
				h.tr.EmitConnected(1)
				h.waitPhase(t, PhaseServiceDiscovery)
				return 1
			},
		},
		{
			name: "ready",
			setup: func(t *testing.T, h *harness) transport.Handle {
				return h.connectReady(t)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			handle := tt.setup(t, h)

			h.tr.EmitDisconnected(handle)
			h.waitPhase(t, PhaseIdle)
			assert.False(t, h.c.Snapshot().CommandsEnabled)
			assert.Contains(t, h.tr.Closed(), handle)

			require.NoError(t, h.c.Connect(testAddr))
			h.waitPhase(t, PhaseConnecting)
		})
	}
}

func TestDisconnect_WaitsForTransport(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle := h.connectReady(t)

	require.NoError(t, h.c.Disconnect())
	h.waitPhase(t, PhaseDisconnecting)
	h.flush(t)
	assert.Equal(t, PhaseDisconnecting, h.c.Phase())
	assert.Equal(t, []transport.Handle{handle}, h.tr.Disconnects())
	assert.False(t, h.c.Snapshot().CommandsEnabled)

	h.tr.EmitDisconnected(handle)
	h.waitPhase(t, PhaseIdle)
	assert.Empty(t, h.sink.Errors())
}

func TestDisconnect_TransportErrorForcesIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle := h.connectReady(t)
	h.tr.SetErrors(nil, errors.New("not connected"), nil)

	require.NoError(t, h.c.Disconnect())
	h.waitPhase(t, PhaseIdle)

	assert.Contains(t, h.tr.Closed(), handle)
	require.Len(t, h.sink.Errors(), 1)
	require.ErrorIs(t, h.sink.Errors()[0].Err, ErrTransportFailure)
}

func TestDisconnect_HandleAlreadyReleasedLogsDebug(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	h := newHarness(t)
	handle := h.connectReady(t)
	h.tr.SetCloseErr(transport.ErrUnknownHandle)

	require.NoError(t, h.c.Disconnect())
	h.waitPhase(t, PhaseDisconnecting)
	h.tr.EmitDisconnected(handle)
	h.waitPhase(t, PhaseIdle)

	assert.Contains(t, h.tr.Closed(), handle)
	assert.Empty(t, h.sink.Errors())
	assert.Contains(t, buf.String(), "transport handle already released")
	assert.NotContains(t, buf.String(), `"level":"warn"`)
}

func TestDisconnect_IdleIsNoOp(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.c.Disconnect())
	h.flush(t)

	assert.Empty(t, h.tr.Disconnects())
	assert.Equal(t, PhaseIdle, h.c.Phase())
}

func TestSyncTime_Success(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connectReady(t)

	h.c.SyncTime()
	h.flush(t)

	writes := h.tr.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, protocol.EncodeTimeSync(syncEpoch, 8*time.Hour).Bytes(), writes[0].Data)

	h.tr.CompleteWrite(0, nil)
	h.waitTimers(t, 1)

	h.clock.Advance(149 * time.Millisecond)
	h.flush(t)
	assert.Len(t, h.tr.Writes(), 1, "refresh must wait for the settle delay")

	h.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(h.tr.Writes()) == 2 }, waitFor, tick)
	assert.Equal(t, []byte{protocol.OpRefresh}, h.tr.Writes()[1].Data)

	h.tr.CompleteWrite(1, nil)
	require.Eventually(t, func() bool {
		return h.sink.Last().Message == "time synced, if the screen does not update press refresh"
	}, waitFor, tick)
	assert.Empty(t, h.sink.Errors())
}

func TestSyncTime_FirstWriteFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle := h.connectReady(t)

	h.c.SyncTime()
	h.flush(t)
	h.tr.CompleteWrite(0, errors.New("gatt error"))

	h.waitPhase(t, PhaseDisconnecting)
	assert.Equal(t, []transport.Handle{handle}, h.tr.Disconnects())

	errs := h.sink.Errors()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0].Err, ErrSyncFailed)
	assert.Len(t, h.tr.Writes(), 1)
}

func TestSyncTime_SecondWriteFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connectReady(t)

	h.c.SyncTime()
	h.flush(t)
	h.tr.CompleteWrite(0, nil)
	h.waitTimers(t, 1)
	h.clock.Advance(150 * time.Millisecond)
	require.Eventually(t, func() bool { return len(h.tr.Writes()) == 2 }, waitFor, tick)

	h.tr.CompleteWrite(1, errors.New("gatt error"))
	h.waitPhase(t, PhaseDisconnecting)

	errs := h.sink.Errors()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0].Err, ErrSyncFailed)
}

func TestSyncTime_SessionLostBeforeRefresh(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle := h.connectReady(t)

	h.c.SyncTime()
	h.flush(t)
	h.tr.CompleteWrite(0, nil)
	h.waitTimers(t, 1)

	h.tr.EmitDisconnected(handle)
	h.waitPhase(t, PhaseIdle)

	// settle timer plus the disconnect cool-down
	h.waitTimers(t, 2)
	h.clock.Advance(150 * time.Millisecond)

	require.Eventually(t, func() bool { return len(h.sink.Errors()) == 1 }, waitFor, tick)
	require.ErrorIs(t, h.sink.Errors()[0].Err, ErrSyncFailed)
	assert.Len(t, h.tr.Writes(), 1)
}

func TestStop(t *testing.T) {
	t.Parallel()

	tr := mocks.NewFakeTransport()
	c := New(tr, devices.NewDirectory(nil, 10), nil, clockwork.NewFakeClock(), defaultSettings)
	c.Start()

	require.NoError(t, c.Connect(testAddr))
	require.Eventually(t, func() bool { return c.Phase() == PhaseConnecting }, waitFor, tick)

	c.Stop()
	c.Stop()

	assert.Equal(t, []transport.Handle{1}, tr.Closed())
	require.ErrorIs(t, c.Connect(testAddr), ErrStopped)
	require.ErrorIs(t, c.Disconnect(), ErrStopped)

	// late transport callbacks are dropped
	tr.EmitDisconnected(1)
}
