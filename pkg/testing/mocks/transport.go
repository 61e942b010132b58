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
	"github.com/dlgclock/dlgclock/pkg/transport"
	"github.com/stretchr/testify/mock"
)

// MockRadio is a mock implementation of transport.Radio using testify/mock
type MockRadio struct {
	mock.Mock
}

func (m *MockRadio) Enabled() bool {
	args := m.Called()
	return args.Bool(0)
}

// FakeWrite is one WriteCharacteristic call seen by FakeTransport.
type FakeWrite struct {
	onComplete     func(error)
	Characteristic string
	Data           []byte
	Handle         transport.Handle
}

// FakeTransport is a scriptable transport.Transport. Calls are recorded and
// the asynchronous side is driven by the test through the Emit and
// Complete methods. Callbacks are always invoked from the caller's
// goroutine, never while the fake holds its lock.
type FakeTransport struct {
	ConnectErr    error
	DisconnectErr error
	DiscoverErr   error
	WriteErr      error
	ScanErr       error

	onConn      func(transport.ConnectionEvent)
	onScan      func(transport.Advertisement)
	discoveries map[transport.Handle]func([]transport.Service, error)
	connects    []string
	disconnects []transport.Handle
	closed      []transport.Handle
	closeErr    error
	writes      []FakeWrite
	scanStarts  int
	scanStops   int
	nextHandle  transport.Handle
	scanning    bool
	autoAck     bool
	mu          syncutil.Mutex
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		discoveries: make(map[transport.Handle]func([]transport.Service, error)),
	}
}

// SetAutoAck makes every write complete successfully on its own goroutine.
func (f *FakeTransport) SetAutoAck(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoAck = enabled
}

func (f *FakeTransport) StartScan(onResult func(transport.Advertisement)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScanErr != nil {
		return f.ScanErr
	}
	f.onScan = onResult
	f.scanning = true
	f.scanStarts++
	return nil
}

func (f *FakeTransport) StopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanning = false
	f.onScan = nil
	f.scanStops++
	return nil
}

func (f *FakeTransport) Connect(address string) (transport.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, address)
	if f.ConnectErr != nil {
		return 0, f.ConnectErr
	}
	f.nextHandle++
	return f.nextHandle, nil
}

func (f *FakeTransport) Disconnect(h transport.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, h)
	return f.DisconnectErr
}

func (f *FakeTransport) Close(h transport.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, h)
	return f.closeErr
}

// SetCloseErr makes Close record the handle and return err.
func (f *FakeTransport) SetCloseErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
}

func (f *FakeTransport) DiscoverServices(
	h transport.Handle,
	onDiscovered func([]transport.Service, error),
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DiscoverErr != nil {
		return f.DiscoverErr
	}
	f.discoveries[h] = onDiscovered
	return nil
}

func (f *FakeTransport) WriteCharacteristic(
	h transport.Handle,
	characteristic string,
	data []byte,
	onComplete func(error),
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.writes = append(f.writes, FakeWrite{
		Handle:         h,
		Characteristic: characteristic,
		Data:           append([]byte(nil), data...),
		onComplete:     onComplete,
	})
	if f.autoAck && onComplete != nil {
		go onComplete(nil)
	}
	return nil
}

func (f *FakeTransport) SetConnectionHandler(fn func(transport.ConnectionEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConn = fn
}

// EmitConnection delivers a connection event to the registered handler.
func (f *FakeTransport) EmitConnection(ev transport.ConnectionEvent) {
	f.mu.Lock()
	fn := f.onConn
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (f *FakeTransport) EmitConnected(h transport.Handle) {
	f.EmitConnection(transport.ConnectionEvent{Handle: h, Connected: true})
}

func (f *FakeTransport) EmitDisconnected(h transport.Handle) {
	f.EmitConnection(transport.ConnectionEvent{Handle: h})
}

// Advertise delivers a scan result if a scan is running and reports
// whether it was delivered.
func (f *FakeTransport) Advertise(adv transport.Advertisement) bool {
	f.mu.Lock()
	fn := f.onScan
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(adv)
	return true
}

// CompleteDiscovery answers the pending discovery for h. It reports false
// if no discovery was requested for h.
func (f *FakeTransport) CompleteDiscovery(h transport.Handle, services []transport.Service, err error) bool {
	f.mu.Lock()
	fn, ok := f.discoveries[h]
	delete(f.discoveries, h)
	f.mu.Unlock()
	if !ok {
		return false
	}
	fn(services, err)
	return true
}

// HasDiscovery reports whether a discovery for h is waiting for an answer.
func (f *FakeTransport) HasDiscovery(h transport.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.discoveries[h]
	return ok
}

// CompleteWrite finishes the i-th recorded write with err.
func (f *FakeTransport) CompleteWrite(i int, err error) {
	f.mu.Lock()
	w := f.writes[i]
	f.mu.Unlock()
	if w.onComplete != nil {
		w.onComplete(err)
	}
}

func (f *FakeTransport) Writes() []FakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeWrite(nil), f.writes...)
}

func (f *FakeTransport) Connects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...)
}

func (f *FakeTransport) Disconnects() []transport.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Handle(nil), f.disconnects...)
}

func (f *FakeTransport) Closed() []transport.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Handle(nil), f.closed...)
}

func (f *FakeTransport) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

// ScanCalls returns how many times StartScan and StopScan were called.
func (f *FakeTransport) ScanCalls() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanStarts, f.scanStops
}

// SetErrors replaces the scripted errors while holding the lock, for tests
// that change them after the fake is in use.
func (f *FakeTransport) SetErrors(connect, disconnect, write error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectErr = connect
	f.DisconnectErr = disconnect
	f.WriteErr = write
}
