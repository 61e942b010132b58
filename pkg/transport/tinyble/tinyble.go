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

//go:build linux

// Package tinyble implements the transport on top of tinygo's bluetooth
// package, which talks to BlueZ over D-Bus on Linux.
package tinyble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/dlgclock/dlgclock/pkg/transport"
	"github.com/rs/zerolog/log"
	"tinygo.org/x/bluetooth"
)

type Transport struct {
	adapter  *bluetooth.Adapter
	links    *linkTable
	writes   *writeQueue
	onConn   func(transport.ConnectionEvent)
	scanGen  uint64
	scanning bool
	mu       syncutil.Mutex
}

var _ transport.Transport = (*Transport)(nil)

// New enables the default adapter. Writes are paced at perSecond with the
// given burst.
func New(perSecond float64, burst int) (*Transport, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enabling bluetooth adapter: %w", err)
	}
	t := &Transport{
		adapter: adapter,
		links:   newLinkTable(),
		writes:  newWriteQueue(perSecond, burst),
	}
	adapter.SetConnectHandler(t.adapterConnectionChanged)
	t.writes.start()
	return t, nil
}

func (t *Transport) SetConnectionHandler(fn func(transport.ConnectionEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConn = fn
}

func (t *Transport) emit(ev transport.ConnectionEvent) {
	t.mu.Lock()
	fn := t.onConn
	t.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (t *Transport) StartScan(onResult func(transport.Advertisement)) error {
	t.mu.Lock()
	if t.scanning {
		t.mu.Unlock()
		return nil
	}
	t.scanning = true
	t.scanGen++
	gen := t.scanGen
	t.mu.Unlock()

	go func() {
		err := t.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			onResult(transport.Advertisement{
				Address: r.Address.String(),
				Name:    r.LocalName(),
				RSSI:    r.RSSI,
			})
		})
		if err != nil {
			log.Error().Err(err).Msg("bluetooth scan ended with error")
		}
		t.mu.Lock()
		if t.scanGen == gen {
			t.scanning = false
		}
		t.mu.Unlock()
	}()
	return nil
}

// StopScan does not wait for the scan goroutine; result callbacks may
// still be running when it returns.
func (t *Transport) StopScan() error {
	t.mu.Lock()
	if !t.scanning {
		t.mu.Unlock()
		return nil
	}
	t.scanning = false
	t.scanGen++
	t.mu.Unlock()
	if err := t.adapter.StopScan(); err != nil {
		return fmt.Errorf("stopping scan: %w", err)
	}
	return nil
}

func (t *Transport) Connect(address string) (transport.Handle, error) {
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return 0, fmt.Errorf("parsing address %q: %w", address, err)
	}
	h := t.links.add(address)
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}

	go func() {
		dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			if _, ok := t.links.remove(h); ok {
				t.emit(transport.ConnectionEvent{Handle: h, Err: err})
			}
			return
		}
		if !t.links.attach(h, &dev) {
			log.Debug().Uint64("handle", uint64(h)).Msg("connect finished after release, dropping link")
			if err := dev.Disconnect(); err != nil {
				log.Warn().Err(err).Msg("disconnecting released link")
			}
			return
		}
		t.emit(transport.ConnectionEvent{Handle: h, Connected: true})
	}()
	return h, nil
}

func (t *Transport) Disconnect(h transport.Handle) error {
	dev, err := t.links.device(h)
	switch {
	case err == nil:
		go func() {
			derr := dev.Disconnect()
			if derr != nil {
				log.Warn().Err(derr).Msg("bluetooth disconnect failed")
			}
			if _, ok := t.links.remove(h); ok {
				t.emit(transport.ConnectionEvent{Handle: h, Err: derr})
			}
		}()
		return nil
	case errors.Is(err, transport.ErrNotConnected):
		// still connecting: the connect goroutine drops the device when it
		// finds the handle gone
		if _, ok := t.links.remove(h); ok {
			go t.emit(transport.ConnectionEvent{Handle: h})
		}
		return nil
	default:
		return err
	}
}

func (t *Transport) Close(h transport.Handle) error {
	l, ok := t.links.remove(h)
	if !ok {
		return transport.ErrUnknownHandle
	}
	if l.dev != nil {
		go func() {
			if err := l.dev.Disconnect(); err != nil {
				log.Debug().Err(err).Msg("disconnect on close failed")
			}
		}()
	}
	return nil
}

func (t *Transport) DiscoverServices(h transport.Handle, onDiscovered func([]transport.Service, error)) error {
	d, err := t.links.device(h)
	if err != nil {
		return err
	}
	dev, ok := d.(*bluetooth.Device)
	if !ok {
		return transport.ErrNotConnected
	}

	go func() {
		svcs, err := dev.DiscoverServices(nil)
		if err != nil {
			onDiscovered(nil, fmt.Errorf("discovering services: %w", err))
			return
		}
		chars := make(map[string]charWriter)
		out := make([]transport.Service, 0, len(svcs))
		for _, svc := range svcs {
			found, err := svc.DiscoverCharacteristics(nil)
			if err != nil {
				log.Warn().Err(err).Str("service", svc.UUID().String()).Msg("discovering characteristics")
				continue
			}
			s := transport.Service{UUID: svc.UUID().String()}
			for i := range found {
				c := found[i]
				uuid := strings.ToLower(c.UUID().String())
				s.Characteristics = append(s.Characteristics, uuid)
				chars[uuid] = &c
			}
			out = append(out, s)
		}
		if !t.links.setCharacteristics(h, chars) {
			onDiscovered(nil, transport.ErrUnknownHandle)
			return
		}
		onDiscovered(out, nil)
	}()
	return nil
}

func (t *Transport) WriteCharacteristic(
	h transport.Handle,
	characteristic string,
	data []byte,
	onComplete func(error),
) error {
	w, err := t.links.characteristic(h, characteristic)
	if err != nil {
		return err
	}
	return t.writes.enqueue(writeJob{
		w:    w,
		data: append([]byte(nil), data...),
		done: onComplete,
	})
}

func (t *Transport) adapterConnectionChanged(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	for _, h := range t.links.byAddress(device.Address.String()) {
		if _, ok := t.links.remove(h); ok {
			t.emit(transport.ConnectionEvent{Handle: h})
		}
	}
}

// Shutdown stops scanning, drops every link and stops the writer.
func (t *Transport) Shutdown() {
	if err := t.StopScan(); err != nil {
		log.Debug().Err(err).Msg("stopping scan on shutdown")
	}
	if err := disconnectAll(t.links.removeAll()); err != nil {
		log.Debug().Err(err).Msg("disconnect on shutdown")
	}
	t.writes.stop()
}
