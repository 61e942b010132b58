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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestBroker_Subscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(context.Background(), make(chan Update))

	_, id := b.Subscribe(10)
	_, id2 := b.Subscribe(10)

	assert.Equal(t, 0, id)
	assert.Equal(t, 1, id2)
	assert.Len(t, b.subscribers, 2)
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := NewBroker(context.Background(), make(chan Update))
	ch, id := b.Subscribe(1)

	b.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	// second call is a no-op
	b.Unsubscribe(id)
}

func TestBroker_BroadcastToAllSubscribers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := make(chan Update, 4)
	b := NewBroker(ctx, source)
	sub1, _ := b.Subscribe(4)
	sub2, _ := b.Subscribe(4)
	b.Start()

	source <- Update{Device: "DLG-01", Indicator: IndicatorReady}

	assert.Equal(t, IndicatorReady, receive(t, sub1).Indicator)
	assert.Equal(t, IndicatorReady, receive(t, sub2).Indicator)

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, "DLG-01", last.Device)
}

func TestBroker_FullSubscriberDropsUpdates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := make(chan Update, 20)
	b := NewBroker(ctx, source)
	slow, _ := b.Subscribe(2)
	fast, _ := b.Subscribe(20)
	b.Start()

	for range 10 {
		source <- Update{Indicator: IndicatorConnecting}
	}

	for range 10 {
		receive(t, fast)
	}
	assert.LessOrEqual(t, len(slow), 2)
}

func TestBroker_ContextCancelClosesSubscribers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	b := NewBroker(ctx, make(chan Update))
	sub, _ := b.Subscribe(1)
	b.Start()

	cancel()

	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber not closed after cancel")
	}
}

func TestChannelSink(t *testing.T) {
	t.Parallel()

	ch := make(chan Update, 1)
	sink := ChannelSink(ch)

	sink.Publish(Update{Message: "first", Err: errors.New("boom")})
	// full channel must not block
	sink.Publish(Update{Message: "second"})

	u := <-ch
	assert.Equal(t, "first", u.Message)
	assert.Equal(t, "boom", u.Error)
	assert.Empty(t, ch)
}

func TestUpdateLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
		u    Update
	}{
		{name: "device and message", u: Update{Device: "DLG-01", Message: "sync ok"}, want: "[DLG-01] sync ok"},
		{name: "falls back to indicator", u: Update{Device: "DLG-01", Indicator: IndicatorDisconnected}, want: "[DLG-01] disconnected"},
		{name: "no device", u: Update{Indicator: IndicatorIdle}, want: "connect device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.u.Line())
		})
	}
}
