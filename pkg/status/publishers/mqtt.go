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

// Package publishers mirrors status updates to external systems.
package publishers

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dlgclock/dlgclock/pkg/config"
	"github.com/dlgclock/dlgclock/pkg/status"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MQTTPublisher publishes every status update as a retained JSON message so
// a dashboard that connects late still sees the current state.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	stopCh    chan struct{}
	done      chan struct{}
	broker    string
	topic     string
	filter    []status.Indicator
}

// NewMQTTPublisher creates a publisher for broker ("host:port"). With an
// empty filter every update is published, otherwise only updates whose
// indicator is listed.
func NewMQTTPublisher(broker, topic string, filter []status.Indicator) *MQTTPublisher {
	return &MQTTPublisher{
		broker:    broker,
		topic:     topic,
		filter:    filter,
		newClient: mqtt.NewClient,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start connects to the broker and forwards updates until Stop is called
// or the channel closes.
func (p *MQTTPublisher) Start(updates <-chan status.Update) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + p.broker)
	opts.SetClientID(config.AppName + "-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Str("broker", p.broker).Msg("mqtt publisher: connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	p.client = p.newClient(opts)

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Info().Str("broker", p.broker).Str("topic", p.topic).Msg("mqtt publisher: started")

	go p.publish(updates)
	return nil
}

// Stop ends publishing and disconnects. It is only valid after a
// successful Start.
func (p *MQTTPublisher) Stop() {
	close(p.stopCh)
	<-p.done

	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func (p *MQTTPublisher) publish(updates <-chan status.Update) {
	defer close(p.done)

	for {
		select {
		case <-p.stopCh:
			return
		case u, ok := <-updates:
			if !ok {
				log.Debug().Msg("mqtt publisher: update channel closed")
				return
			}
			if !p.matchesFilter(u.Indicator) {
				continue
			}

			if u.Err != nil && u.Error == "" {
				u.Error = u.Err.Error()
			}
			payload, err := json.Marshal(u)
			if err != nil {
				log.Error().Err(err).Msg("mqtt publisher: failed to marshal update")
				continue
			}

			token := p.client.Publish(p.topic, 0, true, payload)
			if token.Wait() && token.Error() != nil {
				log.Error().Err(token.Error()).Msg("mqtt publisher: failed to publish update")
				continue
			}
		}
	}
}

func (p *MQTTPublisher) matchesFilter(ind status.Indicator) bool {
	if len(p.filter) == 0 {
		return true
	}
	return slices.Contains(p.filter, ind)
}
