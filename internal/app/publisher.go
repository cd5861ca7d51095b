// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/motion_monitor/internal/monitoring"
	"github.com/relabs-tech/motion_monitor/internal/pipeline"
)

const mqttWait = 2 * time.Second

// SampleMessage is the MQTT payload for one derived sample.
type SampleMessage struct {
	Sensor    int       `json:"sensor"`
	Port      int       `json:"port"`
	Value     float64   `json:"value"`
	Magnitude float64   `json:"magnitude"`
	Above     bool      `json:"above"`
	Time      time.Time `json:"time"`
}

// SampleTopic returns the topic a sensor's samples are published on.
func SampleTopic(prefix string, sensor int) string {
	return fmt.Sprintf("%s/%d", prefix, sensor)
}

// ConnectMQTT connects a paho client. A random suffix keeps client ids unique
// when several processes share a broker.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}
	return client, nil
}

// publishClient is the part of mqtt.Client the publisher uses.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends each sensor's latest sample whenever it changes.
type Publisher struct {
	client   publishClient
	pipeline *pipeline.Pipeline
	prefix   string
	interval time.Duration
	lastSeq  []uint64
}

// NewPublisher creates a publisher for p.
func NewPublisher(client publishClient, p *pipeline.Pipeline, prefix string, interval time.Duration) *Publisher {
	return &Publisher{
		client:   client,
		pipeline: p,
		prefix:   prefix,
		interval: interval,
		lastSeq:  make([]uint64, p.Len()),
	}
}

// PublishChanged publishes every sensor whose sequence moved since the last
// call and returns how many messages were sent. Errors are logged.
func (pub *Publisher) PublishChanged() int {
	sent := 0
	for i := range pub.lastSeq {
		sample, seq, err := pub.pipeline.Latest(i)
		if err != nil || seq == pub.lastSeq[i] {
			continue
		}
		ep, _ := pub.pipeline.Endpoint(i)

		payload, err := json.Marshal(SampleMessage{
			Sensor:    i,
			Port:      ep.Port,
			Value:     sample.Value,
			Magnitude: sample.Magnitude,
			Above:     sample.Above,
			Time:      time.Now().UTC(),
		})
		if err != nil {
			monitoring.Logf("mqtt: json marshal error (sensor %d): %v", i, err)
			continue
		}

		topic := SampleTopic(pub.prefix, i)
		token := pub.client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(mqttWait) {
			monitoring.Logf("mqtt: publish to %s timed out", topic)
			continue
		}
		if err := token.Error(); err != nil {
			monitoring.Logf("mqtt: publish error (%s): %v", topic, err)
			continue
		}
		pub.lastSeq[i] = seq
		sent++
	}
	return sent
}

// Run publishes on every interval until ctx is cancelled.
func (pub *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pub.interval)
	defer ticker.Stop()

	monitoring.Logf("mqtt: publishing %d sensor(s) under %s/ every %v", len(pub.lastSeq), pub.prefix, pub.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pub.PublishChanged()
		}
	}
}
