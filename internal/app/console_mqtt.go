// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motion_monitor/internal/config"
	"github.com/relabs-tech/motion_monitor/internal/monitoring"
	"github.com/relabs-tech/motion_monitor/internal/motion"
)

// subscribeSamples delivers every sample published under prefix to fn.
func subscribeSamples(client mqtt.Client, prefix string, fn func(SampleMessage)) error {
	topic := prefix + "/+"
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s SampleMessage
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			monitoring.Logf("console: sample unmarshal error (%s): %v", msg.Topic(), err)
			return
		}
		fn(s)
	})
	if !token.WaitTimeout(mqttWait) {
		return fmt.Errorf("subscribe %s timed out", topic)
	}
	return token.Error()
}

func formatSample(s SampleMessage) string {
	band := motion.BandStill
	if s.Above {
		band = motion.BandMoving
	}
	return fmt.Sprintf("[S%d:%5d] value=%8.3f  magnitude=%8.3f  %-6s  %s",
		s.Sensor, s.Port, s.Value, s.Magnitude, band, s.Time.Format("15:04:05.000"))
}

// RunConsoleMQTT prints every published sample until interrupted.
func RunConsoleMQTT(cfg *config.Config) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("console: MQTT_BROKER is not configured")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runConsole(ctx, cfg, os.Stdout)
}

func runConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	monitoring.Logf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	lines := make(chan string, 64)
	if err := subscribeSamples(client, cfg.MQTTTopicPrefix, func(s SampleMessage) {
		select {
		case lines <- formatSample(s):
		default:
		}
	}); err != nil {
		return err
	}
	monitoring.Logf("console: subscribed to %s/+", cfg.MQTTTopicPrefix)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("console: shutting down")
			return nil
		case line := <-lines:
			fmt.Fprintln(out, line)
		}
	}
}
