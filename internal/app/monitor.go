// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relabs-tech/motion_monitor/internal/config"
	"github.com/relabs-tech/motion_monitor/internal/monitoring"
	"github.com/relabs-tech/motion_monitor/internal/pipeline"
	"github.com/relabs-tech/motion_monitor/internal/sensors"
)

// RunMonitor runs the ingestion pipeline and its sinks until SIGINT or
// SIGTERM. A bind failure aborts startup.
func RunMonitor(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runMonitor(ctx, cfg, sensors.RealUDPSocketFactory{})
}

// openReceivers binds live UDP sockets or loads a capture for replay.
func openReceivers(cfg *config.Config, factory sensors.UDPSocketFactory) ([]sensors.Receiver, error) {
	eps := sensors.Endpoints(cfg.BindAddress, cfg.Ports, cfg.Timeout())
	if cfg.ReplayPCAP != "" {
		monitoring.Logf("monitor: replaying %s", cfg.ReplayPCAP)
		return sensors.OpenPCAP(cfg.ReplayPCAP, eps)
	}
	rs, err := sensors.ListenAll(factory, eps)
	if err != nil {
		return nil, err
	}
	for _, r := range rs {
		monitoring.Logf("%s: listening on %s:%d", r.Endpoint(), cfg.BindAddress, r.Endpoint().Port)
	}
	return rs, nil
}

func runMonitor(ctx context.Context, cfg *config.Config, factory sensors.UDPSocketFactory) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	rs, err := openReceivers(cfg, factory)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	p := pipeline.New(rs, pipeline.OptionsFromConfig(cfg))
	defer p.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	if cfg.WebServerPort > 0 {
		ws := NewWebServer(p, cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	if cfg.MQTTBroker != "" {
		client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMonitor)
		if err != nil {
			// The pipeline still runs without the MQTT sink.
			monitoring.Logf("mqtt: %v; publisher disabled", err)
		} else {
			defer client.Disconnect(250)
			monitoring.Logf("mqtt: connected to %s", cfg.MQTTBroker)
			pub := NewPublisher(client, p, cfg.MQTTTopicPrefix, time.Duration(cfg.MQTTPublishInterval)*time.Millisecond)
			wg.Add(1)
			go func() {
				defer wg.Done()
				pub.Run(ctx)
			}()
		}
	}

	if cfg.DisplayEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := RunDisplay(ctx, p, cfg); err != nil {
				monitoring.Logf("display: %v", err)
			}
		}()
	}

	runErr := p.Run(ctx)
	cancel()
	wg.Wait()
	close(errCh)

	if runErr != nil {
		return fmt.Errorf("monitor: %w", runErr)
	}
	if err, ok := <-errCh; ok {
		return err
	}
	monitoring.Logf("monitor: shut down")
	return nil
}
