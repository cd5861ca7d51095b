// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/relabs-tech/motion_monitor/internal/monitoring"
	"github.com/relabs-tech/motion_monitor/internal/motion"
)

// SimOptions configures the synthetic transmitter.
type SimOptions struct {
	Host     string
	Ports    []int
	Fields   int // 3 or 6
	Interval time.Duration
	Count    int // datagrams per port; 0 sends until cancelled
}

type simTarget struct {
	conn *net.UDPConn
	gen  *motion.Generator
	port int
}

// RunSimulator sends one generated reading per port every interval.
func RunSimulator(ctx context.Context, opts SimOptions) error {
	if len(opts.Ports) == 0 {
		return fmt.Errorf("simulator: no ports")
	}
	if opts.Interval <= 0 {
		return fmt.Errorf("simulator: interval must be positive")
	}

	targets := make([]simTarget, 0, len(opts.Ports))
	defer func() {
		for _, t := range targets {
			t.conn.Close()
		}
	}()
	for i, port := range opts.Ports {
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(opts.Host, strconv.Itoa(port)))
		if err != nil {
			return fmt.Errorf("simulator: failed to resolve %s:%d: %w", opts.Host, port, err)
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			return fmt.Errorf("simulator: failed to create connection to %s: %w", addr, err)
		}
		// Offset each sensor so their bursts do not line up.
		targets = append(targets, simTarget{conn: conn, gen: motion.NewGenerator(opts.Fields, float64(i)*0.7), port: port})
	}
	monitoring.Logf("simulator: sending %d-field readings to %s ports %v every %v", opts.Fields, opts.Host, opts.Ports, opts.Interval)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	start := time.Now()
	var sent, dropped int
	for opts.Count == 0 || sent < opts.Count {
		select {
		case <-ctx.Done():
			monitoring.Logf("simulator: stopped after %d rounds (%d send errors)", sent, dropped)
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			for _, t := range targets {
				line := motion.Format(t.gen.At(elapsed))
				if _, err := t.conn.Write([]byte(line)); err != nil {
					// Nothing listening yields ECONNREFUSED on the next write.
					dropped++
				}
			}
			sent++
		}
	}
	monitoring.Logf("simulator: sent %d rounds (%d send errors)", sent, dropped)
	return nil
}
