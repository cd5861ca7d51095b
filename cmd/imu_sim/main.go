// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/motion_monitor/internal/app"
	"github.com/relabs-tech/motion_monitor/internal/config"
	"github.com/relabs-tech/motion_monitor/internal/imu"
)

func main() {
	host := flag.String("host", "127.0.0.1", "destination host")
	ports := flag.String("ports", "", "comma-separated destination ports (defaults follow --mode)")
	mode := flag.String("mode", config.ModeSingle, "single (6 fields) or multi (3 fields)")
	interval := flag.Duration("interval", 20*time.Millisecond, "time between readings per port")
	flag.Parse()

	defaults, err := config.Defaults(*mode)
	if err != nil {
		log.Fatalf("invalid --mode: %v", err)
	}
	targets := defaults.Ports
	if *ports != "" {
		if targets, err = config.ParsePorts(*ports); err != nil {
			log.Fatalf("invalid --ports: %v", err)
		}
	}
	fields := imu.FieldsAccelGyro
	if *mode == config.ModeMulti {
		fields = imu.FieldsMotion
	}

	log.Println("starting imu simulator (synthetic readings → UDP)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunSimulator(ctx, app.SimOptions{
		Host:     *host,
		Ports:    targets,
		Fields:   fields,
		Interval: *interval,
	}); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
