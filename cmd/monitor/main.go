// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/motion_monitor/internal/app"
	"github.com/relabs-tech/motion_monitor/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (defaults apply when empty)")
	mode := flag.String("mode", "", "single or multi; overrides MODE")
	port := flag.Int("port", 0, "UDP port in single-sensor mode; overrides PORTS")
	httpPort := flag.Int("http", -1, "web server port, 0 disables; overrides WEB_SERVER_PORT")
	flag.Parse()

	log.Println("starting motion-monitor (UDP → pipeline → web/MQTT)")

	var (
		cfg *config.Config
		err error
	)
	switch {
	case *configPath != "":
		cfg, err = config.Load(*configPath)
	case *mode != "":
		cfg, err = config.Defaults(*mode)
	default:
		cfg, err = config.Defaults(config.ModeSingle)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *mode != "" && *mode != cfg.Mode {
		log.Fatalf("--mode %s conflicts with MODE=%s in %s", *mode, cfg.Mode, *configPath)
	}
	if *port != 0 {
		if cfg.Mode != config.ModeSingle {
			log.Fatalf("--port applies to single-sensor mode only")
		}
		cfg.Ports = []int{*port}
	}
	if *httpPort >= 0 {
		cfg.WebServerPort = *httpPort
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("mode=%s ports=%v capacity=%d threshold=%g tick=%v", cfg.Mode, cfg.Ports, cfg.Capacity, cfg.Threshold, cfg.Tick())

	if err := app.RunMonitor(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
