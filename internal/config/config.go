// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Derivation modes.
const (
	ModeSingle = "single" // one sensor, 6-field frames, continuous magnitude
	ModeMulti  = "multi"  // several sensors, 3-field frames, binary state
)

// Tick scheduling strategies.
const (
	SchedulingSequential = "sequential" // one driver receives on every socket per tick
	SchedulingWorkers    = "workers"    // one worker per sensor, each on its own ticker
)

// Config holds all application configuration values.
type Config struct {
	Mode string

	// Transport
	BindAddress string
	Ports       []int

	// Decoding / derivation
	FieldCount   int     // 3 (vx,vy,vz) or 6 (ax,ay,az,gx,gy,gz)
	ScaleDivisor float64 // applied to each consumed component before the norm
	Threshold    float64 // strict greater-than boundary
	Capacity     int     // history length per sensor

	// Timing (milliseconds)
	TickInterval        int
	ReceiveTimeout      int
	StartupPollInterval int
	StatsLogInterval    int

	Scheduling string

	// Startup wait (single sensor only)
	StartupWait        bool
	StartupMaxAttempts int // 0 waits until cancelled

	// Offline replay instead of live sockets
	ReplayPCAP string

	// Web Server
	WebServerPort   int // 0 disables
	WebPushInterval int // milliseconds

	// MQTT
	MQTTBroker          string // empty disables the publisher
	MQTTClientIDMonitor string
	MQTTClientIDConsole string
	MQTTTopicPrefix     string
	MQTTPublishInterval int // milliseconds

	// Display
	DisplayEnabled        bool
	DisplayI2CBus         string // "" selects the first available bus
	DisplayUpdateInterval int    // milliseconds
}

// Package-level singleton used by the auxiliary tools (console, simulator).
// The monitor itself passes its *Config explicitly.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns the documented defaults for mode.
func Defaults(mode string) (*Config, error) {
	cfg := &Config{
		Mode:                  mode,
		BindAddress:           "0.0.0.0",
		StartupPollInterval:   2000,
		StartupMaxAttempts:    150,
		StatsLogInterval:      10000,
		WebServerPort:         8080,
		WebPushInterval:       100,
		MQTTClientIDMonitor:   "motion-monitor",
		MQTTClientIDConsole:   "motion-console",
		MQTTTopicPrefix:       "motion",
		MQTTPublishInterval:   100,
		DisplayUpdateInterval: 200,
	}

	switch mode {
	case ModeSingle:
		cfg.Ports = []int{1233}
		cfg.FieldCount = 6
		cfg.ScaleDivisor = 1000
		cfg.Threshold = 50
		cfg.Capacity = 100
		cfg.TickInterval = 50
		cfg.ReceiveTimeout = 1000
		cfg.Scheduling = SchedulingSequential
		cfg.StartupWait = true
	case ModeMulti:
		cfg.Ports = []int{1231, 1232, 1233, 1234}
		cfg.FieldCount = 3
		cfg.ScaleDivisor = 1
		cfg.Threshold = 5
		cfg.Capacity = 500
		cfg.TickInterval = 20
		cfg.ReceiveTimeout = 10
		cfg.Scheduling = SchedulingWorkers
		cfg.StartupWait = false
	default:
		return nil, fmt.Errorf("unknown mode %q (want %q or %q)", mode, ModeSingle, ModeMulti)
	}

	return cfg, nil
}

// Load reads the configuration file and returns a Config struct.
// MODE, when present, selects the defaults the remaining keys override;
// otherwise single-sensor defaults apply.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	type entry struct {
		line       int
		key, value string
	}
	var entries []entry
	mode := ModeSingle

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "MODE" {
			mode = value
			continue
		}
		entries = append(entries, entry{line: lineNum, key: key, value: value})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Defaults(mode)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := cfg.setValue(e.key, e.value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", e.line, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Transport
	case "BIND_ADDRESS":
		c.BindAddress = value
	case "PORTS":
		ports, err := ParsePorts(value)
		if err != nil {
			return fmt.Errorf("invalid PORTS %q: %w", value, err)
		}
		c.Ports = ports

	// Decoding / derivation
	case "FIELD_COUNT":
		return setInt(&c.FieldCount, key, value)
	case "SCALE_DIVISOR":
		return setFloat(&c.ScaleDivisor, key, value)
	case "THRESHOLD":
		return setFloat(&c.Threshold, key, value)
	case "CAPACITY":
		return setInt(&c.Capacity, key, value)

	// Timing
	case "TICK_INTERVAL":
		return setInt(&c.TickInterval, key, value)
	case "RECEIVE_TIMEOUT":
		return setInt(&c.ReceiveTimeout, key, value)
	case "STARTUP_POLL_INTERVAL":
		return setInt(&c.StartupPollInterval, key, value)
	case "STATS_LOG_INTERVAL":
		return setInt(&c.StatsLogInterval, key, value)
	case "SCHEDULING":
		c.Scheduling = value

	// Startup
	case "STARTUP_WAIT":
		return setBool(&c.StartupWait, key, value)
	case "STARTUP_MAX_ATTEMPTS":
		return setInt(&c.StartupMaxAttempts, key, value)

	case "REPLAY_PCAP":
		c.ReplayPCAP = value

	// Web Server
	case "WEB_SERVER_PORT":
		return setInt(&c.WebServerPort, key, value)
	case "WEB_PUSH_INTERVAL":
		return setInt(&c.WebPushInterval, key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = strings.TrimSuffix(value, "/")
	case "MQTT_PUBLISH_INTERVAL":
		return setInt(&c.MQTTPublishInterval, key, value)

	// Display
	case "DISPLAY_ENABLED":
		return setBool(&c.DisplayEnabled, key, value)
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		return setInt(&c.DisplayUpdateInterval, key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setInt(dst *int, key, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, key, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func setBool(dst *bool, key, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

// ParsePorts parses a comma-separated UDP port list such as "1231,1232".
func ParsePorts(value string) ([]int, error) {
	var ports []int
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports listed")
	}
	return ports, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Mode != ModeSingle && c.Mode != ModeMulti {
		return fmt.Errorf("MODE must be %q or %q, got %q", ModeSingle, ModeMulti, c.Mode)
	}
	if len(c.Ports) == 0 {
		return fmt.Errorf("PORTS is required")
	}
	seen := make(map[int]bool, len(c.Ports))
	for _, p := range c.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("PORTS entries must be 1-65535, got %d", p)
		}
		if seen[p] {
			return fmt.Errorf("PORTS contains duplicate port %d", p)
		}
		seen[p] = true
	}
	if c.FieldCount != 3 && c.FieldCount != 6 {
		return fmt.Errorf("FIELD_COUNT must be 3 or 6, got %d", c.FieldCount)
	}
	if c.ScaleDivisor <= 0 {
		return fmt.Errorf("SCALE_DIVISOR must be positive, got %g", c.ScaleDivisor)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("THRESHOLD must not be negative, got %g", c.Threshold)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("CAPACITY must be positive, got %d", c.Capacity)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %d", c.TickInterval)
	}
	if c.ReceiveTimeout <= 0 {
		return fmt.Errorf("RECEIVE_TIMEOUT must be positive, got %d", c.ReceiveTimeout)
	}
	if c.Scheduling != SchedulingSequential && c.Scheduling != SchedulingWorkers {
		return fmt.Errorf("SCHEDULING must be %q or %q, got %q", SchedulingSequential, SchedulingWorkers, c.Scheduling)
	}
	if c.StartupWait {
		if len(c.Ports) != 1 {
			return fmt.Errorf("STARTUP_WAIT requires exactly one port, got %d", len(c.Ports))
		}
		if c.StartupPollInterval < 0 || c.StartupMaxAttempts < 0 {
			return fmt.Errorf("STARTUP_POLL_INTERVAL and STARTUP_MAX_ATTEMPTS must not be negative")
		}
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
	}
	if c.WebServerPort != 0 && c.WebPushInterval <= 0 {
		return fmt.Errorf("WEB_PUSH_INTERVAL must be positive, got %d", c.WebPushInterval)
	}
	if c.MQTTBroker != "" && c.MQTTPublishInterval <= 0 {
		return fmt.Errorf("MQTT_PUBLISH_INTERVAL must be positive, got %d", c.MQTTPublishInterval)
	}
	if c.DisplayEnabled && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	return nil
}

// Tick returns TickInterval as a duration.
func (c *Config) Tick() time.Duration { return ms(c.TickInterval) }

// Timeout returns ReceiveTimeout as a duration.
func (c *Config) Timeout() time.Duration { return ms(c.ReceiveTimeout) }

// PollInterval returns StartupPollInterval as a duration.
func (c *Config) PollInterval() time.Duration { return ms(c.StartupPollInterval) }

// StatsInterval returns StatsLogInterval as a duration.
func (c *Config) StatsInterval() time.Duration { return ms(c.StatsLogInterval) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// InitGlobal initializes the global configuration from file. An empty path
// installs single-sensor defaults. Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig, err = Defaults(ModeSingle)
			return
		}
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
