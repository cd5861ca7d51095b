package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motion_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		cfg, err := Defaults(ModeSingle)
		require.NoError(t, err)
		assert.Equal(t, []int{1233}, cfg.Ports)
		assert.Equal(t, 6, cfg.FieldCount)
		assert.Equal(t, 1000.0, cfg.ScaleDivisor)
		assert.Equal(t, 50.0, cfg.Threshold)
		assert.Equal(t, 100, cfg.Capacity)
		assert.Equal(t, 50*time.Millisecond, cfg.Tick())
		assert.Equal(t, time.Second, cfg.Timeout())
		assert.True(t, cfg.StartupWait)
		assert.Equal(t, SchedulingSequential, cfg.Scheduling)
		require.NoError(t, cfg.Validate())
	})

	t.Run("multi", func(t *testing.T) {
		cfg, err := Defaults(ModeMulti)
		require.NoError(t, err)
		assert.Equal(t, []int{1231, 1232, 1233, 1234}, cfg.Ports)
		assert.Equal(t, 3, cfg.FieldCount)
		assert.Equal(t, 1.0, cfg.ScaleDivisor)
		assert.Equal(t, 5.0, cfg.Threshold)
		assert.Equal(t, 500, cfg.Capacity)
		assert.Equal(t, 20*time.Millisecond, cfg.Tick())
		assert.Equal(t, 10*time.Millisecond, cfg.Timeout())
		assert.False(t, cfg.StartupWait)
		assert.Equal(t, SchedulingWorkers, cfg.Scheduling)
		require.NoError(t, cfg.Validate())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Defaults("triple")
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
# four sensors on a bench
MODE=multi
PORTS = 2231, 2232
THRESHOLD=7.5
CAPACITY=64

MQTT_BROKER=tcp://localhost:1883
MQTT_TOPIC_PREFIX=bench/
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeMulti, cfg.Mode)
	assert.Equal(t, []int{2231, 2232}, cfg.Ports)
	assert.Equal(t, 7.5, cfg.Threshold)
	assert.Equal(t, 64, cfg.Capacity)
	assert.Equal(t, 3, cfg.FieldCount, "multi defaults retained for unset keys")
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "bench", cfg.MQTTTopicPrefix)
}

func TestLoadModeAfterOverrides(t *testing.T) {
	// MODE picks the defaults regardless of where it appears in the file.
	path := writeConfig(t, "CAPACITY=10\nMODE=multi\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Capacity)
	assert.Equal(t, 5.0, cfg.Threshold)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing equals", "PORTS\n", "invalid config line 1"},
		{"unknown key", "COLOR=red\n", "unknown config key"},
		{"bad int", "CAPACITY=lots\n", "invalid CAPACITY"},
		{"bad bool", "STARTUP_WAIT=maybe\n", "invalid STARTUP_WAIT"},
		{"bad mode", "MODE=stereo\n", "unknown mode"},
		{"bad field count", "FIELD_COUNT=4\n", "FIELD_COUNT must be 3 or 6"},
		{"zero capacity", "CAPACITY=0\n", "CAPACITY must be positive"},
		{"duplicate port", "MODE=multi\nPORTS=1231,1231\n", "duplicate port"},
		{"port range", "PORTS=70000\n", "1-65535"},
		{"startup wait needs one port", "PORTS=1231,1232\n", "STARTUP_WAIT requires exactly one port"},
		{"bad scheduling", "SCHEDULING=random\n", "SCHEDULING must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParsePorts(t *testing.T) {
	ports, err := ParsePorts(" 1231,1232 ,,1233")
	require.NoError(t, err)
	assert.Equal(t, []int{1231, 1232, 1233}, ports)

	_, err = ParsePorts(" , ")
	require.Error(t, err)

	_, err = ParsePorts("12a")
	require.Error(t, err)
}

func TestInitGlobalDefaults(t *testing.T) {
	require.NoError(t, InitGlobal(""))
	cfg := Get()
	require.NotNil(t, cfg)
	assert.Equal(t, ModeSingle, cfg.Mode)

	// Subsequent calls are ignored.
	require.NoError(t, InitGlobal("/does/not/exist"))
	assert.Same(t, cfg, Get())
}
