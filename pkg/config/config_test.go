package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "COM3", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 750, cfg.Session.TargetSamples)
	assert.Equal(t, time.Duration(0), cfg.Session.Timeout)
	assert.Equal(t, float64(250), cfg.Filter.SampleRate)
	assert.Equal(t, float64(1), cfg.Filter.LowCut)
	assert.Equal(t, float64(100), cfg.Filter.HighCut)
	assert.Equal(t, 4, cfg.Filter.Order)
	assert.Equal(t, []float64{50, 60}, cfg.Filter.Notches)
	assert.Equal(t, float64(30), cfg.Filter.QualityFactor)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, 750, cfg.Session.TargetSamples)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
serial:
  port: "/dev/ttyACM0"
  baud_rate: 230400

session:
  target_samples: 500
  timeout: 10s

filter:
  sample_rate: 500
  low_cut: 20
  high_cut: 200
  order: 2
  notches: [50]
  quality_factor: 25

storage:
  backend: csv
  csv_dir: /tmp/emg
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 230400, cfg.Serial.BaudRate)
	assert.Equal(t, 500, cfg.Session.TargetSamples)
	assert.Equal(t, 10*time.Second, cfg.Session.Timeout)
	assert.Equal(t, float64(500), cfg.Filter.SampleRate)
	assert.Equal(t, float64(20), cfg.Filter.LowCut)
	assert.Equal(t, float64(200), cfg.Filter.HighCut)
	assert.Equal(t, 2, cfg.Filter.Order)
	assert.Equal(t, []float64{50}, cfg.Filter.Notches)
	assert.Equal(t, float64(25), cfg.Filter.QualityFactor)
	assert.Equal(t, "csv", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/emg", cfg.Storage.CSVDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invalid: yaml: content: ["), 0o644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  port: \"/dev/ttyUSB0\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 750, cfg.Session.TargetSamples)
	assert.Equal(t, []float64{50, 60}, cfg.Filter.Notches)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoad_NonPositiveMockInterval(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative", "mock:\n  sample_rate: -4ms\n"},
		{"zero", "mock:\n  sample_rate: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 4*time.Millisecond, cfg.Mock.SampleRate)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLICKHOUSE_PASS", "s3cret")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("EMGCAP_SERIAL_PORT", "/dev/ttyACM1")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Storage.ClickHouse.Password)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Session.TargetSamples = 1000
	cfg.Storage.ClickHouse.Password = "never-written"

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, 1000, loaded.Session.TargetSamples)
}
