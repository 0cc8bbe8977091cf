package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Session SessionConfig `yaml:"session"`
	Filter  FilterConfig  `yaml:"filter"`
	Storage StorageConfig `yaml:"storage"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Log     LogConfig     `yaml:"log"`
	Mock    MockConfig    `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port       string        `yaml:"port"`
	BaudRate   int           `yaml:"baud_rate"`
	SettleTime time.Duration `yaml:"settle_time"` // Wait after opening the port before reading
}

// SessionConfig contains acquisition session parameters.
type SessionConfig struct {
	TargetSamples int           `yaml:"target_samples"`
	Timeout       time.Duration `yaml:"timeout"` // 0 = wait indefinitely for valid frames
}

// FilterConfig contains the fixed filter chain parameters.
type FilterConfig struct {
	SampleRate    float64   `yaml:"sample_rate"`
	LowCut        float64   `yaml:"low_cut"`
	HighCut       float64   `yaml:"high_cut"`
	Order         int       `yaml:"order"`
	Notches       []float64 `yaml:"notches"`
	QualityFactor float64   `yaml:"quality_factor"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend    string           `yaml:"backend"` // sqlite | clickhouse | csv
	SQLitePath string           `yaml:"sqlite_path"`
	CSVDir     string           `yaml:"csv_dir"`
	EDFDir     string           `yaml:"edf_dir"` // Empty disables EDF archiving
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig contains ClickHouse connection parameters.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"-"` // CLICKHOUSE_PASS only
}

// MQTTConfig contains session notification parameters.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"-"` // MQTT_PASSWORD only
	Topic    string `yaml:"topic"`
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // Empty disables the rotating file log
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	JSON       bool   `yaml:"json"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	Amplitude   float64       `yaml:"amplitude"`    // Signal amplitude (ADC counts)
	Offset      float64       `yaml:"offset"`       // DC offset (ADC counts)
	MainsLevel  float64       `yaml:"mains_level"`  // 50 Hz interference amplitude
	NoiseLevel  float64       `yaml:"noise_level"`  // Broadband noise amplitude
	GarbleEvery int           `yaml:"garble_every"` // Emit a malformed line every N lines (0 = never)
	SampleRate  time.Duration `yaml:"sample_rate"`  // Interval between lines
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:       "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			BaudRate:   115200,
			SettleTime: 2 * time.Second,
		},
		Session: SessionConfig{
			TargetSamples: 750, // 3 s at 250 Hz
			Timeout:       0,
		},
		Filter: FilterConfig{
			SampleRate:    250,
			LowCut:        1,
			HighCut:       100,
			Order:         4,
			Notches:       []float64{50, 60},
			QualityFactor: 30,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "emgcap.db",
			CSVDir:     "data",
			EDFDir:     "",
			ClickHouse: ClickHouseConfig{
				Addr:     "localhost:9000",
				Database: "emgcap",
				Username: "default",
			},
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			ClientID: "emgcap",
			Topic:    "emgcap/session/{operator_id}",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Mock: MockConfig{
			Amplitude:   200,
			Offset:      512,
			MainsLevel:  40,
			NoiseLevel:  5,
			GarbleEvery: 0,
			SampleRate:  4 * time.Millisecond, // 250 Hz
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values. Secrets are then taken from
// the environment (and an optional .env file).
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ensureDefaults()

	// Missing .env is fine
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Session.TargetSamples <= 0 {
		c.Session.TargetSamples = def.Session.TargetSamples
	}

	if c.Filter.SampleRate == 0 {
		c.Filter.SampleRate = def.Filter.SampleRate
	}
	if c.Filter.LowCut == 0 {
		c.Filter.LowCut = def.Filter.LowCut
	}
	if c.Filter.HighCut == 0 {
		c.Filter.HighCut = def.Filter.HighCut
	}
	if c.Filter.Order == 0 {
		c.Filter.Order = def.Filter.Order
	}
	if len(c.Filter.Notches) == 0 {
		c.Filter.Notches = def.Filter.Notches
	}
	if c.Filter.QualityFactor == 0 {
		c.Filter.QualityFactor = def.Filter.QualityFactor
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = def.Storage.SQLitePath
	}
	if c.Storage.CSVDir == "" {
		c.Storage.CSVDir = def.Storage.CSVDir
	}
	if c.Storage.ClickHouse.Addr == "" {
		c.Storage.ClickHouse.Addr = def.Storage.ClickHouse.Addr
	}
	if c.Storage.ClickHouse.Database == "" {
		c.Storage.ClickHouse.Database = def.Storage.ClickHouse.Database
	}
	if c.Storage.ClickHouse.Username == "" {
		c.Storage.ClickHouse.Username = def.Storage.ClickHouse.Username
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = def.Log.MaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = def.Log.MaxAgeDays
	}

	if c.Mock.SampleRate <= 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.Amplitude == 0 {
		c.Mock.Amplitude = def.Mock.Amplitude
	}
}

// applyEnv overrides connection settings and secrets from environment variables.
func (c *Config) applyEnv() {
	c.Serial.Port = getEnv("EMGCAP_SERIAL_PORT", c.Serial.Port)
	c.Storage.ClickHouse.Addr = getEnv("CLICKHOUSE_ADDR", c.Storage.ClickHouse.Addr)
	c.Storage.ClickHouse.Database = getEnv("CLICKHOUSE_DB", c.Storage.ClickHouse.Database)
	c.Storage.ClickHouse.Username = getEnv("CLICKHOUSE_USER", c.Storage.ClickHouse.Username)
	c.Storage.ClickHouse.Password = getEnv("CLICKHOUSE_PASS", c.Storage.ClickHouse.Password)
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.Enabled = getEnvBool("MQTT_ENABLED", c.MQTT.Enabled)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}
