// Package config loads the Data Hub's administrative configuration: the
// per-client resource cap, the default Observation buffer limits, and
// default units, all of which can be overridden per-resource by the tree
// itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the administrative configuration loaded at startup.
type Config struct {
	MaxResourcesPerClient         int     `yaml:"maxResourcesPerClient"`
	ObservationBufferMaxCount     int     `yaml:"observationBufferMaxCount"`
	ObservationBufferMaxWindowSec float64 `yaml:"observationBufferMaxWindowSec"`
	DefaultUnits                  string  `yaml:"defaultUnits"`
	Metrics                       MetricsConfig `yaml:"metrics"`
	NATS                          NATSConfig    `yaml:"nats"`
}

// MetricsConfig configures the /metrics and /health HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// NATSConfig configures the optional persistence collaborator's JetStream
// connection. Empty URL disables persistence entirely.
type NATSConfig struct {
	URL        string `yaml:"url"`
	KVBucket   string `yaml:"kvBucket"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		MaxResourcesPerClient:         0, // unbounded
		ObservationBufferMaxCount:     1000,
		ObservationBufferMaxWindowSec: 0, // no window cap, size cap only
		DefaultUnits:                  "",
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Load reads and parses a YAML configuration file at path, filling in
// Default() for any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would make the hub unusable.
func (c Config) Validate() error {
	if c.MaxResourcesPerClient < 0 {
		return fmt.Errorf("maxResourcesPerClient must be >= 0, got %d", c.MaxResourcesPerClient)
	}
	if c.ObservationBufferMaxCount < 0 {
		return fmt.Errorf("observationBufferMaxCount must be >= 0, got %d", c.ObservationBufferMaxCount)
	}
	if c.ObservationBufferMaxWindowSec < 0 {
		return fmt.Errorf("observationBufferMaxWindowSec must be >= 0, got %f", c.ObservationBufferMaxWindowSec)
	}
	return nil
}
