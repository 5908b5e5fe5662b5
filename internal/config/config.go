// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// NetworkingMode selects whether interface creation is corroborated by
// readiness events from the network stack.
type NetworkingMode string

const (
	// ModeEventConfirmed waits for a network-vif-plugged event per created
	// interface.
	ModeEventConfirmed NetworkingMode = "event-confirmed"
	// ModeUnconfirmed plugs interfaces without external confirmation.
	ModeUnconfirmed NetworkingMode = "unconfirmed"
)

// Config holds the provider configuration.
type Config struct {
	// PluggingIsFatal controls whether a failed or timed-out readiness
	// event aborts the plug pass.
	PluggingIsFatal *bool `yaml:"plugging_is_fatal,omitempty"`

	// PluggingTimeout is the deadline for readiness corroboration.
	PluggingTimeout Duration `yaml:"plugging_timeout,omitempty"`

	NetworkingMode NetworkingMode `yaml:"networking_mode,omitempty"`
}

// Duration is a time.Duration that unmarshals from YAML duration strings
// such as "300s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadFromFile loads the provider configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.PluggingIsFatal == nil {
		c.PluggingIsFatal = ptr.To(true)
	}
	if c.PluggingTimeout == 0 {
		c.PluggingTimeout = Duration(300 * time.Second)
	}
	if c.NetworkingMode == "" {
		c.NetworkingMode = ModeEventConfirmed
	}
}

func (c *Config) Validate() error {
	switch c.NetworkingMode {
	case ModeEventConfirmed, ModeUnconfirmed:
	default:
		return fmt.Errorf("invalid networking_mode: %s (must be one of: %s, %s)",
			c.NetworkingMode, ModeEventConfirmed, ModeUnconfirmed)
	}

	if c.PluggingTimeout < 0 {
		return fmt.Errorf("plugging_timeout must not be negative")
	}

	return nil
}
