// Package ccpconfig provides YAML configuration loading and validation for
// the control plane core: the shared socket/logging settings every
// algorithm needs plus an opaque algorithm-specific payload it can unmarshal
// on its own terms (§7's Config product type).
package ccpconfig

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for a CCP process.
type Config struct {
	// SocketPath is the filesystem path of the SOCK_SEQPACKET Unix domain
	// socket connecting this process to the datapath. Required.
	SocketPath string `yaml:"socket_path"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Algorithm selects which registered algorithm factory the dispatch
	// loop constructs for each new flow (e.g. "nimbus-lite"). Required.
	Algorithm string `yaml:"algorithm"`

	// AlgorithmConfig is the algorithm-specific configuration payload,
	// held as raw YAML and unmarshaled by the selected algorithm's own
	// config type (§7: Config is "opaque to the core beyond the fields it
	// needs"). Optional; algorithms with no tunables may leave it empty.
	AlgorithmConfig yaml.Node `yaml:"algorithm_config"`

	// DialTimeoutSeconds bounds each connect attempt to the datapath
	// socket. Defaults to 5 when omitted or zero.
	DialTimeoutSeconds int `yaml:"dial_timeout_seconds"`

	// MaxDialAttempts bounds the number of connect retries. Defaults to 10
	// when omitted or zero.
	MaxDialAttempts int `yaml:"max_dial_attempts"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields. It returns a single
// aggregated error describing every validation failure found, not just the
// first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ccpconfig: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ccpconfig: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("ccpconfig: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DialTimeoutSeconds == 0 {
		cfg.DialTimeoutSeconds = 5
	}
	if cfg.MaxDialAttempts == 0 {
		cfg.MaxDialAttempts = 10
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.SocketPath == "" {
		errs = append(errs, errors.New("socket_path is required"))
	}
	if cfg.Algorithm == "" {
		errs = append(errs, errors.New("algorithm is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.DialTimeoutSeconds < 0 {
		errs = append(errs, errors.New("dial_timeout_seconds must not be negative"))
	}
	if cfg.MaxDialAttempts < 0 {
		errs = append(errs, errors.New("max_dial_attempts must not be negative"))
	}

	return errors.Join(errs...)
}

// DecodeAlgorithmConfig unmarshals the raw algorithm_config payload into
// out, which must be a pointer. Algorithms with no tunables can ignore this.
func (c *Config) DecodeAlgorithmConfig(out interface{}) error {
	if c.AlgorithmConfig.IsZero() {
		return nil
	}
	if err := c.AlgorithmConfig.Decode(out); err != nil {
		return fmt.Errorf("ccpconfig: decoding algorithm_config: %w", err)
	}
	return nil
}
