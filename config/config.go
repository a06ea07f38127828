// Package config loads the workflow routing table: which abilities run in
// which stage, which provider fulfils each of them, per-provider dispatch
// policy, and the escalation rule. The file is consumed once at startup;
// the resulting Config is treated as read-only input by the runtime.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Comparison operators for the escalation threshold.
const (
	CompareLess      = "lt"
	CompareLessEqual = "le"
)

// Backoff strategy names.
const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Duration wraps time.Duration so YAML values can be written as "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
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

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BackoffConfig selects the retry delay strategy for one provider.
type BackoffConfig struct {
	Strategy string   `yaml:"strategy"`
	Interval Duration `yaml:"interval"`
	Max      Duration `yaml:"max,omitempty"`
}

// ProviderConfig declares how to reach one capability provider and the
// dispatch policy applied to its calls.
type ProviderConfig struct {
	// Endpoint is either "inprocess" or the provider's HTTP base URL.
	Endpoint    string        `yaml:"endpoint"`
	Timeout     Duration      `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     BackoffConfig `yaml:"backoff"`
	// DBPath is the SQLite path for the in-process ATLAS provider. Empty
	// means detached (canned responses).
	DBPath string `yaml:"db_path,omitempty"`
}

// AbilityConfig binds one ability to a provider with its field contract.
type AbilityConfig struct {
	Name     string         `yaml:"name"`
	Provider string         `yaml:"provider"`
	Inputs   []string       `yaml:"inputs,omitempty"`
	Outputs  []string       `yaml:"outputs,omitempty"`
	Payload  map[string]any `yaml:"payload,omitempty"`
	// Fallback holds the mock output fields substituted after transport
	// retries are exhausted.
	Fallback map[string]any `yaml:"fallback,omitempty"`
}

// StageConfig declares one stage with its ordered ability bindings.
type StageConfig struct {
	Name      string          `yaml:"name"`
	Mode      string          `yaml:"mode"`
	Abilities []AbilityConfig `yaml:"abilities"`
}

// EscalationConfig is the DECIDE branch policy.
type EscalationConfig struct {
	Threshold  int    `yaml:"threshold"`
	Comparison string `yaml:"comparison"`
}

// Config is the full routing table.
type Config struct {
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Escalation EscalationConfig          `yaml:"escalation"`
	Stages     []StageConfig             `yaml:"stages"`
	// Schema declares coarse kinds for selected state fields; writes to a
	// declared field are normalized and checked against its kind.
	Schema map[string]string `yaml:"schema,omitempty"`
}

// Load reads and validates a YAML config file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Escalation.Threshold == 0 {
		c.Escalation.Threshold = 90
	}
	if c.Escalation.Comparison == "" {
		c.Escalation.Comparison = CompareLess
	}
	for name, p := range c.Providers {
		if p.Timeout == 0 {
			p.Timeout = Duration(5 * time.Second)
		}
		if p.MaxAttempts == 0 {
			p.MaxAttempts = 3
		}
		if p.Backoff.Strategy == "" {
			p.Backoff.Strategy = BackoffConstant
		}
		if p.Backoff.Interval == 0 {
			p.Backoff.Interval = Duration(200 * time.Millisecond)
		}
		c.Providers[name] = p
	}
}

// Validate checks the structural invariants the config alone can guarantee.
// Cross-checks against the stage graph (unknown providers, output overlap)
// happen at registry-build time.
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: no providers declared")
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("config: no stages declared")
	}
	if c.Escalation.Threshold < 0 || c.Escalation.Threshold > 100 {
		return fmt.Errorf("config: escalation threshold %d outside [0,100]", c.Escalation.Threshold)
	}
	switch c.Escalation.Comparison {
	case CompareLess, CompareLessEqual:
	default:
		return fmt.Errorf("config: unknown escalation comparison %q", c.Escalation.Comparison)
	}
	for name, p := range c.Providers {
		if p.Endpoint == "" {
			return fmt.Errorf("config: provider %s has no endpoint", name)
		}
		if p.MaxAttempts < 1 {
			return fmt.Errorf("config: provider %s max_attempts must be >= 1", name)
		}
		switch p.Backoff.Strategy {
		case BackoffConstant, BackoffExponential:
		default:
			return fmt.Errorf("config: provider %s has unknown backoff strategy %q", name, p.Backoff.Strategy)
		}
	}
	for _, st := range c.Stages {
		if st.Name == "" {
			return fmt.Errorf("config: stage with empty name")
		}
		for _, ab := range st.Abilities {
			if ab.Name == "" {
				return fmt.Errorf("config: stage %s has an ability with no name", st.Name)
			}
			if ab.Provider == "" {
				return fmt.Errorf("config: ability %s in stage %s has no provider", ab.Name, st.Name)
			}
		}
	}
	return nil
}
