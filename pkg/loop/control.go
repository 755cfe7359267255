// pkg/loop/control.go
package loop

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/wiggum/pkg/guardrail"
)

// Documented defaults. Both the threshold and the timeout are configurable
// constants, not invariants.
const (
	DefaultBlockedThreshold  = 50
	DefaultValidationTimeout = 5 * time.Minute
	DefaultHistoryCap        = 50
)

// Duration is a time.Duration that unmarshals from yaml strings like "5m".
type Duration time.Duration

// UnmarshalYAML parses a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ControlConfig is the loop-control.yaml configuration.
type ControlConfig struct {
	// BlockedThreshold is the number of consecutive identical failures that
	// marks the loop as blocked.
	BlockedThreshold int `yaml:"blocked_threshold"`
	// ValidationTimeout bounds one external validation run.
	ValidationTimeout Duration `yaml:"validation_timeout"`
	// HistoryCap is the number of history entries retained verbatim in the
	// state document; older entries are archived or dropped.
	HistoryCap int `yaml:"history_cap"`
	// MinInterval spaces out iteration starts. Zero disables pacing.
	MinInterval Duration `yaml:"min_interval"`

	Guardrails []guardrail.Rule `yaml:"guardrails"`
	Override   OverrideConfig   `yaml:"override"`
}

// OverrideConfig provides manual control over a running loop.
type OverrideConfig struct {
	// Paused holds the loop before the next iteration until cleared.
	Paused bool `yaml:"paused"`
	// Stop ends the run between stages, like an external cancellation.
	Stop bool `yaml:"stop"`
	// Reason is recorded with a pause or stop.
	Reason string `yaml:"reason"`
}

// LoadControlConfig loads a ControlConfig from a file path.
func LoadControlConfig(path string) (*ControlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading control config: %w", err)
	}
	return ParseControlConfig(data)
}

// ParseControlConfig parses a ControlConfig from YAML bytes.
func ParseControlConfig(data []byte) (*ControlConfig, error) {
	cfg := &ControlConfig{}
	if len(data) == 0 {
		cfg.Normalize()
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing control config YAML: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize fills defaults for unset fields.
func (c *ControlConfig) Normalize() {
	if c == nil {
		return
	}
	if c.BlockedThreshold <= 0 {
		c.BlockedThreshold = DefaultBlockedThreshold
	}
	if c.ValidationTimeout <= 0 {
		c.ValidationTimeout = Duration(DefaultValidationTimeout)
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = DefaultHistoryCap
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
}

// Validate checks that the ControlConfig is usable.
func (c *ControlConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("control config is nil")
	}
	if c.BlockedThreshold <= 0 {
		return fmt.Errorf("blocked_threshold must be positive")
	}
	if c.ValidationTimeout <= 0 {
		return fmt.Errorf("validation_timeout must be positive")
	}
	if c.HistoryCap <= 0 {
		return fmt.Errorf("history_cap must be positive")
	}
	if _, err := guardrail.NewFilter(c.Guardrails); err != nil {
		return err
	}
	return nil
}
