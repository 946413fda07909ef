package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile reads scoring weights from a YAML file, starting from the
// defaults so a partial file only overrides what it names. An empty path
// returns the defaults unchanged.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scoring defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse scoring defaults: %w", err)
	}

	if cfg.AvgDealCeiling <= 0 || cfg.ResponseCeilingMinutes <= 0 {
		return cfg, fmt.Errorf("scoring defaults: ceilings must be positive")
	}
	return cfg, nil
}
