package gates

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LoadProfile reads a gate profile from a YAML file. Keys absent from the
// file keep their default values.
func LoadProfile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read gate profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse gate profile YAML: %w", err)
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	return cfg, nil
}

// SaveProfile writes the profile as YAML.
func SaveProfile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal gate profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write gate profile: %w", err)
	}
	return nil
}

// Validate reports every consistency problem in the profile rather than
// stopping at the first.
func (c Config) Validate() []string {
	var issues []string

	if c.MinRR <= 0 {
		issues = append(issues, fmt.Sprintf("min_rr %.2f must be positive", c.MinRR))
	}
	if c.EntryDistanceMinPct < 0 {
		issues = append(issues, fmt.Sprintf("entry_distance_min_pct %.2f must be non-negative", c.EntryDistanceMinPct))
	}
	if c.EntryDistanceMaxPct <= c.EntryDistanceMinPct {
		issues = append(issues, fmt.Sprintf("entry distance bounds [%.2f, %.2f] are not ordered", c.EntryDistanceMinPct, c.EntryDistanceMaxPct))
	}
	if c.FreshnessHalfLifeMin <= 0 {
		issues = append(issues, fmt.Sprintf("freshness_half_life_min %.1f must be positive", c.FreshnessHalfLifeMin))
	}
	if c.MaxSetupAgeMin <= 0 {
		issues = append(issues, fmt.Sprintf("max_setup_age_min %.1f must be positive", c.MaxSetupAgeMin))
	}
	if c.MinVolumeUSD < 0 {
		issues = append(issues, fmt.Sprintf("min_volume_usd %.0f must be non-negative", c.MinVolumeUSD))
	}
	if c.MaxSpreadBps <= 0 {
		issues = append(issues, fmt.Sprintf("max_spread_bps %.1f must be positive", c.MaxSpreadBps))
	}
	if c.MinConfluence < 0 || c.MinConfluence > 4 {
		issues = append(issues, fmt.Sprintf("min_confluence %d outside [0,4]", c.MinConfluence))
	}
	if c.MinScore < 0 || c.MinScore > 100 {
		issues = append(issues, fmt.Sprintf("min_score %.1f outside [0,100]", c.MinScore))
	}
	if c.MaxSetups < 1 {
		issues = append(issues, fmt.Sprintf("max_setups %d must be at least 1", c.MaxSetups))
	}
	for name, weight := range c.Weights {
		if weight < 0 {
			issues = append(issues, fmt.Sprintf("weight %s is negative (%.1f)", name, weight))
		}
	}
	return issues
}
