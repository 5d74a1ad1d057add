// Package config provides configuration management.
package config

import (
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"cloudcost/internal/errors"
	"cloudcost/internal/logging"
)

// Config is the main processor configuration, loaded from an HCL file.
type Config struct {
	// Month is the billing month to process, formatted as YYYY-MM
	Month string `hcl:"month"`

	// BillingFile is the path to the raw billing export
	BillingFile string `hcl:"billing_file,optional"`

	// ReservationFile is the path to the cached canonical reservation records
	ReservationFile string `hcl:"reservation_file,optional"`

	// SavingsPlanFile is the path to the cached savings plan records
	SavingsPlanFile string `hcl:"savings_plan_file,optional"`

	// RuleFiles are paths to rule configuration documents (YAML)
	RuleFiles []string `hcl:"rule_files,optional"`

	// TagMappingFiles are paths to tag-mapping documents (YAML)
	TagMappingFiles []string `hcl:"tag_mapping_files,optional"`

	// CustomTagKeys are the user-tag column names carried as resource groups
	CustomTagKeys []string `hcl:"custom_tag_keys,optional"`

	// Logging contains logging configuration
	Logging *logging.Config `hcl:"logging,block"`
}

// HourCount returns the number of hours in the configured month.
func (c *Config) HourCount() (int, error) {
	start, err := time.Parse("2006-01", c.Month)
	if err != nil {
		return 0, errors.Config("invalid month, expected YYYY-MM", err)
	}
	end := start.AddDate(0, 1, 0)
	return int(end.Sub(start) / time.Hour), nil
}

// MonthStart returns the UTC start of the configured month.
func (c *Config) MonthStart() (time.Time, error) {
	start, err := time.Parse("2006-01", c.Month)
	if err != nil {
		return time.Time{}, errors.Config("invalid month, expected YYYY-MM", err)
	}
	return start.UTC(), nil
}

var (
	mu      sync.RWMutex
	current = Default()
)

// Default returns the default configuration
func Default() *Config {
	cfg := logging.DefaultConfig()
	return &Config{
		Month:   time.Now().UTC().Format("2006-01"),
		Logging: &cfg,
	}
}

// Load reads configuration from an HCL file
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, errors.Config("failed to load config file", err)
	}
	if cfg.Logging == nil {
		lc := logging.DefaultConfig()
		cfg.Logging = &lc
	}
	return cfg, nil
}

// Get returns the current configuration
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set replaces the current configuration
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}
