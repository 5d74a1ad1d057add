// Package rules implements the allocation rule engine: filtered and
// grouped queries over the data cube, arithmetic value expressions over
// named operands, and templated result groups written back into the
// cube.
package rules

import (
	"time"

	"gopkg.in/yaml.v3"

	"cloudcost/internal/errors"
)

// QueryConfig is the declarative form of one cube query.
type QueryConfig struct {
	Type           string              `yaml:"type"`
	Filter         map[string][]string `yaml:"filter,omitempty"`
	Patterns       map[string]string   `yaml:"patterns,omitempty"`
	GroupBy        []string            `yaml:"groupBy,omitempty"`
	GroupByTags    []string            `yaml:"groupByTags,omitempty"`
	Monthly        bool                `yaml:"monthly,omitempty"`
	SingleTagGroup bool                `yaml:"singleTagGroup,omitempty"`
}

// ResultConfig is the declarative form of one rule output.
type ResultConfig struct {
	Type   string            `yaml:"type"`
	Out    map[string]string `yaml:"out,omitempty"`
	Value  string            `yaml:"value"`
	Single bool              `yaml:"single,omitempty"`
}

// RuleConfig is one allocation rule as loaded from configuration.
// Start and end bound the months the rule applies to, inclusive, in
// "2006-01" form; either may be empty for an open bound.
type RuleConfig struct {
	Name     string                 `yaml:"name"`
	Start    string                 `yaml:"start,omitempty"`
	End      string                 `yaml:"end,omitempty"`
	Operands map[string]QueryConfig `yaml:"operands,omitempty"`
	In       QueryConfig            `yaml:"in"`
	Results  []ResultConfig         `yaml:"results"`
}

// ParseConfig unmarshals one rule document.
func ParseConfig(data []byte) (RuleConfig, error) {
	var cfg RuleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RuleConfig{}, errors.Config("unparseable rule document", err)
	}
	if cfg.Name == "" {
		return RuleConfig{}, errors.Configf("rule document has no name")
	}
	return cfg, nil
}

const monthLayout = "2006-01"

func parseMonth(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, errors.Configf("bad month bound %q, want YYYY-MM", s)
	}
	return t, nil
}
