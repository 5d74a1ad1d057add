// Package mapper evaluates tag-mapping configurations against a row's
// custom-tag columns to derive normalized tag values.
package mapper

import (
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cloudcost/internal/errors"
)

// Operator names of the mapping mini-language.
const (
	OpIsOneOf    = "isOneOf"
	OpIsNotOneOf = "isNotOneOf"
	OpAnd        = "and"
	OpOr         = "or"
)

// Term is one node of the mapping expression tree: either a leaf
// predicate (key/operator/values) or an and/or combinator over terms.
type Term struct {
	Key      string   `yaml:"key"`
	Operator string   `yaml:"operator"`
	Values   []string `yaml:"values"`
	Terms    []Term   `yaml:"terms"`
}

// Config is one tag-mapping document. Maps is keyed by the destination
// value to assign when its term evaluates true. Force makes the mapping
// override a pre-existing non-empty value.
type Config struct {
	Force bool            `yaml:"force"`
	Maps  map[string]Term `yaml:"maps"`
}

// Load decodes a tag-mapping document.
func Load(doc []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(doc, &cfg); err != nil {
		return Config{}, errors.Config("unparseable tag mapping", err)
	}
	return cfg, nil
}

// TagMapper is a compiled mapping for one destination tag column.
type TagMapper struct {
	tagIndex int
	force    bool
	dests    []dest
}

type dest struct {
	value string
	term  evaluator
}

type evaluator func(tags []string) bool

// New compiles a mapping config against the batch's tag-key column
// layout. Configuration problems are fatal here, before any data is
// processed.
func New(tagIndex int, cfg Config, keyIndex map[string]int) (*TagMapper, error) {
	m := &TagMapper{tagIndex: tagIndex, force: cfg.Force}

	values := make([]string, 0, len(cfg.Maps))
	for v := range cfg.Maps {
		values = append(values, v)
	}
	sort.Strings(values)

	for _, v := range values {
		ev, err := compile(cfg.Maps[v], keyIndex)
		if err != nil {
			return nil, err
		}
		m.dests = append(m.dests, dest{value: v, term: ev})
	}
	return m, nil
}

func compile(t Term, keyIndex map[string]int) (evaluator, error) {
	switch t.Operator {
	case OpAnd, OpOr:
		if len(t.Terms) == 0 {
			return nil, errors.Configf("tag mapping %s term has no sub-terms", t.Operator)
		}
		subs := make([]evaluator, len(t.Terms))
		for i, sub := range t.Terms {
			ev, err := compile(sub, keyIndex)
			if err != nil {
				return nil, err
			}
			subs[i] = ev
		}
		all := t.Operator == OpAnd
		return func(tags []string) bool {
			for _, sub := range subs {
				if sub(tags) != all {
					return !all
				}
			}
			return all
		}, nil

	case OpIsOneOf, OpIsNotOneOf:
		idx, ok := keyIndex[t.Key]
		if !ok {
			return nil, errors.Configf("tag mapping references unknown tag key %q", t.Key)
		}
		matchers := make([]*regexp.Regexp, 0, len(t.Values))
		literals := make([]string, 0, len(t.Values))
		for _, v := range t.Values {
			// Values are matched case-insensitively, as anchored
			// regexes when they compile and as literals otherwise.
			re, err := regexp.Compile(`(?i)^(?:` + v + `)$`)
			if err != nil {
				literals = append(literals, v)
				continue
			}
			matchers = append(matchers, re)
		}
		negate := t.Operator == OpIsNotOneOf
		return func(tags []string) bool {
			value := ""
			if idx < len(tags) {
				value = tags[idx]
			}
			matched := false
			for _, re := range matchers {
				if re.MatchString(value) {
					matched = true
					break
				}
			}
			if !matched {
				for _, lit := range literals {
					if strings.EqualFold(lit, value) {
						matched = true
						break
					}
				}
			}
			return matched != negate
		}, nil

	default:
		return nil, errors.Configf("tag mapping has unknown operator %q", t.Operator)
	}
}

// TagIndex returns the destination tag column the mapper writes.
func (m *TagMapper) TagIndex() int {
	return m.tagIndex
}

// Apply evaluates the mapping against one row's tag values and returns
// the value for the destination column. A pre-existing non-empty value
// wins unless the mapping is forced.
func (m *TagMapper) Apply(accountID string, tags []string, existing string) string {
	if existing != "" && !m.force {
		return existing
	}
	for _, d := range m.dests {
		if d.term(tags) {
			return d.value
		}
	}
	return existing
}
