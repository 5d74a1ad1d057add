package rules

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"cloudcost/core/cube"
	"cloudcost/core/tag"
	"cloudcost/internal/errors"
	"cloudcost/internal/logging"
)

// Query is a compiled cube query. It filters tag groups dimension by
// dimension, projects survivors onto an aggregation key, and sums their
// usage and cost series per key. Compiled queries are immutable and
// safe for concurrent evaluation.
type Query struct {
	Fact    cube.FactType
	Monthly bool
	Single  bool

	filters  map[tag.Dimension]*valueSet
	patterns map[tag.Dimension]*capturePattern
	groupBy  map[tag.Dimension]bool

	// singleGroup is the synthesized point-lookup group for the
	// singleTagGroup fast path.
	singleGroup tag.Group

	// def is the canonical form of the query's definition, the cache
	// key for operand results shared between rules.
	def string
}

// Key identifies one aggregation bucket: the projected tag group plus
// the canonical form of any regex-captured values, so that groups which
// project identically but capture differently stay distinct.
type Key struct {
	Group    tag.Group
	Captures string
}

// Series is the accumulated per-slot usage and cost of one aggregation
// key. Monthly queries have one slot; hourly queries have one per hour.
type Series struct {
	Usage    []float64
	Cost     []float64
	Captures map[string]string
}

// Values returns the slot array for a fact type.
func (s *Series) Values(f cube.FactType) []float64 {
	if f == cube.Cost {
		return s.Cost
	}
	return s.Usage
}

// valueSet matches one dimension against a set of allowed values. A
// value matches if it equals a configured literal or fully matches a
// configured value interpreted as a regular expression.
type valueSet struct {
	literals map[tag.Tag]struct{}
	regexps  []*regexp.Regexp
}

func newValueSet(values []string) *valueSet {
	s := &valueSet{literals: make(map[tag.Tag]struct{}, len(values))}
	for _, v := range values {
		s.literals[tag.Tag(v)] = struct{}{}
		re, err := regexp.Compile("^(?:" + v + ")$")
		if err != nil {
			// Values that do not compile stay literal-only.
			logging.Warn("filter value is not a valid pattern, matching it literally",
				zap.String("value", v), zap.Error(err))
			continue
		}
		s.regexps = append(s.regexps, re)
	}
	return s
}

func (s *valueSet) match(t tag.Tag) bool {
	if _, ok := s.literals[t]; ok {
		return true
	}
	for _, re := range s.regexps {
		if re.MatchString(string(t)) {
			return true
		}
	}
	return false
}

// capturePattern both filters a dimension and promotes its capture
// groups into the aggregation key. Unnamed first captures are exposed
// as "group".
type capturePattern struct {
	re    *regexp.Regexp
	names []string
}

func newCapturePattern(expr string) (*capturePattern, error) {
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, errors.Config("bad capture pattern "+expr, err)
	}
	names := re.SubexpNames()[1:]
	for i, name := range names {
		if name == "" {
			if i == 0 {
				names[i] = "group"
			} else {
				return nil, errors.Configf("capture pattern %q needs named groups beyond the first", expr)
			}
		}
	}
	return &capturePattern{re: re, names: names}, nil
}

func (p *capturePattern) match(t tag.Tag, captures map[string]string) bool {
	m := p.re.FindStringSubmatch(string(t))
	if m == nil {
		return false
	}
	for i, name := range p.names {
		captures[name] = m[i+1]
	}
	return true
}

// compileQuery builds a Query from its declarative form.
func compileQuery(cfg QueryConfig) (*Query, error) {
	fact, ok := cube.ParseFactType(cfg.Type)
	if !ok {
		return nil, errors.Configf("unknown query type %q", cfg.Type)
	}
	q := &Query{
		Fact:     fact,
		Monthly:  cfg.Monthly,
		Single:   cfg.SingleTagGroup,
		filters:  make(map[tag.Dimension]*valueSet),
		patterns: make(map[tag.Dimension]*capturePattern),
		groupBy:  make(map[tag.Dimension]bool),
	}

	for name, values := range cfg.Filter {
		d, ok := tag.ParseDimension(name)
		if !ok {
			return nil, errors.Configf("unknown filter dimension %q", name)
		}
		q.filters[d] = newValueSet(values)
	}
	for name, expr := range cfg.Patterns {
		d, ok := tag.ParseDimension(name)
		if !ok {
			return nil, errors.Configf("unknown pattern dimension %q", name)
		}
		p, err := newCapturePattern(expr)
		if err != nil {
			return nil, err
		}
		q.patterns[d] = p
	}
	for _, name := range cfg.GroupBy {
		d, ok := tag.ParseDimension(name)
		if !ok {
			return nil, errors.Configf("unknown groupBy dimension %q", name)
		}
		q.groupBy[d] = true
	}
	// User-tag grouping is carried by the resource group dimension.
	if len(cfg.GroupByTags) > 0 {
		q.groupBy[tag.DimResourceGroup] = true
	}

	if q.Single {
		g, err := singleGroupOf(q)
		if err != nil {
			return nil, err
		}
		q.singleGroup = g
	}
	q.def = definitionOf(cfg)
	return q, nil
}

// definitionOf renders a query config in a canonical form, independent
// of map iteration order, so textually equivalent operand definitions
// share one cache entry.
func definitionOf(cfg QueryConfig) string {
	var b strings.Builder
	b.WriteString("type=" + cfg.Type)
	if cfg.Monthly {
		b.WriteString(";monthly")
	}
	if cfg.SingleTagGroup {
		b.WriteString(";single")
	}
	for _, d := range sortedKeys(cfg.Filter) {
		values := append([]string(nil), cfg.Filter[d]...)
		sort.Strings(values)
		b.WriteString(";filter:" + d + "=" + strings.Join(values, "|"))
	}
	for _, d := range sortedKeys(cfg.Patterns) {
		b.WriteString(";pattern:" + d + "=" + cfg.Patterns[d])
	}
	groupBy := append([]string(nil), cfg.GroupBy...)
	if len(cfg.GroupByTags) > 0 {
		groupBy = append(groupBy, "resourceGroup")
	}
	sort.Strings(groupBy)
	if len(groupBy) > 0 {
		b.WriteString(";groupBy=" + strings.Join(groupBy, "|"))
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// singleGroupOf synthesizes the point-lookup group from a single-value
// filter set. Dimensions without a filter stay empty.
func singleGroupOf(q *Query) (tag.Group, error) {
	var g tag.Group
	for d := tag.DimAccount; d <= tag.DimResourceGroup; d++ {
		f, ok := q.filters[d]
		if !ok {
			continue
		}
		if len(f.literals) != 1 {
			return tag.Group{}, errors.Configf("singleTagGroup query needs exactly one value per filtered dimension")
		}
		for v := range f.literals {
			g = g.With(d, v)
		}
	}
	if g.Product == "" {
		return tag.Group{}, errors.Configf("singleTagGroup query needs a literal product filter")
	}
	return g, nil
}

// Run evaluates the query against the cube data.
func (q *Query) Run(data *cube.Data) map[Key]*Series {
	slots := data.Hours()
	if q.Monthly {
		slots = 1
	}
	out := make(map[Key]*Series)

	if q.Single {
		q.runSingle(data, slots, out)
		return out
	}

	productFilter := q.filters[tag.DimProduct]
	for _, product := range data.Products() {
		if productFilter != nil && !productFilter.match(product) {
			continue
		}
		usage := data.Usage(product)
		cost := data.Cost(product)
		groups := usage.TagGroups()
		for g := range cost.TagGroups() {
			groups[g] = struct{}{}
		}
		for g := range groups {
			captures := make(map[string]string)
			if !q.matches(g, captures) {
				continue
			}
			s := q.series(out, q.project(g), captures, slots)
			q.accumulate(s, usage, cost, g, slots)
		}
	}
	return out
}

func (q *Query) runSingle(data *cube.Data, slots int, out map[Key]*Series) {
	g := q.singleGroup
	s := q.series(out, g, nil, slots)
	q.accumulate(s, data.Usage(g.Product), data.Cost(g.Product), g, slots)
}

func (q *Query) matches(g tag.Group, captures map[string]string) bool {
	for d, f := range q.filters {
		if !f.match(g.Get(d)) {
			return false
		}
	}
	for d, p := range q.patterns {
		if !p.match(g.Get(d), captures) {
			return false
		}
	}
	return true
}

// project collapses a matching group onto its aggregation identity:
// grouped dimensions keep their tag, the rest take the aggregated
// sentinel, and operation kind and commitment id are normalized away.
func (q *Query) project(g tag.Group) tag.Group {
	var key tag.Group
	for d := tag.DimAccount; d <= tag.DimResourceGroup; d++ {
		if q.groupBy[d] {
			key = key.With(d, g.Get(d))
		} else {
			key = key.With(d, tag.Aggregated)
		}
	}
	return key
}

func (q *Query) series(out map[Key]*Series, g tag.Group, captures map[string]string, slots int) *Series {
	key := Key{Group: g, Captures: canonicalCaptures(captures)}
	s, ok := out[key]
	if !ok {
		s = &Series{
			Usage:    make([]float64, slots),
			Cost:     make([]float64, slots),
			Captures: captures,
		}
		out[key] = s
	}
	return s
}

func (q *Query) accumulate(s *Series, usage, cost *cube.Cube, g tag.Group, slots int) {
	for hour := 0; hour < usage.Hours(); hour++ {
		slot := hour
		if slot >= slots {
			slot = slots - 1
		}
		if v, ok := usage.Get(hour, g); ok {
			s.Usage[slot] += v
		}
		if v, ok := cost.Get(hour, g); ok {
			s.Cost[slot] += v
		}
	}
}

func canonicalCaptures(captures map[string]string) string {
	if len(captures) == 0 {
		return ""
	}
	names := make([]string, 0, len(captures))
	for name := range captures {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(captures[name])
		b.WriteByte('\x00')
	}
	return b.String()
}
