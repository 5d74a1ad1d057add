package rules

import (
	"regexp"

	"go.uber.org/zap"

	"cloudcost/core/cube"
	"cloudcost/core/tag"
	"cloudcost/internal/logging"
)

// Engine evaluates compiled rules against one batch's cube data. The
// operand cache lives for the engine's lifetime, which is one
// processing run; build a fresh engine per run.
type Engine struct {
	data *cube.Data

	// cache holds the scalar results of monthly single-tag-group
	// operands, keyed by the operand's definition so rules sharing one
	// do not re-read the cube. Populate single-threaded before fanning
	// out.
	cache map[string]float64

	log *zap.Logger
}

// NewEngine builds a rule engine over the batch's cube data.
func NewEngine(data *cube.Data) *Engine {
	return &Engine{
		data:  data,
		cache: make(map[string]float64),
		log:   logging.With(zap.String("component", "rules")),
	}
}

// Process evaluates one rule and writes its results into the cube.
// An empty input query is a data condition, logged and skipped.
func (e *Engine) Process(r *Rule) error {
	in := r.In.Run(e.data)
	if len(in) == 0 {
		e.log.Warn("rule input query matched nothing", zap.String("rule", r.Name))
		return nil
	}

	operands := make(map[string]map[Key]*Series, len(r.Operands))
	for name, q := range r.Operands {
		operands[name] = e.runOperand(q)
	}

	for key, series := range in {
		for _, res := range r.Results {
			e.apply(r, res, key, series, operands)
		}
	}
	e.log.Info("rule applied", zap.String("rule", r.Name), zap.Int("keys", len(in)))
	return nil
}

// ProcessAll evaluates rules in order. Rule order matters: later rules
// see the facts earlier rules wrote.
func (e *Engine) ProcessAll(rules []*Rule) error {
	for _, r := range rules {
		if err := e.Process(r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runOperand(q *Query) map[Key]*Series {
	if q.Monthly && q.Single {
		if v, ok := e.cache[q.def]; ok {
			s := &Series{Usage: []float64{v}, Cost: []float64{v}}
			return map[Key]*Series{{Group: q.singleGroup}: s}
		}
		out := q.Run(e.data)
		for _, s := range out {
			e.cache[q.def] = s.Values(q.Fact)[0]
		}
		return out
	}
	return q.Run(e.data)
}

// apply evaluates one result template for one aggregation key and adds
// the computed values into the destination cube.
func (e *Engine) apply(r *Rule, res *Result, key Key, series *Series, operands map[string]map[Key]*Series) {
	dest := materialize(res, key.Group, series.Captures)
	destCube := e.data.Get(res.Fact, dest.Product)
	inValues := series.Values(r.In.Fact)

	vars := make(map[string]float64, len(res.Value.Refs))
	slots := len(inValues)
	if res.Single {
		slots = 1
	}
	for slot := 0; slot < slots; slot++ {
		vars["in"] = inValues[slot]
		for _, ref := range res.Value.Refs {
			if ref == "in" {
				continue
			}
			vars[ref] = operandValue(operands[ref], r.Operands[ref], key, slot)
		}
		v := res.Value.Eval(vars)
		if res.Single {
			// A single result overwrites: it pins an aggregate line to
			// the computed value, typically zeroing a consumed source.
			destCube.Put(slot, dest, v)
		} else {
			destCube.Add(slot, dest, v)
		}
	}
}

// operandValue resolves an operand's value for one aggregation key and
// slot. Monthly and singleton operands broadcast across slots; an
// operand with no matching key is zero.
func operandValue(results map[Key]*Series, q *Query, key Key, slot int) float64 {
	if len(results) == 0 {
		return 0
	}

	var s *Series
	if len(results) == 1 {
		for _, only := range results {
			s = only
		}
	} else {
		// Project the input key onto the operand's grouping and look
		// the bucket up, first under the input key's captures for
		// operands whose patterns split buckets the same way.
		var g tag.Group
		for d := tag.DimAccount; d <= tag.DimResourceGroup; d++ {
			if q.groupBy[d] {
				g = g.With(d, key.Group.Get(d))
			} else {
				g = g.With(d, tag.Aggregated)
			}
		}
		s = results[Key{Group: g, Captures: key.Captures}]
		if s == nil {
			s = results[Key{Group: g}]
		}
		if s == nil {
			return 0
		}
	}

	values := s.Values(q.Fact)
	if slot >= len(values) {
		slot = len(values) - 1
	}
	return values[slot]
}

var captureRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// materialize builds a result's destination group from the aggregation
// key, overriding dimensions named in the out template. ${name}
// placeholders take the key's captured values.
func materialize(res *Result, key tag.Group, captures map[string]string) tag.Group {
	dest := key
	for d, tmpl := range res.out {
		v := captureRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
			name := ref[2 : len(ref)-1]
			return captures[name]
		})
		dest = dest.With(d, tag.Tag(v))
	}
	return dest
}
