package rules

import (
	"time"

	"cloudcost/core/cube"
	"cloudcost/core/expression"
	"cloudcost/core/tag"
	"cloudcost/internal/errors"
)

// Rule is a compiled allocation rule: one input query, named operand
// queries, and an ordered list of result templates.
type Rule struct {
	Name     string
	In       *Query
	Operands map[string]*Query
	Results  []*Result

	start, end time.Time
}

// Result is a compiled output template.
type Result struct {
	Fact   cube.FactType
	Single bool
	Value  *expression.Expr

	out map[tag.Dimension]string
}

// New compiles a rule configuration. All configuration problems are
// fatal here, before any data is touched.
func New(cfg RuleConfig) (*Rule, error) {
	r := &Rule{
		Name:     cfg.Name,
		Operands: make(map[string]*Query, len(cfg.Operands)),
	}

	var err error
	if r.start, err = parseMonth(cfg.Start); err != nil {
		return nil, err
	}
	if r.end, err = parseMonth(cfg.End); err != nil {
		return nil, err
	}

	if r.In, err = compileQuery(cfg.In); err != nil {
		return nil, errors.Wrapf(errors.TypeConfig, err, "rule %s: in query", cfg.Name)
	}
	for name, qc := range cfg.Operands {
		if name == "in" {
			return nil, errors.Configf("rule %s: operand name \"in\" is reserved", cfg.Name)
		}
		q, err := compileQuery(qc)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "rule %s: operand %s", cfg.Name, name)
		}
		r.Operands[name] = q
	}

	if len(cfg.Results) == 0 {
		return nil, errors.Configf("rule %s has no results", cfg.Name)
	}
	for i, rc := range cfg.Results {
		res, err := compileResult(rc)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "rule %s: result %d", cfg.Name, i)
		}
		for _, ref := range res.Value.Refs {
			if ref == "in" {
				continue
			}
			if _, ok := r.Operands[ref]; !ok {
				return nil, errors.Configf("rule %s: result %d references undefined operand %q", cfg.Name, i, ref)
			}
		}
		r.Results = append(r.Results, res)
	}
	return r, nil
}

func compileResult(cfg ResultConfig) (*Result, error) {
	fact, ok := cube.ParseFactType(cfg.Type)
	if !ok {
		return nil, errors.Configf("unknown result type %q", cfg.Type)
	}
	if cfg.Value == "" {
		return nil, errors.Configf("result has no value expression")
	}
	value, err := expression.Compile(cfg.Value)
	if err != nil {
		return nil, err
	}

	out := make(map[tag.Dimension]string, len(cfg.Out))
	for name, tmpl := range cfg.Out {
		d, ok := tag.ParseDimension(name)
		if !ok {
			return nil, errors.Configf("unknown out dimension %q", name)
		}
		out[d] = tmpl
	}
	return &Result{Fact: fact, Single: cfg.Single, Value: value, out: out}, nil
}

// Active reports whether the rule applies to the given billing month.
func (r *Rule) Active(month time.Time) bool {
	if !r.start.IsZero() && month.Before(r.start) {
		return false
	}
	if !r.end.IsZero() && month.After(r.end) {
		return false
	}
	return true
}
