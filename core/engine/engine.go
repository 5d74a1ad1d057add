// Package engine orchestrates one batch run: classify every raw row
// into the cube, split commitment-covered amounts, then apply the
// allocation rules. The cube is the only integration point between the
// stages.
package engine

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cloudcost/core/classify"
	"cloudcost/core/commitment"
	"cloudcost/core/cube"
	"cloudcost/core/mapper"
	"cloudcost/core/registry"
	"cloudcost/core/rules"
	"cloudcost/core/tag"
	"cloudcost/internal/errors"
	"cloudcost/internal/logging"
)

// RowReader yields one raw billing row per call and io.EOF at the end.
// encoding/csv readers satisfy it directly.
type RowReader interface {
	Read() ([]string, error)
}

// Stats counts what happened to the batch's rows.
type Stats struct {
	Rows    int
	Ignored int
	Hourly  int
	Daily   int
	Monthly int
}

// Processor runs the full pipeline for one billing month.
type Processor struct {
	Accounts registry.Accounts
	Products registry.Products
	Mappers  []*mapper.TagMapper
	Plans    map[string]commitment.Plan
	Rules    []*rules.Rule

	// DefaultUtilization applies to reservation lines whose rate id
	// carries no upfront digits.
	DefaultUtilization tag.Utilization

	// CustomTagKeys are the user-tag columns resolved from the export
	// header, first one doubling as the resource group.
	CustomTagKeys []string

	log *zap.Logger
}

// NewProcessor builds a pipeline with the given lookup services.
func NewProcessor(accounts registry.Accounts, products registry.Products) *Processor {
	return &Processor{
		Accounts:           accounts,
		Products:           products,
		DefaultUtilization: tag.UtilizationHeavy,
		log:                logging.With(zap.String("component", "engine")),
	}
}

// Run executes classify, split, and rules over one month of rows. The
// first row read must be the export header. Stage ordering is strict:
// classification finishes before any split, and splitting finishes
// before any rule reads the cube.
func (p *Processor) Run(ctx context.Context, monthStart time.Time, hours int, rows RowReader) (*cube.Data, Stats, error) {
	data := cube.NewData(hours)

	stats, err := p.classify(ctx, monthStart, rows, data)
	if err != nil {
		return nil, stats, err
	}

	if err := p.split(ctx, data); err != nil {
		return nil, stats, err
	}

	if err := p.applyRules(ctx, monthStart, data); err != nil {
		return nil, stats, err
	}
	return data, stats, nil
}

func (p *Processor) classify(ctx context.Context, monthStart time.Time, rows RowReader, data *cube.Data) (Stats, error) {
	var stats Stats

	header, err := rows.Read()
	if err != nil {
		return stats, errors.Wrap(errors.TypeData, "billing export has no header", err)
	}
	idx, err := classify.NewIndex(header, p.CustomTagKeys)
	if err != nil {
		return stats, err
	}

	proc := classify.NewProcessor(p.Accounts, p.Products, p.DefaultUtilization)
	proc.Mappers = p.Mappers
	proc.PlanOption = p.planOption

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		row, err := rows.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, errors.Wrap(errors.TypeData, "billing export read failed", err)
		}

		stats.Rows++
		switch proc.Process(idx, monthStart, row, data) {
		case classify.Hourly:
			stats.Hourly++
		case classify.Daily:
			stats.Daily++
		case classify.Monthly:
			stats.Monthly++
		default:
			stats.Ignored++
		}
	}

	p.log.Info("classification finished",
		zap.Int("rows", stats.Rows), zap.Int("hourly", stats.Hourly),
		zap.Int("daily", stats.Daily), zap.Int("monthly", stats.Monthly),
		zap.Int("ignored", stats.Ignored))
	return stats, nil
}

// split runs the commitment splitter, one goroutine per product. The
// splitter is hour-sequential within a product, so products are the
// parallel unit.
func (p *Processor) split(ctx context.Context, data *cube.Data) error {
	if len(p.Plans) == 0 {
		return nil
	}
	splitter := commitment.NewSplitter(data, p.Plans, p.Accounts)

	// Touch both cubes up front so the per-product goroutines never
	// mutate the product maps concurrently.
	products := data.Products()
	for _, product := range products {
		data.Usage(product)
		data.Cost(product)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, product := range products {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			splitter.Process(product)
			return nil
		})
	}
	return g.Wait()
}

// applyRules evaluates the active rules in configuration order. Rules
// run sequentially: later rules may read facts earlier rules wrote.
func (p *Processor) applyRules(ctx context.Context, monthStart time.Time, data *cube.Data) error {
	eng := rules.NewEngine(data)
	for _, r := range p.Rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.Active(monthStart) {
			p.log.Debug("rule outside its active window", zap.String("rule", r.Name))
			continue
		}
		if err := eng.Process(r); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) planOption(arn string) (tag.PurchaseOption, bool) {
	plan, ok := p.Plans[arn]
	return plan.PaymentOption, ok
}
