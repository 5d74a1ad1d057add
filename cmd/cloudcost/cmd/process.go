// Package cmd - process command
package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cloudcost/core/commitment"
	"cloudcost/core/engine"
	"cloudcost/core/mapper"
	"cloudcost/core/registry"
	"cloudcost/core/rules"
	"cloudcost/internal/config"
	"cloudcost/internal/errors"
	"cloudcost/internal/logging"
)

var billingFile string

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one month of billing data",
	Long: `Read a raw billing export, classify every line item into the hourly
data cube, split commitment-covered amounts, apply the configured
allocation rules, and print a per-product summary.`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&billingFile, "billing", "b", "", "billing export CSV (overrides the config file)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	hours, err := cfg.HourCount()
	if err != nil {
		return err
	}
	monthStart, err := cfg.MonthStart()
	if err != nil {
		return err
	}

	billing := cfg.BillingFile
	if billingFile != "" {
		billing = billingFile
	}
	if billing == "" {
		return errors.Configf("no billing export: set billing_file or pass --billing")
	}

	p := engine.NewProcessor(registry.NewStaticAccounts(nil), registry.NewStaticProducts())
	p.CustomTagKeys = cfg.CustomTagKeys

	if p.Mappers, err = loadMappers(cfg); err != nil {
		return err
	}
	if p.Rules, err = loadRules(cfg.RuleFiles); err != nil {
		return err
	}
	if p.Plans, err = loadPlans(cfg.SavingsPlanFile); err != nil {
		return err
	}
	if err := reportReservations(cfg.ReservationFile); err != nil {
		return err
	}

	f, err := os.Open(billing)
	if err != nil {
		return errors.Wrap(errors.TypeData, "cannot open billing export", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	logging.Info("processing billing month",
		zap.String("month", cfg.Month), zap.Int("hours", hours),
		zap.String("billing", billing))

	data, stats, err := p.Run(cmd.Context(), monthStart, hours, r)
	if err != nil {
		return err
	}

	fmt.Printf("Processed %d rows (%d hourly, %d daily, %d monthly, %d ignored)\n",
		stats.Rows, stats.Hourly, stats.Daily, stats.Monthly, stats.Ignored)
	for _, product := range data.Products() {
		cost := data.Cost(product)
		total := 0.0
		for g := range cost.TagGroups() {
			for h := 0; h < cost.Hours(); h++ {
				if v, ok := cost.Get(h, g); ok {
					total += v
				}
			}
		}
		fmt.Printf("  %-24s %12.2f\n", product, total)
	}
	return nil
}

// loadMappers compiles the tag-mapping documents. The i-th document
// maps the i-th configured custom tag key.
func loadMappers(cfg *config.Config) ([]*mapper.TagMapper, error) {
	if len(cfg.TagMappingFiles) > len(cfg.CustomTagKeys) {
		return nil, errors.Configf("more tag mapping files (%d) than custom tag keys (%d)",
			len(cfg.TagMappingFiles), len(cfg.CustomTagKeys))
	}
	keyIndex := make(map[string]int, len(cfg.CustomTagKeys))
	for i, key := range cfg.CustomTagKeys {
		keyIndex[key] = i
	}

	var mappers []*mapper.TagMapper
	for i, path := range cfg.TagMappingFiles {
		doc, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.TypeConfig, "cannot read tag mapping "+path, err)
		}
		mcfg, err := mapper.Load(doc)
		if err != nil {
			return nil, err
		}
		m, err := mapper.New(i, mcfg, keyIndex)
		if err != nil {
			return nil, err
		}
		mappers = append(mappers, m)
	}
	return mappers, nil
}

func loadRules(paths []string) ([]*rules.Rule, error) {
	var compiled []*rules.Rule
	for _, path := range paths {
		doc, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.TypeConfig, "cannot read rule file "+path, err)
		}
		cfg, err := rules.ParseConfig(doc)
		if err != nil {
			return nil, err
		}
		r, err := rules.New(cfg)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, r)
	}
	return compiled, nil
}

func loadPlans(path string) (map[string]commitment.Plan, error) {
	if path == "" {
		return nil, nil
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "cannot read savings plan file", err)
	}
	plans := make(map[string]commitment.Plan)
	for _, line := range strings.Split(string(doc), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		plan, err := commitment.ParsePlanRecord(line)
		if err != nil {
			return nil, err
		}
		plans[plan.ARN] = plan
	}
	logging.Info("loaded savings plans", zap.Int("count", len(plans)))
	return plans, nil
}

// reportReservations loads the cached reservation inventory and logs a
// per-product summary of counts and hourly recurring rates.
func reportReservations(path string) error {
	if path == "" {
		return nil
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.TypeConfig, "cannot read reservation file", err)
	}

	counts := make(map[string]int)
	recurring := make(map[string]decimal.Decimal)
	for _, line := range strings.Split(string(doc), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r, err := commitment.ParseReservation(line)
		if err != nil {
			logging.Warn("skipping unparseable reservation record", zap.Error(err))
			continue
		}
		counts[r.Product]++
		rate := r.RecurringHourly().Mul(decimal.NewFromInt(int64(r.InstanceCount)))
		recurring[r.Product] = recurring[r.Product].Add(rate)
	}

	products := make([]string, 0, len(counts))
	for product := range counts {
		products = append(products, product)
	}
	sort.Strings(products)
	for _, product := range products {
		logging.Info("reservation inventory",
			zap.String("product", product), zap.Int("count", counts[product]),
			zap.String("hourlyRecurring", recurring[product].String()))
	}
	return nil
}
