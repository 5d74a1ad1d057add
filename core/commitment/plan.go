package commitment

import (
	"strings"

	"github.com/shopspring/decimal"

	"cloudcost/core/tag"
	"cloudcost/internal/errors"
)

// Plan is a savings-plan-like commitment. NormalizedAmortization and
// NormalizedRecurring split the covered cost between the upfront
// amortized portion and the ongoing recurring portion; they sum to 1
// for partial-upfront plans and one of them is 0 at the extremes.
// Immutable once loaded.
type Plan struct {
	ARN                    string
	AccountID              string
	PaymentOption          tag.PurchaseOption
	NormalizedAmortization float64
	NormalizedRecurring    float64
}

// NewPlan derives the normalized ratios from the plan's hourly
// recurring and amortized commitment rates.
func NewPlan(arn string, option tag.PurchaseOption, hourlyRecurring, hourlyAmortization decimal.Decimal) Plan {
	p := Plan{
		ARN:           arn,
		AccountID:     AccountFromARN(arn),
		PaymentOption: option,
	}
	total := hourlyRecurring.Add(hourlyAmortization)
	switch {
	case option == tag.NoUpfront || total.IsZero():
		p.NormalizedRecurring = 1
	case option == tag.AllUpfront:
		p.NormalizedAmortization = 1
	default:
		p.NormalizedAmortization, _ = hourlyAmortization.Div(total).Float64()
		p.NormalizedRecurring, _ = hourlyRecurring.Div(total).Float64()
	}
	return p
}

// ParsePlanRecord loads a plan from its cached comma-delimited form:
// arn, payment option display name, hourly recurring rate, hourly
// amortization rate.
func ParsePlanRecord(record string) (Plan, error) {
	fields := strings.Split(record, ",")
	if len(fields) != 4 {
		return Plan{}, errors.Data("plan record needs 4 fields: " + record)
	}
	option, ok := tag.ParsePurchaseOption(fields[1])
	if !ok {
		return Plan{}, errors.Data("unknown payment option: " + fields[1])
	}
	recurring, err := decimal.NewFromString(fields[2])
	if err != nil {
		return Plan{}, errors.Wrap(errors.TypeData, "bad recurring rate", err)
	}
	amortization, err := decimal.NewFromString(fields[3])
	if err != nil {
		return Plan{}, errors.Wrap(errors.TypeData, "bad amortization rate", err)
	}
	return NewPlan(fields[0], option, recurring, amortization), nil
}

// AccountFromARN extracts the owning account id from a commitment ARN
// such as "arn:aws:savingsplans::111111111111:savingsplan/sp-1".
func AccountFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) > 4 {
		return parts[4]
	}
	return ""
}
