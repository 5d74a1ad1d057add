package commitment

import (
	"go.uber.org/zap"

	"cloudcost/core/cube"
	"cloudcost/core/registry"
	"cloudcost/core/tag"
	"cloudcost/internal/logging"
)

// Splitter rewrites commitment-covered bonus entries into their final
// amortized/recurring and owner/borrower components. Within one hour
// the splitter must run single-threaded: it performs remove-then-add
// sequences that are not individually atomic. Distinct hours and
// distinct products are independent.
type Splitter struct {
	data     *cube.Data
	plans    map[string]Plan
	accounts registry.Accounts
	log      *zap.Logger
}

// NewSplitter builds a splitter over the batch's cube data.
func NewSplitter(data *cube.Data, plans map[string]Plan, accounts registry.Accounts) *Splitter {
	return &Splitter{
		data:     data,
		plans:    plans,
		accounts: accounts,
		log:      logging.With(zap.String("component", "splitter")),
	}
}

// Process splits every hour of one product's cubes.
func (s *Splitter) Process(product tag.Tag) {
	if len(s.plans) == 0 {
		return
	}
	usage := s.data.Usage(product)
	cost := s.data.Cost(product)
	s.log.Info("splitting commitment-covered amounts",
		zap.String("product", string(product)), zap.Int("plans", len(s.plans)))

	for hour := 0; hour < usage.Hours(); hour++ {
		s.processHour(hour, usage, cost)
	}
}

// ProcessAll splits every product in the cube.
func (s *Splitter) ProcessAll() {
	for _, product := range s.data.Products() {
		s.Process(product)
	}
}

func (s *Splitter) processHour(hour int, usageData, costData *cube.Cube) {
	var bonus []tag.Group
	for _, g := range usageData.TagGroupsAt(hour) {
		if g.IsCommitmentTagged() && g.Operation.IsBonus() {
			bonus = append(bonus, g)
		}
	}

	for _, bonusTg := range bonus {
		plan, ok := s.plans[bonusTg.CommitmentID]
		if !ok {
			// Dangling commitment id: leave the entry for the cleanup
			// warning, never fatal.
			s.log.Error("no plan for commitment-tagged group",
				zap.Int("hour", hour), zap.String("tagGroup", bonusTg.String()))
			continue
		}

		cost := costData.Remove(hour, bonusTg)
		usage := usageData.Remove(hour, bonusTg)

		owner := s.accounts.ByID(plan.AccountID)
		sameAccount := owner == bonusTg.Account

		if plan.PaymentOption != tag.NoUpfront {
			amortOp := tag.CommitmentAmortized(plan.PaymentOption)
			if !sameAccount {
				amortOp = tag.CommitmentBorrowedAmortized(plan.PaymentOption)
				// Mirrored lent record for the owning account; both
				// entries carry the full amortized amount.
				lent := bonusTg.WithoutCommitment().
					WithAccount(owner).
					WithOperation(tag.CommitmentLentAmortized(plan.PaymentOption))
				costData.Add(hour, lent, cost*plan.NormalizedAmortization)
			}
			costData.Add(hour, bonusTg.WithoutCommitment().WithOperation(amortOp), cost*plan.NormalizedAmortization)
		}

		op := tag.CommitmentUsed(plan.PaymentOption)
		if !sameAccount {
			op = tag.CommitmentBorrowed(plan.PaymentOption)

			lent := bonusTg.WithoutCommitment().
				WithAccount(owner).
				WithOperation(tag.CommitmentLent(plan.PaymentOption))
			usageData.Add(hour, lent, usage)
			// Cost is recorded for all payment options, including the
			// all-upfront zero, so the group reaches the tag db.
			costData.Add(hour, lent, cost*plan.NormalizedRecurring)
		}

		used := bonusTg.WithoutCommitment().WithOperation(op)
		usageData.Add(hour, used, usage)
		costData.Add(hour, used, cost*plan.NormalizedRecurring)
	}

	s.cleanup(hour, usageData, "usage")
	s.cleanup(hour, costData, "cost")
}

// cleanup rewrites any leftover commitment-tagged groups to their plain
// equivalents. Leftovers are a diagnostic signal of upstream
// misclassification, counted and logged per operation.
func (s *Splitter) cleanup(hour int, data *cube.Cube, which string) {
	var leftover []tag.Group
	for _, g := range data.TagGroupsAt(hour) {
		if g.IsCommitmentTagged() {
			leftover = append(leftover, g)
		}
	}

	counts := make(map[tag.Tag]int)
	for _, g := range leftover {
		counts[g.Operation.Name]++
		v := data.Remove(hour, g)
		data.Add(hour, g.WithoutCommitment(), v)
	}
	for op, n := range counts {
		s.log.Info("unconverted commitment-tagged groups",
			zap.String("data", which), zap.Int("hour", hour),
			zap.String("operation", string(op)), zap.Int("count", n))
	}
}
