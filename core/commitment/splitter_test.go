package commitment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudcost/core/cube"
	"cloudcost/core/registry"
	"cloudcost/core/tag"
)

const (
	ownerID    = "111111111111"
	consumerID = "222222222222"
	planARN    = "arn:aws:savingsplans::111111111111:savingsplan/sp-1"
)

func partialPlan(t *testing.T) Plan {
	t.Helper()
	// 0.6 recurring + 0.4 amortized per hour.
	p := NewPlan(planARN, tag.PartialUpfront, decimal.NewFromFloat(0.6), decimal.NewFromFloat(0.4))
	require.Equal(t, ownerID, p.AccountID)
	return p
}

func bonusGroup(account string) tag.Group {
	return tag.NewGroup(account, "us-east-1", "", "EC2 Instance",
		tag.CommitmentBonus(tag.PartialUpfront), "c4.large", "").
		WithCommitment(planARN)
}

func newSplitter(data *cube.Data, plans map[string]Plan) *Splitter {
	return NewSplitter(data, plans, registry.NewStaticAccounts(nil))
}

func TestPlanRatios(t *testing.T) {
	p := partialPlan(t)
	assert.InDelta(t, 0.4, p.NormalizedAmortization, 1e-9)
	assert.InDelta(t, 0.6, p.NormalizedRecurring, 1e-9)

	no := NewPlan(planARN, tag.NoUpfront, decimal.NewFromFloat(1.0), decimal.Zero)
	assert.Zero(t, no.NormalizedAmortization)
	assert.Equal(t, 1.0, no.NormalizedRecurring)

	all := NewPlan(planARN, tag.AllUpfront, decimal.Zero, decimal.NewFromFloat(1.0))
	assert.Equal(t, 1.0, all.NormalizedAmortization)
	assert.Zero(t, all.NormalizedRecurring)
}

func TestCrossAccountSplitConservation(t *testing.T) {
	const (
		c = 10.0 // bonus cost
		u = 2.0  // bonus usage
	)
	plan := partialPlan(t)
	data := cube.NewData(1)
	bonus := bonusGroup(consumerID)
	data.Usage("EC2 Instance").Add(0, bonus, u)
	data.Cost("EC2 Instance").Add(0, bonus, c)

	newSplitter(data, map[string]Plan{planARN: plan}).Process("EC2 Instance")

	usage := data.Usage("EC2 Instance")
	cost := data.Cost("EC2 Instance")

	// The bonus entry must be gone.
	_, ok := cost.Get(0, bonus)
	assert.False(t, ok)
	_, ok = usage.Get(0, bonus)
	assert.False(t, ok)

	plain := bonus.WithoutCommitment()
	borrowedAmort := plain.WithOperation(tag.CommitmentBorrowedAmortized(tag.PartialUpfront))
	lentAmort := plain.WithAccount(ownerID).WithOperation(tag.CommitmentLentAmortized(tag.PartialUpfront))
	borrowed := plain.WithOperation(tag.CommitmentBorrowed(tag.PartialUpfront))
	lent := plain.WithAccount(ownerID).WithOperation(tag.CommitmentLent(tag.PartialUpfront))

	// Ledger-style dual entry: owner's lent equals consumer's borrowed.
	v, _ := cost.Get(0, borrowedAmort)
	assert.InDelta(t, c*plan.NormalizedAmortization, v, 1e-9)
	v, _ = cost.Get(0, lentAmort)
	assert.InDelta(t, c*plan.NormalizedAmortization, v, 1e-9)

	v, _ = cost.Get(0, borrowed)
	assert.InDelta(t, c*plan.NormalizedRecurring, v, 1e-9)
	v, _ = cost.Get(0, lent)
	assert.InDelta(t, c*plan.NormalizedRecurring, v, 1e-9)

	// Usage is preserved, not scaled.
	v, _ = usage.Get(0, borrowed)
	assert.Equal(t, u, v)
	v, _ = usage.Get(0, lent)
	assert.Equal(t, u, v)
}

func TestSameAccountSplit(t *testing.T) {
	plan := partialPlan(t)
	data := cube.NewData(1)
	bonus := bonusGroup(ownerID)
	data.Usage("EC2 Instance").Add(0, bonus, 1.0)
	data.Cost("EC2 Instance").Add(0, bonus, 10.0)

	newSplitter(data, map[string]Plan{planARN: plan}).Process("EC2 Instance")

	usage := data.Usage("EC2 Instance")
	cost := data.Cost("EC2 Instance")
	plain := bonus.WithoutCommitment()

	v, _ := cost.Get(0, plain.WithOperation(tag.CommitmentAmortized(tag.PartialUpfront)))
	assert.InDelta(t, 4.0, v, 1e-9)

	used := plain.WithOperation(tag.CommitmentUsed(tag.PartialUpfront))
	v, _ = cost.Get(0, used)
	assert.InDelta(t, 6.0, v, 1e-9)
	v, _ = usage.Get(0, used)
	assert.Equal(t, 1.0, v)

	// No cross-account records for the owner's own usage.
	for g := range cost.TagGroups() {
		assert.False(t, g.Operation.IsLent(), "unexpected lent record %s", g)
		assert.False(t, g.Operation.IsBorrowed(), "unexpected borrowed record %s", g)
	}
}

func TestMultipleBonusEntriesAccumulate(t *testing.T) {
	// Two differently shaped bonus entries landing on the same
	// destination group must sum, not clobber.
	plan := partialPlan(t)
	data := cube.NewData(1)
	a := bonusGroup(ownerID)
	// Same shape, but the classifier guessed a different bonus option.
	// The plan's payment option decides the destination, so both land
	// on the same used group.
	b := a.WithOperation(tag.CommitmentBonus(tag.NoUpfront))
	used := a.WithoutCommitment().WithOperation(tag.CommitmentUsed(tag.PartialUpfront))

	data.Usage("EC2 Instance").Add(0, a, 1.0)
	data.Cost("EC2 Instance").Add(0, a, 10.0)
	data.Usage("EC2 Instance").Add(0, b, 1.0)
	data.Cost("EC2 Instance").Add(0, b, 10.0)

	newSplitter(data, map[string]Plan{planARN: plan}).Process("EC2 Instance")

	v, _ := data.Cost("EC2 Instance").Get(0, used)
	assert.InDelta(t, 12.0, v, 1e-9)
	v, _ = data.Usage("EC2 Instance").Get(0, used)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestParsePlanRecord(t *testing.T) {
	p, err := ParsePlanRecord(planARN + ",Partial Upfront,0.6,0.4")
	require.NoError(t, err)
	assert.Equal(t, planARN, p.ARN)
	assert.Equal(t, ownerID, p.AccountID)
	assert.Equal(t, tag.PartialUpfront, p.PaymentOption)
	assert.InDelta(t, 0.4, p.NormalizedAmortization, 1e-9)
	assert.InDelta(t, 0.6, p.NormalizedRecurring, 1e-9)

	_, err = ParsePlanRecord("too,short")
	assert.Error(t, err)
	_, err = ParsePlanRecord(planARN + ",Sometimes Upfront,0.6,0.4")
	assert.Error(t, err)
	_, err = ParsePlanRecord(planARN + ",All Upfront,x,0.4")
	assert.Error(t, err)
}

func TestDanglingPlanLeftUntouchedThenCleanedUp(t *testing.T) {
	data := cube.NewData(1)
	bonus := bonusGroup(consumerID)
	data.Usage("EC2 Instance").Add(0, bonus, 1.0)
	data.Cost("EC2 Instance").Add(0, bonus, 10.0)

	// Plans map knows a different ARN.
	other := NewPlan("arn:aws:savingsplans::111111111111:savingsplan/sp-other",
		tag.NoUpfront, decimal.NewFromFloat(1), decimal.Zero)
	newSplitter(data, map[string]Plan{other.ARN: other}).Process("EC2 Instance")

	// The entry survives under its plain equivalent via the cleanup
	// pass; the amount is not dropped from the cube.
	v, ok := data.Cost("EC2 Instance").Get(0, bonus.WithoutCommitment())
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
	_, ok = data.Cost("EC2 Instance").Get(0, bonus)
	assert.False(t, ok)
}

func TestCleanupRewritesNonBonusLeftovers(t *testing.T) {
	plan := partialPlan(t)
	data := cube.NewData(1)
	// A commitment-tagged group whose operation is not a bonus variant.
	stray := tag.NewGroup(consumerID, "us-east-1", "", "EC2 Instance",
		tag.CommitmentUsed(tag.PartialUpfront), "c4.large", "").
		WithCommitment(planARN)
	data.Cost("EC2 Instance").Add(0, stray, 3.0)
	data.Cost("EC2 Instance").Add(0, stray.WithoutCommitment(), 1.0)

	newSplitter(data, map[string]Plan{planARN: plan}).Process("EC2 Instance")

	v, _ := data.Cost("EC2 Instance").Get(0, stray.WithoutCommitment())
	assert.Equal(t, 4.0, v)
	for g := range data.Cost("EC2 Instance").TagGroups() {
		assert.False(t, g.IsCommitmentTagged(), "commitment tag survived on %s", g)
	}
}
