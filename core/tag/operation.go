package tag

// PurchaseOption is how a commitment's upfront payment was structured.
type PurchaseOption int

// Purchase options for reservations and savings plans.
const (
	NoUpfront PurchaseOption = iota
	PartialUpfront
	AllUpfront
)

// String returns the display name of the purchase option.
func (p PurchaseOption) String() string {
	switch p {
	case PartialUpfront:
		return "Partial Upfront"
	case AllUpfront:
		return "All Upfront"
	default:
		return "No Upfront"
	}
}

// ParsePurchaseOption resolves a purchase option by its display name.
func ParsePurchaseOption(name string) (PurchaseOption, bool) {
	switch name {
	case "No Upfront":
		return NoUpfront, true
	case "Partial Upfront":
		return PartialUpfront, true
	case "All Upfront":
		return AllUpfront, true
	}
	return NoUpfront, false
}

// Utilization is the provider-reported reservation utilization class.
type Utilization int

// Reservation utilization classes. Fixed is the all-upfront offering;
// HeavyPartial is the partial-upfront heavy-utilization offering.
const (
	UtilizationFixed Utilization = iota
	UtilizationLight
	UtilizationMedium
	UtilizationHeavy
	UtilizationHeavyPartial
)

// OpKind classifies an operation for the splitter and the classifier.
type OpKind int

// Operation kinds.
const (
	KindOnDemand OpKind = iota
	KindSpot
	KindReservedBonus
	KindCommitmentBonus
	KindCommitmentUsed
	KindCommitmentBorrowed
	KindCommitmentLent
	KindCommitmentAmortized
	KindCommitmentBorrowedAmortized
	KindCommitmentLentAmortized
)

// Operation identifies what a billing fact paid for. The kind and option
// fields participate in equality, so constructors must stay canonical:
// the same logical operation is always built with the same fields.
type Operation struct {
	Name   Tag
	Kind   OpKind
	Option PurchaseOption
}

// OnDemand returns a plain pass-through operation.
func OnDemand(name string) Operation {
	return Operation{Name: Tag(name)}
}

// SpotInstances is usage bought on the spot market.
var SpotInstances = Operation{Name: "Spot Instances", Kind: KindSpot}

// IsBonus reports whether the operation is a covered-by-commitment
// amount that has not been split yet.
func (o Operation) IsBonus() bool {
	return o.Kind == KindReservedBonus || o.Kind == KindCommitmentBonus
}

// IsLent reports whether the operation is a lent attribution.
func (o Operation) IsLent() bool {
	return o.Kind == KindCommitmentLent || o.Kind == KindCommitmentLentAmortized
}

// IsBorrowed reports whether the operation is a borrowed attribution.
func (o Operation) IsBorrowed() bool {
	return o.Kind == KindCommitmentBorrowed || o.Kind == KindCommitmentBorrowedAmortized
}

// IsAmortized reports whether the operation carries upfront amortization.
func (o Operation) IsAmortized() bool {
	switch o.Kind {
	case KindCommitmentAmortized, KindCommitmentBorrowedAmortized, KindCommitmentLentAmortized:
		return true
	}
	return false
}

var bonusReservedNames = map[Utilization]Tag{
	UtilizationFixed:        "Bonus RIs - All Upfront",
	UtilizationLight:        "Bonus RIs - Light Utilization",
	UtilizationMedium:       "Bonus RIs - Medium Utilization",
	UtilizationHeavy:        "Bonus RIs - Heavy Utilization",
	UtilizationHeavyPartial: "Bonus RIs - Partial Upfront",
}

var utilizationOptions = map[Utilization]PurchaseOption{
	UtilizationFixed:        AllUpfront,
	UtilizationLight:        NoUpfront,
	UtilizationMedium:       NoUpfront,
	UtilizationHeavy:        NoUpfront,
	UtilizationHeavyPartial: PartialUpfront,
}

// BonusReserved returns the bonus reserved-instance operation for the
// given utilization class.
func BonusReserved(u Utilization) Operation {
	return Operation{
		Name:   bonusReservedNames[u],
		Kind:   KindReservedBonus,
		Option: utilizationOptions[u],
	}
}

func commitmentOp(kind OpKind, family string, option PurchaseOption) Operation {
	return Operation{
		Name:   Tag("Savings Plan " + family + " - " + option.String()),
		Kind:   kind,
		Option: option,
	}
}

// CommitmentBonus is a commitment-covered amount pending the splitter.
func CommitmentBonus(option PurchaseOption) Operation {
	return commitmentOp(KindCommitmentBonus, "Bonus", option)
}

// CommitmentUsed is commitment-covered usage consumed by the owner.
func CommitmentUsed(option PurchaseOption) Operation {
	return commitmentOp(KindCommitmentUsed, "Used", option)
}

// CommitmentBorrowed is commitment-covered usage consumed cross-account.
func CommitmentBorrowed(option PurchaseOption) Operation {
	return commitmentOp(KindCommitmentBorrowed, "Borrowed", option)
}

// CommitmentLent mirrors a borrowed amount on the owning account.
func CommitmentLent(option PurchaseOption) Operation {
	return commitmentOp(KindCommitmentLent, "Lent", option)
}

// CommitmentAmortized is the upfront-amortized component for the owner.
func CommitmentAmortized(option PurchaseOption) Operation {
	return commitmentOp(KindCommitmentAmortized, "Amortized", option)
}

// CommitmentBorrowedAmortized is the amortized component for a borrower.
func CommitmentBorrowedAmortized(option PurchaseOption) Operation {
	return commitmentOp(KindCommitmentBorrowedAmortized, "Borrowed Amortized", option)
}

// CommitmentLentAmortized mirrors a borrowed amortized amount on the owner.
func CommitmentLentAmortized(option PurchaseOption) Operation {
	return commitmentOp(KindCommitmentLentAmortized, "Lent Amortized", option)
}

// operationsByName indexes every canonical operation so that a name
// read back from configuration resolves to the identical struct the
// classifier or splitter produced. Group equality is structural over
// kind and option, so reconstruction must go through this table.
var operationsByName = map[Tag]Operation{}

func init() {
	register := func(op Operation) {
		operationsByName[op.Name] = op
	}
	register(SpotInstances)
	for u := UtilizationFixed; u <= UtilizationHeavyPartial; u++ {
		register(BonusReserved(u))
	}
	for o := NoUpfront; o <= AllUpfront; o++ {
		register(CommitmentBonus(o))
		register(CommitmentUsed(o))
		register(CommitmentBorrowed(o))
		register(CommitmentLent(o))
		register(CommitmentAmortized(o))
		register(CommitmentBorrowedAmortized(o))
		register(CommitmentLentAmortized(o))
	}
}

// ParseOperation resolves an operation by name: canonical operations
// come back with their kind and option, anything else is a plain
// pass-through operation.
func ParseOperation(name Tag) Operation {
	if op, ok := operationsByName[name]; ok {
		return op
	}
	return Operation{Name: name}
}
