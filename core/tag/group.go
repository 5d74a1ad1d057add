package tag

import "strings"

// Group is the immutable composite key identifying one billing fact:
// account, region, zone, product, operation, usage type, and an optional
// resource group. Equality and hashing are structural over all fields,
// so Group is usable directly as a map key.
//
// CommitmentID is the tagged-variant field: non-empty only while an
// amount is covered by a commitment and not yet split. Cube operations
// treat commitment-tagged and plain groups uniformly.
type Group struct {
	Account       Tag
	Region        Tag
	Zone          Tag
	Product       Tag
	Operation     Operation
	UsageType     Tag
	ResourceGroup Tag
	CommitmentID  string
}

// NewGroup builds a plain tag group.
func NewGroup(account, region, zone, product string, op Operation, usageType, resourceGroup string) Group {
	return Group{
		Account:       Tag(account),
		Region:        Tag(region),
		Zone:          Tag(zone),
		Product:       Tag(product),
		Operation:     op,
		UsageType:     Tag(usageType),
		ResourceGroup: Tag(resourceGroup),
	}
}

// WithOperation returns a copy with the operation replaced.
func (g Group) WithOperation(op Operation) Group {
	g.Operation = op
	return g
}

// WithAccount returns a copy with the account replaced.
func (g Group) WithAccount(account Tag) Group {
	g.Account = account
	return g
}

// WithCommitment returns a copy tagged with a commitment identifier.
func (g Group) WithCommitment(id string) Group {
	g.CommitmentID = id
	return g
}

// WithoutCommitment returns the plain equivalent of the group.
func (g Group) WithoutCommitment() Group {
	g.CommitmentID = ""
	return g
}

// IsCommitmentTagged reports whether the group still carries a
// commitment identifier.
func (g Group) IsCommitmentTagged() bool {
	return g.CommitmentID != ""
}

// Get returns the tag for one dimension of the group.
func (g Group) Get(d Dimension) Tag {
	switch d {
	case DimAccount:
		return g.Account
	case DimRegion:
		return g.Region
	case DimZone:
		return g.Zone
	case DimProduct:
		return g.Product
	case DimOperation:
		return g.Operation.Name
	case DimUsageType:
		return g.UsageType
	case DimResourceGroup:
		return g.ResourceGroup
	}
	return ""
}

// With returns a copy with one dimension replaced. Setting the operation
// dimension resolves the name through ParseOperation, so canonical
// operation names land on the same key the producer wrote.
func (g Group) With(d Dimension, t Tag) Group {
	switch d {
	case DimAccount:
		g.Account = t
	case DimRegion:
		g.Region = t
	case DimZone:
		g.Zone = t
	case DimProduct:
		g.Product = t
	case DimOperation:
		g.Operation = ParseOperation(t)
	case DimUsageType:
		g.UsageType = t
	case DimResourceGroup:
		g.ResourceGroup = t
	}
	return g
}

// Compare orders groups dimension by dimension, commitment id last.
// Used for deterministic iteration in logs and reports.
func (g Group) Compare(o Group) int {
	for d := DimAccount; d <= DimResourceGroup; d++ {
		if c := g.Get(d).Compare(o.Get(d)); c != 0 {
			return c
		}
	}
	return strings.Compare(g.CommitmentID, o.CommitmentID)
}

// String renders the group in a compact diagnostic form.
func (g Group) String() string {
	parts := []string{
		string(g.Account), string(g.Region), string(g.Zone),
		string(g.Product), string(g.Operation.Name), string(g.UsageType),
	}
	if g.ResourceGroup != "" {
		parts = append(parts, string(g.ResourceGroup))
	}
	s := strings.Join(parts, ",")
	if g.CommitmentID != "" {
		s += " [" + g.CommitmentID + "]"
	}
	return s
}
