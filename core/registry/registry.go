// Package registry defines the account and product lookup services the
// engine depends on. The authoritative registries live outside this
// system; the static implementations here back tests and single-batch
// CLI runs.
package registry

import (
	"cloudcost/core/tag"
)

// Accounts resolves account identifiers to account tags.
type Accounts interface {
	// ByID returns the account tag for an account id. Unknown ids map
	// to a tag of the id itself so facts are never dropped.
	ByID(id string) tag.Tag
}

// Products resolves provider product names to canonical product tags.
type Products interface {
	// Canonical returns the canonical product tag for a provider name.
	Canonical(providerName string) tag.Tag

	// IsMultiEngine reports whether usage types under the product must
	// be distinguished by database engine.
	IsMultiEngine(product tag.Tag) bool
}

// StaticAccounts is an in-memory account registry.
type StaticAccounts struct {
	names map[string]string
}

// NewStaticAccounts builds a registry from an id to name mapping.
func NewStaticAccounts(names map[string]string) *StaticAccounts {
	if names == nil {
		names = map[string]string{}
	}
	return &StaticAccounts{names: names}
}

// ByID implements Accounts.
func (a *StaticAccounts) ByID(id string) tag.Tag {
	if name, ok := a.names[id]; ok {
		return tag.Tag(name)
	}
	return tag.Tag(id)
}

// Canonical product tags.
const (
	ProductEC2Instance tag.Tag = "EC2 Instance"
	ProductRDS         tag.Tag = "RDS"
	ProductRedshift    tag.Tag = "Redshift"
)

// StaticProducts is an in-memory product registry seeded with the
// provider names the classifier meets in billing exports.
type StaticProducts struct {
	canonical   map[string]tag.Tag
	multiEngine map[tag.Tag]bool
}

// NewStaticProducts builds the default product registry.
func NewStaticProducts() *StaticProducts {
	return &StaticProducts{
		canonical: map[string]tag.Tag{
			"Amazon Elastic Compute Cloud":       ProductEC2Instance,
			"Amazon RDS Service":                 ProductRDS,
			"Amazon Relational Database Service": ProductRDS,
			"Amazon Redshift":                    ProductRedshift,
		},
		multiEngine: map[tag.Tag]bool{
			ProductRDS: true,
		},
	}
}

// Register adds or overrides a provider name mapping.
func (p *StaticProducts) Register(providerName string, canonical tag.Tag, multiEngine bool) {
	p.canonical[providerName] = canonical
	if multiEngine {
		p.multiEngine[canonical] = true
	}
}

// Canonical implements Products.
func (p *StaticProducts) Canonical(providerName string) tag.Tag {
	if t, ok := p.canonical[providerName]; ok {
		return t
	}
	return tag.Tag(providerName)
}

// IsMultiEngine implements Products.
func (p *StaticProducts) IsMultiEngine(product tag.Tag) bool {
	return p.multiEngine[product]
}
