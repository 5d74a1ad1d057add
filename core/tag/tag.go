// Package tag defines the billing dimension model: tags, operations, and
// the composite tag group key that every fact in the data cube is stored
// under.
package tag

import "strings"

// Tag is a single case-sensitive billing dimension value.
type Tag string

// Aggregated is the sentinel tag used for dimensions that have been
// collapsed by an aggregation. It sorts before every other tag and
// compares equal only to itself.
const Aggregated Tag = "aggregated"

// String returns the tag value.
func (t Tag) String() string {
	return string(t)
}

// IsAggregated reports whether the tag is the aggregation sentinel.
func (t Tag) IsAggregated() bool {
	return t == Aggregated
}

// Compare imposes the total tag ordering: the aggregated sentinel first,
// then case-insensitive lexicographic with a case-sensitive tiebreak.
func (t Tag) Compare(o Tag) int {
	if t == Aggregated || o == Aggregated {
		switch {
		case t == o:
			return 0
		case t == Aggregated:
			return -1
		default:
			return 1
		}
	}
	lt, lo := strings.ToLower(string(t)), strings.ToLower(string(o))
	if lt != lo {
		return strings.Compare(lt, lo)
	}
	return strings.Compare(string(t), string(o))
}

// Less reports whether t sorts before o.
func (t Tag) Less(o Tag) bool {
	return t.Compare(o) < 0
}

// Dimension identifies one axis of a tag group.
type Dimension int

// Tag group dimensions, in key order.
const (
	DimAccount Dimension = iota
	DimRegion
	DimZone
	DimProduct
	DimOperation
	DimUsageType
	DimResourceGroup
)

var dimensionNames = map[string]Dimension{
	"account":       DimAccount,
	"region":        DimRegion,
	"zone":          DimZone,
	"product":       DimProduct,
	"operation":     DimOperation,
	"usageType":     DimUsageType,
	"resourceGroup": DimResourceGroup,
}

// ParseDimension resolves a dimension by its configuration name.
func ParseDimension(name string) (Dimension, bool) {
	d, ok := dimensionNames[name]
	return d, ok
}

// String returns the configuration name of the dimension.
func (d Dimension) String() string {
	for name, dim := range dimensionNames {
		if dim == d {
			return name
		}
	}
	return "unknown"
}
