package cube

import (
	"sort"

	"cloudcost/core/tag"
)

// FactType selects which cube a value belongs to.
type FactType int

// Fact types.
const (
	Usage FactType = iota
	Cost
)

// ParseFactType resolves a fact type by configuration name.
func ParseFactType(name string) (FactType, bool) {
	switch name {
	case "usage":
		return Usage, true
	case "cost":
		return Cost, true
	}
	return Usage, false
}

// String returns the configuration name of the fact type.
func (f FactType) String() string {
	if f == Cost {
		return "cost"
	}
	return "usage"
}

// Data holds the usage and cost cubes for every product in a batch.
// Product cubes are created on demand and share one hour count.
type Data struct {
	hourCount int
	usage     map[tag.Tag]*Cube
	cost      map[tag.Tag]*Cube
}

// NewData creates an empty per-product cube store.
func NewData(hourCount int) *Data {
	if hourCount < 1 {
		hourCount = 1
	}
	return &Data{
		hourCount: hourCount,
		usage:     make(map[tag.Tag]*Cube),
		cost:      make(map[tag.Tag]*Cube),
	}
}

// Hours returns the shared hour count.
func (d *Data) Hours() int {
	return d.hourCount
}

// Usage returns the usage cube for a product, creating it if needed.
func (d *Data) Usage(product tag.Tag) *Cube {
	c, ok := d.usage[product]
	if !ok {
		c = New(d.hourCount)
		d.usage[product] = c
	}
	return c
}

// Cost returns the cost cube for a product, creating it if needed.
func (d *Data) Cost(product tag.Tag) *Cube {
	c, ok := d.cost[product]
	if !ok {
		c = New(d.hourCount)
		d.cost[product] = c
	}
	return c
}

// Get returns the cube for the fact type and product.
func (d *Data) Get(t FactType, product tag.Tag) *Cube {
	if t == Cost {
		return d.Cost(product)
	}
	return d.Usage(product)
}

// Products returns the sorted union of products present in either cube.
func (d *Data) Products() []tag.Tag {
	set := make(map[tag.Tag]struct{}, len(d.usage))
	for p := range d.usage {
		set[p] = struct{}{}
	}
	for p := range d.cost {
		set[p] = struct{}{}
	}
	products := make([]tag.Tag, 0, len(set))
	for p := range set {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Less(products[j]) })
	return products
}
