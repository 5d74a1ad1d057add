// Package cube implements the hour-indexed data cube that holds usage
// and cost facts keyed by tag group. The cube is the sole integration
// point between the classifier, the commitment splitter, and the rule
// engine.
package cube

import (
	"cloudcost/core/tag"
)

// Cube stores one fact type (usage or cost) as a fixed-length array of
// sparse per-hour maps. The hour count is fixed at construction to the
// batch's span; monthly-only callers use a single slot.
//
// The cube performs no locking. Callers partition writes per hour (or
// per product then hour) when running data-parallel.
type Cube struct {
	hours []map[tag.Group]float64
}

// New creates a cube spanning the given number of hours.
func New(hourCount int) *Cube {
	if hourCount < 1 {
		hourCount = 1
	}
	return &Cube{hours: make([]map[tag.Group]float64, hourCount)}
}

// Hours returns the number of hour slots.
func (c *Cube) Hours() int {
	return len(c.hours)
}

// Get returns the value recorded for the group at the hour.
func (c *Cube) Get(hour int, g tag.Group) (float64, bool) {
	if hour < 0 || hour >= len(c.hours) || c.hours[hour] == nil {
		return 0, false
	}
	v, ok := c.hours[hour][g]
	return v, ok
}

// Put overwrites the value for the group at the hour.
func (c *Cube) Put(hour int, g tag.Group, v float64) {
	if c.hours[hour] == nil {
		c.hours[hour] = make(map[tag.Group]float64)
	}
	c.hours[hour][g] = v
}

// Add accumulates a delta onto the group at the hour, treating an
// absent value as zero. Repeated rows resolving to the same group sum
// instead of clobbering.
func (c *Cube) Add(hour int, g tag.Group, delta float64) {
	if c.hours[hour] == nil {
		c.hours[hour] = make(map[tag.Group]float64)
	}
	c.hours[hour][g] += delta
}

// Remove deletes the group's value at the hour and returns it, zero if
// absent.
func (c *Cube) Remove(hour int, g tag.Group) float64 {
	if hour < 0 || hour >= len(c.hours) || c.hours[hour] == nil {
		return 0
	}
	v := c.hours[hour][g]
	delete(c.hours[hour], g)
	return v
}

// TagGroupsAt returns the set of groups with a value at the hour.
func (c *Cube) TagGroupsAt(hour int) []tag.Group {
	if hour < 0 || hour >= len(c.hours) {
		return nil
	}
	groups := make([]tag.Group, 0, len(c.hours[hour]))
	for g := range c.hours[hour] {
		groups = append(groups, g)
	}
	return groups
}

// TagGroups returns the union of groups across all hours.
func (c *Cube) TagGroups() map[tag.Group]struct{} {
	set := make(map[tag.Group]struct{})
	for _, m := range c.hours {
		for g := range m {
			set[g] = struct{}{}
		}
	}
	return set
}
