package cube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudcost/core/tag"
)

func group(account, usageType string) tag.Group {
	return tag.NewGroup(account, "us-east-1", "", "ec2", tag.OnDemand("RunInstances"), usageType, "")
}

func TestAddAccumulates(t *testing.T) {
	c := New(24)
	g := group("111", "c4.large")

	c.Add(3, g, 1.5)
	c.Add(3, g, 2.5)

	v, ok := c.Get(3, g)
	require.True(t, ok)
	assert.Equal(t, 4.0, v)
}

func TestGetAbsent(t *testing.T) {
	c := New(24)
	_, ok := c.Get(0, group("111", "c4.large"))
	assert.False(t, ok)
	_, ok = c.Get(99, group("111", "c4.large"))
	assert.False(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	c := New(1)
	g := group("111", "c4.large")
	c.Add(0, g, 10)
	c.Put(0, g, 3)

	v, _ := c.Get(0, g)
	assert.Equal(t, 3.0, v)
}

func TestRemoveReturnsValueZeroIfAbsent(t *testing.T) {
	c := New(2)
	g := group("111", "c4.large")
	c.Add(1, g, 7)

	assert.Equal(t, 7.0, c.Remove(1, g))
	assert.Equal(t, 0.0, c.Remove(1, g))
	_, ok := c.Get(1, g)
	assert.False(t, ok)
}

func TestTagGroupsUnion(t *testing.T) {
	c := New(3)
	a := group("111", "c4.large")
	b := group("222", "c4.xlarge")
	c.Add(0, a, 1)
	c.Add(2, b, 1)

	assert.Len(t, c.TagGroupsAt(0), 1)
	assert.Empty(t, c.TagGroupsAt(1))

	union := c.TagGroups()
	assert.Len(t, union, 2)
	_, ok := union[a]
	assert.True(t, ok)
	_, ok = union[b]
	assert.True(t, ok)
}

func TestDataSharesHourCountAcrossProducts(t *testing.T) {
	d := NewData(744)
	assert.Equal(t, 744, d.Usage("ec2").Hours())
	assert.Equal(t, 744, d.Cost("rds").Hours())
	assert.Same(t, d.Usage("ec2"), d.Usage("ec2"))
	assert.Same(t, d.Usage("ec2"), d.Get(Usage, "ec2"))
	assert.Same(t, d.Cost("ec2"), d.Get(Cost, "ec2"))
}

func TestDataProductsSorted(t *testing.T) {
	d := NewData(1)
	d.Cost("rds")
	d.Usage("ec2")
	d.Usage("rds")

	assert.Equal(t, []tag.Tag{"ec2", "rds"}, d.Products())
}
