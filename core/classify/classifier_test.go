package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudcost/core/cube"
	"cloudcost/core/registry"
	"cloudcost/core/tag"
)

func newTestProcessor(defaultUtilization tag.Utilization) *Processor {
	return NewProcessor(registry.NewStaticAccounts(nil), registry.NewStaticProducts(), defaultUtilization)
}

func TestReformEC2Spot(t *testing.T) {
	p := newTestProcessor(tag.UtilizationHeavy)
	rmd := p.Reform(tag.UtilizationHeavy, registry.ProductEC2Instance, false,
		"RunInstances:SV001", "USW2-SpotUsage:c4.large",
		"c4.large Linux/UNIX Spot Instance-hour in US West (Oregon) in VPC Zone #1", 0.0241)

	assert.Equal(t, tag.SpotInstances, rmd.Operation)
}

func TestReformEC2ReservedPartialUpfront(t *testing.T) {
	p := newTestProcessor(tag.UtilizationHeavyPartial)
	rmd := p.Reform(tag.UtilizationHeavyPartial, registry.ProductEC2Instance, true,
		"RunInstances:0002", "APS2-HeavyUsage:c4.2xlarge",
		"USD 0.34 hourly fee per Windows (Amazon VPC), c4.2xlarge instance", 0.34)

	assert.Equal(t, tag.BonusReserved(tag.UtilizationHeavyPartial), rmd.Operation)
}

func TestReformRDSReservedAllUpfront(t *testing.T) {
	p := newTestProcessor(tag.UtilizationFixed)
	rmd := p.Reform(tag.UtilizationFixed, registry.ProductRDS, true,
		"CreateDBInstance:0002", "APS2-InstanceUsage:db.t2.small",
		"MySQL, db.t2.small reserved instance applied", 0.0)

	assert.Equal(t, tag.BonusReserved(tag.UtilizationFixed), rmd.Operation)
}

func TestReformRDSReservedPartialUpfront(t *testing.T) {
	p := newTestProcessor(tag.UtilizationHeavyPartial)

	rmd := p.Reform(tag.UtilizationHeavyPartial, registry.ProductRDS, true,
		"CreateDBInstance:0002", "APS2-HeavyUsage:db.t2.small",
		"USD 0.021 hourly fee per MySQL, db.t2.small instance", 0.021)
	assert.Equal(t, tag.BonusReserved(tag.UtilizationHeavyPartial), rmd.Operation)
	assert.Equal(t, tag.Tag("db.t2.small.mysql"), rmd.UsageType)

	// The base-usage-type variant names MySQL in the description too.
	rmd = p.Reform(tag.UtilizationHeavyPartial, registry.ProductRDS, true,
		"CreateDBInstance:0001", "APS2-InstanceUsage:db.t2.small",
		"MySQL, db.t2.small reserved instance applied", 0.012)
	assert.Equal(t, tag.BonusReserved(tag.UtilizationHeavyPartial), rmd.Operation)
	assert.Equal(t, tag.Tag("db.t2.small.mysql"), rmd.UsageType)
}

var testHeader = []string{
	"InvoiceID", "PayerAccountId", "LinkedAccountId", "RecordType", "RecordId",
	"ProductName", "RateId", "SubscriptionId", "PricingPlanId", "UsageType",
	"Operation", "AvailabilityZone", "ReservedInstance", "ItemDescription",
	"UsageStartDate", "UsageEndDate", "UsageQuantity", "BlendedRate",
	"BlendedCost", "UnBlendedRate", "UnBlendedCost",
}

var batchStart = time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)

func TestProcessReservedUsageRow(t *testing.T) {
	idx, err := NewIndex(testHeader, nil)
	require.NoError(t, err)

	p := newTestProcessor(tag.UtilizationHeavyPartial)
	data := cube.NewData(744)

	row := []string{
		"Estimated", "123456789012", "234567890123", "LineItem", "64995239622564160456413494",
		"Amazon Elastic Compute Cloud", "15783673", "480197576", "1208006", "APS2-HeavyUsage:c4.2xlarge",
		"RunInstances:0002", "ap-southeast-2a", "Y", "USD 0.34 hourly fee per Windows (Amazon VPC), c4.2xlarge instance",
		"2017-06-01 00:00:00", "2017-06-01 01:00:00", "1.00000000", "0.0000000000",
		"0.00000000", "0.34000", "0.3400000000000",
	}

	assert.Equal(t, Hourly, p.Process(idx, batchStart, row, data))

	want := tag.Group{
		Account:   "234567890123",
		Region:    "ap-southeast-2",
		Zone:      "ap-southeast-2a",
		Product:   registry.ProductEC2Instance,
		Operation: tag.BonusReserved(tag.UtilizationHeavyPartial),
		UsageType: "c4.2xlarge.windows",
	}

	usageGroups := data.Usage(registry.ProductEC2Instance).TagGroupsAt(0)
	require.Len(t, usageGroups, 1)
	assert.Equal(t, want, usageGroups[0])

	v, ok := data.Usage(registry.ProductEC2Instance).Get(0, want)
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)

	costGroups := data.Cost(registry.ProductEC2Instance).TagGroupsAt(0)
	require.Len(t, costGroups, 1)
	v, ok = data.Cost(registry.ProductEC2Instance).Get(0, want)
	require.True(t, ok)
	assert.InDelta(t, 0.34, v, 1e-9)
}

func TestProcessReservationPurchaseRowIgnored(t *testing.T) {
	idx, err := NewIndex(testHeader, nil)
	require.NoError(t, err)

	p := newTestProcessor(tag.UtilizationHeavyPartial)
	data := cube.NewData(744)

	row := []string{
		"Estimated", "123456789012", "234567890123", "LineItem", "64995239622564160456413494",
		"Amazon Elastic Compute Cloud", "0", "", "", "",
		"", "", "Y", "Sign up charge for subscription: 647735683, planId: 2195643",
		"2017-06-09 21:21:37", "2018-06-09 21:21:36", "150.0", "",
		"9832.500000", "", "9832.500000",
	}

	assert.Equal(t, Ignore, p.Process(idx, batchStart, row, data))
	assert.Empty(t, data.Usage(registry.ProductEC2Instance).TagGroupsAt(0))
	assert.Empty(t, data.Cost(registry.ProductEC2Instance).TagGroupsAt(0))
}

func TestProcessNonLineItemIgnored(t *testing.T) {
	idx, err := NewIndex(testHeader, nil)
	require.NoError(t, err)

	p := newTestProcessor(tag.UtilizationHeavy)
	data := cube.NewData(744)

	row := make([]string, len(testHeader))
	row[idx.RecordType] = "AccountTotal"
	assert.Equal(t, Ignore, p.Process(idx, batchStart, row, data))
}

func TestProcessMalformedRowIgnored(t *testing.T) {
	idx, err := NewIndex(testHeader, nil)
	require.NoError(t, err)

	p := newTestProcessor(tag.UtilizationHeavy)
	data := cube.NewData(744)

	row := make([]string, len(testHeader))
	row[idx.RecordType] = "LineItem"
	row[idx.StartDate] = "not a date"
	row[idx.EndDate] = "2017-06-01 01:00:00"
	assert.Equal(t, Ignore, p.Process(idx, batchStart, row, data))
}

func TestProcessRepeatedRowsAccumulate(t *testing.T) {
	idx, err := NewIndex(testHeader, nil)
	require.NoError(t, err)

	p := newTestProcessor(tag.UtilizationHeavy)
	data := cube.NewData(744)

	row := make([]string, len(testHeader))
	row[idx.RecordType] = "LineItem"
	row[idx.LinkedAccount] = "234567890123"
	row[idx.ProductName] = "Amazon Elastic Compute Cloud"
	row[idx.UsageType] = "USW2-BoxUsage:c4.large"
	row[idx.Operation] = "RunInstances"
	row[idx.StartDate] = "2017-06-01 05:00:00"
	row[idx.EndDate] = "2017-06-01 06:00:00"
	row[idx.Quantity] = "1.0"
	row[idx.Cost] = "0.1"

	assert.Equal(t, Hourly, p.Process(idx, batchStart, row, data))
	assert.Equal(t, Hourly, p.Process(idx, batchStart, row, data))

	groups := data.Cost(registry.ProductEC2Instance).TagGroupsAt(5)
	require.Len(t, groups, 1)
	assert.Equal(t, tag.Tag("us-west-2"), groups[0].Region)

	v, _ := data.Cost(registry.ProductEC2Instance).Get(5, groups[0])
	assert.InDelta(t, 0.2, v, 1e-9)
	v, _ = data.Usage(registry.ProductEC2Instance).Get(5, groups[0])
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestProcessDailyRowSpreadsEvenly(t *testing.T) {
	idx, err := NewIndex(testHeader, nil)
	require.NoError(t, err)

	p := newTestProcessor(tag.UtilizationHeavy)
	data := cube.NewData(744)

	row := make([]string, len(testHeader))
	row[idx.RecordType] = "LineItem"
	row[idx.LinkedAccount] = "234567890123"
	row[idx.ProductName] = "Amazon Elastic Compute Cloud"
	row[idx.UsageType] = "USW2-DataTransfer-Out-Bytes"
	row[idx.Operation] = "RunInstances"
	row[idx.StartDate] = "2017-06-02 00:00:00"
	row[idx.EndDate] = "2017-06-03 00:00:00"
	row[idx.Quantity] = "48.0"
	row[idx.Cost] = "2.4"

	assert.Equal(t, Daily, p.Process(idx, batchStart, row, data))

	cost := data.Cost(registry.ProductEC2Instance)
	total := 0.0
	for h := 24; h < 48; h++ {
		groups := cost.TagGroupsAt(h)
		require.Len(t, groups, 1, "hour %d", h)
		v, _ := cost.Get(h, groups[0])
		assert.InDelta(t, 0.1, v, 1e-9)
		total += v
	}
	assert.InDelta(t, 2.4, total, 1e-9)
	assert.Empty(t, cost.TagGroupsAt(48))
}

func TestProcessSavingsPlanRowStaysCommitmentTagged(t *testing.T) {
	header := append(append([]string{}, testHeader...), "SavingsPlanArn")
	idx, err := NewIndex(header, nil)
	require.NoError(t, err)

	const arn = "arn:aws:savingsplans::111111111111:savingsplan/sp-1"
	p := newTestProcessor(tag.UtilizationHeavy)
	p.PlanOption = func(got string) (tag.PurchaseOption, bool) {
		if got == arn {
			return tag.PartialUpfront, true
		}
		return tag.NoUpfront, false
	}
	data := cube.NewData(744)

	row := make([]string, len(header))
	row[idx.RecordType] = "LineItem"
	row[idx.LinkedAccount] = "234567890123"
	row[idx.ProductName] = "Amazon Elastic Compute Cloud"
	row[idx.UsageType] = "USW2-BoxUsage:c4.large"
	row[idx.Operation] = "RunInstances"
	row[idx.StartDate] = "2017-06-01 00:00:00"
	row[idx.EndDate] = "2017-06-01 01:00:00"
	row[idx.Quantity] = "1.0"
	row[idx.Cost] = "0.05"
	row[idx.SavingsPlanARN] = arn

	assert.Equal(t, Hourly, p.Process(idx, batchStart, row, data))

	groups := data.Cost(registry.ProductEC2Instance).TagGroupsAt(0)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].IsCommitmentTagged())
	assert.Equal(t, arn, groups[0].CommitmentID)
	assert.Equal(t, tag.CommitmentBonus(tag.PartialUpfront), groups[0].Operation)
}

func TestIndexRejectsMissingColumns(t *testing.T) {
	_, err := NewIndex([]string{"InvoiceID", "RecordType"}, nil)
	assert.Error(t, err)
}

func TestIndexResolvesCustomTagColumns(t *testing.T) {
	header := append(append([]string{}, testHeader...), "user:Env", "user:Team")
	idx, err := NewIndex(header, []string{"Env", "Team", "Missing"})
	require.NoError(t, err)
	assert.Equal(t, []int{len(testHeader), len(testHeader) + 1, -1}, idx.CustomTags)
}
