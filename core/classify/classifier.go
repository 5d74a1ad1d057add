package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"cloudcost/core/cube"
	"cloudcost/core/mapper"
	"cloudcost/core/registry"
	"cloudcost/core/tag"
	"cloudcost/internal/logging"
)

// Disposition says how a classified row contributes to the cube.
type Disposition int

// Row dispositions.
const (
	Ignore Disposition = iota
	Hourly
	Daily
	Monthly
)

// String returns the disposition name.
func (d Disposition) String() string {
	switch d {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Monthly:
		return "monthly"
	}
	return "ignore"
}

// ReformedMetaData is the canonical operation and usage type derived
// from one raw row.
type ReformedMetaData struct {
	Operation tag.Operation
	UsageType tag.Tag
}

// Processor classifies raw billing rows and accumulates them into the
// cube. Distinct rows may be processed concurrently as long as cube
// writes are partitioned per (product, hour).
type Processor struct {
	Accounts registry.Accounts
	Products registry.Products

	// DefaultUtilization is the provider-reported utilization class
	// applied when the rate id carries no upfront digits.
	DefaultUtilization tag.Utilization

	// PlanOption resolves a savings-plan ARN to its payment option for
	// naming the bonus operation. Unresolved ARNs fall back to
	// NoUpfront; the splitter re-resolves against the plan itself.
	PlanOption func(arn string) (tag.PurchaseOption, bool)

	// Mappers normalize user-tag values before the resource group is
	// taken from the first custom tag column.
	Mappers []*mapper.TagMapper

	log *zap.Logger
}

// NewProcessor builds a classifier with the given lookup services.
func NewProcessor(accounts registry.Accounts, products registry.Products, defaultUtilization tag.Utilization) *Processor {
	return &Processor{
		Accounts:           accounts,
		Products:           products,
		DefaultUtilization: defaultUtilization,
		log:                logging.With(zap.String("component", "classifier")),
	}
}

const timeLayout = "2006-01-02 15:04:05"

// Textual signature of a one-time reservation purchase row. Purchase
// economics are carried by the Reservation entity, not the raw row.
const signUpCharge = "Sign up charge for subscription"

// hourlyFeeRe matches the recurring-fee description of a partial-upfront
// reservation. When present it is the authoritative classification
// signal, overriding the rate-id digits.
var hourlyFeeRe = regexp.MustCompile(`^USD\s+[0-9.]+\s+hourly fee per`)

// spotMarker flags spot-market usage types.
const spotMarker = "SpotUsage"

// Database engines recognized in multi-engine product descriptions.
var dbEngines = []string{"mysql", "postgresql", "mariadb", "aurora", "sql server", "oracle"}

// usageTypeRegions maps usage-type region prefixes to region tags, used
// when a row carries no availability zone.
var usageTypeRegions = map[string]string{
	"US":   "us-east-1",
	"USE1": "us-east-1",
	"USE2": "us-east-2",
	"USW1": "us-west-1",
	"USW2": "us-west-2",
	"EU":   "eu-west-1",
	"EUW2": "eu-west-2",
	"EUC1": "eu-central-1",
	"APN1": "ap-northeast-1",
	"APN2": "ap-northeast-2",
	"APS1": "ap-southeast-1",
	"APS2": "ap-southeast-2",
	"APS3": "ap-south-1",
	"SAE1": "sa-east-1",
	"CAN1": "ca-central-1",
}

// Reform derives the canonical operation and usage type for one row.
// The decision order is fixed: spot markers win outright; for
// reservation lines the hourly-fee description is authoritative, then
// the rate-id upfront digits, then the supplied utilization class.
func (p *Processor) Reform(utilization tag.Utilization, product tag.Tag, reserved bool, rateID, usageTypeStr, description string, rate float64) ReformedMetaData {
	operation := tag.OnDemand(operationName(rateID))
	usageType := usageTypeStr

	// Split the instance class off the prefixed usage type.
	instanceClass := ""
	if i := strings.Index(usageTypeStr, ":"); i >= 0 {
		instanceClass = usageTypeStr[i+1:]
	}

	if instanceClass != "" {
		usageType = instanceClass
	}

	switch {
	case strings.Contains(usageTypeStr, spotMarker):
		operation = tag.SpotInstances

	case reserved:
		u := utilization
		if du, ok := upfrontDigits(rateID); ok {
			u = du
		}
		if hourlyFeeRe.MatchString(description) {
			u = tag.UtilizationHeavyPartial
		}
		operation = tag.BonusReserved(u)
	}

	if instanceClass != "" {
		if p.Products != nil && p.Products.IsMultiEngine(product) {
			if engine := matchEngine(description); engine != "" {
				usageType = instanceClass + "." + engine
			}
		} else if strings.Contains(description, "Windows") {
			usageType = instanceClass + ".windows"
		}
	}

	return ReformedMetaData{Operation: operation, UsageType: tag.Tag(usageType)}
}

// operationName strips the purchase-offering suffix from a rate id such
// as "RunInstances:0002".
func operationName(rateID string) string {
	if i := strings.Index(rateID, ":"); i >= 0 {
		return rateID[:i]
	}
	return rateID
}

// upfrontDigits decodes the trailing purchase digits of a rate id:
// 0 no upfront, 1 partial, 2 all upfront.
func upfrontDigits(rateID string) (tag.Utilization, bool) {
	i := strings.Index(rateID, ":")
	if i < 0 {
		return 0, false
	}
	suffix := rateID[i+1:]
	if suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	switch suffix[len(suffix)-1] {
	case '1':
		return tag.UtilizationHeavyPartial, true
	case '2':
		return tag.UtilizationFixed, true
	default:
		return tag.UtilizationHeavy, true
	}
}

func matchEngine(description string) string {
	lower := strings.ToLower(description)
	for _, engine := range dbEngines {
		if strings.Contains(lower, engine) {
			return strings.ReplaceAll(engine, " ", "")
		}
	}
	return ""
}

// Process classifies one row and accumulates its usage and cost into
// the cube with add semantics. Malformed or unrecognized rows are
// ignored with a warning, never fatal.
func (p *Processor) Process(idx Index, batchStart time.Time, row []string, data *cube.Data) Disposition {
	if field(row, idx.RecordType) != "LineItem" {
		return Ignore
	}
	description := field(row, idx.Description)
	if strings.Contains(description, signUpCharge) {
		return Ignore
	}

	start, err := time.Parse(timeLayout, field(row, idx.StartDate))
	if err != nil {
		p.log.Warn("unparseable usage start, row ignored",
			zap.String("value", field(row, idx.StartDate)))
		return Ignore
	}
	end, err := time.Parse(timeLayout, field(row, idx.EndDate))
	if err != nil || !end.After(start) {
		p.log.Warn("unparseable usage span, row ignored",
			zap.String("start", field(row, idx.StartDate)),
			zap.String("end", field(row, idx.EndDate)))
		return Ignore
	}

	quantity, err := strconv.ParseFloat(field(row, idx.Quantity), 64)
	if err != nil {
		p.log.Warn("unparseable usage quantity, row ignored",
			zap.String("value", field(row, idx.Quantity)))
		return Ignore
	}
	cost, err := strconv.ParseFloat(field(row, idx.Cost), 64)
	if err != nil {
		p.log.Warn("unparseable cost, row ignored",
			zap.String("value", field(row, idx.Cost)))
		return Ignore
	}
	rate := 0.0
	if s := field(row, idx.Rate); s != "" {
		rate, _ = strconv.ParseFloat(s, 64)
	}

	accountID := field(row, idx.LinkedAccount)
	if accountID == "" {
		accountID = field(row, idx.PayerAccount)
	}
	account := p.Accounts.ByID(accountID)

	product := p.Products.Canonical(field(row, idx.ProductName))
	zone := field(row, idx.Zone)
	region := regionOf(zone, field(row, idx.UsageType))
	reserved := field(row, idx.Reserved) == "Y"

	rmd := p.Reform(p.DefaultUtilization, product, reserved,
		field(row, idx.Operation), field(row, idx.UsageType), description, rate)

	group := tag.Group{
		Account:       account,
		Region:        tag.Tag(region),
		Zone:          tag.Tag(zone),
		Product:       product,
		Operation:     rmd.Operation,
		UsageType:     rmd.UsageType,
		ResourceGroup: p.resourceGroup(idx, row, accountID),
	}

	// A savings-plan covered row stays commitment-tagged until the
	// splitter rewrites it.
	if arn := field(row, idx.SavingsPlanARN); arn != "" {
		option := tag.NoUpfront
		if p.PlanOption != nil {
			if o, ok := p.PlanOption(arn); ok {
				option = o
			}
		}
		group = group.WithOperation(tag.CommitmentBonus(option)).WithCommitment(arn)
	}

	disposition, firstHour, lastHour := p.span(batchStart, start, end, data.Hours())
	if disposition == Ignore {
		return Ignore
	}

	hours := lastHour - firstHour + 1
	usageCube := data.Usage(group.Product)
	costCube := data.Cost(group.Product)
	for h := firstHour; h <= lastHour; h++ {
		usageCube.Add(h, group, quantity/float64(hours))
		costCube.Add(h, group, cost/float64(hours))
	}
	return disposition
}

// span resolves the row's disposition and the hour range it covers,
// clipped to the batch. Hourly rows land on their start hour; daily and
// monthly amounts spread evenly across their covered hours so that
// totals are conserved.
func (p *Processor) span(batchStart, start, end time.Time, hourCount int) (Disposition, int, int) {
	delta := end.Sub(start)
	var d Disposition
	switch {
	case delta <= time.Hour:
		d = Hourly
	case delta <= 24*time.Hour:
		d = Daily
	default:
		d = Monthly
	}

	first := int(start.Sub(batchStart) / time.Hour)
	last := int((end.Sub(batchStart) - time.Nanosecond) / time.Hour)
	if d == Hourly {
		last = first
	}
	if first < 0 {
		first = 0
	}
	if last > hourCount-1 {
		last = hourCount - 1
	}
	if first > last || first >= hourCount || last < 0 {
		p.log.Warn("row outside batch range, ignored",
			zap.Time("start", start), zap.Time("end", end))
		return Ignore, 0, 0
	}
	return d, first, last
}

// resourceGroup applies the configured tag mappers to the custom tag
// columns and takes the first column's value as the resource group.
func (p *Processor) resourceGroup(idx Index, row []string, accountID string) tag.Tag {
	if len(idx.CustomTags) == 0 {
		return ""
	}
	values := make([]string, len(idx.CustomTags))
	for i, col := range idx.CustomTags {
		values[i] = field(row, col)
	}
	for _, m := range p.Mappers {
		values[m.TagIndex()] = m.Apply(accountID, values, values[m.TagIndex()])
	}
	return tag.Tag(values[0])
}

// regionOf derives the region from the availability zone when present,
// falling back to the usage-type region prefix.
func regionOf(zone, usageType string) string {
	if zone != "" {
		trimmed := strings.TrimRight(zone, "abcdef")
		if trimmed != zone && trimmed != "" {
			return trimmed
		}
		return zone
	}
	if i := strings.Index(usageType, "-"); i > 0 {
		if region, ok := usageTypeRegions[usageType[:i]]; ok {
			return region
		}
	}
	return "us-east-1"
}
