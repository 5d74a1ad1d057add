// Package commitment models reservation and savings-plan commitments
// and redistributes commitment-covered amounts in the cube into their
// amortized, recurring, borrowed, and lent components.
package commitment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/shopspring/decimal"

	"cloudcost/internal/errors"
)

// Frequency of a recurring charge.
const FrequencyHourly = "Hourly"

// RecurringCharge is one recurring fee attached to a reservation.
type RecurringCharge struct {
	Frequency string
	Amount    decimal.Decimal
}

func (r RecurringCharge) String() string {
	return r.Frequency + ":" + r.Amount.String()
}

// Reservation is the unified reservation entity. EC2 reserved
// instances, RDS reserved DB instances, and Redshift reserved nodes all
// translate into this one shape so downstream code treats them
// uniformly. Held read-only for the duration of a processing run.
type Reservation struct {
	AccountID     string
	Product       string
	Region        string
	ReservationID string
	OfferingID    string
	InstanceType  string
	Zone          string
	MultiAZ       bool
	Start         time.Time
	End           time.Time
	Duration      int64
	UsagePrice    decimal.Decimal
	FixedPrice    decimal.Decimal
	InstanceCount int
	Description   string
	State         string
	Currency      string
	OfferingType  string
	Recurring     []RecurringCharge
}

// FromEC2 translates an EC2 reserved instance.
func FromEC2(accountID, region string, ri ec2types.ReservedInstances) Reservation {
	r := Reservation{
		AccountID:     accountID,
		Product:       "EC2",
		Region:        region,
		ReservationID: aws.ToString(ri.ReservedInstancesId),
		InstanceType:  string(ri.InstanceType),
		Zone:          aws.ToString(ri.AvailabilityZone),
		Start:         aws.ToTime(ri.Start),
		End:           aws.ToTime(ri.End),
		Duration:      aws.ToInt64(ri.Duration),
		UsagePrice:    decimal.NewFromFloat32(aws.ToFloat32(ri.UsagePrice)),
		FixedPrice:    decimal.NewFromFloat32(aws.ToFloat32(ri.FixedPrice)),
		InstanceCount: int(aws.ToInt32(ri.InstanceCount)),
		Description:   string(ri.ProductDescription),
		State:         string(ri.State),
		Currency:      string(ri.CurrencyCode),
		OfferingType:  string(ri.OfferingType),
	}
	for _, rc := range ri.RecurringCharges {
		r.Recurring = append(r.Recurring, RecurringCharge{
			Frequency: string(rc.Frequency),
			Amount:    decimal.NewFromFloat(aws.ToFloat64(rc.Amount)),
		})
	}
	return r
}

// FromRDS translates an RDS reserved DB instance. RDS reports no end
// time, so it is derived from start plus duration.
func FromRDS(accountID, region string, ri rdstypes.ReservedDBInstance) Reservation {
	start := aws.ToTime(ri.StartTime)
	duration := int64(aws.ToInt32(ri.Duration))
	r := Reservation{
		AccountID:     accountID,
		Product:       "RDS",
		Region:        region,
		ReservationID: aws.ToString(ri.ReservedDBInstanceId),
		OfferingID:    aws.ToString(ri.ReservedDBInstancesOfferingId),
		InstanceType:  aws.ToString(ri.DBInstanceClass),
		MultiAZ:       aws.ToBool(ri.MultiAZ),
		Start:         start,
		End:           start.Add(time.Duration(duration) * time.Second),
		Duration:      duration,
		UsagePrice:    decimal.NewFromFloat(aws.ToFloat64(ri.UsagePrice)),
		FixedPrice:    decimal.NewFromFloat(aws.ToFloat64(ri.FixedPrice)),
		InstanceCount: int(aws.ToInt32(ri.DBInstanceCount)),
		Description:   aws.ToString(ri.ProductDescription),
		State:         aws.ToString(ri.State),
		Currency:      aws.ToString(ri.CurrencyCode),
		OfferingType:  aws.ToString(ri.OfferingType),
	}
	for _, rc := range ri.RecurringCharges {
		r.Recurring = append(r.Recurring, RecurringCharge{
			Frequency: aws.ToString(rc.RecurringChargeFrequency),
			Amount:    decimal.NewFromFloat(aws.ToFloat64(rc.RecurringChargeAmount)),
		})
	}
	return r
}

// RedshiftReservedNode is the provider record for a Redshift reserved
// node, declared locally since the engine only consumes, never fetches.
type RedshiftReservedNode struct {
	ReservedNodeID         string
	ReservedNodeOfferingID string
	NodeType               string
	Start                  time.Time
	Duration               int64
	UsagePrice             float64
	FixedPrice             float64
	NodeCount              int
	State                  string
	CurrencyCode           string
	OfferingType           string
	Recurring              []RecurringCharge
}

// FromRedshift translates a Redshift reserved node.
func FromRedshift(accountID, region string, rn RedshiftReservedNode) Reservation {
	return Reservation{
		AccountID:     accountID,
		Product:       "Redshift",
		Region:        region,
		ReservationID: rn.ReservedNodeID,
		OfferingID:    rn.ReservedNodeOfferingID,
		InstanceType:  rn.NodeType,
		Start:         rn.Start,
		End:           rn.Start.Add(time.Duration(rn.Duration) * time.Second),
		Duration:      rn.Duration,
		UsagePrice:    decimal.NewFromFloat(rn.UsagePrice),
		FixedPrice:    decimal.NewFromFloat(rn.FixedPrice),
		InstanceCount: rn.NodeCount,
		State:         rn.State,
		Currency:      rn.CurrencyCode,
		OfferingType:  rn.OfferingType,
		Recurring:     rn.Recurring,
	}
}

// RecurringHourly returns the summed hourly recurring charge.
func (r Reservation) RecurringHourly() decimal.Decimal {
	total := decimal.Zero
	for _, rc := range r.Recurring {
		if rc.Frequency == FrequencyHourly {
			total = total.Add(rc.Amount)
		}
	}
	return total
}

// Record renders the reservation as a flat comma-delimited record with
// a pipe-delimited recurring-charge sub-list, for caching between runs.
// ParseReservation is the inverse.
func (r Reservation) Record() string {
	charges := make([]string, len(r.Recurring))
	for i, rc := range r.Recurring {
		charges[i] = rc.String()
	}
	fields := []string{
		r.AccountID,
		r.Product,
		r.Region,
		r.ReservationID,
		r.OfferingID,
		r.InstanceType,
		r.Zone,
		strconv.FormatBool(r.MultiAZ),
		strconv.FormatInt(r.Start.UnixMilli(), 10),
		strconv.FormatInt(r.End.UnixMilli(), 10),
		strconv.FormatInt(r.Duration, 10),
		r.UsagePrice.String(),
		r.FixedPrice.String(),
		strconv.Itoa(r.InstanceCount),
		r.Description,
		r.State,
		r.Currency,
		r.OfferingType,
		strings.Join(charges, "|"),
	}
	return strings.Join(fields, ",")
}

// ParseReservation decodes a record produced by Record.
func ParseReservation(record string) (Reservation, error) {
	tokens := strings.Split(record, ",")
	if len(tokens) < 18 {
		return Reservation{}, errors.Data(fmt.Sprintf("reservation record has %d fields, want at least 18", len(tokens)))
	}

	var r Reservation
	r.AccountID = tokens[0]
	r.Product = tokens[1]
	r.Region = tokens[2]
	r.ReservationID = tokens[3]
	r.OfferingID = tokens[4]
	r.InstanceType = tokens[5]
	r.Zone = tokens[6]
	r.MultiAZ = tokens[7] == "true"

	startMilli, err := strconv.ParseInt(tokens[8], 10, 64)
	if err != nil {
		return Reservation{}, errors.Wrap(errors.TypeData, "bad reservation start", err)
	}
	endMilli, err := strconv.ParseInt(tokens[9], 10, 64)
	if err != nil {
		return Reservation{}, errors.Wrap(errors.TypeData, "bad reservation end", err)
	}
	r.Start = time.UnixMilli(startMilli).UTC()
	r.End = time.UnixMilli(endMilli).UTC()

	if r.Duration, err = strconv.ParseInt(tokens[10], 10, 64); err != nil {
		return Reservation{}, errors.Wrap(errors.TypeData, "bad reservation duration", err)
	}
	if r.UsagePrice, err = decimal.NewFromString(tokens[11]); err != nil {
		return Reservation{}, errors.Wrap(errors.TypeData, "bad usage price", err)
	}
	if r.FixedPrice, err = decimal.NewFromString(tokens[12]); err != nil {
		return Reservation{}, errors.Wrap(errors.TypeData, "bad fixed price", err)
	}
	if r.InstanceCount, err = strconv.Atoi(tokens[13]); err != nil {
		return Reservation{}, errors.Wrap(errors.TypeData, "bad instance count", err)
	}
	r.Description = tokens[14]
	r.State = tokens[15]
	r.Currency = tokens[16]
	r.OfferingType = tokens[17]

	if len(tokens) > 18 && tokens[18] != "" {
		for _, charge := range strings.Split(tokens[18], "|") {
			parts := strings.SplitN(charge, ":", 2)
			if len(parts) != 2 {
				return Reservation{}, errors.Data("bad recurring charge: " + charge)
			}
			amount, err := decimal.NewFromString(parts[1])
			if err != nil {
				return Reservation{}, errors.Wrap(errors.TypeData, "bad recurring charge amount", err)
			}
			r.Recurring = append(r.Recurring, RecurringCharge{Frequency: parts[0], Amount: amount})
		}
	}
	return r, nil
}
