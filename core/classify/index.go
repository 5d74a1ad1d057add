// Package classify converts raw billing export rows into canonical tag
// groups and accumulates their usage and cost into the data cube.
package classify

import (
	"strings"

	"cloudcost/internal/errors"
)

// Index maps the logical billing columns to their positions in one
// export's header. Column order and presence vary between exports, so
// the index is rebuilt once per batch and passed by value; there is no
// global layout state.
type Index struct {
	InvoiceID      int
	PayerAccount   int
	LinkedAccount  int
	RecordType     int
	ProductName    int
	RateID         int
	UsageType      int
	Operation      int
	Zone           int
	Reserved       int
	Description    int
	StartDate      int
	EndDate        int
	Quantity       int
	Rate           int
	Cost           int
	SavingsPlanARN int

	// CustomTags holds the positions of the configured user-tag
	// columns, in configuration order. Missing columns are -1.
	CustomTags []int
}

// Column name variants seen across export generations.
var columnNames = map[string][]string{
	"invoiceID":      {"InvoiceID"},
	"payerAccount":   {"PayerAccountId"},
	"linkedAccount":  {"LinkedAccountId"},
	"recordType":     {"RecordType"},
	"productName":    {"ProductName"},
	"rateID":         {"RateId"},
	"usageType":      {"UsageType"},
	"operation":      {"Operation"},
	"zone":           {"AvailabilityZone"},
	"reserved":       {"ReservedInstance"},
	"description":    {"ItemDescription"},
	"startDate":      {"UsageStartDate"},
	"endDate":        {"UsageEndDate"},
	"quantity":       {"UsageQuantity"},
	"rate":           {"UnBlendedRate", "Rate"},
	"cost":           {"UnBlendedCost", "Cost"},
	"savingsPlanARN": {"SavingsPlanArn"},
}

// Required logical columns. The rest are optional and left at -1 when
// the export does not carry them.
var requiredColumns = []string{
	"linkedAccount", "recordType", "productName", "usageType",
	"operation", "description", "startDate", "endDate", "quantity", "cost",
}

// NewIndex resolves the logical columns against an export header.
func NewIndex(header []string, customTagKeys []string) (Index, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}

	find := func(logical string) int {
		for _, name := range columnNames[logical] {
			if i, ok := pos[name]; ok {
				return i
			}
		}
		return -1
	}

	idx := Index{
		InvoiceID:      find("invoiceID"),
		PayerAccount:   find("payerAccount"),
		LinkedAccount:  find("linkedAccount"),
		RecordType:     find("recordType"),
		ProductName:    find("productName"),
		RateID:         find("rateID"),
		UsageType:      find("usageType"),
		Operation:      find("operation"),
		Zone:           find("zone"),
		Reserved:       find("reserved"),
		Description:    find("description"),
		StartDate:      find("startDate"),
		EndDate:        find("endDate"),
		Quantity:       find("quantity"),
		Rate:           find("rate"),
		Cost:           find("cost"),
		SavingsPlanARN: find("savingsPlanARN"),
	}

	var missing []string
	indexByLogical := map[string]int{
		"linkedAccount": idx.LinkedAccount, "recordType": idx.RecordType,
		"productName": idx.ProductName, "usageType": idx.UsageType,
		"operation": idx.Operation, "description": idx.Description,
		"startDate": idx.StartDate, "endDate": idx.EndDate,
		"quantity": idx.Quantity, "cost": idx.Cost,
	}
	for _, logical := range requiredColumns {
		if indexByLogical[logical] < 0 {
			missing = append(missing, logical)
		}
	}
	if len(missing) > 0 {
		return Index{}, errors.Configf("billing header missing columns: %s", strings.Join(missing, ", "))
	}

	for _, key := range customTagKeys {
		i, ok := pos["user:"+key]
		if !ok {
			if i, ok = pos[key]; !ok {
				i = -1
			}
		}
		idx.CustomTags = append(idx.CustomTags, i)
	}
	return idx, nil
}

// field returns the row value at a resolved column, empty when the
// column is absent or the row is short.
func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
