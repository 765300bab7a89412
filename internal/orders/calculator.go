// Package orders implements the order tax pipeline: per-row calculation,
// CSV ingestion, persistence and the resumable import executor.
package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/taxrate"
)

// MinSupportedDate is the earliest order timestamp the rate tables cover.
var MinSupportedDate = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

// Resolver maps a coordinate to a jurisdiction reporting code.
type Resolver interface {
	Resolve(lat, lon float64) (code string, ok bool, err error)
}

// Computed is a fully materialized order calculation: fixed-precision
// amounts, the composite rate and the per-category rates, plus the raw
// jurisdiction payload.
type Computed struct {
	Latitude         float64
	Longitude        float64
	Subtotal         decimal.Decimal
	Timestamp        time.Time
	ReportingCode    string
	Jurisdictions    taxrate.Jurisdictions
	CompositeTaxRate decimal.Decimal
	TaxAmount        decimal.Decimal
	TotalAmount      decimal.Decimal
	StateRate        decimal.Decimal
	CountyRate       decimal.Decimal
	CityRate         decimal.Decimal
	SpecialRates     decimal.Decimal
}

// Calculator combines the jurisdiction resolver and the rate catalog.
// Immutable and safe for concurrent use.
type Calculator struct {
	resolver Resolver
	rates    taxrate.Lookuper
}

// NewCalculator wires a resolver and a rate catalog.
func NewCalculator(resolver Resolver, rates taxrate.Lookuper) *Calculator {
	return &Calculator{resolver: resolver, rates: rates}
}

// Compute resolves the coordinate, looks up the rate breakdown and produces
// the materialized order amounts. Amounts round half-up to 2 decimals, rates
// to 5.
func (c *Calculator) Compute(lat, lon float64, ts time.Time, subtotal decimal.Decimal) (*Computed, error) {
	if err := validateOrderInput(ts, subtotal); err != nil {
		return nil, err
	}

	code, ok, err := c.resolver.Resolve(lat, lon)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.OutsideCoverage()
	}

	return c.computeForCode(code, lat, lon, ts, subtotal)
}

// ComputeByReportingCode skips resolution and prices against a known code.
func (c *Calculator) ComputeByReportingCode(code string, lat, lon float64, ts time.Time, subtotal decimal.Decimal) (*Computed, error) {
	if err := validateOrderInput(ts, subtotal); err != nil {
		return nil, err
	}
	return c.computeForCode(code, lat, lon, ts, subtotal)
}

func (c *Calculator) computeForCode(code string, lat, lon float64, ts time.Time, subtotal decimal.Decimal) (*Computed, error) {
	breakdown, err := c.rates.Lookup(code)
	if err != nil {
		return nil, err
	}
	if breakdown == nil {
		return nil, apperr.RateNotFound(code)
	}

	sub := subtotal.Round(2)
	composite := rate5(breakdown.Composite)
	tax := sub.Mul(composite).Round(2)
	total := sub.Add(tax).Round(2)

	return &Computed{
		Latitude:         lat,
		Longitude:        lon,
		Subtotal:         sub,
		Timestamp:        ts,
		ReportingCode:    breakdown.ReportingCode,
		Jurisdictions:    breakdown.Jurisdictions,
		CompositeTaxRate: composite,
		TaxAmount:        tax,
		TotalAmount:      total,
		StateRate:        rate5(breakdown.StateRate),
		CountyRate:       rate5(breakdown.CountyRate),
		CityRate:         rate5(breakdown.CityRate),
		SpecialRates:     rate5(breakdown.SpecialRates),
	}, nil
}

func validateOrderInput(ts time.Time, subtotal decimal.Decimal) error {
	if subtotal.IsNegative() {
		return apperr.Validation("subtotal must not be negative", "subtotal")
	}
	if ts.Before(MinSupportedDate) {
		return apperr.Validation(
			fmt.Sprintf("timestamps before %s are not supported", MinSupportedDate.Format("2006-01-02")),
			"timestamp")
	}
	return nil
}

// rate5 converts a float rate to a 5-decimal fixed value. decimal.Round is
// half-away-from-zero, which matches half-up for the non-negative rates used
// here.
func rate5(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(5)
}
