// Package model defines the persisted row types.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/taxpoint/internal/taxrate"
)

// Order is one persisted point-of-sale order with its materialized tax
// breakdown. Monetary columns are 2-decimal, rate columns 5-decimal.
type Order struct {
	ID               int64
	UserID           *int64
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
	CreatedAt        time.Time

	// AuthorLogin is a join-time decoration, not a column.
	AuthorLogin *string
}
