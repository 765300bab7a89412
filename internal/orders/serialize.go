package orders

import (
	"time"

	"github.com/sells-group/taxpoint/internal/model"
	"github.com/sells-group/taxpoint/internal/taxrate"
)

// OrderRead is the API projection of a persisted order. Monetary fields are
// emitted as JSON numbers.
type OrderRead struct {
	ID               int64                 `json:"id"`
	UserID           *int64                `json:"user_id"`
	AuthorLogin      *string               `json:"author_login"`
	Latitude         float64               `json:"latitude"`
	Longitude        float64               `json:"longitude"`
	Subtotal         float64               `json:"subtotal"`
	Timestamp        time.Time             `json:"timestamp"`
	ReportingCode    string                `json:"reporting_code"`
	Jurisdictions    taxrate.Jurisdictions `json:"jurisdictions"`
	CompositeTaxRate float64               `json:"composite_tax_rate"`
	TaxAmount        float64               `json:"tax_amount"`
	TotalAmount      float64               `json:"total_amount"`
	StateRate        float64               `json:"state_rate"`
	CountyRate       float64               `json:"county_rate"`
	CityRate         float64               `json:"city_rate"`
	SpecialRates     float64               `json:"special_rates"`
	CreatedAt        time.Time             `json:"created_at"`
}

// SerializeOrder converts a stored order to its API projection.
func SerializeOrder(o *model.Order) OrderRead {
	return OrderRead{
		ID:               o.ID,
		UserID:           o.UserID,
		AuthorLogin:      o.AuthorLogin,
		Latitude:         o.Latitude,
		Longitude:        o.Longitude,
		Subtotal:         o.Subtotal.InexactFloat64(),
		Timestamp:        o.Timestamp,
		ReportingCode:    o.ReportingCode,
		Jurisdictions:    o.Jurisdictions,
		CompositeTaxRate: o.CompositeTaxRate.InexactFloat64(),
		TaxAmount:        o.TaxAmount.InexactFloat64(),
		TotalAmount:      o.TotalAmount.InexactFloat64(),
		StateRate:        o.StateRate.InexactFloat64(),
		CountyRate:       o.CountyRate.InexactFloat64(),
		CityRate:         o.CityRate.InexactFloat64(),
		SpecialRates:     o.SpecialRates.InexactFloat64(),
		CreatedAt:        o.CreatedAt,
	}
}

// SerializeOrders converts a list, preserving order.
func SerializeOrders(list []model.Order) []OrderRead {
	out := make([]OrderRead, len(list))
	for idx := range list {
		out[idx] = SerializeOrder(&list[idx])
	}
	return out
}

// TaxPreview is the calculation result without persistence: what an order
// would cost at a coordinate.
type TaxPreview struct {
	Latitude         float64               `json:"latitude"`
	Longitude        float64               `json:"longitude"`
	Subtotal         float64               `json:"subtotal"`
	Timestamp        time.Time             `json:"timestamp"`
	ReportingCode    string                `json:"reporting_code"`
	Jurisdictions    taxrate.Jurisdictions `json:"jurisdictions"`
	CompositeTaxRate float64               `json:"composite_tax_rate"`
	TaxAmount        float64               `json:"tax_amount"`
	TotalAmount      float64               `json:"total_amount"`
	StateRate        float64               `json:"state_rate"`
	CountyRate       float64               `json:"county_rate"`
	CityRate         float64               `json:"city_rate"`
	SpecialRates     float64               `json:"special_rates"`
}

// SerializePreview converts a calculation to the preview payload.
func SerializePreview(c *Computed) TaxPreview {
	return TaxPreview{
		Latitude:         c.Latitude,
		Longitude:        c.Longitude,
		Subtotal:         c.Subtotal.InexactFloat64(),
		Timestamp:        c.Timestamp,
		ReportingCode:    c.ReportingCode,
		Jurisdictions:    c.Jurisdictions,
		CompositeTaxRate: c.CompositeTaxRate.InexactFloat64(),
		TaxAmount:        c.TaxAmount.InexactFloat64(),
		TotalAmount:      c.TotalAmount.InexactFloat64(),
		StateRate:        c.StateRate.InexactFloat64(),
		CountyRate:       c.CountyRate.InexactFloat64(),
		CityRate:         c.CityRate.InexactFloat64(),
		SpecialRates:     c.SpecialRates.InexactFloat64(),
	}
}
