package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/taxpoint/internal/apperr"
)

const statsDateLayout = "2006.01.02"

// ParseStatsDate parses the YYYY.MM.DD form the stats endpoint accepts.
func ParseStatsDate(raw, field string) (time.Time, error) {
	ts, err := time.Parse(statsDateLayout, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("date must be in YYYY.MM.DD format", field)
	}
	return ts.UTC(), nil
}

// DailyBucket is one day of aggregated order totals.
type DailyBucket struct {
	Date        string  `json:"date"`
	Orders      int     `json:"orders"`
	TotalAmount float64 `json:"total_amount"`
	TaxAmount   float64 `json:"tax_amount"`
}

// AggregateDaily buckets stat points into one entry per day over [from, to],
// including empty days, amounts rounded half-up to 2 decimals.
func AggregateDaily(points []StatPoint, from, to time.Time) []DailyBucket {
	type totals struct {
		orders int
		total  decimal.Decimal
		tax    decimal.Decimal
	}
	byDay := map[string]*totals{}
	for _, p := range points {
		key := p.Timestamp.UTC().Format(statsDateLayout)
		t, ok := byDay[key]
		if !ok {
			t = &totals{}
			byDay[key] = t
		}
		t.orders++
		t.total = t.total.Add(p.TotalAmount)
		t.tax = t.tax.Add(p.TaxAmount)
	}

	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)

	var buckets []DailyBucket
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := day.Format(statsDateLayout)
		bucket := DailyBucket{Date: key}
		if t, ok := byDay[key]; ok {
			bucket.Orders = t.orders
			bucket.TotalAmount = t.total.Round(2).InexactFloat64()
			bucket.TaxAmount = t.tax.Round(2).InexactFloat64()
		}
		buckets = append(buckets, bucket)
	}
	return buckets
}
