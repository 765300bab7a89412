package taxrate

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/taxpoint/internal/apperr"
)

// RateItem is a single jurisdiction levy.
type RateItem struct {
	Name string  `json:"name"`
	Rate float64 `json:"rate"`
}

// Jurisdictions is the four-category rate payload stored verbatim on each
// order. Category order is fixed by the struct for stable serialization.
type Jurisdictions struct {
	StateRate    []RateItem `json:"state_rate"`
	CountyRate   []RateItem `json:"county_rate"`
	CityRate     []RateItem `json:"city_rate"`
	SpecialRates []RateItem `json:"special_rates"`
}

// Breakdown is a fully materialized rate lookup: the raw jurisdiction lists
// plus per-category sums and the composite, all rounded to 5 decimals.
type Breakdown struct {
	ReportingCode string
	Jurisdictions Jurisdictions
	StateRate     float64
	CountyRate    float64
	CityRate      float64
	SpecialRates  float64
	Composite     float64
}

var jurisdictionCategories = []string{"state_rate", "county_rate", "city_rate", "special_rates"}

// ParseJurisdictions validates a raw rate payload: exactly the four category
// keys, each an array of {name, rate} objects with non-empty names.
func ParseJurisdictions(raw json.RawMessage, code string) (Jurisdictions, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return Jurisdictions{}, apperr.Newf(apperr.KindValidation, "invalid tax payload for reporting_code=%s", code)
	}

	var missing []string
	for _, category := range jurisdictionCategories {
		if _, ok := sections[category]; !ok {
			missing = append(missing, category)
		}
	}
	if len(missing) > 0 {
		return Jurisdictions{}, apperr.Newf(apperr.KindValidation,
			"missing sections %s for reporting_code=%s", strings.Join(missing, ", "), code)
	}

	var unknown []string
	for key := range sections {
		if !isKnownCategory(key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Jurisdictions{}, apperr.Newf(apperr.KindValidation,
			"unknown sections %s for reporting_code=%s", strings.Join(unknown, ", "), code)
	}

	var result Jurisdictions
	targets := map[string]*[]RateItem{
		"state_rate":    &result.StateRate,
		"county_rate":   &result.CountyRate,
		"city_rate":     &result.CityRate,
		"special_rates": &result.SpecialRates,
	}
	for _, category := range jurisdictionCategories {
		items, err := parseRateItems(sections[category], code, category)
		if err != nil {
			return Jurisdictions{}, err
		}
		*targets[category] = items
	}
	return result, nil
}

func isKnownCategory(key string) bool {
	for _, c := range jurisdictionCategories {
		if key == c {
			return true
		}
	}
	return false
}

func parseRateItems(raw json.RawMessage, code, category string) ([]RateItem, error) {
	// json.Unmarshal turns a JSON null into a nil slice without error, so a
	// null section has to be rejected explicitly.
	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil || string(raw) == "null" {
		return nil, apperr.Newf(apperr.KindValidation,
			"tax payload section '%s' must be an array for reporting_code=%s", category, code)
	}

	parsed := make([]RateItem, 0, len(entries))
	for idx, entry := range entries {
		rawName, hasName := entry["name"]
		rawRate, hasRate := entry["rate"]
		if !hasName || !hasRate {
			return nil, apperr.Newf(apperr.KindValidation,
				"item %d in '%s' must include 'name' and 'rate' for reporting_code=%s", idx, category, code)
		}

		name, _ := rawName.(string)
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, apperr.Newf(apperr.KindValidation,
				"item %d in '%s' has empty name for reporting_code=%s", idx, category, code)
		}

		rate, err := coerceRate(rawRate)
		if err != nil {
			return nil, apperr.Newf(apperr.KindValidation,
				"item %d in '%s' has non-numeric rate for reporting_code=%s", idx, category, code)
		}
		parsed = append(parsed, RateItem{Name: name, Rate: rate})
	}
	return parsed, nil
}

// coerceRate accepts JSON numbers and numeric strings.
func coerceRate(v any) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(value), 64)
	default:
		return 0, apperr.New(apperr.KindValidation, "rate must be numeric")
	}
}

// Round5 rounds half-up to 5 decimal places.
func Round5(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(5).Float64()
	return f
}

// BuildBreakdown computes per-category sums and the composite for a payload.
func BuildBreakdown(code string, j Jurisdictions) *Breakdown {
	state := Round5(sumRates(j.StateRate))
	county := Round5(sumRates(j.CountyRate))
	city := Round5(sumRates(j.CityRate))
	special := Round5(sumRates(j.SpecialRates))
	return &Breakdown{
		ReportingCode: code,
		Jurisdictions: j,
		StateRate:     state,
		CountyRate:    county,
		CityRate:      city,
		SpecialRates:  special,
		Composite:     Round5(state + county + city + special),
	}
}

func sumRates(items []RateItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Rate
	}
	return total
}

// Lookuper resolves a reporting code to a rate breakdown. A nil breakdown
// with nil error means the catalog has no entry for the code.
type Lookuper interface {
	Lookup(reportingCode string) (*Breakdown, error)
}

// Catalog is the in-memory keyed map from reporting code to jurisdictions.
// Immutable after construction; safe for concurrent readers.
type Catalog struct {
	ratesByCode map[string]Jurisdictions
}

// NewCatalog wraps an already-normalized rates map.
func NewCatalog(ratesByCode map[string]Jurisdictions) *Catalog {
	return &Catalog{ratesByCode: ratesByCode}
}

// RateRow is a persisted tax-rate row.
type RateRow struct {
	ReportingCode string
	Jurisdictions json.RawMessage
}

// CatalogFromRows validates and indexes persisted rate rows.
func CatalogFromRows(rows []RateRow) (*Catalog, error) {
	ratesByCode := make(map[string]Jurisdictions, len(rows))
	for _, row := range rows {
		code, err := NormalizeReportingCode(row.ReportingCode)
		if err != nil {
			return nil, err
		}
		j, err := ParseJurisdictions(row.Jurisdictions, code)
		if err != nil {
			return nil, err
		}
		ratesByCode[code] = j
	}
	return &Catalog{ratesByCode: ratesByCode}, nil
}

// Lookup returns the breakdown for a reporting code, or nil when the catalog
// has no entry. Malformed codes are validation errors.
func (c *Catalog) Lookup(reportingCode string) (*Breakdown, error) {
	code, err := NormalizeReportingCode(reportingCode)
	if err != nil {
		return nil, err
	}
	payload, ok := c.ratesByCode[code]
	if !ok {
		return nil, nil
	}
	return BuildBreakdown(code, payload), nil
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int { return len(c.ratesByCode) }
