package taxrate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/taxpoint/internal/apperr"
)

func TestNormalizeReportingCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short numeric zero-padded", "81", "0081"},
		{"four digit numeric unchanged", "8081", "8081"},
		{"five digit numeric unchanged", "80811", "80811"},
		{"alphanumeric unchanged", "NE81", "NE81"},
		{"surrounding whitespace trimmed", "  NE81  ", "NE81"},
		{"single digit", "1", "0001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeReportingCode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeReportingCodeErrors(t *testing.T) {
	_, err := NormalizeReportingCode("")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = NormalizeReportingCode("   ")
	require.Error(t, err)

	_, err = NormalizeReportingCode("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	require.Error(t, err)
}

func validPayload() json.RawMessage {
	return json.RawMessage(`{
		"state_rate": [{"name": "New York State", "rate": 0.04}],
		"county_rate": [],
		"city_rate": [{"name": "New York City", "rate": 0.045}],
		"special_rates": [{"name": "MCTD", "rate": 0.00375}]
	}`)
}

func TestParseJurisdictions(t *testing.T) {
	j, err := ParseJurisdictions(validPayload(), "NE81")
	require.NoError(t, err)

	require.Len(t, j.StateRate, 1)
	assert.Equal(t, "New York State", j.StateRate[0].Name)
	assert.InDelta(t, 0.04, j.StateRate[0].Rate, 1e-12)
	assert.Empty(t, j.CountyRate)
	require.Len(t, j.SpecialRates, 1)
}

func TestParseJurisdictionsStringRates(t *testing.T) {
	payload := json.RawMessage(`{
		"state_rate": [{"name": "State", "rate": "0.04"}],
		"county_rate": [],
		"city_rate": [],
		"special_rates": []
	}`)
	j, err := ParseJurisdictions(payload, "0001")
	require.NoError(t, err)
	assert.InDelta(t, 0.04, j.StateRate[0].Rate, 1e-12)
}

func TestParseJurisdictionsErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		detail  string
	}{
		{
			"missing section",
			`{"state_rate": [], "county_rate": [], "city_rate": []}`,
			"missing sections special_rates",
		},
		{
			"unknown section",
			`{"state_rate": [], "county_rate": [], "city_rate": [], "special_rates": [], "village_rate": []}`,
			"unknown sections village_rate",
		},
		{
			"item without rate",
			`{"state_rate": [{"name": "State"}], "county_rate": [], "city_rate": [], "special_rates": []}`,
			"must include 'name' and 'rate'",
		},
		{
			"empty name",
			`{"state_rate": [{"name": " ", "rate": 0.04}], "county_rate": [], "city_rate": [], "special_rates": []}`,
			"empty name",
		},
		{
			"non-numeric rate",
			`{"state_rate": [{"name": "State", "rate": "four"}], "county_rate": [], "city_rate": [], "special_rates": []}`,
			"non-numeric rate",
		},
		{
			"section not an array",
			`{"state_rate": {}, "county_rate": [], "city_rate": [], "special_rates": []}`,
			"must be an array",
		},
		{
			"section null",
			`{"state_rate": null, "county_rate": [], "city_rate": [], "special_rates": []}`,
			"must be an array",
		},
		{
			"not an object",
			`[1, 2, 3]`,
			"invalid tax payload",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJurisdictions(json.RawMessage(tt.payload), "NE81")
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, apperr.DetailOf(err), tt.detail)
		})
	}
}

func TestBuildBreakdownComposite(t *testing.T) {
	j, err := ParseJurisdictions(validPayload(), "NE81")
	require.NoError(t, err)

	b := BuildBreakdown("NE81", j)
	assert.InDelta(t, 0.04, b.StateRate, 1e-9)
	assert.InDelta(t, 0.0, b.CountyRate, 1e-9)
	assert.InDelta(t, 0.045, b.CityRate, 1e-9)
	assert.InDelta(t, 0.00375, b.SpecialRates, 1e-9)
	assert.InDelta(t, 0.08875, b.Composite, 1e-9)

	// The composite equals the 5-decimal rounded sum of the categories.
	assert.InDelta(t, Round5(b.StateRate+b.CountyRate+b.CityRate+b.SpecialRates), b.Composite, 1e-12)
}

func TestRound5(t *testing.T) {
	assert.InDelta(t, 0.08875, Round5(0.088749999), 1e-9)
	assert.InDelta(t, 0.00001, Round5(0.000005), 1e-12)
	assert.InDelta(t, 0.0, Round5(0.0000049), 1e-12)
}

func TestCatalogLookup(t *testing.T) {
	catalog, err := CatalogFromRows([]RateRow{
		{ReportingCode: "81", Jurisdictions: validPayload()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())

	// The stored key is the normalized form.
	b, err := catalog.Lookup("0081")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "0081", b.ReportingCode)

	// Lookup input is normalized too.
	b, err = catalog.Lookup("81")
	require.NoError(t, err)
	require.NotNil(t, b)

	// Miss is nil, nil.
	b, err = catalog.Lookup("9999")
	require.NoError(t, err)
	assert.Nil(t, b)

	// Malformed code is a validation error.
	_, err = catalog.Lookup("")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCatalogFromRowsRejectsCorruptPayload(t *testing.T) {
	_, err := CatalogFromRows([]RateRow{
		{ReportingCode: "81", Jurisdictions: json.RawMessage(`{"state_rate": []}`)},
	})
	require.Error(t, err)
}

func TestJurisdictionsRoundTrip(t *testing.T) {
	j, err := ParseJurisdictions(validPayload(), "NE81")
	require.NoError(t, err)

	raw, err := json.Marshal(j)
	require.NoError(t, err)

	back, err := ParseJurisdictions(raw, "NE81")
	require.NoError(t, err)
	assert.Equal(t, j, back)
}
