package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRateFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rates.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRateFile(t *testing.T) {
	path := writeRateFile(t, `{
		"81": {
			"state_rate": [{"name": "New York State", "rate": 0.04}],
			"county_rate": [],
			"city_rate": [{"name": "New York City", "rate": 0.045}],
			"special_rates": [{"name": "MCTD", "rate": 0.00375}]
		},
		"0012": {
			"state_rate": [{"name": "New York State", "rate": 0.04}],
			"county_rate": [{"name": "Albany County", "rate": 0.04}],
			"city_rate": [],
			"special_rates": []
		}
	}`)

	rates, err := LoadRateFile(path)
	require.NoError(t, err)
	require.Len(t, rates, 2)

	// Codes come back normalized and sorted.
	assert.Equal(t, "0012", rates[0].ReportingCode)
	assert.Equal(t, "0081", rates[1].ReportingCode)
}

func TestLoadRateFileRejectsCorruptPayload(t *testing.T) {
	path := writeRateFile(t, `{"81": {"state_rate": []}}`)
	_, err := LoadRateFile(path)
	require.Error(t, err)
}

func TestLoadRateFileMissing(t *testing.T) {
	_, err := LoadRateFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestRegionEWKB(t *testing.T) {
	points := [][2]float64{
		{0, 0}, {10, 0}, {10, 10}, {0, 10},
	}
	data, err := regionEWKB(points, []int32{0})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// EWKB little-endian marker.
	assert.Equal(t, byte(1), data[0])
}

func TestRegionEWKBDegenerate(t *testing.T) {
	data, err := regionEWKB(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	// A two-point ring cannot form a polygon.
	data, err = regionEWKB([][2]float64{{0, 0}, {1, 1}}, []int32{0})
	require.NoError(t, err)
	assert.Nil(t, data)
}
