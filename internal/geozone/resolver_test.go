package geozone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/taxpoint/internal/apperr"
)

// square builds a single-ring polygon covering [minX,maxX]x[minY,maxY].
func square(code string, minX, minY, maxX, maxY float64) RegionPolygon {
	return RegionPolygon{
		ReportingCode: code,
		BBox:          [4]float64{minX, minY, maxX, maxY},
		Points: [][2]float64{
			{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY},
		},
		Parts: []int32{0},
	}
}

// identityResolver builds a resolver whose projected plane equals lon/lat.
func identityResolver(t *testing.T, cities, counties []RegionPolygon) *Resolver {
	t.Helper()
	r, err := NewResolver(cities, counties, "EPSG:4326", "EPSG:4326")
	require.NoError(t, err)
	return r
}

func TestResolveValidatesCoordinates(t *testing.T) {
	r := identityResolver(t, nil, []RegionPolygon{square("COUNTY1", 0, 0, 10, 10)})

	tests := []struct {
		name  string
		lat   float64
		lon   float64
		field string
	}{
		{"latitude too high", 90.5, 5, "latitude"},
		{"latitude too low", -91, 5, "latitude"},
		{"longitude too high", 5, 180.01, "longitude"},
		{"longitude too low", 5, -200, "longitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Resolve(tt.lat, tt.lon)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, apperr.FieldsOf(err), tt.field)
		})
	}

	// Boundary values are valid.
	_, _, err := r.Resolve(90, 180)
	assert.NoError(t, err)
	_, _, err = r.Resolve(-90, -180)
	assert.NoError(t, err)
}

func TestResolveCityBeforeCounty(t *testing.T) {
	cities := []RegionPolygon{square("CITY1", 2, 2, 4, 4)}
	counties := []RegionPolygon{square("COUNTY1", 0, 0, 10, 10)}
	r := identityResolver(t, cities, counties)

	// Inside both tiers: the city wins.
	code, ok, err := r.Resolve(3, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CITY1", code)

	// Inside the county only.
	code, ok, err = r.Resolve(8, 8)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "COUNTY1", code)

	// Outside everything.
	_, ok, err = r.Resolve(50, 50)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveFirstMatchWinsWithinTier(t *testing.T) {
	// Two overlapping counties: insertion order decides.
	counties := []RegionPolygon{
		square("FIRST", 0, 0, 10, 10),
		square("SECOND", 5, 5, 15, 15),
	}
	r := identityResolver(t, nil, counties)

	code, ok, err := r.Resolve(7, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FIRST", code)

	code, ok, err = r.Resolve(12, 12)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "SECOND", code)
}

func TestResolveBoundaryPointIsInside(t *testing.T) {
	r := identityResolver(t, nil, []RegionPolygon{square("COUNTY1", 0, 0, 10, 10)})

	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"corner vertex", 0, 0},
		{"bottom edge", 0, 5},
		{"right edge", 5, 10},
		{"top edge", 10, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok, err := r.Resolve(tt.lat, tt.lon)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "COUNTY1", code)
		})
	}
}

func TestResolveHoleParity(t *testing.T) {
	// Outer ring 0..10 with a hole 4..6: inside the hole is outside the shape,
	// on the hole boundary is inside.
	donut := RegionPolygon{
		ReportingCode: "DONUT",
		BBox:          [4]float64{0, 0, 10, 10},
		Points: [][2]float64{
			{0, 0}, {10, 0}, {10, 10}, {0, 10},
			{4, 4}, {6, 4}, {6, 6}, {4, 6},
		},
		Parts: []int32{0, 4},
	}
	r := identityResolver(t, nil, []RegionPolygon{donut})

	code, ok, err := r.Resolve(2, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DONUT", code)

	_, ok, err = r.Resolve(5, 5)
	require.NoError(t, err)
	assert.False(t, ok, "hole interior must not match")

	code, ok, err = r.Resolve(4, 5)
	require.NoError(t, err)
	require.True(t, ok, "hole boundary counts as inside")
	assert.Equal(t, "DONUT", code)
}

func TestCorruptPolygonsAreSkipped(t *testing.T) {
	counties := []RegionPolygon{
		{ReportingCode: "EMPTY", BBox: [4]float64{0, 0, 10, 10}},
		{
			ReportingCode: "BADPARTS",
			BBox:          [4]float64{0, 0, 10, 10},
			Points:        [][2]float64{{0, 0}, {10, 0}, {10, 10}},
			Parts:         []int32{0, 99},
		},
		square("GOOD", 0, 0, 10, 10),
	}
	r := identityResolver(t, nil, counties)

	assert.Equal(t, 1, r.counties.size())

	code, ok, err := r.Resolve(5, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "GOOD", code)
}

func TestTinyRingNeverContains(t *testing.T) {
	degenerate := RegionPolygon{
		ReportingCode: "LINE",
		BBox:          [4]float64{0, 0, 10, 10},
		Points:        [][2]float64{{0, 0}, {10, 10}},
		Parts:         []int32{0},
	}
	r := identityResolver(t, nil, []RegionPolygon{degenerate})

	_, ok, err := r.Resolve(5, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveBatchPreservesOrder(t *testing.T) {
	cities := []RegionPolygon{square("CITY1", 2, 2, 4, 4)}
	counties := []RegionPolygon{square("COUNTY1", 0, 0, 10, 10)}
	r := identityResolver(t, cities, counties)

	codes, err := r.ResolveBatch([]Coordinate{
		{Lat: 3, Lon: 3},
		{Lat: 50, Lon: 50},
		{Lat: 8, Lon: 8},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CITY1", "", "COUNTY1"}, codes)
}

func TestResolveBatchFailsOnInvalidCoordinate(t *testing.T) {
	r := identityResolver(t, nil, []RegionPolygon{square("COUNTY1", 0, 0, 10, 10)})

	_, err := r.ResolveBatch([]Coordinate{
		{Lat: 5, Lon: 5},
		{Lat: 95, Lon: 5},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUTMProjectionSanity(t *testing.T) {
	tr, err := NewTransformer("EPSG:4326", "EPSG:26918")
	require.NoError(t, err)

	// Lower Manhattan. Known UTM 18N coordinates: ~583960 E, ~4507520 N.
	x, y := tr.Transform(-74.0060, 40.7128)
	assert.InDelta(t, 584000, x, 1000)
	assert.InDelta(t, 4507000, y, 2000)

	// A point on the central meridian projects to the false easting.
	x, _ = tr.Transform(-75.0, 43.0)
	assert.InDelta(t, utmFalseEasting, x, 0.001)
}

func TestNewTransformerRejectsUnknownCRS(t *testing.T) {
	_, err := NewTransformer("EPSG:4326", "EPSG:3857")
	assert.Error(t, err)

	_, err = NewTransformer("EPSG:2263", "EPSG:26918")
	assert.Error(t, err)
}
