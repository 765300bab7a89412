package model

// Region tiers. Resolution tries city polygons first, county second.
const (
	RegionTypeCity   = "city"
	RegionTypeCounty = "county"
)

// TaxRegion is a persisted boundary polygon: flat point sequence, ring part
// offsets and bounding box, stored as structured data so the in-memory index
// can be rebuilt at startup without re-parsing shapefiles. Geom carries an
// EWKB rendering for map display.
type TaxRegion struct {
	ID            int64
	RegionType    string
	ReportingCode string
	BBoxMinLon    float64
	BBoxMinLat    float64
	BBoxMaxLon    float64
	BBoxMaxLat    float64
	Points        [][2]float64
	Parts         []int32
	Geom          []byte
}
