package geozone

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/apperr"
)

// Coordinate is a geographic point in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Resolver maps coordinates to jurisdiction reporting codes. City polygons
// are consulted before county polygons; within a tier the first containing
// polygon wins. A Resolver is immutable after construction and safe for
// concurrent use.
type Resolver struct {
	transform Transformer
	cities    *polygonDataset
	counties  *polygonDataset
}

// NewResolver builds the lookup index. Corrupt polygons are dropped, not
// fatal: the remaining shapes still serve lookups.
func NewResolver(cities, counties []RegionPolygon, sourceCRS, targetCRS string) (*Resolver, error) {
	transform, err := NewTransformer(sourceCRS, targetCRS)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		transform: transform,
		cities:    buildDataset(cities),
		counties:  buildDataset(counties),
	}
	if dropped := len(cities) - r.cities.size(); dropped > 0 {
		zap.L().Warn("dropped corrupt city polygons", zap.Int("count", dropped))
	}
	if dropped := len(counties) - r.counties.size(); dropped > 0 {
		zap.L().Warn("dropped corrupt county polygons", zap.Int("count", dropped))
	}
	zap.L().Info("jurisdiction resolver ready",
		zap.String("component", "geozone"),
		zap.Int("cities", r.cities.size()),
		zap.Int("counties", r.counties.size()))
	return r, nil
}

// Resolve returns the reporting code of the jurisdiction containing the
// point, or ok=false when no polygon contains it. Out-of-range coordinates
// are a validation error.
func (r *Resolver) Resolve(lat, lon float64) (code string, ok bool, err error) {
	if err := validateCoordinate(lat, lon); err != nil {
		return "", false, err
	}
	x, y := r.transform.Transform(lon, lat)
	return r.lookup(x, y)
}

// ResolveBatch resolves many coordinates with one pass, preserving input
// order. Codes[i] is empty when coordinate i matched nothing. Any invalid
// coordinate fails the whole batch.
func (r *Resolver) ResolveBatch(coords []Coordinate) ([]string, error) {
	for i, c := range coords {
		if err := validateCoordinate(c.Lat, c.Lon); err != nil {
			return nil, apperr.Wrap(err, apperr.KindValidation, fmt.Sprintf("coordinate %d is invalid", i))
		}
	}

	codes := make([]string, len(coords))
	for i, c := range coords {
		x, y := r.transform.Transform(c.Lon, c.Lat)
		code, ok, err := r.lookup(x, y)
		if err != nil {
			return nil, err
		}
		if ok {
			codes[i] = code
		}
	}
	return codes, nil
}

func (r *Resolver) lookup(x, y float64) (string, bool, error) {
	if i := r.cities.findFirst(x, y); i >= 0 {
		return r.cities.codes[i], true, nil
	}
	if i := r.counties.findFirst(x, y); i >= 0 {
		return r.counties.codes[i], true, nil
	}
	return "", false, nil
}

func validateCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return apperr.Validation(
			fmt.Sprintf("latitude %v is out of range [-90, 90]", lat), "latitude")
	}
	if lon < -180 || lon > 180 {
		return apperr.Validation(
			fmt.Sprintf("longitude %v is out of range [-180, 180]", lon), "longitude")
	}
	return nil
}
