// Package seed loads the jurisdiction boundary shapefiles and the tax-rate
// seed file into the database on first start, and rebuilds the in-memory
// resolver and catalog from the stored rows.
package seed

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/model"
	"github.com/sells-group/taxpoint/internal/taxrate"
)

// reportingCodeField is the shapefile attribute carrying the jurisdiction
// reporting code.
const reportingCodeField = "rep_code"

// LoadRegionShapefile reads boundary polygons of one tier. Records without
// a usable code or geometry are skipped.
func LoadRegionShapefile(path, regionType string) ([]model.TaxRegion, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	codeIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.ToLower(name) == reportingCodeField {
			codeIdx = i
			break
		}
	}
	if codeIdx < 0 {
		return nil, eris.Errorf("seed: shapefile %s has no %s field", path, reportingCodeField)
	}

	var regions []model.TaxRegion
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		polygon, ok := shape.(*shp.Polygon)
		if !ok || polygon == nil || len(polygon.Points) == 0 || polygon.NumParts == 0 {
			skipped++
			continue
		}

		rawCode := strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))
		code, err := taxrate.NormalizeReportingCode(rawCode)
		if err != nil {
			skipped++
			continue
		}

		points := make([][2]float64, len(polygon.Points))
		for i, p := range polygon.Points {
			points[i] = [2]float64{p.X, p.Y}
		}
		parts := make([]int32, len(polygon.Parts))
		copy(parts, polygon.Parts)

		geomBytes, err := regionEWKB(points, parts)
		if err != nil {
			zap.L().Warn("seed: geometry encode failed",
				zap.String("reporting_code", code), zap.Error(err))
		}

		regions = append(regions, model.TaxRegion{
			RegionType:    regionType,
			ReportingCode: code,
			BBoxMinLon:    polygon.Box.MinX,
			BBoxMinLat:    polygon.Box.MinY,
			BBoxMaxLon:    polygon.Box.MaxX,
			BBoxMaxLat:    polygon.Box.MaxY,
			Points:        points,
			Parts:         parts,
			Geom:          geomBytes,
		})
	}

	if skipped > 0 {
		zap.L().Warn("seed: skipped shapefile records",
			zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("seed: loaded shapefile",
		zap.String("path", path),
		zap.String("region_type", regionType),
		zap.Int("regions", len(regions)))
	return regions, nil
}
