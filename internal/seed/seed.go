package seed

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/config"
	"github.com/sells-group/taxpoint/internal/db"
	"github.com/sells-group/taxpoint/internal/geozone"
	"github.com/sells-group/taxpoint/internal/model"
	"github.com/sells-group/taxpoint/internal/taxrate"
)

// Run loads boundary shapes and tax rates from the configured source files.
// Each table is seeded only when empty; once rows exist the files are
// ignored.
func Run(ctx context.Context, pool db.Pool, cfg *config.Config) error {
	store := NewStore(pool)
	log := zap.L().With(zap.String("component", "seed"))

	regionCount, err := store.CountRegions(ctx)
	if err != nil {
		return err
	}
	if regionCount == 0 {
		cities, err := LoadRegionShapefile(cfg.Geo.CitiesShapefile, model.RegionTypeCity)
		if err != nil {
			return err
		}
		counties, err := LoadRegionShapefile(cfg.Geo.CountiesShapefile, model.RegionTypeCounty)
		if err != nil {
			return err
		}
		inserted, err := store.InsertRegions(ctx, append(cities, counties...))
		if err != nil {
			return err
		}
		log.Info("seeded tax regions", zap.Int64("rows", inserted))
	} else {
		log.Info("tax regions already seeded", zap.Int64("rows", regionCount))
	}

	rateCount, err := store.CountRates(ctx)
	if err != nil {
		return err
	}
	if rateCount == 0 {
		rates, err := LoadRateFile(cfg.TaxRates.SeedFile)
		if err != nil {
			return err
		}
		inserted, err := store.InsertRates(ctx, rates)
		if err != nil {
			return err
		}
		log.Info("seeded tax rates", zap.Int64("rows", inserted))
	} else {
		log.Info("tax rates already seeded", zap.Int64("rows", rateCount))
	}

	return nil
}

// LoadRateFile parses the static rate seed file: a JSON object keyed by
// reporting code. Every payload is validated before any row is returned.
func LoadRateFile(path string) ([]taxrate.RateRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read rate file %s", path)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "seed: parse rate file %s", path)
	}

	rates := make([]taxrate.RateRow, 0, len(entries))
	for rawCode, payload := range entries {
		code, err := taxrate.NormalizeReportingCode(rawCode)
		if err != nil {
			return nil, err
		}
		if _, err := taxrate.ParseJurisdictions(payload, code); err != nil {
			return nil, err
		}
		rates = append(rates, taxrate.RateRow{ReportingCode: code, Jurisdictions: payload})
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].ReportingCode < rates[j].ReportingCode })
	return rates, nil
}

// BuildResolver rebuilds the point-in-polygon index from stored rows.
func BuildResolver(ctx context.Context, pool db.Pool, geo config.GeoConfig) (*geozone.Resolver, error) {
	store := NewStore(pool)

	cities, err := store.LoadRegions(ctx, model.RegionTypeCity)
	if err != nil {
		return nil, err
	}
	counties, err := store.LoadRegions(ctx, model.RegionTypeCounty)
	if err != nil {
		return nil, err
	}

	return geozone.NewResolver(toPolygons(cities), toPolygons(counties), geo.SourceCRS, geo.TargetCRS)
}

func toPolygons(regions []model.TaxRegion) []geozone.RegionPolygon {
	polygons := make([]geozone.RegionPolygon, 0, len(regions))
	for _, r := range regions {
		polygons = append(polygons, geozone.RegionPolygon{
			ReportingCode: r.ReportingCode,
			BBox:          [4]float64{r.BBoxMinLon, r.BBoxMinLat, r.BBoxMaxLon, r.BBoxMaxLat},
			Points:        r.Points,
			Parts:         r.Parts,
		})
	}
	return polygons
}

// BuildCatalog rebuilds the rate catalog from stored rows.
func BuildCatalog(ctx context.Context, pool db.Pool) (*taxrate.Catalog, error) {
	rows, err := NewStore(pool).LoadRates(ctx)
	if err != nil {
		return nil, err
	}
	return taxrate.CatalogFromRows(rows)
}
