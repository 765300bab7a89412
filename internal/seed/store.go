package seed

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/taxpoint/internal/db"
	"github.com/sells-group/taxpoint/internal/model"
	"github.com/sells-group/taxpoint/internal/taxrate"
)

// Store reads and writes the tax_regions and tax_rates reference tables.
type Store struct {
	pool db.Pool
}

// NewStore wraps a database pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// CountRegions returns the number of stored boundary rows.
func (s *Store) CountRegions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tax_regions`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "seed: count regions")
	}
	return n, nil
}

var regionCopyColumns = []string{
	"region_type", "reporting_code",
	"bbox_min_lon", "bbox_min_lat", "bbox_max_lon", "bbox_max_lat",
	"points", "parts", "geom",
}

// InsertRegions bulk-loads boundary rows.
func (s *Store) InsertRegions(ctx context.Context, regions []model.TaxRegion) (int64, error) {
	rows := make([][]any, 0, len(regions))
	for _, r := range regions {
		points, err := json.Marshal(r.Points)
		if err != nil {
			return 0, eris.Wrap(err, "seed: marshal points")
		}
		parts, err := json.Marshal(r.Parts)
		if err != nil {
			return 0, eris.Wrap(err, "seed: marshal parts")
		}
		rows = append(rows, []any{
			r.RegionType, r.ReportingCode,
			r.BBoxMinLon, r.BBoxMinLat, r.BBoxMaxLon, r.BBoxMaxLat,
			points, parts, r.Geom,
		})
	}
	return db.CopyFrom(ctx, s.pool, "tax_regions", regionCopyColumns, rows)
}

// LoadRegions reads one tier of boundary rows in insertion order. Insertion
// order decides resolution ties, so the ordering is part of the contract.
func (s *Store) LoadRegions(ctx context.Context, regionType string) ([]model.TaxRegion, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, region_type, reporting_code,
       bbox_min_lon, bbox_min_lat, bbox_max_lon, bbox_max_lat,
       points, parts
FROM tax_regions
WHERE region_type = $1
ORDER BY id`, regionType)
	if err != nil {
		return nil, eris.Wrap(err, "seed: load regions")
	}
	defer rows.Close()

	var regions []model.TaxRegion
	for rows.Next() {
		var r model.TaxRegion
		var rawPoints, rawParts []byte
		if err := rows.Scan(&r.ID, &r.RegionType, &r.ReportingCode,
			&r.BBoxMinLon, &r.BBoxMinLat, &r.BBoxMaxLon, &r.BBoxMaxLat,
			&rawPoints, &rawParts); err != nil {
			return nil, eris.Wrap(err, "seed: scan region")
		}
		if err := json.Unmarshal(rawPoints, &r.Points); err != nil {
			return nil, eris.Wrap(err, "seed: decode points")
		}
		if err := json.Unmarshal(rawParts, &r.Parts); err != nil {
			return nil, eris.Wrap(err, "seed: decode parts")
		}
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "seed: region rows")
	}
	return regions, nil
}

// CountRates returns the number of stored rate rows.
func (s *Store) CountRates(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tax_rates`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "seed: count rates")
	}
	return n, nil
}

// InsertRates bulk-loads rate rows.
func (s *Store) InsertRates(ctx context.Context, rates []taxrate.RateRow) (int64, error) {
	rows := make([][]any, 0, len(rates))
	for _, r := range rates {
		rows = append(rows, []any{r.ReportingCode, []byte(r.Jurisdictions)})
	}
	return db.CopyFrom(ctx, s.pool, "tax_rates", []string{"reporting_code", "jurisdictions"}, rows)
}

// LoadRates reads all rate rows.
func (s *Store) LoadRates(ctx context.Context) ([]taxrate.RateRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT reporting_code, jurisdictions FROM tax_rates ORDER BY reporting_code`)
	if err != nil {
		return nil, eris.Wrap(err, "seed: load rates")
	}
	defer rows.Close()

	var rates []taxrate.RateRow
	for rows.Next() {
		var r taxrate.RateRow
		var payload []byte
		if err := rows.Scan(&r.ReportingCode, &payload); err != nil {
			return nil, eris.Wrap(err, "seed: scan rate")
		}
		r.Jurisdictions = json.RawMessage(payload)
		rates = append(rates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "seed: rate rows")
	}
	return rates, nil
}
