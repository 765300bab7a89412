package orders

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/sells-group/taxpoint/internal/apperr"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ImportColumns holds the resolved positions of the four required CSV
// columns.
type ImportColumns struct {
	Longitude int
	Latitude  int
	Timestamp int
	Subtotal  int
}

// RowInput is one parsed and validated CSV data row.
type RowInput struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	Subtotal  decimal.Decimal
}

// ResolveImportColumns matches the header against the required columns.
// Matching is case-insensitive and ignores underscores and spaces, so
// "Time Stamp" and "TIMESTAMP" both resolve. Missing columns fail the file.
func ResolveImportColumns(header []string) (ImportColumns, error) {
	positions := map[string]int{}
	for idx, name := range header {
		key := normalizeColumn(name)
		if _, seen := positions[key]; !seen {
			positions[key] = idx
		}
	}

	cols := ImportColumns{}
	var missing []string
	for _, want := range []struct {
		name string
		dst  *int
	}{
		{"longitude", &cols.Longitude},
		{"latitude", &cols.Latitude},
		{"timestamp", &cols.Timestamp},
		{"subtotal", &cols.Subtotal},
	} {
		idx, ok := positions[want.name]
		if !ok {
			missing = append(missing, want.name)
			continue
		}
		*want.dst = idx
	}
	if len(missing) > 0 {
		return ImportColumns{}, apperr.Newf(apperr.KindValidation,
			"csv is missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, string(utf8BOM))
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, " ", "")
}

// ParseRow extracts and validates one data row.
func ParseRow(record []string, cols ImportColumns) (RowInput, error) {
	maxIdx := cols.Longitude
	for _, idx := range []int{cols.Latitude, cols.Timestamp, cols.Subtotal} {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	if len(record) <= maxIdx {
		return RowInput{}, apperr.Newf(apperr.KindParse,
			"row has %d fields, need at least %d", len(record), maxIdx+1)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(record[cols.Latitude]), 64)
	if err != nil {
		return RowInput{}, apperr.Newf(apperr.KindParse, "invalid latitude %q", record[cols.Latitude])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[cols.Longitude]), 64)
	if err != nil {
		return RowInput{}, apperr.Newf(apperr.KindParse, "invalid longitude %q", record[cols.Longitude])
	}
	if lat < -90 || lat > 90 {
		return RowInput{}, apperr.Validation(fmt.Sprintf("latitude %v is out of range [-90, 90]", lat), "latitude")
	}
	if lon < -180 || lon > 180 {
		return RowInput{}, apperr.Validation(fmt.Sprintf("longitude %v is out of range [-180, 180]", lon), "longitude")
	}

	ts, err := ParseTimestamp(record[cols.Timestamp])
	if err != nil {
		return RowInput{}, err
	}

	sub, err := decimal.NewFromString(strings.TrimSpace(record[cols.Subtotal]))
	if err != nil {
		return RowInput{}, apperr.Newf(apperr.KindParse, "invalid subtotal %q", record[cols.Subtotal])
	}
	if sub.IsNegative() {
		return RowInput{}, apperr.Validation("subtotal must not be negative", "subtotal")
	}

	return RowInput{Latitude: lat, Longitude: lon, Timestamp: ts, Subtotal: sub}, nil
}

// ParseTimestamp parses an ISO-8601 timestamp. Fractional seconds are
// normalized to exactly 6 digits, a trailing Z is treated as +00:00, and a
// value with no offset is read as UTC. Timestamps before MinSupportedDate
// are rejected.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, apperr.New(apperr.KindParse, "empty timestamp")
	}
	s = strings.Replace(s, " ", "T", 1)
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "+00:00"
	}
	s = normalizeFraction(s)

	layouts := []string{
		"2006-01-02T15:04:05.000000-07:00",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04:05.000000",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	var ts time.Time
	var err error
	for _, layout := range layouts {
		ts, err = time.Parse(layout, s)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.KindParse, "invalid timestamp %q", raw)
	}
	ts = ts.UTC()

	if ts.Before(MinSupportedDate) {
		return time.Time{}, apperr.Validation(
			fmt.Sprintf("timestamps before %s are not supported", MinSupportedDate.Format("2006-01-02")),
			"timestamp")
	}
	return ts, nil
}

// normalizeFraction pads or truncates the fractional-second part to exactly
// 6 digits so a single layout can parse it.
func normalizeFraction(s string) string {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	end := len(s)
	for i := dot + 1; i < len(s); i++ {
		if s[i] == '+' || s[i] == '-' {
			end = i
			break
		}
	}
	frac := s[dot+1 : end]
	for _, r := range frac {
		if r < '0' || r > '9' {
			return s
		}
	}
	if len(frac) > 6 {
		frac = frac[:6]
	} else {
		frac += strings.Repeat("0", 6-len(frac))
	}
	return s[:dot+1] + frac + s[end:]
}

// CountRows returns the number of CSV data rows, excluding the header.
// Undecodable content counts as zero rows; the import still runs, just
// without a known denominator.
func CountRows(data []byte) int {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return 0
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	total := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		total++
	}
	if total <= 1 {
		return 0
	}
	return total - 1
}
