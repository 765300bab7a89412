// Package taxrate maps jurisdiction reporting codes to sales-tax rate
// breakdowns, with an optional redis write-through cache for import runs.
package taxrate

import (
	"strings"

	"github.com/sells-group/taxpoint/internal/apperr"
)

const maxReportingCodeLen = 32

// NormalizeReportingCode canonicalizes a reporting code: purely numeric codes
// of up to four digits are left-padded to four; anything else is kept verbatim
// after trimming. Empty or oversized codes are validation errors.
func NormalizeReportingCode(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", apperr.Validation("reporting code cannot be empty", "reporting_code")
	}
	if len(value) > maxReportingCodeLen {
		return "", apperr.Validation("reporting_code must have at most 32 characters", "reporting_code")
	}
	if isDigits(value) && len(value) <= 4 {
		return strings.Repeat("0", 4-len(value)) + value, nil
	}
	return value, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
