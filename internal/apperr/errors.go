// Package apperr defines the error kinds shared by the import pipeline and the
// HTTP/WS gateway. Kinds classify failures; the gateway maps them to status and
// close codes, the importer maps them to row outcomes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	// KindUnexpected is anything not otherwise classified.
	KindUnexpected Kind = iota
	// KindValidation covers malformed input: coordinates out of range,
	// negative subtotals, pre-epoch timestamps, bad reporting codes,
	// missing CSV columns, invalid JSON payloads.
	KindValidation
	// KindOutsideCoverage means no jurisdiction polygon contains the point.
	KindOutsideCoverage
	// KindRateNotFound means the catalog has no entry for a reporting code.
	KindRateNotFound
	// KindParse covers CSV row decode and number parse failures.
	KindParse
	// KindNotFound means a referenced entity (task, order, user) does not exist.
	KindNotFound
	// KindInfrastructure covers object-store, cache and database I/O failures.
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindOutsideCoverage:
		return "outside_coverage"
	case KindRateNotFound:
		return "tax_rate_not_found"
	case KindParse:
		return "parse_error"
	case KindNotFound:
		return "not_found"
	case KindInfrastructure:
		return "infrastructure_error"
	default:
		return "internal_error"
	}
}

// Error is a classified application error.
type Error struct {
	Kind   Kind
	Detail string
	Fields []string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates a classified error with a formatted detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error.
func Wrap(err error, kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, cause: err}
}

// Validation creates a validation error naming the offending fields.
func Validation(detail string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Detail: detail, Fields: fields}
}

// OutsideCoverage is returned when a point resolves to no jurisdiction.
func OutsideCoverage() *Error {
	return &Error{Kind: KindOutsideCoverage, Detail: "delivery point is outside New York State coverage"}
}

// RateNotFound is returned on a catalog miss for a resolved reporting code.
func RateNotFound(code string) *Error {
	return &Error{Kind: KindRateNotFound, Detail: fmt.Sprintf("tax rate not found for reporting code %s", code)}
}

// KindOf extracts the Kind from an error chain. Unclassified errors report
// KindUnexpected.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}

// DetailOf returns the human-readable detail of a classified error, or the
// plain error text for unclassified ones.
func DetailOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return err.Error()
}

// FieldsOf returns the field names attached to a validation error, if any.
func FieldsOf(err error) []string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}
