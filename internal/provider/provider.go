// Package provider supplies historical monthly series to the engine. The mock
// generator and the CSV loader are interchangeable behind HistoricalProvider.
package provider

import (
	"context"
	"errors"
	"fmt"

	"retail-pulse/internal/models"
)

type HistoricalProvider interface {
	// Historical returns the series in period order. Every call may return a
	// fresh series.
	Historical(ctx context.Context) ([]models.MonthlyRecord, error)
	Name() string
}

var ErrNoRecords = errors.New("no valid records found")

// ValidationError reports a malformed externally supplied record.
type ValidationError struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("line %d: %s %q: %s", e.Line, e.Field, e.Value, e.Reason)
}

// Validate checks a series supplied by a caller rather than a provider.
// Line numbers are 1-based record positions.
func Validate(records []models.MonthlyRecord) error {
	for i, rec := range records {
		line := i + 1
		switch {
		case rec.Period == "":
			return &ValidationError{Line: line, Field: "period", Reason: "missing"}
		case rec.Revenue < 0:
			return &ValidationError{Line: line, Field: "revenue", Value: fmt.Sprint(rec.Revenue), Reason: "must not be negative"}
		case rec.Units < 0:
			return &ValidationError{Line: line, Field: "units", Value: fmt.Sprint(rec.Units), Reason: "must not be negative"}
		case rec.GrossMargin < 0 || rec.GrossMargin > 1:
			return &ValidationError{Line: line, Field: "gross_margin", Value: fmt.Sprint(rec.GrossMargin), Reason: "must be in [0,1]"}
		case rec.ConversionRate < 0 || rec.ConversionRate > 1:
			return &ValidationError{Line: line, Field: "conversion_rate", Value: fmt.Sprint(rec.ConversionRate), Reason: "must be in [0,1]"}
		case rec.AvgOrderValue < 0:
			return &ValidationError{Line: line, Field: "avg_order_value", Value: fmt.Sprint(rec.AvgOrderValue), Reason: "must not be negative"}
		}
		for ch, visits := range rec.TrafficBreakdown {
			if visits < 0 {
				return &ValidationError{Line: line, Field: ch, Value: fmt.Sprint(visits), Reason: "must not be negative"}
			}
		}
	}
	return nil
}
