package models

import (
	"errors"
	"fmt"
)

// ErrNoRecords is returned when the canonical table is empty.
var ErrNoRecords = errors.New("no records in input table")

// SchemaError reports a required semantic role absent from the input
// table. The run aborts; the core never guesses column meanings.
type SchemaError struct {
	Role   string // canonical role, e.g. "region", "period", "enrolments"
	Column string // offending source column, empty when no candidate existed
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema error: column %q does not satisfy required role %q", e.Column, e.Role)
	}
	return fmt.Sprintf("schema error: no column found for required role %q", e.Role)
}

// DataQualityError reports a raw metric missing or unusable for a
// region/period that downstream stages require it for. The run aborts
// with the offending location identified; missing is never read as zero.
type DataQualityError struct {
	Region string
	Period string
	Field  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality error: region %q period %q field %q: %s",
		e.Region, e.Period, e.Field, e.Reason)
}
