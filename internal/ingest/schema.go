package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Role is a canonical column role in an enrolment dataset.
type Role string

const (
	RoleDate       Role = "date"
	RoleRegion     Role = "region"
	RoleDistrict   Role = "district"
	RolePincode    Role = "pincode"
	RoleEnrolments Role = "enrolments"
	RoleUpdates    Role = "updates"
	RoleRejections Role = "rejections"
	RoleAge0to18   Role = "age_0_18"
	RoleAge19to40  Role = "age_19_40"
	RoleAge41to60  Role = "age_41_60"
	RoleAge60Plus  Role = "age_60_plus"
)

// Confidence grades how a column was matched to its role.
type Confidence string

const (
	// ConfidenceHigh means the full header matched a known name.
	ConfidenceHigh Confidence = "HIGH"
	// ConfidenceMedium means a substring or value-based match.
	ConfidenceMedium Confidence = "MEDIUM"
)

// ColumnMatch records which source column fills a role and how sure
// the detector is about it.
type ColumnMatch struct {
	Column     string     `json:"column"`
	Index      int        `json:"index"`
	Confidence Confidence `json:"confidence"`
}

// Schema maps canonical roles onto the columns of one dataset.
type Schema struct {
	Columns  map[Role]ColumnMatch `json:"columns"`
	Unmapped []string             `json:"unmapped,omitempty"`
}

// Column returns the match for a role and whether the role was found.
func (s *Schema) Column(role Role) (ColumnMatch, bool) {
	m, ok := s.Columns[role]
	return m, ok
}

// Require returns a SchemaError naming the first absent role.
func (s *Schema) Require(roles ...Role) error {
	for _, role := range roles {
		if _, ok := s.Columns[role]; !ok {
			return &models.SchemaError{Role: string(role)}
		}
	}
	return nil
}

// MetricName maps a count-carrying role onto its canonical metric
// name, or "" for non-metric roles.
func (r Role) MetricName() string {
	switch r {
	case RoleEnrolments:
		return models.MetricEnrolments
	case RoleUpdates:
		return models.MetricUpdates
	case RoleRejections:
		return models.MetricRejections
	case RoleAge0to18:
		return models.MetricAge0to18
	case RoleAge19to40:
		return models.MetricAge19to40
	case RoleAge41to60:
		return models.MetricAge41to60
	case RoleAge60Plus:
		return models.MetricAge60Plus
	}
	return ""
}

// metricRoles are the roles whose columns carry numeric counts.
var metricRoles = []Role{
	RoleEnrolments, RoleUpdates, RoleRejections,
	RoleAge0to18, RoleAge19to40, RoleAge41to60, RoleAge60Plus,
}

// rolePatterns lists the header names seen for each role across real
// enrolment exports. Order matters twice over: roles are claimed in
// claimOrder so specific count columns are taken before the generic
// enrolment patterns (count, total) can grab them, and within a role
// a whole-header match beats a substring match.
var rolePatterns = map[Role][]string{
	RoleDate: {
		"date", "timestamp", "enrolment_date", "enrollment_date",
		"period", "month", "time",
	},
	RoleRegion: {
		"state", "state_name", "region", "province", "location",
	},
	RoleDistrict: {
		"district", "district_name", "area", "zone",
	},
	RolePincode: {
		"pincode", "pin", "postal_code", "postal", "zip",
	},
	RoleEnrolments: {
		"enrolments", "enrollments", "enrolment_count", "enrollment_count",
		"enrolment", "enrollment", "count", "total", "volume", "number",
	},
	RoleUpdates: {
		"updates", "update_count", "update", "modification", "change", "correction",
	},
	RoleRejections: {
		"rejections", "rejection_count", "rejected", "rejection", "denial", "denied",
	},
	RoleAge0to18: {
		"age_0_18", "age0_18", "age_0_to_18", "0_18", "under_18", "minor", "children",
	},
	RoleAge19to40: {
		"age_19_40", "age19_40", "age_19_to_40", "19_40", "young_adult", "adult",
	},
	RoleAge41to60: {
		"age_41_60", "age41_60", "age_41_to_60", "41_60", "middle_age", "mid_age",
	},
	RoleAge60Plus: {
		"age_60_plus", "age60_plus", "60_plus", "senior", "elderly",
	},
}

// claimOrder fixes the sequence in which roles claim columns. The
// generic enrolment patterns go after the other count roles, so
// "update_count" is never claimed as an enrolment column.
var claimOrder = []Role{
	RoleDate, RoleRegion, RoleDistrict, RolePincode,
	RoleRejections, RoleUpdates, RoleEnrolments,
	RoleAge0to18, RoleAge19to40, RoleAge41to60, RoleAge60Plus,
}

var compiledPatterns = compilePatterns()

type rolePattern struct {
	exact   *regexp.Regexp
	partial *regexp.Regexp
}

func compilePatterns() map[Role][]rolePattern {
	out := make(map[Role][]rolePattern, len(rolePatterns))
	for role, patterns := range rolePatterns {
		for _, p := range patterns {
			out[role] = append(out[role], rolePattern{
				exact:   regexp.MustCompile(`(?i)^` + p + `$`),
				partial: regexp.MustCompile(`(?i)` + p),
			})
		}
	}
	return out
}

// DetectSchema maps dataset headers onto canonical roles. Header
// pattern matching runs first; when no header names a date column,
// the sample values decide; when no header names an enrolment count,
// a numeric column with a counting name is accepted at medium
// confidence.
func DetectSchema(headers []string, sample [][]string) *Schema {
	schema := &Schema{Columns: make(map[Role]ColumnMatch)}
	claimed := make([]bool, len(headers))

	for _, role := range claimOrder {
		if match, ok := matchRole(role, headers, claimed); ok {
			schema.Columns[role] = match
			claimed[match.Index] = true
		}
	}

	// Value-based date fallback.
	if _, ok := schema.Columns[RoleDate]; !ok {
		for i, header := range headers {
			if claimed[i] {
				continue
			}
			if columnLooksLikeDates(sample, i) {
				schema.Columns[RoleDate] = ColumnMatch{
					Column: header, Index: i, Confidence: ConfidenceMedium,
				}
				claimed[i] = true
				break
			}
		}
	}

	// Numeric fallback for the enrolment count.
	if _, ok := schema.Columns[RoleEnrolments]; !ok {
		for i, header := range headers {
			if claimed[i] {
				continue
			}
			lower := strings.ToLower(header)
			named := strings.Contains(lower, "total") || strings.Contains(lower, "count") ||
				strings.Contains(lower, "sum") || strings.Contains(lower, "number")
			if named && columnLooksNumeric(sample, i) {
				schema.Columns[RoleEnrolments] = ColumnMatch{
					Column: header, Index: i, Confidence: ConfidenceMedium,
				}
				claimed[i] = true
				break
			}
		}
	}

	for i, header := range headers {
		if !claimed[i] {
			schema.Unmapped = append(schema.Unmapped, header)
		}
	}
	return schema
}

// matchRole finds the first unclaimed column for a role. All exact
// patterns are tried before any partial one.
func matchRole(role Role, headers []string, claimed []bool) (ColumnMatch, bool) {
	for _, p := range compiledPatterns[role] {
		for i, header := range headers {
			if claimed[i] {
				continue
			}
			if p.exact.MatchString(header) {
				return ColumnMatch{Column: header, Index: i, Confidence: ConfidenceHigh}, true
			}
		}
	}
	for _, p := range compiledPatterns[role] {
		for i, header := range headers {
			if claimed[i] {
				continue
			}
			if p.partial.MatchString(header) {
				return ColumnMatch{Column: header, Index: i, Confidence: ConfidenceMedium}, true
			}
		}
	}
	return ColumnMatch{}, false
}

// dateLayouts are tried in order when parsing date cells.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2006-01",
}

// parseDate parses a date cell with any known layout.
func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// columnLooksLikeDates reports whether at least 80% of a column's
// non-empty sample values parse as dates.
func columnLooksLikeDates(sample [][]string, idx int) bool {
	seen, matched := 0, 0
	for _, row := range sample {
		v := cell(row, idx)
		if v == "" {
			continue
		}
		seen++
		if _, ok := parseDate(v); ok {
			matched++
		}
	}
	return seen > 0 && float64(matched)/float64(seen) >= 0.8
}

// columnLooksNumeric reports whether at least 80% of a column's
// non-empty sample values parse as numbers.
func columnLooksNumeric(sample [][]string, idx int) bool {
	seen, matched := 0, 0
	for _, row := range sample {
		v := cell(row, idx)
		if v == "" {
			continue
		}
		seen++
		if _, ok := parseCount(v); ok {
			matched++
		}
	}
	return seen > 0 && float64(matched)/float64(seen) >= 0.8
}

// parseCount parses a numeric cell, tolerating thousands separators.
func parseCount(value string) (float64, bool) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
