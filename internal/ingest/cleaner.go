package ingest

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/enrolytics/enrolytics/internal/models"
)

// CleanReport tallies what cleaning did to a raw table. Dropped rows
// are counted once, under the first rule that rejected them.
type CleanReport struct {
	RowsIn               int `json:"rows_in"`
	RowsKept             int `json:"rows_kept"`
	Records              int `json:"records"`
	DroppedBadDate       int `json:"dropped_bad_date"`
	DroppedMissingRegion int `json:"dropped_missing_region"`
	DroppedBadValue      int `json:"dropped_bad_value"`
	DroppedDuplicate     int `json:"dropped_duplicate"`
	CappedValues         int `json:"capped_values"`
}

// Dropped returns the total number of rows removed.
func (r *CleanReport) Dropped() int {
	return r.DroppedBadDate + r.DroppedMissingRegion + r.DroppedBadValue + r.DroppedDuplicate
}

// Issues returns the per-kind tallies keyed the way the data-quality
// metrics are labelled.
func (r *CleanReport) Issues() map[string]int {
	return map[string]int{
		"bad_date":       r.DroppedBadDate,
		"missing_region": r.DroppedMissingRegion,
		"bad_value":      r.DroppedBadValue,
		"duplicate":      r.DroppedDuplicate,
		"capped_value":   r.CappedValues,
	}
}

// regionCorrections maps obsolete or variant state names onto their
// current official names, keyed by the title-cased form.
var regionCorrections = map[string]string{
	"Orissa":      "Odisha",
	"Pondicherry": "Puducherry",
	"Uttaranchal": "Uttarakhand",
}

// earliestDate bounds plausible observation dates from below. The
// enrolment programme started issuing in 2009; anything earlier is a
// data-entry error.
var earliestDate = time.Date(2009, time.January, 1, 0, 0, 0, 0, time.UTC)

// cleanTable applies row-level repairs and drops, then aggregates the
// surviving daily rows into one record per region and month.
//
// Rules, in the order they reject a row:
//  1. the date must parse and fall in [2009-01-01, now]
//  2. the region must be non-empty after normalization
//  3. required counts must parse non-negative, and the update count
//     may not exceed five times the enrolment count
//  4. one row per (region, district, day) is kept, first wins
func cleanTable(raw *RawTable, schema *Schema, cfg Config, now time.Time) ([]models.Record, *CleanReport) {
	report := &CleanReport{RowsIn: len(raw.Rows)}
	caser := cases.Title(language.English)

	dateIdx := schema.Columns[RoleDate].Index
	regionIdx := schema.Columns[RoleRegion].Index
	districtIdx := -1
	if m, ok := schema.Columns[RoleDistrict]; ok {
		districtIdx = m.Index
	}

	seen := make(map[string]struct{}, len(raw.Rows))
	groups := make(map[string]map[string]float64)

	for _, row := range raw.Rows {
		t, ok := parseDate(cell(row, dateIdx))
		if !ok || t.Before(earliestDate) || t.After(now) {
			report.DroppedBadDate++
			continue
		}

		region := normalizeRegion(caser, cell(row, regionIdx))
		if region == "" {
			report.DroppedMissingRegion++
			continue
		}

		metrics, ok := rowMetrics(row, schema, cfg, report)
		if !ok {
			report.DroppedBadValue++
			continue
		}

		district := ""
		if districtIdx >= 0 {
			district = strings.ToLower(strings.TrimSpace(cell(row, districtIdx)))
		}
		dupKey := region + "\x00" + district + "\x00" + t.Format("2006-01-02")
		if _, dup := seen[dupKey]; dup {
			report.DroppedDuplicate++
			continue
		}
		seen[dupKey] = struct{}{}

		report.RowsKept++
		key := region + "\x00" + t.Format("2006-01")
		agg, ok := groups[key]
		if !ok {
			agg = make(map[string]float64, len(metrics))
			groups[key] = agg
		}
		for name, v := range metrics {
			agg[name] += v
		}
	}

	records := make([]models.Record, 0, len(groups))
	for key, metrics := range groups {
		region, period, _ := strings.Cut(key, "\x00")
		records = append(records, models.Record{Region: region, Period: period, Metrics: metrics})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Region != records[j].Region {
			return records[i].Region < records[j].Region
		}
		return records[i].Period < records[j].Period
	})
	report.Records = len(records)
	return records, report
}

// rowMetrics parses the count columns of one row. It returns false
// when a required count is unusable or the update count fails the
// plausibility bound. Optional counts that do not parse stay missing.
func rowMetrics(row []string, schema *Schema, cfg Config, report *CleanReport) (map[string]float64, bool) {
	metrics := make(map[string]float64, len(metricRoles))

	enrolments, ok := requiredCount(row, schema, RoleEnrolments, cfg, report)
	if !ok {
		return nil, false
	}
	metrics[models.MetricEnrolments] = enrolments

	rejections, ok := requiredCount(row, schema, RoleRejections, cfg, report)
	if !ok {
		return nil, false
	}
	metrics[models.MetricRejections] = rejections

	if m, present := schema.Columns[RoleUpdates]; present {
		if v, ok := parseCount(cell(row, m.Index)); ok {
			if v < 0 {
				v = 0
			}
			if v > 5*enrolments {
				return nil, false
			}
			metrics[models.MetricUpdates] = capCount(v, cfg, report)
		}
	}

	for _, role := range []Role{RoleAge0to18, RoleAge19to40, RoleAge41to60, RoleAge60Plus} {
		m, present := schema.Columns[role]
		if !present {
			continue
		}
		v, ok := parseCount(cell(row, m.Index))
		if !ok || v < 0 {
			continue
		}
		metrics[role.MetricName()] = capCount(v, cfg, report)
	}
	return metrics, true
}

func requiredCount(row []string, schema *Schema, role Role, cfg Config, report *CleanReport) (float64, bool) {
	m := schema.Columns[role]
	v, ok := parseCount(cell(row, m.Index))
	if !ok || v < 0 {
		return 0, false
	}
	return capCount(v, cfg, report), true
}

func capCount(v float64, cfg Config, report *CleanReport) float64 {
	if cfg.MaxCount > 0 && v > cfg.MaxCount {
		report.CappedValues++
		return cfg.MaxCount
	}
	return v
}

// normalizeRegion collapses whitespace, title-cases, and applies name
// corrections to a region value.
func normalizeRegion(caser cases.Caser, value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return ""
	}
	value = caser.String(strings.ToLower(value))
	if corrected, ok := regionCorrections[value]; ok {
		return corrected
	}
	return value
}
