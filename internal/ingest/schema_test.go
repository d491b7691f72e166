package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrolytics/enrolytics/internal/models"
)

func TestDetectSchemaSampleExportHeaders(t *testing.T) {
	headers := []string{
		"Date", "State_Name", "District_Name",
		"Total_Enrolments", "Total_Updates", "Total_Rejections",
		"Age_Group_0_18", "Age_Group_19_40", "Age_Group_41_60", "Age_Group_60_Plus",
	}
	sample := [][]string{
		{"2023-01-01", "Kerala", "Ernakulam", "1200", "150", "30", "300", "540", "264", "96"},
		{"2023-01-02", "Kerala", "Ernakulam", "1350", "170", "28", "337", "607", "297", "108"},
	}

	schema := DetectSchema(headers, sample)

	tests := []struct {
		role       Role
		column     string
		confidence Confidence
	}{
		{RoleDate, "Date", ConfidenceHigh},
		{RoleRegion, "State_Name", ConfidenceHigh},
		{RoleDistrict, "District_Name", ConfidenceHigh},
		{RoleEnrolments, "Total_Enrolments", ConfidenceMedium},
		{RoleUpdates, "Total_Updates", ConfidenceMedium},
		{RoleRejections, "Total_Rejections", ConfidenceMedium},
		{RoleAge0to18, "Age_Group_0_18", ConfidenceMedium},
		{RoleAge19to40, "Age_Group_19_40", ConfidenceMedium},
		{RoleAge41to60, "Age_Group_41_60", ConfidenceMedium},
		{RoleAge60Plus, "Age_Group_60_Plus", ConfidenceMedium},
	}
	for _, tt := range tests {
		match, ok := schema.Column(tt.role)
		require.True(t, ok, "role %s not detected", tt.role)
		assert.Equal(t, tt.column, match.Column, "role %s", tt.role)
		assert.Equal(t, tt.confidence, match.Confidence, "role %s", tt.role)
	}

	assert.Empty(t, schema.Unmapped, "every sample export column should map to a role")
	assert.NoError(t, schema.Require(RoleDate, RoleRegion, RoleEnrolments, RoleRejections))
}

func TestDetectSchemaExactBeatsPartial(t *testing.T) {
	headers := []string{"date", "state", "enrolments", "rejections", "update_notes", "updates"}

	schema := DetectSchema(headers, nil)

	match, ok := schema.Column(RoleUpdates)
	require.True(t, ok)
	assert.Equal(t, "updates", match.Column,
		"the exact header must win even though a partial match appears earlier")
	assert.Equal(t, ConfidenceHigh, match.Confidence)
	assert.Equal(t, []string{"update_notes"}, schema.Unmapped)
}

func TestDetectSchemaClaimOrder(t *testing.T) {
	t.Run("specific count columns claimed before generic patterns", func(t *testing.T) {
		headers := []string{"Date", "State", "Update_Count", "Enrolment_Total"}

		schema := DetectSchema(headers, nil)

		updates, ok := schema.Column(RoleUpdates)
		require.True(t, ok)
		assert.Equal(t, "Update_Count", updates.Column)
		assert.Equal(t, ConfidenceHigh, updates.Confidence)

		enrolments, ok := schema.Column(RoleEnrolments)
		require.True(t, ok)
		assert.Equal(t, "Enrolment_Total", enrolments.Column)
	})

	t.Run("no enrolment column is never stolen from another count role", func(t *testing.T) {
		headers := []string{"Date", "State", "Update_Count", "Rejection_Count"}

		schema := DetectSchema(headers, nil)

		updates, ok := schema.Column(RoleUpdates)
		require.True(t, ok)
		assert.Equal(t, "Update_Count", updates.Column)

		rejections, ok := schema.Column(RoleRejections)
		require.True(t, ok)
		assert.Equal(t, "Rejection_Count", rejections.Column)

		_, ok = schema.Column(RoleEnrolments)
		assert.False(t, ok, "the update count must not be misread as an enrolment count")

		err := schema.Require(RoleDate, RoleRegion, RoleEnrolments, RoleRejections)
		var schemaErr *models.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "enrolments", schemaErr.Role)
	})
}

func TestDetectSchemaDateValueFallback(t *testing.T) {
	headers := []string{"observed_on", "state", "enrolments", "rejections"}

	t.Run("column of parseable dates is accepted", func(t *testing.T) {
		sample := [][]string{
			{"2023-01-15", "Kerala", "100", "5"},
			{"2023-01-16", "Kerala", "110", "4"},
			{"2023-01-17", "Kerala", "95", "6"},
			{"2023-01-18", "Kerala", "120", "3"},
			{"2023-01-19", "Kerala", "105", "7"},
		}

		schema := DetectSchema(headers, sample)

		match, ok := schema.Column(RoleDate)
		require.True(t, ok, "value-based fallback should claim the unnamed date column")
		assert.Equal(t, "observed_on", match.Column)
		assert.Equal(t, ConfidenceMedium, match.Confidence)
	})

	t.Run("column below the parse threshold is rejected", func(t *testing.T) {
		sample := [][]string{
			{"2023-01-15", "Kerala", "100", "5"},
			{"2023-01-16", "Kerala", "110", "4"},
			{"pending", "Kerala", "95", "6"},
			{"pending", "Kerala", "120", "3"},
			{"pending", "Kerala", "105", "7"},
		}

		schema := DetectSchema(headers, sample)

		_, ok := schema.Column(RoleDate)
		assert.False(t, ok, "2 of 5 parseable values is below the 80 percent threshold")
	})
}

func TestDetectSchemaNumericEnrolmentsFallback(t *testing.T) {
	headers := []string{"date", "state", "Sum_Issued", "rejections"}

	t.Run("numeric column with a counting name is accepted", func(t *testing.T) {
		sample := [][]string{
			{"2023-01-15", "Kerala", "1,234", "5"},
			{"2023-01-16", "Kerala", "987", "4"},
			{"2023-01-17", "Kerala", "1456", "6"},
		}

		schema := DetectSchema(headers, sample)

		match, ok := schema.Column(RoleEnrolments)
		require.True(t, ok)
		assert.Equal(t, "Sum_Issued", match.Column)
		assert.Equal(t, ConfidenceMedium, match.Confidence)
	})

	t.Run("non-numeric column is rejected", func(t *testing.T) {
		sample := [][]string{
			{"2023-01-15", "Kerala", "pending", "5"},
			{"2023-01-16", "Kerala", "pending", "4"},
			{"2023-01-17", "Kerala", "pending", "6"},
		}

		schema := DetectSchema(headers, sample)

		_, ok := schema.Column(RoleEnrolments)
		assert.False(t, ok)
	})
}

func TestSchemaRequire(t *testing.T) {
	headers := []string{"date", "enrolments", "rejections"}
	schema := DetectSchema(headers, nil)

	err := schema.Require(RoleDate, RoleRegion, RoleEnrolments, RoleRejections)
	var schemaErr *models.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "region", schemaErr.Role)
	assert.Contains(t, err.Error(), `"region"`)

	assert.NoError(t, schema.Require(RoleDate, RoleEnrolments, RoleRejections))
}

func TestRoleMetricName(t *testing.T) {
	assert.Equal(t, models.MetricEnrolments, RoleEnrolments.MetricName())
	assert.Equal(t, models.MetricUpdates, RoleUpdates.MetricName())
	assert.Equal(t, models.MetricAge60Plus, RoleAge60Plus.MetricName())
	assert.Equal(t, "", RoleRegion.MetricName(), "structural roles carry no metric")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		value string
		want  time.Time
		ok    bool
	}{
		{"2023-01-15", time.Date(2023, time.January, 15, 0, 0, 0, 0, time.UTC), true},
		{"2023-01-15T10:30:00Z", time.Date(2023, time.January, 15, 10, 30, 0, 0, time.UTC), true},
		{"15-01-2023", time.Date(2023, time.January, 15, 0, 0, 0, 0, time.UTC), true},
		{"15/01/2023", time.Date(2023, time.January, 15, 0, 0, 0, 0, time.UTC), true},
		{"Jan 15, 2023", time.Date(2023, time.January, 15, 0, 0, 0, 0, time.UTC), true},
		{"2023-01", time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), true},
		{" 2023-01-15 ", time.Date(2023, time.January, 15, 0, 0, 0, 0, time.UTC), true},
		{"not a date", time.Time{}, false},
		{"2023-13-01", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseDate(tt.value)
		assert.Equal(t, tt.ok, ok, "parseDate(%q)", tt.value)
		if tt.ok {
			assert.True(t, got.Equal(tt.want), "parseDate(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		value string
		want  float64
		ok    bool
	}{
		{"42", 42, true},
		{"1,234,567", 1234567, true},
		{" 88 ", 88, true},
		{"3.5", 3.5, true},
		{"-10", -10, true}, // negatives parse; cleaning rejects them
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseCount(tt.value)
		assert.Equal(t, tt.ok, ok, "parseCount(%q)", tt.value)
		if tt.ok {
			assert.Equal(t, tt.want, got, "parseCount(%q)", tt.value)
		}
	}
}
