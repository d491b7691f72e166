package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSampleCSVDeterministic(t *testing.T) {
	dir := t.TempDir()
	cfg := SampleConfig{Days: 14, Seed: 99}

	first := filepath.Join(dir, "a.csv")
	n1, err := WriteSampleCSV(first, cfg)
	require.NoError(t, err)

	second := filepath.Join(dir, "b.csv")
	n2, err := WriteSampleCSV(second, cfg)
	require.NoError(t, err)

	assert.Equal(t, 14*6, n1, "one row per state per day")
	assert.Equal(t, n1, n2)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "the same config must produce byte-identical output")
}

func TestWriteSampleCSVSeedChangesOutput(t *testing.T) {
	dir := t.TempDir()

	first := filepath.Join(dir, "seed1.csv")
	_, err := WriteSampleCSV(first, SampleConfig{Days: 7, Seed: 1})
	require.NoError(t, err)

	second := filepath.Join(dir, "seed2.csv")
	_, err = WriteSampleCSV(second, SampleConfig{Days: 7, Seed: 2})
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b))
}

func TestWriteSampleCSVDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "sample.csv")

	n, err := WriteSampleCSV(path, SampleConfig{})
	require.NoError(t, err, "missing parent directories are created")
	assert.Equal(t, 365*6, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	header, _, found := bytes.Cut(data, []byte("\n"))
	require.True(t, found)
	assert.Equal(t,
		"Date,State_Name,District_Name,Total_Enrolments,Total_Updates,Total_Rejections,"+
			"Age_Group_0_18,Age_Group_19_40,Age_Group_41_60,Age_Group_60_Plus",
		string(header))
	assert.Equal(t, 1+365*6, bytes.Count(data, []byte("\n")))
}

func TestWriteSampleCSVRespectsStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.csv")
	start := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	_, err := WriteSampleCSV(path, SampleConfig{Start: start, Days: 2, Seed: 5})
	require.NoError(t, err)

	table, err := loadCSV(path)
	require.NoError(t, err)

	require.Len(t, table.Rows, 12)
	assert.Equal(t, "2024-03-10", cell(table.Rows[0], 0))
	assert.Equal(t, "2024-03-11", cell(table.Rows[6], 0))
	assert.Equal(t, "Maharashtra", cell(table.Rows[0], 1))
}
