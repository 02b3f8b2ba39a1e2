package common

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCrawlDate(t *testing.T) {
	before := time.Now()
	ds := GenerateCrawlDate()
	after := time.Now()

	assert.Regexp(t, regexp.MustCompile(`^\d{8}$`), ds)
	// Midnight may pass between the two reads.
	assert.Contains(t, []string{CrawlDate(before), CrawlDate(after)}, ds)
	assert.NoError(t, ValidateCrawlDate(ds))
}

func TestCrawlDate(t *testing.T) {
	ts := time.Date(2025, time.March, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "20250307", CrawlDate(ts))
}

func TestValidateCrawlDate(t *testing.T) {
	tests := []struct {
		ds    string
		valid bool
	}{
		{"20250601", true},
		{"20240229", true},
		{"20250229", false},
		{"2025-06-01", false},
		{"2025061", false},
		{"", false},
		{"abcdefgh", false},
	}
	for _, tt := range tests {
		t.Run(tt.ds, func(t *testing.T) {
			err := ValidateCrawlDate(tt.ds)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRunLogPath(t *testing.T) {
	assert.Equal(t, filepath.Join("log", "spider_310000_20250601.log"), RunLogPath("log", "310000", "20250601"))
}

func TestNewRunLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	var console bytes.Buffer

	logger, closer, err := NewRunLogger(dir, "310000", "20250601", &console)
	require.NoError(t, err)
	logger.Info().Str("stage", "bubbles").Msg("first")
	require.NoError(t, closer.Close())

	// Reopening appends.
	logger, closer, err = NewRunLogger(dir, "310000", "20250601", nil)
	require.NoError(t, err)
	logger.Warn().Msg("second")
	require.NoError(t, closer.Close())

	lines, err := ReadLogLines(RunLogPath(dir, "310000", "20250601"), 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"message":"first"`)
	assert.Contains(t, lines[0], `"stage":"bubbles"`)
	assert.Contains(t, lines[1], `"level":"warn"`)

	assert.Contains(t, console.String(), "first")
	assert.NotContains(t, console.String(), "second")
}

func TestReadLogLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(path, []byte("a\n\nb\r\n  \nc\nd\n"), 0644))

	lines, err := ReadLogLines(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, lines)

	lines, err = ReadLogLines(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, lines)

	_, err = ReadLogLines(filepath.Join(t.TempDir(), "missing.log"), 0)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
