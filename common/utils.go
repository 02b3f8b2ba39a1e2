package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CrawlDateLayout is the YYYYMMDD layout of a crawl date (ds).
const CrawlDateLayout = "20060102"

// GenerateCrawlDate returns today's crawl date in local time.
func GenerateCrawlDate() string {
	return CrawlDate(time.Now())
}

// CrawlDate formats t as a crawl date.
func CrawlDate(t time.Time) string {
	return t.Format(CrawlDateLayout)
}

// ValidateCrawlDate checks that ds is a real YYYYMMDD date.
func ValidateCrawlDate(ds string) error {
	if len(ds) != len(CrawlDateLayout) {
		return fmt.Errorf("invalid crawl date %q: want YYYYMMDD", ds)
	}
	if _, err := time.Parse(CrawlDateLayout, ds); err != nil {
		return fmt.Errorf("invalid crawl date %q: %w", ds, err)
	}
	return nil
}

// RunLogPath is the log file of one city and crawl date.
func RunLogPath(dir, cityCode, ds string) string {
	return filepath.Join(dir, fmt.Sprintf("spider_%s_%s.log", cityCode, ds))
}

// NewRunLogger returns a logger writing to console and appending to the run
// log file of cityCode and ds. The returned closer closes the file.
func NewRunLogger(dir, cityCode, ds string, console io.Writer) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := RunLogPath(dir, cityCode, ds)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open run log: %w", err)
	}

	var w io.Writer = f
	if console != nil {
		w = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime}, f)
	}
	logger := zerolog.New(w).With().Timestamp().Logger()
	log.Debug().Str("path", path).Msg("Run log opened")
	return logger, f, nil
}

// ReadLogLines reads the non-empty lines of a log file. When tail is
// positive only the last tail lines are returned.
func ReadLogLines(path string, tail int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return lines, nil
}
