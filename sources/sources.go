// Package sources decodes the feed and seed tables the crawler reads.
package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// FeedSource is a row of the feed table: name, base_url, feed_url
type FeedSource struct {
	Name    string
	BaseURL string
	FeedURL string
}

// SeedSource is a row of the seed table: name, host_or_url
type SeedSource struct {
	Name string
	Host string
}

// Candidates returns the URLs to fetch for a seed. A bare host is tried over
// both http and https.
func (s SeedSource) Candidates() []string {
	if strings.Contains(s.Host, "://") {
		return []string{s.Host}
	}
	return []string{"http://" + s.Host, "https://" + s.Host}
}

// ReadFeeds reads a comma-separated feed table. The header row and rows with
// fewer than three fields or no feed URL are skipped.
func ReadFeeds(path string) ([]FeedSource, error) {
	rows, err := readTable(path, ',')
	if err != nil {
		return nil, err
	}

	var feeds []FeedSource
	for i, row := range rows {
		if len(row) < 3 || row[2] == "" {
			slog.Debug("skipping malformed feed row", "path", path, "row", i+1)
			continue
		}
		feeds = append(feeds, FeedSource{Name: row[0], BaseURL: row[1], FeedURL: row[2]})
	}
	return feeds, nil
}

// ReadSeeds reads a tab-separated seed table. The header row and rows with
// fewer than two fields or no host are skipped.
func ReadSeeds(path string) ([]SeedSource, error) {
	rows, err := readTable(path, '\t')
	if err != nil {
		return nil, err
	}

	var seeds []SeedSource
	for i, row := range rows {
		if len(row) < 2 || row[1] == "" {
			slog.Debug("skipping malformed seed row", "path", path, "row", i+1)
			continue
		}
		seeds = append(seeds, SeedSource{Name: row[0], Host: row[1]})
	}
	return seeds, nil
}

// readTable returns every row after the header. Rows with broken quoting are
// skipped rather than failing the whole table.
func readTable(path string, delim rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table at '%s' with %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	r.FieldsPerRecord = -1
	if delim == '\t' {
		r.LazyQuotes = true
	}

	var rows [][]string
	header := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		// The first record is the header even when it fails to parse
		first := header
		header = false

		var pe *csv.ParseError
		if errors.As(err, &pe) {
			slog.Debug("skipping unreadable row", "path", path, "line", pe.Line, "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read table at '%s' with %w", path, err)
		}
		if first {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
