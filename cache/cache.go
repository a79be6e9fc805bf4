package cache

import (
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Cache stores fetched page bodies and auxiliary blobs keyed by URL
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Page is a fetched body together with the URL it was finally served from
type Page struct {
	BaseURL   string
	Body      []byte
	FetchedAt time.Time
}

// CacheStats contains cache statistics
type CacheStats struct {
	PageEntries  int
	ExtraEntries int
	OldestEntry  time.Time
}

type Option func(*Cache)

// WithClock replaces the time source used for freshness checks
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache initializes cache database at the given path
func NewCache(dbPath string, opts ...Option) (*Cache, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	c, err := NewCacheFromDB(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewCacheFromDB initializes the cache schema on an already opened database
func NewCacheFromDB(db *sql.DB, opts ...Option) (*Cache, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	c := &Cache{db: db, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetPage returns the cached page for url if it was fetched less than maxAge ago.
// Returns: (page, found, error)
func (c *Cache) GetPage(url string, maxAge time.Duration) (Page, bool, error) {
	var (
		page      Page
		fetchedAt int64
	)

	err := c.db.QueryRow(
		"SELECT base_url, body, fetched_at FROM page_cache WHERE url = ? AND fetched_at > ?",
		url, c.cutoff(maxAge),
	).Scan(&page.BaseURL, &page.Body, &fetchedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, fmt.Errorf("page cache read failed for %s: %w", truncate(url, 50), err)
	}

	page.FetchedAt = time.Unix(fetchedAt, 0)
	return page, true, nil
}

// Fresh reports whether url has a cached page younger than maxAge
func (c *Cache) Fresh(url string, maxAge time.Duration) (bool, error) {
	var n int
	err := c.db.QueryRow(
		"SELECT COUNT(*) FROM page_cache WHERE url = ? AND fetched_at > ?",
		url, c.cutoff(maxAge),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("page cache lookup failed for %s: %w", truncate(url, 50), err)
	}
	return n > 0, nil
}

// SetPage stores a fetched page, stamping it with the current time
func (c *Cache) SetPage(url string, page Page) error {
	now := c.now().Unix()
	sum := sha256.Sum256(page.Body)

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO page_cache
		(url, base_url, body, body_hash, fetched_at)
		VALUES (?, ?, ?, ?, ?)
	`, url, page.BaseURL, page.Body, hex.EncodeToString(sum[:]), now)

	if err != nil {
		slog.Warn("page cache write error", "error", err, "url", truncate(url, 50))
		return err
	}

	return nil
}

// SetExtra stores an auxiliary blob for url under label
func (c *Cache) SetExtra(url, label string, data []byte) error {
	now := c.now().Unix()

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO extra_cache
		(url, label, data, created_at)
		VALUES (?, ?, ?, ?)
	`, url, label, data, now)

	if err != nil {
		return fmt.Errorf("failed to save %s extra for %s: %w", label, truncate(url, 50), err)
	}

	return nil
}

// GetExtra retrieves an auxiliary blob
func (c *Cache) GetExtra(url, label string) ([]byte, bool, error) {
	var data []byte

	err := c.db.QueryRow(
		"SELECT data FROM extra_cache WHERE url = ? AND label = ?",
		url, label,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("extra cache read failed for %s: %w", truncate(url, 50), err)
	}

	return data, true, nil
}

// Clear removes all cache entries
func (c *Cache) Clear() error {
	if _, err := c.db.Exec("DELETE FROM page_cache"); err != nil {
		return fmt.Errorf("failed to clear page cache: %w", err)
	}
	if _, err := c.db.Exec("DELETE FROM extra_cache"); err != nil {
		return fmt.Errorf("failed to clear extra cache: %w", err)
	}
	return nil
}

// Stats returns cache statistics
func (c *Cache) Stats() (CacheStats, error) {
	var stats CacheStats

	err := c.db.QueryRow("SELECT COUNT(*) FROM page_cache").Scan(&stats.PageEntries)
	if err != nil {
		return stats, err
	}

	err = c.db.QueryRow("SELECT COUNT(*) FROM extra_cache").Scan(&stats.ExtraEntries)
	if err != nil {
		return stats, err
	}

	var oldestUnix sql.NullInt64
	err = c.db.QueryRow(`
		SELECT MIN(ts) FROM (
			SELECT fetched_at AS ts FROM page_cache
			UNION ALL
			SELECT created_at AS ts FROM extra_cache
		)
	`).Scan(&oldestUnix)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, err
	}
	if oldestUnix.Valid && oldestUnix.Int64 > 0 {
		stats.OldestEntry = time.Unix(oldestUnix.Int64, 0)
	}

	return stats, nil
}

// Close closes the cache database
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// cutoff is the oldest fetched_at still considered fresh, exclusive
func (c *Cache) cutoff(maxAge time.Duration) int64 {
	return c.now().Add(-maxAge).Unix()
}

// DefaultCachePath returns the default cache database path
func DefaultCachePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "cache.db" // Fallback to current directory
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "findnews", "cache.db")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
