package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clock is a settable time source
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	cachePath := filepath.Join(t.TempDir(), "test_cache.db")

	cache, err := NewCache(cachePath, opts...)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestNewCache(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "nested", "test_cache.db")

	cache, err := NewCache(cachePath)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	// Verify database file was created
	if _, err := os.Stat(cachePath); os.IsNotExist(err) {
		t.Error("Cache database file was not created")
	}
}

func TestPageCache_SetAndGet(t *testing.T) {
	cache := newTestCache(t)

	url := "http://example.com/feed"
	page := Page{BaseURL: "https://example.com/feed", Body: []byte("<rss/>")}

	if err := cache.SetPage(url, page); err != nil {
		t.Fatalf("SetPage failed: %v", err)
	}

	retrieved, found, err := cache.GetPage(url, time.Minute)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if !found {
		t.Fatal("Expected cache hit, got miss")
	}
	if string(retrieved.Body) != string(page.Body) {
		t.Errorf("Retrieved body mismatch: got %s, want %s", retrieved.Body, page.Body)
	}
	if retrieved.BaseURL != page.BaseURL {
		t.Errorf("Retrieved base URL mismatch: got %s, want %s", retrieved.BaseURL, page.BaseURL)
	}
}

func TestPageCache_FetchedAt(t *testing.T) {
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, WithClock(clk.now))

	if err := cache.SetPage("http://example.com", Page{Body: []byte("x")}); err != nil {
		t.Fatalf("SetPage failed: %v", err)
	}

	page, found, err := cache.GetPage("http://example.com", time.Hour)
	if err != nil || !found {
		t.Fatalf("GetPage = found %v, err %v", found, err)
	}
	if !page.FetchedAt.Equal(clk.t) {
		t.Errorf("FetchedAt = %v, want %v", page.FetchedAt, clk.t)
	}
}

func TestPageCache_Miss(t *testing.T) {
	cache := newTestCache(t)

	_, found, err := cache.GetPage("https://nonexistent.com", time.Minute)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if found {
		t.Error("Expected cache miss, got hit")
	}
}

func TestPageCache_Freshness(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, WithClock(clk.now))

	url := "https://example.com/"
	if err := cache.SetPage(url, Page{BaseURL: url, Body: []byte("hi")}); err != nil {
		t.Fatalf("SetPage failed: %v", err)
	}

	tests := []struct {
		name    string
		elapsed time.Duration
		maxAge  time.Duration
		fresh   bool
	}{
		{name: "just fetched", elapsed: 0, maxAge: 5 * time.Minute, fresh: true},
		{name: "inside window", elapsed: 299 * time.Second, maxAge: 5 * time.Minute, fresh: true},
		{name: "window edge", elapsed: 5 * time.Minute, maxAge: 5 * time.Minute, fresh: false},
		{name: "expired", elapsed: time.Hour, maxAge: 10 * time.Minute, fresh: false},
		{name: "zero window", elapsed: 0, maxAge: 0, fresh: false},
	}

	start := clk.t
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.t = start.Add(tt.elapsed)

			fresh, err := cache.Fresh(url, tt.maxAge)
			if err != nil {
				t.Fatalf("Fresh failed: %v", err)
			}
			if fresh != tt.fresh {
				t.Errorf("Fresh = %v, want %v", fresh, tt.fresh)
			}

			_, found, err := cache.GetPage(url, tt.maxAge)
			if err != nil {
				t.Fatalf("GetPage failed: %v", err)
			}
			if found != tt.fresh {
				t.Errorf("GetPage found = %v, want %v", found, tt.fresh)
			}
		})
	}
}

func TestExtra_SetAndGet(t *testing.T) {
	cache := newTestCache(t)

	url := "https://example.com/article"
	if err := cache.SetExtra(url, MetaLabel, []byte("a,b,c,d,e")); err != nil {
		t.Fatalf("SetExtra failed: %v", err)
	}

	data, found, err := cache.GetExtra(url, MetaLabel)
	if err != nil {
		t.Fatalf("GetExtra failed: %v", err)
	}
	if !found {
		t.Fatal("Expected extra hit, got miss")
	}
	if string(data) != "a,b,c,d,e" {
		t.Errorf("Retrieved data mismatch: got %s", data)
	}

	// Extras do not make the page itself cached
	fresh, err := cache.Fresh(url, time.Hour)
	if err != nil {
		t.Fatalf("Fresh failed: %v", err)
	}
	if fresh {
		t.Error("Extra must not count as a cached page")
	}
}

func TestExtra_LabelMismatch(t *testing.T) {
	cache := newTestCache(t)

	url := "https://example.com/article"
	if err := cache.SetExtra(url, MetaLabel, []byte("data")); err != nil {
		t.Fatalf("SetExtra failed: %v", err)
	}

	_, found, err := cache.GetExtra(url, "other")
	if err != nil {
		t.Fatalf("GetExtra failed: %v", err)
	}
	if found {
		t.Error("Expected miss due to label mismatch, got hit")
	}
}

func TestClear(t *testing.T) {
	cache := newTestCache(t)

	// Add some data
	cache.SetPage("https://example.com/1", Page{Body: []byte("data1")})
	cache.SetPage("https://example.com/2", Page{Body: []byte("data2")})
	cache.SetExtra("https://example.com/3", MetaLabel, []byte("data3"))

	// Verify data exists
	stats, _ := cache.Stats()
	if stats.PageEntries != 2 {
		t.Errorf("Expected 2 page entries, got %d", stats.PageEntries)
	}
	if stats.ExtraEntries != 1 {
		t.Errorf("Expected 1 extra entry, got %d", stats.ExtraEntries)
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	stats, _ = cache.Stats()
	if stats.PageEntries != 0 {
		t.Errorf("Expected 0 page entries after clear, got %d", stats.PageEntries)
	}
	if stats.ExtraEntries != 0 {
		t.Errorf("Expected 0 extra entries after clear, got %d", stats.ExtraEntries)
	}
}

func TestStats(t *testing.T) {
	cache := newTestCache(t)

	// Initially empty
	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.PageEntries != 0 || stats.ExtraEntries != 0 {
		t.Error("Expected empty cache initially")
	}

	cache.SetPage("https://example.com/1", Page{Body: []byte("data1")})
	cache.SetExtra("https://example.com/1", MetaLabel, []byte("meta"))

	stats, err = cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.PageEntries != 1 {
		t.Errorf("Expected 1 page entry, got %d", stats.PageEntries)
	}
	if stats.ExtraEntries != 1 {
		t.Errorf("Expected 1 extra entry, got %d", stats.ExtraEntries)
	}
	if stats.OldestEntry.IsZero() {
		t.Error("Expected OldestEntry to be set")
	}
}

func TestDefaultCachePath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/var/cache")
	if got := DefaultCachePath(); got != "/var/cache/findnews/cache.db" {
		t.Errorf("DefaultCachePath = %s", got)
	}
}

func TestUpdateExistingEntry(t *testing.T) {
	cache := newTestCache(t)

	url := "https://example.com/article"

	cache.SetPage(url, Page{Body: []byte("original data")})
	cache.SetPage(url, Page{Body: []byte("updated data")})

	retrieved, found, _ := cache.GetPage(url, time.Hour)
	if !found {
		t.Fatal("Expected cache hit")
	}
	if string(retrieved.Body) != "updated data" {
		t.Errorf("Expected updated data, got %s", retrieved.Body)
	}
}
