// Package crawl polls feeds and seed pages, deduplicates the links they yield
// and writes the run's manifest of unique URLs.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scipunch/findnews/cache"
	"github.com/scipunch/findnews/fetcher/types"
	"github.com/scipunch/findnews/runid"
	"github.com/scipunch/findnews/sources"
)

// publishedLayout is how entry publication times are recorded in metadata
const publishedLayout = "2006-01-02T15:04:05"

// Config holds the options of a crawl run
type Config struct {
	FeedsTablePath   string
	SourcesTablePath string
	ListsDir         string
	FeedFreshness    time.Duration
	PageFreshness    time.Duration
	Workers          int // Sources fetched in parallel; 1 keeps table order
}

// FetchCache fetches URLs and remembers what was fetched recently
type FetchCache interface {
	Exists(ctx context.Context, url string, maxAge time.Duration) (bool, error)
	Fetch(ctx context.Context, url string, maxAge time.Duration) (baseURL string, body []byte, err error)
	SaveExtra(ctx context.Context, url, label string, blob []byte) error
}

// FeedParser decodes a feed document
type FeedParser interface {
	Parse(ctx context.Context, body []byte) (types.Feed, error)
}

// LinkExtractor returns the absolute URLs an HTML page links to
type LinkExtractor interface {
	Links(baseURL string, body []byte) []string
}

// EntryFilter decides whether a feed entry is kept; the string explains a rejection
type EntryFilter func(item types.FeedItem) (bool, string)

// Stats counts what a run did
type Stats struct {
	Cached  int64 // Sources skipped because a fresh copy exists
	Fetched int64
	Failed  int64 // Fetch or parse failures
	Entries int64 // Feed entries recorded with metadata
}

// Engine runs one crawl. Its discovered set lives as long as the engine, so
// create a new Engine per run.
type Engine struct {
	cfg    Config
	store  FetchCache
	feeds  FeedParser
	links  LinkExtractor
	ids    runid.Generator
	filter EntryFilter

	found *URLSet

	cached, fetched, failed, entries atomic.Int64
}

type Option func(*Engine)

// WithEntryFilter drops feed entries rejected by f before they are recorded
func WithEntryFilter(f EntryFilter) Option {
	return func(e *Engine) { e.filter = f }
}

func New(cfg Config, store FetchCache, feeds FeedParser, links LinkExtractor, ids runid.Generator, opts ...Option) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	e := &Engine{
		cfg:   cfg,
		store: store,
		feeds: feeds,
		links: links,
		ids:   ids,
		found: NewURLSet(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discovered returns every URL found so far, sorted
func (e *Engine) Discovered() []string {
	return e.found.Sorted()
}

func (e *Engine) Stats() Stats {
	return Stats{
		Cached:  e.cached.Load(),
		Fetched: e.fetched.Load(),
		Failed:  e.failed.Load(),
		Entries: e.entries.Load(),
	}
}

// Process loads feeds, then seed pages, and writes the manifest. It returns the
// manifest path, or "" when nothing was discovered and no file was written.
func (e *Engine) Process(ctx context.Context) (string, error) {
	if err := e.LoadFeeds(ctx); err != nil {
		return "", err
	}
	if err := e.LoadMainPages(ctx); err != nil {
		return "", err
	}

	urls := e.found.Sorted()
	if len(urls) == 0 {
		slog.Info("no urls discovered, manifest not written")
		return "", nil
	}

	path, err := e.writeManifest(urls)
	if err != nil {
		return "", err
	}
	slog.Info("manifest saved", "path", path, "urls", len(urls))
	return path, nil
}

// LoadFeeds polls every feed in the feed table and records the entries it has
// not seen yet. Fetch and parse failures skip the feed; failing to persist
// entry metadata aborts.
func (e *Engine) LoadFeeds(ctx context.Context) error {
	feeds, err := sources.ReadFeeds(e.cfg.FeedsTablePath)
	if err != nil {
		return err
	}

	err = e.each(ctx, len(feeds), func(ctx context.Context, i int) error {
		return e.loadFeed(ctx, feeds[i])
	})
	if err != nil {
		return err
	}
	slog.Info("feeds loaded", "feeds", len(feeds), "discovered", e.found.Len())
	return nil
}

func (e *Engine) loadFeed(ctx context.Context, src sources.FeedSource) error {
	_, body, ok := e.fetch(ctx, src.FeedURL, e.cfg.FeedFreshness)
	if !ok {
		return nil
	}

	slog.Info("parsing feed", "feed_url", src.FeedURL)
	feed, err := e.feeds.Parse(ctx, body)
	if err != nil {
		e.failed.Add(1)
		slog.Error("failed to parse feed", "feed_url", src.FeedURL, "error", err)
		return nil
	}
	slog.Debug("feed parsed", "feed_url", src.FeedURL, "title", feed.Title, "items", len(feed.Items))

	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		if e.filter != nil {
			if keep, reason := e.filter(item); !keep {
				slog.Debug("entry filtered out", "url", item.Link, "reason", reason)
				continue
			}
		}
		if !e.found.Add(item.Link) {
			continue
		}

		if err := e.saveMeta(ctx, src.FeedURL, item); err != nil {
			return err
		}
		e.entries.Add(1)
	}
	return nil
}

func (e *Engine) saveMeta(ctx context.Context, feedURL string, item types.FeedItem) error {
	meta := cache.EntryMeta{
		URL:     item.Link,
		Title:   item.Title,
		Summary: item.Summary,
		FeedURL: feedURL,
	}
	if !item.Published.IsZero() {
		meta.Published = item.Published.UTC().Format(publishedLayout)
	}

	blob, err := cache.SerializeEntryMeta(meta)
	if err != nil {
		return err
	}
	if err := e.store.SaveExtra(ctx, item.Link, cache.MetaLabel, blob); err != nil {
		return fmt.Errorf("failed to save metadata for %s: %w", item.Link, err)
	}
	return nil
}

// LoadMainPages fetches every seed page candidate and adds the links found on
// it. Failed fetches only skip that candidate.
func (e *Engine) LoadMainPages(ctx context.Context) error {
	seeds, err := sources.ReadSeeds(e.cfg.SourcesTablePath)
	if err != nil {
		return err
	}

	var urls []string
	for _, seed := range seeds {
		urls = append(urls, seed.Candidates()...)
	}

	err = e.each(ctx, len(urls), func(ctx context.Context, i int) error {
		e.loadPage(ctx, urls[i])
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("pages loaded", "seeds", len(seeds), "pages", len(urls), "discovered", e.found.Len())
	return nil
}

func (e *Engine) loadPage(ctx context.Context, url string) {
	base, body, ok := e.fetch(ctx, url, e.cfg.PageFreshness)
	if !ok {
		return
	}

	slog.Info("parsing page", "url", url)
	for _, found := range e.links.Links(base, body) {
		e.found.Add(found)
	}
}

// fetch returns the final URL and body of url unless a fresh copy is cached or
// the fetch fails, reporting which through ok.
func (e *Engine) fetch(ctx context.Context, url string, maxAge time.Duration) (string, []byte, bool) {
	fresh, err := e.store.Exists(ctx, url, maxAge)
	if err != nil {
		slog.Warn("cache lookup failed, fetching", "url", url, "error", err)
	} else if fresh {
		e.cached.Add(1)
		slog.Debug("cached copy is fresh, skipping", "url", url)
		return "", nil, false
	}

	base, body, err := e.store.Fetch(ctx, url, maxAge)
	if err != nil {
		e.failed.Add(1)
		slog.Error("failed to download", "url", url, "error", err)
		return "", nil, false
	}
	e.fetched.Add(1)
	return base, body, true
}

// each runs fn for indexes [0, n) with at most Workers in flight. It stops at
// the first error or when ctx is done.
func (e *Engine) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// writeManifest writes urls to a new file in ListsDir named after the run
func (e *Engine) writeManifest(urls []string) (string, error) {
	if err := os.MkdirAll(e.cfg.ListsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create lists directory at '%s' with %w", e.cfg.ListsDir, err)
	}

	name := fmt.Sprintf("feeds-%s.txt", runid.Token(e.ids.Next()))
	path := filepath.Join(e.cfg.ListsDir, name)

	tmp, err := os.CreateTemp(e.cfg.ListsDir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create manifest with %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to create manifest with %w", err)
	}
	if _, err := tmp.WriteString(strings.Join(urls, "\n")); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write manifest '%s' with %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write manifest '%s' with %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move manifest into '%s' with %w", path, err)
	}
	return path, nil
}
