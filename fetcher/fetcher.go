package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scipunch/findnews/cache"
)

// maxBodySize caps how much of a response body is read
const maxBodySize = 16 << 20

// Store is the persistence the downloader caches into
type Store interface {
	Fresh(url string, maxAge time.Duration) (bool, error)
	GetPage(url string, maxAge time.Duration) (cache.Page, bool, error)
	SetPage(url string, page cache.Page) error
	SetExtra(url, label string, data []byte) error
}

// FetchError is returned when a URL could not be retrieved
type FetchError struct {
	URL        string
	StatusCode int // Zero for transport failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Downloader fetches URLs over HTTP and keeps the bodies in a Store
type Downloader struct {
	store     Store
	client    *http.Client
	userAgent string
	group     singleflight.Group
}

type Option func(*Downloader)

// WithClient sets the HTTP client, including its timeout and redirect policy
func WithClient(client *http.Client) Option {
	return func(d *Downloader) { d.client = client }
}

func WithUserAgent(ua string) Option {
	return func(d *Downloader) { d.userAgent = ua }
}

// NewDownloader creates a downloader caching into store
func NewDownloader(store Store, opts ...Option) *Downloader {
	d := &Downloader{
		store:  store,
		client: NewClient(30*time.Second, defaultMaxRedirects),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Exists reports whether url was fetched less than maxAge ago
func (d *Downloader) Exists(_ context.Context, url string, maxAge time.Duration) (bool, error) {
	return d.store.Fresh(url, maxAge)
}

// Fetch returns the final URL after redirects and the body for url, serving it from
// the store when the cached copy is younger than maxAge. Concurrent calls for
// the same URL share a single download.
func (d *Downloader) Fetch(ctx context.Context, url string, maxAge time.Duration) (string, []byte, error) {
	v, err, _ := d.group.Do(url, func() (any, error) {
		page, found, err := d.store.GetPage(url, maxAge)
		if err != nil {
			slog.Warn("page cache read failed, downloading", "url", url, "error", err)
		} else if found {
			slog.Debug("serving cached page", "url", url, "fetched_at", page.FetchedAt)
			return page, nil
		}

		page, err = d.download(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := d.store.SetPage(url, page); err != nil {
			slog.Warn("failed to cache page", "url", url, "error", err)
		}
		return page, nil
	})
	if err != nil {
		return "", nil, err
	}

	page := v.(cache.Page)
	return page.BaseURL, page.Body, nil
}

// SaveExtra stores an auxiliary blob next to the cached page
func (d *Downloader) SaveExtra(_ context.Context, url, label string, blob []byte) error {
	return d.store.SetExtra(url, label, blob)
}

func (d *Downloader) download(ctx context.Context, url string) (cache.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return cache.Page{}, &FetchError{URL: url, Err: err}
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	slog.Debug("downloading", "url", url)
	resp, err := d.client.Do(req)
	if err != nil {
		return cache.Page{}, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cache.Page{}, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.New(resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return cache.Page{}, &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	return cache.Page{BaseURL: resp.Request.URL.String(), Body: body}, nil
}
