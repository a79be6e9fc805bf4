package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scipunch/findnews/cache"
	"github.com/scipunch/findnews/crawl"
)

const baseCfgPath = "findnews/config.toml"

type Config struct {
	FeedsTablePath       string            `toml:"feeds_table_path"`   // Comma-separated: name, base_url, feed_url
	SourcesTablePath     string            `toml:"sources_table_path"` // Tab-separated: name, host_or_url
	DownloadRoot         string            `toml:"download_root"`
	ListsDir             string            `toml:"lists_dir"`
	DatabasePath         string            `toml:"database_path"` // Fetch cache, defaults to <download_root>/cache.db
	FeedFreshnessSeconds int               `toml:"feed_freshness_seconds"`
	PageFreshnessSeconds int               `toml:"page_freshness_seconds"`
	FetchTimeoutSeconds  int               `toml:"fetch_timeout_seconds"`
	MaxRedirects         int               `toml:"max_redirects"`
	Workers              int               `toml:"workers"` // 1 keeps table order
	UserAgent            string            `toml:"user_agent"`
	FeedFilters          []string          `toml:"feed_filters"` // Names of filters applied to feed entries
	Filters              map[string]Filter `toml:"filters"`      // Named filters that can be referenced by feed_filters
}

// Filter defines rules for filtering feed entries
type Filter struct {
	MinLength         int      `toml:"min_length"`         // Minimum character count (0 = no limit)
	MinWords          int      `toml:"min_words"`          // Minimum word count (0 = no limit)
	ExcludePatterns   []string `toml:"exclude_patterns"`   // Regex patterns matched against title and summary
	ExcludeURLs       []string `toml:"exclude_urls"`       // Regex patterns matched against the entry link
	RequireParagraphs bool     `toml:"require_paragraphs"` // Must have multiple lines/paragraphs
}

// CrawlConfig picks the options the crawl engine needs.
func (c Config) CrawlConfig() crawl.Config {
	return crawl.Config{
		FeedsTablePath:   c.FeedsTablePath,
		SourcesTablePath: c.SourcesTablePath,
		ListsDir:         c.ListsDir,
		FeedFreshness:    seconds(c.FeedFreshnessSeconds),
		PageFreshness:    seconds(c.PageFreshnessSeconds),
		Workers:          c.Workers,
	}
}

func (c Config) FetchTimeout() time.Duration {
	return seconds(c.FetchTimeoutSeconds)
}

// CachePath returns the database path, falling back to the download root.
func (c Config) CachePath() string {
	switch {
	case c.DatabasePath != "":
		return c.DatabasePath
	case c.DownloadRoot != "":
		return path.Join(c.DownloadRoot, "cache.db")
	default:
		return cache.DefaultCachePath()
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	_, err = toml.Decode(string(dat), &conf)
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return conf, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	return conf, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.FeedsTablePath == "":
		return fmt.Errorf("feeds_table_path is empty")
	case c.SourcesTablePath == "":
		return fmt.Errorf("sources_table_path is empty")
	case c.ListsDir == "":
		return fmt.Errorf("lists_dir is empty")
	case c.FeedFreshnessSeconds < 0 || c.PageFreshnessSeconds < 0:
		return fmt.Errorf("freshness windows must not be negative")
	case c.FetchTimeoutSeconds <= 0:
		return fmt.Errorf("fetch_timeout_seconds must be positive, got %d", c.FetchTimeoutSeconds)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	for _, name := range c.FeedFilters {
		if _, ok := c.Filters[name]; !ok {
			return fmt.Errorf("feed filter %q is not defined", name)
		}
	}
	return nil
}

func Write(cfgPath string, cfg Config) error {
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := path.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	err = os.WriteFile(cfgPath, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	slog.Info("config written", "at", cfgPath)
	return nil
}

func Default() Config {
	return Config{
		FeedsTablePath:       "data/parser/conf/feeds.csv",
		SourcesTablePath:     "data/parser/conf/sources.csv",
		DownloadRoot:         "data/parser/articles",
		ListsDir:             "data/parser/lists",
		FeedFreshnessSeconds: 60 * 5,
		PageFreshnessSeconds: 60 * 10,
		FetchTimeoutSeconds:  30,
		MaxRedirects:         10,
		Workers:              1,
		UserAgent:            "findnews/1.0",
		Filters:              map[string]Filter{},
	}
}

func DefaultPath() string {
	var xdgHome = os.Getenv("XDG_CONFIG_HOME")
	if xdgHome != "" {
		return path.Join(xdgHome, baseCfgPath)
	}

	var home = os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", baseCfgPath)
	}

	panic("unclear where to search for the config file")
}
