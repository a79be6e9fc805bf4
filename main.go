package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/scipunch/findnews/cache"
	"github.com/scipunch/findnews/config"
	"github.com/scipunch/findnews/crawl"
	"github.com/scipunch/findnews/fetcher"
	"github.com/scipunch/findnews/filter"
	"github.com/scipunch/findnews/parser/rss"
	"github.com/scipunch/findnews/parser/web"
	"github.com/scipunch/findnews/runid"
)

func main() {
	if os.Getenv("DEBUG") != "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var cfgPath string
	var cleanCache bool
	var workers int
	flag.StringVar(&cfgPath, "config", config.DefaultPath(), "path to a TOML config")
	flag.BoolVar(&cleanCache, "clean", false, "remove all cache entries")
	flag.IntVar(&workers, "workers", 0, "sources fetched in parallel, overrides the config")
	flag.Parse()

	// Read config and create if default is missing
	conf, err := config.Read(cfgPath)
	if errors.Is(err, os.ErrNotExist) && cfgPath == config.DefaultPath() {
		if err := config.Write(cfgPath, conf); err != nil {
			log.Fatalf("failed to write default config with %s", err)
		}
	} else if err != nil {
		log.Fatalf("failed to read config with %s", err)
	}
	if workers > 0 {
		conf.Workers = workers
	}

	store, err := cache.NewCache(conf.CachePath())
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}
	defer store.Close()

	// Handle -clean flag
	if cleanCache {
		if err := store.Clear(); err != nil {
			log.Fatalf("failed to clear cache: %v", err)
		}
		slog.Info("cache cleared successfully")
		return
	}

	stats, err := store.Stats()
	if err != nil {
		slog.Warn("failed to get cache stats", "error", err)
	} else {
		slog.Info("cache initialized",
			"path", conf.CachePath(),
			"page_entries", stats.PageEntries,
			"extra_entries", stats.ExtraEntries)
	}

	var opts []crawl.Option
	pipeline, err := filter.New(conf.Filters, conf.FeedFilters)
	if err != nil {
		log.Fatalf("failed to initialize filters: %s", err)
	}
	if pipeline.Len() > 0 {
		opts = append(opts, crawl.WithEntryFilter(pipeline.Include))
		slog.Info("initialized filters", "count", pipeline.Len())
	}

	downloader := fetcher.NewDownloader(store,
		fetcher.WithClient(fetcher.NewClient(conf.FetchTimeout(), conf.MaxRedirects)),
		fetcher.WithUserAgent(conf.UserAgent),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := crawl.New(conf.CrawlConfig(), downloader, rss.New(), web.New(), runid.New(), opts...)
	manifest, err := engine.Process(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("interrupted by user, exiting without a manifest")
		return
	}
	if err != nil {
		log.Fatalf("crawl failed with %s", err)
	}

	run := engine.Stats()
	slog.Info("crawl finished",
		"manifest", manifest,
		"discovered", len(engine.Discovered()),
		"fetched", run.Fetched,
		"cached", run.Cached,
		"failed", run.Failed,
		"entries", run.Entries)
}
