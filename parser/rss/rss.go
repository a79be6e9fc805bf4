package rss

import (
	"context"

	"github.com/mmcdole/gofeed"

	"github.com/scipunch/findnews/fetcher/types"
	"github.com/scipunch/findnews/parser"
)

// Parser parses RSS and Atom documents using gofeed
type Parser struct{}

// New creates a new feed parser
func New() *Parser {
	return &Parser{}
}

// Parse decodes a feed body. Any failure is returned as a *parser.ParseError.
func (p *Parser) Parse(ctx context.Context, body []byte) (types.Feed, error) {
	var feed types.Feed

	if err := ctx.Err(); err != nil {
		return feed, &parser.ParseError{Type: parser.Feed, Err: err}
	}

	// gofeed parsers keep per-document state, so each call gets its own.
	gofeedFeed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return feed, &parser.ParseError{Type: parser.Feed, Err: err}
	}

	// Convert gofeed.Feed to our custom Feed type
	feed.Title = gofeedFeed.Title
	feed.Items = make([]types.FeedItem, 0, len(gofeedFeed.Items))

	for _, item := range gofeedFeed.Items {
		feedItem := types.FeedItem{
			Title:   item.Title,
			Link:    item.Link,
			Summary: item.Description,
		}

		// Parse published date if available
		if item.PublishedParsed != nil {
			feedItem.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			feedItem.Published = *item.UpdatedParsed
		}

		feed.Items = append(feed.Items, feedItem)
	}

	return feed, nil
}
