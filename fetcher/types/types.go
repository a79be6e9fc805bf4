package types

import "time"

// Feed represents a parsed feed document
type Feed struct {
	Title string
	Items []FeedItem
}

// FeedItem represents a single entry in a feed
type FeedItem struct {
	Title     string
	Link      string
	Summary   string
	Published time.Time // Zero when the feed gives neither a published nor an updated date
}
