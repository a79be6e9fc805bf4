package cache

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// MetaLabel is the extra label feed entry metadata is stored under
const MetaLabel = "meta"

// EntryMeta is the metadata recorded for every URL discovered through a feed
type EntryMeta struct {
	URL       string
	Title     string
	Summary   string
	Published string // 2006-01-02T15:04:05, empty when the feed gave no date
	FeedURL   string
}

const entryMetaFields = 5

// SerializeEntryMeta encodes meta as a single CSV record
// (url, title, summary, published, feed_url) without the trailing line break.
func SerializeEntryMeta(meta EntryMeta) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	err := w.Write([]string{meta.URL, meta.Title, meta.Summary, meta.Published, meta.FeedURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry meta: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode entry meta: %w", err)
	}
	return []byte(strings.TrimRight(buf.String(), "\r\n")), nil
}

// DeserializeEntryMeta decodes a record produced by SerializeEntryMeta.
// encoding/csv reads \r\n inside a quoted field as \n, so CRLF line breaks in
// a field come back as LF.
func DeserializeEntryMeta(data []byte) (EntryMeta, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = entryMetaFields
	record, err := r.Read()
	if err != nil {
		return EntryMeta{}, fmt.Errorf("failed to decode entry meta: %w", err)
	}
	return EntryMeta{
		URL:       record[0],
		Title:     record[1],
		Summary:   record[2],
		Published: record[3],
		FeedURL:   record[4],
	}, nil
}
