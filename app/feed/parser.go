package feed

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

var imgSrcRegex = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Entry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, p.mapEntry(item))
	}

	return metadata, entries, nil
}

func (p *Parser) mapEntry(item *gofeed.Item) Entry {
	entry := Entry{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Content:     item.Content,
		Description: item.Description,
		ImageURL:    p.extractImage(item),
	}

	entry.Published = p.extractPublished(item)

	return entry
}

// extractPublished returns the entry's publish time, falling back to the raw
// pubDate string (feeds ship every date format imaginable) and then to the
// updated time. Nil means the ingestor substitutes ingestion time.
func (p *Parser) extractPublished(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}

	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return &t
		}
	}

	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}

	return nil
}

// extractImage picks a leading image URL for the entry, in priority order:
// media:content, media:thumbnail, enclosure, then a best-effort scan of the
// HTML body for the first <img src>.
func (p *Parser) extractImage(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}

	for _, enclosure := range item.Enclosures {
		if enclosure != nil && enclosure.URL != "" {
			return enclosure.URL
		}
	}

	html := item.Content
	if html == "" {
		html = item.Description
	}
	if match := imgSrcRegex.FindStringSubmatch(html); match != nil {
		return match[1]
	}

	return ""
}
