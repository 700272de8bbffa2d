package feed

import (
	"time"
)

// Metadata describes the feed itself.
type Metadata struct {
	Title       string
	Link        string
	Description string
}

// Entry is one parsed feed entry with every field optional except what the
// feed actually carried. Fallback logic lives in the ingestor; the parser only
// maps what is present instead of probing shapes downstream.
type Entry struct {
	Title       string
	Link        string
	Published   *time.Time
	Content     string // content:encoded or atom content, may be HTML
	Description string
	ImageURL    string
}
