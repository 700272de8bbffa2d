package database

import (
	"time"
)

// NewItem is the ingestion payload for a single feed entry. CanonicalURL is
// the identity key: upserting an existing URL refreshes the mutable fields in
// place instead of creating a second row.
type NewItem struct {
	SourceID     string
	Title        string
	Body         string
	CanonicalURL string
	ImageURL     string
	PublishedAt  time.Time
}

// ItemListOptions narrows ListItems results. Zero values mean "no filter".
type ItemListOptions struct {
	SourceID string
	Category string
	Search   string
	Limit    int
	Offset   int
}

// ItemStats summarizes the items table for the stats endpoint and cycle logs.
type ItemStats struct {
	Total      int
	Originals  int
	Duplicates int
}

type SourceRepository interface {
	UpsertSource(name, url, category string, active, extractContent bool) (string, error)
	GetActiveSources() ([]Source, error)
	ListSources() ([]Source, error)
	RecordFetchResult(sourceID, status, detail string) error
	GetSourceCount() (int, error)
}

type ItemRepository interface {
	FindByURL(url string) (*Item, error)
	UpsertItem(item NewItem) (bool, error)
	GetItem(id string) (*Item, error)
	FindRecent(since time.Time) ([]Item, error)
	FindLatestOriginals(limit int) ([]Item, error)
	MarkDuplicate(itemID, originalID string) error
	ListItems(opts ItemListOptions) ([]Item, error)
	GetItemStats() (ItemStats, error)
}
