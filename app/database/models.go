package database

import (
	"time"
)

// Source health statuses recorded after each fetch attempt.
const (
	HealthUnknown   = "unknown"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Source represents a registered RSS source in the database
type Source struct {
	ID             string // Database UUID
	Name           string
	URL            string
	Category       string
	Active         bool
	ExtractContent bool // Fetch full article content when the feed entry has no body
	HealthStatus   string
	HealthDetail   string
	LastFetchedAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item represents an ingested content record, the unit of deduplication
type Item struct {
	ID           string
	SourceID     string
	Title        string
	Body         string
	CanonicalURL string
	ImageURL     string
	PublishedAt  time.Time
	IsDuplicate  bool
	DuplicateOf  *string // Set only when IsDuplicate; always references a non-duplicate item
	CreatedAt    time.Time

	// Populated by ListItems via join, empty elsewhere
	SourceName     string
	SourceCategory string
}
