package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/dedup"
	"github.com/lysyi3m/news-comb/app/feed"
)

// Options bounds a single ingestion run. Zero values fall back to the
// defaults below.
type Options struct {
	UserAgent         string
	SourceDelay       time.Duration // pause between sources, politeness not performance
	FetchTimeout      time.Duration
	MaxItemsPerSource int
}

const (
	defaultSourceDelay       = time.Second
	defaultFetchTimeout      = 20 * time.Second
	defaultMaxItemsPerSource = 50
)

// Summary reports one ingestion run across all active sources.
type Summary struct {
	SourcesProcessed int
	SourcesFailed    int
	ItemsNew         int
	ItemsUpdated     int
	EntriesSkipped   int
}

// Ingestor fetches every active source sequentially, maps feed entries to
// items and persists them keyed on canonical URL. A failure in one source is
// recorded as that source's health and never aborts the run; only an
// unreachable store does.
type Ingestor struct {
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	httpClient *http.Client
	parser     *feed.Parser
	extractor  *feed.ContentExtractor
	opts       Options
}

func NewIngestor(sourceRepo database.SourceRepository, itemRepo database.ItemRepository,
	httpClient *http.Client, parser *feed.Parser, extractor *feed.ContentExtractor, opts Options) *Ingestor {
	if opts.SourceDelay <= 0 {
		opts.SourceDelay = defaultSourceDelay
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.MaxItemsPerSource <= 0 {
		opts.MaxItemsPerSource = defaultMaxItemsPerSource
	}

	return &Ingestor{
		sourceRepo: sourceRepo,
		itemRepo:   itemRepo,
		httpClient: httpClient,
		parser:     parser,
		extractor:  extractor,
		opts:       opts,
	}
}

// Run processes all active sources in their stable configured order, one at a
// time, with a fixed delay between sources.
func (in *Ingestor) Run(ctx context.Context) (Summary, error) {
	sources, err := in.sourceRepo.GetActiveSources()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list active sources: %w", err)
	}

	var summary Summary

	for i, src := range sources {
		if i > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(in.opts.SourceDelay):
			}
		}

		stats, err := in.ingestSource(ctx, src)
		if err != nil {
			slog.Warn("Source ingestion failed", "source", src.Name, "error", err)
			if recErr := in.sourceRepo.RecordFetchResult(src.ID, database.HealthUnhealthy, err.Error()); recErr != nil {
				slog.Error("Failed to record fetch result", "source", src.Name, "error", recErr)
			}
			summary.SourcesFailed++
			continue
		}

		if recErr := in.sourceRepo.RecordFetchResult(src.ID, database.HealthHealthy, ""); recErr != nil {
			slog.Error("Failed to record fetch result", "source", src.Name, "error", recErr)
		}

		summary.SourcesProcessed++
		summary.ItemsNew += stats.ItemsNew
		summary.ItemsUpdated += stats.ItemsUpdated
		summary.EntriesSkipped += stats.EntriesSkipped
	}

	slog.Info("Ingestion run completed",
		"sources_processed", summary.SourcesProcessed,
		"sources_failed", summary.SourcesFailed,
		"items_new", summary.ItemsNew,
		"items_updated", summary.ItemsUpdated,
		"entries_skipped", summary.EntriesSkipped)

	return summary, nil
}

func (in *Ingestor) ingestSource(ctx context.Context, src database.Source) (Summary, error) {
	data, err := in.fetchURL(ctx, src.URL)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to fetch feed: %w", err)
	}

	metadata, entries, err := in.parser.Run(data)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to parse feed: %w", err)
	}

	if len(entries) > in.opts.MaxItemsPerSource {
		entries = entries[:in.opts.MaxItemsPerSource]
	}

	var stats Summary
	for _, entry := range entries {
		// Title and link are the minimum for a usable item; entries
		// without either are skipped, not errors.
		if entry.Title == "" || entry.Link == "" {
			stats.EntriesSkipped++
			continue
		}

		item := in.mapEntry(ctx, src, entry)

		created, err := in.itemRepo.UpsertItem(item)
		if err != nil {
			slog.Warn("Failed to store item, skipping entry",
				"source", src.Name, "url", item.CanonicalURL, "error", err)
			stats.EntriesSkipped++
			continue
		}

		if created {
			stats.ItemsNew++
		} else {
			stats.ItemsUpdated++
		}
	}

	slog.Debug("Source processed",
		"source", src.Name,
		"feed_title", metadata.Title,
		"entries", len(entries),
		"new", stats.ItemsNew,
		"updated", stats.ItemsUpdated,
		"skipped", stats.EntriesSkipped)

	return stats, nil
}

// mapEntry builds the ingestion payload: body falls through content to
// description to optional full-page extraction, markup is stripped, and a
// missing publish date becomes ingestion time.
func (in *Ingestor) mapEntry(ctx context.Context, src database.Source, entry feed.Entry) database.NewItem {
	rawBody := entry.Content
	if rawBody == "" {
		rawBody = entry.Description
	}
	if rawBody == "" && src.ExtractContent && in.extractor != nil {
		rawBody = in.extractPageContent(ctx, src, entry.Link)
	}

	publishedAt := time.Now().UTC()
	if entry.Published != nil {
		publishedAt = entry.Published.UTC()
	}

	return database.NewItem{
		SourceID:     src.ID,
		Title:        dedup.Normalize(entry.Title),
		Body:         dedup.Normalize(rawBody),
		CanonicalURL: entry.Link,
		ImageURL:     entry.ImageURL,
		PublishedAt:  publishedAt,
	}
}

func (in *Ingestor) extractPageContent(ctx context.Context, src database.Source, pageURL string) string {
	data, err := in.fetchURL(ctx, pageURL)
	if err != nil {
		slog.Debug("Page fetch for content extraction failed",
			"source", src.Name, "url", pageURL, "error", err)
		return ""
	}

	content, err := in.extractor.Run(data, pageURL)
	if err != nil {
		slog.Debug("Content extraction failed",
			"source", src.Name, "url", pageURL, "error", err)
		return ""
	}

	return content
}

func (in *Ingestor) fetchURL(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, in.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", in.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	resp, err := in.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
