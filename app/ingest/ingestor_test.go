package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/feed"
)

type fakeSourceRepo struct {
	sources    []database.Source
	sourcesErr error
	health     map[string]string
	detail     map[string]string
}

func newFakeSourceRepo(sources ...database.Source) *fakeSourceRepo {
	return &fakeSourceRepo{
		sources: sources,
		health:  make(map[string]string),
		detail:  make(map[string]string),
	}
}

func (r *fakeSourceRepo) UpsertSource(name, url, category string, active, extractContent bool) (string, error) {
	return "", errors.New("not implemented")
}

func (r *fakeSourceRepo) GetActiveSources() ([]database.Source, error) {
	if r.sourcesErr != nil {
		return nil, r.sourcesErr
	}
	return r.sources, nil
}

func (r *fakeSourceRepo) ListSources() ([]database.Source, error) {
	return r.sources, nil
}

func (r *fakeSourceRepo) RecordFetchResult(sourceID, status, detail string) error {
	r.health[sourceID] = status
	r.detail[sourceID] = detail
	return nil
}

func (r *fakeSourceRepo) GetSourceCount() (int, error) {
	return len(r.sources), nil
}

type fakeItemRepo struct {
	database.ItemRepository

	itemsByURL map[string]database.NewItem
	upsertErr  map[string]error
	inserts    int
	updates    int
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{
		itemsByURL: make(map[string]database.NewItem),
		upsertErr:  make(map[string]error),
	}
}

func (r *fakeItemRepo) UpsertItem(item database.NewItem) (bool, error) {
	if err := r.upsertErr[item.CanonicalURL]; err != nil {
		return false, err
	}

	_, exists := r.itemsByURL[item.CanonicalURL]
	r.itemsByURL[item.CanonicalURL] = item
	if exists {
		r.updates++
		return false, nil
	}
	r.inserts++
	return true, nil
}

func feedDocument(entries ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://news.example.com</link>
` + strings.Join(entries, "\n") + `
  </channel>
</rss>`
}

func feedEntry(title, link string) string {
	return fmt.Sprintf(`    <item>
      <title>%s</title>
      <link>%s</link>
      <description>Body for %s</description>
      <pubDate>Thu, 14 Mar 2024 10:30:00 GMT</pubDate>
    </item>`, title, link, title)
}

func newTestIngestor(sourceRepo database.SourceRepository, itemRepo database.ItemRepository) *Ingestor {
	return NewIngestor(sourceRepo, itemRepo, &http.Client{Timeout: 5 * time.Second},
		feed.NewParser(), feed.NewContentExtractor(),
		Options{SourceDelay: time.Millisecond, MaxItemsPerSource: 50})
}

func TestIngestorRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, feedDocument(
			feedEntry("First story", "https://news.example.com/1"),
			feedEntry("Second story", "https://news.example.com/2"),
		))
	}))
	defer server.Close()

	sourceRepo := newFakeSourceRepo(database.Source{ID: "src-1", Name: "Test", URL: server.URL, Active: true})
	itemRepo := newFakeItemRepo()

	ingestor := newTestIngestor(sourceRepo, itemRepo)

	summary, err := ingestor.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if summary.SourcesProcessed != 1 || summary.SourcesFailed != 0 {
		t.Errorf("Unexpected source counts: %+v", summary)
	}
	if summary.ItemsNew != 2 {
		t.Errorf("Expected 2 new items, got %d", summary.ItemsNew)
	}
	if sourceRepo.health["src-1"] != database.HealthHealthy {
		t.Errorf("Expected healthy status, got %s", sourceRepo.health["src-1"])
	}

	item, ok := itemRepo.itemsByURL["https://news.example.com/1"]
	if !ok {
		t.Fatal("Expected item keyed on canonical URL")
	}
	if item.Title != "First story" {
		t.Errorf("Unexpected title: %q", item.Title)
	}
	if item.Body != "Body for First story" {
		t.Errorf("Unexpected body: %q", item.Body)
	}
	if item.SourceID != "src-1" {
		t.Errorf("Unexpected source id: %q", item.SourceID)
	}
	if item.PublishedAt.IsZero() {
		t.Error("Expected published time to be set")
	}
}

func TestIngestorRunIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, feedDocument(feedEntry("Story", "https://news.example.com/1")))
	}))
	defer server.Close()

	sourceRepo := newFakeSourceRepo(database.Source{ID: "src-1", Name: "Test", URL: server.URL, Active: true})
	itemRepo := newFakeItemRepo()

	ingestor := newTestIngestor(sourceRepo, itemRepo)

	if _, err := ingestor.Run(context.Background()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	summary, err := ingestor.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if summary.ItemsNew != 0 || summary.ItemsUpdated != 1 {
		t.Errorf("Second fetch should update in place, got %+v", summary)
	}
	if len(itemRepo.itemsByURL) != 1 {
		t.Errorf("Expected 1 stored item, got %d", len(itemRepo.itemsByURL))
	}
}

func TestIngestorSkipsEntriesWithoutTitleOrLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, feedDocument(
			`    <item><title></title><link>https://news.example.com/untitled</link></item>`,
			`    <item><title>No link</title></item>`,
			feedEntry("Valid story", "https://news.example.com/valid"),
		))
	}))
	defer server.Close()

	sourceRepo := newFakeSourceRepo(database.Source{ID: "src-1", Name: "Test", URL: server.URL, Active: true})
	itemRepo := newFakeItemRepo()

	ingestor := newTestIngestor(sourceRepo, itemRepo)

	summary, err := ingestor.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if summary.ItemsNew != 1 {
		t.Errorf("Expected 1 item from the valid entry, got %d", summary.ItemsNew)
	}
	if summary.EntriesSkipped != 2 {
		t.Errorf("Expected 2 skipped entries, got %d", summary.EntriesSkipped)
	}
	if summary.SourcesFailed != 0 {
		t.Errorf("Skipped entries must not fail the source, got %+v", summary)
	}
}

func TestIngestorPerSourceIsolation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/good":
			fmt.Fprint(w, feedDocument(feedEntry("Story", "https://news.example.com/1")))
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	sourceRepo := newFakeSourceRepo(
		database.Source{ID: "src-bad", Name: "Broken", URL: server.URL + "/bad", Active: true},
		database.Source{ID: "src-good", Name: "Working", URL: server.URL + "/good", Active: true},
	)
	itemRepo := newFakeItemRepo()

	ingestor := newTestIngestor(sourceRepo, itemRepo)

	summary, err := ingestor.Run(context.Background())
	if err != nil {
		t.Fatalf("A failing source must not fail the run, got: %v", err)
	}

	if summary.SourcesProcessed != 1 || summary.SourcesFailed != 1 {
		t.Errorf("Unexpected source counts: %+v", summary)
	}
	if summary.ItemsNew != 1 {
		t.Errorf("Expected items from the working source, got %d", summary.ItemsNew)
	}

	if sourceRepo.health["src-bad"] != database.HealthUnhealthy {
		t.Errorf("Expected unhealthy status for broken source, got %s", sourceRepo.health["src-bad"])
	}
	if sourceRepo.detail["src-bad"] == "" {
		t.Error("Expected error detail for broken source")
	}
	if sourceRepo.health["src-good"] != database.HealthHealthy {
		t.Errorf("Expected healthy status for working source, got %s", sourceRepo.health["src-good"])
	}
}

func TestIngestorEntryCap(t *testing.T) {
	var entries []string
	for i := 0; i < 10; i++ {
		entries = append(entries, feedEntry(
			fmt.Sprintf("Story %d", i),
			fmt.Sprintf("https://news.example.com/%d", i)))
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, feedDocument(entries...))
	}))
	defer server.Close()

	sourceRepo := newFakeSourceRepo(database.Source{ID: "src-1", Name: "Test", URL: server.URL, Active: true})
	itemRepo := newFakeItemRepo()

	ingestor := NewIngestor(sourceRepo, itemRepo, &http.Client{Timeout: 5 * time.Second},
		feed.NewParser(), feed.NewContentExtractor(),
		Options{SourceDelay: time.Millisecond, MaxItemsPerSource: 3})

	summary, err := ingestor.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if summary.ItemsNew != 3 {
		t.Errorf("Expected entry cap of 3, got %d items", summary.ItemsNew)
	}
}

func TestIngestorFailedUpsertSkipsEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, feedDocument(
			feedEntry("First story", "https://news.example.com/1"),
			feedEntry("Second story", "https://news.example.com/2"),
		))
	}))
	defer server.Close()

	sourceRepo := newFakeSourceRepo(database.Source{ID: "src-1", Name: "Test", URL: server.URL, Active: true})
	itemRepo := newFakeItemRepo()
	itemRepo.upsertErr["https://news.example.com/1"] = errors.New("disk full")

	ingestor := newTestIngestor(sourceRepo, itemRepo)

	summary, err := ingestor.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if summary.ItemsNew != 1 || summary.EntriesSkipped != 1 {
		t.Errorf("Expected the failed entry skipped and the rest stored, got %+v", summary)
	}
	if sourceRepo.health["src-1"] != database.HealthHealthy {
		t.Errorf("Per-entry failures must not mark the source unhealthy, got %s", sourceRepo.health["src-1"])
	}
}

func TestIngestorMarkupStrippedFromStoredFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, feedDocument(`    <item>
      <title>Markets &amp; Money</title>
      <link>https://news.example.com/markets</link>
      <description>&lt;p&gt;Rates &lt;b&gt;rose&lt;/b&gt; again.&lt;/p&gt;</description>
    </item>`))
	}))
	defer server.Close()

	sourceRepo := newFakeSourceRepo(database.Source{ID: "src-1", Name: "Test", URL: server.URL, Active: true})
	itemRepo := newFakeItemRepo()

	ingestor := newTestIngestor(sourceRepo, itemRepo)

	if _, err := ingestor.Run(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	item, ok := itemRepo.itemsByURL["https://news.example.com/markets"]
	if !ok {
		t.Fatal("Expected item to be stored")
	}
	if item.Title != "Markets & Money" {
		t.Errorf("Expected decoded title, got %q", item.Title)
	}
	if item.Body != "Rates rose again." {
		t.Errorf("Expected stripped body, got %q", item.Body)
	}
}

func TestIngestorSourceListingFailure(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	sourceRepo.sourcesErr = errors.New("database is closed")

	ingestor := newTestIngestor(sourceRepo, newFakeItemRepo())

	if _, err := ingestor.Run(context.Background()); err == nil {
		t.Fatal("Expected error when active sources cannot be listed")
	}
}

func TestIngestorContentExtractionFallback(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/feed":
			// Entry with no content or description at all
			fmt.Fprint(w, feedDocument(fmt.Sprintf(`    <item>
      <title>Bare entry</title>
      <link>%s/article</link>
    </item>`, server.URL)))
		case "/article":
			fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Bare entry</title></head><body><article>
<p>The full article text lives on the page rather than in the feed, a pattern
common among publishers who syndicate headlines only and keep the body on
their own site to drive traffic and advertising impressions.</p>
<p>A second substantial paragraph gives the readability pass enough material
to identify the main content block of the page with reasonable confidence,
instead of dismissing the document as navigation boilerplate.</p>
</article></body></html>`)
		default:
			http.NotFound(w, req)
		}
	}))
	defer server.Close()

	sourceRepo := newFakeSourceRepo(database.Source{
		ID: "src-1", Name: "Test", URL: server.URL + "/feed",
		Active: true, ExtractContent: true,
	})
	itemRepo := newFakeItemRepo()

	ingestor := newTestIngestor(sourceRepo, itemRepo)

	if _, err := ingestor.Run(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	item, ok := itemRepo.itemsByURL[server.URL+"/article"]
	if !ok {
		t.Fatal("Expected item to be stored")
	}
	if !strings.Contains(item.Body, "full article text") {
		t.Errorf("Expected body extracted from the page, got %q", item.Body)
	}
}
