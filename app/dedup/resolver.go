package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/news-comb/app/database"
)

// DefaultTimeWindow is the trailing duration within which candidate items are
// considered for duplicate matching.
const DefaultTimeWindow = 6 * time.Hour

// ItemStore is the narrow store surface the resolver needs.
type ItemStore interface {
	// FindRecent returns non-duplicate items created after since, most
	// recent first. Ordering is material to the tie-break below.
	FindRecent(since time.Time) ([]database.Item, error)
	// FindLatestOriginals returns the most recently created non-duplicate
	// items, up to limit, most recent first.
	FindLatestOriginals(limit int) ([]database.Item, error)
	// MarkDuplicate links itemID to originalID and re-points any item
	// already referencing itemID, so duplicate_of always names a
	// non-duplicate item.
	MarkDuplicate(itemID, originalID string) error
}

var _ ItemStore = (database.ItemRepository)(nil)

// Resolution is the outcome of resolving a single item.
type Resolution struct {
	Duplicate  bool
	OriginalID string
	Rule       string // which rule matched: "url", "title", "fingerprint"
}

// BatchResult tallies one batch resolution pass.
type BatchResult struct {
	Total      int
	Originals  int
	Duplicates int
	Skipped    int
}

// Resolver decides whether a newly ingested item duplicates an existing item
// within a trailing time window and, if so, links it to the canonical
// original. Candidates are scanned most-recent-first and the first match wins,
// so when several candidates qualify the most recently created one becomes the
// canonical original. duplicate_of therefore does NOT always point to the
// earliest item; see DESIGN.md before changing this policy.
type Resolver struct {
	store  ItemStore
	window time.Duration
	now    func() time.Time
}

func NewResolver(store ItemStore, window time.Duration) *Resolver {
	if window <= 0 {
		window = DefaultTimeWindow
	}
	return &Resolver{
		store:  store,
		window: window,
		now:    time.Now,
	}
}

// Resolve applies the matching rules to a single item. Re-resolving an item
// already marked duplicate is a no-op. On a match the item is marked duplicate
// in the store; the candidate is never mutated. On no match nothing changes.
func (r *Resolver) Resolve(ctx context.Context, item database.Item) (Resolution, error) {
	if item.IsDuplicate {
		res := Resolution{Duplicate: true}
		if item.DuplicateOf != nil {
			res.OriginalID = *item.DuplicateOf
		}
		return res, nil
	}

	since := r.now().UTC().Add(-r.window)
	candidates, err := r.store.FindRecent(since)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load candidates: %w", err)
	}

	targetTitle := Normalize(item.Title)
	targetURL := item.CanonicalURL

	// Rule 3 is skipped for body-less items: an empty-window fingerprint
	// would link every item with an empty body inside the time window.
	targetFingerprint := ""
	if body := Normalize(item.Body); body != "" {
		targetFingerprint = Fingerprint(body)
	}

	for _, candidate := range candidates {
		if candidate.ID == item.ID {
			continue
		}
		// An item already marked duplicate is never a resolution target.
		if candidate.IsDuplicate {
			continue
		}

		rule := ""
		switch {
		case candidate.CanonicalURL == targetURL:
			rule = "url"
		case Similarity(targetTitle, Normalize(candidate.Title)) >= SimilarityThreshold:
			rule = "title"
		case targetFingerprint != "" && targetFingerprint == Fingerprint(Normalize(candidate.Body)):
			rule = "fingerprint"
		default:
			continue
		}

		if err := r.store.MarkDuplicate(item.ID, candidate.ID); err != nil {
			return Resolution{}, fmt.Errorf("failed to mark duplicate: %w", err)
		}

		slog.Debug("Item resolved as duplicate",
			"item_id", item.ID, "original_id", candidate.ID, "rule", rule)

		return Resolution{Duplicate: true, OriginalID: candidate.ID, Rule: rule}, nil
	}

	return Resolution{}, nil
}

// ResolveBatch resolves the most recent limit non-duplicate items, newest
// first. Per-item failures are logged, counted as skipped and excluded from
// the originals/duplicates tally; they never abort the batch. A failure to
// list the batch itself is returned to the caller as a cycle-level error.
func (r *Resolver) ResolveBatch(ctx context.Context, limit int) (BatchResult, error) {
	targets, err := r.store.FindLatestOriginals(limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to load resolution batch: %w", err)
	}

	result := BatchResult{Total: len(targets)}

	for _, item := range targets {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if item.IsDuplicate {
			continue
		}

		res, err := r.Resolve(ctx, item)
		if err != nil {
			slog.Warn("Item resolution failed, skipping", "item_id", item.ID, "error", err)
			result.Skipped++
			continue
		}

		if res.Duplicate {
			result.Duplicates++
		} else {
			result.Originals++
		}
	}

	slog.Info("Batch resolution completed",
		"total", result.Total,
		"originals", result.Originals,
		"duplicates", result.Duplicates,
		"skipped", result.Skipped)

	return result, nil
}
