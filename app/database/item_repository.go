package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ItemRepository = (*ItemRepositoryImpl)(nil)

// ItemRepositoryImpl handles database operations for items
type ItemRepositoryImpl struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepositoryImpl {
	return &ItemRepositoryImpl{db: db}
}

const itemColumns = `id, source_id, title, body, canonical_url, image_url,
       published_at, is_duplicate, duplicate_of, created_at`

func (r *ItemRepositoryImpl) scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var item Item
	var isDuplicate int
	var duplicateOf sql.NullString

	err := row.Scan(&item.ID, &item.SourceID, &item.Title, &item.Body,
		&item.CanonicalURL, &item.ImageURL, &item.PublishedAt,
		&isDuplicate, &duplicateOf, &item.CreatedAt)
	if err != nil {
		return nil, err
	}

	item.IsDuplicate = isDuplicate != 0
	if duplicateOf.Valid {
		item.DuplicateOf = &duplicateOf.String
	}

	return &item, nil
}

// FindByURL returns the item with the given canonical URL, or nil when absent
func (r *ItemRepositoryImpl) FindByURL(url string) (*Item, error) {
	row := r.db.QueryRow(`
		SELECT `+itemColumns+`
		FROM items
		WHERE canonical_url = ?
	`, url)

	item, err := r.scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item by URL: %w", err)
	}

	return item, nil
}

// UpsertItem inserts a new item or refreshes the mutable fields of an existing
// one keyed on canonical URL. Returns true when a new row was created. Items
// already marked duplicate are left untouched.
func (r *ItemRepositoryImpl) UpsertItem(item NewItem) (bool, error) {
	existing, err := r.FindByURL(item.CanonicalURL)
	if err != nil {
		return false, err
	}

	if existing != nil {
		_, err = r.db.Exec(`
			UPDATE items
			SET title = ?, body = ?, image_url = ?, published_at = ?
			WHERE canonical_url = ? AND is_duplicate = 0
		`, item.Title, item.Body, item.ImageURL, item.PublishedAt, item.CanonicalURL)
		if err != nil {
			return false, fmt.Errorf("failed to update item: %w", err)
		}
		return false, nil
	}

	_, err = r.db.Exec(`
		INSERT INTO items (id, source_id, title, body, canonical_url, image_url, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), item.SourceID, item.Title, item.Body,
		item.CanonicalURL, item.ImageURL, item.PublishedAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert item: %w", err)
	}

	return true, nil
}

// GetItem returns a single item by id, or nil when absent
func (r *ItemRepositoryImpl) GetItem(id string) (*Item, error) {
	row := r.db.QueryRow(`
		SELECT `+itemColumns+`
		FROM items
		WHERE id = ?
	`, id)

	item, err := r.scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// FindRecent returns non-duplicate items created after the given time,
// most recent first. Ordering is material: the resolver's tie-break picks
// the first matching candidate.
func (r *ItemRepositoryImpl) FindRecent(since time.Time) ([]Item, error) {
	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM items
		WHERE is_duplicate = 0
		  AND created_at > ?
		ORDER BY created_at DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent items: %w", err)
	}
	defer rows.Close()

	return r.collectItems(rows)
}

// FindLatestOriginals returns the most recently created non-duplicate items,
// up to limit, most recent first
func (r *ItemRepositoryImpl) FindLatestOriginals(limit int) ([]Item, error) {
	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM items
		WHERE is_duplicate = 0
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest originals: %w", err)
	}
	defer rows.Close()

	return r.collectItems(rows)
}

// MarkDuplicate links an item to its canonical original. Items already
// pointing at itemID are re-pointed to originalID in the same transaction,
// keeping the duplicate relation flat: duplicate_of always references a
// non-duplicate item.
func (r *ItemRepositoryImpl) MarkDuplicate(itemID, originalID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE items
		SET is_duplicate = 1, duplicate_of = ?
		WHERE id = ?
	`, originalID, itemID)
	if err != nil {
		return fmt.Errorf("failed to mark item as duplicate: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE items
		SET duplicate_of = ?
		WHERE duplicate_of = ?
	`, originalID, itemID)
	if err != nil {
		return fmt.Errorf("failed to re-point dependent duplicates: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit duplicate marking: %w", err)
	}

	return nil
}

// ListItems returns non-duplicate items with optional filters, newest
// publish date first
func (r *ItemRepositoryImpl) ListItems(opts ItemListOptions) ([]Item, error) {
	query := `
		SELECT i.id, i.source_id, i.title, i.body, i.canonical_url, i.image_url,
		       i.published_at, i.is_duplicate, i.duplicate_of, i.created_at,
		       COALESCE(s.name, ''), COALESCE(s.category, '')
		FROM items i
		LEFT JOIN sources s ON i.source_id = s.id
		WHERE i.is_duplicate = 0
	`
	var args []any

	if opts.SourceID != "" {
		query += " AND i.source_id = ?"
		args = append(args, opts.SourceID)
	}
	if opts.Category != "" {
		query += " AND s.category = ?"
		args = append(args, opts.Category)
	}
	if opts.Search != "" {
		query += " AND (i.title LIKE ? OR i.body LIKE ?)"
		term := "%" + opts.Search + "%"
		args = append(args, term, term)
	}

	query += " ORDER BY i.published_at DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var isDuplicate int
		var duplicateOf sql.NullString

		err := rows.Scan(&item.ID, &item.SourceID, &item.Title, &item.Body,
			&item.CanonicalURL, &item.ImageURL, &item.PublishedAt,
			&isDuplicate, &duplicateOf, &item.CreatedAt,
			&item.SourceName, &item.SourceCategory)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}

		item.IsDuplicate = isDuplicate != 0
		if duplicateOf.Valid {
			item.DuplicateOf = &duplicateOf.String
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

// GetItemStats returns item totals for the stats endpoint
func (r *ItemRepositoryImpl) GetItemStats() (ItemStats, error) {
	var stats ItemStats
	err := r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_duplicate = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_duplicate = 1 THEN 1 ELSE 0 END), 0)
		FROM items
	`).Scan(&stats.Total, &stats.Originals, &stats.Duplicates)
	if err != nil {
		return ItemStats{}, fmt.Errorf("failed to get item stats: %w", err)
	}

	return stats, nil
}

func (r *ItemRepositoryImpl) collectItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}
