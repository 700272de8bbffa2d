package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ SourceRepository = (*SourceRepositoryImpl)(nil)

// SourceRepositoryImpl handles database operations for sources
type SourceRepositoryImpl struct {
	db *DB
}

func NewSourceRepository(db *DB) *SourceRepositoryImpl {
	return &SourceRepositoryImpl{db: db}
}

const sourceColumns = `id, name, url, category, active, extract_content,
       health_status, health_detail, last_fetched_at, created_at, updated_at`

// UpsertSource registers a source keyed on its URL, refreshing name, category
// and settings when the source is already known. Returns the database id.
func (r *SourceRepositoryImpl) UpsertSource(name, url, category string, active, extractContent bool) (string, error) {
	var id string
	err := r.db.QueryRow("SELECT id FROM sources WHERE url = ?", url).Scan(&id)

	if err == sql.ErrNoRows {
		id = uuid.NewString()
		now := time.Now().UTC()
		_, err = r.db.Exec(`
			INSERT INTO sources (id, name, url, category, active, extract_content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, name, url, category, boolToInt(active), boolToInt(extractContent), now, now)
		if err != nil {
			return "", fmt.Errorf("failed to insert source: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check existing source: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE sources
		SET name = ?, category = ?, active = ?, extract_content = ?, updated_at = ?
		WHERE id = ?
	`, name, category, boolToInt(active), boolToInt(extractContent), time.Now().UTC(), id)
	if err != nil {
		return "", fmt.Errorf("failed to update source: %w", err)
	}

	return id, nil
}

// GetActiveSources returns active sources in stable name order, so a cycle
// always processes sources in the same sequence
func (r *SourceRepositoryImpl) GetActiveSources() ([]Source, error) {
	rows, err := r.db.Query(`
		SELECT ` + sourceColumns + `
		FROM sources
		WHERE active = 1
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active sources: %w", err)
	}
	defer rows.Close()

	return r.collectSources(rows)
}

// ListSources returns all registered sources in name order
func (r *SourceRepositoryImpl) ListSources() ([]Source, error) {
	rows, err := r.db.Query(`
		SELECT ` + sourceColumns + `
		FROM sources
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	return r.collectSources(rows)
}

// RecordFetchResult stores the outcome of a fetch attempt as source health
func (r *SourceRepositoryImpl) RecordFetchResult(sourceID, status, detail string) error {
	_, err := r.db.Exec(`
		UPDATE sources
		SET health_status = ?, health_detail = ?, last_fetched_at = ?, updated_at = ?
		WHERE id = ?
	`, status, detail, time.Now().UTC(), time.Now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to record fetch result: %w", err)
	}

	return nil
}

// GetSourceCount returns the number of registered sources
func (r *SourceRepositoryImpl) GetSourceCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}

func (r *SourceRepositoryImpl) collectSources(rows *sql.Rows) ([]Source, error) {
	var sources []Source
	for rows.Next() {
		var src Source
		var active, extractContent int
		var lastFetchedAt sql.NullTime

		err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.Category,
			&active, &extractContent, &src.HealthStatus, &src.HealthDetail,
			&lastFetchedAt, &src.CreatedAt, &src.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}

		src.Active = active != 0
		src.ExtractContent = extractContent != 0
		if lastFetchedAt.Valid {
			src.LastFetchedAt = &lastFetchedAt.Time
		}
		sources = append(sources, src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
