package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/news-comb/app/cfg"
	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/dedup"
	"github.com/lysyi3m/news-comb/app/scheduler"
)

func NewHandler(itemRepo database.ItemRepository, sourceRepo database.SourceRepository,
	runner CycleTrigger) *Handler {
	return &Handler{
		itemRepo:   itemRepo,
		sourceRepo: sourceRepo,
		runner:     runner,
	}
}

func (h *Handler) GetItems(c *gin.Context) {
	opts := database.ItemListOptions{
		SourceID: c.Query("source"),
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Limit:    parseIntParam(c.Query("limit"), 50),
		Offset:   parseIntParam(c.Query("offset"), 0),
	}
	if opts.Limit > 200 {
		opts.Limit = 200
	}

	items, err := h.itemRepo.ListItems(opts)
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]gin.H, 0, len(items))
	for _, item := range items {
		response = append(response, itemJSON(item))
	}

	c.JSON(http.StatusOK, gin.H{
		"items": response,
		"count": len(response),
	})
}

func (h *Handler) GetItem(c *gin.Context) {
	id := c.Param("id")

	item, err := h.itemRepo.GetItem(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "item_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if item == nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, itemJSON(*item))
}

func (h *Handler) GetSources(c *gin.Context) {
	sources, err := h.sourceRepo.ListSources()
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]gin.H, 0, len(sources))
	for _, src := range sources {
		info := gin.H{
			"id":            src.ID,
			"name":          src.Name,
			"url":           src.URL,
			"category":      src.Category,
			"active":        src.Active,
			"health_status": src.HealthStatus,
		}
		if src.HealthDetail != "" {
			info["health_detail"] = src.HealthDetail
		}
		if src.LastFetchedAt != nil {
			info["last_fetched_at"] = src.LastFetchedAt.Format(time.RFC3339)
		}
		response = append(response, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": response,
		"count":   len(response),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   cfg.Get().Version,
	}

	if sourceCount, err := h.sourceRepo.GetSourceCount(); err == nil {
		health["sources"] = sourceCount
	}

	running, lastRunAt, _ := h.runner.Status()
	health["cycle_running"] = running
	if lastRunAt != nil {
		health["last_cycle_at"] = lastRunAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.itemRepo.GetItemStats()
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := gin.H{
		"total_items":          stats.Total,
		"originals":            stats.Originals,
		"duplicates":           stats.Duplicates,
		"similarity_threshold": dedup.SimilarityThreshold,
		"time_window_hours":    cfg.Get().TimeWindowHours,
	}

	running, lastRunAt, lastSummary := h.runner.Status()
	response["cycle_running"] = running
	if lastRunAt != nil {
		response["last_cycle_at"] = lastRunAt.Format(time.RFC3339)
	}
	if lastSummary != nil {
		response["last_cycle"] = cycleJSON(*lastSummary)
	}

	c.JSON(http.StatusOK, response)
}

// RunCycle triggers one ingestion-then-resolution cycle synchronously. A
// trigger while a cycle is already running is rejected with 409, matching the
// runner's drop-not-queue policy.
func (h *Handler) RunCycle(c *gin.Context) {
	summary, err := h.runner.RunCycle(c.Request.Context())
	if err == scheduler.ErrCycleInProgress {
		c.JSON(http.StatusConflict, gin.H{
			"error": "cycle already in progress",
		})
		return
	}
	if err != nil {
		slog.Error("Manual cycle failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "cycle failed",
		})
		return
	}

	c.JSON(http.StatusOK, cycleJSON(summary))
}

func itemJSON(item database.Item) gin.H {
	response := gin.H{
		"id":           item.ID,
		"title":        item.Title,
		"body":         item.Body,
		"url":          item.CanonicalURL,
		"published_at": item.PublishedAt.Format(time.RFC3339),
		"created_at":   item.CreatedAt.Format(time.RFC3339),
		"source_id":    item.SourceID,
	}
	if item.ImageURL != "" {
		response["image_url"] = item.ImageURL
	}
	if item.SourceName != "" {
		response["source_name"] = item.SourceName
	}
	if item.SourceCategory != "" {
		response["source_category"] = item.SourceCategory
	}
	if item.IsDuplicate && item.DuplicateOf != nil {
		response["duplicate_of"] = *item.DuplicateOf
	}
	return response
}

func cycleJSON(summary scheduler.CycleSummary) gin.H {
	return gin.H{
		"started_at":        summary.StartedAt.Format(time.RFC3339),
		"duration":          summary.Duration.String(),
		"sources_processed": summary.Ingestion.SourcesProcessed,
		"sources_failed":    summary.Ingestion.SourcesFailed,
		"items_new":         summary.Ingestion.ItemsNew,
		"items_updated":     summary.Ingestion.ItemsUpdated,
		"entries_skipped":   summary.Ingestion.EntriesSkipped,
		"resolved_total":    summary.Resolution.Total,
		"originals":         summary.Resolution.Originals,
		"duplicates":        summary.Resolution.Duplicates,
		"skipped":           summary.Resolution.Skipped,
	}
}

func parseIntParam(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
