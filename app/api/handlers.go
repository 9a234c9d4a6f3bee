package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/jobs"
	"github.com/lysyi3m/job-comb/app/tasks"
)

func NewHandler(categories *jobs.CategoryCache, postingRepo database.PostingRepository,
	runRepo database.RunRepository, categoryRepo database.CategoryRepository,
	generator GeneratorInterface, scheduler SyncController, version string) *Handler {
	return &Handler{
		categories:   categories,
		postingRepo:  postingRepo,
		runRepo:      runRepo,
		categoryRepo: categoryRepo,
		generator:    generator,
		scheduler:    scheduler,
		version:      version,
	}
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

func (h *Handler) GetFeed(c *gin.Context) {
	categoryID := c.Param("category")

	category, err := h.categories.GetCategory(categoryID)
	if err != nil {
		slog.Error("Category configuration not found", "category", categoryID, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	records, err := h.postingRepo.GetLatestPostings(c.Request.Context(), categoryID, feedItemLimit)
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_postings", "category", categoryID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(category, records)
	if err != nil {
		slog.Error("RSS generation error", "category", categoryID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(records)))
	c.Header("X-Feed-Name", categoryID)

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"status":                "ok",
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"loaded_configurations": h.categories.GetCategoryCount(),
	}

	if count, err := h.postingRepo.GetPostingCount(c.Request.Context()); err == nil {
		health["postings"] = count
	} else {
		slog.Error("Database error", "operation", "get_posting_count", "error", err)
		health["status"] = "degraded"
	}

	health["sync_running"] = h.scheduler.Status().Running

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListItems(c *gin.Context) {
	query := database.ListQuery{
		CategoryID: c.Query("type"),
		Search:     c.Query("search"),
	}

	if query.CategoryID != "" {
		if _, err := h.categories.GetCategory(query.CategoryID); err != nil {
			respondError(c, http.StatusBadRequest, "Unknown category: "+query.CategoryID)
			return
		}
	}

	var ok bool
	if query.Page, ok = positiveQueryInt(c, "page", 1); !ok {
		respondError(c, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	if query.Limit, ok = positiveQueryInt(c, "limit", database.DefaultListLimit); !ok {
		respondError(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	if raw := c.Query("is_new"); raw != "" {
		isNew, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "is_new must be a boolean")
			return
		}
		query.IsNew = &isNew
	}

	result, err := h.postingRepo.ListPostings(c.Request.Context(), query)
	if err != nil {
		slog.Error("Database error", "operation", "list_postings", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to list postings")
		return
	}

	items := make([]itemResponse, 0, len(result.Items))
	for _, record := range result.Items {
		items = append(items, h.item(record))
	}

	respondOK(c, http.StatusOK, listResponse{
		Items: items,
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
		Pages: result.Pages,
	})
}

func (h *Handler) APIGetItem(c *gin.Context) {
	fingerprint := c.Param("id")

	record, err := h.postingRepo.GetPosting(c.Request.Context(), fingerprint, c.Query("type"))
	if err != nil {
		slog.Error("Database error", "operation", "get_posting", "fingerprint", fingerprint, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get posting")
		return
	}

	if record == nil {
		respondError(c, http.StatusNotFound, "Posting not found")
		return
	}

	respondOK(c, http.StatusOK, h.item(*record))
}

func (h *Handler) APIGetStats(c *gin.Context) {
	stats, err := h.postingRepo.GetStats(c.Request.Context(), time.Now().In(time.Local))
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	response := statsResponse{
		Total:        stats.Total,
		TodayNew:     stats.TodayNew,
		WeekNew:      stats.WeekNew,
		Distribution: make([]categoryCountResponse, 0, len(stats.Distribution)),
		DailyTrend:   make([]dailyCountResponse, 0, len(stats.DailyTrend)),
	}

	for _, count := range stats.Distribution {
		response.Distribution = append(response.Distribution, categoryCountResponse{
			Category: count.CategoryID,
			Label:    h.categories.Label(count.CategoryID),
			Count:    count.Count,
		})
	}

	for _, day := range stats.DailyTrend {
		response.DailyTrend = append(response.DailyTrend, dailyCountResponse{Date: day.Date, Count: day.Count})
	}

	respondOK(c, http.StatusOK, response)
}

func (h *Handler) APIListCategories(c *gin.Context) {
	stored, err := h.categoryRepo.GetCategories(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_categories", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	byID := make(map[string]database.Category, len(stored))
	for _, category := range stored {
		byID[category.ID] = category
	}

	configs := h.categories.GetCategories()
	categories := make([]categoryResponse, 0, len(configs))

	for _, config := range configs {
		info := categoryResponse{
			ID:          config.ID,
			Label:       config.Label,
			Order:       config.Order,
			Kind:        config.Target.Kind,
			URL:         config.Target.URL,
			Enabled:     config.Settings.Enabled,
			ExtraFields: config.ExtraFields,
		}

		if status, ok := byID[config.ID]; ok {
			info.LastFetchedAt = formatTime(status.LastFetchedAt)
			info.LastSuccessAt = formatTime(status.LastSuccessAt)
			info.LastError = status.LastError
			info.LastFetchCount = status.LastFetchCount
		}

		categories = append(categories, info)
	}

	respondOK(c, http.StatusOK, categories)
}

func (h *Handler) APIListSyncLogs(c *gin.Context) {
	runs, err := h.runRepo.GetLatestRuns(c.Request.Context(), syncLogLimit)
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_runs", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to list sync logs")
		return
	}

	logs := make([]syncLogResponse, 0, len(runs))
	for _, run := range runs {
		logs = append(logs, syncLogResponse{
			ID:           run.ID,
			RunType:      string(run.RunType),
			Status:       string(run.Status),
			NewCount:     run.NewCount,
			TotalCount:   run.TotalCount,
			Duration:     run.Duration.Round(time.Millisecond).String(),
			ErrorMessage: run.ErrorMessage,
			SyncTime:     run.SyncTime.In(time.Local).Format(time.RFC3339),
		})
	}

	respondOK(c, http.StatusOK, logs)
}

func (h *Handler) APITriggerSync(c *gin.Context) {
	runID, err := h.scheduler.TriggerSync(database.RunTypeManual)
	if errors.Is(err, tasks.ErrSyncInProgress) {
		respondError(c, http.StatusConflict, "A sync is already running")
		return
	}
	if err != nil {
		slog.Error("Error triggering sync", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to trigger sync")
		return
	}

	slog.Info("Manual sync triggered", "run_id", runID)
	respondOK(c, http.StatusAccepted, gin.H{"run_id": runID})
}

func (h *Handler) APIGetSyncStatus(c *gin.Context) {
	respondOK(c, http.StatusOK, h.scheduler.Status())
}

// item flattens a record for JSON output and adds its identity.
func (h *Handler) item(record database.PostingRecord) itemResponse {
	item := itemResponse(jobs.FlattenRecord(record.Posting))
	item["id"] = record.Fingerprint
	item["category"] = record.CategoryID
	item["category_label"] = h.categories.Label(record.CategoryID)
	return item
}

func positiveQueryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, false
	}
	return value, true
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.In(time.Local).Format(time.RFC3339)
	return &formatted
}
