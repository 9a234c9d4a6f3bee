package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/job-comb/app/jobs"
)

// SyncOutcome is what one category contributed to a run.
type SyncOutcome struct {
	CategoryID string
	Summary    jobs.Summary
	Saved      bool
	Preserved  bool
	Cancelled  bool
	FetchErr   error
	Err        error
}

// SyncCategoryTask fetches one category and reconciles the batch into its
// stored snapshot. A failed fetch reconciles an empty batch, which leaves
// the history untouched.
type SyncCategoryTask struct {
	Task
	Category *jobs.Category
	services *Services
	retries  int
	runCtx   context.Context
	outcomes chan<- SyncOutcome

	fetched   bool
	fresh     []jobs.Posting
	fetchErr  error
	summary   jobs.Summary
	saved     bool
	preserved bool
	cancelled bool
	once      sync.Once
}

func NewSyncCategoryTask(runCtx context.Context, category *jobs.Category, services *Services, fetchRetries int, outcomes chan<- SyncOutcome) *SyncCategoryTask {
	return &SyncCategoryTask{
		Task:     NewTask(TaskTypeSyncCategory, category.ID),
		Category: category,
		services: services,
		retries:  fetchRetries,
		runCtx:   runCtx,
		outcomes: outcomes,
		summary:  jobs.Summary{CategoryID: category.ID, Label: category.Label},
	}
}

func (t *SyncCategoryTask) Execute(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.runCtx, cancel)
	defer stop()

	if t.runCtx.Err() != nil {
		t.cancelled = true
		return nil
	}

	// A retry after a failed save reuses the batch it already fetched.
	if !t.fetched {
		t.fetchAndNormalize(ctx)
	}

	if t.runCtx.Err() != nil {
		t.cancelled = true
		return nil
	}

	unlock, err := t.services.Locker.Lock(ctx, t.Category.ID)
	if err != nil {
		return fmt.Errorf("failed to lock category: %w", err)
	}
	defer unlock()

	prior, err := t.services.Postings.LoadSnapshot(ctx, t.Category.ID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	// Until the save succeeds the category reports what is stored.
	t.summary = jobs.Summary{CategoryID: t.Category.ID, Label: t.Category.Label, TotalCount: len(prior.Postings)}

	result := t.services.Reconciler.Run(prior, t.fresh, t.Category.Label)

	if result.Preserved {
		t.summary = result.Summary
		t.preserved = true
		slog.Info("Task completed",
			"type", t.GetType(),
			"category", t.CategoryID,
			"duration", t.GetDuration(),
			"fetched", 0,
			"total", result.Summary.TotalCount,
			"preserved", true)
		return nil
	}

	snapshot := jobs.Snapshot{CategoryID: t.Category.ID, Postings: jobs.Sort(result.Snapshot.Postings)}
	if err := t.services.Postings.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	t.summary = result.Summary
	t.saved = true

	if t.services.Indexer != nil {
		if err := t.services.Indexer.IndexSnapshot(ctx, snapshot); err != nil {
			slog.Warn("Failed to index snapshot", "category", t.CategoryID, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"category", t.CategoryID,
		"duration", t.GetDuration(),
		"fetched", len(t.fresh),
		"new", result.Summary.NewCount,
		"total", result.Summary.TotalCount)

	return nil
}

func (t *SyncCategoryTask) fetchAndNormalize(ctx context.Context) {
	raws, err := t.fetch(ctx)
	if err != nil {
		slog.Error("Fetch failed, keeping stored postings", "category", t.CategoryID, "error", err)
	}

	t.fresh = t.services.Normalizer.RunBatch(raws, t.Category)
	t.fetchErr = err
	t.fetched = true

	if err := t.services.CategoryRepo.UpdateFetchStatus(ctx, t.Category.ID, time.Now(), len(t.fresh), t.fetchErr); err != nil {
		slog.Warn("Failed to record fetch status", "category", t.CategoryID, "error", err)
	}
}

func (t *SyncCategoryTask) fetch(ctx context.Context) ([]map[string]any, error) {
	timeout := time.Duration(t.Category.Settings.Timeout) * time.Second

	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			slog.Debug("Fetch retry scheduled", "category", t.CategoryID, "attempt", attempt, "delay", delay.String())

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		fetchCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		raws, err := t.services.Fetcher.Fetch(fetchCtx, t.Category)
		cancel()

		if err == nil {
			return raws, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
		slog.Warn("Fetch attempt failed", "category", t.CategoryID, "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

func (t *SyncCategoryTask) Done(err error) {
	t.once.Do(func() {
		t.outcomes <- SyncOutcome{
			CategoryID: t.Category.ID,
			Summary:    t.summary,
			Saved:      t.saved,
			Preserved:  t.preserved,
			Cancelled:  t.cancelled,
			FetchErr:   t.fetchErr,
			Err:        err,
		}
	})
}
