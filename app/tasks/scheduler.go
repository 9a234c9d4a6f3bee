package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/export"
	"github.com/lysyi3m/job-comb/app/jobs"
	"github.com/lysyi3m/job-comb/app/lock"
	"github.com/lysyi3m/job-comb/app/notify"
	"github.com/lysyi3m/job-comb/app/source"
	"github.com/robfig/cron/v3"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var ErrSyncInProgress = errors.New("sync already in progress")

const (
	taskQueueSize = 300
	taskTimeout   = 5 * time.Minute
)

// Services are the collaborators a sync run works with. Indexer, Exporter,
// Cache and Notifier are optional.
type Services struct {
	Categories   *jobs.CategoryCache
	Fetcher      source.Fetcher
	Normalizer   *jobs.Normalizer
	Reconciler   *jobs.Reconciler
	Locker       lock.Locker
	Postings     database.PostingRepository
	Runs         database.RunRepository
	CategoryRepo database.CategoryRepository
	Indexer      Indexer
	Exporter     *export.XLSXExporter
	Cache        *export.FileCache
	Notifier     notify.Deliverer
}

type Options struct {
	WorkerCount  int
	Schedule     string // cron spec, empty disables scheduled runs
	SyncOnStart  bool
	FetchRetries int
	RunTimeout   time.Duration
	Silent       bool
}

// RunReport is the outcome of one sync run.
type RunReport struct {
	ID        string
	RunType   database.RunType
	Status    database.RunStatus
	Summaries []jobs.Summary
	Message   jobs.Message
	Duration  time.Duration
	Errors    []string
}

type Scheduler struct {
	services  *Services
	options   Options
	cron      *cron.Cron
	status    *statusTracker
	running   atomic.Bool
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(services *Services, options Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if options.WorkerCount < 1 {
		options.WorkerCount = 1
	}

	return &Scheduler{
		services:  services,
		options:   options,
		cron:      cron.New(),
		status:    newStatusTracker(),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, taskQueueSize),
	}
}

func (s *Scheduler) Start() error {
	if s.options.Schedule != "" {
		_, err := s.cron.AddFunc(s.options.Schedule, func() {
			if _, err := s.TriggerSync(database.RunTypeScheduled); err != nil {
				slog.Warn("Scheduled sync skipped", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", s.options.Schedule, err)
		}
	}

	for i := 0; i < s.options.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.enqueueStartupTasks()

	if s.options.Schedule != "" {
		s.cron.Start()
		slog.Info("Scheduler started", "schedule", s.options.Schedule, "workers", s.options.WorkerCount)
	}

	if s.options.SyncOnStart {
		if _, err := s.TriggerSync(database.RunTypeScheduled); err != nil {
			slog.Warn("Startup sync skipped", "error", err)
		}
	}

	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) Status() RunStatus {
	return s.status.Get()
}

// TriggerSync starts a run in the background and returns its ID.
func (s *Scheduler) TriggerSync(runType database.RunType) (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return "", ErrSyncInProgress
	}

	runID := uuid.NewString()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		s.runSync(s.ctx, runID, runType)
	}()

	return runID, nil
}

// RunOnce runs a sync and waits for it to finish.
func (s *Scheduler) RunOnce(ctx context.Context, runType database.RunType) (*RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	return s.runSync(ctx, uuid.NewString(), runType), nil
}

// Import merges snapshots read from a JSON cache into the store.
func (s *Scheduler) Import(ctx context.Context, snapshots []jobs.Snapshot) error {
	var errs []error
	for _, snapshot := range snapshots {
		if category, err := s.services.Categories.GetCategory(snapshot.CategoryID); err == nil {
			if err := NewRegisterCategoryTask(category, s.services.CategoryRepo).Execute(ctx); err != nil {
				slog.Warn("Failed to register category", "category", snapshot.CategoryID, "error", err)
			}
		}

		task := NewImportSnapshotTask(snapshot, s.services)
		task.Start()
		if err := task.Execute(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", snapshot.CategoryID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) enqueueStartupTasks() {
	categories := s.services.Categories.GetCategories()
	if len(categories) == 0 {
		slog.Warn("No category configurations found")
		return
	}

	slog.Debug("Registering categories", "count", len(categories))

	for _, category := range categories {
		if err := s.EnqueueTask(NewRegisterCategoryTask(category, s.services.CategoryRepo)); err != nil {
			slog.Warn("Failed to enqueue RegisterCategoryTask", "category", category.ID, "error", err)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context, runID string, runType database.RunType) *RunReport {
	start := s.now()
	categories := s.services.Categories.GetEnabledCategories()

	slog.Info("Sync run started", "run_id", runID, "type", runType, "categories", len(categories))
	s.status.begin(runID, runType, start, len(categories))

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.options.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.options.RunTimeout)
	}
	defer cancel()

	outcomes := make(chan SyncOutcome, len(categories))
	for _, category := range categories {
		if err := NewRegisterCategoryTask(category, s.services.CategoryRepo).Execute(runCtx); err != nil {
			slog.Warn("Failed to register category", "category", category.ID, "error", err)
		}

		task := NewSyncCategoryTask(runCtx, category, s.services, s.options.FetchRetries, outcomes)
		if err := s.EnqueueTask(task); err != nil {
			task.Done(fmt.Errorf("failed to enqueue: %w", err))
		}
	}

	collected := make(map[string]SyncOutcome, len(categories))
collect:
	for len(collected) < len(categories) {
		select {
		case outcome := <-outcomes:
			collected[outcome.CategoryID] = outcome
			s.status.progress(len(collected), fmt.Sprintf("Synced %s", outcome.Summary.Label))
		case <-s.ctx.Done():
			break collect
		}
	}

	report := &RunReport{ID: runID, RunType: runType, Status: database.RunStatusSuccess}
	for _, category := range categories {
		outcome, ok := collected[category.ID]
		if !ok {
			outcome = SyncOutcome{CategoryID: category.ID, Cancelled: true}
		}

		switch {
		case outcome.Err != nil:
			report.Status = database.RunStatusFailed
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", category.ID, outcome.Err))
		case outcome.Cancelled:
			report.Status = database.RunStatusFailed
			report.Errors = append(report.Errors, fmt.Sprintf("%s: cancelled", category.ID))
			continue
		}

		summary := outcome.Summary
		if outcome.Err != nil {
			summary.NewCount = 0
		}
		summary.CategoryID = category.ID
		summary.Label = category.Label
		report.Summaries = append(report.Summaries, summary)
	}

	// The run may have been cancelled, follow-up work still gets a bounded context.
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer finishCancel()

	s.exportSnapshots(finishCtx)

	report.Message = jobs.BuildMessage(report.Summaries, s.now())
	s.logSummaries(report)

	if s.services.Notifier != nil {
		if err := s.services.Notifier.Deliver(finishCtx, report.Message); err != nil {
			slog.Warn("Failed to deliver notification", "error", err)
		}
	}

	report.Duration = s.now().Sub(start)

	var errorMessage *string
	if len(report.Errors) > 0 {
		joined := strings.Join(report.Errors, "; ")
		errorMessage = &joined
	}

	err := s.services.Runs.AddRun(finishCtx, database.SyncRun{
		ID:           runID,
		RunType:      runType,
		Status:       report.Status,
		NewCount:     report.Message.NewCount,
		TotalCount:   report.Message.Total,
		Duration:     report.Duration,
		ErrorMessage: errorMessage,
		SyncTime:     start,
	})
	if err != nil {
		slog.Error("Failed to record sync run", "run_id", runID, "error", err)
	}

	lastError := ""
	if errorMessage != nil {
		lastError = *errorMessage
	}
	s.status.finish(s.now(), report.Summaries, report.Message.Title, lastError)

	slog.Info("Sync run finished",
		"run_id", runID,
		"status", report.Status,
		"new", report.Message.NewCount,
		"total", report.Message.Total,
		"duration", report.Duration.Round(time.Millisecond).String())

	return report
}

func (s *Scheduler) logSummaries(report *RunReport) {
	if s.options.Silent && !report.Message.HasNew {
		return
	}

	for _, summary := range report.Summaries {
		slog.Info("Category result", "category", summary.CategoryID, "label", summary.Label, "new", summary.NewCount, "total", summary.TotalCount)
	}
	slog.Info("Run result", "new", report.Message.NewCount, "total", report.Message.Total)
}

// exportSnapshots writes the spreadsheet and JSON cache from what is stored,
// so categories that failed this run still appear with their history.
func (s *Scheduler) exportSnapshots(ctx context.Context) {
	if s.services.Exporter == nil && s.services.Cache == nil {
		return
	}

	categories := s.services.Categories.GetCategories()
	snapshots := make([]jobs.Snapshot, 0, len(categories))
	sheets := make([]export.Sheet, 0, len(categories))

	for _, category := range categories {
		snapshot, err := s.services.Postings.LoadSnapshot(ctx, category.ID)
		if err != nil {
			slog.Error("Failed to load snapshot for export", "category", category.ID, "error", err)
			continue
		}
		snapshots = append(snapshots, snapshot)
		sheets = append(sheets, export.Sheet{Name: category.Label, ExtraFields: category.ExtraFields, Postings: snapshot.Postings})
	}

	if s.services.Exporter != nil {
		if err := s.services.Exporter.Export(sheets); err != nil {
			slog.Error("Failed to export spreadsheet", "path", s.services.Exporter.Path(), "error", err)
		} else {
			slog.Debug("Spreadsheet exported", "path", s.services.Exporter.Path(), "sheets", len(sheets))
		}
	}

	if s.services.Cache != nil {
		if err := s.services.Cache.Save(snapshots); err != nil {
			slog.Error("Failed to save JSON cache", "path", s.services.Cache.Path(), "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			s.drainQueue()
			return
		}
	}
}

// drainQueue settles tasks that will never run so nothing waits on them.
func (s *Scheduler) drainQueue() {
	for {
		select {
		case task := <-s.taskQueue:
			task.Done(s.ctx.Err())
		default:
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		task.Done(nil)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() || s.ctx.Err() != nil {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		task.Done(err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "category", task.GetCategoryID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			task.Done(err)
		case <-time.After(delay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
				task.Done(err)
			}
		}
	}()
}
