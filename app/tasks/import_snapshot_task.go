package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/job-comb/app/jobs"
)

// ImportSnapshotTask writes a snapshot read from a JSON cache into the
// store. Postings already stored for the category are kept and the
// imported ones are merged over them by fingerprint, keeping the earliest
// first-seen time known for each.
type ImportSnapshotTask struct {
	Task
	Snapshot jobs.Snapshot
	services *Services
	imported int
}

func NewImportSnapshotTask(snapshot jobs.Snapshot, services *Services) *ImportSnapshotTask {
	return &ImportSnapshotTask{
		Task:     NewTask(TaskTypeImportSnapshot, snapshot.CategoryID),
		Snapshot: snapshot,
		services: services,
	}
}

func (t *ImportSnapshotTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	unlock, err := t.services.Locker.Lock(ctx, t.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to lock category: %w", err)
	}
	defer unlock()

	stored, err := t.services.Postings.LoadSnapshot(ctx, t.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	merged := mergeImported(stored.Postings, t.Snapshot.Postings)
	snapshot := jobs.Snapshot{CategoryID: t.CategoryID, Postings: jobs.Sort(merged)}

	if err := t.services.Postings.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	t.imported = len(t.Snapshot.Postings)

	if t.services.Indexer != nil {
		if err := t.services.Indexer.IndexSnapshot(ctx, snapshot); err != nil {
			slog.Warn("Failed to index snapshot", "category", t.CategoryID, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"category", t.CategoryID,
		"duration", t.GetDuration(),
		"imported", t.imported,
		"total", len(snapshot.Postings))

	return nil
}

func mergeImported(stored, imported []jobs.Posting) []jobs.Posting {
	index := make(map[string]int, len(stored)+len(imported))
	merged := make([]jobs.Posting, 0, len(stored)+len(imported))

	for _, p := range stored {
		fp := p.Fingerprint()
		if i, ok := index[fp]; ok {
			merged[i] = p
			continue
		}
		index[fp] = len(merged)
		merged = append(merged, p)
	}

	for _, p := range imported {
		fp := p.Fingerprint()
		i, ok := index[fp]
		if !ok {
			index[fp] = len(merged)
			merged = append(merged, p)
			continue
		}

		existing := merged[i]
		if existing.FirstSeenAt != nil && (p.FirstSeenAt == nil || existing.FirstSeenAt.Before(*p.FirstSeenAt)) {
			p.FirstSeenAt = existing.FirstSeenAt
		}
		if p.IsNew == nil {
			p.IsNew = existing.IsNew
		}
		merged[i] = p
	}

	return merged
}
