package database

import (
	"context"
	"time"

	"github.com/lysyi3m/job-comb/app/jobs"
)

type PostingRepository interface {
	LoadSnapshot(ctx context.Context, categoryID string) (jobs.Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot jobs.Snapshot) error

	ListPostings(ctx context.Context, query ListQuery) (*ListResult, error)
	GetPosting(ctx context.Context, fingerprint, categoryID string) (*PostingRecord, error)
	GetLatestPostings(ctx context.Context, categoryID string, limit int) ([]PostingRecord, error)
	GetPostingCount(ctx context.Context) (int, error)
	GetStats(ctx context.Context, now time.Time) (*Stats, error)
}

type RunRepository interface {
	AddRun(ctx context.Context, run SyncRun) error
	GetLatestRuns(ctx context.Context, limit int) ([]SyncRun, error)
}

type CategoryRepository interface {
	UpsertCategory(ctx context.Context, categoryID, label, targetURL string) error
	UpdateFetchStatus(ctx context.Context, categoryID string, fetchedAt time.Time, count int, fetchErr error) error
	GetCategory(ctx context.Context, categoryID string) (*Category, error)
	GetCategories(ctx context.Context) ([]Category, error)
}

// Searcher resolves free text to posting fingerprints.
type Searcher interface {
	Search(ctx context.Context, text string, limit int) ([]string, error)
}
