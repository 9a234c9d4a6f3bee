package tasks

import (
	"context"

	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/jobs"
)

// TaskSchedulerInterface is what the HTTP API and main need from the
// scheduler.
//
//	scheduler := NewScheduler(services, options)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.TriggerSync(database.RunTypeManual)
type TaskSchedulerInterface interface {
	Start() error
	Stop()
	EnqueueTask(task TaskInterface) error
	TriggerSync(runType database.RunType) (string, error)
	RunOnce(ctx context.Context, runType database.RunType) (*RunReport, error)
	Status() RunStatus
}

// Indexer keeps a search index in step with saved snapshots.
type Indexer interface {
	IndexSnapshot(ctx context.Context, snapshot jobs.Snapshot) error
}
