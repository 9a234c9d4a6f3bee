package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var _ RunRepository = (*RunRepositoryImpl)(nil)

// RunRepositoryImpl stores the append-only run summary log.
type RunRepositoryImpl struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepositoryImpl {
	return &RunRepositoryImpl{db: db}
}

func (r *RunRepositoryImpl) AddRun(ctx context.Context, run SyncRun) error {
	var errorMessage any
	if run.ErrorMessage != nil {
		errorMessage = *run.ErrorMessage
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO sync_runs (id, run_type, status, new_count, total_count, duration_ms, error_message, sync_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), run.ID, string(run.RunType), string(run.Status), run.NewCount, run.TotalCount,
		run.Duration.Milliseconds(), errorMessage, run.SyncTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add sync run: %w", err)
	}

	return nil
}

func (r *RunRepositoryImpl) GetLatestRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT id, run_type, status, new_count, total_count, duration_ms, error_message, sync_time
		FROM sync_runs
		ORDER BY sync_time DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync runs: %w", err)
	}
	defer rows.Close()

	runs := []SyncRun{}
	for rows.Next() {
		var (
			run          SyncRun
			runType      string
			status       string
			durationMs   int64
			errorMessage sql.NullString
			syncTime     int64
		)
		err := rows.Scan(&run.ID, &runType, &status, &run.NewCount, &run.TotalCount, &durationMs, &errorMessage, &syncTime)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run row: %w", err)
		}

		run.RunType = RunType(runType)
		run.Status = RunStatus(status)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.SyncTime = time.UnixMilli(syncTime).In(time.Local)
		if errorMessage.Valid {
			run.ErrorMessage = &errorMessage.String
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync run rows: %w", err)
	}

	return runs, nil
}
