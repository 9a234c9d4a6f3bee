package tasks

import (
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/jobs"
)

// RunStatus describes the current or most recent sync run.
type RunStatus struct {
	Running       bool             `json:"running"`
	RunID         string           `json:"run_id,omitempty"`
	RunType       database.RunType `json:"run_type,omitempty"`
	Message       string           `json:"message"`
	Progress      int              `json:"progress"`
	Total         int              `json:"total"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
	LastSummaries []jobs.Summary   `json:"last_summaries,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
}

type statusTracker struct {
	mu     sync.RWMutex
	status RunStatus
}

func newStatusTracker() *statusTracker {
	return &statusTracker{status: RunStatus{Message: "Idle"}}
}

func (st *statusTracker) Get() RunStatus {
	st.mu.RLock()
	defer st.mu.RUnlock()

	status := st.status
	status.LastSummaries = slices.Clone(st.status.LastSummaries)
	return status
}

func (st *statusTracker) begin(runID string, runType database.RunType, startedAt time.Time, total int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.status.Running = true
	st.status.RunID = runID
	st.status.RunType = runType
	st.status.Message = "Syncing categories"
	st.status.Progress = 0
	st.status.Total = total
	st.status.StartedAt = &startedAt
	st.status.FinishedAt = nil
	st.status.LastError = ""
}

func (st *statusTracker) progress(done int, message string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.status.Progress = done
	st.status.Message = message
}

func (st *statusTracker) finish(finishedAt time.Time, summaries []jobs.Summary, message string, runErr string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.status.Running = false
	st.status.Message = message
	st.status.Progress = st.status.Total
	st.status.FinishedAt = &finishedAt
	st.status.LastSummaries = slices.Clone(summaries)
	st.status.LastError = runErr
}
