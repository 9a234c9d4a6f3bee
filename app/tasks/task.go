package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeRegisterCategory TaskType = "register_category"
	TaskTypeSyncCategory     TaskType = "sync_category"
	TaskTypeImportSnapshot   TaskType = "import_snapshot"
)

const (
	DefaultMaxRetries = 3
	maxRetryDelay     = 30 * time.Second
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetCategoryID() string
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	Start()
	GetDuration() time.Duration
	// Done is called exactly once when the task will not run again, with
	// the last execution error or nil.
	Done(err error)
}

type Task struct {
	ID         string
	Type       TaskType
	CategoryID string
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetCategoryID() string {
	return t.CategoryID
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func (t *Task) Done(err error) {}

func NewTask(taskType TaskType, categoryID string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		CategoryID: categoryID,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// retryDelay is the backoff before the given retry attempt (1-based):
// 1s, 2s, 4s and so on, capped at 30s.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > 6 {
		return maxRetryDelay
	}
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
