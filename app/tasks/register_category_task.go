package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/jobs"
)

// RegisterCategoryTask mirrors a configured category into the store so the
// API can report on it before its first sync.
type RegisterCategoryTask struct {
	Task
	Category     *jobs.Category
	categoryRepo database.CategoryRepository
}

func NewRegisterCategoryTask(category *jobs.Category, categoryRepo database.CategoryRepository) *RegisterCategoryTask {
	return &RegisterCategoryTask{
		Task:         NewTask(TaskTypeRegisterCategory, category.ID),
		Category:     category,
		categoryRepo: categoryRepo,
	}
}

func (t *RegisterCategoryTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.categoryRepo.UpsertCategory(ctx, t.Category.ID, t.Category.Label, t.Category.Target.URL)
	if err != nil {
		return fmt.Errorf("failed to register category: %w", err)
	}

	slog.Debug("Task completed",
		"type", t.GetType(),
		"category", t.CategoryID,
		"duration", t.GetDuration())

	return nil
}
