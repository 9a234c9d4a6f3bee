package api

import (
	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/jobs"
	"github.com/lysyi3m/job-comb/app/tasks"
)

type GeneratorInterface interface {
	Run(category *jobs.Category, records []database.PostingRecord) (string, error)
}

var _ GeneratorInterface = (*Generator)(nil)

// SyncController is the part of the scheduler the API drives.
type SyncController interface {
	TriggerSync(runType database.RunType) (string, error)
	Status() tasks.RunStatus
}

var _ SyncController = (tasks.TaskSchedulerInterface)(nil)

type Handler struct {
	categories   *jobs.CategoryCache
	postingRepo  database.PostingRepository
	runRepo      database.RunRepository
	categoryRepo database.CategoryRepository
	generator    GeneratorInterface
	scheduler    SyncController
	version      string
}

const (
	feedItemLimit = 50
	syncLogLimit  = 20
)

type itemResponse map[string]any

type listResponse struct {
	Items []itemResponse `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Pages int            `json:"pages"`
}

type categoryCountResponse struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
}

type dailyCountResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type statsResponse struct {
	Total        int                     `json:"total"`
	TodayNew     int                     `json:"today_new"`
	WeekNew      int                     `json:"week_new"`
	Distribution []categoryCountResponse `json:"distribution"`
	DailyTrend   []dailyCountResponse    `json:"daily_trend"`
}

type categoryResponse struct {
	ID             string   `json:"id"`
	Label          string   `json:"label"`
	Order          int      `json:"order"`
	Kind           string   `json:"kind"`
	URL            string   `json:"url"`
	Enabled        bool     `json:"enabled"`
	ExtraFields    []string `json:"extra_fields"`
	LastFetchedAt  *string  `json:"last_fetched_at"`
	LastSuccessAt  *string  `json:"last_success_at"`
	LastError      string   `json:"last_error,omitempty"`
	LastFetchCount int      `json:"last_fetch_count"`
}

type syncLogResponse struct {
	ID           string  `json:"id"`
	RunType      string  `json:"run_type"`
	Status       string  `json:"status"`
	NewCount     int     `json:"new_count"`
	TotalCount   int     `json:"total_count"`
	Duration     string  `json:"duration"`
	ErrorMessage *string `json:"error_message"`
	SyncTime     string  `json:"sync_time"`
}
