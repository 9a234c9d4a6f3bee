package database

import (
	"time"

	"github.com/lysyi3m/job-comb/app/jobs"
)

type RunType string

const (
	RunTypeScheduled RunType = "scheduled"
	RunTypeManual    RunType = "manual"
)

type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

type PostingRecord struct {
	CategoryID  string
	Fingerprint string
	Posting     jobs.Posting
	UpdatedAt   time.Time
}

type ListQuery struct {
	CategoryID string
	IsNew      *bool
	Search     string
	Page       int // 1-based
	Limit      int
}

type ListResult struct {
	Items []PostingRecord
	Total int
	Page  int
	Limit int
	Pages int
}

type CategoryCount struct {
	CategoryID string
	Count      int
}

type DailyCount struct {
	Date  string // MM-DD
	Count int
}

type Stats struct {
	Total        int
	TodayNew     int
	WeekNew      int
	Distribution []CategoryCount
	DailyTrend   []DailyCount
}

// SyncRun is one append-only entry of the run summary log.
type SyncRun struct {
	ID           string
	RunType      RunType
	Status       RunStatus
	NewCount     int
	TotalCount   int
	Duration     time.Duration
	ErrorMessage *string
	SyncTime     time.Time
}

type Category struct {
	ID             string
	Label          string
	TargetURL      string
	LastFetchedAt  *time.Time
	LastSuccessAt  *time.Time
	LastError      string
	LastFetchCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
