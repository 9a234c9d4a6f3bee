package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/job-comb/app/jobs"
)

func boolRef(b bool) *bool {
	return &b
}

func timeRef(t time.Time) *time.Time {
	return &t
}

type stubSearcher struct {
	hits []string
	err  error
}

func (s *stubSearcher) Search(ctx context.Context, text string, limit int) ([]string, error) {
	return s.hits, s.err
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostingRepository(db, nil)
	ctx := context.Background()

	seen := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	snapshot := jobs.Snapshot{
		CategoryID: "campus",
		Postings: []jobs.Posting{
			{Fields: jobs.Fields{"code": "B", "title": "Second", "job_id": json.Number("7300000000000000123")}, IsNew: boolRef(true), FirstSeenAt: &seen},
			{Fields: jobs.Fields{"code": "A", "title": "First", "publish_time": "2024-01-01 10:00:00"}, IsNew: boolRef(false)},
			{Fields: jobs.Fields{"code": "C", "title": "Legacy"}},
		},
	}

	if err := repo.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatal(err)
	}

	loaded, err := repo.LoadSnapshot(ctx, "campus")
	if err != nil {
		t.Fatal(err)
	}

	if len(loaded.Postings) != 3 {
		t.Fatalf("Expected 3 postings, got %d", len(loaded.Postings))
	}
	for i, p := range loaded.Postings {
		if p.Fingerprint() != snapshot.Postings[i].Fingerprint() {
			t.Errorf("Posting %d: expected order and identity to be preserved", i)
		}
	}

	first := loaded.Postings[0]
	if first.FirstSeenAt == nil || !first.FirstSeenAt.Equal(seen) {
		t.Errorf("Expected first-seen %v, got %v", seen, first.FirstSeenAt)
	}
	if !first.New() {
		t.Error("Expected the new flag to be stored")
	}
	if n, ok := first.Fields["job_id"].(json.Number); !ok || n.String() != "7300000000000000123" {
		t.Errorf("Expected exact job id, got %v", first.Fields["job_id"])
	}
	if loaded.Postings[2].IsNew != nil || loaded.Postings[2].FirstSeenAt != nil {
		t.Error("Expected unknown flag and first-seen to stay unset")
	}
}

func TestSaveSnapshotReplacesOnlyItsCategory(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostingRepository(db, nil)
	ctx := context.Background()

	repo.SaveSnapshot(ctx, jobs.Snapshot{CategoryID: "intern", Postings: []jobs.Posting{{Fields: jobs.Fields{"code": "I1"}}}})
	repo.SaveSnapshot(ctx, jobs.Snapshot{CategoryID: "campus", Postings: []jobs.Posting{{Fields: jobs.Fields{"code": "C1"}}, {Fields: jobs.Fields{"code": "C2"}}}})

	if err := repo.SaveSnapshot(ctx, jobs.Snapshot{CategoryID: "campus", Postings: []jobs.Posting{{Fields: jobs.Fields{"code": "C3"}}}}); err != nil {
		t.Fatal(err)
	}

	campus, _ := repo.LoadSnapshot(ctx, "campus")
	if len(campus.Postings) != 1 || campus.Postings[0].Code() != "C3" {
		t.Errorf("Expected campus snapshot to be replaced, got %d postings", len(campus.Postings))
	}

	intern, _ := repo.LoadSnapshot(ctx, "intern")
	if len(intern.Postings) != 1 {
		t.Errorf("Expected intern snapshot to be untouched, got %d postings", len(intern.Postings))
	}

	count, err := repo.GetPostingCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("Expected 2 postings in total, got %d", count)
	}
}

func TestLoadSnapshotUnknownCategory(t *testing.T) {
	repo := NewPostingRepository(openTestDB(t), nil)

	snapshot, err := repo.LoadSnapshot(context.Background(), "nothing")
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.CategoryID != "nothing" || len(snapshot.Postings) != 0 {
		t.Errorf("Expected an empty snapshot, got %+v", snapshot)
	}
}

func seedListData(t *testing.T, repo *PostingRepositoryImpl) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

	intern := jobs.Snapshot{CategoryID: "intern"}
	for i := 0; i < 25; i++ {
		intern.Postings = append(intern.Postings, jobs.Posting{
			Fields:      jobs.Fields{"code": "I" + string(rune('A'+i)), "title": "Intern role", "description": "Summer internship"},
			FirstSeenAt: timeRef(base.Add(time.Duration(i) * time.Hour)),
			IsNew:       boolRef(i%5 == 0),
		})
	}
	if err := repo.SaveSnapshot(ctx, intern); err != nil {
		t.Fatal(err)
	}

	campus := jobs.Snapshot{CategoryID: "campus", Postings: []jobs.Posting{
		{Fields: jobs.Fields{"code": "G1", "title": "Graduate Golang Engineer", "requirement": "Knows Go"}, FirstSeenAt: timeRef(base), IsNew: boolRef(false)},
		{Fields: jobs.Fields{"code": "G2", "title": "Graduate Designer"}, IsNew: boolRef(true)},
	}}
	if err := repo.SaveSnapshot(ctx, campus); err != nil {
		t.Fatal(err)
	}
}

func TestListPostingsPagination(t *testing.T) {
	repo := NewPostingRepository(openTestDB(t), nil)
	seedListData(t, repo)

	result, err := repo.ListPostings(context.Background(), ListQuery{CategoryID: "intern", Page: 2, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}

	if result.Total != 25 || result.Pages != 3 || result.Page != 2 || result.Limit != 10 {
		t.Errorf("Unexpected pagination: total=%d pages=%d page=%d limit=%d", result.Total, result.Pages, result.Page, result.Limit)
	}
	if len(result.Items) != 10 {
		t.Fatalf("Expected 10 items, got %d", len(result.Items))
	}
	if result.Items[0].Posting.Code() != "IO" {
		t.Errorf("Expected most recently seen first, got %s", result.Items[0].Posting.Code())
	}
}

func TestListPostingsDefaultsAndClamp(t *testing.T) {
	repo := NewPostingRepository(openTestDB(t), nil)
	seedListData(t, repo)

	result, err := repo.ListPostings(context.Background(), ListQuery{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if result.Limit != MaxListLimit || result.Page != 1 || result.Total != 27 {
		t.Errorf("Unexpected result: limit=%d page=%d total=%d", result.Limit, result.Page, result.Total)
	}

	result, err = repo.ListPostings(context.Background(), ListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Limit != DefaultListLimit || len(result.Items) != DefaultListLimit {
		t.Errorf("Expected default limit %d, got %d with %d items", DefaultListLimit, result.Limit, len(result.Items))
	}
}

func TestListPostingsFilters(t *testing.T) {
	repo := NewPostingRepository(openTestDB(t), nil)
	seedListData(t, repo)
	ctx := context.Background()

	result, err := repo.ListPostings(ctx, ListQuery{IsNew: boolRef(true)})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 6 {
		t.Errorf("Expected 6 new postings, got %d", result.Total)
	}

	result, err = repo.ListPostings(ctx, ListQuery{Search: "GOLANG"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || result.Items[0].Posting.Code() != "G1" {
		t.Errorf("Expected case-insensitive title match, got %d results", result.Total)
	}

	result, err = repo.ListPostings(ctx, ListQuery{CategoryID: "campus", Search: "graduate", IsNew: boolRef(false)})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 {
		t.Errorf("Expected combined filters to match 1 posting, got %d", result.Total)
	}
}

func TestListPostingsSearchMatchesWildcardsLiterally(t *testing.T) {
	repo := NewPostingRepository(openTestDB(t), nil)
	ctx := context.Background()

	snapshot := jobs.Snapshot{CategoryID: "campus", Postings: []jobs.Posting{
		{Fields: jobs.Fields{"code": "S1", "title": "snake_case role"}, IsNew: boolRef(true)},
		{Fields: jobs.Fields{"code": "S2", "title": "plain role"}, IsNew: boolRef(true)},
	}}
	if err := repo.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatal(err)
	}

	result, err := repo.ListPostings(ctx, ListQuery{Search: "_"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || result.Items[0].Posting.Code() != "S1" {
		t.Errorf("Expected underscore to match only S1, got %d results", result.Total)
	}

	result, err = repo.ListPostings(ctx, ListQuery{Search: "%"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 {
		t.Errorf("Expected percent sign to match nothing, got %d results", result.Total)
	}
}

func TestListPostingsWithSearcher(t *testing.T) {
	searcher := &stubSearcher{}
	repo := NewPostingRepository(openTestDB(t), searcher)
	seedListData(t, repo)
	ctx := context.Background()

	g1 := jobs.Fingerprint(jobs.Fields{"code": "G1", "title": "Graduate Golang Engineer", "requirement": "Knows Go"})
	searcher.hits = []string{g1, "unknown"}

	result, err := repo.ListPostings(ctx, ListQuery{Search: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || result.Items[0].Fingerprint != g1 {
		t.Errorf("Expected the searcher hit to be listed, got %d results", result.Total)
	}

	searcher.hits = nil
	result, err = repo.ListPostings(ctx, ListQuery{Search: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 || len(result.Items) != 0 {
		t.Errorf("Expected no results, got %d", result.Total)
	}

	searcher.err = errors.New("index unavailable")
	if _, err := repo.ListPostings(ctx, ListQuery{Search: "anything"}); err == nil {
		t.Error("Expected the searcher error to be returned")
	}
}

func TestGetPosting(t *testing.T) {
	repo := NewPostingRepository(openTestDB(t), nil)
	seedListData(t, repo)
	ctx := context.Background()

	fp := jobs.Fingerprint(jobs.Fields{"code": "G2", "title": "Graduate Designer"})

	record, err := repo.GetPosting(ctx, fp, "")
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || record.CategoryID != "campus" || record.Posting.Title() != "Graduate Designer" {
		t.Fatalf("Unexpected record: %+v", record)
	}

	record, err = repo.GetPosting(ctx, fp, "intern")
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Error("Expected no match in another category")
	}

	record, err = repo.GetPosting(ctx, "missing", "")
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Error("Expected nil for an unknown fingerprint")
	}
}

func TestGetLatestPostings(t *testing.T) {
	repo := NewPostingRepository(openTestDB(t), nil)
	seedListData(t, repo)

	records, err := repo.GetLatestPostings(context.Background(), "intern", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].Posting.Code() != "IY" {
		t.Errorf("Expected latest posting first, got %s", records[0].Posting.Code())
	}
}

func TestGetStats(t *testing.T) {
	repo := NewPostingRepository(openTestDB(t), nil)
	ctx := context.Background()

	loc := time.FixedZone("CST", 8*3600)
	// Wednesday
	now := time.Date(2024, 5, 15, 15, 0, 0, 0, loc)

	snapshot := jobs.Snapshot{CategoryID: "campus", Postings: []jobs.Posting{
		{Fields: jobs.Fields{"code": "today-1"}, FirstSeenAt: timeRef(time.Date(2024, 5, 15, 9, 0, 0, 0, loc))},
		{Fields: jobs.Fields{"code": "today-2"}, FirstSeenAt: timeRef(time.Date(2024, 5, 15, 0, 0, 0, 0, loc))},
		{Fields: jobs.Fields{"code": "monday"}, FirstSeenAt: timeRef(time.Date(2024, 5, 13, 8, 0, 0, 0, loc))},
		{Fields: jobs.Fields{"code": "last-week"}, FirstSeenAt: timeRef(time.Date(2024, 5, 12, 23, 59, 0, 0, loc))},
		{Fields: jobs.Fields{"code": "old"}, FirstSeenAt: timeRef(time.Date(2024, 4, 1, 0, 0, 0, 0, loc))},
		{Fields: jobs.Fields{"code": "unknown"}},
	}}
	if err := repo.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveSnapshot(ctx, jobs.Snapshot{CategoryID: "intern", Postings: []jobs.Posting{{Fields: jobs.Fields{"code": "i"}}}}); err != nil {
		t.Fatal(err)
	}

	stats, err := repo.GetStats(ctx, now)
	if err != nil {
		t.Fatal(err)
	}

	if stats.Total != 7 {
		t.Errorf("Expected total 7, got %d", stats.Total)
	}
	if stats.TodayNew != 2 {
		t.Errorf("Expected 2 new today, got %d", stats.TodayNew)
	}
	if stats.WeekNew != 3 {
		t.Errorf("Expected 3 new this week, got %d", stats.WeekNew)
	}

	if len(stats.Distribution) != 2 || stats.Distribution[0].CategoryID != "campus" || stats.Distribution[0].Count != 6 {
		t.Errorf("Unexpected distribution: %+v", stats.Distribution)
	}

	if len(stats.DailyTrend) != 7 {
		t.Fatalf("Expected 7 trend points, got %d", len(stats.DailyTrend))
	}
	if stats.DailyTrend[0].Date != "05-09" || stats.DailyTrend[6].Date != "05-15" {
		t.Errorf("Unexpected trend dates: %+v", stats.DailyTrend)
	}
	if stats.DailyTrend[6].Count != 2 || stats.DailyTrend[4].Count != 1 || stats.DailyTrend[3].Count != 1 {
		t.Errorf("Unexpected trend counts: %+v", stats.DailyTrend)
	}
}
