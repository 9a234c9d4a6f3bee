package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/job-comb/app/jobs"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	maxSearchHits    = 1000
)

// likeEscaper makes LIKE wildcards in user text match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Fields folded into search_text for substring search without an index.
var searchFields = []string{"code", "title", "sub_title", "description", "requirement", "job_category", "city_list", "team_name"}

var _ PostingRepository = (*PostingRepositoryImpl)(nil)

type PostingRepositoryImpl struct {
	db       *DB
	searcher Searcher
}

// NewPostingRepository creates a posting repository. A nil searcher falls
// back to substring matching in SQL.
func NewPostingRepository(db *DB, searcher Searcher) *PostingRepositoryImpl {
	return &PostingRepositoryImpl{db: db, searcher: searcher}
}

func (r *PostingRepositoryImpl) LoadSnapshot(ctx context.Context, categoryID string) (jobs.Snapshot, error) {
	snapshot := jobs.Snapshot{CategoryID: categoryID}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT fields, first_seen_at, is_new
		FROM postings
		WHERE category_id = ?
		ORDER BY position
	`), categoryID)
	if err != nil {
		return snapshot, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fieldsJSON string
			firstSeen  sql.NullInt64
			isNew      sql.NullInt64
		)
		if err := rows.Scan(&fieldsJSON, &firstSeen, &isNew); err != nil {
			return snapshot, fmt.Errorf("failed to scan posting row: %w", err)
		}

		fields, err := jobs.DecodeFields([]byte(fieldsJSON))
		if err != nil {
			return snapshot, err
		}

		snapshot.Postings = append(snapshot.Postings, jobs.Posting{
			Fields:      fields,
			FirstSeenAt: fromMillis(firstSeen),
			IsNew:       fromNullBool(isNew),
		})
	}

	if err := rows.Err(); err != nil {
		return snapshot, fmt.Errorf("error iterating posting rows: %w", err)
	}

	return snapshot, nil
}

// SaveSnapshot replaces the stored snapshot of one category in a single
// transaction.
func (r *PostingRepositoryImpl) SaveSnapshot(ctx context.Context, snapshot jobs.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM postings WHERE category_id = ?`), snapshot.CategoryID); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO postings (
			category_id, fingerprint, position, code, title, search_text,
			publish_time, first_seen_at, is_new, fields, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i, p := range snapshot.Postings {
		fieldsJSON, err := json.Marshal(p.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields: %w", err)
		}

		var publishTime any
		if t, ok := p.PublishTime(); ok {
			publishTime = t.UnixMilli()
		}

		_, err = stmt.ExecContext(ctx,
			snapshot.CategoryID, p.Fingerprint(), i, p.Code(), p.Title(), searchText(p),
			publishTime, toMillis(p.FirstSeenAt), toNullBool(p.IsNew), string(fieldsJSON), now)
		if err != nil {
			return fmt.Errorf("failed to insert posting: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

func (r *PostingRepositoryImpl) ListPostings(ctx context.Context, query ListQuery) (*ListResult, error) {
	query.Page = max(query.Page, 1)
	if query.Limit <= 0 {
		query.Limit = DefaultListLimit
	}
	query.Limit = min(query.Limit, MaxListLimit)

	result := &ListResult{Items: []PostingRecord{}, Page: query.Page, Limit: query.Limit}

	where, args, ok, err := r.buildListFilter(ctx, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return result, nil
	}

	err = r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM postings`+where), args...).Scan(&result.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count postings: %w", err)
	}

	offset := (query.Page - 1) * query.Limit
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT category_id, fingerprint, fields, first_seen_at, is_new, updated_at
		FROM postings`+where+`
		ORDER BY COALESCE(first_seen_at, 0) DESC, COALESCE(publish_time, 0) DESC, category_id, position
		LIMIT ? OFFSET ?
	`), append(args, query.Limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list postings: %w", err)
	}
	defer rows.Close()

	result.Items, err = scanPostingRecords(rows)
	if err != nil {
		return nil, err
	}

	result.Pages = (result.Total + query.Limit - 1) / query.Limit

	return result, nil
}

// buildListFilter returns the WHERE clause for a list query. ok is false
// when the search matched nothing and no query needs to run.
func (r *PostingRepositoryImpl) buildListFilter(ctx context.Context, query ListQuery) (string, []any, bool, error) {
	var clauses []string
	var args []any

	if query.CategoryID != "" {
		clauses = append(clauses, "category_id = ?")
		args = append(args, query.CategoryID)
	}

	if query.IsNew != nil {
		clauses = append(clauses, "is_new = ?")
		args = append(args, toNullBool(query.IsNew))
	}

	if text := strings.TrimSpace(query.Search); text != "" {
		if r.searcher != nil {
			fingerprints, err := r.searcher.Search(ctx, text, maxSearchHits)
			if err != nil {
				return "", nil, false, fmt.Errorf("failed to search postings: %w", err)
			}
			if len(fingerprints) == 0 {
				return "", nil, false, nil
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(fingerprints)), ", ")
			clauses = append(clauses, "fingerprint IN ("+placeholders+")")
			for _, fp := range fingerprints {
				args = append(args, fp)
			}
		} else {
			clauses = append(clauses, `search_text LIKE ? ESCAPE '\'`)
			args = append(args, "%"+likeEscaper.Replace(strings.ToLower(text))+"%")
		}
	}

	if len(clauses) == 0 {
		return "", args, true, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, true, nil
}

// GetPosting returns the posting with the given fingerprint, optionally
// restricted to one category. Returns nil when nothing matches.
func (r *PostingRepositoryImpl) GetPosting(ctx context.Context, fingerprint, categoryID string) (*PostingRecord, error) {
	query := `
		SELECT category_id, fingerprint, fields, first_seen_at, is_new, updated_at
		FROM postings
		WHERE fingerprint = ?`
	args := []any{fingerprint}
	if categoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY category_id LIMIT 1`

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get posting: %w", err)
	}
	defer rows.Close()

	records, err := scanPostingRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// GetLatestPostings returns a category's postings, most recently seen first.
func (r *PostingRepositoryImpl) GetLatestPostings(ctx context.Context, categoryID string, limit int) ([]PostingRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT category_id, fingerprint, fields, first_seen_at, is_new, updated_at
		FROM postings
		WHERE category_id = ?
		ORDER BY COALESCE(first_seen_at, 0) DESC, COALESCE(publish_time, 0) DESC, position
		LIMIT ?
	`), categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest postings: %w", err)
	}
	defer rows.Close()

	return scanPostingRecords(rows)
}

func (r *PostingRepositoryImpl) GetPostingCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get posting count: %w", err)
	}
	return count, nil
}

// GetStats aggregates first-seen times in the zone of now. Weeks start on
// Monday and the trend covers the last seven days including today.
func (r *PostingRepositoryImpl) GetStats(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{Distribution: []CategoryCount{}}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := todayStart.AddDate(0, 0, -((int(now.Weekday()) + 6) % 7))
	trendStart := todayStart.AddDate(0, 0, -6)

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count postings: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT category_id, COUNT(*)
		FROM postings
		GROUP BY category_id
		ORDER BY category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get category distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.CategoryID, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		stats.Distribution = append(stats.Distribution, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distribution rows: %w", err)
	}

	// trendStart is never after weekStart, so one scan covers both windows.
	seenRows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT first_seen_at
		FROM postings
		WHERE first_seen_at >= ?
	`), trendStart.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to get recent postings: %w", err)
	}
	defer seenRows.Close()

	daily := make([]int, 7)
	for seenRows.Next() {
		var millis int64
		if err := seenRows.Scan(&millis); err != nil {
			return nil, fmt.Errorf("failed to scan first-seen row: %w", err)
		}
		seen := time.UnixMilli(millis).In(now.Location())

		if !seen.Before(todayStart) {
			stats.TodayNew++
		}
		if !seen.Before(weekStart) {
			stats.WeekNew++
		}
		for day := 6; day >= 0; day-- {
			if !seen.Before(trendStart.AddDate(0, 0, day)) {
				daily[day]++
				break
			}
		}
	}
	if err := seenRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating first-seen rows: %w", err)
	}

	for i := 0; i < 7; i++ {
		stats.DailyTrend = append(stats.DailyTrend, DailyCount{
			Date:  trendStart.AddDate(0, 0, i).Format("01-02"),
			Count: daily[i],
		})
	}

	return stats, nil
}

func scanPostingRecords(rows *sql.Rows) ([]PostingRecord, error) {
	records := []PostingRecord{}
	for rows.Next() {
		var (
			record     PostingRecord
			fieldsJSON string
			firstSeen  sql.NullInt64
			isNew      sql.NullInt64
			updatedAt  int64
		)
		if err := rows.Scan(&record.CategoryID, &record.Fingerprint, &fieldsJSON, &firstSeen, &isNew, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan posting row: %w", err)
		}

		fields, err := jobs.DecodeFields([]byte(fieldsJSON))
		if err != nil {
			return nil, err
		}

		record.Posting = jobs.Posting{
			Fields:      fields,
			FirstSeenAt: fromMillis(firstSeen),
			IsNew:       fromNullBool(isNew),
		}
		record.UpdatedAt = time.UnixMilli(updatedAt).In(time.Local)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posting rows: %w", err)
	}

	return records, nil
}

func searchText(p jobs.Posting) string {
	parts := make([]string, 0, len(searchFields))
	for _, key := range searchFields {
		if value := p.String(key); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}
