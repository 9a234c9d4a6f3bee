package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ CategoryRepository = (*CategoryRepositoryImpl)(nil)

// CategoryRepositoryImpl tracks configured categories and their last fetch outcome.
type CategoryRepositoryImpl struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepositoryImpl {
	return &CategoryRepositoryImpl{db: db}
}

func (r *CategoryRepositoryImpl) UpsertCategory(ctx context.Context, categoryID, label, targetURL string) error {
	now := time.Now().UnixMilli()

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO categories (id, label, target_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			label = excluded.label,
			target_url = excluded.target_url,
			updated_at = excluded.updated_at
	`), categoryID, label, targetURL, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}

	return nil
}

// UpdateFetchStatus records the outcome of the latest fetch. A nil fetchErr
// marks the fetch as successful.
func (r *CategoryRepositoryImpl) UpdateFetchStatus(ctx context.Context, categoryID string, fetchedAt time.Time, count int, fetchErr error) error {
	var err error
	if fetchErr == nil {
		_, err = r.db.ExecContext(ctx, r.db.Rebind(`
			UPDATE categories
			SET last_fetched_at = ?, last_success_at = ?, last_error = NULL, last_fetch_count = ?, updated_at = ?
			WHERE id = ?
		`), fetchedAt.UnixMilli(), fetchedAt.UnixMilli(), count, time.Now().UnixMilli(), categoryID)
	} else {
		_, err = r.db.ExecContext(ctx, r.db.Rebind(`
			UPDATE categories
			SET last_fetched_at = ?, last_error = ?, last_fetch_count = 0, updated_at = ?
			WHERE id = ?
		`), fetchedAt.UnixMilli(), fetchErr.Error(), time.Now().UnixMilli(), categoryID)
	}
	if err != nil {
		return fmt.Errorf("failed to update fetch status: %w", err)
	}

	return nil
}

func (r *CategoryRepositoryImpl) GetCategory(ctx context.Context, categoryID string) (*Category, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, label, target_url, last_fetched_at, last_success_at, COALESCE(last_error, ''),
		       last_fetch_count, created_at, updated_at
		FROM categories
		WHERE id = ?
	`), categoryID)

	category, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	return category, nil
}

func (r *CategoryRepositoryImpl) GetCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, target_url, last_fetched_at, last_success_at, COALESCE(last_error, ''),
		       last_fetch_count, created_at, updated_at
		FROM categories
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, *category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rows: %w", err)
	}

	return categories, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*Category, error) {
	var (
		category    Category
		lastFetched sql.NullInt64
		lastSuccess sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(&category.ID, &category.Label, &category.TargetURL, &lastFetched, &lastSuccess,
		&category.LastError, &category.LastFetchCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	category.LastFetchedAt = fromMillis(lastFetched)
	category.LastSuccessAt = fromMillis(lastSuccess)
	category.CreatedAt = time.UnixMilli(createdAt).In(time.Local)
	category.UpdatedAt = time.UnixMilli(updatedAt).In(time.Local)

	return &category, nil
}
