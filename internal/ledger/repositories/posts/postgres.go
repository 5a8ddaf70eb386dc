// Package posts provides repositories for ledger post metadata. Post ids
// come from the table's monotonic sequence and are never reused.
package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/dbx"
	"github.com/starfrich/cryptletter/internal/ledger/models"
)

// PostgresRepository implements post storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the post and returns the allocated id.
func (r *PostgresRepository) Create(ctx context.Context, p *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (creator, content_id, wrapped_key, title, preview, published_at, visibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		p.Creator, p.ContentID, p.WrappedKey, p.Title, p.Preview, p.PublishedAt, p.Visibility,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// Get returns the post by id or common.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Post, error) {
	query := `
		SELECT id, creator, content_id, wrapped_key, title, preview, published_at, visibility
		FROM posts WHERE id = $1
	`
	var p models.Post
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Creator, &p.ContentID, &p.WrappedKey, &p.Title, &p.Preview, &p.PublishedAt, &p.Visibility,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &p, nil
}

// ListByCreator returns the creator's posts newest-first (descending id).
func (r *PostgresRepository) ListByCreator(ctx context.Context, creator models.UserID) ([]*models.Post, error) {
	query := `
		SELECT id, creator, content_id, wrapped_key, title, preview, published_at, visibility
		FROM posts WHERE creator = $1 ORDER BY id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, creator)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(
			&p.ID, &p.Creator, &p.ContentID, &p.WrappedKey, &p.Title, &p.Preview, &p.PublishedAt, &p.Visibility,
		); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the highest allocated post id (the publish counter).
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
