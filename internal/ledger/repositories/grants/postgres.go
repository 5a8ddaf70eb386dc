// Package grants provides repositories for capability grants: one row per
// (post, requester) allowing exactly one class of service, "this requester
// may ask the decryption service to unwrap this post's key".
package grants

import (
	"context"
	"fmt"

	"github.com/starfrich/cryptletter/internal/dbx"
	"github.com/starfrich/cryptletter/internal/ledger/models"
)

// PostgresRepository implements grant storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put records the grant. Granting twice is a no-op, not an error.
func (r *PostgresRepository) Put(ctx context.Context, g *models.Grant) error {
	query := `
		INSERT INTO grants (post_id, user_id, granted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (post_id, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, g.PostID, g.User, g.GrantedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Exists reports whether the grant has been recorded.
func (r *PostgresRepository) Exists(ctx context.Context, postID int64, user models.UserID) (bool, error) {
	query := `SELECT COUNT(*) FROM grants WHERE post_id = $1 AND user_id = $2`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, postID, user).Scan(&n); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
