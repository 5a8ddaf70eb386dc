// Package subscriptions provides repositories for per-(subscriber, creator)
// subscription records. Records are upserted, never deleted: an expired
// subscription stays in place and simply stops granting access.
package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/dbx"
	"github.com/starfrich/cryptletter/internal/ledger/models"
)

// PostgresRepository implements subscription storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the record for (subscriber, creator) or common.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, subscriber, creator models.UserID) (*models.Subscription, error) {
	query := `
		SELECT subscriber, creator, expiry, subscribed_at, active
		FROM subscriptions WHERE subscriber = $1 AND creator = $2
	`
	var s models.Subscription
	err := r.db.QueryRowContext(ctx, query, subscriber, creator).Scan(
		&s.Subscriber, &s.Creator, &s.Expiry, &s.SubscribedAt, &s.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}

// Upsert writes the full record for its composite key. subscribed_at is
// preserved on conflict: it is set once on first insert and never reset.
func (r *PostgresRepository) Upsert(ctx context.Context, s *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (subscriber, creator, expiry, subscribed_at, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subscriber, creator)
		DO UPDATE SET
			expiry = EXCLUDED.expiry,
			active = EXCLUDED.active
	`
	if _, err := r.db.ExecContext(ctx, query, s.Subscriber, s.Creator, s.Expiry, s.SubscribedAt, s.Active); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetActive flips the cancellation flag only; expiry is untouched.
func (r *PostgresRepository) SetActive(ctx context.Context, subscriber, creator models.UserID, active bool) error {
	query := `UPDATE subscriptions SET active = $1 WHERE subscriber = $2 AND creator = $3`
	res, err := r.db.ExecContext(ctx, query, active, subscriber, creator)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
