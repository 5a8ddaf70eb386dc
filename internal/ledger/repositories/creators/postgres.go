// Package creators provides repositories for the ledger's creator
// directory. Listing order is registration order, which keeps pagination
// stable as new creators register.
package creators

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/dbx"
	"github.com/starfrich/cryptletter/internal/ledger/models"
)

// PostgresRepository implements creator storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new creator row. A conflicting identity key yields
// common.ErrAlreadyRegistered.
func (r *PostgresRepository) Create(ctx context.Context, c *models.Creator) error {
	query := `
		INSERT INTO creators (id, name, bio, price, subscriber_count, balance, active, registered_at)
		VALUES ($1, $2, $3, $4, 0, 0, TRUE, $5)
		ON CONFLICT (id) DO NOTHING;
	`
	res, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Bio, int64(c.Price), c.RegisteredAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrAlreadyRegistered
	}
	return nil
}

// Get returns the creator by identity key or common.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id models.UserID) (*models.Creator, error) {
	query := `
		SELECT id, name, bio, price, subscriber_count, balance, active, registered_at
		FROM creators WHERE id = $1
	`
	var c models.Creator
	var price, balance int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Bio, &price, &c.SubscriberCount, &balance, &c.Active, &c.RegisteredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	c.Price = uint64(price)
	c.Balance = uint64(balance)
	return &c, nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id models.UserID, name, bio string) error {
	return r.exec(ctx, `UPDATE creators SET name = $1, bio = $2 WHERE id = $3`, name, bio, id)
}

func (r *PostgresRepository) UpdatePrice(ctx context.Context, id models.UserID, price uint64) error {
	return r.exec(ctx, `UPDATE creators SET price = $1 WHERE id = $2`, int64(price), id)
}

// AdjustSubscribers adds delta to the subscriber count, clamping at zero.
func (r *PostgresRepository) AdjustSubscribers(ctx context.Context, id models.UserID, delta int64) error {
	query := `
		UPDATE creators
		SET subscriber_count = CASE
			WHEN subscriber_count + $1 < 0 THEN 0
			ELSE subscriber_count + $1
		END
		WHERE id = $2
	`
	return r.exec(ctx, query, delta, id)
}

// AddBalance credits earnings to the creator as part of a payment leg.
func (r *PostgresRepository) AddBalance(ctx context.Context, id models.UserID, amount uint64) error {
	return r.exec(ctx, `UPDATE creators SET balance = balance + $1 WHERE id = $2`, int64(amount), id)
}

// List returns identity keys in registration order. Offsets beyond the
// directory size yield an empty result.
func (r *PostgresRepository) List(ctx context.Context, offset, limit int64) ([]models.UserID, error) {
	query := `SELECT id FROM creators ORDER BY registered_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.UserID, 0, limit)
	for rows.Next() {
		var id models.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM creators`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// exec runs an UPDATE that must touch exactly one existing creator row.
func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
