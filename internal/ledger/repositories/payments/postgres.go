// Package payments provides the append-only payment ledger. A payment row
// is written in the same transaction as the subscription state change it
// pays for; if the row cannot be written the whole transition rolls back.
package payments

import (
	"context"
	"fmt"

	"github.com/starfrich/cryptletter/internal/dbx"
	"github.com/starfrich/cryptletter/internal/ledger/models"
)

// PostgresRepository implements payment storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record appends one payment row.
func (r *PostgresRepository) Record(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (id, payer, payee, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Payer, p.Payee, int64(p.Amount), p.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
