package payments

import (
	"context"

	"github.com/starfrich/cryptletter/internal/ledger/models"
)

type Repository interface {
	Record(ctx context.Context, p *models.Payment) error
}
