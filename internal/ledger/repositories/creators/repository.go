package creators

import (
	"context"

	"github.com/starfrich/cryptletter/internal/ledger/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Creator) error
	Get(ctx context.Context, id models.UserID) (*models.Creator, error)
	UpdateProfile(ctx context.Context, id models.UserID, name, bio string) error
	UpdatePrice(ctx context.Context, id models.UserID, price uint64) error
	AdjustSubscribers(ctx context.Context, id models.UserID, delta int64) error
	AddBalance(ctx context.Context, id models.UserID, amount uint64) error
	List(ctx context.Context, offset, limit int64) ([]models.UserID, error)
	Count(ctx context.Context) (int64, error)
}
