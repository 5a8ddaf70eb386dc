package posts

import (
	"context"

	"github.com/starfrich/cryptletter/internal/ledger/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.Post) (int64, error)
	Get(ctx context.Context, id int64) (*models.Post, error)
	ListByCreator(ctx context.Context, creator models.UserID) ([]*models.Post, error)
	Count(ctx context.Context) (int64, error)
}
