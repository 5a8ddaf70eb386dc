package grants

import (
	"context"

	"github.com/starfrich/cryptletter/internal/ledger/models"
)

type Repository interface {
	Put(ctx context.Context, g *models.Grant) error
	Exists(ctx context.Context, postID int64, user models.UserID) (bool, error)
}
