package subscriptions

import (
	"context"

	"github.com/starfrich/cryptletter/internal/ledger/models"
)

type Repository interface {
	Get(ctx context.Context, subscriber, creator models.UserID) (*models.Subscription, error)
	Upsert(ctx context.Context, s *models.Subscription) error
	SetActive(ctx context.Context, subscriber, creator models.UserID, active bool) error
}
