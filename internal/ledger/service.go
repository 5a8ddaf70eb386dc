// Package ledger implements the authorization ledger: the creator registry,
// the time-bounded subscription state machine, capability grants, and the
// access predicate both orchestrators consult. It is the single writer of
// its records; every mutating operation is validated against current state
// and applied atomically inside one database transaction.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/dbx"
	"github.com/starfrich/cryptletter/internal/ledger/models"
	"github.com/starfrich/cryptletter/internal/ledger/repositories/repomanager"
	"github.com/starfrich/cryptletter/internal/logging"
)

// Service exposes the ledger's state-transition operations and query
// surface. Mutations run under dbx.WithTx so a failed payment leg rolls
// back the subscription state change it belongs to.
type Service struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	log   logging.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock. Tests use it to drive subscription
// expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the ledger service.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, log logging.Logger, opts ...Option) *Service {
	s := &Service{
		db:    db,
		repos: repos,
		log:   log.With("module", "ledger"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterCreator creates an active creator record for id. The identity
// key must not already be registered, the display name must be non-empty,
// and the per-period price must be positive.
func (s *Service) RegisterCreator(ctx context.Context, id models.UserID, name, bio string, price uint64) (*models.Creator, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", common.ErrInvalidInput)
	}
	if price == 0 {
		return nil, fmt.Errorf("%w: price must be positive", common.ErrInvalidPrice)
	}

	c := &models.Creator{
		ID:           id,
		Name:         name,
		Bio:          bio,
		Price:        price,
		Active:       true,
		RegisteredAt: s.now().Unix(),
	}
	if err := s.repos.Creators(s.db).Create(ctx, c); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "creator registered", "creator", id, "price", price)
	return c, nil
}

// UpdateProfile replaces the caller's display name and bio.
func (s *Service) UpdateProfile(ctx context.Context, id models.UserID, name, bio string) error {
	if _, err := s.activeCreator(ctx, s.db, id); err != nil {
		return err
	}
	return s.repos.Creators(s.db).UpdateProfile(ctx, id, name, bio)
}

// UpdatePrice replaces the caller's per-period price. Existing
// subscriptions keep their already-purchased time.
func (s *Service) UpdatePrice(ctx context.Context, id models.UserID, price uint64) error {
	if price == 0 {
		return fmt.Errorf("%w: price must be positive", common.ErrInvalidPrice)
	}
	if _, err := s.activeCreator(ctx, s.db, id); err != nil {
		return err
	}
	return s.repos.Creators(s.db).UpdatePrice(ctx, id, price)
}

// PublishPost stores post metadata and allocates the next post id. For
// public posts the wrapped-key handle is dropped: public content never
// needs unwrapping.
func (s *Service) PublishPost(ctx context.Context, creator models.UserID, contentID string, wrappedKey []byte, title, preview string, vis models.Visibility) (*models.Post, error) {
	if contentID == "" || title == "" {
		return nil, fmt.Errorf("%w: content id and title must not be empty", common.ErrInvalidInput)
	}
	if _, err := s.activeCreator(ctx, s.db, creator); err != nil {
		return nil, err
	}

	if vis == models.VisibilityPublic {
		wrappedKey = nil
	}

	p := &models.Post{
		Creator:     creator,
		ContentID:   contentID,
		WrappedKey:  wrappedKey,
		Title:       title,
		Preview:     preview,
		PublishedAt: s.now().Unix(),
		Visibility:  vis,
	}
	id, err := s.repos.Posts(s.db).Create(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id

	s.log.Info(ctx, "post published", "creator", creator, "post", id, "visibility", vis)
	return p, nil
}

// Subscribe starts or extends a subscription to creator, transferring
// payment atomically with the state change.
//
// State machine:
//   - no record, or record with expiry <= now: expiry becomes now+period,
//     the subscriber count increments (new or re-established relationship),
//     and subscribed_at is set only if it was never set.
//   - record with expiry > now: expiry extends by one period (stacking),
//     a prior cancellation flag flips back, count unchanged.
func (s *Service) Subscribe(ctx context.Context, subscriber, creator models.UserID, payment uint64) (*models.Subscription, error) {
	var result *models.Subscription
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.activeCreator(ctx, tx, creator)
		if err != nil {
			return err
		}
		if payment < c.Price {
			return fmt.Errorf("%w: need %d, got %d", common.ErrInsufficientPayment, c.Price, payment)
		}

		now := s.now().Unix()
		subsRepo := s.repos.Subscriptions(tx)

		existing, err := subsRepo.Get(ctx, subscriber, creator)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}

		sub := &models.Subscription{
			Subscriber: subscriber,
			Creator:    creator,
			Active:     true,
		}
		newRelationship := false

		switch {
		case existing == nil:
			sub.Expiry = now + int64(common.SubscriptionPeriod.Seconds())
			sub.SubscribedAt = now
			newRelationship = true
		case existing.Expiry <= now:
			sub.Expiry = now + int64(common.SubscriptionPeriod.Seconds())
			sub.SubscribedAt = existing.SubscribedAt
			newRelationship = true
		default:
			sub.Expiry = existing.Expiry + int64(common.SubscriptionPeriod.Seconds())
			sub.SubscribedAt = existing.SubscribedAt
		}

		if err := subsRepo.Upsert(ctx, sub); err != nil {
			return err
		}
		if newRelationship {
			if err := s.repos.Creators(tx).AdjustSubscribers(ctx, creator, 1); err != nil {
				return err
			}
		}
		if err := s.transferPayment(ctx, tx, subscriber, creator, payment, now); err != nil {
			return err
		}

		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "subscribed", "subscriber", subscriber, "creator", creator, "expiry", result.Expiry)
	return result, nil
}

// RenewSubscription extends an existing subscription by one period from
// the later of "now" and the current expiry. The subscriber count never
// changes on renewal.
func (s *Service) RenewSubscription(ctx context.Context, subscriber, creator models.UserID, payment uint64) (*models.Subscription, error) {
	var result *models.Subscription
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.activeCreator(ctx, tx, creator)
		if err != nil {
			return err
		}
		if payment < c.Price {
			return fmt.Errorf("%w: need %d, got %d", common.ErrInsufficientPayment, c.Price, payment)
		}

		now := s.now().Unix()
		subsRepo := s.repos.Subscriptions(tx)

		existing, err := subsRepo.Get(ctx, subscriber, creator)
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}

		base := existing.Expiry
		if base < now {
			base = now
		}
		sub := &models.Subscription{
			Subscriber:   subscriber,
			Creator:      creator,
			Expiry:       base + int64(common.SubscriptionPeriod.Seconds()),
			SubscribedAt: existing.SubscribedAt,
			Active:       true,
		}
		if err := subsRepo.Upsert(ctx, sub); err != nil {
			return err
		}
		if err := s.transferPayment(ctx, tx, subscriber, creator, payment, now); err != nil {
			return err
		}

		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "subscription renewed", "subscriber", subscriber, "creator", creator, "expiry", result.Expiry)
	return result, nil
}

// CancelSubscription sets the cancellation flag and decrements the
// subscriber count. It does not shorten expiry: cancellation stops the
// renewal intent, not already-purchased access.
func (s *Service) CancelSubscription(ctx context.Context, subscriber, creator models.UserID) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		subsRepo := s.repos.Subscriptions(tx)

		existing, err := subsRepo.Get(ctx, subscriber, creator)
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}
		if !existing.Active {
			return common.ErrNoActiveSubscription
		}

		if err := subsRepo.SetActive(ctx, subscriber, creator, false); err != nil {
			return err
		}
		return s.repos.Creators(tx).AdjustSubscribers(ctx, creator, -1)
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "subscription cancelled", "subscriber", subscriber, "creator", creator)
	return nil
}

// CanAccess is the pure access predicate: public posts are readable by
// anyone, creators can always read their own posts, and everyone else
// needs a subscription with expiry in the future. The cancellation flag
// is irrelevant here.
func (s *Service) CanAccess(ctx context.Context, post *models.Post, user models.UserID) (bool, error) {
	if post.Visibility == models.VisibilityPublic {
		return true, nil
	}
	if post.Creator == user {
		return true, nil
	}

	sub, err := s.repos.Subscriptions(s.db).Get(ctx, user, post.Creator)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.Expiry > s.now().Unix(), nil
}

// GrantCapability authorizes user to request an unwrap of the post's key
// from the decryption service and returns the wrapped-key handle. Granting
// is idempotent. Callers failing the access predicate get ErrUnauthorized
// and no state change.
func (s *Service) GrantCapability(ctx context.Context, postID int64, user models.UserID) ([]byte, error) {
	post, err := s.repos.Posts(s.db).Get(ctx, postID)
	if err != nil {
		return nil, err
	}

	ok, err := s.CanAccess(ctx, post, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrUnauthorized
	}

	g := &models.Grant{PostID: postID, User: user, GrantedAt: s.now().Unix()}
	if err := s.repos.Grants(s.db).Put(ctx, g); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "capability granted", "post", postID, "user", user)
	return post.WrappedKey, nil
}

// HasCapability reports whether user may request an unwrap for the post:
// the owner implicitly holds the wrap-time capability, everyone else must
// hold a recorded grant.
func (s *Service) HasCapability(ctx context.Context, postID int64, user models.UserID) (bool, error) {
	post, err := s.repos.Posts(s.db).Get(ctx, postID)
	if err != nil {
		return false, err
	}
	if post.Creator == user {
		return true, nil
	}
	return s.repos.Grants(s.db).Exists(ctx, postID, user)
}

// GetCreator returns the creator's directory record.
func (s *Service) GetCreator(ctx context.Context, id models.UserID) (*models.Creator, error) {
	return s.repos.Creators(s.db).Get(ctx, id)
}

// GetPost returns post metadata by id.
func (s *Service) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	return s.repos.Posts(s.db).Get(ctx, id)
}

// ListCreatorPosts returns the creator's posts in reverse-chronological
// order (descending id).
func (s *Service) ListCreatorPosts(ctx context.Context, creator models.UserID) ([]*models.Post, error) {
	return s.repos.Posts(s.db).ListByCreator(ctx, creator)
}

// ListCreators pages through the creator directory. Offsets beyond the
// total yield an empty slice; a page crossing the end is truncated.
func (s *Service) ListCreators(ctx context.Context, offset, limit int64) ([]models.UserID, error) {
	if offset < 0 || limit <= 0 {
		return []models.UserID{}, nil
	}
	return s.repos.Creators(s.db).List(ctx, offset, limit)
}

// GetCreatorCount returns the number of registered creators.
func (s *Service) GetCreatorCount(ctx context.Context) (int64, error) {
	return s.repos.Creators(s.db).Count(ctx)
}

// PostCounter returns the highest allocated post id.
func (s *Service) PostCounter(ctx context.Context) (int64, error) {
	return s.repos.Posts(s.db).Count(ctx)
}

// GetSubscriptionStatus returns the subscription view for (subscriber,
// creator). HasAccess reflects expiry alone; Active reflects the
// cancellation flag alone. A missing record yields a zero status.
func (s *Service) GetSubscriptionStatus(ctx context.Context, subscriber, creator models.UserID) (*models.SubscriptionStatus, error) {
	sub, err := s.repos.Subscriptions(s.db).Get(ctx, subscriber, creator)
	if errors.Is(err, common.ErrNotFound) {
		return &models.SubscriptionStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.SubscriptionStatus{
		Active:       sub.Active,
		Expiry:       sub.Expiry,
		SubscribedAt: sub.SubscribedAt,
		HasAccess:    sub.Expiry > s.now().Unix(),
	}, nil
}

// activeCreator loads the creator and maps missing or inactive records to
// ErrNotRegistered.
func (s *Service) activeCreator(ctx context.Context, db dbx.DBTX, id models.UserID) (*models.Creator, error) {
	c, err := s.repos.Creators(db).Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrNotRegistered
	}
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, common.ErrNotRegistered
	}
	return c, nil
}

// transferPayment executes the value leg of subscribe/renew inside the
// caller's transaction: one append-only payment row plus a balance credit.
// Any failure here aborts the whole state transition.
func (s *Service) transferPayment(ctx context.Context, tx dbx.DBTX, payer, payee models.UserID, amount uint64, now int64) error {
	p := &models.Payment{
		ID:        uuid.NewString(),
		Payer:     payer,
		Payee:     payee,
		Amount:    amount,
		CreatedAt: now,
	}
	if err := s.repos.Payments(tx).Record(ctx, p); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPaymentTransferFailed, err)
	}
	if err := s.repos.Creators(tx).AddBalance(ctx, payee, amount); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPaymentTransferFailed, err)
	}
	return nil
}
