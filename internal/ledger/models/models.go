// Package models defines the record types owned by the authorization
// ledger. The ledger is the only writer of these records.
package models

// UserID is the identity key of a participant (creator or reader).
type UserID string

// Visibility controls whether a post is readable by anyone or only by
// currently-entitled subscribers.
type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityGated  Visibility = "gated"
)

// Creator is a registered publisher. Price is the flat per-period fee in
// the smallest currency unit. The Active flag is monotonic: once set it is
// never cleared.
type Creator struct {
	ID              UserID
	Name            string
	Bio             string
	Price           uint64
	SubscriberCount int64
	Balance         uint64
	Active          bool
	RegisteredAt    int64
}

// Post is immutable after creation. WrappedKey is the opaque wrapped-key
// handle from the capability-gated decryption service; it is empty for
// public posts.
type Post struct {
	ID          int64
	Creator     UserID
	ContentID   string
	WrappedKey  []byte
	Title       string
	Preview     string
	PublishedAt int64
	Visibility  Visibility
}

// Subscription is keyed by (Subscriber, Creator). Active is the inverse of
// the cancellation flag; it does not participate in the access predicate,
// only Expiry does. SubscribedAt is set once on the first subscription and
// survives lapses and re-subscriptions.
type Subscription struct {
	Subscriber   UserID
	Creator      UserID
	Expiry       int64
	SubscribedAt int64
	Active       bool
}

// SubscriptionStatus is the query-surface view of a subscription.
// HasAccess depends only on Expiry, never on Active.
type SubscriptionStatus struct {
	Active       bool
	Expiry       int64
	SubscribedAt int64
	HasAccess    bool
}

// Grant records that a requester may ask the decryption service to unwrap
// one specific post's key. Granting is idempotent.
type Grant struct {
	PostID    int64
	User      UserID
	GrantedAt int64
}

// Payment is one ledger row of the value transfer executed atomically with
// a subscribe or renew state transition.
type Payment struct {
	ID        string
	Payer     UserID
	Payee     UserID
	Amount    uint64
	CreatedAt int64
}
