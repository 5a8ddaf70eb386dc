package common

import "time"

// SubscriptionPeriod is the fixed duration one payment buys. Renewals and
// stacked subscriptions extend expiry by whole multiples of it.
const SubscriptionPeriod = 30 * 24 * time.Hour

const (
	// KeySize is the symmetric content key length (AES-256).
	KeySize = 32
	// NonceSize is the GCM nonce length. A fresh nonce is generated per
	// encryption and never reused for a given key.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// BundleVersion identifies the current encrypted bundle wire format.
const BundleVersion = "v1"

// PreviewRuneBudget caps post previews. Truncation counts runes, not
// bytes, so multi-byte titles are not split mid-character.
const PreviewRuneBudget = 280

// AssetPlaceholder is substituted for each embedded binary asset when a
// preview is derived from the post body.
const AssetPlaceholder = "[media]"
