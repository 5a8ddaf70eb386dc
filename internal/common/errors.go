// Package common defines shared constants and sentinel errors used across
// Cryptletter components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Ledger predicate violations. Never retried automatically: they
	// indicate a logic or authorization problem, not a transient fault.
	ErrAlreadyRegistered     = errors.New("creator already registered")
	ErrNotRegistered         = errors.New("creator not registered")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrInsufficientPayment   = errors.New("insufficient payment")
	ErrNoActiveSubscription  = errors.New("no active subscription")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrPaymentTransferFailed = errors.New("payment transfer failed")

	// Cryptographic failures. Always fail closed: no partial plaintext,
	// no fallback to an earlier key.
	ErrInvalidKey       = errors.New("invalid key")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrMalformedBundle  = errors.New("malformed bundle")

	// Transport-level failures. Retryable with backoff on read-only
	// operations only.
	ErrContentNotFound = errors.New("content not found")
	ErrNetwork         = errors.New("network error")

	// Capability-service lifecycle errors.
	ErrGrantPending = errors.New("capability grant pending")
	ErrInvalidToken = errors.New("invalid grant token")
)
