// Package capsvc models the capability-gated decryption service the
// read/publish orchestrators talk to. The service's internal math is
// outside this repository; only its call contract is fixed here. Local is
// an in-process implementation of that contract for development and tests:
// it wraps keys under a service master key and honors unwrap requests only
// when presented with a valid ledger-issued grant token.
//
// Unwrapping is asynchronous. RequestUnwrap registers a pending request
// and returns immediately; the request is later approved out of band (or
// automatically, when auto-approve is on), and AwaitUnwrap picks up the
// result. A request that is still unapproved surfaces ErrGrantPending so
// callers can resume without repeating earlier steps.
package capsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/starfrich/cryptletter/internal/auth"
	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/keywrap"
	"github.com/starfrich/cryptletter/internal/logging"
)

// Service is the decryption-service call contract.
type Service interface {
	// WrapKey converts a wire-format key into an opaque wrapped handle.
	WrapKey(ctx context.Context, wireKey string) ([]byte, error)

	// RequestUnwrap starts an asynchronous unwrap of handle, authorized
	// by a ledger-issued grant token, and returns a request id.
	RequestUnwrap(ctx context.Context, handle []byte, grantToken string) (string, error)

	// AwaitUnwrap returns the wire-format key for an approved request,
	// or ErrGrantPending while approval is outstanding.
	AwaitUnwrap(ctx context.Context, requestID string) (string, error)
}

// Local implements Service in-process.
type Local struct {
	masterKey   []byte
	grantSecret []byte
	pending     *PendingStore
	autoApprove bool
	log         logging.Logger
}

// LocalConfig configures the in-process service.
type LocalConfig struct {
	// MasterKey is the 32-byte service key wrapped handles are sealed under.
	MasterKey []byte
	// GrantSecret verifies ledger-issued grant tokens.
	GrantSecret []byte
	// AutoApprove approves unwrap requests at creation time. Used in
	// development; production approval happens out of band.
	AutoApprove bool
}

// NewLocal constructs a Local service backed by the given pending store.
func NewLocal(cfg LocalConfig, pending *PendingStore, log logging.Logger) (*Local, error) {
	if len(cfg.MasterKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes", common.ErrInvalidKey, chacha20poly1305.KeySize)
	}
	return &Local{
		masterKey:   cfg.MasterKey,
		grantSecret: cfg.GrantSecret,
		pending:     pending,
		autoApprove: cfg.AutoApprove,
		log:         log.With("module", "capsvc"),
	}, nil
}

// WrapKey seals the wire-format key under the service master key. The
// handle layout is nonce || ciphertext.
func (l *Local) WrapKey(ctx context.Context, wireKey string) ([]byte, error) {
	raw, err := keywrap.FromWireFormat(wireKey)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(l.masterKey)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(aead.NonceSize())
	handle := aead.Seal(nonce, nonce, raw, nil)
	return handle, nil
}

// RequestUnwrap validates the grant token against the handle and registers
// a pending unwrap request.
func (l *Local) RequestUnwrap(ctx context.Context, handle []byte, grantToken string) (string, error) {
	claims, err := auth.ParseGrantToken(grantToken, l.grantSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}
	if claims.HandleDigest != auth.HandleDigest(handle) {
		return "", fmt.Errorf("%w: grant token does not cover this handle", common.ErrUnauthorized)
	}

	requestID := uuid.NewString()
	req := &PendingRequest{Handle: handle, Approved: l.autoApprove}
	if err := l.pending.Put(ctx, requestID, req); err != nil {
		return "", err
	}

	l.log.Info(ctx, "unwrap requested", "request", requestID, "post", claims.PostID, "user", claims.UserID)
	return requestID, nil
}

// Approve marks a pending request as approved. In a real deployment this
// is driven by the human-signed approval flow.
func (l *Local) Approve(ctx context.Context, requestID string) error {
	return l.pending.Approve(ctx, requestID)
}

// AwaitUnwrap polls the request briefly and returns the unwrapped key in
// wire format once approved. While unapproved it returns ErrGrantPending;
// the request stays registered, so the caller can come back with the same
// request id without re-running the grant. A served request is consumed:
// each unwrap takes its own grant-backed request.
func (l *Local) AwaitUnwrap(ctx context.Context, requestID string) (string, error) {
	var req *PendingRequest

	backoff := retry.WithMaxRetries(5, retry.NewConstant(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		req, err = l.pending.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.Approved {
			return retry.RetryableError(common.ErrGrantPending)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(l.masterKey)
	if err != nil {
		return "", err
	}
	ns := aead.NonceSize()
	if len(req.Handle) < ns {
		return "", fmt.Errorf("%w: handle too short", common.ErrMalformedBundle)
	}
	raw, err := aead.Open(nil, req.Handle[:ns], req.Handle[ns:], nil)
	if err != nil {
		return "", common.ErrDecryptionFailed
	}
	defer common.WipeByteArray(raw)

	if err := l.pending.Delete(ctx, requestID); err != nil {
		l.log.Warn(ctx, "serving unwrap, request cleanup failed", "request", requestID, "error", err)
	}

	return keywrap.ToWireFormat(raw)
}
