package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starfrich/cryptletter/internal/auth"
	"github.com/starfrich/cryptletter/internal/blob"
	"github.com/starfrich/cryptletter/internal/capsvc"
	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/content"
	"github.com/starfrich/cryptletter/internal/cryptobox"
	"github.com/starfrich/cryptletter/internal/keywrap"
	"github.com/starfrich/cryptletter/internal/ledger"
	"github.com/starfrich/cryptletter/internal/ledger/models"
	"github.com/starfrich/cryptletter/internal/logging"
)

// Session is a snapshot of a suspended read. It is handed back together
// with ErrGrantPending so the caller can come back later; Resume picks
// the flow up at the recorded step without repeating the grant or the
// unwrap request.
type Session struct {
	PostID    int64         `json:"post_id"`
	User      models.UserID `json:"user"`
	Step      Step          `json:"step"`
	Handle    []byte        `json:"handle,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// Reader runs the read pipeline: access check, capability grant and
// unwrap, download and decryption. Reads of gated posts can suspend at
// the approval step and resume with the Session returned alongside the
// error.
type Reader struct {
	ledger        *ledger.Service
	blobs         blob.Store
	caps          capsvc.Service
	grantSecret   []byte
	tokenValidity time.Duration
	log           logging.Logger
}

func NewReader(l *ledger.Service, blobs blob.Store, caps capsvc.Service, grantSecret []byte, tokenValidity time.Duration, log logging.Logger) *Reader {
	return &Reader{
		ledger:        l,
		blobs:         blobs,
		caps:          caps,
		grantSecret:   grantSecret,
		tokenValidity: tokenValidity,
		log:           log.With("module", "flow.reader"),
	}
}

// Read fetches, authorizes and decrypts a post for the given user. A
// non-nil Session is returned only when the flow suspended waiting for
// capability approval, together with an error wrapping ErrGrantPending.
func (r *Reader) Read(ctx context.Context, postID int64, user models.UserID) (*content.Document, *Session, error) {
	return r.run(ctx, &Session{PostID: postID, User: user, Step: StepFetchPost})
}

// Resume continues a suspended read. Completed steps are not repeated:
// with a request id already on record the flow goes straight back to
// waiting for approval.
func (r *Reader) Resume(ctx context.Context, s *Session) (*content.Document, *Session, error) {
	if s == nil {
		return nil, nil, stepErr(StepFetchPost, fmt.Errorf("%w: nil session", common.ErrInvalidInput))
	}
	return r.run(ctx, s)
}

func (r *Reader) run(ctx context.Context, s *Session) (*content.Document, *Session, error) {
	post, err := r.ledger.GetPost(ctx, s.PostID)
	if err != nil {
		return nil, nil, stepErr(StepFetchPost, err)
	}

	ok, err := r.ledger.CanAccess(ctx, post, s.User)
	if err != nil {
		return nil, nil, stepErr(StepAccess, err)
	}
	if !ok {
		return nil, nil, stepErr(StepAccess, common.ErrUnauthorized)
	}

	if post.Visibility == models.VisibilityPublic {
		doc, err := r.fetchDocument(ctx, post.ContentID, nil)
		if err != nil {
			return nil, nil, err
		}
		return doc, nil, nil
	}

	// The grant and the unwrap request each happen at most once per
	// session; everything after approval is repeatable. The creator holds
	// the wrap-time capability already and skips the grant leg entirely.
	if s.Handle == nil {
		if post.Creator == s.User {
			s.Handle = post.WrappedKey
		} else if s.Handle, err = r.ledger.GrantCapability(ctx, s.PostID, s.User); err != nil {
			return nil, nil, stepErr(StepGrant, err)
		}
		s.Step = StepGrant
	}

	if s.RequestID == "" {
		token, err := auth.GenerateGrantToken(s.PostID, s.User, s.Handle, r.grantSecret, r.tokenValidity)
		if err != nil {
			return nil, nil, stepErr(StepUnwrapRequest, err)
		}
		if s.RequestID, err = r.caps.RequestUnwrap(ctx, s.Handle, token); err != nil {
			return nil, nil, stepErr(StepUnwrapRequest, err)
		}
		s.Step = StepUnwrapRequest
	}

	wire, err := r.caps.AwaitUnwrap(ctx, s.RequestID)
	if err != nil {
		if errors.Is(err, common.ErrGrantPending) {
			s.Step = StepAwait
			r.log.Info(ctx, "read suspended awaiting approval", "post_id", s.PostID, "request_id", s.RequestID)
			return nil, s, stepErr(StepAwait, err)
		}
		return nil, nil, stepErr(StepAwait, err)
	}

	key, err := keywrap.FromWireFormat(wire)
	if err != nil {
		return nil, nil, stepErr(StepDecrypt, err)
	}
	defer common.WipeByteArray(key)

	doc, err := r.fetchDocument(ctx, post.ContentID, key)
	if err != nil {
		return nil, nil, err
	}
	return doc, nil, nil
}

// fetchDocument downloads the post payload, unseals it when a key is
// present and materializes referenced asset blocks back into the
// document.
func (r *Reader) fetchDocument(ctx context.Context, contentID string, key []byte) (*content.Document, error) {
	payload, err := blob.DownloadWithRetry(ctx, r.blobs, contentID)
	if err != nil {
		return nil, stepErr(StepDownload, err)
	}

	if key != nil {
		bundle, err := cryptobox.ParseBundle(payload)
		if err != nil {
			return nil, stepErr(StepDecrypt, err)
		}
		if payload, err = cryptobox.Decrypt(bundle, key); err != nil {
			return nil, stepErr(StepDecrypt, err)
		}
	}

	doc, err := content.ParseDocument(payload)
	if err != nil {
		return nil, stepErr(StepDecrypt, err)
	}

	for i := range doc.Blocks {
		b := &doc.Blocks[i]
		if b.Type != content.BlockAsset || b.Ref == nil || b.Ref.ContentID == "" {
			continue
		}
		data, err := blob.DownloadWithRetry(ctx, r.blobs, b.Ref.ContentID)
		if err != nil {
			return nil, stepErr(StepDownload, err)
		}
		if b.Ref.Encrypted {
			if key == nil {
				return nil, stepErr(StepDecrypt, fmt.Errorf("%w: sealed asset in clear document", common.ErrMalformedBundle))
			}
			bundle, err := cryptobox.ParseBundle(data)
			if err != nil {
				return nil, stepErr(StepDecrypt, err)
			}
			if data, err = cryptobox.Decrypt(bundle, key); err != nil {
				return nil, stepErr(StepDecrypt, err)
			}
		}
		b.Data = data
	}
	return doc, nil
}
