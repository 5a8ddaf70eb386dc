package flow

import (
	"context"
	"fmt"

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

// Publisher runs the publish pipeline: encrypt the document and its
// assets, upload them, wrap the content key and record the post in the
// ledger. The ledger write comes last, so a failure partway through
// leaves orphaned blobs but never a post pointing at missing content.
type Publisher struct {
	ledger *ledger.Service
	blobs  blob.Store
	caps   capsvc.Service
	log    logging.Logger
}

func NewPublisher(l *ledger.Service, blobs blob.Store, caps capsvc.Service, log logging.Logger) *Publisher {
	return &Publisher{
		ledger: l,
		blobs:  blobs,
		caps:   caps,
		log:    log.With("module", "flow.publisher"),
	}
}

// Publish stores a document and registers it with the ledger. Gated
// posts are sealed under a fresh content key whose wrapped handle is
// kept alongside the post; public posts are stored in the clear with no
// key material. Asset blocks are uploaded as separate objects either
// way, leaving only references in the stored document.
func (p *Publisher) Publish(ctx context.Context, creator models.UserID, title string, doc *content.Document, vis models.Visibility) (*models.Post, error) {
	if doc == nil {
		return nil, stepErr(StepSerialize, fmt.Errorf("%w: nil document", common.ErrInvalidInput))
	}

	var key []byte
	if vis == models.VisibilityGated {
		key = cryptobox.GenerateKey()
		defer common.WipeByteArray(key)
	}

	stored, err := p.detachAssets(ctx, doc, key)
	if err != nil {
		return nil, stepErr(StepAssets, err)
	}

	payload, err := p.serialize(stored, key)
	if err != nil {
		return nil, stepErr(StepSerialize, err)
	}

	obj, err := p.blobs.Upload(ctx, payload, "application/json")
	if err != nil {
		return nil, stepErr(StepUpload, err)
	}

	var handle []byte
	if vis == models.VisibilityGated {
		wire, err := keywrap.ToWireFormat(key)
		if err != nil {
			return nil, stepErr(StepWrapKey, err)
		}
		if handle, err = p.caps.WrapKey(ctx, wire); err != nil {
			return nil, stepErr(StepWrapKey, err)
		}
	}

	preview := content.MakePreview(title, doc)
	post, err := p.ledger.PublishPost(ctx, creator, obj.ID, handle, title, preview, vis)
	if err != nil {
		return nil, stepErr(StepLedger, err)
	}

	p.log.Info(ctx, "published post", "post_id", post.ID, "creator", creator, "visibility", vis)
	return post, nil
}

// detachAssets uploads every asset block as its own object and returns
// a copy of the document carrying references instead of raw bytes. With
// a key present the asset payloads are sealed before upload.
func (p *Publisher) detachAssets(ctx context.Context, doc *content.Document, key []byte) (*content.Document, error) {
	out := &content.Document{Version: doc.Version, Blocks: make([]content.Block, len(doc.Blocks))}
	copy(out.Blocks, doc.Blocks)

	for i := range out.Blocks {
		b := &out.Blocks[i]
		if b.Type != content.BlockAsset || len(b.Data) == 0 {
			continue
		}

		data := b.Data
		encrypted := false
		if key != nil {
			bundle, err := cryptobox.Encrypt(data, key)
			if err != nil {
				return nil, err
			}
			if data, err = bundle.Marshal(); err != nil {
				return nil, err
			}
			encrypted = true
		}

		obj, err := p.blobs.Upload(ctx, data, assetContentType(b, encrypted))
		if err != nil {
			return nil, err
		}

		ref := &content.AssetRef{ContentID: obj.ID, Encrypted: encrypted}
		if b.Ref != nil {
			ref.MimeType = b.Ref.MimeType
		}
		b.Ref = ref
		b.Data = nil
	}
	return out, nil
}

func (p *Publisher) serialize(doc *content.Document, key []byte) ([]byte, error) {
	payload, err := doc.Marshal()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return payload, nil
	}
	bundle, err := cryptobox.Encrypt(payload, key)
	if err != nil {
		return nil, err
	}
	return bundle.Marshal()
}

func assetContentType(b *content.Block, encrypted bool) string {
	if encrypted {
		return "application/octet-stream"
	}
	if b.Ref != nil && b.Ref.MimeType != "" {
		return b.Ref.MimeType
	}
	return "application/octet-stream"
}
