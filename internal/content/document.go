// Package content defines the structured document model posts are written
// in: an ordered list of blocks, where a block is either text or an
// embedded binary asset. Before upload, asset bytes are extracted and
// replaced with references into the blob store; the read path resolves
// them back.
package content

import (
	"encoding/json"
	"fmt"

	"github.com/starfrich/cryptletter/internal/common"
)

// BlockType discriminates document blocks.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockAsset BlockType = "asset"
)

// AssetRef points at an uploaded asset. Encrypted marks whether the bytes
// in the blob store are a sealed bundle (gated posts) or raw (public).
type AssetRef struct {
	ContentID string `json:"content_id"`
	MimeType  string `json:"mime_type,omitempty"`
	Encrypted bool   `json:"encrypted"`
}

// Block is one unit of a document. Exactly one of Text / Data / Ref is
// meaningful, depending on Type and on whether assets have been extracted.
type Block struct {
	Type BlockType `json:"type"`
	Text string    `json:"text,omitempty"`
	Data []byte    `json:"data,omitempty"`
	Ref  *AssetRef `json:"ref,omitempty"`
}

// Document is the payload a creator publishes.
type Document struct {
	Version string  `json:"version"`
	Blocks  []Block `json:"blocks"`
}

// NewDocument builds a document in the current format version.
func NewDocument(blocks ...Block) *Document {
	return &Document{Version: common.BundleVersion, Blocks: blocks}
}

// TextBlock is a convenience constructor.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// AssetBlock is a convenience constructor for a not-yet-uploaded asset.
func AssetBlock(mimeType string, data []byte) Block {
	return Block{Type: BlockAsset, Data: data, Ref: &AssetRef{MimeType: mimeType}}
}

// Marshal serializes the document for storage.
func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// ParseDocument deserializes a stored document, rejecting structurally
// invalid input.
func ParseDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedBundle, err)
	}
	if d.Version == "" {
		return nil, fmt.Errorf("%w: missing document version", common.ErrMalformedBundle)
	}
	for i, b := range d.Blocks {
		switch b.Type {
		case BlockText, BlockAsset:
		default:
			return nil, fmt.Errorf("%w: unknown block type %q at index %d", common.ErrMalformedBundle, b.Type, i)
		}
	}
	return &d, nil
}
