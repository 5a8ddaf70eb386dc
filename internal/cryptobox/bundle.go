package cryptobox

import (
	"encoding/json"
	"fmt"

	"github.com/starfrich/cryptletter/internal/common"
)

// Bundle is the wire-level envelope stored in the blob store for gated
// content. Byte fields serialize as base64 inside JSON.
type Bundle struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
	Version    string `json:"version"`
}

func (b *Bundle) validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", common.ErrMalformedBundle)
	}
	if b.Version != common.BundleVersion {
		return fmt.Errorf("%w: unknown version %q", common.ErrMalformedBundle, b.Version)
	}
	if len(b.Nonce) != common.NonceSize {
		return fmt.Errorf("%w: bad nonce length %d", common.ErrMalformedBundle, len(b.Nonce))
	}
	if len(b.Tag) != common.TagSize {
		return fmt.Errorf("%w: bad tag length %d", common.ErrMalformedBundle, len(b.Tag))
	}
	// Ciphertext may be empty: GCM authenticates an empty plaintext, the
	// tag alone carries the integrity.
	return nil
}

// Marshal serializes the bundle for storage.
func (b *Bundle) Marshal() ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(b)
}

// ParseBundle deserializes a stored bundle, rejecting structurally invalid
// input before the codec ever sees it.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedBundle, err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
