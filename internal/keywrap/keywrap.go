// Package keywrap converts raw symmetric keys to and from the wire format
// required by the capability-gated decryption service: a 0x-prefixed,
// fixed-width, big-endian hex string. The conversion is deterministic and
// lossless; FromWireFormat(ToWireFormat(k)) == k for every valid key.
package keywrap

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/starfrich/cryptletter/internal/common"
)

// wireLen is the full wire string length: "0x" plus two hex digits per key byte.
const wireLen = 2 + 2*common.KeySize

// ToWireFormat encodes a raw 32-byte key as "0x" + 64 lowercase hex digits.
func ToWireFormat(key []byte) (string, error) {
	if len(key) != common.KeySize {
		return "", fmt.Errorf("%w: expected %d bytes, got %d", common.ErrInvalidKey, common.KeySize, len(key))
	}
	return "0x" + hex.EncodeToString(key), nil
}

// FromWireFormat decodes the wire string back to the raw key bytes.
func FromWireFormat(wire string) ([]byte, error) {
	if len(wire) != wireLen || !strings.HasPrefix(wire, "0x") {
		return nil, fmt.Errorf("%w: malformed wire value", common.ErrInvalidKey)
	}
	key, err := hex.DecodeString(wire[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidKey, err)
	}
	return key, nil
}
