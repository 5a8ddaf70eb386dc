// Package blob provides content-addressed access to an object store. Two
// backends are supported: any S3-compatible endpoint via the AWS SDK, and
// MinIO via its native client. Identifiers are derived from the stored
// bytes, so re-uploading identical content is idempotent.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/starfrich/cryptletter/internal/common"
)

// Object describes a stored payload.
type Object struct {
	ID      string
	Locator string
	Size    int64
}

// Store is the narrow contract the orchestrators depend on.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (*Object, error)
	Download(ctx context.Context, id string) ([]byte, error)
}

// ContentID derives the content identifier for a payload (hex SHA-256).
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// htmlMarkers are prefixes of error pages some gateways return with a 200
// status. Such bodies must surface as a transport failure, never as content.
var htmlMarkers = [][]byte{
	[]byte("<!DOCTYPE"),
	[]byte("<!doctype"),
	[]byte("<html"),
	[]byte("<HTML"),
	[]byte("<?xml"),
}

// ValidatePayload rejects empty and HTML/XML error bodies.
func ValidatePayload(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", common.ErrNetwork)
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	for _, m := range htmlMarkers {
		if bytes.HasPrefix(trimmed, m) {
			return fmt.Errorf("%w: got an HTML error page instead of content", common.ErrNetwork)
		}
	}
	return nil
}

// DownloadWithRetry downloads id, retrying transient failures with bounded
// exponential backoff. Download is read-only, so blind retries are safe.
func DownloadWithRetry(ctx context.Context, s Store, id string) ([]byte, error) {
	var data []byte

	backoff := retry.WithMaxRetries(4, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		data, err = s.Download(ctx, id)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
