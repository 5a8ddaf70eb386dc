// Package auth mints and verifies capability grant tokens: short-lived
// signed proofs that the ledger has authorized one requester to ask the
// decryption service to unwrap one post's key. The token binds the post,
// the requester, and a digest of the wrapped-key handle, so a token for
// one post cannot be replayed against another.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/ledger/models"
)

// GrantClaims are the verified contents of a grant token.
type GrantClaims struct {
	jwt.RegisteredClaims
	PostID       int64  `json:"post_id"`
	UserID       string `json:"user_id"`
	HandleDigest string `json:"handle_digest"`
}

// HandleDigest returns the hex SHA-256 of a wrapped-key handle.
func HandleDigest(handle []byte) string {
	sum := sha256.Sum256(handle)
	return hex.EncodeToString(sum[:])
}

// GenerateGrantToken signs a grant proof for (post, user, handle) valid
// for the given duration.
func GenerateGrantToken(postID int64, user models.UserID, handle []byte, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, GrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		PostID:       postID,
		UserID:       string(user),
		HandleDigest: HandleDigest(handle),
	})
	return token.SignedString(secret)
}

// ParseGrantToken verifies signature and expiry and returns the claims.
// Any defect maps to common.ErrInvalidToken.
func ParseGrantToken(tokenString string, secret []byte) (*GrantClaims, error) {
	claims := &GrantClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
