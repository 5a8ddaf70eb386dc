package capsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starfrich/cryptletter/internal/common"
)

// PendingRequest is one outstanding unwrap request. The wrapped handle is
// stored, not the key: nothing is unsealed until approval.
type PendingRequest struct {
	Handle   []byte `json:"handle"`
	Approved bool   `json:"approved"`
}

// PendingStore keeps unwrap requests in redis with a TTL, so abandoned
// flows age out on their own.
type PendingStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPendingStore wraps the redis client. ttl bounds how long a request
// may stay pending before the reader has to start over.
func NewPendingStore(rdb *redis.Client, ttl time.Duration) *PendingStore {
	return &PendingStore{rdb: rdb, ttl: ttl}
}

func pendingKey(id string) string {
	return "capsvc:pending:" + id
}

// Put registers the request under id.
func (s *PendingStore) Put(ctx context.Context, id string, req *PendingRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, pendingKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", common.ErrNetwork, err)
	}
	return nil
}

// Get returns the request or common.ErrNotFound once it has expired.
func (s *PendingStore) Get(ctx context.Context, id string) (*PendingRequest, error) {
	data, err := s.rdb.Get(ctx, pendingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get: %v", common.ErrNetwork, err)
	}
	var req PendingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Approve flips the approved bit, refreshing the TTL.
func (s *PendingStore) Approve(ctx context.Context, id string) error {
	req, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	req.Approved = true
	return s.Put(ctx, id, req)
}

// Delete removes the request once the flow has consumed it.
func (s *PendingStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, pendingKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %v", common.ErrNetwork, err)
	}
	return nil
}
