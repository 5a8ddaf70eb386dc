package flow

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/starfrich/cryptletter/internal/blob"
	"github.com/starfrich/cryptletter/internal/capsvc"
	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/content"
	"github.com/starfrich/cryptletter/internal/ledger"
	"github.com/starfrich/cryptletter/internal/ledger/models"
	"github.com/starfrich/cryptletter/internal/ledger/repositories/repomanager"
	"github.com/starfrich/cryptletter/internal/logging"
)

const testSchema = `
CREATE TABLE creators (
  id               TEXT PRIMARY KEY,
  name             TEXT NOT NULL,
  bio              TEXT NOT NULL DEFAULT '',
  price            BIGINT NOT NULL,
  subscriber_count BIGINT NOT NULL DEFAULT 0,
  balance          BIGINT NOT NULL DEFAULT 0,
  active           BOOLEAN NOT NULL DEFAULT TRUE,
  registered_at    BIGINT NOT NULL
);

CREATE TABLE posts (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  creator      TEXT NOT NULL,
  content_id   TEXT NOT NULL,
  wrapped_key  BLOB,
  title        TEXT NOT NULL,
  preview      TEXT NOT NULL DEFAULT '',
  published_at BIGINT NOT NULL,
  visibility   TEXT NOT NULL
);

CREATE TABLE subscriptions (
  subscriber    TEXT NOT NULL,
  creator       TEXT NOT NULL,
  expiry        BIGINT NOT NULL,
  subscribed_at BIGINT NOT NULL,
  active        BOOLEAN NOT NULL,
  PRIMARY KEY (subscriber, creator)
);

CREATE TABLE grants (
  post_id    BIGINT NOT NULL,
  user_id    TEXT NOT NULL,
  granted_at BIGINT NOT NULL,
  PRIMARY KEY (post_id, user_id)
);

CREATE TABLE payments (
  id         TEXT PRIMARY KEY,
  payer      TEXT NOT NULL,
  payee      TEXT NOT NULL,
  amount     BIGINT NOT NULL,
  created_at BIGINT NOT NULL
);
`

const (
	alice models.UserID = "alice"
	bob   models.UserID = "bob"
	carol models.UserID = "carol"
)

// memStore is a content-addressed in-memory blob store for tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Upload(_ context.Context, data []byte, _ string) (*blob.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := blob.ContentID(data)
	m.objects[id] = append([]byte(nil), data...)
	return &blob.Object{ID: id, Locator: "mem://" + id, Size: int64(len(data))}, nil
}

func (m *memStore) Download(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[id]
	if !ok {
		return nil, common.ErrContentNotFound
	}
	return append([]byte(nil), data...), nil
}

// countingCaps counts unwrap requests, so resume tests can assert the
// request is never repeated.
type countingCaps struct {
	capsvc.Service
	requests int
}

func (c *countingCaps) RequestUnwrap(ctx context.Context, handle []byte, token string) (string, error) {
	c.requests++
	return c.Service.RequestUnwrap(ctx, handle, token)
}

type env struct {
	ledger    *ledger.Service
	store     *memStore
	caps      *capsvc.Local
	counting  *countingCaps
	publisher *Publisher
	reader    *Reader
}

func newEnv(t *testing.T, autoApprove bool) *env {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	svc := ledger.NewService(db, repomanager.NewPostgresRepositoryManager(), log)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	grantSecret := []byte("flow-test-grant-secret")
	local, err := capsvc.NewLocal(capsvc.LocalConfig{
		MasterKey:   bytes.Repeat([]byte{0x42}, common.KeySize),
		GrantSecret: grantSecret,
		AutoApprove: autoApprove,
	}, capsvc.NewPendingStore(rdb, time.Minute), log)
	require.NoError(t, err)

	counting := &countingCaps{Service: local}
	store := newMemStore()

	return &env{
		ledger:    svc,
		store:     store,
		caps:      local,
		counting:  counting,
		publisher: NewPublisher(svc, store, counting, log),
		reader:    NewReader(svc, store, counting, grantSecret, time.Hour, log),
	}
}

func (e *env) registerAndSubscribe(t *testing.T, creator, subscriber models.UserID, price uint64) {
	t.Helper()
	ctx := context.Background()
	_, err := e.ledger.RegisterCreator(ctx, creator, string(creator), "", price)
	require.NoError(t, err)
	if subscriber != "" {
		_, err = e.ledger.Subscribe(ctx, subscriber, creator, price)
		require.NoError(t, err)
	}
}

func testDocument() *content.Document {
	return content.NewDocument(
		content.TextBlock("the quick brown fox"),
		content.AssetBlock("image/png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}),
		content.TextBlock("jumps over the lazy dog"),
	)
}

func TestPublishRead_Gated(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.registerAndSubscribe(t, alice, bob, 500)

	doc := testDocument()
	post, err := e.publisher.Publish(ctx, alice, "fox news", doc, models.VisibilityGated)
	require.NoError(t, err)
	require.NotEmpty(t, post.WrappedKey)
	require.Contains(t, post.Preview, "fox news")
	require.Contains(t, post.Preview, common.AssetPlaceholder)

	// Nothing in the store may carry the plaintext.
	for _, data := range e.store.objects {
		require.NotContains(t, string(data), "quick brown fox")
	}

	got, session, err := e.reader.Read(ctx, post.ID, bob)
	require.NoError(t, err)
	require.Nil(t, session)
	require.Len(t, got.Blocks, 3)
	require.Equal(t, "the quick brown fox", got.Blocks[0].Text)
	require.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}, got.Blocks[1].Data)
	require.True(t, got.Blocks[1].Ref.Encrypted)
}

func TestPublishRead_Public(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.registerAndSubscribe(t, alice, "", 500)

	post, err := e.publisher.Publish(ctx, alice, "open letter", testDocument(), models.VisibilityPublic)
	require.NoError(t, err)
	require.Empty(t, post.WrappedKey)

	// Anyone can read a public post without a subscription or a grant.
	got, session, err := e.reader.Read(ctx, post.ID, carol)
	require.NoError(t, err)
	require.Nil(t, session)
	require.Equal(t, "the quick brown fox", got.Blocks[0].Text)
	require.False(t, got.Blocks[1].Ref.Encrypted)
	require.Equal(t, 0, e.counting.requests)
}

func TestRead_Unauthorized(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.registerAndSubscribe(t, alice, "", 500)

	post, err := e.publisher.Publish(ctx, alice, "secret", testDocument(), models.VisibilityGated)
	require.NoError(t, err)

	_, session, err := e.reader.Read(ctx, post.ID, carol)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	require.Nil(t, session)

	var se *StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StepAccess, se.Step)
}

func TestRead_OwnerWithoutSubscription(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.registerAndSubscribe(t, alice, "", 500)

	post, err := e.publisher.Publish(ctx, alice, "drafted", testDocument(), models.VisibilityGated)
	require.NoError(t, err)

	got, _, err := e.reader.Read(ctx, post.ID, alice)
	require.NoError(t, err)
	require.Equal(t, "the quick brown fox", got.Blocks[0].Text)
}

func TestRead_PendingThenResume(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	e.registerAndSubscribe(t, alice, bob, 500)

	post, err := e.publisher.Publish(ctx, alice, "patience", testDocument(), models.VisibilityGated)
	require.NoError(t, err)

	_, session, err := e.reader.Read(ctx, post.ID, bob)
	require.ErrorIs(t, err, common.ErrGrantPending)
	require.NotNil(t, session)
	require.Equal(t, StepAwait, session.Step)
	require.NotEmpty(t, session.RequestID)
	require.Equal(t, 1, e.counting.requests)

	// Still pending: resuming suspends again on the same request.
	_, again, err := e.reader.Resume(ctx, session)
	require.ErrorIs(t, err, common.ErrGrantPending)
	require.Equal(t, session.RequestID, again.RequestID)
	require.Equal(t, 1, e.counting.requests)

	require.NoError(t, e.caps.Approve(ctx, session.RequestID))

	got, done, err := e.reader.Resume(ctx, session)
	require.NoError(t, err)
	require.Nil(t, done)
	require.Equal(t, "the quick brown fox", got.Blocks[0].Text)
	require.Equal(t, 1, e.counting.requests)
}

func TestRead_TamperedPayload(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.registerAndSubscribe(t, alice, bob, 500)

	post, err := e.publisher.Publish(ctx, alice, "fragile", testDocument(), models.VisibilityGated)
	require.NoError(t, err)

	// Flip a bit in the stored payload.
	e.store.mu.Lock()
	data := e.store.objects[post.ContentID]
	data[len(data)/2] ^= 0x01
	e.store.mu.Unlock()

	_, _, err = e.reader.Read(ctx, post.ID, bob)
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StepDecrypt, se.Step)
}

func TestEndToEnd_SubscribeAfterDenied(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	_, err := e.ledger.RegisterCreator(ctx, alice, "alice", "", 750)
	require.NoError(t, err)

	post, err := e.publisher.Publish(ctx, alice, "members only", testDocument(), models.VisibilityGated)
	require.NoError(t, err)

	_, _, err = e.reader.Read(ctx, post.ID, bob)
	require.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = e.ledger.Subscribe(ctx, bob, alice, 750)
	require.NoError(t, err)

	got, _, err := e.reader.Read(ctx, post.ID, bob)
	require.NoError(t, err)
	require.Equal(t, "the quick brown fox", got.Blocks[0].Text)
	require.Equal(t, "jumps over the lazy dog", got.Blocks[2].Text)
}

func TestRead_MissingPost(t *testing.T) {
	e := newEnv(t, true)

	_, _, err := e.reader.Read(context.Background(), 9999, bob)
	require.ErrorIs(t, err, common.ErrNotFound)
}
