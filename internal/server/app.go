// Package server initializes and runs the main application. It wires the
// authorization ledger, object storage, the capability service and the
// publish/read flows, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/starfrich/cryptletter/internal/blob"
	"github.com/starfrich/cryptletter/internal/capsvc"
	"github.com/starfrich/cryptletter/internal/common"
	"github.com/starfrich/cryptletter/internal/flow"
	"github.com/starfrich/cryptletter/internal/ledger"
	"github.com/starfrich/cryptletter/internal/ledger/repositories/repomanager"
	"github.com/starfrich/cryptletter/internal/logging"
	"github.com/starfrich/cryptletter/internal/server/config"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	repos     repomanager.RepositoryManager
	ledger    *ledger.Service
	blobs     blob.Store
	caps      *capsvc.Local
	publisher *flow.Publisher
	reader    *flow.Reader
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	ledgerSvc := ledger.NewService(db, repos, logger)

	blobs, err := newBlobStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	masterKey, err := hex.DecodeString(c.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", common.ErrInvalidKey)
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	pending := capsvc.NewPendingStore(rdb, c.PendingTTL)

	caps, err := capsvc.NewLocal(capsvc.LocalConfig{
		MasterKey:   masterKey,
		GrantSecret: []byte(c.GrantSecret),
		AutoApprove: c.AutoApprove,
	}, pending, logger)
	if err != nil {
		return nil, fmt.Errorf("capability service init error: %w", err)
	}

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		repos:     repos,
		ledger:    ledgerSvc,
		blobs:     blobs,
		caps:      caps,
		publisher: flow.NewPublisher(ledgerSvc, blobs, caps, logger),
		reader:    flow.NewReader(ledgerSvc, blobs, caps, []byte(c.GrantSecret), c.GrantTokenValidity, logger),
	}, nil
}

func newBlobStore(ctx context.Context, c *config.Config) (blob.Store, error) {
	switch c.BlobBackend {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	case "minio":
		// The minio client wants host:port without a scheme.
		u, err := url.Parse(c.S3BaseEndpoint)
		if err != nil {
			return nil, fmt.Errorf("%w: blob endpoint: %v", common.ErrInvalidInput, err)
		}
		return blob.NewMinioStore(blob.MinioConfig{
			Endpoint:  u.Host,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Bucket:    c.S3Bucket,
			UseSSL:    u.Scheme == "https",
		})
	default:
		return nil, fmt.Errorf("%w: unknown blob backend %q", common.ErrInvalidInput, c.BlobBackend)
	}
}

// Ledger exposes the authorization ledger for embedding callers.
func (app *App) Ledger() *ledger.Service { return app.ledger }

// Publisher exposes the publish flow for embedding callers.
func (app *App) Publisher() *flow.Publisher { return app.publisher }

// Reader exposes the read flow for embedding callers.
func (app *App) Reader() *flow.Reader { return app.reader }

// Capabilities exposes the capability service, e.g. for approval tooling.
func (app *App) Capabilities() *capsvc.Local { return app.caps }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run migrates the ledger schema and keeps the application alive until the
// context is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.repos.RunMigrations(migrateCtx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	app.logger.Info(ctx, "App ready")

	<-ctx.Done()

	app.logger.Info(context.Background(), "Shutting down...")
	return app.db.Close()
}
