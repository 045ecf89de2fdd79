// Package server assembles the service from its configured subsystems.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/jfaulkner/crm-bridge/internal/api"
	"github.com/jfaulkner/crm-bridge/internal/clock/system"
	"github.com/jfaulkner/crm-bridge/internal/config"
	"github.com/jfaulkner/crm-bridge/internal/crm"
	"github.com/jfaulkner/crm-bridge/internal/dispatcher"
	"github.com/jfaulkner/crm-bridge/internal/events"
	idgen "github.com/jfaulkner/crm-bridge/internal/id/uuid"
	"github.com/jfaulkner/crm-bridge/internal/logging"
	"github.com/jfaulkner/crm-bridge/internal/metrics"
	pubmem "github.com/jfaulkner/crm-bridge/internal/publisher/memory"
	pubgcp "github.com/jfaulkner/crm-bridge/internal/publisher/pubsub"
	queuemem "github.com/jfaulkner/crm-bridge/internal/queue/memory"
	"github.com/jfaulkner/crm-bridge/internal/renderer"
	"github.com/jfaulkner/crm-bridge/internal/storage"
	"github.com/jfaulkner/crm-bridge/internal/storage/gcs"
	storemem "github.com/jfaulkner/crm-bridge/internal/storage/memory"
	"github.com/jfaulkner/crm-bridge/internal/storage/postgres"
	"github.com/jfaulkner/crm-bridge/internal/uow"
	"github.com/jfaulkner/crm-bridge/internal/webhook"
	"github.com/jfaulkner/crm-bridge/internal/worker"
)

// App owns every long-lived component of the running service.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	httpServer *http.Server
	dispatch   *dispatcher.Dispatcher
	queue      *queuemem.Queue
	closers    []func()
}

// Build constructs the full service graph from config. Optional subsystems
// (GCS, Pub/Sub, Postgres, the renderer) are only dialed when configured;
// in-memory stand-ins cover the rest.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}

	if cfg.CRM.InstanceURL == "" {
		return nil, fmt.Errorf("crm.instance_url is required")
	}
	store, err := crm.NewClient(crm.Config{
		InstanceURL: cfg.CRM.InstanceURL,
		APIVersion:  cfg.CRM.APIVersion,
		AccessToken: cfg.CRM.AccessToken,
		Timeout:     time.Duration(cfg.CRM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("build crm client: %w", err)
	}

	connections := make(map[string]crm.Config, len(cfg.CRM.Connections))
	for name, conn := range cfg.CRM.Connections {
		connections[name] = crm.Config{
			InstanceURL: conn.InstanceURL,
			APIVersion:  cfg.CRM.APIVersion,
			AccessToken: conn.AccessToken,
			Timeout:     time.Duration(cfg.CRM.TimeoutSeconds) * time.Second,
		}
	}
	resolver, err := crm.NewResolver(connections)
	if err != nil {
		return nil, fmt.Errorf("build connection resolver: %w", err)
	}

	var blobStore storage.BlobStore
	if cfg.Storage.GCSBucket != "" {
		gcsClient, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs client: %w", err)
		}
		app.closers = append(app.closers, func() { _ = gcsClient.Close() })
		blobStore, err = gcs.New(gcsClient, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("build gcs blob store: %w", err)
		}
		logger.Info("blob storage enabled", zap.String("bucket", cfg.Storage.GCSBucket))
	} else {
		blobStore = storemem.NewBlobStore()
		logger.Warn("no gcs bucket configured, storing documents in memory")
	}

	var publisher events.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		app.closers = append(app.closers, func() { _ = psClient.Close() })
		psPublisher, err := pubgcp.New(psClient, cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("build pubsub publisher: %w", err)
		}
		app.closers = append(app.closers, psPublisher.Stop)
		publisher = psPublisher
		logger.Info("event forwarding enabled",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
	} else {
		publisher = pubmem.New()
		logger.Warn("no pubsub topic configured, events stay in memory")
	}

	var audit uow.AuditStore
	if cfg.DB.DSN != "" {
		commitStore, err := postgres.NewCommitStore(ctx, postgres.CommitStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("build commit store: %w", err)
		}
		app.closers = append(app.closers, commitStore.Close)
		audit = commitStore
		logger.Info("commit audit ledger enabled", zap.String("table", cfg.DB.Table))
	}

	var pdfRenderer renderer.Renderer
	if cfg.Renderer.Enabled {
		chromeRenderer, err := renderer.NewChromedp(renderer.Config{
			MaxParallel:       cfg.Renderer.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Renderer.NavTimeoutSec) * time.Second,
			PrintBackground:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("build renderer: %w", err)
		}
		app.closers = append(app.closers, chromeRenderer.Close)
		pdfRenderer = chromeRenderer
		logger.Info("pdf renderer enabled", zap.Int("max_parallel", cfg.Renderer.MaxParallel))
	}

	app.queue = queuemem.NewQueue(cfg.UnitOfWork.QueueDepth)
	notifier := webhook.New(time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second)
	clock := system.New()

	workers := make([]*worker.Worker, 0, cfg.UnitOfWork.Workers)
	for i := 0; i < cfg.UnitOfWork.Workers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			store,
			notifier,
			audit,
			clock,
			worker.Config{CommitTimeout: cfg.CommitTimeout()},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	app.dispatch = dispatcher.New(app.queue, workers)

	apiServer := api.NewServer(
		app.dispatch,
		store,
		resolver,
		publisher,
		pdfRenderer,
		blobStore,
		idgen.New(),
		clock,
		cfg,
		logger.Named("api"),
	)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return app, nil
}

// Run starts the worker pool and the HTTP server, then blocks until the
// context ends or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.dispatch.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", zap.Error(err))
	}
	return nil
}

// Close releases every resource acquired in Build.
func (a *App) Close() {
	a.queue.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}
