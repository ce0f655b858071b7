// Package app assembles the staging manager: two subscription runners feeding
// the upload area handlers, plus the health and metrics listeners.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/stagingmanager/internal/auth"
	"github.com/dmitrijs2005/stagingmanager/internal/broker"
	"github.com/dmitrijs2005/stagingmanager/internal/config"
	"github.com/dmitrijs2005/stagingmanager/internal/health"
	"github.com/dmitrijs2005/stagingmanager/internal/ingest"
	"github.com/dmitrijs2005/stagingmanager/internal/logging"
	"github.com/dmitrijs2005/stagingmanager/internal/manager"
	"github.com/dmitrijs2005/stagingmanager/internal/metrics"
	"github.com/dmitrijs2005/stagingmanager/internal/models"
	"github.com/dmitrijs2005/stagingmanager/internal/staging"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	health  *health.Server
	manager *manager.StagingManager
	runners []*broker.Runner
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogLevel)

	refField, err := models.ParseRefField(c.StagingRefField)
	if err != nil {
		return nil, err
	}

	var source oauth2.TokenSource
	if c.JWTSecret != "" {
		source = auth.NewTokenSource(c.JWTSubject, c.JWTAudience, c.JWTSecret, c.TokenValidityDuration)
	}
	submissions := ingest.NewClient(c.IngestAPIURL, auth.NewHTTPClient(source, c.RequestTimeout), c.RequestTimeout)

	areas, err := newStaging(context.Background(), c)
	if err != nil {
		return nil, fmt.Errorf("staging init error: %w", err)
	}

	m := metrics.New()
	sm := manager.NewStagingManager(submissions, areas, logger,
		manager.WithRefField(refField),
		manager.WithCompletePolicy(c.CompleteAttempts, c.CompleteDelay),
		manager.WithCompleteWithoutArea(c.CompleteWithoutArea),
		manager.WithRecorder(m),
	)

	consumer, err := newConsumer(c, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		config:  c,
		logger:  logger,
		metrics: m,
		health:  health.NewServer(c.HealthAddrGRPC, logger, manager.HandlerCreate, manager.HandlerCleanup),
		manager: sm,
	}
	app.runners = []*broker.Runner{
		app.newRunner(manager.HandlerCreate, c.CreateQueue(), c.CreateRoutingKey(), consumer, sm.CreateUploadArea),
		app.newRunner(manager.HandlerCleanup, c.CleanupQueue(), c.CleanupRoutingKey(), consumer, sm.DeleteUploadArea),
	}
	return app, nil
}

func newStaging(ctx context.Context, c *config.Config) (manager.StagingService, error) {
	switch c.StagingBackend {
	case config.StagingS3:
		return staging.NewS3Areas(ctx, staging.S3Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	case config.StagingHTTP:
		return staging.NewUploadClient(c.StagingAPIURL, c.StagingAPIKey, http.DefaultClient, c.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown staging backend %q", c.StagingBackend)
	}
}

func newConsumer(c *config.Config, l logging.Logger) (broker.Consumer, error) {
	switch c.BrokerKind {
	case config.BrokerAMQP:
		return broker.NewAMQPConsumer(c.BrokerURL, l), nil
	case config.BrokerKafka:
		return broker.NewKafkaConsumer(c.BrokerURL, l), nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", c.BrokerKind)
	}
}

func (app *App) newRunner(name, queue, key string, c broker.Consumer, h broker.Handler) *broker.Runner {
	r := broker.NewRunner(name, broker.Subscription{
		Exchange:     app.config.Exchange,
		ExchangeKind: broker.ExchangeTopic,
		Queue:        queue,
		RoutingKey:   key,
	}, c, h, app.logger)
	r.OnState = func(consuming bool) { app.health.SetServing(name, consuming) }
	return r
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHealthServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: app.router()}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.MetricsAddr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startRunner(ctx context.Context, cancelFunc context.CancelFunc, r *broker.Runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a termination signal arrives, then
// waits for the runners and listeners to stop.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHealthServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	for _, r := range app.runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startRunner(ctx, cancelFunc, r)
		}()
	}

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
}
