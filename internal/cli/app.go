package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gibiertrace/internal/adapters/httpapi"
	"gibiertrace/internal/auth"
	"gibiertrace/internal/blob"
	blobcore "gibiertrace/internal/blob/core"
	"gibiertrace/internal/config"
	"gibiertrace/internal/core"
	dedupmemory "gibiertrace/internal/infra/dedup/memory"
	dedupredis "gibiertrace/internal/infra/dedup/redis"
	"gibiertrace/internal/infra/notify"
	"gibiertrace/internal/infra/webhook/kafka"
	"gibiertrace/internal/obs"
)

// app is the wired server: store, blob store, dispatcher and service.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      core.SnapshotStore
	blobs      blobcore.Store
	service    *core.Service
	dispatcher *core.Dispatcher
	metrics    *obs.Metrics
	closers    []func() error
}

func openStore(ctx context.Context, cfg config.Config) (core.SnapshotStore, func() error, error) {
	store, err := core.OpenPersistentStore(ctx, cfg.Storage.Options(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	closeFn := func() error { return nil }
	if c, ok := store.(io.Closer); ok {
		closeFn = c.Close
	}
	return store, closeFn, nil
}

// buildApp wires every collaborator. traceOut, when non-nil, receives one
// JSON line per service operation.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger, traceOut io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: obs.NewMetrics()}
	defer func() {
		if err != nil {
			_ = a.closeResources()
		}
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	if a.blobs, err = blob.Open(ctx, cfg.Blob); err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	dedup, err := a.openDedup(ctx)
	if err != nil {
		return nil, err
	}

	recorder := core.MultiMetricsRecorder{a.metrics, core.NewExpvarMetricsRecorder("")}
	deps := core.DispatcherDeps{
		Directory: core.StoreDirectory{Store: store},
		Notifier:  notify.NewLogSender(logger),
		CRM:       notify.NewLogCRM(logger),
		Dedup:     dedup,
		Logger:    logger,
		Metrics:   recorder,
		QueueSize: cfg.Dispatch.QueueSize,
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sender, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		deps.Webhooks = sender
		a.closers = append(a.closers, sender.Close)
	}
	a.dispatcher = core.NewDispatcher(deps)
	a.dispatcher.Start()

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
		core.WithAuditRecorder(core.LogAuditRecorder{Logger: logger}),
		core.WithEventSink(a.dispatcher),
	}
	if cfg.Journal.Enabled {
		opts = append(opts, core.WithJournal(core.BlobJournal{Store: a.blobs, Prefix: cfg.Journal.Prefix}))
	}
	if traceOut != nil {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(traceOut)))
	}
	a.service = core.NewService(store, opts...)
	return a, nil
}

func (a *app) openDedup(ctx context.Context) (core.DedupStore, error) {
	if a.cfg.Redis.URL == "" {
		return dedupmemory.New(a.cfg.Redis.TTL), nil
	}
	client, err := dedupredis.Connect(ctx, a.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return dedupredis.New(client, a.cfg.Redis.KeyPrefix, a.cfg.Redis.TTL), nil
}

func (a *app) handler(authn *auth.Authenticator) http.Handler {
	h := httpapi.NewHandler(a.service, authn, a.logger)
	return httpapi.NewRouter(h, httpapi.Options{
		Logger:         a.logger,
		Metrics:        a.metrics,
		MaxBodyBytes:   a.cfg.HTTP.MaxBodyBytes,
		RateLimitRPS:   a.cfg.HTTP.RateLimitRPS,
		RateLimitBurst: a.cfg.HTTP.RateLimitBurst,
		DebugVars:      true,
	})
}

// close drains pending side effects, then releases resources.
func (a *app) close(ctx context.Context) error {
	var drainErr error
	if a.dispatcher != nil {
		drainErr = a.dispatcher.Close(ctx)
	}
	return errors.Join(drainErr, a.closeResources())
}

func (a *app) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
