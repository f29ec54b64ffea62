package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/config"
	httpAdapter "github.com/aretw0/intake/pkg/adapters/http"
	"github.com/aretw0/intake/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/intake/pkg/adapters/redis"
	"github.com/aretw0/intake/pkg/adapters/sqlite"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/flow"
	"github.com/aretw0/intake/pkg/llm"
	"github.com/aretw0/intake/pkg/metrics"
	"github.com/aretw0/intake/pkg/persistence/middleware"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/aretw0/intake/pkg/telemetry"
)

// App is an Engine wired from a configuration file, together with the
// resources it owns.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Engine  *intake.Engine
	Metrics *metrics.Metrics
	Streams *httpAdapter.StreamManager
	// DB is the sqlite database, nil unless telemetry or cases use it.
	DB *sqlite.DB

	sink   *telemetry.Sink
	redis  *redisAdapter.Store
	closed bool
}

// AppOption customizes NewApp.
type AppOption func(*appOptions)

type appOptions struct {
	llm     ports.LLMClient
	streams bool
	debug   bool
}

// WithLLM replaces the OpenRouter client, mostly for tests.
func WithLLM(client ports.LLMClient) AppOption {
	return func(o *appOptions) { o.llm = client }
}

// WithStreams registers an SSE stream manager as additional telemetry sink.
func WithStreams() AppOption {
	return func(o *appOptions) { o.streams = true }
}

// WithDebugHooks logs every lifecycle event at debug level.
func WithDebugHooks() AppOption {
	return func(o *appOptions) { o.debug = true }
}

// NewApp assembles the engine described by cfg.
func NewApp(cfg *config.Config, logger *slog.Logger, opts ...AppOption) (app *App, err error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app = &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	client := o.llm
	if client == nil {
		c, err := llm.New(cfg.LLMClientConfig(), llm.WithLogger(logger), llm.WithObserver(app.Metrics))
		if err != nil {
			return nil, err
		}
		client = c
	}

	engineOpts := []intake.Option{
		intake.WithLogger(logger),
		intake.WithMaxRetries(cfg.Conversation.MaxRetries),
		intake.WithHistoryWindow(cfg.Conversation.HistoryWindow),
		intake.WithLifecycleHooks(app.Metrics.Hooks()),
	}
	if o.debug {
		engineOpts = append(engineOpts, intake.WithLifecycleHooks(createDebugHooks(logger)))
	}

	if cfg.Conversation.Flow != "" {
		def, err := flow.LoadFile(cfg.Conversation.Flow)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, intake.WithFlow(def))
	}

	if cfg.UsesSQLite() {
		app.DB, err = sqlite.Open(cfg.Storage.SQLite, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	}

	cases, err := app.caseStore(cfg)
	if err != nil {
		return nil, err
	}
	engineOpts = append(engineOpts, intake.WithCaseStore(cases))

	storeOpts, err := app.conversationStore(cfg)
	if err != nil {
		return nil, err
	}
	engineOpts = append(engineOpts, storeOpts...)

	var sinks telemetry.Tee
	if w := app.telemetryWriter(cfg); w != nil {
		redact := middleware.NewPIIWriter(cfg.Telemetry.RedactKeys)
		app.sink = telemetry.NewSink(redact(w),
			telemetry.WithBufferSize(cfg.Telemetry.BufferSize),
			telemetry.WithWriteTimeout(cfg.Telemetry.WriteTimeout),
			telemetry.WithLogger(logger),
			telemetry.WithDropHook(app.Metrics.RecordDropped),
		)
		sinks = append(sinks, app.sink)
	}
	if o.streams {
		app.Streams = httpAdapter.NewStreamManager(logger, httpAdapter.WithRedactKeys(cfg.Telemetry.RedactKeys))
		sinks = append(sinks, app.Streams)
	}
	if len(sinks) > 0 {
		engineOpts = append(engineOpts, intake.WithTelemetry(sinks))
	}

	app.Engine, err = intake.New(client, engineOpts...)
	if err != nil {
		return nil, err
	}
	app.Metrics.TrackActive(app.Engine.Active)
	return app, nil
}

func (a *App) caseStore(cfg *config.Config) (ports.CaseStore, error) {
	if cfg.Storage.Cases != config.BackendSQLite {
		return memory.NewCaseStore(memory.WithSamples()), nil
	}
	cases := a.DB.Cases()
	if cfg.Storage.SeedCases {
		if err := cases.Seed(context.Background()); err != nil {
			return nil, err
		}
	}
	return cases, nil
}

func (a *App) conversationStore(cfg *config.Config) ([]intake.Option, error) {
	store, redis, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.redis = redis
	opts := []intake.Option{intake.WithStore(store)}
	if redis != nil {
		opts = append(opts, intake.WithLocker(redisAdapter.NewLocker(redis.Client(), redisPrefix(cfg)), cfg.Storage.Redis.LockTTL))
	}
	return opts, nil
}

// OpenStore opens the conversation store described by cfg, middleware
// included. The returned function releases it.
func OpenStore(cfg *config.Config) (ports.ConversationStore, func() error, error) {
	store, redis, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	if redis != nil {
		return store, redis.Close, nil
	}
	return store, func() error { return nil }, nil
}

func openStore(cfg *config.Config) (ports.ConversationStore, *redisAdapter.Store, error) {
	var store ports.ConversationStore
	var redis *redisAdapter.Store

	switch cfg.Storage.Backend {
	case config.BackendRedis:
		r := cfg.Storage.Redis
		storeOpts := []redisAdapter.Option{redisAdapter.WithPrefix(redisPrefix(cfg))}
		if r.TTL > 0 {
			storeOpts = append(storeOpts, redisAdapter.WithTTL(r.TTL))
		}
		redis = redisAdapter.New(r.Addr, r.Password, r.DB, storeOpts...)
		if err := redis.Ping(context.Background()); err != nil {
			_ = redis.Close()
			return nil, nil, fmt.Errorf("redis unreachable at %s: %w", r.Addr, err)
		}
		store = redis
	default:
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if cfg.Storage.RedactSnapshots {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Telemetry.RedactKeys))
	}
	key, err := cfg.Storage.Key()
	if err == nil && key != nil {
		var enc middleware.Middleware
		if enc, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}); err == nil {
			mws = append(mws, enc)
		}
	}
	if err != nil {
		if redis != nil {
			_ = redis.Close()
		}
		return nil, nil, err
	}
	return middleware.Chain(store, mws...), redis, nil
}

func redisPrefix(cfg *config.Config) string {
	if cfg.Storage.Redis.Prefix != "" {
		return cfg.Storage.Redis.Prefix
	}
	return redisAdapter.DefaultPrefix
}

func (a *App) telemetryWriter(cfg *config.Config) ports.TelemetryWriter {
	switch cfg.Telemetry.Backend {
	case config.BackendSQLite:
		return a.DB.Telemetry()
	case config.BackendLog:
		return telemetry.NewLogWriter(a.Logger)
	default:
		return nil
	}
}

// EndCall marks the call of an abandoned voice session in the call log.
func (a *App) EndCall(ctx context.Context, snap *domain.Snapshot, status string) {
	if a.DB == nil || snap.Ended {
		return
	}
	outcome := sqlite.StatusAbandoned
	if status == "failed" {
		outcome = sqlite.StatusError
	}
	if err := a.DB.Telemetry().EndCall(ctx, snap.CallID, outcome); err != nil && !errors.Is(err, sqlite.ErrCallNotFound) {
		a.Logger.Warn("Failed to close call", "call_id", snap.CallID, "err", err)
	}
}

// Close flushes pending telemetry and releases every resource.
func (a *App) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
