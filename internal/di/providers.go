package di

import (
	"context"
	"fmt"
	"time"

	"memo-web/internal/client"
	"memo-web/internal/config"
	"memo-web/internal/handlers"
	"memo-web/internal/observability"
	"memo-web/internal/persistence"
	"memo-web/internal/remote"
	"memo-web/internal/remote/memory"
	"memo-web/internal/remote/supabase"
	"memo-web/internal/service/memo"

	"github.com/go-chi/chi/v5"
	"github.com/google/wire"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const sweepInterval = 10 * time.Minute

// ConfigProviders provides configuration and the ambient stack.
var ConfigProviders = wire.NewSet(
	ProvideAtomicLevel,
	ProvideLogger,
	ProvideMetrics,
	ProvideTracerProvider,
	ProvideTracer,
)

// InfrastructureProviders provides session persistence and the remote
// data service.
var InfrastructureProviders = wire.NewSet(
	ProvideSessionStorage,
	ProvideBreaker,
	ProvideRemoteFactory,
	ProvideRegistry,
)

// InterfaceProviders provides the HTTP layer.
var InterfaceProviders = wire.NewSet(
	ProvideHandler,
	ProvideRouter,
	wire.Bind(new(handlers.Instances), new(*client.Registry)),
)

// SuperSet combines all provider sets for the complete application.
var SuperSet = wire.NewSet(
	ConfigProviders,
	InfrastructureProviders,
	InterfaceProviders,
	wire.Struct(new(Container), "*"),
)

// ProvideAtomicLevel parses the configured log level.
func ProvideAtomicLevel(cfg *config.Config) (zap.AtomicLevel, error) {
	atom, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return atom, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	return atom, nil
}

// ProvideLogger builds the root logger. The cleanup flushes it.
func ProvideLogger(cfg *config.Config, atom zap.AtomicLevel) (*zap.Logger, func(), error) {
	logger, err := observability.BuildLogger(atom, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With(zap.String("environment", string(cfg.Environment)))
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideMetrics creates the metrics collector.
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("memo_web")
}

// ProvideTracerProvider starts span export when an endpoint is configured.
func ProvideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush spans", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideTracer returns the application tracer.
func ProvideTracer(tp *observability.TracerProvider) trace.Tracer {
	return tp.Tracer()
}

// ProvideSessionStorage selects where auth sessions are persisted. The
// in-memory store is swept for expired entries until cleanup.
func ProvideSessionStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (persistence.SessionStorage, func(), error) {
	switch cfg.Session.Store {
	case config.SessionStoreDynamoDB:
		db, err := persistence.NewDynamoClient(ctx, cfg.Session.Region, cfg.Session.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sessions stored in DynamoDB", zap.String("table", cfg.Session.TableName))
		return persistence.NewDynamoStorage(db, cfg.Session.TableName, cfg.Session.TTL), func() {}, nil
	default:
		store := persistence.NewMemoryStorage(cfg.Session.TTL)
		stop := make(chan struct{})
		go func() {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := store.Sweep(); n > 0 {
						logger.Debug("expired sessions removed", zap.Int("count", n))
					}
				case <-stop:
					return
				}
			}
		}()
		return store, func() { close(stop) }, nil
	}
}

// ProvideBreaker creates the circuit breaker shared by all remote calls.
func ProvideBreaker(cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *supabase.Breaker {
	return supabase.NewBreaker(supabase.BreakerConfig{
		Name:             "supabase",
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		MinRequests:      cfg.Breaker.MinRequests,
	}, logger, metrics)
}

// ProvideRemoteFactory selects the remote data service.
func ProvideRemoteFactory(cfg *config.Config, sessions persistence.SessionStorage, breaker *supabase.Breaker, metrics *observability.Collector, logger *zap.Logger) remote.Factory {
	if cfg.Backend == config.BackendMemory {
		logger.Warn("using the in-memory remote service, data is lost on restart")
		return memory.NewBackend(sessions, memory.WithPublicURL(cfg.Server.PublicURL))
	}
	return supabase.NewFactory(supabase.Config{
		URL:            cfg.Supabase.URL,
		AnonKey:        cfg.Supabase.AnonKey,
		RequestTimeout: cfg.Supabase.RequestTimeout,
		RefreshMargin:  cfg.Supabase.RefreshMargin,
	}, sessions, breaker, metrics, logger)
}

// ProvideRegistry creates the per-browser client registry. Instances idle
// longer than session.idle_timeout are closed; the cleanup closes the rest.
func ProvideRegistry(factory remote.Factory, cfg *config.Config, tracer trace.Tracer, metrics *observability.Collector, logger *zap.Logger) (*client.Registry, func()) {
	r := client.NewRegistry(factory, client.Config{
		PublicURL: cfg.Server.PublicURL,
		Memo: memo.Config{
			Bucket:               cfg.Supabase.Bucket,
			CacheControl:         cfg.Storage.CacheControl,
			RemoveReplacedImages: cfg.Storage.RemoveReplacedImages,
		},
		IdleTimeout: cfg.Session.IdleTimeout,
	}, tracer, metrics, logger)
	return r, r.Close
}

// ProvideHandler creates the screen handlers.
func ProvideHandler(instances handlers.Instances, cfg *config.Config, logger *zap.Logger) *handlers.Handler {
	return handlers.NewHandler(instances, handlers.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
		MaxAge: cfg.Session.TTL,
	}, cfg.Server.MaxRequestSize, logger)
}

// ProvideRouter builds the HTTP router.
func ProvideRouter(h *handlers.Handler, metrics *observability.Collector, cfg *config.Config, logger *zap.Logger) *chi.Mux {
	return handlers.NewRouter(h, metrics, cfg.CORS.AllowedOrigins, logger)
}
