// Package client keeps one instance of the application state per browser:
// a remote connection, the session store and both data hooks.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"memo-web/internal/observability"
	"memo-web/internal/remote"
	"memo-web/internal/service/category"
	"memo-web/internal/service/memo"
	"memo-web/internal/session"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("client registry is closed")

// Config holds what every instance is built with.
type Config struct {
	// PublicURL is the externally visible base URL of the server.
	PublicURL string
	Memo      memo.Config
	// IdleTimeout closes instances not used for this long. The persisted
	// session survives, so the next request rebuilds the instance signed
	// in. Zero keeps instances until Close.
	IdleTimeout time.Duration
}

// Instance is the state of one browser.
type Instance struct {
	ID         string
	Remote     *remote.Client
	Store      *session.Store
	Categories *category.Hook
	Memos      *memo.Hook
}

// Close unmounts the hooks, unsubscribes the store and stops the remote
// client.
func (i *Instance) Close() {
	i.Memos.Close()
	i.Categories.Close()
	i.Store.Close()
	i.Remote.Close()
}

type entry struct {
	ready    chan struct{}
	inst     *Instance
	err      error
	lastUsed time.Time
}

// Registry creates instances on first use and keeps them until they go
// idle or the registry is closed.
type Registry struct {
	factory remote.Factory
	cfg     Config
	tracer  trace.Tracer
	metrics *observability.Collector
	logger  *zap.Logger

	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	stop    chan struct{}
}

// NewRegistry creates an empty registry. With an idle timeout it evicts
// idle instances in the background until Close.
func NewRegistry(factory remote.Factory, cfg Config, tracer trace.Tracer, metrics *observability.Collector, logger *zap.Logger) *Registry {
	r := &Registry{
		factory: factory,
		cfg:     cfg,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger.Named("client"),
		now:     time.Now,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if cfg.IdleTimeout > 0 {
		go r.evictLoop(evictInterval(cfg.IdleTimeout))
	}
	return r
}

func evictInterval(idle time.Duration) time.Duration {
	interval := idle / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func (r *Registry) evictLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				r.logger.Debug("idle client instances closed", zap.Int("count", n))
			}
		case <-r.stop:
			return
		}
	}
}

// EvictIdle closes every ready instance unused for longer than the idle
// timeout and returns how many were closed.
func (r *Registry) EvictIdle() int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*entry
	for id, e := range r.entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.inst != nil && e.lastUsed.Before(cutoff) {
			idle = append(idle, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		e.inst.Close()
		r.metrics.ClientClosed()
	}
	return len(idle)
}

// Get returns the instance for id, creating and initializing it on first
// use. Concurrent first calls for the same id share one instance.
func (r *Registry) Get(ctx context.Context, id string) (*Instance, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := r.entries[id]
	if ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		select {
		case <-e.ready:
			return e.inst, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e = &entry{ready: make(chan struct{}), lastUsed: r.now()}
	r.entries[id] = e
	r.mu.Unlock()

	e.inst, e.err = r.open(ctx, id)
	close(e.ready)

	if e.err != nil {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		return nil, e.err
	}
	r.metrics.ClientOpened()
	return e.inst, nil
}

func (r *Registry) open(ctx context.Context, id string) (*Instance, error) {
	rc, err := r.factory.NewClient(ctx, id)
	if err != nil {
		r.logger.Error("failed to create remote client", zap.String("client_id", id), zap.Error(err))
		return nil, err
	}

	logger := r.logger.With(zap.String("client_id", id))
	tables := observability.TraceTables(rc.Tables, r.tracer, r.metrics)
	storage := observability.TraceStorage(rc.Storage, r.tracer, r.metrics)

	store := session.NewStore(rc.Auth, tables, r.cfg.PublicURL, logger)
	if err := store.Init(ctx); err != nil {
		logger.Warn("starting signed out", zap.Error(err))
	}

	inst := &Instance{
		ID:         id,
		Remote:     rc,
		Store:      store,
		Categories: category.NewHook(tables, store, r.tracer, r.metrics, logger),
		Memos:      memo.NewHook(tables, storage, store, r.cfg.Memo, r.tracer, r.metrics, logger),
	}
	if err := inst.Categories.Mount(ctx); err != nil {
		logger.Warn("initial category fetch failed", zap.Error(err))
	}
	if err := inst.Memos.Mount(ctx); err != nil {
		logger.Warn("initial memo fetch failed", zap.Error(err))
	}
	logger.Debug("client instance opened", zap.Bool("signed_in", store.User() != nil))
	return inst, nil
}

// Len reports how many instances are open.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close tears down every instance. Later calls to Get fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.stop)
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for id, e := range entries {
		<-e.ready
		if e.inst == nil {
			continue
		}
		e.inst.Close()
		r.metrics.ClientClosed()
		r.logger.Debug("client instance closed", zap.String("client_id", id))
	}
}
