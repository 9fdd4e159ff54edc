// Package supabase adapts the hosted Supabase project (GoTrue auth,
// PostgREST tables and Storage) to the remote contract.
package supabase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"memo-web/internal/observability"
	"memo-web/internal/persistence"
	"memo-web/internal/remote"

	supa "github.com/supabase-community/supabase-go"
	"github.com/supabase-community/gotrue-go/types"
	"go.uber.org/zap"
)

// Config holds the connection settings of the Supabase project.
type Config struct {
	URL            string
	AnonKey        string
	RequestTimeout time.Duration
	// RefreshMargin is how long before expiry the access token is
	// refreshed.
	RefreshMargin time.Duration
}

// Factory creates one Supabase connection per client instance. The
// circuit breaker is shared.
type Factory struct {
	config   Config
	sessions persistence.SessionStorage
	breaker  *Breaker
	metrics  *observability.Collector
	logger   *zap.Logger
}

var _ remote.Factory = (*Factory)(nil)

// NewFactory creates a client factory.
func NewFactory(config Config, sessions persistence.SessionStorage, breaker *Breaker, metrics *observability.Collector, logger *zap.Logger) *Factory {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.RefreshMargin == 0 {
		config.RefreshMargin = time.Minute
	}
	return &Factory{
		config:   config,
		sessions: sessions,
		breaker:  breaker,
		metrics:  metrics,
		logger:   logger.Named("supabase"),
	}
}

// NewClient implements remote.Factory.
func (f *Factory) NewClient(ctx context.Context, clientID string) (*remote.Client, error) {
	sb, err := supa.NewClient(f.config.URL, f.config.AnonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create supabase client: %w", err)
	}

	c := &conn{sb: sb, anonKey: f.config.AnonKey}
	auth := &Auth{
		conn:      c,
		clientID:  clientID,
		sessions:  f.sessions,
		breaker:   f.breaker,
		metrics:   f.metrics,
		logger:    f.logger.With(zap.String("client_id", clientID)),
		timeout:   f.config.RequestTimeout,
		margin:    f.config.RefreshMargin,
		now:       time.Now,
	}
	tables := &Tables{conn: c, breaker: f.breaker}
	storage := &Storage{conn: c, breaker: f.breaker}

	return remote.NewClient(auth, tables, storage, auth.Close), nil
}

// conn serializes access to one supabase client. Applying a token mutates
// the SDK's shared header maps, so every call holds the lock.
type conn struct {
	mu      sync.Mutex
	sb      *supa.Client
	anonKey string
	token   string
}

func (c *conn) do(fn func(sb *supa.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.sb)
}

// applyToken points every sub-client at token. An empty token reverts to
// the anonymous key.
func (c *conn) applyToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyTokenLocked(token)
}

func (c *conn) applyTokenLocked(token string) {
	if token == "" {
		token = c.anonKey
	}
	if c.token == token {
		return
	}
	c.sb.UpdateAuthSession(types.Session{AccessToken: token})
	c.token = token
}

// resetStorageLocked rebuilds the storage sub-client. Upload options are
// kept on its transport and would leak into later requests.
func (c *conn) resetStorageLocked() {
	token := c.token
	c.token = ""
	if token == "" {
		token = c.anonKey
	}
	c.applyTokenLocked(token)
}
