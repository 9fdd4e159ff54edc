// Package memory provides an in-process implementation of the remote data
// service. It backs the tests and the memory backend mode used for local
// development without a hosted project.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"memo-web/internal/persistence"
	"memo-web/internal/remote"

	"github.com/google/uuid"
)

const defaultTokenTTL = time.Hour

type account struct {
	user      userRecord
	password  string
	confirmed bool
}

type userRecord struct {
	ID    string
	Email string
}

type object struct {
	data        []byte
	contentType string
	cacheMaxAge string
}

// Backend is one shared service instance. Every client created from it sees
// the same users, rows and objects.
type Backend struct {
	mu sync.Mutex

	accounts      map[string]*account // email -> account
	refreshTokens map[string]string   // refresh token -> user id
	tables        map[string][]map[string]any
	objects       map[string]object // bucket/path -> object
	redirects     []string

	storage     persistence.SessionStorage
	now         func() time.Time
	tokenTTL    time.Duration
	autoConfirm bool
	publicURL   string
	jwtSecret   []byte

	// For testing error scenarios
	shouldFailOn map[string]error
	calls        map[string]int
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.tokenTTL = ttl }
}

// WithEmailConfirmation makes sign-up withhold the session until
// ConfirmEmail is called.
func WithEmailConfirmation() Option {
	return func(b *Backend) { b.autoConfirm = false }
}

// WithPublicURL sets the base of generated object URLs.
func WithPublicURL(u string) Option {
	return func(b *Backend) { b.publicURL = u }
}

// NewBackend creates an empty service. Sessions of its clients are kept in
// storage.
func NewBackend(storage persistence.SessionStorage, opts ...Option) *Backend {
	b := &Backend{
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
		tables:        make(map[string][]map[string]any),
		objects:       make(map[string]object),
		storage:       storage,
		now:           time.Now,
		tokenTTL:      defaultTokenTTL,
		autoConfirm:   true,
		publicURL:     "http://localhost:54321",
		jwtSecret:     []byte(uuid.NewString()),
		shouldFailOn:  make(map[string]error),
		calls:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewClient implements remote.Factory.
func (b *Backend) NewClient(ctx context.Context, clientID string) (*remote.Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	auth := &Auth{backend: b, clientID: clientID}
	tables := &Tables{backend: b, auth: auth}
	storage := &Storage{backend: b}
	return remote.NewClient(auth, tables, storage, nil), nil
}

// SetError configures the backend to return an error for a specific
// method. A method may be qualified with a table or bucket, as in
// "Insert:profiles", which takes precedence over the bare name.
func (b *Backend) SetError(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shouldFailOn[method] = err
}

// ClearErrors removes all configured errors.
func (b *Backend) ClearErrors() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shouldFailOn = make(map[string]error)
}

// Calls reports how many times method was invoked, failed calls included.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// TotalCalls reports the number of remote calls of any kind.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.calls {
		total += n
	}
	return total
}

// ConfirmEmail marks an account as confirmed.
func (b *Backend) ConfirmEmail(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if acc, ok := b.accounts[email]; ok {
		acc.confirmed = true
	}
}

// Redirects returns every redirect target passed to sign-up.
func (b *Backend) Redirects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.redirects...)
}

// Rows returns a copy of the raw rows of table.
func (b *Backend) Rows(table string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.tables[table]))
	for _, row := range b.tables[table] {
		out = append(out, copyRow(row))
	}
	return out
}

// Object returns the stored bytes at bucket/path.
func (b *Backend) Object(bucket, path string) ([]byte, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[bucket+"/"+path]
	return obj.data, obj.contentType, ok
}

// begin counts the call and returns the configured error, if any. The
// caller must hold b.mu.
func (b *Backend) begin(ctx context.Context, method, target string) error {
	b.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if target != "" {
		if err, ok := b.shouldFailOn[method+":"+target]; ok {
			return err
		}
	}
	if err, ok := b.shouldFailOn[method]; ok {
		return err
	}
	return nil
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
