// Package remote defines the contract of the hosted data service: auth,
// tables and object storage. Implementations live in sub-packages.
package remote

import (
	"context"
	"io"

	"memo-web/internal/domain"
)

// Table names used by the application.
const (
	TableProfiles   = "profiles"
	TableCategories = "categories"
	TableMemos      = "memos"
)

// Event names a session change notification.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventSignedOut      Event = "SIGNED_OUT"
)

// SessionListener receives session change notifications. session is nil for
// EventSignedOut.
type SessionListener func(event Event, session *domain.Session)

// SignUpOptions are passed through to account creation.
type SignUpOptions struct {
	RedirectTo string
}

// SignUpResult holds what account creation returned. Session is nil when
// the service requires email confirmation first.
type SignUpResult struct {
	User    *domain.User
	Session *domain.Session
}

// Auth is the authentication part of the service.
type Auth interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
	OnSessionChange(fn SessionListener) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*SignUpResult, error)
	SignOut(ctx context.Context) error
}

// Filter is an equality predicate on a column.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// Order sorts a select by one column.
type Order struct {
	Column    string
	Ascending bool
}

// Tables is row access scoped by the service's own access rules.
type Tables interface {
	// Select decodes all matching rows into dest, a pointer to a slice.
	Select(ctx context.Context, table string, filters []Filter, order *Order, dest any) error
	// Insert writes row and decodes the stored row into dest.
	Insert(ctx context.Context, table string, row any, dest any) error
	// Update applies patch to matching rows and decodes the first one into
	// dest. No match is a not found error.
	Update(ctx context.Context, table string, patch any, filters []Filter, dest any) error
	// Delete removes matching rows and returns how many were removed.
	Delete(ctx context.Context, table string, filters []Filter) (int, error)
}

// UploadOptions control how an object is written.
type UploadOptions struct {
	CacheControl string
	Upsert       bool
	ContentType  string
}

// ObjectStore is the file storage part of the service.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, body io.Reader, opts UploadOptions) error
	PublicURL(bucket, path string) string
	Remove(ctx context.Context, bucket string, paths []string) error
}

// Client bundles the three capabilities of one service connection.
type Client struct {
	Auth    Auth
	Tables  Tables
	Storage ObjectStore

	closeFn func()
}

// NewClient assembles a Client. closeFn may be nil.
func NewClient(auth Auth, tables Tables, storage ObjectStore, closeFn func()) *Client {
	return &Client{Auth: auth, Tables: tables, Storage: storage, closeFn: closeFn}
}

// Close releases background resources such as a token refresh timer.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Factory creates one Client per client instance.
type Factory interface {
	NewClient(ctx context.Context, clientID string) (*Client, error)
}
