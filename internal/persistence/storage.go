// Package persistence keeps a client instance's auth session between
// requests, playing the role browser local storage plays for a single page
// app.
package persistence

import (
	"context"

	"memo-web/internal/domain"
)

// SessionStorage stores at most one session per client id.
type SessionStorage interface {
	// Load returns the stored session, or nil when there is none.
	Load(ctx context.Context, clientID string) (*domain.Session, error)
	Save(ctx context.Context, clientID string, session *domain.Session) error
	Delete(ctx context.Context, clientID string) error
}
