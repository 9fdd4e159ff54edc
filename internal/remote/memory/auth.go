package memory

import (
	"context"
	"fmt"

	"memo-web/internal/domain"
	"memo-web/internal/remote"
	appErrors "memo-web/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Auth is the per-client auth state. The session lives in the backend's
// session storage under the client id.
type Auth struct {
	backend   *Backend
	clientID  string
	listeners remote.Listeners
}

var _ remote.Auth = (*Auth)(nil)

// CurrentSession reads the stored session, refreshing it when the access
// token has expired. A failed refresh signs the client out.
func (a *Auth) CurrentSession(ctx context.Context) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored, err := a.backend.storage.Load(ctx, a.clientID)
	if err != nil || stored == nil {
		return nil, err
	}
	if !stored.Expired(a.backend.now()) {
		return stored, nil
	}

	b := a.backend
	b.mu.Lock()
	refreshed, err := b.refresh(ctx, stored.RefreshToken)
	b.mu.Unlock()
	if err != nil {
		if delErr := b.storage.Delete(ctx, a.clientID); delErr != nil {
			return nil, delErr
		}
		a.listeners.Emit(remote.EventSignedOut, nil)
		return nil, nil
	}
	if err := b.storage.Save(ctx, a.clientID, refreshed); err != nil {
		return nil, err
	}
	a.listeners.Emit(remote.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// OnSessionChange registers fn for session change notifications.
func (a *Auth) OnSessionChange(fn remote.SessionListener) func() {
	return a.listeners.Add(fn)
}

// SignInWithPassword checks the credentials and starts a session.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	b := a.backend
	b.mu.Lock()
	if err := b.begin(ctx, "SignIn", ""); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	acc, ok := b.accounts[email]
	if !ok || acc.password != password {
		b.mu.Unlock()
		return nil, appErrors.NewAuth("Invalid login credentials", nil)
	}
	if !acc.confirmed {
		b.mu.Unlock()
		return nil, appErrors.NewAuth("Email not confirmed", nil)
	}
	session, err := b.issue(acc.user)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := b.storage.Save(ctx, a.clientID, session); err != nil {
		return nil, err
	}
	a.listeners.Emit(remote.EventSignedIn, session)
	return session, nil
}

// SignUp creates an account. With auto-confirm on, a session is started as
// well.
func (a *Auth) SignUp(ctx context.Context, email, password string, opts remote.SignUpOptions) (*remote.SignUpResult, error) {
	b := a.backend
	b.mu.Lock()
	if err := b.begin(ctx, "SignUp", ""); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if _, exists := b.accounts[email]; exists {
		b.mu.Unlock()
		return nil, appErrors.NewAuth("User already registered", nil)
	}
	if len(password) < 6 {
		b.mu.Unlock()
		return nil, appErrors.NewAuth("Password should be at least 6 characters", nil)
	}

	acc := &account{
		user:      userRecord{ID: uuid.NewString(), Email: email},
		password:  password,
		confirmed: b.autoConfirm,
	}
	b.accounts[email] = acc
	b.redirects = append(b.redirects, opts.RedirectTo)

	result := &remote.SignUpResult{User: &domain.User{ID: acc.user.ID, Email: email}}
	if acc.confirmed {
		session, err := b.issue(acc.user)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		result.Session = session
	}
	b.mu.Unlock()

	if result.Session != nil {
		if err := b.storage.Save(ctx, a.clientID, result.Session); err != nil {
			return nil, err
		}
		a.listeners.Emit(remote.EventSignedIn, result.Session)
	}
	return result, nil
}

// SignOut revokes the refresh token and forgets the stored session.
func (a *Auth) SignOut(ctx context.Context) error {
	b := a.backend
	b.mu.Lock()
	if err := b.begin(ctx, "SignOut", ""); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	stored, err := b.storage.Load(ctx, a.clientID)
	if err != nil {
		return err
	}
	if stored != nil {
		b.mu.Lock()
		delete(b.refreshTokens, stored.RefreshToken)
		b.mu.Unlock()
	}
	if err := b.storage.Delete(ctx, a.clientID); err != nil {
		return err
	}
	a.listeners.Emit(remote.EventSignedOut, nil)
	return nil
}

// issue mints a session for u. The caller must hold b.mu.
func (b *Backend) issue(u userRecord) (*domain.Session, error) {
	expiresAt := b.now().Add(b.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"role":  "authenticated",
		"exp":   expiresAt.Unix(),
	})
	signed, err := token.SignedString(b.jwtSecret)
	if err != nil {
		return nil, appErrors.NewUnexpected(fmt.Errorf("sign access token: %w", err))
	}

	refresh := uuid.NewString()
	b.refreshTokens[refresh] = u.ID
	return &domain.Session{
		AccessToken:  signed,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         domain.User{ID: u.ID, Email: u.Email},
	}, nil
}

// refresh exchanges a refresh token for a new session. Refresh tokens are
// single use. The caller must hold b.mu.
func (b *Backend) refresh(ctx context.Context, token string) (*domain.Session, error) {
	if err := b.begin(ctx, "RefreshToken", ""); err != nil {
		return nil, err
	}
	userID, ok := b.refreshTokens[token]
	if !ok {
		return nil, appErrors.NewAuth("Invalid Refresh Token", nil)
	}
	delete(b.refreshTokens, token)
	for _, acc := range b.accounts {
		if acc.user.ID == userID {
			return b.issue(acc.user)
		}
	}
	return nil, appErrors.NewAuth("User not found", nil)
}

// userID returns the id of the signed-in user of this client, or "".
func (a *Auth) userID(ctx context.Context) string {
	s, err := a.backend.storage.Load(ctx, a.clientID)
	if err != nil || s == nil || s.Expired(a.backend.now()) {
		return ""
	}
	return s.User.ID
}
