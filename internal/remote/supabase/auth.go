package supabase

import (
	"context"
	"net/http"
	"sync"
	"time"

	"memo-web/internal/domain"
	"memo-web/internal/observability"
	"memo-web/internal/persistence"
	"memo-web/internal/remote"
	appErrors "memo-web/pkg/errors"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// Auth is the GoTrue side of one client instance. It persists the session
// under the client id and keeps it fresh with a refresh timer.
type Auth struct {
	conn      *conn
	clientID  string
	sessions  persistence.SessionStorage
	breaker   *Breaker
	metrics   *observability.Collector
	logger    *zap.Logger
	listeners remote.Listeners
	timeout   time.Duration
	margin    time.Duration
	now       func() time.Time

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

var _ remote.Auth = (*Auth)(nil)

// CurrentSession returns the persisted session, refreshing it first when
// the access token is about to expire.
func (a *Auth) CurrentSession(ctx context.Context) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.NewUnexpected(err)
	}
	stored, err := a.sessions.Load(ctx, a.clientID)
	if err != nil || stored == nil {
		return nil, err
	}

	if !a.dueForRefresh(stored) {
		a.conn.applyToken(stored.AccessToken)
		a.schedule(stored)
		return stored, nil
	}

	refreshed, err := a.refresh(ctx, stored.RefreshToken)
	if err != nil {
		if appErrors.IsAuth(err) {
			a.logger.Info("stored session could not be refreshed", zap.Error(err))
			a.clearLocal(ctx)
			a.listeners.Emit(remote.EventSignedOut, nil)
			return nil, nil
		}
		return nil, err
	}
	a.listeners.Emit(remote.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// OnSessionChange registers fn for session change notifications.
func (a *Auth) OnSessionChange(fn remote.SessionListener) func() {
	return a.listeners.Add(fn)
}

// SignInWithPassword exchanges credentials for a session.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.NewUnexpected(err)
	}

	var token *types.TokenResponse
	err := a.call("sign_in", func(sb *supa.Client) error {
		var err error
		token, err = sb.Auth.SignInWithEmailPassword(email, password)
		return mapAuthError(err)
	})
	if err != nil {
		return nil, err
	}

	session := a.toDomain(token.Session)
	if err := a.start(ctx, session); err != nil {
		return nil, err
	}
	a.listeners.Emit(remote.EventSignedIn, session)
	return session, nil
}

// SignUp creates an account. The confirmation link sends the user to
// opts.RedirectTo.
func (a *Auth) SignUp(ctx context.Context, email, password string, opts remote.SignUpOptions) (*remote.SignUpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.NewUnexpected(err)
	}

	var resp *types.SignupResponse
	err := a.call("sign_up", func(sb *supa.Client) error {
		client := sb.Auth.WithClient(http.Client{
			Timeout:   a.timeout,
			Transport: &redirectTransport{redirectTo: opts.RedirectTo},
		})
		var err error
		resp, err = client.Signup(types.SignupRequest{Email: email, Password: password})
		return mapAuthError(err)
	})
	if err != nil {
		return nil, err
	}

	result := &remote.SignUpResult{}
	if resp.User.ID != uuid.Nil {
		result.User = &domain.User{ID: resp.User.ID.String(), Email: resp.User.Email}
	}
	if resp.Session.AccessToken != "" {
		result.Session = a.toDomain(resp.Session)
		if err := a.start(ctx, result.Session); err != nil {
			return nil, err
		}
		a.listeners.Emit(remote.EventSignedIn, result.Session)
	}
	return result, nil
}

// SignOut revokes the session remotely. Local state is cleared even when
// the remote call fails.
func (a *Auth) SignOut(ctx context.Context) error {
	err := a.call("sign_out", func(sb *supa.Client) error {
		return mapAuthError(sb.Auth.Logout())
	})
	a.clearLocal(ctx)
	a.listeners.Emit(remote.EventSignedOut, nil)
	return err
}

// Close stops the refresh timer. The persisted session is kept.
func (a *Auth) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Auth) call(op string, fn func(sb *supa.Client) error) error {
	started := time.Now()
	err := a.breaker.Do(func() error {
		return a.conn.do(fn)
	})
	a.metrics.RecordRemote("auth", op, time.Since(started), err)
	return err
}

// start applies, persists and schedules a new session.
func (a *Auth) start(ctx context.Context, session *domain.Session) error {
	a.conn.applyToken(session.AccessToken)
	if err := a.sessions.Save(ctx, a.clientID, session); err != nil {
		return err
	}
	a.schedule(session)
	return nil
}

func (a *Auth) refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	var token *types.TokenResponse
	err := a.call("refresh", func(sb *supa.Client) error {
		var err error
		token, err = sb.Auth.RefreshToken(refreshToken)
		return mapAuthError(err)
	})
	if err != nil {
		return nil, err
	}
	session := a.toDomain(token.Session)
	if err := a.start(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (a *Auth) clearLocal(ctx context.Context) {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	a.conn.applyToken("")
	if err := a.sessions.Delete(ctx, a.clientID); err != nil {
		a.logger.Error("failed to delete persisted session", zap.Error(err))
	}
}

func (a *Auth) dueForRefresh(s *domain.Session) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !a.now().Before(s.ExpiresAt.Add(-a.margin))
}

// schedule arms the refresh timer for s, replacing any earlier one.
func (a *Auth) schedule(s *domain.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || s.ExpiresAt.IsZero() {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}

	wait := s.ExpiresAt.Add(-a.margin).Sub(a.now())
	if wait < 0 {
		wait = 0
	}
	refreshToken := s.RefreshToken
	a.timer = time.AfterFunc(wait, func() { a.onTimer(refreshToken) })
}

func (a *Auth) onTimer(refreshToken string) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	session, err := a.refresh(ctx, refreshToken)
	if err != nil {
		a.logger.Warn("token refresh failed", zap.Error(err))
		if appErrors.IsAuth(err) {
			a.clearLocal(ctx)
			a.listeners.Emit(remote.EventSignedOut, nil)
		}
		return
	}
	a.listeners.Emit(remote.EventTokenRefreshed, session)
}

func (a *Auth) toDomain(s types.Session) *domain.Session {
	out := &domain.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		User:         domain.User{ID: s.User.ID.String(), Email: s.User.Email},
	}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		out.ExpiresAt = a.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return out
}

// redirectTransport adds the confirmation redirect to sign-up requests.
type redirectTransport struct {
	base       http.RoundTripper
	redirectTo string
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.redirectTo == "" {
		return base.RoundTrip(req)
	}

	r := req.Clone(req.Context())
	q := r.URL.Query()
	q.Set("redirect_to", t.redirectTo)
	r.URL.RawQuery = q.Encode()
	return base.RoundTrip(r)
}
