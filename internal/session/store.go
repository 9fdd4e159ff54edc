// Package session holds the auth state of one client instance and exposes
// sign-in, sign-up and sign-out.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"memo-web/internal/domain"
	"memo-web/internal/remote"
	"memo-web/internal/routes"
	appErrors "memo-web/pkg/errors"

	"go.uber.org/zap"
)

// ErrProfileCreation marks a sign-up whose account was created but whose
// profile row could not be written.
var ErrProfileCreation = errors.New("profile creation failed")

// State is a snapshot of the store.
type State struct {
	Session *domain.Session
	User    *domain.User
	Loading bool
}

// HasSession reports whether the snapshot carries a usable session.
func (s State) HasSession() bool {
	return s.Session != nil
}

// Store is the auth state of one client instance. It starts loading and
// stops once Init has run.
type Store struct {
	auth      remote.Auth
	tables    remote.Tables
	publicURL string
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.RWMutex
	session     *domain.Session
	loading     bool
	nextID      int
	listeners   map[int]func(*domain.User)
	unsubscribe func()
}

// NewStore creates a store in the loading state. publicURL is the
// externally visible base URL used for the sign-up confirmation redirect.
func NewStore(auth remote.Auth, tables remote.Tables, publicURL string, logger *zap.Logger) *Store {
	return &Store{
		auth:      auth,
		tables:    tables,
		publicURL: publicURL,
		logger:    logger.Named("session"),
		now:       time.Now,
		loading:   true,
		listeners: make(map[int]func(*domain.User)),
	}
}

// Init reads any existing session, leaves the loading state and subscribes
// to session changes. Loading is cleared even when reading fails.
func (s *Store) Init(ctx context.Context) error {
	current, err := s.auth.CurrentSession(ctx)
	if err != nil {
		s.logger.Warn("failed to read current session", zap.Error(err))
		current = nil
	}
	s.setSession(current)

	s.mu.Lock()
	s.loading = false
	if s.unsubscribe == nil {
		s.unsubscribe = s.auth.OnSessionChange(s.handleChange)
	}
	s.mu.Unlock()

	if err != nil {
		return appErrors.Classify(err)
	}
	return nil
}

// Close stops listening for session changes.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Store) handleChange(event remote.Event, session *domain.Session) {
	s.logger.Debug("session changed", zap.String("event", string(event)))
	switch event {
	case remote.EventSignedIn, remote.EventTokenRefreshed:
		s.setSession(session)
	case remote.EventSignedOut:
		s.setSession(nil)
	}
}

// State returns a snapshot. A session seen expired for the first time is
// dropped and user change listeners are told the user is gone.
func (s *Store) State() State {
	s.mu.RLock()
	st := State{Loading: s.loading}
	current := s.session
	active := Active(current, s.now())
	if active {
		sess := *current
		user := sess.User
		st.Session = &sess
		st.User = &user
	}
	s.mu.RUnlock()

	if current != nil && !active {
		s.expire(current)
	}
	return st
}

// expire clears session if it is still the current one.
func (s *Store) expire(session *domain.Session) {
	s.mu.Lock()
	if s.session != session {
		s.mu.Unlock()
		return
	}
	s.session = nil
	notify := make([]func(*domain.User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		notify = append(notify, fn)
	}
	s.mu.Unlock()

	s.logger.Info("session expired", zap.String("user_id", session.User.ID))
	for _, fn := range notify {
		fn(nil)
	}
}

// Loading reports whether Init has not completed yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// User returns the signed-in user, or nil.
func (s *Store) User() *domain.User {
	return s.State().User
}

// OnUserChange registers fn to be called whenever the user identity
// changes, including signing in and out. Token refreshes for the same user
// do not notify.
func (s *Store) OnUserChange(fn func(*domain.User)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) setSession(session *domain.Session) {
	s.mu.Lock()
	before := userID(s.session)
	if session != nil {
		copied := *session
		s.session = &copied
	} else {
		s.session = nil
	}
	after := userID(s.session)

	var notify []func(*domain.User)
	if before != after {
		for _, fn := range s.listeners {
			notify = append(notify, fn)
		}
	}
	s.mu.Unlock()

	var user *domain.User
	if session != nil {
		u := session.User
		user = &u
	}
	for _, fn := range notify {
		fn(user)
	}
}

func userID(s *domain.Session) string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// SignIn starts a session and returns the route to show next.
func (s *Store) SignIn(ctx context.Context, email, password string) (string, error) {
	session, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return "", authFailure(err)
	}
	s.setSession(session)
	s.logger.Info("signed in", zap.String("user_id", session.User.ID))
	return routes.Memos, nil
}

// SignUp creates an account, writes its profile row and returns the route
// to show next. A failed profile write is reported as ErrProfileCreation.
func (s *Store) SignUp(ctx context.Context, email, password string) (string, error) {
	res, err := s.auth.SignUp(ctx, email, password, remote.SignUpOptions{
		RedirectTo: s.publicURL + routes.SignupSuccess,
	})
	if err != nil {
		return "", authFailure(err)
	}
	if res.Session != nil {
		s.setSession(res.Session)
	}

	if res.User != nil {
		profile := domain.Profile{ID: res.User.ID, Email: res.User.Email, CreatedAt: s.now().UTC()}
		if err := s.tables.Insert(ctx, remote.TableProfiles, profile, nil); err != nil {
			s.logger.Error("failed to create profile", zap.String("user_id", res.User.ID), zap.Error(err))
			return "", appErrors.NewRemote(
				"Your account was created but your profile could not be saved",
				fmt.Errorf("%w: %w", ErrProfileCreation, err))
		}
	}
	return routes.SignupSuccess, nil
}

// SignOut ends the session and returns the route to show next. Local state
// is cleared even when the remote call fails; the failure is returned.
func (s *Store) SignOut(ctx context.Context) (string, error) {
	err := s.auth.SignOut(ctx)
	s.setSession(nil)
	if err != nil {
		s.logger.Warn("remote sign-out failed", zap.Error(err))
		return routes.SignIn, appErrors.Classify(err)
	}
	return routes.SignIn, nil
}

// authFailure keeps rejected credentials as auth errors and hides anything
// else behind the generic message.
func authFailure(err error) error {
	if appErrors.IsAuth(err) {
		return appErrors.Classify(err)
	}
	return appErrors.NewUnexpected(err)
}
