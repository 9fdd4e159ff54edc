package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"memo-web/internal/domain"
	"memo-web/internal/persistence"
	"memo-web/internal/remote"
	"memo-web/internal/remote/memory"
	"memo-web/internal/routes"
	appErrors "memo-web/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T, b *memory.Backend, clientID string) *Store {
	t.Helper()
	c, err := b.NewClient(context.Background(), clientID)
	require.NoError(t, err)
	s := NewStore(c.Auth, c.Tables, "https://memo.example.com", zap.NewNop())
	t.Cleanup(s.Close)
	return s
}

func TestStoreInit(t *testing.T) {
	ctx := context.Background()

	t.Run("Should be loading until Init completes", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		s := newStore(t, b, "c1")
		assert.True(t, s.Loading())
		assert.True(t, s.State().Loading)

		require.NoError(t, s.Init(ctx))
		assert.False(t, s.Loading())
		assert.Nil(t, s.User())
	})

	t.Run("Should restore a persisted session", func(t *testing.T) {
		storage := persistence.NewMemoryStorage(0)
		b := memory.NewBackend(storage)
		first := newStore(t, b, "c1")
		require.NoError(t, first.Init(ctx))
		_, err := first.SignUp(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		second := newStore(t, b, "c1")
		require.NoError(t, second.Init(ctx))
		require.NotNil(t, second.User())
		assert.Equal(t, "a@example.com", second.User().Email)
	})

	t.Run("Should stop loading when reading the session fails", func(t *testing.T) {
		b := memory.NewBackend(failingStorage{})
		s := newStore(t, b, "c1")

		err := s.Init(ctx)
		assert.Error(t, err)
		assert.False(t, s.Loading())
		assert.False(t, s.State().HasSession())
	})
}

type failingStorage struct{}

func (failingStorage) Load(context.Context, string) (*domain.Session, error) {
	return nil, errors.New("storage offline")
}
func (failingStorage) Save(context.Context, string, *domain.Session) error { return nil }
func (failingStorage) Delete(context.Context, string) error              { return nil }

func TestStoreSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("Should yield a session after sign-up then sign-in", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		s := newStore(t, b, "c1")
		require.NoError(t, s.Init(ctx))

		next, err := s.SignUp(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, routes.SignupSuccess, next)
		assert.Equal(t, []string{"https://memo.example.com/signup-success"}, b.Redirects())

		profiles := b.Rows(remote.TableProfiles)
		require.Len(t, profiles, 1)
		assert.Equal(t, "a@example.com", profiles[0]["email"])

		next, err = s.SignOut(ctx)
		require.NoError(t, err)
		assert.Equal(t, routes.SignIn, next)
		assert.False(t, s.State().HasSession())

		next, err = s.SignIn(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, routes.Memos, next)
		st := s.State()
		require.True(t, st.HasSession())
		assert.Equal(t, "a@example.com", st.User.Email)
	})

	t.Run("Should report bad credentials as an auth error", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		s := newStore(t, b, "c1")
		require.NoError(t, s.Init(ctx))

		_, err := s.SignIn(ctx, "nobody@example.com", "secret1")
		require.Error(t, err)
		assert.True(t, appErrors.IsAuth(err))
		assert.Equal(t, "Invalid login credentials", appErrors.DisplayMessage(err))
	})

	t.Run("Should hide transport failures behind the generic message", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		b.SetError("SignIn", errors.New("connection reset"))
		s := newStore(t, b, "c1")
		require.NoError(t, s.Init(ctx))

		_, err := s.SignIn(ctx, "a@example.com", "secret1")
		assert.Equal(t, appErrors.KindUnexpected, appErrors.KindOf(err))
		assert.Equal(t, appErrors.GenericMessage, appErrors.DisplayMessage(err))
	})

	t.Run("Should report a failed profile write distinctly", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		b.SetError("Insert:profiles", errors.New("permission denied"))
		s := newStore(t, b, "c1")
		require.NoError(t, s.Init(ctx))

		_, err := s.SignUp(ctx, "a@example.com", "secret1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProfileCreation)
		assert.Equal(t, appErrors.KindRemote, appErrors.KindOf(err))
	})

	t.Run("Should not start a session when confirmation is required", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0), memory.WithEmailConfirmation())
		s := newStore(t, b, "c1")
		require.NoError(t, s.Init(ctx))

		next, err := s.SignUp(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, routes.SignupSuccess, next)
		assert.False(t, s.State().HasSession())
		assert.Len(t, b.Rows(remote.TableProfiles), 1)
	})
}

func TestStoreSignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("Should clear local state when the remote call fails", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		s := newStore(t, b, "c1")
		require.NoError(t, s.Init(ctx))
		_, err := s.SignUp(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		b.SetError("SignOut", appErrors.NewRemote("Authentication service unavailable", nil))
		next, err := s.SignOut(ctx)
		assert.Error(t, err)
		assert.Equal(t, routes.SignIn, next)
		assert.False(t, s.State().HasSession())
	})
}

func TestOnUserChange(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend(persistence.NewMemoryStorage(0))
	s := newStore(t, b, "c1")
	require.NoError(t, s.Init(ctx))

	var seen []string
	unsubscribe := s.OnUserChange(func(u *domain.User) {
		if u == nil {
			seen = append(seen, "nil")
			return
		}
		seen = append(seen, u.Email)
	})

	_, err := s.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = s.SignOut(ctx)
	require.NoError(t, err)

	unsubscribe()
	_, err = s.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "nil"}, seen)
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("Should tell listeners once when the session runs out", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		s := newStore(t, b, "c1")
		require.NoError(t, s.Init(ctx))
		_, err := s.SignUp(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		require.NotNil(t, s.User())

		var seen []*domain.User
		s.OnUserChange(func(u *domain.User) { seen = append(seen, u) })

		later := time.Now().Add(48 * time.Hour)
		s.now = func() time.Time { return later }

		st := s.State()
		assert.False(t, st.HasSession())
		assert.Nil(t, st.User)
		assert.Nil(t, s.User())
		require.Len(t, seen, 1)
		assert.Nil(t, seen[0])
	})

	t.Run("Should notify again when the user signs back in", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		s := newStore(t, b, "c1")
		require.NoError(t, s.Init(ctx))
		_, err := s.SignUp(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		var seen []string
		s.OnUserChange(func(u *domain.User) {
			if u == nil {
				seen = append(seen, "nil")
				return
			}
			seen = append(seen, u.Email)
		})

		s.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
		assert.Nil(t, s.User())

		s.now = time.Now
		_, err = s.SignIn(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, []string{"nil", "a@example.com"}, seen)
	})
}

func TestExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should prefer expires_at", func(t *testing.T) {
		s := &domain.Session{ExpiresAt: now.Add(time.Hour)}
		assert.Equal(t, now.Add(time.Hour), Expiry(s))
		assert.True(t, Active(s, now))
		assert.False(t, Active(s, now.Add(2*time.Hour)))
	})

	t.Run("Should fall back to the token exp claim", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "u1",
			"exp": now.Add(time.Minute).Unix(),
		}).SignedString([]byte("secret"))
		require.NoError(t, err)

		s := &domain.Session{AccessToken: token}
		assert.Equal(t, now.Add(time.Minute).Unix(), Expiry(s).Unix())
		assert.False(t, Active(s, now.Add(time.Hour)))
	})

	t.Run("Should treat an opaque token as non-expiring", func(t *testing.T) {
		s := &domain.Session{AccessToken: "opaque"}
		assert.True(t, Expiry(s).IsZero())
		assert.True(t, Active(s, now))
		assert.False(t, Active(nil, now))
	})
}
