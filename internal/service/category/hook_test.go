package category

import (
	"context"
	"errors"
	"testing"
	"time"

	"memo-web/internal/domain"
	"memo-web/internal/observability"
	"memo-web/internal/persistence"
	"memo-web/internal/remote"
	"memo-web/internal/remote/memory"
	"memo-web/internal/session"
	appErrors "memo-web/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	backend *memory.Backend
	store   *session.Store
	hook    *Hook
	metrics *observability.Collector
}

func newFixture(t *testing.T, b *memory.Backend, clientID string) *fixture {
	t.Helper()
	ctx := context.Background()
	c, err := b.NewClient(ctx, clientID)
	require.NoError(t, err)

	store := session.NewStore(c.Auth, c.Tables, "http://localhost:8080", zap.NewNop())
	require.NoError(t, store.Init(ctx))
	t.Cleanup(store.Close)

	metrics := observability.NewCollector("test")
	hook := NewHook(c.Tables, store, observability.NoopTracer(), metrics, zap.NewNop())
	require.NoError(t, hook.Mount(ctx))
	t.Cleanup(hook.Close)

	return &fixture{backend: b, store: store, hook: hook, metrics: metrics}
}

func (f *fixture) signUp(t *testing.T, email string) {
	t.Helper()
	_, err := f.store.SignUp(context.Background(), email, "secret1")
	require.NoError(t, err)
}

func names(categories []domain.Category) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, c.Name)
	}
	return out
}

func TestHookFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("Should order categories by name", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")
		f.signUp(t, "a@example.com")

		for _, name := range []string{"b", "a", "c"} {
			_, err := f.hook.Add(ctx, name+"x")
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"bx", "ax", "cx"}, names(f.hook.State().Categories), "add appends without sorting")

		got, err := f.hook.Fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"ax", "bx", "cx"}, names(got))
		assert.False(t, f.hook.State().Loading)
	})

	t.Run("Should never return another user's categories", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		alice := newFixture(t, b, "alice")
		alice.signUp(t, "alice@example.com")
		_, err := alice.hook.Add(ctx, "Private")
		require.NoError(t, err)

		bob := newFixture(t, b, "bob")
		bob.signUp(t, "bob@example.com")

		got, err := bob.hook.Fetch(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Should require a signed-in user", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")

		_, err := f.hook.Fetch(ctx)
		assert.True(t, appErrors.IsNotSignedIn(err))
		st := f.hook.State()
		assert.False(t, st.Loading)
		assert.Equal(t, "You must be signed in", st.Error)
	})

	t.Run("Should reset loading and record the error when the select fails", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")
		f.signUp(t, "a@example.com")
		f.backend.SetError("Select:categories", appErrors.NewRemote("relation does not exist", nil))

		_, err := f.hook.Fetch(ctx)
		require.Error(t, err)
		st := f.hook.State()
		assert.False(t, st.Loading)
		assert.Equal(t, "relation does not exist", st.Error)
	})
}

func TestHookMutations(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round trip an added category", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")
		f.signUp(t, "a@example.com")

		created, err := f.hook.Add(ctx, "  Work  ")
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "Work", created.Name)
		assert.Equal(t, f.store.User().ID, created.OwnerID)

		got, err := f.hook.Fetch(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, created.ID, got[0].ID)
		assert.Equal(t, "Work", got[0].Name)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HookMutations.WithLabelValues("category", "add", "success")))
	})

	t.Run("Should validate the name before any remote call", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")
		f.signUp(t, "a@example.com")
		before := f.backend.TotalCalls()

		_, err := f.hook.Add(ctx, " a ")
		require.Error(t, err)
		assert.True(t, appErrors.IsValidation(err))
		assert.Equal(t, "name", appErrors.Classify(err).Field)
		assert.Equal(t, before, f.backend.TotalCalls())
		assert.Equal(t, "Category name must be at least 2 characters", f.hook.State().Error)
	})

	t.Run("Should rename in place", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")
		f.signUp(t, "a@example.com")
		first, err := f.hook.Add(ctx, "First")
		require.NoError(t, err)
		_, err = f.hook.Add(ctx, "Second")
		require.NoError(t, err)

		updated, err := f.hook.Update(ctx, first.ID, "Renamed")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, []string{"Renamed", "Second"}, names(f.hook.State().Categories))
	})

	t.Run("Should not update another user's category", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		alice := newFixture(t, b, "alice")
		alice.signUp(t, "alice@example.com")
		created, err := alice.hook.Add(ctx, "Mine")
		require.NoError(t, err)

		bob := newFixture(t, b, "bob")
		bob.signUp(t, "bob@example.com")
		_, err = bob.hook.Update(ctx, created.ID, "Stolen")
		assert.True(t, appErrors.IsNotFound(err))
		assert.Equal(t, "Mine", b.Rows(remote.TableCategories)[0]["name"])
	})

	t.Run("Should surface a second delete as not found", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")
		f.signUp(t, "a@example.com")
		created, err := f.hook.Add(ctx, "Temp")
		require.NoError(t, err)

		require.NoError(t, f.hook.Delete(ctx, created.ID))
		assert.Empty(t, f.hook.State().Categories)

		err = f.hook.Delete(ctx, created.ID)
		require.Error(t, err)
		assert.True(t, appErrors.IsNotFound(err))
		assert.Equal(t, "Category not found", f.hook.State().Error)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HookMutations.WithLabelValues("category", "delete", "error")))
	})

	t.Run("Should keep the mirror when the insert fails", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")
		f.signUp(t, "a@example.com")
		f.backend.SetError("Insert", errors.New("connection reset"))

		_, err := f.hook.Add(ctx, "Work")
		require.Error(t, err)
		assert.Equal(t, appErrors.KindUnexpected, appErrors.KindOf(err))
		st := f.hook.State()
		assert.Empty(t, st.Categories)
		assert.Equal(t, appErrors.GenericMessage, st.Error)
	})
}

func TestHookUserChange(t *testing.T) {
	ctx := context.Background()

	t.Run("Should refetch for the new user and drop the old rows", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0))
		f := newFixture(t, b, "c1")
		f.signUp(t, "a@example.com")
		_, err := f.hook.Add(ctx, "Alice's")
		require.NoError(t, err)

		_, err = f.store.SignOut(ctx)
		require.NoError(t, err)
		assert.Empty(t, f.hook.State().Categories)

		f.signUp(t, "b@example.com")
		st := f.hook.State()
		assert.Empty(t, st.Categories)
		assert.False(t, st.Loading)
		assert.Positive(t, b.Calls("Select"))

		_, err = f.store.SignIn(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, []string{"Alice's"}, names(f.hook.State().Categories))
	})

	t.Run("Should drop the rows once the session runs out", func(t *testing.T) {
		b := memory.NewBackend(persistence.NewMemoryStorage(0), memory.WithTokenTTL(300*time.Millisecond))
		f := newFixture(t, b, "c1")
		f.signUp(t, "a@example.com")
		_, err := f.hook.Add(ctx, "Work")
		require.NoError(t, err)
		require.Equal(t, []string{"Work"}, names(f.hook.State().Categories))

		assert.Eventually(t, func() bool { return f.store.User() == nil }, 5*time.Second, 20*time.Millisecond)
		assert.Empty(t, f.hook.State().Categories)
	})

	t.Run("Should ignore results after Close", func(t *testing.T) {
		f := newFixture(t, memory.NewBackend(persistence.NewMemoryStorage(0)), "c1")
		f.signUp(t, "a@example.com")
		f.hook.Close()

		_, err := f.hook.Add(ctx, "Late")
		require.NoError(t, err)
		assert.Empty(t, f.hook.State().Categories)
	})
}
