package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"memo-web/internal/domain"
	"memo-web/internal/persistence"
	"memo-web/internal/remote"
	appErrors "memo-web/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestClient(t *testing.T, b *Backend, id string) *remote.Client {
	t.Helper()
	c, err := b.NewClient(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("Should sign up, sign out and sign back in", func(t *testing.T) {
		b := NewBackend(persistence.NewMemoryStorage(0))
		c := newTestClient(t, b, "c1")

		var events []remote.Event
		unsubscribe := c.Auth.OnSessionChange(func(e remote.Event, _ *domain.Session) {
			events = append(events, e)
		})
		defer unsubscribe()

		res, err := c.Auth.SignUp(ctx, "a@example.com", "secret1", remote.SignUpOptions{RedirectTo: "http://app/signup-success"})
		require.NoError(t, err)
		require.NotNil(t, res.User)
		require.NotNil(t, res.Session)
		assert.Equal(t, []string{"http://app/signup-success"}, b.Redirects())

		require.NoError(t, c.Auth.SignOut(ctx))
		s, err := c.Auth.CurrentSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)

		s, err = c.Auth.SignInWithPassword(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, s.User.ID)
		assert.Equal(t, []remote.Event{remote.EventSignedIn, remote.EventSignedOut, remote.EventSignedIn}, events)
	})

	t.Run("Should reject bad credentials as auth errors", func(t *testing.T) {
		b := NewBackend(persistence.NewMemoryStorage(0))
		c := newTestClient(t, b, "c1")
		_, err := c.Auth.SignUp(ctx, "a@example.com", "secret1", remote.SignUpOptions{})
		require.NoError(t, err)

		_, err = c.Auth.SignInWithPassword(ctx, "a@example.com", "wrong")
		assert.True(t, appErrors.IsAuth(err))

		_, err = c.Auth.SignUp(ctx, "a@example.com", "secret1", remote.SignUpOptions{})
		assert.True(t, appErrors.IsAuth(err))
	})

	t.Run("Should withhold the session until confirmation", func(t *testing.T) {
		b := NewBackend(persistence.NewMemoryStorage(0), WithEmailConfirmation())
		c := newTestClient(t, b, "c1")

		res, err := c.Auth.SignUp(ctx, "a@example.com", "secret1", remote.SignUpOptions{})
		require.NoError(t, err)
		assert.NotNil(t, res.User)
		assert.Nil(t, res.Session)

		_, err = c.Auth.SignInWithPassword(ctx, "a@example.com", "secret1")
		assert.True(t, appErrors.IsAuth(err))

		b.ConfirmEmail("a@example.com")
		_, err = c.Auth.SignInWithPassword(ctx, "a@example.com", "secret1")
		assert.NoError(t, err)
	})

	t.Run("Should refresh an expired session", func(t *testing.T) {
		clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		b := NewBackend(persistence.NewMemoryStorage(0), WithClock(clk.now), WithTokenTTL(time.Minute))
		c := newTestClient(t, b, "c1")
		first, err := c.Auth.SignUp(ctx, "a@example.com", "secret1", remote.SignUpOptions{})
		require.NoError(t, err)

		var refreshed bool
		c.Auth.OnSessionChange(func(e remote.Event, _ *domain.Session) {
			refreshed = refreshed || e == remote.EventTokenRefreshed
		})

		clk.t = clk.t.Add(2 * time.Minute)
		s, err := c.Auth.CurrentSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.NotEqual(t, first.Session.RefreshToken, s.RefreshToken)
		assert.True(t, refreshed)
	})

	t.Run("Should keep clients apart", func(t *testing.T) {
		b := NewBackend(persistence.NewMemoryStorage(0))
		c1 := newTestClient(t, b, "c1")
		c2 := newTestClient(t, b, "c2")
		_, err := c1.Auth.SignUp(ctx, "a@example.com", "secret1", remote.SignUpOptions{})
		require.NoError(t, err)

		s, err := c2.Auth.CurrentSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestTables(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(persistence.NewMemoryStorage(0))
	alice := newTestClient(t, b, "alice")
	bob := newTestClient(t, b, "bob")
	ra, err := alice.Auth.SignUp(ctx, "alice@example.com", "secret1", remote.SignUpOptions{})
	require.NoError(t, err)
	rb, err := bob.Auth.SignUp(ctx, "bob@example.com", "secret1", remote.SignUpOptions{})
	require.NoError(t, err)

	t.Run("Should only show rows to their owner", func(t *testing.T) {
		var created domain.Category
		require.NoError(t, alice.Tables.Insert(ctx, remote.TableCategories,
			domain.NewCategory{Name: "Work", OwnerID: ra.User.ID}, &created))
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		var seen []domain.Category
		require.NoError(t, bob.Tables.Select(ctx, remote.TableCategories, nil, nil, &seen))
		assert.Empty(t, seen)

		n, err := bob.Tables.Delete(ctx, remote.TableCategories, []remote.Filter{remote.Eq("id", created.ID)})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should reject rows owned by someone else", func(t *testing.T) {
		err := bob.Tables.Insert(ctx, remote.TableCategories,
			domain.NewCategory{Name: "Stolen", OwnerID: ra.User.ID}, nil)
		assert.Equal(t, appErrors.KindRemote, appErrors.KindOf(err))
	})

	t.Run("Should enforce the memo category reference", func(t *testing.T) {
		err := bob.Tables.Insert(ctx, remote.TableMemos, domain.NewMemo{
			Title: "Hi", Content: "hello", CategoryID: "missing", OwnerID: rb.User.ID,
		}, nil)
		assert.Equal(t, appErrors.KindRemote, appErrors.KindOf(err))
	})

	t.Run("Should report a missed update as not found", func(t *testing.T) {
		name := "New"
		err := bob.Tables.Update(ctx, remote.TableCategories, domain.CategoryPatch{Name: &name},
			[]remote.Filter{remote.Eq("id", "nope")}, nil)
		assert.True(t, appErrors.IsNotFound(err))
	})

	t.Run("Should return configured errors and count calls", func(t *testing.T) {
		before := b.Calls("Select")
		boom := errors.New("boom")
		b.SetError("Select:memos", boom)
		defer b.ClearErrors()

		var memos []domain.Memo
		assert.ErrorIs(t, alice.Tables.Select(ctx, remote.TableMemos, nil, nil, &memos), boom)
		var cats []domain.Category
		assert.NoError(t, alice.Tables.Select(ctx, remote.TableCategories, nil, nil, &cats))
		assert.Equal(t, before+2, b.Calls("Select"))
	})
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(persistence.NewMemoryStorage(0), WithPublicURL("https://proj.supabase.co"))
	c := newTestClient(t, b, "c1")

	require.NoError(t, c.Storage.Upload(ctx, "memos", "u1/a.png", bytes.NewReader([]byte("png")),
		remote.UploadOptions{CacheControl: "3600", ContentType: "image/png"}))

	err := c.Storage.Upload(ctx, "memos", "u1/a.png", bytes.NewReader([]byte("png")), remote.UploadOptions{})
	assert.Equal(t, appErrors.KindStorage, appErrors.KindOf(err))

	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/memos/u1/a.png", c.Storage.PublicURL("memos", "u1/a.png"))

	data, contentType, ok := b.Object("memos", "u1/a.png")
	require.True(t, ok)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, c.Storage.Remove(ctx, "memos", []string{"u1/a.png", "u1/missing.png"}))
	_, _, ok = b.Object("memos", "u1/a.png")
	assert.False(t, ok)
}
