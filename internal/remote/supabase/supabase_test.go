package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"memo-web/internal/domain"
	"memo-web/internal/persistence"
	"memo-web/internal/remote"
	appErrors "memo-web/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUserID = "5f0c7a4e-3b1d-4c5e-9a2f-1d2e3f4a5b6c"

// fakeProject answers the handful of Supabase endpoints the adapter uses.
type fakeProject struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
}

func (p *fakeProject) record(r *http.Request) string {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, r)
	p.bodies = append(p.bodies, string(body))
	return string(body)
}

func (p *fakeProject) last(path string) (*http.Request, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.requests) - 1; i >= 0; i-- {
		if p.requests[i].URL.Path == path {
			return p.requests[i], p.bodies[i]
		}
	}
	return nil, ""
}

func sessionJSON(expiresAt int64) map[string]any {
	return map[string]any{
		"access_token":  "access-token",
		"refresh_token": "refresh-token",
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    expiresAt,
		"user":          map[string]any{"id": testUserID, "email": "a@example.com"},
	}
}

func (p *fakeProject) handler(t *testing.T) http.Handler {
	expiresAt := time.Now().Add(time.Hour).Unix()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		writeJSON(w, http.StatusOK, sessionJSON(expiresAt))
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		body := p.record(r)
		if strings.Contains(body, "wrong") {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "invalid_grant", "error_description": "Invalid login credentials",
			})
			return
		}
		writeJSON(w, http.StatusOK, sessionJSON(expiresAt))
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/rest/v1/categories", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, []map[string]any{
				{"id": "c1", "name": "Work", "user_id": testUserID, "created_at": "2024-01-01T00:00:00Z"},
			})
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, []map[string]any{
				{"id": "c2", "name": "Home", "user_id": testUserID, "created_at": "2024-01-02T00:00:00Z"},
			})
		case http.MethodPatch:
			writeJSON(w, http.StatusOK, []map[string]any{})
		case http.MethodDelete:
			writeJSON(w, http.StatusOK, []map[string]any{{"id": "c1"}})
		}
	})
	mux.HandleFunc("/rest/v1/memos", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code": "23503", "message": "insert or update on table \"memos\" violates foreign key constraint",
		})
	})
	mux.HandleFunc("/storage/v1/object/", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		if strings.HasSuffix(r.URL.Path, "dup.png") {
			writeJSON(w, http.StatusBadRequest, map[string]any{"statusCode": "409", "message": "The resource already exists"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"Key": strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")})
	})
	return mux
}

func newTestClient(t *testing.T) (*fakeProject, *remote.Client, *persistence.MemoryStorage) {
	t.Helper()
	project := &fakeProject{}
	server := httptest.NewServer(project.handler(t))
	t.Cleanup(server.Close)

	sessions := persistence.NewMemoryStorage(0)
	breaker := NewBreaker(DefaultBreakerConfig("test"), zap.NewNop(), nil)
	factory := NewFactory(Config{URL: server.URL, AnonKey: "anon-key"}, sessions, breaker, nil, zap.NewNop())

	client, err := factory.NewClient(context.Background(), "client-1")
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return project, client, sessions
}

func TestAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("Should pass the redirect target on sign-up and persist the session", func(t *testing.T) {
		project, client, sessions := newTestClient(t)

		var events []remote.Event
		client.Auth.OnSessionChange(func(e remote.Event, _ *domain.Session) { events = append(events, e) })

		res, err := client.Auth.SignUp(ctx, "a@example.com", "secret1",
			remote.SignUpOptions{RedirectTo: "https://memo.example.com/signup-success"})
		require.NoError(t, err)
		require.NotNil(t, res.User)
		assert.Equal(t, testUserID, res.User.ID)
		require.NotNil(t, res.Session)

		req, body := project.last("/auth/v1/signup")
		require.NotNil(t, req)
		assert.Equal(t, "https://memo.example.com/signup-success", req.URL.Query().Get("redirect_to"))
		assert.Contains(t, body, `"email":"a@example.com"`)

		stored, err := sessions.Load(ctx, "client-1")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "access-token", stored.AccessToken)
		assert.Equal(t, []remote.Event{remote.EventSignedIn}, events)
	})

	t.Run("Should map rejected credentials to an auth error", func(t *testing.T) {
		_, client, _ := newTestClient(t)

		_, err := client.Auth.SignInWithPassword(ctx, "a@example.com", "wrong")
		require.Error(t, err)
		assert.True(t, appErrors.IsAuth(err))
		assert.Equal(t, "Invalid login credentials", appErrors.DisplayMessage(err))
	})

	t.Run("Should keep the message of a multi-line error body", func(t *testing.T) {
		err := mapAuthError(errors.New("response status code 422: {\n  \"msg\": \"Password should be at least 6 characters\"\n}\n"))
		assert.Equal(t, "Password should be at least 6 characters", appErrors.DisplayMessage(err))
	})

	t.Run("Should keep the breaker closed after repeated wrong passwords", func(t *testing.T) {
		_, client, _ := newTestClient(t)

		for i := 0; i < 10; i++ {
			_, err := client.Auth.SignInWithPassword(ctx, "a@example.com", "wrong")
			require.Error(t, err)
			assert.True(t, appErrors.IsAuth(err), err.Error())
		}

		session, err := client.Auth.SignInWithPassword(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, testUserID, session.User.ID)
	})

	t.Run("Should clear the stored session on sign-out", func(t *testing.T) {
		project, client, sessions := newTestClient(t)
		_, err := client.Auth.SignInWithPassword(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		require.NoError(t, client.Auth.SignOut(ctx))
		req, _ := project.last("/auth/v1/logout")
		require.NotNil(t, req)
		assert.Equal(t, "Bearer access-token", req.Header.Get("Authorization"))

		stored, err := sessions.Load(ctx, "client-1")
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("Should not call out with a cancelled context", func(t *testing.T) {
		project, client, _ := newTestClient(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := client.Auth.SignInWithPassword(cancelled, "a@example.com", "secret1")
		require.Error(t, err)
		req, _ := project.last("/auth/v1/token")
		assert.Nil(t, req)
	})
}

func TestTables(t *testing.T) {
	ctx := context.Background()

	t.Run("Should select with filters and order", func(t *testing.T) {
		project, client, _ := newTestClient(t)

		var categories []domain.Category
		err := client.Tables.Select(ctx, remote.TableCategories,
			[]remote.Filter{remote.Eq("user_id", testUserID)},
			&remote.Order{Column: "name", Ascending: true}, &categories)
		require.NoError(t, err)
		require.Len(t, categories, 1)
		assert.Equal(t, "Work", categories[0].Name)

		req, _ := project.last("/rest/v1/categories")
		require.NotNil(t, req)
		assert.Equal(t, "eq."+testUserID, req.URL.Query().Get("user_id"))
		assert.True(t, strings.HasPrefix(req.URL.Query().Get("order"), "name.asc"), req.URL.Query().Get("order"))
	})

	t.Run("Should decode the inserted row", func(t *testing.T) {
		_, client, _ := newTestClient(t)

		var created domain.Category
		err := client.Tables.Insert(ctx, remote.TableCategories,
			domain.NewCategory{Name: "Home", OwnerID: testUserID}, &created)
		require.NoError(t, err)
		assert.Equal(t, "c2", created.ID)
	})

	t.Run("Should report an empty update as not found", func(t *testing.T) {
		_, client, _ := newTestClient(t)
		name := "Renamed"
		err := client.Tables.Update(ctx, remote.TableCategories, domain.CategoryPatch{Name: &name},
			[]remote.Filter{remote.Eq("id", "missing")}, nil)
		assert.True(t, appErrors.IsNotFound(err))
	})

	t.Run("Should count deleted rows", func(t *testing.T) {
		_, client, _ := newTestClient(t)
		n, err := client.Tables.Delete(ctx, remote.TableCategories, []remote.Filter{remote.Eq("id", "c1")})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should surface service errors as remote errors", func(t *testing.T) {
		_, client, _ := newTestClient(t)
		err := client.Tables.Insert(ctx, remote.TableMemos, domain.NewMemo{Title: "x"}, nil)
		require.Error(t, err)
		assert.Equal(t, appErrors.KindRemote, appErrors.KindOf(err))
		assert.Contains(t, appErrors.DisplayMessage(err), "foreign key")
	})
}

func TestStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Should upload with cache and upsert headers", func(t *testing.T) {
		project, client, _ := newTestClient(t)

		err := client.Storage.Upload(ctx, "memos", testUserID+"/a.png", bytes.NewReader([]byte("png")),
			remote.UploadOptions{CacheControl: "3600", ContentType: "image/png"})
		require.NoError(t, err)

		req, body := project.last("/storage/v1/object/memos/" + testUserID + "/a.png")
		require.NotNil(t, req)
		assert.Equal(t, "3600", req.Header.Get("Cache-Control"))
		assert.Equal(t, "false", req.Header.Get("X-Upsert"))
		assert.Equal(t, "png", body)
	})

	t.Run("Should map storage failures", func(t *testing.T) {
		_, client, _ := newTestClient(t)
		err := client.Storage.Upload(ctx, "memos", "u/dup.png", bytes.NewReader(nil), remote.UploadOptions{})
		require.Error(t, err)
		assert.Equal(t, appErrors.KindStorage, appErrors.KindOf(err))
	})

	t.Run("Should build public URLs locally", func(t *testing.T) {
		_, client, _ := newTestClient(t)
		u := client.Storage.PublicURL("memos", "u1/a.png")
		assert.True(t, strings.HasSuffix(u, "/storage/v1/object/public/memos/u1/a.png"))
	})
}

func TestMapAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind appErrors.Kind
	}{
		{"client error", errors.New(`response status code 400: {"msg":"User already registered"}`), appErrors.KindAuth},
		{"client error with trailing newline", errors.New("response status code 400: {\"error\":\"invalid_grant\",\"error_description\":\"Invalid login credentials\"}\n"), appErrors.KindAuth},
		{"client error spanning lines", errors.New("response status code 422: {\n  \"msg\": \"Password should be at least 6 characters\"\n}\n"), appErrors.KindAuth},
		{"client error without body", errors.New("response status code 401"), appErrors.KindAuth},
		{"server error", errors.New("response status code 503: upstream"), appErrors.KindRemote},
		{"transport error", errors.New("dial tcp: connection refused"), appErrors.KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, appErrors.KindOf(mapAuthError(tt.err)))
		})
	}
}

func TestBreakerFailsFast(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	b := NewBreaker(cfg, zap.NewNop(), nil)

	boom := appErrors.NewRemote("down", nil)
	calls := 0
	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { calls++; return boom })
	}

	err := b.Do(func() error { calls++; return nil })
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, appErrors.KindRemote, appErrors.KindOf(err))
	assert.Equal(t, "open", b.State())
}

func TestBreakerIgnoresAuthFailures(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 1
	b := NewBreaker(cfg, zap.NewNop(), nil)

	for i := 0; i < 5; i++ {
		_ = b.Do(func() error { return appErrors.NewAuth("Invalid login credentials", nil) })
	}
	assert.Equal(t, "closed", b.State())
}
