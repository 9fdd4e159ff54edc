// Package handlers exposes the client screens over HTTP as JSON documents.
package handlers

import (
	"context"
	"net/http"
	"time"

	"memo-web/internal/client"
	"memo-web/internal/guard"
	"memo-web/pkg/api"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Instances hands out the per-browser client state.
type Instances interface {
	Get(ctx context.Context, id string) (*client.Instance, error)
}

// CookieConfig describes the cookie that identifies a browser.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Handler serves every client screen.
type Handler struct {
	instances      Instances
	cookie         CookieConfig
	maxRequestSize int64
	logger         *zap.Logger
}

// NewHandler creates the screen handlers.
func NewHandler(instances Instances, cookie CookieConfig, maxRequestSize int64, logger *zap.Logger) *Handler {
	if cookie.Name == "" {
		cookie.Name = "memo_client"
	}
	return &Handler{
		instances:      instances,
		cookie:         cookie,
		maxRequestSize: maxRequestSize,
		logger:         logger.Named("handlers"),
	}
}

type instanceKey struct{}

// withInstance resolves the browser's client instance, issuing a cookie on
// the first visit.
func (h *Handler) withInstance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(h.cookie.Name); err == nil {
			if _, perr := uuid.Parse(c.Value); perr == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     h.cookie.Name,
				Value:    id,
				Path:     "/",
				MaxAge:   int(h.cookie.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   h.cookie.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		inst, err := h.instances.Get(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to open client instance", zap.String("client_id", id), zap.Error(err))
			api.ErrorDialog(w, http.StatusServiceUnavailable, api.Dialog{
				Icon:  api.IconError,
				Title: titleError,
				Text:  "The service is unavailable, please try again later",
			}, nil)
			return
		}
		if h.maxRequestSize > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), instanceKey{}, inst)))
	})
}

func instanceFrom(r *http.Request) *client.Instance {
	inst, _ := r.Context().Value(instanceKey{}).(*client.Instance)
	return inst
}

// guardState feeds the access guard from the instance's session store.
func (h *Handler) guardState(r *http.Request) (guard.State, error) {
	inst := instanceFrom(r)
	if inst == nil {
		return guard.State{}, nil
	}
	st := inst.Store.State()
	return guard.State{HasSession: st.HasSession(), Loading: st.Loading}, nil
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}
