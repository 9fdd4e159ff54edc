// Package category keeps the signed-in user's categories and mirrors every
// successful change locally.
package category

import (
	"context"
	"slices"
	"sync"

	"memo-web/internal/domain"
	"memo-web/internal/observability"
	"memo-web/internal/remote"
	"memo-web/internal/validation"
	appErrors "memo-web/pkg/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const hookName = "category"

// UserSource reports the current user and its changes.
type UserSource interface {
	User() *domain.User
	OnUserChange(fn func(*domain.User)) func()
}

// State is a snapshot of the hook.
type State struct {
	Categories []domain.Category
	Loading    bool
	Error      string
}

// Hook is the category data hook of one client instance.
type Hook struct {
	tables  remote.Tables
	users   UserSource
	tracer  trace.Tracer
	metrics *observability.Collector
	logger  *zap.Logger

	mu          sync.Mutex
	categories  []domain.Category
	loading     bool
	errMsg      string
	generation  uint64
	mounted     bool
	baseCtx     context.Context
	unsubscribe func()
}

// NewHook creates an unmounted hook in the loading state.
func NewHook(tables remote.Tables, users UserSource, tracer trace.Tracer, metrics *observability.Collector, logger *zap.Logger) *Hook {
	return &Hook{
		tables:  tables,
		users:   users,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger.Named("category"),
		loading: true,
	}
}

// Mount subscribes to user changes and loads the categories of the current
// user, if any.
func (h *Hook) Mount(ctx context.Context) error {
	h.mu.Lock()
	if h.mounted {
		h.mu.Unlock()
		return nil
	}
	h.mounted = true
	h.baseCtx = context.WithoutCancel(ctx)
	h.unsubscribe = h.users.OnUserChange(h.userChanged)
	h.mu.Unlock()

	if h.users.User() == nil {
		h.reset()
		return nil
	}
	_, err := h.Fetch(ctx)
	return err
}

// Close unmounts the hook. Calls that settle afterwards leave the state
// untouched.
func (h *Hook) Close() {
	h.mu.Lock()
	h.mounted = false
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// State returns a snapshot.
func (h *Hook) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return State{
		Categories: slices.Clone(h.categories),
		Loading:    h.loading,
		Error:      h.errMsg,
	}
}

func (h *Hook) userChanged(user *domain.User) {
	h.mu.Lock()
	if !h.mounted {
		h.mu.Unlock()
		return
	}
	ctx := h.baseCtx
	h.mu.Unlock()

	if user == nil {
		h.reset()
		return
	}
	if _, err := h.Fetch(ctx); err != nil {
		h.logger.Warn("refetch after user change failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// reset drops rows cached for a previous user.
func (h *Hook) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generation++
	h.categories = nil
	h.loading = false
	h.errMsg = ""
}

// begin clears the previous error and returns the current user and
// generation.
func (h *Hook) begin(loading bool) (*domain.User, uint64, error) {
	user := h.users.User()

	h.mu.Lock()
	defer h.mu.Unlock()
	if user == nil {
		if loading {
			h.loading = false
		}
		h.errMsg = appErrors.ErrNotSignedIn.DisplayMessage()
		return nil, h.generation, appErrors.ErrNotSignedIn
	}
	h.errMsg = ""
	if loading {
		h.loading = true
	}
	return user, h.generation, nil
}

// settle applies fn to the state unless the hook was unmounted or the user
// changed while the call was in flight.
func (h *Hook) settle(gen uint64, err error, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.mounted || gen != h.generation {
		return
	}
	if err != nil {
		h.errMsg = appErrors.DisplayMessage(err)
		return
	}
	if fn != nil {
		fn()
	}
}

func (h *Hook) fail(err error) error {
	err = appErrors.Classify(err)
	h.mu.Lock()
	h.errMsg = appErrors.DisplayMessage(err)
	h.mu.Unlock()
	return err
}

// Fetch replaces the mirror with the user's categories ordered by name.
func (h *Hook) Fetch(ctx context.Context) ([]domain.Category, error) {
	user, gen, err := h.begin(true)
	if err != nil {
		return nil, err
	}

	ctx, span := h.tracer.Start(ctx, "category.Fetch", trace.WithAttributes(attribute.String("user.id", user.ID)))
	var rows []domain.Category
	err = h.tables.Select(ctx, remote.TableCategories,
		[]remote.Filter{remote.Eq("user_id", user.ID)},
		&remote.Order{Column: "name", Ascending: true},
		&rows)
	err = appErrors.Normalize(err)
	observability.EndSpan(span, err)

	h.mu.Lock()
	if h.mounted && gen == h.generation {
		h.loading = false
	}
	h.mu.Unlock()

	h.settle(gen, err, func() { h.categories = rows })
	if err != nil {
		h.logger.Error("failed to fetch categories", zap.String("user_id", user.ID), zap.Error(err))
		return nil, err
	}
	return slices.Clone(rows), nil
}

// Add creates a category and appends it to the mirror.
func (h *Hook) Add(ctx context.Context, name string) (*domain.Category, error) {
	name, err := validation.CategoryName(name)
	if err != nil {
		return nil, h.fail(err)
	}
	user, gen, err := h.begin(false)
	if err != nil {
		return nil, err
	}

	ctx, span := h.tracer.Start(ctx, "category.Add")
	var created domain.Category
	err = h.tables.Insert(ctx, remote.TableCategories, domain.NewCategory{Name: name, OwnerID: user.ID}, &created)
	err = h.finish(span, "add", err)

	h.settle(gen, err, func() { h.categories = append(h.categories, created) })
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update renames a category of the current user.
func (h *Hook) Update(ctx context.Context, id, name string) (*domain.Category, error) {
	name, err := validation.CategoryName(name)
	if err != nil {
		return nil, h.fail(err)
	}
	user, gen, err := h.begin(false)
	if err != nil {
		return nil, err
	}

	ctx, span := h.tracer.Start(ctx, "category.Update", trace.WithAttributes(attribute.String("category.id", id)))
	var updated domain.Category
	err = h.tables.Update(ctx, remote.TableCategories, domain.CategoryPatch{Name: &name}, ownerScope(id, user.ID), &updated)
	err = h.finish(span, "update", err)

	h.settle(gen, err, func() {
		for i := range h.categories {
			if h.categories[i].ID == id {
				h.categories[i] = updated
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a category of the current user. Memos filed under it are
// left as they are. Deleting an id that matches no row is a not found
// error.
func (h *Hook) Delete(ctx context.Context, id string) error {
	user, gen, err := h.begin(false)
	if err != nil {
		return err
	}

	ctx, span := h.tracer.Start(ctx, "category.Delete", trace.WithAttributes(attribute.String("category.id", id)))
	n, err := h.tables.Delete(ctx, remote.TableCategories, ownerScope(id, user.ID))
	if err == nil && n == 0 {
		err = appErrors.NewNotFound("Category not found")
	}
	err = h.finish(span, "delete", err)

	h.settle(gen, err, func() {
		h.categories = slices.DeleteFunc(h.categories, func(c domain.Category) bool { return c.ID == id })
	})
	return err
}

func (h *Hook) finish(span trace.Span, op string, err error) error {
	err = appErrors.Normalize(err)
	observability.EndSpan(span, err)
	h.metrics.RecordMutation(hookName, op, err)
	if err != nil {
		h.logger.Warn("category "+op+" failed", zap.Error(err))
	}
	return err
}

func ownerScope(id, ownerID string) []remote.Filter {
	return []remote.Filter{remote.Eq("id", id), remote.Eq("user_id", ownerID)}
}
