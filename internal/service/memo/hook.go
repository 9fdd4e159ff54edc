// Package memo keeps the signed-in user's memos, optionally narrowed to one
// category, and manages their images in object storage.
package memo

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

const hookName = "memo"

// DefaultBucket is used when no bucket is configured.
const DefaultBucket = "memo-images"

// UserSource reports the current user and its changes.
type UserSource interface {
	User() *domain.User
	OnUserChange(fn func(*domain.User)) func()
}

// Config controls image handling.
type Config struct {
	Bucket       string
	CacheControl string
	// RemoveReplacedImages deletes the previous object after an update
	// stored a new image.
	RemoveReplacedImages bool
}

// Input carries the fields of an add or update.
type Input struct {
	Title      string
	Content    string
	CategoryID string
	Image      *domain.ImageFile
}

// State is a snapshot of the hook.
type State struct {
	Memos      []domain.Memo
	CategoryID string
	Loading    bool
	Error      string
}

// Hook is the memo data hook of one client instance.
type Hook struct {
	tables  remote.Tables
	storage remote.ObjectStore
	users   UserSource
	cfg     Config
	tracer  trace.Tracer
	metrics *observability.Collector
	logger  *zap.Logger

	mu          sync.Mutex
	memos       []domain.Memo
	categoryID  string
	loading     bool
	errMsg      string
	generation  uint64
	mounted     bool
	baseCtx     context.Context
	unsubscribe func()
}

// NewHook creates an unmounted hook in the loading state.
func NewHook(tables remote.Tables, storage remote.ObjectStore, users UserSource, cfg Config, tracer trace.Tracer, metrics *observability.Collector, logger *zap.Logger) *Hook {
	if cfg.CacheControl == "" {
		cfg.CacheControl = "3600"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	return &Hook{
		tables:  tables,
		storage: storage,
		users:   users,
		cfg:     cfg,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger.Named("memo"),
		loading: true,
	}
}

// Mount subscribes to user changes and loads the memos of the current user,
// if any.
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
		Memos:      slices.Clone(h.memos),
		CategoryID: h.categoryID,
		Loading:    h.loading,
		Error:      h.errMsg,
	}
}

// SetCategory changes the category filter and refetches when it differs.
// An empty id shows every memo.
func (h *Hook) SetCategory(ctx context.Context, categoryID string) ([]domain.Memo, error) {
	h.mu.Lock()
	if h.categoryID == categoryID {
		h.mu.Unlock()
		return h.State().Memos, nil
	}
	h.categoryID = categoryID
	h.generation++
	h.mu.Unlock()

	return h.Fetch(ctx)
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

func (h *Hook) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generation++
	h.memos = nil
	h.loading = false
	h.errMsg = ""
}

func (h *Hook) begin(loading bool) (*domain.User, uint64, string, error) {
	user := h.users.User()

	h.mu.Lock()
	defer h.mu.Unlock()
	if user == nil {
		if loading {
			h.loading = false
		}
		h.errMsg = appErrors.ErrNotSignedIn.DisplayMessage()
		return nil, h.generation, h.categoryID, appErrors.ErrNotSignedIn
	}
	h.errMsg = ""
	if loading {
		h.loading = true
	}
	return user, h.generation, h.categoryID, nil
}

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

// Fetch replaces the mirror with the user's memos, newest first.
func (h *Hook) Fetch(ctx context.Context) ([]domain.Memo, error) {
	user, gen, categoryID, err := h.begin(true)
	if err != nil {
		return nil, err
	}

	filters := []remote.Filter{remote.Eq("user_id", user.ID)}
	if categoryID != "" {
		filters = append(filters, remote.Eq("category_id", categoryID))
	}

	ctx, span := h.tracer.Start(ctx, "memo.Fetch", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("memo.category_id", categoryID),
	))
	var rows []domain.Memo
	err = h.tables.Select(ctx, remote.TableMemos, filters, &remote.Order{Column: "created_at"}, &rows)
	err = appErrors.Normalize(err)
	observability.EndSpan(span, err)

	h.mu.Lock()
	if h.mounted && gen == h.generation {
		h.loading = false
	}
	h.mu.Unlock()

	h.settle(gen, err, func() { h.memos = rows })
	if err != nil {
		h.logger.Error("failed to fetch memos", zap.String("user_id", user.ID), zap.Error(err))
		return nil, err
	}
	return slices.Clone(rows), nil
}

type validInput struct {
	title      string
	content    string
	categoryID string
	image      *preparedImage
}

func validate(in Input) (*validInput, error) {
	title, err := validation.MemoTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := validation.MemoContent(in.Content); err != nil {
		return nil, err
	}
	if err := validation.CategoryID(in.CategoryID); err != nil {
		return nil, err
	}
	image, err := prepareImage(in.Image)
	if err != nil {
		return nil, err
	}
	return &validInput{title: title, content: in.Content, categoryID: in.CategoryID, image: image}, nil
}

// Add creates a memo, uploading its image first, and puts it at the front
// of the mirror.
func (h *Hook) Add(ctx context.Context, in Input) (*domain.Memo, error) {
	v, err := validate(in)
	if err != nil {
		return nil, h.fail(err)
	}
	user, gen, _, err := h.begin(false)
	if err != nil {
		return nil, err
	}

	ctx, span := h.tracer.Start(ctx, "memo.Add")
	created, err := h.add(ctx, user, v)
	err = h.finish(span, "add", err)

	h.settle(gen, err, func() { h.memos = append([]domain.Memo{*created}, h.memos...) })
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (h *Hook) add(ctx context.Context, user *domain.User, v *validInput) (*domain.Memo, error) {
	if err := h.checkCategory(ctx, user.ID, v.categoryID); err != nil {
		return nil, err
	}

	row := domain.NewMemo{Title: v.title, Content: v.content, CategoryID: v.categoryID, OwnerID: user.ID}
	var uploaded string
	if v.image != nil {
		p, imageURL, err := h.upload(ctx, user.ID, v.image)
		if err != nil {
			return nil, err
		}
		uploaded = p
		row.ImageURL = &imageURL
	}

	var created domain.Memo
	if err := h.tables.Insert(ctx, remote.TableMemos, row, &created); err != nil {
		h.removeObjects(ctx, uploaded)
		return nil, err
	}
	return &created, nil
}

// checkCategory confirms the category exists and belongs to the user.
func (h *Hook) checkCategory(ctx context.Context, ownerID, categoryID string) error {
	var rows []domain.Category
	err := h.tables.Select(ctx, remote.TableCategories,
		[]remote.Filter{remote.Eq("id", categoryID), remote.Eq("user_id", ownerID)}, nil, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return appErrors.NewValidation("category_id", "Please choose one of your categories")
	}
	return nil
}

func (h *Hook) upload(ctx context.Context, ownerID string, img *preparedImage) (string, string, error) {
	p, err := newObjectPath(ownerID, img.ext)
	if err != nil {
		return "", "", appErrors.NewUnexpected(err)
	}
	err = h.storage.Upload(ctx, h.cfg.Bucket, p, img.body(), remote.UploadOptions{
		CacheControl: h.cfg.CacheControl,
		Upsert:       false,
		ContentType:  img.contentType,
	})
	if err != nil {
		return "", "", err
	}
	return p, h.storage.PublicURL(h.cfg.Bucket, p), nil
}

// Update changes a memo of the current user. A new image is uploaded before
// the row is written.
func (h *Hook) Update(ctx context.Context, id string, in Input) (*domain.Memo, error) {
	v, err := validate(in)
	if err != nil {
		return nil, h.fail(err)
	}
	user, gen, _, err := h.begin(false)
	if err != nil {
		return nil, err
	}
	previous := h.imageURL(id)

	ctx, span := h.tracer.Start(ctx, "memo.Update", trace.WithAttributes(attribute.String("memo.id", id)))
	patch := domain.MemoPatch{Title: &v.title, Content: &v.content, CategoryID: &v.categoryID}
	var uploaded string
	if v.image != nil {
		p, imageURL, uerr := h.upload(ctx, user.ID, v.image)
		if uerr != nil {
			err = h.finish(span, "update", uerr)
			h.settle(gen, err, nil)
			return nil, err
		}
		uploaded = p
		patch.ImageURL = &imageURL
	}

	var updated domain.Memo
	err = h.tables.Update(ctx, remote.TableMemos, patch, ownerScope(id, user.ID), &updated)
	if err != nil {
		h.removeObjects(ctx, uploaded)
	} else if uploaded != "" && previous != "" && h.cfg.RemoveReplacedImages {
		h.removeObjects(ctx, pathFromURL(previous))
	}
	err = h.finish(span, "update", err)

	h.settle(gen, err, func() {
		for i := range h.memos {
			if h.memos[i].ID == id {
				h.memos[i] = updated
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a memo of the current user and its image. A failed image
// removal is logged and does not stop the row from being deleted.
func (h *Hook) Delete(ctx context.Context, id string) error {
	user, gen, _, err := h.begin(false)
	if err != nil {
		return err
	}

	ctx, span := h.tracer.Start(ctx, "memo.Delete", trace.WithAttributes(attribute.String("memo.id", id)))
	if imageURL := h.imageURL(id); imageURL != "" {
		h.removeObjects(ctx, pathFromURL(imageURL))
	}

	n, err := h.tables.Delete(ctx, remote.TableMemos, ownerScope(id, user.ID))
	if err == nil && n == 0 {
		err = appErrors.NewNotFound("Memo not found")
	}
	err = h.finish(span, "delete", err)

	h.settle(gen, err, func() {
		h.memos = slices.DeleteFunc(h.memos, func(m domain.Memo) bool { return m.ID == id })
	})
	return err
}

func (h *Hook) imageURL(id string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.memos {
		if m.ID == id && m.ImageURL != nil {
			return *m.ImageURL
		}
	}
	return ""
}

// removeObjects deletes objects best-effort.
func (h *Hook) removeObjects(ctx context.Context, paths ...string) {
	paths = slices.DeleteFunc(paths, func(p string) bool { return p == "" })
	if len(paths) == 0 {
		return
	}
	if err := h.storage.Remove(ctx, h.cfg.Bucket, paths); err != nil {
		h.metrics.RecordCleanupFailure()
		h.logger.Warn("failed to remove stored images",
			zap.String("bucket", h.cfg.Bucket),
			zap.Strings("paths", paths),
			zap.Error(err))
	}
}

func (h *Hook) finish(span trace.Span, op string, err error) error {
	err = appErrors.Normalize(err)
	observability.EndSpan(span, err)
	h.metrics.RecordMutation(hookName, op, err)
	if err != nil {
		h.logger.Warn("memo "+op+" failed", zap.Error(err))
	}
	return err
}

func ownerScope(id, ownerID string) []remote.Filter {
	return []remote.Filter{remote.Eq("id", id), remote.Eq("user_id", ownerID)}
}
