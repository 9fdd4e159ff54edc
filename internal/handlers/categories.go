package handlers

import (
	"net/http"

	"memo-web/internal/domain"
	"memo-web/internal/service/category"
	"memo-web/pkg/api"

	"github.com/go-chi/chi/v5"
)

// CategoriesScreen lists the user's categories.
type CategoriesScreen struct {
	Screen
	Categories []domain.Category `json:"categories"`
	Loading    bool              `json:"loading"`
	Error      string            `json:"error,omitempty"`
}

func (h *Handler) categoriesScreen(r *http.Request, st category.State, dialog *api.Dialog) CategoriesScreen {
	s := h.screen(r, "categories")
	s.Dialog = dialog
	if st.Categories == nil {
		st.Categories = []domain.Category{}
	}
	return CategoriesScreen{Screen: s, Categories: st.Categories, Loading: st.Loading, Error: st.Error}
}

// ListCategories renders the category screen.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	st := instanceFrom(r).Categories.State()
	api.Success(w, http.StatusOK, h.categoriesScreen(r, st, nil))
}

// CreateCategory handles POST /categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var form CategoryForm
	if err := bind(r, &form); err != nil {
		h.respondError(w, r, "Could not add the category", err)
		return
	}

	hook := instanceFrom(r).Categories
	if _, err := hook.Add(r.Context(), form.Name); err != nil {
		h.respondError(w, r, "Could not add the category", err)
		return
	}
	api.Success(w, http.StatusCreated, h.categoriesScreen(r, hook.State(), successDialog("Category added")))
}

// UpdateCategory handles PUT /categories/{id}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var form CategoryForm
	if err := bind(r, &form); err != nil {
		h.respondError(w, r, "Could not update the category", err)
		return
	}

	hook := instanceFrom(r).Categories
	if _, err := hook.Update(r.Context(), chi.URLParam(r, "id"), form.Name); err != nil {
		h.respondError(w, r, "Could not update the category", err)
		return
	}
	api.Success(w, http.StatusOK, h.categoriesScreen(r, hook.State(), successDialog("Category updated")))
}

// DeleteCategory handles DELETE /categories/{id}. Memos filed under the
// category keep their category id.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	hook := instanceFrom(r).Categories
	if err := hook.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, "Could not delete the category", err)
		return
	}
	api.Success(w, http.StatusOK, h.categoriesScreen(r, hook.State(), successDialog("Category deleted")))
}
