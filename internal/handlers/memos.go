package handlers

import (
	"net/http"

	"memo-web/internal/domain"
	"memo-web/internal/service/memo"
	"memo-web/pkg/api"

	"github.com/go-chi/chi/v5"
)

// MemosScreen lists memos together with the categories used to label and
// filter them.
type MemosScreen struct {
	Screen
	Memos         []domain.Memo     `json:"memos"`
	CategoryID    string            `json:"category_id,omitempty"`
	Categories    []domain.Category `json:"categories"`
	CategoryNames map[string]string `json:"category_names"`
	Loading       bool              `json:"loading"`
	Error         string            `json:"error,omitempty"`
}

func (h *Handler) memosScreen(r *http.Request, st memo.State, dialog *api.Dialog) MemosScreen {
	s := h.screen(r, "memos")
	s.Dialog = dialog

	categories := instanceFrom(r).Categories.State().Categories
	if categories == nil {
		categories = []domain.Category{}
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	if st.Memos == nil {
		st.Memos = []domain.Memo{}
	}
	return MemosScreen{
		Screen:        s,
		Memos:         st.Memos,
		CategoryID:    st.CategoryID,
		Categories:    categories,
		CategoryNames: names,
		Loading:       st.Loading,
		Error:         st.Error,
	}
}

// ListMemos renders the memo screen, narrowed by ?category= when given.
func (h *Handler) ListMemos(w http.ResponseWriter, r *http.Request) {
	hook := instanceFrom(r).Memos
	// A failed fetch is shown through the screen's error field.
	_, _ = hook.SetCategory(r.Context(), r.URL.Query().Get("category"))
	api.Success(w, http.StatusOK, h.memosScreen(r, hook.State(), nil))
}

func memoInput(r *http.Request) (memo.Input, func(), error) {
	var form MemoForm
	if err := bind(r, &form); err != nil {
		return memo.Input{}, func() {}, err
	}
	img, release, err := formImage(r)
	if err != nil {
		return memo.Input{}, release, err
	}
	return memo.Input{Title: form.Title, Content: form.Content, CategoryID: form.CategoryID, Image: img}, release, nil
}

// CreateMemo handles POST /memos.
func (h *Handler) CreateMemo(w http.ResponseWriter, r *http.Request) {
	in, release, err := memoInput(r)
	defer release()
	if err != nil {
		h.respondError(w, r, "Could not add the memo", err)
		return
	}

	hook := instanceFrom(r).Memos
	if _, err := hook.Add(r.Context(), in); err != nil {
		h.respondError(w, r, "Could not add the memo", err)
		return
	}
	api.Success(w, http.StatusCreated, h.memosScreen(r, hook.State(), successDialog("Memo added")))
}

// UpdateMemo handles PUT or POST /memos/{id}.
func (h *Handler) UpdateMemo(w http.ResponseWriter, r *http.Request) {
	in, release, err := memoInput(r)
	defer release()
	if err != nil {
		h.respondError(w, r, "Could not update the memo", err)
		return
	}

	hook := instanceFrom(r).Memos
	if _, err := hook.Update(r.Context(), chi.URLParam(r, "id"), in); err != nil {
		h.respondError(w, r, "Could not update the memo", err)
		return
	}
	api.Success(w, http.StatusOK, h.memosScreen(r, hook.State(), successDialog("Memo updated")))
}

// DeleteMemo handles DELETE /memos/{id}.
func (h *Handler) DeleteMemo(w http.ResponseWriter, r *http.Request) {
	hook := instanceFrom(r).Memos
	if err := hook.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, "Could not delete the memo", err)
		return
	}
	api.Success(w, http.StatusOK, h.memosScreen(r, hook.State(), successDialog("Memo deleted")))
}
