package handlers

import (
	"net/http"

	"memo-web/internal/validation"
	"memo-web/pkg/api"
	appErrors "memo-web/pkg/errors"

	"go.uber.org/zap"
)

// Dialog titles.
const (
	titleError    = "Error"
	titleSuccess  = "Success"
	titleMismatch = "Passwords do not match"
)

func successDialog(text string) *api.Dialog {
	return &api.Dialog{Icon: api.IconSuccess, Title: titleSuccess, Text: text}
}

// respondError renders err as an error dialog with the status of its kind.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, title string, err error) {
	c := appErrors.Classify(err)
	status := c.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(c.Kind)),
			zap.Error(err))
	}
	api.ErrorDialog(w, status, api.Dialog{
		Icon:  api.IconError,
		Title: title,
		Text:  c.DisplayMessage(),
	}, validation.FieldErrors(err))
}
