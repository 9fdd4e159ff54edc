package middleware

import (
	"net/http"

	"memo-web/pkg/api"
	appErrors "memo-web/pkg/errors"

	"go.uber.org/zap"
)

// Recovery turns a panic into a generic error dialog and logs it with its
// stack.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				// Nothing can be sent once the body has started.
				if w.Header().Get("Content-Type") == "" {
					api.ErrorDialog(w, http.StatusInternalServerError, api.Dialog{
						Icon:  api.IconError,
						Title: "Error",
						Text:  appErrors.GenericMessage,
					}, nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
