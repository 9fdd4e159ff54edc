package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	appErrors "memo-web/pkg/errors"

	storage_go "github.com/supabase-community/storage-go"
)

var (
	// gotrue-go reports failures as "response status code 400: {...}". The
	// body may span lines.
	authStatusPattern = regexp.MustCompile(`(?s)^response status code (\d{3})(?::\s*(.*))?$`)
	// postgrest-go reports failures as "(PGRST116) message".
	restErrorPattern = regexp.MustCompile(`^\(([^)]*)\)\s*(.*)$`)
)

type authErrorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b authErrorBody) text() string {
	for _, s := range []string{b.Msg, b.ErrorDescription, b.Message, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// mapAuthError turns a gotrue failure into an application error. Client
// errors are auth failures with the service's own message.
func mapAuthError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	m := authStatusPattern.FindStringSubmatch(strings.TrimSpace(err.Error()))
	if m == nil {
		return appErrors.NewUnexpected(err)
	}
	status, _ := strconv.Atoi(m[1])

	var body authErrorBody
	message := ""
	if m[2] != "" && json.Unmarshal([]byte(strings.TrimSpace(m[2])), &body) == nil {
		message = body.text()
	}

	switch {
	case status >= 400 && status < 500:
		if message == "" {
			message = "Authentication failed"
		}
		return appErrors.NewAuth(message, err)
	case status >= 500:
		return appErrors.NewRemote("Authentication service unavailable", err)
	default:
		return appErrors.NewUnexpected(err)
	}
}

// mapRestError turns a postgrest failure into an application error.
func mapRestError(table string, err error) error {
	if err == nil {
		return nil
	}
	m := restErrorPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return appErrors.NewUnexpected(fmt.Errorf("%s: %w", table, err))
	}

	code, message := m[1], strings.TrimSpace(m[2])
	switch {
	case code == "PGRST116":
		return appErrors.NewNotFound("No matching row")
	case code == "PGRST301" || code == "PGRST303":
		return appErrors.NewAuth("Your session has expired, please sign in again", err)
	case message == "":
		return appErrors.NewRemote(fmt.Sprintf("Request to %s failed", table), err)
	default:
		return appErrors.NewRemote(message, err)
	}
}

// mapStorageError turns a storage failure into an application error.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	var se *storage_go.StorageError
	if errors.As(err, &se) {
		message := se.Message
		if message == "" {
			message = "Storage request failed"
		}
		return appErrors.NewStorage(message, err)
	}
	return appErrors.NewUnexpected(err)
}
