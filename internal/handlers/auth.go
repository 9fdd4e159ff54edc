package handlers

import (
	"net/http"

	"memo-web/internal/guard"
	"memo-web/internal/routes"
	"memo-web/internal/validation"
	"memo-web/pkg/api"
	appErrors "memo-web/pkg/errors"
)

// Screen is the document every GET renders.
type Screen struct {
	Screen string      `json:"screen"`
	Shell  bool        `json:"shell"`
	User   any         `json:"user,omitempty"`
	Dialog *api.Dialog `json:"dialog,omitempty"`
}

func (h *Handler) screen(r *http.Request, name string) Screen {
	s := Screen{Screen: name, Shell: guard.ShellFromContext(r.Context())}
	if inst := instanceFrom(r); inst != nil {
		if u := inst.Store.User(); u != nil {
			s.User = u
		}
	}
	return s
}

// SignInPage renders the sign-in screen.
func (h *Handler) SignInPage(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.screen(r, "sign-in"))
}

// SignIn starts a session and redirects to the memo list.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var form SignInForm
	if err := bind(r, &form); err != nil {
		h.respondError(w, r, titleError, err)
		return
	}

	next, err := instanceFrom(r).Store.SignIn(r.Context(), form.Email, form.Password)
	if err != nil {
		h.respondError(w, r, titleError, err)
		return
	}
	api.Redirect(w, r, next)
}

// SignUpPage renders the sign-up screen.
func (h *Handler) SignUpPage(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.screen(r, "sign-up"))
}

// SignUp creates an account. Mismatched passwords are rejected before the
// remote service is contacted.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var form SignUpForm
	if err := bind(r, &form); err != nil {
		fields := validation.FieldErrors(err)
		if _, mismatch := fields["confirmPassword"]; mismatch && form.ConfirmPassword != "" {
			api.ErrorDialog(w, http.StatusUnprocessableEntity, api.Dialog{
				Icon:  api.IconError,
				Title: titleMismatch,
				Text:  "Please enter the same password in both fields",
			}, fields)
			return
		}
		h.respondError(w, r, titleError, err)
		return
	}

	next, err := instanceFrom(r).Store.SignUp(r.Context(), form.Email, form.Password)
	if err != nil {
		h.respondError(w, r, titleError, err)
		return
	}
	api.Redirect(w, r, next)
}

// SignupSuccess renders the post sign-up confirmation screen.
func (h *Handler) SignupSuccess(w http.ResponseWriter, r *http.Request) {
	s := h.screen(r, "signup-success")
	text := "Please check your email to confirm your account, then sign in"
	if s.User != nil {
		text = "You can start using your account right away"
	}
	s.Dialog = &api.Dialog{Icon: api.IconSuccess, Title: "Sign up successful!", Text: text}
	api.Success(w, http.StatusOK, s)
}

// SignOut ends the session and redirects to sign-in. The local session is
// cleared even when the remote call fails.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	next, err := instanceFrom(r).Store.SignOut(r.Context())
	if err != nil && !appErrors.IsNotSignedIn(err) {
		h.respondError(w, r, titleError, err)
		return
	}
	api.Redirect(w, r, next)
}

// Home sends every unknown path to the memo list.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	api.Redirect(w, r, routes.Memos)
}
