// Package guard decides, for every navigation, whether to render the
// requested screen, show a loading placeholder or send the user to sign in.
package guard

import (
	"net/http"

	"memo-web/internal/routes"
	"memo-web/pkg/api"
)

// Action is what the router should do with a navigation.
type Action int

const (
	Render Action = iota
	Redirect
	Placeholder
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Placeholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// State is the part of the session state the guard looks at.
type State struct {
	HasSession bool
	Loading    bool
}

// Decision is the outcome of Decide. Shell is true when the side navigation
// should wrap the content. Location is set for redirects.
type Decision struct {
	Action   Action
	Shell    bool
	Location string
}

// Decide is a pure function of the session state and whether the route
// requires a signed-in user.
func Decide(state State, requiredAuth bool) Decision {
	switch {
	case state.Loading:
		return Decision{Action: Placeholder}
	case requiredAuth && !state.HasSession:
		return Decision{Action: Redirect, Location: routes.SignIn}
	default:
		return Decision{Action: Render, Shell: state.HasSession}
	}
}

// StateFunc reads the guard state for a request.
type StateFunc func(r *http.Request) (State, error)

type shellKey struct{}

// Middleware applies Decide to every request it wraps. Failures to read the
// state are treated as signed out.
func Middleware(stateFor StateFunc, requiredAuth bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, err := stateFor(r)
			if err != nil {
				state = State{}
			}

			d := Decide(state, requiredAuth)
			switch d.Action {
			case Placeholder:
				api.Success(w, http.StatusAccepted, map[string]string{"screen": "loading"})
			case Redirect:
				api.Redirect(w, r, d.Location)
			default:
				next.ServeHTTP(w, r.WithContext(withShell(r.Context(), d.Shell)))
			}
		})
	}
}
