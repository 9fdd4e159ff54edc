// Package routes names the client routes shared by the session store, the
// access guard and the HTTP handlers.
package routes

const (
	SignIn        = "/sign-in"
	SignUp        = "/sign-up"
	SignupSuccess = "/signup-success"
	SignOut       = "/sign-out"
	Memos         = "/memos"
	Categories    = "/categories"
	Health        = "/health"
	Metrics       = "/metrics"
)
