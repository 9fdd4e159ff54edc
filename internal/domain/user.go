package domain

import "time"

// User is the signed-in identity. It is derived from the session and never
// edited locally.
type User struct {
	ID    string `json:"id" dynamodbav:"id"`
	Email string `json:"email" dynamodbav:"email"`
}

// Session is the credential set issued by the auth service.
type Session struct {
	AccessToken  string    `json:"access_token" dynamodbav:"access_token"`
	RefreshToken string    `json:"refresh_token" dynamodbav:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" dynamodbav:"expires_at"`
	User         User      `json:"user" dynamodbav:"user"`
}

// Expired reports whether the access token is past its expiry at now. A
// session without a known expiry never expires locally.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Profile is the row written to the profiles table at sign-up.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
