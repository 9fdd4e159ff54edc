package session

import (
	"time"

	"memo-web/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Expiry returns when s stops being valid. The issued expires_at wins;
// otherwise the exp claim of the access token is read without verifying
// the signature, which the service already did. A zero time means unknown.
func Expiry(s *domain.Session) time.Time {
	if s == nil {
		return time.Time{}
	}
	if !s.ExpiresAt.IsZero() {
		return s.ExpiresAt
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Active reports whether s is present and not past its expiry at now.
func Active(s *domain.Session, now time.Time) bool {
	if s == nil {
		return false
	}
	exp := Expiry(s)
	return exp.IsZero() || now.Before(exp)
}
