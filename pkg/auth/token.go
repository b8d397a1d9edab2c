// Package auth holds the client-side session state and the token helpers
// shared by the HTTP client and the hub connection.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshThreshold is how long before expiry a token counts as
// expiring soon.
const DefaultRefreshThreshold = 5 * time.Minute

// timeNow is swapped out in tests.
var timeNow = time.Now

// Expiration returns the expiry claim of a bearer token. The signature is
// deliberately not verified; this layer only schedules refreshes, the server
// remains the authority on validity.
func Expiration(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// IsExpired reports whether the token's expiry has passed. A token that
// cannot be decoded or carries no expiry claim counts as expired.
func IsExpired(token string) bool {
	exp, ok := Expiration(token)
	if !ok {
		return true
	}
	return !timeNow().Before(exp)
}

// IsExpiringSoon reports whether the token expires within threshold.
// Undecodable tokens report false here; IsExpired already covers them.
func IsExpiringSoon(token string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}

	exp, ok := Expiration(token)
	if !ok {
		return false
	}
	return !timeNow().Before(exp.Add(-threshold))
}

// TimeUntilExpiration returns how long the token remains valid, zero if it
// is already expired or undecodable.
func TimeUntilExpiration(token string) time.Duration {
	exp, ok := Expiration(token)
	if !ok {
		return 0
	}

	left := exp.Sub(timeNow())
	if left < 0 {
		return 0
	}
	return left
}
