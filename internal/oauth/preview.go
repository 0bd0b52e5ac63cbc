package oauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const previewLen = 50

// preview returns a log-safe prefix of a token. Short tokens are cut in half.
func preview(token string) string {
	n := previewLen
	if half := len(token) / 2; half < n {
		n = half
	}
	return token[:n] + "..."
}

// tokenInfo extracts subject and expiry from a JWT access token without
// verifying it. Opaque tokens report ok=false.
func tokenInfo(raw string) (subject string, expiry time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", time.Time{}, false
	}
	subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiry = exp.Time
	}
	return subject, expiry, true
}
