package credentials

import (
	"crypto/sha256"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
)

// TokenInfo is what can be read from an access token without verifying it.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired returns true if the token carries an expiry that has passed.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Inspect decodes the claims of a JWT access token without checking the signature.
// The server remains the only authority on validity; this is for display only.
// Opaque tokens return ok=false.
func Inspect(accessToken string) (TokenInfo, bool) {
	if accessToken == "" {
		return TokenInfo{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return TokenInfo{}, false
	}

	var info TokenInfo

	// Backends put the user id in either sub or user_id.
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		info.Subject = sub
	} else if id, ok := claims["user_id"]; ok {
		info.Subject = jwtString(id)
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}

	return info, true
}

// Fingerprint identifies a token in logs without revealing it.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return base58.Encode(hash[:8])
}

func jwtString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	default:
		return ""
	}
}
