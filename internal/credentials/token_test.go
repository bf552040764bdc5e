package credentials

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestInspect(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	t.Run("reads registered claims", func(t *testing.T) {
		token := signedToken(t, jwt.RegisteredClaims{
			Subject:   "42",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		})

		info, ok := Inspect(token)
		require.True(t, ok)
		assert.Equal(t, "42", info.Subject)
		assert.True(t, info.IssuedAt.Equal(now))
		assert.True(t, info.ExpiresAt.Equal(now.Add(5*time.Minute)))
		assert.False(t, info.Expired(now))
		assert.True(t, info.Expired(now.Add(time.Hour)))
	})

	t.Run("falls back to numeric user_id", func(t *testing.T) {
		token := signedToken(t, jwt.MapClaims{"user_id": 42, "token_type": "access"})

		info, ok := Inspect(token)
		require.True(t, ok)
		assert.Equal(t, "42", info.Subject)
		assert.True(t, info.ExpiresAt.IsZero())
		assert.False(t, info.Expired(now))
	})

	t.Run("opaque tokens are not inspectable", func(t *testing.T) {
		_, ok := Inspect("opaque-token")
		assert.False(t, ok)

		_, ok = Inspect("")
		assert.False(t, ok)
	})
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
}
