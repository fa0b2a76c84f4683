package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_UsesConfiguredTTL(t *testing.T) {
	ttl := 2 * time.Hour
	tm := NewTokenManager("test-secret", ttl)

	userID := uuid.New()
	orgID := uuid.New()

	start := time.Now()

	token, err := tm.GenerateToken(userID, orgID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	expectedExpiry := start.Add(ttl)
	assert.WithinDuration(t, expectedExpiry, claims.ExpiresAt.Time, 2*time.Second)

	exp, ok := ExpiresAt(token)
	require.True(t, ok)
	assert.WithinDuration(t, expectedExpiry, exp, 2*time.Second)
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	token, err := NewTokenManager("one", time.Hour).GenerateToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestUserIDFromToken(t *testing.T) {
	t.Run("user_id claim", func(t *testing.T) {
		userID := uuid.New()
		token, err := NewTokenManager("s", time.Hour).GenerateToken(userID, uuid.New())
		require.NoError(t, err)

		got, err := UserIDFromToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), got)
	})

	t.Run("falls back to sub", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "agent-7"}).
			SignedString([]byte("s"))
		require.NoError(t, err)

		got, err := UserIDFromToken(token)
		require.NoError(t, err)
		assert.Equal(t, "agent-7", got)
	})

	t.Run("opaque token", func(t *testing.T) {
		_, err := UserIDFromToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrNoUserClaim)

		_, ok := ExpiresAt("not-a-jwt")
		assert.False(t, ok)
	})
}

func TestTokenProvider_GetToken(t *testing.T) {
	ctx := context.Background()

	t.Run("caches until close to expiry", func(t *testing.T) {
		tm := NewTokenManager("s", time.Minute)
		calls := 0
		source := func(context.Context) (string, error) {
			calls++
			return tm.GenerateToken(uuid.New(), uuid.New())
		}

		p := NewTokenProvider(source, 10*time.Second, nil)
		now := time.Now()
		p.now = func() time.Time { return now }

		first, err := p.GetToken(ctx, false)
		require.NoError(t, err)
		second, err := p.GetToken(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, calls)

		now = now.Add(55 * time.Second)
		_, err = p.GetToken(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("force refresh bypasses the cache", func(t *testing.T) {
		calls := 0
		source := func(context.Context) (string, error) {
			calls++
			return "opaque", nil
		}
		p := NewTokenProvider(source, DefaultRefreshLeeway, nil)

		_, _ = p.GetToken(ctx, false)
		_, _ = p.GetToken(ctx, false)
		_, _ = p.GetToken(ctx, true)

		assert.Equal(t, 2, calls)
	})

	t.Run("empty and failing sources", func(t *testing.T) {
		empty := NewTokenProvider(StaticSource("  "), 0, nil)
		token, err := empty.GetToken(ctx, false)
		require.NoError(t, err)
		assert.Empty(t, token)

		boom := errors.New("refresh endpoint down")
		failing := NewTokenProvider(func(context.Context) (string, error) { return "", boom }, 0, nil)
		_, err = failing.GetToken(ctx, false)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("file source picks up rotation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))

		p := NewTokenProvider(FileSource(path), 0, nil)
		token, err := p.GetToken(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "first", token)

		require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
		token, err = p.GetToken(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, "second", token)
	})
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))
	assert.Len(t, Fingerprint("abc"), 12)
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
}
