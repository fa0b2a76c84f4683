package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
	"golang.org/x/crypto/blake2b"
)

// DefaultRefreshLeeway is how long before expiry a cached token is replaced.
const DefaultRefreshLeeway = 30 * time.Second

var ErrNoUserClaim = errors.New("token carries no user id")

// Source produces a fresh credential. An empty token means none is available.
type Source func(ctx context.Context) (string, error)

// StaticSource always returns token.
func StaticSource(token string) Source {
	token = strings.TrimSpace(token)
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// FileSource reads the token from path on every refresh, so an external
// process can rotate it.
func FileSource(path string) Source {
	return func(context.Context) (string, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
}

// SigningSource mints tokens locally with tm.
func SigningSource(tm *TokenManager, userID, orgID uuid.UUID) Source {
	return func(context.Context) (string, error) {
		return tm.GenerateToken(userID, orgID)
	}
}

// TokenProvider caches the credential of a Source until shortly before it
// expires.
type TokenProvider struct {
	source Source
	leeway time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

var (
	_ ports.TokenProvider = (*TokenProvider)(nil)
	_ ports.UserResolver  = (*TokenProvider)(nil)
)

// NewTokenProvider creates a caching provider around source.
func NewTokenProvider(source Source, leeway time.Duration, logger *slog.Logger) *TokenProvider {
	if logger == nil {
		logger = logging.Discard()
	}
	if leeway < 0 {
		leeway = DefaultRefreshLeeway
	}
	return &TokenProvider{
		source: source,
		leeway: leeway,
		logger: logger.With("component", "token_provider"),
		now:    time.Now,
	}
}

// GetToken returns the cached token unless it is about to expire or
// forceRefresh is set.
func (p *TokenProvider) GetToken(ctx context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !forceRefresh && p.token != "" && (p.expiry.IsZero() || p.now().Add(p.leeway).Before(p.expiry)) {
		return p.token, nil
	}

	token, err := p.source(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		p.token, p.expiry = "", time.Time{}
		return "", nil
	}

	expiry, _ := ExpiresAt(token)
	if !expiry.IsZero() && !p.now().Before(expiry) {
		p.logger.Warn("token source returned an expired token", "fingerprint", Fingerprint(token), "expired_at", expiry)
	}
	p.token, p.expiry = token, expiry
	p.logger.Debug("token refreshed", "fingerprint", Fingerprint(token), "forced", forceRefresh)
	return token, nil
}

// ResolveUserID reads the user id out of a JWT: the user_id claim, falling
// back to sub.
func (p *TokenProvider) ResolveUserID(token string) (string, error) {
	return UserIDFromToken(token)
}

// UserIDFromToken reads the user id claim of a JWT without verifying it.
func UserIDFromToken(token string) (string, error) {
	claims, err := inspect(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoUserClaim, err)
	}
	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", ErrNoUserClaim
}

// Fingerprint returns a short, non-reversible identifier of a token for logs.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
