package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/coocood/freecache"

	"github.com/2beens/formcoach/internal/telemetry/tracing"
	"github.com/2beens/formcoach/pkg"
)

var ErrNoClientSecret = errors.New("client secret hash not configured")

// TokenVerifier checks client tokens against the bcrypt hash of the shared
// client secret. Verified tokens are cached for ttl, as frames arrive many
// times per second and bcrypt is slow on purpose.
type TokenVerifier struct {
	secretHash string
	ttlSec     int
	cache      *freecache.Cache
}

func NewTokenVerifier(secretHash string, ttl time.Duration) *TokenVerifier {
	return &TokenVerifier{
		secretHash: secretHash,
		ttlSec:     int(ttl.Seconds()),
		cache:      freecache.NewCache(512 * 1024),
	}
}

func (v *TokenVerifier) Verify(ctx context.Context, token string) (bool, error) {
	_, span := tracing.GlobalTracer.Start(ctx, "auth.verify-token")
	defer span.End()

	if v.secretHash == "" {
		return false, ErrNoClientSecret
	}
	if token == "" {
		return false, nil
	}

	key := sha256.Sum256([]byte(token))
	if _, err := v.cache.Get(key[:]); err == nil {
		return true, nil
	}

	if !pkg.CheckPasswordHash(token, v.secretHash) {
		return false, nil
	}
	if v.ttlSec > 0 {
		// a full cache only costs another bcrypt round
		_ = v.cache.Set(key[:], []byte{1}, v.ttlSec)
	}
	return true, nil
}

// Cached reports whether token is currently in the verified cache.
func (v *TokenVerifier) Cached(token string) bool {
	key := sha256.Sum256([]byte(token))
	_, err := v.cache.Get(key[:])
	return err == nil
}
