package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/taxpoint/internal/apperr"
)

// Sessions issues and resolves opaque session tokens.
type Sessions interface {
	Create(ctx context.Context, userID int64) (string, error)
	Resolve(ctx context.Context, token string) (int64, error)
	Destroy(ctx context.Context, token string) error
}

// RedisSessions stores sessions as prefixed string keys with a TTL.
type RedisSessions struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisSessions wraps a redis client.
func NewRedisSessions(rdb redis.Cmdable, keyPrefix string, ttl time.Duration) *RedisSessions {
	if keyPrefix == "" {
		keyPrefix = "session:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessions{rdb: rdb, prefix: keyPrefix, ttl: ttl}
}

// Create issues a fresh token for the user.
func (s *RedisSessions) Create(ctx context.Context, userID int64) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	err := s.rdb.Set(ctx, s.prefix+token, strconv.FormatInt(userID, 10), s.ttl).Err()
	if err != nil {
		return "", eris.Wrap(err, "auth: store session")
	}
	return token, nil
}

// Resolve returns the user id behind a token. Unknown or expired tokens are
// a not-found error.
func (s *RedisSessions) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, apperr.New(apperr.KindNotFound, "session not found")
	}
	raw, err := s.rdb.Get(ctx, s.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, apperr.New(apperr.KindNotFound, "session not found")
	}
	if err != nil {
		return 0, eris.Wrap(err, "auth: read session")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.KindNotFound, "session not found")
	}
	return userID, nil
}

// Destroy removes a token. Destroying an unknown token is a no-op.
func (s *RedisSessions) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, s.prefix+token).Err(); err != nil {
		return eris.Wrap(err, "auth: delete session")
	}
	return nil
}
