package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidRefreshToken indicates token not found or expired.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenReplay indicates a rotated token was presented again.
	ErrRefreshTokenReplay = errors.New("refresh token replay detected")
)

// RefreshTokenStore persists opaque refresh tokens grouped in families.
// Every rotation invalidates the previous token; presenting an old token
// revokes the whole family.
type RefreshTokenStore interface {
	NewToken(ctx context.Context, userID string, ttl time.Duration) (string, error)
	RotateToken(ctx context.Context, token string, ttl time.Duration) (userID string, next string, err error)
	DeleteToken(ctx context.Context, token string) error
}

// rotateScript atomically swaps the family head. Old token keys are left to
// expire; they resolve to a deleted family once a replay is seen.
//
// KEYS[1] token key of the presented token
// ARGV[1] presented hash, ARGV[2] next hash, ARGV[3] ttl ms, ARGV[4] key prefix
var rotateScript = redis.NewScript(`
local family = redis.call("GET", KEYS[1])
if not family then
  return {0}
end
local famKey = ARGV[4] .. "fam:" .. family
local current = redis.call("HGET", famKey, "current")
local user = redis.call("HGET", famKey, "user")
if (not current) or (not user) then
  redis.call("DEL", KEYS[1])
  return {0}
end
if current ~= ARGV[1] then
  redis.call("DEL", famKey)
  return {-1}
end
redis.call("HSET", famKey, "current", ARGV[2])
redis.call("PEXPIRE", famKey, ARGV[3])
redis.call("SET", ARGV[4] .. "tok:" .. ARGV[2], family, "PX", ARGV[3])
return {1, user}
`)

// RedisRefreshTokenStore keeps refresh token families in Redis.
type RedisRefreshTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRefreshTokenStore(client *redis.Client) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{client: client, prefix: "gamelog:refresh:"}
}

func (s *RedisRefreshTokenStore) tokenKey(hash string) string { return s.prefix + "tok:" + hash }
func (s *RedisRefreshTokenStore) familyKey(id string) string  { return s.prefix + "fam:" + id }

// NewToken starts a new family for the user.
func (s *RedisRefreshTokenStore) NewToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", err
	}
	family, err := randomToken(16)
	if err != nil {
		return "", err
	}
	hash := refreshTokenHash(token)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.familyKey(family), map[string]any{"user": userID, "current": hash})
	pipe.Expire(ctx, s.familyKey(family), ttl)
	pipe.Set(ctx, s.tokenKey(hash), family, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// RotateToken exchanges a current token for the next one in its family.
func (s *RedisRefreshTokenStore) RotateToken(ctx context.Context, token string, ttl time.Duration) (string, string, error) {
	next, err := randomToken(32)
	if err != nil {
		return "", "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	hash := refreshTokenHash(token)
	res, err := rotateScript.Run(ctx, s.client,
		[]string{s.tokenKey(hash)},
		hash, refreshTokenHash(next), ttl.Milliseconds(), s.prefix,
	).Slice()
	if err != nil {
		return "", "", fmt.Errorf("rotate refresh token: %w", err)
	}
	if len(res) == 0 {
		return "", "", ErrInvalidRefreshToken
	}
	status, _ := res[0].(int64)
	switch status {
	case 1:
		userID, _ := res[1].(string)
		return userID, next, nil
	case -1:
		return "", "", ErrRefreshTokenReplay
	default:
		return "", "", ErrInvalidRefreshToken
	}
}

// DeleteToken revokes the family the token belongs to.
func (s *RedisRefreshTokenStore) DeleteToken(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	key := s.tokenKey(refreshTokenHash(token))
	family, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.Del(ctx, key, s.familyKey(family)).Err()
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func refreshTokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
