package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const issueTimeout = 2 * time.Second

// RedisVault is the durable token vault: tokens issued under the
// tokenize strategy are stored with a TTL so they can be resolved
// later, including by other gateway instances sharing the same Redis.
type RedisVault struct {
	client *redis.Client
	config *Config
	logger *zap.Logger

	issued int64
	hits   int64
	misses int64
}

// NewRedisVault connects to Redis and verifies the connection.
func NewRedisVault(config *Config, logger *zap.Logger) (*RedisVault, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	v := &RedisVault{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Token vault initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("token_ttl", config.TokenTTL),
	)

	return v, nil
}

// Tokenize stores plaintext under a deterministic token and returns the
// token. The same plaintext always yields the same token, so repeated
// masking of the same value correlates.
func (v *RedisVault) Tokenize(ctx context.Context, plaintext string) (string, error) {
	token := tokenID(plaintext)

	err := v.client.Set(ctx, v.key(token), plaintext, v.config.TokenTTL).Err()
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	atomic.AddInt64(&v.issued, 1)
	return token, nil
}

// Resolve returns the plaintext behind a token, or an error when the
// token is unknown or expired.
func (v *RedisVault) Resolve(ctx context.Context, token string) (string, error) {
	plaintext, err := v.client.Get(ctx, v.key(token)).Result()
	if err == redis.Nil {
		atomic.AddInt64(&v.misses, 1)
		return "", fmt.Errorf("unknown token %q", token)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve token: %w", err)
	}

	atomic.AddInt64(&v.hits, 1)
	return plaintext, nil
}

// Issue adapts the vault to the engine's TokenStore contract. Storage
// failures degrade silently: the token is still returned, it just will
// not resolve later.
func (v *RedisVault) Issue(plaintext string) string {
	ctx, cancel := context.WithTimeout(context.Background(), issueTimeout)
	defer cancel()

	token, err := v.Tokenize(ctx, plaintext)
	if err != nil {
		v.logger.Warn("Token not persisted", zap.Error(err))
		return tokenID(plaintext)
	}
	return token
}

// Lookup adapts Resolve to the engine's TokenStore contract.
func (v *RedisVault) Lookup(token string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), issueTimeout)
	defer cancel()

	plaintext, err := v.Resolve(ctx, token)
	if err != nil {
		return "", false
	}
	return plaintext, true
}

// GetStats returns vault statistics.
func (v *RedisVault) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Issued: atomic.LoadInt64(&v.issued),
		Hits:   atomic.LoadInt64(&v.hits),
		Misses: atomic.LoadInt64(&v.misses),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := v.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis key count: %w", err)
	}
	stats.TotalKeys = keys

	return stats, nil
}

// Clear removes every stored token under the vault's prefix.
func (v *RedisVault) Clear(ctx context.Context) error {
	iter := v.client.Scan(ctx, 0, v.config.KeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan token keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	if err := v.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete token keys: %w", err)
	}

	v.logger.Info("Token vault cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection.
func (v *RedisVault) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

func (v *RedisVault) key(token string) string {
	return v.config.KeyPrefix + ":" + token
}

// tokenID derives the deterministic token for a plaintext value.
func tokenID(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])[:12]
}

// maskRedisURL masks credentials in a Redis URL for logging.
func maskRedisURL(url string) string {
	if !strings.Contains(url, "@") {
		return url
	}
	parts := strings.SplitN(url, "@", 2)
	userPart := parts[0]
	if idx := strings.LastIndex(userPart, ":"); idx > strings.Index(userPart, "//") {
		userPart = userPart[:idx+1] + "***"
	}
	return userPart + "@" + parts[1]
}
