package redis

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// CodeRegistry binds join codes to session ids in Redis. SetNX makes
// generation atomic against the live set even across service instances; the
// TTL is a safety net so a binding leaked by a crashed instance eventually
// frees its code.
type CodeRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCodeRegistry(client *redis.Client, ttl time.Duration) *CodeRegistry {
	return &CodeRegistry{client: client, ttl: ttl}
}

func (r *CodeRegistry) Bind(ctx context.Context, sessionID string) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		ok, err := r.client.SetNX(ctx, r.key(code), sessionID, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("bind join code: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique join code")
}

func (r *CodeRegistry) Resolve(ctx context.Context, code string) (string, error) {
	sessionID, err := r.client.Get(ctx, r.key(code)).Result()
	if err == redis.Nil {
		return "", domain.ErrCodeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve join code: %w", err)
	}
	return sessionID, nil
}

func (r *CodeRegistry) Release(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, r.key(code)).Err(); err != nil {
		return fmt.Errorf("release join code: %w", err)
	}
	return nil
}

func (r *CodeRegistry) key(code string) string {
	return "session:code:" + code
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
