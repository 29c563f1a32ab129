package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

func TestCodeRegistryBindResolveRelease(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	registry := NewCodeRegistry(newClient(mr), time.Hour)
	ctx := context.Background()

	code, err := registry.Bind(ctx, "session-1")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if !mr.Exists("session:code:" + code) {
		t.Fatalf("expected binding key in redis")
	}

	sessionID, err := registry.Resolve(ctx, code)
	if err != nil || sessionID != "session-1" {
		t.Fatalf("resolve: got (%q, %v)", sessionID, err)
	}

	if err := registry.Release(ctx, code); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := registry.Resolve(ctx, code); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after release, got %v", err)
	}
}

func TestCodeRegistryBindingsExpire(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	registry := NewCodeRegistry(newClient(mr), time.Minute)
	ctx := context.Background()

	code, err := registry.Bind(ctx, "session-1")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	// a binding leaked by a crashed instance frees itself eventually
	mr.FastForward(2 * time.Minute)
	if _, err := registry.Resolve(ctx, code); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected expired binding, got %v", err)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
