//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisLimiter_Integration_Window(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	l := NewRedisLimiter(redisClient, Config{Window: 2 * time.Second, MaxRequests: 2}, zerolog.Nop())

	for i := 1; i <= 2; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d rejected", i)
		}
	}

	d, err := l.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if d.Allowed {
		t.Error("3rd request allowed, want rejected")
	}

	ttl, err := redisClient.PTTL(ctx, RedisKeyPrefix+"10.0.0.1").Result()
	if err != nil {
		t.Fatalf("PTTL error = %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("key TTL = %v, want within (0, 2s]", ttl)
	}

	time.Sleep(2100 * time.Millisecond)

	d, err = l.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !d.Allowed {
		t.Error("request after window expired rejected")
	}
}

func TestRedisLimiter_Integration_Reset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	l := NewRedisLimiter(redisClient, Config{Window: time.Minute, MaxRequests: 1}, zerolog.Nop())

	l.Allow(ctx, "k")
	if d, _ := l.Allow(ctx, "k"); d.Allowed {
		t.Fatal("second request allowed")
	}

	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if d, _ := l.Allow(ctx, "k"); !d.Allowed {
		t.Error("request after Reset rejected")
	}
}

func TestRedisLimiter_Integration_BackendDown(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	cleanup()

	l := NewRedisLimiter(redisClient, DefaultConfig(), zerolog.Nop())
	if _, err := l.Allow(context.Background(), "k"); err == nil {
		t.Error("Allow() on closed client returned nil error")
	}
}
