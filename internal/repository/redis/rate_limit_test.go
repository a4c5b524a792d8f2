package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl:login", TTL: time.Minute})

	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	window := 30 * time.Second

	for _, at := range []time.Time{base, base, base.Add(10 * time.Second)} {
		if err := repo.RecordAttempt(ctx, "198.51.100.1", at); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "198.51.100.1", window, base.Add(20*time.Second))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts including same-instant ones, got %d", count)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "198.51.100.1", window, base.Add(20*time.Second))
	if err != nil || !ok {
		t.Fatalf("OldestAttempt returned ok=%v err=%v", ok, err)
	}
	if !oldest.Equal(base) {
		t.Fatalf("expected oldest %v, got %v", base, oldest)
	}

	reference := base.Add(35 * time.Second)
	if err := repo.TrimWindow(ctx, "198.51.100.1", window, reference); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}
	count, err = repo.CountAttempts(ctx, "198.51.100.1", window, reference)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 attempt after trim, got %d", count)
	}

	if ttl := server.TTL("rl:login:198.51.100.1"); ttl <= 0 {
		t.Fatalf("expected key ttl to be set, got %v", ttl)
	}
}
