package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewRateLimiterStartsFull(t *testing.T) {
	rl := NewRateLimiter(1.0, 10.0, nil)
	if tokens := rl.Tokens(); tokens < 9.9 {
		t.Errorf("expected ~10 tokens, got %.2f", tokens)
	}
}

func TestTryAcquireConsumesToken(t *testing.T) {
	rl := NewRateLimiter(1.0, 5.0, nil)
	frozen := time.Now()
	rl.now = func() time.Time { return frozen }

	for i := 0; i < 5; i++ {
		if !rl.tryAcquire() {
			t.Fatalf("tryAcquire() failed on attempt %d", i+1)
		}
	}
	if rl.tryAcquire() {
		t.Error("tryAcquire() should fail when bucket is empty")
	}
}

func TestRefillCapsAtMax(t *testing.T) {
	rl := NewRateLimiter(10.0, 5.0, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }
	for i := 0; i < 5; i++ {
		rl.tryAcquire()
	}

	now = now.Add(200 * time.Millisecond)
	if tokens := rl.Tokens(); tokens < 1.9 || tokens > 2.1 {
		t.Errorf("expected ~2 tokens after 200ms at 10/sec, got %.2f", tokens)
	}

	now = now.Add(time.Hour)
	if tokens := rl.Tokens(); tokens != 5.0 {
		t.Errorf("expected bucket capped at 5, got %.2f", tokens)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(0.01, 1.0, nil)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() should succeed immediately: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait() should return promptly on cancel, took %v", elapsed)
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	rl := NewRateLimiter(20.0, 1.0, nil)
	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected to wait for a refill, only waited %v", elapsed)
	}
}

func TestConcurrentWaiters(t *testing.T) {
	rl := NewRateLimiter(1000.0, 10.0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rl.Wait(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
}
