// Package ratelimit provides client-side request pacing for the vault API
// using a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/vaultlink/vaultlink/internal/logging"
)

// Request classes. Catalog reads are cheap and frequent; transfer calls
// carry the ciphertext and are paced more tightly.
const (
	ReadRatePerSec        = 10.0
	ReadBurstCapacity     = 50
	TransferRatePerSec    = 2.0
	TransferBurstCapacity = 8
)

// RateLimiter implements a token bucket rate limiter.
// It allows bursts up to maxTokens, then refills at refillRate tokens/second.
type RateLimiter struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64
	lastRefill   time.Time
	lastWarnTime time.Time
	logger       *logging.Logger
	now          func() time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a limiter that starts with a full bucket.
func NewRateLimiter(tokensPerSecond, burstSize float64, logger *logging.Logger) *RateLimiter {
	return &RateLimiter{
		tokens:     burstSize,
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
		logger:     logging.OrNop(logger),
		now:        time.Now,
	}
}

// NewReadLimiter paces list, detail and parameter requests.
func NewReadLimiter(logger *logging.Logger) *RateLimiter {
	return NewRateLimiter(ReadRatePerSec, ReadBurstCapacity, logger)
}

// NewTransferLimiter paces upload, download and delete requests.
func NewTransferLimiter(logger *logging.Logger) *RateLimiter {
	return NewRateLimiter(TransferRatePerSec, TransferBurstCapacity, logger)
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.tryAcquire() {
		return nil
	}

	waitTime := rl.timeUntilNextToken()
	if waitTime > 2*time.Second {
		rl.mu.Lock()
		if rl.now().Sub(rl.lastWarnTime) > 10*time.Second {
			rl.logger.Warn().Dur("wait", waitTime).Msg("rate limited, waiting for API capacity")
			rl.lastWarnTime = rl.now()
		}
		rl.mu.Unlock()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rl.tryAcquire() {
			return nil
		}

		timer := time.NewTimer(rl.timeUntilNextToken())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (rl *RateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

func (rl *RateLimiter) timeUntilNextToken() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tokensNeeded := 1.0 - rl.tokens
	if tokensNeeded <= 0 {
		return 0
	}
	return time.Duration(tokensNeeded / rl.refillRate * float64(time.Second))
}

// Tokens returns the number of tokens currently available.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}
