// Package ratelimit guards the broker's two public admission points — the
// WebSocket upgrade and controller:join — using Redis when available and
// falling back to an in-memory store otherwise. This never touches room
// state; it is purely a front-door guard (see DESIGN.md).
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/vucinatim/air-jam/backend/go/internal/logging"
	"github.com/vucinatim/air-jam/backend/go/internal/metrics"
)

// RateLimiter enforces the broker's two admission rates.
type RateLimiter struct {
	wsConnectByIP  *limiter.Limiter
	controllerJoin *limiter.Limiter
	store          limiter.Store
}

// New builds a RateLimiter. redisClient may be nil, in which case the
// limiter falls back to an in-process memory store.
func New(wsConnectRate, controllerJoinRate string, redisClient *redis.Client) (*RateLimiter, error) {
	connRate, err := limiter.NewRateFromFormatted(wsConnectRate)
	if err != nil {
		return nil, fmt.Errorf("invalid ws-connect rate %q: %w", wsConnectRate, err)
	}
	joinRate, err := limiter.NewRateFromFormatted(controllerJoinRate)
	if err != nil {
		return nil, fmt.Errorf("invalid controller-join rate %q: %w", controllerJoinRate, err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "air-jam:ratelimit:"})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate-limit store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using in-memory store (REDIS_ADDR unset)")
	}

	return &RateLimiter{
		wsConnectByIP:  limiter.New(store, connRate),
		controllerJoin: limiter.New(store, joinRate),
		store:          store,
	}, nil
}

// AllowWsConnect checks the per-IP WebSocket-connect rate. Fails open on
// store errors — an unreachable limiter store must never block admission.
func (rl *RateLimiter) AllowWsConnect(ctx context.Context, ip string) bool {
	lc, err := rl.wsConnectByIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "ws-connect rate limiter store failed, failing open")
		return true
	}
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_connect").Inc()
		return false
	}
	return true
}

// AllowControllerJoin checks the per-room controller-join rate, keyed by
// room code so one noisy room cannot exhaust another room's budget.
func (rl *RateLimiter) AllowControllerJoin(ctx context.Context, roomCode string) bool {
	lc, err := rl.controllerJoin.Get(ctx, roomCode)
	if err != nil {
		logging.Error(ctx, "controller-join rate limiter store failed, failing open")
		return true
	}
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("controller_join").Inc()
		return false
	}
	return true
}
