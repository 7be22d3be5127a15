package domain

import (
	"context"
	"fmt"
	"time"
)

// RateLimitDecision is the outcome of one Allow call. ResetAt is when the
// current window ends.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}

// RateLimitKey scopes a limit to one client on one route.
func RateLimitKey(clientIP, route string) string {
	return fmt.Sprintf("ip:%s:endpoint:%s", clientIP, route)
}
