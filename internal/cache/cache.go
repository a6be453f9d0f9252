package cache

import (
	"context"
	"time"
)

type Cache interface {
	// SetNX stores val only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}
