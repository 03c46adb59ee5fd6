package services

import (
	"context"
	"time"
)

// ResultCache absorbs dashboard polling on the read side. Invalidation is
// TTL-based only; ingestion never touches it. A nil ResultCache disables
// caching entirely.
type ResultCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, val any, ttl time.Duration) error
}
