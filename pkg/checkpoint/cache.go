package checkpoint

import (
	"context"
	"time"
)

// Cache stores checkpoint records by key. A checkpoint key is the run id;
// ttl of 0 means the entry never expires on its own.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
