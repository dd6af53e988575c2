package checkpoint

import (
	"context"
	"time"
)

// NullCache is a no-op cache. Useful for one-shot CLI invocations that
// dump straight to a file and never resume.
type NullCache struct{}

// NewNullCache returns a Cache that never stores anything.
func NewNullCache() Cache {
	return &NullCache{}
}

func (c *NullCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (c *NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (c *NullCache) Delete(context.Context, string) error                     { return nil }
func (c *NullCache) Close() error                                             { return nil }

var _ Cache = (*NullCache)(nil)
