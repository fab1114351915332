package blobstore

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled wraps a Store and limits the rate of backend operations.
// Useful when snapshotting loops share an object-store quota with the
// serving path.
type Throttled struct {
	inner   Store
	limiter *rate.Limiter
}

// NewThrottled creates a rate-limited wrapper allowing opsPerSecond
// operations with the given burst.
func NewThrottled(inner Store, opsPerSecond float64, burst int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(opsPerSecond), burst),
	}
}

// Put implements Store.
func (s *Throttled) Put(ctx context.Context, name string, data []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.inner.Put(ctx, name, data)
}

// Get implements Store.
func (s *Throttled) Get(ctx context.Context, name string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, name)
}

// Delete implements Store.
func (s *Throttled) Delete(ctx context.Context, name string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.inner.Delete(ctx, name)
}

// List implements Store.
func (s *Throttled) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.List(ctx, prefix)
}
