package spi

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ChipSelect is a scoped guard returned by Target.AssertCS. Callers needing
// chip select held across several independently issued transactions hold the
// guard and release it when done.
//
// Release is the fallible teardown path and should be called directly when a
// deassertion error must be observable. MustRelease exists as a last-resort
// implicit path (e.g. in a defer) and panics if deassertion fails, since a
// chip select stuck asserted leaves the bus in an undefined state.
type ChipSelect struct {
	mu       sync.Mutex
	release  func(ctx context.Context) error
	released bool
}

// NewChipSelect wraps a deassertion function in a guard. Intended for Target
// implementations, not API clients.
func NewChipSelect(release func(ctx context.Context) error) *ChipSelect {
	return &ChipSelect{release: release}
}

// Release deasserts this guard's hold on chip select. Releasing an already
// released guard is a no-op.
func (c *ChipSelect) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	return c.release(ctx)
}

// MustRelease is Release for teardown paths that cannot surface an error.
func (c *ChipSelect) MustRelease(ctx context.Context) {
	if err := c.Release(ctx); err != nil {
		panic(errors.Wrap(err, "error while deasserting chip select"))
	}
}

// CSCounter tracks the chip select reference count for one target. The
// physical line changes only on the 0-to-1 and 1-to-0 transitions; nested
// assert requests from multiple logical callers keep the line asserted until
// the count returns to zero.
type CSCounter struct {
	mu    sync.Mutex
	count uint32
}

// Assert increments the count, driving the physical line through apply on
// the 0-to-1 transition.
func (c *CSCounter) Assert(ctx context.Context, apply func(ctx context.Context, assert bool) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		if err := apply(ctx, true); err != nil {
			return err
		}
	}
	c.count++
	return nil
}

// Deassert decrements the count, driving the physical line through apply on
// the 1-to-0 transition.
func (c *CSCounter) Deassert(ctx context.Context, apply func(ctx context.Context, assert bool) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return errors.New("chip select not asserted")
	}
	if c.count == 1 {
		if err := apply(ctx, false); err != nil {
			return err
		}
	}
	c.count--
	return nil
}

// Count returns the current reference count.
func (c *CSCounter) Count() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
