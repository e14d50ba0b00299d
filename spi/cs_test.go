package spi

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

// lineRecorder stands in for the physical chip select line.
type lineRecorder struct {
	transitions int
	asserted    bool
	fail        error
}

func (l *lineRecorder) apply(ctx context.Context, assert bool) error {
	if l.fail != nil {
		return l.fail
	}
	l.transitions++
	l.asserted = assert
	return nil
}

func TestCSCounterNestedAsserts(t *testing.T) {
	var counter CSCounter
	line := &lineRecorder{}
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		test.That(t, counter.Assert(ctx, line.apply), test.ShouldBeNil)
	}
	// Only the outermost assert drove the line.
	test.That(t, line.transitions, test.ShouldEqual, 1)
	test.That(t, line.asserted, test.ShouldBeTrue)
	test.That(t, counter.Count(), test.ShouldEqual, uint32(n))

	for i := 0; i < n-1; i++ {
		test.That(t, counter.Deassert(ctx, line.apply), test.ShouldBeNil)
		test.That(t, line.asserted, test.ShouldBeTrue)
	}
	test.That(t, counter.Deassert(ctx, line.apply), test.ShouldBeNil)
	test.That(t, line.transitions, test.ShouldEqual, 2)
	test.That(t, line.asserted, test.ShouldBeFalse)
	test.That(t, counter.Count(), test.ShouldEqual, uint32(0))
}

func TestCSCounterDeassertWithoutAssert(t *testing.T) {
	var counter CSCounter
	line := &lineRecorder{}

	err := counter.Deassert(context.Background(), line.apply)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, line.transitions, test.ShouldEqual, 0)
}

func TestCSCounterAssertFailureLeavesCountUntouched(t *testing.T) {
	var counter CSCounter
	line := &lineRecorder{fail: errors.New("bus gone")}

	err := counter.Assert(context.Background(), line.apply)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, counter.Count(), test.ShouldEqual, uint32(0))
}

func TestChipSelectReleaseIsIdempotent(t *testing.T) {
	releases := 0
	guard := NewChipSelect(func(ctx context.Context) error {
		releases++
		return nil
	})
	ctx := context.Background()

	test.That(t, guard.Release(ctx), test.ShouldBeNil)
	test.That(t, guard.Release(ctx), test.ShouldBeNil)
	test.That(t, releases, test.ShouldEqual, 1)

	// MustRelease after Release is a no-op too.
	guard.MustRelease(ctx)
	test.That(t, releases, test.ShouldEqual, 1)
}

func TestChipSelectMustReleasePanicsOnFailure(t *testing.T) {
	guard := NewChipSelect(func(ctx context.Context) error {
		return errors.New("stuck low")
	})

	test.That(t, func() { guard.MustRelease(context.Background()) }, test.ShouldPanic)
}
