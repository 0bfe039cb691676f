package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/music-miko/t/internal/domain"
)

// AcquireFunc is one execution of the tiered acquisition for a key
type AcquireFunc func(ctx context.Context) (*domain.AcquisitionResult, error)

// Coordinator runs at most one AcquireFunc per key at a time. Callers that
// arrive while a key is in flight wait for the same outcome.
type Coordinator struct {
	group singleflight.Group
}

// NewCoordinator creates an empty coordinator
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Do joins or starts the execution for key. The execution runs on opCtx,
// which belongs to whichever caller started it; each caller stops waiting
// when its own ctx is done. A panic in fn is delivered to every waiter as an
// error and the key is released. joined is true only for callers that
// attached to an execution another caller started.
func (c *Coordinator) Do(ctx, opCtx context.Context, key domain.ContentKey, fn AcquireFunc) (result *domain.AcquisitionResult, joined bool, err error) {
	// only the leader's closure ever runs
	var led atomic.Bool
	ch := c.group.DoChan(string(key), func() (result interface{}, err error) {
		led.Store(true)
		defer func() {
			if r := recover(); r != nil {
				result = nil
				err = fmt.Errorf("acquisition panicked: %v", r)
			}
		}()
		return fn(opCtx)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		joined = res.Shared && !led.Load()
		val, _ := res.Val.(*domain.AcquisitionResult)
		if res.Err != nil {
			return copyResult(val, joined), joined, res.Err
		}
		if val == nil {
			return nil, joined, fmt.Errorf("acquisition returned no result")
		}
		return copyResult(val, joined), joined, nil
	}
}

// copyResult gives each waiter its own result value
func copyResult(result *domain.AcquisitionResult, joined bool) *domain.AcquisitionResult {
	if result == nil {
		return nil
	}
	out := *result
	out.Shared = joined
	return &out
}
