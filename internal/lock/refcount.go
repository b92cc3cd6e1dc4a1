package lock

// RefCount is an atomic, non-negative counter. LockRequestQueue uses one per
// queue to track how many goroutines are currently blocked waiting on its
// condition variable, exposed read-only via Manager.Stats for observability.

import (
	"fmt"
	"sync/atomic"
)

type RefCount struct {
	count int32
}

func NewRefCount() *RefCount {
	return &RefCount{count: 1}
}

func (r *RefCount) Inc() {
	atomic.AddInt32(&r.count, 1)
}

func (r *RefCount) Dec() bool {
	newCount := atomic.AddInt32(&r.count, -1)
	if newCount < 0 {
		panic("refcount dropped below zero")
	}
	return newCount == 0
}

func (r *RefCount) Get() int32 {
	return atomic.LoadInt32(&r.count)
}

func (r *RefCount) String() string {
	return fmt.Sprintf("RefCount: %d", r.Get())
}
