package lock

import (
	"sync"

	"github.com/corekv/corekv/internal/page"
)

// LockRequest is one transaction's claim (granted or still waiting) on a
// locked object.
type LockRequest struct {
	txnID   int64
	mode    LockMode
	granted bool
	row     *page.RID // nil for a table-level request
}

func (r *LockRequest) TxnID() int64   { return r.txnID }
func (r *LockRequest) Mode() LockMode { return r.mode }
func (r *LockRequest) Granted() bool  { return r.granted }

// LockRequestQueue is the per-object queue of spec.md §4.6: one mutex, one
// condition variable, requests in FIFO order except for an upgrade's
// priority insertion, and a single "upgrading" slot.
type LockRequestQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*LockRequest
	upgrading int64 // 0 means no outstanding upgrade
	waiters   RefCount
}

func newQueue() *LockRequestQueue {
	q := &LockRequestQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *LockRequestQueue) find(id int64) *LockRequest {
	for _, r := range q.requests {
		if r.txnID == id {
			return r
		}
	}
	return nil
}

func (q *LockRequestQueue) removeByTxn(id int64) {
	for i, r := range q.requests {
		if r.txnID == id {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

func (q *LockRequestQueue) removeRequest(req *LockRequest) {
	for i, r := range q.requests {
		if r == req {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// insertUpgrade places req immediately after the granted prefix, ahead of
// any regular (non-upgrade) waiters, per spec.md §4.6.2 step 5.
func (q *LockRequestQueue) insertUpgrade(req *LockRequest) {
	pos := 0
	for pos < len(q.requests) && q.requests[pos].granted {
		pos++
	}
	q.requests = append(q.requests, nil)
	copy(q.requests[pos+1:], q.requests[pos:])
	q.requests[pos] = req
}

func (q *LockRequestQueue) isCompatibleWithGranted(mode LockMode) bool {
	for _, r := range q.requests {
		if r.granted && !compatible(r.mode, mode) {
			return false
		}
	}
	return true
}

// isHeadOfWaitingSuffix reports whether req is the first not-yet-granted
// request in queue order.
func (q *LockRequestQueue) isHeadOfWaitingSuffix(req *LockRequest) bool {
	for _, r := range q.requests {
		if r.granted {
			continue
		}
		return r == req
	}
	return false
}

// grantedTxnIDs returns the transaction ids of every currently-granted
// request, for the deadlock detector's wait-for graph.
func (q *LockRequestQueue) grantedTxnIDs() []int64 {
	var out []int64
	for _, r := range q.requests {
		if r.granted {
			out = append(out, r.txnID)
		}
	}
	return out
}

// waitingTxnIDs returns the transaction ids of every not-yet-granted
// request.
func (q *LockRequestQueue) waitingTxnIDs() []int64 {
	var out []int64
	for _, r := range q.requests {
		if !r.granted {
			out = append(out, r.txnID)
		}
	}
	return out
}
