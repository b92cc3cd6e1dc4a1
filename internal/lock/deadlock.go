package lock

import (
	"log/slog"
	"sort"
	"time"

	"github.com/corekv/corekv/internal/txn"
)

// Detector is the background deadlock-detection task of spec.md §4.6.4: it
// wakes every cycle_detection_interval, builds a wait-for graph from every
// lock queue's granted/waiting split, and aborts the youngest transaction in
// any cycle it finds, repeating until the graph is acyclic.
//
// Grounded on original_source/src/concurrency/lock_manager.cpp's
// RunCycleDetection/HasCycle (DFS from the lowest transaction id, victim =
// highest id on the discovered cycle).
type Detector struct {
	mgr      *Manager
	txnMgr   *txn.Manager
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewDetector(mgr *Manager, txnMgr *txn.Manager, interval time.Duration) *Detector {
	return &Detector{mgr: mgr, txnMgr: txnMgr, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start launches the detector's background goroutine.
func (d *Detector) Start() {
	go d.run()
}

// Stop signals the background goroutine and waits for it to exit.
func (d *Detector) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Detector) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.runOnce()
		}
	}
}

// runOnce repeatedly finds a cycle and aborts its victim until none remain,
// per spec.md §4.6.4 ("repeatedly finds a cycle ... until no cycle remains").
func (d *Detector) runOnce() {
	for {
		edges, queues := d.buildWaitForGraph()
		victim, found := hasCycle(edges)
		if !found {
			return
		}
		if t, ok := d.txnMgr.Get(victim); ok {
			t.MarkAborted()
			slog.Debug(logPrefix+"deadlock victim aborted", "txn", victim)
		}
		for _, q := range queues {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		}
	}
}

// buildWaitForGraph acquires the table-map latch, then each queue's own
// latch briefly, per spec.md §5's ordering rule for the detector.
func (d *Detector) buildWaitForGraph() (map[int64]map[int64]bool, []*LockRequestQueue) {
	edges := make(map[int64]map[int64]bool)
	var touched []*LockRequestQueue

	addQueue := func(q *LockRequestQueue) {
		q.mu.Lock()
		granted := q.grantedTxnIDs()
		waiting := q.waitingTxnIDs()
		q.mu.Unlock()

		if len(waiting) == 0 {
			return
		}
		touched = append(touched, q)
		for _, w := range waiting {
			for _, g := range granted {
				if w == g {
					continue
				}
				if edges[w] == nil {
					edges[w] = make(map[int64]bool)
				}
				edges[w][g] = true
			}
		}
	}

	d.mgr.tableMu.Lock()
	tables := make([]*LockRequestQueue, 0, len(d.mgr.tables))
	for _, q := range d.mgr.tables {
		tables = append(tables, q)
	}
	d.mgr.tableMu.Unlock()
	for _, q := range tables {
		addQueue(q)
	}

	d.mgr.rowMu.Lock()
	rows := make([]*LockRequestQueue, 0, len(d.mgr.rows))
	for _, q := range d.mgr.rows {
		rows = append(rows, q)
	}
	d.mgr.rowMu.Unlock()
	for _, q := range rows {
		addQueue(q)
	}

	return edges, touched
}

// hasCycle runs DFS from the lowest-numbered transaction id upward; on a
// back-edge it returns the highest-numbered transaction id on the resulting
// cycle as the victim, per spec.md §4.6.4 and its Open Questions resolution.
func hasCycle(edges map[int64]map[int64]bool) (int64, bool) {
	nodes := make(map[int64]bool)
	for u, outs := range edges {
		nodes[u] = true
		for v := range outs {
			nodes[v] = true
		}
	}
	sorted := make([]int64, 0, len(nodes))
	for n := range nodes {
		sorted = append(sorted, n)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int)
	var path []int64

	var dfs func(u int64) (int64, bool)
	dfs = func(u int64) (int64, bool) {
		color[u] = gray
		path = append(path, u)

		neighbors := make([]int64, 0, len(edges[u]))
		for v := range edges[u] {
			neighbors = append(neighbors, v)
		}
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })

		for _, v := range neighbors {
			switch color[v] {
			case white:
				if victim, found := dfs(v); found {
					return victim, true
				}
			case gray:
				idx := indexOf(path, v)
				victim := v
				for _, n := range path[idx:] {
					if n > victim {
						victim = n
					}
				}
				return victim, true
			}
		}

		path = path[:len(path)-1]
		color[u] = black
		return 0, false
	}

	for _, n := range sorted {
		if color[n] == white {
			if victim, found := dfs(n); found {
				return victim, true
			}
		}
	}
	return 0, false
}

func indexOf(s []int64, v int64) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
