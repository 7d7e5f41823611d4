package workload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/emirpasic/gods/sets/hashset"

	"github.com/lockfree-go/scot/list"
	"github.com/lockfree-go/scot/reclaim/ebr"
)

// S3: 64 threads, 16-element universe, 80/10/10 read/insert/remove for a
// short window; every observed key must stay inside the universe and the
// run must not deadlock or panic.
func TestS3_BoundedUniverseStress(t *testing.T) {
	const threads = 64
	const universe = 16
	rec := ebr.New[*list.Node[int]](threads + 1)
	h := list.NewHarris[int](rec, nil)

	cfg := Config{ElementSize: universe, ReadPct: 80, InsertPct: 10, DeletePct: 10, Seed: 42}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	live := hashset.New()
	var liveMu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func(i int) {
			defer wg.Done()
			tid, ok := rec.Register()
			if !ok {
				t.Errorf("thread %d failed to register", i)
				return
			}
			defer rec.Deregister(tid)
			RunMixed[int](ctx, h, cfg, tid, live, &liveMu)
		}(i)
	}
	wg.Wait()

	tid, _ := rec.Register()
	defer rec.Deregister(tid)
	for k := 0; k < universe; k++ {
		_ = h.Search(k, tid) // must not panic regardless of result
	}
	for _, v := range live.Values() {
		k := v.(int)
		if k < 0 || k >= universe {
			t.Fatalf("observed out-of-universe key %d", k)
		}
	}
}

// S4: reclamation stress. After a single thread inserts and then removes
// 10,000 keys, the retained-node count must settle to a small, bounded
// value rather than growing with the number of operations performed.
func TestS4_ReclamationStress(t *testing.T) {
	const maxThreads = 4
	const n = 10000
	rec := ebr.New[*list.Node[int]](maxThreads)
	h := list.NewHarris[int](rec, nil)
	tid, _ := rec.Register()

	for k := 0; k < n; k++ {
		h.Insert(k, tid)
	}
	for k := 0; k < n; k++ {
		h.Remove(k, tid)
	}

	// Final start_op/end_op on every other registered thread plus a
	// handful of extra retiring operations, to push every reclaimer past
	// its periodic emptying threshold.
	for other := 0; other < maxThreads-1; other++ {
		if t2, ok := rec.Register(); ok {
			rec.StartOp(t2)
			rec.EndOp(t2)
			rec.Deregister(t2)
		}
	}
	for i := 0; i < 200; i++ {
		h.Insert(n+i, tid)
		h.Remove(n+i, tid)
	}
	rec.TakeSnapshot(tid)

	if got := h.CalculateSpace(tid); got > int64(50*maxThreads) {
		t.Fatalf("retained-node count %d did not settle to O(maxThreads)", got)
	}
}
