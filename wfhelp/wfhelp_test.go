package wfhelp

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequestHelp_TagsAreOddAndIncreasing(t *testing.T) {
	h := New[int](4)
	tag1 := h.RequestHelp(5, 0)
	if tag1&1 == 0 {
		t.Fatalf("expected odd tag, got %d", tag1)
	}
	tag2 := h.RequestHelp(6, 0)
	if tag2 != tag1+2 {
		t.Fatalf("expected tag to advance by 2, got %d -> %d", tag1, tag2)
	}
}

func TestProduceResult_StaleRequestIsDropped(t *testing.T) {
	h := New[int](4)
	tag := h.RequestHelp(5, 0)
	h.RequestHelp(6, 0) // supersedes tag

	h.ProduceResult(0, tag, true, 1)
	if _, ok := h.CheckResult(0, tag); ok {
		t.Fatal("expected stale result to be dropped, but it was published")
	}
}

func TestProduceResult_MatchingRequestIsDelivered(t *testing.T) {
	h := New[int](4)
	tag := h.RequestHelp(5, 0)
	h.ProduceResult(0, tag, true, 1)
	found, ok := h.CheckResult(0, tag)
	if !ok || !found {
		t.Fatalf("expected (true, true), got (%v, %v)", found, ok)
	}
}

func TestHelpThreads_FindsOutstandingRequest(t *testing.T) {
	h := New[int](2)
	tag := h.RequestHelp(42, 0)

	var key int
	var requester int
	var gotTag uint64
	var ok bool
	for i := 0; i < Delay+1; i++ {
		key, requester, gotTag, ok = h.HelpThreads(1)
		if ok {
			break
		}
	}
	if !ok {
		t.Fatal("helper never observed the outstanding request")
	}
	if key != 42 || requester != 0 || gotTag != tag {
		t.Fatalf("unexpected help payload: key=%d requester=%d tag=%d", key, requester, gotTag)
	}
}

// TestSearchNeverStarves models spec.md's S5 scenario: one searcher issuing
// wait-free requests against many concurrent "noisy" threads that keep
// superseding their own requests while helping everyone else's. The lone searcher must still observe an
// answer to every one of its own requests in bounded time.
func TestSearchNeverStarves(t *testing.T) {
	const noisyThreads = 8
	const rounds = 200
	h := New[int](noisyThreads + 1)
	searcherTid := noisyThreads

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(noisyThreads)
	for i := 0; i < noisyThreads; i++ {
		go func(tid int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				h.RequestHelp(tid, tid)
				for j := 0; j < noisyThreads+1; j++ {
					if key, requester, tag, ok := h.HelpThreads(tid); ok {
						h.ProduceResult(requester, tag, key%2 == 0, tid)
					}
				}
			}
		}(i)
	}

	var completed atomic.Int64
	for r := 0; r < rounds; r++ {
		tag := h.RequestHelp(r, searcherTid)
		deadline := time.After(2 * time.Second)
		serviced := false
		for !serviced {
			for j := 0; j < noisyThreads+1; j++ {
				if key, requester, t2, ok := h.HelpThreads(searcherTid); ok {
					h.ProduceResult(requester, t2, key%2 == 0, searcherTid)
				}
			}
			if _, ok := h.CheckResult(searcherTid, tag); ok {
				serviced = true
				completed.Add(1)
				break
			}
			select {
			case <-deadline:
				t.Fatalf("search round %d starved waiting for a result", r)
			default:
			}
		}
	}
	close(stop)
	wg.Wait()

	if completed.Load() != rounds {
		t.Fatalf("expected all %d rounds to complete, got %d", rounds, completed.Load())
	}
}
