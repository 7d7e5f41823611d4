package list

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/petar/GoLLRB/llrb"

	"github.com/lockfree-go/scot/reclaim"
	"github.com/lockfree-go/scot/reclaim/ebr"
	"github.com/lockfree-go/scot/reclaim/he"
	"github.com/lockfree-go/scot/reclaim/hp"
	"github.com/lockfree-go/scot/reclaim/hyaline"
	"github.com/lockfree-go/scot/reclaim/ibr"
	"github.com/lockfree-go/scot/reclaim/nr"
	"github.com/lockfree-go/scot/wfhelp"
)

type intItem int

func (a intItem) Less(b llrb.Item) bool { return a < b.(intItem) }

// reclaimerBuilders enumerates every reclamation engine a container must be
// checked against; slot-based engines (HP, HE) are sized with
// NumProtectionSlots so their hazard/era arrays match what Harris and
// HarrisMichael actually use.
func reclaimerBuilders() map[string]func(maxThreads int) reclaim.Reclaimer[*Node[int]] {
	slots := NumProtectionSlots()
	return map[string]func(int) reclaim.Reclaimer[*Node[int]]{
		"EBR":     func(n int) reclaim.Reclaimer[*Node[int]] { return ebr.New[*Node[int]](n) },
		"IBR":     func(n int) reclaim.Reclaimer[*Node[int]] { return ibr.New[*Node[int]](n) },
		"HP":      func(n int) reclaim.Reclaimer[*Node[int]] { return hp.New[*Node[int]](slots, n) },
		"HE":      func(n int) reclaim.Reclaimer[*Node[int]] { return he.New[*Node[int]](slots, n) },
		"HYALINE": func(n int) reclaim.Reclaimer[*Node[int]] { return hyaline.New[*Node[int]](n) },
		"NR":      func(n int) reclaim.Reclaimer[*Node[int]] { return nr.New[*Node[int]](n) },
	}
}

// S1: single-threaded insert/search scenario from spec.md §8.
func TestS1_SingleThreadedSetSemantics(t *testing.T) {
	rec := ebr.New[*Node[int]](1)
	h := NewHarris[int](rec, nil)
	tid, ok := rec.Register()
	if !ok {
		t.Fatal("register failed")
	}

	keys := []int{3, 1, 4, 1, 5, 9, 2, 6}
	wantInsert := []bool{true, true, true, false, true, true, true, true}
	for i, k := range keys {
		if got := h.Insert(k, tid); got != wantInsert[i] {
			t.Errorf("insert(%d) = %v, want %v", k, got, wantInsert[i])
		}
	}

	wantSearch := []bool{false, true, true, true, true, true, true, false, false, true, false}
	for k := 0; k <= 10; k++ {
		if got := h.Search(k, tid); got != wantSearch[k] {
			t.Errorf("search(%d) = %v, want %v", k, got, wantSearch[k])
		}
	}
}

// S2: two threads inserting disjoint parities.
func TestS2_ConcurrentDisjointInsert(t *testing.T) {
	rec := ebr.New[*Node[int]](2)
	h := NewHarris[int](rec, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tid, _ := rec.Register()
		defer rec.Deregister(tid)
		for k := 1; k < 1000; k += 2 {
			h.Insert(k, tid)
		}
	}()
	go func() {
		defer wg.Done()
		tid, _ := rec.Register()
		defer rec.Deregister(tid)
		for k := 0; k < 1000; k += 2 {
			h.Insert(k, tid)
		}
	}()
	wg.Wait()

	tid, _ := rec.Register()
	defer rec.Deregister(tid)
	for k := 0; k < 1000; k++ {
		if !h.Search(k, tid) {
			t.Fatalf("missing key %d after concurrent insert", k)
		}
	}
}

// Idempotent duplicate insert (spec.md §8 property 6).
func TestDuplicateInsertIsIdempotent(t *testing.T) {
	rec := ebr.New[*Node[int]](1)
	h := NewHarris[int](rec, nil)
	tid, _ := rec.Register()

	if !h.Insert(7, tid) {
		t.Fatal("first insert should succeed")
	}
	if h.Insert(7, tid) {
		t.Fatal("second insert of the same key should fail")
	}
	if !h.Search(7, tid) {
		t.Fatal("key should still be present")
	}
}

// Randomized single-threaded oracle check against GoLLRB, run for both list
// variants against every reclamation engine: the oracle only exercises the
// container's set semantics, but running it under HP/HE as well as the
// epoch-framed engines is what actually catches a traversal bug that only
// manifests when Protect's re-observation loop is live.
func TestHarrisAgainstLLRBOracle(t *testing.T) {
	for name, build := range reclaimerBuilders() {
		t.Run(name, func(t *testing.T) {
			rec := build(1)
			h := NewHarris[int](rec, nil)
			tid, _ := rec.Register()
			oracle := llrb.New()

			r := rand.New(rand.NewSource(1))
			for i := 0; i < 5000; i++ {
				k := r.Intn(200)
				switch r.Intn(3) {
				case 0:
					want := oracle.Get(intItem(k)) == nil
					if want {
						oracle.ReplaceOrInsert(intItem(k))
					}
					if got := h.Insert(k, tid); got != want {
						t.Fatalf("insert(%d) = %v, want %v", k, got, want)
					}
				case 1:
					want := oracle.Get(intItem(k)) != nil
					if want {
						oracle.Delete(intItem(k))
					}
					if got := h.Remove(k, tid); got != want {
						t.Fatalf("remove(%d) = %v, want %v", k, got, want)
					}
				default:
					want := oracle.Get(intItem(k)) != nil
					if got := h.Search(k, tid); got != want {
						t.Fatalf("search(%d) = %v, want %v", k, got, want)
					}
				}
			}
		})
	}
}

func TestHarrisMichaelAgainstLLRBOracle(t *testing.T) {
	for name, build := range reclaimerBuilders() {
		t.Run(name, func(t *testing.T) {
			rec := build(1)
			h := NewHarrisMichael[int](rec, nil)
			tid, _ := rec.Register()
			oracle := llrb.New()

			r := rand.New(rand.NewSource(2))
			for i := 0; i < 5000; i++ {
				k := r.Intn(200)
				switch r.Intn(3) {
				case 0:
					want := oracle.Get(intItem(k)) == nil
					if want {
						oracle.ReplaceOrInsert(intItem(k))
					}
					if got := h.Insert(k, tid); got != want {
						t.Fatalf("insert(%d) = %v, want %v", k, got, want)
					}
				case 1:
					want := oracle.Get(intItem(k)) != nil
					if want {
						oracle.Delete(intItem(k))
					}
					if got := h.Remove(k, tid); got != want {
						t.Fatalf("remove(%d) = %v, want %v", k, got, want)
					}
				default:
					want := oracle.Get(intItem(k)) != nil
					if got := h.Search(k, tid); got != want {
						t.Fatalf("search(%d) = %v, want %v", k, got, want)
					}
				}
			}
		})
	}
}

// S5: wait-free search progress under heavy insert/remove contention. One
// searcher must complete every search it issues in bounded time even while
// 63 other goroutines mutate the list.
func TestS5_WaitFreeSearchProgress(t *testing.T) {
	const mutators = 63
	const universe = 200
	rec := ebr.New[*Node[int]](mutators + 1)
	helper := wfhelp.New[int](mutators + 1)
	h := NewHarris[int](rec, helper)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(mutators)
	for i := 0; i < mutators; i++ {
		go func(i int) {
			defer wg.Done()
			tid, ok := rec.Register()
			if !ok {
				return
			}
			defer rec.Deregister(tid)
			r := rand.New(rand.NewSource(int64(i)))
			for {
				select {
				case <-stop:
					return
				default:
				}
				k := r.Intn(universe)
				if r.Intn(2) == 0 {
					h.Insert(k, tid)
				} else {
					h.Remove(k, tid)
				}
			}
		}(i)
	}

	searcherTid, ok := rec.Register()
	if !ok {
		t.Fatal("searcher registration failed")
	}
	for i := 0; i < 2000; i++ {
		h.SearchWF(i%universe, searcherTid)
	}
	close(stop)
	wg.Wait()
}
