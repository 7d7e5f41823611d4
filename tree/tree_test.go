package tree

import (
	"math/rand"
	"testing"

	"github.com/google/btree"

	"github.com/lockfree-go/scot/reclaim"
	"github.com/lockfree-go/scot/reclaim/ebr"
	"github.com/lockfree-go/scot/reclaim/he"
	"github.com/lockfree-go/scot/reclaim/hp"
	"github.com/lockfree-go/scot/reclaim/hyaline"
	"github.com/lockfree-go/scot/reclaim/ibr"
	"github.com/lockfree-go/scot/reclaim/nr"
)

// reclaimerBuilders enumerates every reclamation engine the tree must be
// checked against; HP and HE are sized with NumProtectionSlots so their
// hazard/era arrays match what seek actually uses.
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

// S6: tree leaf-routing scenario from spec.md §8.
func TestS6_LeafRouting(t *testing.T) {
	rec := ebr.New[*Node[int]](1)
	tr := New[int](rec)
	tid, _ := rec.Register()

	for _, k := range []int{10, 5, 15, 3, 7} {
		if !tr.Insert(k, tid) {
			t.Fatalf("insert(%d) unexpectedly returned false", k)
		}
	}
	for _, k := range []int{10, 5, 15, 3, 7} {
		if !tr.Search(k, tid) {
			t.Fatalf("search(%d) should be true after insert", k)
		}
	}

	if !tr.Remove(10, tid) {
		t.Fatal("remove(10) should return true")
	}
	if tr.Search(10, tid) {
		t.Fatal("search(10) should be false after removal")
	}
	for _, k := range []int{5, 15, 3, 7} {
		if !tr.Search(k, tid) {
			t.Fatalf("search(%d) should still be true after removing 10", k)
		}
	}
}

func TestDuplicateInsertIsIdempotent(t *testing.T) {
	rec := ebr.New[*Node[int]](1)
	tr := New[int](rec)
	tid, _ := rec.Register()

	if !tr.Insert(4, tid) {
		t.Fatal("first insert should succeed")
	}
	if tr.Insert(4, tid) {
		t.Fatal("second insert of the same key should fail")
	}
}

func TestRemoveAbsentKey(t *testing.T) {
	rec := ebr.New[*Node[int]](1)
	tr := New[int](rec)
	tid, _ := rec.Register()

	if tr.Remove(99, tid) {
		t.Fatal("removing an absent key should return false")
	}
}

// Randomized single-threaded oracle check against google/btree, run against
// every reclamation engine so an HP/HE-only protection bug in seek can't
// hide behind the epoch-framed engines' looser Protect semantics.
func TestTreeAgainstBTreeOracle(t *testing.T) {
	for name, build := range reclaimerBuilders() {
		t.Run(name, func(t *testing.T) {
			rec := build(1)
			tr := New[int](rec)
			tid, _ := rec.Register()
			oracle := btree.NewG(32, func(a, b int) bool { return a < b })

			r := rand.New(rand.NewSource(3))
			for i := 0; i < 5000; i++ {
				k := r.Intn(300)
				switch r.Intn(3) {
				case 0:
					_, existed := oracle.Get(k)
					want := !existed
					if want {
						oracle.ReplaceOrInsert(k)
					}
					if got := tr.Insert(k, tid); got != want {
						t.Fatalf("insert(%d) = %v, want %v", k, got, want)
					}
				case 1:
					_, existed := oracle.Get(k)
					if existed {
						oracle.Delete(k)
					}
					if got := tr.Remove(k, tid); got != existed {
						t.Fatalf("remove(%d) = %v, want %v", k, got, existed)
					}
				default:
					_, want := oracle.Get(k)
					if got := tr.Search(k, tid); got != want {
						t.Fatalf("search(%d) = %v, want %v", k, got, want)
					}
				}
			}
		})
	}
}
