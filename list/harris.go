package list

import (
	"golang.org/x/exp/constraints"

	"github.com/lockfree-go/scot/reclaim"
	"github.com/lockfree-go/scot/wfhelp"
)

// Protection slots used by the lock-free traversal, matching the four-slot
// dance spec.md §4.7 describes for the HP/HE variants: kHp0=next,
// kHp1=curr, kHp2=first-unsafe (start of a marked run), kHp3=last-safe-prev.
// Epoch-framed reclaimers (EBR/IBR/Hyaline/NR) ignore the slot index and
// just perform the load inside their start_op/end_op window.
const (
	slotNext = iota
	slotCurr
	slotFirstUnsafe
	slotLastSafePrev
	numSlots
)

// Harris is the deferred-unlink sorted list from spec.md §4.7, parameterised
// by any reclamation engine implementing reclaim.Reclaimer.
type Harris[K constraints.Ordered] struct {
	head *Node[K]
	rec  reclaim.Reclaimer[*Node[K]]

	// helper is non-nil only for the wait-free variant; SearchWF panics if
	// called without one.
	helper *wfhelp.Helper[K]
}

// NumProtectionSlots reports how many hazard/era slots a caller must size
// its reclaimer with to use this container.
func NumProtectionSlots() int { return numSlots }

// NewHarris returns an empty Harris list bound to rec. helper may be nil;
// pass one from wfhelp.New to enable SearchWF.
func NewHarris[K constraints.Ordered](rec reclaim.Reclaimer[*Node[K]], helper *wfhelp.Helper[K]) *Harris[K] {
	return &Harris[K]{head: newNode[K](*new(K), nil), rec: rec, helper: helper}
}

// find returns (prev, curr) such that prev is the last unmarked node with
// key < key and curr is the first node with key >= key (or nil), unlinking
// any marked run it finds immediately before curr in a single CAS.
func (h *Harris[K]) find(key K, tid int) (*Node[K], *Node[K]) {
	for {
		prev := h.rec.Protect(slotLastSafePrev, func() *Node[K] { return h.head }, tid)
		curr := h.rec.Protect(slotCurr, func() *Node[K] { return prev.next.Load().next }, tid)
		prevEdge := prev.next.Load()

		var firstUnsafe *Node[K]
		markedRun := false

		for curr != nil {
			ce := curr.next.Load()
			nextNode := h.rec.Protect(slotNext, func() *Node[K] { return curr.next.Load().next }, tid)
			if ce.marked {
				if !markedRun {
					firstUnsafe = h.rec.ProtectRelease(slotFirstUnsafe, curr, tid)
					markedRun = true
				}
				curr = h.rec.ProtectRelease(slotCurr, nextNode, tid)
				continue
			}
			if curr.key >= key {
				break
			}
			prev = h.rec.ProtectRelease(slotLastSafePrev, curr, tid)
			prevEdge = ce
			curr = h.rec.ProtectRelease(slotCurr, nextNode, tid)
			markedRun = false
		}

		if !markedRun {
			return prev, curr
		}

		newEdge := &edge[K]{next: curr}
		if prev.next.CompareAndSwap(prevEdge, newEdge) {
			for n := firstUnsafe; n != curr; {
				next := n.next.Load().next
				h.rec.Retire(n, tid)
				n = next
			}
			return prev, curr
		}
		// lost the unlinking CAS to a concurrent mutator; restart clean.
	}
}

// Search performs a read-only traversal with no CAS attempts: it never
// disturbs a marked run, only reports whether key is present. This is the
// primitive SearchWF uses both for its own key and for a request it helps.
func (h *Harris[K]) Search(key K, tid int) bool {
	h.rec.StartOp(tid)
	defer h.rec.EndOp(tid)

	curr := h.rec.Protect(slotCurr, func() *Node[K] { return h.head.next.Load().next }, tid)
	for curr != nil {
		e := curr.next.Load()
		if curr.key >= key {
			return !e.marked && curr.key == key
		}
		next := h.rec.Protect(slotNext, func() *Node[K] { return curr.next.Load().next }, tid)
		curr = h.rec.ProtectRelease(slotCurr, next, tid)
	}
	return false
}

// SearchWF wraps Search with the cooperative helping protocol of spec.md
// §4.6 and §4.7: before searching, it services one outstanding request from
// another thread if its round-robin turn has come up. Because Search is
// already a single bounded pass, a caller that answers Threshold searches in
// a row on the bare lock-free path is already wait-free on its own; only
// every Threshold-th call pays the cost of publishing its own request and
// awaiting the answer through the full helping protocol, which keeps the
// helping array exercised under light contention without paying the publish
// overhead on every search.
func (h *Harris[K]) SearchWF(key K, tid int) bool {
	if other, requester, tag, ok := h.helper.HelpThreads(tid); ok {
		found := h.Search(other, tid)
		h.helper.ProduceResult(requester, tag, found, tid)
	}
	if h.helper.ShouldUseFastPath(tid) {
		return h.Search(key, tid)
	}
	tag := h.helper.RequestHelp(key, tid)
	found := h.Search(key, tid)
	h.helper.ProduceResult(tid, tag, found, tid)
	return h.helper.AwaitResult(tid, tag)
}

// Insert adds key if absent, returning true iff it was newly inserted.
func (h *Harris[K]) Insert(key K, tid int) bool {
	h.rec.StartOp(tid)
	defer h.rec.EndOp(tid)

	n := h.rec.InitObject(newNode(key, nil), tid)
	for {
		prev, curr := h.find(key, tid)
		if curr != nil && curr.key == key {
			return false
		}
		prevOld := prev.next.Load()
		if prevOld.next != curr {
			continue
		}
		n.next.Store(&edge[K]{next: curr})
		if prev.next.CompareAndSwap(prevOld, &edge[K]{next: n}) {
			return true
		}
	}
}

// Remove deletes key if present, returning true iff it was removed.
func (h *Harris[K]) Remove(key K, tid int) bool {
	h.rec.StartOp(tid)
	defer h.rec.EndOp(tid)
	h.rec.TakeSnapshot(tid)

	for {
		prev, curr := h.find(key, tid)
		if curr == nil || curr.key != key {
			return false
		}
		next := curr.next.Load()
		if !curr.next.CompareAndSwap(next, mark(next)) {
			continue
		}
		if prevOld := prev.next.Load(); prevOld.next == curr {
			if prev.next.CompareAndSwap(prevOld, &edge[K]{next: next.next}) {
				h.rec.Retire(curr, tid)
			}
		}
		return true
	}
}

// CalculateSpace reports the per-thread time-averaged retained-node count.
func (h *Harris[K]) CalculateSpace(tid int) int64 { return h.rec.CalSpace(tid) }
