package list

import (
	"golang.org/x/exp/constraints"

	"github.com/lockfree-go/scot/reclaim"
	"github.com/lockfree-go/scot/wfhelp"
)

// HarrisMichael is the per-step-unlink variant from spec.md §4.8: on
// encountering a marked node it immediately CASes it out and retires it,
// restarting on failure, rather than batching the whole run.
//
// Grounded on _examples/original_source/SCOT/HarrisMichaelLinkedListNR.hpp.
type HarrisMichael[K constraints.Ordered] struct {
	head   *Node[K]
	rec    reclaim.Reclaimer[*Node[K]]
	helper *wfhelp.Helper[K]
}

func NewHarrisMichael[K constraints.Ordered](rec reclaim.Reclaimer[*Node[K]], helper *wfhelp.Helper[K]) *HarrisMichael[K] {
	return &HarrisMichael[K]{head: newNode[K](*new(K), nil), rec: rec, helper: helper}
}

func (h *HarrisMichael[K]) find(key K, tid int) (*Node[K], *Node[K]) {
	for {
		prev := h.rec.Protect(slotLastSafePrev, func() *Node[K] { return h.head }, tid)
		curr := h.rec.Protect(slotCurr, func() *Node[K] { return prev.next.Load().next }, tid)
		prevEdge := prev.next.Load()
		restart := false

		for curr != nil {
			ce := curr.next.Load()
			if ce.marked {
				succ := h.rec.Protect(slotNext, func() *Node[K] { return curr.next.Load().next }, tid)
				if prev.next.CompareAndSwap(prevEdge, &edge[K]{next: succ}) {
					h.rec.Retire(curr, tid)
					curr = h.rec.ProtectRelease(slotCurr, succ, tid)
					continue
				}
				restart = true
				break
			}
			if curr.key >= key {
				break
			}
			prev = h.rec.ProtectRelease(slotLastSafePrev, curr, tid)
			prevEdge = ce
			curr = h.rec.ProtectRelease(slotCurr, ce.next, tid)
		}
		if restart {
			continue
		}
		return prev, curr
	}
}

func (h *HarrisMichael[K]) Search(key K, tid int) bool {
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

func (h *HarrisMichael[K]) SearchWF(key K, tid int) bool {
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

func (h *HarrisMichael[K]) Insert(key K, tid int) bool {
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

func (h *HarrisMichael[K]) Remove(key K, tid int) bool {
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

func (h *HarrisMichael[K]) CalculateSpace(tid int) int64 { return h.rec.CalSpace(tid) }
