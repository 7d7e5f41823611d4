// Package hp implements classic hazard pointers: each thread publishes the
// pointers it is currently dereferencing into a small per-thread slot array,
// and a retired node may only be freed once no thread's slot array still
// names it.
//
// Grounded on _examples/original_source/SCOT/HazardPointersOrig.hpp.
package hp

import (
	"sync/atomic"

	"github.com/lockfree-go/scot/internal/threadslot"
	"github.com/lockfree-go/scot/reclaim"
)

const thresholdR = 128

type perThread[N reclaim.Node[N]] struct {
	slots       []atomic.Pointer[nodeBox[N]]
	retired     []N
	listCounter uint64
	sum         int64
	count       uint64
	space       int64
	_           [64]byte
}

// nodeBox lets us store an N (an interface-free generic pointer type) inside
// an atomic.Pointer slot, since atomic.Pointer needs a concrete pointee type
// and N itself is only known to be comparable.
type nodeBox[N any] struct{ n N }

// HP is the hazard-pointer reclaimer described in spec.md §4.3.
type HP[N reclaim.Node[N]] struct {
	maxThreads int
	maxHPs     int
	threads    []perThread[N]
	slots      *threadslot.Set
}

// New returns an HP reclaimer with maxHPs protection slots per thread.
func New[N reclaim.Node[N]](maxHPs, maxThreads int) *HP[N] {
	h := &HP[N]{maxThreads: maxThreads, maxHPs: maxHPs, threads: make([]perThread[N], maxThreads), slots: threadslot.New(maxThreads)}
	for i := range h.threads {
		h.threads[i].slots = make([]atomic.Pointer[nodeBox[N]], maxHPs)
	}
	return h
}

func (h *HP[N]) Register() (int, bool) { return h.slots.Acquire() }

func (h *HP[N]) Deregister(tid int) {
	h.Clear(tid)
	h.slots.Release(tid)
}

func (h *HP[N]) InitObject(n N, tid int) N { return n }

func (h *HP[N]) StartOp(tid int) {}
func (h *HP[N]) EndOp(tid int)   {}

// Protect publishes load()'s result into slot and re-observes load() until
// two consecutive loads agree, exactly the standard hazard-pointer
// re-observation loop.
func (h *HP[N]) Protect(slot int, load func() N, tid int) N {
	var prev N
	first := true
	for {
		ret := load()
		if !first && ret == prev {
			return ret
		}
		h.threads[tid].slots[slot].Store(&nodeBox[N]{ret})
		prev = ret
		first = false
	}
}

func (h *HP[N]) ProtectRelease(slot int, n N, tid int) N {
	h.threads[tid].slots[slot].Store(&nodeBox[N]{n})
	return n
}

func (h *HP[N]) Clear(tid int) {
	for i := range h.threads[tid].slots {
		h.threads[tid].slots[i].Store(nil)
	}
}

func (h *HP[N]) Retire(n N, tid int) {
	t := &h.threads[tid]
	t.space++
	t.retired = append(t.retired, n)
	t.listCounter++
	if t.listCounter%thresholdR != 0 {
		return
	}

	hazards := make(map[N]struct{})
	for i := 0; i < h.maxThreads; i++ {
		for j := 0; j < h.maxHPs; j++ {
			if b := h.threads[i].slots[j].Load(); b != nil && !reclaim.Zero(b.n) {
				hazards[b.n] = struct{}{}
			}
		}
	}

	kept := t.retired[:0]
	for _, obj := range t.retired {
		if _, hazarded := hazards[obj]; hazarded {
			kept = append(kept, obj)
			continue
		}
		t.space--
	}
	t.retired = kept
}

func (h *HP[N]) TakeSnapshot(tid int) {
	t := &h.threads[tid]
	t.sum += t.space
	t.count++
}

func (h *HP[N]) CalSpace(tid int) int64 {
	t := &h.threads[tid]
	if t.count == 0 {
		return 0
	}
	return t.sum / int64(t.count)
}
