// Package he implements hazard eras: a hybrid of hazard pointers and
// interval-based reclamation where threads publish eras (integers) instead
// of pointers, letting a single published slot protect a whole run of
// pointer reloads instead of one specific pointer value.
//
// Grounded on _examples/original_source/SCOT/HazardEras.hpp.
package he

import (
	"sync/atomic"

	"github.com/lockfree-go/scot/internal/threadslot"
	"github.com/lockfree-go/scot/reclaim"
)

const (
	none       = uint64(0)
	thresholdR = 128
	epochFreq  = 12
)

type perThread[N reclaim.Node[N]] struct {
	eras         []atomic.Uint64
	retired      []N
	epochCounter uint64
	listCounter  uint64
	sum          int64
	count        uint64
	space        int64
	_            [64]byte
}

// HE is the hazard-eras reclaimer described in spec.md §4.4.
type HE[N reclaim.Node[N]] struct {
	eraClock   atomic.Uint64
	maxThreads int
	maxHEs     int
	threads    []perThread[N]
	slots      *threadslot.Set
}

// New returns an HE reclaimer with maxHEs protection slots per thread.
func New[N reclaim.Node[N]](maxHEs, maxThreads int) *HE[N] {
	h := &HE[N]{maxThreads: maxThreads, maxHEs: maxHEs, threads: make([]perThread[N], maxThreads), slots: threadslot.New(maxThreads)}
	h.eraClock.Store(1)
	for i := range h.threads {
		h.threads[i].eras = make([]atomic.Uint64, maxHEs)
	}
	return h
}

func (h *HE[N]) Register() (int, bool) { return h.slots.Acquire() }

func (h *HE[N]) Deregister(tid int) {
	h.Clear(tid)
	h.slots.Release(tid)
}

func (h *HE[N]) InitObject(n N, tid int) N {
	n.RMeta().SetNewEra(h.eraClock.Load())
	return n
}

func (h *HE[N]) StartOp(tid int) {}
func (h *HE[N]) EndOp(tid int)   {}

// Protect publishes the current era into slot, retrying until the era it
// observed while loading is unchanged from the one it published.
func (h *HE[N]) Protect(slot int, load func() N, tid int) N {
	prevEra := h.threads[tid].eras[slot].Load()
	for {
		ptr := load()
		era := h.eraClock.Load()
		if era == prevEra {
			return ptr
		}
		h.threads[tid].eras[slot].Store(era)
		prevEra = era
	}
}

func (h *HE[N]) ProtectRelease(slot int, n N, tid int) N {
	h.threads[tid].eras[slot].Store(h.eraClock.Load())
	return n
}

func (h *HE[N]) Clear(tid int) {
	for i := range h.threads[tid].eras {
		h.threads[tid].eras[i].Store(none)
	}
}

func (h *HE[N]) Retire(n N, tid int) {
	t := &h.threads[tid]
	t.space++
	currEra := h.eraClock.Load()
	n.RMeta().SetDelEra(currEra)
	t.epochCounter++
	if t.epochCounter%(epochFreq*uint64(h.maxThreads)) == 0 {
		h.eraClock.Add(1)
	}
	t.retired = append(t.retired, n)
	t.listCounter++
	if t.listCounter%thresholdR != 0 {
		return
	}

	var eras []uint64
	for i := 0; i < h.maxThreads; i++ {
		for j := 0; j < h.maxHEs; j++ {
			if v := h.threads[i].eras[j].Load(); v != none {
				eras = append(eras, v)
			}
		}
	}

	kept := t.retired[:0]
	for _, obj := range t.retired {
		covered := false
		for _, era := range eras {
			if era >= obj.RMeta().NewEra() && era <= obj.RMeta().DelEra() {
				covered = true
				break
			}
		}
		if covered {
			kept = append(kept, obj)
			continue
		}
		t.space--
	}
	t.retired = kept
}

func (h *HE[N]) TakeSnapshot(tid int) {
	t := &h.threads[tid]
	t.sum += t.space
	t.count++
}

func (h *HE[N]) CalSpace(tid int) int64 {
	t := &h.threads[tid]
	if t.count == 0 {
		return 0
	}
	return t.sum / int64(t.count)
}
