// Package ebr implements epoch-based reclamation: a thread publishes the
// global epoch it observed when it started an operation, and a retired node
// is safe to drop once every thread's published epoch has moved past the
// epoch at which the node was retired.
//
// Grounded on _examples/original_source/SCOT/EBR.hpp, generalized to work
// over any node type via the reclaim.Node constraint instead of a single
// template parameter.
package ebr

import (
	"sync/atomic"

	"github.com/lockfree-go/scot/reclaim"
)

const (
	notReading = ^uint64(0) - 1
	unassigned = ^uint64(0) - 2

	epochFreq = 12
	emptyFreq = 128
)

// perThread holds one thread's retirement state, cache-line separated from
// its neighbors by the surrounding padding field.
type perThread[N reclaim.Node[N]] struct {
	readerVersion atomic.Uint64
	retired       []N
	epochCounter  uint64
	listCounter   uint64
	sum           int64
	count         uint64
	space         int64
	_             [64]byte // avoid false sharing between threads' hot counters
}

// EBR is the epoch-based reclaimer described in spec.md §4.1.
type EBR[N reclaim.Node[N]] struct {
	updaterVersion atomic.Uint64
	maxThreads     int
	threads        []perThread[N]
}

// New returns an EBR reclaimer sized for maxThreads worker slots.
func New[N reclaim.Node[N]](maxThreads int) *EBR[N] {
	e := &EBR[N]{maxThreads: maxThreads, threads: make([]perThread[N], maxThreads)}
	for i := range e.threads {
		e.threads[i].readerVersion.Store(unassigned)
	}
	return e
}

func (e *EBR[N]) Register() (int, bool) {
	for i := 0; i < e.maxThreads; i++ {
		if e.threads[i].readerVersion.Load() != unassigned {
			continue
		}
		if e.threads[i].readerVersion.CompareAndSwap(unassigned, notReading) {
			return i, true
		}
	}
	return -1, false
}

func (e *EBR[N]) Deregister(tid int) {
	e.threads[tid].readerVersion.Store(unassigned)
}

func (e *EBR[N]) InitObject(n N, tid int) N { return n }

func (e *EBR[N]) StartOp(tid int) {
	e.threads[tid].readerVersion.Store(e.updaterVersion.Load())
}

func (e *EBR[N]) EndOp(tid int) {
	e.threads[tid].readerVersion.Store(notReading)
}

// Protect is a plain load: within the StartOp/EndOp window the thread's
// published epoch already protects everything it can reach, so no
// per-pointer publication is needed.
func (e *EBR[N]) Protect(slot int, load func() N, tid int) N { return load() }

func (e *EBR[N]) ProtectRelease(slot int, n N, tid int) N { return n }

func (e *EBR[N]) Clear(tid int) {}

func (e *EBR[N]) Retire(n N, tid int) {
	t := &e.threads[tid]
	t.space++
	n.RMeta().SetRetiredEpoch(e.updaterVersion.Load())
	t.retired = append(t.retired, n)

	t.epochCounter++
	if t.epochCounter%(epochFreq*uint64(e.maxThreads)) == 0 {
		e.updaterVersion.Add(1)
	}
	t.listCounter++
	if t.listCounter%emptyFreq == 0 {
		e.tryEmpty(tid)
	}
}

// tryEmpty walks the retired list from the head, which is monotone in
// retired_epoch by append order, and drops the prefix that is now safe to
// collect.
func (e *EBR[N]) tryEmpty(tid int) {
	safe := e.threads[0].readerVersion.Load()
	for i := 1; i < e.maxThreads; i++ {
		if v := e.threads[i].readerVersion.Load(); v < safe {
			safe = v
		}
	}
	t := &e.threads[tid]
	i := 0
	for ; i < len(t.retired); i++ {
		if t.retired[i].RMeta().RetiredEpoch() >= safe {
			break
		}
		t.space--
	}
	t.retired = t.retired[i:]
}

func (e *EBR[N]) TakeSnapshot(tid int) {
	t := &e.threads[tid]
	t.sum += t.space
	t.count++
}

func (e *EBR[N]) CalSpace(tid int) int64 {
	t := &e.threads[tid]
	if t.count == 0 {
		return 0
	}
	return t.sum / int64(t.count)
}
