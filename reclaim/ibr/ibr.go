// Package ibr implements interval-based reclamation: each thread publishes
// the epoch interval [low, high] it may still hold references from, and a
// node retired at epoch e born at epoch b is safe to free once no thread's
// interval intersects [b, e].
//
// Grounded on _examples/original_source/SCOT/IBR.hpp.
package ibr

import (
	"math"
	"sync/atomic"

	"github.com/lockfree-go/scot/internal/threadslot"
	"github.com/lockfree-go/scot/reclaim"
)

const (
	epochFreq = 12
	emptyFreq = 128
)

var infinity = uint64(math.MaxUint64)

type reservation struct {
	low  atomic.Uint64
	high atomic.Uint64
	_    [64]byte
}

type perThread[N reclaim.Node[N]] struct {
	retired      []N
	epochCounter uint64
	listCounter  uint64
	sum          int64
	count        uint64
	space        int64
	_            [64]byte
}

// IBR is the interval-based reclaimer described in spec.md §4.2.
type IBR[N reclaim.Node[N]] struct {
	globalEpoch atomic.Uint64
	maxThreads  int
	res         []reservation
	threads     []perThread[N]
	slots       *threadslot.Set
}

// New returns an IBR reclaimer sized for maxThreads worker slots.
func New[N reclaim.Node[N]](maxThreads int) *IBR[N] {
	ib := &IBR[N]{
		maxThreads: maxThreads,
		res:        make([]reservation, maxThreads),
		threads:    make([]perThread[N], maxThreads),
		slots:      threadslot.New(maxThreads),
	}
	for i := range ib.res {
		ib.res[i].low.Store(infinity)
		ib.res[i].high.Store(infinity)
	}
	return ib
}

func (ib *IBR[N]) Register() (int, bool) { return ib.slots.Acquire() }

func (ib *IBR[N]) Deregister(tid int) { ib.slots.Release(tid) }

func (ib *IBR[N]) InitObject(n N, tid int) N {
	t := &ib.threads[tid]
	t.epochCounter++
	if t.epochCounter%(epochFreq*uint64(ib.maxThreads)) == 0 {
		ib.globalEpoch.Add(1)
	}
	n.RMeta().SetBirthEpoch(ib.globalEpoch.Load())
	return n
}

func (ib *IBR[N]) StartOp(tid int) {
	era := ib.globalEpoch.Load()
	ib.res[tid].low.Store(era)
	ib.res[tid].high.Store(era)
}

func (ib *IBR[N]) EndOp(tid int) {
	ib.res[tid].low.Store(infinity)
	ib.res[tid].high.Store(infinity)
}

// Protect reloads the source until the global epoch it observes matches the
// interval's published high mark, extending high on the way as described in
// spec.md §4.2.
func (ib *IBR[N]) Protect(_ int, load func() N, tid int) N {
	prevEra := ib.res[tid].high.Load()
	for {
		ptr := load()
		era := ib.globalEpoch.Load()
		if era == prevEra {
			return ptr
		}
		ib.res[tid].high.Store(era)
		prevEra = era
	}
}

func (ib *IBR[N]) ProtectRelease(_ int, n N, tid int) N { return n }

func (ib *IBR[N]) Clear(tid int) {}

func (ib *IBR[N]) Retire(n N, tid int) {
	t := &ib.threads[tid]
	t.space++
	n.RMeta().SetRetiredEpoch(ib.globalEpoch.Load())
	t.retired = append(t.retired, n)
	t.listCounter++
	if t.listCounter%emptyFreq != 0 {
		return
	}

	low := make([]uint64, ib.maxThreads)
	high := make([]uint64, ib.maxThreads)
	for i := 0; i < ib.maxThreads; i++ {
		low[i] = ib.res[i].low.Load()
		high[i] = ib.res[i].high.Load()
	}

	kept := t.retired[:0]
	for _, obj := range t.retired {
		if canDelete(obj.RMeta().BirthEpoch(), obj.RMeta().RetiredEpoch(), low, high) {
			t.space--
			continue
		}
		kept = append(kept, obj)
	}
	t.retired = kept
}

func canDelete(birth, retired uint64, low, high []uint64) bool {
	for i := range low {
		if high[i] < birth || low[i] > retired {
			continue
		}
		return false
	}
	return true
}

func (ib *IBR[N]) TakeSnapshot(tid int) {
	t := &ib.threads[tid]
	t.sum += t.space
	t.count++
}

func (ib *IBR[N]) CalSpace(tid int) int64 {
	t := &ib.threads[tid]
	if t.count == 0 {
		return 0
	}
	return t.sum / int64(t.count)
}
