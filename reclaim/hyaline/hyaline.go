// Package hyaline implements a Hyaline-style reclaimer: readers publish
// coverage of a monotonically increasing generation counter on entry, and a
// batch of retired nodes published at generation g becomes reclaimable once
// every reader's coverage has moved past g.
//
// The original (_examples/original_source/SCOT/Hyaline.hpp) delegates to an
// external lock-free bounded-size multi-reader-object library
// ("hyaline/lfbsmro.h") that is not part of the retrieved sources. This
// package reproduces the contract spec.md §4.5 describes — bounded reader
// slots, batched retirement, deferred reclamation until the last covering
// reader leaves — using the same generation-watermark technique already
// used by this module's ebr and ibr packages, applied at batch granularity
// instead of per node.
package hyaline

import (
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/lockfree-go/scot/internal/threadslot"
	"github.com/lockfree-go/scot/reclaim"
)

const emptyFreq = 128

var idle = uint64(math.MaxUint64)

type batch[N any] struct {
	nodes []N
	gen   uint64
}

type perThread[N reclaim.Node[N]] struct {
	readerGen atomic.Uint64
	current   []N
	pending   []batch[N]
	sum       int64
	count     uint64
	space     int64
	_         [64]byte
}

// Hyaline is the batch-generation reclaimer standing in for spec.md §4.5's
// reference-counted scheme; it keeps no per-batch reference counts.
type Hyaline[N reclaim.Node[N]] struct {
	globalGen  atomic.Uint64
	maxThreads int
	order      int
	batchSize  int
	threads    []perThread[N]
	slots      *threadslot.Set
}

// New returns a Hyaline reclaimer sized for maxThreads worker slots. order
// is the number of reader-slot address bits (⌈log2(maxThreads)⌉), kept for
// parity with the source's slot-count derivation even though this package
// shards readers directly by tid rather than by a separate slot index.
func New[N reclaim.Node[N]](maxThreads int) *Hyaline[N] {
	order := bits.Len(uint(maxThreads - 1))
	batchSize := emptyFreq
	if maxThreads >= batchSize {
		batchSize = maxThreads + 1
	}
	hy := &Hyaline[N]{
		maxThreads: maxThreads,
		order:      order,
		batchSize:  batchSize,
		threads:    make([]perThread[N], maxThreads),
		slots:      threadslot.New(maxThreads),
	}
	for i := range hy.threads {
		hy.threads[i].readerGen.Store(idle)
	}
	return hy
}

func (hy *Hyaline[N]) Register() (int, bool) { return hy.slots.Acquire() }

func (hy *Hyaline[N]) Deregister(tid int) { hy.slots.Release(tid) }

func (hy *Hyaline[N]) InitObject(n N, tid int) N { return n }

func (hy *Hyaline[N]) StartOp(tid int) {
	hy.threads[tid].readerGen.Store(hy.globalGen.Load())
}

func (hy *Hyaline[N]) EndOp(tid int) {
	hy.threads[tid].readerGen.Store(idle)
	hy.reclaimReady(tid)
}

func (hy *Hyaline[N]) Protect(_ int, load func() N, tid int) N { return load() }
func (hy *Hyaline[N]) ProtectRelease(_ int, n N, tid int) N    { return n }
func (hy *Hyaline[N]) Clear(tid int)                           {}

func (hy *Hyaline[N]) Retire(n N, tid int) {
	t := &hy.threads[tid]
	t.space++
	t.current = append(t.current, n)
	if len(t.current) < hy.batchSize {
		return
	}
	gen := hy.globalGen.Load()
	hy.globalGen.Add(1)
	t.pending = append(t.pending, batch[N]{nodes: t.current, gen: gen})
	t.current = nil
	hy.reclaimReady(tid)
}

func (hy *Hyaline[N]) reclaimReady(tid int) {
	t := &hy.threads[tid]
	if len(t.pending) == 0 {
		return
	}
	safe := hy.safeGen()
	kept := t.pending[:0]
	for _, b := range t.pending {
		if b.gen < safe {
			t.space -= int64(len(b.nodes))
			continue
		}
		kept = append(kept, b)
	}
	t.pending = kept
}

func (hy *Hyaline[N]) safeGen() uint64 {
	safe := idle
	for i := 0; i < hy.maxThreads; i++ {
		if v := hy.threads[i].readerGen.Load(); v < safe {
			safe = v
		}
	}
	return safe
}

func (hy *Hyaline[N]) TakeSnapshot(tid int) {
	t := &hy.threads[tid]
	t.sum += t.space
	t.count++
}

func (hy *Hyaline[N]) CalSpace(tid int) int64 {
	t := &hy.threads[tid]
	if t.count == 0 {
		return 0
	}
	return t.sum / int64(t.count)
}
