// Package nr implements the no-reclamation baseline: retired nodes are
// counted but never freed. It exists purely as a throughput and memory-growth
// reference point for the other five engines, per spec.md §4.1's baseline
// note.
package nr

import (
	"github.com/lockfree-go/scot/internal/threadslot"
	"github.com/lockfree-go/scot/reclaim"
)

type perThread struct {
	space int64
	sum   int64
	count uint64
	_     [64]byte
}

// NR never reclaims a retired node.
type NR[N reclaim.Node[N]] struct {
	maxThreads int
	threads    []perThread
	slots      *threadslot.Set
}

func New[N reclaim.Node[N]](maxThreads int) *NR[N] {
	return &NR[N]{maxThreads: maxThreads, threads: make([]perThread, maxThreads), slots: threadslot.New(maxThreads)}
}

func (nr *NR[N]) Register() (int, bool) { return nr.slots.Acquire() }

func (nr *NR[N]) Deregister(tid int) { nr.slots.Release(tid) }

func (nr *NR[N]) InitObject(n N, tid int) N { return n }

func (nr *NR[N]) StartOp(tid int) {}
func (nr *NR[N]) EndOp(tid int)   {}

func (nr *NR[N]) Protect(_ int, load func() N, tid int) N { return load() }
func (nr *NR[N]) ProtectRelease(_ int, n N, tid int) N    { return n }
func (nr *NR[N]) Clear(tid int)                           {}

func (nr *NR[N]) Retire(n N, tid int) {
	nr.threads[tid].space++
}

func (nr *NR[N]) TakeSnapshot(tid int) {
	t := &nr.threads[tid]
	t.sum += t.space
	t.count++
}

func (nr *NR[N]) CalSpace(tid int) int64 {
	t := &nr.threads[tid]
	if t.count == 0 {
		return 0
	}
	return t.sum / int64(t.count)
}
