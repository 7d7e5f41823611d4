// Package wfhelp implements the cooperative helping layer that converts a
// lock-free search into a wait-free one: a stalled thread publishes a
// request, and any other thread that happens to pass through the round-robin
// probe performs the search on its behalf and publishes the answer back.
//
// Grounded on _examples/original_source/SCOT/WaitFree.hpp. Deviates from it
// per spec.md §9's Open Question: instead of packing an output boolean into
// the upper bits of the same tag used for the input key (unsound for search,
// per the spec's own analysis), each request gets its own result cell that a
// helper publishes into and the invoker reads back only when the result's tag
// matches its own, never inferring an answer from a later, unrelated tag.
package wfhelp

import (
	"sync/atomic"

	"github.com/cornelk/hashmap"
)

const (
	// Threshold is the period of ShouldUseFastPath: a thread answers
	// Threshold-1 searches in a row itself on the bare lock-free path, and
	// every Threshold-th search pays the cost of the full publish/await
	// protocol, so the helping array still
	// gets exercised periodically under light contention instead of only
	// when a caller is actually stalled.
	Threshold = 32
	// Delay is how many fast-path operations a thread performs between
	// probes of another thread's outstanding request.
	Delay = 16
)

type result struct {
	tag   uint64
	found bool
}

type controller[K comparable] struct {
	key        atomic.Pointer[K]
	tag        atomic.Uint64
	res        atomic.Pointer[result]
	nextCheck  uint64
	fastBudget uint64
	localTag   uint64
	currTid    uint64
	_          [64]byte
}

// Helper is the wait-free helping array described in spec.md §4.6, generic
// over the key type carried in a request.
type Helper[K comparable] struct {
	maxThreads int
	ctl        []controller[K]

	// servicedBy is a debug/test aid recording which tid last serviced a
	// given tag for a given requester, letting tests confirm every
	// request eventually gets serviced instead of only trusting timing.
	// It is never read on the hot path.
	servicedBy *hashmap.Map[uint64, int]
}

// New returns a Helper sized for maxThreads participants.
func New[K comparable](maxThreads int) *Helper[K] {
	h := &Helper[K]{
		maxThreads: maxThreads,
		ctl:        make([]controller[K], maxThreads),
		servicedBy: hashmap.New[uint64, int](),
	}
	for i := range h.ctl {
		h.ctl[i].nextCheck = Delay
		h.ctl[i].fastBudget = Threshold
		h.ctl[i].localTag = 1 // odd: awaiting input
	}
	return h
}

// ShouldUseFastPath decrements tid's retry budget and reports whether tid
// should just answer its own search directly on the bare lock-free path.
// Every Threshold-th call it resets the budget and returns false instead, so
// the caller falls back to publishing a request and awaiting the answer
// through the full helping protocol.
func (h *Helper[K]) ShouldUseFastPath(tid int) bool {
	c := &h.ctl[tid]
	c.fastBudget--
	if c.fastBudget != 0 {
		return true
	}
	c.fastBudget = Threshold
	return false
}

// requestKey packs a (tid, tag) pair into a single map key for servicedBy.
func requestKey(tid int, tag uint64) uint64 {
	return uint64(uint32(tid))<<32 | (tag & 0xffffffff)
}

// RequestHelp publishes key as an outstanding request for tid and returns
// the tag identifying this specific request.
func (h *Helper[K]) RequestHelp(key K, tid int) uint64 {
	c := &h.ctl[tid]
	c.key.Store(&key)
	tag := c.localTag
	c.res.Store(nil)
	c.tag.Store(tag)
	c.localTag = tag + 2
	return tag
}

// CheckResult returns the result published for tid's current tag, if any.
func (h *Helper[K]) CheckResult(tid int, tag uint64) (found, ok bool) {
	r := h.ctl[tid].res.Load()
	if r == nil || r.tag != tag {
		return false, false
	}
	return r.found, true
}

// AwaitResult busy-polls CheckResult until the request tagged tag for tid is
// serviced. Used by the wait-free container variant, which synchronously
// waits on its own request rather than retrying the lock-free path itself.
func (h *Helper[K]) AwaitResult(tid int, tag uint64) bool {
	for {
		if found, ok := h.CheckResult(tid, tag); ok {
			return found
		}
	}
}

// ProduceResult publishes found for the outstanding request tagged tag on
// behalf of requester. If the requester has since moved on to a newer
// request (its published tag no longer matches), the result is dropped:
// nobody is waiting on it anymore.
func (h *Helper[K]) ProduceResult(requester int, tag uint64, found bool, myTid int) {
	c := &h.ctl[requester]
	if c.tag.Load() != tag {
		return
	}
	c.res.Store(&result{tag: tag, found: found})
	h.servicedBy.Set(requestKey(requester, tag), myTid)
}

// HelpThreads is called every fast-path operation; every Delay calls it
// probes the next thread in round-robin order and, if that thread has an
// outstanding request, returns the key and tag for the caller to service via
// its own Search. tid is the calling (helping) thread's own slot.
func (h *Helper[K]) HelpThreads(tid int) (key K, requester int, tag uint64, ok bool) {
	c := &h.ctl[tid]
	c.nextCheck--
	if c.nextCheck != 0 {
		return key, 0, 0, false
	}
	c.nextCheck = Delay

	curr := c.currTid
	c.currTid = (curr + 1) % uint64(h.maxThreads)
	if int(curr) == tid {
		return key, 0, 0, false
	}

	other := &h.ctl[curr]
	tagVal := other.tag.Load()
	if tagVal&1 == 0 {
		return key, 0, 0, false // even (zero): no request ever published
	}
	if r := other.res.Load(); r != nil && r.tag == tagVal {
		return key, 0, 0, false // already answered, no pending input
	}
	kp := other.key.Load()
	if kp == nil || other.tag.Load() != tagVal {
		return key, 0, 0, false // request mutated under us, skip this round
	}
	return *kp, int(curr), tagVal, true
}
