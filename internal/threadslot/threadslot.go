// Package threadslot allocates the small integer thread ids ("tid") that
// every reclaim.Reclaimer hands out from Register. It is adapted from
// BitArray.go's plain word-packed bit array: that version stored one bit
// per index but read and wrote it non-atomically, which is only safe for
// single-threaded bitsets. Concurrent Register/Deregister calls need each
// bit tested and set as one atomic step, so this version packs bits into
// atomic.Uint64 words and claims one via a CAS loop instead of a plain OR.
package threadslot

import (
	"math/bits"
	"sync/atomic"
)

// Set is a fixed-size bitset of thread-slot occupancy flags.
type Set struct {
	words []atomic.Uint64
	n     int
}

// New returns a Set with n slots, all initially free.
func New(n int) *Set {
	return &Set{words: make([]atomic.Uint64, (n+63)/64), n: n}
}

// Acquire claims the lowest-numbered free slot and returns it, or (-1,
// false) if every slot is taken.
func (s *Set) Acquire() (int, bool) {
	for w := range s.words {
		for {
			old := s.words[w].Load()
			inv := ^old
			if inv == 0 {
				break // word full, try the next one
			}
			bit := bits.TrailingZeros64(inv)
			idx := w*64 + bit
			if idx >= s.n {
				break
			}
			if s.words[w].CompareAndSwap(old, old|(1<<uint(bit))) {
				return idx, true
			}
			// lost the race for this word; reload and retry
		}
	}
	return -1, false
}

// Release frees slot i, making it eligible for a future Acquire.
func (s *Set) Release(i int) {
	w, bit := i/64, uint(i%64)
	for {
		old := s.words[w].Load()
		if s.words[w].CompareAndSwap(old, old&^(1<<bit)) {
			return
		}
	}
}
