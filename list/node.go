// Package list implements sorted singly-linked-list ordered sets: the
// classic Harris list with deferred, batched unlinking of logically-deleted
// runs, and the Harris-Michael variant that unlinks eagerly, per step.
//
// Grounded on _examples/original_source/SCOT/HarrisLinkedListLFHP.hpp and
// HarrisMichaelLinkedListNR.hpp, generalized to run over any reclaim.Reclaimer
// instead of one template instantiation per engine.
package list

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"

	"github.com/lockfree-go/scot/reclaim"
)

// edge is the immutable value published atomically in place of a node's
// outgoing pointer. Go's garbage collector cannot tolerate a pointer value
// with its low bits stolen for a mark bit, so the MARK bit spec.md §3
// describes is instead carried as a field on a small allocated wrapper that
// is swapped wholesale by CAS, exactly the pattern the teacher's
// Maps/ChainMap package uses for its own del/next state word.
type edge[K constraints.Ordered] struct {
	marked bool
	next   *Node[K]
}

// Node is a list element. The zero value is not usable; construct with
// newNode.
type Node[K constraints.Ordered] struct {
	key  K
	next atomic.Pointer[edge[K]]
	meta reclaim.Meta
}

func newNode[K constraints.Ordered](key K, next *Node[K]) *Node[K] {
	n := &Node[K]{key: key}
	n.next.Store(&edge[K]{next: next})
	return n
}

// RMeta gives the reclaimer access to this node's bookkeeping fields,
// satisfying reclaim.MetaHolder.
func (n *Node[K]) RMeta() *reclaim.Meta { return &n.meta }

func mark[K constraints.Ordered](e *edge[K]) *edge[K] {
	return &edge[K]{marked: true, next: e.next}
}
