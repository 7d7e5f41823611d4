// Package tree implements the Natarajan-Mittal external binary search tree:
// a leaf-oriented lock-free BST where every real key lives at a leaf and
// internal nodes only route, using flagged and tagged edges to coordinate
// concurrent removal.
//
// Grounded on _examples/original_source/SCOT/NatarajanMittalTreeEBR.hpp and
// NatarajanMittalTreeHP.hpp, generalized over any reclaim.Reclaimer.
package tree

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"

	"github.com/lockfree-go/scot/reclaim"
)

// edge is the immutable value published in place of a child pointer. flg
// marks the edge as scheduled for deletion (set on the parent->leaf edge
// during the injection phase of remove); tag marks a sibling edge as locked
// during cleanup, protecting it from a second concurrent splice.
type edge[K constraints.Ordered] struct {
	flg   bool
	tag   bool
	child *Node[K]
}

// Node is either an internal routing node or a leaf holding a real key. inf
// is nonzero only for sentinel-ranked nodes (rank 1..3, INF0 < INF1 < INF2):
// the three bootstrap sentinel leaves, the bootstrap S (rank 2) and root
// (rank 3) internal nodes, and any internal node Insert creates by pairing a
// real key with a sentinel leaf (which takes that leaf's rank). Such nodes
// compare greater than every real key; this avoids needing K itself to
// supply an infinite value.
type Node[K constraints.Ordered] struct {
	key    K
	inf    int
	isLeaf bool
	left   atomic.Pointer[edge[K]]
	right  atomic.Pointer[edge[K]]
	meta   reclaim.Meta
}

func newLeaf[K constraints.Ordered](key K) *Node[K] {
	return &Node[K]{key: key, isLeaf: true}
}

func newSentinelLeaf[K constraints.Ordered](rank int) *Node[K] {
	return &Node[K]{isLeaf: true, inf: rank}
}

func newInternal[K constraints.Ordered](key K, left, right *Node[K]) *Node[K] {
	n := &Node[K]{key: key}
	n.left.Store(&edge[K]{child: left})
	n.right.Store(&edge[K]{child: right})
	return n
}

// RMeta satisfies reclaim.MetaHolder.
func (n *Node[K]) RMeta() *reclaim.Meta { return &n.meta }

// ge reports whether n's routing key is strictly greater than key, treating
// any sentinel rank as infinitely large. A key equal to a routing key always
// lives at or under the right child (Insert always assigns the routing key
// to the pair's larger member), so routing left requires strict >.
func ge[K constraints.Ordered](n *Node[K], key K) bool {
	return n.inf > 0 || n.key > key
}
