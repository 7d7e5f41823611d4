package tree

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"

	"github.com/lockfree-go/scot/reclaim"
)

// Protection slots. NatarajanMittalTreeHP.hpp uses 5 slots
// (current/leaf/parent/successor/ancestor); this traversal folds the
// transient "current" child read into the leaf slot it settles into, since
// nothing else observes the intermediate value.
const (
	slotLeaf = iota
	slotParent
	slotSuccessor
	slotAncestor
	numTreeSlots
)

func NumProtectionSlots() int { return numTreeSlots }

// NatarajanMittal is the external BST from spec.md §4.9.
type NatarajanMittal[K constraints.Ordered] struct {
	root *Node[K]
	rec  reclaim.Reclaimer[*Node[K]]
}

// New bootstraps the sentinel universe (Root -> S -> INF0 leaf, per the
// original paper's three-rank sentinel construction) and binds rec.
func New[K constraints.Ordered](rec reclaim.Reclaimer[*Node[K]]) *NatarajanMittal[K] {
	inf0 := newSentinelLeaf[K](1)
	inf1 := newSentinelLeaf[K](2)
	inf2 := newSentinelLeaf[K](3)
	s := &Node[K]{inf: 2}
	s.left.Store(&edge[K]{child: inf0})
	s.right.Store(&edge[K]{child: inf1})
	root := &Node[K]{inf: 3}
	root.left.Store(&edge[K]{child: s})
	root.right.Store(&edge[K]{child: inf2})
	return &NatarajanMittal[K]{root: root, rec: rec}
}

type seekRecord[K constraints.Ordered] struct {
	ancestor, successor, parent, leaf *Node[K]
}

// seek walks from the root, tracking (ancestor, successor) as the (parent,
// leaf) pair one level above the edge that is about to be traversed,
// recorded only once that edge is confirmed untagged. This mirrors the
// original's ordering (NatarajanMittalTreeEBR.hpp's seek): ancestor/
// successor are pulled forward to the current (parent, leaf) before parent
// and leaf themselves advance, so successor always lands on the internal
// node cleanup needs to splice out, never on the leaf beneath it.
func (t *NatarajanMittal[K]) seek(key K, tid int) seekRecord[K] {
	ancestor := t.rec.Protect(slotAncestor, func() *Node[K] { return t.root }, tid)
	parent := t.rec.Protect(slotParent, func() *Node[K] { return t.root.left.Load().child }, tid)
	successor := t.rec.ProtectRelease(slotSuccessor, parent, tid)
	leaf := t.rec.Protect(slotLeaf, func() *Node[K] { return parent.left.Load().child }, tid)
	tagged := parent.left.Load().tag

	for !leaf.isLeaf {
		if !tagged {
			ancestor = t.rec.ProtectRelease(slotAncestor, parent, tid)
			successor = t.rec.ProtectRelease(slotSuccessor, leaf, tid)
		}
		parent = t.rec.ProtectRelease(slotParent, leaf, tid)
		if ge(parent, key) {
			leaf = t.rec.Protect(slotLeaf, func() *Node[K] { return parent.left.Load().child }, tid)
			tagged = parent.left.Load().tag
		} else {
			leaf = t.rec.Protect(slotLeaf, func() *Node[K] { return parent.right.Load().child }, tid)
			tagged = parent.right.Load().tag
		}
	}
	return seekRecord[K]{ancestor: ancestor, successor: successor, parent: parent, leaf: leaf}
}

// Search reports whether key is present.
func (t *NatarajanMittal[K]) Search(key K, tid int) bool {
	t.rec.StartOp(tid)
	defer t.rec.EndOp(tid)
	rec := t.seek(key, tid)
	return rec.leaf.inf == 0 && rec.leaf.key == key
}

// Insert adds key if absent.
func (t *NatarajanMittal[K]) Insert(key K, tid int) bool {
	t.rec.StartOp(tid)
	defer t.rec.EndOp(tid)

	for {
		rec := t.seek(key, tid)
		leaf := rec.leaf
		if leaf.inf == 0 && leaf.key == key {
			return false
		}

		added := t.rec.InitObject(newLeaf[K](key), tid)
		var branch *Node[K]
		switch {
		case leaf.inf > 0:
			// Pairing against a sentinel: the new branch inherits the
			// sentinel's rank (the original's NT_KEY_NULL routing key)
			// instead of a concrete key, so it keeps routing every real
			// key toward added's side, the same way NULL always compares
			// as "greater" in the original.
			branch = newInternal(*new(K), added, leaf)
			branch.inf = leaf.inf
		case key < leaf.key:
			branch = newInternal(leaf.key, added, leaf)
		default:
			branch = newInternal(key, leaf, added)
		}

		parent := rec.parent
		leftEdge := parent.left.Load()
		rightEdge := parent.right.Load()
		var parentPtr *atomic.Pointer[edge[K]]
		var oldEdge *edge[K]
		if leftEdge.child == leaf {
			parentPtr, oldEdge = &parent.left, leftEdge
		} else if rightEdge.child == leaf {
			parentPtr, oldEdge = &parent.right, rightEdge
		} else {
			continue // parent has already changed under us; reseek
		}

		if oldEdge.flg || oldEdge.tag {
			t.cleanup(key, rec, tid)
			continue
		}

		if parentPtr.CompareAndSwap(oldEdge, &edge[K]{child: branch}) {
			return true
		}
	}
}

// Remove deletes key if present.
func (t *NatarajanMittal[K]) Remove(key K, tid int) bool {
	t.rec.StartOp(tid)
	defer t.rec.EndOp(tid)
	t.rec.TakeSnapshot(tid)

	rec := t.seek(key, tid)
	if rec.leaf.inf != 0 || rec.leaf.key != key {
		return false
	}

	for {
		parent := rec.parent
		leaf := rec.leaf
		leftEdge := parent.left.Load()
		rightEdge := parent.right.Load()
		var parentPtr *atomic.Pointer[edge[K]]
		var oldEdge *edge[K]
		if leftEdge.child == leaf {
			parentPtr, oldEdge = &parent.left, leftEdge
		} else if rightEdge.child == leaf {
			parentPtr, oldEdge = &parent.right, rightEdge
		} else {
			return true // already spliced out by a helper
		}
		if oldEdge.flg {
			break // already injected, possibly by us on a prior loop
		}
		if oldEdge.tag {
			t.cleanup(key, rec, tid)
			rec = t.seek(key, tid)
			if rec.leaf.inf != 0 || rec.leaf.key != key {
				return true
			}
			continue
		}
		if parentPtr.CompareAndSwap(oldEdge, &edge[K]{tag: oldEdge.tag, flg: true, child: leaf}) {
			break
		}
		rec = t.seek(key, tid)
		if rec.leaf.inf != 0 || rec.leaf.key != key {
			return true
		}
	}

	// Injection linearized the removal; drive cleanup until the flagged
	// leaf is physically unlinked, re-seeking on each failed attempt since
	// the tree may have changed underneath us.
	for {
		if t.cleanup(key, rec, tid) {
			return true
		}
		next := t.seek(key, tid)
		if next.leaf.inf != 0 || next.leaf.key != key {
			return true // a helper finished the job
		}
		rec = next
	}
}

// cleanup physically unlinks rec.parent and its flagged child, splicing
// rec.ancestor directly onto rec.parent's surviving sibling. Returns false
// if the caller must re-seek and retry (the recorded ancestor/successor/
// parent no longer form a consistent path).
func (t *NatarajanMittal[K]) cleanup(key K, rec seekRecord[K], tid int) bool {
	parent, leaf := rec.parent, rec.leaf

	leftEdge := parent.left.Load()
	rightEdge := parent.right.Load()

	var sibPtr *atomic.Pointer[edge[K]]
	var sibEdge *edge[K]
	switch {
	case leftEdge.child == leaf:
		sibPtr, sibEdge = &parent.right, rightEdge
	case rightEdge.child == leaf:
		sibPtr, sibEdge = &parent.left, leftEdge
	default:
		return true // already spliced out
	}

	newSib := &edge[K]{flg: sibEdge.flg, tag: true, child: sibEdge.child}
	if !sibPtr.CompareAndSwap(sibEdge, newSib) {
		cur := sibPtr.Load()
		if cur.child != sibEdge.child || !cur.tag {
			return false
		}
		newSib = cur
	}

	ancestor, successor := rec.ancestor, rec.successor
	aLeft := ancestor.left.Load()
	aRight := ancestor.right.Load()
	var ancPtr *atomic.Pointer[edge[K]]
	var ancEdge *edge[K]
	switch {
	case aLeft.child == successor:
		ancPtr, ancEdge = &ancestor.left, aLeft
	case aRight.child == successor:
		ancPtr, ancEdge = &ancestor.right, aRight
	default:
		return false
	}

	if !ancPtr.CompareAndSwap(ancEdge, &edge[K]{child: newSib.child}) {
		return false
	}

	for n := successor; n != parent; {
		left := n.left.Load()
		right := n.right.Load()
		t.rec.Retire(n, tid)
		// n sits strictly between successor and parent only because it is
		// itself mid-cleanup for some other concurrent removal: one of its
		// edges is flagged for that other leaf, the other continues the
		// path we're collapsing. Splicing ancestor straight past this whole
		// chain makes both unreachable, so the flagged, off-path leaf has
		// to be retired here or it leaks.
		if left.flg {
			t.rec.Retire(left.child, tid)
			n = right.child
		} else {
			t.rec.Retire(right.child, tid)
			n = left.child
		}
	}
	t.rec.Retire(parent, tid)
	t.rec.Retire(leaf, tid)
	return true
}

// CalculateSpace reports the per-thread time-averaged retained-node count.
func (t *NatarajanMittal[K]) CalculateSpace(tid int) int64 { return t.rec.CalSpace(tid) }
