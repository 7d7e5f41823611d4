// Package ordset defines the consumer-facing contract shared by every
// concrete ordered-set container in this module (spec.md §6.1).
package ordset

import "golang.org/x/exp/constraints"

// Container is the uniform surface exposed by list.Harris, list.HarrisMichael,
// and tree.NatarajanMittal. Every method takes the calling goroutine's
// registered reclaimer slot.
type Container[K constraints.Ordered] interface {
	Search(key K, tid int) bool
	Insert(key K, tid int) bool
	Remove(key K, tid int) bool
	CalculateSpace(tid int) int64
}

// WaitFreeSearcher is implemented by the containers that also offer a
// wait-free search path backed by wfhelp.Helper.
type WaitFreeSearcher[K constraints.Ordered] interface {
	SearchWF(key K, tid int) bool
}
