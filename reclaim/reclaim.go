// Package reclaim defines the contract every safe-memory-reclamation engine
// in this module implements, and the bookkeeping fields a container node
// needs to carry so any of them can retire it.
//
// A single node type works under every engine (EBR, IBR, HE, HP, Hyaline,
// NR): rather than the field-per-scheme node structs of the source this
// package was modeled on, every node embeds one Meta and each engine reads
// only the subset of fields it needs.
package reclaim

import "errors"

// ErrExhausted is the panic value for a Register call that finds every
// thread slot already taken (Register itself reports this by returning
// ok == false). Callers are expected to treat this as fatal, per the
// registration contract: a benchmark run cannot proceed with fewer threads
// than requested.
var ErrExhausted = errors.New("reclaim: no free thread slot")

// Meta is the reclamation bookkeeping a container node carries. Fields are
// unexported; engines mutate them only through the accessors below, which
// are promoted into any struct that embeds Meta by value.
type Meta struct {
	retiredEpoch uint64 // EBR, IBR: global epoch/version observed at retire
	birthEpoch   uint64 // IBR: global epoch observed at allocation
	newEra       uint64 // HE: era observed at allocation
	delEra       uint64 // HE: era observed at retire
}

func (m *Meta) RetiredEpoch() uint64     { return m.retiredEpoch }
func (m *Meta) SetRetiredEpoch(e uint64) { m.retiredEpoch = e }
func (m *Meta) BirthEpoch() uint64       { return m.birthEpoch }
func (m *Meta) SetBirthEpoch(e uint64)   { m.birthEpoch = e }
func (m *Meta) NewEra() uint64           { return m.newEra }
func (m *Meta) SetNewEra(e uint64)       { m.newEra = e }
func (m *Meta) DelEra() uint64           { return m.delEra }
func (m *Meta) SetDelEra(e uint64)       { m.delEra = e }

// MetaHolder is implemented by any node type that embeds Meta.
type MetaHolder interface {
	RMeta() *Meta
}

// Node is the constraint every reclaimable node pointer type satisfies: it
// must be comparable (so engines can compare against a nil sentinel and use
// it as a set-membership key while scanning hazard/era slots) and must
// expose its Meta.
type Node[N any] interface {
	comparable
	MetaHolder
}

// Reclaimer is the uniform contract every engine offers to a container,
// matching the "reclaimer-container binding" surface: init_object,
// start_op/end_op, protect/protectRelease, clear, retire, take_snapshot,
// cal_space.
//
// Protect takes a load closure rather than a raw atomic pointer (and
// ProtectRelease takes the node itself) so that a single container
// implementation can drive every engine:
// slot-based engines (HP, HE) publish into the slot and re-observe load()
// until stable; epoch-framed engines (EBR, IBR, Hyaline, NR) may simply call
// load() once, relying on the surrounding StartOp/EndOp window instead.
type Reclaimer[N Node[N]] interface {
	// Register assigns the calling thread a slot in [0, maxThreads). It is
	// meant to be called once per worker goroutine.
	Register() (tid int, ok bool)
	// Deregister releases a slot obtained from Register.
	Deregister(tid int)

	// InitObject stamps birth metadata (if the engine needs any) and
	// returns n unchanged, mirroring the source's init_object(node, tid).
	InitObject(n N, tid int) N

	StartOp(tid int)
	EndOp(tid int)

	// Protect publishes protection for whatever load() currently returns
	// and returns a value stable against a reload of load().
	Protect(slot int, load func() N, tid int) N
	// ProtectRelease publishes protection for n directly, without a reload
	// loop; used when the caller already holds an equivalent protection.
	ProtectRelease(slot int, n N, tid int) N
	// Clear releases every protection slot held by tid.
	Clear(tid int)

	// Retire moves n onto tid's retirement list, eventually making it
	// eligible for collection once no thread can still observe it.
	Retire(n N, tid int)

	// TakeSnapshot records the thread's current retained-node count for
	// CalSpace to average.
	TakeSnapshot(tid int)
	// CalSpace returns the time-averaged retained-node count for tid.
	CalSpace(tid int) int64
}

// Zero reports whether n is the zero value of N, standing in for a nil
// check across the generic node constraint.
func Zero[N Node[N]](n N) bool {
	var zero N
	return n == zero
}
