// Package state implements component B: the state table (stree) that
// tracks one sm_state per (owner, name, symbol) identity at each point
// along a path, and the merge semantics that combine two incoming paths'
// strees into the state the path explorer (package pathexplorer) resumes
// from after an if/loop/switch join.
//
// A Tree is a persistent, immutable value: Set and Delete return a new
// Tree sharing structure with the old one, the same history-without-copying
// approach the teacher's frameValState/heapValState linked list uses for
// SSA values, generalized from Go values to the engine's own identity
// triples. A long chain of single-entry overlays is flattened back into one
// table once it passes flattenBudget entries deep, bounding lookup cost the
// same way the teacher's budget-based flattening does.
package state

import "github.com/aclements/smatchflow/intern"

// Value is the opaque, checker-defined payload an sm_state carries. Most
// checkers store either a small enum-like string state name or a
// *rangelist.DataInfo; the state table itself never interprets Value, only
// the checker-supplied Merger does.
type Value interface{}

// SMState is one state record: spec.md §3's sm_state. Left and Right are
// the two states this one was merged from, when it was produced by a
// merge rather than a plain Set; they form the DAG the implied-value
// engine (package implied) walks to recover what was true on each
// incoming path. Possible lists every distinct Value contributed by the
// merge's leaves, deduplicated, for checkers that just want "what states
// are possible here" without walking the DAG themselves.
//
// Pool is the creation pool of spec.md §4.B's Pools paragraph: the stree
// snapshot in effect when this sm_state was Set (nil at the function's
// top level, before any branch has been entered). Only leaves (Left and
// Right both nil) carry a meaningful Pool — it is how the implied-value
// engine correlates one identity's historical value with another
// identity's value at the same point in the path, without either of them
// knowing about the other in advance.
type SMState struct {
	ID       intern.Ident
	Value    Value
	Line     int
	Possible []Value
	Left     *SMState
	Right    *SMState
	Pool     *Tree
}

func leaf(pool *Tree, id intern.Ident, v Value, line int) *SMState {
	return &SMState{ID: id, Value: v, Line: line, Possible: []Value{v}, Pool: pool}
}

// deleted is an unused marker value. Delete's tombstone is a nil *SMState
// in the overlay map, which shadows an ancestor Tree's entry without
// falling through to it.
var deleted = &struct{ deletedMarker byte }{}

const flattenBudget = 32

// Tree is a persistent stree: a snapshot of every identity's current
// sm_state at one point in one path.
type Tree struct {
	parent     *Tree
	local      map[intern.Ident]*SMState
	depth      int
	branchPool *Tree
}

// NewTree returns an empty stree.
func NewTree() *Tree {
	return &Tree{local: make(map[intern.Ident]*SMState)}
}

// Get returns id's current sm_state, if any is recorded in t or an
// ancestor of t that hasn't been shadowed.
func (t *Tree) Get(id intern.Ident) (*SMState, bool) {
	for n := t; n != nil; n = n.parent {
		if v, ok := n.local[id]; ok {
			if v == nil {
				return nil, false // tombstone: deleted, don't fall through
			}
			return v, true
		}
	}
	return nil, false
}

// Set returns a new Tree identical to t except that id now maps to an
// sm_state holding value at the given source line. The new sm_state's
// Pool is t's current branch pool (see EnterPool/WithPool), propagated
// unchanged from t.
func (t *Tree) Set(id intern.Ident, value Value, line int) *Tree {
	return t.overlay(id, leaf(t.branchPool, id, value, line))
}

// Delete returns a new Tree identical to t except that id is unset.
func (t *Tree) Delete(id intern.Ident) *Tree {
	return t.overlay(id, nil)
}

func (t *Tree) overlay(id intern.Ident, sm *SMState) *Tree {
	child := &Tree{parent: t, local: map[intern.Ident]*SMState{id: sm}, depth: t.depth + 1, branchPool: t.branchPool}
	if child.depth >= flattenBudget {
		return child.flatten()
	}
	return child
}

// Pool returns t's current branch pool: what Set stamps onto any new
// leaf's Pool field.
func (t *Tree) Pool() *Tree { return t.branchPool }

// WithPool returns a Tree identical to t except that its branch pool is
// now p, so that sm_states Set from the result onward record p as their
// creation pool rather than whatever t's own pool was. The path explorer
// calls WithPool(tree.Pool()) after merging a branch's two arms back
// together, to restore the enclosing pool for the statements that follow
// the branch.
func (t *Tree) WithPool(p *Tree) *Tree {
	c := *t
	c.branchPool = p
	return &c
}

// EnterPool is WithPool(t): it freezes t itself as the pool for
// everything Set from the result onward, the "clone the current stree
// into a pool object" step spec.md §4.B's Pools paragraph describes for
// entering a branch. Because Tree is already immutable, freezing the
// pool just means referencing t — no actual clone is needed.
func (t *Tree) EnterPool() *Tree { return t.WithPool(t) }

// flatten collapses t's whole ancestor chain into a single-level Tree,
// the budget-triggered rebalancing step that keeps Get's cost bounded
// regardless of how many Sets a long path has accumulated.
func (t *Tree) flatten() *Tree {
	var chain []*Tree
	for n := t; n != nil; n = n.parent {
		chain = append(chain, n)
	}
	flat := make(map[intern.Ident]*SMState, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].local {
			if v == nil {
				delete(flat, k)
				continue
			}
			flat[k] = v
		}
	}
	return &Tree{local: flat, branchPool: t.branchPool}
}

// All returns every (identity, sm_state) pair currently live in t,
// flattening first if t isn't already flat. Used by MergeTrees and by
// pathexplorer's condition refinement, not on any hot path.
func (t *Tree) All() map[intern.Ident]*SMState {
	flat := t.flatten().local
	out := make(map[intern.Ident]*SMState, len(flat))
	for k, v := range flat {
		out[k] = v
	}
	return out
}

// Merger combines the two sm_states a single identity held on the two
// incoming paths of a merge point. A checker that cares about merge
// semantics beyond "union the possible values" (e.g. component E's
// pre-merge/merge hooks for a specific owner) registers one.
type Merger func(owner string, left, right *SMState) Value

// MergeTrees computes the stree a path explorer resumes from after
// joining the two paths that produced left and right, per spec.md §4.B:
//
//   - If left and right are the same Tree (pointer-equal), the merge is a
//     no-op: nothing diverged, return it unchanged.
//   - For each identity present in either tree: if only one side has it,
//     the side missing it is treated as having an implicit "undefined"
//     sm_state (so a merger still runs, with a nil state pointer). If
//     both sides already hold the exact same sm_state pointer, propagate
//     it unchanged rather than building a redundant merge node — this is
//     the "neither side changed it" fast path.
//   - Otherwise ask owner's Merger (falling back to defaultMerger when
//     the owner has none registered) for the merged Value, and build a
//     new sm_state whose Left/Right point at the two inputs and whose
//     Possible is the deduplicated union of both sides' Possible lists.
func MergeTrees(left, right *Tree, mergers map[string]Merger, defaultMerger Merger, line int) *Tree {
	if left == right {
		return left
	}
	lAll, rAll := left.All(), right.All()
	out := NewTree()
	seen := make(map[intern.Ident]bool, len(lAll)+len(rAll))
	for id, lsm := range lAll {
		seen[id] = true
		rsm := rAll[id]
		out = out.mergeOne(id, lsm, rsm, mergers, defaultMerger, line)
	}
	for id, rsm := range rAll {
		if seen[id] {
			continue
		}
		out = out.mergeOne(id, nil, rsm, mergers, defaultMerger, line)
	}
	return out
}

func (out *Tree) mergeOne(id intern.Ident, lsm, rsm *SMState, mergers map[string]Merger, defaultMerger Merger, line int) *Tree {
	if lsm == rsm {
		return out.overlay(id, lsm)
	}
	merger := defaultMerger
	if m, ok := mergers[id.Owner]; ok {
		merger = m
	}
	merged := &SMState{
		ID:    id,
		Value: merger(id.Owner, lsm, rsm),
		Line:  line,
		Left:  lsm,
		Right: rsm,
	}
	merged.Possible = unionPossible(lsm, rsm)
	return out.overlay(id, merged)
}

func unionPossible(lsm, rsm *SMState) []Value {
	var out []Value
	add := func(sm *SMState) {
		if sm == nil {
			return
		}
		for _, v := range sm.Possible {
			dup := false
			for _, existing := range out {
				if existing == v {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, v)
			}
		}
	}
	add(lsm)
	add(rsm)
	return out
}

// Sentinel is the type of the engine's own shared singleton merge
// results, spec.md §4.B's "result is undefined"/"result is the shared
// sentinel merged" steps of the default merge policy.
type Sentinel string

func (s Sentinel) String() string { return string(s) }

// Undefined and Merged are the two named sentinels §4.B's default merger
// steps produce: Undefined when one side of the merge never set the
// identity at all, Merged when both sides set it to different values and
// no owner-specific Merger resolved the conflict.
const (
	Undefined Sentinel = "undefined"
	Merged    Sentinel = "merged"
)

// UnionMerger is the default Merger used when a checker hasn't registered
// one of its own: the merged value is "the left value if both sides
// agree, else the shared Merged sentinel, or Undefined if either side
// never set the identity", leaving Possible (which always carries both
// distinct contributing values) as the source of truth for anything that
// needs to know both branches are live.
func UnionMerger(owner string, left, right *SMState) Value {
	if left == nil || right == nil {
		return Undefined
	}
	if left.Value == right.Value {
		return left.Value
	}
	return Merged
}
