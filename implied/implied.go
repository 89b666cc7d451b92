// Package implied implements component D: recovering what else must be
// true given that one variable's merged sm_state DAG reached a
// particular value. It walks the Left/Right parent DAG a merge (package
// state's MergeTrees) built, partitions the leaves it finds by a
// caller-supplied predicate over the leaf's own Value, and unions the
// correlated range lists of a second identity across each partition —
// the implied true/false ranges spec.md §4.D describes.
//
// Real condition/variable pairs can share a DAG with thousands of
// historical leaves after a long function; walking all of them back to
// back is what the 4000-leaf bailout of spec.md §4.D guards against. The
// bailout is logged (not silently dropped) since it changes the
// precision a checker downstream gets.
package implied

import (
	"github.com/aclements/smatchflow/rangelist"
	"github.com/aclements/smatchflow/state"
	"github.com/sirupsen/logrus"
)

// DefaultMaxLeaves is the bailout threshold spec.md §4.D names.
const DefaultMaxLeaves = 4000

// Walk visits every leaf (an sm_state with no Left/Right parents: either
// a plain Set or the root of the DAG) reachable from sm, depth-first. It
// visits at most maxLeaves leaves: on reaching leaf number maxLeaves+1 it
// stops and returns false, logging the bailout, rather than visiting the
// rest.
func Walk(sm *state.SMState, maxLeaves int, log *logrus.Entry, visit func(leaf *state.SMState)) bool {
	count := 0
	var walk func(n *state.SMState) bool
	walk = func(n *state.SMState) bool {
		if n == nil {
			return true
		}
		if n.Left == nil && n.Right == nil {
			count++
			if count > maxLeaves {
				return false
			}
			visit(n)
			return true
		}
		if !walk(n.Left) {
			return false
		}
		return walk(n.Right)
	}
	ok := walk(sm)
	if !ok && log != nil {
		log.WithField("component", "implied").Debugf(
			"bailout: DAG for %s has more than %d leaves, implied value not computed", sm.ID.Name, maxLeaves)
	}
	return ok
}

// Correlate looks up the range list some other identity held at the
// point a given leaf sm_state was recorded. Checkers build this from
// whatever side table they keep mapping *state.SMState (by pointer
// identity, since leaves are never copied) to the other identity's
// Data-info at that point.
type Correlate func(leaf *state.SMState) (rangelist.RangeList, bool)

// Predicate reports whether a leaf's own Value is consistent with the
// condition being tested (e.g. "equals the success sentinel").
type Predicate func(v state.Value) bool

// Result is the union of true-RL and false-RL across the leaves Implied
// partitioned between {predicate holds} and {predicate doesn't hold}.
type Result struct {
	TrueRL  rangelist.RangeList
	FalseRL rangelist.RangeList
}

// Implied walks sm's DAG (the merged history of the condition variable),
// partitions its leaves by pred, and for each partition unions whatever
// correlate returns for the implied variable. ok is false if the walk hit
// the leaf-count bailout, in which case Result is the zero value and the
// caller should treat the implied value as unknown rather than use a
// partial answer.
func Implied(sm *state.SMState, correlate Correlate, pred Predicate, maxLeaves int, log *logrus.Entry) (Result, bool) {
	var trueParts, falseParts []rangelist.RangeList
	complete := Walk(sm, maxLeaves, log, func(leaf *state.SMState) {
		rl, ok := correlate(leaf)
		if !ok {
			return
		}
		if pred(leaf.Value) {
			trueParts = append(trueParts, rl)
		} else {
			falseParts = append(falseParts, rl)
		}
	})
	if !complete {
		return Result{}, false
	}
	return Result{TrueRL: unionAll(trueParts), FalseRL: unionAll(falseParts)}, true
}

// unionAll unions every range list in parts. An empty parts returns the
// zero RangeList, which IsEmpty reports true for regardless of its (nil)
// Type — callers that need ∅-at-a-specific-type construct it themselves
// with rangelist.Empty.
func unionAll(parts []rangelist.RangeList) rangelist.RangeList {
	if len(parts) == 0 {
		return rangelist.RangeList{}
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = rangelist.Union(out, p)
	}
	return out
}
