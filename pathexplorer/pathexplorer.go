// Package pathexplorer implements component C: the traversal that walks
// one function's body, firing component E's hooks at every node and
// threading component B's state table along each path, splitting and
// rejoining it at every branch point.
//
// The walk is a straightforward recursive descent over package cnode's
// statement tree, in the manner of the teacher's walkFunction/walkBlock
// pair, generalized from Go SSA basic blocks to the engine's own
// statement/expression node kinds. Loops use a small fixed-point widening
// (two passes merged together) rather than true dataflow iteration to
// convergence, matching the scope spec.md sets for this component: path
// splitting and rejoining, not a general dataflow solver.
//
// Alongside driving the walk, the path explorer carries the engine's own
// baseline range tracking: a comparison `x op k` asks the implied-value
// engine (package implied) to refine x and every other range-tracked
// identity correlated with it, the way spec.md §4.C describes; an
// assignment or declaration with a constant or call-result right-hand
// side gives a freshly-set identifier a starting range (spec.md §2: "at
// each statement updating a current state tree"). A checker is free to
// track richer state of its own under a different owner name; this is
// only the floor the engine itself provides so that components A and D
// have something live to operate on without a checker in the loop.
package pathexplorer

import (
	"fmt"

	"github.com/aclements/smatchflow/cnode"
	"github.com/aclements/smatchflow/hooks"
	"github.com/aclements/smatchflow/implied"
	"github.com/aclements/smatchflow/intern"
	"github.com/aclements/smatchflow/rangelist"
	"github.com/aclements/smatchflow/state"
	"github.com/aclements/smatchflow/summarydb"
	"github.com/aclements/smatchflow/sval"
	"github.com/sirupsen/logrus"
)

// rangeOwner names the sm_state owner the path explorer's own baseline
// range tracking uses, distinct from any owner a registered checker picks
// for its own Data-info tracking.
const rangeOwner = "range"

// returnRangesName is the distinguished identity spec.md §4.C's Return
// handling sets on every return snapshot: Name: "return_ranges" under
// rangeOwner.
const returnRangesName = "return_ranges"

// rangeMergers is passed to every state.MergeTrees call this walker makes,
// so that joining two branches keeps a range-tracked identity's Value a
// *rangelist.DataInfo (the union of what each side held) instead of
// degrading it to state.UnionMerger's generic Merged sentinel. Without
// this, any identity that crosses even one branch join would stop being a
// *rangelist.DataInfo, and refineCondition's "is this identity
// range-tracked" check (and the implied-value correlation loop it drives)
// would silently go dead past the first if in a function — leaving
// components A and D load-bearing only for straight-line code.
var rangeMergers = map[string]state.Merger{rangeOwner: rangeMerger}

func rangeMerger(owner string, left, right *state.SMState) state.Value {
	ldi, lok := dataInfoOf(left)
	rdi, rok := dataInfoOf(right)
	switch {
	case lok && rok:
		return rangelist.NewDataInfo(rangelist.Union(ldi.RL, rdi.RL))
	case lok:
		return rangelist.NewDataInfo(ldi.RL)
	case rok:
		return rangelist.NewDataInfo(rdi.RL)
	default:
		return state.UnionMerger(owner, left, right)
	}
}

func dataInfoOf(sm *state.SMState) (*rangelist.DataInfo, bool) {
	if sm == nil {
		return nil, false
	}
	di, ok := sm.Value.(*rangelist.DataInfo)
	return di, ok
}

// Walker holds everything one function's traversal needs: the hook
// registry to dispatch events to, a logger for internal diagnostics, and
// an optional DebugTree for --debug/--debug-implied tracing.
//
// DB, if non-nil, is where Walk exports the accumulated return-state rows
// at function end (component F's engine-side producer, spec.md §4.F); a
// driver running with --no-db leaves it nil and Walk simply skips the
// export.
type Walker struct {
	Registry *hooks.Registry
	Log      *logrus.Entry
	Debug    *DebugTree
	DB       *summarydb.Store

	function string
	file     string
	static   bool

	// labels accumulates, per label name, the union of every stree that
	// has reached a goto targeting it so far, spec.md §4.C's per-name
	// state-list map. Reset at the start of every Walk.
	labels map[string]*state.Tree

	// returns accumulates one snapshot per RETURN statement reached
	// during the current Walk, spec.md §3's per-function "return-states
	// accumulator".
	returns []returnSnapshot

	// callID numbers call sites within the current Walk, for the
	// caller_info rows recorded at each one.
	callID int
}

// returnSnapshot is one entry in a function's return-states accumulator:
// the stree at a RETURN statement, and the range list the returned
// expression was refined to.
type returnSnapshot struct {
	ranges rangelist.RangeList
	line   int
}

// NewWalker returns a Walker dispatching through reg.
func NewWalker(reg *hooks.Registry, log *logrus.Entry) *Walker {
	return &Walker{Registry: reg, Log: log, Debug: NewDebugTree(nil)}
}

// result carries a walk's outcome: the state it left off in, and whether
// the path terminated early (a RETURN was hit) so the caller shouldn't
// keep walking sibling statements down this path.
type result struct {
	tree       *state.Tree
	terminated bool
}

// Walk traverses fn's whole body from an empty stree, firing FUNC_DEF_HOOK
// before and AFTER_FUNC_HOOK/END_FUNC_HOOK after, and returns the final
// stree (the union of every path that reaches the function's end without
// returning). Before returning, it exports every accumulated return
// snapshot to DB (if set), the §4.F "at function end ... emits a row"
// producer.
func (w *Walker) Walk(fn *cnode.Func) (*state.Tree, error) {
	w.function = fn.Name
	w.file = fn.File
	w.static = fn.Static
	w.labels = make(map[string]*state.Tree)
	w.returns = nil
	w.callID = 0
	defer w.Debug.Enter("function %s", fn.Name)()

	tree := state.NewTree()
	var err error
	tree, err = w.dispatch(hooks.FUNC_DEF_HOOK, tree, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	tree, err = w.dispatch(hooks.AFTER_DEF_HOOK, tree, nil, nil, 0)
	if err != nil {
		return nil, err
	}

	res, err := w.walkStmt(tree, fn.Body)
	if err != nil {
		return nil, err
	}

	final := res.tree
	final, err = w.dispatch(hooks.END_FUNC_HOOK, final, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	if err := w.exportReturnStates(); err != nil {
		return nil, err
	}
	final, err = w.dispatch(hooks.AFTER_FUNC_HOOK, final, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	return final, nil
}

// exportReturnStates emits one summary-database row per accumulated
// return snapshot: the §4.F "at function end, for each return state
// snapshot ... emits a row" producer side of component F. Every path
// through Walk's function that returns contributes its own row (return
// id i, parameter -1, key "$") whose value is that path's
// return-expression range list, so that a caller-side
// refinement (consumed at a call site via SelectReturnStates) can later
// pick the row up.
func (w *Walker) exportReturnStates() error {
	if w.DB == nil || len(w.returns) == 0 {
		return nil
	}
	id := summarydb.Ident{File: w.file, Function: w.function, Static: w.static}
	for i, snap := range w.returns {
		if err := w.DB.InsertReturnState(id, i, -1, "$", rangelist.Show(snap.ranges)); err != nil {
			return fmt.Errorf("pathexplorer: exporting return state for %s: %w", w.function, err)
		}
	}
	return nil
}

// EndFile fires END_FILE_HOOK once a driver has finished walking every
// function in one translation unit, the per-file close-out event of
// spec.md §4.E. It is a distinct call from Walk (which is per-function)
// because the engine itself never knows when a driver has exhausted a
// file's function list — that boundary is the driver's to declare.
func (w *Walker) EndFile() error {
	_, err := w.dispatch(hooks.END_FILE_HOOK, state.NewTree(), nil, nil, 0)
	return err
}

func (w *Walker) dispatch(kind hooks.EventKind, tree *state.Tree, e *cnode.Expr, s *cnode.Stmt, line int) (*state.Tree, error) {
	return w.Registry.Dispatch(hooks.Event{
		Kind: kind, Expr: e, Stmt: s, Tree: tree, Function: w.function, Line: line,
	})
}

func (w *Walker) walkStmt(tree *state.Tree, s *cnode.Stmt) (result, error) {
	if s == nil {
		return result{tree: tree}, nil
	}
	tree, err := w.dispatch(hooks.STMT_HOOK, tree, nil, s, s.Pos.Line)
	if err != nil {
		return result{}, err
	}

	var res result
	switch s.Kind {
	case cnode.COMPOUND:
		res, err = w.walkCompound(tree, s)
	case cnode.EXPRESSION:
		tree, err = w.walkExprStmt(tree, s)
		res = result{tree: tree}
	case cnode.IF:
		res, err = w.walkIf(tree, s)
	case cnode.ITERATOR:
		res, err = w.walkLoop(tree, s)
	case cnode.SWITCH:
		res, err = w.walkSwitch(tree, s)
	case cnode.RETURN:
		res, err = w.walkReturn(tree, s)
	case cnode.DECLARATION:
		tree, err = w.walkDeclaration(tree, s)
		res = result{tree: tree}
	case cnode.LABEL:
		tree = w.mergeLabelEdges(s.Label, tree)
		res, err = w.walkStmt(tree, s.Then)
	case cnode.GOTO:
		// A goto is treated as an opaque jump for the path that follows
		// it: the engine does not reconstruct the target CFG edge, so the
		// state just before the jump is carried forward unchanged and the
		// path is left "live" rather than terminated. The edge itself is
		// not lost, though — it is folded into the target label's
		// accumulated stree (see recordGoto/mergeLabelEdges) so that
		// walking the label later sees every way control can reach it.
		w.recordGoto(s.Label, tree)
		w.Log.WithField("component", "pathexplorer").Debugf("goto %s recorded, falling through opaquely", s.Label)
		res = result{tree: tree}
	case cnode.ASM:
		tree, err = w.dispatch(hooks.ASM_HOOK, tree, nil, s, s.Pos.Line)
		res = result{tree: tree}
	case cnode.CASE:
		res, err = w.walkStmt(tree, s.Then)
	default:
		res = result{tree: tree}
	}
	if err != nil {
		return result{}, err
	}
	tree, err = w.dispatch(hooks.STMT_HOOK_AFTER, res.tree, nil, s, s.Pos.Line)
	if err != nil {
		return result{}, err
	}
	res.tree = tree
	return res, nil
}

// recordGoto folds tree into label's accumulated incoming-edges state,
// spec.md §4.C's per-name state-list map: "on goto, merge the current
// stree into the label's accumulated stree."
func (w *Walker) recordGoto(label string, tree *state.Tree) {
	if existing, ok := w.labels[label]; ok {
		w.labels[label] = state.MergeTrees(existing, tree, rangeMergers, state.UnionMerger, 0)
		return
	}
	w.labels[label] = tree
}

// mergeLabelEdges folds every goto edge recorded for label into the
// fallthrough tree reaching this LABEL statement: "on label definition,
// the current stree becomes the merge of incoming edges." A label no
// goto ever targeted just keeps the fallthrough state unchanged.
func (w *Walker) mergeLabelEdges(label string, fallthroughTree *state.Tree) *state.Tree {
	incoming, ok := w.labels[label]
	if !ok {
		return fallthroughTree
	}
	return state.MergeTrees(incoming, fallthroughTree, rangeMergers, state.UnionMerger, 0)
}

func (w *Walker) walkCompound(tree *state.Tree, s *cnode.Stmt) (result, error) {
	for _, stmt := range s.Stmts {
		res, err := w.walkStmt(tree, stmt)
		if err != nil {
			return result{}, err
		}
		tree = res.tree
		if res.terminated {
			return result{tree: tree, terminated: true}, nil
		}
	}
	return result{tree: tree}, nil
}

func (w *Walker) walkExprStmt(tree *state.Tree, s *cnode.Stmt) (*state.Tree, error) {
	return w.walkExpr(tree, s.Expr)
}

// walkExpr dispatches the event(s) a single expression implies, folding
// in nested subexpressions depth-first. It does not attempt full
// expression evaluation (that is the range-list/implied-value engine's
// job once a checker asks for a value); it only fires hooks, recurses,
// and maintains the engine's own baseline range tracking for simple
// assignments, matching component C's job of driving the walk rather than
// interpreting it in full.
func (w *Walker) walkExpr(tree *state.Tree, e *cnode.Expr) (*state.Tree, error) {
	if e == nil {
		return tree, nil
	}
	var err error
	for _, sub := range []*cnode.Expr{e.Left, e.Right, e.Cond} {
		tree, err = w.walkExpr(tree, sub)
		if err != nil {
			return nil, err
		}
	}
	for _, a := range e.Args {
		tree, err = w.walkExpr(tree, a)
		if err != nil {
			return nil, err
		}
	}

	switch e.Kind {
	case cnode.ASSIGNMENT:
		kind := hooks.RAW_ASSIGNMENT_HOOK
		if e.Left != nil && e.Left.Kind == cnode.SYMBOL && isGlobalLike(e.Left.Ident) {
			kind = hooks.GLOBAL_ASSIGNMENT_HOOK
		}
		tree, err = w.dispatch(kind, tree, e, nil, e.Pos.Line)
		if err != nil {
			return nil, err
		}
		tree, err = w.dispatch(hooks.ASSIGNMENT_HOOK, tree, e, nil, e.Pos.Line)
		if err != nil {
			return nil, err
		}
		return w.trackAssignment(tree, e), nil
	case cnode.CALL:
		tree, err = w.dispatch(hooks.FUNCTION_CALL_HOOK, tree, e, nil, e.Pos.Line)
		if err != nil {
			return nil, err
		}
		if err := w.recordCallerInfo(tree, e); err != nil {
			return nil, err
		}
		return w.dispatch(hooks.FUNCTION_CALL_HOOK_AFTER_DB, tree, e, nil, e.Pos.Line)
	case cnode.DEREF:
		return w.dispatch(hooks.DEREF_HOOK, tree, e, nil, e.Pos.Line)
	case cnode.BINOP:
		return w.dispatch(hooks.BINOP_HOOK, tree, e, nil, e.Pos.Line)
	case cnode.SYMBOL:
		return w.dispatch(hooks.SYM_HOOK, tree, e, nil, e.Pos.Line)
	case cnode.PREOP, cnode.POSTOP:
		return w.dispatch(hooks.OP_HOOK, tree, e, nil, e.Pos.Line)
	default:
		return tree, nil
	}
}

func isGlobalLike(ident string) bool {
	return len(ident) > 0 && ident[0] >= 'A' && ident[0] <= 'Z'
}

// trackAssignment gives a freshly-assigned identifier a starting range:
// a constant right-hand side assigns that constant; a copy from another
// range-tracked identifier links the two into the same equivalence class
// (supplemented feature 1, package implied's related-identifier
// propagation) instead of duplicating a fresh DAG; a call result consults
// whatever the callee implies (registered ReturnImplies hooks, then the
// summary database). Anything else leaves the identifier untracked, the
// same as if no checker had an opinion about it.
func (w *Walker) trackAssignment(tree *state.Tree, e *cnode.Expr) *state.Tree {
	if e.Left == nil || e.Left.Kind != cnode.SYMBOL || e.Right == nil {
		return tree
	}
	id := intern.Ident{Owner: rangeOwner, Name: e.Left.Ident}
	switch e.Right.Kind {
	case cnode.VALUE:
		di := rangelist.NewDataInfo(rangelist.Single(sval.Of(sval.Int, e.Right.IntValue)))
		di.Assign(di.RL)
		return tree.Set(id, di, e.Pos.Line)
	case cnode.SYMBOL:
		rid := intern.Ident{Owner: rangeOwner, Name: e.Right.Ident}
		rsm, ok := tree.Get(rid)
		if !ok {
			return tree.Delete(id)
		}
		rdi, ok := rsm.Value.(*rangelist.DataInfo)
		if !ok {
			return tree.Delete(id)
		}
		di := &rangelist.DataInfo{RL: rdi.RL}
		di.Assign(di.RL)
		tree = tree.Set(id, di, e.Pos.Line)
		sm, _ := tree.Get(id)
		implied.Link(id, rid, sm.Value.(*rangelist.DataInfo), rdi)
		return tree
	case cnode.CALL:
		rl, ok := w.callResultRangeList(e.Right)
		if !ok {
			return tree.Delete(id)
		}
		di := rangelist.NewDataInfo(rl)
		di.Assign(rl)
		return tree.Set(id, di, e.Pos.Line)
	}
	return tree.Delete(id)
}

// recordCallerInfo writes a caller_info row for every tracked SYMBOL
// argument at this call site, the §4.F "at each call site ... writes a
// row to be picked up by the callee" producer: a later pass analyzing the
// callee itself can read these back via SelectCallerInfo to learn what
// its callers pass it.
func (w *Walker) recordCallerInfo(tree *state.Tree, call *cnode.Expr) error {
	if w.DB == nil {
		return nil
	}
	callee := calleeIdent(call)
	if callee == "" {
		return nil
	}
	id := summarydb.Ident{Function: callee}
	for i, a := range call.Args {
		if a == nil || a.Kind != cnode.SYMBOL {
			continue
		}
		sm, ok := tree.Get(intern.Ident{Owner: rangeOwner, Name: a.Ident})
		if !ok {
			continue
		}
		di, ok := sm.Value.(*rangelist.DataInfo)
		if !ok {
			continue
		}
		if err := w.DB.InsertCallerInfo(id, w.callID, i, "$", rangelist.Show(di.RL)); err != nil {
			return fmt.Errorf("pathexplorer: recording caller info for %s: %w", callee, err)
		}
	}
	w.callID++
	return nil
}

// callResultRangeList consults a call's return facts: first a registered
// ReturnImplies hook (in-process, no database round trip), then the
// summary database's accumulated return_states rows for that callee, the
// §4.F "applies recorded return facts for the callee" consumer. ok is
// false when neither source has an opinion.
func (w *Walker) callResultRangeList(call *cnode.Expr) (rangelist.RangeList, bool) {
	callee := calleeIdent(call)
	if callee == "" {
		return rangelist.RangeList{}, false
	}
	if v := w.Registry.ReturnImplies(callee, call.Args); v != nil {
		if di, ok := v.(*rangelist.DataInfo); ok {
			return di.RL, true
		}
	}
	if w.DB == nil {
		return rangelist.RangeList{}, false
	}
	rows, err := w.DB.SelectReturnStates(summarydb.Ident{Function: callee}, -1)
	if err != nil || len(rows) == 0 {
		return rangelist.RangeList{}, false
	}
	var out rangelist.RangeList
	for _, row := range rows {
		rl, ok := rangelist.Parse(sval.Int, row.Value)
		if !ok {
			continue
		}
		if out.Type == nil {
			out = rl
			continue
		}
		out = rangelist.Union(out, rl)
	}
	return out, out.Type != nil
}

func calleeIdent(call *cnode.Expr) string {
	if call.Ident != "" {
		return call.Ident
	}
	if call.Left != nil {
		return call.Left.Ident
	}
	return ""
}

func (w *Walker) walkDeclaration(tree *state.Tree, s *cnode.Stmt) (*state.Tree, error) {
	tree, err := w.dispatch(hooks.DECLARATION_HOOK, tree, nil, s, s.Pos.Line)
	if err != nil {
		return nil, err
	}
	tree = w.trackDeclaration(tree, s)
	if s.Init != nil {
		res, err := w.walkStmt(tree, s.Init)
		if err != nil {
			return nil, err
		}
		tree = res.tree
	}
	return tree, nil
}

// trackDeclaration gives a freshly declared identifier with a constant or
// call-result initializer a starting range, the same baseline tracking
// trackAssignment gives a plain assignment. A declaration with no
// initializer, or one that isn't a shape the engine recognizes, leaves
// the identifier untracked until something assigns it.
func (w *Walker) trackDeclaration(tree *state.Tree, s *cnode.Stmt) *state.Tree {
	if s.Ident == "" || s.Init == nil || s.Init.Expr == nil {
		return tree
	}
	id := intern.Ident{Owner: rangeOwner, Name: s.Ident}
	switch s.Init.Expr.Kind {
	case cnode.VALUE:
		di := rangelist.NewDataInfo(rangelist.Single(sval.Of(sval.Int, s.Init.Expr.IntValue)))
		di.Assign(di.RL)
		return tree.Set(id, di, s.Pos.Line)
	case cnode.CALL:
		rl, ok := w.callResultRangeList(s.Init.Expr)
		if !ok {
			return tree
		}
		di := rangelist.NewDataInfo(rl)
		di.Assign(rl)
		return tree.Set(id, di, s.Pos.Line)
	}
	return tree
}

// walkIf splits tree on s.Cond. When the condition is a comparison `x op
// k` (spec.md §4.C), refineCondition asks the implied-value engine to
// narrow x's own range and every other range-tracked identity correlated
// with it before CONDITION_HOOK fires, so a checker inspecting the event
// sees the refined tree rather than the raw one; otherwise both branches
// start from tree unchanged, same as before. It then walks Then/Else down
// each shadow (each one its own pool, so that a refinement made inside
// one branch is never confused with the other's) and merges the two
// paths' strees back together at the join point, restoring the enclosing
// pool for whatever follows the if.
func (w *Walker) walkIf(tree *state.Tree, s *cnode.Stmt) (result, error) {
	defer w.Debug.Enter("if (line %d)", s.Pos.Line)()

	tree, err := w.walkExpr(tree, s.Cond)
	if err != nil {
		return result{}, err
	}

	trueTree, falseTree := w.refineCondition(tree, s.Cond)

	trueTree, err = w.dispatch(hooks.CONDITION_HOOK, trueTree, s.Cond, nil, s.Pos.Line)
	if err != nil {
		return result{}, err
	}
	falseTree, err = w.dispatch(hooks.CONDITION_HOOK, falseTree, negated(s.Cond), nil, s.Pos.Line)
	if err != nil {
		return result{}, err
	}

	thenRes, err := w.walkStmt(trueTree.EnterPool(), s.Then)
	if err != nil {
		return result{}, err
	}
	elseRes, err := w.walkStmt(falseTree.EnterPool(), s.Else)
	if err != nil {
		return result{}, err
	}

	switch {
	case thenRes.terminated && elseRes.terminated:
		return result{tree: thenRes.tree, terminated: true}, nil
	case thenRes.terminated:
		return result{tree: elseRes.tree.WithPool(tree.Pool())}, nil
	case elseRes.terminated:
		return result{tree: thenRes.tree.WithPool(tree.Pool())}, nil
	}
	merged := state.MergeTrees(thenRes.tree, elseRes.tree, rangeMergers, state.UnionMerger, s.Pos.Line)
	merged = merged.WithPool(tree.Pool())
	return result{tree: merged}, nil
}

// negated wraps cond to mark the false branch without mutating cond
// itself; CONDITION_HOOK callbacks inspect the wrapper's Op prefix ("!")
// to tell which side of the branch they're being asked about.
func negated(cond *cnode.Expr) *cnode.Expr {
	if cond == nil {
		return nil
	}
	return &cnode.Expr{Kind: cnode.PREOP, Op: "!", Left: cond, Pos: cond.Pos}
}

// refineCondition implements spec.md §4.D's condition split for a
// comparison `x op k`: component A's FilterCompare narrows x's own range
// on each branch directly, then for every other range-tracked identity,
// component D's Implied partitions its own historical leaves by whether
// the condition variable's correlated leaf (found via that leaf's
// creation pool, state.SMState.Pool) was itself consistent with the
// branch, and the union of the matching leaves' range lists becomes that
// identity's refined value on the branch. If cond isn't a recognized
// comparison shape, or the condition variable isn't currently
// range-tracked, both returned trees are tree unchanged.
func (w *Walker) refineCondition(tree *state.Tree, cond *cnode.Expr) (trueTree, falseTree *state.Tree) {
	id, op, k, ok := conditionParts(cond)
	if !ok {
		return tree, tree
	}
	sm, ok := tree.Get(id)
	if !ok {
		return tree, tree
	}
	di, ok := sm.Value.(*rangelist.DataInfo)
	if !ok {
		return tree, tree
	}
	kRL := rangelist.Single(k)

	trueDI := rangelist.NewDataInfo(rangelist.Empty(di.RL.Type))
	falseDI := rangelist.NewDataInfo(rangelist.Empty(di.RL.Type))
	trueDI.Cap(rangelist.FilterCompare(di.RL, op, k))
	falseDI.Cap(rangelist.FilterCompare(di.RL, rangelist.Negate(op), k))
	trueTree = tree.Set(id, trueDI, sm.Line)
	falseTree = tree.Set(id, falseDI, sm.Line)

	for other, osm := range tree.All() {
		if other == id {
			continue
		}
		if _, ok := osm.Value.(*rangelist.DataInfo); !ok {
			continue
		}
		res, ok := implied.Implied(sm, correlateFor(other), predFor(op, kRL), implied.DefaultMaxLeaves, w.Log)
		if !ok {
			continue
		}
		if res.TrueRL.Type != nil {
			d := rangelist.NewDataInfo(res.TrueRL)
			d.Cap(res.TrueRL)
			trueTree = trueTree.Set(other, d, sm.Line)
		}
		if res.FalseRL.Type != nil {
			d := rangelist.NewDataInfo(res.FalseRL)
			d.Cap(res.FalseRL)
			falseTree = falseTree.Set(other, d, sm.Line)
		}
	}
	return trueTree, falseTree
}

// correlateFor builds an implied.Correlate that looks up id's Data-info
// in the stree a leaf's Pool recorded, the DAG-to-DAG correlation
// spec.md's implied-value engine needs without either identity knowing
// about the other in advance.
func correlateFor(id intern.Ident) implied.Correlate {
	return func(leaf *state.SMState) (rangelist.RangeList, bool) {
		if leaf.Pool == nil {
			return rangelist.RangeList{}, false
		}
		sm, ok := leaf.Pool.Get(id)
		if !ok {
			return rangelist.RangeList{}, false
		}
		di, ok := sm.Value.(*rangelist.DataInfo)
		if !ok {
			return rangelist.RangeList{}, false
		}
		return di.RL, true
	}
}

// predFor builds the implied.Predicate that buckets a historical leaf of
// the condition variable's own DAG by whether its value was possibly
// consistent with `x op k`.
func predFor(op rangelist.CompareOp, kRL rangelist.RangeList) implied.Predicate {
	return func(v state.Value) bool {
		return rangelist.PossiblyTrue(valueRangeList(v, kRL.Type), op, kRL)
	}
}

func valueRangeList(v state.Value, t *sval.Type) rangelist.RangeList {
	switch x := v.(type) {
	case *rangelist.DataInfo:
		return x.RL
	case sval.Sval:
		return rangelist.Single(x)
	}
	return rangelist.Whole(t)
}

// conditionParts recognizes `symbol op constant` and `constant op
// symbol` comparisons — the only shape component D refines; anything
// else (logical combinations, two symbols, casts) falls through
// unrefined, the same as a checker that doesn't recognize the condition
// shape would.
func conditionParts(cond *cnode.Expr) (id intern.Ident, op rangelist.CompareOp, k sval.Sval, ok bool) {
	if cond == nil || cond.Kind != cnode.COMPARE {
		return intern.Ident{}, 0, sval.Sval{}, false
	}
	op, ok = compareOp(cond.Op)
	if !ok {
		return intern.Ident{}, 0, sval.Sval{}, false
	}
	switch {
	case cond.Left != nil && cond.Left.Kind == cnode.SYMBOL && cond.Right != nil && cond.Right.Kind == cnode.VALUE:
		return intern.Ident{Owner: rangeOwner, Name: cond.Left.Ident}, op, sval.Of(sval.Int, cond.Right.IntValue), true
	case cond.Right != nil && cond.Right.Kind == cnode.SYMBOL && cond.Left != nil && cond.Left.Kind == cnode.VALUE:
		return intern.Ident{Owner: rangeOwner, Name: cond.Right.Ident}, mirrorOp(op), sval.Of(sval.Int, cond.Left.IntValue), true
	}
	return intern.Ident{}, 0, sval.Sval{}, false
}

func compareOp(tok string) (rangelist.CompareOp, bool) {
	switch tok {
	case "==":
		return rangelist.Eq, true
	case "!=":
		return rangelist.Ne, true
	case "<":
		return rangelist.Lt, true
	case "<=":
		return rangelist.Le, true
	case ">":
		return rangelist.Gt, true
	case ">=":
		return rangelist.Ge, true
	}
	return 0, false
}

// mirrorOp swaps the operator's sides, turning `k < x` into the
// equivalent `x > k` so conditionParts can treat both orderings
// uniformly. Eq/Ne are symmetric and pass through unchanged.
func mirrorOp(op rangelist.CompareOp) rangelist.CompareOp {
	switch op {
	case rangelist.Lt:
		return rangelist.Gt
	case rangelist.Gt:
		return rangelist.Lt
	case rangelist.Le:
		return rangelist.Ge
	case rangelist.Ge:
		return rangelist.Le
	default:
		return op
	}
}

// walkLoop approximates the loop body's fixed point with two passes: the
// first pass starting from the pre-loop state models "ran zero or more
// times so far", and merging that into a second pass's result widens any
// identity the body touches to "possible value from any iteration",
// without iterating to a true fixed point. Each pass's loop condition is
// refined the same way walkIf refines an if's, so per-iteration range
// narrowing (e.g. a counter bounded by the loop test) feeds the body.
// AFTER_LOOP_NO_BREAKS fires on the merged exit state since this walker
// does not track break-statement occurrences (breaks are represented as
// gotos, handled opaquely - see walkStmt's GOTO case).
func (w *Walker) walkLoop(tree *state.Tree, s *cnode.Stmt) (result, error) {
	defer w.Debug.Enter("loop (line %d)", s.Pos.Line)()

	if s.Init != nil {
		initRes, err := w.walkStmt(tree, s.Init)
		if err != nil {
			return result{}, err
		}
		tree = initRes.tree
	}
	entry := tree

	onePass := func(from *state.Tree) (*state.Tree, error) {
		t := from
		var err error
		if s.Cond != nil {
			t, err = w.walkExpr(t, s.Cond)
			if err != nil {
				return nil, err
			}
			trueTree, _ := w.refineCondition(t, s.Cond)
			t, err = w.dispatch(hooks.CONDITION_HOOK, trueTree, s.Cond, nil, s.Pos.Line)
			if err != nil {
				return nil, err
			}
		}
		bodyRes, err := w.walkStmt(t.EnterPool(), s.Body)
		if err != nil {
			return nil, err
		}
		t = bodyRes.tree
		if s.Post != nil {
			postRes, err := w.walkStmt(t, s.Post)
			if err != nil {
				return nil, err
			}
			t = postRes.tree
		}
		return t, nil
	}

	afterOnce, err := onePass(entry)
	if err != nil {
		return result{}, err
	}
	invariant := state.MergeTrees(entry, afterOnce, rangeMergers, state.UnionMerger, s.Pos.Line)

	afterTwice, err := onePass(invariant)
	if err != nil {
		return result{}, err
	}
	exit := state.MergeTrees(invariant, afterTwice, rangeMergers, state.UnionMerger, s.Pos.Line)
	exit = exit.WithPool(entry.Pool())

	if s.Cond != nil {
		_, falseTree := w.refineCondition(exit, s.Cond)
		exit, err = w.dispatch(hooks.CONDITION_HOOK, falseTree, negated(s.Cond), nil, s.Pos.Line)
		if err != nil {
			return result{}, err
		}
	}
	exit, err = w.dispatch(hooks.AFTER_LOOP_NO_BREAKS, exit, nil, s, s.Pos.Line)
	if err != nil {
		return result{}, err
	}
	return result{tree: exit}, nil
}

// walkSwitch treats each CASE's body as an independent branch from the
// switch's entry state (ignoring C fallthrough, a documented
// simplification of this component's scope) and merges every branch's
// exit state together. Per spec.md §4.C, the scrutinee's range list is
// pushed as a "remaining cases" stack: each CASE's value is intersected
// with whatever remains and then removed from it, so later cases (and
// default, which consumes whatever's left) see the scrutinee narrowed by
// every case that came before.
func (w *Walker) walkSwitch(tree *state.Tree, s *cnode.Stmt) (result, error) {
	defer w.Debug.Enter("switch (line %d)", s.Pos.Line)()

	tree, err := w.walkExpr(tree, s.Cond)
	if err != nil {
		return result{}, err
	}
	if s.Body == nil || len(s.Body.Stmts) == 0 {
		return result{tree: tree}, nil
	}

	remaining := w.scrutineeRangeList(tree, s.Cond)

	// CASE markers carry no body of their own (cnode.Stmt's CASE has no
	// Then — case labels and their statements are flat siblings under
	// Body.Stmts, true C switch structure). So a case's statements are
	// everything between one CASE marker and the next; groupTree is
	// walked sequentially through that run, starting from the scrutinee
	// narrowed to this case's value, and each group's end state merges
	// into the switch's exit independent of every other group (this
	// walker doesn't model cross-case fallthrough at the control-flow
	// level, only within one group's own statements).
	var merged *state.Tree
	anyLive := false
	groupTree := tree
	groupTerminated := false
	haveGroup := false

	flush := func() {
		if !haveGroup || groupTerminated {
			return
		}
		anyLive = true
		if merged == nil {
			merged = groupTree
		} else {
			merged = state.MergeTrees(merged, groupTree, rangeMergers, state.UnionMerger, s.Pos.Line)
		}
	}

	for _, c := range s.Body.Stmts {
		if c.Kind == cnode.CASE {
			flush()
			if c.Expr != nil && c.Expr.Kind == cnode.VALUE {
				k := sval.Of(remaining.Type, c.Expr.IntValue)
				groupTree = w.capScrutinee(tree, s.Cond, rangelist.Intersection(remaining, rangelist.Single(k)))
				remaining = rangelist.Remove(remaining, k, k)
			} else {
				// default: whatever's left once every other case's value
				// has been removed from the remaining-cases set.
				groupTree = w.capScrutinee(tree, s.Cond, remaining)
			}
			groupTerminated = false
			haveGroup = true
			continue
		}
		if !haveGroup {
			// Statements preceding any CASE marker (unreachable in valid
			// C) walk from the unnarrowed entry state.
			groupTree = tree
			haveGroup = true
		}
		if groupTerminated {
			continue
		}
		res, err := w.walkStmt(groupTree, c)
		if err != nil {
			return result{}, err
		}
		groupTree = res.tree
		groupTerminated = res.terminated
	}
	flush()

	if !anyLive {
		return result{tree: tree, terminated: true}, nil
	}
	return result{tree: merged}, nil
}

// scrutineeRangeList returns the switch scrutinee's current range list,
// if it's a range-tracked symbol, else the whole range of its assumed
// type (int — the engine has no real C type information for an
// expression without a front end behind it).
func (w *Walker) scrutineeRangeList(tree *state.Tree, cond *cnode.Expr) rangelist.RangeList {
	if cond == nil || cond.Kind != cnode.SYMBOL {
		return rangelist.Whole(sval.Int)
	}
	if sm, ok := tree.Get(intern.Ident{Owner: rangeOwner, Name: cond.Ident}); ok {
		if di, ok := sm.Value.(*rangelist.DataInfo); ok {
			return di.RL
		}
	}
	return rangelist.Whole(sval.Int)
}

// capScrutinee narrows a range-tracked scrutinee's Data-info to rl for
// one case branch. A scrutinee the engine isn't tracking (anything but a
// plain symbol) is left alone; there's nothing to narrow.
func (w *Walker) capScrutinee(tree *state.Tree, cond *cnode.Expr, rl rangelist.RangeList) *state.Tree {
	if cond == nil || cond.Kind != cnode.SYMBOL {
		return tree
	}
	di := rangelist.NewDataInfo(rl)
	di.Cap(rl)
	return tree.Set(intern.Ident{Owner: rangeOwner, Name: cond.Ident}, di, cond.Pos.Line)
}

// walkReturn snapshots the returned expression's range list into the
// per-function return-states accumulator, sets the distinguished
// return_ranges identity on the path's own stree, and fires RETURN_HOOK,
// per spec.md §4.C's Return handling. Walk exports the accumulator to the
// summary database at function end.
func (w *Walker) walkReturn(tree *state.Tree, s *cnode.Stmt) (result, error) {
	tree, err := w.walkExpr(tree, s.Expr)
	if err != nil {
		return result{}, err
	}

	ranges := w.exprRangeList(tree, s.Expr)
	retDI := rangelist.NewDataInfo(ranges)
	retDI.Cap(ranges)
	tree = tree.Set(intern.Ident{Owner: rangeOwner, Name: returnRangesName}, retDI, s.Pos.Line)
	w.returns = append(w.returns, returnSnapshot{ranges: ranges, line: s.Pos.Line})

	tree, err = w.dispatch(hooks.RETURN_HOOK, tree, s.Expr, s, s.Pos.Line)
	if err != nil {
		return result{}, err
	}
	return result{tree: tree, terminated: true}, nil
}

// exprRangeList returns e's range list: a constant's own value, a
// range-tracked symbol's current Data-info, or (for anything else, or a
// bare "return;") the whole range of its assumed type.
func (w *Walker) exprRangeList(tree *state.Tree, e *cnode.Expr) rangelist.RangeList {
	if e == nil {
		return rangelist.Whole(sval.Int)
	}
	switch e.Kind {
	case cnode.VALUE:
		return rangelist.Single(sval.Of(sval.Int, e.IntValue))
	case cnode.SYMBOL:
		if sm, ok := tree.Get(intern.Ident{Owner: rangeOwner, Name: e.Ident}); ok {
			if di, ok := sm.Value.(*rangelist.DataInfo); ok {
				return di.RL
			}
		}
	}
	return rangelist.Whole(sval.Int)
}
