package pathexplorer

import (
	"io"
	"testing"

	"github.com/aclements/smatchflow/cnode"
	"github.com/aclements/smatchflow/hooks"
	"github.com/aclements/smatchflow/intern"
	"github.com/aclements/smatchflow/rangelist"
	"github.com/aclements/smatchflow/state"
	"github.com/aclements/smatchflow/summarydb"
	"github.com/aclements/smatchflow/sval"
	"github.com/sirupsen/logrus"
)

func assignStmt(target string, v int64) *cnode.Stmt {
	return &cnode.Stmt{Kind: cnode.EXPRESSION, Expr: &cnode.Expr{
		Kind:  cnode.ASSIGNMENT,
		Left:  &cnode.Expr{Kind: cnode.SYMBOL, Ident: target},
		Right: &cnode.Expr{Kind: cnode.VALUE, IntValue: v},
	}}
}

func compareExpr(ident, op string, v int64) *cnode.Expr {
	return &cnode.Expr{Kind: cnode.COMPARE, Op: op,
		Left:  &cnode.Expr{Kind: cnode.SYMBOL, Ident: ident},
		Right: &cnode.Expr{Kind: cnode.VALUE, IntValue: v},
	}
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestWalkIfMergesBothBranches(t *testing.T) {
	id := intern.Ident{Owner: "test", Name: "x"}
	reg := hooks.NewRegistry()
	reg.Register(hooks.Checker{
		Name:     "setter",
		Requires: []hooks.EventKind{hooks.CONDITION_HOOK},
		Handle: func(ev hooks.Event) *state.Tree {
			if ev.Expr != nil && ev.Expr.Op == "!" {
				return ev.Tree.Set(id, "false_branch", ev.Line)
			}
			return ev.Tree.Set(id, "true_branch", ev.Line)
		},
	})

	fn := &cnode.Func{
		Name: "f",
		Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{
			{Kind: cnode.IF, Cond: &cnode.Expr{Kind: cnode.COMPARE, Op: ">"},
				Then: &cnode.Stmt{Kind: cnode.COMPOUND},
				Else: &cnode.Stmt{Kind: cnode.COMPOUND}},
		}},
	}

	w := NewWalker(reg, testLogger())
	final, err := w.Walk(fn)
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	sm, ok := final.Get(id)
	if !ok {
		t.Fatalf("merged tree missing x")
	}
	if len(sm.Possible) != 2 {
		t.Fatalf("Possible = %v, want both branches represented", sm.Possible)
	}
}

func TestWalkIfBothReturnTerminates(t *testing.T) {
	reg := hooks.NewRegistry()
	fn := &cnode.Func{
		Name: "f",
		Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{
			{Kind: cnode.IF, Cond: &cnode.Expr{Kind: cnode.COMPARE, Op: ">"},
				Then: &cnode.Stmt{Kind: cnode.RETURN},
				Else: &cnode.Stmt{Kind: cnode.RETURN}},
		}},
	}
	w := NewWalker(reg, testLogger())
	if _, err := w.Walk(fn); err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
}

func TestWalkFunctionCallHookFires(t *testing.T) {
	reg := hooks.NewRegistry()
	called := false
	reg.AddFunctionHook("kfree", func(ev hooks.Event, args []*cnode.Expr) *state.Tree {
		called = true
		return ev.Tree
	})
	fn := &cnode.Func{
		Name: "f",
		Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{
			{Kind: cnode.EXPRESSION, Expr: &cnode.Expr{Kind: cnode.CALL, Ident: "kfree"}},
		}},
	}
	w := NewWalker(reg, testLogger())
	if _, err := w.Walk(fn); err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if !called {
		t.Fatalf("kfree function hook should have fired")
	}
}

func TestWalkAsmFiresAsmHook(t *testing.T) {
	reg := hooks.NewRegistry()
	fired := false
	reg.Register(hooks.Checker{
		Name:     "asm",
		Requires: []hooks.EventKind{hooks.ASM_HOOK},
		Handle: func(ev hooks.Event) *state.Tree {
			fired = true
			return ev.Tree
		},
	})
	fn := &cnode.Func{
		Name: "f",
		Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{
			{Kind: cnode.ASM},
		}},
	}
	w := NewWalker(reg, testLogger())
	if _, err := w.Walk(fn); err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if !fired {
		t.Fatalf("ASM_HOOK should have fired for an ASM statement")
	}
}

func TestWalkFiresDefAndFileHooksInOrder(t *testing.T) {
	reg := hooks.NewRegistry()
	var order []string
	record := func(name string) hooks.Callback {
		return func(ev hooks.Event) *state.Tree {
			order = append(order, name)
			return ev.Tree
		}
	}
	reg.Register(hooks.Checker{Name: "a", Requires: []hooks.EventKind{hooks.FUNC_DEF_HOOK}, Handle: record("func_def")})
	reg.Register(hooks.Checker{Name: "b", Requires: []hooks.EventKind{hooks.AFTER_DEF_HOOK}, Handle: record("after_def")})
	reg.Register(hooks.Checker{Name: "c", Requires: []hooks.EventKind{hooks.END_FUNC_HOOK}, Handle: record("end_func")})
	reg.Register(hooks.Checker{Name: "d", Requires: []hooks.EventKind{hooks.AFTER_FUNC_HOOK}, Handle: record("after_func")})
	reg.Register(hooks.Checker{Name: "e", Requires: []hooks.EventKind{hooks.END_FILE_HOOK}, Handle: record("end_file")})

	fn := &cnode.Func{Name: "f", Body: &cnode.Stmt{Kind: cnode.COMPOUND}}
	w := NewWalker(reg, testLogger())
	if _, err := w.Walk(fn); err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if err := w.EndFile(); err != nil {
		t.Fatalf("EndFile returned error: %v", err)
	}
	want := []string{"func_def", "after_def", "end_func", "after_func", "end_file"}
	if len(order) != len(want) {
		t.Fatalf("hook order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("hook order = %v, want %v", order, want)
		}
	}
}

func TestWalkLoopReachesWidenedExit(t *testing.T) {
	id := intern.Ident{Owner: "test", Name: "i"}
	reg := hooks.NewRegistry()
	reg.Register(hooks.Checker{
		Name:     "counter",
		Requires: []hooks.EventKind{hooks.AFTER_LOOP_NO_BREAKS},
		Handle: func(ev hooks.Event) *state.Tree {
			return ev.Tree.Set(id, "loop_exited", ev.Line)
		},
	})
	fn := &cnode.Func{
		Name: "f",
		Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{
			{Kind: cnode.ITERATOR, Cond: &cnode.Expr{Kind: cnode.COMPARE, Op: "<"}, Body: &cnode.Stmt{Kind: cnode.COMPOUND}},
		}},
	}
	w := NewWalker(reg, testLogger())
	final, err := w.Walk(fn)
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	sm, ok := final.Get(id)
	if !ok || sm.Value != "loop_exited" {
		t.Fatalf("final tree = %v, %v, want loop_exited", sm, ok)
	}
}

// TestRefineConditionNarrowsConditionVariable exercises component A's
// direct half of refineCondition: a comparison `x op k` narrows x's own
// range list on each branch via rangelist.FilterCompare.
func TestRefineConditionNarrowsConditionVariable(t *testing.T) {
	w := NewWalker(hooks.NewRegistry(), testLogger())
	xID := intern.Ident{Owner: rangeOwner, Name: "x"}
	tree := state.NewTree().Set(xID, rangelist.NewDataInfo(rangelist.Whole(sval.Int)), 1)

	trueTree, falseTree := w.refineCondition(tree, compareExpr("x", "<", 10))

	trueSM, ok := trueTree.Get(xID)
	if !ok {
		t.Fatalf("true branch missing x")
	}
	trueRL := trueSM.Value.(*rangelist.DataInfo).RL

	falseSM, ok := falseTree.Get(xID)
	if !ok {
		t.Fatalf("false branch missing x")
	}
	falseRL := falseSM.Value.(*rangelist.DataInfo).RL

	if !rangelist.Intersection(trueRL, rangelist.Single(sval.Of(sval.Int, 10))).IsEmpty() {
		t.Fatalf("true branch x range %s should exclude 10", rangelist.Show(trueRL))
	}
	if got, ok := rangelist.ToSval(rangelist.Intersection(trueRL, rangelist.Single(sval.Of(sval.Int, 9)))); !ok || got.Signed() != 9 {
		t.Fatalf("true branch x range %s should retain 9", rangelist.Show(trueRL))
	}
	if !rangelist.Intersection(falseRL, rangelist.Single(sval.Of(sval.Int, 9))).IsEmpty() {
		t.Fatalf("false branch x range %s should exclude 9", rangelist.Show(falseRL))
	}
	if got, ok := rangelist.ToSval(rangelist.Intersection(falseRL, rangelist.Single(sval.Of(sval.Int, 10)))); !ok || got.Signed() != 10 {
		t.Fatalf("false branch x range %s should retain 10", rangelist.Show(falseRL))
	}
}

// TestRefineConditionNarrowsCorrelatedVariable exercises component D: a
// variable (p) set differently on each branch of an earlier if whose own
// condition variable (ret) was itself refined before the branch split gets
// its range narrowed when a later condition tests p, via the leaf-pool
// correlation refineCondition drives through implied.Implied.
func TestRefineConditionNarrowsCorrelatedVariable(t *testing.T) {
	w := NewWalker(hooks.NewRegistry(), testLogger())
	retID := intern.Ident{Owner: rangeOwner, Name: "ret"}
	pID := intern.Ident{Owner: rangeOwner, Name: "p"}

	entry := state.NewTree().Set(retID, rangelist.NewDataInfo(rangelist.Whole(sval.Int)), 1)

	// First if: "if (ret != 0)". The condition variable ret is refined on
	// each branch before the branch is entered, and p is set inside each
	// branch's own pool.
	trueTree, falseTree := w.refineCondition(entry, compareExpr("ret", "!=", 0))
	truePool := trueTree.EnterPool()
	falsePool := falseTree.EnterPool()
	pTrue := truePool.Set(pID, rangelist.NewDataInfo(rangelist.Single(sval.Of(sval.Int, 1))), 2)
	pFalse := falsePool.Set(pID, rangelist.NewDataInfo(rangelist.Single(sval.Of(sval.Int, 0))), 2)
	merged := state.MergeTrees(pTrue, pFalse, rangeMergers, state.UnionMerger, 2)

	// Second if: "if (p != 0)" should imply ret's refined range from
	// whichever branch of the first if produced that value of p.
	pTrueTree, pFalseTree := w.refineCondition(merged, compareExpr("p", "!=", 0))

	retOnPTrue, ok := pTrueTree.Get(retID)
	if !ok {
		t.Fatalf("p!=0 branch missing ret")
	}
	retTrueRL := retOnPTrue.Value.(*rangelist.DataInfo).RL
	if !rangelist.Intersection(retTrueRL, rangelist.Single(sval.Of(sval.Int, 0))).IsEmpty() {
		t.Fatalf("p!=0 branch should imply ret != 0, got range %s", rangelist.Show(retTrueRL))
	}

	retOnPFalse, ok := pFalseTree.Get(retID)
	if !ok {
		t.Fatalf("p==0 branch missing ret")
	}
	retFalseRL := retOnPFalse.Value.(*rangelist.DataInfo).RL
	got, ok := rangelist.ToSval(retFalseRL)
	if !ok || got.Signed() != 0 {
		t.Fatalf("p==0 branch should imply ret == 0, got range %s", rangelist.Show(retFalseRL))
	}
}

// TestWalkGotoMergesIntoLabel exercises the per-label state-list map:
// control reaching a goto contributes its stree to the label's incoming
// edges, and the label definition merges that into whatever fallthrough
// state also reaches it.
func TestWalkGotoMergesIntoLabel(t *testing.T) {
	reg := hooks.NewRegistry()
	xID := intern.Ident{Owner: rangeOwner, Name: "x"}
	fn := &cnode.Func{
		Name: "f",
		Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{
			assignStmt("x", 1),
			{Kind: cnode.GOTO, Label: "out"},
			assignStmt("x", 2),
			{Kind: cnode.LABEL, Label: "out"},
		}},
	}
	w := NewWalker(reg, testLogger())
	final, err := w.Walk(fn)
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	sm, ok := final.Get(xID)
	if !ok {
		t.Fatalf("final tree missing x")
	}
	di, ok := sm.Value.(*rangelist.DataInfo)
	if !ok {
		t.Fatalf("x is not range-tracked: %v", sm.Value)
	}
	want := rangelist.Union(rangelist.Single(sval.Of(sval.Int, 1)), rangelist.Single(sval.Of(sval.Int, 2)))
	if rangelist.Show(di.RL) != rangelist.Show(want) {
		t.Fatalf("x range at label = %s, want %s (goto's x=1 merged with fallthrough x=2)", rangelist.Show(di.RL), rangelist.Show(want))
	}
}

// TestWalkSwitchNarrowsRemainingCases exercises the remaining-cases stack:
// each CASE intersects the scrutinee's range list with whatever remains
// and removes its own value, and default sees whatever's left.
func TestWalkSwitchNarrowsRemainingCases(t *testing.T) {
	reg := hooks.NewRegistry()
	xID := intern.Ident{Owner: rangeOwner, Name: "x"}
	seen := map[int64]rangelist.RangeList{}
	reg.Register(hooks.Checker{
		Name:     "recorder",
		Requires: []hooks.EventKind{hooks.ASSIGNMENT_HOOK},
		Handle: func(ev hooks.Event) *state.Tree {
			if ev.Expr.Left.Ident != "y" {
				return ev.Tree
			}
			if sm, ok := ev.Tree.Get(xID); ok {
				if di, ok := sm.Value.(*rangelist.DataInfo); ok {
					seen[ev.Expr.Right.IntValue] = di.RL
				}
			}
			return ev.Tree
		},
	})

	sw := &cnode.Stmt{Kind: cnode.SWITCH, Cond: &cnode.Expr{Kind: cnode.SYMBOL, Ident: "x"},
		Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{
			{Kind: cnode.CASE, Expr: &cnode.Expr{Kind: cnode.VALUE, IntValue: 1}},
			assignStmt("y", 100),
			{Kind: cnode.CASE, Expr: &cnode.Expr{Kind: cnode.VALUE, IntValue: 2}},
			assignStmt("y", 200),
			{Kind: cnode.CASE}, // default
			assignStmt("y", 300),
		}},
	}
	fn := &cnode.Func{Name: "f", Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{sw}}}

	w := NewWalker(reg, testLogger())
	if _, err := w.Walk(fn); err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}

	case1, ok := rangelist.ToSval(seen[100])
	if !ok || case1.Signed() != 1 {
		t.Fatalf("case 1's scrutinee range = %s, want {1}", rangelist.Show(seen[100]))
	}
	case2, ok := rangelist.ToSval(seen[200])
	if !ok || case2.Signed() != 2 {
		t.Fatalf("case 2's scrutinee range = %s, want {2}", rangelist.Show(seen[200]))
	}
	defaultRL, ran := seen[300]
	if !ran {
		t.Fatalf("default case never ran")
	}
	if !rangelist.Intersection(defaultRL, rangelist.Single(sval.Of(sval.Int, 1))).IsEmpty() {
		t.Fatalf("default scrutinee range %s should exclude case 1's value", rangelist.Show(defaultRL))
	}
	if !rangelist.Intersection(defaultRL, rangelist.Single(sval.Of(sval.Int, 2))).IsEmpty() {
		t.Fatalf("default scrutinee range %s should exclude case 2's value", rangelist.Show(defaultRL))
	}
}

// TestWalkReturnExportsStatesToDB exercises the return-states accumulator
// and its function-end export: every RETURN snapshot in a function becomes
// a row a later caller-side pass can read back via SelectReturnStates.
func TestWalkReturnExportsStatesToDB(t *testing.T) {
	store, err := summarydb.Open("", testLogger())
	if err != nil {
		t.Fatalf("summarydb.Open: %v", err)
	}
	defer store.Close()

	reg := hooks.NewRegistry()
	fn := &cnode.Func{
		Name: "f",
		Body: &cnode.Stmt{Kind: cnode.COMPOUND, Stmts: []*cnode.Stmt{
			{Kind: cnode.IF, Cond: compareExpr("ignored", ">", 0),
				Then: &cnode.Stmt{Kind: cnode.RETURN, Expr: &cnode.Expr{Kind: cnode.VALUE, IntValue: 0}},
				Else: &cnode.Stmt{Kind: cnode.RETURN, Expr: &cnode.Expr{Kind: cnode.VALUE, IntValue: -1}}},
		}},
	}
	w := NewWalker(reg, testLogger())
	w.DB = store
	if _, err := w.Walk(fn); err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}

	rows, err := store.SelectReturnStates(summarydb.Ident{Function: "f"}, -1)
	if err != nil {
		t.Fatalf("SelectReturnStates: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d return-state rows, want 2: %v", len(rows), rows)
	}
	values := map[string]bool{}
	for _, r := range rows {
		values[r.Value] = true
	}
	if !values[rangelist.Show(rangelist.Single(sval.Of(sval.Int, 0)))] {
		t.Fatalf("missing return-state row for 0: %v", rows)
	}
	if !values[rangelist.Show(rangelist.Single(sval.Of(sval.Int, -1)))] {
		t.Fatalf("missing return-state row for -1: %v", rows)
	}
}
