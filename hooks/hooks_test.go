package hooks

import (
	"testing"

	"github.com/aclements/smatchflow/cnode"
	"github.com/aclements/smatchflow/intern"
	"github.com/aclements/smatchflow/state"
)

func TestDispatchChainsCallbacks(t *testing.T) {
	r := NewRegistry()
	id := intern.Ident{Owner: "test", Name: "x"}
	r.Register(Checker{
		Name:     "first",
		Requires: []EventKind{ASSIGNMENT_HOOK},
		Handle: func(ev Event) *state.Tree {
			return ev.Tree.Set(id, "first_ran", ev.Line)
		},
	})
	r.Register(Checker{
		Name:     "second",
		Requires: []EventKind{ASSIGNMENT_HOOK},
		Handle: func(ev Event) *state.Tree {
			sm, _ := ev.Tree.Get(id)
			if sm.Value != "first_ran" {
				t.Fatalf("second handler should see first handler's update, got %v", sm.Value)
			}
			return ev.Tree.Set(id, "both_ran", ev.Line)
		},
	})
	tree, err := r.Dispatch(Event{Kind: ASSIGNMENT_HOOK, Tree: state.NewTree(), Line: 1})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	sm, ok := tree.Get(id)
	if !ok || sm.Value != "both_ran" {
		t.Fatalf("final tree = %v, %v, want both_ran", sm, ok)
	}
}

func TestDispatchRejectsNilTree(t *testing.T) {
	r := NewRegistry()
	r.Register(Checker{
		Name:     "broken",
		Requires: []EventKind{STMT_HOOK},
		Handle:   func(ev Event) *state.Tree { return nil },
	})
	_, err := r.Dispatch(Event{Kind: STMT_HOOK, Tree: state.NewTree()})
	if err == nil {
		t.Fatalf("Dispatch should reject a callback returning a nil Tree")
	}
}

func TestFunctionHookDispatchesByCalleeName(t *testing.T) {
	r := NewRegistry()
	var called string
	r.AddFunctionHook("kfree", func(ev Event, args []*cnode.Expr) *state.Tree {
		if len(args) > 0 {
			called = args[0].Ident
		}
		return ev.Tree
	})
	call := &cnode.Expr{Kind: cnode.CALL, Ident: "kfree", Args: []*cnode.Expr{{Kind: cnode.SYMBOL, Ident: "p"}}}
	_, err := r.Dispatch(Event{Kind: FUNCTION_CALL_HOOK, Expr: call, Tree: state.NewTree()})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if called != "p" {
		t.Fatalf("function hook for kfree should have fired with arg p, got %q", called)
	}
}

func TestReturnImpliesLastWriterWins(t *testing.T) {
	r := NewRegistry()
	r.AddReturnImplies("kmalloc", func(function string, args []*cnode.Expr) state.Value {
		return "maybe_null"
	})
	r.AddReturnImplies("kmalloc", func(function string, args []*cnode.Expr) state.Value {
		return "nonnull_on_success"
	})
	got := r.ReturnImplies("kmalloc", nil)
	if got != "nonnull_on_success" {
		t.Fatalf("ReturnImplies(kmalloc) = %v, want the last-registered source to win", got)
	}
}
