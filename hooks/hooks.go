// Package hooks implements component E, the checker/hook registry: a
// typed event bus over the closed set of events the path explorer
// (package pathexplorer) raises while walking a function, plus the
// data-driven per-function-name dispatch and summary-database mediation
// callbacks spec.md §4.E names.
//
// The registry's Checker interface borrows its shape from the teacher's
// analysis.Analyzer/analysis.Pass pattern: a checker declares which event
// kinds it needs (Requires) and the registry resolves dispatch order and
// hands each checker only the events it asked for, instead of every
// checker subscribing to a single global callback list by hand.
package hooks

import (
	"github.com/aclements/smatchflow/cnode"
	"github.com/aclements/smatchflow/state"
)

// EventKind is one of the closed set of hook points spec.md §4.E names.
type EventKind int

const (
	CONDITION_HOOK EventKind = iota
	ASSIGNMENT_HOOK
	RAW_ASSIGNMENT_HOOK
	GLOBAL_ASSIGNMENT_HOOK
	OP_HOOK
	DEREF_HOOK
	FUNCTION_CALL_HOOK
	FUNCTION_CALL_HOOK_AFTER_DB
	FUNC_DEF_HOOK
	AFTER_DEF_HOOK
	STMT_HOOK
	STMT_HOOK_AFTER
	RETURN_HOOK
	END_FUNC_HOOK
	AFTER_FUNC_HOOK
	END_FILE_HOOK
	BINOP_HOOK
	SYM_HOOK
	INLINE_FN_START
	INLINE_FN_END
	ASM_HOOK
	DECLARATION_HOOK
	AFTER_LOOP_NO_BREAKS
)

var eventNames = [...]string{
	"CONDITION_HOOK", "ASSIGNMENT_HOOK", "RAW_ASSIGNMENT_HOOK",
	"GLOBAL_ASSIGNMENT_HOOK", "OP_HOOK", "DEREF_HOOK", "FUNCTION_CALL_HOOK",
	"FUNCTION_CALL_HOOK_AFTER_DB", "FUNC_DEF_HOOK", "AFTER_DEF_HOOK",
	"STMT_HOOK", "STMT_HOOK_AFTER", "RETURN_HOOK", "END_FUNC_HOOK",
	"AFTER_FUNC_HOOK", "END_FILE_HOOK", "BINOP_HOOK", "SYM_HOOK",
	"INLINE_FN_START", "INLINE_FN_END", "ASM_HOOK", "DECLARATION_HOOK",
	"AFTER_LOOP_NO_BREAKS",
}

func (k EventKind) String() string {
	if int(k) < 0 || int(k) >= len(eventNames) {
		return "EventKind(?)"
	}
	return eventNames[k]
}

// Event is what the path explorer hands to a subscribed callback: the
// event kind, the expression or statement node it fired on (whichever is
// relevant to Kind; the other is nil), the current stree, and the
// function/line it happened at.
type Event struct {
	Kind     EventKind
	Expr     *cnode.Expr
	Stmt     *cnode.Stmt
	Tree     *state.Tree
	Function string
	Line     int
}

// Callback is a checker's handler for one event kind. It returns the
// (possibly updated) Tree to keep walking with, so a callback that sets
// new state can hand it straight back instead of needing side-channel
// mutation.
type Callback func(ev Event) *state.Tree

// Checker is the registry's view of one checker, modeled on the teacher's
// analysis.Analyzer/analysis.Pass pattern: a checker declares which
// events it needs, and the registry only ever calls Handle for those.
type Checker struct {
	Name     string
	Requires []EventKind
	Handle   Callback
}

// FunctionHook is a data-driven per-function-name hook, the
// add_function_hook-equivalent of spec.md §4.E, grounded on the teacher's
// callHandler dispatch map: instead of a checker inspecting every
// FUNCTION_CALL_HOOK event and filtering by callee name itself, it
// registers a hook for the exact name (and, for RETURN_HOOK-style
// return-value hooks, a ReturnImplies callback).
type FunctionHook func(ev Event, args []*cnode.Expr) *state.Tree

// Registry is the live hook/checker registry a single analysis run
// builds once at startup.
type Registry struct {
	byKind        map[EventKind][]Checker
	byFunction    map[string][]FunctionHook
	returnImplies map[string][]ReturnImpliesFunc
}

// ReturnImpliesFunc computes the Data-info a call to the given function
// implies about its return value, for checkers that want to fold summary
// rows (component F's return_implies table) into in-function analysis
// without a full database round trip — the return_implies_state hook of
// spec.md §4.E.
type ReturnImpliesFunc func(function string, args []*cnode.Expr) state.Value

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byKind:        make(map[EventKind][]Checker),
		byFunction:    make(map[string][]FunctionHook),
		returnImplies: make(map[string][]ReturnImpliesFunc),
	}
}

// Register adds c to every event kind it Requires.
func (r *Registry) Register(c Checker) {
	for _, k := range c.Requires {
		r.byKind[k] = append(r.byKind[k], c)
	}
}

// AddFunctionHook installs h to fire whenever function is called,
// dispatched from a FUNCTION_CALL_HOOK event by the path explorer.
func (r *Registry) AddFunctionHook(function string, h FunctionHook) {
	r.byFunction[function] = append(r.byFunction[function], h)
}

// AddReturnImplies installs f as a return_implies_state source for calls
// to function.
func (r *Registry) AddReturnImplies(function string, f ReturnImpliesFunc) {
	r.returnImplies[function] = append(r.returnImplies[function], f)
}

// Dispatch fires every Checker.Handle registered for ev.Kind, in
// registration order, threading the returned Tree from one callback into
// the next the way a chain of hooks touching the same state would in the
// teacher's sequential handler list. It returns the final Tree.
//
// Dispatch also wraps each callback invocation with a balance check
// (spec.md §7's "wraps each hook dispatch" internal-invariant category):
// a callback must not return a nil Tree, since that would silently drop
// every identity the path has accumulated so far.
func (r *Registry) Dispatch(ev Event) (*state.Tree, error) {
	tree := ev.Tree
	for _, c := range r.byKind[ev.Kind] {
		ev.Tree = tree
		next := c.Handle(ev)
		if next == nil {
			return tree, invariantNilTree(c.Name, ev.Kind)
		}
		tree = next
	}
	if ev.Kind == FUNCTION_CALL_HOOK && ev.Expr != nil {
		callee := calleeName(ev.Expr)
		for _, h := range r.byFunction[callee] {
			ev.Tree = tree
			next := h(ev, ev.Expr.Args)
			if next == nil {
				return tree, invariantNilTree("function_hook:"+callee, ev.Kind)
			}
			tree = next
		}
	}
	return tree, nil
}

// ReturnImplies runs every registered ReturnImpliesFunc for function on
// the call's argument list and returns the last non-nil result; results
// are not merged. Multiple registered sources for the same function all
// run, matching "later-registered checkers refine
// earlier ones" ordering.
func (r *Registry) ReturnImplies(function string, args []*cnode.Expr) state.Value {
	var out state.Value
	for _, f := range r.returnImplies[function] {
		if v := f(function, args); v != nil {
			out = v
		}
	}
	return out
}

func calleeName(call *cnode.Expr) string {
	if call.Ident != "" {
		return call.Ident
	}
	if call.Left != nil {
		return call.Left.Ident
	}
	return ""
}
