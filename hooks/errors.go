package hooks

import "github.com/aclements/smatchflow/state"

// invariantNilTree reports the hook-dispatch-balance violation of
// spec.md §7: a callback handed a Tree and returned nil instead of
// either the same Tree or an updated one.
func invariantNilTree(who string, kind EventKind) error {
	return state.MustAssert("hooks", false, "%s returned a nil Tree handling %s", who, kind)
}
