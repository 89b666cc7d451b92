package implied

import (
	"github.com/aclements/smatchflow/intern"
	"github.com/aclements/smatchflow/rangelist"
	"github.com/aclements/smatchflow/state"
)

// PropagateRelated applies a newly-capped range list to every identifier
// in di's equivalence class (supplemented feature 1, `related`), without
// requiring a DAG walk to rediscover the link: when `a = b` or `a == b`
// has already linked the two, refining one refines the other directly.
func PropagateRelated(tree *state.Tree, di *rangelist.DataInfo, line int) *state.Tree {
	t := tree
	for _, rel := range di.Related() {
		relSM, ok := t.Get(*rel)
		if !ok {
			continue
		}
		relDI, ok := relSM.Value.(*rangelist.DataInfo)
		if !ok {
			continue
		}
		narrowed := &rangelist.DataInfo{RL: rangelist.Intersection(relDI.RL, di.RL)}
		narrowed.Capped = true
		t = t.Set(*rel, narrowed, line)
	}
	return t
}

// Link records that a and b are now in the same equivalence class,
// updating both Data-infos' related lists. The identities themselves
// (not just their current Data-info values) identify class membership,
// so Link is called once at the assignment/comparison site and the link
// persists across later Sets of either identity's Data-info as long as
// each new Data-info is built from (or copies) the previous one's
// related list.
func Link(aID, bID intern.Ident, aDI, bDI *rangelist.DataInfo) {
	aDI.Link(&bID)
	bDI.Link(&aID)
}
