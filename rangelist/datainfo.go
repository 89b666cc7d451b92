package rangelist

import "github.com/aclements/smatchflow/intern"

// DataInfo is the full "extra state" the engine tracks for one variable at
// one point in a path, per spec.md §3's Data-info: a range list plus the
// bookkeeping the supplemented features add on top of it.
type DataInfo struct {
	RL RangeList

	// related holds the other identifiers this one has been linked to by
	// an assignment or an `==` comparison (supplemented feature 1).
	// implied.PropagateRelated narrows the rest of the class to a refined
	// member's range without a fresh DAG walk; the path explorer's
	// condition refinement does not call it.
	related []*intern.Ident

	// Capped is true once some comparison has explicitly bounded RL away
	// from the type's whole range. Untagged is true for a RL that is
	// still exactly the type's default whole range because nothing has
	// ever constrained it. A RL can be neither (bounded by something
	// other than a direct comparison, e.g. an assignment) — Capped and
	// Untagged are not complements of each other (supplemented feature 2).
	Capped   bool
	Untagged bool

	// New is not set by anything in this module and stays false.
	// Assigned is true once any assignment (not just the first) has
	// targeted it; a merged Data-info is built fresh by NewDataInfo, so it
	// reads false after a merge.
	New      bool
	Assigned bool
}

// NewDataInfo wraps rl as a fresh Data-info with an empty related set. It
// starts out Untagged exactly when rl is the type's whole range.
func NewDataInfo(rl RangeList) *DataInfo {
	return &DataInfo{RL: rl, Untagged: rl.IsWhole()}
}

// Related returns the identifiers this Data-info is currently linked to.
func (d *DataInfo) Related() []*intern.Ident {
	out := make([]*intern.Ident, len(d.related))
	copy(out, d.related)
	return out
}

// Link adds id to d's equivalence class, if it isn't already a member.
func (d *DataInfo) Link(id *intern.Ident) {
	for _, r := range d.related {
		if *r == *id {
			return
		}
	}
	d.related = append(d.related, id)
}

// Unlink removes id from d's equivalence class. Unlinking happens when a
// later assignment breaks the relation an earlier `==` or `=` established.
func (d *DataInfo) Unlink(id *intern.Ident) {
	for i, r := range d.related {
		if *r == *id {
			d.related = append(d.related[:i], d.related[i+1:]...)
			return
		}
	}
}

// Cap narrows d's range list to rl as the result of an explicit
// comparison, marking it Capped and clearing Untagged.
func (d *DataInfo) Cap(rl RangeList) {
	d.RL = rl
	d.Capped = true
	d.Untagged = false
}

// Assign replaces d's range list as the result of an assignment. Unlike
// Cap, a plain assignment doesn't count as "capped" bounding — it only
// clears Untagged, since the value is now known (if narrowly), not
// merely defaulted.
func (d *DataInfo) Assign(rl RangeList) {
	d.RL = rl
	d.Untagged = false
	d.Assigned = true
}
