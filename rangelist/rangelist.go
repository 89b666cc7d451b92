// Package rangelist implements the range algebra of component A: sorted,
// disjoint, non-adjacent sets of sval.Sval intervals, with casts, binary
// arithmetic, and the possibly_true/possibly_false comparison predicates
// that the implied-value engine (package implied) drives off of.
//
// A RangeList is kept canonical: the set operations, Cast and BinOp pass
// their output through normalize, which keeps ranges sorted by Min and
// fuses any pair that overlaps or touches, and the single-range
// constructors (Empty, Whole, Single, New) build canonical lists directly,
// so that two logically equal range sets always
// have == representations for their Ranges slices (testable property 2 of
// the engine this package is part of).
package rangelist

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aclements/smatchflow/sval"
)

// Range is a single closed interval [Min, Max] of svals of one type.
type Range struct {
	Min, Max sval.Sval
}

// RangeList is an ordered, canonical sequence of non-overlapping,
// non-adjacent Ranges of one common Type. A nil/empty Ranges slice denotes
// ∅, "impossible".
type RangeList struct {
	Type   *sval.Type
	Ranges []Range
}

// Empty returns ∅ at type t.
func Empty(t *sval.Type) RangeList {
	return RangeList{Type: t}
}

// Whole returns the full range of t, i.e. [t.Min(), t.Max()].
func Whole(t *sval.Type) RangeList {
	return RangeList{Type: t, Ranges: []Range{{t.Min(), t.Max()}}}
}

// Single returns the singleton range list {v}.
func Single(v sval.Sval) RangeList {
	return RangeList{Type: v.Type, Ranges: []Range{{v, v}}}
}

// New returns the range list [min, max]. min and max must share a type and
// min must not sort after max under that type's ordering.
func New(min, max sval.Sval) RangeList {
	if min.Type != max.Type {
		panic("rangelist: New with mismatched types")
	}
	if max.Less(min) {
		panic("rangelist: New with min > max")
	}
	return RangeList{Type: min.Type, Ranges: []Range{{min, max}}}
}

// IsEmpty reports whether rl is ∅.
func (rl RangeList) IsEmpty() bool { return len(rl.Ranges) == 0 }

// IsWhole reports whether rl covers the type's entire domain.
func (rl RangeList) IsWhole() bool {
	if len(rl.Ranges) != 1 {
		return false
	}
	r := rl.Ranges[0]
	return r.Min.Equal(rl.Type.Min()) && r.Max.Equal(rl.Type.Max())
}

func less(a, b sval.Sval) bool { return a.Less(b) }

// adjacent reports whether b immediately follows a (a.Max+1 == b.Min),
// i.e. whether the two ranges should fuse into one during normalization.
func adjacent(t *sval.Type, a, b Range) bool {
	if a.Max.Equal(t.Max()) {
		return false // a already touches the type maximum; nothing follows it
	}
	next := a.Max.Add(sval.Of(t, 1))
	return next.Equal(b.Min)
}

// normalize sorts ranges by Min and fuses overlapping/adjacent pairs,
// producing the canonical representation every RangeList is kept in.
func normalize(t *sval.Type, ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return less(ranges[i].Min, ranges[j].Min) })
	out := make([]Range, 0, len(ranges))
	cur := ranges[0]
	for _, r := range ranges[1:] {
		if less(cur.Max, r.Min) && !adjacent(t, cur, r) {
			out = append(out, cur)
			cur = r
			continue
		}
		if less(cur.Max, r.Max) {
			cur.Max = r.Max
		}
	}
	out = append(out, cur)
	return out
}

// Union returns the union of a and b. a and b must share a type.
func Union(a, b RangeList) RangeList {
	checkSameType(a, b)
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	all := make([]Range, 0, len(a.Ranges)+len(b.Ranges))
	all = append(all, a.Ranges...)
	all = append(all, b.Ranges...)
	return RangeList{Type: a.Type, Ranges: normalize(a.Type, all)}
}

// Intersection returns the intersection of a and b.
func Intersection(a, b RangeList) RangeList {
	checkSameType(a, b)
	var out []Range
	i, j := 0, 0
	for i < len(a.Ranges) && j < len(b.Ranges) {
		ra, rb := a.Ranges[i], b.Ranges[j]
		lo := ra.Min
		if less(lo, rb.Min) {
			lo = rb.Min
		}
		hi := ra.Max
		if less(rb.Max, hi) {
			hi = rb.Max
		}
		if !less(hi, lo) {
			out = append(out, Range{lo, hi})
		}
		if less(ra.Max, rb.Max) {
			i++
		} else {
			j++
		}
	}
	return RangeList{Type: a.Type, Ranges: normalize(a.Type, out)}
}

// Remove returns rl with the closed interval [min, max] subtracted out.
// Removing a sub-range from the middle of a larger range splits it in two.
func Remove(rl RangeList, min, max sval.Sval) RangeList {
	t := rl.Type
	var out []Range
	for _, r := range rl.Ranges {
		if less(r.Max, min) || less(max, r.Min) {
			out = append(out, r)
			continue
		}
		if less(r.Min, min) {
			left := min.Sub(sval.Of(t, 1))
			if !less(left, r.Min) {
				out = append(out, Range{r.Min, left})
			}
		}
		if less(max, r.Max) {
			right := max.Add(sval.Of(t, 1))
			if !less(r.Max, right) {
				out = append(out, Range{right, r.Max})
			}
		}
	}
	return RangeList{Type: t, Ranges: normalize(t, out)}
}

// Cast converts rl to type, following the signed-extension/truncation and
// possible-splitting semantics of §4.A: a widening cast that keeps the
// signedness never splits a range, a widening or same-width cast that
// changes the signedness splits a range whose image wraps past the
// target's maximum into two, and narrowing to a type whose domain is
// smaller can make a single source range wrap around and come out as two
// (or more) target ranges.
func Cast(rl RangeList, to *sval.Type) RangeList {
	if rl.Type == to {
		return rl
	}
	if rl.IsEmpty() {
		return Empty(to)
	}
	if to.Bits >= rl.Type.Bits {
		// Widening (or same-width sign change): recompute each endpoint's
		// value at the new type. The image of a range is contiguous modulo
		// the target domain, so it wraps at most once, and only when the
		// signedness changes (e.g. a signed range spanning zero cast to
		// unsigned); a wrapped image is split at the target's maximum.
		var out []Range
		for _, r := range rl.Ranges {
			lo, hi := r.Min.Cast(to), r.Max.Cast(to)
			if hi.Less(lo) {
				out = append(out, Range{lo, to.Max()}, Range{to.Min(), hi})
				continue
			}
			out = append(out, Range{lo, hi})
		}
		return RangeList{Type: to, Ranges: normalize(to, out)}
	}
	// Narrowing: each source range may wrap modulo 2^to.Bits one or more
	// times. Walk it span-by-span, one "lap" of the target domain at a
	// time. A signed source is offset by 2^63 so that its values keep their
	// order as uint64s (span divides 2^63, so the low bits are unchanged).
	// For a signed target each lap is split at its midpoint, where the
	// target value jumps from its maximum to its minimum.
	var out []Range
	span := new64(to)
	half := span / 2
	for _, r := range rl.Ranges {
		lo := r.Min.Unsigned()
		hi := r.Max.Unsigned()
		if rl.Type.Signed {
			lo = uint64(r.Min.Signed()) + 1<<63
			hi = uint64(r.Max.Signed()) + 1<<63
		}
		for lo <= hi {
			lapEnd := (lo/span+1)*span - 1
			if to.Signed && lo%span < half {
				lapEnd = lo - lo%span + half - 1
			}
			end := hi
			if lapEnd < end {
				end = lapEnd
			}
			out = append(out, Range{
				sval.OfUnsigned(to, lo%span),
				sval.OfUnsigned(to, end%span),
			})
			if end == hi {
				break
			}
			lo = end + 1
		}
	}
	return RangeList{Type: to, Ranges: normalize(to, out)}
}

func new64(t *sval.Type) uint64 {
	if t.Bits >= 64 {
		return 0 // caller treats 0 as "no wraparound needed" only via Bits>=64 guard above
	}
	return uint64(1) << t.Bits
}

// BinOp computes the range of applying op to every pairing of a value in a
// with a value in b, at a's type. op is one of the Go token-style operator
// symbols: "+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>".
func BinOp(a RangeList, op string, b RangeList) RangeList {
	checkSameType(a, b)
	t := a.Type
	if a.IsEmpty() || b.IsEmpty() {
		return Empty(t)
	}
	var out []Range
	for _, ra := range a.Ranges {
		for _, rb := range b.Ranges {
			rs, ok := binopRange(t, op, ra, rb)
			if !ok {
				continue
			}
			out = append(out, rs...)
		}
	}
	return RangeList{Type: t, Ranges: normalize(t, out)}
}

// binopRange computes the corners of applying op over the cross product of
// [ra.Min,ra.Max] x [rb.Min,rb.Max]. For the monotonic operators (+, -,
// &, |, ^ treated conservatively) this reduces to a handful of corner
// evaluations; for operators whose corners aren't simply the four endpoint
// pairings (multiplication's sign flips, division undefined cases, shifts),
// each pairing is evaluated directly and widened to the whole type on
// overflow since an exact per-range shape isn't always an interval.
func binopRange(t *sval.Type, op string, ra, rb Range) ([]Range, bool) {
	corners := [][2]sval.Sval{
		{ra.Min, rb.Min}, {ra.Min, rb.Max},
		{ra.Max, rb.Min}, {ra.Max, rb.Max},
	}
	var vals []sval.Sval
	for _, c := range corners {
		v, ok := applyScalar(op, c[0], c[1])
		if !ok {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return nil, false
	}
	min, max := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v.Less(min) {
			min = v
		}
		if max.Less(v) {
			max = v
		}
	}
	_ = t
	return []Range{{min, max}}, true
}

func applyScalar(op string, x, y sval.Sval) (sval.Sval, bool) {
	switch op {
	case "+":
		return x.Add(y), true
	case "-":
		return x.Sub(y), true
	case "*":
		return x.Mul(y), true
	case "/":
		return x.DivOK(y)
	case "%":
		return x.ModOK(y)
	case "&":
		return x.And(y), true
	case "|":
		return x.Or(y), true
	case "^":
		return x.Xor(y), true
	case "<<":
		return x.ShlOK(y)
	case ">>":
		return x.ShrOK(y)
	}
	panic("rangelist: unknown binop " + op)
}

// CompareOp is a comparison operator over a common type's ordering.
type CompareOp int

const (
	Eq CompareOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

func (op CompareOp) String() string {
	return [...]string{"==", "!=", "<", "<=", ">", ">="}[op]
}

// PossiblyTrue reports whether some pairing of a value in a with a value in
// b can satisfy `a op b`.
func PossiblyTrue(a RangeList, op CompareOp, b RangeList) bool {
	checkSameType(a, b)
	for _, ra := range a.Ranges {
		for _, rb := range b.Ranges {
			if rangeCompareTrue(op, ra, rb) {
				return true
			}
		}
	}
	return false
}

// PossiblyFalse reports whether some pairing of a value in a with a value
// in b can fail to satisfy `a op b`.
func PossiblyFalse(a RangeList, op CompareOp, b RangeList) bool {
	return PossiblyTrue(a, negate(op), b)
}

// Negate returns the comparison operator whose possibly_true is the
// caller's op's possibly_false, exported for the implied-value engine
// (package implied) and the path explorer's own direct range narrowing on
// the comparison variable itself.
func Negate(op CompareOp) CompareOp { return negate(op) }

func negate(op CompareOp) CompareOp {
	switch op {
	case Eq:
		return Ne
	case Ne:
		return Eq
	case Lt:
		return Ge
	case Le:
		return Gt
	case Gt:
		return Le
	case Ge:
		return Lt
	}
	panic("rangelist: bad CompareOp")
}

// rangeCompareTrue reports whether ra op rb can hold for some pair of
// values drawn from the two intervals.
func rangeCompareTrue(op CompareOp, ra, rb Range) bool {
	switch op {
	case Eq:
		return !less(ra.Max, rb.Min) && !less(rb.Max, ra.Min)
	case Ne:
		return !(ra.Min.Equal(ra.Max) && rb.Min.Equal(rb.Max) && ra.Min.Equal(rb.Min))
	case Lt:
		return less(ra.Min, rb.Max)
	case Le:
		return !less(rb.Max, ra.Min)
	case Gt:
		return less(rb.Min, ra.Max)
	case Ge:
		return !less(ra.Max, rb.Min)
	}
	panic("rangelist: bad CompareOp")
}

// FilterCompare returns the subset of rl consistent with `v op k` for a
// concrete comparison value k: the direct range-list narrowing the path
// explorer applies to a comparison variable's own Data-info on the branch
// where `x op k` holds (spec.md §4.C/§4.D). rl and k must share a type.
func FilterCompare(rl RangeList, op CompareOp, k sval.Sval) RangeList {
	if rl.Type != k.Type {
		panic(fmt.Sprintf("rangelist: FilterCompare type mismatch %v vs %v", rl.Type, k.Type))
	}
	t := rl.Type
	one := sval.Of(t, 1)
	switch op {
	case Eq:
		return Intersection(rl, Single(k))
	case Ne:
		return Remove(rl, k, k)
	case Lt:
		if k.Equal(t.Min()) {
			return Empty(t)
		}
		return Intersection(rl, New(t.Min(), k.Sub(one)))
	case Le:
		return Intersection(rl, New(t.Min(), k))
	case Gt:
		if k.Equal(t.Max()) {
			return Empty(t)
		}
		return Intersection(rl, New(k.Add(one), t.Max()))
	case Ge:
		return Intersection(rl, New(k, t.Max()))
	}
	panic("rangelist: bad CompareOp")
}

// ToSval reports whether rl is the singleton {v}, and if so returns v.
func ToSval(rl RangeList) (sval.Sval, bool) {
	if len(rl.Ranges) != 1 {
		return sval.Sval{}, false
	}
	r := rl.Ranges[0]
	if !r.Min.Equal(r.Max) {
		return sval.Sval{}, false
	}
	return r.Min, true
}

// Show renders rl in the canonical textual form described by §4.A: decimal
// values, except for a range endpoint that exactly matches the type's
// sentinel minimum or maximum, which prints as "min"/"max" so that two
// engine runs agree bit-exactly regardless of the type's concrete width.
func Show(rl RangeList) string {
	if rl.IsEmpty() {
		return "empty"
	}
	if rl.IsWhole() {
		return "whole"
	}
	parts := make([]string, 0, len(rl.Ranges))
	for _, r := range rl.Ranges {
		lo := showSval(rl.Type, r.Min, true)
		if r.Min.Equal(r.Max) {
			parts = append(parts, lo)
			continue
		}
		hi := showSval(rl.Type, r.Max, false)
		parts = append(parts, lo+"-"+hi)
	}
	return strings.Join(parts, ",")
}

func showSval(t *sval.Type, v sval.Sval, isMin bool) string {
	switch {
	case v.Equal(t.Min()):
		return "min"
	case v.Equal(t.Max()):
		return "max"
	}
	if t.Signed {
		return strconv.FormatInt(v.Signed(), 10)
	}
	return strconv.FormatUint(v.Unsigned(), 10)
}

// Parse is the inverse of Show: it parses text (as produced by Show) back
// into a RangeList of type t. Round-tripping through Show/Parse must be the
// identity for any canonical RangeList (testable property 3).
func Parse(t *sval.Type, text string) (RangeList, bool) {
	switch text {
	case "empty":
		return Empty(t), true
	case "whole":
		return Whole(t), true
	}
	var ranges []Range
	for _, part := range strings.Split(text, ",") {
		r, ok := parseRange(t, part)
		if !ok {
			return RangeList{}, false
		}
		ranges = append(ranges, r)
	}
	return RangeList{Type: t, Ranges: normalize(t, ranges)}, true
}

func parseRange(t *sval.Type, part string) (Range, bool) {
	// A bare "-N" is a negative singleton, not a range delimiter, so the
	// split has to skip a leading sign.
	body := part
	sign := ""
	if strings.HasPrefix(body, "-") {
		sign, body = "-", body[1:]
	}
	if i := strings.Index(body, "-"); i >= 0 {
		minText := sign + body[:i]
		maxText := body[i+1:]
		min, ok := parseSval(t, minText)
		if !ok {
			return Range{}, false
		}
		max, ok := parseSval(t, maxText)
		if !ok {
			return Range{}, false
		}
		return Range{min, max}, true
	}
	v, ok := parseSval(t, sign+body)
	if !ok {
		return Range{}, false
	}
	return Range{v, v}, true
}

func parseSval(t *sval.Type, text string) (sval.Sval, bool) {
	switch text {
	case "min":
		return t.Min(), true
	case "max":
		return t.Max(), true
	}
	if t.Signed {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return sval.Sval{}, false
		}
		return sval.Of(t, n), true
	}
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return sval.Sval{}, false
	}
	return sval.OfUnsigned(t, n), true
}

func checkSameType(a, b RangeList) {
	if a.Type != b.Type {
		panic(fmt.Sprintf("rangelist: type mismatch %v vs %v", a.Type, b.Type))
	}
}
