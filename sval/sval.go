// Package sval implements the engine's scalar symbol value: a tagged
// 64-bit integer carrying a reference to its C type (bit-width and
// signedness) alongside the raw bit pattern.
//
// Everything above this package — range lists, the state table, the
// implied-value engine — is built on top of Sval and never reasons about
// raw int64/uint64 values directly, so that signed and unsigned arithmetic
// always take the semantic path their C type calls for.
package sval

import "fmt"

// A Type describes a C integer type: its bit-width and its signedness.
// Types are interned so that two Types describing the same (bits, signed)
// pair compare equal with ==, matching the "reference to a C type
// descriptor" data model of the engine this package implements.
type Type struct {
	Name   string
	Bits   uint8
	Signed bool
}

var typeTable = map[Type]*Type{}

// Intern returns the canonical *Type for the given name/bits/signed triple.
// Calling Intern twice with the same bits and signed (regardless of name)
// returns the same pointer, since type identity for arithmetic purposes is
// bit-width and signedness, not spelling.
func Intern(name string, bits uint8, signed bool) *Type {
	key := Type{Bits: bits, Signed: signed}
	if t, ok := typeTable[key]; ok {
		return t
	}
	t := &Type{Name: name, Bits: bits, Signed: signed}
	typeTable[key] = t
	return t
}

// Standard C integer types, sized the way a typical LP64 target sizes them.
var (
	Bool    = Intern("_Bool", 1, false)
	Char    = Intern("char", 8, true)
	UChar   = Intern("unsigned char", 8, false)
	Short   = Intern("short", 16, true)
	UShort  = Intern("unsigned short", 16, false)
	Int     = Intern("int", 32, true)
	UInt    = Intern("unsigned int", 32, false)
	Long    = Intern("long", 64, true)
	ULong   = Intern("unsigned long", 64, false)
	LLong   = Intern("long long", 64, true)
	ULLong  = Intern("unsigned long long", 64, false)
	PtrType = Intern("void *", 64, false)
)

// mask returns the bit mask selecting the low t.Bits bits.
func (t *Type) mask() uint64 {
	if t.Bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << t.Bits) - 1
}

func (t *Type) signBit() uint64 {
	if t.Bits == 0 || t.Bits > 64 {
		return 0
	}
	return uint64(1) << (t.Bits - 1)
}

// Min returns the type's minimum representable value, as an Sval of that
// type.
func (t *Type) Min() Sval {
	if !t.Signed {
		return Sval{t, 0}
	}
	return Sval{t, t.signBit() & t.mask()}
}

// Max returns the type's maximum representable value, as an Sval of that
// type.
func (t *Type) Max() Sval {
	if !t.Signed {
		return Sval{t, t.mask()}
	}
	return Sval{t, (t.mask() >> 1)}
}

// Sval is a scalar value tagged with the C type that its bits should be
// interpreted under. Value always holds the type's bit pattern truncated to
// Type.Bits; for a signed type, a negative value is stored two's-complement.
type Sval struct {
	Type  *Type
	Value uint64
}

// Of constructs an Sval of type t from a raw (possibly negative, if t is
// signed) int64, truncating to t's width.
func Of(t *Type, v int64) Sval {
	return Sval{t, uint64(v) & t.mask()}
}

// OfUnsigned constructs an Sval of type t from a raw uint64, truncating to
// t's width.
func OfUnsigned(t *Type, v uint64) Sval {
	return Sval{t, v & t.mask()}
}

// Signed returns v's value interpreted as a signed integer, sign-extended
// from its type's width. This is meaningful for any Sval, not only signed
// ones — it's how range arithmetic compares values across signedness after
// a cast normalizes them to a common type.
func (v Sval) Signed() int64 {
	if v.Type.Signed && v.Value&v.Type.signBit() != 0 {
		return int64(v.Value | ^v.Type.mask())
	}
	return int64(v.Value)
}

// Unsigned returns v's value interpreted as an unsigned integer.
func (v Sval) Unsigned() uint64 {
	return v.Value & v.Type.mask()
}

// Less reports whether v < other under v's own type's ordering. v and other
// must have the same type; the range-list layer is responsible for casting
// to a common type first.
func (v Sval) Less(other Sval) bool {
	if v.Type != other.Type {
		panic("sval: Less on mismatched types")
	}
	if v.Type.Signed {
		return v.Signed() < other.Signed()
	}
	return v.Unsigned() < other.Unsigned()
}

// Equal reports whether v and other hold the same type and bit pattern.
func (v Sval) Equal(other Sval) bool {
	return v.Type == other.Type && v.Value == other.Value
}

// Cast converts v to type to, following C's sign-extension/truncation
// rules: widening a signed value sign-extends, widening an unsigned value
// zero-extends, and narrowing truncates (silently wrapping, which is the
// behavior rl_cast uses to decide whether a cast must split a range).
func (v Sval) Cast(to *Type) Sval {
	var wide int64
	if v.Type.Signed {
		wide = v.Signed()
	} else {
		wide = int64(v.Unsigned())
	}
	return Sval{to, uint64(wide) & to.mask()}
}

// Add, Sub, Mul are the arithmetic operators used by range-list binops.
// They operate at v's type (the "chosen result type" of §3) and wrap
// silently; overflow detection is the caller's responsibility (this
// package provides AddOverflows for addition), matching the C semantics this engine models rather
// than Go's own overflow-panics-never semantics.
func (v Sval) Add(o Sval) Sval { return Sval{v.Type, (v.Value + o.Value) & v.Type.mask()} }
func (v Sval) Sub(o Sval) Sval { return Sval{v.Type, (v.Value - o.Value) & v.Type.mask()} }
func (v Sval) Mul(o Sval) Sval {
	if v.Type.Signed {
		return Of(v.Type, v.Signed()*o.Signed())
	}
	return OfUnsigned(v.Type, v.Unsigned()*o.Unsigned())
}

// DivOK divides v by o, returning false if the division is undefined: o is
// zero, or the division is the signed-overflow case INT_MIN/-1 that §4.A
// calls out as excluded from the result.
func (v Sval) DivOK(o Sval) (Sval, bool) {
	if o.Unsigned() == 0 && !o.Type.Signed {
		return Sval{}, false
	}
	if v.Type.Signed {
		n, d := v.Signed(), o.Signed()
		if d == 0 {
			return Sval{}, false
		}
		if n == v.Type.Min().Signed() && d == -1 {
			return Sval{}, false
		}
		return Of(v.Type, n/d), true
	}
	n, d := v.Unsigned(), o.Unsigned()
	if d == 0 {
		return Sval{}, false
	}
	return OfUnsigned(v.Type, n/d), true
}

// ModOK is the modulus counterpart of DivOK. It fails only for a zero
// divisor; the signed INT_MIN % -1 case that DivOK rejects yields 0.
func (v Sval) ModOK(o Sval) (Sval, bool) {
	if v.Type.Signed {
		n, d := v.Signed(), o.Signed()
		if d == 0 {
			return Sval{}, false
		}
		if n == v.Type.Min().Signed() && d == -1 {
			return Of(v.Type, 0), true
		}
		return Of(v.Type, n%d), true
	}
	n, d := v.Unsigned(), o.Unsigned()
	if d == 0 {
		return Sval{}, false
	}
	return OfUnsigned(v.Type, n%d), true
}

func (v Sval) And(o Sval) Sval { return Sval{v.Type, v.Value & o.Value & v.Type.mask()} }
func (v Sval) Or(o Sval) Sval  { return Sval{v.Type, (v.Value | o.Value) & v.Type.mask()} }
func (v Sval) Xor(o Sval) Sval { return Sval{v.Type, (v.Value ^ o.Value) & v.Type.mask()} }

// ShlOK shifts v left by the shift amount held in o, returning false (per
// §4.A) if the shift amount is negative or not less than the type's width.
func (v Sval) ShlOK(o Sval) (Sval, bool) {
	n := o.Signed()
	if n < 0 || n >= int64(v.Type.Bits) {
		return Sval{}, false
	}
	return Sval{v.Type, (v.Value << uint(n)) & v.Type.mask()}, true
}

// ShrOK is the right-shift counterpart of ShlOK. A signed v shifts
// arithmetically; an unsigned v shifts logically.
func (v Sval) ShrOK(o Sval) (Sval, bool) {
	n := o.Signed()
	if n < 0 || n >= int64(v.Type.Bits) {
		return Sval{}, false
	}
	if v.Type.Signed {
		return Of(v.Type, v.Signed()>>uint(n)), true
	}
	return OfUnsigned(v.Type, v.Unsigned()>>uint(n)), true
}

// AddOverflows reports whether v+o, computed at infinite precision, falls
// outside v.Type's range. At 64-bit width, v.Signed()+o.Signed() (or the
// unsigned equivalent) is itself computed in a same-width Go integer and
// can silently wrap before any bounds check runs, so that width uses the
// classic two's-complement/wraparound overflow tests instead of comparing
// a widened sum against Min/Max.
func (v Sval) AddOverflows(o Sval) bool {
	if v.Type.Signed {
		if v.Type.Bits >= 64 {
			a, b := v.Signed(), o.Signed()
			sum := a + b
			return ((a ^ sum) & (b ^ sum)) < 0
		}
		sum := v.Signed() + o.Signed()
		return sum < v.Type.Min().Signed() || sum > v.Type.Max().Signed()
	}
	if v.Type.Bits >= 64 {
		a, b := v.Unsigned(), o.Unsigned()
		return a+b < a
	}
	return v.Unsigned()+o.Unsigned() > v.Type.Max().Unsigned()
}

func (v Sval) String() string {
	if v.Type.Signed {
		return fmt.Sprintf("%d", v.Signed())
	}
	return fmt.Sprintf("%d", v.Unsigned())
}
