// Package intern holds the engine's interned identifier pool: the
// (owner, name, symbol) triples that name a storage location throughout
// the state table and the path explorer. Interning keeps identity
// comparisons (stree ordering, pool membership) down to pointer/value
// comparisons instead of repeated string comparisons, and gives every
// per-function run a single pool to release when the function's analysis
// ends (§5's per-function resource discipline).
package intern

import "sync"

// Ident is an interned (owner, name, symbol) triple identifying one
// storage location: a local variable, a struct member, or a global. Owner
// disambiguates state belonging to different checkers on the same
// variable (spec.md §3's "owner" field of sm_state); Symbol disambiguates
// same-named locals in different lexical scopes.
type Ident struct {
	Owner  string
	Name   string
	Symbol uintptr
}

// Pool interns Idents for a single function's analysis. A Pool is not
// safe for concurrent use from multiple goroutines analyzing different
// functions at once (those use separate Pools, per §5); it is safe for
// concurrent use only via the package-level String interner below.
type Pool struct {
	idents map[Ident]*Ident
}

// NewPool returns an empty per-function interning pool.
func NewPool() *Pool {
	return &Pool{idents: make(map[Ident]*Ident)}
}

// Intern returns the canonical *Ident for id, allocating it on first use.
func (p *Pool) Intern(id Ident) *Ident {
	if v, ok := p.idents[id]; ok {
		return v
	}
	v := new(Ident)
	*v = id
	p.idents[id] = v
	return v
}

// Release drops the pool's table, allowing its Idents to be garbage
// collected once the function's analysis (and any summary rows that
// captured copies, not pointers, of the identifiers they describe) is
// done.
func (p *Pool) Release() {
	p.idents = nil
}

// strings is the table behind String, a process-wide interner for the
// short strings (function names, checker names) that outlive any one
// function's Pool, such as summary-database keys. It is safe for
// concurrent use.
var strings = struct {
	mu   sync.Mutex
	tab  map[string]string
}{tab: make(map[string]string)}

// String returns the canonical copy of s, deduplicating identical
// strings across the whole run the way the teacher's code deduplicates
// repeated SSA value names.
func String(s string) string {
	strings.mu.Lock()
	defer strings.mu.Unlock()
	if v, ok := strings.tab[s]; ok {
		return v
	}
	strings.tab[s] = s
	return s
}
