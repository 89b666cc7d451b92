// Package cnode defines the external input model: the expression and
// statement node kinds the path explorer (package pathexplorer) walks,
// per spec.md §6. The engine never parses C itself — a driver builds this
// tree from whatever C front end it embeds, and the engine only ever reads
// it.
package cnode

// ExprKind enumerates the expression node kinds of spec.md §6.
type ExprKind int

const (
	VALUE ExprKind = iota
	STRING
	SYMBOL
	PREOP
	POSTOP
	BINOP
	COMPARE
	LOGICAL
	CONDITIONAL
	SELECT
	CAST
	FORCE_CAST
	IMPLIED_CAST
	SIZEOF
	ASSIGNMENT
	CALL
	DEREF
)

func (k ExprKind) String() string {
	names := [...]string{
		"VALUE", "STRING", "SYMBOL", "PREOP", "POSTOP", "BINOP", "COMPARE",
		"LOGICAL", "CONDITIONAL", "SELECT", "CAST", "FORCE_CAST",
		"IMPLIED_CAST", "SIZEOF", "ASSIGNMENT", "CALL", "DEREF",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "ExprKind(?)"
	}
	return names[k]
}

// StmtKind enumerates the statement node kinds of spec.md §6.
type StmtKind int

const (
	EXPRESSION StmtKind = iota
	IF
	ITERATOR
	SWITCH
	CASE
	LABEL
	GOTO
	RETURN
	COMPOUND
	ASM
	DECLARATION
)

func (k StmtKind) String() string {
	names := [...]string{
		"EXPRESSION", "IF", "ITERATOR", "SWITCH", "CASE", "LABEL", "GOTO",
		"RETURN", "COMPOUND", "ASM", "DECLARATION",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "StmtKind(?)"
	}
	return names[k]
}

// Pos is a source position: a stream name (the file a driver's front end
// read the token from — distinct from the logical file name used for
// static/extern disambiguation in the summary database) plus a line and
// a byte offset within it.
type Pos struct {
	Stream string
	Line   int
	Offset int
}

// Expr is one node of an expression tree. Which of its fields are
// meaningful depends on Kind; this mirrors the tagged-union shape the
// teacher's own SSA-walking code expects out of go/ssa.Value, adapted to
// the node kinds named in spec.md §6 instead.
type Expr struct {
	Kind Kind
	Pos  Pos

	// VALUE
	IntValue int64
	// STRING
	StrValue string
	// SYMBOL
	Ident string
	// PREOP, POSTOP, BINOP, COMPARE, LOGICAL: Op is the operator token
	// ("+", "==", "&&", "++", ...); Left/Right (Right nil for unary ops).
	Op    string
	Left  *Expr
	Right *Expr
	// CONDITIONAL: Cond ? Left : Right
	Cond *Expr
	// SELECT: Left.Field (or Left->Field if Arrow)
	Field string
	Arrow bool
	// CAST, FORCE_CAST, IMPLIED_CAST: target type name, operand in Left.
	CastType string
	// SIZEOF: either a type name (TypeName set) or an expression (Left set).
	TypeName string
	// ASSIGNMENT: Left = Right, or Left Op= Right for compound assignment.
	// CALL: Ident/Left names the callee, Args holds the arguments.
	Args []*Expr
	// DEREF: *Left, or Left->Field when Field is also set (equivalent to
	// a SELECT with Arrow true; front ends may emit either shape).
}

// Kind is an ExprKind; named separately so Expr.Kind's zero value (VALUE)
// reads naturally at call sites that build literal Exprs inline.
type Kind = ExprKind

// Stmt is one node of a statement tree.
type Stmt struct {
	Kind StmtKind
	Pos  Pos

	// EXPRESSION
	Expr *Expr
	// IF: Cond, Then, Else (Else nil if no else-branch)
	Cond *Expr
	Then *Stmt
	Else *Stmt
	// ITERATOR (for/while/do): Init, Cond, Post, Body. A while/do loop
	// leaves Init and/or Post nil.
	Init *Stmt
	Post *Stmt
	Body *Stmt
	// SWITCH: Cond, Body (a COMPOUND of CASE/other statements)
	// CASE: Expr holds the case value (nil for "default")
	// LABEL, GOTO: Label names the target
	Label string
	// RETURN: Expr holds the returned value (nil for bare "return")
	// COMPOUND: Stmts holds the nested statement sequence
	Stmts []*Stmt
	// DECLARATION: Ident is the declared name, Init (as an EXPRESSION
	// statement) holds its initializer if any
	Ident string
}

// Func is one function definition: its name, parameter identifiers, and
// body. The path explorer's per-function walk (component C) starts here.
type Func struct {
	Name   string
	Static bool
	File   string
	Params []string
	Body   *Stmt
}
