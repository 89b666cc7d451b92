// Package summarydb implements component F: the on-disk cross-function
// summary database of spec.md §3/§4.F/§6, backed by a real SQLite file
// through database/sql and github.com/mattn/go-sqlite3 rather than a
// hand-rolled file format, per the typed-facade design note of spec.md
// §9 — callers never see a *sql.DB or write SQL of their own.
package summarydb

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS caller_info (
	file TEXT NOT NULL,
	function TEXT NOT NULL,
	static INTEGER NOT NULL,
	call_id INTEGER NOT NULL,
	parameter_index INTEGER NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS caller_info_fn ON caller_info(function, static, file);

CREATE TABLE IF NOT EXISTS return_states (
	file TEXT NOT NULL,
	function TEXT NOT NULL,
	static INTEGER NOT NULL,
	return_id INTEGER NOT NULL,
	parameter_index INTEGER NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS return_states_fn ON return_states(function, static, file, parameter_index);

CREATE TABLE IF NOT EXISTS return_implies (
	file TEXT NOT NULL,
	function TEXT NOT NULL,
	static INTEGER NOT NULL,
	return_id INTEGER NOT NULL,
	type INTEGER NOT NULL,
	parameter_index INTEGER NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS return_implies_fn ON return_implies(function, static, file, type);

CREATE TABLE IF NOT EXISTS mtag_data (
	file TEXT NOT NULL,
	function TEXT NOT NULL,
	mtag INTEGER NOT NULL,
	offset INTEGER NOT NULL,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS mtag_data_tag ON mtag_data(mtag, offset);

CREATE TABLE IF NOT EXISTS sink_info (
	file TEXT NOT NULL,
	function TEXT NOT NULL,
	static INTEGER NOT NULL,
	parameter_index INTEGER NOT NULL,
	statement TEXT NOT NULL,
	data TEXT NOT NULL,
	line INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sink_info_fn ON sink_info(function, static, file);

CREATE TABLE IF NOT EXISTS leaf_functions (
	file TEXT NOT NULL,
	function TEXT NOT NULL,
	static INTEGER NOT NULL,
	PRIMARY KEY (file, function, static)
);
`

// Store is the typed facade over the summary database: every exported
// method maps directly to one spec.md §3 table and takes/returns Go
// values, never a raw SQL string.
type Store struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open opens (creating if necessary) the SQLite file at path and ensures
// its schema exists. If path is "" it opens an in-memory database, the
// same fallback spec.md §7.4 calls for when persistent storage is
// unavailable; that fallback is logged since it silently loses state
// across runs.
func Open(path string, log *logrus.Entry) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
		log.WithField("component", "summarydb").Warn("no database path configured, falling back to an in-memory store")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("summarydb: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("summarydb: create schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ident disambiguates static-linkage functions, which must be scoped to
// their defining file, from extern-linkage ones, which are looked up by
// name alone (spec.md §6: "static functions keyed by (file, function);
// extern functions keyed by function").
type Ident struct {
	File     string
	Function string
	Static   bool
}

func staticInt(s Ident) int {
	if s.Static {
		return 1
	}
	return 0
}

// InsertCallerInfo records one (key, value) fact about a call's
// parameter_index-th argument, the caller_info table of spec.md §6.
func (s *Store) InsertCallerInfo(id Ident, callID, paramIndex int, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO caller_info(file, function, static, call_id, parameter_index, key, value) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.File, id.Function, staticInt(id), callID, paramIndex, key, value)
	return err
}

// InsertReturnState records one (key, value) fact about the function's
// own return value or one of its parameters at return time, the
// return_states table.
func (s *Store) InsertReturnState(id Ident, returnID, paramIndex int, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO return_states(file, function, static, return_id, parameter_index, key, value) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.File, id.Function, staticInt(id), returnID, paramIndex, key, value)
	return err
}

// InsertReturnImplies records what a given return type (e.g. "returns
// nonzero") implies about one parameter, the return_implies table.
func (s *Store) InsertReturnImplies(id Ident, returnID, implType, paramIndex int, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO return_implies(file, function, static, return_id, type, parameter_index, key, value) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.File, id.Function, staticInt(id), returnID, implType, paramIndex, key, value)
	return err
}

// InsertMTagData records an offset/value fact tied to a memory tag
// rather than a parameter index, the mtag_data table (used for facts
// about heap objects reachable through more than one parameter).
func (s *Store) InsertMTagData(file, function string, mtag int64, offset int, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO mtag_data(file, function, mtag, offset, value) VALUES (?, ?, ?, ?, ?)`,
		file, function, mtag, offset, value)
	return err
}

// InsertSinkInfo records that parameter_index reaches a sink statement,
// the sink_info table used by taint-style checkers.
func (s *Store) InsertSinkInfo(id Ident, paramIndex int, statement, data string, line int) error {
	_, err := s.db.Exec(
		`INSERT INTO sink_info(file, function, static, parameter_index, statement, data, line) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.File, id.Function, staticInt(id), paramIndex, statement, data, line)
	return err
}

// Row is one (key, value) fact returned by a lookup.
type Row struct {
	ParameterIndex int
	Key            string
	Value          string
}

// SelectCallerInfo returns every caller_info row recorded for id, the
// select_caller_info_hook query of spec.md §4.E, indexed by
// (function, static, file) the way the schema's index supports.
func (s *Store) SelectCallerInfo(id Ident) ([]Row, error) {
	return s.selectRows("caller_info", id)
}

// SelectReturnStates returns every return_states row recorded for id,
// the select_return_states_hook query, optionally narrowed to a single
// parameter_index (pass -1 for "any").
func (s *Store) SelectReturnStates(id Ident, paramIndex int) ([]Row, error) {
	if paramIndex < 0 {
		return s.selectRows("return_states", id)
	}
	q := fmt.Sprintf(`SELECT parameter_index, key, value FROM return_states WHERE function = ? AND static = ? AND (static = 0 OR file = ?) AND parameter_index = ?`)
	rows, err := s.db.Query(q, id.Function, staticInt(id), id.File, paramIndex)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (s *Store) selectRows(table string, id Ident) ([]Row, error) {
	if !validTable(table) {
		return nil, fmt.Errorf("summarydb: unknown table %q", table)
	}
	q := fmt.Sprintf(`SELECT parameter_index, key, value FROM %s WHERE function = ? AND static = ? AND (static = 0 OR file = ?)`, table)
	rows, err := s.db.Query(q, id.Function, staticInt(id), id.File)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func validTable(table string) bool {
	switch table {
	case "caller_info", "return_states":
		return true
	}
	return false
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ParameterIndex, &r.Key, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Compact runs the bulk-compaction phase spec.md §4.F requires: a
// superseded-row sweep (the newest row for a given (function, static,
// file, parameter_index, key) shadows any older one, so only the latest
// survives) followed by a SQLite VACUUM to reclaim the space.
func (s *Store) Compact() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("summarydb: compact: %w", err)
	}
	for _, table := range []string{"caller_info", "return_states", "return_implies"} {
		q := fmt.Sprintf(`
			DELETE FROM %s WHERE rowid NOT IN (
				SELECT MAX(rowid) FROM %s
				GROUP BY file, function, static, parameter_index, key
			)`, table, table)
		if _, err := tx.Exec(q); err != nil {
			tx.Rollback()
			return fmt.Errorf("summarydb: compact %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("summarydb: compact: %w", err)
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("summarydb: vacuum: %w", err)
	}
	s.log.WithField("component", "summarydb").Info("compacted summary database")
	return nil
}

// DumpRow is one row from any of the five tables, tagged with the table
// it came from, for the "db dump" maintenance subcommand.
type DumpRow struct {
	Table string
	Cols  []string
}

// Dump returns every row of the five summary tables (caller_info,
// return_states, return_implies, mtag_data, sink_info; leaf_functions is
// not dumped), in a stable order, for the "db dump" maintenance subcommand. Equality of any two dumps is
// the correctness criterion spec.md §6 states for the on-disk format, so
// this walks tables and columns in a fixed order rather than relying on
// SQLite's unspecified default row order.
func (s *Store) Dump() ([]DumpRow, error) {
	tables := []struct {
		name string
		cols []string
	}{
		{"caller_info", []string{"file", "function", "static", "call_id", "parameter_index", "key", "value"}},
		{"return_states", []string{"file", "function", "static", "return_id", "parameter_index", "key", "value"}},
		{"return_implies", []string{"file", "function", "static", "return_id", "type", "parameter_index", "key", "value"}},
		{"mtag_data", []string{"file", "function", "mtag", "offset", "value"}},
		{"sink_info", []string{"file", "function", "static", "parameter_index", "statement", "data", "line"}},
	}
	var out []DumpRow
	for _, tb := range tables {
		q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(tb.cols, ", "), tb.name, strings.Join(tb.cols, ", "))
		rows, err := s.db.Query(q)
		if err != nil {
			return nil, fmt.Errorf("summarydb: dump %s: %w", tb.name, err)
		}
		err = func() error {
			defer rows.Close()
			dest := make([]interface{}, len(tb.cols))
			raw := make([]sql.RawBytes, len(tb.cols))
			for i := range dest {
				dest[i] = &raw[i]
			}
			for rows.Next() {
				if err := rows.Scan(dest...); err != nil {
					return err
				}
				cols := make([]string, len(raw))
				for i, b := range raw {
					cols[i] = string(b)
				}
				out = append(out, DumpRow{Table: tb.name, Cols: cols})
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarkLeaf records that id is a leaf function: no calls, no locks, no
// allocations, so inter-procedural summary export can be skipped for it
// entirely (supplemented feature 5).
func (s *Store) MarkLeaf(id Ident) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO leaf_functions(file, function, static) VALUES (?, ?, ?)`,
		id.File, id.Function, staticInt(id))
	return err
}

// SkipLeaf reports whether id was previously marked a leaf function by
// MarkLeaf, letting the exporter skip it without re-deriving the fact.
func (s *Store) SkipLeaf(id Ident) (bool, error) {
	row := s.db.QueryRow(`SELECT 1 FROM leaf_functions WHERE file = ? AND function = ? AND static = ?`,
		id.File, id.Function, staticInt(id))
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// KeyPath parses a summary-database key expression: one of "$" (the
// value itself), "*$" (what it points to), "$->field" / "$.field"
// (member access), chained ("$->next->value"), per spec.md §6's key-path
// grammar.
type KeyPath struct {
	Deref bool
	Path  []string
	// Arrow[i] is true when Path[i] was reached with "->", false for ".".
	Arrow []bool
}

// ParseKeyPath parses text into a KeyPath.
func ParseKeyPath(text string) (KeyPath, error) {
	kp := KeyPath{}
	rest := text
	if strings.HasPrefix(rest, "*$") {
		kp.Deref = true
		rest = rest[1:]
	}
	if !strings.HasPrefix(rest, "$") {
		return KeyPath{}, fmt.Errorf("summarydb: key path %q must start with $", text)
	}
	rest = rest[1:]
	for rest != "" {
		var field string
		arrow := strings.HasPrefix(rest, "->")
		switch {
		case arrow:
			rest = rest[2:]
		case strings.HasPrefix(rest, "."):
			rest = rest[1:]
		default:
			return KeyPath{}, fmt.Errorf("summarydb: key path %q has a malformed field access", text)
		}
		i := strings.IndexAny(rest, ".-")
		if i < 0 {
			field, rest = rest, ""
		} else if rest[i] == '-' && i+1 < len(rest) && rest[i+1] == '>' {
			field, rest = rest[:i], rest[i:]
		} else {
			field, rest = rest[:i], rest[i:]
		}
		if field == "" {
			return KeyPath{}, fmt.Errorf("summarydb: key path %q has an empty field name", text)
		}
		kp.Path = append(kp.Path, field)
		kp.Arrow = append(kp.Arrow, arrow)
	}
	return kp, nil
}

// String renders kp back to its canonical textual form.
func (kp KeyPath) String() string {
	var b strings.Builder
	if kp.Deref {
		b.WriteString("*")
	}
	b.WriteString("$")
	for i, f := range kp.Path {
		if i < len(kp.Arrow) && !kp.Arrow[i] {
			b.WriteString(".")
		} else {
			b.WriteString("->")
		}
		b.WriteString(f)
	}
	return b.String()
}
