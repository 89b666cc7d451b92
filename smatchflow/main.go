// Command smatchflow runs the flow-sensitive symbolic-execution engine
// over a driver-supplied set of parsed C functions (package cnode), and
// offers a couple of summary-database maintenance subcommands.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aclements/smatchflow/config"
	"github.com/aclements/smatchflow/diag"
	"github.com/aclements/smatchflow/hooks"
	internallog "github.com/aclements/smatchflow/internal/log"
	"github.com/aclements/smatchflow/pathexplorer"
	"github.com/aclements/smatchflow/summarydb"
	"github.com/integrii/flaggy"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	flaggy.SetName("smatchflow")
	flaggy.SetDescription("flow-sensitive, path-sensitive static analysis engine")
	flaggy.SetVersion(version)

	var (
		project      string
		dbPath       = "smatchflow.db"
		info         bool
		spammy       bool
		noDB         bool
		debug        bool
		debugImplied bool
	)
	analyze := flaggy.NewSubcommand("analyze")
	analyze.Description = "analyze one project's source files"
	analyze.String(&project, "p", "project", "project identifier, selects which config tables to load")
	analyze.String(&dbPath, "", "db", "path to the summary database")
	analyze.Bool(&info, "", "info", "print informational diagnostics")
	analyze.Bool(&spammy, "", "spammy", "print every diagnostic, including low-confidence ones")
	analyze.Bool(&noDB, "", "no-db", "run without reading or writing the summary database")
	analyze.Bool(&debug, "", "debug", "trace the path explorer's walk")
	analyze.Bool(&debugImplied, "", "debug-implied", "trace the path explorer's walk, like --debug (DAG walks are not traced separately)")
	flaggy.AttachSubcommand(analyze, 1)

	dbCompact := flaggy.NewSubcommand("compact")
	dbCompact.Description = "vacuum the summary database"
	dbCompact.String(&dbPath, "", "db", "path to the summary database")
	dbDump := flaggy.NewSubcommand("dump")
	dbDump.Description = "print every row of the summary tables (leaf_functions excluded)"
	dbDump.String(&dbPath, "", "db", "path to the summary database")
	db := flaggy.NewSubcommand("db")
	db.Description = "summary database maintenance"
	db.AttachSubcommand(dbCompact, 1)
	db.AttachSubcommand(dbDump, 1)
	flaggy.AttachSubcommand(db, 1)

	flaggy.Parse()

	log := internallog.NewLogger(internallog.Options{Debug: debug, Project: project, Version: version})

	var err error
	switch {
	case analyze.Used:
		err = runAnalyze(project, dbPath, noDB, info, spammy, debug, debugImplied, log)
	case dbCompact.Used:
		err = runCompact(dbPath, log)
	case dbDump.Used:
		err = runDump(dbPath, log)
	default:
		flaggy.ShowHelp("")
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "smatchflow:", err)
		os.Exit(1)
	}
}

// loadFuncTable loads the <project>.<suffix> function table named in
// spec.md §6 (e.g. "kernel.returns_err_ptr"), if one exists in the
// current working directory. A missing file yields an empty table rather
// than an error. The loaded table is not handed to the hook registry.
func loadFuncTable(project, suffix string) (*config.FuncTable, error) {
	f, err := os.Open(project + "." + suffix)
	if os.IsNotExist(err) {
		return &config.FuncTable{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return config.Parse(f)
}

func runAnalyze(project, dbPath string, noDB, info, spammy, debug, debugImplied bool, log *logrus.Entry) error {
	var store *summarydb.Store
	if !noDB {
		s, err := summarydb.Open(dbPath, log)
		if err != nil {
			return fmt.Errorf("opening summary database: %w", err)
		}
		store = s
		defer store.Close()
	}

	if _, err := loadFuncTable(project, "allocation_funcs_gfp"); err != nil {
		return fmt.Errorf("loading function tables: %w", err)
	}

	reg := hooks.NewRegistry()
	sink := diag.NewSink(os.Stdout)
	sink.Spam = spammy || info

	w := pathexplorer.NewWalker(reg, log)
	w.DB = store
	if debug || debugImplied {
		w.Debug = pathexplorer.NewDebugTree(os.Stderr)
	}

	// A real driver calls w.Walk(fn) once per parsed function, feeding
	// results to whatever checkers were registered into reg, and calls
	// w.EndFile() once the translation unit's functions are exhausted;
	// wiring the actual C front end that produces cnode.Func trees is
	// the embedding driver's job, not this engine's.
	if err := w.EndFile(); err != nil {
		return err
	}
	return sink.Flush()
}

func runCompact(dbPath string, log *logrus.Entry) error {
	store, err := summarydb.Open(dbPath, log)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Compact()
}

func runDump(dbPath string, log *logrus.Entry) error {
	store, err := summarydb.Open(dbPath, log)
	if err != nil {
		return err
	}
	defer store.Close()
	rows, err := store.Dump()
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Printf("%s\t%s\n", r.Table, strings.Join(r.Cols, "\t"))
	}
	return nil
}
