// Package eggmigrate runs schema migrations for systems built from eggs:
// components that each own part of a database schema and declare, per
// version, which versions of other eggs they need.
//
// A project registers its migrations in an egg.Catalog and hands it to an
// App, which implements the eggmigrate command line:
//
//	catalog := egg.NewCatalog().
//		MustRegister("AddEmail", func() migration.Migration { return &AddEmail{} })
//	os.Exit(eggmigrate.NewApp(catalog).Run(context.Background(), os.Args[1:]))
//
// The planner itself lives in package migration; egg describes components
// and their versions; orm keeps the schema version bookkeeping.
package eggmigrate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/BaSui01/eggmigrate/egg"
)

// Exit codes returned by App.Run.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// BuildInfo is injected at build time through ldflags.
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// App is the eggmigrate command line bound to a catalog of migrations.
type App struct {
	catalog *egg.Catalog
	stdout  io.Writer
	stderr  io.Writer
	build   BuildInfo
}

// NewApp creates an App. A nil catalog is treated as empty.
func NewApp(catalog *egg.Catalog) *App {
	if catalog == nil {
		catalog = egg.NewCatalog()
	}
	return &App{
		catalog: catalog,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		build:   BuildInfo{Version: "dev", BuildTime: "unknown", GitCommit: "unknown"},
	}
}

// WithOutput redirects command output and error messages.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	return a
}

// WithBuildInfo sets what the version command prints.
func (a *App) WithBuildInfo(info BuildInfo) *App {
	a.build = info
	return a
}

// =============================================================================
// 🎯 命令分发
// =============================================================================

// Run executes one command and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		a.printUsage(a.stderr)
		return ExitUsage
	}

	switch args[0] {
	case "migrate":
		return a.runMigrate(ctx, args[1:])
	case "status":
		return a.runStatus(ctx, args[1:])
	case "diffdb":
		return a.runDiffDB(ctx, args[1:])
	case "initdb":
		return a.runInitDB(ctx, args[1:])
	case "bookkeeping":
		return a.runBookkeeping(ctx, args[1:])
	case "version":
		a.printVersion()
		return ExitOK
	case "help", "-h", "--help":
		a.printUsage(a.stdout)
		return ExitOK
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n", args[0])
		a.printUsage(a.stderr)
		return ExitUsage
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func (a *App) printVersion() {
	fmt.Fprintf(a.stdout, "eggmigrate %s\n", a.build.Version)
	fmt.Fprintf(a.stdout, "  Build Time: %s\n", a.build.BuildTime)
	fmt.Fprintf(a.stdout, "  Git Commit: %s\n", a.build.GitCommit)
}

func (a *App) printUsage(w io.Writer) {
	fmt.Fprintln(w, `eggmigrate - schema migrations for component-based systems

Usage:
  eggmigrate <command> [options]

Commands:
  migrate      Migrate the database to the installed egg versions
  status       Show installed and recorded versions per egg
  diffdb       Show eggs whose recorded version differs from the installed one
  initdb       Create bookkeeping tables and record installed versions
  bookkeeping  Manage the bookkeeping table schema (up, down, steps, force, status, version, info)
  version      Show version information
  help         Show this help message

Options:
  --config <path>   Path to configuration file (YAML)
  --explain-plan    (migrate) Print the migration plan instead of running it

Examples:
  eggmigrate initdb --config eggmigrate.yaml
  eggmigrate migrate --explain-plan
  eggmigrate migrate
  eggmigrate bookkeeping up
  eggmigrate status`)
}
