package eggmigrate

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/eggmigrate/config"
	"github.com/BaSui01/eggmigrate/internal/bookkeeping"
	"github.com/BaSui01/eggmigrate/internal/ctxkeys"
	"github.com/BaSui01/eggmigrate/internal/system"
)

// =============================================================================
// 🔧 公共准备
// =============================================================================

// session holds what every database command needs.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
}

func (a *App) newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", "", "Path to config file")
	return fs, configPath
}

func (a *App) openSession(configPath string) (*session, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &session{cfg: cfg, logger: initLogger(cfg.Log)}, nil
}

func (a *App) connect(configPath string) (*session, *system.SystemControl, error) {
	sess, err := a.openSession(configPath)
	if err != nil {
		return nil, nil, err
	}
	sys, err := system.Connect(sess.cfg, a.catalog,
		system.WithLogger(sess.logger),
		system.WithOutput(a.stdout),
	)
	if err != nil {
		_ = sess.logger.Sync()
		return nil, nil, err
	}
	return sess, sys, nil
}

func (a *App) fail(format string, err error) int {
	fmt.Fprintf(a.stderr, format+": %v\n", err)
	return ExitError
}

func parseFlags(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	return -1
}

// =============================================================================
// 🚀 migrate
// =============================================================================

func (a *App) runMigrate(ctx context.Context, args []string) int {
	fs, configPath := a.newFlagSet("migrate")
	explain := fs.Bool("explain-plan", false, "Print the migration plan without running it")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}

	sess, sys, err := a.connect(*configPath)
	if err != nil {
		return a.fail("Failed to start", err)
	}
	defer sess.logger.Sync()
	defer sys.Close()

	ctx, runID := ctxkeys.NewRun(ctx)
	sess.logger.Info("eggmigrate migrate", zap.String("run_id", runID), zap.Bool("explain", *explain))

	report, err := sys.MigrateDB(ctx, *explain)
	if err != nil {
		return a.fail("Migration failed", err)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(a.stderr, "warning: %s\n", warning)
	}
	if !report.Explained {
		if report.Schedules == 0 {
			fmt.Fprintln(a.stdout, "Nothing to migrate.")
		} else {
			fmt.Fprintf(a.stdout, "Migrated %d cluster(s) in %s.\n", report.Clusters, report.Duration.Round(time.Millisecond))
		}
	}
	return ExitOK
}

// =============================================================================
// 📋 status / diffdb / initdb
// =============================================================================

func (a *App) runStatus(ctx context.Context, args []string) int {
	fs, configPath := a.newFlagSet("status")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}

	sess, sys, err := a.connect(*configPath)
	if err != nil {
		return a.fail("Failed to start", err)
	}
	defer sess.logger.Sync()
	defer sys.Close()

	statuses, err := sys.Status(ctx)
	if err != nil {
		return a.fail("Failed to get status", err)
	}
	if err := system.WriteStatus(a.stdout, statuses); err != nil {
		return a.fail("Failed to print status", err)
	}
	return ExitOK
}

func (a *App) runDiffDB(ctx context.Context, args []string) int {
	fs, configPath := a.newFlagSet("diffdb")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}

	sess, sys, err := a.connect(*configPath)
	if err != nil {
		return a.fail("Failed to start", err)
	}
	defer sess.logger.Sync()
	defer sys.Close()

	diff, err := sys.DiffDB(ctx)
	if err != nil {
		return a.fail("Failed to compare database", err)
	}
	if len(diff) == 0 {
		fmt.Fprintln(a.stdout, "Database matches the installed eggs.")
		return ExitOK
	}
	if err := system.WriteStatus(a.stdout, diff); err != nil {
		return a.fail("Failed to print differences", err)
	}
	return ExitOK
}

func (a *App) runInitDB(ctx context.Context, args []string) int {
	fs, configPath := a.newFlagSet("initdb")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}

	sess, sys, err := a.connect(*configPath)
	if err != nil {
		return a.fail("Failed to start", err)
	}
	defer sess.logger.Sync()
	defer sys.Close()

	if err := sys.CreateDBTables(ctx); err != nil {
		return a.fail("initdb failed", err)
	}
	fmt.Fprintf(a.stdout, "Recorded %d egg(s) at their installed versions.\n", len(sys.Registry().Eggs()))
	return ExitOK
}

// =============================================================================
// 🗄️ bookkeeping
// =============================================================================

func (a *App) runBookkeeping(ctx context.Context, args []string) int {
	if len(args) < 1 {
		a.printBookkeepingUsage()
		return ExitUsage
	}

	subcommand, rest := args[0], args[1:]
	fs, configPath := a.newFlagSet("bookkeeping " + subcommand)
	all := fs.Bool("all", false, "(down) Roll back every bookkeeping migration")

	var run func(cli *bookkeeping.CLI) error
	switch subcommand {
	case "up":
		run = func(cli *bookkeeping.CLI) error { return cli.RunUp(ctx) }
	case "down":
		run = func(cli *bookkeeping.CLI) error {
			if *all {
				return cli.RunDownAll(ctx)
			}
			return cli.RunDown(ctx)
		}
	case "steps", "force":
		// 位置参数在选项之前，否则 "-1" 会被当成选项解析
		if len(rest) < 1 {
			fmt.Fprintf(a.stderr, "bookkeeping %s requires a number\n", subcommand)
			return ExitUsage
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(a.stderr, "bookkeeping %s: invalid number %q\n", subcommand, rest[0])
			return ExitUsage
		}
		rest = rest[1:]
		if subcommand == "steps" {
			run = func(cli *bookkeeping.CLI) error { return cli.RunSteps(ctx, n) }
		} else {
			run = func(cli *bookkeeping.CLI) error { return cli.RunForce(ctx, n) }
		}
	case "status":
		run = func(cli *bookkeeping.CLI) error { return cli.RunStatus(ctx) }
	case "version":
		run = func(cli *bookkeeping.CLI) error { return cli.RunVersion(ctx) }
	case "info":
		run = func(cli *bookkeeping.CLI) error { return cli.RunInfo(ctx) }
	case "help", "-h", "--help":
		a.printBookkeepingUsage()
		return ExitOK
	default:
		fmt.Fprintf(a.stderr, "Unknown bookkeeping subcommand: %s\n", subcommand)
		a.printBookkeepingUsage()
		return ExitUsage
	}

	if code := parseFlags(fs, rest); code >= 0 {
		return code
	}

	sess, err := a.openSession(*configPath)
	if err != nil {
		return a.fail("Failed to start", err)
	}
	defer sess.logger.Sync()

	migrator, err := bookkeeping.NewMigratorFromConfig(sess.cfg, sess.logger)
	if err != nil {
		return a.fail("Failed to create migrator", err)
	}
	defer migrator.Close()

	cli := bookkeeping.NewCLI(migrator)
	cli.SetOutput(a.stdout)
	if err := run(cli); err != nil {
		return a.fail("bookkeeping "+subcommand+" failed", err)
	}
	return ExitOK
}

func (a *App) printBookkeepingUsage() {
	fmt.Fprintln(a.stderr, `Bookkeeping Table Commands

Usage:
  eggmigrate bookkeeping <subcommand> [options]

Subcommands:
  up          Create or upgrade the bookkeeping table
  down        Roll back the last bookkeeping migration (--all for every one)
  steps <n>   Apply n bookkeeping migrations, or roll back -n
  force <v>   Mark version v as applied without running SQL (-1 for none)
  status      Show bookkeeping migration status
  version     Show the bookkeeping schema version
  info        Show the bookkeeping table and migration summary

Options:
  --config <path>   Path to configuration file (YAML)`)
}
