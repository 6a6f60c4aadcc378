package bookkeeping

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
)

// CLI drives a Migrator for the `eggmigrate bookkeeping` subcommands and
// reports where the bookkeeping table ended up after each change.
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a CLI writing to stdout.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput redirects CLI output.
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// RunUp creates the bookkeeping table, or upgrades it to the newest layout.
func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintf(c.output, "Creating bookkeeping tables (%s)...\n", c.migrator.Table())
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("bookkeeping up: %w", err)
	}
	return c.reportVersion(ctx, "Bookkeeping up to date.")
}

// RunDown undoes the newest bookkeeping layout change.
func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintf(c.output, "Rolling back the last change to %s...\n", c.migrator.Table())
	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("bookkeeping down: %w", err)
	}
	return c.reportVersion(ctx, "Rollback complete.")
}

// RunDownAll drops the bookkeeping table. Every recorded schema version is
// lost with it.
func (c *CLI) RunDownAll(ctx context.Context) error {
	fmt.Fprintf(c.output, "Dropping bookkeeping tables (%s)...\n", c.migrator.Table())
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("bookkeeping down --all: %w", err)
	}
	fmt.Fprintln(c.output, "Bookkeeping tables dropped.")
	return nil
}

// RunSteps moves n layout changes forward, or -n back when n is negative.
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n == 0 {
		return fmt.Errorf("bookkeeping steps: step count must not be zero")
	}
	fmt.Fprintf(c.output, "Moving bookkeeping %+d step(s)...\n", n)
	if err := c.migrator.Steps(ctx, n); err != nil {
		return fmt.Errorf("bookkeeping steps %d: %w", n, err)
	}
	return c.reportVersion(ctx, "Done.")
}

// RunForce records version as current without running any SQL, which clears
// a dirty flag left by a failed change. version must be one of the known
// layouts, or -1 for "nothing applied".
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if version != -1 {
		statuses, err := c.migrator.Status(ctx)
		if err != nil {
			return fmt.Errorf("bookkeeping force: %w", err)
		}
		known := slices.ContainsFunc(statuses, func(s MigrationStatus) bool {
			return int(s.Version) == version
		})
		if !known {
			return fmt.Errorf("bookkeeping force: unknown bookkeeping version %d", version)
		}
	}
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("bookkeeping force %d: %w", version, err)
	}
	fmt.Fprintf(c.output, "Bookkeeping version forced to %d (no SQL was run).\n", version)
	return nil
}

// RunVersion prints the current layout version.
func (c *CLI) RunVersion(ctx context.Context) error {
	return c.reportVersion(ctx, "")
}

// RunStatus lists every known layout change and whether it is applied.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("bookkeeping status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	applied := 0
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "Pending"
		switch {
		case s.Dirty:
			state = "Dirty"
		case s.Applied:
			state = "Applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n", len(statuses), applied, len(statuses)-applied)
	return nil
}

// RunInfo prints a summary of the bookkeeping table and its layout.
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("bookkeeping info: %w", err)
	}

	fmt.Fprintln(c.output, "Bookkeeping Information:")
	w := tabwriter.NewWriter(c.output, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "  Table:\t%s\n", c.migrator.Table())
	fmt.Fprintf(w, "  Current Version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(w, "  Dirty:\t%v\n", info.Dirty)
	fmt.Fprintf(w, "  Applied Migrations:\t%d/%d\n", info.AppliedMigrations, info.TotalMigrations)
	fmt.Fprintf(w, "  Pending Migrations:\t%d\n", info.PendingMigrations)
	return w.Flush()
}

// reportVersion prints "<prefix> Current version: N", or a note that the
// table does not exist yet.
func (c *CLI) reportVersion(ctx context.Context, prefix string) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if prefix != "" {
		fmt.Fprint(c.output, prefix+" ")
	}
	if version == 0 {
		fmt.Fprintln(c.output, "Bookkeeping tables not created yet.")
		return nil
	}
	fmt.Fprintf(c.output, "Current version: %d", version)
	if dirty {
		fmt.Fprint(c.output, " (dirty)")
	}
	fmt.Fprintln(c.output)
	return nil
}
