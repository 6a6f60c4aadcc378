package system

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/eggmigrate/config"
	"github.com/BaSui01/eggmigrate/egg"
	"github.com/BaSui01/eggmigrate/internal/ctxkeys"
	"github.com/BaSui01/eggmigrate/internal/database"
	"github.com/BaSui01/eggmigrate/internal/lock"
	"github.com/BaSui01/eggmigrate/internal/metrics"
	"github.com/BaSui01/eggmigrate/internal/telemetry"
	"github.com/BaSui01/eggmigrate/migration"
	"github.com/BaSui01/eggmigrate/orm"
	"github.com/BaSui01/eggmigrate/types"
)

// errDryRun rolls back an explain run, including a bookkeeping table it had
// to create. MySQL commits DDL implicitly, so there the empty table stays.
var errDryRun = errors.New("dry run")

// migrateAttempts bounds how often a run is retried after a transient
// database error. The whole run is one transaction, so a retry starts clean.
const migrateAttempts = 3

// =============================================================================
// 🧩 SystemControl
// =============================================================================

// SystemControl connects a registry of eggs to a database and runs the
// system-wide operations: migrate, initdb, status and diffdb.
type SystemControl struct {
	cfg       *config.Config
	registry  *egg.Registry
	pool      *database.PoolManager
	orm       *orm.Control
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *metrics.Collector
	locker    *lock.Locker
	providers *telemetry.Providers
	output    io.Writer
}

// Option configures a SystemControl.
type Option func(*SystemControl)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SystemControl) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run and schedule spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *SystemControl) { s.tracer = tracer }
}

// WithMetrics records plans, operations and runs on the collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *SystemControl) { s.metrics = c }
}

// WithLocker serialises migrate runs through a Redis lock.
func WithLocker(l *lock.Locker) Option {
	return func(s *SystemControl) { s.locker = l }
}

// WithOutput sets where explain output and status tables go. Defaults to
// stdout.
func WithOutput(w io.Writer) Option {
	return func(s *SystemControl) {
		if w != nil {
			s.output = w
		}
	}
}

// New wires a SystemControl around an already open pool.
func New(cfg *config.Config, registry *egg.Registry, pool *database.PoolManager, opts ...Option) (*SystemControl, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if pool == nil {
		return nil, errors.New("database pool is required")
	}

	s := &SystemControl{
		cfg:      cfg,
		registry: registry,
		pool:     pool,
		logger:   zap.NewNop(),
		output:   os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "system"))
	if s.tracer == nil {
		s.tracer = otel.Tracer(telemetry.TracerName)
	}

	control, err := orm.NewControl(pool.DB(),
		orm.WithTableName(cfg.Migration.BookkeepingTable),
		orm.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.orm = control
	return s, nil
}

// Connect builds everything from configuration: the egg manifest, the
// database pool, telemetry, metrics and the optional run lock.
func Connect(cfg *config.Config, catalog *egg.Catalog, opts ...Option) (*SystemControl, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	probe := &SystemControl{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(probe)
	}
	logger := probe.logger

	registry, err := egg.LoadManifest(cfg.Migration.ManifestPath, catalog)
	if err != nil {
		return nil, err
	}

	pool, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = &telemetry.Providers{}
	}

	wired := []Option{WithTracer(providers.Tracer())}
	if cfg.Metrics.Enabled {
		wired = append(wired, WithMetrics(metrics.NewCollector(cfg.Metrics.Namespace, logger)))
	}
	if cfg.Lock.Enabled {
		locker, err := lock.New(cfg.Lock, logger)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		wired = append(wired, WithLocker(locker))
	}

	// explicit options win over configuration
	s, err := New(cfg, registry, pool, append(wired, opts...)...)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	s.providers = providers
	return s, nil
}

// Registry returns the eggs this system migrates.
func (s *SystemControl) Registry() *egg.Registry { return s.registry }

// ORM returns the bookkeeping control.
func (s *SystemControl) ORM() *orm.Control { return s.orm }

// Metrics returns the collector, or nil when metrics are disabled.
func (s *SystemControl) Metrics() *metrics.Collector { return s.metrics }

// Close releases the lock client, flushes telemetry and closes the pool.
func (s *SystemControl) Close() error {
	var errs []error
	if s.locker != nil {
		errs = append(errs, s.locker.Close())
	}
	if s.providers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.providers.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, s.pool.Close())
	return errors.Join(errs...)
}

// =============================================================================
// 🚀 migrate
// =============================================================================

// Report summarises one MigrateDB run.
type Report struct {
	RunID     string
	Clusters  int
	Schedules int
	Warnings  []string
	Duration  time.Duration
	Explained bool
}

// MigrateDB plans the migration of the root egg and everything it depends on
// and executes the plan inside one managed transaction, creating the
// bookkeeping table first when it is missing. With explain set it writes the
// plan and rolls the transaction back.
func (s *SystemControl) MigrateDB(ctx context.Context, explain bool) (*Report, error) {
	runID, ok := ctxkeys.RunID(ctx)
	if !ok {
		ctx, runID = ctxkeys.NewRun(ctx)
	}
	logger := s.logger.With(zap.String("run_id", runID))

	if s.cfg.Migration.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Migration.Timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "eggmigrate.MigrateDB", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Bool("explain", explain),
	))
	defer span.End()
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = ctxkeys.WithTraceID(ctx, sc.TraceID().String())
		logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
	}

	var lease *lock.Lease
	if s.locker != nil && !explain {
		var err error
		lease, err = s.locker.Acquire(ctx, runID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		defer func() {
			if err := lease.Release(context.Background()); err != nil {
				logger.Warn("failed to release run lock", zap.Error(err))
			}
		}()
		// 锁丢失时中止整个运行
		ctx = lease.Context()
	}

	report := &Report{RunID: runID, Explained: explain}
	start := time.Now()
	err := s.pool.WithRetry(ctx, migrateAttempts, func(ctx context.Context) error {
		return s.orm.ManagedTransaction(ctx, func(ctx context.Context) error {
			if err := s.orm.CreateBookkeepingTables(ctx); err != nil {
				return err
			}
			if err := s.runPlan(ctx, logger, explain, report); err != nil {
				return err
			}
			if explain {
				return errDryRun
			}
			return nil
		})
	})
	if errors.Is(err, errDryRun) {
		err = nil
	}
	if lease != nil && err != nil {
		if lost := lease.Lost(); lost != nil {
			err = fmt.Errorf("%w: %w", lost, err)
		}
	}
	report.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if !explain {
		s.recordRun(report.Duration, err)
	}
	if err != nil {
		logger.Error("migration run failed", zap.Error(err), zap.Duration("duration", report.Duration))
		return report, err
	}

	logger.Info("migration run finished",
		zap.Bool("explain", explain),
		zap.Int("clusters", report.Clusters),
		zap.Int("schedules", report.Schedules),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *SystemControl) runPlan(ctx context.Context, logger *zap.Logger, explain bool, report *Report) error {
	opts := []migration.Option{
		migration.WithLogger(logger),
		migration.WithTracer(s.tracer),
	}
	if s.metrics != nil {
		opts = append(opts, migration.WithObserver(s.metrics))
	}

	plan := migration.NewPlan(s.registry.RootVersion(), s.orm, opts...)
	if err := plan.DoPlanning(ctx); err != nil {
		return err
	}
	report.Clusters = len(plan.Clusters())
	report.Schedules = len(plan.Schedules())
	report.Warnings = plan.Warnings()

	if explain {
		return s.explain(plan)
	}
	return plan.Execute(ctx)
}

func (s *SystemControl) explain(plan *migration.Plan) error {
	path := s.cfg.Migration.ExplainOutput
	if path == "" {
		return plan.Explain(s.output)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create explain output: %w", err)
	}
	if err := plan.Explain(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *SystemControl) recordRun(duration time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordRun(duration, err)
	stats := s.pool.Stats()
	s.metrics.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
	if path := s.cfg.Metrics.TextfilePath; path != "" {
		if werr := s.metrics.WriteTextfile(path); werr != nil {
			s.logger.Warn("failed to write metrics", zap.Error(werr))
		}
	}
}

// =============================================================================
// 🗄️ initdb
// =============================================================================

// CreateDBTables creates the bookkeeping table and records every egg at its
// installed version. Domain tables are expected to be created by the caller
// for a fresh install, so nothing is migrated.
func (s *SystemControl) CreateDBTables(ctx context.Context) error {
	return s.orm.ManagedTransaction(ctx, func(ctx context.Context) error {
		if err := s.orm.CreateBookkeepingTables(ctx); err != nil {
			return err
		}
		for _, e := range s.registry.Eggs() {
			installed := e.InstalledVersion()
			if installed == nil {
				continue
			}
			if err := s.orm.InitialiseSchemaVersionFor(ctx, e.Name(), installed.Number()); err != nil {
				return err
			}
			s.logger.Info("schema version initialised",
				zap.String("egg", e.Name()),
				zap.String("version", installed.Number()),
			)
		}
		return nil
	})
}

// =============================================================================
// 📋 status / diffdb
// =============================================================================

// EggStatus compares an egg's installed version with the version recorded in
// the database.
type EggStatus struct {
	Egg       string
	Installed string
	Persisted string
	Recorded  bool
	Pending   bool
	// Known is false for records whose egg is not in the registry.
	Known bool
}

// State describes the status in a word or two.
func (st EggStatus) State() string {
	switch {
	case !st.Known:
		return "unknown egg"
	case !st.Recorded:
		return "not recorded"
	case st.Pending:
		return "pending"
	case st.Persisted != st.Installed:
		return "ahead"
	default:
		return "up to date"
	}
}

// Status lists every registered egg, then every recorded egg that is no
// longer registered.
func (s *SystemControl) Status(ctx context.Context) ([]EggStatus, error) {
	if !s.orm.HasBookkeepingTables(ctx) {
		return nil, types.Errorf(types.ErrSchemaVersion,
			"bookkeeping table %s does not exist, run initdb first", s.orm.TableName())
	}

	var statuses []EggStatus
	known := make(map[string]bool)
	for _, e := range s.registry.Eggs() {
		ctx := ctxkeys.WithEgg(ctx, e.Name())
		known[e.Name()] = true
		st := EggStatus{Egg: e.Name(), Known: true}

		persisted, recorded, err := s.orm.SchemaVersionFor(ctx, e.Name())
		if err != nil {
			return nil, err
		}
		st.Persisted, st.Recorded = persisted, recorded

		if installed := e.InstalledVersion(); installed != nil {
			st.Installed = installed.Number()
			upToDate, err := installed.IsUpToDate(ctx, s.orm)
			if err != nil {
				return nil, err
			}
			st.Pending = !upToDate
		}
		statuses = append(statuses, st)
	}

	records, err := s.orm.SchemaVersions(ctx)
	if err != nil {
		return nil, err
	}
	var orphans []EggStatus
	for _, r := range records {
		if known[r.EggName] {
			continue
		}
		orphans = append(orphans, EggStatus{Egg: r.EggName, Persisted: r.Version, Recorded: true})
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Egg < orphans[j].Egg })
	return append(statuses, orphans...), nil
}

// DiffDB returns the eggs whose recorded version differs from the installed
// one.
func (s *SystemControl) DiffDB(ctx context.Context) ([]EggStatus, error) {
	statuses, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	var diff []EggStatus
	for _, st := range statuses {
		if !st.Recorded || st.Persisted != st.Installed {
			diff = append(diff, st)
		}
	}
	return diff, nil
}

// WriteStatus prints statuses as a table.
func WriteStatus(w io.Writer, statuses []EggStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EGG\tINSTALLED\tDATABASE\tSTATE")
	for _, st := range statuses {
		persisted := st.Persisted
		if !st.Recorded {
			persisted = "-"
		}
		installed := st.Installed
		if installed == "" {
			installed = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Egg, installed, persisted, st.State())
	}
	return tw.Flush()
}
