package migration

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/eggmigrate/graph"
)

// =============================================================================
// Options
// =============================================================================

// Observer receives planning and execution events, typically to feed metrics.
type Observer interface {
	PlanCreated(clusters, schedules int, duration time.Duration)
	OperationExecuted(phase Phase, duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) PlanCreated(int, int, time.Duration)           {}
func (nopObserver) OperationExecuted(Phase, time.Duration, error) {}

// Option configures a Plan.
type Option func(*Plan)

// WithLogger sets the logger of the plan.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Plan) {
		if logger != nil {
			p.logger = logger.With(zap.String("component", "migration_plan"))
		}
	}
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Plan) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithObserver registers an observer of planning and execution.
func WithObserver(observer Observer) Option {
	return func(p *Plan) {
		if observer != nil {
			p.observer = observer
		}
	}
}

// =============================================================================
// Plan
// =============================================================================

// Plan works out which versions need migrating, groups them into clusters and
// builds the nested schedules that migrate them in a safe order.
type Plan struct {
	root     Version
	orm      ORMControl
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer

	versionGraph   *VersionGraph
	clusterGraph   *graph.Graph[*Cluster]
	clusters       []*Cluster
	clusterOf      map[Version]*Cluster
	scheduled      map[*Cluster]bool
	schedules      []*Schedule
	warnings       []string
	planningFailed bool
	executed       bool
}

// NewPlan creates a plan that brings root and everything it depends on up to
// date.
func NewPlan(root Version, orm ORMControl, opts ...Option) *Plan {
	p := &Plan{
		root:     root,
		orm:      orm,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/BaSui01/eggmigrate/migration"),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// VersionGraph returns the versions found by the last DoPlanning.
func (p *Plan) VersionGraph() *VersionGraph {
	return p.versionGraph
}

// Clusters returns the clusters smallest first: every cluster comes after the
// clusters it depends on.
func (p *Plan) Clusters() []*Cluster {
	return append([]*Cluster(nil), p.clusters...)
}

// Schedules returns the top-level schedules in execution order.
func (p *Plan) Schedules() []*Schedule {
	return append([]*Schedule(nil), p.schedules...)
}

// Warnings returns the non-fatal problems found while planning.
func (p *Plan) Warnings() []string {
	return append([]string(nil), p.warnings...)
}

func (p *Plan) warn(message string) {
	p.warnings = append(p.warnings, message)
	p.logger.Warn(message)
}

// DoPlanning discovers the pending versions and builds the schedules. It
// performs no changes; call Execute or Explain afterwards.
func (p *Plan) DoPlanning(ctx context.Context) error {
	start := time.Now()
	p.reset()

	if err := DiscoverVersionGraph(ctx, p.root, p.versionGraph, p.orm); err != nil {
		p.planningFailed = true
		return fmt.Errorf("discover versions: %w", err)
	}
	if err := p.checkVersionOrder(); err != nil {
		p.planningFailed = true
		return err
	}
	if err := p.buildClusters(); err != nil {
		p.planningFailed = true
		return err
	}

	schedules, err := p.createSchedulesForClusters(p.clusters)
	if err != nil {
		p.planningFailed = true
		return err
	}
	p.schedules = schedules

	p.observer.PlanCreated(len(p.clusters), len(p.schedules), time.Since(start))
	p.logger.Info("migration plan created",
		zap.Int("versions", p.versionGraph.Len()),
		zap.Int("clusters", len(p.clusters)),
		zap.Int("schedules", len(p.schedules)),
		zap.Int("warnings", len(p.warnings)),
	)
	return nil
}

func (p *Plan) reset() {
	p.versionGraph = NewVersionGraph()
	p.clusterGraph = graph.New[*Cluster]()
	p.clusters = nil
	p.clusterOf = make(map[Version]*Cluster)
	p.scheduled = make(map[*Cluster]bool)
	p.schedules = nil
	p.warnings = nil
	p.planningFailed = false
	p.executed = false
}

// checkVersionOrder fails when the versions of one egg cannot be ordered
// against each other. Cycles across eggs are resolved by clustering instead.
func (p *Plan) checkVersionOrder() error {
	g := graph.FromVertices(p.versionGraph.Versions(), p.clusteringDependencies)
	sameEgg := g.Subgraph(func(from, to Version) bool {
		return from.EggName() == to.EggName()
	})
	if _, err := sameEgg.TopologicalSort(); err != nil {
		return fmt.Errorf("order versions: %w", err)
	}
	return nil
}

// clusteringDependencies adds the previous version to the recorded
// dependencies so that the history of an egg is migrated in order.
func (p *Plan) clusteringDependencies(v Version) []Version {
	deps := p.versionGraph.DependenciesOf(v)
	if previous := v.PreviousVersion(); previous != nil && p.versionGraph.Has(previous) {
		deps = append(append([]Version(nil), deps...), previous)
	}
	return deps
}

func (p *Plan) buildClusters() error {
	versions := graph.FromVertices(p.versionGraph.Versions(), p.clusteringDependencies)

	components := versions.FindComponents()
	unordered := make([]*Cluster, 0, len(components))
	for _, component := range components {
		c := &Cluster{root: component.Root, versions: component.Contents}
		for _, v := range component.Contents {
			p.clusterOf[v] = c
		}
		unordered = append(unordered, c)
	}

	for _, c := range unordered {
		for _, v := range c.versions {
			for _, d := range versions.Dependencies(v) {
				dc := p.clusterOf[d]
				if dc != c && !slices.Contains(c.dependencies, dc) {
					c.dependencies = append(c.dependencies, dc)
				}
			}
		}
	}

	p.clusterGraph = graph.FromVertices(unordered, func(c *Cluster) []*Cluster { return c.dependencies })
	ordered, err := p.clusterGraph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("order clusters: %w", err)
	}
	p.clusters = ordered
	return nil
}

func (p *Plan) clusterOfPreviousVersion(v Version) *Cluster {
	for _, c := range p.clusters {
		for _, candidate := range c.versions {
			if candidate.IsPreviousVersionOf(v) {
				return c
			}
		}
	}
	return nil
}

// createSchedulesForClusters schedules every cluster in clusters that has not
// been scheduled yet. A cluster is scheduled at its highest parent among
// clusters, so that a shared dependency is nested once at the outermost point
// that needs it.
func (p *Plan) createSchedulesForClusters(clusters []*Cluster) ([]*Schedule, error) {
	var schedules []*Schedule
	for _, c := range clusters {
		if p.scheduled[c] {
			continue
		}
		chosen := c
		if parent := p.findHighestParentOf([]*Cluster{c}, clusters); parent != nil && !p.scheduled[parent] {
			chosen = parent
		}
		s, err := p.createMigrationScheduleFor(chosen)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// findHighestParentOf returns the last of candidates that depends on any of
// targets, or nil when none does.
func (p *Plan) findHighestParentOf(targets, candidates []*Cluster) *Cluster {
	var highest *Cluster
	for _, candidate := range candidates {
		for _, dep := range candidate.Dependencies(candidates) {
			if slices.Contains(targets, dep) {
				highest = candidate
				break
			}
		}
	}
	return highest
}

func (p *Plan) createMigrationScheduleFor(c *Cluster) (*Schedule, error) {
	p.scheduled[c] = true

	s := newSchedule(p, c)
	if err := s.scheduleMigrations(); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", c, err)
	}

	var preceding []*Cluster
	for _, other := range p.clusters {
		if other == c {
			break
		}
		if !p.scheduled[other] {
			preceding = append(preceding, other)
		}
	}

	nested, err := p.createSchedulesForClusters(preceding)
	if err != nil {
		return nil, err
	}
	for _, n := range nested {
		if err := s.AddNested(n); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Execute runs every schedule and then prunes the schema bookkeeping down to
// what the final schedule still needs. The first failing operation aborts the
// run with an *ExecutionError. A plan executes at most once; plan again
// before executing again.
func (p *Plan) Execute(ctx context.Context) error {
	if p.planningFailed || p.versionGraph == nil {
		return programmerError("Execute called without successful DoPlanning")
	}
	if p.executed {
		return programmerError("Execute called twice")
	}
	p.executed = true

	ctx, span := p.tracer.Start(ctx, "migration.Execute",
		trace.WithAttributes(attribute.Int("schedules", len(p.schedules))))
	defer span.End()

	for _, s := range p.schedules {
		if err := s.ExecuteAll(ctx); err != nil {
			span.RecordError(err)
			return err
		}
	}

	var keep []Version
	if n := len(p.schedules); n > 0 {
		keep = p.schedules[n-1].cluster.Versions()
	} else if p.root != nil {
		keep = []Version{p.root}
	} else {
		return nil
	}
	if err := p.orm.PruneSchemasToOnly(ctx, keep); err != nil {
		span.RecordError(err)
		return fmt.Errorf("prune schema versions: %w", err)
	}

	p.logger.Info("migration plan executed", zap.Int("schedules", len(p.schedules)))
	return nil
}
