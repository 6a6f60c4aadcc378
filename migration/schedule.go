package migration

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Entry describes one scheduled operation.
type Entry struct {
	Phase     Phase
	Migration string
	Version   Version
	Context   SchedulingContext

	op Operation
}

// Schedule holds the deferred operations of one cluster, partitioned into
// phases, together with the schedules of the clusters nested inside it.
type Schedule struct {
	plan    *Plan
	cluster *Cluster

	beforeNesting    []Entry
	phases           map[Phase][]Entry
	nested           []*Schedule
	afterNested      map[*Cluster][]Entry
	afterNestedOrder []*Cluster
}

func newSchedule(plan *Plan, cluster *Cluster) *Schedule {
	return &Schedule{
		plan:        plan,
		cluster:     cluster,
		phases:      make(map[Phase][]Entry, len(PhasesInOrder)),
		afterNested: make(map[*Cluster][]Entry),
	}
}

// Cluster returns the cluster this schedule migrates.
func (s *Schedule) Cluster() *Cluster {
	return s.cluster
}

// Nested returns the schedules that run before this schedule's phases.
func (s *Schedule) Nested() []*Schedule {
	return slices.Clone(s.nested)
}

// Entries returns the operations of a phase in registration order. For
// PhaseDropFK it returns the operations that run before nesting.
func (s *Schedule) Entries(phase Phase) []Entry {
	if phase == PhaseDropFK {
		return slices.Clone(s.beforeNesting)
	}
	return slices.Clone(s.phases[phase])
}

// AfterNested returns the operations that run right after the nested schedule
// of c has finished.
func (s *Schedule) AfterNested(c *Cluster) []Entry {
	return slices.Clone(s.afterNested[c])
}

// AddNested attaches a schedule that must run in full before this one.
func (s *Schedule) AddNested(nested *Schedule) error {
	for _, existing := range s.nested {
		if existing.cluster == nested.cluster {
			return programmerError("%s already has a nested schedule for this cluster: %s", s.cluster, nested.cluster)
		}
	}
	s.nested = append(s.nested, nested)
	return nil
}

// add files entry under its phase. drop_fk entries go before nesting unless
// dropFKAfter names the nested cluster they have to wait for.
func (s *Schedule) add(entry Entry, dropFKAfter *Cluster) error {
	switch {
	case entry.Phase == PhaseDropFK && dropFKAfter != nil:
		if _, ok := s.afterNested[dropFKAfter]; !ok {
			s.afterNestedOrder = append(s.afterNestedOrder, dropFKAfter)
		}
		s.afterNested[dropFKAfter] = append(s.afterNested[dropFKAfter], entry)
	case entry.Phase == PhaseDropFK:
		s.beforeNesting = append(s.beforeNesting, entry)
	case entry.Phase.Valid():
		s.phases[entry.Phase] = append(s.phases[entry.Phase], entry)
	default:
		return programmerError("A phase with name<%s> does not exist.", entry.Phase)
	}
	return nil
}

// scheduleMigrations asks every migration of every version in the cluster,
// newest version first, to register its operations.
func (s *Schedule) scheduleMigrations() error {
	for _, v := range s.cluster.VersionsBiggestFirst() {
		var dropFKAfter *Cluster
		if previous := s.plan.clusterOfPreviousVersion(v); previous != nil && !s.plan.scheduled[previous] {
			dropFKAfter = previous
		}

		for _, factory := range v.Migrations() {
			if err := s.scheduleUpgrades(factory(), v, dropFKAfter); err != nil {
				return err
			}
		}
		if err := s.scheduleUpgrades(&UpdateSchemaVersion{Version: v}, v, dropFKAfter); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schedule) scheduleUpgrades(m Migration, v Version, dropFKAfter *Cluster) error {
	scheduler := &Scheduler{
		schedule:    s,
		migration:   m,
		name:        migrationName(m),
		version:     v,
		dropFKAfter: dropFKAfter,
	}
	m.ScheduleUpgrades(scheduler)
	return scheduler.err
}

// =============================================================================
// Execution
// =============================================================================

// ExecuteAll runs the schedule: operations before nesting, then every nested
// schedule followed by its after-nested operations, then each phase in order.
func (s *Schedule) ExecuteAll(ctx context.Context) error {
	ctx, span := s.plan.tracer.Start(ctx, "migration.Schedule",
		trace.WithAttributes(attribute.String("cluster", s.cluster.String())))
	defer span.End()

	if err := s.execute(ctx, s.beforeNesting); err != nil {
		span.RecordError(err)
		return err
	}

	done := make(map[*Cluster]bool, len(s.afterNestedOrder))
	for _, nested := range s.nested {
		if err := nested.ExecuteAll(ctx); err != nil {
			return err
		}
		for _, c := range s.afterNestedOrder {
			if done[c] || !nested.covers(c) {
				continue
			}
			done[c] = true
			if err := s.execute(ctx, s.afterNested[c]); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}
	for _, c := range s.afterNestedOrder {
		if done[c] {
			continue
		}
		if err := s.execute(ctx, s.afterNested[c]); err != nil {
			span.RecordError(err)
			return err
		}
	}

	for _, phase := range PhasesInOrder {
		if err := s.execute(ctx, s.phases[phase]); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// covers reports whether c is migrated by s or anything nested inside it.
func (s *Schedule) covers(c *Cluster) bool {
	if s.cluster == c {
		return true
	}
	for _, nested := range s.nested {
		if nested.covers(c) {
			return true
		}
	}
	return false
}

// execute runs entries in order and stops at the first failure.
func (s *Schedule) execute(ctx context.Context, entries []Entry) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := runOperation(ctx, entry.op)
		s.plan.observer.OperationExecuted(entry.Phase, time.Since(start), err)
		if err != nil {
			s.plan.logger.Error("migration operation failed",
				zap.String("phase", string(entry.Phase)),
				zap.String("migration", entry.Migration),
				zap.Stringer("version", entry.Version),
				zap.Error(err),
			)
			return &ExecutionError{
				Context:   entry.Context,
				Phase:     entry.Phase,
				Migration: entry.Migration,
				Version:   entry.Version.String(),
				Cause:     err,
			}
		}
	}
	return nil
}

func runOperation(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx)
}
