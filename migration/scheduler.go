package migration

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// Scheduler is handed to Migration.ScheduleUpgrades. It binds the migration
// to the schedule of the cluster being planned.
type Scheduler struct {
	schedule    *Schedule
	migration   Migration
	name        string
	version     Version
	dropFKAfter *Cluster
	err         error
}

// Schedule registers op to run in phase. The call site is recorded so that a
// failure of op can be traced back to it. An unknown phase is a programmer
// error that makes planning fail.
func (s *Scheduler) Schedule(phase Phase, op Operation) {
	if s.err != nil {
		return
	}
	entry := Entry{
		Phase:     phase,
		Migration: s.name,
		Version:   s.version,
		Context:   captureSchedulingContext(1),
		op:        op,
	}
	if err := s.schedule.add(entry, s.dropFKAfter); err != nil {
		s.err = err
	}
}

// Version returns the version whose migrations are being scheduled.
func (s *Scheduler) Version() Version {
	return s.version
}

// ORM returns the ORM control of the plan.
func (s *Scheduler) ORM() ORMControl {
	return s.schedule.plan.orm
}

// Logger returns the plan logger scoped to the current migration.
func (s *Scheduler) Logger() *zap.Logger {
	return s.schedule.plan.logger.With(zap.String("migration", s.name), zap.Stringer("version", s.version))
}

func (s *Scheduler) warnNotOverridden() {
	message := fmt.Sprintf("Ignoring %s.ScheduleUpgrades(): it does not override ScheduleUpgrades() (method name typo perhaps?)", s.name)
	s.schedule.plan.warn(message)
}

func migrationName(m Migration) string {
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

// UpdateSchemaVersion records the new schema version of an egg in the
// cleanup phase. The planner schedules one after the migrations of every
// version.
type UpdateSchemaVersion struct {
	Version Version
}

// ScheduleUpgrades implements Migration.
func (u *UpdateSchemaVersion) ScheduleUpgrades(s *Scheduler) {
	orm := s.ORM()
	s.Schedule(PhaseCleanup, func(ctx context.Context) error {
		return orm.SetSchemaVersionFor(ctx, u.Version)
	})
}
