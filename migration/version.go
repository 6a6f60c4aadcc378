package migration

import (
	"context"
	"fmt"
)

// Version is one published revision of an egg. Implementations must be
// comparable (pointers work well) because versions are used as graph vertices.
type Version interface {
	fmt.Stringer

	// EggName names the egg this version belongs to.
	EggName() string
	// Number is the version number as recorded in the schema bookkeeping.
	Number() string
	// PreviousVersion returns the preceding version of the same egg, or nil.
	PreviousVersion() Version
	// Dependencies returns the declared dependencies of this version.
	Dependencies() []Dependency
	// IsUpToDate reports whether the persisted schema already reflects this version.
	IsUpToDate(ctx context.Context, orm ORMControl) (bool, error)
	// Migrations returns the migrations declared for this version, in order.
	Migrations() []Factory
	// IsPreviousVersionOf reports whether v immediately precedes other.
	IsPreviousVersionOf(other Version) bool
	// Compare orders versions; the result follows the cmp.Compare convention.
	Compare(other Version) int
}

// Dependency is a declared requirement of one version on something else.
type Dependency interface {
	// IsComponent reports whether the dependency is an egg with a schema.
	IsComponent() bool
	// Resolvable reports whether an installed distribution satisfies it.
	Resolvable() bool
	// BestVersion returns the version that satisfies the dependency, or nil.
	BestVersion() Version
}

// ORMControl is the persistence collaborator of the planner.
type ORMControl interface {
	// SchemaVersionFor returns the persisted version number of an egg and
	// whether a record exists.
	SchemaVersionFor(ctx context.Context, eggName string) (string, bool, error)
	// SetSchemaVersionFor records v as the current schema version of its egg.
	SetSchemaVersionFor(ctx context.Context, v Version) error
	// PruneSchemasToOnly drops bookkeeping for eggs not needed by versions.
	PruneSchemasToOnly(ctx context.Context, versions []Version) error
}

// Operation is a deferred call registered with a schedule.
type Operation func(ctx context.Context) error

// Migration is one logical schema change. ScheduleUpgrades registers the
// operations of the migration; it must not perform them.
type Migration interface {
	ScheduleUpgrades(s *Scheduler)
}

// Factory creates a fresh Migration for each planning run.
type Factory func() Migration

// Base may be embedded by migrations. Its ScheduleUpgrades warns that the
// embedding type did not provide its own and contributes nothing.
type Base struct{}

// ScheduleUpgrades implements Migration.
func (Base) ScheduleUpgrades(s *Scheduler) {
	s.warnNotOverridden()
}
