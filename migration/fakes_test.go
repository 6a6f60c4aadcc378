package migration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// =============================================================================
// 🧪 测试用版本与 ORM
// =============================================================================

type fakeVersion struct {
	egg        string
	number     int
	previous   *fakeVersion
	deps       []Dependency
	migrations []Factory
}

func (v *fakeVersion) String() string  { return fmt.Sprintf("%s-%d", v.egg, v.number) }
func (v *fakeVersion) EggName() string { return v.egg }
func (v *fakeVersion) Number() string  { return strconv.Itoa(v.number) }

func (v *fakeVersion) PreviousVersion() Version {
	if v.previous == nil {
		return nil
	}
	return v.previous
}

func (v *fakeVersion) Dependencies() []Dependency { return v.deps }
func (v *fakeVersion) Migrations() []Factory      { return v.migrations }

func (v *fakeVersion) IsUpToDate(ctx context.Context, orm ORMControl) (bool, error) {
	current, ok, err := orm.SchemaVersionFor(ctx, v.egg)
	if err != nil || !ok {
		return false, err
	}
	n, err := strconv.Atoi(current)
	if err != nil {
		return false, err
	}
	return n >= v.number, nil
}

func (v *fakeVersion) IsPreviousVersionOf(other Version) bool {
	o, ok := other.(*fakeVersion)
	return ok && o.previous == v
}

func (v *fakeVersion) Compare(other Version) int {
	return cmp.Compare(v.number, other.(*fakeVersion).number)
}

func (v *fakeVersion) dependOn(target *fakeVersion) *fakeVersion {
	v.deps = append(v.deps, &fakeDependency{target: target, component: true, resolvable: true})
	return v
}

func (v *fakeVersion) withMigrations(factories ...Factory) *fakeVersion {
	v.migrations = append(v.migrations, factories...)
	return v
}

// newEgg returns versions 1..count of an egg, linked through their history.
func newEgg(name string, count int) []*fakeVersion {
	versions := make([]*fakeVersion, count)
	for i := range versions {
		versions[i] = &fakeVersion{egg: name, number: i + 1}
		if i > 0 {
			versions[i].previous = versions[i-1]
		}
	}
	return versions
}

type fakeDependency struct {
	target     *fakeVersion
	component  bool
	resolvable bool
}

func (d *fakeDependency) IsComponent() bool { return d.component }
func (d *fakeDependency) Resolvable() bool  { return d.resolvable }

func (d *fakeDependency) BestVersion() Version {
	if d.target == nil {
		return nil
	}
	return d.target
}

type fakeORM struct {
	mu       sync.Mutex
	versions map[string]string
	pruned   []Version
	log      *[]string
	failRead error
}

func newFakeORM(installed map[string]int) *fakeORM {
	o := &fakeORM{versions: make(map[string]string)}
	for egg, n := range installed {
		o.versions[egg] = strconv.Itoa(n)
	}
	return o
}

func (o *fakeORM) SchemaVersionFor(_ context.Context, egg string) (string, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failRead != nil {
		return "", false, o.failRead
	}
	v, ok := o.versions[egg]
	return v, ok, nil
}

func (o *fakeORM) SetSchemaVersionFor(_ context.Context, v Version) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.versions[v.EggName()] = v.Number()
	if o.log != nil {
		*o.log = append(*o.log, "cleanup:"+v.String())
	}
	return nil
}

func (o *fakeORM) PruneSchemasToOnly(_ context.Context, versions []Version) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruned = versions
	return nil
}

// =============================================================================
// 🧪 测试用迁移
// =============================================================================

type step struct {
	phase Phase
	label string
	err   error
	panic bool
}

// recordingMigration schedules one operation per step and appends the label
// of every operation it runs to log.
type recordingMigration struct {
	log   *[]string
	steps []step
}

func (m *recordingMigration) ScheduleUpgrades(s *Scheduler) {
	for _, st := range m.steps {
		st := st
		s.Schedule(st.phase, func(context.Context) error {
			*m.log = append(*m.log, st.label)
			if st.panic {
				panic(st.label)
			}
			return st.err
		})
	}
}

func recording(log *[]string, steps ...step) Factory {
	return func() Migration { return &recordingMigration{log: log, steps: steps} }
}

type forgetfulMigration struct {
	Base
}

// ScheduleUpgrade is misspelled on purpose.
func (forgetfulMigration) ScheduleUpgrade(s *Scheduler) {
	s.Schedule(PhaseAlter, func(context.Context) error { return errors.New("never scheduled") })
}

type recordingObserver struct {
	plans      int
	operations map[Phase]int
	failures   int
}

func (o *recordingObserver) PlanCreated(int, int, time.Duration) { o.plans++ }

func (o *recordingObserver) OperationExecuted(phase Phase, _ time.Duration, err error) {
	if o.operations == nil {
		o.operations = make(map[Phase]int)
	}
	o.operations[phase]++
	if err != nil {
		o.failures++
	}
}
