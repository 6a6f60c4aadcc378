package migration

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/eggmigrate/types"
)

func TestSchedule_PhasesRunInOrder(t *testing.T) {
	var log []string
	a := newEgg("a", 1)
	a[0].withMigrations(
		recording(&log,
			step{phase: PhaseCleanup, label: "cleanup"},
			step{phase: PhaseCreateFK, label: "create_fk"},
			step{phase: PhaseData, label: "data"},
			step{phase: PhaseIndexes, label: "indexes"},
			step{phase: PhaseCreatePK, label: "create_pk"},
			step{phase: PhaseAlter, label: "alter"},
			step{phase: PhasePreAlter, label: "pre_alter"},
			step{phase: PhaseDropPK, label: "drop_pk"},
			step{phase: PhaseDropFK, label: "drop_fk"},
		),
		recording(&log,
			step{phase: PhaseAlter, label: "second alter"},
			step{phase: PhaseDropFK, label: "second drop_fk"},
		),
	)

	plan := planFor(t, a[0], newFakeORM(nil))
	require.NoError(t, plan.Execute(context.Background()))

	assert.Equal(t, []string{
		"drop_fk", "second drop_fk",
		"drop_pk", "pre_alter",
		"alter", "second alter",
		"create_pk", "indexes", "data", "create_fk", "cleanup",
	}, log)
}

func TestSchedule_AddNestedRejectsDuplicateCluster(t *testing.T) {
	plan := NewPlan(nil, newFakeORM(nil))
	outer := newSchedule(plan, &Cluster{})
	shared := &Cluster{}

	require.NoError(t, outer.AddNested(newSchedule(plan, shared)))
	err := outer.AddNested(newSchedule(plan, shared))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrProgrammerError))
	assert.Contains(t, err.Error(), "already has a nested schedule for this cluster")
	assert.Len(t, outer.Nested(), 1)
}

func TestPhase_Valid(t *testing.T) {
	for _, phase := range PhasesInOrder {
		assert.True(t, phase.Valid(), phase)
	}
	assert.True(t, PhaseDropFK.Valid())
	assert.False(t, Phase("wrong_name").Valid())
	assert.NotContains(t, PhasesInOrder, PhaseDropFK)
}

type callSiteMigration struct {
	file string
	line int
}

func (m *callSiteMigration) ScheduleUpgrades(s *Scheduler) {
	_, m.file, m.line, _ = runtime.Caller(0)
	m.line++
	s.Schedule(PhaseAlter, func(context.Context) error { return errors.New("boom") })
}

func TestExecutionError_PointsAtSchedulingCallSite(t *testing.T) {
	m := &callSiteMigration{}
	a := newEgg("a", 1)
	a[0].withMigrations(func() Migration { return m })

	plan := planFor(t, a[0], newFakeORM(nil))
	err := plan.Execute(context.Background())

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	require.Len(t, execErr.Context, 1)

	site, ok := execErr.Context.CallSite()
	require.True(t, ok)
	assert.Equal(t, m.file, site.File)
	assert.Equal(t, m.line, site.Line)
	assert.Contains(t, site.Function, "(*callSiteMigration).ScheduleUpgrades")
	assert.Contains(t, err.Error(), execErr.Context.String())
	assert.Contains(t, err.Error(), "boom")
}

func TestSchedulingContext_Empty(t *testing.T) {
	var c SchedulingContext
	_, ok := c.CallSite()
	assert.False(t, ok)
	assert.Equal(t, "", c.String())
}
