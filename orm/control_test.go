package orm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/eggmigrate/egg"
	"github.com/BaSui01/eggmigrate/internal/ctxkeys"
	"github.com/BaSui01/eggmigrate/migration"
	"github.com/BaSui01/eggmigrate/testutil"
	"github.com/BaSui01/eggmigrate/types"
)

func setupControl(t *testing.T, opts ...Option) *Control {
	t.Helper()
	c, err := NewControl(testutil.OpenSQLite(t, ":memory:"), append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, c.CreateBookkeepingTables(context.Background()))
	return c
}

func TestNewControl_NilDB(t *testing.T) {
	_, err := NewControl(nil)
	assert.Error(t, err)
}

func TestControl_CreateBookkeepingTables(t *testing.T) {
	ctx := context.Background()
	c := setupControl(t, WithTableName("custom_versions"))

	assert.Equal(t, "custom_versions", c.TableName())
	assert.True(t, c.HasBookkeepingTables(ctx))
	// 重复创建是幂等的
	require.NoError(t, c.CreateBookkeepingTables(ctx))

	require.NoError(t, c.DropBookkeepingTables(ctx))
	assert.False(t, c.HasBookkeepingTables(ctx))
}

func TestControl_InitialiseAndRemove(t *testing.T) {
	ctx := context.Background()
	c := setupControl(t)

	_, ok, err := c.SchemaVersionFor(ctx, "contacts")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.InitialiseSchemaVersionFor(ctx, "contacts", "1.0"))
	version, ok, err := c.SchemaVersionFor(ctx, "contacts")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.0", version)

	err = c.InitialiseSchemaVersionFor(ctx, "contacts", "2.0")
	assert.True(t, types.IsErrorCode(err, types.ErrSchemaVersion))

	require.NoError(t, c.RemoveSchemaVersionFor(ctx, "contacts"))
	_, ok, err = c.SchemaVersionFor(ctx, "contacts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func buildRegistry(t *testing.T) *egg.Registry {
	t.Helper()
	r := egg.NewRegistry()
	add := func(name string, numbers ...string) *egg.Egg {
		e, err := r.Add(name)
		require.NoError(t, err)
		for _, n := range numbers {
			_, err := e.AddVersion(n)
			require.NoError(t, err)
		}
		return e
	}
	add("contacts", "1.0", "2.0")
	app := add("app", "1.0")
	add("legacy", "1.0")
	_, err := app.InstalledVersion().DependsOn("contacts", "2.0", "")
	require.NoError(t, err)
	require.NoError(t, r.SetRoot("app"))
	return r
}

func TestControl_SetSchemaVersionForUpserts(t *testing.T) {
	ctx := context.Background()
	c := setupControl(t)
	r := buildRegistry(t)
	contacts, _ := r.Egg("contacts")
	versions := contacts.Versions()

	require.NoError(t, c.SetSchemaVersionFor(ctx, versions[0]))
	require.NoError(t, c.SetSchemaVersionFor(ctx, versions[1]))

	rows, err := c.SchemaVersions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "contacts", rows[0].EggName)
	assert.Equal(t, "2.0", rows[0].Version)

	upToDate, err := versions[1].IsUpToDate(ctx, c)
	require.NoError(t, err)
	assert.True(t, upToDate)
}

func TestControl_SetSchemaVersionForLogsRunContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := setupControl(t, WithLogger(zap.New(core)))
	r := buildRegistry(t)
	contacts, _ := r.Egg("contacts")

	ctx := ctxkeys.WithTraceID(ctxkeys.WithRunID(context.Background(), "run-7"), "4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, c.SetSchemaVersionFor(ctx, contacts.Versions()[0]))
	require.NoError(t, c.SetSchemaVersionFor(context.Background(), contacts.Versions()[1]))

	entries := logs.FilterMessage("schema version updated").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-7", fields["run_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "contacts", fields["egg"])

	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
	assert.NotContains(t, entries[1].ContextMap(), "run_id")
}

func TestControl_PruneSchemasToOnly(t *testing.T) {
	ctx := context.Background()
	c := setupControl(t)
	r := buildRegistry(t)
	for _, name := range []string{"app", "contacts", "legacy"} {
		require.NoError(t, c.InitialiseSchemaVersionFor(ctx, name, "1.0"))
	}

	require.NoError(t, c.PruneSchemasToOnly(ctx, []migration.Version{r.RootVersion()}))

	rows, err := c.SchemaVersions(ctx)
	require.NoError(t, err)
	var names []string
	for _, row := range rows {
		names = append(names, row.EggName)
	}
	assert.Equal(t, []string{"app", "contacts"}, names)

	require.NoError(t, c.PruneSchemasToOnly(ctx, nil))
	rows, err = c.SchemaVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestControl_ManagedTransaction(t *testing.T) {
	ctx := context.Background()
	c := setupControl(t)
	boom := errors.New("boom")

	err := c.ManagedTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, c.InitialiseSchemaVersionFor(ctx, "contacts", "1.0"))
		// 嵌套调用加入同一事务
		return c.ManagedTransaction(ctx, func(ctx context.Context) error {
			_, ok, err := c.SchemaVersionFor(ctx, "contacts")
			require.NoError(t, err)
			assert.True(t, ok)
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, ok, err := c.SchemaVersionFor(ctx, "contacts")
	require.NoError(t, err)
	assert.False(t, ok, "rolled back")

	require.NoError(t, c.ManagedTransaction(ctx, func(ctx context.Context) error {
		return c.InitialiseSchemaVersionFor(ctx, "contacts", "1.0")
	}))
	_, ok, err = c.SchemaVersionFor(ctx, "contacts")
	require.NoError(t, err)
	assert.True(t, ok)
}

type addColumn struct {
	control *Control
}

type contactRow struct {
	ID    uint
	Name  string
	Email string
}

func (contactRow) TableName() string { return "contacts" }

func (m *addColumn) ScheduleUpgrades(s *migration.Scheduler) {
	s.Schedule(migration.PhaseAlter, func(ctx context.Context) error {
		return m.control.DB(ctx).Migrator().AddColumn(&contactRow{}, "Email")
	})
	s.Schedule(migration.PhaseData, func(ctx context.Context) error {
		return m.control.DB(ctx).Model(&contactRow{}).Where("email IS NULL OR email = ''").
			Update("email", "unknown@example.com").Error
	})
}

func TestControl_DrivesPlanInsideTransaction(t *testing.T) {
	ctx := context.Background()
	c := setupControl(t)
	db := c.DB(ctx)
	require.NoError(t, db.Exec("CREATE TABLE contacts (id integer primary key, name text)").Error)
	require.NoError(t, db.Exec("INSERT INTO contacts (name) VALUES ('ada')").Error)

	r := egg.NewRegistry()
	contacts, err := r.Add("contacts")
	require.NoError(t, err)
	_, err = contacts.AddVersion("1.0")
	require.NoError(t, err)
	_, err = contacts.AddVersion("1.1", func() migration.Migration { return &addColumn{control: c} })
	require.NoError(t, err)
	require.NoError(t, r.SetRoot("contacts"))
	require.NoError(t, c.InitialiseSchemaVersionFor(ctx, "contacts", "1.0"))

	err = c.ManagedTransaction(ctx, func(ctx context.Context) error {
		plan := migration.NewPlan(r.RootVersion(), c)
		if err := plan.DoPlanning(ctx); err != nil {
			return err
		}
		return plan.Execute(ctx)
	})
	require.NoError(t, err)

	var row contactRow
	require.NoError(t, c.DB(ctx).First(&row).Error)
	assert.Equal(t, "unknown@example.com", row.Email)

	version, _, err := c.SchemaVersionFor(ctx, "contacts")
	require.NoError(t, err)
	assert.Equal(t, "1.1", version)
}

type fromMigration struct {
	got *Control
	err error
}

func (m *fromMigration) ScheduleUpgrades(s *migration.Scheduler) {
	m.got, m.err = From(s)
}

func TestFrom_ReturnsSchedulingControl(t *testing.T) {
	ctx := context.Background()
	c := setupControl(t)

	m := &fromMigration{}
	r := egg.NewRegistry()
	contacts, err := r.Add("contacts")
	require.NoError(t, err)
	_, err = contacts.AddVersion("1.0", func() migration.Migration { return m })
	require.NoError(t, err)
	require.NoError(t, r.SetRoot("contacts"))

	require.NoError(t, migration.NewPlan(r.RootVersion(), c).DoPlanning(ctx))
	require.NoError(t, m.err)
	assert.Same(t, c, m.got)
}
