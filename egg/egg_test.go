package egg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/eggmigrate/migration"
	"github.com/BaSui01/eggmigrate/types"
)

type mapORM struct {
	versions map[string]string
	pruned   []migration.Version
	err      error
}

func (o *mapORM) SchemaVersionFor(_ context.Context, name string) (string, bool, error) {
	if o.err != nil {
		return "", false, o.err
	}
	v, ok := o.versions[name]
	return v, ok, nil
}

func (o *mapORM) SetSchemaVersionFor(_ context.Context, v migration.Version) error {
	if o.versions == nil {
		o.versions = make(map[string]string)
	}
	o.versions[v.EggName()] = v.Number()
	return nil
}

func (o *mapORM) PruneSchemasToOnly(_ context.Context, versions []migration.Version) error {
	o.pruned = versions
	return nil
}

func mustVersion(t *testing.T, e *Egg, number string) *Version {
	t.Helper()
	v, err := e.AddVersion(number)
	require.NoError(t, err)
	return v
}

func TestRegistry_AddRejectsDuplicatesAndBlankNames(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add("contacts")
	require.NoError(t, err)

	_, err = r.Add("contacts")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidManifest))

	_, err = r.Add("  ")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidManifest))

	assert.Error(t, r.SetRoot("missing"))
	assert.Nil(t, r.RootVersion())
}

func TestEgg_VersionsMustIncrease(t *testing.T) {
	e, err := NewRegistry().Add("contacts")
	require.NoError(t, err)

	mustVersion(t, e, "1.0")
	mustVersion(t, e, "v1.1")

	tests := []struct {
		name   string
		number string
	}{
		{"equal", "1.1.0"},
		{"older", "0.9"},
		{"invalid", "one"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.AddVersion(tt.number)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidManifest))
		})
	}

	v, ok := e.Version("1.1")
	require.True(t, ok)
	assert.Equal(t, "contacts-1.1", v.String())
	assert.Equal(t, "v1.1.0", v.Canonical())
	assert.Same(t, v, e.InstalledVersion())
}

func TestVersion_History(t *testing.T) {
	e, _ := NewRegistry().Add("contacts")
	v1 := mustVersion(t, e, "1.0")
	v2 := mustVersion(t, e, "2.0")

	assert.True(t, v1.PreviousVersion() == nil, "first version must return an untyped nil")
	assert.Same(t, v1, v2.PreviousVersion())
	assert.True(t, v1.IsPreviousVersionOf(v2))
	assert.False(t, v2.IsPreviousVersionOf(v1))
	assert.Negative(t, v1.Compare(v2))
	assert.Positive(t, v2.Compare(v1))
	assert.Zero(t, v1.Compare(v1))
}

func TestDependency_BestVersionIsHighestInRange(t *testing.T) {
	r := NewRegistry()
	contacts, _ := r.Add("contacts")
	for _, n := range []string{"1.0", "1.5", "2.0", "3.0"} {
		mustVersion(t, contacts, n)
	}
	app, _ := r.Add("app")
	v := mustVersion(t, app, "1.0")

	tests := []struct {
		name     string
		min, max string
		want     string
	}{
		{"bounded", "1.0", "2.0", "contacts-1.5"},
		{"open max", "1.0", "", "contacts-3.0"},
		{"open min", "", "1.5", "contacts-1.0"},
		{"exact upper bound excluded", "2.0", "3.0", "contacts-2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := v.DependsOn("contacts", tt.min, tt.max)
			require.NoError(t, err)
			assert.True(t, d.IsComponent())
			assert.True(t, d.Resolvable())
			require.NotNil(t, d.BestVersion())
			assert.Equal(t, tt.want, d.BestVersion().String())
		})
	}

	none, err := v.DependsOn("contacts", "4.0", "")
	require.NoError(t, err)
	assert.True(t, none.BestVersion() == nil)

	_, err = v.DependsOn("contacts", "x", "")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidManifest))
}

func TestDependency_UnregisteredAndLibraries(t *testing.T) {
	r := NewRegistry()
	app, _ := r.Add("app")
	v := mustVersion(t, app, "1.0")

	missing, err := v.DependsOn("ghost", "", "")
	require.NoError(t, err)
	assert.False(t, missing.Resolvable())
	assert.True(t, missing.BestVersion() == nil)

	lib := v.DependsOnLibrary("github.com/google/uuid")
	assert.False(t, lib.IsComponent())
	assert.True(t, lib.Resolvable())
	assert.True(t, lib.BestVersion() == nil)
	assert.Equal(t, "github.com/google/uuid", lib.String())

	assert.Len(t, v.Dependencies(), 2)
}

func TestVersion_IsUpToDate(t *testing.T) {
	e, _ := NewRegistry().Add("contacts")
	v := mustVersion(t, e, "1.2")
	ctx := context.Background()

	tests := []struct {
		name      string
		persisted map[string]string
		want      bool
	}{
		{"no record", nil, false},
		{"older", map[string]string{"contacts": "1.1"}, false},
		{"same", map[string]string{"contacts": "1.2"}, true},
		{"same with prefix", map[string]string{"contacts": "v1.2.0"}, true},
		{"newer", map[string]string{"contacts": "2.0"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.IsUpToDate(ctx, &mapORM{versions: tt.persisted})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := v.IsUpToDate(ctx, &mapORM{versions: map[string]string{"contacts": "garbage"}})
	assert.True(t, types.IsErrorCode(err, types.ErrSchemaVersion))

	boom := errors.New("connection refused")
	_, err = v.IsUpToDate(ctx, &mapORM{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestReachableVersions(t *testing.T) {
	r := NewRegistry()
	base, _ := r.Add("base")
	b1 := mustVersion(t, base, "1.0")
	mid, _ := r.Add("mid")
	m1 := mustVersion(t, mid, "1.0")
	_, err := m1.DependsOn("base", "1.0", "")
	require.NoError(t, err)
	top, _ := r.Add("top")
	t1 := mustVersion(t, top, "1.0")
	_, err = t1.DependsOn("mid", "", "")
	require.NoError(t, err)
	_, err = t1.DependsOn("base", "", "")
	require.NoError(t, err)
	t1.DependsOnLibrary("zap")
	_, err = t1.DependsOn("ghost", "", "")
	require.NoError(t, err)

	got := ReachableVersions([]migration.Version{t1})
	assert.Equal(t, []migration.Version{t1, m1, b1}, got)
	assert.Empty(t, ReachableVersions(nil))
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	factory := func() migration.Migration { return &migration.UpdateSchemaVersion{} }

	require.NoError(t, c.Register("b", factory))
	require.NoError(t, c.Register("a", factory))
	assert.True(t, types.IsErrorCode(c.Register("a", factory), types.ErrProgrammerError))
	assert.Error(t, c.Register("", factory))
	assert.Equal(t, []string{"a", "b"}, c.Names())

	_, err := c.Lookup("missing")
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownMigration))

	assert.Panics(t, func() { c.MustRegister("a", factory) })
}
