package egg

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/BaSui01/eggmigrate/migration"
	"github.com/BaSui01/eggmigrate/types"
)

// =============================================================================
// 📦 Registry
// =============================================================================

// Registry holds the eggs of one installed system. The root egg is the
// application whose installed version a migration run starts from.
type Registry struct {
	eggs  map[string]*Egg
	order []*Egg
	root  string
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{eggs: make(map[string]*Egg)}
}

// Add registers a new egg. Names must be unique.
func (r *Registry) Add(name string) (*Egg, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, types.NewError(types.ErrInvalidManifest, "egg name is required")
	}
	if _, exists := r.eggs[name]; exists {
		return nil, types.Errorf(types.ErrInvalidManifest, "egg %q is registered twice", name).WithEgg(name)
	}
	e := &Egg{name: name, registry: r}
	r.eggs[name] = e
	r.order = append(r.order, e)
	return e, nil
}

// Egg looks up a registered egg.
func (r *Registry) Egg(name string) (*Egg, bool) {
	e, ok := r.eggs[name]
	return e, ok
}

// Eggs returns the registered eggs in registration order.
func (r *Registry) Eggs() []*Egg {
	return slices.Clone(r.order)
}

// SetRoot designates the root egg.
func (r *Registry) SetRoot(name string) error {
	if _, ok := r.eggs[name]; !ok {
		return types.Errorf(types.ErrInvalidManifest, "root egg %q is not registered", name).WithEgg(name)
	}
	r.root = name
	return nil
}

// Root returns the root egg, if one was set.
func (r *Registry) Root() (*Egg, bool) {
	e, ok := r.eggs[r.root]
	return e, ok
}

// RootVersion returns the installed version of the root egg. It returns a nil
// interface when there is no root or the root has no versions.
func (r *Registry) RootVersion() migration.Version {
	root, ok := r.Root()
	if !ok {
		return nil
	}
	if v := root.InstalledVersion(); v != nil {
		return v
	}
	return nil
}

// =============================================================================
// 🥚 Egg
// =============================================================================

// Egg is a component with its own persisted schema and an ordered history of
// versions, oldest first.
type Egg struct {
	name     string
	registry *Registry
	versions []*Version
}

// Name returns the egg name.
func (e *Egg) Name() string { return e.name }

// AddVersion appends a version to the history. Numbers must be valid
// semantic versions ("2.0" and "v2.0" are both accepted) and strictly
// increasing.
func (e *Egg) AddVersion(number string, migrations ...migration.Factory) (*Version, error) {
	canonical, err := canonicalVersion(number)
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidManifest, "egg %s: %v", e.name, err).WithEgg(e.name)
	}
	if n := len(e.versions); n > 0 && semver.Compare(e.versions[n-1].canonical, canonical) >= 0 {
		return nil, types.Errorf(types.ErrInvalidManifest,
			"egg %s: version %s does not follow %s", e.name, number, e.versions[n-1].number).WithEgg(e.name)
	}
	v := &Version{
		egg:        e,
		number:     strings.TrimPrefix(strings.TrimSpace(number), "v"),
		canonical:  canonical,
		index:      len(e.versions),
		migrations: slices.Clone(migrations),
	}
	e.versions = append(e.versions, v)
	return v, nil
}

// Versions returns the history, oldest first.
func (e *Egg) Versions() []*Version {
	return slices.Clone(e.versions)
}

// Version looks up a version by number.
func (e *Egg) Version(number string) (*Version, bool) {
	canonical, err := canonicalVersion(number)
	if err != nil {
		return nil, false
	}
	for _, v := range e.versions {
		if v.canonical == canonical {
			return v, true
		}
	}
	return nil, false
}

// InstalledVersion returns the newest version, or nil when there is none.
func (e *Egg) InstalledVersion() *Version {
	if len(e.versions) == 0 {
		return nil
	}
	return e.versions[len(e.versions)-1]
}

// =============================================================================
// 🏷️ Version
// =============================================================================

// Version is one release of an egg. It implements migration.Version.
type Version struct {
	egg          *Egg
	number       string
	canonical    string
	index        int
	dependencies []*Dependency
	migrations   []migration.Factory
}

var _ migration.Version = (*Version)(nil)

func (v *Version) String() string    { return v.egg.name + "-" + v.number }
func (v *Version) EggName() string   { return v.egg.name }
func (v *Version) Number() string    { return v.number }
func (v *Version) Egg() *Egg         { return v.egg }
func (v *Version) Canonical() string { return v.canonical }

// PreviousVersion implements migration.Version.
func (v *Version) PreviousVersion() migration.Version {
	if v.index == 0 {
		return nil
	}
	return v.egg.versions[v.index-1]
}

// IsPreviousVersionOf implements migration.Version.
func (v *Version) IsPreviousVersionOf(other migration.Version) bool {
	o, ok := other.(*Version)
	return ok && o.egg == v.egg && o.index == v.index+1
}

// Compare orders versions by their semantic version number.
func (v *Version) Compare(other migration.Version) int {
	if o, ok := other.(*Version); ok {
		return semver.Compare(v.canonical, o.canonical)
	}
	canonical, err := canonicalVersion(other.Number())
	if err != nil {
		return 1
	}
	return semver.Compare(v.canonical, canonical)
}

// Migrations implements migration.Version.
func (v *Version) Migrations() []migration.Factory {
	return slices.Clone(v.migrations)
}

// AddMigrations appends migrations to this version.
func (v *Version) AddMigrations(factories ...migration.Factory) *Version {
	v.migrations = append(v.migrations, factories...)
	return v
}

// Dependencies implements migration.Version.
func (v *Version) Dependencies() []migration.Dependency {
	deps := make([]migration.Dependency, len(v.dependencies))
	for i, d := range v.dependencies {
		deps[i] = d
	}
	return deps
}

// DependsOn declares that v needs a version of egg in
// [minVersion, maxVersion). An empty bound is open.
func (v *Version) DependsOn(egg, minVersion, maxVersion string) (*Dependency, error) {
	d := &Dependency{registry: v.egg.registry, name: egg, component: true}
	var err error
	if minVersion != "" {
		if d.min, err = canonicalVersion(minVersion); err != nil {
			return nil, types.Errorf(types.ErrInvalidManifest, "%s depends on %s: %v", v, egg, err).WithEgg(v.egg.name)
		}
	}
	if maxVersion != "" {
		if d.max, err = canonicalVersion(maxVersion); err != nil {
			return nil, types.Errorf(types.ErrInvalidManifest, "%s depends on %s: %v", v, egg, err).WithEgg(v.egg.name)
		}
	}
	v.dependencies = append(v.dependencies, d)
	return d, nil
}

// DependsOnLibrary declares a dependency that carries no schema.
func (v *Version) DependsOnLibrary(name string) *Dependency {
	d := &Dependency{registry: v.egg.registry, name: name}
	v.dependencies = append(v.dependencies, d)
	return d
}

// IsUpToDate reports whether the persisted schema version of the egg is at
// least v. An egg without a record is not up to date.
func (v *Version) IsUpToDate(ctx context.Context, orm migration.ORMControl) (bool, error) {
	current, ok, err := orm.SchemaVersionFor(ctx, v.egg.name)
	if err != nil {
		return false, fmt.Errorf("read schema version of %s: %w", v.egg.name, err)
	}
	if !ok {
		return false, nil
	}
	canonical, err := canonicalVersion(current)
	if err != nil {
		return false, types.Errorf(types.ErrSchemaVersion, "persisted version of %s: %v", v.egg.name, err).WithEgg(v.egg.name)
	}
	return semver.Compare(canonical, v.canonical) >= 0, nil
}

// =============================================================================
// 🔗 Dependency
// =============================================================================

// Dependency is a requirement of a version. Component dependencies name an
// egg and a version range; library dependencies carry no schema.
type Dependency struct {
	registry  *Registry
	name      string
	min       string
	max       string
	component bool
}

var _ migration.Dependency = (*Dependency)(nil)

// Name returns the name of the required egg or library.
func (d *Dependency) Name() string { return d.name }

// IsComponent implements migration.Dependency.
func (d *Dependency) IsComponent() bool { return d.component }

// Resolvable reports whether the required egg is registered. Libraries are
// always resolvable.
func (d *Dependency) Resolvable() bool {
	if !d.component {
		return true
	}
	_, ok := d.registry.Egg(d.name)
	return ok
}

// BestVersion returns the highest version of the required egg inside the
// range, or nil.
func (d *Dependency) BestVersion() migration.Version {
	if v := d.best(); v != nil {
		return v
	}
	return nil
}

func (d *Dependency) best() *Version {
	if !d.component {
		return nil
	}
	target, ok := d.registry.Egg(d.name)
	if !ok {
		return nil
	}
	for i := len(target.versions) - 1; i >= 0; i-- {
		if d.allows(target.versions[i].canonical) {
			return target.versions[i]
		}
	}
	return nil
}

func (d *Dependency) allows(canonical string) bool {
	if d.min != "" && semver.Compare(canonical, d.min) < 0 {
		return false
	}
	if d.max != "" && semver.Compare(canonical, d.max) >= 0 {
		return false
	}
	return true
}

func (d *Dependency) String() string {
	if !d.component {
		return d.name
	}
	return fmt.Sprintf("%s [%s, %s)", d.name, strings.TrimPrefix(d.min, "v"), strings.TrimPrefix(d.max, "v"))
}

// =============================================================================
// 🔧 Helpers
// =============================================================================

// canonicalVersion turns "2.0" or "v2.0" into "v2.0.0".
func canonicalVersion(number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", fmt.Errorf("empty version number")
	}
	if !strings.HasPrefix(number, "v") {
		number = "v" + number
	}
	if !semver.IsValid(number) {
		return "", fmt.Errorf("invalid version number %q", strings.TrimPrefix(number, "v"))
	}
	return semver.Canonical(number), nil
}

// ReachableVersions returns versions together with every version reachable
// from them through resolvable component dependencies, without duplicates.
func ReachableVersions(versions []migration.Version) []migration.Version {
	var result []migration.Version
	seen := make(map[migration.Version]bool)
	var visit func(v migration.Version)
	visit = func(v migration.Version) {
		if v == nil || seen[v] {
			return
		}
		seen[v] = true
		result = append(result, v)
		for _, d := range v.Dependencies() {
			if d.IsComponent() && d.Resolvable() {
				visit(d.BestVersion())
			}
		}
	}
	for _, v := range versions {
		visit(v)
	}
	return result
}
