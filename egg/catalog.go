package egg

import (
	"slices"
	"sync"

	"github.com/BaSui01/eggmigrate/migration"
	"github.com/BaSui01/eggmigrate/types"
)

// Catalog maps migration names used in manifests to their factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]migration.Factory
}

// NewCatalog 创建迁移目录
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]migration.Factory)}
}

// Register adds a named factory. Registering a name twice is an error.
func (c *Catalog) Register(name string, factory migration.Factory) error {
	if name == "" || factory == nil {
		return types.NewError(types.ErrProgrammerError, "catalog entries need a name and a factory")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[name]; exists {
		return types.Errorf(types.ErrProgrammerError, "migration %q is already registered", name)
	}
	c.factories[name] = factory
	return nil
}

// MustRegister is Register for package initialisation; it panics on error.
func (c *Catalog) MustRegister(name string, factory migration.Factory) *Catalog {
	if err := c.Register(name, factory); err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the factory registered under name.
func (c *Catalog) Lookup(name string) (migration.Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	factory, ok := c.factories[name]
	if !ok {
		return nil, types.Errorf(types.ErrUnknownMigration, "no migration registered as %q", name)
	}
	return factory, nil
}

// Names returns the registered names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
