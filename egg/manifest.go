package egg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/eggmigrate/types"
)

// =============================================================================
// 📄 Manifest
// =============================================================================

// Manifest describes the eggs of a system in YAML:
//
//	root: addressbook
//	eggs:
//	  - name: addressbook
//	    versions:
//	      - number: "1.0"
//	      - number: "2.0"
//	        migrations: [AddEmailColumn]
//	        dependencies:
//	          - egg: contacts
//	            min: "1.0"
//	            max: "2.0"
//	          - library: github.com/google/uuid
type Manifest struct {
	Root string        `yaml:"root"`
	Eggs []EggManifest `yaml:"eggs"`
}

// EggManifest describes one egg and its history, oldest first.
type EggManifest struct {
	Name     string            `yaml:"name"`
	Versions []VersionManifest `yaml:"versions"`
}

// VersionManifest describes one version.
type VersionManifest struct {
	Number       string               `yaml:"number"`
	Migrations   []string             `yaml:"migrations"`
	Dependencies []DependencyManifest `yaml:"dependencies"`
}

// DependencyManifest names either an egg with an optional range or a library.
type DependencyManifest struct {
	Egg     string `yaml:"egg,omitempty"`
	Min     string `yaml:"min,omitempty"`
	Max     string `yaml:"max,omitempty"`
	Library string `yaml:"library,omitempty"`
}

// LoadManifest reads a manifest file and builds its registry.
func LoadManifest(path string, catalog *Catalog) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data, catalog)
}

// ParseManifest builds a registry from manifest YAML. Migration names are
// resolved through catalog.
func ParseManifest(data []byte, catalog *Catalog) (*Registry, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, types.NewError(types.ErrInvalidManifest, "failed to parse manifest").WithCause(err)
	}
	return m.Build(catalog)
}

// Build creates the registry. All eggs and versions are registered before
// dependencies are declared, so eggs may be listed in any order.
func (m *Manifest) Build(catalog *Catalog) (*Registry, error) {
	if catalog == nil {
		catalog = NewCatalog()
	}
	registry := NewRegistry()

	for _, em := range m.Eggs {
		e, err := registry.Add(em.Name)
		if err != nil {
			return nil, err
		}
		for _, vm := range em.Versions {
			v, err := e.AddVersion(vm.Number)
			if err != nil {
				return nil, err
			}
			for _, name := range vm.Migrations {
				factory, err := catalog.Lookup(name)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", v, err)
				}
				v.AddMigrations(factory)
			}
		}
	}

	for _, em := range m.Eggs {
		e, _ := registry.Egg(em.Name)
		for i, vm := range em.Versions {
			v := e.versions[i]
			for _, dm := range vm.Dependencies {
				if err := declareDependency(v, dm); err != nil {
					return nil, err
				}
			}
		}
	}

	if m.Root == "" {
		return nil, types.NewError(types.ErrInvalidManifest, "manifest does not name a root egg")
	}
	if err := registry.SetRoot(m.Root); err != nil {
		return nil, err
	}
	return registry, nil
}

func declareDependency(v *Version, dm DependencyManifest) error {
	switch {
	case dm.Egg != "" && dm.Library != "":
		return types.Errorf(types.ErrInvalidManifest, "%s: a dependency names either an egg or a library", v).WithEgg(v.EggName())
	case dm.Egg != "":
		_, err := v.DependsOn(dm.Egg, dm.Min, dm.Max)
		return err
	case dm.Library != "":
		v.DependsOnLibrary(dm.Library)
		return nil
	default:
		return types.Errorf(types.ErrInvalidManifest, "%s: empty dependency", v).WithEgg(v.EggName())
	}
}
