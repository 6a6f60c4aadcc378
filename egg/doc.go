// Package egg describes the components of an installed system: eggs, their
// version histories and the dependencies between versions. Its Version and
// Dependency types implement the contracts of package migration, and a YAML
// manifest plus a Catalog of named migrations builds a Registry from config.
package egg
