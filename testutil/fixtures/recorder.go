// Package fixtures provides canned manifests and migrations for tests that
// drive a whole migration run.
package fixtures

import (
	"context"
	"sync"

	"github.com/BaSui01/eggmigrate/egg"
	"github.com/BaSui01/eggmigrate/migration"
)

// Recorder remembers which egg versions ran, in order.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

// Calls returns a copy of the recorded version names.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Migration returns a factory whose migrations record their version in phase.
func (r *Recorder) Migration(phase migration.Phase) migration.Factory {
	return func() migration.Migration {
		return recording{recorder: r, phase: phase}
	}
}

// Catalog registers a recording migration under each name.
func (r *Recorder) Catalog(phase migration.Phase, names ...string) *egg.Catalog {
	catalog := egg.NewCatalog()
	for _, name := range names {
		catalog.MustRegister(name, r.Migration(phase))
	}
	return catalog
}

func (r *Recorder) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

type recording struct {
	recorder *Recorder
	phase    migration.Phase
}

func (m recording) ScheduleUpgrades(s *migration.Scheduler) {
	name := s.Version().String()
	s.Schedule(m.phase, func(context.Context) error {
		m.recorder.record(name)
		return nil
	})
}
