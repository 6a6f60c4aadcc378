package migration

// Phase names a stage of schedule execution.
type Phase string

const (
	PhaseDropFK   Phase = "drop_fk"
	PhaseDropPK   Phase = "drop_pk"
	PhasePreAlter Phase = "pre_alter"
	PhaseAlter    Phase = "alter"
	PhaseCreatePK Phase = "create_pk"
	PhaseIndexes  Phase = "indexes"
	PhaseData     Phase = "data"
	PhaseCreateFK Phase = "create_fk"
	PhaseCleanup  Phase = "cleanup"
)

// PhasesInOrder lists the phases a schedule runs after its nested schedules.
// PhaseDropFK is not part of it: drop_fk calls are routed to run before
// nesting or right after a particular nested schedule.
var PhasesInOrder = []Phase{
	PhaseDropPK,
	PhasePreAlter,
	PhaseAlter,
	PhaseCreatePK,
	PhaseIndexes,
	PhaseData,
	PhaseCreateFK,
	PhaseCleanup,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	if p == PhaseDropFK {
		return true
	}
	for _, known := range PhasesInOrder {
		if p == known {
			return true
		}
	}
	return false
}
