package migration

import (
	"fmt"
	"strings"

	"github.com/BaSui01/eggmigrate/types"
)

// ExecutionError reports a scheduled operation that failed while a plan was
// executing. Context points at the Schedule call that registered it.
type ExecutionError struct {
	Context   SchedulingContext
	Phase     Phase
	Migration string
	Version   string
	Cause     error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "exception during migration %s of %s (phase %s)", e.Migration, e.Version, e.Phase)
	if len(e.Context) > 0 {
		b.WriteString(", scheduled at:\n")
		b.WriteString(e.Context.String())
	}
	fmt.Fprintf(&b, "\n%v", e.Cause)
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

func programmerError(format string, args ...any) error {
	return types.Errorf(types.ErrProgrammerError, format, args...)
}
