package migration

import (
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"
)

// Frame is one call site recorded when an operation was scheduled.
type Frame struct {
	Function string
	File     string
	Line     int
}

func (f Frame) String() string {
	return fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line)
}

// SchedulingContext lists the call sites that led to a Schedule call, outermost
// first. Only frames of migration code are kept.
type SchedulingContext []Frame

func (c SchedulingContext) String() string {
	lines := make([]string, len(c))
	for i, f := range c {
		lines[i] = f.String()
	}
	return strings.Join(lines, "\n")
}

// CallSite returns the innermost frame, the one that called Schedule.
func (c SchedulingContext) CallSite() (Frame, bool) {
	if len(c) == 0 {
		return Frame{}, false
	}
	return c[len(c)-1], true
}

const maxContextDepth = 32

var frameworkPrefix = reflect.TypeOf(Schedule{}).PkgPath() + "."

// captureSchedulingContext walks outwards from the caller of Scheduler.Schedule
// and stops at the first framework frame. A ScheduleUpgrades frame is always
// kept, even when it belongs to this package.
func captureSchedulingContext(skip int) SchedulingContext {
	pcs := make([]uintptr, maxContextDepth)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var kept SchedulingContext
	for {
		frame, more := frames.Next()
		if isFramework(frame.Function) && !strings.Contains(frame.Function, "ScheduleUpgrades") {
			break
		}
		kept = append(kept, Frame{Function: frame.Function, File: frame.File, Line: frame.Line})
		if !more {
			break
		}
	}
	slices.Reverse(kept)
	return kept
}

func isFramework(function string) bool {
	return strings.HasPrefix(function, frameworkPrefix) || strings.HasPrefix(function, "runtime.")
}
