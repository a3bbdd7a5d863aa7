package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState signals an operation that is not legal from the current
	// lifecycle state (confirming a non-proposed schedule, checking in a
	// resolved session, and so on).
	ErrInvalidState = errors.New("invalid state")
	// ErrSchedulingConflict signals an overlap with an active commitment.
	ErrSchedulingConflict = errors.New("scheduling conflict")
	// ErrPrerequisiteUnmet signals missing prerequisite courses.
	ErrPrerequisiteUnmet = errors.New("prerequisite unmet")
	// ErrStaleConflict signals a conflict that appeared between proposal and
	// confirmation.
	ErrStaleConflict = errors.New("stale conflict")
	// ErrToolInvocation signals an unknown or malformed tool call. It is
	// recoverable: the orchestration loop feeds it back to the model instead
	// of surfacing it to the caller.
	ErrToolInvocation = errors.New("tool invocation error")
	// ErrStorageUnavailable signals an unreachable backend. Components with a
	// fallback (the prerequisite resolver) switch strategies on it.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// SchedulingConflictError names the slot that collided and the courses it
// collided with.
type SchedulingConflictError struct {
	DayOfWeek int
	StartTime string
	EndTime   string
	Courses   []string
}

func (e *SchedulingConflictError) Error() string {
	return fmt.Sprintf("scheduling conflict: day=%d %s-%s overlaps %s",
		e.DayOfWeek, e.StartTime, e.EndTime, strings.Join(e.Courses, ", "))
}

func (e *SchedulingConflictError) Unwrap() error { return ErrSchedulingConflict }

// PrerequisiteUnmetError lists the missing course codes in catalog order.
type PrerequisiteUnmetError struct {
	CourseCode string
	Missing    []string
}

func (e *PrerequisiteUnmetError) Error() string {
	return fmt.Sprintf("prerequisites unmet for %s: missing %s",
		e.CourseCode, strings.Join(e.Missing, ", "))
}

func (e *PrerequisiteUnmetError) Unwrap() error { return ErrPrerequisiteUnmet }

// ToolInvocationError carries enough context for the model to correct itself.
type ToolInvocationError struct {
	Tool   string
	Reason string
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Reason)
}

func (e *ToolInvocationError) Unwrap() error { return ErrToolInvocation }
