package plugin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
)

// CyclicDependencyError indicates a cyclic dependency was detected.
// Cycle starts and ends with the same node.
type CyclicDependencyError struct {
	Side  unit.Side
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	if e.Side == "" {
		return fmt.Sprintf("cyclic dependency detected: %s", strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("%s: cyclic dependency detected: %s", e.Side, strings.Join(e.Cycle, " -> "))
}

// Unit returns the node at which the cycle was closed.
func (e *CyclicDependencyError) Unit() string {
	if len(e.Cycle) == 0 {
		return ""
	}
	return e.Cycle[len(e.Cycle)-1]
}

// IsCyclicDependency returns true if the error is a cyclic dependency error.
func IsCyclicDependency(err error) bool {
	var cyclicErr *CyclicDependencyError
	return errors.As(err, &cyclicErr)
}

// MissingDependency is one unresolved dependency edge.
type MissingDependency struct {
	Unit       string
	Dependency string
}

// MissingDependencyError lists dependencies that name no registered plugin.
type MissingDependencyError struct {
	Side    unit.Side
	Missing []MissingDependency
}

func (e *MissingDependencyError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s requires %s", m.Unit, m.Dependency))
	}
	return fmt.Sprintf("%s: missing dependencies: %s", e.Side, strings.Join(parts, ", "))
}

// IsMissingDependency returns true if the error reports missing dependencies.
func IsMissingDependency(err error) bool {
	var missingErr *MissingDependencyError
	return errors.As(err, &missingErr)
}

// TransitionError indicates a lifecycle operation invalid for the current phase.
type TransitionError struct {
	Side  unit.Side
	Unit  string
	From  Phase
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s plugin %q: cannot %s from phase %s",
		e.Side, e.Unit, strings.ToLower(e.Event), e.From)
}

// IsTransitionError returns true if the error is an invalid lifecycle transition.
func IsTransitionError(err error) bool {
	var transitionErr *TransitionError
	return errors.As(err, &transitionErr)
}
