package unit

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Sentinel errors for programmatic error handling.
var (
	// ErrEmptyName indicates a unit was registered without a name.
	ErrEmptyName = errors.New("unit name cannot be empty")
	// ErrNilConstructor indicates a nil constructor was provided.
	ErrNilConstructor = errors.New("unit constructor cannot be nil")
	// ErrNilUnit indicates a constructor returned a nil unit without an error.
	ErrNilUnit = errors.New("constructor returned a nil unit")
	// ErrUnknownSide indicates a side label outside client/server.
	ErrUnknownSide = errors.New("unknown side")
	// ErrPassInProgress indicates a namespace was modified during a bulk pass.
	ErrPassInProgress = errors.New("bulk pass in progress")
)

// RegistrationConflictError indicates a name is already taken on a side.
// The first registration wins.
type RegistrationConflictError struct {
	Side Side
	Name string
}

func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("%s unit %q already registered", e.Side, e.Name)
}

// IsRegistrationConflict returns true if the error is a duplicate registration.
func IsRegistrationConflict(err error) bool {
	var conflictErr *RegistrationConflictError
	return errors.As(err, &conflictErr)
}

// InstantiationError indicates a constructor failed during registration.
type InstantiationError struct {
	Side Side
	Name string
	Err  error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiating %s unit %q: %v", e.Side, e.Name, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// IsInstantiationFailure returns true if the error is a constructor failure.
func IsInstantiationFailure(err error) bool {
	var instErr *InstantiationError
	return errors.As(err, &instErr)
}

// HookError indicates a unit hook (load, enable, disable, unload, init, tick) failed.
type HookError struct {
	Side Side
	Unit string
	Hook string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s unit %q: %s hook: %v", e.Side, e.Unit, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// IsHookFailure returns true if the error is a hook failure.
func IsHookFailure(err error) bool {
	var hookErr *HookError
	return errors.As(err, &hookErr)
}

// PanicError wraps a value recovered from a panicking hook or constructor.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ValidationError collects multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0]
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// Add adds an error message to the collection.
func (e *ValidationError) Add(msg string) {
	e.Errors = append(e.Errors, msg)
}

// Addf adds a formatted error message to the collection.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// IsValidationError returns true if the error is a validation error.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// Guard runs fn and converts a panic into a *PanicError.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
