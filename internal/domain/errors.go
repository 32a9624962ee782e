package domain

import (
	"errors"
	"fmt"
)

// Precondition errors - fatal, nothing is executed
var (
	// ErrRootNotFound indicates a sync root does not exist
	ErrRootNotFound = errors.New("root not found")

	// ErrNotDirectory indicates a sync root is not a directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrOverlappingRoots indicates source and target are the same tree or nested in each other
	ErrOverlappingRoots = errors.New("source and target overlap")
)

// Sync errors
var (
	// ErrInvalidEntries indicates entries that are neither files nor directories
	// were found in the target and the configured policy refused to remove them
	ErrInvalidEntries = errors.New("invalid entries in target")

	// ErrDeclined indicates the plan was not confirmed
	ErrDeclined = errors.New("sync declined")

	// ErrDependencyFailed marks an action skipped because an action it depends on failed
	ErrDependencyFailed = errors.New("dependent action failed")

	// ErrSkipped marks an action not attempted because fail-fast stopped execution
	ErrSkipped = errors.New("skipped after earlier failure")

	// ErrUnknownChange indicates a change kind without a planning rule
	ErrUnknownChange = errors.New("unknown change kind")

	// ErrUnknownAction indicates an action kind the executor cannot apply
	ErrUnknownAction = errors.New("unknown action kind")

	// ErrSyncInProgress indicates another sync holds the target lock
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file or options are malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// PathError records a failed operation on one relative path.
// Failures are collected into the report rather than aborting the run.
type PathError struct {
	Path string `json:"path" yaml:"path"`
	Op   string `json:"op" yaml:"op"`
	Err  error  `json:"-" yaml:"-"`
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// Message returns the underlying error text, used by report encoders
func (e *PathError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
