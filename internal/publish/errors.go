package publish

import (
	"errors"
	"fmt"
)

var (
	ErrNothingToCommit = errors.New("nothing to commit")
	ErrInProgress      = errors.New("publish already in progress")
)

// Step names a stage of the pipeline.
type Step string

const (
	StepCopy     Step = "copy"
	StepManifest Step = "manifest"
	StepMirror   Step = "mirror"
	StepAdd      Step = "add"
	StepCommit   Step = "commit"
	StepPush     Step = "push"
)

// Error is a failed step with whatever the step printed.
type Error struct {
	Step   Step
	Output string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the text shown to the operator: the captured output when there
// is any, otherwise the error.
func (e *Error) Detail() string {
	if e.Output != "" {
		return e.Output
	}
	return e.Error()
}
