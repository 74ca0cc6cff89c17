package plan

import (
	"errors"
	"fmt"
)

var ErrDuplicateStepKey = errors.New("duplicate step key in plan")

// StepError reports the step that stopped a plan.
type StepError struct {
	Step   string
	Key    string
	Phase  string
	Result Result
}

func (e *StepError) Error() string {
	if e.Result.Message == "" {
		return fmt.Sprintf("step %q failed during %s", e.Step, e.Phase)
	}
	return e.Result.Message
}

func (e *StepError) Unwrap() error { return e.Result.Err() }

// CheckError reports the preflight check that failed.
type CheckError struct {
	Check   string
	Message string
}

func (e *CheckError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("preflight check %q failed", e.Check)
	}
	return e.Message
}
