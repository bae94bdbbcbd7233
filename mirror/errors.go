package mirror

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrLaunch marks errors where git executable could not be started
	ErrLaunch = errors.New("unable to launch git")
	// ErrCommandFailed marks errors where git ran but reported failure
	ErrCommandFailed = errors.New("git command failed")
)

// Step is one stage of the mirror update sequence.
type Step string

const (
	StepClone     Step = "clone"
	StepAddRemote Step = "remote add"
	StepFetch     Step = "fetch"
	StepPush      Step = "push"
)

// StepError is returned by Updater when one of the update steps fails.
// Use errors.Is with ErrLaunch or ErrCommandFailed to tell why.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("git %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step which caused given error and true if
// error was produced by an update step.
func FailedStep(err error) (Step, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step, true
	}
	return "", false
}
