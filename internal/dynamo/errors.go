package dynamo

import (
	"errors"
	"fmt"
)

// Fault classes. Wrap one of these so callers can classify with errors.Is.
var (
	// ErrConfiguration indicates an invalid setup detected at construction:
	// mismatched joint name sets, a non-integer rate divisor, a malformed
	// robot description. Not recoverable; the loop must not be used.
	ErrConfiguration = errors.New("dynamo: configuration fault")

	// ErrProtocol indicates a call made out of order or with a bad argument,
	// such as stepping before initialization or a wrong-length action. The
	// loop stays consistent and accepts a corrected call.
	ErrProtocol = errors.New("dynamo: protocol fault")

	// ErrStepService indicates the stepping service failed or diverged.
	// Physics state afterwards is undefined; there is no retry.
	ErrStepService = errors.New("dynamo: stepping service fault")
)

// StepError wraps an engine failure with the control step it happened in.
type StepError struct {
	Step    int
	SubStep int
	SimTime float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d.%d (t=%.4f): %v", e.Step, e.SubStep, e.SimTime, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}

// Configf returns an ErrConfiguration with a formatted detail message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Protocolf returns an ErrProtocol with a formatted detail message.
func Protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
