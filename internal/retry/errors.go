package retry

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Error taxonomy shared by every helper. Concrete failures wrap one of these
// so callers can branch with errors.Is.
var (
	// ErrTransient marks a failed attempt that was retried. It appears only in
	// ExhaustedError.Causes, never in the chain of the returned error.
	ErrTransient = errors.New("transient failure")
	// ErrExhausted is matched by every *ExhaustedError.
	ErrExhausted = errors.New("retries exhausted")
	// ErrDeadlineExceeded is matched by every *DeadlineError.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	// ErrPreconditionViolated is matched by every *PreconditionError.
	ErrPreconditionViolated = errors.New("precondition violated")
)

// Attempt records the outcome of one iteration of a retry loop.
type Attempt struct {
	N        int
	Err      error
	Duration time.Duration
}

// ExhaustedError is returned when every attempt of a retry loop failed.
type ExhaustedError struct {
	Op       string
	Target   string
	Attempts int
	Causes   []Attempt
}

// Last returns the error of the final attempt.
func (e *ExhaustedError) Last() error {
	if len(e.Causes) == 0 {
		return nil
	}
	return e.Causes[len(e.Causes)-1].Err
}

// All combines the causes of every attempt, oldest first.
func (e *ExhaustedError) All() error {
	var combined error
	for _, a := range e.Causes {
		combined = multierr.Append(combined, a.Err)
	}
	return combined
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed on %s after %d attempts: %v", e.Op, e.Target, e.Attempts, e.Last())
}

func (e *ExhaustedError) Unwrap() []error {
	if last := e.Last(); last != nil {
		return []error{ErrExhausted, last}
	}
	return []error{ErrExhausted}
}

// DeadlineError is returned when a readiness wait did not resolve in time.
type DeadlineError struct {
	Op      string
	Timeout time.Duration
	// Last is the most recent error seen while polling, if any.
	Last error
	// Message overrides the generated text when set.
	Message string
}

func (e *DeadlineError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("%s not reached within %d ms", e.Op, e.Timeout.Milliseconds())
	}
	if e.Last != nil {
		return fmt.Sprintf("%s: %v", msg, e.Last)
	}
	return msg
}

func (e *DeadlineError) Unwrap() []error {
	if e.Last != nil {
		return []error{ErrDeadlineExceeded, e.Last}
	}
	return []error{ErrDeadlineExceeded}
}

// PreconditionError reports an operation that must not be attempted at all,
// such as acting on a closed page.
type PreconditionError struct {
	Op     string
	Target string
	Err    error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Target, e.Err)
}

func (e *PreconditionError) Unwrap() []error {
	return []error{ErrPreconditionViolated, e.Err}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that Do and Poll stop immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent
// or is a precondition violation.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, ErrPreconditionViolated)
}

// unwrapPermanent strips the Permanent marker so callers see the real cause.
func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}
