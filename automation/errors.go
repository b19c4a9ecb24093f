package automation

import (
	"fmt"
	"strings"
	"time"
)

// StepExecutionError means every selector candidate, iframe sweep and label
// fallback for one logical field was exhausted. Fatal for required fields.
type StepExecutionError struct {
	Field string
	Tried []string
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step failed for field %q after trying selectors: %s",
		e.Field, strings.Join(e.Tried, ", "))
}

// SubmitFailure means every submission strategy was exhausted without the
// verification predicate turning true.
type SubmitFailure struct {
	Strategies int
}

func (e *SubmitFailure) Error() string {
	return fmt.Sprintf("all %d submit strategies exhausted without verification", e.Strategies)
}

// PasscodePromptError means neither the mailbox nor the webmail channel
// produced a code before the deadline.
type PasscodePromptError struct {
	Deadline time.Duration
}

func (e *PasscodePromptError) Error() string {
	return fmt.Sprintf("no passcode found in either channel within %s", e.Deadline)
}

// AutomationBlocked means login cannot proceed: an SSO wall, or the retry
// bound was hit. Terminal for the UI path.
type AutomationBlocked struct {
	Reason string
}

func (e *AutomationBlocked) Error() string {
	return fmt.Sprintf("automation blocked: %s", e.Reason)
}

// AdapterError means the API fallback itself failed. There is no further
// recourse.
type AdapterError struct {
	Provider string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter fallback for %q failed: %v", e.Provider, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
