package types

import "fmt"

// ToolError wraps a tool handler failure. It is surfaced to the LLM as
// a ToolMessage content string rather than aborting the run (spec §7).
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// FreshnessViolation is raised by a file-write/edit handler when the
// Freshness Tracker reports the path needs a re-read before mutation
// (spec §4.3, §7). Callers surface it as a ToolError rather than an
// interrupt.
type FreshnessViolation struct {
	Path   string
	Reason string
}

func (e *FreshnessViolation) Error() string {
	return fmt.Sprintf("freshness violation for %s: %s", e.Path, e.Reason)
}

// RecursionLimitError is raised when an Agent Runner's iteration
// counter exceeds the configured recursion limit (spec §4.8, §7).
type RecursionLimitError struct {
	Limit int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("recursion limit of %d iterations exceeded", e.Limit)
}

// ConfigError is a fatal, once-surfaced startup failure: a missing API
// key or a malformed permission/agent rule (spec §7).
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("config error: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// GraphInterrupt is the sole sentinel that propagates through the Tool
// Dispatcher uncaught (spec §7): a permission ask bubbling up from a
// sub-agent. All other handler panics/errors are converted to
// ToolMessage content.
type GraphInterrupt struct {
	Interrupt Interrupt
}

func (e *GraphInterrupt) Error() string {
	return fmt.Sprintf("graph interrupt: %s", e.Interrupt.Kind)
}
