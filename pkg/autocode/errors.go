package autocode

import (
	"errors"
	"fmt"
	"strings"

	"autocode/internal/compiler"
)

// ConfigurationError reports a setup problem: a missing API key, an unsafe
// identity, an unwritable cache. It is never retried.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("autocode: configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(op string, err error) error {
	return &ConfigurationError{Op: op, Err: err}
}

// AgentError wraps a provider failure. The assistant turns it into
// feedback and retries within the attempt budget.
type AgentError struct {
	Agent string
	Err   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("autocode: agent %s: %v", e.Agent, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// CompileError is a syntax, import, signature or interpreter failure of
// generated source.
type CompileError = compiler.Error

// GenerationFailedError is returned when every attempt failed.
type GenerationFailedError struct {
	Key      string
	Attempts []Feedback
}

func (e *GenerationFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "autocode: generation of %s failed after %d attempts", e.Key, len(e.Attempts))
	if n := len(e.Attempts); n > 0 {
		fmt.Fprintf(&b, ": last %s", e.Attempts[n-1])
	}
	return b.String()
}

// ErrGaveUp is returned when the reviewer declines to retry.
var ErrGaveUp = errors.New("autocode: user gave up code generation")

// ErrNoDryRunStub is returned when dry run is on and no stub was given.
var ErrNoDryRunStub = errors.New("autocode: dry run requires a stub")

// ArgumentError reports arguments that cannot be bound to the generated
// function's parameters.
type ArgumentError struct {
	Func string
	Msg  string
}

func (e *ArgumentError) Error() string {
	if e.Func == "" {
		return "autocode: " + e.Msg
	}
	return fmt.Sprintf("autocode: %s: %s", e.Func, e.Msg)
}

func argErr(fn, format string, args ...any) error {
	return &ArgumentError{Func: fn, Msg: fmt.Sprintf(format, args...)}
}

// DryRunError is returned by the PrintAndFail stubs.
type DryRunError struct {
	Description string
	Args        []any
	Kwargs      map[string]any
}

func (e *DryRunError) Error() string {
	return fmt.Sprintf("autocode: dry run: %q is not implemented (args=%v kwargs=%v)",
		e.Description, e.Args, e.Kwargs)
}
