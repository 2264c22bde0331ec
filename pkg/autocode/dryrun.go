package autocode

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ReturnValue is a dry-run stub that ignores its arguments and returns v.
func ReturnValue(v any) Stub {
	return func([]any, map[string]any) (any, error) {
		return v, nil
	}
}

// ReturnValueVerbose is ReturnValue that first prints the call to w
// (stdout when w is nil).
func ReturnValueVerbose(v any, w io.Writer) Stub {
	return func(args []any, kwargs map[string]any) (any, error) {
		fmt.Fprintf(orStdout(w), "[autocode] dry run: args=%s kwargs=%s -> %v\n",
			formatArgs(args), formatKwargs(kwargs), v)
		return v, nil
	}
}

// PrintAndFail is a dry-run stub that prints its arguments to stdout and
// returns a *DryRunError.
func PrintAndFail(args []any, kwargs map[string]any) (any, error) {
	return PrintAndFailTo(os.Stdout)(args, kwargs)
}

// PrintAndFailTo is PrintAndFail writing to w.
func PrintAndFailTo(w io.Writer) Stub {
	return func(args []any, kwargs map[string]any) (any, error) {
		parts := make([]string, 0, len(args)+len(kwargs))
		for _, a := range args {
			parts = append(parts, fmt.Sprint(a))
		}
		for _, k := range sortedKeys(kwargs) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, kwargs[k]))
		}
		fmt.Fprintln(orStdout(w), strings.Join(parts, " "))
		return nil, &DryRunError{Args: args, Kwargs: kwargs}
	}
}

func orStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%#v", a)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatKwargs(kwargs map[string]any) string {
	parts := make([]string, 0, len(kwargs))
	for _, k := range sortedKeys(kwargs) {
		parts = append(parts, fmt.Sprintf("%s: %#v", k, kwargs[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
