package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"autocode/internal/logging"
)

// Editor opens source in an external editor command and returns the result.
type Editor struct {
	// Command may carry arguments, e.g. "code --wait".
	Command string
}

// NewEditor returns an editor for command, or nil when command is empty.
func NewEditor(command string) *Editor {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	return &Editor{Command: command}
}

// Edit writes source to a temporary .go file, runs the editor on it and
// reads it back. edited is false when the editor exits with an error; the
// original source is returned in that case.
func (e *Editor) Edit(ctx context.Context, source string) (string, bool, error) {
	fields := strings.Fields(e.Command)
	if len(fields) == 0 {
		return source, false, fmt.Errorf("no editor command configured")
	}

	tmp, err := os.CreateTemp("", "autocode-*.go")
	if err != nil {
		return source, false, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(source); err != nil {
		tmp.Close()
		return source, false, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return source, false, fmt.Errorf("failed to write temp file: %w", err)
	}

	args := append(fields[1:], path)
	cmd := exec.CommandContext(ctx, fields[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logging.ReviewDebug("running editor: %s %s", fields[0], strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logging.ReviewDebug("editor exited with %d, keeping original", exitErr.ExitCode())
			return source, false, nil
		}
		return source, false, fmt.Errorf("failed to run editor %q: %w", fields[0], err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return source, false, fmt.Errorf("failed to read edited file: %w", err)
	}
	return string(data), true, nil
}
