// Package review implements the interactive accept/reject/edit step shown
// to a human before generated code is compiled.
package review

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"autocode/internal/logging"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

// Verdict is the reviewer's decision on a piece of generated code.
type Verdict int

const (
	Accept Verdict = iota
	Reject
)

func (v Verdict) String() string {
	if v == Accept {
		return "accept"
	}
	return "reject"
}

// Outcome is the result of one review.
type Outcome struct {
	Verdict Verdict
	// Source is the code to continue with; it differs from the reviewed
	// source when the human edited it.
	Source  string
	Edited  bool
	Comment string
}

// ErrAborted is returned when the human aborts a prompt (ctrl+c).
var ErrAborted = huh.ErrUserAborted

const (
	choiceAccept = "y"
	choiceReject = "n"
	choiceEdit   = "e"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// Terminal reviews code on a terminal. When the input is not a TTY it falls
// back to huh's accessible line prompts, which is also what tests drive.
type Terminal struct {
	in         io.Reader
	out        io.Writer
	editor     *Editor
	accessible bool
	renderer   *glamour.TermRenderer
}

// NewTerminal creates a reviewer reading from in and writing to out. editor
// may be nil, in which case the edit choice only prints a notice.
func NewTerminal(in io.Reader, out io.Writer, editor *Editor) *Terminal {
	t := &Terminal{in: in, out: out, editor: editor, accessible: !isTTY(in)}

	var err error
	if t.accessible {
		t.in = &lineReader{r: bufio.NewReader(in)}
		t.renderer, err = glamour.NewTermRenderer(glamour.WithStandardStyle("notty"), glamour.WithWordWrap(0))
	} else {
		t.renderer, err = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	}
	if err != nil {
		logging.ReviewDebug("glamour renderer unavailable: %v", err)
		t.renderer = nil
	}
	return t
}

// Stdio returns a reviewer bound to the process terminal.
func Stdio(editor *Editor) *Terminal {
	return NewTerminal(os.Stdin, os.Stderr, editor)
}

// Review shows source and asks whether to accept, reject or edit it. Edits
// loop back to the same question with the edited code.
func (t *Terminal) Review(ctx context.Context, name, source string) (Outcome, error) {
	edited := false
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		title := "[autocode] Generated Code"
		question := "Accept generated code?"
		if edited {
			title = "[autocode] Edited Code"
			question = "Accept code?"
		}
		if name != "" {
			title += ": " + name
		}
		t.show(title, source)

		choice := choiceAccept
		sel := huh.NewSelect[string]().
			Title(question).
			Options(
				huh.NewOption("Accept", choiceAccept),
				huh.NewOption("Reject with feedback", choiceReject),
				huh.NewOption("Edit", choiceEdit),
			).
			Value(&choice)
		if err := t.run(ctx, sel); err != nil {
			return Outcome{}, err
		}

		switch choice {
		case choiceAccept:
			logging.ReviewDebug("accepted %s (edited=%v)", name, edited)
			return Outcome{Verdict: Accept, Source: source, Edited: edited}, nil

		case choiceEdit:
			if t.editor == nil {
				fmt.Fprintln(t.out, noteStyle.Render("[autocode] No editor configured. Cannot edit code."))
				continue
			}
			fixed, ok, err := t.editor.Edit(ctx, source)
			if err != nil {
				fmt.Fprintln(t.out, noteStyle.Render("[autocode] "+err.Error()))
				continue
			}
			if ok {
				source = fixed
				edited = true
			}

		default:
			var comment string
			text := huh.NewText().
				Title("Enter feedback on the code issues").
				Value(&comment)
			if err := t.run(ctx, text); err != nil {
				return Outcome{}, err
			}
			logging.ReviewDebug("rejected %s", name)
			return Outcome{
				Verdict: Reject,
				Source:  source,
				Edited:  edited,
				Comment: strings.TrimSpace(comment),
			}, nil
		}
	}
}

// ConfirmRetry asks whether to regenerate after a failed attempt.
func (t *Terminal) ConfirmRetry(ctx context.Context, reason string) (bool, error) {
	if reason != "" {
		fmt.Fprintln(t.out, noteStyle.Render("[autocode] "+reason))
	}
	retry := false
	confirm := huh.NewConfirm().
		Title("Regenerate code?").
		Affirmative("Yes").
		Negative("No").
		Value(&retry)
	if err := t.run(ctx, confirm); err != nil {
		return false, err
	}
	return retry, nil
}

func (t *Terminal) run(ctx context.Context, field huh.Field) error {
	var err error
	if t.accessible {
		err = field.RunAccessible(t.out, t.in)
	} else {
		err = huh.NewForm(huh.NewGroup(field)).
			WithInput(t.in).
			WithOutput(t.out).
			RunWithContext(ctx)
	}
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}

func (t *Terminal) show(title, source string) {
	body := source
	if t.renderer != nil {
		if out, err := t.renderer.Render("```go\n" + strings.TrimRight(source, "\n") + "\n```"); err == nil {
			body = strings.Trim(out, "\n")
		}
	}
	fmt.Fprintln(t.out, titleStyle.Render(title))
	if t.accessible {
		fmt.Fprintln(t.out, body)
		return
	}
	fmt.Fprintln(t.out, panelStyle.Render(body))
}

func isTTY(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// lineReader hands out at most one line per Read. huh's accessible prompts
// wrap the reader in a fresh bufio.Scanner per question, which would
// otherwise swallow the answers to later questions.
type lineReader struct {
	r       *bufio.Reader
	pending []byte
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		line, err := l.r.ReadBytes('\n')
		if len(line) == 0 {
			return 0, err
		}
		l.pending = line
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}
