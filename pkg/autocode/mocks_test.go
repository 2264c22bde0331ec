package autocode

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

const addSource = "package main\n\nfunc Add(a int, b int) int {\n\treturn a + b\n}\n"

const brokenAdd = "package main\n\nfunc Add(a int, b int) int {\n\treturn a +\n}\n"

// fakeAgent replays replies in order, repeating the last one. errs[i], when
// non-nil, is returned instead of replies[i].
type fakeAgent struct {
	mu      sync.Mutex
	replies []string
	errs    []error

	generateCalls int
	repairCalls   int
	contexts      []GenerationContext
	previous      []string
	feedbacks     []Feedback
}

func newFakeAgent(replies ...string) *fakeAgent {
	return &fakeAgent{replies: replies}
}

func (f *fakeAgent) Name() string { return "fake" }

func (f *fakeAgent) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	return f.next(gc)
}

func (f *fakeAgent) Repair(ctx context.Context, gc GenerationContext, previous string, fb Feedback) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repairCalls++
	f.previous = append(f.previous, previous)
	f.feedbacks = append(f.feedbacks, fb)
	return f.next(gc)
}

func (f *fakeAgent) next(gc GenerationContext) (string, error) {
	i := len(f.contexts)
	f.contexts = append(f.contexts, gc)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], nil
}

func (f *fakeAgent) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls + f.repairCalls
}

// fakeReviewer replays outcomes and retry answers in order.
type fakeReviewer struct {
	outcomes []ReviewOutcome
	retries  []bool
	reviewed []string
	reasons  []string
}

func (r *fakeReviewer) Review(ctx context.Context, name, source string) (ReviewOutcome, error) {
	r.reviewed = append(r.reviewed, source)
	if len(r.outcomes) == 0 {
		return ReviewOutcome{Verdict: Accept, Source: source}, nil
	}
	out := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	if out.Source == "" {
		out.Source = source
	}
	return out, nil
}

func (r *fakeReviewer) ConfirmRetry(ctx context.Context, reason string) (bool, error) {
	r.reasons = append(r.reasons, reason)
	if len(r.retries) == 0 {
		return false, nil
	}
	ok := r.retries[0]
	r.retries = r.retries[1:]
	return ok, nil
}

// testConfig returns defaults rooted in a fresh temp dir.
func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workspace.Root = t.TempDir()
	return cfg
}

func newTestAssistant(t *testing.T, cfg *Config, opts ...AssistantOption) *Assistant {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	a, err := New(cfg, append([]AssistantOption{UseOutput(io.Discard)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// addOpts describes Add(a int, b int) int.
func addOpts(extra ...Option) []Option {
	opts := []Option{
		WithName("Add"),
		WithArgs(Var("a", "int", "first operand"), Var("b", "int", "second operand")),
		WithReturnType("int"),
	}
	return append(opts, extra...)
}
