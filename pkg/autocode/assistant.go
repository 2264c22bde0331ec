package autocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"autocode/internal/compiler"
	"autocode/internal/config"
	"autocode/internal/history"
	"autocode/internal/identity"
	"autocode/internal/logging"
	"autocode/internal/review"
	"autocode/internal/workspace"

	"github.com/google/uuid"
)

// Config is the assistant configuration.
type Config = config.Config

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config { return config.DefaultConfig() }

// LoadConfig reads .autocode.yaml from root, applying environment overrides.
func LoadConfig(root string) (*Config, error) { return config.LoadWorkspace(root) }

// Reviewer is the human in the loop of interactive mode.
type Reviewer interface {
	// Review shows source and returns the verdict, possibly with edited
	// source or a rejection comment.
	Review(ctx context.Context, name, source string) (ReviewOutcome, error)
	// ConfirmRetry asks whether to try again after a failed attempt.
	ConfirmRetry(ctx context.Context, reason string) (bool, error)
}

type (
	ReviewOutcome = review.Outcome
	Verdict       = review.Verdict
)

const (
	Accept = review.Accept
	Reject = review.Reject
)

// AssistantOption customizes New.
type AssistantOption func(*Assistant)

// UseAgent replaces the built-in agent.
func UseAgent(a Agent) AssistantOption {
	return func(as *Assistant) { as.agent = a }
}

// UseReviewer replaces the terminal reviewer.
func UseReviewer(r Reviewer) AssistantOption {
	return func(as *Assistant) { as.reviewer = r }
}

// UseOutput sets where verbose progress is printed (stderr by default).
func UseOutput(w io.Writer) AssistantOption {
	return func(as *Assistant) { as.out = w }
}

// UseDryRunStub sets the stub for dry runs of calls that do not pass their
// own with WithDryRunStub.
func UseDryRunStub(stub Stub) AssistantOption {
	return func(as *Assistant) { as.dryRunStub = stub }
}

// UseAllowedImports replaces the import allow-list for generated code.
func UseAllowedImports(pkgs ...string) AssistantOption {
	return func(as *Assistant) {
		as.allowed = make(map[string]bool, len(pkgs))
		for _, p := range pkgs {
			as.allowed[p] = true
		}
	}
}

// Assistant generates, caches and loads functions. Its configuration is
// fixed at New; an Assistant may be shared between goroutines, though
// concurrent generations of the same key race (last write wins).
type Assistant struct {
	cfg      Config
	root     string
	ws       *workspace.Workspace
	compiler *compiler.Compiler
	agent    Agent
	reviewer Reviewer
	revOnce  sync.Once
	out      io.Writer
	allowed  map[string]bool
	history  *history.Store

	dryRunStub Stub
}

// New creates an assistant. A nil cfg uses the defaults with environment
// overrides applied.
func New(cfg *Config, opts ...AssistantOption) (*Assistant, error) {
	if cfg == nil {
		cfg = config.FromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return nil, configErr("config", err)
	}

	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return nil, configErr("workspace", err)
	}

	a := &Assistant{cfg: *cfg, root: root, out: os.Stderr}
	a.cfg.Workspace.Root = root
	for _, opt := range opts {
		opt(a)
	}

	a.ws = workspace.New(a.cfg.CachePath())
	a.compiler = compiler.New(compiler.Options{Stdout: os.Stdout, Stderr: os.Stderr, Allowed: a.allowed})
	if a.agent == nil {
		a.agent = newLazyAgent(a.cfg.LLM)
	}
	if a.cfg.History.Enabled {
		store, err := history.Open(a.cfg.HistoryPath())
		if err != nil {
			return nil, configErr("history", err)
		}
		a.history = store
	}

	logging.AssistantDebug("assistant ready: root=%s cache=%s agent=%s", root, a.ws.Root(), agentName(a.agent))
	return a, nil
}

// Close releases the history ledger.
func (a *Assistant) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// Config returns a copy of the assistant's configuration.
func (a *Assistant) Config() Config { return a.cfg }

// Workspace returns the cache directory.
func (a *Assistant) Workspace() string { return a.ws.Root() }

// Autocode returns a function matching description. Without WithID or
// WithName the result is not cached. The caller's file becomes the
// location unless WithLocation is given.
func (a *Assistant) Autocode(ctx context.Context, description string, opts ...Option) (Artifact, error) {
	_, file, _, _ := runtime.Caller(1)
	return a.autocode(ctx, description, identity.Location(a.root, file), opts)
}

func (a *Assistant) autocode(ctx context.Context, description, location string, opts []Option) (Artifact, error) {
	o := &callOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.location == "" {
		o.location = location
	}
	s := o.resolve(a.cfg.Generation)
	gc := o.context(description)

	if s.dryRun {
		stub := o.dryRunStub
		if stub == nil {
			stub = a.dryRunStub
		}
		if stub == nil {
			return nil, ErrNoDryRunStub
		}
		a.progress(s, "dry run: %q", description)
		return &DryRunFunc{Stub: stub, Description: description}, nil
	}

	if o.override != "" {
		imported, err := a.loadOverride(o.override, gc, o.funcType)
		if err == nil {
			a.progress(s, "using override %s", o.override)
			return imported, nil
		}
		logging.AssistantWarn("override %q unusable, generating instead: %v", o.override, err)
	}

	key, err := identity.Resolve(gc.ID, gc.Location, gc.Name)
	if err != nil {
		return nil, configErr("identity", err)
	}
	sig := gc.signature()
	sig.FuncType = o.funcType

	if key.Cacheable() && !s.regenerate {
		cached, err := a.loadCached(key, gc, sig)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			a.progress(s, "loaded %s from %s", key, cached.Path)
			return cached, nil
		}
	}

	agent := a.agent
	if o.agent != nil {
		agent = o.agent
	}
	prog, final, err := a.generate(ctx, gc, key, sig, s, agent)
	if err != nil {
		return nil, err
	}

	fn := &CompiledFunc{
		invoker:  invoker{name: prog.Name, fn: prog.Func, layout: layoutOf(gc)},
		source:   prog.Source,
		Context:  final,
		Attempts: len(final.Feedbacks) + 1,
	}
	if key.Cacheable() {
		path, err := a.ws.Store(key, prog.Source, &workspace.Meta{
			Name:        prog.Name,
			Description: description,
			Signature:   prog.Decl,
			Agent:       agentName(agent),
			Attempts:    fn.Attempts,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, configErr("cache", err)
		}
		fn.Path = path
		a.progress(s, "saved %s to %s", key, path)
	}
	return fn, nil
}

// loadCached returns nil when there is no usable entry. An entry that no
// longer compiles is treated as a miss and will be overwritten.
func (a *Assistant) loadCached(key identity.Key, gc GenerationContext, sig compiler.Signature) (*CachedFunc, error) {
	entry, ok, err := a.ws.Lookup(key)
	if err != nil {
		return nil, configErr("cache", err)
	}
	if !ok {
		return nil, nil
	}
	prog, err := a.compiler.Compile(entry.Source, sig)
	if err != nil {
		logging.AssistantWarn("cached %s does not compile, regenerating: %v", key, err)
		return nil, nil
	}
	return &CachedFunc{
		invoker: invoker{name: prog.Name, fn: prog.Func, layout: layoutOf(gc)},
		source:  entry.Source,
		Key:     key.String(),
		Path:    entry.Path,
	}, nil
}

// generate runs the attempt loop. It returns the compiled program and the
// context carrying the feedback of every failed attempt.
func (a *Assistant) generate(ctx context.Context, gc GenerationContext, key identity.Key, sig compiler.Signature, s settings, agent Agent) (*compiler.Program, GenerationContext, error) {
	timer := logging.StartTimer(logging.CategoryAssistant, "generate")
	defer timer.Stop()

	session := uuid.NewString()
	log := logging.Get(logging.CategoryAssistant).With("key", key.String(), "session", session)
	name := gc.Name
	if name == "" {
		name = key.String()
	}
	var previous string

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			a.record(ctx, session, key, name, agent, attempt, history.OutcomeCancelled, err.Error(), "", 0)
			return nil, gc, err
		}
		a.progress(s, "generating %s (attempt %d/%d)", name, attempt, s.maxAttempts)

		start := time.Now()
		var (
			src string
			err error
		)
		if attempt > 1 && previous != "" {
			src, err = agent.Repair(ctx, gc, previous, gc.Feedbacks[len(gc.Feedbacks)-1])
		} else {
			src, err = agent.Generate(ctx, gc)
		}
		elapsed := time.Since(start)

		var fb Feedback
		switch {
		case err != nil:
			var cerr *ConfigurationError
			if errors.As(err, &cerr) {
				return nil, gc, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				a.record(ctx, session, key, name, agent, attempt, history.OutcomeCancelled, err.Error(), "", elapsed)
				return nil, gc, ctxErr
			}
			fb = Feedback{Kind: FeedbackAgentError, Attempt: attempt, PreviousSource: previous, Message: err.Error()}
			a.record(ctx, session, key, name, agent, attempt, history.OutcomeAgentError, err.Error(), "", elapsed)

		default:
			if s.verbose {
				a.progress(s, "generated code:\n%s", src)
			}
			if s.interactive {
				out, rerr := a.review(ctx, name, src)
				if rerr != nil {
					if errors.Is(rerr, review.ErrAborted) {
						a.record(ctx, session, key, name, agent, attempt, history.OutcomeCancelled, "aborted in review", src, elapsed)
						return nil, gc, fmt.Errorf("%w: %w", ErrGaveUp, &GenerationFailedError{Key: key.String(), Attempts: gc.Feedbacks})
					}
					return nil, gc, rerr
				}
				if out.Source != "" {
					src = out.Source
				}
				if out.Verdict == Reject {
					previous = src
					fb = Feedback{Kind: FeedbackHuman, Attempt: attempt, PreviousSource: src, Message: "rejected by reviewer", Comment: out.Comment}
					a.record(ctx, session, key, name, agent, attempt, history.OutcomeRejected, out.Comment, src, elapsed)
					break
				}
			}

			prog, cerr := a.compiler.Compile(src, sig)
			if cerr == nil {
				a.record(ctx, session, key, name, agent, attempt, history.OutcomeSuccess, "", src, elapsed)
				log.Info("generated %s in %d attempt(s)", name, attempt)
				return prog, gc, nil
			}
			previous = src
			fb = Feedback{Kind: FeedbackCompileError, Attempt: attempt, PreviousSource: src, Message: cerr.Error()}
			var ce *CompileError
			if errors.As(cerr, &ce) {
				fb.Detail = string(ce.Phase)
			}
			a.record(ctx, session, key, name, agent, attempt, history.OutcomeCompileError, cerr.Error(), src, elapsed)
		}

		gc = gc.withFeedback(fb)
		log.Warn("%s: %s", name, fb)
		a.progress(s, "%s", fb)

		if s.interactive && attempt < s.maxAttempts {
			again, err := a.reviewerOrDefault().ConfirmRetry(ctx, fb.String())
			if err != nil && !errors.Is(err, review.ErrAborted) {
				return nil, gc, err
			}
			if !again || err != nil {
				return nil, gc, fmt.Errorf("%w: %w", ErrGaveUp, &GenerationFailedError{Key: key.String(), Attempts: gc.Feedbacks})
			}
		}
	}

	return nil, gc, &GenerationFailedError{Key: key.String(), Attempts: gc.Feedbacks}
}

func (a *Assistant) review(ctx context.Context, name, src string) (ReviewOutcome, error) {
	timer := logging.StartTimer(logging.CategoryReview, "Review")
	defer timer.Stop()
	out, err := a.reviewerOrDefault().Review(ctx, name, src)
	if err == nil {
		logging.ReviewDebug("%s: %s (edited=%v)", name, out.Verdict, out.Edited)
	}
	return out, err
}

func (a *Assistant) reviewerOrDefault() Reviewer {
	a.revOnce.Do(func() {
		if a.reviewer == nil {
			a.reviewer = review.Stdio(review.NewEditor(a.cfg.Review.Editor))
		}
	})
	return a.reviewer
}

func (a *Assistant) record(ctx context.Context, session string, key identity.Key, name string, agent Agent, attempt int, outcome, msg, src string, elapsed time.Duration) {
	if a.history == nil {
		return
	}
	err := a.history.Record(context.WithoutCancel(ctx), &history.Attempt{
		Session:    session,
		Key:        key.String(),
		Name:       name,
		Attempt:    attempt,
		Outcome:    outcome,
		Message:    msg,
		Source:     src,
		Agent:      agentName(agent),
		DurationMs: elapsed.Milliseconds(),
	})
	if err != nil {
		logging.HistoryWarn("failed to record attempt: %v", err)
	}
}

// progress prints verbose output and mirrors it to the log.
func (a *Assistant) progress(s settings, format string, args ...any) {
	logging.AssistantDebug(format, args...)
	if s.verbose {
		fmt.Fprintf(a.out, "[autocode] "+format+"\n", args...)
	}
}

type (
	HistoryAttempt = history.Attempt
	HistoryFilter  = history.Filter
)

// History lists recorded attempts. It fails when the ledger is disabled.
func (a *Assistant) History(ctx context.Context, f HistoryFilter) ([]HistoryAttempt, error) {
	if a.history == nil {
		return nil, configErr("history", errors.New("history is disabled"))
	}
	return a.history.List(ctx, f)
}

var _ Reviewer = (*review.Terminal)(nil)
