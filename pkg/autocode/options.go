package autocode

import (
	"reflect"

	"autocode/internal/config"
)

// Option configures one Autocode call. Options beat the assistant's
// configuration, which beats the built-in defaults.
type Option func(*callOptions)

type callOptions struct {
	args            []Variable
	kwargs          []Variable
	returnType      string
	useExtraArgs    bool
	extraArgsType   string
	useExtraKwargs  bool
	extraKwargsType string

	id        string
	name      string
	location  string
	docstring string

	override    string
	dryRun      *bool
	dryRunStub  Stub
	interactive *bool
	verbose     *bool
	regenerate  *bool
	maxAttempts int
	agent       Agent

	funcType reflect.Type
}

// WithArgs declares the positional parameters, in order.
func WithArgs(vars ...Variable) Option {
	return func(o *callOptions) { o.args = append(o.args, vars...) }
}

// WithKwargs declares the named parameters, in order. They follow the
// positional ones in the generated function's parameter list.
func WithKwargs(vars ...Variable) Option {
	return func(o *callOptions) { o.kwargs = append(o.kwargs, vars...) }
}

// WithReturnType sets the Go result type, e.g. "int" or "[]string".
func WithReturnType(typ string) Option {
	return func(o *callOptions) { o.returnType = typ }
}

// WithExtraArgs lets the function accept extra positional arguments as a
// final "rest ...typ" parameter. An empty typ means any.
func WithExtraArgs(typ string) Option {
	return func(o *callOptions) {
		o.useExtraArgs = true
		o.extraArgsType = typ
	}
}

// WithExtraKwargs lets the function accept unknown keyword arguments as an
// "extra map[string]typ" parameter. An empty typ means any.
func WithExtraKwargs(typ string) Option {
	return func(o *callOptions) {
		o.useExtraKwargs = true
		o.extraKwargsType = typ
	}
}

// WithID caches the function under an explicit id.
func WithID(id string) Option {
	return func(o *callOptions) { o.id = id }
}

// WithName names the function. Together with the caller's file it forms the
// cache identity when no id is given.
func WithName(name string) Option {
	return func(o *callOptions) { o.name = name }
}

// WithLocation overrides the caller location, a workspace-relative path.
func WithLocation(location string) Option {
	return func(o *callOptions) { o.location = location }
}

// WithDocstring adds documentation for the agent.
func WithDocstring(doc string) Option {
	return func(o *callOptions) { o.docstring = doc }
}

// WithOverride uses an existing function instead of generating one: either
// a name passed to Register, or "path/to/file.go:FuncName".
func WithOverride(ref string) Option {
	return func(o *callOptions) { o.override = ref }
}

// WithDryRun turns dry-run mode on or off for this call.
func WithDryRun(on bool) Option {
	return func(o *callOptions) { o.dryRun = &on }
}

// WithDryRunStub sets the stub used when dry run is on.
func WithDryRunStub(stub Stub) Option {
	return func(o *callOptions) { o.dryRunStub = stub }
}

// WithInteractive turns interactive review on or off for this call.
func WithInteractive(on bool) Option {
	return func(o *callOptions) { o.interactive = &on }
}

// WithVerbose turns progress output on or off for this call.
func WithVerbose(on bool) Option {
	return func(o *callOptions) { o.verbose = &on }
}

// WithRegenerate skips the cache lookup; the fresh result is still stored.
func WithRegenerate(on bool) Option {
	return func(o *callOptions) { o.regenerate = &on }
}

// WithMaxAttempts sets the attempt budget for this call.
func WithMaxAttempts(n int) Option {
	return func(o *callOptions) { o.maxAttempts = n }
}

// WithAgent uses a specific agent for this call.
func WithAgent(a Agent) Option {
	return func(o *callOptions) { o.agent = a }
}

// withFuncType requires the compiled function to convert to t.
func withFuncType(t reflect.Type) Option {
	return func(o *callOptions) { o.funcType = t }
}

// settings are the effective flags of one call.
type settings struct {
	dryRun      bool
	interactive bool
	verbose     bool
	regenerate  bool
	maxAttempts int
}

func (o *callOptions) resolve(gen config.GenerationConfig) settings {
	s := settings{
		dryRun:      gen.DryRun,
		interactive: gen.Interactive,
		verbose:     gen.Verbose,
		regenerate:  gen.Regenerate,
		maxAttempts: gen.MaxAttempts,
	}
	if o.dryRun != nil {
		s.dryRun = *o.dryRun
	}
	if o.interactive != nil {
		s.interactive = *o.interactive
	}
	if o.verbose != nil {
		s.verbose = *o.verbose
	}
	if o.regenerate != nil {
		s.regenerate = *o.regenerate
	}
	if o.maxAttempts > 0 {
		s.maxAttempts = o.maxAttempts
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	return s
}

func (o *callOptions) context(description string) GenerationContext {
	return GenerationContext{
		Description:     description,
		Docstring:       o.docstring,
		Name:            o.name,
		Args:            o.args,
		Kwargs:          o.kwargs,
		ReturnType:      o.returnType,
		UseExtraArgs:    o.useExtraArgs,
		ExtraArgsType:   o.extraArgsType,
		UseExtraKwargs:  o.useExtraKwargs,
		ExtraKwargsType: o.extraKwargsType,
		ID:              o.id,
		Location:        o.location,
	}
}
