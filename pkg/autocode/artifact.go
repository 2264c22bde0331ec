package autocode

import (
	"errors"
	"fmt"
	"reflect"
)

// Kind identifies an Artifact variant.
type Kind int

const (
	KindCompiled Kind = iota // freshly generated and compiled
	KindCached               // loaded from the workspace cache
	KindImported             // override: registered host func or external file
	KindDryRun               // caller-supplied stub
	KindBound                // typed function produced by Decorate
)

func (k Kind) String() string {
	switch k {
	case KindCompiled:
		return "compiled"
	case KindCached:
		return "cached"
	case KindImported:
		return "imported"
	case KindDryRun:
		return "dry-run"
	case KindBound:
		return "bound"
	default:
		return "unknown"
	}
}

// Artifact is the callable result of Autocode. The set of variants is
// closed: *CompiledFunc, *CachedFunc, *ImportedFunc, *DryRunFunc and
// *BoundFunc.
type Artifact interface {
	Kind() Kind
	// Invoke calls the function. args fill positional then named parameters;
	// kwargs supply named parameters and extra keyword arguments.
	Invoke(args []any, kwargs map[string]any) (any, error)
	// Call is Invoke without keyword arguments.
	Call(args ...any) (any, error)
	// Source is the Go source behind the artifact, if any.
	Source() string

	// funcValue exposes the underlying func for typed wrappers.
	funcValue() (reflect.Value, bool)
}

// CompiledFunc is a function generated during this call.
type CompiledFunc struct {
	invoker
	source string
	// Context is the generation context, including the feedback history of
	// the attempts it took.
	Context GenerationContext
	// Path is where the source was cached; empty for uncacheable requests.
	Path     string
	Attempts int
}

func (f *CompiledFunc) Kind() Kind     { return KindCompiled }
func (f *CompiledFunc) Source() string { return f.source }
func (f *CompiledFunc) Invoke(args []any, kwargs map[string]any) (any, error) {
	return f.invoke(args, kwargs)
}
func (f *CompiledFunc) Call(args ...any) (any, error)    { return f.invoke(args, nil) }
func (f *CompiledFunc) funcValue() (reflect.Value, bool) { return f.fn, true }

// CachedFunc is a function loaded from the workspace cache.
type CachedFunc struct {
	invoker
	source string
	Key    string
	Path   string
}

func (f *CachedFunc) Kind() Kind     { return KindCached }
func (f *CachedFunc) Source() string { return f.source }
func (f *CachedFunc) Invoke(args []any, kwargs map[string]any) (any, error) {
	return f.invoke(args, kwargs)
}
func (f *CachedFunc) Call(args ...any) (any, error)    { return f.invoke(args, nil) }
func (f *CachedFunc) funcValue() (reflect.Value, bool) { return f.fn, true }

// ImportedFunc comes from the override escape hatch.
type ImportedFunc struct {
	invoker
	Ref string
	// Path is the external file for file references, empty for registered
	// host functions.
	Path string
}

func (f *ImportedFunc) Kind() Kind     { return KindImported }
func (f *ImportedFunc) Source() string { return "" }
func (f *ImportedFunc) Invoke(args []any, kwargs map[string]any) (any, error) {
	return f.invoke(args, kwargs)
}
func (f *ImportedFunc) Call(args ...any) (any, error)    { return f.invoke(args, nil) }
func (f *ImportedFunc) funcValue() (reflect.Value, bool) { return f.fn, true }

// Stub is a dry-run replacement for a generated function.
type Stub func(args []any, kwargs map[string]any) (any, error)

// DryRunFunc wraps a Stub. Nothing was generated or cached.
type DryRunFunc struct {
	Stub        Stub
	Description string
}

func (f *DryRunFunc) Kind() Kind     { return KindDryRun }
func (f *DryRunFunc) Source() string { return "" }
func (f *DryRunFunc) Invoke(args []any, kwargs map[string]any) (any, error) {
	res, err := f.Stub(args, kwargs)
	var de *DryRunError
	if errors.As(err, &de) && de.Description == "" {
		de.Description = f.Description
	}
	return res, err
}
func (f *DryRunFunc) Call(args ...any) (any, error)    { return f.Invoke(args, nil) }
func (f *DryRunFunc) funcValue() (reflect.Value, bool) { return reflect.Value{}, false }

// BoundFunc is the artifact behind a function returned by Decorate.
type BoundFunc struct {
	Name  string
	Inner Artifact
	typed reflect.Value
}

func (f *BoundFunc) Kind() Kind     { return KindBound }
func (f *BoundFunc) Source() string { return f.Inner.Source() }
func (f *BoundFunc) Invoke(args []any, kwargs map[string]any) (any, error) {
	return f.Inner.Invoke(args, kwargs)
}
func (f *BoundFunc) Call(args ...any) (any, error) { return f.Inner.Invoke(args, nil) }
func (f *BoundFunc) funcValue() (reflect.Value, bool) {
	if f.typed.IsValid() {
		return f.typed, true
	}
	return f.Inner.funcValue()
}

// Func converts an artifact into a typed function value. Artifacts backed by
// a function of a convertible type are converted directly; everything else
// (dry-run stubs, mismatched layouts) goes through Invoke. When F has no
// error result, an error from Invoke panics.
func Func[F any](a Artifact) (F, error) {
	var zero F
	ft := reflect.TypeOf((*F)(nil)).Elem()
	if ft.Kind() != reflect.Func {
		return zero, fmt.Errorf("autocode: Func type parameter must be a func type, got %s", ft)
	}
	if a == nil {
		return zero, fmt.Errorf("autocode: nil artifact")
	}

	if fv, ok := a.funcValue(); ok && fv.Type().ConvertibleTo(ft) {
		return fv.Convert(ft).Interface().(F), nil
	}

	fv := reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		args := make([]any, 0, len(in))
		for i, v := range in {
			if ft.IsVariadic() && i == len(in)-1 {
				for j := 0; j < v.Len(); j++ {
					args = append(args, v.Index(j).Interface())
				}
				continue
			}
			args = append(args, v.Interface())
		}
		res, err := a.Invoke(args, nil)
		return packResults(ft, res, err)
	})
	return fv.Interface().(F), nil
}
