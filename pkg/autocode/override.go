package autocode

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]reflect.Value{}
)

// Register makes fn available to WithOverride(ref). fn must be a function;
// it is called with the same argument binding as generated code.
func Register(ref string, fn any) error {
	if ref == "" {
		return fmt.Errorf("autocode: empty override name")
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("autocode: override %q: %T is not a function", ref, fn)
	}
	registryMu.Lock()
	registry[ref] = v
	registryMu.Unlock()
	return nil
}

// Unregister removes a registered override.
func Unregister(ref string) {
	registryMu.Lock()
	delete(registry, ref)
	registryMu.Unlock()
}

func lookupRegistered(ref string) (reflect.Value, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	v, ok := registry[ref]
	return v, ok
}

// loadOverride resolves ref to a registered function or to
// "path/to/file.go:FuncName", relative to the workspace root.
func (a *Assistant) loadOverride(ref string, gc GenerationContext, funcType reflect.Type) (*ImportedFunc, error) {
	if fn, ok := lookupRegistered(ref); ok {
		if funcType != nil && !fn.Type().ConvertibleTo(funcType) {
			return nil, fmt.Errorf("registered %s has type %s, want %s", ref, fn.Type(), funcType)
		}
		return &ImportedFunc{
			invoker: invoker{name: ref, fn: fn, layout: layoutOf(gc)},
			Ref:     ref,
		}, nil
	}

	i := strings.LastIndex(ref, ":")
	if i <= 0 || i == len(ref)-1 {
		return nil, fmt.Errorf("not registered and not of the form path.go:Func")
	}
	path, name := ref[:i], ref[i+1:]
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.root, filepath.FromSlash(path))
	}

	prog, err := a.compiler.LoadFile(path, name, funcType)
	if err != nil {
		return nil, err
	}
	return &ImportedFunc{
		invoker: invoker{name: prog.Name, fn: prog.Func, layout: layoutOf(gc)},
		Ref:     ref,
		Path:    path,
	}, nil
}
