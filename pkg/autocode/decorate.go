package autocode

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"runtime"
	"strings"

	"autocode/internal/identity"
	"autocode/internal/logging"
)

// Decorate replaces the placeholder fn with a generated implementation of
// the same type. The placeholder's name, parameters, result and doc comment
// (read from its source file when available) describe the function; its
// file and name form the cache identity.
//
//	// Add returns the sum of a and b.
//	func Add(a, b int) int { panic("generated") }
//
//	add, err := autocode.Decorate(nil, Add)
//
// A nil assistant uses Default.
func Decorate[F any](a *Assistant, fn F, opts ...Option) (F, error) {
	f, _, err := decorate(context.Background(), a, fn, opts)
	return f, err
}

// DecorateContext is Decorate with a context for the generation.
func DecorateContext[F any](ctx context.Context, a *Assistant, fn F, opts ...Option) (F, error) {
	f, _, err := decorate(ctx, a, fn, opts)
	return f, err
}

// DecorateBound is Decorate that also returns the artifact behind the
// typed function.
func DecorateBound[F any](ctx context.Context, a *Assistant, fn F, opts ...Option) (F, *BoundFunc, error) {
	return decorate(ctx, a, fn, opts)
}

func decorate[F any](ctx context.Context, a *Assistant, fn F, opts []Option) (F, *BoundFunc, error) {
	var zero F
	if a == nil {
		d, err := Default()
		if err != nil {
			return zero, nil, err
		}
		a = d
	}

	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return zero, nil, fmt.Errorf("autocode: Decorate needs a non-nil function, got %T", fn)
	}
	ph := describePlaceholder(fv)

	all := make([]Option, 0, len(opts)+5)
	all = append(all,
		WithName(ph.name),
		WithArgs(ph.params...),
		WithReturnType(ph.result),
		withFuncType(fv.Type()),
	)
	if ph.variadic {
		all = append(all, WithExtraArgs(ph.variadicType))
	}
	all = append(all, opts...)

	description := ph.doc
	if description == "" {
		description = "Implement " + ph.name + "."
	}

	art, err := a.autocode(ctx, description, identity.Location(a.root, ph.file), all)
	if err != nil {
		return zero, nil, err
	}
	typed, err := Func[F](art)
	if err != nil {
		return zero, nil, err
	}
	bound := &BoundFunc{Name: ph.name, Inner: art, typed: reflect.ValueOf(typed)}
	return typed, bound, nil
}

// placeholder is what Decorate learns about the function it replaces.
type placeholder struct {
	name         string
	file         string
	doc          string
	params       []Variable
	variadic     bool
	variadicType string
	result       string
}

// describePlaceholder reads the declaration of fv from its source file and
// falls back to reflection (p0, p1, ...) when the file is unavailable.
func describePlaceholder(fv reflect.Value) placeholder {
	ph := placeholder{}
	pc := fv.Pointer()
	if rf := runtime.FuncForPC(pc); rf != nil {
		full := rf.Name()
		ph.name = full[strings.LastIndex(full, ".")+1:]
		ph.file, _ = rf.FileLine(rf.Entry())
	}

	if ph.file != "" {
		if decl := findDecl(ph.file, ph.name); decl != nil {
			fromDecl(&ph, decl)
			return ph
		}
		logging.AssistantDebug("no declaration of %s in %s, using reflection", ph.name, ph.file)
	}
	fromType(&ph, fv.Type())
	return ph
}

func findDecl(file, name string) *ast.FuncDecl {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file, nil, parser.ParseComments)
	if err != nil {
		return nil
	}
	for _, d := range f.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Recv == nil && fd.Name.Name == name {
			return fd
		}
	}
	return nil
}

func fromDecl(ph *placeholder, decl *ast.FuncDecl) {
	ph.doc = strings.TrimSpace(decl.Doc.Text())

	i := 0
	for _, field := range decl.Type.Params.List {
		typ := field.Type
		variadic := false
		if e, ok := typ.(*ast.Ellipsis); ok {
			variadic = true
			typ = e.Elt
		}
		names := field.Names
		if len(names) == 0 {
			names = []*ast.Ident{ast.NewIdent(fmt.Sprintf("p%d", i))}
		}
		for _, n := range names {
			i++
			if variadic {
				ph.variadic = true
				ph.variadicType = types.ExprString(typ)
				continue
			}
			ph.params = append(ph.params, Variable{Name: n.Name, Type: types.ExprString(typ)})
		}
	}

	if decl.Type.Results != nil {
		for _, r := range decl.Type.Results.List {
			if s := types.ExprString(r.Type); s != "error" {
				ph.result = s
				break
			}
		}
	}
}

func fromType(ph *placeholder, t reflect.Type) {
	for i := 0; i < t.NumIn(); i++ {
		pt := t.In(i)
		if t.IsVariadic() && i == t.NumIn()-1 {
			ph.variadic = true
			ph.variadicType = pt.Elem().String()
			continue
		}
		ph.params = append(ph.params, Variable{Name: fmt.Sprintf("p%d", i), Type: pt.String()})
	}
	for i := 0; i < t.NumOut(); i++ {
		if t.Out(i) != errorType {
			ph.result = t.Out(i).String()
			break
		}
	}
}
