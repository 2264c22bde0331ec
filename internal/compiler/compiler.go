// Package compiler turns generated Go source into an invocable function.
//
// Source is checked with go/ast first (syntax, import allow-list, the
// requested function and its parameter shape) and then evaluated with the
// Yaegi interpreter, so no toolchain, build directory or network access is
// needed at runtime.
package compiler

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"autocode/internal/logging"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Phase identifies which check rejected a source.
type Phase string

const (
	PhaseParse     Phase = "parse"
	PhaseImports   Phase = "imports"
	PhaseSignature Phase = "signature"
	PhaseEval      Phase = "eval"
)

// Error is a compile/validation failure. It carries the offending source so
// it can be fed back to the agent.
type Error struct {
	Phase   Phase
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compile %s: %s", e.Phase, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(phase Phase, source string, err error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &Error{Phase: phase, Source: source, Message: msg, Err: err}
}

// Param is one expected parameter. An empty Type is not checked.
type Param struct {
	Name string
	Type string
}

// Signature describes the function the source must define.
type Signature struct {
	// Name of the function; empty accepts the first top-level func.
	Name string
	// Params lists positional then named parameters in order.
	Params []Param
	// ExtraKwargs expects a trailing map[string]T parameter after Params.
	ExtraKwargs bool
	// ExtraArgs expects a final variadic parameter.
	ExtraArgs bool
	// Result is the expected first result type; empty is not checked.
	Result string
	// FuncType, when set, must be convertible from the compiled function.
	FuncType reflect.Type
}

// Program is a compiled function.
type Program struct {
	Name   string
	Source string
	Decl   string
	Func   reflect.Value
}

// Options tunes the interpreter.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Allowed overrides the import allow-list.
	Allowed map[string]bool
}

// Compiler validates and interprets generated source.
type Compiler struct {
	opts    Options
	allowed map[string]bool
}

// New creates a compiler with the given options.
func New(opts Options) *Compiler {
	allowed := opts.Allowed
	if allowed == nil {
		allowed = DefaultAllowedPackages()
	}
	return &Compiler{opts: opts, allowed: allowed}
}

// DefaultAllowedPackages is the import allow-list: pure computation packages
// only. os, os/exec, net, syscall, unsafe, plugin and friends are rejected.
func DefaultAllowedPackages() map[string]bool {
	return map[string]bool{
		"bufio": true, "bytes": true, "cmp": true, "context": true,
		"container/heap": true, "container/list": true, "container/ring": true,
		"crypto/md5": true, "crypto/sha1": true, "crypto/sha256": true, "crypto/sha512": true,
		"encoding/base64": true, "encoding/csv": true, "encoding/hex": true, "encoding/json": true,
		"errors": true, "fmt": true, "hash/crc32": true, "hash/fnv": true, "io": true,
		"maps": true, "math": true, "math/big": true, "math/bits": true, "math/rand": true,
		"path": true, "path/filepath": true, "regexp": true, "slices": true, "sort": true,
		"strconv": true, "strings": true, "text/template": true, "time": true,
		"unicode": true, "unicode/utf8": true,
	}
}

// Compile validates source against sig and evaluates it.
func (c *Compiler) Compile(source string, sig Signature) (*Program, error) {
	timer := logging.StartTimer(logging.CategoryCompiler, "Compile")
	defer timer.Stop()
	return c.compile(source, sig, enforceImports|enforceSignature)
}

// Verify compiles source without a signature: the import allow-list still
// applies but any parameter list is accepted. An empty name takes the first
// function.
func (c *Compiler) Verify(source, name string) (*Program, error) {
	return c.compile(source, Signature{Name: name}, enforceImports)
}

// LoadFile interprets a user-provided Go file and returns function name from
// it. The file is trusted, so the import allow-list does not apply.
func (c *Compiler) LoadFile(path, name string, funcType reflect.Type) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.compile(string(data), Signature{Name: name, FuncType: funcType}, 0)
}

type checks int

const (
	enforceImports checks = 1 << iota
	enforceSignature
)

func (c *Compiler) compile(source string, sig Signature, mode checks) (*Program, error) {
	fset, file, normalized, err := parseSource(source)
	if err != nil {
		return nil, fail(PhaseParse, source, err, "syntax error")
	}

	if mode&enforceImports != 0 {
		if err := c.checkImports(file); err != nil {
			return nil, fail(PhaseImports, source, nil, "%s", err.Error())
		}
	}

	decl := findFunc(file, sig.Name)
	if decl == nil {
		if sig.Name == "" {
			return nil, fail(PhaseSignature, source, nil, "no function found in the code")
		}
		return nil, fail(PhaseSignature, source, nil, "function '%s' not found in the code", sig.Name)
	}
	if err := checkShape(decl, sig); mode&enforceSignature != 0 && err != nil {
		return nil, fail(PhaseSignature, source, nil, "%s", err.Error())
	}

	name := decl.Name.Name
	if name != "main" {
		normalized = renameMain(fset, file, normalized)
	}
	normalized = forceMainPackage(fset, file, normalized)

	fn, err := c.eval(normalized, name)
	if err != nil {
		return nil, fail(PhaseEval, source, err, "interpreter rejected the code")
	}
	if fn.Kind() != reflect.Func {
		return nil, fail(PhaseEval, source, nil, "'%s' is not callable", name)
	}
	if sig.FuncType != nil && !fn.Type().ConvertibleTo(sig.FuncType) {
		return nil, fail(PhaseSignature, source, nil,
			"'%s' has type %s, want %s", name, fn.Type(), sig.FuncType)
	}

	logging.CompilerDebug("compiled %s (%d bytes)", name, len(source))
	return &Program{
		Name:   name,
		Source: source,
		Decl:   renderDecl(decl),
		Func:   fn,
	}, nil
}

func (c *Compiler) eval(source, name string) (fn reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.CompilerWarn("interpreter panic evaluating %s: %v", name, r)
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()

	i := interp.New(interp.Options{Stdout: c.opts.Stdout, Stderr: c.opts.Stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if _, err := i.Eval(source); err != nil {
		return reflect.Value{}, err
	}
	return i.Eval("main." + name)
}

// checkImports rejects anything outside the allow-list.
func (c *Compiler) checkImports(file *ast.File) error {
	var forbidden []string
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if !c.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(c.allowed))
	for pkg, ok := range c.allowed {
		if ok {
			allowed = append(allowed, pkg)
		}
	}
	sort.Strings(allowed)
	return fmt.Errorf("forbidden imports %v (allowed: %s)", forbidden, strings.Join(allowed, ", "))
}

// parseSource parses source, adding a package clause if it has none.
func parseSource(source string) (*token.FileSet, *ast.File, string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "generated.go", source, parser.ParseComments)
	if err == nil {
		return fset, file, source, nil
	}
	wrapped := "package main\n\n" + source
	wfset := token.NewFileSet()
	if wfile, werr := parser.ParseFile(wfset, "generated.go", wrapped, parser.ParseComments); werr == nil {
		return wfset, wfile, wrapped, nil
	}
	return nil, nil, "", err
}

// forceMainPackage rewrites the package clause so the function is reachable
// as main.<Name> inside the interpreter.
func forceMainPackage(fset *token.FileSet, file *ast.File, source string) string {
	if file.Name.Name == "main" {
		return source
	}
	start := fset.Position(file.Name.Pos()).Offset
	end := fset.Position(file.Name.End()).Offset
	return source[:start] + "main" + source[end:]
}

// renameMain renames a top-level func main so the interpreter treats the
// source as a library instead of a program. Must run before
// forceMainPackage, which shifts later offsets.
func renameMain(fset *token.FileSet, file *ast.File, source string) string {
	for i := len(file.Decls) - 1; i >= 0; i-- {
		fd, ok := file.Decls[i].(*ast.FuncDecl)
		if !ok || fd.Recv != nil || fd.Name.Name != "main" {
			continue
		}
		start := fset.Position(fd.Name.Pos()).Offset
		end := fset.Position(fd.Name.End()).Offset
		source = source[:start] + mainReplacement + source[end:]
	}
	return source
}

const mainReplacement = "_autocodeMain"

func findFunc(file *ast.File, name string) *ast.FuncDecl {
	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Recv != nil {
			continue
		}
		if name == "" && fd.Name.Name != "main" && fd.Name.Name != "init" {
			return fd
		}
		if fd.Name.Name == name {
			return fd
		}
	}
	return nil
}

type flatParam struct {
	name     string
	typ      ast.Expr
	variadic bool
}

func flattenParams(fl *ast.FieldList) []flatParam {
	var out []flatParam
	if fl == nil {
		return out
	}
	for _, f := range fl.List {
		typ := f.Type
		variadic := false
		if e, ok := typ.(*ast.Ellipsis); ok {
			variadic = true
			typ = e.Elt
		}
		if len(f.Names) == 0 {
			out = append(out, flatParam{typ: typ, variadic: variadic})
			continue
		}
		for _, n := range f.Names {
			out = append(out, flatParam{name: n.Name, typ: typ, variadic: variadic})
		}
	}
	return out
}

func checkShape(decl *ast.FuncDecl, sig Signature) error {
	params := flattenParams(decl.Type.Params)

	want := len(sig.Params)
	if sig.ExtraKwargs {
		want++
	}
	if sig.ExtraArgs {
		want++
	}
	if len(params) != want {
		return fmt.Errorf("'%s' takes %d parameters, want %d (%s)",
			decl.Name.Name, len(params), want, describeWant(sig))
	}

	for i, p := range sig.Params {
		got := params[i]
		if got.variadic {
			return fmt.Errorf("parameter %d (%s) must not be variadic", i+1, p.Name)
		}
		if p.Name != "" && got.name != p.Name {
			return fmt.Errorf("parameter %d is named %q, want %q", i+1, got.name, p.Name)
		}
		if p.Type != "" && !sameType(got.typ, p.Type) {
			return fmt.Errorf("parameter %q has type %s, want %s", p.Name, exprString(got.typ), p.Type)
		}
	}

	idx := len(sig.Params)
	if sig.ExtraKwargs {
		m, ok := params[idx].typ.(*ast.MapType)
		if !ok || params[idx].variadic || exprString(m.Key) != "string" {
			return fmt.Errorf("parameter %d must be a map[string]T of extra keyword arguments", idx+1)
		}
		idx++
	}
	if sig.ExtraArgs && !params[idx].variadic {
		return fmt.Errorf("last parameter must be variadic (...T) for extra arguments")
	}
	if !sig.ExtraArgs && len(params) > 0 && params[len(params)-1].variadic {
		return fmt.Errorf("'%s' must not be variadic", decl.Name.Name)
	}

	if sig.Result != "" {
		results := flattenParams(decl.Type.Results)
		if len(results) == 0 || !sameType(results[0].typ, sig.Result) {
			return fmt.Errorf("'%s' must return %s (optionally followed by error)", decl.Name.Name, sig.Result)
		}
	}
	return nil
}

func describeWant(sig Signature) string {
	var parts []string
	for _, p := range sig.Params {
		parts = append(parts, strings.TrimSpace(p.Name+" "+p.Type))
	}
	if sig.ExtraKwargs {
		parts = append(parts, "extra map[string]T")
	}
	if sig.ExtraArgs {
		parts = append(parts, "rest ...T")
	}
	return strings.Join(parts, ", ")
}

func sameType(got ast.Expr, want string) bool {
	w, err := parser.ParseExpr(want)
	if err != nil {
		// Not a Go type expression; nothing sensible to compare.
		return true
	}
	return exprString(got) == exprString(w)
}

func exprString(e ast.Expr) string {
	return types.ExprString(e)
}

func renderDecl(decl *ast.FuncDecl) string {
	var b strings.Builder
	b.WriteString("func ")
	b.WriteString(decl.Name.Name)
	b.WriteString("(")
	for i, p := range flattenParams(decl.Type.Params) {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.name != "" {
			b.WriteString(p.name + " ")
		}
		if p.variadic {
			b.WriteString("...")
		}
		b.WriteString(exprString(p.typ))
	}
	b.WriteString(")")
	results := flattenParams(decl.Type.Results)
	switch len(results) {
	case 0:
	case 1:
		b.WriteString(" " + exprString(results[0].typ))
	default:
		b.WriteString(" (")
		for i, r := range results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(exprString(r.typ))
		}
		b.WriteString(")")
	}
	return b.String()
}
