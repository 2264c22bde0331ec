package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addSource = "```go\n" + `package main

func Add(a int, b int) int {
	return a + b
}
`

func TestCompile_Valid(t *testing.T) {
	c := New(Options{})
	src := "package main\n\nfunc Add(a int, b int) int {\n\treturn a + b\n}\n"

	prog, err := c.Compile(src, Signature{
		Name:   "Add",
		Params: []Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
		Result: "int",
	})
	require.NoError(t, err)
	assert.Equal(t, "Add", prog.Name)
	assert.Equal(t, "func Add(a int, b int) int", prog.Decl)

	out := prog.Func.Call([]reflect.Value{reflect.ValueOf(2), reflect.ValueOf(3)})
	require.Len(t, out, 1)
	assert.Equal(t, 5, int(out[0].Int()))
}

func TestCompile_PackageNormalized(t *testing.T) {
	c := New(Options{})
	src := "package helpers\n\nimport \"strings\"\n\nfunc Shout(s string) string {\n\treturn strings.ToUpper(s) + \"!\"\n}\n"

	prog, err := c.Compile(src, Signature{Name: "Shout", Params: []Param{{Name: "s"}}})
	require.NoError(t, err)

	fn, ok := prog.Func.Interface().(func(string) string)
	require.True(t, ok, "got %s", prog.Func.Type())
	assert.Equal(t, "HI!", fn("hi"))
	assert.Equal(t, src, prog.Source, "the stored source is the agent's text")
}

func TestCompile_MissingPackageClause(t *testing.T) {
	c := New(Options{})
	prog, err := c.Compile("func Twice(n int) int { return n * 2 }", Signature{Name: "Twice", Params: []Param{{Name: "n", Type: "int"}}})
	require.NoError(t, err)
	assert.Equal(t, 8, int(prog.Func.Call([]reflect.Value{reflect.ValueOf(4)})[0].Int()))
}

func TestCompile_Variadic(t *testing.T) {
	c := New(Options{})
	src := `package main

func Sum(base int, extra map[string]int, rest ...int) int {
	for _, v := range extra {
		base += v
	}
	for _, v := range rest {
		base += v
	}
	return base
}
`
	prog, err := c.Compile(src, Signature{
		Name:        "Sum",
		Params:      []Param{{Name: "base", Type: "int"}},
		ExtraKwargs: true,
		ExtraArgs:   true,
	})
	require.NoError(t, err)

	out := prog.Func.Call([]reflect.Value{
		reflect.ValueOf(1),
		reflect.ValueOf(map[string]int{"x": 10}),
		reflect.ValueOf(2),
		reflect.ValueOf(3),
	})
	assert.Equal(t, 16, int(out[0].Int()))
}

func TestCompile_Rejections(t *testing.T) {
	c := New(Options{})
	addSig := Signature{Name: "Add", Params: []Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}}}

	tests := []struct {
		name  string
		src   string
		sig   Signature
		phase Phase
	}{
		{
			name:  "syntax error",
			src:   "package main\n\nfunc Add(a int, b int) int {\n\treturn a +\n",
			sig:   addSig,
			phase: PhaseParse,
		},
		{
			name:  "fenced reply",
			src:   addSource,
			sig:   addSig,
			phase: PhaseParse,
		},
		{
			name:  "forbidden import",
			src:   "package main\n\nimport \"os\"\n\nfunc Add(a int, b int) int { os.Exit(1); return 0 }\n",
			sig:   addSig,
			phase: PhaseImports,
		},
		{
			name:  "wrong name",
			src:   "package main\n\nfunc Plus(a int, b int) int { return a + b }\n",
			sig:   addSig,
			phase: PhaseSignature,
		},
		{
			name:  "wrong arity",
			src:   "package main\n\nfunc Add(a int) int { return a }\n",
			sig:   addSig,
			phase: PhaseSignature,
		},
		{
			name:  "wrong param name",
			src:   "package main\n\nfunc Add(x int, b int) int { return x + b }\n",
			sig:   addSig,
			phase: PhaseSignature,
		},
		{
			name:  "wrong param type",
			src:   "package main\n\nfunc Add(a float64, b int) int { return int(a) + b }\n",
			sig:   addSig,
			phase: PhaseSignature,
		},
		{
			name: "extra args not variadic",
			src:  "package main\n\nfunc F(a int, rest []int) int { return a }\n",
			sig:  Signature{Name: "F", Params: []Param{{Name: "a"}}, ExtraArgs: true},
			phase: PhaseSignature,
		},
		{
			name: "unexpected variadic",
			src:  "package main\n\nfunc F(a int, rest ...int) int { return a }\n",
			sig:  Signature{Name: "F", Params: []Param{{Name: "a"}, {Name: "rest"}}},
			phase: PhaseSignature,
		},
		{
			name: "wrong result",
			src:  "package main\n\nfunc F() string { return \"\" }\n",
			sig:  Signature{Name: "F", Result: "int"},
			phase: PhaseSignature,
		},
		{
			name:  "undefined identifier",
			src:   "package main\n\nfunc Add(a int, b int) int { return a + c }\n",
			sig:   addSig,
			phase: PhaseEval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(tt.src, tt.sig)
			require.Error(t, err)

			var cerr *Error
			require.True(t, errors.As(err, &cerr), "got %T", err)
			assert.Equal(t, tt.phase, cerr.Phase, cerr.Message)
			assert.Equal(t, tt.src, cerr.Source)
		})
	}
}

func TestCompile_FuncType(t *testing.T) {
	c := New(Options{})
	src := "package main\n\nfunc Neg(n int) int { return -n }\n"
	negParams := []Param{{Name: "n", Type: "int"}}

	_, err := c.Compile(src, Signature{Name: "Neg", Params: negParams, FuncType: reflect.TypeOf(func(int) int { return 0 })})
	require.NoError(t, err)

	_, err = c.Compile(src, Signature{Name: "Neg", Params: negParams, FuncType: reflect.TypeOf(func(string) int { return 0 })})
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, PhaseSignature, cerr.Phase)
}

func TestCompile_FirstFunction(t *testing.T) {
	c := New(Options{})
	src := "package main\n\nfunc helper() int { return 1 }\n\nfunc main() {}\n"
	prog, err := c.Compile(src, Signature{})
	require.NoError(t, err)
	assert.Equal(t, "helper", prog.Name)
}

func TestCompile_WithMainFunc(t *testing.T) {
	c := New(Options{})
	src := "package main\n\nimport \"fmt\"\n\nfunc Add(a int, b int) int { return a + b }\n\nfunc main() {\n\tfmt.Println(Add(1, 2))\n}\n"
	prog, err := c.Compile(src, Signature{
		Name:   "Add",
		Params: []Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
		Result: "int",
	})
	require.NoError(t, err)
	assert.Equal(t, src, prog.Source)
	assert.Equal(t, 5, int(prog.Func.Call([]reflect.Value{reflect.ValueOf(2), reflect.ValueOf(3)})[0].Int()))

	prog, err = c.Compile("package tools\n\nfunc main() {}\n\nfunc Neg(n int) int { return -n }\n", Signature{Name: "Neg", Params: []Param{{Name: "n"}}})
	require.NoError(t, err)
	assert.Equal(t, -4, int(prog.Func.Call([]reflect.Value{reflect.ValueOf(4)})[0].Int()))
}

func TestCompile_CustomAllowList(t *testing.T) {
	c := New(Options{Allowed: map[string]bool{"os": true}})
	src := "package main\n\nimport \"os\"\n\nfunc Home() string { return os.Getenv(\"HOME\") }\n"
	_, err := c.Compile(src, Signature{Name: "Home"})
	assert.NoError(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.go")
	src := "package overrides\n\nimport \"os\"\n\nfunc Cwd() bool {\n\t_, err := os.Getwd()\n\treturn err == nil\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	c := New(Options{})
	prog, err := c.LoadFile(path, "Cwd", nil)
	require.NoError(t, err, "trusted files may import anything")
	assert.True(t, prog.Func.Call(nil)[0].Bool())

	_, err = c.LoadFile(path, "Missing", nil)
	assert.Error(t, err)

	_, err = c.LoadFile(filepath.Join(dir, "nope.go"), "Cwd", nil)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	c := New(Options{})

	prog, err := c.Verify("package main\n\nfunc Join(sep string, parts ...string) string {\n\treturn sep\n}\n", "")
	require.NoError(t, err)
	assert.Equal(t, "Join", prog.Name)

	_, err = c.Verify("package main\n\nimport \"os\"\n\nfunc Env() string { return os.Getenv(\"HOME\") }\n", "Env")
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, PhaseImports, ce.Phase)

	_, err = c.Verify("package main\n\nfunc A() {}\n", "B")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, PhaseSignature, ce.Phase)
}
