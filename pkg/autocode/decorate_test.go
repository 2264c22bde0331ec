package autocode

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addInts returns the sum of a and b.
func addInts(a, b int) int { panic("placeholder") }

func joinWords(sep string, words ...string) (string, error) { panic("placeholder") }

func TestDecorate(t *testing.T) {
	var seen GenerationContext
	agent := AgentFuncs{GenerateFunc: func(ctx context.Context, gc GenerationContext) (string, error) {
		seen = gc
		return fmt.Sprintf("package main\n\nfunc %s(a int, b int) int {\n\treturn a + b\n}\n", gc.Name), nil
	}}
	a := newTestAssistant(t, nil, UseAgent(agent))

	add, bound, err := DecorateBound(context.Background(), a, addInts)
	require.NoError(t, err)
	assert.Equal(t, 5, add(2, 3))

	assert.Equal(t, "addInts", seen.Name)
	assert.Equal(t, "addInts returns the sum of a and b.", seen.Description)
	assert.Equal(t, []Variable{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}}, seen.Args)
	assert.Equal(t, "int", seen.ReturnType)

	assert.Equal(t, KindBound, bound.Kind())
	assert.Equal(t, "addInts", bound.Name)
	inner, ok := bound.Inner.(*CompiledFunc)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(inner.Path, "decorate_test.go/addInts.go") ||
		strings.HasSuffix(inner.Path, `decorate_test.go\addInts.go`), inner.Path)

	// A second decoration is served from the cache.
	again, err := Decorate(a, addInts)
	require.NoError(t, err)
	assert.Equal(t, 9, again(4, 5))
}

func TestDecorate_Variadic(t *testing.T) {
	src := "package main\n\nimport \"strings\"\n\nfunc joinWords(sep string, rest ...string) (string, error) {\n\treturn strings.Join(rest, sep), nil\n}\n"
	agent := newFakeAgent(src)
	a := newTestAssistant(t, nil, UseAgent(agent))

	join, err := Decorate(a, joinWords)
	require.NoError(t, err)
	got, err := join("-", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", got)

	gc := agent.contexts[0]
	assert.True(t, gc.UseExtraArgs)
	assert.Equal(t, "string", gc.ExtraArgsType)
	assert.Equal(t, "string", gc.ReturnType)
	assert.Equal(t, "Implement joinWords.", gc.Description)
}

func TestDecorate_DryRun(t *testing.T) {
	agent := newFakeAgent()
	a := newTestAssistant(t, nil, UseAgent(agent))

	add, err := Decorate(a, addInts, WithDryRun(true), WithDryRunStub(ReturnValue(3)))
	require.NoError(t, err)
	assert.Equal(t, 3, add(1, 1))
	assert.Zero(t, agent.calls())
}

func TestDecorate_WrongShapeIsRepaired(t *testing.T) {
	wrong := "package main\n\nfunc addInts(a int, b int) string {\n\treturn \"\"\n}\n"
	right := "package main\n\nfunc addInts(a int, b int) int {\n\treturn a + b\n}\n"
	agent := newFakeAgent(wrong, right)
	a := newTestAssistant(t, nil, UseAgent(agent))

	add, err := Decorate(a, addInts)
	require.NoError(t, err)
	assert.Equal(t, 3, add(1, 2))
	require.Len(t, agent.feedbacks, 1)
	assert.Equal(t, "signature", agent.feedbacks[0].Detail)
}

func TestDecorate_NotAFunction(t *testing.T) {
	a := newTestAssistant(t, nil, UseAgent(newFakeAgent()))
	var nilFn func()
	_, err := Decorate(a, nilFn)
	assert.Error(t, err)
}

func TestDescribePlaceholder_FromType(t *testing.T) {
	var ph placeholder
	fromType(&ph, reflect.TypeOf(func(int, []string, ...float64) (bool, error) { return false, nil }))

	assert.Equal(t, []Variable{{Name: "p0", Type: "int"}, {Name: "p1", Type: "[]string"}}, ph.params)
	assert.True(t, ph.variadic)
	assert.Equal(t, "float64", ph.variadicType)
	assert.Equal(t, "bool", ph.result)
}
