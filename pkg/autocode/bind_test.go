package autocode

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostInvoker(fn any, gc GenerationContext) *invoker {
	return &invoker{name: "host", fn: reflect.ValueOf(fn), layout: layoutOf(gc)}
}

func TestInvoker_PositionalAndNamed(t *testing.T) {
	greet := func(name string, greeting string, times int) string {
		out := ""
		for i := 0; i < times; i++ {
			out += greeting + " " + name + ";"
		}
		return out
	}
	inv := hostInvoker(greet, GenerationContext{
		Args:   []Variable{Var("name", "string", "")},
		Kwargs: []Variable{{Name: "greeting", Type: "string", Default: "hi"}, Var("times", "int", "")},
	})

	tests := []struct {
		name   string
		args   []any
		kwargs map[string]any
		want   any
		errMsg string
	}{
		{name: "defaults and zero value", args: []any{"bo"}, want: ""},
		{name: "named by keyword", args: []any{"bo"}, kwargs: map[string]any{"times": 2}, want: "hi bo;hi bo;"},
		{name: "named by position", args: []any{"bo", "yo", 1}, want: "yo bo;"},
		{name: "positional by keyword", kwargs: map[string]any{"name": "al", "times": 1}, want: "hi al;"},
		{name: "json float", args: []any{"bo"}, kwargs: map[string]any{"times": float64(1)}, want: "hi bo;"},
		{name: "missing positional", kwargs: map[string]any{"times": 1}, errMsg: `missing required argument "name"`},
		{name: "too many", args: []any{"a", "b", 1, 2}, errMsg: "takes 3 arguments, got 4"},
		{name: "duplicate", args: []any{"a"}, kwargs: map[string]any{"name": "b"}, errMsg: `multiple values for argument "name"`},
		{name: "unknown keyword", args: []any{"a"}, kwargs: map[string]any{"loud": true}, errMsg: `unexpected keyword argument "loud"`},
		{name: "bad type", args: []any{42}, errMsg: `argument "name"`},
		{name: "truncation", args: []any{"a"}, kwargs: map[string]any{"times": 1.5}, errMsg: "without truncation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inv.invoke(tt.args, tt.kwargs)
			if tt.errMsg != "" {
				var ae *ArgumentError
				require.ErrorAs(t, err, &ae)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvoker_ExtraArgsAndKwargs(t *testing.T) {
	fn := func(base int, extra map[string]int, rest ...int) (int, error) {
		sum := base
		for _, v := range extra {
			sum += v
		}
		for _, v := range rest {
			sum += v
		}
		return sum, nil
	}
	inv := hostInvoker(fn, GenerationContext{
		Args:           []Variable{Var("base", "int", "")},
		UseExtraKwargs: true, ExtraKwargsType: "int",
		UseExtraArgs: true, ExtraArgsType: "int",
	})

	got, err := inv.invoke([]any{1, 2, 3}, map[string]any{"x": 10, "y": 100})
	require.NoError(t, err)
	assert.Equal(t, 116, got)

	got, err = inv.invoke([]any{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, err = inv.invoke([]any{1, "two"}, nil)
	assert.ErrorContains(t, err, "extra argument 1")
}

func TestInvoker_DirectBinding(t *testing.T) {
	join := func(sep string, parts ...string) string {
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += sep
			}
			out += p
		}
		return out
	}
	inv := hostInvoker(join, GenerationContext{})

	got, err := inv.invoke([]any{"-", "a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a-b", got)

	_, err = inv.invoke(nil, nil)
	assert.ErrorContains(t, err, "at least 1 arguments")

	_, err = inv.invoke([]any{"-"}, map[string]any{"x": 1})
	assert.ErrorContains(t, err, `unexpected keyword argument "x"`)
}

func TestInvoker_Results(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		fn      any
		want    any
		wantErr error
	}{
		{"none", func() {}, nil, nil},
		{"value", func() int { return 1 }, 1, nil},
		{"error only", func() error { return boom }, nil, boom},
		{"value and nil error", func() (string, error) { return "ok", nil }, "ok", nil},
		{"value and error", func() (string, error) { return "partial", boom }, "partial", boom},
		{"several", func() (int, string) { return 1, "a" }, []any{1, "a"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hostInvoker(tt.fn, GenerationContext{}).invoke(nil, nil)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		to     reflect.Type
		want   any
		errMsg string
	}{
		{name: "float to int", in: 3.0, to: reflect.TypeOf(0), want: 3},
		{name: "int to float", in: 3, to: reflect.TypeOf(0.0), want: 3.0},
		{name: "int to int8 overflow", in: 300, to: reflect.TypeOf(int8(0)), errMsg: "overflows"},
		{name: "negative to uint", in: -1, to: reflect.TypeOf(uint(0)), errMsg: "negative"},
		{name: "huge float", in: math.MaxFloat64, to: reflect.TypeOf(int64(0)), errMsg: "overflows"},
		{name: "float overflows float32", in: 1e300, to: reflect.TypeOf(float32(0)), errMsg: "overflows"},
		{name: "float to float32", in: 0.5, to: reflect.TypeOf(float32(0)), want: float32(0.5)},
		{name: "inexact int to float", in: int64(1<<62 + 1), to: reflect.TypeOf(0.0), errMsg: "overflows"},
		{name: "exact int to float", in: int64(1 << 62), to: reflect.TypeOf(0.0), want: float64(1 << 62)},
		{name: "json slice", in: []any{1.0, 2.0}, to: reflect.TypeOf([]int{}), want: []int{1, 2}},
		{name: "json map", in: map[string]any{"a": 1.0}, to: reflect.TypeOf(map[string]int{}), want: map[string]int{"a": 1}},
		{name: "slice element error", in: []any{"x"}, to: reflect.TypeOf([]int{}), errMsg: "index 0"},
		{name: "nil slice", in: nil, to: reflect.TypeOf([]int{}), want: []int(nil)},
		{name: "nil int", in: nil, to: reflect.TypeOf(0), errMsg: "cannot use nil"},
		{name: "to any", in: "s", to: reflect.TypeOf((*any)(nil)).Elem(), want: "s"},
		{name: "string to int", in: "3", to: reflect.TypeOf(0), errMsg: "cannot use"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertValue(tt.in, tt.to)
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Interface())
		})
	}
}

func TestPackResults(t *testing.T) {
	withErr := reflect.TypeOf(func() (int, error) { return 0, nil })
	out := packResults(withErr, 7.0, nil)
	require.Len(t, out, 2)
	assert.Equal(t, 7, out[0].Interface())
	assert.Nil(t, out[1].Interface())

	boom := errors.New("boom")
	out = packResults(withErr, nil, boom)
	assert.Equal(t, 0, out[0].Interface())
	assert.Equal(t, boom, out[1].Interface())

	noErr := reflect.TypeOf(func() int { return 0 })
	assert.PanicsWithValue(t, boom, func() { packResults(noErr, nil, boom) })

	pair := reflect.TypeOf(func() (int, string) { return 0, "" })
	out = packResults(pair, []any{1, "a"}, nil)
	assert.Equal(t, 1, out[0].Interface())
	assert.Equal(t, "a", out[1].Interface())
}
