package autocode

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// layout is the parameter shape of a generated function.
type layout struct {
	params      []Variable // positional then named
	positional  int
	extraKwargs bool
	extraArgs   bool
}

func layoutOf(gc GenerationContext) layout {
	return layout{
		params:      gc.params(),
		positional:  len(gc.Args),
		extraKwargs: gc.UseExtraKwargs,
		extraArgs:   gc.UseExtraArgs,
	}
}

func (l layout) empty() bool {
	return len(l.params) == 0 && !l.extraArgs && !l.extraKwargs
}

// matches reports whether t has exactly the parameters the layout expects.
func (l layout) matches(t reflect.Type) bool {
	n := len(l.params)
	if l.extraKwargs {
		n++
	}
	if l.extraArgs {
		n++
	}
	if t.NumIn() != n || t.IsVariadic() != l.extraArgs {
		return false
	}
	if l.extraKwargs {
		mt := t.In(len(l.params))
		if mt.Kind() != reflect.Map || mt.Key().Kind() != reflect.String {
			return false
		}
	}
	return true
}

// invoker calls a reflect func value with Go-convention argument binding.
type invoker struct {
	name   string
	fn     reflect.Value
	layout layout
}

func (inv *invoker) invoke(args []any, kwargs map[string]any) (any, error) {
	in, err := inv.bind(args, kwargs)
	if err != nil {
		return nil, err
	}
	return unpackResults(inv.fn.Call(in))
}

func (inv *invoker) bind(args []any, kwargs map[string]any) ([]reflect.Value, error) {
	t := inv.fn.Type()
	if inv.layout.empty() || !inv.layout.matches(t) {
		return bindDirect(inv.name, t, args, kwargs)
	}

	l := inv.layout
	np := len(l.params)
	var rest []any
	if len(args) > np {
		if !l.extraArgs {
			return nil, argErr(inv.name, "takes %d arguments, got %d", np, len(args))
		}
		rest = args[np:]
		args = args[:np]
	}

	in := make([]reflect.Value, 0, t.NumIn()+len(rest))
	used := make(map[string]bool, len(kwargs))
	for i, p := range l.params {
		pt := t.In(i)
		var (
			v   any
			has bool
		)
		kv, inKwargs := kwargs[p.Name]
		switch {
		case i < len(args):
			if inKwargs {
				return nil, argErr(inv.name, "got multiple values for argument %q", p.Name)
			}
			v, has = args[i], true
		case inKwargs:
			v, has = kv, true
			used[p.Name] = true
		case i >= l.positional && p.Default != nil:
			v, has = p.Default, true
		}

		if !has {
			if i < l.positional {
				return nil, argErr(inv.name, "missing required argument %q", p.Name)
			}
			in = append(in, reflect.Zero(pt))
			continue
		}
		rv, err := convertValue(v, pt)
		if err != nil {
			return nil, argErr(inv.name, "argument %q: %v", p.Name, err)
		}
		in = append(in, rv)
	}

	var unknown []string
	for k := range kwargs {
		if !used[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)

	if l.extraKwargs {
		mt := t.In(np)
		m := reflect.MakeMapWithSize(mt, len(unknown))
		for _, k := range unknown {
			cv, err := convertValue(kwargs[k], mt.Elem())
			if err != nil {
				return nil, argErr(inv.name, "keyword argument %q: %v", k, err)
			}
			m.SetMapIndex(reflect.ValueOf(k).Convert(mt.Key()), cv)
		}
		in = append(in, m)
	} else if len(unknown) > 0 {
		return nil, argErr(inv.name, "unexpected keyword argument %q", unknown[0])
	}

	if l.extraArgs {
		et := t.In(t.NumIn() - 1).Elem()
		for i, r := range rest {
			cv, err := convertValue(r, et)
			if err != nil {
				return nil, argErr(inv.name, "extra argument %d: %v", i+1, err)
			}
			in = append(in, cv)
		}
	}
	return in, nil
}

// bindDirect binds positional arguments straight onto t's parameters. It is
// used for host functions whose parameters are not described.
func bindDirect(name string, t reflect.Type, args []any, kwargs map[string]any) ([]reflect.Value, error) {
	if len(kwargs) > 0 {
		keys := make([]string, 0, len(kwargs))
		for k := range kwargs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, argErr(name, "unexpected keyword argument %q", keys[0])
	}

	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, argErr(name, "takes at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, argErr(name, "takes %d arguments, got %d", fixed, len(args))
	}

	in := make([]reflect.Value, 0, len(args))
	for i, a := range args {
		var pt reflect.Type
		if i < fixed {
			pt = t.In(i)
		} else {
			pt = t.In(fixed).Elem()
		}
		rv, err := convertValue(a, pt)
		if err != nil {
			return nil, argErr(name, "argument %d: %v", i+1, err)
		}
		in = append(in, rv)
	}
	return in, nil
}

// convertValue turns v into a value of type t. Assignable values pass as
// is; numbers convert when no information is lost; []any and map[string]any
// (as produced by encoding/json) convert element-wise.
func convertValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		if t.Kind() == reflect.Interface {
			out := reflect.New(t).Elem()
			out.Set(rv)
			return out, nil
		}
		return rv, nil
	}

	switch {
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return convertNumber(rv, t)

	case rv.Kind() == reflect.Slice && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := convertValue(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case rv.Kind() == reflect.Map && t.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			kv, err := convertValue(iter.Key().Interface(), t.Key())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("key %v: %w", iter.Key(), err)
			}
			ev, err := convertValue(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("key %v: %w", iter.Key(), err)
			}
			out.SetMapIndex(kv, ev)
		}
		return out, nil

	case rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) && !isNumber(t.Kind()):
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %v (%T) as %s", v, v, t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNegative(rv reflect.Value) bool {
	switch {
	case isFloat(rv.Kind()):
		return rv.Float() < 0
	case isUnsigned(rv.Kind()):
		return false
	default:
		return rv.Int() < 0
	}
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	if isFloat(rv.Kind()) && !isFloat(t.Kind()) {
		f := rv.Float()
		if f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("cannot use %v as %s without truncation", f, t)
		}
	}
	if isUnsigned(t.Kind()) && isNegative(rv) {
		return reflect.Value{}, fmt.Errorf("cannot use negative %v as %s", rv.Interface(), t)
	}
	out := rv.Convert(t)
	switch {
	case isFloat(t.Kind()) && isFloat(rv.Kind()):
		// float64 -> float32 rounds to nearest; only overflow is an error.
		if f := out.Float(); math.IsInf(f, 0) && !math.IsInf(rv.Float(), 0) {
			return reflect.Value{}, fmt.Errorf("%v overflows %s", rv.Interface(), t)
		}
	case out.Convert(rv.Type()).Interface() != rv.Interface():
		// Round trip detects overflow, sign loss and integers a float
		// cannot represent exactly.
		return reflect.Value{}, fmt.Errorf("%v overflows %s", rv.Interface(), t)
	}
	return out, nil
}

// unpackResults maps (), (T), (error), (T, error) and longer result lists
// onto (any, error).
func unpackResults(out []reflect.Value) (any, error) {
	var err error
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e := out[n-1].Interface(); e != nil {
			err = e.(error)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	default:
		vals := make([]any, len(out))
		for i, o := range out {
			vals[i] = o.Interface()
		}
		return vals, err
	}
}

// packResults is the inverse of unpackResults for a function type ft. When
// ft has no error result, err is raised as a panic.
func packResults(ft reflect.Type, res any, err error) []reflect.Value {
	n := ft.NumOut()
	hasErr := n > 0 && ft.Out(n-1) == errorType
	if err != nil && !hasErr {
		panic(err)
	}

	values := n
	if hasErr {
		values--
	}
	out := make([]reflect.Value, 0, n)

	var parts []any
	switch values {
	case 0:
	case 1:
		parts = []any{res}
	default:
		if s, ok := res.([]any); ok {
			parts = s
		}
	}
	for i := 0; i < values; i++ {
		rt := ft.Out(i)
		if err != nil || i >= len(parts) || parts[i] == nil {
			out = append(out, reflect.Zero(rt))
			continue
		}
		rv, cerr := convertValue(parts[i], rt)
		if cerr != nil {
			panic(&ArgumentError{Msg: fmt.Sprintf("result %d: %v", i+1, cerr)})
		}
		out = append(out, rv)
	}
	if hasErr {
		ev := reflect.Zero(errorType)
		if err != nil {
			ev = reflect.ValueOf(&err).Elem()
		}
		out = append(out, ev)
	}
	return out
}
