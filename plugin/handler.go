package plugin

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"unicode"
	"unicode/utf8"
)

// Method is a single callable of a plugin. The returned value may be a plain
// value or a promise.Thenable; a non-nil error rejects the call.
type Method func(ctx context.Context, args ...any) (any, error)

// Handler is the implementation of a plugin.
type Handler interface {
	// Methods lists the method names the handler exposes.
	Methods() []string

	// Lookup returns the method registered under name.
	Lookup(name string) (Method, bool)
}

// Methods is a Handler backed by a map.
type Methods map[string]Method

// Methods returns the sorted method names.
func (m Methods) Methods() []string {
	names := make([]string, 0, len(m))
	for name, fn := range m {
		if fn != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Lookup returns the method registered under name.
func (m Methods) Lookup(name string) (Method, bool) {
	fn, ok := m[name]
	if !ok || fn == nil {
		return nil, false
	}
	return fn, true
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// FromObject builds a Handler from the exported methods of v. Method names are
// exposed with a lower-case first letter.
//
// Supported shapes: an optional leading context.Context parameter, any
// further parameters (variadic included), and results of (), (T), (error) or
// (T, error). Missing arguments are passed as zero values and extra arguments
// to non-variadic methods are dropped. JSON-style numbers are converted to the
// parameter's numeric type.
func FromObject(v any) (Handler, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil object", ErrInvalidPlugin)
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	methods := make(Methods, rt.NumMethod())
	for i := 0; i < rt.NumMethod(); i++ {
		name := rt.Method(i).Name
		fn, err := adaptMethod(rv.Method(i))
		if err != nil {
			return nil, fmt.Errorf("%w: method %s: %v", ErrInvalidPlugin, name, err)
		}
		methods[lowerFirst(name)] = fn
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: %T has no exported methods", ErrInvalidPlugin, v)
	}

	return methods, nil
}

type resultShape int

const (
	resultNone resultShape = iota
	resultValue
	resultError
	resultValueError
)

func adaptMethod(fv reflect.Value) (Method, error) {
	ft := fv.Type()

	var shape resultShape
	switch ft.NumOut() {
	case 0:
		shape = resultNone
	case 1:
		if ft.Out(0) == errorType {
			shape = resultError
		} else {
			shape = resultValue
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("second result must be error, got %s", ft.Out(1))
		}
		shape = resultValueError
	default:
		return nil, fmt.Errorf("too many results (%d)", ft.NumOut())
	}

	offset := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		offset = 1
	}

	return func(ctx context.Context, args ...any) (any, error) {
		in, err := buildArgs(ft, offset, ctx, args)
		if err != nil {
			return nil, err
		}
		return splitResults(fv.Call(in), shape)
	}, nil
}

func buildArgs(ft reflect.Type, offset int, ctx context.Context, args []any) ([]reflect.Value, error) {
	fixed := ft.NumIn() - offset
	if ft.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, ft.NumIn()+len(args))
	if offset == 1 {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}

	for i := 0; i < fixed; i++ {
		pt := ft.In(offset + i)
		if i >= len(args) {
			in = append(in, reflect.Zero(pt))
			continue
		}
		av, err := convertArg(args[i], pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, av)
	}

	if ft.IsVariadic() && len(args) > fixed {
		elem := ft.In(ft.NumIn() - 1).Elem()
		for i := fixed; i < len(args); i++ {
			av, err := convertArg(args[i], elem)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			in = append(in, av)
		}
	}

	return in, nil
}

func convertArg(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(t), nil
	}

	av := reflect.ValueOf(a)
	if av.Type().AssignableTo(t) {
		return av, nil
	}
	if isNumeric(av.Kind()) && isNumeric(t.Kind()) {
		if !fits(av, t) {
			return reflect.Value{}, fmt.Errorf("%w: %v does not fit in %s", ErrArgumentType, a, t)
		}
		return av.Convert(t), nil
	}

	return reflect.Value{}, fmt.Errorf("%w: cannot use %s as %s", ErrArgumentType, av.Type(), t)
}

// fits reports whether the numeric value v converts to t without losing its
// integer part, wrapping or overflowing.
func fits(v reflect.Value, t reflect.Type) bool {
	target := reflect.Zero(t)

	switch {
	case isInt(t.Kind()):
		switch {
		case isInt(v.Kind()):
			return !target.OverflowInt(v.Int())
		case isUint(v.Kind()):
			return v.Uint() <= math.MaxInt64 && !target.OverflowInt(int64(v.Uint()))
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return false
			}
			return !target.OverflowInt(int64(f))
		}

	case isUint(t.Kind()):
		switch {
		case isInt(v.Kind()):
			return v.Int() >= 0 && !target.OverflowUint(uint64(v.Int()))
		case isUint(v.Kind()):
			return !target.OverflowUint(v.Uint())
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return false
			}
			return !target.OverflowUint(uint64(f))
		}

	default:
		if isInt(v.Kind()) || isUint(v.Kind()) {
			return true
		}
		return !target.OverflowFloat(v.Float())
	}
}

func splitResults(out []reflect.Value, shape resultShape) (any, error) {
	switch shape {
	case resultValue:
		return out[0].Interface(), nil
	case resultError:
		return nil, asError(out[0])
	case resultValueError:
		if err := asError(out[1]); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		return nil, nil
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func isNumeric(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || k == reflect.Float32 || k == reflect.Float64
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func isUint(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
