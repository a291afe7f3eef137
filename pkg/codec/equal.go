package codec

import (
	"math"
	"reflect"
)

// Equal reports whether a and b are the same value under the codec's domain
// equality: numbers compare by value regardless of Go type, strings by
// content and containers structurally. This is the relation preserved by an
// encode/decode round trip.
func Equal(a, b any) bool {
	if x, ok := toNumber(a); ok {
		y, ok := toNumber(b)
		return ok && x.equal(y)
	}
	if _, ok := toNumber(b); ok {
		return false
	}
	if a == nil || b == nil {
		return isNil(a) && isNil(b)
	}
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	}
	if xs, ok := asList(a); ok {
		ys, ok := asList(b)
		if !ok || len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !Equal(xs[i], ys[i]) {
				return false
			}
		}
		return true
	}
	if xm, ok := asObject(a); ok {
		ym, ok := asObject(b)
		if !ok || len(xm) != len(ym) {
			return false
		}
		for k, v := range xm {
			w, ok := ym[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	if xm, ok := asMap(a); ok {
		ym, ok := asMap(b)
		return ok && mapsEqual(xm, ym)
	}
	return reflect.DeepEqual(a, b)
}

type number struct {
	integral bool
	i        int64
	f        float64
}

func (n number) float() float64 {
	if n.integral {
		return float64(n.i)
	}
	return n.f
}

func (n number) equal(o number) bool {
	if n.integral && o.integral {
		return n.i == o.i
	}
	x, y := n.float(), o.float()
	if math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return x == y
}

func toNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{integral: true, i: int64(n)}, true
	case int8:
		return number{integral: true, i: int64(n)}, true
	case int16:
		return number{integral: true, i: int64(n)}, true
	case int32:
		return number{integral: true, i: int64(n)}, true
	case int64:
		return number{integral: true, i: n}, true
	case uint:
		return fromUint(uint64(n)), true
	case uint8:
		return number{integral: true, i: int64(n)}, true
	case uint16:
		return number{integral: true, i: int64(n)}, true
	case uint32:
		return number{integral: true, i: int64(n)}, true
	case uint64:
		return fromUint(n), true
	case float32:
		return number{f: float64(n)}, true
	case float64:
		return number{f: n}, true
	}
	return number{}, false
}

func fromUint(u uint64) number {
	if u > math.MaxInt64 {
		return number{f: float64(u)}
	}
	return number{integral: true, i: int64(u)}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil()
	}
	return false
}

func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asObject(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func asMap(v any) (map[any]any, bool) {
	if m, ok := v.(map[any]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	out := make(map[any]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().Interface()] = iter.Value().Interface()
	}
	return out, true
}

// mapsEqual matches keys under domain equality, so int and int64 keys with
// the same value are the same key.
func mapsEqual(x, y map[any]any) bool {
	if len(x) != len(y) {
		return false
	}
	for k, v := range x {
		if w, ok := y[k]; ok {
			if !Equal(v, w) {
				return false
			}
			continue
		}
		found := false
		for k2, w := range y {
			if Equal(k, k2) {
				if !Equal(v, w) {
					return false
				}
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
