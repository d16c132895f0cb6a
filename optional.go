package derailed

import "fmt"

// Optional wraps a request parameter that may be left unsupplied. The zero
// value is undefined; an undefined parameter is omitted entirely from the
// serialized request body, whereas a defined parameter is always sent, even
// when it holds a falsy value such as false, 0 or "".
//
// To send an explicit null for a field, use a pointer-typed Optional (for
// example Optional[*string]) and define it with a nil pointer. "Omit this
// field" and "set this field to null" therefore stay distinguishable at the
// call site.
type Optional[T any] struct {
	value   T
	defined bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, defined: true}
}

// Undefined returns the undefined Optional. It is equivalent to the zero
// value and exists to make call sites explicit.
func Undefined[T any]() Optional[T] {
	return Optional[T]{}
}

// IsDefined reports whether the parameter was supplied.
func (o Optional[T]) IsDefined() bool {
	return o.defined
}

// Value returns the held value and whether it was supplied.
func (o Optional[T]) Value() (T, bool) {
	return o.value, o.defined
}

// String renders the held value, or the fixed literal UNDEFINED when the
// parameter was not supplied.
func (o Optional[T]) String() string {
	if !o.defined {
		return "UNDEFINED"
	}
	return fmt.Sprint(o.value)
}

// payload accumulates a request body, dropping undefined parameters.
type payload map[string]any

// set unconditionally adds a required parameter.
func (p payload) set(key string, v any) payload {
	p[key] = v
	return p
}

// setOptional adds v only if it is defined.
func setOptional[T any](p payload, key string, v Optional[T]) payload {
	if v.defined {
		p[key] = v.value
	}
	return p
}
