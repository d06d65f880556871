package undo

import (
	"bytes"
	"encoding/json"
)

// Value is either a T or unset. The zero Value is unset and stands for a
// store that has not been given a value yet.
type Value[T any] struct {
	v  T
	ok bool
}

// Some wraps v in a set Value.
func Some[T any](v T) Value[T] {
	return Value[T]{v: v, ok: true}
}

// None returns the unset Value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// Get returns the wrapped value and whether one is present.
func (v Value[T]) Get() (T, bool) {
	return v.v, v.ok
}

// IsSet reports whether the Value holds a T.
func (v Value[T]) IsSet() bool {
	return v.ok
}

// OrElse returns the wrapped value, or fallback when unset.
func (v Value[T]) OrElse(fallback T) T {
	if !v.ok {
		return fallback
	}
	return v.v
}

// MarshalJSON encodes an unset Value as null.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON decodes null into an unset Value.
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value[T]{}
		return nil
	}
	var decoded T
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*v = Some(decoded)
	return nil
}
