package domain

import (
	"bytes"
	"encoding/json"
)

// Optional is a patch field with three states: unset (key absent from the
// payload), null (key present with JSON null), and set to a value. Absent keys
// never touch stored state; null clears it.
type Optional[T any] struct {
	present bool
	null    bool
	value   T
}

// Set returns an Optional holding v.
func Set[T any](v T) Optional[T] {
	return Optional[T]{present: true, value: v}
}

// Null returns an Optional that clears the stored value.
func Null[T any]() Optional[T] {
	return Optional[T]{present: true, null: true}
}

// Present reports whether the key appeared in the patch.
func (o Optional[T]) Present() bool { return o.present }

// IsNull reports whether the key appeared with an explicit null.
func (o Optional[T]) IsNull() bool { return o.present && o.null }

// IsZero reports an absent key; used by the omitzero tag when re-encoding patches.
func (o Optional[T]) IsZero() bool { return !o.present }

// Value returns the carried value and whether one is present and non-null.
func (o Optional[T]) Value() (T, bool) {
	return o.value, o.present && !o.null
}

// Ptr returns a pointer to a copy of the value, nil when absent or null.
func (o Optional[T]) Ptr() *T {
	if !o.present || o.null {
		return nil
	}
	v := o.value
	return &v
}

// ApplyTo overwrites *dst when the key is present.
func (o Optional[T]) ApplyTo(dst **T) {
	if !o.present {
		return
	}
	*dst = o.Ptr()
}

// ApplySlice overwrites a slice field when the key is present; null clears it.
func ApplySlice[E any](o Optional[[]E], dst *[]E) {
	if !o.present {
		return
	}
	if o.null {
		*dst = nil
		return
	}
	*dst = append([]E(nil), o.value...)
}

// UnmarshalJSON records presence. encoding/json calls it for explicit nulls too.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.null = true
		var zero T
		o.value = zero
		return nil
	}
	o.null = false
	return json.Unmarshal(data, &o.value)
}

// MarshalJSON encodes null for explicit nulls and absent keys.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.present || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
