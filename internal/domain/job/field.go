package job

import (
	"bytes"
	"encoding/json"
)

// Field is an optional JSON value that remembers whether it was present.
// A present null leaves Set true and Value nil.
type Field[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Field[T] { return Field[T]{Set: true, Value: &v} }

func Null[T any]() Field[T] { return Field[T]{Set: true} }

func (f Field[T]) Cleared() bool { return f.Set && f.Value == nil }

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}
