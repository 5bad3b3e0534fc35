package jsoncolumn

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JsonColumn stores a T as a JSON document column. A nil V maps to SQL NULL.
type JsonColumn[T any] struct {
	V *T
}

// New wraps v for writing.
func New[T any](v *T) JsonColumn[T] {
	return JsonColumn[T]{V: v}
}

func (j *JsonColumn[T]) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		j.V = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsoncolumn: unsupported source type %T", src)
	}
	j.V = new(T)
	return json.Unmarshal(raw, j.V)
}

func (j JsonColumn[T]) Value() (driver.Value, error) {
	if j.V == nil {
		return nil, nil
	}
	raw, err := json.Marshal(j.V)
	return raw, err
}

func (j *JsonColumn[T]) Get() *T {
	return j.V
}
