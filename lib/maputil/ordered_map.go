package maputil

import (
	"iter"
	"slices"
	"strings"
)

// OrderedMap is a map that remembers insertion order. Keys are lowercased unless the map is case sensitive.
type OrderedMap[T any] struct {
	keys []string
	// data - Important: Do not ever expose `data` out, always use Get, Add, Remove methods as it will cause corruption between `data` and `keys`
	data          map[string]T
	caseSensitive bool
}

func NewOrderedMap[T any](caseSensitive bool) *OrderedMap[T] {
	return &OrderedMap[T]{
		data:          make(map[string]T),
		caseSensitive: caseSensitive,
	}
}

func (o *OrderedMap[T]) normalize(key string) string {
	if o.caseSensitive {
		return key
	}
	return strings.ToLower(key)
}

func (o *OrderedMap[T]) Remove(key string) bool {
	key = o.normalize(key)
	if _, ok := o.data[key]; !ok {
		return false
	}

	delete(o.data, key)
	o.keys = slices.DeleteFunc(o.keys, func(existing string) bool { return existing == key })
	return true
}

// Add sets the value for a key, an existing key keeps its position.
func (o *OrderedMap[T]) Add(key string, value T) {
	key = o.normalize(key)
	if _, ok := o.data[key]; !ok {
		o.keys = append(o.keys, key)
	}

	o.data[key] = value
}

func (o *OrderedMap[T]) Get(key string) (T, bool) {
	val, ok := o.data[o.normalize(key)]
	return val, ok
}

func (o *OrderedMap[T]) Len() int {
	return len(o.keys)
}

func (o *OrderedMap[T]) Keys() []string {
	return slices.Clone(o.keys)
}

// All returns an in-order iterator over key-value pairs.
func (o *OrderedMap[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, key := range o.keys {
			if !yield(key, o.data[key]) {
				return
			}
		}
	}
}
