package cursor

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

// Compare returns -1, 0 or +1 comparing [a] and [b]. [b] is the reference: [a] is coerced to [b]'s kind first.
// An error is returned only when the two values still have different kinds after coercion.
func Compare(a, b any) (int, error) {
	a = Coerce(a, b)
	b = deref(b)

	switch castedB := b.(type) {
	case civil.Date:
		castedA, ok := a.(civil.Date)
		if !ok {
			return 0, mismatch(a, b)
		}
		return compareOrdered(castedA.Before, castedA.After, castedB), nil
	case civil.DateTime:
		castedA, ok := a.(civil.DateTime)
		if !ok {
			return 0, mismatch(a, b)
		}
		return compareOrdered(castedA.Before, castedA.After, castedB), nil
	case time.Time:
		castedA, ok := a.(time.Time)
		if !ok {
			return 0, mismatch(a, b)
		}
		return castedA.Compare(castedB), nil
	case string:
		castedA, ok := a.(string)
		if !ok {
			return 0, mismatch(a, b)
		}
		return strings.Compare(castedA, castedB), nil
	}

	if intB, ok := toInt64(b); ok {
		intA, ok := toInt64(a)
		if !ok {
			return 0, mismatch(a, b)
		}

		switch {
		case intA < intB:
			return -1, nil
		case intA > intB:
			return 1, nil
		default:
			return 0, nil
		}
	}

	return 0, mismatch(a, b)
}

func compareOrdered[T any](before, after func(T) bool, other T) int {
	if before(other) {
		return -1
	} else if after(other) {
		return 1
	}
	return 0
}

func mismatch(a, b any) error {
	return fmt.Errorf("cannot compare %T with %T", a, b)
}

// Max returns the greater of [current] and [candidate], [candidate] coerced to [current]'s kind.
// A nil [current] yields [candidate].
func Max(current, candidate any) (any, error) {
	if deref(current) == nil {
		return deref(candidate), nil
	}

	if deref(candidate) == nil {
		return current, nil
	}

	cmp, err := Compare(candidate, current)
	if err != nil {
		return nil, err
	}

	if cmp > 0 {
		return Coerce(candidate, current), nil
	}

	return deref(current), nil
}
